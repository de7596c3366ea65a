package handlers

import (
	"context"
	"encoding/binary"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/infopack"
	"github.com/gosmbd/smb1d/internal/smb1/notify"
	"github.com/gosmbd/smb1d/internal/smb1/transact"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// TRANS2 sub-commands (§4.5, §10.3 "AndX offset fixup" area; these codes
// are the well-known [MS-CIFS] TRANS2 function numbers, not carried in any
// shared types table since only the transaction dispatcher needs them).
const (
	trans2FindFirst2       uint16 = 0x0001
	trans2FindNext2        uint16 = 0x0002
	trans2QueryFsInfo      uint16 = 0x0003
	trans2QueryPathInfo    uint16 = 0x0005
	trans2SetPathInfo      uint16 = 0x0006
	trans2QueryFileInfo    uint16 = 0x0007
	trans2SetFileInfo      uint16 = 0x0008
)

// NT_TRANSACT sub-functions (§4.5).
const (
	ntTransactCreate         uint16 = 0x0001
	ntTransactIOCtl          uint16 = 0x0002
	ntTransactSetSecurityDesc uint16 = 0x0003
	ntTransactNotifyChange   uint16 = 0x0004
	ntTransactQuerySecurityDesc uint16 = 0x0006
)

// transReq is the primary-frame shape common to TRANS/TRANS2/NT_TRANSACT:
// declared totals plus this fragment's own parameter/data slices.
type transReq struct {
	subFunction           uint16
	totalParamCount       uint32
	totalDataCount        uint32
	paramCount, paramOff  uint32
	dataCount, dataOff    uint32
	setup                 []uint16
	name                  string
}

// decodeTransPrimary parses the word-aligned primary-request shape shared
// by TRANSACTION/TRANSACTION2 (§4.5). NT_TRANSACT uses a different,
// 32-bit-only layout and is decoded separately by decodeNtTransactPrimary.
func decodeTransPrimary(req *Request, isTrans2 bool) (transReq, bool) {
	w := req.Frame.Words
	if len(w) < 14 {
		return transReq{}, false
	}
	tr := transReq{
		totalParamCount: uint32(w[0]),
		totalDataCount:  uint32(w[1]),
		paramCount:      uint32(w[3]),
		paramOff:        uint32(w[4]),
		dataCount:       uint32(w[6]),
		dataOff:         uint32(w[7]),
	}
	setupCount := int(w[9])
	if len(w) < 10+setupCount {
		return transReq{}, false
	}
	tr.setup = append([]uint16{}, w[10:10+setupCount]...)
	if isTrans2 {
		if len(tr.setup) > 0 {
			tr.subFunction = tr.setup[0]
		}
	}
	b := req.Frame.Bytes
	if !isTrans2 {
		// TRANSACTION carries a pipe/mailslot name before the params.
		name, n := wire.DecodeString(b, req.Unicode)
		tr.name = name
		b = b[n:]
	}
	return tr, true
}

// sliceAtWireOffset extracts count bytes starting at a ParameterOffset/
// DataOffset value. Those fields are declared absolute from the start of
// the 32-byte SMB1 header (§10 "AndX offset fixup"), while raw (a Frame's
// Raw field) begins header.Size bytes later, at the WordCount byte.
func sliceAtWireOffset(raw []byte, offset, count uint32) []byte {
	start := int(offset) - header.Size
	end := start + int(count)
	if start < 0 || end > len(raw) || start > end {
		return nil
	}
	return raw[start:end]
}

// transactKindLabel names a transact.Kind for metrics labeling.
func transactKindLabel(k transact.Kind) string {
	switch k {
	case transact.KindTrans:
		return "trans"
	case transact.KindTrans2:
		return "trans2"
	case transact.KindNTTransact:
		return "nt_transact"
	default:
		return "unknown"
	}
}

// recordTransactComplete reports a reassembled buffer's size before it's
// handed to its dispatcher, and drops the in-progress gauge BeginTransact
// raised for it.
func recordTransactComplete(e *Engine, buf *transact.Buffer) {
	e.Metrics.DecTransactBuffers()
	e.Metrics.ObserveTransactBytes(transactKindLabel(buf.Kind), len(buf.Param)+len(buf.Data))
}

// handleTransaction2 implements SMB_COM_TRANSACTION2's primary frame: a
// one-shot fan-out when every declared byte already arrived, or the start
// of multi-fragment reassembly otherwise (§3 "TransactBuffer" invariant i).
func handleTransaction2(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	tr, ok := decodeTransPrimary(req, true)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	param := sliceAtWireOffset(req.Frame.Raw, tr.paramOff, tr.paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, tr.dataOff, tr.dataCount)

	buf := transact.NewBuffer(transact.KindTrans2, tr.subFunction, tr.totalParamCount, tr.totalDataCount)
	if err := buf.PutParam(0, param); err != nil {
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(0, data); err != nil {
		return errResult(types.ErrInvalidParameter)
	}

	if buf.Ready(uint32(len(param)), uint32(len(data))) {
		return dispatchTrans2(ctx, e, req, buf)
	}
	if err := req.VC.BeginTransact(buf); err != nil {
		return errResult(types.ErrNoResources)
	}
	e.Metrics.IncTransactBuffers()
	return &Result{Deferred: true}, nil
}

// handleTransaction2Secondary folds one additional fragment into the
// VC's in-progress TransactBuffer, dispatching once every declared byte
// has arrived (§4.5, §8 property 10).
func handleTransaction2Secondary(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 10 {
		return errResult(types.ErrInvalidParameter)
	}
	buf := req.VC.CurrentTransact()
	if buf == nil {
		return errResult(types.ErrInvalidHandle)
	}
	paramCount := uint32(w[2])
	paramOff := uint32(w[3])
	paramDisp := uint32(w[4])
	dataCount := uint32(w[5])
	dataOff := uint32(w[6])
	dataDisp := uint32(w[7])

	param := sliceAtWireOffset(req.Frame.Raw, paramOff, paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, dataOff, dataCount)
	if err := buf.PutParam(paramDisp, param); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(dataDisp, data); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}

	if !buf.Ready(paramDisp+uint32(len(param)), dataDisp+uint32(len(data))) {
		return &Result{Deferred: true}, nil
	}
	recordTransactComplete(e, buf)
	req.VC.EndTransact()
	return dispatchTrans2(ctx, e, req, buf)
}

// dispatchTrans2 fans a fully reassembled TRANS2 buffer out to its
// sub-function handler (§4.5).
func dispatchTrans2(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	switch buf.SubFunction {
	case trans2FindFirst2:
		return trans2FindFirst(ctx, e, req, buf)
	case trans2FindNext2:
		return trans2FindNext(ctx, e, req, buf)
	case trans2QueryFsInfo:
		return trans2DoQueryFsInfo(ctx, e, req, buf)
	case trans2QueryPathInfo, trans2QueryFileInfo:
		return trans2DoQueryInfo(ctx, e, req, buf, buf.SubFunction == trans2QueryFileInfo)
	case trans2SetPathInfo, trans2SetFileInfo:
		return trans2DoSetInfo(ctx, e, req, buf, buf.SubFunction == trans2SetFileInfo)
	default:
		return errResult(types.ErrNotSupported)
	}
}

func buildTrans2Response(setup []uint16, param, data []byte) *Result {
	b := wire.NewBuilder()
	b.PutWord(0) // TotalParameterCount (filled by caller convention: single-fragment response)
	b.PutWord(0) // TotalDataCount
	b.PutWord(0) // Reserved
	b.PutWord(uint16(len(param)))
	b.PutWord(0) // ParameterOffset placeholder, fixed by caller transport framing
	b.PutWord(0) // ParameterDisplacement
	b.PutWord(uint16(len(data)))
	b.PutWord(0) // DataOffset placeholder
	b.PutWord(0) // DataDisplacement
	b.PutWord(uint16(len(setup)))
	for _, s := range setup {
		b.PutWord(s)
	}
	b.PutByte(0) // pad
	b.PutBytes(param)
	b.PutBytes(data)
	result, _ := okResult(b)
	return result
}

// trans2FindFirst implements TRANS2_FIND_FIRST2, sharing the search-slot
// table with the legacy SEARCH handler (§4.4).
func trans2FindFirst(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	p := buf.Param
	if len(p) < 12 {
		return errResult(types.ErrInvalidParameter)
	}
	attrs := types.FileAttributes(binary.LittleEndian.Uint16(p[0:2]))
	maxCount := binary.LittleEndian.Uint16(p[2:4])
	infoLevel := binary.LittleEndian.Uint16(p[8:10])
	pattern, _ := wire.DecodeString(p[12:], req.Unicode)

	sc, err := req.VC.SearchSlots.Allocate(req.Tree.TID, wire.NormalizeWildcard(pattern), attrs, maxCount)
	e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	if err != nil {
		return errResult(types.ErrNoResources)
	}
	sc.Cursor, err = req.Tree.FileSystem.StartSearch(ctx, sc.Pattern, attrs, 0)
	if err != nil {
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
		return errResult(driver.ToOutcome(err))
	}

	entries, more, err := req.Tree.FileSystem.NextEntries(ctx, sc.Cursor, int(maxCount))
	if err != nil {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
		return errResult(driver.ToOutcome(err))
	}
	if !more {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
	}

	data := packFindEntries(infoLevel, entries, req.Unicode)
	param := make([]byte, 10)
	binary.LittleEndian.PutUint16(param[0:2], sc.ID)
	binary.LittleEndian.PutUint16(param[2:4], uint16(len(entries)))
	if !more {
		binary.LittleEndian.PutUint16(param[4:6], 1) // EndOfSearch
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	}
	return buildTrans2Response(nil, param, data), nil
}

// trans2FindNext implements TRANS2_FIND_NEXT2, continuing an existing
// search slot by SID (§4.4).
func trans2FindNext(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	p := buf.Param
	if len(p) < 12 {
		return errResult(types.ErrInvalidParameter)
	}
	sid := binary.LittleEndian.Uint16(p[0:2])
	maxCount := binary.LittleEndian.Uint16(p[2:4])
	infoLevel := binary.LittleEndian.Uint16(p[4:6])

	sc, err := req.VC.SearchSlots.Lookup(sid, req.Tree.TID)
	if err != nil {
		return errResult(types.ErrInvalidHandle)
	}
	entries, more, err := req.Tree.FileSystem.NextEntries(ctx, sc.Cursor, int(maxCount))
	if err != nil {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
		return errResult(driver.ToOutcome(err))
	}
	if !more {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	}

	data := packFindEntries(infoLevel, entries, req.Unicode)
	param := make([]byte, 8)
	binary.LittleEndian.PutUint16(param[0:2], uint16(len(entries)))
	if !more {
		binary.LittleEndian.PutUint16(param[2:4], 1) // EndOfSearch
	}
	return buildTrans2Response(nil, param, data), nil
}

// packFindEntries packs each directory entry using the same per-level
// encoders QUERY_PATH_INFO uses, prefixed with a 4-byte NextEntryOffset
// and the entry's file-name length field layout FIND_FIRST2/NEXT2 share
// with QUERY_FILE_INFO (§4.4, §4.5).
func packFindEntries(level uint16, entries []driver.SearchEntry, unicode bool) []byte {
	var out []byte
	for _, en := range entries {
		body, err := infopack.PackQueryInfo(level, en.Info, unicode)
		if err != nil {
			body, _ = infopack.PackQueryInfo(infopack.LevelQueryFileBasic, en.Info, unicode)
		}
		name := wire.EncodeString(en.Name, unicode)
		entry := make([]byte, 4, 4+len(body)+4+len(name))
		entry = append(entry, body...)
		nameLenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(nameLenBuf, uint32(len(name)))
		entry = append(entry, nameLenBuf...)
		entry = append(entry, name...)
		for len(entry)%4 != 0 {
			entry = append(entry, 0)
		}
		binary.LittleEndian.PutUint32(entry[0:4], uint32(len(entry)))
		out = append(out, entry...)
	}
	return out
}

// trans2DoQueryFsInfo implements TRANS2_QUERY_FS_INFORMATION (§4.5).
func trans2DoQueryFsInfo(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	if len(buf.Param) < 2 {
		return errResult(types.ErrInvalidParameter)
	}
	level := binary.LittleEndian.Uint16(buf.Param[0:2])

	v := infopack.VolumeInfo{FSName: "NTFS"}
	if vp, ok := req.Tree.FileSystem.(driver.VolumeInfoProvider); ok {
		label, serial, _, err := vp.VolumeInfo(ctx)
		if err == nil {
			v.Label, v.SerialNumber = label, serial
		}
	}
	if ds, ok := req.Tree.FileSystem.(driver.DiskSizer); ok {
		total, free, bps, spu, err := ds.DiskFreeSpace(ctx)
		if err == nil {
			v.TotalUnits, v.FreeUnits, v.BytesPerSector, v.SectorsPerUnit = total, free, bps, spu
		}
	}
	v.StreamsEnabled = driver.NTFSStreamsEnabled(req.Tree.FileSystem, true)

	data, err := infopack.PackQueryFsInfo(level, v, req.Unicode)
	if err != nil {
		return errResult(types.ErrNotSupported)
	}
	return buildTrans2Response(nil, nil, data), nil
}

// trans2DoQueryInfo implements TRANS2_QUERY_PATH_INFORMATION and
// TRANS2_QUERY_FILE_INFORMATION (§4.5).
func trans2DoQueryInfo(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer, byFID bool) (*Result, error) {
	if len(buf.Param) < 2 {
		return errResult(types.ErrInvalidParameter)
	}
	level := binary.LittleEndian.Uint16(buf.Param[0:2])

	var info *driver.FileInfo
	var err error
	if byFID {
		if len(buf.Param) < 2 {
			return errResult(types.ErrInvalidParameter)
		}
		fid := binary.LittleEndian.Uint16(buf.Param[0:2])
		level = binary.LittleEndian.Uint16(buf.Param[2:4])
		of, ok := req.Tree.GetOpenFile(fid)
		if !ok {
			return errResult(types.ErrInvalidHandle)
		}
		info, err = req.Tree.FileSystem.GetFileInformation(ctx, of.Path)
	} else {
		path, _ := wire.DecodeString(buf.Param[6:], req.Unicode)
		info, err = req.Tree.FileSystem.GetFileInformation(ctx, path)
	}
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}

	data, err := infopack.PackQueryInfo(level, *info, req.Unicode)
	if err != nil {
		return errResult(types.ErrNotSupported)
	}
	return buildTrans2Response(nil, nil, data), nil
}

// trans2DoSetInfo implements TRANS2_SET_PATH_INFORMATION and
// TRANS2_SET_FILE_INFORMATION, routing Rename/Truncate/Disposition/Basic
// changes to the matching FileSystem call (§4.5).
func trans2DoSetInfo(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer, byFID bool) (*Result, error) {
	var level uint16
	var path string
	var of *tree.OpenFile
	if byFID {
		if len(buf.Param) < 4 {
			return errResult(types.ErrInvalidParameter)
		}
		fid := binary.LittleEndian.Uint16(buf.Param[0:2])
		level = binary.LittleEndian.Uint16(buf.Param[2:4])
		f, ok := req.Tree.GetOpenFile(fid)
		if !ok {
			return errResult(types.ErrInvalidHandle)
		}
		of = f
		path = f.Path
	} else {
		if len(buf.Param) < 6 {
			return errResult(types.ErrInvalidParameter)
		}
		level = binary.LittleEndian.Uint16(buf.Param[0:2])
		path, _ = wire.DecodeString(buf.Param[6:], req.Unicode)
	}

	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	set, err := infopack.UnpackSetInfo(level, buf.Data, req.Unicode)
	if err != nil {
		return errResult(types.ErrNotSupported)
	}

	switch {
	case set.Rename != "":
		if err := req.Tree.FileSystem.RenameFile(ctx, path, set.Rename); err != nil {
			return errResult(driver.ToOutcome(err))
		}
		e.Oplocks.Release(path)
		e.Notify.Publish(parentOf(path), types.NotifyActionRenamedOldName, baseOf(path), types.NotifyFileName)
	case set.Truncate != nil:
		if of != nil {
			if err := req.Tree.FileSystem.TruncateFile(ctx, of.File, *set.Truncate); err != nil {
				return errResult(driver.ToOutcome(err))
			}
		}
	case set.Disposition != nil:
		if of != nil {
			of.DeleteOnClose = *set.Disposition
		}
	case set.Basic != nil:
		if err := req.Tree.FileSystem.SetFileInformation(ctx, path, *set.Basic, 0); err != nil {
			return errResult(driver.ToOutcome(err))
		}
		e.Notify.Publish(parentOf(path), types.NotifyActionModified, baseOf(path), types.NotifyAttributes)
	}
	return buildTrans2Response(nil, nil, nil), nil
}

// handleTransaction implements SMB_COM_TRANSACTION's primary frame. Named
// pipe and mailslot transacts are the only consumers of this legacy
// command; without a pipe/mailslot driver in scope, every sub-transact
// reassembles correctly but reports NTNotImplemented rather than silently
// dropping the request.
func handleTransaction(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	tr, ok := decodeTransPrimary(req, false)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	param := sliceAtWireOffset(req.Frame.Raw, tr.paramOff, tr.paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, tr.dataOff, tr.dataCount)
	buf := transact.NewBuffer(transact.KindTrans, tr.subFunction, tr.totalParamCount, tr.totalDataCount)
	if err := buf.PutParam(0, param); err != nil {
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(0, data); err != nil {
		return errResult(types.ErrInvalidParameter)
	}
	if !buf.Ready(uint32(len(param)), uint32(len(data))) {
		if err := req.VC.BeginTransact(buf); err != nil {
			return errResult(types.ErrNoResources)
		}
		e.Metrics.IncTransactBuffers()
		return &Result{Deferred: true}, nil
	}
	logger.InfoCtx(ctx, "named pipe transact not implemented", logger.Path(tr.name))
	return errResult(types.ErrNotImplemented)
}

// handleTransactionSecondary folds a SMB_COM_TRANSACTION_SECONDARY
// fragment into the VC's buffer, matching handleTransaction2Secondary's
// reassembly shape (§4.5).
func handleTransactionSecondary(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 8 {
		return errResult(types.ErrInvalidParameter)
	}
	buf := req.VC.CurrentTransact()
	if buf == nil {
		return errResult(types.ErrInvalidHandle)
	}
	paramCount := uint32(w[0])
	paramOff := uint32(w[1])
	paramDisp := uint32(w[2])
	dataCount := uint32(w[3])
	dataOff := uint32(w[4])
	dataDisp := uint32(w[5])

	param := sliceAtWireOffset(req.Frame.Raw, paramOff, paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, dataOff, dataCount)
	if err := buf.PutParam(paramDisp, param); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(dataDisp, data); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}
	if !buf.Ready(paramDisp+uint32(len(param)), dataDisp+uint32(len(data))) {
		return &Result{Deferred: true}, nil
	}
	recordTransactComplete(e, buf)
	req.VC.EndTransact()
	return errResult(types.ErrNotImplemented)
}

// decodeNtTransactPrimary parses SMB_COM_NT_TRANSACT's 32-bit-everywhere
// primary frame (§4.5).
func decodeNtTransactPrimary(req *Request) (transReq, bool) {
	w := req.Frame.Words
	if len(w) < 19 {
		return transReq{}, false
	}
	pb := wire.WordsToBytes(w)
	if len(pb) < 38 {
		return transReq{}, false
	}
	setupCount := int(pb[3])
	tr := transReq{
		subFunction:     binary.LittleEndian.Uint16(pb[4:6]),
		totalParamCount: binary.LittleEndian.Uint32(pb[6:10]),
		totalDataCount:  binary.LittleEndian.Uint32(pb[10:14]),
		paramCount:      binary.LittleEndian.Uint32(pb[14:18]),
		paramOff:        binary.LittleEndian.Uint32(pb[18:22]),
		dataCount:       binary.LittleEndian.Uint32(pb[22:26]),
		dataOff:         binary.LittleEndian.Uint32(pb[26:30]),
	}
	setupStart := 38
	if len(pb) >= setupStart+setupCount*2 {
		for i := 0; i < setupCount; i++ {
			tr.setup = append(tr.setup, binary.LittleEndian.Uint16(pb[setupStart+i*2:setupStart+i*2+2]))
		}
	}
	return tr, true
}

// handleNtTransact implements SMB_COM_NT_TRANSACT's primary frame,
// dispatching IOCTL/NOTIFY_CHANGE/security-descriptor sub-functions once
// fully reassembled (§4.5, §4.7 item 5, §4.8).
func handleNtTransact(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	tr, ok := decodeNtTransactPrimary(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	param := sliceAtWireOffset(req.Frame.Raw, tr.paramOff, tr.paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, tr.dataOff, tr.dataCount)
	buf := transact.NewBuffer(transact.KindNTTransact, tr.subFunction, tr.totalParamCount, tr.totalDataCount)
	if err := buf.PutParam(0, param); err != nil {
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(0, data); err != nil {
		return errResult(types.ErrInvalidParameter)
	}
	if buf.Ready(uint32(len(param)), uint32(len(data))) {
		return dispatchNtTransact(ctx, e, req, buf)
	}
	if err := req.VC.BeginTransact(buf); err != nil {
		return errResult(types.ErrNoResources)
	}
	e.Metrics.IncTransactBuffers()
	return &Result{Deferred: true}, nil
}

// handleNtTransactSecondary folds one additional NT_TRANSACT fragment
// (§4.5).
func handleNtTransactSecondary(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 18 {
		return errResult(types.ErrInvalidParameter)
	}
	buf := req.VC.CurrentTransact()
	if buf == nil {
		return errResult(types.ErrInvalidHandle)
	}
	pb := wire.WordsToBytes(w)
	paramCount := binary.LittleEndian.Uint32(pb[12:16])
	paramOff := binary.LittleEndian.Uint32(pb[16:20])
	paramDisp := binary.LittleEndian.Uint32(pb[20:24])
	dataCount := binary.LittleEndian.Uint32(pb[24:28])
	dataOff := binary.LittleEndian.Uint32(pb[28:32])
	dataDisp := binary.LittleEndian.Uint32(pb[32:36])

	param := sliceAtWireOffset(req.Frame.Raw, paramOff, paramCount)
	data := sliceAtWireOffset(req.Frame.Raw, dataOff, dataCount)
	if err := buf.PutParam(paramDisp, param); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}
	if err := buf.PutData(dataDisp, data); err != nil {
		req.VC.EndTransact()
		return errResult(types.ErrInvalidParameter)
	}
	if !buf.Ready(paramDisp+uint32(len(param)), dataDisp+uint32(len(data))) {
		return &Result{Deferred: true}, nil
	}
	recordTransactComplete(e, buf)
	req.VC.EndTransact()
	return dispatchNtTransact(ctx, e, req, buf)
}

func dispatchNtTransact(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	switch buf.SubFunction {
	case ntTransactIOCtl:
		return ntTransactDoIOCtl(ctx, req, buf)
	case ntTransactNotifyChange:
		return ntTransactDoNotify(ctx, e, req, buf)
	case ntTransactQuerySecurityDesc:
		return ntTransactDoQuerySecurity(ctx, req)
	case ntTransactSetSecurityDesc:
		return ntTransactDoSetSecurity(ctx, req, buf)
	default:
		return errResult(types.ErrNotSupported)
	}
}

// ntTransactDoIOCtl implements NT_TRANSACT_IOCTL by delegating to the
// driver's optional IOCtlFileSystem capability (§4.5).
func ntTransactDoIOCtl(ctx context.Context, req *Request, buf *transact.Buffer) (*Result, error) {
	if len(buf.Param) < 8 {
		return errResult(types.ErrInvalidParameter)
	}
	code := binary.LittleEndian.Uint32(buf.Param[0:4])
	fid := binary.LittleEndian.Uint16(buf.Param[4:6])

	ioc, ok := req.Tree.FileSystem.(driver.IOCtlFileSystem)
	if !ok {
		return errResult(types.ErrNotSupported)
	}
	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	out, err := ioc.IOControl(ctx, of.File, code, buf.Data)
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return buildTrans2Response(nil, nil, out), nil
}

// ntTransactDoNotify implements NT_TRANSACT_NOTIFY: registers a watch and
// defers the response until a matching change arrives, the buffer
// overflows, or the request times out via NT_CANCEL (§4.7 item 5, §4.8,
// §8 property 8).
func ntTransactDoNotify(ctx context.Context, e *Engine, req *Request, buf *transact.Buffer) (*Result, error) {
	if len(buf.Param) < 8 {
		return errResult(types.ErrInvalidParameter)
	}
	filter := types.NotifyFilter(binary.LittleEndian.Uint32(buf.Param[0:4]))
	fid := binary.LittleEndian.Uint16(buf.Param[4:6])
	recursive := buf.Param[6] != 0

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	hdr := req.header()
	key := notify.Key{UID: hdr.UID, TID: hdr.TID, PID: uint32(hdr.PID), MID: hdr.MID}
	sessionID := req.Session.ID
	unicode := req.Unicode

	e.Notify.Register(key, of.Path, filter, recursive, func(changes []notify.Change, overflow bool) {
		var data []byte
		outcome := types.ErrNotifyEnumDir
		if !overflow {
			data = notify.EncodeChanges(changes, unicode)
			outcome = types.Success
		} else {
			e.Metrics.RecordNotifyOverflow()
		}
		resp := buildTrans2Response(nil, nil, data)
		respHdr := header.NewResponse(hdr, outcome)
		encoded := append(respHdr.Encode(), resp.Body.Frame().Encode()...)
		if err := e.Sender.SendAsync(sessionID, encoded); err != nil {
			logger.WarnCtx(ctx, "notify delivery failed", logger.Path(of.Path), logger.Err(err))
		}
	})
	return &Result{Deferred: true}, nil
}

func ntTransactDoQuerySecurity(ctx context.Context, req *Request) (*Result, error) {
	sd, ok := req.Tree.FileSystem.(driver.SecurityDescriptorFileSystem)
	if !ok {
		return buildTrans2Response(nil, nil, defaultSecurityDescriptor()), nil
	}
	data, err := sd.QuerySecurity(ctx, req.Tree.ShareName)
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return buildTrans2Response(nil, nil, data), nil
}

func ntTransactDoSetSecurity(ctx context.Context, req *Request, buf *transact.Buffer) (*Result, error) {
	sd, ok := req.Tree.FileSystem.(driver.SecurityDescriptorFileSystem)
	if !ok {
		return errResult(types.ErrNotSupported)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	if err := sd.SetSecurity(ctx, req.Tree.ShareName, buf.Data); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return buildTrans2Response(nil, nil, nil), nil
}

// defaultSecurityDescriptor is the canned "Everyone full control"
// descriptor returned when the driver has no native ACL support (§4.5).
func defaultSecurityDescriptor() []byte {
	return []byte{0x01, 0x00, 0x04, 0x80}
}
