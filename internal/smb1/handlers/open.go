package handlers

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/oplock"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// NT_CREATE_ANDX flags bits (§4.7).
const (
	ntCreateFlagReqOplock      uint32 = 0x00000002
	ntCreateFlagReqBatchOplock uint32 = 0x00000004
	ntCreateFlagTargetDir      uint32 = 0x00000008
)

// ntCreateRequest is the decoded, word-boundary-agnostic NT_CREATE_ANDX
// body (§4.3). The fixed parameter block's fields don't fall on uint16
// boundaries, so it's parsed as a flat byte buffer (cf. decodeSessionSetup).
type ntCreateRequest struct {
	Flags             uint32
	DesiredAccess     uint32
	AllocationSize    int64
	ExtFileAttributes types.FileAttributes
	ShareAccess       uint32
	CreateDisposition uint32
	CreateOptions     uint32
	NameLength        int
}

func decodeNtCreateAndX(req *Request) (ntCreateRequest, string, bool) {
	pb := wire.WordsToBytes(req.Frame.Words)
	if len(pb) < 44 {
		return ntCreateRequest{}, "", false
	}
	nr := ntCreateRequest{
		NameLength:        int(binary.LittleEndian.Uint16(pb[1:3])),
		Flags:             binary.LittleEndian.Uint32(pb[3:7]),
		DesiredAccess:     binary.LittleEndian.Uint32(pb[11:15]),
		AllocationSize:    int64(binary.LittleEndian.Uint64(pb[15:23])),
		ExtFileAttributes: types.FileAttributes(binary.LittleEndian.Uint32(pb[23:27])),
		ShareAccess:       binary.LittleEndian.Uint32(pb[27:31]),
		CreateDisposition: binary.LittleEndian.Uint32(pb[31:35]),
		CreateOptions:     binary.LittleEndian.Uint32(pb[35:39]),
	}
	name, _ := wire.DecodeString(req.Frame.Bytes, req.Unicode)
	return nr, name, true
}

// oplockRequested translates NT_CREATE_ANDX's Flags bits into the
// OplockRequest the registry understands (§4.7).
func oplockRequested(flags uint32) types.OplockRequest {
	switch {
	case flags&ntCreateFlagReqBatchOplock != 0:
		return types.OplockBatch
	case flags&ntCreateFlagReqOplock != 0:
		return types.OplockExclusive
	default:
		return types.OplockNone
	}
}

// grantedLevelByte packs the granted oplock level into NT_CREATE_ANDX's
// response OplockLevel byte (§4.7).
func grantedLevelByte(lvl oplock.Level) byte {
	switch lvl {
	case oplock.LevelExclusive:
		return 1
	case oplock.LevelBatch:
		return 2
	case oplock.LevelII:
		return 3
	default:
		return 0
	}
}

// handleNtCreateAndX opens or creates a file, running the two-phase
// oplock grant (reserve against the path before the driver call, commit
// once the FID is known) so a break arriving mid-create can't race past
// an uncommitted holder (§4.7, §9 "reserve-then-commit").
func handleNtCreateAndX(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	nr, name, ok := decodeNtCreateAndX(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	isDir := nr.Flags&ntCreateFlagTargetDir != 0

	attributesOnly := nr.DesiredAccess&0x00000003 == 0 // no FILE_READ_DATA/FILE_WRITE_DATA requested
	wanted := oplockRequested(nr.Flags)
	res := e.Oplocks.Reserve(name, attributesOnly, wanted)

	accessWouldConflict := false
	if e.Oplocks.Conflicts(name, accessWouldConflict, ownerKey(req)) {
		notice, ok := e.Oplocks.BeginBreak(name, oplock.LevelNone)
		if ok {
			e.deliverBreak(ctx, notice)
			return &Result{Deferred: true}, nil
		}
	}

	params := driver.CreateParams{
		Path:              name,
		DesiredAccess:     nr.DesiredAccess,
		ShareAccess:       nr.ShareAccess,
		Directory:         isDir,
		AttributesOnly:    attributesOnly,
		CreateDisposition: nr.CreateDisposition,
	}

	var f driver.File
	var info driver.FileInfo
	var err error
	if isDir {
		err = req.Tree.FileSystem.CreateDirectory(ctx, name)
		if err == nil {
			f, info, err = req.Tree.FileSystem.OpenFile(ctx, params)
		}
	} else if req.Tree.FileSystem.FileExists(ctx, name) {
		f, info, err = req.Tree.FileSystem.OpenFile(ctx, params)
	} else {
		f, info, err = req.Tree.FileSystem.CreateFile(ctx, params)
	}
	if err != nil {
		e.Oplocks.Abandon(res)
		return errResult(driver.ToOutcome(err))
	}

	of := &tree.OpenFile{
		Path:          name,
		GrantedAccess: nr.DesiredAccess,
		ShareAccess:   nr.ShareAccess,
		IsDirectory:   isDir,
	}
	fid, err := req.Tree.AddOpenFile(of)
	if err != nil {
		e.Oplocks.Abandon(res)
		_ = req.Tree.FileSystem.CloseFile(ctx, f)
		return errResult(types.ErrTooManyOpenFiles)
	}
	of.File = f
	e.Metrics.AddFilesActive(1)

	granted := e.Oplocks.Commit(res, oplock.Holder{UID: req.VC.UID, TID: req.Tree.TID, FID: fid}, ownerKey(req))
	if granted != oplock.LevelNone {
		of.OplockKey = name
	}
	e.Metrics.RecordOplockGrant(granted.String())

	logger.InfoCtx(ctx, "nt create", logger.Path(name), logger.HandleHex(fmt.Sprintf("%04x", fid)))

	// The response's fixed parameter block doesn't fall on word boundaries
	// either, so it's built as a flat byte buffer and then repacked into
	// words (cf. handleNegotiate).
	pb := make([]byte, 66)
	pb[0] = grantedLevelByte(granted)
	binary.LittleEndian.PutUint16(pb[2:4], fid)
	binary.LittleEndian.PutUint64(pb[8:16], wire.NTTime(info.CreationTime))
	binary.LittleEndian.PutUint64(pb[16:24], wire.NTTime(info.LastAccessTime))
	binary.LittleEndian.PutUint64(pb[24:32], wire.NTTime(info.LastWriteTime))
	binary.LittleEndian.PutUint64(pb[32:40], wire.NTTime(info.ChangeTime))
	binary.LittleEndian.PutUint32(pb[40:44], uint32(info.Attributes))
	binary.LittleEndian.PutUint64(pb[44:52], uint64(info.AllocationSize))
	binary.LittleEndian.PutUint64(pb[52:60], uint64(info.Size))
	pb[64] = boolByte(isDir)

	b := wire.NewBuilder()
	for i := 0; i+1 < len(pb); i += 2 {
		b.PutWord(binary.LittleEndian.Uint16(pb[i : i+2]))
	}
	return okResult(b)
}

// handleOpenAndX implements the legacy (pre-NT) OPEN_ANDX, a strict subset
// of NT_CREATE_ANDX without oplock batch/target-directory semantics.
func handleOpenAndX(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 2 {
		return errResult(types.ErrInvalidParameter)
	}
	name, _ := wire.DecodeString(req.Frame.Bytes, req.Unicode)

	res := e.Oplocks.Reserve(name, false, types.OplockNone)
	f, info, err := req.Tree.FileSystem.OpenFile(ctx, driver.CreateParams{Path: name})
	if err != nil {
		e.Oplocks.Abandon(res)
		return errResult(driver.ToOutcome(err))
	}
	of := &tree.OpenFile{Path: name, IsDirectory: info.IsDirectory}
	fid, err := req.Tree.AddOpenFile(of)
	if err != nil {
		_ = req.Tree.FileSystem.CloseFile(ctx, f)
		return errResult(types.ErrTooManyOpenFiles)
	}
	of.File = f
	e.Metrics.AddFilesActive(1)
	granted := e.Oplocks.Commit(res, oplock.Holder{UID: req.VC.UID, TID: req.Tree.TID, FID: fid}, ownerKey(req))
	e.Metrics.RecordOplockGrant(granted.String())

	b := wire.NewBuilder()
	b.PutWord(fid)
	b.PutWord(uint16(info.Attributes))
	date, smbTime := wire.SMBDateTime(info.LastWriteTime)
	b.PutWord(smbTime)
	b.PutWord(date)
	b.PutDWordWords(uint32(info.Size))
	b.PutWord(0) // GrantedAccess
	b.PutWord(0) // FileType
	b.PutWord(0) // IPCState
	b.PutWord(0) // Action
	b.PutDWordWords(0) // ServerFID
	b.PutWord(0)       // Reserved
	return okResult(b)
}

// handleCreate implements the legacy SMB_COM_CREATE/CREATE_NEW, which
// always creates (truncating any existing file) and never requests an
// oplock.
func handleCreate(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	attrs := types.FileAttributes(w[0])
	name, _ := wire.DecodeString(req.Frame.Bytes, req.Unicode)

	f, _, err := req.Tree.FileSystem.CreateFile(ctx, driver.CreateParams{
		Path:      name,
		Directory: attrs&types.AttrDirectory != 0,
	})
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	of := &tree.OpenFile{Path: name, IsDirectory: attrs&types.AttrDirectory != 0}
	fid, err := req.Tree.AddOpenFile(of)
	if err != nil {
		_ = req.Tree.FileSystem.CloseFile(ctx, f)
		return errResult(types.ErrTooManyOpenFiles)
	}
	of.File = f
	e.Metrics.AddFilesActive(1)

	b := wire.NewBuilder()
	b.PutWord(fid)
	return okResult(b)
}

// handleClose releases a FID, its locks, and (if it was the holder) its
// oplock, idempotently (§8 property 7, §4.3 invariant).
func handleClose(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	of, ok := req.Tree.RemoveOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	e.Metrics.AddFilesActive(-1)
	if of.OplockKey != "" {
		e.Oplocks.Release(of.OplockKey)
	}
	if err := req.Tree.FileSystem.CloseFile(ctx, of.File); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return okResult(wire.NewBuilder())
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ownerKey identifies the VC for same-owner oplock reopen detection
// (§4.7 item 3).
func ownerKey(req *Request) string {
	return sessFmt(req.Session.ID) + ":" + sessFmt(uint64(req.VC.UID))
}
