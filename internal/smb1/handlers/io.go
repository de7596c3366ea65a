package handlers

import (
	"context"
	"encoding/binary"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// handleReadAndX implements the modern large-file-capable read path
// (§4.3). The high 32 bits of a 64-bit offset are only present when
// WordCount indicates the extended form.
func handleReadAndX(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 8 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	offset := uint64(w[1]) | uint64(w[2])<<16
	maxCount := uint32(w[3])
	if len(w) >= 10 {
		offset |= uint64(w[8])<<32 | uint64(w[9])<<48
	}

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}

	buf := make([]byte, maxCount)
	n, err := req.Tree.FileSystem.ReadFile(ctx, of.File, buf, int64(offset))
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	buf = buf[:n]

	pb := make([]byte, 24)
	binary.LittleEndian.PutUint16(pb[2:4], uint16(n))
	binary.LittleEndian.PutUint16(pb[6:8], uint16(n))

	b := wire.NewBuilder()
	for i := 0; i+1 < len(pb); i += 2 {
		b.PutWord(binary.LittleEndian.Uint16(pb[i : i+2]))
	}
	b.PutBytes(buf)
	return okResult(b)
}

// handleWriteAndX implements the modern large-file-capable write path
// (§4.3). Writes to a tree opened read-only fail with NTAccessDenied,
// never reaching the driver (§4.3 invariant ii).
func handleWriteAndX(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 10 {
		return errResult(types.ErrInvalidParameter)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	fid := w[0]
	offset := uint64(w[1]) | uint64(w[2])<<16
	dataLength := int(w[8])
	dataOffset := int(w[9])
	if len(w) >= 12 {
		offset |= uint64(w[10])<<32 | uint64(w[11])<<48
	}

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}

	data := sliceAtWireOffset(req.Frame.Raw, uint32(dataOffset), uint32(dataLength))
	if data == nil {
		data = req.Frame.Bytes
		if len(data) > dataLength {
			data = data[:dataLength]
		}
	}

	n, err := req.Tree.FileSystem.WriteFile(ctx, of.File, data, int64(offset))
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	of.WriteCount++

	b := wire.NewBuilder()
	b.PutWord(uint16(n))
	b.PutWord(0) // Remaining
	b.PutWord(0) // high word of count, large writes not split here
	b.PutWord(0)
	return okResult(b)
}

// handleRead implements the legacy SMB_COM_READ (32-bit offset, no AndX).
func handleRead(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 5 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	count := w[1]
	offset := uint32(w[2]) | uint32(w[3])<<16

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	buf := make([]byte, count)
	n, err := req.Tree.FileSystem.ReadFile(ctx, of.File, buf, int64(offset))
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	buf = buf[:n]

	b := wire.NewBuilder()
	b.PutWord(uint16(n))
	for i := 0; i < 4; i++ {
		b.PutWord(0) // reserved
	}
	b.PutByte(0x01) // buffer format
	b.PutUint16(uint16(n))
	b.PutBytes(buf)
	return okResult(b)
}

// handleWrite implements the legacy SMB_COM_WRITE. Writing zero bytes
// signals an implicit truncate-to-offset (§4.3, classic DOS semantics).
func handleWrite(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 4 {
		return errResult(types.ErrInvalidParameter)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	fid := w[0]
	count := w[1]
	offset := uint32(w[2]) | uint32(w[3])<<16

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}

	if count == 0 {
		if err := req.Tree.FileSystem.TruncateFile(ctx, of.File, int64(offset)); err != nil {
			return errResult(driver.ToOutcome(err))
		}
		b := wire.NewBuilder()
		b.PutWord(0)
		return okResult(b)
	}

	body := req.Frame.Bytes
	if len(body) > 3 {
		body = body[3:] // skip buffer format byte + 2-byte declared length
	}
	if len(body) > int(count) {
		body = body[:count]
	}
	n, err := req.Tree.FileSystem.WriteFile(ctx, of.File, body, int64(offset))
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	of.WriteCount++

	b := wire.NewBuilder()
	b.PutWord(uint16(n))
	return okResult(b)
}

// handleFlush flushes one FID (FID=0xFFFF flushes every open file on the
// tree, per legacy convention).
func handleFlush(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	if fid == 0xFFFF {
		for _, of := range req.Tree.OpenFiles() {
			_ = req.Tree.FileSystem.FlushFile(ctx, of.File)
		}
		return okResult(wire.NewBuilder())
	}
	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	if err := req.Tree.FileSystem.FlushFile(ctx, of.File); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return okResult(wire.NewBuilder())
}

// handleSeek repositions a FID's implicit file pointer, used by the rare
// client that still relies on legacy SMB_COM_SEEK rather than an explicit
// offset on every READ/WRITE.
func handleSeek(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 4 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	mode := w[1]
	offset := int32(uint32(w[2]) | uint32(w[3])<<16)

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	newOffset, err := req.Tree.FileSystem.SeekFile(ctx, of.File, int64(offset), int(mode))
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}

	b := wire.NewBuilder()
	b.PutDWordWords(uint32(newOffset))
	return okResult(b)
}
