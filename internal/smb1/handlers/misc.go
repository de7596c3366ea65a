package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/notify"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

func echoFrame(seq uint16, data []byte) *wire.Builder {
	b := wire.NewBuilder()
	b.PutWord(seq)
	b.PutBytes(data)
	return b
}

// handleEcho implements SMB_COM_ECHO: the dispatcher never resolves a
// session or tree for it, so it just reflects the request's byte block
// back unchanged, EchoCount times with an incrementing SequenceNumber
// (§4's "connection-level" commands). The dispatcher sends back whatever
// this handler returns as the Result, so only the first reply goes out
// that way; any further ones are pushed directly via Sender.
func handleEcho(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	count := uint16(1)
	if len(w) >= 1 {
		count = w[0]
	}
	if count == 0 {
		count = 1
	}
	hdr := req.header()
	for seq := uint16(2); seq <= count; seq++ {
		resp := header.NewResponse(hdr, types.Success)
		out := append(resp.Encode(), echoFrame(seq, req.Frame.Bytes).Frame().Encode()...)
		_ = e.Sender.SendAsync(req.Session.ID, out)
	}
	return okResult(echoFrame(1, req.Frame.Bytes))
}

// handleProcessExit implements SMB_COM_PROCESS_EXIT: a process-level
// courtesy notice with no server-side bookkeeping to update, since
// OpenFile ownership in this design is per-Tree, not per-PID (§3).
func handleProcessExit(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	return okResult(wire.NewBuilder())
}

// handleNtCancel implements SMB_COM_NT_CANCEL: it carries no parameters
// of its own, just the UID/TID/PID/MID (reused from the request being
// canceled) identifying a prior deferred request to abandon (§4.7 item
// 5, §4.8). Only NT_TRANSACT_NOTIFY watches are addressable this way;
// an oplock-break wait is keyed by path, not by MID, so NT_CANCEL can't
// single one out and leaves it to the Scanner's break timeout.
// NT_CANCEL itself gets no reply (§4.8).
func handleNtCancel(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	hdr := req.header()
	key := notify.Key{UID: hdr.UID, TID: hdr.TID, PID: uint32(hdr.PID), MID: hdr.MID}
	e.Notify.Cancel(key)
	return &Result{Deferred: true}, nil
}

// handleQueryInformation implements the legacy SMB_COM_QUERY_INFORMATION:
// fixed-layout attributes/mtime/size, superseded by TRANS2_QUERY_PATH_INFO
// but still required for dialects that never negotiate TRANS2 (§4.4).
func handleQueryInformation(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	name, ok := decodePathString(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	info, err := req.Tree.FileSystem.GetFileInformation(ctx, name)
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	date, smbTime := wire.SMBDateTime(info.LastWriteTime)
	b := wire.NewBuilder()
	b.PutWord(uint16(info.Attributes))
	b.PutWord(smbTime)
	b.PutWord(date)
	b.PutWord(uint16(info.Size))
	b.PutWord(uint16(info.Size >> 16))
	for i := 0; i < 5; i++ {
		b.PutWord(0) // Reserved
	}
	return okResult(b)
}

// handleSetInformation implements the legacy SMB_COM_SET_INFORMATION:
// attributes and last-write time only, the fields this command's fixed
// layout carries (§4.4).
func handleSetInformation(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 4 {
		return errResult(types.ErrInvalidParameter)
	}
	attrs := types.FileAttributes(w[0])
	lastWrite := wire.FromSMBDateTime(w[2], w[1])

	b := req.Frame.Bytes
	if len(b) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	name, _ := wire.DecodeString(b[1:], req.Unicode)

	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	info, err := req.Tree.FileSystem.GetFileInformation(ctx, name)
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	info.Attributes = attrs
	if !lastWrite.IsZero() {
		info.LastWriteTime = lastWrite
	}
	if err := req.Tree.FileSystem.SetFileInformation(ctx, name, *info, 0); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	e.Notify.Publish(parentOf(name), types.NotifyActionModified, baseOf(name), types.NotifyAttributes)
	return okResult(wire.NewBuilder())
}

// handleIoctl implements the legacy SMB_COM_IOCTL. [MS-CIFS] marks it
// obsolete in favor of NT_TRANSACT_IOCTL; no driver in this codebase
// implements its Category/Function addressing, so every call reports
// NotSupported.
func handleIoctl(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	return errResult(types.ErrNotSupported)
}
