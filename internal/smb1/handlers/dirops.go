package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

func decodePathString(req *Request) (string, bool) {
	b := req.Frame.Bytes
	if len(b) < 1 {
		return "", false
	}
	b = b[1:] // buffer format byte (0x04)
	name, _ := wire.DecodeString(b, req.Unicode)
	return name, true
}

// handleCreateDirectory implements SMB_COM_CREATE_DIRECTORY (§4.3).
func handleCreateDirectory(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	name, ok := decodePathString(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	if err := req.Tree.FileSystem.CreateDirectory(ctx, name); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	e.Notify.Publish(parentOf(name), types.NotifyActionAdded, baseOf(name), types.NotifyDirName)
	return okResult(wire.NewBuilder())
}

// handleDeleteDirectory implements SMB_COM_DELETE_DIRECTORY (§4.3).
func handleDeleteDirectory(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	name, ok := decodePathString(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	if err := req.Tree.FileSystem.DeleteDirectory(ctx, name); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	e.Oplocks.Release(name)
	e.Notify.Publish(parentOf(name), types.NotifyActionRemoved, baseOf(name), types.NotifyDirName)
	return okResult(wire.NewBuilder())
}

// handleCheckDirectory implements SMB_COM_CHECK_DIRECTORY: succeeds only
// if the path exists and is a directory.
func handleCheckDirectory(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	name, ok := decodePathString(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	info, err := req.Tree.FileSystem.GetFileInformation(ctx, name)
	if err != nil {
		return errResult(driver.ToOutcome(err))
	}
	if !info.IsDirectory {
		return errResult(types.ErrPathNotFound)
	}
	return okResult(wire.NewBuilder())
}

// handleDelete implements SMB_COM_DELETE, releasing any oplock held on
// the removed path (§4.3, §4.7) and publishing the resulting change
// notification (§4.8).
func handleDelete(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	name, ok := decodePathString(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	if err := req.Tree.FileSystem.DeleteFile(ctx, name); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	e.Oplocks.Release(name)
	e.Notify.Publish(parentOf(name), types.NotifyActionRemoved, baseOf(name), types.NotifyFileName)
	return okResult(wire.NewBuilder())
}

// handleRename implements SMB_COM_RENAME. Any oplock held on the old path
// is released, not carried over to the new one. A rename within one
// directory publishes a single OLD_NAME change for the old name; no
// NEW_NAME change follows it. A rename across directories publishes
// REMOVED in the old parent and ADDED in the new one.
func handleRename(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	b := req.Frame.Bytes
	if len(b) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	b = b[1:]
	from, n := wire.DecodeString(b, req.Unicode)
	b = b[n:]
	if len(b) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	b = b[1:]
	to, _ := wire.DecodeString(b, req.Unicode)

	if !req.Tree.CanWrite() {
		return errResult(types.ErrAccessDenied)
	}
	if err := req.Tree.FileSystem.RenameFile(ctx, from, to); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	e.Oplocks.Release(from)
	logger.InfoCtx(ctx, "rename", logger.OldPath(from), logger.Path(to))
	if parentOf(from) == parentOf(to) {
		e.Notify.Publish(parentOf(from), types.NotifyActionRenamedOldName, baseOf(from), types.NotifyFileName)
	} else {
		e.Notify.Publish(parentOf(from), types.NotifyActionRemoved, baseOf(from), types.NotifyFileName)
		e.Notify.Publish(parentOf(to), types.NotifyActionAdded, baseOf(to), types.NotifyFileName)
	}
	return okResult(wire.NewBuilder())
}

func parentOf(path string) string {
	i := lastSlash(path)
	if i < 0 {
		return ""
	}
	return path[:i]
}

func baseOf(path string) string {
	i := lastSlash(path)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '\\' || path[i] == '/' {
			return i
		}
	}
	return -1
}
