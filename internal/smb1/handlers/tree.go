package handlers

import (
	"context"
	"strings"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// decodeTreeConnect parses the TREE_CONNECT_ANDX byte block: a password
// blob followed by two null/length-terminated strings, \\server\share and
// the service type (§4.3).
func decodeTreeConnect(req *Request) (path, service string, ok bool) {
	w := req.Frame.Words
	if len(w) < 3 {
		return "", "", false
	}
	pwLen := int(w[1])
	b := req.Frame.Bytes
	if len(b) < pwLen {
		return "", "", false
	}
	b = b[pwLen:]
	path, n := wire.DecodeString(b, req.Unicode)
	b = b[n:]
	service, _ = decodeOEMString(b)
	return path, service, true
}

// decodeOEMString reads a null-terminated OEM (non-Unicode) string; the
// service field is never sent as Unicode even on a Unicode session (§6).
func decodeOEMString(b []byte) (string, int) {
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	s := string(b[:end])
	if end < len(b) {
		end++
	}
	return s, end
}

// shareNameFromPath extracts the share component of a \\server\share UNC
// path (§4.3). The name is returned as sent, without case folding.
func shareNameFromPath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, `\`), `\`)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// handleTreeConnect resolves a share name through the Engine's
// ShareResolver and binds a new Tree under a freshly allocated TID
// (§4.3, invariant i: "permission is fixed at bind time").
func handleTreeConnect(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	path, service, ok := decodeTreeConnect(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}
	shareName := shareNameFromPath(path)
	if shareName == "" {
		return errResult(types.ErrPathNotFound)
	}

	fs, shareType, perm, err := e.Shares.Resolve(ctx, shareName, req.VC.Client)
	if err != nil {
		return errResult(types.ErrObjectNotFound)
	}

	t := tree.New(0, shareName, shareType, perm, fs)
	tid := req.VC.AddTree(t)
	e.Metrics.IncTreesActive()
	logger.InfoCtx(ctx, "tree connect", logger.Share(shareName), logger.Username(req.VC.Client.User))

	b := wire.NewBuilder()
	b.PutWord(0) // OptionalSupport
	serviceName := "A:"
	switch shareType {
	case tree.ShareTypeIPC:
		serviceName = "IPC"
	case tree.ShareTypePrinter:
		serviceName = "LPT1:"
	}
	_ = service
	b.PutBytes([]byte(serviceName + "\x00"))
	b.PutBytes(wire.EncodeString("", req.Unicode)) // NativeFileSystem, empty

	result, _ := okResult(b)
	id := tid
	result.OverrideTID = &id
	return result, nil
}

// handleTreeDisconnect unbinds a Tree: every open file is closed and any
// outstanding oplocks/notify watches on it are released (§4.3 invariant
// iii).
func handleTreeDisconnect(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	t, ok := req.VC.RemoveTree(req.header().TID)
	if ok && t != nil {
		e.Notify.RemoveByTree(t.TID)
		files := t.OpenFiles()
		for _, f := range files {
			if f.OplockKey != "" {
				e.Oplocks.Release(f.OplockKey)
			}
		}
		e.Metrics.AddFilesActive(-len(files))
		e.Metrics.DecTreesActive()
		t.CloseAll(ctx)
	}
	return okResult(wire.NewBuilder())
}
