package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/localdriver"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// connectTestTree wires a fresh session/VC/tree triple against a
// temp-dir-backed localdriver.FS, returning the Engine, session, and the
// UID/TID pair every subsequent command in a test dispatches against.
func connectTestTree(t *testing.T, perm tree.Permission) (*Engine, *session.Session, uint16, uint16) {
	t.Helper()
	fs := localdriver.New(t.TempDir())
	e := NewEngine(session.DefaultConfig(), stubResolver{fs: fs, perm: perm})

	sess := e.NewSession("10.0.0.1:1")
	vc, err := sess.AddVC(session.ClientInfo{User: "alice"})
	require.NoError(t, err)

	body := append(wire.EncodeString(`\\SERVER\SHARE`, true), append([]byte("A:"), 0)...)
	req := buildRequest(types.ComTreeConnectAndX, 0, vc.UID, 1, 1, []uint16{0xFF, 0, 0, 0, 0}, body)
	out, err := e.Dispatch(context.Background(), sess, req)
	require.NoError(t, err)
	respHdr, _ := parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)
	return e, sess, vc.UID, respHdr.TID
}

func TestFIDLifecycleCreateWriteReadClose(t *testing.T) {
	e, sess, uid, tid := connectTestTree(t, tree.PermissionReadWrite)
	defer e.Close()

	nameBytes := wire.EncodeString(`\report.txt`, true)
	createReq := buildRequest(types.ComCreate, tid, uid, 1, 2, []uint16{uint16(types.AttrNormal)}, nameBytes)
	out, err := e.Dispatch(context.Background(), sess, createReq)
	require.NoError(t, err)
	respHdr, frame := parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)
	require.NotEmpty(t, frame.Words)
	fid := frame.Words[0]

	payload := []byte("hello")
	writeBody := append([]byte{0x01, byte(len(payload)), byte(len(payload) >> 8)}, payload...)
	writeReq := buildRequest(types.ComWrite, tid, uid, 1, 3, []uint16{fid, uint16(len(payload)), 0, 0}, writeBody)
	out, err = e.Dispatch(context.Background(), sess, writeReq)
	require.NoError(t, err)
	respHdr, frame = parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)
	require.Equal(t, uint16(len(payload)), frame.Words[0])

	readReq := buildRequest(types.ComRead, tid, uid, 1, 4, []uint16{fid, uint16(len(payload)), 0, 0, 0}, nil)
	out, err = e.Dispatch(context.Background(), sess, readReq)
	require.NoError(t, err)
	respHdr, frame = parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)
	require.Equal(t, uint16(len(payload)), frame.Words[0])
	require.Equal(t, payload, frame.Bytes[3:3+len(payload)])

	closeReq := buildRequest(types.ComClose, tid, uid, 1, 5, []uint16{fid}, nil)
	out, err = e.Dispatch(context.Background(), sess, closeReq)
	require.NoError(t, err)
	respHdr, _ = parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)

	// A second CLOSE on the same FID must fail: the handle is gone.
	out, err = e.Dispatch(context.Background(), sess, closeReq)
	require.NoError(t, err)
	respHdr, _ = parseResponse(t, out)
	require.Equal(t, uint32(types.ErrInvalidHandle.NT), respHdr.Status)
}

func TestWriteRejectedOnReadOnlyShare(t *testing.T) {
	e, sess, uid, tid := connectTestTree(t, tree.PermissionReadOnly)
	defer e.Close()

	nameBytes := wire.EncodeString(`\report.txt`, true)
	createReq := buildRequest(types.ComCreate, tid, uid, 1, 2, []uint16{uint16(types.AttrNormal)}, nameBytes)
	out, err := e.Dispatch(context.Background(), sess, createReq)
	require.NoError(t, err)
	_, frame := parseResponse(t, out)
	fid := frame.Words[0]

	payload := []byte("hello")
	writeBody := append([]byte{0x01, byte(len(payload)), byte(len(payload) >> 8)}, payload...)
	writeReq := buildRequest(types.ComWrite, tid, uid, 1, 3, []uint16{fid, uint16(len(payload)), 0, 0}, writeBody)
	out, err = e.Dispatch(context.Background(), sess, writeReq)
	require.NoError(t, err)
	respHdr, _ := parseResponse(t, out)
	require.Equal(t, uint32(types.ErrAccessDenied.NT), respHdr.Status)
}

func TestReadUnknownFIDFails(t *testing.T) {
	e, sess, uid, tid := connectTestTree(t, tree.PermissionReadWrite)
	defer e.Close()

	readReq := buildRequest(types.ComRead, tid, uid, 1, 4, []uint16{999, 5, 0, 0, 0}, nil)
	out, err := e.Dispatch(context.Background(), sess, readReq)
	require.NoError(t, err)
	respHdr, _ := parseResponse(t, out)
	require.Equal(t, uint32(types.ErrInvalidHandle.NT), respHdr.Status)
}
