package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/localdriver"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// stubResolver binds every share name to the same filesystem with a fixed
// type and permission, standing in for a real share-config lookup.
type stubResolver struct {
	fs   driver.FileSystem
	perm tree.Permission
}

func (r stubResolver) Resolve(ctx context.Context, shareName string, client session.ClientInfo) (driver.FileSystem, tree.ShareType, tree.Permission, error) {
	return r.fs, tree.ShareTypeDisk, r.perm, nil
}

// stubResolverErr rejects every share, exercising TREE_CONNECT_ANDX's
// not-found path.
type stubResolverErr struct{}

func (stubResolverErr) Resolve(ctx context.Context, shareName string, client session.ClientInfo) (driver.FileSystem, tree.ShareType, tree.Permission, error) {
	return nil, tree.ShareTypeDisk, tree.PermissionNoAccess, driver.New(driver.VariantNotFound, nil)
}

func newTestEngine() *Engine {
	e := NewEngine(session.DefaultConfig(), nil)
	return e
}

func buildRequest(cmd types.Command, tid, uid uint16, pid uint32, mid uint16, words []uint16, body []byte) []byte {
	hdr := &header.Header{
		Command: cmd,
		Flags:   types.FlagCanonicalPathnames,
		Flags2:  types.Flags2Unicode | types.Flags2NTStatus,
		TID:     tid,
		PID:     pid,
		UID:     uid,
		MID:     mid,
	}
	frame := &wire.Frame{Words: words, Bytes: body}
	return append(hdr.Encode(), frame.Encode()...)
}

func parseResponse(t *testing.T, out []byte) (*header.Header, *wire.Frame) {
	t.Helper()
	respHdr, err := header.Parse(out)
	require.NoError(t, err)
	frame, err := wire.ParseBody(respHdr, out[header.Size:])
	require.NoError(t, err)
	return respHdr, frame
}

func TestDispatchNegotiateSelectsSupportedDialect(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	dialectBody := append([]byte{0x02}, append([]byte("NT LM 0.12"), 0)...)
	req := buildRequest(types.ComNegotiate, 0, 0, 1, 1, nil, dialectBody)

	out, err := e.Dispatch(context.Background(), e.NewSession("10.0.0.1:1"), req)
	require.NoError(t, err)
	require.NotNil(t, out)

	respHdr, frame := parseResponse(t, out)
	require.True(t, respHdr.IsResponse())
	require.Equal(t, uint16(0), frame.Words[0], "the only offered dialect must be selected at index 0")
}

func TestDispatchNegotiateRefusesUnsupportedDialect(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	dialectBody := append([]byte{0x02}, append([]byte("LANMAN1.0"), 0)...)
	req := buildRequest(types.ComNegotiate, 0, 0, 1, 1, nil, dialectBody)

	out, err := e.Dispatch(context.Background(), e.NewSession("10.0.0.1:1"), req)
	require.NoError(t, err)
	_, frame := parseResponse(t, out)
	require.Equal(t, uint16(0xFFFF), frame.Words[0])
}

func TestDispatchEchoReflectsBody(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	req := buildRequest(types.ComEcho, 0, 0, 1, 1, []uint16{1}, []byte("ping"))
	out, err := e.Dispatch(context.Background(), e.NewSession("10.0.0.1:1"), req)
	require.NoError(t, err)

	_, frame := parseResponse(t, out)
	require.Equal(t, uint16(1), frame.Words[0], "sequence number of the single reply must be 1")
	require.Equal(t, []byte("ping"), frame.Bytes)
}

func TestDispatchUnrecognizedCommand(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	req := buildRequest(types.Command(0xFE), 0, 0, 1, 1, nil, nil)
	out, err := e.Dispatch(context.Background(), e.NewSession("10.0.0.1:1"), req)
	require.NoError(t, err)

	respHdr, _ := parseResponse(t, out)
	require.Equal(t, uint32(types.ErrUnrecognizedCmd.NT), respHdr.Status)
}

func TestDispatchRejectsUnknownUID(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	req := buildRequest(types.ComTreeConnectAndX, 0, 999, 1, 1, []uint16{0, 0}, nil)
	sess := e.NewSession("10.0.0.1:1")
	out, err := e.Dispatch(context.Background(), sess, req)
	require.NoError(t, err)

	// Rejected before any handler runs, so the AndX chain is empty: only
	// the 32-byte header comes back.
	respHdr, err := header.Parse(out)
	require.NoError(t, err)
	require.Equal(t, uint32(types.ErrInvalidUID.NT), respHdr.Status)
}

func TestDispatchTreeConnectSuccess(t *testing.T) {
	fs := localdriver.New(t.TempDir())
	e := NewEngine(session.DefaultConfig(), stubResolver{fs: fs, perm: tree.PermissionReadWrite})
	defer e.Close()

	sess := e.NewSession("10.0.0.1:1")
	vc, err := sess.AddVC(session.ClientInfo{User: "alice"})
	require.NoError(t, err)

	body := append(wire.EncodeString(`\\SERVER\SHARE`, true), append([]byte("A:"), 0)...)
	req := buildRequest(types.ComTreeConnectAndX, 0, vc.UID, 1, 1, []uint16{0xFF, 0, 0, 0, 0}, body)

	out, err := e.Dispatch(context.Background(), sess, req)
	require.NoError(t, err)

	respHdr, frame := parseResponse(t, out)
	require.Equal(t, uint32(types.Success.NT), respHdr.Status)
	require.NotEqual(t, uint16(0), respHdr.TID)
	require.Contains(t, string(frame.Bytes), "A:")

	connectedTree, terr := vc.FindTree(respHdr.TID)
	require.NoError(t, terr)
	require.True(t, connectedTree.CanWrite())
}

func TestDispatchTreeConnectUnknownShare(t *testing.T) {
	e := NewEngine(session.DefaultConfig(), stubResolverErr{})
	defer e.Close()

	sess := e.NewSession("10.0.0.1:1")
	vc, err := sess.AddVC(session.ClientInfo{User: "alice"})
	require.NoError(t, err)

	body := append(wire.EncodeString(`\\SERVER\NOPE`, true), append([]byte("A:"), 0)...)
	req := buildRequest(types.ComTreeConnectAndX, 0, vc.UID, 1, 1, []uint16{0xFF, 0, 0, 0, 0}, body)

	out, err := e.Dispatch(context.Background(), sess, req)
	require.NoError(t, err)
	respHdr, _ := parseResponse(t, out)
	require.Equal(t, uint32(types.ErrObjectNotFound.NT), respHdr.Status)
}

func TestEngineCloseSessionClearsVCs(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	sess := e.NewSession("10.0.0.1:1")
	_, err := sess.AddVC(session.ClientInfo{User: "alice"})
	require.NoError(t, err)

	e.CloseSession(context.Background(), sess.ID)

	// Dispatching against the closed session's now-nonexistent UID fails,
	// proving CloseSession actually tore down the VC table.
	req := buildRequest(types.ComTreeConnectAndX, 0, 1, 1, 1, []uint16{0, 0}, nil)
	out, err := e.Dispatch(context.Background(), sess, req)
	require.NoError(t, err)
	respHdr, err := header.Parse(out)
	require.NoError(t, err)
	require.Equal(t, uint32(types.ErrInvalidUID.NT), respHdr.Status)
}
