package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// decodeSessionSetup parses the non-extended-security SESSION_SETUP_ANDX
// body (AndX prefix already stripped): 11 parameter words followed by
// the two password blobs and two strings (account, domain).
func decodeSessionSetup(req *Request) (client session.ClientInfo, capabilities uint32, maxBuffer uint32, ok bool) {
	w := req.Frame.Words
	if len(w) < 11 {
		return client, 0, 0, false
	}
	maxBuffer = uint32(w[0])
	caseInsensitiveLen := int(w[3])
	caseSensitiveLen := int(w[4])
	capabilities = uint32(w[9]) | uint32(w[10])<<16

	b := req.Frame.Bytes
	if len(b) < caseInsensitiveLen+caseSensitiveLen {
		return client, 0, 0, false
	}
	token := append([]byte{}, b[:caseInsensitiveLen+caseSensitiveLen]...)
	b = b[caseInsensitiveLen+caseSensitiveLen:]

	account, n := wire.DecodeString(b, req.Unicode)
	b = b[n:]
	domain, _ := wire.DecodeString(b, req.Unicode)

	client = session.ClientInfo{User: account, Domain: domain, AuthToken: token, IsGuest: account == ""}
	return client, capabilities, maxBuffer, true
}

// handleSessionSetup allocates a VirtualCircuit for the authenticated
// identity. The authentication decision itself (NTLM/Kerberos validation
// of AuthToken) is an external collaborator (§1, §6); this engine only
// records the resulting identity.
func handleSessionSetup(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	client, capabilities, maxBuffer, ok := decodeSessionSetup(req)
	if !ok {
		return errResult(types.ErrInvalidParameter)
	}

	vc, err := req.Session.AddVC(client)
	if err != nil {
		return errResult(types.ErrNoResources)
	}
	req.Session.Capabilities = capabilities
	if maxBuffer > 0 {
		req.Session.MaxBufferSize = maxBuffer
	}
	logger.InfoCtx(ctx, "session setup", logger.Username(client.User), logger.Domain(client.Domain))

	b := wire.NewBuilder()
	action := uint16(0)
	if client.IsGuest {
		action = 1
	}
	b.PutWord(action)
	b.PutBytes(wire.EncodeString("smb1d", req.Unicode))
	b.PutBytes(wire.EncodeString(supportedDialect, req.Unicode))

	result, _ := okResult(b)
	uid := vc.UID
	result.OverrideUID = &uid
	return result, nil
}

// handleLogoff tears down the caller's VirtualCircuit: every tree it
// owns is closed (releasing oplocks and notify watches), mirroring the
// teacher's CleanupSession ordering (§3 invariant ii-iii).
func handleLogoff(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	vc, sessionShouldClose := req.Session.RemoveVC(req.header().UID)
	if vc != nil {
		for _, t := range vc.Trees() {
			e.Notify.RemoveByTree(t.TID)
			for _, f := range t.OpenFiles() {
				if f.OplockKey != "" {
					e.Oplocks.Release(f.OplockKey)
				}
			}
			t.CloseAll(ctx)
		}
	}
	if sessionShouldClose {
		logger.InfoCtx(ctx, "last VC removed, session closing", logger.SessionID(sessFmt(req.Session.ID)))
	}
	return okResult(wire.NewBuilder())
}
