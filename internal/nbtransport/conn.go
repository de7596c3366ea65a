package nbtransport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/handlers"
)

// MaxFrameSize bounds a single NBSS payload (§4.1's 64KB negotiated
// buffer size, rounded up generously for TRANS2/NT_TRANSACT parameter
// blocks that exceed it in a single fragment).
const MaxFrameSize = 1 << 20

// Registry hands out per-connection Senders keyed by session ID, the
// concrete SendAsync backing Engine.Sender needs for oplock breaks and
// NT_TRANSACT_NOTIFY completions raised outside the request/response
// cycle (engine.go's Sender interface doc, "the transport that owns the
// wire connection for a Session").
type Registry struct {
	mu    sync.Mutex
	conns map[uint64]net.Conn
}

// NewRegistry constructs an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]net.Conn)}
}

func (r *Registry) bind(sessionID uint64, conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[sessionID] = conn
}

func (r *Registry) unbind(sessionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, sessionID)
}

// SendAsync implements handlers.Sender by writing buf, framed, to the
// connection currently bound to sessionID. A session with no bound
// connection (already disconnected) is reported as an error so the
// caller can revoke whatever it was waiting on.
func (r *Registry) SendAsync(sessionID uint64, buf []byte) error {
	r.mu.Lock()
	conn, ok := r.conns[sessionID]
	r.mu.Unlock()
	if !ok {
		return errors.New("nbtransport: no connection bound to session")
	}
	return WriteFrame(conn, buf)
}

// Conn drives one TCP connection's request/response loop: read a frame,
// dispatch it, write the reply, repeat (teacher's SMBConnection.Serve
// shape, internal/adapter/smb/pkg "smb_connection.go", minus credits and
// compounding since SMB1's AndX chaining lives inside Engine.Dispatch).
type Conn struct {
	net     net.Conn
	engine  *handlers.Engine
	reg     *Registry
	writeMu sync.Mutex
}

// NewConn wraps a just-accepted connection for serving against engine.
// It only records reg; Serve registers the connection's Sender bindings.
func NewConn(netConn net.Conn, engine *handlers.Engine, reg *Registry) *Conn {
	return &Conn{net: netConn, engine: engine, reg: reg}
}

// Serve reads and dispatches requests until the client disconnects, the
// context is cancelled, or a frame/dispatch error ends the connection.
func (c *Conn) Serve(ctx context.Context) {
	clientAddr := c.net.RemoteAddr().String()
	sess := c.engine.NewSession(clientAddr)
	c.reg.bind(sess.ID, c.net)
	defer func() {
		c.reg.unbind(sess.ID)
		c.engine.CloseSession(ctx, sess.ID)
		c.net.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := ReadFrame(c.net, MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.DebugCtx(ctx, "connection read error", logger.ClientIP(clientAddr), logger.Err(err))
			}
			return
		}

		resp, err := c.engine.Dispatch(ctx, sess, req)
		if err != nil {
			logger.WarnCtx(ctx, "dispatch error, closing connection", logger.ClientIP(clientAddr), logger.Err(err))
			return
		}
		if resp == nil {
			// Request was parked behind an oplock break (§4.7 item 5);
			// its eventual reply goes out via Registry.SendAsync instead.
			continue
		}

		c.writeMu.Lock()
		err = WriteFrame(c.net, resp)
		c.writeMu.Unlock()
		if err != nil {
			logger.WarnCtx(ctx, "connection write error", logger.ClientIP(clientAddr), logger.Err(err))
			return
		}
	}
}
