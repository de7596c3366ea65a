// Package handlers implements the SMB1 command dispatcher: per-command
// decode/process/encode wrappers wired into a DispatchTable, and the
// Engine that owns every session, oplock, and notification registry a
// listening connection needs.
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/metrics"
	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/notify"
	"github.com/gosmbd/smb1d/internal/smb1/oplock"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// Sender delivers an unsolicited response frame (an oplock break request or
// a completed NT_TRANSACT_NOTIFY) to a client outside the normal
// request/response cycle. The transport that owns the wire connection for
// a Session implements this; the engine never touches a socket directly
// (§1, "transport is an external collaborator").
type Sender interface {
	SendAsync(sessionID uint64, buf []byte) error
}

// ShareResolver binds a requested share name to a filesystem and
// permission, the authorization/share-mapping step TREE_CONNECT_ANDX
// depends on (§4.3). The concrete mapping lives outside this engine.
type ShareResolver interface {
	Resolve(ctx context.Context, shareName string, client session.ClientInfo) (fs driver.FileSystem, shareType tree.ShareType, perm tree.Permission, err error)
}

// Engine aggregates every per-connection Session plus the server-wide
// oplock and change-notification registries, mirroring the teacher's
// Handler struct's role as the single object a listener drives (§3, §4).
type Engine struct {
	Shares ShareResolver
	Sender Sender

	ServerGUID [16]byte
	StartTime  time.Time

	cfg session.Config

	mu            sync.Mutex
	sessions      map[uint64]*session.Session
	nextSessionID uint64

	Oplocks       *oplock.Registry
	oplockScanner *oplock.Scanner
	Notify        *notify.Registry
	Metrics       *metrics.SMB1Metrics
}

// NewEngine constructs an Engine. cfg bounds each Session's VC table and
// search-slot table (§4.2); a zero cfg uses session.DefaultConfig.
func NewEngine(cfg session.Config, shares ShareResolver) *Engine {
	if cfg.MaxVirtualCircuits == 0 {
		cfg = session.DefaultConfig()
	}
	guid, err := uuid.New().MarshalBinary()
	var g [16]byte
	if err == nil {
		copy(g[:], guid)
	}
	e := &Engine{
		Shares:        shares,
		ServerGUID:    g,
		StartTime:     time.Now(),
		cfg:           cfg,
		sessions:      make(map[uint64]*session.Session),
		nextSessionID: 1,
		Oplocks:       oplock.NewRegistry(oplock.DefaultBreakTimeout),
		Notify:        notify.NewRegistry(),
		Metrics:       metrics.NewSMB1Metrics(),
	}
	e.oplockScanner = oplock.NewScanner(e.Oplocks, time.Second, e.onOplockTimeout)
	e.oplockScanner.Start()
	return e
}

// Close stops the engine's background scanners. It does not tear down any
// still-open Session; callers should CloseSession each one first.
func (e *Engine) Close() {
	e.oplockScanner.Stop()
}

// onOplockTimeout is the Scanner's revoke callback: a break nobody
// acknowledged in time is simply dropped (§4.7 item 6, "don't retry").
func (e *Engine) onOplockTimeout(path string) {
	logger.Warn("oplock break timed out, force-revoking", logger.Path(path))
	e.Metrics.RecordOplockBreak("timed_out")
}

// NewSession registers a new per-connection Session (§3 "Session").
func (e *Engine) NewSession(clientAddr string) *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSessionID
	e.nextSessionID++
	sess := session.New(id, clientAddr, e.cfg)
	e.sessions[id] = sess
	e.Metrics.SetSessionsActive(len(e.sessions))
	logger.Debug("session created", logger.SessionID(sessFmt(id)), logger.ClientIP(clientAddr))
	return sess
}

// CloseSession tears down every VC (and so every tree and open file) a
// Session owns, mirroring the teacher's CleanupSession orchestration
// (close files -> drop trees -> drop session).
func (e *Engine) CloseSession(ctx context.Context, id uint64) {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	sessionCount := len(e.sessions)
	e.mu.Unlock()
	if !ok {
		return
	}
	e.Metrics.SetSessionsActive(sessionCount)
	closed := 0
	for _, vc := range sess.Clear() {
		for _, t := range vc.Trees() {
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
			closed++
		}
	}
	logger.Debug("session closed", logger.SessionID(sessFmt(id)), logger.Entries(closed))
}

// deliverBreak encodes an oplock break as an unsolicited LOCKING_ANDX
// request and hands it to the Sender for the holder's session (§4.7
// item 5). Delivery failure (peer gone) force-revokes the break so the
// path doesn't wedge forever.
func (e *Engine) deliverBreak(ctx context.Context, notice oplock.BreakNotice) {
	sessionID, of := e.resolveHolder(notice.Holder)
	if of != nil {
		of.BreakID = notice.ID
	}

	b := wire.NewBuilder()
	b.PutWord(notice.Holder.FID)
	b.PutByte(0) // LockType placeholder; the break level is carried below
	b.PutByte(grantedLevelByte(notice.BreakTo))
	b.PutUint32(0) // Timeout
	b.PutUint16(0) // NumberOfUnlocks
	b.PutUint16(0) // NumberOfLocks

	// Unsolicited LOCKING_ANDX isn't correlated to any live request, so
	// there's no req.header() to base a response on; MID/PID 0xFFFF is
	// the conventional oplock-break sentinel (§4.7 item 5).
	hdr := &header.Header{
		Command: types.ComLockingAndX,
		Flags:   types.FlagCanonicalPathnames,
		TID:     notice.Holder.TID,
		UID:     notice.Holder.UID,
		PID:     0xFFFF,
		MID:     0xFFFF,
	}
	out := append(hdr.Encode(), b.Frame().Encode()...)
	if err := e.Sender.SendAsync(sessionID, out); err != nil {
		logger.WarnCtx(ctx, "oplock break delivery failed, revoking", logger.Path(notice.Path), logger.Err(err))
		e.Oplocks.Acknowledge(notice.Path, notice.ID, oplock.LevelNone)
		if of != nil {
			of.BreakID = ""
		}
		e.Metrics.RecordOplockBreak("delivery_failed")
		return
	}
	e.Metrics.RecordOplockBreak("sent")
}

// resolveHolder walks the engine's session table to find the Session ID
// and OpenFile a break Holder refers to. Oplock holders are rare and
// breaks infrequent enough that a linear scan is the right tradeoff
// against carrying a reverse index for every VC (§4.7).
func (e *Engine) resolveHolder(h oplock.Holder) (sessionID uint64, of *tree.OpenFile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, sess := range e.sessions {
		vc, err := sess.FindVC(h.UID)
		if err != nil {
			continue
		}
		t, err := vc.FindTree(h.TID)
		if err != nil {
			return id, nil
		}
		f, _ := t.GetOpenFile(h.FID)
		return id, f
	}
	return 0, nil
}

func sessFmt(id uint64) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hextable[id&0xF]
		id >>= 4
	}
	return string(buf)
}
