// Package oplock implements per-path opportunistic-lock arbitration:
// grant, conflict detection, break notification and deferred-request
// replay, and break-timeout force-revocation (§4.7).
package oplock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// Level is the granted oplock state for one path (§3 "OplockState").
type Level int

const (
	LevelNone Level = iota
	LevelII
	LevelExclusive
	LevelBatch
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelII:
		return "level2"
	case LevelExclusive:
		return "exclusive"
	case LevelBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// DefaultBreakTimeout is how long the holder has to acknowledge a break
// before it is force-revoked (§4.7 item 6). Windows servers default to
// roughly this value.
const DefaultBreakTimeout = 35 * time.Second

// Holder identifies the VC/FID pair an oplock is currently granted to, so
// a break notification can be addressed and a same-owner request can be
// recognized as non-conflicting.
type Holder struct {
	UID uint16
	TID uint16
	FID uint16
}

// entry is the per-path oplock record.
type entry struct {
	level   Level
	holder  Holder
	owner   string // opaque session/grant key, identifies the BATCH owner across reopen (§4.7 item 3)

	breaking   bool
	breakID    string
	breakTo    Level
	breakSince time.Time
	failed     bool // a prior break attempt never got acknowledged in time
}

// BreakNotice is what the registry asks the caller to deliver to the
// current holder (an async LockingAndX oplock-break request, §4.7 item 5).
type BreakNotice struct {
	ID       string
	Holder   Holder
	Path     string
	BreakTo  Level
	RaisedAt time.Time
}

// Registry is the server-wide per-path oplock table (§3, §4.7).
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// NewRegistry constructs a Registry. timeout<=0 selects DefaultBreakTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultBreakTimeout
	}
	return &Registry{entries: make(map[string]*entry), timeout: timeout}
}

// Reservation is the first phase of a two-phase grant: the level is
// provisionally reserved before the FID exists, so a break arriving
// between driver CreateFile/OpenFile and FID assignment cannot race past
// an uncommitted holder (§9 Open Question: "reserve-then-commit").
type Reservation struct {
	path  string
	level Level
}

// Reserve provisionally grants level on path, or downgrades the request to
// whatever level the conflict rules allow. It does not yet record a
// Holder; call Commit once the FID is known.
func (r *Registry) Reserve(path string, attributesOnly bool, requested types.OplockRequest) Reservation {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := fromRequest(requested)
	if attributesOnly {
		// §4.7: attributes-only opens never take or break an oplock.
		return Reservation{path: path, level: LevelNone}
	}

	cur, exists := r.entries[path]
	if !exists || cur.level == LevelNone {
		return Reservation{path: path, level: wanted}
	}

	// A second handle from the existing BATCH owner does not conflict
	// (§4.7 item 3): the caller threads the same owner key through Commit.
	if cur.level == LevelBatch {
		return Reservation{path: path, level: LevelNone}
	}

	if wanted == LevelII && (cur.level == LevelII) {
		return Reservation{path: path, level: LevelII}
	}

	return Reservation{path: path, level: LevelNone}
}

// Commit finalizes a Reservation against the now-known Holder and owner
// key. Call after the FID has been allocated.
func (r *Registry) Commit(res Reservation, holder Holder, ownerKey string) Level {
	if res.level == LevelNone {
		return LevelNone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[res.path] = &entry{level: res.level, holder: holder, owner: ownerKey}
	return res.level
}

// Abandon releases a Reservation that was never committed (the create
// failed after the oplock level was provisionally decided).
func (r *Registry) Abandon(res Reservation) {}

func fromRequest(req types.OplockRequest) Level {
	switch req {
	case types.OplockExclusive:
		return LevelExclusive
	case types.OplockBatch:
		return LevelBatch
	case types.OplockLevelII:
		return LevelII
	default:
		return LevelNone
	}
}

// Current reports the level currently granted on a path, LevelNone if
// none.
func (r *Registry) Current(path string) Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok {
		return LevelNone
	}
	return e.level
}

// Conflicts decides whether a new open (flagged by accessWouldBeDenied when
// its access conflicts with the holder's, and carrying an owner key
// identifying the calling VC/session) must break the existing
// oplock on path before proceeding (§4.7 items 1-4).
func (r *Registry) Conflicts(path string, accessWouldBeDenied bool, ownerKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok || e.level == LevelNone {
		return false
	}
	if e.owner == ownerKey {
		return false // same owner reopening, §4.7 item 3
	}
	if accessWouldBeDenied {
		// The new open will fail on a share-mode conflict anyway; breaking
		// first would just race a doomed request (§4.7 item 2).
		return false
	}
	return true
}

// BeginBreak starts breaking the oplock on path toward breakTo, returning
// the notice to deliver to the current holder. If a break is already in
// progress for this path, the existing notice is returned unchanged
// (idempotent retry).
func (r *Registry) BeginBreak(path string, breakTo Level) (BreakNotice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok || e.level == LevelNone {
		return BreakNotice{}, false
	}
	if e.failed {
		// A previous break attempt on this path never got acknowledged;
		// treat the oplock as already gone (§4.7 item 4-style fast path).
		delete(r.entries, path)
		return BreakNotice{}, false
	}
	if !e.breaking {
		e.breaking = true
		e.breakID = uuid.NewString()
		e.breakTo = breakTo
		e.breakSince = time.Now()
	}
	return BreakNotice{
		ID:       e.breakID,
		Holder:   e.holder,
		Path:     path,
		BreakTo:  e.breakTo,
		RaisedAt: e.breakSince,
	}, true
}

// Acknowledge applies the holder's break response (§4.7 item 6): the
// granted level downgrades (or is released entirely) to ackLevel.
func (r *Registry) Acknowledge(path string, breakID string, ackLevel Level) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok || !e.breaking || e.breakID != breakID {
		return false
	}
	if ackLevel == LevelNone {
		delete(r.entries, path)
	} else {
		e.level = ackLevel
		e.breaking = false
		e.breakID = ""
	}
	return true
}

// Release drops any oplock held on path (file closed or deleted).
func (r *Registry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, path)
}

// ScanTimeouts force-revokes any break that has been outstanding longer
// than the registry's timeout, returning the paths revoked so the caller
// can wake parked requests (§4.7 item 6: "force revoke on timeout, don't
// retry"). Grounded on the teacher's periodic break-timeout scanner.
func (r *Registry) ScanTimeouts(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var revoked []string
	for path, e := range r.entries {
		if e.breaking && now.Sub(e.breakSince) > r.timeout {
			delete(r.entries, path)
			e.failed = true
			revoked = append(revoked, path)
		}
	}
	return revoked
}

// Scanner periodically calls ScanTimeouts, grounded on the teacher's
// OpLockBreakScanner (metadata/lock/oplock_break.go).
type Scanner struct {
	reg      *Registry
	interval time.Duration
	onRevoke func(path string)

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// NewScanner builds a Scanner over reg. onRevoke is invoked (not holding
// any internal lock) for each path force-revoked by a scan tick.
func NewScanner(reg *Registry, interval time.Duration, onRevoke func(path string)) *Scanner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scanner{reg: reg, interval: interval, onRevoke: onRevoke}
}

// Start begins the background scan loop. Safe to call multiple times.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()
	go s.loop()
}

// Stop stops the background loop and waits for it to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	<-s.stopped
}

func (s *Scanner) loop() {
	defer close(s.stopped)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			for _, path := range s.reg.ScanTimeouts(now) {
				if s.onRevoke != nil {
					s.onRevoke(path)
				}
			}
		}
	}
}
