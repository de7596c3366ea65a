// Package session implements the per-connection Session and its
// VirtualCircuit (UID) table (§3 "Session", "VirtualCircuit"; §4.2).
package session

import (
	"errors"
	"sync"
	"time"
)

// Config bounds the per-session VC table and per-VC search-slot table
// (§3, §4.2: "configurable, default 16, floor 4, ceiling 2000").
type Config struct {
	MaxVirtualCircuits int
	SearchSlotCap      int
	ScavengeExplorerSlots bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxVirtualCircuits:    16,
		SearchSlotCap:         search_DefaultSlotCap,
		ScavengeExplorerSlots: true,
	}
}

// search_DefaultSlotCap mirrors search.DefaultSlotCap; the two are kept
// equal by hand.
const search_DefaultSlotCap = 256

func clampVCCap(n int) int {
	switch {
	case n < 4:
		return 4
	case n > 2000:
		return 2000
	default:
		return n
	}
}

// DeferredPacket is a request parked awaiting an oplock-break
// acknowledgment (§4.7 item 5, §5 "Suspension points", §9 "Deferred
// packets"). Resume replays the original request through the dispatcher.
type DeferredPacket struct {
	ID     string
	Path   string
	Parked time.Time
	Resume func()
}

// Session is a long-lived per-client connection (§3 "Session").
type Session struct {
	ID            uint64
	Dialect       string
	Capabilities  uint32
	MaxBufferSize uint32
	ClientAddr    string
	CreatedAt     time.Time

	cfg Config

	mu      sync.Mutex
	vcs     map[uint16]*VirtualCircuit
	nextUID uint16

	deferredMu sync.Mutex
	deferred   map[string][]*DeferredPacket // path -> parked requests
}

// New constructs a Session. cfg's VC cap is clamped to [4, 2000] (§4.2).
func New(id uint64, clientAddr string, cfg Config) *Session {
	cfg.MaxVirtualCircuits = clampVCCap(cfg.MaxVirtualCircuits)
	return &Session{
		ID:            id,
		ClientAddr:    clientAddr,
		CreatedAt:     time.Now(),
		cfg:           cfg,
		vcs:           make(map[uint16]*VirtualCircuit),
		nextUID:       1,
		deferred:      make(map[string][]*DeferredPacket),
	}
}

// ErrVCLimitReached is the "invalid id" sentinel §4.2 describes for an
// allocation beyond the configured cap.
var ErrVCLimitReached = errors.New("smb1: virtual circuit limit reached")

// AddVC allocates a UID (masked to 16 bits, monotonic with collision
// skip, §4.2) and registers a new VirtualCircuit.
func (s *Session) AddVC(client ClientInfo) (*VirtualCircuit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.vcs) >= s.cfg.MaxVirtualCircuits {
		return nil, ErrVCLimitReached
	}
	for i := 0; i < 65536; i++ {
		uid := s.nextUID
		s.nextUID++
		if uid == 0 {
			continue // 0 is reserved
		}
		if _, exists := s.vcs[uid]; exists {
			continue // skip collision with a still-live id (§4.2 tie-break)
		}
		vc := newVirtualCircuit(uid, client, s.cfg.SearchSlotCap, s.cfg.ScavengeExplorerSlots)
		s.vcs[uid] = vc
		return vc, nil
	}
	return nil, ErrVCLimitReached
}

// ErrInvalidUID is returned by FindVC for an unknown UID (§7).
var ErrInvalidUID = errors.New("smb1: invalid UID")

// FindVC looks up a VirtualCircuit by UID.
func (s *Session) FindVC(uid uint16) (*VirtualCircuit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vc, ok := s.vcs[uid]
	if !ok {
		return nil, ErrInvalidUID
	}
	return vc, nil
}

// RemoveVC removes a VC. It returns sessionShouldClose=true when this was
// the last VC (§3 invariant iii).
func (s *Session) RemoveVC(uid uint16) (vc *VirtualCircuit, sessionShouldClose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vc, ok := s.vcs[uid]
	if !ok {
		return nil, false
	}
	delete(s.vcs, uid)
	return vc, len(s.vcs) == 0
}

// ShouldRemoveVC reports invariant (ii): a VC with zero trees and
// loggedOn==false must be removed.
func ShouldRemoveVC(vc *VirtualCircuit) bool {
	return !vc.LoggedOn && vc.TreeCount() == 0
}

// VCCount returns the number of active virtual circuits (§4.2 "count").
func (s *Session) VCCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vcs)
}

// Clear removes and returns every VC, for session teardown (§4.2
// "clear"); the caller is responsible for closing each VC's trees.
func (s *Session) Clear() []*VirtualCircuit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*VirtualCircuit, 0, len(s.vcs))
	for _, vc := range s.vcs {
		out = append(out, vc)
	}
	s.vcs = make(map[uint16]*VirtualCircuit)
	return out
}

// Park adds a DeferredPacket to the queue keyed by path (§4.7 item 5).
func (s *Session) Park(path string, p *DeferredPacket) {
	s.deferredMu.Lock()
	defer s.deferredMu.Unlock()
	p.Path = path
	p.Parked = time.Now()
	s.deferred[path] = append(s.deferred[path], p)
}

// DrainPath removes and returns every packet parked on path, in arrival
// order, for replay once the owning oplock break is acknowledged (§4.7
// item 6).
func (s *Session) DrainPath(path string) []*DeferredPacket {
	s.deferredMu.Lock()
	defer s.deferredMu.Unlock()
	pkts := s.deferred[path]
	delete(s.deferred, path)
	return pkts
}

// DeferredCount reports how many requests are currently parked across all
// paths, for metrics/diagnostics.
func (s *Session) DeferredCount() int {
	s.deferredMu.Lock()
	defer s.deferredMu.Unlock()
	n := 0
	for _, pkts := range s.deferred {
		n += len(pkts)
	}
	return n
}
