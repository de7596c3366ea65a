// Package search implements the legacy directory-enumeration cursor table
// (§3 "SearchContext", §4.4) and its 24-byte resume-key codec.
package search

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// Resume-key entry-id sentinels (§3 "Resume Key").
const (
	EntryIDStart    uint16 = 0x8003
	EntryIDDotDot   uint16 = 0x8001
	EntryIDDot      uint16 = 0x8002
)

// explorerLeakPattern is the legacy Windows Explorer fingerprint the
// scavenger looks for (§4.4, §9 Open Question).
const explorerLeakPattern = "????????.???"

// DefaultSlotCap is the per-VC search-slot array size (§4.2 mentions a
// configurable cap; §3 calls it "fixed-capacity").
const DefaultSlotCap = 256

// Context is a single directory-enumeration cursor (§3 "SearchContext").
type Context struct {
	ID         uint16 // index in the VC's slot array
	TID        uint16
	Pattern    string
	Attributes types.FileAttributes
	MaxFiles   uint16
	EntryID    uint16 // resume position; next entry_id to hand out
	Cursor     driver.SearchCursor
	DotDone    bool // "." pseudo entry already emitted
	DotDotDone bool // ".." pseudo entry already emitted
}

// HasWildcard reports whether the originating pattern contains '*' or '?'.
func (c *Context) HasWildcard() bool {
	return strings.ContainsAny(c.Pattern, "*?")
}

// ErrNoFreeSlot is returned when Allocate can't find (or scavenge) a slot
// (§4.4: "returns SRVNoResourcesAvailable").
var ErrNoFreeSlot = errors.New("smb1: no free search slot")

// ErrSlotNotFound / ErrWrongTree are returned by Lookup on an invalid or
// cross-tree resume key (§3 invariant i, §4.4).
var (
	ErrSlotNotFound = errors.New("smb1: search slot not found")
	ErrWrongTree    = errors.New("smb1: search slot belongs to a different tree")
)

// Table is the sparse, fixed-capacity array of SearchContext slots owned
// by one VirtualCircuit (§3 "VirtualCircuit").
type Table struct {
	mu                sync.Mutex
	slots             []*Context
	scavengeLeaks     bool // §4.4, §9: Explorer-leak-slot compatibility flag
}

// NewTable constructs a Table with the given capacity.
func NewTable(capacity int, scavengeLeaks bool) *Table {
	if capacity <= 0 {
		capacity = DefaultSlotCap
	}
	return &Table{slots: make([]*Context, capacity), scavengeLeaks: scavengeLeaks}
}

// Count returns the number of occupied slots (§8 property 4).
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Allocate reserves a free slot for a new search, scavenging one "leaked"
// Explorer slot if the table is full and scavenging is enabled (§4.4).
func (t *Table) Allocate(tid uint16, pattern string, attrs types.FileAttributes, maxFiles uint16) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, s := range t.slots {
		if s == nil {
			idx = i
			break
		}
	}
	if idx == -1 && t.scavengeLeaks {
		for i, s := range t.slots {
			if s != nil && s.Pattern == explorerLeakPattern {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return nil, ErrNoFreeSlot
	}

	ctx := &Context{
		ID:         uint16(idx),
		TID:        tid,
		Pattern:    pattern,
		Attributes: attrs,
		MaxFiles:   maxFiles,
		EntryID:    EntryIDStart,
	}
	t.slots[idx] = ctx
	return ctx, nil
}

// Lookup resolves a resume key's (slot, tid) pair to its Context,
// enforcing invariant (i): continue/close must carry the same TID.
func (t *Table) Lookup(slot uint16, tid uint16) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(slot) >= len(t.slots) {
		return nil, ErrSlotNotFound
	}
	ctx := t.slots[slot]
	if ctx == nil {
		return nil, ErrSlotNotFound
	}
	if ctx.TID != tid {
		return nil, ErrWrongTree
	}
	return ctx, nil
}

// Free releases a slot (explicit close, exhaustion, or an explicit
// "close after response" request flag, §3 invariant ii).
func (t *Table) Free(slot uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(slot) < len(t.slots) {
		t.slots[slot] = nil
	}
}

// ResumeKey is the 24-byte opaque cursor legacy SEARCH clients echo back
// (§3 "Resume Key").
type ResumeKey struct {
	Pattern [11]byte
	Status  byte
	Cookie  uint32 // (search_slot << 16) | entry_id
}

// Slot extracts the search-slot index from the cookie.
func (k ResumeKey) Slot() uint16 { return uint16(k.Cookie >> 16) }

// EntryID extracts the per-entry resume id from the cookie.
func (k ResumeKey) EntryID() uint16 { return uint16(k.Cookie & 0xFFFF) }

// EncodeResumeKey packs a ResumeKey into its 24-byte wire form.
func EncodeResumeKey(pattern string, slot uint16, entryID uint16) []byte {
	buf := make([]byte, 24)
	var padded [11]byte
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded[:], strings.ToUpper(pattern))
	copy(buf[0:11], padded[:])
	buf[11] = 0 // status
	binary.LittleEndian.PutUint32(buf[12:16], uint32(slot)<<16|uint32(entryID))
	// buf[16:24] reserved, left zero
	return buf
}

// DecodeResumeKey parses a 24-byte resume-key block.
func DecodeResumeKey(buf []byte) (ResumeKey, error) {
	if len(buf) < 24 {
		return ResumeKey{}, errors.New("smb1: short resume key")
	}
	var k ResumeKey
	copy(k.Pattern[:], buf[0:11])
	k.Status = buf[11]
	k.Cookie = binary.LittleEndian.Uint32(buf[12:16])
	return k, nil
}
