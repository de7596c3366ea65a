package session

import (
	"errors"
	"sync"

	"github.com/gosmbd/smb1d/internal/smb1/search"
	"github.com/gosmbd/smb1d/internal/smb1/transact"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
)

// ClientInfo is the identity a VirtualCircuit was authenticated under
// (§3 "VirtualCircuit"). The authentication mechanism itself is an
// external collaborator (§1, §6); this engine only carries the result.
type ClientInfo struct {
	User      string
	Domain    string
	AuthToken []byte
	IsGuest   bool
}

// VirtualCircuit represents one authenticated user identity on a session
// (§3 "VirtualCircuit").
type VirtualCircuit struct {
	UID      uint16
	Client   ClientInfo
	LoggedOn bool

	SearchSlots *search.Table

	mu        sync.Mutex
	trees     map[uint16]*tree.Tree
	nextTID   uint16
	transact  *transact.Buffer
}

func newVirtualCircuit(uid uint16, client ClientInfo, searchSlotCap int, scavengeLeaks bool) *VirtualCircuit {
	return &VirtualCircuit{
		UID:         uid,
		Client:      client,
		LoggedOn:    true,
		SearchSlots: search.NewTable(searchSlotCap, scavengeLeaks),
		trees:       make(map[uint16]*tree.Tree),
		nextTID:     1,
	}
}

// ErrInvalidTID is returned by FindTree for an unknown TID (§7).
var ErrInvalidTID = errors.New("smb1: invalid TID")

// AddTree allocates a TID and registers t under it.
func (vc *VirtualCircuit) AddTree(t *tree.Tree) uint16 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	for {
		tid := vc.nextTID
		vc.nextTID++
		if vc.nextTID == 0 {
			vc.nextTID = 1
		}
		if tid == 0 {
			continue
		}
		if _, exists := vc.trees[tid]; !exists {
			t.TID = tid
			vc.trees[tid] = t
			return tid
		}
	}
}

// FindTree looks up a TreeConnection by TID.
func (vc *VirtualCircuit) FindTree(tid uint16) (*tree.Tree, error) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	t, ok := vc.trees[tid]
	if !ok {
		return nil, ErrInvalidTID
	}
	return t, nil
}

// RemoveTree drops a tree from the VC's table and returns it
// (TREE_DISCONNECT, §4.1); closing its open files is left to the caller.
func (vc *VirtualCircuit) RemoveTree(tid uint16) (*tree.Tree, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	t, ok := vc.trees[tid]
	if ok {
		delete(vc.trees, tid)
	}
	return t, ok
}

// TreeCount returns the number of bound trees (§3 invariant ii).
func (vc *VirtualCircuit) TreeCount() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.trees)
}

// Trees returns a snapshot of all bound trees, e.g. for logoff teardown.
func (vc *VirtualCircuit) Trees() []*tree.Tree {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	out := make([]*tree.Tree, 0, len(vc.trees))
	for _, t := range vc.trees {
		out = append(out, t)
	}
	return out
}

// ErrTransactInProgress enforces invariant (i): at most one outstanding
// TransactBuffer per VC (§3).
var ErrTransactInProgress = errors.New("smb1: a transaction reassembly is already in progress on this circuit")

// BeginTransact installs a new in-progress TransactBuffer, failing if one
// already exists.
func (vc *VirtualCircuit) BeginTransact(b *transact.Buffer) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.transact != nil {
		return ErrTransactInProgress
	}
	vc.transact = b
	return nil
}

// CurrentTransact returns the in-progress TransactBuffer, if any.
func (vc *VirtualCircuit) CurrentTransact() *transact.Buffer {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.transact
}

// EndTransact clears the in-progress TransactBuffer (reassembly complete
// or aborted).
func (vc *VirtualCircuit) EndTransact() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.transact = nil
}
