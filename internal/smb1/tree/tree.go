// Package tree implements the TreeConnection (bound share) and its
// per-tree open-file table (§3 "TreeConnection", "OpenFile"; §4.3).
package tree

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
)

// Permission is the tree's access level, resolved at bind time by the
// authenticator and (optionally) downgraded by an ACL manager (§4.3).
type Permission int

const (
	PermissionNoAccess Permission = iota
	PermissionReadOnly
	PermissionReadWrite
)

// ShareType distinguishes a disk share from the admin IPC$ pipe share
// (§4.3, "Maps IPC$ to admin-pipe type").
type ShareType int

const (
	ShareTypeDisk ShareType = iota
	ShareTypePrinter
	ShareTypeIPC
)

// Lock is a single byte-range lock entry held on an OpenFile (§4.9).
type Lock struct {
	PID    uint32
	Offset uint64
	Length uint64
}

// OpenFile is a handle to a filesystem object, owned exclusively by the
// Tree that created it (§3 "OpenFile").
type OpenFile struct {
	FID           uint16
	Path          string
	GrantedAccess uint32
	ShareAccess   uint32
	IsDirectory   bool
	DeleteOnClose bool
	DelayedClose  bool // driver requested async completion before the FID is freed (§4.3)
	WriteCount    uint64
	CreatedAt     time.Time

	File      driver.File // driver-owned handle
	OplockKey string      // path this FID's oplock is registered under, "" if none
	BreakID   string      // outstanding break correlation ID, "" if no break in flight

	mu    sync.Mutex
	Locks []Lock
}

// AddLock records a granted byte-range lock.
func (f *OpenFile) AddLock(l Lock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Locks = append(f.Locks, l)
}

// RemoveLock removes a matching lock entry; reports whether one was found.
func (f *OpenFile) RemoveLock(pid uint32, offset, length uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.Locks {
		if l.PID == pid && l.Offset == offset && l.Length == length {
			f.Locks = append(f.Locks[:i], f.Locks[i+1:]...)
			return true
		}
	}
	return false
}

// ErrInvalidFID is returned when a FID does not resolve in this tree
// (§7, "invalid FID").
var ErrInvalidFID = errors.New("smb1: invalid FID")

// ErrMaxFilesReached bounds the open-file table per tree (§7 capacity
// errors: DOSTooManyOpenFiles).
var ErrMaxFilesReached = errors.New("smb1: too many open files")

const defaultMaxOpenFiles = 16384

// Tree is a bound share: one TreeConnection per successful TREE_CONNECT
// (§3 "TreeConnection", invariants i-iii).
type Tree struct {
	TID         uint16
	ShareName   string
	ShareType   ShareType
	Permission  Permission // immutable after bind (invariant i)
	FileSystem  driver.FileSystem
	CreatedAt   time.Time

	maxOpenFiles int
	mu           sync.Mutex
	files        map[uint16]*OpenFile
	nextFID      uint16
}

// New constructs a Tree bound to tid with the resolved permission and
// filesystem context.
func New(tid uint16, shareName string, st ShareType, perm Permission, fs driver.FileSystem) *Tree {
	return &Tree{
		TID:          tid,
		ShareName:    shareName,
		ShareType:    st,
		Permission:   perm,
		FileSystem:   fs,
		CreatedAt:    time.Now(),
		maxOpenFiles: defaultMaxOpenFiles,
		files:        make(map[uint16]*OpenFile),
		nextFID:      1,
	}
}

// CanWrite reports whether invariant (ii), "writes require write
// permission", is satisfied for this tree.
func (t *Tree) CanWrite() bool { return t.Permission == PermissionReadWrite }

// AddOpenFile allocates a FID and registers f under it.
func (t *Tree) AddOpenFile(f *OpenFile) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.files) >= t.maxOpenFiles {
		return 0, ErrMaxFilesReached
	}
	for i := 0; i < 65535; i++ {
		fid := t.nextFID
		t.nextFID++
		if t.nextFID == 0 {
			t.nextFID = 1
		}
		if fid == 0 {
			continue
		}
		if _, exists := t.files[fid]; !exists {
			f.FID = fid
			t.files[fid] = f
			return fid, nil
		}
	}
	return 0, ErrMaxFilesReached
}

// GetOpenFile looks up an OpenFile by FID.
func (t *Tree) GetOpenFile(fid uint16) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fid]
	return f, ok
}

// RemoveOpenFile drops the FID from the table (CLOSE, §4.3). Idempotence
// (§8 property 7): removing a FID twice returns false the second time
// without touching the driver.
func (t *Tree) RemoveOpenFile(fid uint16) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fid]
	if !ok {
		return nil, false
	}
	if f.DelayedClose {
		// FID remains listed until the driver's async completion runs
		// (§4.3); the caller must call RemoveOpenFile again once that
		// completion fires.
		return f, true
	}
	delete(t.files, fid)
	return f, true
}

// ForceRemoveOpenFile drops a FID regardless of DelayedClose, used when
// the driver's async completion finally runs.
func (t *Tree) ForceRemoveOpenFile(fid uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, fid)
}

// OpenFileCount returns the number of currently open files in this tree.
func (t *Tree) OpenFileCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// OpenFiles returns a snapshot of every file currently open in this tree,
// for teardown paths that need to release per-file state (oplocks, locks)
// before CloseAll drops the table.
func (t *Tree) OpenFiles() []*OpenFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*OpenFile, 0, len(t.files))
	for _, f := range t.files {
		out = append(out, f)
	}
	return out
}

// CloseAll closes every open file this tree owns, calling the driver's
// CloseFile for each (§4.3 invariant iii: "closing a tree closes every
// open file it owns").
func (t *Tree) CloseAll(ctx context.Context) {
	t.mu.Lock()
	files := make([]*OpenFile, 0, len(t.files))
	for _, f := range t.files {
		files = append(files, f)
	}
	t.files = make(map[uint16]*OpenFile)
	t.mu.Unlock()

	for _, f := range files {
		_ = t.FileSystem.CloseFile(ctx, f.File)
	}
}
