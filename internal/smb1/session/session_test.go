package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/transact"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
)

func TestNewClampsVCCap(t *testing.T) {
	s := New(1, "10.0.0.1:1234", Config{MaxVirtualCircuits: 1})
	require.Equal(t, 4, s.cfg.MaxVirtualCircuits, "below-floor cap must clamp to 4")

	s = New(1, "10.0.0.1:1234", Config{MaxVirtualCircuits: 100000})
	require.Equal(t, 2000, s.cfg.MaxVirtualCircuits, "above-ceiling cap must clamp to 2000")
}

func TestAddVCNeverAllocatesUIDZero(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	vc, err := s.AddVC(ClientInfo{User: "alice"})
	require.NoError(t, err)
	require.NotEqual(t, uint16(0), vc.UID)
}

func TestAddVCEnforcesLimit(t *testing.T) {
	s := New(1, "10.0.0.1:1234", Config{MaxVirtualCircuits: 4, SearchSlotCap: 16})
	for i := 0; i < 4; i++ {
		_, err := s.AddVC(ClientInfo{User: "alice"})
		require.NoError(t, err)
	}
	_, err := s.AddVC(ClientInfo{User: "alice"})
	require.ErrorIs(t, err, ErrVCLimitReached)
}

func TestFindVCUnknownUID(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	_, err := s.FindVC(999)
	require.ErrorIs(t, err, ErrInvalidUID)
}

func TestRemoveVCReportsSessionShouldClose(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	vc1, _ := s.AddVC(ClientInfo{User: "alice"})
	vc2, _ := s.AddVC(ClientInfo{User: "bob"})

	_, shouldClose := s.RemoveVC(vc1.UID)
	require.False(t, shouldClose, "one VC still open")

	_, shouldClose = s.RemoveVC(vc2.UID)
	require.True(t, shouldClose, "last VC removed")
}

func TestShouldRemoveVCInvariant(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	vc, _ := s.AddVC(ClientInfo{User: "alice"})
	vc.LoggedOn = false
	require.True(t, ShouldRemoveVC(vc))

	vc.AddTree(tree.New(0, "share", tree.ShareTypeDisk, tree.PermissionReadOnly, nil))
	require.False(t, ShouldRemoveVC(vc), "a bound tree keeps the VC alive even when logged off")
}

func TestParkAndDrainPathPreservesOrder(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	var order []int
	s.Park("\\foo.txt", &DeferredPacket{ID: "1", Resume: func() { order = append(order, 1) }})
	s.Park("\\foo.txt", &DeferredPacket{ID: "2", Resume: func() { order = append(order, 2) }})
	require.Equal(t, 2, s.DeferredCount())

	pkts := s.DrainPath("\\foo.txt")
	require.Len(t, pkts, 2)
	for _, p := range pkts {
		p.Resume()
	}
	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, 0, s.DeferredCount())

	// Draining an already-drained path is a no-op, not an error.
	require.Empty(t, s.DrainPath("\\foo.txt"))
}

func TestAddTreeNeverAllocatesTIDZero(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	vc, _ := s.AddVC(ClientInfo{User: "alice"})
	tid := vc.AddTree(tree.New(0, "share", tree.ShareTypeDisk, tree.PermissionReadOnly, nil))
	require.NotEqual(t, uint16(0), tid)

	got, err := vc.FindTree(tid)
	require.NoError(t, err)
	require.Equal(t, tid, got.TID)
}

func TestBeginTransactRejectsConcurrentReassembly(t *testing.T) {
	s := New(1, "10.0.0.1:1234", DefaultConfig())
	vc, _ := s.AddVC(ClientInfo{User: "alice"})
	require.Nil(t, vc.CurrentTransact())

	buf := transact.NewBuffer(transact.KindTrans2, 0, 16, 16)
	require.NoError(t, vc.BeginTransact(buf))
	require.Same(t, buf, vc.CurrentTransact())

	other := transact.NewBuffer(transact.KindTrans2, 0, 16, 16)
	require.ErrorIs(t, vc.BeginTransact(other), ErrTransactInProgress)

	vc.EndTransact()
	require.Nil(t, vc.CurrentTransact())
	require.NoError(t, vc.BeginTransact(other))
}
