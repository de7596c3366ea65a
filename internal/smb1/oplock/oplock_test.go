package oplock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func TestReserveCommitGrantsExclusive(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", false, types.OplockExclusive)
	require.Equal(t, LevelExclusive, res.level)

	granted := reg.Commit(res, Holder{UID: 1, TID: 1, FID: 5}, "owner-a")
	require.Equal(t, LevelExclusive, granted)
	require.Equal(t, LevelExclusive, reg.Current("\\foo.txt"))
}

func TestAttributesOnlyOpenNeverGrantsOrBreaks(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", true, types.OplockExclusive)
	require.Equal(t, LevelNone, res.level)
	require.Equal(t, LevelNone, reg.Commit(res, Holder{}, "owner-a"))
}

func TestSameOwnerReopenDoesNotConflict(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", false, types.OplockBatch)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")

	require.False(t, reg.Conflicts("\\foo.txt", false, "owner-a"))
	require.True(t, reg.Conflicts("\\foo.txt", false, "owner-b"))
}

func TestDeniedAccessNeverTriggersABreak(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", false, types.OplockExclusive)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")

	require.False(t, reg.Conflicts("\\foo.txt", true, "owner-b"))
}

func TestBreakAndAcknowledgeCycle(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", false, types.OplockBatch)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")

	notice, ok := reg.BeginBreak("\\foo.txt", LevelNone)
	require.True(t, ok)
	require.NotEmpty(t, notice.ID)

	// A second BeginBreak call while one is outstanding returns the same
	// in-flight notice rather than starting a new one.
	notice2, ok := reg.BeginBreak("\\foo.txt", LevelNone)
	require.True(t, ok)
	require.Equal(t, notice.ID, notice2.ID)

	require.True(t, reg.Acknowledge("\\foo.txt", notice.ID, LevelNone))
	require.Equal(t, LevelNone, reg.Current("\\foo.txt"))
}

func TestAcknowledgeRejectsWrongBreakID(t *testing.T) {
	reg := NewRegistry(time.Second)
	res := reg.Reserve("\\foo.txt", false, types.OplockExclusive)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")
	reg.BeginBreak("\\foo.txt", LevelNone)

	require.False(t, reg.Acknowledge("\\foo.txt", "not-the-real-id", LevelNone))
	require.Equal(t, LevelExclusive, reg.Current("\\foo.txt"))
}

func TestScanTimeoutsForceRevokesStaleBreak(t *testing.T) {
	reg := NewRegistry(10 * time.Millisecond)
	res := reg.Reserve("\\foo.txt", false, types.OplockExclusive)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")
	reg.BeginBreak("\\foo.txt", LevelNone)

	revoked := reg.ScanTimeouts(time.Now().Add(time.Hour))
	require.Equal(t, []string{"\\foo.txt"}, revoked)
	require.Equal(t, LevelNone, reg.Current("\\foo.txt"))

	// A subsequent BeginBreak against the now-cleared path reports no
	// oplock to break, rather than reviving the failed entry.
	_, ok := reg.BeginBreak("\\foo.txt", LevelNone)
	require.False(t, ok)
}

func TestScannerStartStopIsIdempotent(t *testing.T) {
	reg := NewRegistry(time.Millisecond)
	revoked := make(chan string, 1)
	s := NewScanner(reg, time.Millisecond, func(path string) { revoked <- path })
	s.Start()
	s.Start() // no-op, must not deadlock or double-spawn

	res := reg.Reserve("\\foo.txt", false, types.OplockExclusive)
	reg.Commit(res, Holder{UID: 1, TID: 1, FID: 1}, "owner-a")
	reg.BeginBreak("\\foo.txt", LevelNone)

	select {
	case path := <-revoked:
		require.Equal(t, "\\foo.txt", path)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner never revoked the stale break")
	}
	s.Stop()
	s.Stop() // no-op
}
