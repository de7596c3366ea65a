package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func TestRegisterAndPublishDeliversMatchingFilter(t *testing.T) {
	reg := NewRegistry()
	var got []Change
	var gotOverflow bool
	key := Key{UID: 1, TID: 2, PID: 3, MID: 4}
	reg.Register(key, "/share/dir", types.NotifyFileName, false, func(changes []Change, overflow bool) {
		got = changes
		gotOverflow = overflow
	})

	reg.Publish("/share/dir", types.NotifyActionAdded, "new.txt", types.NotifyFileName)

	require.Len(t, got, 1)
	require.Equal(t, types.NotifyActionAdded, got[0].Action)
	require.Equal(t, "new.txt", got[0].Name)
	require.False(t, gotOverflow)
}

func TestPublishIgnoresNonMatchingFilter(t *testing.T) {
	reg := NewRegistry()
	fired := false
	key := Key{UID: 1, TID: 2, PID: 3, MID: 4}
	reg.Register(key, "/share/dir", types.NotifyFileName, false, func(changes []Change, overflow bool) {
		fired = true
	})

	reg.Publish("/share/dir", types.NotifyActionAdded, "new.txt", types.NotifySize)
	require.False(t, fired, "a watcher not subscribed to this filter bit must not fire")
}

func TestPublishRequiresRecursiveFlagForDescendantPaths(t *testing.T) {
	reg := NewRegistry()
	fired := false
	key := Key{UID: 1, TID: 2, PID: 3, MID: 4}
	reg.Register(key, "/share", types.NotifyFileName, false, func(changes []Change, overflow bool) {
		fired = true
	})

	reg.Publish("/share/sub", types.NotifyActionAdded, "new.txt", types.NotifyFileName)
	require.False(t, fired, "a non-recursive watch must not see events in subdirectories")
}

func TestPublishRecursiveMatchesDescendant(t *testing.T) {
	reg := NewRegistry()
	var got []Change
	key := Key{UID: 1, TID: 2, PID: 3, MID: 4}
	reg.Register(key, "/share", types.NotifyFileName, true, func(changes []Change, overflow bool) {
		got = changes
	})

	reg.Publish("/share/sub", types.NotifyActionAdded, "new.txt", types.NotifyFileName)
	require.Len(t, got, 1)
}

func TestCancelCompletesWithoutChanges(t *testing.T) {
	reg := NewRegistry()
	var calledWith []Change
	called := false
	key := Key{UID: 1, TID: 2, PID: 3, MID: 4}
	reg.Register(key, "/share", types.NotifyFileName, false, func(changes []Change, overflow bool) {
		called = true
		calledWith = changes
	})

	reg.Cancel(key)
	require.True(t, called)
	require.Empty(t, calledWith)

	// Canceling an already-finished request is a no-op, not a second callback.
	called = false
	reg.Cancel(key)
	require.False(t, called)
}

func TestRemoveByTreeCancelsOnlyMatchingTID(t *testing.T) {
	reg := NewRegistry()
	var doneA, doneB bool
	reg.Register(Key{TID: 1}, "/a", types.NotifyFileName, false, func(changes []Change, overflow bool) { doneA = true })
	reg.Register(Key{TID: 2}, "/b", types.NotifyFileName, false, func(changes []Change, overflow bool) { doneB = true })

	reg.RemoveByTree(1)
	require.True(t, doneA)
	require.False(t, doneB)
}

func TestRequestOverflowsPastMaxBufferedChanges(t *testing.T) {
	reg := NewRegistry()
	var overflowed bool
	var count int
	key := Key{TID: 1}
	req := reg.Register(key, "/share", types.NotifyFileName, false, func(changes []Change, overflow bool) {
		overflowed = overflow
		count = len(changes)
	})

	for i := 0; i < maxBufferedChanges+10; i++ {
		req.push(Change{Action: types.NotifyActionAdded, Name: "x"})
	}
	req.finish()

	require.True(t, overflowed)
	require.Equal(t, maxBufferedChanges, count)
}

func TestEncodeChangesEmpty(t *testing.T) {
	require.Nil(t, EncodeChanges(nil, false))
}

func TestEncodeChangesSingleEntryOEM(t *testing.T) {
	buf := EncodeChanges([]Change{{Action: types.NotifyActionAdded, Name: "a.txt"}}, false)
	require.NotEmpty(t, buf)
	// NextEntryOffset of the last (only) entry must be zero.
	require.Equal(t, []byte{0, 0, 0, 0}, buf[0:4])
}

func TestEncodeRenameOrdersOldThenNew(t *testing.T) {
	buf := EncodeRename("old.txt", "new.txt", false)
	expected := EncodeChanges([]Change{
		{Action: types.NotifyActionRenamedOldName, Name: "old.txt"},
		{Action: types.NotifyActionRenamedNewName, Name: "new.txt"},
	}, false)
	require.Equal(t, expected, buf)
}

func TestIsAncestor(t *testing.T) {
	require.True(t, isAncestor("/share", "/share"))
	require.True(t, isAncestor("/share", "/share/sub"))
	require.False(t, isAncestor("/share", "/sharex"))
	require.False(t, isAncestor("/share/sub", "/share"))
}
