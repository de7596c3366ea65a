package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func TestToOutcomeNilIsSuccess(t *testing.T) {
	require.Equal(t, types.Success, ToOutcome(nil))
}

func TestToOutcomeUnrecognizedErrorIsNonSpecific(t *testing.T) {
	require.Equal(t, types.ErrNonSpecific, ToOutcome(errors.New("boom")))
}

func TestToOutcomeMapsEachVariant(t *testing.T) {
	cases := []struct {
		kind VariantKind
		want types.Outcome
	}{
		{VariantNotFound, types.ErrObjectNotFound},
		{VariantPathNotFound, types.ErrPathNotFound},
		{VariantAccessDenied, types.ErrAccessDenied},
		{VariantSharing, types.ErrSharingViolation},
		{VariantFileExists, types.ErrNameCollision},
		{VariantDiskFull, types.ErrDiskFull},
		{VariantOffline, types.ErrDriveNotReady},
		{VariantTooManyFiles, types.ErrTooManyOpenFiles},
		{VariantNotImplemented, types.ErrNotImplemented},
		{VariantLockConflict, types.ErrLockNotGranted},
		{VariantRangeNotLocked, types.ErrRangeNotLocked},
		{VariantBufferTooSmall, types.ErrBufferTooSmall},
	}
	for _, c := range cases {
		got := ToOutcome(New(c.kind, nil))
		require.Equal(t, c.want, got, "kind %v", c.kind)
	}
}

func TestToOutcomeWrapsCauseThroughUnwrap(t *testing.T) {
	cause := errors.New("underlying os error")
	err := New(VariantAccessDenied, cause)
	require.Equal(t, cause, errors.Unwrap(err))
	require.Equal(t, types.ErrAccessDenied, ToOutcome(err))
}

func TestIsMatchesVariantThroughWrapping(t *testing.T) {
	err := New(VariantNotFound, errors.New("cause"))
	require.True(t, Is(err, VariantNotFound))
	require.False(t, Is(err, VariantAccessDenied))
	require.False(t, Is(errors.New("plain"), VariantNotFound))
}

func TestErrorMessagePrefersCause(t *testing.T) {
	err := New(VariantNotFound, errors.New("cause text"))
	require.Equal(t, "cause text", err.Error())

	bare := New(VariantNotFound, nil)
	require.Equal(t, "driver error", bare.Error())
}
