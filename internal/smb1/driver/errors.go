package driver

import (
	"errors"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// VariantKind enumerates the typed error variants a driver call can
// signal (§9, "Exceptions as control flow"). The dispatcher maps variants
// to wire status codes at a single translation boundary (Outcome).
type VariantKind int

const (
	VariantNotFound VariantKind = iota
	VariantPathNotFound
	VariantAccessDenied
	VariantSharing
	VariantFileExists
	VariantDirNotEmpty
	VariantDiskFull
	VariantOffline
	VariantTooManyFiles
	VariantBadName
	VariantNotImplemented
	VariantLockConflict
	VariantRangeNotLocked
	VariantBufferTooSmall
)

// VariantError is the single error type driver calls return; the Kind
// field selects the wire status at the translation boundary. Wrap a
// lower-level cause in Cause for logging.
type VariantError struct {
	Kind  VariantKind
	Cause error
}

func (e *VariantError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "driver error"
}

func (e *VariantError) Unwrap() error { return e.Cause }

// New constructs a VariantError of the given kind, optionally wrapping a
// lower-level cause.
func New(kind VariantKind, cause error) *VariantError {
	return &VariantError{Kind: kind, Cause: cause}
}

// Is reports whether err is a VariantError of the given kind, unwrapping
// as needed.
func Is(err error, kind VariantKind) bool {
	var ve *VariantError
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// ToOutcome translates a driver error into the wire Outcome the
// dispatcher sends, per §7's taxonomy. Unrecognized errors map to
// SRVNonSpecificError, matching §7's "unexpected exceptions" rule.
func ToOutcome(err error) types.Outcome {
	if err == nil {
		return types.Success
	}
	var ve *VariantError
	if !errors.As(err, &ve) {
		return types.ErrNonSpecific
	}
	switch ve.Kind {
	case VariantNotFound:
		return types.ErrObjectNotFound
	case VariantPathNotFound:
		return types.ErrPathNotFound
	case VariantAccessDenied:
		return types.ErrAccessDenied
	case VariantSharing:
		return types.ErrSharingViolation
	case VariantFileExists:
		return types.ErrNameCollision
	case VariantDirNotEmpty:
		return types.Outcome{Name: "DIR_NOT_EMPTY", NT: 0xC0000101, DOSClass: types.ErrDos, DOSCode: 145}
	case VariantDiskFull:
		return types.ErrDiskFull
	case VariantOffline:
		return types.ErrDriveNotReady
	case VariantTooManyFiles:
		return types.ErrTooManyOpenFiles
	case VariantBadName:
		return types.Outcome{Name: "BAD_NAME", NT: 0xC0000033, DOSClass: types.ErrDos, DOSCode: 123}
	case VariantNotImplemented:
		return types.ErrNotImplemented
	case VariantLockConflict:
		return types.ErrLockNotGranted
	case VariantRangeNotLocked:
		return types.ErrRangeNotLocked
	case VariantBufferTooSmall:
		return types.ErrBufferTooSmall
	default:
		return types.ErrNonSpecific
	}
}
