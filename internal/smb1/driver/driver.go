// Package driver defines the abstract filesystem back-end this engine
// consumes (§6, "Driver interface (consumed)"). It is intentionally a
// thin, dependency-free contract: the pluggable filesystem driver
// implementation itself is an external collaborator (§1) and lives
// outside this module.
package driver

import (
	"context"
	"time"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// File is an opaque, driver-owned handle to an open filesystem object.
// The core never inspects its contents; it only threads it back into
// subsequent driver calls for the same OpenFile.
type File interface{}

// FileInfo is the information the driver reports about a path or handle,
// feeding the info-level packers (§4.5, §9).
type FileInfo struct {
	Name           string
	IsDirectory    bool
	Size           int64
	AllocationSize int64
	Attributes     types.FileAttributes
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileID         uint64
}

// CreateParams describes a CREATE/OPEN/NT_CREATE_ANDX request to the
// driver (§4.3).
type CreateParams struct {
	Path          string
	DesiredAccess uint32
	ShareAccess   uint32
	Directory     bool
	AttributesOnly bool // true if no data access was requested (oplock skip, §4.7)
	CreateDisposition uint32
}

// SearchCursor is opaque driver-side state for an in-progress directory
// enumeration, threaded back into subsequent driver calls for the same
// SearchContext (§3, §4.4).
type SearchCursor interface{}

// SearchEntry is a single enumerated directory entry.
type SearchEntry struct {
	Name string
	Info FileInfo
}

// FileSystem is the minimal driver surface the core requires (§6).
// Implementations back this with a real or virtual filesystem; the core
// never performs I/O itself.
type FileSystem interface {
	FileExists(ctx context.Context, path string) bool

	OpenFile(ctx context.Context, params CreateParams) (File, FileInfo, error)
	CreateFile(ctx context.Context, params CreateParams) (File, FileInfo, error)
	CreateDirectory(ctx context.Context, path string) error
	CloseFile(ctx context.Context, f File) error

	ReadFile(ctx context.Context, f File, buf []byte, offset int64) (int, error)
	WriteFile(ctx context.Context, f File, buf []byte, offset int64) (int, error)
	TruncateFile(ctx context.Context, f File, size int64) error
	FlushFile(ctx context.Context, f File) error
	SeekFile(ctx context.Context, f File, offset int64, whence int) (int64, error)

	DeleteFile(ctx context.Context, path string) error
	DeleteDirectory(ctx context.Context, path string) error
	RenameFile(ctx context.Context, from, to string) error

	GetFileInformation(ctx context.Context, path string) (*FileInfo, error)
	SetFileInformation(ctx context.Context, path string, info FileInfo, flags uint32) error

	StartSearch(ctx context.Context, pattern string, attrs types.FileAttributes, flags uint32) (SearchCursor, error)
	// NextEntries returns up to maxEntries from cursor; more==false with a
	// nil error reports that enumeration is exhausted.
	NextEntries(ctx context.Context, cursor SearchCursor, maxEntries int) (entries []SearchEntry, more bool, err error)
	CloseSearch(ctx context.Context, cursor SearchCursor) error
}

// Optional capability traits, probed via type assertion on a FileSystem
// value (§9, "capability probing rather than dynamic casts").

// StreamFileSystem is implemented by drivers that expose NTFS alternate
// data streams (§4.5).
type StreamFileSystem interface {
	ListStreams(ctx context.Context, path string) ([]string, error)
	RenameStream(ctx context.Context, path, oldStream, newStream string) error
}

// LockManager is implemented by drivers that support byte-range locking
// and/or oplocks (§4.7, §4.9). A driver lacking this interface makes
// unlocks fail with NTRangeNotLocked and locks succeed vacuously (§4.9).
type LockManager interface {
	Lock(ctx context.Context, f File, pid uint32, offset, length uint64) error
	Unlock(ctx context.Context, f File, pid uint32, offset, length uint64) error
}

// IOCtlFileSystem is implemented by drivers that handle NT_TRANSACT_IOCTL
// pass-through requests (§4.5).
type IOCtlFileSystem interface {
	IOControl(ctx context.Context, f File, code uint32, in []byte) ([]byte, error)
}

// ErrIOCtlNotImplemented is returned by IOControl for an unrecognized
// control code, translated to NTNotImplemented (§4.5).
var ErrIOCtlNotImplemented = &VariantError{Kind: VariantNotImplemented}

// SecurityDescriptorFileSystem is implemented by drivers with native ACL
// support (§4.5). Absent this interface, the dispatcher returns a canned
// "Everyone full-control" descriptor.
type SecurityDescriptorFileSystem interface {
	QuerySecurity(ctx context.Context, path string) ([]byte, error)
	SetSecurity(ctx context.Context, path string, sd []byte) error
}

// DiskSizer is implemented by drivers that report dynamic disk-size
// information for QUERY_FS_INFO (§4.5).
type DiskSizer interface {
	DiskFreeSpace(ctx context.Context) (totalUnits, freeUnits uint64, bytesPerSector, sectorsPerUnit uint32, err error)
}

// VolumeInfoProvider is implemented by drivers that report dynamic volume
// information (label, serial, creation time) for QUERY_FS_INFO (§4.5).
type VolumeInfoProvider interface {
	VolumeInfo(ctx context.Context) (label string, serial uint32, created time.Time, err error)
}

// QuotaFileSystem is implemented by drivers with per-user quota support.
type QuotaFileSystem interface {
	QuotaInfo(ctx context.Context, sid string) (used, limit uint64, err error)
}

// NTFSStreamsEnabled is a small helper: given a filesystem, reports
// whether it both implements StreamFileSystem and has streams enabled for
// QUERY_FS_INFO's FsAttribute level (§4.5).
func NTFSStreamsEnabled(fs FileSystem, enabled bool) bool {
	if !enabled {
		return false
	}
	_, ok := fs.(StreamFileSystem)
	return ok
}
