package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func TestCanWriteReflectsPermission(t *testing.T) {
	ro := New(1, "share", ShareTypeDisk, PermissionReadOnly, nil)
	require.False(t, ro.CanWrite())

	rw := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	require.True(t, rw.CanWrite())
}

func TestAddOpenFileNeverAllocatesFIDZero(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	fid, err := tr.AddOpenFile(&OpenFile{Path: `\foo.txt`})
	require.NoError(t, err)
	require.NotEqual(t, uint16(0), fid)

	got, ok := tr.GetOpenFile(fid)
	require.True(t, ok)
	require.Equal(t, `\foo.txt`, got.Path)
	require.Equal(t, fid, got.FID)
}

func TestAddOpenFileEnforcesMaxOpenFiles(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	tr.maxOpenFiles = 2
	for i := 0; i < 2; i++ {
		_, err := tr.AddOpenFile(&OpenFile{Path: `\foo.txt`})
		require.NoError(t, err)
	}
	_, err := tr.AddOpenFile(&OpenFile{Path: `\foo.txt`})
	require.ErrorIs(t, err, ErrMaxFilesReached)
}

func TestGetOpenFileUnknownFID(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	_, ok := tr.GetOpenFile(999)
	require.False(t, ok)
}

func TestRemoveOpenFileIsIdempotent(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	fid, _ := tr.AddOpenFile(&OpenFile{Path: `\foo.txt`})

	f, ok := tr.RemoveOpenFile(fid)
	require.True(t, ok)
	require.Equal(t, `\foo.txt`, f.Path)

	_, ok = tr.RemoveOpenFile(fid)
	require.False(t, ok, "removing an already-removed FID must report false, not re-close the driver")
}

func TestRemoveOpenFileHonorsDelayedClose(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	fid, _ := tr.AddOpenFile(&OpenFile{Path: `\foo.txt`, DelayedClose: true})

	f, ok := tr.RemoveOpenFile(fid)
	require.True(t, ok)
	require.Equal(t, fid, f.FID)

	// Still listed: the driver's async completion hasn't run yet.
	_, ok = tr.GetOpenFile(fid)
	require.True(t, ok)
	require.Equal(t, 1, tr.OpenFileCount())

	tr.ForceRemoveOpenFile(fid)
	_, ok = tr.GetOpenFile(fid)
	require.False(t, ok)
	require.Equal(t, 0, tr.OpenFileCount())
}

func TestAddLockAndRemoveLock(t *testing.T) {
	f := &OpenFile{Path: `\foo.txt`}
	f.AddLock(Lock{PID: 1, Offset: 0, Length: 10})
	f.AddLock(Lock{PID: 1, Offset: 10, Length: 5})
	require.Len(t, f.Locks, 2)

	require.True(t, f.RemoveLock(1, 0, 10))
	require.Len(t, f.Locks, 1)
	require.Equal(t, uint64(10), f.Locks[0].Offset)

	require.False(t, f.RemoveLock(1, 0, 10), "removing a lock twice must report false")
}

func TestOpenFilesSnapshot(t *testing.T) {
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, nil)
	tr.AddOpenFile(&OpenFile{Path: `\a.txt`})
	tr.AddOpenFile(&OpenFile{Path: `\b.txt`})

	files := tr.OpenFiles()
	require.Len(t, files, 2)
	require.Equal(t, 2, tr.OpenFileCount())
}

// recordingFS is a minimal driver.FileSystem stub that only tracks which
// handles CloseFile was called with; every other method is unused by this
// test and panics if reached.
type recordingFS struct {
	closed []driver.File
}

func (f *recordingFS) FileExists(ctx context.Context, path string) bool { panic("unused") }
func (f *recordingFS) OpenFile(ctx context.Context, params driver.CreateParams) (driver.File, driver.FileInfo, error) {
	panic("unused")
}
func (f *recordingFS) CreateFile(ctx context.Context, params driver.CreateParams) (driver.File, driver.FileInfo, error) {
	panic("unused")
}
func (f *recordingFS) CreateDirectory(ctx context.Context, path string) error { panic("unused") }
func (f *recordingFS) CloseFile(ctx context.Context, h driver.File) error {
	f.closed = append(f.closed, h)
	return nil
}
func (f *recordingFS) ReadFile(ctx context.Context, h driver.File, buf []byte, offset int64) (int, error) {
	panic("unused")
}
func (f *recordingFS) WriteFile(ctx context.Context, h driver.File, buf []byte, offset int64) (int, error) {
	panic("unused")
}
func (f *recordingFS) TruncateFile(ctx context.Context, h driver.File, size int64) error {
	panic("unused")
}
func (f *recordingFS) FlushFile(ctx context.Context, h driver.File) error { panic("unused") }
func (f *recordingFS) SeekFile(ctx context.Context, h driver.File, offset int64, whence int) (int64, error) {
	panic("unused")
}
func (f *recordingFS) DeleteFile(ctx context.Context, path string) error      { panic("unused") }
func (f *recordingFS) DeleteDirectory(ctx context.Context, path string) error { panic("unused") }
func (f *recordingFS) RenameFile(ctx context.Context, from, to string) error  { panic("unused") }
func (f *recordingFS) GetFileInformation(ctx context.Context, path string) (*driver.FileInfo, error) {
	panic("unused")
}
func (f *recordingFS) SetFileInformation(ctx context.Context, path string, info driver.FileInfo, flags uint32) error {
	panic("unused")
}
func (f *recordingFS) StartSearch(ctx context.Context, pattern string, attrs types.FileAttributes, flags uint32) (driver.SearchCursor, error) {
	panic("unused")
}
func (f *recordingFS) NextEntries(ctx context.Context, cursor driver.SearchCursor, maxEntries int) ([]driver.SearchEntry, bool, error) {
	panic("unused")
}
func (f *recordingFS) CloseSearch(ctx context.Context, cursor driver.SearchCursor) error {
	panic("unused")
}

func TestCloseAllEmptiesTheTable(t *testing.T) {
	fs := &recordingFS{}
	tr := New(1, "share", ShareTypeDisk, PermissionReadWrite, fs)
	fid1, _ := tr.AddOpenFile(&OpenFile{Path: `\a.txt`})
	fid2, _ := tr.AddOpenFile(&OpenFile{Path: `\b.txt`})

	tr.CloseAll(context.Background())

	require.Equal(t, 0, tr.OpenFileCount())
	_, ok := tr.GetOpenFile(fid1)
	require.False(t, ok)
	_, ok = tr.GetOpenFile(fid2)
	require.False(t, ok)
	require.Len(t, fs.closed, 2, "every owned file must be closed through the driver")
}
