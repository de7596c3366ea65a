package localdriver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func newTestFS(t *testing.T) *FS {
	root := t.TempDir()
	return New(root)
}

func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	h, _, err := fs.CreateFile(ctx, driver.CreateParams{Path: `\report.txt`})
	require.NoError(t, err)

	n, err := fs.WriteFile(ctx, h, []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, fs.FlushFile(ctx, h))
	require.NoError(t, fs.CloseFile(ctx, h))

	require.True(t, fs.FileExists(ctx, `\report.txt`))

	h2, info, err := fs.OpenFile(ctx, driver.CreateParams{Path: `\report.txt`})
	require.NoError(t, err)
	require.Equal(t, int64(5), info.Size)

	buf := make([]byte, 5)
	n, err = fs.ReadFile(ctx, h2, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.NoError(t, fs.CloseFile(ctx, h2))
}

func TestOpenFileMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, _, err := fs.OpenFile(ctx, driver.CreateParams{Path: `\nope.txt`})
	require.True(t, driver.Is(err, driver.VariantNotFound))
}

func TestResolveRejectsPathEscape(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	_, _, err := fs.OpenFile(ctx, driver.CreateParams{Path: `\..\..\..\etc\passwd`})
	require.True(t, driver.Is(err, driver.VariantBadName))
}

func TestCreateDirectoryAndDeleteDirectory(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	require.NoError(t, fs.CreateDirectory(ctx, `\sub`))
	require.True(t, fs.FileExists(ctx, `\sub`))

	_, _, err := fs.CreateFile(ctx, driver.CreateParams{Path: `\sub\inner.txt`})
	require.NoError(t, err)

	err = fs.DeleteDirectory(ctx, `\sub`)
	require.True(t, driver.Is(err, driver.VariantDirNotEmpty))

	require.NoError(t, fs.DeleteFile(ctx, `\sub\inner.txt`))
	require.NoError(t, fs.DeleteDirectory(ctx, `\sub`))
	require.False(t, fs.FileExists(ctx, `\sub`))
}

func TestRenameFileRejectsExistingTarget(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	fs.CreateFile(ctx, driver.CreateParams{Path: `\a.txt`})
	fs.CreateFile(ctx, driver.CreateParams{Path: `\b.txt`})

	err := fs.RenameFile(ctx, `\a.txt`, `\b.txt`)
	require.True(t, driver.Is(err, driver.VariantFileExists))

	require.NoError(t, fs.RenameFile(ctx, `\a.txt`, `\c.txt`))
	require.True(t, fs.FileExists(ctx, `\c.txt`))
	require.False(t, fs.FileExists(ctx, `\a.txt`))
}

func TestTruncateFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	h, _, _ := fs.CreateFile(ctx, driver.CreateParams{Path: `\a.txt`})
	fs.WriteFile(ctx, h, []byte("0123456789"), 0)
	require.NoError(t, fs.TruncateFile(ctx, h, 4))
	fs.CloseFile(ctx, h)

	info, err := fs.GetFileInformation(ctx, `\a.txt`)
	require.NoError(t, err)
	require.Equal(t, int64(4), info.Size)
}

func TestSetFileInformationTogglesReadOnly(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	fs.CreateFile(ctx, driver.CreateParams{Path: `\a.txt`})

	require.NoError(t, fs.SetFileInformation(ctx, `\a.txt`, driver.FileInfo{Attributes: types.AttrReadonly}, 0))

	full := filepath.Join(fs.Root, "a.txt")
	fi, err := os.Stat(full)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0444), fi.Mode().Perm())
}

func TestStartSearchNextEntriesCloseSearch(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	fs.CreateFile(ctx, driver.CreateParams{Path: `\a.txt`})
	fs.CreateFile(ctx, driver.CreateParams{Path: `\b.txt`})
	fs.CreateFile(ctx, driver.CreateParams{Path: `\c.doc`})

	cursor, err := fs.StartSearch(ctx, `\*.txt`, 0, 0)
	require.NoError(t, err)

	entries, more, err := fs.NextEntries(ctx, cursor, 10)
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, entries, 2)
	require.Equal(t, "a.txt", entries[0].Name)
	require.Equal(t, "b.txt", entries[1].Name)

	require.NoError(t, fs.CloseSearch(ctx, cursor))
	require.Empty(t, fs.cursors)
}

func TestStartSearchPaginatesWithMaxEntries(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)
	fs.CreateFile(ctx, driver.CreateParams{Path: `\a.txt`})
	fs.CreateFile(ctx, driver.CreateParams{Path: `\b.txt`})

	cursor, err := fs.StartSearch(ctx, `\*.txt`, 0, 0)
	require.NoError(t, err)

	first, more, err := fs.NextEntries(ctx, cursor, 1)
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, first, 1)

	second, more, err := fs.NextEntries(ctx, cursor, 1)
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, second, 1)
}
