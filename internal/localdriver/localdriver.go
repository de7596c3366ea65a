// Package localdriver implements the driver.FileSystem contract (§6)
// against a real directory on the host filesystem, the way a minimal
// adapter binds a pluggable back-end to a concrete store (teacher's
// content/filesystem store wiring in cmd/dittofs/commands/start.go).
// It is example wiring for cmd/smb1d, not a hardened production driver:
// no quota, security descriptor, or stream support.
package localdriver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// FS roots every request path at Root, rejecting any resolved path that
// escapes it.
type FS struct {
	Root string

	mu      sync.Mutex
	cursors map[*dirCursor]struct{}
}

// New constructs an FS rooted at root. The directory must already exist.
func New(root string) *FS {
	return &FS{Root: root, cursors: make(map[*dirCursor]struct{})}
}

func (fs *FS) resolve(reqPath string) (string, error) {
	clean := strings.ReplaceAll(reqPath, `\`, string(filepath.Separator))
	clean = filepath.Clean("/" + clean)
	full := filepath.Join(fs.Root, clean)
	if !strings.HasPrefix(full, filepath.Clean(fs.Root)) {
		return "", driver.New(driver.VariantBadName, nil)
	}
	return full, nil
}

func wrapOSErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return driver.New(driver.VariantNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return driver.New(driver.VariantAccessDenied, err)
	case errors.Is(err, os.ErrExist):
		return driver.New(driver.VariantFileExists, err)
	default:
		var pe *os.PathError
		if errors.As(err, &pe) {
			return driver.New(driver.VariantNotFound, err)
		}
		return driver.New(driver.VariantNotImplemented, err)
	}
}

func toFileInfo(name string, fi os.FileInfo) driver.FileInfo {
	attrs := types.AttrNormal
	if fi.IsDir() {
		attrs = types.AttrDirectory
	}
	return driver.FileInfo{
		Name:           name,
		IsDirectory:    fi.IsDir(),
		Size:           fi.Size(),
		AllocationSize: fi.Size(),
		Attributes:     attrs,
		CreationTime:   fi.ModTime(),
		LastAccessTime: fi.ModTime(),
		LastWriteTime:  fi.ModTime(),
		ChangeTime:     fi.ModTime(),
	}
}

func (fs *FS) FileExists(ctx context.Context, path string) bool {
	full, err := fs.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// handle is the driver.File value this FS hands back: an *os.File for a
// regular file, nil for a directory (directory "handles" are identified
// purely by path via NextEntries/StartSearch).
type handle struct {
	f    *os.File
	path string
}

func (fs *FS) OpenFile(ctx context.Context, params driver.CreateParams) (driver.File, driver.FileInfo, error) {
	full, err := fs.resolve(params.Path)
	if err != nil {
		return nil, driver.FileInfo{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, driver.FileInfo{}, wrapOSErr(err)
	}
	if fi.IsDir() || params.Directory {
		return &handle{path: full}, toFileInfo(filepath.Base(full), fi), nil
	}
	f, err := os.OpenFile(full, os.O_RDWR, 0)
	if err != nil {
		return nil, driver.FileInfo{}, wrapOSErr(err)
	}
	return &handle{f: f, path: full}, toFileInfo(filepath.Base(full), fi), nil
}

func (fs *FS) CreateFile(ctx context.Context, params driver.CreateParams) (driver.File, driver.FileInfo, error) {
	full, err := fs.resolve(params.Path)
	if err != nil {
		return nil, driver.FileInfo{}, err
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, driver.FileInfo{}, wrapOSErr(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, driver.FileInfo{}, wrapOSErr(err)
	}
	return &handle{f: f, path: full}, toFileInfo(filepath.Base(full), fi), nil
}

func (fs *FS) CreateDirectory(ctx context.Context, path string) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	return wrapOSErr(os.Mkdir(full, 0755))
}

func (fs *FS) CloseFile(ctx context.Context, f driver.File) error {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return nil
	}
	return wrapOSErr(h.f.Close())
}

func (fs *FS) ReadFile(ctx context.Context, f driver.File, buf []byte, offset int64) (int, error) {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return 0, driver.New(driver.VariantNotImplemented, nil)
	}
	n, err := h.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, wrapOSErr(err)
	}
	return n, nil
}

func (fs *FS) WriteFile(ctx context.Context, f driver.File, buf []byte, offset int64) (int, error) {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return 0, driver.New(driver.VariantNotImplemented, nil)
	}
	n, err := h.f.WriteAt(buf, offset)
	if err != nil {
		return n, wrapOSErr(err)
	}
	return n, nil
}

func (fs *FS) TruncateFile(ctx context.Context, f driver.File, size int64) error {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return driver.New(driver.VariantNotImplemented, nil)
	}
	return wrapOSErr(h.f.Truncate(size))
}

func (fs *FS) FlushFile(ctx context.Context, f driver.File) error {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return nil
	}
	return wrapOSErr(h.f.Sync())
}

func (fs *FS) SeekFile(ctx context.Context, f driver.File, offset int64, whence int) (int64, error) {
	h, ok := f.(*handle)
	if !ok || h.f == nil {
		return 0, driver.New(driver.VariantNotImplemented, nil)
	}
	n, err := h.f.Seek(offset, whence)
	return n, wrapOSErr(err)
}

func (fs *FS) DeleteFile(ctx context.Context, path string) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	return wrapOSErr(os.Remove(full))
}

func (fs *FS) DeleteDirectory(ctx context.Context, path string) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	entries, rerr := os.ReadDir(full)
	if rerr == nil && len(entries) > 0 {
		return driver.New(driver.VariantDirNotEmpty, nil)
	}
	return wrapOSErr(os.Remove(full))
}

func (fs *FS) RenameFile(ctx context.Context, from, to string) error {
	fullFrom, err := fs.resolve(from)
	if err != nil {
		return err
	}
	fullTo, err := fs.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(fullTo); err == nil {
		return driver.New(driver.VariantFileExists, nil)
	}
	return wrapOSErr(os.Rename(fullFrom, fullTo))
}

func (fs *FS) GetFileInformation(ctx context.Context, path string) (*driver.FileInfo, error) {
	full, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, wrapOSErr(err)
	}
	info := toFileInfo(filepath.Base(full), fi)
	return &info, nil
}

func (fs *FS) SetFileInformation(ctx context.Context, path string, info driver.FileInfo, flags uint32) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if info.Attributes&types.AttrReadonly != 0 {
		return wrapOSErr(os.Chmod(full, 0444))
	}
	return wrapOSErr(os.Chmod(full, 0644))
}

// dirCursor is the SearchCursor a StartSearch call hands back: a sorted,
// already-fetched entry list plus a read offset, matching the driver
// contract's "threaded back into NextEntries" shape (§4.4).
type dirCursor struct {
	dir     string
	entries []os.DirEntry
	pos     int
}

func (fs *FS) StartSearch(ctx context.Context, pattern string, attrs types.FileAttributes, flags uint32) (driver.SearchCursor, error) {
	clean := strings.ReplaceAll(pattern, `\`, string(filepath.Separator))
	dir := filepath.Dir(clean)
	full, err := fs.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, wrapOSErr(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	base := filepath.Base(clean)
	matched := entries[:0]
	for _, e := range entries {
		ok, _ := filepath.Match(base, e.Name())
		if ok || base == "*.*" || base == "*" {
			matched = append(matched, e)
		}
	}
	cur := &dirCursor{dir: full, entries: matched}
	fs.mu.Lock()
	fs.cursors[cur] = struct{}{}
	fs.mu.Unlock()
	return cur, nil
}

func (fs *FS) NextEntries(ctx context.Context, cursor driver.SearchCursor, maxEntries int) ([]driver.SearchEntry, bool, error) {
	cur, ok := cursor.(*dirCursor)
	if !ok {
		return nil, false, driver.New(driver.VariantNotImplemented, nil)
	}
	var out []driver.SearchEntry
	for cur.pos < len(cur.entries) && len(out) < maxEntries {
		de := cur.entries[cur.pos]
		cur.pos++
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, driver.SearchEntry{Name: de.Name(), Info: toFileInfo(de.Name(), fi)})
	}
	return out, cur.pos < len(cur.entries), nil
}

func (fs *FS) CloseSearch(ctx context.Context, cursor driver.SearchCursor) error {
	cur, ok := cursor.(*dirCursor)
	if !ok {
		return nil
	}
	fs.mu.Lock()
	delete(fs.cursors, cur)
	fs.mu.Unlock()
	return nil
}
