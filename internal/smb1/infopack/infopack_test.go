package infopack

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/search"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

func TestPackQueryFsInfoAllocation(t *testing.T) {
	v := VolumeInfo{SectorsPerUnit: 8, TotalUnits: 1000, FreeUnits: 500, BytesPerSector: 512}
	buf, err := PackQueryFsInfo(LevelInfoAllocation, v, false)
	require.NoError(t, err)
	require.Len(t, buf, 18)
	require.Equal(t, uint32(8), binary.LittleEndian.Uint32(buf[4:8]))
	require.Equal(t, uint32(1000), binary.LittleEndian.Uint32(buf[8:12]))
	require.Equal(t, uint32(500), binary.LittleEndian.Uint32(buf[12:16]))
	require.Equal(t, uint16(512), binary.LittleEndian.Uint16(buf[16:18]))
}

func TestPackQueryFsInfoFullSize(t *testing.T) {
	v := VolumeInfo{SectorsPerUnit: 8, TotalUnits: 1000, FreeUnits: 500, BytesPerSector: 512}
	buf, err := PackQueryFsInfo(LevelQueryFsFullSize, v, false)
	require.NoError(t, err)
	require.Len(t, buf, 32)
	require.Equal(t, uint64(1000), binary.LittleEndian.Uint64(buf[0:8]))
}

func TestPackQueryFsInfoUnsupportedLevel(t *testing.T) {
	_, err := PackQueryFsInfo(0xDEAD, VolumeInfo{}, false)
	require.ErrorIs(t, err, ErrUnsupportedLevel)
}

func TestPackQueryInfoStandardMasksAttributes(t *testing.T) {
	info := driver.FileInfo{
		Size:           1024,
		AllocationSize: 2048,
		Attributes:     types.AttrDirectory | types.FileAttributes(0xFF00),
	}
	buf, err := PackQueryInfo(LevelInfoStandard, info, false)
	require.NoError(t, err)
	require.Len(t, buf, 22)
	require.Equal(t, uint32(1024), binary.LittleEndian.Uint32(buf[12:16]))
	require.Equal(t, uint32(2048), binary.LittleEndian.Uint32(buf[16:20]))
	require.Equal(t, uint16(types.AttrDirectory), binary.LittleEndian.Uint16(buf[20:22]))
}

func TestPackQueryInfoFileStandardDirectoryFlag(t *testing.T) {
	buf, err := PackQueryInfo(LevelQueryFileStandard, driver.FileInfo{IsDirectory: true}, false)
	require.NoError(t, err)
	require.Equal(t, byte(1), buf[21])

	buf, err = PackQueryInfo(LevelQueryFileStandard, driver.FileInfo{IsDirectory: false}, false)
	require.NoError(t, err)
	require.Equal(t, byte(0), buf[21])
}

func TestPackQueryInfoFileAllConcatenatesSubLevels(t *testing.T) {
	info := driver.FileInfo{Name: "a.txt", Size: 10}
	buf, err := PackQueryInfo(LevelQueryFileAll, info, false)
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}

func TestPackQueryInfoUnsupportedLevel(t *testing.T) {
	_, err := PackQueryInfo(0xDEAD, driver.FileInfo{}, false)
	require.ErrorIs(t, err, ErrUnsupportedLevel)
}

func TestUnpackSetInfoBasic(t *testing.T) {
	body := make([]byte, 36)
	binary.LittleEndian.PutUint32(body[32:36], uint32(types.AttrReadonly))
	res, err := UnpackSetInfo(LevelSetFileBasic, body, false)
	require.NoError(t, err)
	require.NotNil(t, res.Basic)
	require.Equal(t, types.AttrReadonly, res.Basic.Attributes)
}

func TestUnpackSetInfoBasicTooShort(t *testing.T) {
	_, err := UnpackSetInfo(LevelSetFileBasic, make([]byte, 10), false)
	require.Error(t, err)
}

func TestUnpackSetInfoDisposition(t *testing.T) {
	res, err := UnpackSetInfo(LevelSetFileDisposition, []byte{1}, false)
	require.NoError(t, err)
	require.NotNil(t, res.Disposition)
	require.True(t, *res.Disposition)
}

func TestUnpackSetInfoEndOfFile(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, 4096)
	res, err := UnpackSetInfo(LevelSetFileEndOfFile, body, false)
	require.NoError(t, err)
	require.NotNil(t, res.Truncate)
	require.Equal(t, int64(4096), *res.Truncate)
}

func TestUnpackSetInfoRename(t *testing.T) {
	body := []byte("newname.txt\x00")
	res, err := UnpackSetInfo(LevelSetFileRename, body, false)
	require.NoError(t, err)
	require.Equal(t, "newname.txt", res.Rename)
}

func TestUnpackSetInfoUnsupportedLevel(t *testing.T) {
	_, err := UnpackSetInfo(0xDEAD, nil, false)
	require.ErrorIs(t, err, ErrUnsupportedLevel)
}

func TestPackSearchEntryLayout(t *testing.T) {
	ctx := &search.Context{ID: 1, Pattern: "*.TXT"}
	info := driver.FileInfo{Size: 512, LastWriteTime: time.Date(2024, time.March, 17, 12, 0, 0, 0, time.Local)}
	buf := PackSearchEntry(ctx, search.EntryIDStart, "report.txt", info)
	require.Len(t, buf, SearchEntrySize)
	require.Equal(t, uint32(512), binary.LittleEndian.Uint32(buf[29:33]))
	require.Equal(t, []byte{'R', 'E', 'P', 'O', 'R', 'T', ' ', ' ', 'T', 'X'}, buf[33:43])
}

func TestHasWildcard(t *testing.T) {
	require.True(t, HasWildcard("*.txt"))
	require.False(t, HasWildcard("report.txt"))
}
