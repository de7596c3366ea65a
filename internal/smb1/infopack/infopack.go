// Package infopack builds the wire-level information blocks for
// TRANS2_QUERY_FS_INFORMATION, TRANS2_QUERY_PATH/FILE_INFORMATION,
// TRANS2_SET_PATH/FILE_INFORMATION, and the legacy SMB_COM_SEARCH
// per-entry layout (§4.5, §4.4). Grounded on the teacher's QUERY_INFO /
// SET_INFO encoders (internal/protocol/smb/v2/handlers/query_info.go,
// set_info.go), translated from SMB2's FileInfoClass levels to SMB1's
// legacy TRANS2 information levels.
package infopack

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/search"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// QUERY_FS_INFORMATION levels (§4.5).
const (
	LevelInfoAllocation   uint16 = 1
	LevelInfoVolume       uint16 = 2
	LevelQueryFsVolume    uint16 = 0x102
	LevelQueryFsSize      uint16 = 0x103
	LevelQueryFsDevice    uint16 = 0x104
	LevelQueryFsAttribute uint16 = 0x105
	LevelQueryFsFullSize  uint16 = 0x3EF
)

// QUERY_PATH/FILE_INFORMATION levels (§4.5).
const (
	LevelInfoStandard      uint16 = 1
	LevelInfoQueryEASize   uint16 = 2
	LevelQueryFileBasic    uint16 = 0x101
	LevelQueryFileStandard uint16 = 0x102
	LevelQueryFileEA       uint16 = 0x103
	LevelQueryFileName     uint16 = 0x104
	LevelQueryFileAll      uint16 = 0x107
)

// SET_PATH/FILE_INFORMATION levels (§4.5).
const (
	LevelSetFileBasic       uint16 = 0x101
	LevelSetFileDisposition uint16 = 0x102
	LevelSetFileAllocation  uint16 = 0x103
	LevelSetFileEndOfFile   uint16 = 0x104
	LevelSetFileRename      uint16 = 0x0A
)

// ErrUnsupportedLevel is returned for an information level this server
// does not implement (§4.5: translated to NTNotImplemented/ErrNotSupported).
var ErrUnsupportedLevel = errors.New("smb1: unsupported information level")

// VolumeInfo carries the static or driver-reported facts QUERY_FS_INFO
// needs beyond what driver.FileSystem's capability interfaces expose.
type VolumeInfo struct {
	Label          string
	SerialNumber   uint32
	BytesPerSector uint32
	SectorsPerUnit uint32
	TotalUnits     uint64
	FreeUnits      uint64
	FSName         string // e.g. "NTFS" or "FAT"
	StreamsEnabled bool
}

// PackQueryFsInfo builds the body for one QUERY_FS_INFORMATION level.
func PackQueryFsInfo(level uint16, v VolumeInfo, unicode bool) ([]byte, error) {
	switch level {
	case LevelInfoAllocation:
		buf := make([]byte, 18)
		binary.LittleEndian.PutUint32(buf[0:4], 0) // idFileSystem
		binary.LittleEndian.PutUint32(buf[4:8], v.SectorsPerUnit)
		binary.LittleEndian.PutUint32(buf[8:12], uint32(v.TotalUnits))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(v.FreeUnits))
		binary.LittleEndian.PutUint16(buf[16:18], uint16(v.BytesPerSector))
		return buf, nil

	case LevelInfoVolume:
		name := wire.EncodeString(v.Label, unicode)
		buf := make([]byte, 5+len(name))
		binary.LittleEndian.PutUint32(buf[0:4], v.SerialNumber)
		buf[4] = byte(len([]rune(v.Label)))
		copy(buf[5:], name)
		return buf, nil

	case LevelQueryFsVolume:
		name := wire.EncodeString(v.Label, unicode)
		buf := make([]byte, 18+len(name))
		binary.LittleEndian.PutUint32(buf[8:12], v.SerialNumber)
		binary.LittleEndian.PutUint32(buf[12:16], uint32(len(name)))
		buf[16] = 0 // SupportsObjects
		buf[17] = 0 // Reserved
		copy(buf[18:], name)
		return buf, nil

	case LevelQueryFsSize:
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint64(buf[0:8], v.TotalUnits)
		binary.LittleEndian.PutUint64(buf[8:16], v.FreeUnits)
		binary.LittleEndian.PutUint32(buf[16:20], v.SectorsPerUnit)
		binary.LittleEndian.PutUint32(buf[20:24], v.BytesPerSector)
		return buf, nil

	case LevelQueryFsFullSize:
		buf := make([]byte, 32)
		binary.LittleEndian.PutUint64(buf[0:8], v.TotalUnits)
		binary.LittleEndian.PutUint64(buf[8:16], v.FreeUnits)
		binary.LittleEndian.PutUint64(buf[16:24], v.FreeUnits)
		binary.LittleEndian.PutUint32(buf[24:28], v.SectorsPerUnit)
		binary.LittleEndian.PutUint32(buf[28:32], v.BytesPerSector)
		return buf, nil

	case LevelQueryFsDevice:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], 0x00000007) // FILE_DEVICE_DISK
		binary.LittleEndian.PutUint32(buf[4:8], 0)
		return buf, nil

	case LevelQueryFsAttribute:
		fsName := wire.EncodeString(fsNameOr(v.FSName), unicode)
		var caps uint32 = 0x00000003 // CASE_SENSITIVE_SEARCH | CASE_PRESERVED_NAMES
		if v.StreamsEnabled {
			caps |= 0x00040000 // FILE_NAMED_STREAMS
		}
		buf := make([]byte, 12+len(fsName))
		binary.LittleEndian.PutUint32(buf[0:4], caps)
		binary.LittleEndian.PutUint32(buf[4:8], 255) // MaximumComponentNameLength
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(fsName)))
		copy(buf[12:], fsName)
		return buf, nil

	default:
		return nil, ErrUnsupportedLevel
	}
}

func fsNameOr(name string) string {
	if name == "" {
		return "NTFS"
	}
	return name
}

// PackQueryInfo builds the body for one QUERY_PATH_INFO / QUERY_FILE_INFO
// level from a driver.FileInfo (§4.5).
func PackQueryInfo(level uint16, info driver.FileInfo, unicode bool) ([]byte, error) {
	switch level {
	case LevelInfoStandard:
		buf := make([]byte, 22)
		putSMBDateTime(buf[0:4], info.CreationTime)
		putSMBDateTime(buf[4:8], info.LastAccessTime)
		putSMBDateTime(buf[8:12], info.LastWriteTime)
		binary.LittleEndian.PutUint32(buf[12:16], uint32(info.Size))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(info.AllocationSize))
		binary.LittleEndian.PutUint16(buf[20:22], uint16(info.Attributes)&uint16(types.StandardAttributesMask))
		return buf, nil

	case LevelInfoQueryEASize:
		buf := make([]byte, 26)
		putSMBDateTime(buf[0:4], info.CreationTime)
		putSMBDateTime(buf[4:8], info.LastAccessTime)
		putSMBDateTime(buf[8:12], info.LastWriteTime)
		binary.LittleEndian.PutUint32(buf[12:16], uint32(info.Size))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(info.AllocationSize))
		binary.LittleEndian.PutUint16(buf[20:22], uint16(info.Attributes)&uint16(types.StandardAttributesMask))
		binary.LittleEndian.PutUint32(buf[22:26], 0) // EaSize
		return buf, nil

	case LevelQueryFileBasic:
		buf := make([]byte, 40)
		binary.LittleEndian.PutUint64(buf[0:8], wire.NTTime(info.CreationTime))
		binary.LittleEndian.PutUint64(buf[8:16], wire.NTTime(info.LastAccessTime))
		binary.LittleEndian.PutUint64(buf[16:24], wire.NTTime(info.LastWriteTime))
		binary.LittleEndian.PutUint64(buf[24:32], wire.NTTime(info.ChangeTime))
		binary.LittleEndian.PutUint32(buf[32:36], uint32(info.Attributes))
		return buf, nil

	case LevelQueryFileStandard:
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(info.AllocationSize))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(info.Size))
		binary.LittleEndian.PutUint32(buf[16:20], 1) // NumberOfLinks
		if info.IsDirectory {
			buf[21] = 1
		}
		return buf, nil

	case LevelQueryFileEA:
		return make([]byte, 4), nil // EaSize = 0

	case LevelQueryFileName:
		name := wire.EncodeString(info.Name, unicode)
		buf := make([]byte, 4+len(name))
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(name)))
		copy(buf[4:], name)
		return buf, nil

	case LevelQueryFileAll:
		basic, _ := PackQueryInfo(LevelQueryFileBasic, info, unicode)
		std, _ := PackQueryInfo(LevelQueryFileStandard, info, unicode)
		name, _ := PackQueryInfo(LevelQueryFileName, info, unicode)
		buf := make([]byte, 0, len(basic)+len(std)+24+len(name))
		buf = append(buf, basic...)
		buf = append(buf, std...)
		buf = append(buf, make([]byte, 4)...)  // EaSize
		buf = append(buf, 0)                   // DeletePending
		buf = append(buf, 0)                   // Directory
		buf = append(buf, make([]byte, 2)...)  // alignment
		buf = append(buf, make([]byte, 16)...) // IndexNumber/CurrentByteOffset placeholders
		buf = append(buf, name...)
		return buf, nil

	default:
		return nil, ErrUnsupportedLevel
	}
}

// SetInfoResult is what a SET_PATH/FILE_INFO level decoder extracts from
// the request body, to be applied through driver.FileSystem.
type SetInfoResult struct {
	Basic       *driver.FileInfo // non-nil: CreationTime/LastAccessTime/LastWriteTime/Attributes are meaningful
	Truncate    *int64           // non-nil: new end-of-file
	Rename      string           // non-empty: new path
	Disposition *bool            // non-nil: delete-on-close flag
}

// UnpackSetInfo parses a SET_PATH_INFO / SET_FILE_INFO request body for
// the given level (§4.5).
func UnpackSetInfo(level uint16, body []byte, unicode bool) (SetInfoResult, error) {
	switch level {
	case LevelSetFileBasic:
		if len(body) < 36 {
			return SetInfoResult{}, errors.New("smb1: SET_FILE_BASIC_INFO body too short")
		}
		info := &driver.FileInfo{
			CreationTime:   wire.FromNTTime(binary.LittleEndian.Uint64(body[0:8])),
			LastAccessTime: wire.FromNTTime(binary.LittleEndian.Uint64(body[8:16])),
			LastWriteTime:  wire.FromNTTime(binary.LittleEndian.Uint64(body[16:24])),
			ChangeTime:     wire.FromNTTime(binary.LittleEndian.Uint64(body[24:32])),
			Attributes:     types.FileAttributes(binary.LittleEndian.Uint32(body[32:36])),
		}
		return SetInfoResult{Basic: info}, nil

	case LevelSetFileDisposition:
		if len(body) < 1 {
			return SetInfoResult{}, errors.New("smb1: SET_FILE_DISPOSITION_INFO body too short")
		}
		v := body[0] != 0
		return SetInfoResult{Disposition: &v}, nil

	case LevelSetFileAllocation, LevelSetFileEndOfFile:
		if len(body) < 8 {
			return SetInfoResult{}, errors.New("smb1: SET_FILE_*_INFO body too short")
		}
		size := int64(binary.LittleEndian.Uint64(body[0:8]))
		return SetInfoResult{Truncate: &size}, nil

	case LevelSetFileRename:
		name, _ := wire.DecodeString(body, unicode)
		return SetInfoResult{Rename: name}, nil

	default:
		return SetInfoResult{}, ErrUnsupportedLevel
	}
}

func putSMBDateTime(buf []byte, t time.Time) {
	date, smbTime := wire.SMBDateTime(t)
	binary.LittleEndian.PutUint16(buf[0:2], date)
	binary.LittleEndian.PutUint16(buf[2:4], smbTime)
}

// SearchEntrySize is the fixed per-entry length of a legacy SMB_COM_SEARCH
// result record (§3 "Resume Key", §4.4).
const SearchEntrySize = 43

// PackSearchEntry builds one 43-byte legacy SEARCH result entry: a
// 24-byte resume key, 1 attribute byte, 4-byte SMB date/time, 4-byte
// size, and a 10-byte uppercase 8.3 name (§4.4).
func PackSearchEntry(ctx *search.Context, entryID uint16, name string, info driver.FileInfo) []byte {
	buf := make([]byte, SearchEntrySize)
	copy(buf[0:24], search.EncodeResumeKey(ctx.Pattern, ctx.ID, entryID))
	buf[24] = wire.PathAttrs(info.Attributes, false)
	date, smbTime := wire.SMBDateTime(info.LastWriteTime)
	binary.LittleEndian.PutUint16(buf[25:27], smbTime)
	binary.LittleEndian.PutUint16(buf[27:29], date)
	binary.LittleEndian.PutUint32(buf[29:33], uint32(info.Size))
	packed := wire.Uppercase83(name)
	copy(buf[33:43], packed[:10])
	return buf
}

// HasWildcard re-exports a small string helper used when deciding whether
// a legacy SET/QUERY_PATH_INFO path argument is actually a search
// pattern (§4.4).
func HasWildcard(s string) bool { return strings.ContainsAny(s, "*?") }
