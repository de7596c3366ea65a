package wire

import (
	"strings"
	"time"
	"unicode/utf16"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// DecodeString reads a null-terminated string from buf, in UTF-16LE if
// unicode is set (per Flags2) or OEM/ASCII otherwise. It returns the
// decoded string and the number of bytes consumed including the
// terminator; an unterminated string consumes the whole buffer.
func DecodeString(buf []byte, unicode bool) (string, int) {
	if unicode {
		var units []uint16
		i := 0
		for i+1 < len(buf) {
			u := uint16(buf[i]) | uint16(buf[i+1])<<8
			i += 2
			if u == 0 {
				return string(utf16.Decode(units)), i
			}
			units = append(units, u)
		}
		return string(utf16.Decode(units)), len(buf)
	}
	i := 0
	for i < len(buf) && buf[i] != 0 {
		i++
	}
	s := string(buf[:i])
	if i < len(buf) {
		i++ // consume terminator
	}
	return s, i
}

// EncodeString writes s as a null-terminated string, UTF-16LE if unicode
// is requested, OEM/ASCII otherwise. Unicode fields must be word-aligned
// relative to the start of the SMB1 header; callers that need the pad
// byte add it themselves via PadUnicode.
func EncodeString(s string, unicode bool) []byte {
	if !unicode {
		return append([]byte(s), 0)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2+2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return append(out, 0, 0)
}

// SMBDateTime packs a time.Time into the legacy 16-bit SMB date + 16-bit
// SMB time pair used by search results and QUERY/SET_INFO "standard"
// levels [MS-CIFS] 2.2.1.2.
func SMBDateTime(t time.Time) (date uint16, smbTime uint16) {
	if t.IsZero() {
		return 0, 0
	}
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	date = uint16(year<<9) | uint16(t.Month())<<5 | uint16(t.Day())
	smbTime = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, smbTime
}

// FromSMBDateTime reverses SMBDateTime, in the server's local time zone.
func FromSMBDateTime(date, smbTime uint16) time.Time {
	year := 1980 + int(date>>9)
	month := int((date >> 5) & 0x0F)
	day := int(date & 0x1F)
	hour := int(smbTime >> 11)
	minute := int((smbTime >> 5) & 0x3F)
	second := int(smbTime&0x1F) * 2
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
}

// ntEpochOffset is the number of 100ns intervals between the NT epoch
// (1601-01-01) and the Unix epoch (1970-01-01).
const ntEpochOffset = 116444736000000000

// NTTime packs a time.Time into a 64-bit NT FILETIME, used by the Basic
// SET_FILE_INFO/QUERY_FILE_INFO levels (§4.5).
func NTTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + ntEpochOffset
}

// FromNTTime reverses NTTime. A zero input yields the zero time, matching
// "don't change this timestamp" semantics in SET_FILE_INFO.
func FromNTTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v-ntEpochOffset)*100)
}

// Uppercase83 converts name into the space-padded, unterminated
// uppercase "8.3" form used in the legacy SEARCH per-entry layout (§4.4):
// 8 bytes of base name, 3 bytes of extension, truncated/padded as needed.
func Uppercase83(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)
	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

// MatchesDOSWildcard reports whether name matches a legacy DOS wildcard
// pattern using '?' (single char) and '*' (any run) semantics, case
// insensitively, per §4.4's wildcard-expansion rules.
func MatchesDOSWildcard(pattern, name string) bool {
	pattern = strings.ToUpper(pattern)
	name = strings.ToUpper(name)
	return dosMatch(pattern, name)
}

func dosMatch(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			// Collapse consecutive stars and try every suffix of name.
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if dosMatch(pattern, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		default:
			if len(name) == 0 || pattern[0] != name[0] {
				return false
			}
			pattern = pattern[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

// NormalizeWildcard converts a Unicode TRANS2 search pattern into legacy
// DOS wildcard form before driver dispatch (§4.4: "Unicode wildcards are
// normalized to legacy DOS wildcards"). '<' '>' '"' map to '*' '?' '.'.
func NormalizeWildcard(pattern string) string {
	r := strings.NewReplacer("<", "*", ">", "?", `"`, ".")
	return r.Replace(pattern)
}

// PathAttrs reports the standard attributes byte (masked to 0x3F) for use
// in legacy SEARCH entries, optionally forcing read-only on for read-only
// shares (§4.4).
func PathAttrs(attrs types.FileAttributes, shareReadOnly bool) byte {
	a := attrs & types.StandardAttributesMask
	if shareReadOnly {
		a |= types.AttrReadonly
	}
	return byte(a)
}
