package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeStringRoundTrip(t *testing.T) {
	for _, unicode := range []bool{false, true} {
		encoded := EncodeString("report.txt", unicode)
		decoded, n := DecodeString(encoded, unicode)
		require.Equal(t, "report.txt", decoded)
		require.Equal(t, len(encoded), n)
	}
}

func TestDecodeStringTruncatedNeverPanics(t *testing.T) {
	_, n := DecodeString(nil, false)
	require.Equal(t, 0, n)
	_, n = DecodeString([]byte{'a'}, true) // odd length, no terminator
	require.Equal(t, 1, n)
}

func TestSMBDateTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, time.March, 17, 13, 42, 30, 0, time.Local)
	date, smbTime := SMBDateTime(in)
	out := FromSMBDateTime(date, smbTime)
	require.Equal(t, in.Year(), out.Year())
	require.Equal(t, in.Month(), out.Month())
	require.Equal(t, in.Day(), out.Day())
	require.Equal(t, in.Hour(), out.Hour())
	require.Equal(t, in.Minute(), out.Minute())
	// SMB time has 2-second resolution.
	require.InDelta(t, in.Second(), out.Second(), 1)
}

func TestNTTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, time.March, 17, 13, 42, 30, 0, time.UTC)
	out := FromNTTime(NTTime(in))
	require.True(t, in.Equal(out), "got %v want %v", out, in)

	require.True(t, FromNTTime(0).IsZero())
	require.Equal(t, uint64(0), NTTime(time.Time{}))
}

func TestUppercase83(t *testing.T) {
	require.Equal(t, [11]byte{'R', 'E', 'P', 'O', 'R', 'T', ' ', ' ', 'T', 'X', 'T'}, Uppercase83("report.txt"))
	require.Equal(t, [11]byte{'L', 'O', 'N', 'G', 'N', 'A', 'M', 'E', ' ', ' ', ' '}, Uppercase83("longname"))
}

func TestMatchesDOSWildcard(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.TXT", "REPORT.TXT", true},
		{"*.TXT", "REPORT.DOC", false},
		{"REP?RT.*", "REPORT.TXT", true},
		{"REP?RT.*", "REPXXT.TXT", false},
		{"*", "anything", true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, MatchesDOSWildcard(c.pattern, c.name), "%s vs %s", c.pattern, c.name)
	}
}

func TestNormalizeWildcard(t *testing.T) {
	require.Equal(t, "*.?", NormalizeWildcard(`<.>`))
	require.Equal(t, "a.b", NormalizeWildcard(`a"b`))
}

func TestBuilderFrameRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.PutWord(0x1234)
	b.PutDWordWords(0xAABBCCDD)
	b.PutBytes([]byte("hello"))
	frame := b.Frame()
	encoded := frame.Encode()

	parsed, err := ParseBody(nil, encoded)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x1234, 0xCCDD, 0xAABB}, parsed.Words)
	require.Equal(t, []byte("hello"), parsed.Bytes)
}

func TestParseBodyShortFrame(t *testing.T) {
	_, err := ParseBody(nil, nil)
	require.ErrorIs(t, err, ErrShortFrame)

	// WordCount claims 2 words but buffer only has 1 byte of them.
	_, err = ParseBody(nil, []byte{2, 0x00})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestWordsToBytes(t *testing.T) {
	got := WordsToBytes([]uint16{0x0102, 0x0304})
	require.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, got)
}
