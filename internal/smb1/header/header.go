// Package header parses and encodes the fixed SMB1 message header that
// prefixes every request and response (§6).
//
// # Header Structure (32 bytes)
//
//	Offset  Size  Field      Description
//	0       4     Protocol   0xFF 'S' 'M' 'B'
//	4       1     Command    SMB_COM_* command byte
//	5       4     Status     DOS (class+code) or NT_STATUS, per Flags2
//	9       1     Flags      header flags
//	10      2     Flags2     header flags2 (unicode, NT status, DFS, ...)
//	12      12    Extra      PID-high (2) + signature (8) + reserved (2)
//	24      2     TID
//	26      2     PID
//	28      2     UID
//	30      2     MID
//
// The 32-byte header is followed by a 1-byte WordCount, that many 16-bit
// parameter words, a 2-byte ByteCount, and the byte block (§6). Framing
// (the 4-byte NBT length prefix) is the transport's concern, per §1.
package header

import (
	"encoding/binary"
	"errors"

	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// Size is the fixed length of the SMB1 header.
const Size = 32

var protocolSignature = [4]byte{0xFF, 'S', 'M', 'B'}

// ErrBadSignature is returned by Parse when the buffer does not begin with
// the SMB1 protocol signature (§7, "fatal conditions that close the
// session").
var ErrBadSignature = errors.New("smb1: malformed protocol signature")

// ErrTooShort is returned by Parse when the buffer is smaller than Size.
var ErrTooShort = errors.New("smb1: header shorter than 32 bytes")

// Header is the common SMB1 message header, used for both requests and
// responses.
type Header struct {
	Command   types.Command
	Status    uint32 // raw DOS or NT status word, interpreted via Flags2
	Flags     types.HeaderFlags
	Flags2    types.HeaderFlags2
	PIDHigh   uint16
	Signature [8]byte // legacy signing/SMB signature field; zero if unsigned
	TID       uint16
	PID       uint16
	UID       uint16
	MID       uint16
}

// IsResponse reports whether this header's Flags marks it as a response.
func (h *Header) IsResponse() bool { return h.Flags&types.FlagReply != 0 }

// Parse decodes a 32-byte SMB1 header from buf. buf must be at least Size
// bytes; the caller slices off the NBT length prefix before calling.
func Parse(buf []byte) (*Header, error) {
	if len(buf) < Size {
		return nil, ErrTooShort
	}
	if buf[0] != protocolSignature[0] || buf[1] != protocolSignature[1] ||
		buf[2] != protocolSignature[2] || buf[3] != protocolSignature[3] {
		return nil, ErrBadSignature
	}

	h := &Header{
		Command: types.Command(buf[4]),
		Status:  binary.LittleEndian.Uint32(buf[5:9]),
		Flags:   types.HeaderFlags(buf[9]),
		Flags2:  types.HeaderFlags2(binary.LittleEndian.Uint16(buf[10:12])),
		PIDHigh: binary.LittleEndian.Uint16(buf[12:14]),
	}
	copy(h.Signature[:], buf[14:22])
	h.TID = binary.LittleEndian.Uint16(buf[24:26])
	h.PID = binary.LittleEndian.Uint16(buf[26:28])
	h.UID = binary.LittleEndian.Uint16(buf[28:30])
	h.MID = binary.LittleEndian.Uint16(buf[30:32])
	return h, nil
}

// Encode writes the header into a fresh Size-byte buffer.
func (h *Header) Encode() []byte {
	buf := make([]byte, Size)
	copy(buf[0:4], protocolSignature[:])
	buf[4] = byte(h.Command)
	binary.LittleEndian.PutUint32(buf[5:9], h.Status)
	buf[9] = byte(h.Flags)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(h.Flags2))
	binary.LittleEndian.PutUint16(buf[12:14], h.PIDHigh)
	copy(buf[14:22], h.Signature[:])
	binary.LittleEndian.PutUint16(buf[24:26], h.TID)
	binary.LittleEndian.PutUint16(buf[26:28], h.PID)
	binary.LittleEndian.PutUint16(buf[28:30], h.UID)
	binary.LittleEndian.PutUint16(buf[30:32], h.MID)
	return buf
}

// NewResponse builds a response header correlated to req, with the given
// outcome's status word selected according to req's Flags2 form (§6/§7).
func NewResponse(req *Header, outcome types.Outcome) *Header {
	resp := &Header{
		Command: req.Command,
		Flags:   types.FlagReply | types.FlagCanonicalPathnames,
		Flags2:  req.Flags2,
		TID:     req.TID,
		PID:     req.PID,
		UID:     req.UID,
		MID:     req.MID,
	}
	resp.Status = EncodeStatus(outcome, req.Flags2)
	return resp
}

// EncodeStatus returns the raw 32-bit Status word to place in the header,
// choosing NT_STATUS or the packed DOS (class,code) pair per flags2's
// FLG2_LONGERRORCODE bit (§6, §7).
func EncodeStatus(outcome types.Outcome, flags2 types.HeaderFlags2) uint32 {
	if flags2.UsesNTStatus() {
		return uint32(outcome.NT)
	}
	return uint32(outcome.DOSClass) | uint32(outcome.DOSCode)<<16
}
