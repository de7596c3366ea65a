// Package wire provides byte-level helpers shared by every SMB1 handler:
// parameter-word/byte-block framing, string encode/decode in both OEM and
// UTF-16LE forms, and the legacy 32-bit SMB date/time packing used by
// search results and QUERY/SET_INFO.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/types"
)

// ErrShortFrame is returned when a buffer doesn't contain a complete
// WordCount/params/ByteCount/bytes body.
var ErrShortFrame = errors.New("smb1: truncated parameter/byte block")

// Frame is a fully parsed SMB1 message: header plus the parameter-word
// array and byte block that follow it (§6).
type Frame struct {
	Header *header.Header
	Words  []uint16 // parameter words, WordCount entries
	Bytes  []byte   // the byte block (after the 2-byte ByteCount)

	// Raw is the undecoded body this Frame was parsed from: the
	// WordCount byte onward, i.e. 32 bytes (header.Size) after the start
	// of the enclosing SMB1 message. TRANS2/NT_TRANSACT ParameterOffset/
	// DataOffset fields are declared absolute from the header's first
	// byte (§10 "AndX offset fixup"), so callers needing those must index
	// into Raw at (declaredOffset - header.Size).
	Raw []byte
}

// ParseBody parses the WordCount/params/ByteCount/bytes portion that
// follows a 32-byte header, per §6's wire-format summary.
func ParseBody(h *header.Header, buf []byte) (*Frame, error) {
	if len(buf) < 1 {
		return nil, ErrShortFrame
	}
	wordCount := int(buf[0])
	need := 1 + wordCount*2
	if len(buf) < need+2 {
		return nil, ErrShortFrame
	}
	words := make([]uint16, wordCount)
	for i := 0; i < wordCount; i++ {
		words[i] = binary.LittleEndian.Uint16(buf[1+i*2 : 3+i*2])
	}
	byteCount := int(binary.LittleEndian.Uint16(buf[need : need+2]))
	if len(buf) < need+2+byteCount {
		return nil, ErrShortFrame
	}
	bytesBlock := buf[need+2 : need+2+byteCount]
	return &Frame{Header: h, Words: words, Bytes: bytesBlock, Raw: buf}, nil
}

// Encode serializes the frame's WordCount/params/ByteCount/bytes body
// (without the 32-byte header, which the caller prepends separately so
// AndX chaining can patch it in place).
func (f *Frame) Encode() []byte {
	out := make([]byte, 0, 1+len(f.Words)*2+2+len(f.Bytes))
	out = append(out, byte(len(f.Words)))
	for _, w := range f.Words {
		out = binary.LittleEndian.AppendUint16(out, w)
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(f.Bytes)))
	out = append(out, f.Bytes...)
	return out
}

// Builder accumulates parameter words and byte-block content for a
// response frame under construction.
type Builder struct {
	Words []uint16
	Bytes []byte
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) PutWord(v uint16)  { b.Words = append(b.Words, v) }
func (b *Builder) PutDWordWords(v uint32) {
	b.Words = append(b.Words, uint16(v&0xFFFF), uint16(v>>16))
}
func (b *Builder) PutBytes(p []byte) { b.Bytes = append(b.Bytes, p...) }
func (b *Builder) PutByte(v byte)    { b.Bytes = append(b.Bytes, v) }
func (b *Builder) PutUint16(v uint16) {
	b.Bytes = binary.LittleEndian.AppendUint16(b.Bytes, v)
}
func (b *Builder) PutUint32(v uint32) {
	b.Bytes = binary.LittleEndian.AppendUint32(b.Bytes, v)
}
func (b *Builder) PutUint64(v uint64) {
	b.Bytes = binary.LittleEndian.AppendUint64(b.Bytes, v)
}

func (b *Builder) Frame() *Frame {
	return &Frame{Words: b.Words, Bytes: b.Bytes}
}

// WordsToBytes flattens a parameter-word array into its raw little-endian
// byte form, for command bodies (e.g. NT_CREATE_ANDX) whose fields don't
// fall on word boundaries and are easier to parse as a flat byte buffer.
func WordsToBytes(words []uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], w)
	}
	return out
}

// EncodeStatusOutcome is a convenience used by handlers that build a
// response frame directly without going through header.NewResponse first.
func EncodeStatusOutcome(outcome types.Outcome, flags2 types.HeaderFlags2) uint32 {
	return header.EncodeStatus(outcome, flags2)
}
