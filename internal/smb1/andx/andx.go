// Package andx assembles AndX response chains: a sequence of command
// responses concatenated into a single reply, each carrying the next
// command's byte offset from the start of the SMB1 header (§4.6).
//
// There is no SMB2 analogue for this (SMB2 compounding uses a different,
// fixed-size wire shape), so this package is new rather than adapted;
// it reuses the wire.Builder/Frame primitives the rest of this module
// already builds responses with.
package andx

import (
	"encoding/binary"

	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// Link is one command's response within a chain: its own parameter words
// (NOT including the 2-word AndXCommand/AndXOffset prefix, which
// Assemble prepends) and byte block.
type Link struct {
	Command types.Command
	Frame   *wire.Frame
}

// Assemble concatenates links into one AndX response body following the
// primary header, patching each link's AndXCommand/AndXOffset pair to
// point at the start of the next link (absolute offset from the start of
// the 32-byte header), terminating the chain with AndXCommandNone on the
// last link (§4.6).
func Assemble(links []Link) []byte {
	if len(links) == 0 {
		return nil
	}

	// First pass: compute each link's encoded body (with the 2-word AndX
	// prefix reserved but not yet filled) and its offset from header start.
	bodies := make([][]byte, len(links))
	offsets := make([]int, len(links))
	cursor := header.Size
	for i, l := range links {
		words := make([]uint16, 0, len(l.Frame.Words)+2)
		words = append(words, 0, 0) // placeholder AndXCommand, AndXOffset
		words = append(words, l.Frame.Words...)
		f := &wire.Frame{Words: words, Bytes: l.Frame.Bytes}
		enc := f.Encode()
		offsets[i] = cursor
		bodies[i] = enc
		cursor += len(enc)
	}

	// Second pass: patch the AndX prefix of each link to reference the
	// next, and terminate the last.
	for i := range bodies {
		if i == len(bodies)-1 {
			bodies[i][1] = byte(types.AndXCommandNone)
			bodies[i][2] = 0
			binary.LittleEndian.PutUint16(bodies[i][3:5], 0)
			continue
		}
		bodies[i][1] = byte(links[i+1].Command)
		bodies[i][2] = 0 // reserved
		binary.LittleEndian.PutUint16(bodies[i][3:5], uint16(offsets[i+1]))
	}

	out := make([]byte, 0, cursor-header.Size)
	for _, b := range bodies {
		out = append(out, b...)
	}
	return out
}

// ShouldTerminate reports whether the chain must stop after a link
// (§4.6: "terminate chain on chained Close or non-success status").
func ShouldTerminate(cmd types.Command, outcome types.Outcome) bool {
	return cmd == types.ComClose || !outcome.IsSuccess()
}
