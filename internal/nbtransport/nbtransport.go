// Package nbtransport implements the NetBIOS Session Service framing that
// carries SMB1 messages over TCP (§1: "NBT length prefix is the
// transport's concern"). Grounded on the teacher's
// internal/adapter/smb/framing.go ReadRequest/WriteNetBIOSFrame pair, cut
// down to the plain 4-byte type+length prefix with no SMB1-to-SMB2
// upgrade handling.
package nbtransport

import (
	"fmt"
	"io"
	"net"
)

// sessionMessage is the only NBSS packet type this transport emits or
// expects; session request/positive-response/keepalive types used by
// real NetBIOS-over-TCP name resolution are out of scope (§1, external
// collaborator).
const sessionMessage = 0x00

// ReadFrame reads one NetBIOS Session Service frame from conn: a 1-byte
// type plus 3-byte big-endian length, followed by that many payload
// bytes. maxSize bounds the payload length as a defense against a
// malicious or corrupt length prefix.
func ReadFrame(conn net.Conn, maxSize int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	msgLen := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	if msgLen > maxSize {
		return nil, fmt.Errorf("nbtransport: frame too large: %d bytes (max %d)", msgLen, maxSize)
	}
	payload := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame wraps payload in an NBSS session-message header and writes
// it whole. Callers serialize concurrent writers themselves.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	frame[0] = sessionMessage
	frame[1] = byte(len(payload) >> 16)
	frame[2] = byte(len(payload) >> 8)
	frame[3] = byte(len(payload))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}
