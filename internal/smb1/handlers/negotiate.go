package handlers

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// supportedDialect is the only dialect this engine negotiates; everything
// else in the client's offered list is ignored (§1 Non-goals: no SMB2/3).
const supportedDialect = "NT LM 0.12"

// Negotiate capability bits this engine advertises (a small, fixed subset
// of [MS-CIFS] 2.2.4.5.2.1 relevant to the rest of this engine).
const (
	capUnicode      uint32 = 0x00000004
	capLargeFiles   uint32 = 0x00000008
	capNTSMBs       uint32 = 0x00000010
	capRPCRemoteAPI uint32 = 0x00000020
	capNTStatus     uint32 = 0x00000040
	capLevelII      uint32 = 0x00000080
	capLockAndRead  uint32 = 0x00000100
	capNTFind       uint32 = 0x00200000
)

// decodeDialects splits a NEGOTIATE request's byte block into the
// client's offered dialect strings, each framed as a 0x02 marker followed
// by a null-terminated ASCII string (§6).
func decodeDialects(body []byte) []string {
	var out []string
	for len(body) > 0 {
		if body[0] != 0x02 {
			break
		}
		body = body[1:]
		end := 0
		for end < len(body) && body[end] != 0 {
			end++
		}
		out = append(out, string(body[:end]))
		if end < len(body) {
			end++
		}
		body = body[end:]
	}
	return out
}

func handleNegotiate(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	dialects := decodeDialects(req.Frame.Bytes)
	dialectIndex := -1
	for i, d := range dialects {
		if d == supportedDialect {
			dialectIndex = i
			break
		}
	}
	if dialectIndex == -1 {
		// §7: no acceptable dialect; DialectIndex=0xFFFF signals refusal.
		b := wire.NewBuilder()
		b.PutWord(0xFFFF)
		return okResult(b)
	}

	b := wire.NewBuilder()
	buf := make([]byte, 34)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(dialectIndex))
	buf[2] = 0x03 // SecurityMode: user-level security, encrypted passwords
	binary.LittleEndian.PutUint16(buf[3:5], 50)    // MaxMpxCount
	binary.LittleEndian.PutUint16(buf[5:7], uint16(e.cfg.MaxVirtualCircuits))
	binary.LittleEndian.PutUint32(buf[7:11], 1<<20) // MaxBufferSize
	binary.LittleEndian.PutUint32(buf[11:15], 1<<26) // MaxRawSize
	binary.LittleEndian.PutUint32(buf[15:19], 0)      // SessionKey
	caps := capUnicode | capLargeFiles | capNTSMBs | capRPCRemoteAPI | capNTStatus | capLevelII | capLockAndRead | capNTFind
	binary.LittleEndian.PutUint32(buf[19:23], caps)
	binary.LittleEndian.PutUint64(buf[23:31], wire.NTTime(e.StartTime))
	binary.LittleEndian.PutUint16(buf[31:33], 0) // ServerTimeZone, UTC
	buf[33] = 0                                  // ChallengeLength: no extended security challenge

	for i := 0; i+1 < len(buf); i += 2 {
		b.PutWord(binary.LittleEndian.Uint16(buf[i : i+2]))
	}

	b.PutBytes(e.ServerGUID[:])
	b.PutBytes([]byte(strings.ToUpper("WORKGROUP") + "\x00"))

	return okResult(b)
}
