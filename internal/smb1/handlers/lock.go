package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/oplock"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// handleLockByteRange implements the legacy SMB_COM_LOCK_BYTE_RANGE. A
// FileSystem without LockManager support grants every lock vacuously
// (§4.9: "locks succeed vacuously absent a LockManager").
func handleLockByteRange(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 5 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	count := uint64(w[1]) | uint64(w[2])<<16
	offset := uint64(w[3]) | uint64(w[4])<<16
	pid := uint32(req.header().PID)

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	if lm, ok := req.Tree.FileSystem.(driver.LockManager); ok {
		if err := lm.Lock(ctx, of.File, pid, offset, count); err != nil {
			return errResult(driver.ToOutcome(err))
		}
	}
	of.AddLock(tree.Lock{PID: pid, Offset: offset, Length: count})
	return okResult(wire.NewBuilder())
}

// handleUnlockByteRange implements the legacy SMB_COM_UNLOCK_BYTE_RANGE.
// Unlocking a range nobody holds fails with NTRangeNotLocked (§4.9).
func handleUnlockByteRange(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 5 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	count := uint64(w[1]) | uint64(w[2])<<16
	offset := uint64(w[3]) | uint64(w[4])<<16
	pid := uint32(req.header().PID)

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}
	lm, hasLM := req.Tree.FileSystem.(driver.LockManager)
	if !hasLM || !of.RemoveLock(pid, offset, count) {
		return errResult(types.ErrRangeNotLocked)
	}
	if err := lm.Unlock(ctx, of.File, pid, offset, count); err != nil {
		return errResult(driver.ToOutcome(err))
	}
	return okResult(wire.NewBuilder())
}

// lockRange is one entry of a LOCKING_ANDX lock/unlock list (§4.9).
type lockRange struct {
	PID    uint32
	Offset uint64
	Length uint64
}

func decodeLockRanges(b []byte, largeFiles bool, n int) ([]lockRange, int) {
	entrySize := 10
	if largeFiles {
		entrySize = 20
	}
	var out []lockRange
	for i := 0; i < n; i++ {
		start := i * entrySize
		if start+entrySize > len(b) {
			break
		}
		e := b[start : start+entrySize]
		pid := uint32(e[0]) | uint32(e[1])<<8
		var offset, length uint64
		if largeFiles {
			offset = le32(e[4:8])<<32 | le32(e[8:12])
			length = le32(e[12:16])<<32 | le32(e[16:20])
		} else {
			offset = le32(e[2:6])
			length = le32(e[6:10])
		}
		out = append(out, lockRange{PID: pid, Offset: offset, Length: length})
	}
	return out, n * entrySize
}

func le32(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24
}

// handleLockingAndX implements SMB_COM_LOCKING_ANDX: ordinary byte-range
// lock/unlock batches, and the oplock-break acknowledgment path when
// LockType carries the oplock-break-ack bit (§4.7 item 6, §4.9).
func handleLockingAndX(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 6 {
		return errResult(types.ErrInvalidParameter)
	}
	fid := w[0]
	lockType := types.LockingAndXFlags(w[1])
	numUnlocks := int(w[4])
	numLocks := int(w[5])

	of, ok := req.Tree.GetOpenFile(fid)
	if !ok {
		return errResult(types.ErrInvalidHandle)
	}

	if lockType&types.LockingAndXFlagOplockBreak != 0 {
		ackLevel := oplock.LevelNone
		if lockType&types.LockingAndXFlagLevelIIOplock != 0 {
			ackLevel = oplock.LevelII
		}
		if of.OplockKey != "" && of.BreakID != "" {
			path := of.OplockKey
			e.Oplocks.Acknowledge(path, of.BreakID, ackLevel)
			e.Metrics.RecordOplockBreak("acknowledged")
			of.BreakID = ""
			if ackLevel == oplock.LevelNone {
				of.OplockKey = ""
			}
			for _, pkt := range req.Session.DrainPath(path) {
				pkt.Resume()
			}
		}
		return okResult(wire.NewBuilder())
	}

	largeFiles := lockType&types.LockingAndXFlagLargeFiles != 0
	unlocks, consumed := decodeLockRanges(req.Frame.Bytes, largeFiles, numUnlocks)
	locks, _ := decodeLockRanges(req.Frame.Bytes[consumed:], largeFiles, numLocks)

	lm, hasLM := req.Tree.FileSystem.(driver.LockManager)
	for _, u := range unlocks {
		if !hasLM || !of.RemoveLock(u.PID, u.Offset, u.Length) {
			return errResult(types.ErrRangeNotLocked)
		}
		_ = lm.Unlock(ctx, of.File, u.PID, u.Offset, u.Length)
	}
	for _, l := range locks {
		if hasLM {
			if err := lm.Lock(ctx, of.File, l.PID, l.Offset, l.Length); err != nil {
				return errResult(driver.ToOutcome(err))
			}
		}
		of.AddLock(tree.Lock{PID: l.PID, Offset: l.Offset, Length: l.Length})
	}
	return okResult(wire.NewBuilder())
}
