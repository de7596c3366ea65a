package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/smb1/driver"
	"github.com/gosmbd/smb1d/internal/smb1/infopack"
	"github.com/gosmbd/smb1d/internal/smb1/search"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// handleSearch implements the legacy SMB_COM_SEARCH, covering both the
// "first call" (a pattern and no resume key) and "continue call" (a
// 24-byte resume key block instead) forms (§4.4 scenarios S2/S3).
func handleSearch(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 2 {
		return errResult(types.ErrInvalidParameter)
	}
	maxCount := w[0]
	attrs := types.FileAttributes(w[1])

	b := req.Frame.Bytes
	if len(b) < 1 || b[0] != 0x04 {
		return errResult(types.ErrInvalidParameter)
	}
	b = b[1:]
	pattern, n := wire.DecodeString(b, req.Unicode)
	b = b[n:]
	if len(b) < 3 || b[0] != 0x05 {
		return errResult(types.ErrInvalidParameter)
	}
	resumeLen := int(b[1]) | int(b[2])<<8
	b = b[3:]
	if len(b) < resumeLen {
		return errResult(types.ErrInvalidParameter)
	}

	var sc *search.Context
	var err error
	if resumeLen == 0 {
		sc, err = req.VC.SearchSlots.Allocate(req.Tree.TID, wire.NormalizeWildcard(pattern), attrs, maxCount)
		if err != nil {
			return errResult(types.ErrNoResources)
		}
		sc.Cursor, err = req.Tree.FileSystem.StartSearch(ctx, sc.Pattern, attrs, 0)
		if err != nil {
			req.VC.SearchSlots.Free(sc.ID)
			e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
			return errResult(driver.ToOutcome(err))
		}
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	} else {
		key, kerr := search.DecodeResumeKey(b)
		if kerr != nil {
			return errResult(types.ErrInvalidParameter)
		}
		sc, err = req.VC.SearchSlots.Lookup(key.Slot(), req.Tree.TID)
		if err != nil {
			return errResult(types.ErrInvalidHandle)
		}
	}

	entries, more, err := req.Tree.FileSystem.NextEntries(ctx, sc.Cursor, int(maxCount))
	if err != nil {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
		return errResult(driver.ToOutcome(err))
	}

	out := wire.NewBuilder()
	count := 0
	entryBuf := make([]byte, 0, len(entries)*infopack.SearchEntrySize)
	for _, en := range entries {
		entryID := sc.EntryID
		sc.EntryID++
		entryBuf = append(entryBuf, infopack.PackSearchEntry(sc, entryID, en.Name, en.Info)...)
		count++
	}
	if !more {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	}

	out.PutWord(uint16(count))
	out.PutByte(0x05)
	out.PutUint16(uint16(len(entryBuf)))
	out.PutBytes(entryBuf)

	if count == 0 {
		return errResult(types.ErrNoMoreFiles)
	}
	return okResult(out)
}

// handleFindClose2 releases the legacy TRANS2_FIND_FIRST2/NEXT2 search
// handle carried in FID (§4.4).
func handleFindClose2(ctx context.Context, e *Engine, req *Request) (*Result, error) {
	w := req.Frame.Words
	if len(w) < 1 {
		return errResult(types.ErrInvalidParameter)
	}
	sid := w[0]
	sc, err := req.VC.SearchSlots.Lookup(sid, req.Tree.TID)
	if err == nil {
		req.Tree.FileSystem.CloseSearch(ctx, sc.Cursor)
		req.VC.SearchSlots.Free(sc.ID)
		e.Metrics.SetSearchSlotsInUse(req.VC.SearchSlots.Count())
	}
	return okResult(wire.NewBuilder())
}
