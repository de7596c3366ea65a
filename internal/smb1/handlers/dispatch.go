package handlers

import (
	"context"
	"time"

	"github.com/gosmbd/smb1d/internal/logger"
	"github.com/gosmbd/smb1d/internal/smb1/andx"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// DispatchTable maps every command this engine understands to its
// handler and precondition flags.
var DispatchTable map[types.Command]*Command

func init() {
	DispatchTable = map[types.Command]*Command{
		types.ComNegotiate:             {Name: "NEGOTIATE", Handler: handleNegotiate},
		types.ComSessionSetupAndX:      {Name: "SESSION_SETUP_ANDX", Handler: handleSessionSetup},
		types.ComLogoffAndX:            {Name: "LOGOFF_ANDX", Handler: handleLogoff, NeedsSession: true},
		types.ComTreeConnectAndX:       {Name: "TREE_CONNECT_ANDX", Handler: handleTreeConnect, NeedsSession: true},
		types.ComTreeDisconnect:        {Name: "TREE_DISCONNECT", Handler: handleTreeDisconnect, NeedsSession: true, NeedsTree: true},
		types.ComOpenAndX:              {Name: "OPEN_ANDX", Handler: handleOpenAndX, NeedsSession: true, NeedsTree: true},
		types.ComNtCreateAndX:          {Name: "NT_CREATE_ANDX", Handler: handleNtCreateAndX, NeedsSession: true, NeedsTree: true},
		types.ComCreate:                {Name: "CREATE", Handler: handleCreate, NeedsSession: true, NeedsTree: true},
		types.ComCreateNew:             {Name: "CREATE_NEW", Handler: handleCreate, NeedsSession: true, NeedsTree: true},
		types.ComClose:                 {Name: "CLOSE", Handler: handleClose, NeedsSession: true, NeedsTree: true},
		types.ComReadAndX:              {Name: "READ_ANDX", Handler: handleReadAndX, NeedsSession: true, NeedsTree: true},
		types.ComWriteAndX:             {Name: "WRITE_ANDX", Handler: handleWriteAndX, NeedsSession: true, NeedsTree: true},
		types.ComRead:                  {Name: "READ", Handler: handleRead, NeedsSession: true, NeedsTree: true},
		types.ComWrite:                 {Name: "WRITE", Handler: handleWrite, NeedsSession: true, NeedsTree: true},
		types.ComFlush:                 {Name: "FLUSH", Handler: handleFlush, NeedsSession: true, NeedsTree: true},
		types.ComSeek:                  {Name: "SEEK", Handler: handleSeek, NeedsSession: true, NeedsTree: true},
		types.ComLockByteRange:         {Name: "LOCK_BYTE_RANGE", Handler: handleLockByteRange, NeedsSession: true, NeedsTree: true},
		types.ComUnlockByteRange:       {Name: "UNLOCK_BYTE_RANGE", Handler: handleUnlockByteRange, NeedsSession: true, NeedsTree: true},
		types.ComLockingAndX:           {Name: "LOCKING_ANDX", Handler: handleLockingAndX, NeedsSession: true, NeedsTree: true},
		types.ComRename:                {Name: "RENAME", Handler: handleRename, NeedsSession: true, NeedsTree: true},
		types.ComDelete:                {Name: "DELETE", Handler: handleDelete, NeedsSession: true, NeedsTree: true},
		types.ComCreateDirectory:       {Name: "CREATE_DIRECTORY", Handler: handleCreateDirectory, NeedsSession: true, NeedsTree: true},
		types.ComDeleteDirectory:       {Name: "DELETE_DIRECTORY", Handler: handleDeleteDirectory, NeedsSession: true, NeedsTree: true},
		types.ComCheckDirectory:        {Name: "CHECK_DIRECTORY", Handler: handleCheckDirectory, NeedsSession: true, NeedsTree: true},
		types.ComSearch:                {Name: "SEARCH", Handler: handleSearch, NeedsSession: true, NeedsTree: true},
		types.ComFindClose2:            {Name: "FIND_CLOSE2", Handler: handleFindClose2, NeedsSession: true, NeedsTree: true},
		types.ComQueryInformation:      {Name: "QUERY_INFORMATION", Handler: handleQueryInformation, NeedsSession: true, NeedsTree: true},
		types.ComSetInformation:        {Name: "SET_INFORMATION", Handler: handleSetInformation, NeedsSession: true, NeedsTree: true},
		types.ComTransaction:           {Name: "TRANSACTION", Handler: handleTransaction, NeedsSession: true, NeedsTree: true},
		types.ComTransactionSecondary:  {Name: "TRANSACTION_SECONDARY", Handler: handleTransactionSecondary, NeedsSession: true, NeedsTree: true},
		types.ComTransaction2:          {Name: "TRANSACTION2", Handler: handleTransaction2, NeedsSession: true, NeedsTree: true},
		types.ComTransaction2Secondary: {Name: "TRANSACTION2_SECONDARY", Handler: handleTransaction2Secondary, NeedsSession: true, NeedsTree: true},
		types.ComNtTransact:            {Name: "NT_TRANSACT", Handler: handleNtTransact, NeedsSession: true, NeedsTree: true},
		types.ComNtTransactSecondary:   {Name: "NT_TRANSACT_SECONDARY", Handler: handleNtTransactSecondary, NeedsSession: true, NeedsTree: true},
		types.ComIoctl:                 {Name: "IOCTL", Handler: handleIoctl, NeedsSession: true, NeedsTree: true},
		types.ComNtCancel:              {Name: "NT_CANCEL", Handler: handleNtCancel, NeedsSession: true},
		types.ComEcho:                  {Name: "ECHO", Handler: handleEcho},
		types.ComProcessExit:           {Name: "PROCESS_EXIT", Handler: handleProcessExit, NeedsSession: true},
	}
}

// chainLink is one command body within a (possibly single-element) request
// AndX chain, with the 2-word AndX prefix already stripped from Words.
type chainLink struct {
	Command types.Command
	Frame   *wire.Frame
}

// parseChain walks a request's AndX chain (§4.6): the primary command plus
// every SMB_COM_* it chains via AndXCommand/AndXOffset, each offset being
// absolute from the start of the 32-byte header.
func parseChain(buf []byte, hdr *header.Header) ([]chainLink, error) {
	var links []chainLink
	cmd := hdr.Command
	offset := header.Size
	for {
		if offset < header.Size || offset >= len(buf) {
			return nil, wire.ErrShortFrame
		}
		f, err := wire.ParseBody(hdr, buf[offset:])
		if err != nil {
			return nil, err
		}
		words := f.Words
		chained := cmd.IsAndX()
		var nextCmd types.Command
		var nextOffset int
		hasNext := false
		if chained {
			if len(words) < 2 {
				return nil, wire.ErrShortFrame
			}
			rawCmd := uint8(words[0] & 0xFF)
			nextOffset = int(words[1])
			words = words[2:]
			if rawCmd != types.AndXCommandNone && nextOffset != 0 {
				nextCmd = types.Command(rawCmd)
				hasNext = true
			}
		}
		links = append(links, chainLink{Command: cmd, Frame: &wire.Frame{Header: hdr, Words: words, Bytes: f.Bytes, Raw: f.Raw}})
		if !hasNext {
			break
		}
		cmd = nextCmd
		offset = nextOffset
	}
	return links, nil
}

// Dispatch decodes a complete SMB1 message (32-byte header plus body) and
// returns the encoded response, or nil if the request was parked (§4.7
// item 5 deferral) and will be answered later via Engine.Sender.
func (e *Engine) Dispatch(ctx context.Context, sess *session.Session, buf []byte) ([]byte, error) {
	hdr, err := header.Parse(buf)
	if err != nil {
		return nil, err
	}
	unicode := hdr.Flags2.IsUnicode()

	links, err := parseChain(buf, hdr)
	if err != nil {
		return e.encodeSingle(hdr, types.ErrInvalidParameter, unicode), nil
	}

	var andxLinks []andx.Link
	var respUID, respTID *uint16
	overall := types.Success
	for _, link := range links {
		cmd, ok := DispatchTable[link.Command]
		if !ok {
			overall = types.ErrUnrecognizedCmd
			andxLinks = append(andxLinks, andx.Link{Command: link.Command, Frame: wire.NewBuilder().Frame()})
			break
		}

		req := &Request{Frame: link.Frame, Unicode: unicode, Session: sess}
		if cmd.NeedsSession {
			vc, vcErr := sess.FindVC(hdr.UID)
			if vcErr != nil {
				overall = types.ErrInvalidUID
				break
			}
			req.VC = vc
		}
		if cmd.NeedsTree {
			t, tErr := req.VC.FindTree(hdr.TID)
			if tErr != nil {
				overall = types.ErrInvalidTID
				break
			}
			req.Tree = t
		}

		start := time.Now()
		result, hErr := cmd.Handler(ctx, e, req)
		elapsed := time.Since(start)
		if hErr != nil {
			logger.ErrorCtx(ctx, "handler error", logger.Operation(cmd.Name), logger.Err(hErr))
			result = &Result{Outcome: types.ErrNonSpecific}
		}
		e.Metrics.RecordCommand(cmd.Name, result.Outcome.Name, float64(elapsed.Microseconds())/1000)
		if result.Deferred {
			return nil, nil
		}

		body := result.Body
		if body == nil {
			body = wire.NewBuilder()
		}
		if len(result.Chained) > 0 {
			andxLinks = append(andxLinks, result.Chained...)
		} else {
			andxLinks = append(andxLinks, andx.Link{Command: link.Command, Frame: body.Frame()})
		}
		overall = result.Outcome
		if result.OverrideUID != nil {
			respUID = result.OverrideUID
		}
		if result.OverrideTID != nil {
			respTID = result.OverrideTID
		}

		if andx.ShouldTerminate(link.Command, result.Outcome) {
			break
		}
	}

	respHdr := header.NewResponse(hdr, overall)
	if respUID != nil {
		respHdr.UID = *respUID
	}
	if respTID != nil {
		respHdr.TID = *respTID
	}
	out := respHdr.Encode()
	if hdr.Command.IsAndX() {
		out = append(out, andx.Assemble(andxLinks)...)
		return out, nil
	}
	if len(andxLinks) > 0 {
		out = append(out, andxLinks[0].Frame.Encode()...)
	}
	return out, nil
}

// encodeSingle builds a bare status-only response, used for malformed
// requests the dispatcher rejects before it can resolve a Command.
func (e *Engine) encodeSingle(hdr *header.Header, outcome types.Outcome, unicode bool) []byte {
	respHdr := header.NewResponse(hdr, outcome)
	out := respHdr.Encode()
	out = append(out, wire.NewBuilder().Frame().Encode()...)
	return out
}
