package handlers

import (
	"context"

	"github.com/gosmbd/smb1d/internal/smb1/andx"
	"github.com/gosmbd/smb1d/internal/smb1/header"
	"github.com/gosmbd/smb1d/internal/smb1/session"
	"github.com/gosmbd/smb1d/internal/smb1/tree"
	"github.com/gosmbd/smb1d/internal/smb1/types"
	"github.com/gosmbd/smb1d/internal/smb1/wire"
)

// Request is everything a command handler needs: the parsed frame plus
// whichever VC/Tree the dispatcher has already resolved for it (§4.1's
// "shape checks -> VC lookup -> TID lookup -> permission check" ordering).
type Request struct {
	Frame   *wire.Frame
	Unicode bool

	Session *session.Session
	VC      *session.VirtualCircuit // nil until NeedsSession resolves it
	Tree    *tree.Tree              // nil until NeedsTree resolves it
}

// Result is a handler's answer: the dual-form status plus the response
// body, with optional extra AndX links for a chained reply (§4.6).
type Result struct {
	Outcome types.Outcome
	Body    *wire.Builder
	Chained []andx.Link

	// OverrideUID/OverrideTID replace the request's echoed UID/TID in the
	// response header: SESSION_SETUP_ANDX must return the UID it just
	// assigned, and TREE_CONNECT_ANDX the TID, neither of which the
	// request itself carried (§4.2, §4.3).
	OverrideUID *uint16
	OverrideTID *uint16

	// Deferred, if true, tells the dispatcher to send no reply now; the
	// handler has parked the request (e.g. behind an oplock break) and
	// will deliver the eventual response itself via Engine.Sender (§4.7
	// item 5, §5 "Suspension points").
	Deferred bool
}

// HandlerFunc processes one command body against the Engine and the
// Request context the dispatcher prepared.
type HandlerFunc func(ctx context.Context, e *Engine, req *Request) (*Result, error)

// Command is one DispatchTable entry: its human name, its handler, and
// the preconditions the dispatcher enforces before calling it.
type Command struct {
	Name         string
	Handler      HandlerFunc
	NeedsSession bool // requires a valid UID (VirtualCircuit)
	NeedsTree    bool // requires a valid TID (Tree)
}

// errResult builds a Result carrying only a status, no body.
func errResult(outcome types.Outcome) (*Result, error) {
	return &Result{Outcome: outcome}, nil
}

// okResult builds a successful Result from a populated Builder.
func okResult(b *wire.Builder) (*Result, error) {
	return &Result{Outcome: types.Success, Body: b}, nil
}

// header is a tiny convenience since every handler needs it.
func (r *Request) header() *header.Header { return r.Frame.Header }
