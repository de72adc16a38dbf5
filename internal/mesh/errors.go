package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("coordinator closed")
	ErrAlreadyJoined    = errors.New("already in another room")
	ErrNotJoined        = errors.New("not in a room")
	ErrLeft             = errors.New("left the room")
	ErrRelayUnavailable = errors.New("relay unavailable")
	ErrJoinRejected     = errors.New("join rejected by relay")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrEncode           = errors.New("payload cannot be encoded")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrMissingOption    = errors.New("missing option")
)

// Error describes a failed mesh operation, optionally scoped to one peer.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + e.Peer
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
