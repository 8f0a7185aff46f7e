// ABOUTME: Transport error type carrying the websocket close code when the peer sent one
// ABOUTME: Classifies close codes that forbid resuming the session

package transport

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Error is a socket-level failure. The reconnect loop recovers from it.
type Error struct {
	Op     string
	Code   int // websocket close code, 0 when the socket failed without one
	Status int // HTTP status of a failed handshake, 0 otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport %s: close %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Resumable reports whether the session may be resumed after this failure.
// The gateway forbids it after authentication, sharding, version and intent
// errors.
func (e *Error) Resumable() bool {
	switch e.Code {
	case 4004, 4010, 4011, 4012, 4013, 4014:
		return false
	default:
		return true
	}
}

func classify(op string, err error) *Error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return &Error{Op: op, Code: closeErr.Code, Err: err}
	}
	return &Error{Op: op, Err: err}
}
