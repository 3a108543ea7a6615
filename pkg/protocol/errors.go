// protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live socket and there is none.
	ErrNotConnected = errors.New("protocol: not connected")
	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errors.New("protocol: request timed out")
	// ErrDuplicateSequence means a sequence number was registered twice. It is a
	// programming error; sequences are strictly increasing.
	ErrDuplicateSequence = errors.New("protocol: duplicate sequence")
)

// ConnectionError wraps a transport-level failure (dial, read, write).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("protocol: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServerError is reported by the server in the "error" field of a response payload.
type ServerError struct {
	Code             string `json:"error"`
	Message          string `json:"message,omitempty"`
	Title            string `json:"title,omitempty"`
	LocalizedMessage string `json:"localizedMessage,omitempty"`

	Opcode Opcode `json:"-"`
	Seq    int64  `json:"-"`
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.LocalizedMessage
	}
	if msg == "" {
		return fmt.Sprintf("protocol: server error %q (opcode %s, seq %d)", e.Code, e.Opcode, e.Seq)
	}
	return fmt.Sprintf("protocol: server error %q: %s (opcode %s, seq %d)", e.Code, msg, e.Opcode, e.Seq)
}

// ParseError marks a malformed frame or entity. The offending item is dropped.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
