// protocol/frame.go
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Version is the protocol version stamped on every outgoing frame.
const Version = 11

// Frame is the unit exchanged with the server in both directions.
type Frame struct {
	Ver     int             `json:"ver"`
	Cmd     int             `json:"cmd"`
	Seq     int64           `json:"seq"`
	Opcode  Opcode          `json:"opcode"`
	Payload json.RawMessage `json:"payload"` // `null` when the frame carries no payload
}

// DecodePayload unmarshals the frame's payload into v (must be a pointer).
// A missing or null payload leaves v untouched.
func (f *Frame) DecodePayload(v any) error {
	if len(f.Payload) == 0 || bytes.Equal(f.Payload, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return &ParseError{Op: "decode payload", Err: err}
	}
	return nil
}

// Err returns a *ServerError when the payload carries an "error" field, nil otherwise.
func (f *Frame) Err() error {
	var head struct {
		Error            json.RawMessage `json:"error"`
		Message          string          `json:"message"`
		Title            string          `json:"title"`
		LocalizedMessage string          `json:"localizedMessage"`
	}
	if json.Unmarshal(f.Payload, &head) != nil {
		return nil
	}
	switch string(head.Error) {
	case "", "null", "false", `""`:
		return nil
	}
	code := string(head.Error)
	var s string
	if json.Unmarshal(head.Error, &s) == nil {
		code = s
	}
	return &ServerError{
		Code:             code,
		Message:          head.Message,
		Title:            head.Title,
		LocalizedMessage: head.LocalizedMessage,
		Opcode:           f.Opcode,
		Seq:              f.Seq,
	}
}

// Codec builds outgoing frames and parses inbound ones. The sequence counter
// is the only state; Build is safe for concurrent callers.
type Codec struct {
	seq atomic.Int64
}

// NewCodec returns a codec whose first frame carries sequence start+1.
func NewCodec(start int64) *Codec {
	c := &Codec{}
	c.seq.Store(start)
	return c
}

// Build assigns the next sequence number and returns a frame carrying the
// JSON encoding of payload. A nil payload is sent as an empty object.
func (c *Codec) Build(op Opcode, payload any, cmd int) (*Frame, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage("{}")
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal payload for %s: %w", op, err)
		}
		raw = b
	}
	return &Frame{
		Ver:     Version,
		Cmd:     cmd,
		Seq:     c.seq.Add(1),
		Opcode:  op,
		Payload: raw,
	}, nil
}

// Encode serializes a frame for the transport.
func Encode(f *Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode frame seq=%d: %w", f.Seq, err)
	}
	return b, nil
}

// Parse decodes raw transport bytes into a frame.
func Parse(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &ParseError{Op: "parse frame", Err: err}
	}
	return &f, nil
}
