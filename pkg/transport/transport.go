// Package transport provides the message-oriented channels a session runs on.
package transport

import (
	"context"
)

// Transport is a bidirectional, message-oriented channel. Send and Receive
// return an error wrapping protocol.ErrNotConnected once the channel is closed.
type Transport interface {
	// Send writes one message.
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until a message arrives, ctx is done or the channel closes.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the channel. Safe to call more than once.
	Close() error
	// RequiresAck reports whether received message notifications must be
	// acknowledged with a receipt frame.
	RequiresAck() bool
}

// Dialer opens a new Transport.
type Dialer func(ctx context.Context) (Transport, error)
