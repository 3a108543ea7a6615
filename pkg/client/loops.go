package client

import (
	"context"
	"errors"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

// receiveLoop reads frames, resolves replies and queues everything else for
// dispatch. Handlers never run here, so they may issue requests themselves.
func (c *Client) receiveLoop(ctx context.Context, sess *session) error {
	log := c.config.logger.With("client_id", c.id)
	for {
		raw, err := sess.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("Connection lost", "error", err)
			go func() { _ = c.teardown(sess, err) }()
			return nil
		}

		f, err := protocol.Parse(raw)
		if err != nil {
			c.metrics.ParseError()
			log.Warn("Dropping malformed frame", "error", err)
			continue
		}
		if c.pending.Resolve(f.Seq, f) {
			c.metrics.FrameReceived(f.Opcode.String(), true)
			log.Debug("Matched response for pending request", "seq", f.Seq, "opcode", f.Opcode)
			continue
		}
		c.metrics.FrameReceived(f.Opcode.String(), false)

		select {
		case sess.incoming <- f:
		default:
			c.metrics.IncomingDrop()
			log.Warn("Incoming queue full, dropping frame", "seq", f.Seq, "opcode", f.Opcode)
		}
	}
}

func (c *Client) dispatchLoop(ctx context.Context, sess *session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-sess.incoming:
			c.dispatcher.Dispatch(ctx, f)
		}
	}
}

// keepalive pings the server until the session goes away.
func (c *Client) keepalive(ctx context.Context) error {
	log := c.config.logger.With("client_id", c.id)
	for {
		_, err := c.SendAndWait(ctx, protocol.OpPing, map[string]any{"interactive": true}, 0, c.config.requestTimeout)
		switch {
		case err == nil:
			log.Debug("Interactive ping sent")
		case errors.Is(err, protocol.ErrNotConnected):
			log.Debug("Socket disconnected, stopping keepalive")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			log.Warn("Interactive ping failed", "error", err)
		}
		if err := c.config.clock.Sleep(ctx, c.config.pingInterval); err != nil {
			return nil
		}
	}
}
