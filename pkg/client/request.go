package client

import (
	"context"
	"fmt"
	"time"

	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

func (c *Client) current() (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return nil, protocol.ErrNotConnected
	}
	return c.sess, nil
}

// SendAndWait sends one request and waits for the frame carrying the same
// sequence number. A reply whose payload has an "error" field is returned
// together with a *protocol.ServerError. On timeout the pending entry is
// dropped so a late reply is ignored. A non-positive timeout uses the
// client default.
func (c *Client) SendAndWait(ctx context.Context, op protocol.Opcode, payload any, cmd int, timeout time.Duration) (*protocol.Frame, error) {
	sess, err := c.current()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.config.requestTimeout
	}

	f, err := sess.codec.Build(op, payload, cmd)
	if err != nil {
		return nil, err
	}
	raw, err := protocol.Encode(f)
	if err != nil {
		return nil, err
	}
	slot, err := c.pending.Register(f.Seq)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.pending.Remove(f.Seq)
		c.metrics.SetPending(c.pending.Len())
	}()
	c.metrics.SetPending(c.pending.Len())

	c.config.logger.Debug("Sending frame", "opcode", op, "cmd", cmd, "seq", f.Seq)
	if err := sess.transport.Send(ctx, raw); err != nil {
		return nil, err
	}
	c.metrics.FrameSent(op.String())

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-slot:
		if res.Err != nil {
			return nil, res.Err
		}
		if err := res.Frame.Err(); err != nil {
			return res.Frame, err
		}
		return res.Frame, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s seq=%d after %s", protocol.ErrTimeout, op, f.Seq, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueMessage hands a request to the outgoing worker, which sends it with
// retries once the session is running. Use Enqueue for full control.
func (c *Client) QueueMessage(op protocol.Opcode, payload any) error {
	m := outqueue.NewMessage(op, payload)
	m.Timeout = c.config.requestTimeout
	m.MaxRetries = c.config.maxRetries
	return c.worker.Enqueue(m)
}

// Enqueue hands m to the outgoing worker as is.
func (c *Client) Enqueue(m *outqueue.Message) error {
	return c.worker.Enqueue(m)
}

// QueueLen reports how many messages wait in the outgoing queue.
func (c *Client) QueueLen() int { return c.queue.Len() }

// RequiresAck reports whether the live transport expects message receipts.
func (c *Client) RequiresAck() bool {
	sess, err := c.current()
	if err != nil {
		return false
	}
	return sess.transport.RequiresAck()
}

// AckMessage sends a receipt for a delivered message.
func (c *Client) AckMessage(ctx context.Context, chatID int64, messageID types.ID) error {
	_, err := c.SendAndWait(ctx, protocol.OpNotifMessage, map[string]any{
		"chatId":    chatID,
		"messageId": messageID.String(),
	}, 0, c.config.requestTimeout)
	if err != nil {
		return err
	}
	c.config.logger.Debug("Sent message receipt", "chat_id", chatID, "message_id", messageID)
	return nil
}

// WaitAttachment blocks until the server reports that the upload with the
// given file or video id has been processed.
func (c *Client) WaitAttachment(ctx context.Context, id int64) (*protocol.Frame, error) {
	slot, err := c.uploads.Add(id)
	if err != nil {
		return nil, err
	}
	defer c.uploads.Remove(id)
	select {
	case res := <-slot:
		return res.Frame, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
