package transport

import (
	"context"
	"sync"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

// PipeEnd is one side of an in-memory transport created by Pipe.
type PipeEnd struct {
	in, out     chan []byte
	done        chan struct{}
	once        *sync.Once
	requiresAck bool
}

// Pipe returns two connected in-memory transports. Closing either end closes
// both. requiresAck is reported by both ends.
func Pipe(requiresAck bool) (*PipeEnd, *PipeEnd) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &PipeEnd{in: b2a, out: a2b, done: done, once: once, requiresAck: requiresAck}
	b := &PipeEnd{in: a2b, out: b2a, done: done, once: once, requiresAck: requiresAck}
	return a, b
}

func (p *PipeEnd) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.done:
		return protocol.ErrNotConnected
	default:
	}
	cp := append([]byte(nil), msg...)
	select {
	case p.out <- cp:
		return nil
	case <-p.done:
		return protocol.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, protocol.ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *PipeEnd) RequiresAck() bool { return p.requiresAck }

// Closed reports whether the pipe has been closed.
func (p *PipeEnd) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
