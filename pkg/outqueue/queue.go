// Package outqueue buffers requests that must reach the server and drains them
// through a single worker with retry, backoff and a circuit breaker.
package outqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity and the
	// overflow policy rejects new messages.
	ErrQueueFull = errors.New("outqueue: queue full")
	// ErrQueueClosed is returned once the queue has been closed.
	ErrQueueClosed = errors.New("outqueue: queue closed")
)

const (
	DefaultCapacity   = 1024
	DefaultMaxRetries = 3
	DefaultTimeout    = 10 * time.Second
)

// OverflowPolicy decides what Push does when the queue is full.
type OverflowPolicy int

const (
	// OverflowReject refuses the new message.
	OverflowReject OverflowPolicy = iota
	// OverflowDropOldest evicts the head of the queue to make room.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "reject"
	}
}

// ParseOverflowPolicy accepts "reject" or "drop-oldest" (empty means reject).
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return OverflowReject, nil
	case "drop-oldest", "drop_oldest":
		return OverflowDropOldest, nil
	}
	return OverflowReject, fmt.Errorf("outqueue: unknown overflow policy %q", s)
}

// Message is a request waiting to be delivered. RetryCount is only changed by
// the worker.
type Message struct {
	Opcode     protocol.Opcode
	Payload    any
	Cmd        int
	Timeout    time.Duration
	RetryCount int
	MaxRetries int
}

// NewMessage returns a message with the default timeout and retry budget.
func NewMessage(op protocol.Opcode, payload any) *Message {
	return &Message{
		Opcode:     op,
		Payload:    payload,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// Queue is a FIFO of messages with a capacity bound.
type Queue struct {
	mu       sync.Mutex
	items    []*Message
	capacity int
	policy   OverflowPolicy
	notify   chan struct{}
	closed   bool
}

// NewQueue returns an empty queue. capacity <= 0 uses DefaultCapacity.
func NewQueue(capacity int, policy OverflowPolicy) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		capacity: capacity,
		policy:   policy,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends m. Under OverflowDropOldest a full queue evicts its head,
// which is returned as evicted.
func (q *Queue) Push(m *Message) (evicted *Message, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		if q.policy != OverflowDropOldest {
			return nil, ErrQueueFull
		}
		evicted = q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
	}
	q.items = append(q.items, m)
	q.signal()
	return evicted, nil
}

// Requeue appends m regardless of capacity. The worker holds at most one
// message outside the queue, so the bound is exceeded by at most one.
func (q *Queue) Requeue(m *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, m)
	q.signal()
	return nil
}

// Pop blocks until a message is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (*Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return m, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes blocked Pop calls once drained.
// Messages still queued are returned.
func (q *Queue) Close() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	q.signal()
	return rest
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
