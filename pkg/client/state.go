package client

import (
	"context"
	"sync"
	"time"

	"github.com/cskr/pubsub"
)

// State is a step in the session lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateSyncing
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateSyncing:
		return "syncing"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Transition is published on every state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

const (
	stateTopic      = "state"
	stateBusBuffer  = 16
	stateSubBacklog = 16
)

// stateBus guards a pubsub.PubSub so nothing calls into it after shutdown,
// when its calls would block forever.
type stateBus struct {
	mu     sync.RWMutex
	ps     *pubsub.PubSub
	closed bool
}

func newStateBus() *stateBus {
	return &stateBus{ps: pubsub.New(stateBusBuffer)}
}

func (b *stateBus) pub(t Transition) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.closed {
		b.ps.Pub(t, stateTopic)
	}
}

// sub returns nil once the bus is shut down.
func (b *stateBus) sub() chan interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	return b.ps.Sub(stateTopic)
}

func (b *stateBus) unsub(ch chan interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.closed {
		b.ps.Unsub(ch, stateTopic)
	}
}

// shutdown stops the pubsub goroutine, which closes every subscription.
func (b *stateBus) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.publish(from, to)
}

// advance moves to the given state only while sess is still the current
// session and is not being closed. It reports whether the state changed.
func (c *Client) advance(sess *session, to State) bool {
	c.mu.Lock()
	if c.sess != sess || c.state == StateClosing || c.state == StateDisconnected {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.publish(from, to)
	return true
}

func (c *Client) publish(from, to State) {
	if from == to {
		return
	}
	c.config.logger.Info("Session state changed", "client_id", c.id, "from", from, "to", to)
	c.bus.pub(Transition{From: from, To: to, At: time.Now()})
}

// States streams lifecycle transitions until ctx is done or the client is
// shut down. A consumer that falls behind misses transitions rather than
// stalling the session.
func (c *Client) States(ctx context.Context) <-chan Transition {
	out := make(chan Transition, stateSubBacklog)
	sub := c.bus.sub()
	if sub == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				go c.bus.unsub(sub)
				for range sub {
				}
				return
			case v, ok := <-sub:
				if !ok {
					return
				}
				t, _ := v.(Transition)
				select {
				case out <- t:
				default:
					c.config.logger.Debug("State subscriber behind, dropping transition", "to", t.To)
				}
			}
		}
	}()
	return out
}
