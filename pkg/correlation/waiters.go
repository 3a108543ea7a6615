package correlation

import (
	"fmt"
	"sync"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

// Waiters holds one-shot slots keyed by attachment id (file or video id),
// resolved by NOTIF_ATTACH frames.
type Waiters struct {
	mu      sync.Mutex
	entries map[int64]chan Result
}

// NewWaiters returns an empty waiter set.
func NewWaiters() *Waiters {
	return &Waiters{entries: make(map[int64]chan Result)}
}

// Add registers a waiter for id. Only one waiter per id may be outstanding.
func (w *Waiters) Add(id int64) (<-chan Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.entries[id]; exists {
		return nil, fmt.Errorf("correlation: waiter for attachment %d already registered", id)
	}
	slot := make(chan Result, 1)
	w.entries[id] = slot
	return slot, nil
}

// Resolve fulfils and removes the waiter for id, reporting whether one existed.
func (w *Waiters) Resolve(id int64, f *protocol.Frame) bool {
	w.mu.Lock()
	slot, ok := w.entries[id]
	delete(w.entries, id)
	w.mu.Unlock()
	if !ok {
		return false
	}
	slot <- Result{Frame: f}
	return true
}

// Remove drops the waiter for id without resolving it.
func (w *Waiters) Remove(id int64) {
	w.mu.Lock()
	delete(w.entries, id)
	w.mu.Unlock()
}

// FailAll resolves every waiter with err and empties the set.
func (w *Waiters) FailAll(err error) {
	if err == nil {
		err = protocol.ErrNotConnected
	}
	w.mu.Lock()
	entries := w.entries
	w.entries = make(map[int64]chan Result)
	w.mu.Unlock()
	for _, slot := range entries {
		slot <- Result{Err: err}
	}
}

// Len reports the number of outstanding waiters.
func (w *Waiters) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
