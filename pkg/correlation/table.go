// Package correlation matches reply frames to the requests that are waiting
// for them, and upload-completion notifications to their waiters.
package correlation

import (
	"fmt"
	"sync"
	"time"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

// Result is delivered exactly once on a pending request's slot.
type Result struct {
	Frame *protocol.Frame
	Err   error
}

type pending struct {
	slot      chan Result
	createdAt time.Time
}

// Table maps outstanding sequence numbers to result slots.
type Table struct {
	mu      sync.Mutex
	entries map[int64]*pending
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[int64]*pending)}
}

// Register creates a pending entry for seq. The returned channel receives a
// single Result and is never closed.
func (t *Table) Register(seq int64) (<-chan Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[seq]; exists {
		return nil, fmt.Errorf("correlation: register seq %d: %w", seq, protocol.ErrDuplicateSequence)
	}
	p := &pending{slot: make(chan Result, 1), createdAt: time.Now()}
	t.entries[seq] = p
	return p.slot, nil
}

// Resolve fulfils the entry for seq with f. It returns false when no entry
// exists, in which case the frame is not a reply.
func (t *Table) Resolve(seq int64, f *protocol.Frame) bool {
	t.mu.Lock()
	p, ok := t.entries[seq]
	if ok {
		delete(t.entries, seq)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.slot <- Result{Frame: f}
	return true
}

// Remove drops the entry for seq without resolving it. A frame arriving
// later for the same seq is not treated as a reply.
func (t *Table) Remove(seq int64) {
	t.mu.Lock()
	delete(t.entries, seq)
	t.mu.Unlock()
}

// FailAll resolves every outstanding entry with err (ErrNotConnected when
// err is nil) and empties the table. Calling it on an empty table is a no-op.
func (t *Table) FailAll(err error) int {
	if err == nil {
		err = protocol.ErrNotConnected
	}
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int64]*pending)
	t.mu.Unlock()

	for _, p := range entries {
		p.slot <- Result{Err: err}
	}
	return len(entries)
}

// Len reports the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Oldest returns the age of the longest-waiting entry, or zero.
func (t *Table) Oldest(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var oldest time.Duration
	for _, p := range t.entries {
		if age := now.Sub(p.createdAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}
