package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// supervisor owns the background tasks of one session. Task errors and
// panics are logged and never reach the caller.
type supervisor struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	wg    sync.WaitGroup
	next  uint64
	tasks map[uint64]string
}

func newSupervisor(parent context.Context, logger *slog.Logger) *supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &supervisor{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[uint64]string),
	}
}

// Go starts fn unless the supervisor is already stopping.
func (s *supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("Task not started, session closing", "task", name)
		return
	}
	s.next++
	id := s.next
	s.tasks[id] = name
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Unhandled panic in task",
					"task", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Unhandled error in task", "task", name, "error", err)
		}
	}()
}

// Len reports the number of running tasks.
func (s *supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task and waits up to timeout for them to return.
// It reports the names of tasks still running when the wait gave up.
func (s *supervisor) Stop(timeout time.Duration) []string {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	left := make([]string, 0, len(s.tasks))
	for _, name := range s.tasks {
		left = append(left, name)
	}
	return left
}
