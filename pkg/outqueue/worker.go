package outqueue

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/lightforgemedia/go-maxclient/pkg/metrics"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

const (
	breakerPollInterval = 5 * time.Second
	loopErrorPause      = time.Second
)

// Sender performs one request/response exchange.
type Sender interface {
	SendAndWait(ctx context.Context, op protocol.Opcode, payload any, cmd int, timeout time.Duration) (*protocol.Frame, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, op protocol.Opcode, payload any, cmd int, timeout time.Duration) (*protocol.Frame, error)

func (f SenderFunc) SendAndWait(ctx context.Context, op protocol.Opcode, payload any, cmd int, timeout time.Duration) (*protocol.Frame, error) {
	return f(ctx, op, payload, cmd, timeout)
}

// DropFunc is told about every message the worker gives up on.
type DropFunc func(m *Message, err error)

// Worker drains a Queue through a Sender.
type Worker struct {
	queue   *Queue
	sender  Sender
	breaker *Breaker
	clock   Clock
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
	onDrop  DropFunc

	// running admits one Run at a time.
	running chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithClock replaces the wall clock.
func WithClock(c Clock) WorkerOption {
	return func(w *Worker) { w.clock = c }
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) WorkerOption {
	return func(w *Worker) { w.breaker = b }
}

// WithRateLimit paces sends to r per second with the given burst. r <= 0
// disables pacing.
func WithRateLimit(r float64, burst int) WorkerOption {
	return func(w *Worker) {
		if r <= 0 {
			w.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithDropHandler registers fn to be called for each dropped message.
func WithDropHandler(fn DropFunc) WorkerOption {
	return func(w *Worker) { w.onDrop = fn }
}

// NewWorker returns a worker for q that sends through s.
func NewWorker(q *Queue, s Sender, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:   q,
		sender:  s,
		breaker: NewBreaker(0, 0),
		clock:   RealClock,
		logger:  slog.Default(),
		running: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Breaker exposes the worker's circuit breaker.
func (w *Worker) Breaker() *Breaker { return w.breaker }

// Enqueue adds m to the queue, filling in defaults for zero fields.
func (w *Worker) Enqueue(m *Message) error {
	if m.Timeout <= 0 {
		m.Timeout = DefaultTimeout
	}
	if m.MaxRetries < 0 {
		m.MaxRetries = 0
	}
	evicted, err := w.queue.Push(m)
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			w.metrics.Dropped("overflow")
		}
		return err
	}
	if evicted != nil {
		w.logger.Warn("Outgoing queue full, dropped oldest message", "opcode", evicted.Opcode)
		w.drop(evicted, ErrQueueFull, "overflow")
	}
	w.metrics.SetQueueDepth(w.queue.Len())
	w.logger.Debug("Message queued for sending", "opcode", m.Opcode)
	return nil
}

// Run drains the queue until ctx is done. Errors inside one iteration are
// logged and followed by a short pause; they never stop the loop. A second
// Run waits for the first to return, so the queue has a single consumer.
func (w *Worker) Run(ctx context.Context) error {
	select {
	case w.running <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.running }()

	w.logger.Info("Outgoing queue worker started")
	defer w.logger.Info("Outgoing queue worker stopped")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			w.logger.Error("Error in outgoing queue loop", "error", err)
			_ = w.clock.Sleep(ctx, loopErrorPause)
		}
	}
}

func (w *Worker) step(ctx context.Context) error {
	ok, reset := w.breaker.Allow(w.clock.Now())
	if reset {
		w.logger.Info("Circuit breaker reset")
		w.metrics.SetBreakerOpen(false)
	}
	if !ok {
		return w.clock.Sleep(ctx, breakerPollInterval)
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	m, err := w.queue.Pop(ctx)
	if err != nil {
		return err
	}
	w.metrics.SetQueueDepth(w.queue.Len())

	_, err = w.sender.SendAndWait(ctx, m.Opcode, m.Payload, m.Cmd, m.Timeout)
	if err == nil {
		w.breaker.Success()
		return nil
	}
	if ctx.Err() != nil {
		// Interrupted by shutdown: not the message's fault.
		if qerr := w.queue.Requeue(m); qerr != nil {
			w.drop(m, qerr, "closed")
		}
		w.metrics.SetQueueDepth(w.queue.Len())
		return ctx.Err()
	}

	class := ErrorClass(err)
	w.metrics.SendFailure(class)
	if class == "server" {
		// The server answered, so the link is healthy. Resending the same
		// request would get the same answer.
		w.breaker.Success()
		w.logger.Error("Message rejected by server", "opcode", m.Opcode, "error", err)
		w.drop(m, err, "server_error")
		return nil
	}
	if w.breaker.Failure(w.clock.Now()) {
		w.logger.Warn("Circuit breaker opened after consecutive send failures",
			"errors", w.breaker.State().ConsecutiveErrors)
		w.metrics.SetBreakerOpen(true)
		return w.queue.Requeue(m)
	}

	if m.RetryCount >= m.MaxRetries {
		w.logger.Error("Message dropped after retries exhausted",
			"opcode", m.Opcode, "retries", m.RetryCount, "error", err)
		w.drop(m, err, "retries_exhausted")
		return nil
	}

	delay := RetryDelay(err, m.RetryCount)
	m.RetryCount++
	w.logger.Warn("Send failed, retrying",
		"opcode", m.Opcode, "attempt", m.RetryCount, "max_retries", m.MaxRetries,
		"delay", delay, "class", class, "error", err)
	sleepErr := w.clock.Sleep(ctx, delay)
	if err := w.queue.Requeue(m); err != nil {
		return err
	}
	w.metrics.SetQueueDepth(w.queue.Len())
	return sleepErr
}

func (w *Worker) drop(m *Message, err error, reason string) {
	w.metrics.Dropped(reason)
	if w.onDrop != nil {
		w.onDrop(m, err)
	}
}

// ErrorClass names the retry class of err: "server", "timeout",
// "not_connected", "connection" or "other".
func ErrorClass(err error) string {
	var (
		connErr *protocol.ConnectionError
		opErr   *net.OpError
		sysErr  *os.SyscallError
		srvErr  *protocol.ServerError
	)
	switch {
	case errors.As(err, &srvErr):
		return "server"
	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, protocol.ErrNotConnected):
		return "not_connected"
	case errors.As(err, &connErr), errors.As(err, &opErr), errors.As(err, &sysErr):
		return "connection"
	}
	return "other"
}

// RetryDelay returns the pause before retry number retryCount+1.
func RetryDelay(err error, retryCount int) time.Duration {
	switch ErrorClass(err) {
	case "connection":
		return time.Second
	case "timeout":
		return 5 * time.Second
	case "not_connected":
		return 2 * time.Second
	}
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Second
}
