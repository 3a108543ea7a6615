// Package client runs a messaging session: it connects, performs the
// handshake and initial sync, then keeps the connection alive while
// correlating replies, draining the outgoing queue and dispatching
// notifications to registered handlers.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lightforgemedia/go-maxclient/pkg/correlation"
	"github.com/lightforgemedia/go-maxclient/pkg/dispatch"
	"github.com/lightforgemedia/go-maxclient/pkg/metrics"
	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/transport"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultPingInterval    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultIncomingBuffer  = 1024
	defaultChatsCount      = 40
)

// ErrAlreadyConnected is returned by Connect when a session is already live
// or being established.
var ErrAlreadyConnected = errors.New("client: session already active")

// ErrShutdown is returned by Connect after Shutdown.
var ErrShutdown = errors.New("client: shut down")

type clientConfig struct {
	logger          *slog.Logger
	dialer          transport.Dialer
	wsOptions       transport.WebSocketOptions
	tlsConfig       *tls.Config
	token           string
	deviceID        string
	userAgent       UserAgent
	requestTimeout  time.Duration
	pingInterval    time.Duration
	shutdownTimeout time.Duration
	incomingBuffer  int
	chatsCount      int
	queueCapacity   int
	overflow        outqueue.OverflowPolicy
	maxRetries      int
	sendRate        float64
	sendBurst       int
	registerer      prometheus.Registerer
	clock           outqueue.Clock
}

func defaultConfig() clientConfig {
	return clientConfig{
		logger:          slog.Default(),
		userAgent:       DefaultUserAgent(),
		requestTimeout:  defaultRequestTimeout,
		pingInterval:    defaultPingInterval,
		shutdownTimeout: defaultShutdownTimeout,
		incomingBuffer:  defaultIncomingBuffer,
		chatsCount:      defaultChatsCount,
		queueCapacity:   outqueue.DefaultCapacity,
		overflow:        outqueue.OverflowReject,
		maxRetries:      outqueue.DefaultMaxRetries,
		clock:           outqueue.RealClock,
	}
}

// session is the state of one live connection. It is replaced on every
// Connect and torn down by Close.
type session struct {
	transport transport.Transport
	codec     *protocol.Codec
	tasks     *supervisor
	incoming  chan *protocol.Frame
	done      chan struct{}
	err       error
}

// Client is a session with the messaging server.
type Client struct {
	config clientConfig
	url    string
	id     string

	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	pending    *correlation.Table
	uploads    *correlation.Waiters
	queue      *outqueue.Queue
	worker     *outqueue.Worker
	metrics    *metrics.Metrics
	bus        *stateBus

	closeMu sync.Mutex

	mu       sync.RWMutex
	state    State
	sess     *session
	shutdown bool

	cache cache
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.config.logger = logger
		}
	}
}

// WithDialer replaces URL-based transport selection.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.config.dialer = d }
}

// WithWebSocketOptions sets handshake headers and limits for WebSocket URLs.
func WithWebSocketOptions(opts transport.WebSocketOptions) Option {
	return func(c *Client) { c.config.wsOptions = opts }
}

// WithTLSConfig sets the TLS configuration for tls:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.config.tlsConfig = cfg }
}

// WithToken sets the auth token sent during sync.
func WithToken(token string) Option {
	return func(c *Client) { c.config.token = token }
}

// WithDeviceID fixes the device id. A random UUID is used otherwise.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.config.deviceID = id }
}

// WithUserAgent sets the device description. Empty fields keep their defaults.
func WithUserAgent(ua UserAgent) Option {
	return func(c *Client) { c.config.userAgent = ua.merge(DefaultUserAgent()) }
}

// WithRequestTimeout sets the default wait for replies.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.requestTimeout = timeout
		}
	}
}

// WithPingInterval sets the keepalive interval. A non-positive interval
// disables keepalive.
func WithPingInterval(interval time.Duration) Option {
	return func(c *Client) { c.config.pingInterval = interval }
}

// WithShutdownTimeout bounds how long Close waits for background tasks.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.shutdownTimeout = timeout
		}
	}
}

// WithIncomingBuffer sets how many unsolicited frames may wait for dispatch.
func WithIncomingBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.config.incomingBuffer = n
		}
	}
}

// WithQueue configures the outgoing queue bound, overflow policy and retry budget.
func WithQueue(capacity int, policy outqueue.OverflowPolicy, maxRetries int) Option {
	return func(c *Client) {
		c.config.queueCapacity = capacity
		c.config.overflow = policy
		if maxRetries >= 0 {
			c.config.maxRetries = maxRetries
		}
	}
}

// WithSendRate paces the outgoing queue. rate <= 0 disables pacing.
func WithSendRate(rate float64, burst int) Option {
	return func(c *Client) {
		c.config.sendRate = rate
		c.config.sendBurst = burst
	}
}

// WithMetrics registers session collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) { c.config.registerer = reg }
}

// WithClock replaces the clock used by the outgoing worker and keepalive.
func WithClock(clock outqueue.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.config.clock = clock
		}
	}
}

// New returns a disconnected client for serverURL. ws:// and wss:// URLs use
// WebSocket; tcp:// and tls:// use the length-prefixed socket transport.
func New(serverURL string, opts ...Option) (*Client, error) {
	c := newClient(serverURL, defaultConfig())
	for _, opt := range opts {
		opt(c)
	}
	return c.init()
}

func newClient(serverURL string, cfg clientConfig) *Client {
	return &Client{
		config:   cfg,
		url:      serverURL,
		id:       uuid.NewString(),
		registry: dispatch.NewRegistry(),
		pending:  correlation.NewTable(),
		uploads:  correlation.NewWaiters(),
		bus:      newStateBus(),
	}
}

func (c *Client) init() (*Client, error) {
	if c.config.deviceID == "" {
		c.config.deviceID = uuid.NewString()
	}
	if c.config.dialer == nil {
		d, err := dialerFor(c.url, c.config)
		if err != nil {
			return nil, err
		}
		c.config.dialer = d
	}
	if c.config.registerer != nil {
		c.metrics = metrics.New(c.config.registerer)
	}
	log := c.config.logger.With("client_id", c.id)

	c.queue = outqueue.NewQueue(c.config.queueCapacity, c.config.overflow)
	c.worker = outqueue.NewWorker(c.queue, c,
		outqueue.WithClock(c.config.clock),
		outqueue.WithLogger(log),
		outqueue.WithMetrics(c.metrics),
		outqueue.WithRateLimit(c.config.sendRate, c.config.sendBurst),
		outqueue.WithDropHandler(func(m *outqueue.Message, err error) {
			log.Error("Message permanently failed", "opcode", m.Opcode, "error", err)
		}),
	)
	c.dispatcher = dispatch.New(c.registry,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(c.metrics),
		dispatch.WithUploads(c.uploads),
		dispatch.WithAcker(c),
		dispatch.WithSpawner(spawnerFunc(c.spawn)),
	)
	c.registry.OnChatUpdate(func(_ context.Context, chat *types.Chat) error {
		c.cache.upsertChat(chat)
		return nil
	}, dispatch.WithName("chat-cache"))
	c.cache.reset()
	return c, nil
}

func dialerFor(serverURL string, cfg clientConfig) (transport.Dialer, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return func(ctx context.Context) (transport.Transport, error) {
			ws, err := transport.DialWebSocket(ctx, serverURL, cfg.wsOptions)
			if err != nil {
				return nil, err
			}
			return ws, nil
		}, nil
	case "tcp", "tls":
		var tlsCfg *tls.Config
		if u.Scheme == "tls" {
			tlsCfg = cfg.tlsConfig
			if tlsCfg == nil {
				tlsCfg = &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12}
			}
		}
		return func(ctx context.Context) (transport.Transport, error) {
			t, err := transport.DialTCP(ctx, u.Host, tlsCfg)
			if err != nil {
				return nil, err
			}
			return t, nil
		}, nil
	}
	return nil, fmt.Errorf("client: unsupported url scheme %q", u.Scheme)
}

type spawnerFunc func(name string, fn func(ctx context.Context) error)

func (f spawnerFunc) Go(name string, fn func(ctx context.Context) error) { f(name, fn) }

// spawn runs fn on the current session's supervisor. Without a session the
// task is dropped.
func (c *Client) spawn(name string, fn func(ctx context.Context) error) {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		c.config.logger.Warn("No active session, task dropped", "task", name)
		return
	}
	sess.tasks.Go(name, fn)
}

// ID identifies this client instance in logs.
func (c *Client) ID() string { return c.id }

// DeviceID is the device id sent during handshake.
func (c *Client) DeviceID() string { return c.config.deviceID }

// IsConnected reports whether the session has completed sync and is live.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// Connect opens the transport and starts the receive and dispatch loops so
// that requests can be answered. It fails with a *protocol.ConnectionError
// when the transport cannot be opened.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutdown
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.publish(StateDisconnected, StateConnecting)

	tr, err := c.config.dialer(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		var ce *protocol.ConnectionError
		if !errors.As(err, &ce) {
			err = &protocol.ConnectionError{Op: "dial", Err: err}
		}
		c.config.logger.Error("Connection failed", "client_id", c.id, "url", c.url, "error", err)
		return err
	}

	sess := &session{
		transport: tr,
		codec:     protocol.NewCodec(0),
		tasks:     newSupervisor(context.Background(), c.config.logger.With("client_id", c.id)),
		incoming:  make(chan *protocol.Frame, c.config.incomingBuffer),
		done:      make(chan struct{}),
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	sess.tasks.Go("receive", func(ctx context.Context) error { return c.receiveLoop(ctx, sess) })
	sess.tasks.Go("dispatch", func(ctx context.Context) error { return c.dispatchLoop(ctx, sess) })
	c.config.logger.Info("Connected", "client_id", c.id, "url", c.url, "requires_ack", tr.RequiresAck())
	return nil
}

// Handshake sends SESSION_INIT with the device id and user agent.
func (c *Client) Handshake(ctx context.Context) (*protocol.Frame, error) {
	sess, err := c.current()
	if err != nil || !c.advance(sess, StateHandshaking) {
		return nil, fmt.Errorf("client: handshake: %w", protocol.ErrNotConnected)
	}
	c.config.logger.Debug("Sending handshake", "client_id", c.id, "device_id", c.config.deviceID)
	resp, err := c.SendAndWait(ctx, protocol.OpSessionInit, map[string]any{
		"deviceId":  c.config.deviceID,
		"userAgent": c.config.userAgent,
	}, 0, c.config.requestTimeout)
	if err != nil {
		return resp, fmt.Errorf("client: handshake: %w", err)
	}
	c.config.logger.Info("Handshake completed", "client_id", c.id)
	return resp, nil
}

// Start connects, performs handshake and sync, launches the outgoing worker
// and keepalive, then blocks until the session ends or ctx is done.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	if _, err := c.Handshake(ctx); err != nil {
		_ = c.Close()
		return err
	}
	if err := c.Sync(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return protocol.ErrNotConnected
	}
	sess.tasks.Go("outgoing", c.worker.Run)
	if c.config.pingInterval > 0 {
		sess.tasks.Go("keepalive", c.keepalive)
	}

	select {
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	case <-sess.done:
		return sess.err
	}
}

// Wait blocks until the current session closes or ctx is done. It returns
// immediately when there is no session.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return nil
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session: background tasks are cancelled, pending requests
// and upload waits fail with protocol.ErrNotConnected and the transport is
// closed. It is safe to call more than once and from any goroutine; when
// called from a handler it returns after the shutdown timeout.
func (c *Client) Close() error {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	return c.teardown(sess, nil)
}

// Shutdown closes the session and releases everything the client owns.
// Unlike Close, the client cannot connect again afterwards and every
// States channel is closed.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
	err := c.Close()
	c.bus.shutdown()
	return err
}

// teardown closes sess if it is still the current session.
func (c *Client) teardown(sess *session, cause error) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	c.mu.RLock()
	current := c.sess
	c.mu.RUnlock()
	if sess == nil || sess != current {
		return nil
	}
	c.setState(StateClosing)

	sess.tasks.cancel()
	failed := c.pending.FailAll(protocol.ErrNotConnected)
	c.uploads.FailAll(protocol.ErrNotConnected)
	c.metrics.SetPending(0)
	err := sess.transport.Close()
	if left := sess.tasks.Stop(c.config.shutdownTimeout); len(left) > 0 {
		c.config.logger.Warn("Tasks still running after shutdown timeout", "client_id", c.id, "tasks", left)
	}

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	sess.err = cause
	close(sess.done)
	c.setState(StateDisconnected)
	c.config.logger.Info("Session closed", "client_id", c.id, "failed_requests", failed)
	return err
}
