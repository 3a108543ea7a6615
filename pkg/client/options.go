package client

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
	"github.com/lightforgemedia/go-maxclient/pkg/transport"
)

// Options contains configuration values for NewWithOptions.
type Options struct {
	Logger          *slog.Logger
	Dialer          transport.Dialer
	WebSocket       transport.WebSocketOptions
	TLSConfig       *tls.Config
	Token           string
	DeviceID        string
	UserAgent       UserAgent
	RequestTimeout  time.Duration
	PingInterval    time.Duration
	ShutdownTimeout time.Duration
	IncomingBuffer  int
	QueueCapacity   int
	OverflowPolicy  outqueue.OverflowPolicy
	MaxRetries      int // 0 uses the default, negative sends once
	SendRate        float64
	SendBurst       int
	MetricsRegistry prometheus.Registerer
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Logger:          slog.Default(),
		UserAgent:       DefaultUserAgent(),
		RequestTimeout:  defaultRequestTimeout,
		PingInterval:    defaultPingInterval,
		ShutdownTimeout: defaultShutdownTimeout,
		IncomingBuffer:  defaultIncomingBuffer,
		QueueCapacity:   outqueue.DefaultCapacity,
		OverflowPolicy:  outqueue.OverflowReject,
		MaxRetries:      outqueue.DefaultMaxRetries,
	}
}

// NewWithOptions builds a client from an Options struct. Zero values fall
// back to the library defaults. A negative PingInterval disables keepalive
// and a negative MaxRetries disables retries.
func NewWithOptions(serverURL string, opts Options) (*Client, error) {
	cfg := defaultConfig()
	if opts.Logger != nil {
		cfg.logger = opts.Logger
	}
	cfg.dialer = opts.Dialer
	cfg.wsOptions = opts.WebSocket
	cfg.tlsConfig = opts.TLSConfig
	cfg.token = opts.Token
	cfg.deviceID = opts.DeviceID
	cfg.userAgent = opts.UserAgent.merge(DefaultUserAgent())
	if opts.RequestTimeout > 0 {
		cfg.requestTimeout = opts.RequestTimeout
	}
	switch {
	case opts.PingInterval > 0:
		cfg.pingInterval = opts.PingInterval
	case opts.PingInterval < 0:
		cfg.pingInterval = 0
	}
	if opts.ShutdownTimeout > 0 {
		cfg.shutdownTimeout = opts.ShutdownTimeout
	}
	if opts.IncomingBuffer > 0 {
		cfg.incomingBuffer = opts.IncomingBuffer
	}
	if opts.QueueCapacity > 0 {
		cfg.queueCapacity = opts.QueueCapacity
	}
	cfg.overflow = opts.OverflowPolicy
	switch {
	case opts.MaxRetries > 0:
		cfg.maxRetries = opts.MaxRetries
	case opts.MaxRetries < 0:
		cfg.maxRetries = 0
	}
	cfg.sendRate = opts.SendRate
	cfg.sendBurst = opts.SendBurst
	cfg.registerer = opts.MetricsRegistry

	return newClient(serverURL, cfg).init()
}
