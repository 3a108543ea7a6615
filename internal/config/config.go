// Package config loads the maxclient configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lightforgemedia/go-maxclient/pkg/client"
	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
)

// EnvToken overrides the token from the file when set.
const EnvToken = "MAXCLIENT_TOKEN"

// Config represents the application configuration
type Config struct {
	URL            string          `yaml:"url" toml:"url"`
	Transport      string          `yaml:"transport" toml:"transport"`
	Token          string          `yaml:"token" toml:"token"`
	DeviceID       string          `yaml:"device_id" toml:"device_id"`
	UserAgent      UserAgentConfig `yaml:"user_agent" toml:"user_agent"`
	PingInterval   string          `yaml:"ping_interval" toml:"ping_interval"`
	RequestTimeout string          `yaml:"request_timeout" toml:"request_timeout"`
	Queue          QueueConfig     `yaml:"queue" toml:"queue"`
	Log            LogConfig       `yaml:"log" toml:"log"`
	MetricsAddr    string          `yaml:"metrics_addr" toml:"metrics_addr"`
}

type UserAgentConfig struct {
	DeviceType      string `yaml:"device_type" toml:"device_type"`
	Locale          string `yaml:"locale" toml:"locale"`
	DeviceLocale    string `yaml:"device_locale" toml:"device_locale"`
	OSVersion       string `yaml:"os_version" toml:"os_version"`
	DeviceName      string `yaml:"device_name" toml:"device_name"`
	HeaderUserAgent string `yaml:"header_user_agent" toml:"header_user_agent"`
	AppVersion      string `yaml:"app_version" toml:"app_version"`
	Screen          string `yaml:"screen" toml:"screen"`
	Timezone        string `yaml:"timezone" toml:"timezone"`
}

type QueueConfig struct {
	Capacity   int     `yaml:"capacity" toml:"capacity"`
	Overflow   string  `yaml:"overflow" toml:"overflow"`
	MaxRetries *int    `yaml:"max_retries" toml:"max_retries"`
	SendRate   float64 `yaml:"send_rate" toml:"send_rate"`
	SendBurst  int     `yaml:"send_burst" toml:"send_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		URL:            "wss://ws-api.oneme.ru/websocket",
		Transport:      "websocket",
		PingInterval:   "30s",
		RequestTimeout: "10s",
		Queue: QueueConfig{
			Capacity: outqueue.DefaultCapacity,
			Overflow: "reject",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults,
// applies environment overrides, fills in a device id and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if token := os.Getenv(EnvToken); token != "" {
		cfg.Token = token
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.URL)
	switch {
	case c.URL == "":
		errs = append(errs, errors.New("url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("url: %w", err))
	default:
		want := map[string][]string{
			"websocket": {"ws", "wss"},
			"tcp":       {"tcp", "tls"},
		}[c.Transport]
		if want == nil {
			errs = append(errs, fmt.Errorf("transport must be websocket or tcp, got %q", c.Transport))
		} else if u.Scheme != want[0] && u.Scheme != want[1] {
			errs = append(errs, fmt.Errorf("url scheme %q does not match transport %q", u.Scheme, c.Transport))
		}
	}
	if c.DeviceID != "" {
		if _, err := uuid.Parse(c.DeviceID); err != nil {
			errs = append(errs, fmt.Errorf("device_id: %w", err))
		}
	}
	for name, v := range map[string]string{"ping_interval": c.PingInterval, "request_timeout": c.RequestTimeout} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if _, err := outqueue.ParseOverflowPolicy(c.Queue.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("queue.overflow: %w", err))
	}
	if c.Queue.Capacity < 0 {
		errs = append(errs, errors.New("queue.capacity must not be negative"))
	}
	if c.Queue.MaxRetries != nil && *c.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("queue.max_retries must not be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// ClientOptions converts the file into client options. Validate must have
// passed.
func (c *Config) ClientOptions(logger *slog.Logger) []client.Option {
	policy, _ := outqueue.ParseOverflowPolicy(c.Queue.Overflow)
	maxRetries := outqueue.DefaultMaxRetries
	if c.Queue.MaxRetries != nil {
		maxRetries = *c.Queue.MaxRetries
	}
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithToken(c.Token),
		client.WithDeviceID(c.DeviceID),
		client.WithUserAgent(client.UserAgent{
			DeviceType:      c.UserAgent.DeviceType,
			Locale:          c.UserAgent.Locale,
			DeviceLocale:    c.UserAgent.DeviceLocale,
			OSVersion:       c.UserAgent.OSVersion,
			DeviceName:      c.UserAgent.DeviceName,
			HeaderUserAgent: c.UserAgent.HeaderUserAgent,
			AppVersion:      c.UserAgent.AppVersion,
			Screen:          c.UserAgent.Screen,
			Timezone:        c.UserAgent.Timezone,
		}),
		client.WithQueue(c.Queue.Capacity, policy, maxRetries),
		client.WithSendRate(c.Queue.SendRate, c.Queue.SendBurst),
	}
	if d, err := time.ParseDuration(c.PingInterval); err == nil {
		opts = append(opts, client.WithPingInterval(d))
	}
	if d, err := time.ParseDuration(c.RequestTimeout); err == nil {
		opts = append(opts, client.WithRequestTimeout(d))
	}
	return opts
}
