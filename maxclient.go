// maxclient.go
package maxclient

import (
	"github.com/lightforgemedia/go-maxclient/pkg/client"
	"github.com/lightforgemedia/go-maxclient/pkg/dispatch"
	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

// Re-export core types
type (
	Client        = client.Client
	Option        = client.Option
	Options       = client.Options
	UserAgent     = client.UserAgent
	State         = client.State
	Transition    = client.Transition
	Status        = client.Status
	Frame         = protocol.Frame
	Opcode        = protocol.Opcode
	Message       = types.Message
	Chat          = types.Chat
	User          = types.User
	ReactionInfo  = types.ReactionInfo
	QueuedMessage = outqueue.Message

	MessageHandler  = dispatch.MessageHandler
	ReactionHandler = dispatch.ReactionHandler
	ChatHandler     = dispatch.ChatHandler
	RawHandler      = dispatch.RawHandler
	HandlerOption   = dispatch.HandlerOption
)

// Session states
const (
	StateDisconnected = client.StateDisconnected
	StateConnecting   = client.StateConnecting
	StateHandshaking  = client.StateHandshaking
	StateSyncing      = client.StateSyncing
	StateConnected    = client.StateConnected
	StateClosing      = client.StateClosing
)

// Re-export error types
var (
	ErrNotConnected      = protocol.ErrNotConnected
	ErrTimeout           = protocol.ErrTimeout
	ErrDuplicateSequence = protocol.ErrDuplicateSequence
	ErrAlreadyConnected  = client.ErrAlreadyConnected
	ErrShutdown          = client.ErrShutdown
	ErrQueueFull         = outqueue.ErrQueueFull
	ErrQueueClosed       = outqueue.ErrQueueClosed
)

// Re-export options
var (
	WithLogger          = client.WithLogger
	WithDialer          = client.WithDialer
	WithTLSConfig       = client.WithTLSConfig
	WithToken           = client.WithToken
	WithDeviceID        = client.WithDeviceID
	WithUserAgent       = client.WithUserAgent
	WithRequestTimeout  = client.WithRequestTimeout
	WithPingInterval    = client.WithPingInterval
	WithShutdownTimeout = client.WithShutdownTimeout
	WithQueue           = client.WithQueue
	WithSendRate        = client.WithSendRate
	WithMetrics         = client.WithMetrics

	WithFilter = dispatch.WithFilter
	Detached   = dispatch.Detached
	WithName   = dispatch.WithName
)

// New creates a client for serverURL. ws:// and wss:// URLs use WebSocket,
// tcp:// and tls:// use the length-prefixed socket transport.
func New(serverURL string, opts ...Option) (*Client, error) {
	return client.New(serverURL, opts...)
}

// NewWithOptions creates a client from an Options struct.
func NewWithOptions(serverURL string, opts Options) (*Client, error) {
	return client.NewWithOptions(serverURL, opts)
}

// DefaultOptions returns the library defaults.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// DefaultUserAgent returns the user agent sent when none is configured.
func DefaultUserAgent() UserAgent {
	return client.DefaultUserAgent()
}
