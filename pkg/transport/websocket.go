package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

const defaultReadLimit = 4 << 20

// WebSocketOptions configures DialWebSocket.
type WebSocketOptions struct {
	Header    http.Header  // extra handshake headers (Origin, User-Agent)
	Client    *http.Client // nil uses http.DefaultClient
	ReadLimit int64        // max message size; 0 uses 4MiB
}

// WebSocket is a Transport over a text-frame WebSocket connection.
type WebSocket struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

// DialWebSocket connects to url and returns a ready transport.
func DialWebSocket(ctx context.Context, url string, opts WebSocketOptions) (*WebSocket, error) {
	dialOpts := &websocket.DialOptions{
		HTTPClient: opts.Client,
		HTTPHeader: opts.Header,
	}
	conn, resp, err := websocket.Dial(ctx, url, dialOpts)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status: %s)", err, resp.Status)
		}
		return nil, &protocol.ConnectionError{Op: "dial " + url, Err: err}
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &WebSocket{conn: conn}, nil
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (w *WebSocket) Send(ctx context.Context, msg []byte) error {
	if w.closed.Load() {
		return protocol.ErrNotConnected
	}
	if err := w.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return w.wrap("write", err)
	}
	return nil
}

func (w *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	if w.closed.Load() {
		return nil, protocol.ErrNotConnected
	}
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, w.wrap("read", err)
	}
	return data, nil
}

func (w *WebSocket) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.conn.Close(websocket.StatusNormalClosure, "client closing"); err != nil {
		// Peer already gone; drop the socket without the close handshake.
		w.conn.CloseNow()
	}
	return nil
}

// RequiresAck is false: the WebSocket mode does not acknowledge notifications.
func (w *WebSocket) RequiresAck() bool { return false }

func (w *WebSocket) wrap(op string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return ctxErr
	}
	if w.closed.Load() || websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", protocol.ErrNotConnected, err)
	}
	return &protocol.ConnectionError{Op: op, Err: err}
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}
