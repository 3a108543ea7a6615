package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

const maxTCPFrame = 4 << 20

// TCP is the raw socket fallback. Each message is prefixed with its length
// as a 4-byte big-endian integer.
type TCP struct {
	conn   net.Conn
	r      *bufio.Reader
	wmu    sync.Mutex
	closed atomic.Bool
}

// DialTCP connects to addr, wrapping the connection in TLS when cfg is non-nil.
func DialTCP(ctx context.Context, addr string, cfg *tls.Config) (*TCP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &protocol.ConnectionError{Op: "dial " + addr, Err: err}
	}
	if cfg != nil {
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &protocol.ConnectionError{Op: "tls handshake " + addr, Err: err}
		}
		conn = tc
	}
	return NewTCP(conn), nil
}

// NewTCP wraps an established stream connection.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn, r: bufio.NewReader(conn)}
}

func (t *TCP) Send(ctx context.Context, msg []byte) error {
	if t.closed.Load() {
		return protocol.ErrNotConnected
	}
	if len(msg) > maxTCPFrame {
		return fmt.Errorf("transport: message of %d bytes exceeds limit", len(msg))
	}
	t.wmu.Lock()
	defer t.wmu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { t.conn.SetWriteDeadline(time.Unix(1, 0)) })
	defer stop()

	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[4:], msg)
	if _, err := t.conn.Write(buf); err != nil {
		return t.wrap(ctx, "write", err)
	}
	return nil
}

// Receive must not be called concurrently.
func (t *TCP) Receive(ctx context.Context) ([]byte, error) {
	if t.closed.Load() {
		return nil, protocol.ErrNotConnected
	}
	stop := context.AfterFunc(ctx, func() { t.conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	var hdr [4]byte
	if _, err := io.ReadFull(t.r, hdr[:]); err != nil {
		return nil, t.wrap(ctx, "read", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxTCPFrame {
		return nil, &protocol.ConnectionError{Op: "read", Err: fmt.Errorf("frame of %d bytes exceeds limit", n)}
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(t.r, msg); err != nil {
		return nil, t.wrap(ctx, "read", err)
	}
	return msg, nil
}

func (t *TCP) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

// RequiresAck is true: socket mode acknowledges every message notification.
func (t *TCP) RequiresAck() bool { return true }

func (t *TCP) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if t.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", protocol.ErrNotConnected, err)
	}
	return &protocol.ConnectionError{Op: op, Err: err}
}
