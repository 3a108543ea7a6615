package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/transport"
)

// pushSeqBase keeps server-initiated sequence numbers clear of the client's.
const pushSeqBase = 1 << 20

// Responder builds the reply payload for a request. Returning ok=false sends
// no reply at all.
type Responder func(req *protocol.Frame) (payload any, ok bool)

// MockServer is a scripted peer for session tests. It answers requests by
// opcode, records everything it receives and can push notifications.
type MockServer struct {
	T *testing.T

	mu         sync.Mutex
	conn       transport.Transport
	responders map[protocol.Opcode]Responder
	received   []*protocol.Frame
	changed    chan struct{}
	httpServer *httptest.Server

	pushSeq atomic.Int64
	wg      sync.WaitGroup
}

// NewMockServer returns a server that acknowledges handshake, ping and
// message receipts with an empty payload and answers sync with no entities.
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()
	ms := &MockServer{
		T:          t,
		responders: make(map[protocol.Opcode]Responder),
		changed:    make(chan struct{}),
	}
	ms.pushSeq.Store(pushSeqBase)
	empty := Reply(map[string]any{})
	ms.Handle(protocol.OpSessionInit, empty)
	ms.Handle(protocol.OpPing, empty)
	ms.Handle(protocol.OpNotifMessage, empty)
	ms.Handle(protocol.OpLogin, Reply(map[string]any{
		"chats":    []any{},
		"contacts": []any{},
		"profile":  map[string]any{},
	}))
	t.Cleanup(ms.Close)
	return ms
}

// Reply returns a Responder that always answers with payload.
func Reply(payload any) Responder {
	return func(*protocol.Frame) (any, bool) { return payload, true }
}

// Silent is a Responder that never answers.
func Silent(*protocol.Frame) (any, bool) { return nil, false }

// Handle sets the responder for op.
func (ms *MockServer) Handle(op protocol.Opcode, r Responder) {
	ms.mu.Lock()
	ms.responders[op] = r
	ms.mu.Unlock()
}

// Dialer returns a dialer that connects to the server over an in-memory pipe.
func (ms *MockServer) Dialer(requiresAck bool) transport.Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		client, server := transport.Pipe(requiresAck)
		ms.serve(server)
		return client, nil
	}
}

// StartWebSocket serves the mock over a real WebSocket and returns its ws:// URL.
func (ms *MockServer) StartWebSocket() string {
	ms.httpServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			ms.T.Logf("MockServer: accept error: %v", err)
			return
		}
		ws := transport.NewWebSocket(conn)
		ms.serve(ws)
		ms.wg.Wait()
	}))
	return "ws" + ms.httpServer.URL[len("http"):]
}

func (ms *MockServer) serve(conn transport.Transport) {
	ms.mu.Lock()
	ms.conn = conn
	ms.mu.Unlock()

	ms.wg.Add(1)
	go func() {
		defer ms.wg.Done()
		ctx := context.Background()
		for {
			raw, err := conn.Receive(ctx)
			if err != nil {
				return
			}
			f, err := protocol.Parse(raw)
			if err != nil {
				ms.T.Logf("MockServer: bad frame: %v", err)
				continue
			}
			ms.record(f)

			ms.mu.Lock()
			respond := ms.responders[f.Opcode]
			ms.mu.Unlock()
			if respond == nil {
				continue
			}
			payload, ok := respond(f)
			if !ok {
				continue
			}
			if err := ms.write(ctx, conn, &protocol.Frame{
				Ver: protocol.Version, Cmd: 1, Seq: f.Seq, Opcode: f.Opcode,
			}, payload); err != nil {
				return
			}
		}
	}()
}

func (ms *MockServer) record(f *protocol.Frame) {
	ms.mu.Lock()
	ms.received = append(ms.received, f)
	close(ms.changed)
	ms.changed = make(chan struct{})
	ms.mu.Unlock()
}

func (ms *MockServer) write(ctx context.Context, conn transport.Transport, f *protocol.Frame, payload any) error {
	switch p := payload.(type) {
	case nil:
		f.Payload = json.RawMessage("{}")
	case json.RawMessage:
		f.Payload = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		f.Payload = b
	}
	raw, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return conn.Send(ctx, raw)
}

// Push sends an unsolicited frame to the connected client.
func (ms *MockServer) Push(op protocol.Opcode, payload any) error {
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		return protocol.ErrNotConnected
	}
	return ms.write(context.Background(), conn, &protocol.Frame{
		Ver: protocol.Version, Seq: ms.pushSeq.Add(1), Opcode: op,
	}, payload)
}

// PushRaw sends bytes as they are, for malformed-frame tests.
func (ms *MockServer) PushRaw(raw []byte) error {
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		return protocol.ErrNotConnected
	}
	return conn.Send(context.Background(), raw)
}

// Received returns the frames received with opcode op, in arrival order.
func (ms *MockServer) Received(op protocol.Opcode) []*protocol.Frame {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []*protocol.Frame
	for _, f := range ms.received {
		if f.Opcode == op {
			out = append(out, f)
		}
	}
	return out
}

// WaitForFrames blocks until at least n frames with opcode op have arrived.
func (ms *MockServer) WaitForFrames(op protocol.Opcode, n int, timeout time.Duration) ([]*protocol.Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		ms.mu.Lock()
		changed := ms.changed
		ms.mu.Unlock()
		if got := ms.Received(op); len(got) >= n {
			return got, nil
		}
		select {
		case <-changed:
		case <-deadline.C:
			return ms.Received(op), fmt.Errorf("received %d %s frames, want %d within %v", len(ms.Received(op)), op, n, timeout)
		}
	}
}

// Drop closes the current connection from the server side.
func (ms *MockServer) Drop() {
	ms.mu.Lock()
	conn := ms.conn
	ms.conn = nil
	ms.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close drops the connection and stops the HTTP server if one was started.
func (ms *MockServer) Close() {
	ms.Drop()
	if ms.httpServer != nil {
		ms.httpServer.CloseClientConnections()
		ms.httpServer.Close()
	}
}
