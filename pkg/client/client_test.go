package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-maxclient/pkg/client"
	"github.com/lightforgemedia/go-maxclient/pkg/dispatch"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/testutil"
	"github.com/lightforgemedia/go-maxclient/pkg/transport"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, ms *testutil.MockServer, requiresAck bool, opts ...client.Option) *client.Client {
	t.Helper()
	base := []client.Option{
		client.WithDialer(ms.Dialer(requiresAck)),
		client.WithLogger(quietLogger()),
		client.WithPingInterval(0),
		client.WithRequestTimeout(2 * time.Second),
		client.WithShutdownTimeout(time.Second),
	}
	c, err := client.New("tcp://mock.invalid:443", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

// startClient runs Start in the background and waits for sync to finish.
func startClient(t *testing.T, c *client.Client) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()
	require.NoError(t, testutil.WaitFor(t, "client connected", 2*time.Second, c.IsConnected))
	return errCh
}

func TestSyncPopulatesSessionState(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpLogin, testutil.Reply(map[string]any{
		"chats": []any{
			map[string]any{"id": 100, "type": "DIALOG", "participants": map[string]int64{"1": 0, "2": 0}},
		},
		"contacts": []any{
			map[string]any{"id": 2, "names": []any{map[string]any{"name": "Alice", "type": "ONEME"}}},
		},
		"profile": map[string]any{
			"contact": map[string]any{"id": 1, "names": []any{map[string]any{"name": "Me"}}},
		},
	}))
	c := newClient(t, ms, false, client.WithToken("secret"))
	startClient(t, c)

	dialogs := c.Dialogs()
	require.Len(t, dialogs, 1)
	assert.Equal(t, int64(100), dialogs[0].ID)
	assert.Equal(t, types.ChatDialog, dialogs[0].Type)
	assert.Empty(t, c.Chats())
	assert.Empty(t, c.Channels())

	contacts := c.Contacts()
	require.Len(t, contacts, 1)
	assert.Equal(t, int64(2), contacts[0].ID)
	assert.Equal(t, "Alice", contacts[0].DisplayName())

	require.NotNil(t, c.Me())
	assert.Equal(t, "Me", c.Me().DisplayName())

	chat, ok := c.Chat(100)
	assert.True(t, ok)
	assert.Same(t, dialogs[0], chat)
	_, ok = c.Chat(404)
	assert.False(t, ok)

	t.Run("Handshake and sync payloads", func(t *testing.T) {
		inits := ms.Received(protocol.OpSessionInit)
		require.Len(t, inits, 1)
		var hs struct {
			DeviceID  string           `json:"deviceId"`
			UserAgent client.UserAgent `json:"userAgent"`
		}
		require.NoError(t, json.Unmarshal(inits[0].Payload, &hs))
		assert.Equal(t, c.DeviceID(), hs.DeviceID)
		assert.Equal(t, "WEB", hs.UserAgent.DeviceType)

		logins := ms.Received(protocol.OpLogin)
		require.Len(t, logins, 1)
		var sync map[string]any
		require.NoError(t, json.Unmarshal(logins[0].Payload, &sync))
		assert.Equal(t, "secret", sync["token"])
		assert.Equal(t, true, sync["interactive"])
		assert.EqualValues(t, 40, sync["chatsCount"])
		assert.EqualValues(t, 0, sync["chatsSync"])
		assert.Contains(t, sync, "userAgent")
		assert.Equal(t, protocol.Version, logins[0].Ver)
	})
}

func TestSyncSkipsBrokenEntries(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpLogin, testutil.Reply(json.RawMessage(`{
		"chats":[{"id":"not-a-number","type":"CHAT"},{"id":5,"type":"CHANNEL"},{"id":6,"type":"CHAT"}],
		"contacts":[{"id":[]},{"id":9}]
	}`)))
	c := newClient(t, ms, false)
	startClient(t, c)

	assert.Len(t, c.Chats(), 1)
	assert.Len(t, c.Channels(), 1)
	assert.Len(t, c.Contacts(), 1)
	assert.Nil(t, c.Me())
}

func TestMessageNotificationAck(t *testing.T) {
	t.Run("Socket transport acknowledges", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		c := newClient(t, ms, true)

		var calls atomic.Int32
		got := make(chan *types.Message, 4)
		c.OnMessage(func(_ context.Context, m *types.Message) error {
			calls.Add(1)
			got <- m
			return nil
		})
		startClient(t, c)

		require.NoError(t, ms.Push(protocol.OpNotifMessage, map[string]any{
			"chatId":  42,
			"message": map[string]any{"id": "7", "text": "hello", "sender": 2},
		}))

		select {
		case m := <-got:
			assert.Equal(t, int64(42), m.ChatID)
			assert.Equal(t, types.ID("7"), m.ID)
			assert.Equal(t, "hello", m.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not invoked")
		}

		acks, err := ms.WaitForFrames(protocol.OpNotifMessage, 1, 2*time.Second)
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		acks = ms.Received(protocol.OpNotifMessage)
		require.Len(t, acks, 1)
		var p struct {
			ChatID    int64  `json:"chatId"`
			MessageID string `json:"messageId"`
		}
		require.NoError(t, json.Unmarshal(acks[0].Payload, &p))
		assert.Equal(t, int64(42), p.ChatID)
		assert.Equal(t, "7", p.MessageID)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("WebSocket transport does not acknowledge", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		url := ms.StartWebSocket()
		c, err := client.New(url,
			client.WithLogger(quietLogger()),
			client.WithPingInterval(0),
			client.WithShutdownTimeout(time.Second),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Shutdown() })

		got := make(chan struct{}, 1)
		c.OnMessage(func(context.Context, *types.Message) error {
			got <- struct{}{}
			return nil
		})
		startClient(t, c)
		assert.False(t, c.RequiresAck())

		require.NoError(t, ms.Push(protocol.OpNotifMessage, map[string]any{
			"chatId": 42, "message": map[string]any{"id": "7"},
		}))
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("handler not invoked")
		}
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, ms.Received(protocol.OpNotifMessage))
	})
}

func TestEditedMessageRouting(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false)

	var mu sync.Mutex
	var calls []string
	record := func(name string) dispatch.MessageHandler {
		return func(context.Context, *types.Message) error {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		}
	}
	c.OnMessage(record("new"))
	c.OnMessageDelete(record("delete"))
	c.OnMessageEdit(record("edit-rejected"), dispatch.WithFilter(func(*types.Message) bool { return false }))
	c.OnMessageEdit(record("edit"))
	startClient(t, c)

	require.NoError(t, ms.Push(protocol.OpNotifMessage, map[string]any{
		"chatId": 1, "message": map[string]any{"id": 3, "status": "EDITED"},
	}))
	require.NoError(t, testutil.WaitFor(t, "edit handler", 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) > 0
	}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"edit"}, calls)
}

func TestSendAndWait(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpProfile, testutil.Reply(map[string]any{"ok": true}))
	ms.Handle(protocol.OpLogout, testutil.Reply(map[string]any{"error": "session.invalid", "message": "bad session"}))
	ms.Handle(protocol.OpDebug, testutil.Silent)
	c := newClient(t, ms, false)
	startClient(t, c)
	ctx := context.Background()

	t.Run("Sequence numbers are consecutive", func(t *testing.T) {
		var seqs []int64
		for i := 0; i < 5; i++ {
			f, err := c.SendAndWait(ctx, protocol.OpProfile, nil, 0, time.Second)
			require.NoError(t, err)
			seqs = append(seqs, f.Seq)
		}
		for i := 1; i < len(seqs); i++ {
			assert.Equal(t, seqs[0]+int64(i), seqs[i])
		}
	})

	t.Run("Concurrent callers get unique sequences", func(t *testing.T) {
		var wg sync.WaitGroup
		seen := make(chan int64, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f, err := c.SendAndWait(ctx, protocol.OpProfile, nil, 0, time.Second)
				if assert.NoError(t, err) {
					seen <- f.Seq
				}
			}()
		}
		wg.Wait()
		close(seen)
		unique := map[int64]bool{}
		for s := range seen {
			assert.False(t, unique[s], "duplicate seq %d", s)
			unique[s] = true
		}
		assert.Len(t, unique, 20)
	})

	t.Run("Server error surfaces to caller", func(t *testing.T) {
		f, err := c.SendAndWait(ctx, protocol.OpLogout, nil, 0, time.Second)
		var se *protocol.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "session.invalid", se.Code)
		assert.Equal(t, "bad session", se.Message)
		assert.NotNil(t, f)
	})

	t.Run("Timeout removes entry and late reply is ignored", func(t *testing.T) {
		raw := make(chan *protocol.Frame, 1)
		c.OnRawReceive(func(_ context.Context, f *protocol.Frame) error {
			if f.Opcode == protocol.OpDebug {
				raw <- f
			}
			return nil
		})

		_, err := c.SendAndWait(ctx, protocol.OpDebug, nil, 0, 50*time.Millisecond)
		require.ErrorIs(t, err, protocol.ErrTimeout)
		assert.Equal(t, 0, c.Inspect().PendingRequests)

		reqs := ms.Received(protocol.OpDebug)
		require.Len(t, reqs, 1)
		late := fmt.Sprintf(`{"ver":11,"cmd":1,"seq":%d,"opcode":%d,"payload":{}}`, reqs[0].Seq, protocol.OpDebug)
		require.NoError(t, ms.PushRaw([]byte(late)))

		select {
		case f := <-raw:
			assert.Equal(t, reqs[0].Seq, f.Seq)
		case <-time.After(2 * time.Second):
			t.Fatal("late reply was not handed to the dispatcher")
		}
	})

	t.Run("Malformed frame does not end the session", func(t *testing.T) {
		require.NoError(t, ms.PushRaw([]byte("{not json")))
		_, err := c.SendAndWait(ctx, protocol.OpProfile, nil, 0, time.Second)
		require.NoError(t, err)
		assert.True(t, c.IsConnected())
	})
}

func TestCloseFailsPendingRequests(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpDebug, testutil.Silent)
	c := newClient(t, ms, false)
	startCh := startClient(t, c)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.SendAndWait(context.Background(), protocol.OpDebug, nil, 0, 10*time.Second)
			errs <- err
		}()
	}
	require.NoError(t, testutil.WaitFor(t, "pending requests", 2*time.Second, func() bool {
		return c.Inspect().PendingRequests == 3
	}))

	require.NoError(t, c.Close())
	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, protocol.ErrNotConnected)
		case <-time.After(2 * time.Second):
			t.Fatal("pending request not failed by Close")
		}
	}
	assert.Equal(t, 0, c.Inspect().PendingRequests)
	assert.Equal(t, client.StateDisconnected, c.State())
	assert.NoError(t, c.Close(), "second Close is a no-op")

	select {
	case err := <-startCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Close")
	}

	_, err := c.SendAndWait(context.Background(), protocol.OpPing, nil, 0, time.Second)
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
}

func TestConnectionLossEndsSession(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false)
	startCh := startClient(t, c)

	ms.Drop()
	select {
	case err := <-startCh:
		assert.ErrorIs(t, err, protocol.ErrNotConnected)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after connection loss")
	}
	assert.Equal(t, client.StateDisconnected, c.State())
	require.NoError(t, c.Wait(context.Background()))

	t.Run("Client can reconnect", func(t *testing.T) {
		startClient(t, c)
		_, err := c.SendAndWait(context.Background(), protocol.OpPing, nil, 0, time.Second)
		assert.NoError(t, err)
	})
}

func TestStartFailures(t *testing.T) {
	t.Run("Handshake error", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		ms.Handle(protocol.OpSessionInit, testutil.Reply(map[string]any{"error": "proto.version"}))
		c := newClient(t, ms, false)
		err := c.Start(context.Background())
		var se *protocol.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "proto.version", se.Code)
		assert.Equal(t, client.StateDisconnected, c.State())
	})

	t.Run("Sync error closes the session", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		ms.Handle(protocol.OpLogin, testutil.Reply(map[string]any{"error": "login.token"}))
		c := newClient(t, ms, false)
		err := c.Start(context.Background())
		var se *protocol.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, client.StateDisconnected, c.State())
		assert.Empty(t, c.Dialogs())
	})

	t.Run("Dial error", func(t *testing.T) {
		c, err := client.New("tcp://127.0.0.1:1",
			client.WithLogger(quietLogger()),
			client.WithDialer(func(context.Context) (transport.Transport, error) { return nil, errors.New("refused") }),
		)
		require.NoError(t, err)
		err = c.Connect(context.Background())
		var ce *protocol.ConnectionError
		assert.ErrorAs(t, err, &ce)
		assert.Equal(t, client.StateDisconnected, c.State())
	})

	t.Run("Unsupported scheme", func(t *testing.T) {
		_, err := client.New("http://example.com")
		assert.Error(t, err)
	})
}

func TestHandlersMayIssueRequests(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpProfile, testutil.Reply(map[string]any{"ok": true}))
	c := newClient(t, ms, false)

	done := make(chan error, 1)
	c.OnChatUpdate(func(ctx context.Context, chat *types.Chat) error {
		_, err := c.SendAndWait(ctx, protocol.OpProfile, nil, 0, time.Second)
		done <- err
		return err
	})
	startClient(t, c)

	require.NoError(t, ms.Push(protocol.OpNotifChat, map[string]any{"chat": map[string]any{"id": 77, "type": "CHAT", "title": "new"}}))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler request did not complete")
	}
	chat, ok := c.Chat(77)
	require.True(t, ok)
	assert.Equal(t, "new", chat.Title)
}

func TestQueuedMessagesAreDelivered(t *testing.T) {
	ms := testutil.NewMockServer(t)
	ms.Handle(protocol.OpProfile, testutil.Reply(map[string]any{}))
	c := newClient(t, ms, false)

	require.NoError(t, c.QueueMessage(protocol.OpProfile, map[string]any{"n": 1}))
	require.NoError(t, c.QueueMessage(protocol.OpProfile, map[string]any{"n": 2}))
	assert.Equal(t, 2, c.QueueLen())

	startClient(t, c)
	frames, err := ms.WaitForFrames(protocol.OpProfile, 2, 2*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(frames[0].Payload))
	assert.JSONEq(t, `{"n":2}`, string(frames[1].Payload))
	assert.Less(t, frames[0].Seq, frames[1].Seq)
}

func TestWaitAttachment(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false)
	startClient(t, c)

	res := make(chan *protocol.Frame, 1)
	go func() {
		f, err := c.WaitAttachment(context.Background(), 31337)
		if assert.NoError(t, err) {
			res <- f
		}
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ms.Push(protocol.OpNotifAttach, map[string]any{"fileId": 31337}))

	select {
	case f := <-res:
		assert.Equal(t, protocol.OpNotifAttach, f.Opcode)
	case <-time.After(2 * time.Second):
		t.Fatal("attachment wait not resolved")
	}
}

func TestKeepalive(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false, client.WithPingInterval(10*time.Millisecond))
	startClient(t, c)

	pings, err := ms.WaitForFrames(protocol.OpPing, 3, 2*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"interactive":true}`, string(pings[0].Payload))
}

func TestStateTransitions(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := c.States(ctx)
	startClient(t, c)
	require.NoError(t, c.Close())

	want := []client.State{
		client.StateConnecting, client.StateHandshaking, client.StateSyncing,
		client.StateConnected, client.StateClosing, client.StateDisconnected,
	}
	var got []client.State
	timeout := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case tr := <-states:
			got = append(got, tr.To)
		case <-timeout:
			t.Fatalf("saw transitions %v, want %v", got, want)
		}
	}
	assert.Equal(t, want, got)
}

func TestLifecycleWithoutSession(t *testing.T) {
	t.Run("Handshake and Sync leave the state alone", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		c := newClient(t, ms, false)

		_, err := c.Handshake(context.Background())
		assert.ErrorIs(t, err, protocol.ErrNotConnected)
		assert.Equal(t, client.StateDisconnected, c.State())

		err = c.Sync(context.Background())
		assert.ErrorIs(t, err, protocol.ErrNotConnected)
		assert.Equal(t, client.StateDisconnected, c.State())

		startClient(t, c)
	})

	t.Run("Drop before handshake", func(t *testing.T) {
		ms := testutil.NewMockServer(t)
		c := newClient(t, ms, false)

		require.NoError(t, c.Connect(context.Background()))
		ms.Drop()
		require.NoError(t, testutil.WaitFor(t, "session torn down", 2*time.Second, func() bool {
			return c.State() == client.StateDisconnected
		}))

		_, err := c.Handshake(context.Background())
		assert.ErrorIs(t, err, protocol.ErrNotConnected)
		assert.Equal(t, client.StateDisconnected, c.State())

		startClient(t, c)
		_, err = c.SendAndWait(context.Background(), protocol.OpPing, nil, 0, time.Second)
		assert.NoError(t, err)
	})
}

func TestShutdown(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false)
	states := c.States(context.Background())
	startCh := startClient(t, c)

	require.NoError(t, c.Shutdown())
	select {
	case err := <-startCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}

	closed := make(chan struct{})
	go func() {
		for range states {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("States channel not closed by Shutdown")
	}

	assert.ErrorIs(t, c.Connect(context.Background()), client.ErrShutdown)
	assert.NoError(t, c.Shutdown(), "Shutdown is idempotent")

	_, open := <-c.States(context.Background())
	assert.False(t, open)
}

func TestInspect(t *testing.T) {
	ms := testutil.NewMockServer(t)
	c := newClient(t, ms, false, client.WithDeviceID("device-1"))
	startClient(t, c)

	st := c.Inspect()
	assert.True(t, st.Connected)
	assert.Equal(t, "device-1", st.DeviceID)
	assert.GreaterOrEqual(t, st.BackgroundTasks, 3)
	assert.False(t, st.BreakerOpen)
	assert.Zero(t, st.PendingRequests)
	assert.Zero(t, st.OldestPending)

	t.Run("Reports the oldest pending request", func(t *testing.T) {
		ms.Handle(protocol.OpProfile, testutil.Silent)
		go func() {
			_, _ = c.SendAndWait(context.Background(), protocol.OpProfile, nil, 0, 5*time.Second)
		}()
		require.NoError(t, testutil.WaitFor(t, "request pending", 2*time.Second, func() bool {
			return c.Inspect().PendingRequests == 1
		}))
		time.Sleep(20 * time.Millisecond)

		st := c.Inspect()
		assert.GreaterOrEqual(t, st.OldestPending, 20*time.Millisecond)
	})
}
