package outqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-maxclient/pkg/outqueue"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

func TestQueue(t *testing.T) {
	t.Run("FIFO order", func(t *testing.T) {
		q := outqueue.NewQueue(4, outqueue.OverflowReject)
		for i := 1; i <= 3; i++ {
			_, err := q.Push(&outqueue.Message{Opcode: protocol.Opcode(i)})
			require.NoError(t, err)
		}
		for i := 1; i <= 3; i++ {
			m, err := q.Pop(context.Background())
			require.NoError(t, err)
			assert.Equal(t, protocol.Opcode(i), m.Opcode)
		}
	})

	t.Run("Reject policy refuses when full", func(t *testing.T) {
		q := outqueue.NewQueue(2, outqueue.OverflowReject)
		_, _ = q.Push(&outqueue.Message{Opcode: 1})
		_, _ = q.Push(&outqueue.Message{Opcode: 2})
		_, err := q.Push(&outqueue.Message{Opcode: 3})
		assert.ErrorIs(t, err, outqueue.ErrQueueFull)
		assert.Equal(t, 2, q.Len())
	})

	t.Run("Drop-oldest policy evicts head", func(t *testing.T) {
		q := outqueue.NewQueue(2, outqueue.OverflowDropOldest)
		_, _ = q.Push(&outqueue.Message{Opcode: 1})
		_, _ = q.Push(&outqueue.Message{Opcode: 2})
		evicted, err := q.Push(&outqueue.Message{Opcode: 3})
		require.NoError(t, err)
		require.NotNil(t, evicted)
		assert.Equal(t, protocol.Opcode(1), evicted.Opcode)

		m, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, protocol.Opcode(2), m.Opcode)
	})

	t.Run("Requeue ignores capacity", func(t *testing.T) {
		q := outqueue.NewQueue(1, outqueue.OverflowReject)
		_, _ = q.Push(&outqueue.Message{Opcode: 1})
		require.NoError(t, q.Requeue(&outqueue.Message{Opcode: 2}))
		assert.Equal(t, 2, q.Len())
	})

	t.Run("Pop blocks until push", func(t *testing.T) {
		q := outqueue.NewQueue(0, outqueue.OverflowReject)
		got := make(chan *outqueue.Message, 1)
		go func() {
			m, _ := q.Pop(context.Background())
			got <- m
		}()
		time.Sleep(20 * time.Millisecond)
		_, err := q.Push(&outqueue.Message{Opcode: protocol.OpPing})
		require.NoError(t, err)
		select {
		case m := <-got:
			assert.Equal(t, protocol.OpPing, m.Opcode)
		case <-time.After(time.Second):
			t.Fatal("Pop did not return after Push")
		}
	})

	t.Run("Pop honours context", func(t *testing.T) {
		q := outqueue.NewQueue(0, outqueue.OverflowReject)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := q.Pop(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Close returns leftovers and rejects pushes", func(t *testing.T) {
		q := outqueue.NewQueue(0, outqueue.OverflowReject)
		_, _ = q.Push(&outqueue.Message{Opcode: 1})
		rest := q.Close()
		assert.Len(t, rest, 1)
		_, err := q.Push(&outqueue.Message{Opcode: 2})
		assert.ErrorIs(t, err, outqueue.ErrQueueClosed)
		_, err = q.Pop(context.Background())
		assert.ErrorIs(t, err, outqueue.ErrQueueClosed)
	})
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := outqueue.ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, outqueue.OverflowReject, p)

	p, err = outqueue.ParseOverflowPolicy("drop-oldest")
	require.NoError(t, err)
	assert.Equal(t, outqueue.OverflowDropOldest, p)

	_, err = outqueue.ParseOverflowPolicy("block")
	assert.Error(t, err)
}
