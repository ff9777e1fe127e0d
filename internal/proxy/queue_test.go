package proxy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/core"
)

func fixedQueue(capacity int, now time.Time, delays ...time.Duration) *Queue {
	q := NewQueue(capacity)
	q.now = func() time.Time { return now }
	i := 0
	q.jitter = func(time.Duration) time.Duration {
		d := delays[i%len(delays)]
		i++
		return d
	}
	return q
}

func TestQueueDrainOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	q := fixedQueue(8, start, 300*time.Millisecond, 100*time.Millisecond, 200*time.Millisecond)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Pending{Payload: []byte(name)}, 800*time.Millisecond))
	}

	assert.Empty(t, q.Drain(start.Add(50*time.Millisecond)))

	due := q.Drain(start.Add(250 * time.Millisecond))
	require.Len(t, due, 2)
	assert.Equal(t, "b", string(due[0].Payload))
	assert.Equal(t, "c", string(due[1].Payload))
	assert.Equal(t, 1, q.Len())

	due = q.Drain(start.Add(time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, "a", string(due[0].Payload))
	assert.Equal(t, 0, q.Len())
}

func TestQueueFull(t *testing.T) {
	q := fixedQueue(2, time.Unix(0, 0), 0)

	require.NoError(t, q.Enqueue(Pending{}, time.Second))
	require.NoError(t, q.Enqueue(Pending{}, time.Second))
	assert.ErrorIs(t, q.Enqueue(Pending{}, time.Second), core.ErrQueueFull)
	assert.Equal(t, uint64(1), q.Dropped())

	q.Resize(3)
	assert.NoError(t, q.Enqueue(Pending{}, time.Second))
}

func TestQueueCopiesPayload(t *testing.T) {
	q := fixedQueue(1, time.Unix(0, 0), 0)
	buf := []byte{1, 2, 3}
	require.NoError(t, q.Enqueue(Pending{Payload: buf}, 0))
	buf[0] = 9

	due := q.Drain(time.Unix(0, 0))
	require.Len(t, due, 1)
	assert.Equal(t, []byte{1, 2, 3}, due[0].Payload)
}

func TestQueueRunReplays(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Enqueue(Pending{Interface: "eth0"}, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Pending
	go q.Run(ctx, 5*time.Millisecond, func(p Pending) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Interface == "eth0"
	}, time.Second, 5*time.Millisecond)
}
