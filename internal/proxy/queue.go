package proxy

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"firestige.xyz/arpguard/internal/core"
)

// Pending is a request held back before it is replayed for a proxy reply.
type Pending struct {
	Payload    []byte
	Interface  string
	Ifindex    int
	PacketType core.PacketType
	Due        time.Time
}

// Queue delays proxy replies by a random interval to spread replies from
// multiple proxies on the same segment. It never blocks the producer.
type Queue struct {
	mu       sync.Mutex
	capacity int
	items    []Pending // ordered by Due
	dropped  uint64
	now      func() time.Time
	jitter   func(max time.Duration) time.Duration
}

// NewQueue creates a queue holding at most capacity requests.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		now:      time.Now,
		jitter: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
}

// Enqueue schedules p after a random delay in [0, maxDelay). The payload is
// copied. ErrQueueFull is returned when the queue is at capacity.
func (q *Queue) Enqueue(p Pending, maxDelay time.Duration) error {
	var delay time.Duration
	if maxDelay > 0 {
		delay = q.jitter(maxDelay)
	}
	p.Payload = append([]byte(nil), p.Payload...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.dropped++
		return core.ErrQueueFull
	}
	p.Due = q.now().Add(delay)
	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].Due.After(p.Due) })
	q.items = append(q.items, Pending{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = p
	return nil
}

// Drain removes and returns the requests due at or before now.
func (q *Queue) Drain(now time.Time) []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := sort.Search(len(q.items), func(i int) bool { return q.items[i].Due.After(now) })
	if n == 0 {
		return nil
	}
	due := make([]Pending, n)
	copy(due, q.items[:n])
	q.items = append(q.items[:0], q.items[n:]...)
	return due
}

// Resize changes the capacity. Requests already queued are kept.
func (q *Queue) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	q.mu.Lock()
	q.capacity = capacity
	q.mu.Unlock()
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many requests were refused because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Run replays due requests every interval until ctx is done.
func (q *Queue) Run(ctx context.Context, interval time.Duration, replay func(Pending)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range q.Drain(q.now()) {
				replay(p)
			}
		}
	}
}
