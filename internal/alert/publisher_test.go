package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/guard"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	block  chan struct{}
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func finding(sender string, last byte) guard.Finding {
	return guard.Finding{
		Kind:        guard.KindImpersonation,
		Trigger:     core.OpRequest,
		Interface:   "eth0",
		Gateway:     netip.MustParseAddr("10.0.0.254"),
		SenderIP:    netip.MustParseAddr(sender),
		SenderHW:    net.HardwareAddr{0x02, 0, 0, 0, 0, last},
		BoundHW:     net.HardwareAddr{0x02, 0, 0, 0, 0, last},
		Invalidated: true,
	}
}

func TestPublishWritesEvent(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher("node-a", w, 4, 0)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	p.Publish(guard.Finding{})
	p.Publish(finding("10.0.0.66", 0x66))
	require.NoError(t, p.Close())

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "eth0/10.0.0.66", string(msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, "node-a", ev.Node)
	assert.Equal(t, guard.KindImpersonation.String(), ev.Kind)
	assert.Equal(t, "request", ev.Trigger)
	assert.Equal(t, "10.0.0.254", ev.Gateway)
	assert.Equal(t, "02:00:00:00:00:66", ev.SenderHW)
	assert.True(t, ev.Invalidated)
	assert.EqualValues(t, 1700000000000, ev.Timestamp)
	assert.True(t, w.closed)
	assert.EqualValues(t, 1, p.published.Load())
}

func TestPublishSuppressesRepeats(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher("node-a", w, 8, time.Minute)

	p.Publish(finding("10.0.0.66", 0x66))
	p.Publish(finding("10.0.0.66", 0x66))
	p.Publish(finding("10.0.0.67", 0x67))
	require.NoError(t, p.Close())

	assert.Len(t, w.messages(), 2)
	assert.EqualValues(t, 1, p.suppressed.Load())
}

func TestPublishSuppressesConcurrentRepeats(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher("node-a", w, 64, time.Minute)

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p.Publish(finding("10.0.0.66", 0x66))
		}()
	}
	close(start)
	wg.Wait()
	require.NoError(t, p.Close())

	assert.Len(t, w.messages(), 1)
	assert.EqualValues(t, workers-1, p.suppressed.Load())
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	p := newPublisher("node-a", w, 1, 0)

	p.Publish(finding("10.0.0.1", 1))
	// the first event may already be held by the writer goroutine
	assert.Eventually(t, func() bool {
		p.Publish(finding("10.0.0.2", 2))
		return p.dropped.Load() > 0
	}, time.Second, time.Millisecond)

	close(w.block)
	require.NoError(t, p.Close())
	assert.EqualValues(t, len(w.messages()), p.published.Load())
}

func TestPublishCountsFailures(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker unavailable")}
	p := newPublisher("node-a", w, 4, 0)

	p.Publish(finding("10.0.0.66", 0x66))
	require.NoError(t, p.Close())

	assert.EqualValues(t, 1, p.failed.Load())
	assert.Zero(t, p.published.Load())
}

func TestPublishAfterClose(t *testing.T) {
	p := newPublisher("node-a", &recordingWriter{}, 1, 0)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.NotPanics(t, func() { p.Publish(finding("10.0.0.66", 0x66)) })
}

func TestNewKafkaPublisherRejectsCompression(t *testing.T) {
	_, err := NewKafkaPublisher("node-a", config.AlertsConfig{
		Kafka:       config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "arp-alerts"},
		Compression: "zstd",
	})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(finding("10.0.0.66", 0x66))
	assert.NoError(t, p.Close())
}
