// Package alert publishes gateway guard findings to Kafka.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/guard"
	"firestige.xyz/arpguard/internal/metrics"
)

const (
	defaultMaxAttempts  = 3
	writeTimeout        = 5 * time.Second
	suppressCleanupRate = time.Minute
)

// Publisher receives guard findings.
type Publisher interface {
	Publish(f guard.Finding)
	Close() error
}

// Nop discards findings.
type Nop struct{}

func (Nop) Publish(guard.Finding) {}
func (Nop) Close() error          { return nil }

// Event is the JSON document written for each finding.
type Event struct {
	Node        string `json:"node"`
	Kind        string `json:"kind"`
	Trigger     string `json:"trigger"`
	Interface   string `json:"interface"`
	Gateway     string `json:"gateway"`
	SenderIP    string `json:"sender_ip"`
	SenderHW    string `json:"sender_hw"`
	BoundHW     string `json:"bound_hw,omitempty"`
	Invalidated bool   `json:"invalidated"`
	Timestamp   int64  `json:"timestamp"`
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes findings to a Kafka topic from a background
// goroutine. Publish never blocks: findings are dropped when the queue is
// full, and repeats of a finding within the suppression window are skipped.
type KafkaPublisher struct {
	node   string
	writer messageWriter
	seen   *cache.Cache
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}

	published  atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
	suppressed atomic.Uint64
}

// NewKafkaPublisher creates a publisher for the configured topic.
func NewKafkaPublisher(node string, cfg config.AlertsConfig) (*KafkaPublisher, error) {
	wc := kafka.WriterConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  defaultMaxAttempts,
	}
	switch cfg.Compression {
	case "none", "":
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	p := newPublisher(node, kafka.NewWriter(wc), cfg.QueueSize, cfg.Suppress)
	slog.Info("alert publisher started",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topic,
		"compression", cfg.Compression,
	)
	return p, nil
}

func newPublisher(node string, w messageWriter, queueSize int, suppress time.Duration) *KafkaPublisher {
	if queueSize < 1 {
		queueSize = 1
	}
	p := &KafkaPublisher{
		node:   node,
		writer: w,
		now:    time.Now,
		events: make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	if suppress > 0 {
		p.seen = cache.New(suppress, suppressCleanupRate)
	}
	go p.run()
	return p
}

// Publish queues a finding. Findings that detected nothing are ignored.
func (p *KafkaPublisher) Publish(f guard.Finding) {
	if !f.Detected() {
		return
	}
	if p.seen != nil {
		key := fmt.Sprintf("%s|%s|%s|%s", f.Kind, f.Interface, f.SenderIP, f.SenderHW)
		if err := p.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			p.suppressed.Add(1)
			metrics.AlertsTotal.WithLabelValues("suppressed").Inc()
			return
		}
	}

	ev := p.event(f)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
		metrics.AlertsTotal.WithLabelValues("dropped").Inc()
	}
}

func (p *KafkaPublisher) event(f guard.Finding) Event {
	ev := Event{
		Node:        p.node,
		Kind:        f.Kind.String(),
		Trigger:     f.Trigger.String(),
		Interface:   f.Interface,
		Gateway:     f.Gateway.String(),
		SenderIP:    f.SenderIP.String(),
		SenderHW:    f.SenderHW.String(),
		Invalidated: f.Invalidated,
		Timestamp:   p.now().UnixMilli(),
	}
	if len(f.BoundHW) > 0 {
		ev.BoundHW = f.BoundHW.String()
	}
	return ev
}

func (p *KafkaPublisher) run() {
	defer close(p.done)

	for ev := range p.events {
		value, err := json.Marshal(ev)
		if err != nil {
			p.failed.Add(1)
			metrics.AlertsTotal.WithLabelValues("failed").Inc()
			continue
		}
		msg := kafka.Message{
			Key:   []byte(ev.Interface + "/" + ev.SenderIP),
			Value: value,
			Time:  time.UnixMilli(ev.Timestamp),
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(ev.Kind)},
				{Key: "node", Value: []byte(ev.Node)},
			},
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.failed.Add(1)
			metrics.AlertsTotal.WithLabelValues("failed").Inc()
			slog.Warn("failed to publish alert", "kind", ev.Kind, "sender_ip", ev.SenderIP, "error", err)
			continue
		}
		p.published.Add(1)
		metrics.AlertsTotal.WithLabelValues("published").Inc()
	}
}

// Close flushes queued findings and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.done
	slog.Info("alert publisher stopped",
		"published", p.published.Load(),
		"failed", p.failed.Load(),
		"dropped", p.dropped.Load(),
		"suppressed", p.suppressed.Load(),
	)
	return p.writer.Close()
}
