// Package command implements command channels.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/arpguard/internal/config"
)

const defaultCommandTTL = 5 * time.Minute

// KafkaCommand is the wire format for commands received via Kafka.
//
// Example JSON:
//
//	{
//	  "version":    "v1",
//	  "target":     "node-01",
//	  "command":    "attacker_clear",
//	  "timestamp":  "2024-01-15T10:30:00Z",
//	  "request_id": "req-abc-123",
//	  "payload":    { "hardware_addr": "02:00:00:00:00:66" }
//	}
type KafkaCommand struct {
	Version   string          `json:"version"`    // Protocol version ("v1")
	Target    string          `json:"target"`     // Node hostname or "*" for broadcast
	Command   string          `json:"command"`    // Command name (e.g., "flags_set")
	Timestamp time.Time       `json:"timestamp"`  // When the command was issued
	RequestID string          `json:"request_id"` // Unique request ID for tracing
	Payload   json.RawMessage `json:"payload"`    // Command-specific parameters
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCommandConsumer consumes commands from Kafka and dispatches to handler.
type KafkaCommandConsumer struct {
	ccConfig config.CommandChannelConfig
	hostname string // local node hostname for target matching
	reader   messageReader
	handler  *CommandHandler
	ttl      time.Duration // command TTL for stale-command rejection
	now      func() time.Time
}

// NewKafkaCommandConsumer creates a new Kafka command consumer.
func NewKafkaCommandConsumer(ccConfig config.CommandChannelConfig, hostname string, handler *CommandHandler) (*KafkaCommandConsumer, error) {
	kc := ccConfig.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if ccConfig.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	// Determine start offset
	var startOffset int64
	switch ccConfig.AutoOffsetReset {
	case "earliest":
		startOffset = kafka.FirstOffset
	case "latest", "":
		startOffset = kafka.LastOffset
	default:
		return nil, fmt.Errorf("invalid auto_offset_reset %q", ccConfig.AutoOffsetReset)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kc.Brokers,
		Topic:          kc.Topic,
		GroupID:        ccConfig.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
		MaxWait:        1 * time.Second,
	})

	return newConsumer(ccConfig, hostname, reader, handler), nil
}

func newConsumer(ccConfig config.CommandChannelConfig, hostname string, reader messageReader, handler *CommandHandler) *KafkaCommandConsumer {
	ttl := ccConfig.CommandTTL
	if ttl <= 0 {
		ttl = defaultCommandTTL
	}
	return &KafkaCommandConsumer{
		ccConfig: ccConfig,
		hostname: hostname,
		reader:   reader,
		handler:  handler,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start starts consuming commands from Kafka.
// Blocks until context is cancelled or an unrecoverable error occurs.
func (c *KafkaCommandConsumer) Start(ctx context.Context) error {
	slog.Info("kafka command consumer started",
		"brokers", c.ccConfig.Kafka.Brokers,
		"topic", c.ccConfig.Kafka.Topic,
		"group_id", c.ccConfig.GroupID,
		"hostname", c.hostname,
		"ttl", c.ttl,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("kafka command consumer stopped", "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Error("failed to fetch kafka message", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				continue
			}
		}

		if err := c.processMessage(ctx, msg); err != nil {
			slog.Error("failed to process command",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit message", "error", err)
		}
	}
}

// processMessage runs a single Kafka message as a KafkaCommand.
func (c *KafkaCommandConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var kCmd KafkaCommand
	if err := json.Unmarshal(msg.Value, &kCmd); err != nil {
		return fmt.Errorf("failed to parse kafka command: %w", err)
	}

	if kCmd.Target != "*" && kCmd.Target != "" && kCmd.Target != c.hostname {
		slog.Debug("skipping command not targeting this node",
			"target", kCmd.Target,
			"hostname", c.hostname,
			"request_id", kCmd.RequestID,
		)
		return nil
	}

	if !kCmd.Timestamp.IsZero() {
		if age := c.now().Sub(kCmd.Timestamp); age > c.ttl {
			slog.Warn("skipping stale command",
				"command", kCmd.Command,
				"request_id", kCmd.RequestID,
				"timestamp", kCmd.Timestamp,
				"age", age,
				"ttl", c.ttl,
			)
			return nil
		}
	}

	slog.Info("received kafka command",
		"command", kCmd.Command,
		"request_id", kCmd.RequestID,
		"target", kCmd.Target,
		"version", kCmd.Version,
	)

	cmd := Command{
		Method: kCmd.Command,
		Params: kCmd.Payload,
		ID:     kCmd.RequestID,
	}
	response := c.handler.Handle(ctx, cmd)
	record(cmd.Method, "kafka", response)

	if response.Error != nil {
		slog.Error("command execution failed",
			"method", cmd.Method,
			"request_id", cmd.ID,
			"error_code", response.Error.Code,
			"error_message", response.Error.Message,
		)
		return fmt.Errorf("command failed: %s", response.Error.Message)
	}

	slog.Info("command executed successfully",
		"method", cmd.Method,
		"request_id", cmd.ID,
	)
	return nil
}

// Stop closes the Kafka reader. Safe to call more than once.
func (c *KafkaCommandConsumer) Stop() error {
	if c.reader == nil {
		return nil
	}
	reader := c.reader
	c.reader = nil
	slog.Info("closing kafka command consumer")
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
