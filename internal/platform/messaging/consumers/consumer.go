package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// MessageHandler processes one message. A non-nil error means the message should be retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads the cash drop topic and commits each offset only after its handler succeeded
type KafkaConsumer struct {
	reader     KafkaReader
	logger     *slog.Logger
	retryDelay time.Duration
}

var _ Consumer = (*KafkaConsumer)(nil)

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.FirstOffset
	}
	return &KafkaConsumer{
		logger:     logger.With("topic", cfg.CashDropTopic, "group_id", cfg.ConsumerGroup),
		retryDelay: initialRetryDelay,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.CashDropTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts the fetch loop in the background. It stops when ctx is canceled.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic")
	go c.run(ctx, handler)
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return
			}
			c.logger.Error("Failed to fetch message from Kafka", "error", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if !c.handleWithRetry(ctx, handler, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handleWithRetry redelivers msg to handler with exponential backoff until it succeeds.
// Handlers dead-letter permanent failures and return nil, so only transient errors loop here.
// It returns false if ctx was canceled first, leaving the offset uncommitted.
func (c *KafkaConsumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message) bool {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		c.logger.Error("Failed to process message, retrying without committing",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)
		if !sleep(ctx, delay) {
			return false
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
