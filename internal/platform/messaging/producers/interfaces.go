package producers

import (
	"context"

	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// MessagePublisher publishes JSON values to a primary topic
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// DeadLetterPublisher parks messages the worker can never process
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason shared.FailureReason, detail string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
