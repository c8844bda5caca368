package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// VaultEventProducer publishes committed audit records to the vault events topic.
// Writes are synchronous so the outbox row is only marked processed after the broker acknowledged it.
type VaultEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var _ MessagePublisher = (*VaultEventProducer)(nil)

func NewVaultEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*VaultEventProducer, error) {
	if cfg.VaultEventsTopic == "" {
		return nil, fmt.Errorf("kafka vault events topic is not configured")
	}
	if err := dialAndEnsure(cfg.Brokers, cfg.VaultEventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure vault events topic %s: %w", cfg.VaultEventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.VaultEventsTopic,
		Balancer:     &kafka.Hash{}, // same vault, same partition
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &VaultEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.VaultEventsTopic,
	}, nil
}

func (p *VaultEventProducer) Publish(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal vault event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish vault event", "topic", p.topic, "key", key, "error", err)
		return fmt.Errorf("failed to publish vault event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published vault event", "topic", p.topic, "key", key)
	return nil
}

func (p *VaultEventProducer) Close() error {
	p.logger.Info("Closing vault event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close vault event writer for topic %s: %w", p.topic, err)
	}
	return nil
}
