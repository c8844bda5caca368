package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/domain/outbox"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
)

// Poller drains pending outbox messages in creation order
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        RecordPublisher
	recorder         *metrics.Recorder
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher RecordPublisher,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		recorder:         recorder,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error processing pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := p.publisher.PublishRecord(ctx, msg)
		if err == nil {
			p.recorder.OutboxMessage(metrics.OutcomeSuccess)
			continue
		}

		// the publisher already parked it
		if errors.Is(err, ErrUndecodablePayload) {
			p.recorder.OutboxMessage(metrics.OutcomeRejected)
			continue
		}

		p.recorder.OutboxMessage(metrics.OutcomeError)
		p.logger.Error("Failed to publish outbox message",
			"outbox_id", msg.ID, "record_id", msg.RecordID.String(), "current_attempts", msg.Attempts, "error", err,
		)

		if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			p.logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
			continue
		}

		if msg.Attempts+1 >= p.maxRetryAttempts {
			p.logger.Warn("Max retry attempts reached, marking outbox message FAILED_TO_PUBLISH",
				"outbox_id", msg.ID, "record_id", msg.RecordID.String(), "attempts_made", msg.Attempts+1,
			)
			if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
				p.logger.Error("Failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", msg.ID, "error", errUpdate)
			}
		}
	}
	return nil
}
