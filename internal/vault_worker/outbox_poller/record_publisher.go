package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/outbox"
	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/platform/messaging/producers"
)

// ErrUndecodablePayload marks an outbox message that can never be published
var ErrUndecodablePayload = errors.New("outbox payload is not an audit record")

// RecordPublisher delivers one outbox message to every downstream reader
type RecordPublisher interface {
	PublishRecord(ctx context.Context, message *outbox.Message) error
}

// AuditRecordPublisher writes the record to the read model, then to the vault events topic
type AuditRecordPublisher struct {
	outboxRepo outbox.Repository
	projection audit.ProjectionRepository
	events     producers.MessagePublisher
	logger     *slog.Logger
}

func NewAuditRecordPublisher(
	outboxRepo outbox.Repository,
	projection audit.ProjectionRepository,
	events producers.MessagePublisher,
	logger *slog.Logger,
) *AuditRecordPublisher {
	return &AuditRecordPublisher{
		outboxRepo: outboxRepo,
		projection: projection,
		events:     events,
		logger:     logger,
	}
}

// PublishRecord is safe to repeat: the projection upsert is keyed by record id and
// consumers of the events topic dedupe on it
func (p *AuditRecordPublisher) PublishRecord(ctx context.Context, message *outbox.Message) error {
	record, err := message.GetRecord()
	if err != nil {
		p.logger.Error("Failed to decode audit record from outbox payload",
			"outbox_id", message.ID, "record_id", message.RecordID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("%w: outbox %d: %v", ErrUndecodablePayload, message.ID, err)
	}

	logger := p.logger
	if record.CorrelationID != "" {
		logger = p.logger.With("correlation_id", record.CorrelationID)
	}

	if err := p.projection.Upsert(ctx, record); err != nil {
		logger.Error("Failed to project audit record", "record_id", record.ID.String(), "error", err)
		return fmt.Errorf("failed to project audit record %s: %w", record.ID, err)
	}

	if p.events != nil {
		if err := p.events.Publish(ctx, record.VaultID.String(), record); err != nil {
			logger.Error("Failed to publish vault event", "record_id", record.ID.String(), "error", err)
			return fmt.Errorf("failed to publish vault event %s: %w", record.ID, err)
		}
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message PROCESSED",
			"outbox_id", message.ID, "record_id", record.ID.String(), "error", err,
		)
		return fmt.Errorf("record %s delivered, but failed to mark outbox %d as PROCESSED: %w", record.ID, message.ID, err)
	}

	logger.Info("Delivered audit record",
		"outbox_id", message.ID,
		"record_id", record.ID.String(),
		"vault_id", record.VaultID.String(),
		"kind", record.Kind,
		"sequence", record.Sequence,
	)
	return nil
}
