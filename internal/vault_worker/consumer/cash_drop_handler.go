package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/gaming-vault-ledger/internal/platform/messaging/producers"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/vault_worker/service"
)

// CashDropHandler handles machine drop messages from Kafka
type CashDropHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	recorder          *metrics.Recorder
	logger            *slog.Logger
}

func NewCashDropHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
	recorder *metrics.Recorder,
) *CashDropHandler {
	return &CashDropHandler{
		processingService: processingService,
		producer:          producer,
		recorder:          recorder,
		logger:            logger,
	}
}

// HandleMessage returns nil when the offset may be committed. Transient failures are returned so the
// consumer redelivers; permanent ones are parked on the DLQ.
func (h *CashDropHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.CashDropRequest
	if err := json.Unmarshal(value, &request); err != nil {
		h.logger.Error("Failed to unmarshal cash drop from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		h.recorder.CashDrop(metrics.OutcomeRejected)
		return h.deadLetter(ctx, h.logger, key, value, shared.FailureReasonUnmarshalFailed, err)
	}

	logger := h.logger
	if request.CorrelationID != "" {
		logger = h.logger.With("correlation_id", request.CorrelationID)
	}

	logger.Info("Received cash drop",
		"request_id", request.RequestID.String(),
		"vault_id", request.VaultID.String(),
		"machine_id", request.MachineID,
	)

	err := h.processingService.ProcessCashDrop(ctx, &request)
	if err == nil {
		h.recorder.CashDrop(metrics.OutcomeSuccess)
		return nil
	}

	reason, permanent := service.Classify(err)
	if !permanent {
		h.recorder.CashDrop(metrics.OutcomeError)
		logger.Error("Cash drop failed, will retry",
			"request_id", request.RequestID.String(),
			"error", err,
		)
		return fmt.Errorf("processing cash drop %s failed: %w", request.RequestID.String(), err)
	}

	h.recorder.CashDrop(metrics.OutcomeRejected)
	logger.Warn("Cash drop rejected",
		"request_id", request.RequestID.String(),
		"reason", reason,
		"error", err,
	)
	return h.deadLetter(ctx, logger, key, value, reason, err)
}

func (h *CashDropHandler) deadLetter(
	ctx context.Context,
	logger *slog.Logger,
	key, value []byte,
	reason shared.FailureReason,
	cause error,
) error {
	if h.producer == nil {
		logger.Warn("DLQ disabled, dropping unprocessable cash drop", "message_key", string(key), "reason", reason)
		return nil
	}

	dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason, cause.Error())
	switch {
	case dlqErr == nil:
		logger.Info("Published unprocessable cash drop to DLQ", "message_key", string(key), "reason", reason)
		return nil
	case errors.Is(dlqErr, producers.ErrDLQDisabled):
		logger.Warn("DLQ disabled, dropping unprocessable cash drop", "message_key", string(key), "reason", reason)
		return nil
	default:
		logger.Error("Failed to publish cash drop to DLQ",
			"dlq_error", dlqErr,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("dead-lettering cash drop: %w", dlqErr)
	}
}
