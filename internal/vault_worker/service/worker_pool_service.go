package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// ErrProcessingPanic marks a drop whose processing panicked. Redelivering it would panic again.
var ErrProcessingPanic = errors.New("panic processing cash drop")

// WorkerPoolProcessingService bounds how many cash drops are committed at once
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

var _ ProcessingService = (*WorkerPoolProcessingService)(nil)

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessCashDrop runs the drop on a pooled worker and waits for its result
func (s *WorkerPoolProcessingService) ProcessCashDrop(ctx context.Context, request *shared.CashDropRequest) error {
	resultChan := make(chan error, 1)
	requestCopy := *request

	err := s.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("Recovered panic while processing cash drop", "request_id", requestCopy.RequestID.String(), "panic", p)
				resultChan <- fmt.Errorf("%w %s: %v", ErrProcessingPanic, requestCopy.RequestID, p)
			}
		}()
		resultChan <- s.baseService.ProcessCashDrop(ctx, &requestCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit cash drop to worker pool",
			"request_id", request.RequestID.String(),
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
