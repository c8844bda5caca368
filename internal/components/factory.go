// Package components wires repositories, locking and the engine services shared by both binaries.
package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/gaming-vault-ledger/internal/data/mongo"
	"github.com/gaming-vault-ledger/internal/data/postgres"
	"github.com/gaming-vault-ledger/internal/domain/audit"
	"github.com/gaming-vault-ledger/internal/domain/outbox"
	"github.com/gaming-vault-ledger/internal/engine"
	"github.com/gaming-vault-ledger/internal/platform/locking"
	"github.com/gaming-vault-ledger/internal/platform/metrics"
	"github.com/gaming-vault-ledger/internal/platform/persistence"
	"github.com/gaming-vault-ledger/internal/vault_worker/service"
	"github.com/redis/go-redis/v9"
)

// Engine groups the services built on one Postgres pool
type Engine struct {
	Ledger      *engine.Ledger
	Shifts      *engine.ShiftService
	Collections *engine.CollectionService
	OutboxRepo  outbox.Repository
	Projection  audit.ProjectionRepository
}

// CreateLocker picks the lock backend from configuration. The returned closer releases the
// Redis client, if one was opened.
func CreateLocker(ctx context.Context, logger *slog.Logger, cfg *config.Config) (locking.Locker, func() error, error) {
	switch cfg.Locking.Backend {
	case config.LockBackendRedis:
		client, err := locking.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Redis locks", "addr", cfg.Redis.Addr)
		return locking.NewRedisLocker(logger, redis.UniversalClient(client), cfg.Locking), client.Close, nil
	case config.LockBackendLocal, "":
		logger.Info("Using in-process locks")
		return locking.NewLocalLocker(logger, cfg.Locking.Timeout), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Locking.Backend)
	}
}

// CreateEngine builds the ledger and the services layered on it. mongoDB may be nil, in which
// case no projection repository is created.
func CreateEngine(
	logger *slog.Logger,
	cfg *config.Config,
	pgDB *persistence.PostgresDB,
	mongoDB *persistence.MongoDB,
	locker locking.Locker,
	recorder *metrics.Recorder,
) *Engine {
	outboxRepo := postgres.NewOutboxRepository(logger, pgDB)

	ledger := engine.NewLedger(
		logger.With("component", "ledger"),
		pgDB,
		locker,
		postgres.NewVaultRepository(logger, pgDB),
		postgres.NewAuditRepository(logger, pgDB),
		outboxRepo,
		cfg.Engine,
		recorder,
	)

	e := &Engine{
		Ledger:      ledger,
		Shifts:      engine.NewShiftService(logger.With("component", "shifts"), ledger, postgres.NewShiftRepository(logger, pgDB)),
		Collections: engine.NewCollectionService(logger.With("component", "collections"), ledger, postgres.NewCollectionRepository(logger, pgDB)),
		OutboxRepo:  outboxRepo,
	}
	if mongoDB != nil {
		e.Projection = mongo.NewAuditProjectionRepository(logger, mongoDB.Database())
	}
	return e
}

// CreateProcessingService wraps the cash drop service in a bounded worker pool, falling back to
// the unpooled service if the pool cannot be created.
func CreateProcessingService(ledger service.CashArrivalRecorder, cfg *config.Config, logger *slog.Logger) service.ProcessingService {
	baseService := service.NewCashDropService(ledger, logger)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
