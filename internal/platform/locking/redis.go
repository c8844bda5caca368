package locking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gaming-vault-ledger/internal/config"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedisLocker is a distributed keyed mutex using the RedLock algorithm over go-redis
type RedisLocker struct {
	redsync *redsync.Redsync
	cfg     config.LockingConfig
	logger  *slog.Logger
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(logger *slog.Logger, client redis.UniversalClient, cfg config.LockingConfig) *RedisLocker {
	return &RedisLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		cfg:     cfg,
		logger:  logger,
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.redsync.NewMutex(
		key,
		redsync.WithExpiry(l.cfg.Expiry),
		redsync.WithTries(l.cfg.Tries),
		redsync.WithRetryDelay(l.cfg.RetryDelay),
	)

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	err := mutex.LockContext(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Warn("Lock acquisition timed out", "lock_key", key, "error", err)
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		l.logger.Error("Failed to acquire lock", "lock_key", key, "error", err)
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	defer func() {
		// Released even when the request context is already cancelled
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.Error("Failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
