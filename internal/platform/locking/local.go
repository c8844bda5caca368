package locking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex with timed acquisition
type LocalLocker struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	timeout time.Duration
	logger  *slog.Logger
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker(logger *slog.Logger, timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		locks:   make(map[string]*keyLock),
		timeout: timeout,
		logger:  logger,
	}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.acquireRef(key)
	defer l.releaseRef(key, kl)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case kl.ch <- struct{}{}:
	case <-timer.C:
		l.logger.Warn("Lock acquisition timed out", "lock_key", key, "timeout", l.timeout.String())
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports how many keys currently have holders or waiters
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
