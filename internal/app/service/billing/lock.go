package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/pkg/config"
)

// UserLocker serializes verifications for one user.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

func verifyLockKey(userID string) string {
	return "billing:verify_lock:user:" + userID
}

// NewUserLocker uses redis when available and an in-process lock otherwise.
func NewUserLocker(cfg *config.Config, rs *redsync.Redsync, log *zap.SugaredLogger) UserLocker {
	if rs == nil {
		return NewLocalLocker(cfg.Redis.LockTTL)
	}
	return &redisLocker{rs: rs, ttl: cfg.Redis.LockTTL, log: log}
}

type redisLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
	log *zap.SugaredLogger
}

const (
	lockTries      = 20
	lockRetryDelay = 150 * time.Millisecond
)

func (l *redisLocker) Lock(ctx context.Context, userID string) (func(), error) {
	ttl := l.ttl
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	m := l.rs.NewMutex(verifyLockKey(userID),
		redsync.WithExpiry(ttl),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerifyInProgress, err)
	}
	return func() {
		if _, err := m.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			l.log.Warnw("failed to release verify lock", "user_id", userID, "error", err.Error())
		}
	}, nil
}

// LocalLocker is a keyed mutex for single-instance deployments.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker waits at most wait for a busy lock.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &LocalLocker{wait: wait, locks: map[string]*localLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-lk.ch; l.release(userID, lk) }) }, nil
	case <-ctx.Done():
		l.release(userID, lk)
		return nil, fmt.Errorf("%w: %w", ErrVerifyInProgress, ctx.Err())
	case <-timer.C:
		l.release(userID, lk)
		return nil, ErrVerifyInProgress
	}
}

func (l *LocalLocker) release(userID string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, userID)
	}
}
