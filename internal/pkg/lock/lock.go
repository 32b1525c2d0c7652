// Package lock provides a distributed mutual-exclusion primitive keyed by
// string, with TTL-bounded leases and polling acquisition.
//
// The manager guarantees at most one concurrent execution of the guarded
// function per key across all processes sharing the same backing store.
// Leases are never renewed mid-execution: the guarded function is expected
// to finish well within the TTL, so TTLs should be chosen in seconds, not
// milliseconds, relative to the expected work duration.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
	"github.com/promptloop/promptloop/internal/pkg/metrics"
)

// KeyPrefix namespaces all lock keys in the backing store
const KeyPrefix = "lock:"

// releaseTimeout bounds the detached release call after fn returns
const releaseTimeout = 5 * time.Second

// Store is the backing key-value store contract. Both operations must be
// atomic: Acquire is set-if-absent with TTL, Release is compare-and-delete.
type Store interface {
	// Acquire sets key to token with the given TTL only if the key is
	// absent. Returns true when the lock was taken.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release deletes key only if its current value equals token, so a
	// lease that expired and was re-acquired by another holder is never
	// deleted out from under them. Returns true when the key was deleted.
	Release(ctx context.Context, key, token string) (bool, error)
}

// Config holds lock manager configuration
type Config struct {
	// TTL bounds both the lease duration and the acquisition deadline.
	TTL time.Duration
	// PollInterval is the sleep between acquisition attempts.
	PollInterval time.Duration
}

// Manager coordinates TTL-bounded leases over a shared store
type Manager struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// NewManager creates a new lock manager
func NewManager(store Store, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// WithLock runs fn while holding the lock for key. Acquisition polls until
// now+TTL; if the deadline passes the call fails with a LOCK_TIMEOUT
// application error and fn never runs. Release is always attempted after fn
// returns; release failures are logged and swallowed since the TTL frees the
// key eventually.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	storeKey := KeyPrefix + key
	token := uuid.New().String()

	start := time.Now()
	deadline := start.Add(m.cfg.TTL)

	for {
		ok, err := m.store.Acquire(ctx, storeKey, token, m.cfg.TTL)
		if err != nil {
			return err
		}
		if ok {
			break
		}

		if time.Now().Add(m.cfg.PollInterval).After(deadline) {
			metrics.RecordLockTimeout()
			return apperrors.LockTimeout(storeKey)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
	metrics.RecordLockWait(time.Since(start))

	defer func() {
		// Release must still reach the store when the caller's context is
		// already cancelled (task timeouts cancel mid-fn), otherwise the
		// lock is stranded until the TTL on exactly those paths.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		deleted, err := m.store.Release(releaseCtx, storeKey, token)
		if err != nil {
			m.logger.Error("failed to release lock, TTL will expire it",
				zap.String("key", storeKey),
				zap.Error(err),
			)
			return
		}
		if !deleted {
			m.logger.Warn("lock no longer held at release, lease likely expired",
				zap.String("key", storeKey),
			)
		}
	}()

	return fn(ctx)
}
