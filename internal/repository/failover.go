package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"safepaw/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore sends calls to primary until it fails, then to fallback,
// retrying primary once per recovery interval.
type FailoverStore struct {
	primary  domain.KeyValueStore
	fallback domain.KeyValueStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverStore(primary, fallback domain.KeyValueStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// shouldTryPrimary reports whether this call goes to primary.
func (r *FailoverStore) shouldTryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverStore) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary key-value store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

func (r *FailoverStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary key-value store recovered")
	}
}

func withFailover[T any](r *FailoverStore, op string, call func(domain.KeyValueStore) (T, error)) (T, error) {
	if r.shouldTryPrimary() {
		v, err := call(r.primary)
		if err == nil {
			r.markUp()
			return v, nil
		}
		r.markDown(op, err)
	}
	return call(r.fallback)
}

type claimResult struct {
	claimed  bool
	existing string
}

func (r *FailoverStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	res, err := withFailover(r, "claim", func(s domain.KeyValueStore) (claimResult, error) {
		ok, existing, err := s.Claim(ctx, key, ttl)
		return claimResult{claimed: ok, existing: existing}, err
	})
	return res.claimed, res.existing, err
}

func (r *FailoverStore) Complete(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := withFailover(r, "complete", func(s domain.KeyValueStore) (struct{}, error) {
		return struct{}{}, s.Complete(ctx, key, value, ttl)
	})
	return err
}

func (r *FailoverStore) Release(ctx context.Context, key string) error {
	_, err := withFailover(r, "release", func(s domain.KeyValueStore) (struct{}, error) {
		return struct{}{}, s.Release(ctx, key)
	})
	return err
}

func (r *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return withFailover(r, "rate_limit", func(s domain.KeyValueStore) (bool, error) {
		return s.CheckRateLimit(ctx, key, limit, window)
	})
}
