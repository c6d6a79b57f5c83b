package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	repo := NewMemoryStore()
	clock := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	ctx := context.Background()

	t.Run("ClaimAndComplete", func(t *testing.T) {
		claimed, _, err := repo.Claim(ctx, "k1", time.Hour)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, existing, _ := repo.Claim(ctx, "k1", time.Hour)
		assert.False(t, claimed)
		assert.Equal(t, pendingValue, existing)

		require.NoError(t, repo.Complete(ctx, "k1", "bk-9", time.Hour))
		_, existing, _ = repo.Claim(ctx, "k1", time.Hour)
		assert.Equal(t, "bk-9", existing)
	})

	t.Run("Expiry", func(t *testing.T) {
		claimed, _, _ := repo.Claim(ctx, "k2", time.Minute)
		assert.True(t, claimed)

		clock = clock.Add(time.Minute)
		claimed, _, _ = repo.Claim(ctx, "k2", time.Minute)
		assert.True(t, claimed)
	})

	t.Run("Release", func(t *testing.T) {
		_, _, _ = repo.Claim(ctx, "k3", time.Hour)
		require.NoError(t, repo.Release(ctx, "k3"))
		claimed, _, _ := repo.Claim(ctx, "k3", time.Hour)
		assert.True(t, claimed)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "rl:booking:create:owner-1"
		allowed, _ := repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.False(t, allowed)

		clock = clock.Add(time.Second)
		allowed, _ = repo.CheckRateLimit(ctx, key, 2, time.Second)
		assert.True(t, allowed)
	})
}
