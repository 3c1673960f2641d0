package decay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/storage"
)

func newTestPool(t *testing.T) *storage.Pool {
	t.Helper()
	dir := t.TempDir()
	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(dir, "mindcache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.InitSchema(context.Background()))
	return pool
}

func TestRunExpiresTTLMemories(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "expired-1", UserID: "u", SessionID: "s", Content: "old", ExpiresAt: &past,
	}))
	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "fresh-1", UserID: "u", SessionID: "s", Content: "new",
	}))

	eng := New(pool, model.DecayPolicy{MaxAgeHours: 24 * 365, ImportanceThreshold: 0})
	stats, err := eng.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ExpiredCount)
	require.Equal(t, model.DecayRunCompleted, stats.Status)

	got, err := pool.GetMemory(ctx, "expired-1")
	require.NoError(t, err)
	require.Nil(t, got)

	still, err := pool.GetMemory(ctx, "fresh-1")
	require.NoError(t, err)
	require.NotNil(t, still)
}

func TestRunPurgesOldUnimportant(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "m1", UserID: "u", SessionID: "s", Content: "stale", Importance: 0.1, CreatedAt: old, UpdatedAt: old,
	}))

	eng := New(pool, model.DecayPolicy{MaxAgeHours: 24, ImportanceThreshold: 0.5})
	stats, err := eng.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PurgedCount)
}

func TestRunCompressesGroups(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	old := time.Now().Add(-72 * time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
			ID: "c" + string(rune('a'+i)), UserID: "u", SessionID: "s",
			Content: "detail about a meeting", Importance: 0.1, CreatedAt: old, UpdatedAt: old,
		}))
	}

	eng := New(pool, model.DecayPolicy{
		MaxAgeHours: 24, ImportanceThreshold: 0.5, CompressionEnabled: true,
	})
	stats, err := eng.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.CompressedGroups)
	require.Equal(t, 3, stats.CompressedOriginals)
}

func TestRunEnforcesQuota(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
			ID: "q" + string(rune('a'+i)), UserID: "u", SessionID: "s",
			Content: "x", Importance: float32(i) / 10,
		}))
	}

	eng := New(pool, model.DecayPolicy{MaxAgeHours: 24 * 365, ImportanceThreshold: 0, MaxMemoriesPerUser: 3})
	stats, err := eng.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.QuotaEvictedCount)

	count, err := pool.CountActiveMemories(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestGetRecommendationsEmptyStore(t *testing.T) {
	pool := newTestPool(t)
	eng := New(pool, model.DecayPolicy{})
	rec, err := eng.GetRecommendations(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rec.Suggestions)
}
