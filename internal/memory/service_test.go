package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/query"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
	"github.com/mindcache/mindcache/internal/vector"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(dir, "mindcache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, pool.InitSchema(context.Background()))

	v := validate.New(validate.Config{
		EnableRequestLimits: false,
		MaxBatchSize:        100,
		MaxMemoriesPerUser:  1000,
	})
	qe := query.New(pool)
	vi := vector.New(pool.WriteDB(), vector.DefaultConfig())
	return New(pool, qe, v, vi)
}

func TestSaveAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, model.Memory{
		UserID:    "user-1",
		SessionID: "session-1",
		Content:   "the sky is blue",
		Importance: 0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "the sky is blue", got.Content)
	require.False(t, got.CreatedAt.IsZero())
}

func TestSaveRejectsMissingFields(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Save(context.Background(), model.Memory{Content: "no user or session"})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSaveClampsImportance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, err := svc.Save(ctx, model.Memory{
		UserID: "user-1", SessionID: "s1", Content: "x", Importance: 5,
	})
	require.NoError(t, err)
	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, float32(1), got.Importance)
}

func TestUpdateContentAndClearTTL(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ttl := 24
	id, err := svc.Save(ctx, model.Memory{
		UserID: "user-1", SessionID: "s1", Content: "original", TTLHours: &ttl,
	})
	require.NoError(t, err)

	newContent := "updated"
	updated, err := svc.Update(ctx, id, model.MemoryUpdate{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, "updated", updated.Content)
	require.NotNil(t, updated.ExpiresAt) // ttl untouched, still re-derived

	cleared, err := svc.Update(ctx, id, model.MemoryUpdate{TTLHoursSet: true, TTLHours: nil})
	require.NoError(t, err)
	require.Nil(t, cleared.TTLHours)
	require.Nil(t, cleared.ExpiresAt)
}

func TestDeleteMemory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, err := svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "gone soon"})
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveBatchPartialFailure(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	batch := []model.Memory{
		{UserID: "u", SessionID: "s", Content: "good one"},
		{UserID: "", SessionID: "s", Content: "missing user"},
		{UserID: "u", SessionID: "s", Content: "also good"},
	}
	result, err := svc.SaveBatch(ctx, batch, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.SuccessCount)
	require.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Items, 3)
}

func TestSaveBatchFailFast(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	batch := []model.Memory{
		{UserID: "", SessionID: "s", Content: "bad"},
		{UserID: "u", SessionID: "s", Content: "never reached"},
	}
	result, err := svc.SaveBatch(ctx, batch, true)
	require.NoError(t, err)
	require.Equal(t, 1, len(result.Items))
	require.Equal(t, 0, result.SuccessCount)
}

func TestSaveBatchRejectsOversizedBatch(t *testing.T) {
	svc := newTestService(t)
	batch := make([]model.Memory, 200)
	for i := range batch {
		batch[i] = model.Memory{UserID: "u", SessionID: "s", Content: "x"}
	}
	_, err := svc.SaveBatch(context.Background(), batch, false)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRecallOrdersByRecencyAndFiltersExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "first"})
	require.NoError(t, err)
	_, err = svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "second"})
	require.NoError(t, err)

	resp, err := svc.Recall(ctx, model.Filter{UserID: "u"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	require.Equal(t, "second", resp.Data[0].Content)
	require.Equal(t, 2, resp.TotalCount)
}

func TestGetAndRecallFilterExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "stale"})
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	_, err = svc.store.UpdateMemory(ctx, id, func(m *model.Memory) {
		m.ExpiresAt = &past
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got)

	resp, err := svc.Recall(ctx, model.Filter{UserID: "u"})
	require.NoError(t, err)
	require.Len(t, resp.Data, 0)
}

func TestGetStampsAccessCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "counted"})
	require.NoError(t, err)

	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, first.AccessCount)
	require.NotNil(t, first.LastAccessedAt)

	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, second.AccessCount)
}

func TestQuotaEnforced(t *testing.T) {
	dir := t.TempDir()
	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(dir, "mindcache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.InitSchema(context.Background()))

	v := validate.New(validate.Config{MaxMemoriesPerUser: 1, MaxBatchSize: 10})
	svc := New(pool, query.New(pool), v, vector.New(pool.WriteDB(), vector.DefaultConfig()))
	ctx := context.Background()

	_, err = svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "one"})
	require.NoError(t, err)

	_, err = svc.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "two"})
	require.ErrorIs(t, err, model.ErrQuotaExceeded)
}

func TestExportAndStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Save(ctx, model.Memory{
			UserID: "u", SessionID: "s", Content: "m", Importance: 0.9,
		})
		require.NoError(t, err)
	}

	exported, err := svc.Export(ctx, "u")
	require.NoError(t, err)
	require.Len(t, exported, 3)

	stats, err := svc.Stats(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalCount)
	require.InDelta(t, 0.9, stats.MeanImportance, 0.001)
	require.Equal(t, 3, stats.ImportanceHistogram["high"])
	require.Equal(t, 3, stats.AgeHistogram["24h"])
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
}
