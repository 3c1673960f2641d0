package async

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/memory"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/query"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
	"github.com/mindcache/mindcache/internal/vector"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	dir := t.TempDir()
	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(dir, "mindcache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.InitSchema(context.Background()))

	v := validate.New(validate.Config{EnableRequestLimits: false, MaxBatchSize: 100, MaxMemoriesPerUser: 1000})
	qe := query.New(pool)
	vecIdx := vector.New(pool.WriteDB(), vector.DefaultConfig())
	memSvc := memory.New(pool, qe, v, vecIdx)
	sessSvc := session.New(pool, v)
	decayEng := decay.New(pool, model.DecayPolicy{MaxAgeHours: 24 * 365, ImportanceThreshold: 0})
	return New(memSvc, sessSvc, decayEng, 2)
}

func TestFacadeSaveAndGet(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	idFut := f.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "hello async"})
	id, err := idFut.Wait()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	getFut := f.Get(ctx, id)
	got, err := getFut.Wait()
	require.NoError(t, err)
	require.Equal(t, "hello async", got.Content)
}

func TestFacadeManyConcurrentSaves(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	futures := make([]*Future[string], 20)
	for i := range futures {
		futures[i] = f.Save(ctx, model.Memory{UserID: "u", SessionID: "s", Content: "m"})
	}
	for _, fut := range futures {
		id, err := fut.Wait()
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	resp, err := f.Recall(ctx, model.Filter{UserID: "u"}).Wait()
	require.NoError(t, err)
	require.Equal(t, 20, resp.TotalCount)
}

func TestFacadeRunDecay(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	stats, err := f.RunDecay(ctx).Wait()
	require.NoError(t, err)
	require.Equal(t, model.DecayRunCompleted, stats.Status)
}
