package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
)

func newTestDeps(t *testing.T) (*storage.Pool, *Service) {
	t.Helper()
	dir := t.TempDir()
	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(dir, "mindcache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.InitSchema(context.Background()))

	v := validate.New(validate.Config{EnableRequestLimits: false, MaxBatchSize: 100})
	return pool, New(pool, v)
}

func TestCreateAndGetSession(t *testing.T) {
	_, svc := newTestDeps(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "user-1", "my session")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, sess.CreatedAt, sess.LastActive)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "my session", got.Name)
}

func TestCreateRejectsMissingUser(t *testing.T) {
	_, svc := newTestDeps(t)
	_, err := svc.Create(context.Background(), "", "x")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestGenerateSummaryRequiresMemories(t *testing.T) {
	_, svc := newTestDeps(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx, "u", "s")
	require.NoError(t, err)

	_, err = svc.GenerateSummary(ctx, sess.ID)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestGenerateSummary(t *testing.T) {
	pool, svc := newTestDeps(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx, "u", "s")
	require.NoError(t, err)

	contents := []string{
		"the rocket launched successfully into orbit today",
		"engineers celebrated the rocket launch with champagne",
		"the program received additional funding",
	}
	for i, c := range contents {
		require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
			ID:         "mem-" + string(rune('a'+i)),
			UserID:     "u",
			SessionID:  sess.ID,
			Content:    c,
			Importance: 0.5 + float32(i)*0.2,
		}))
	}

	summary, err := svc.GenerateSummary(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 3, summary.MemoryCount)
	require.NotEmpty(t, summary.Summary)
	require.Contains(t, summary.KeyTopics, "rocket")
}

func TestDeleteSessionPurgesMemories(t *testing.T) {
	pool, svc := newTestDeps(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx, "u", "s")
	require.NoError(t, err)

	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "m1", UserID: "u", SessionID: sess.ID, Content: "hello",
	}))

	require.NoError(t, svc.Delete(ctx, sess.ID, true))

	got, err := pool.GetMemory(ctx, "m1")
	require.NoError(t, err)
	require.Nil(t, got)

	gotSess, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, gotSess)
}

func TestAnalytics(t *testing.T) {
	pool, svc := newTestDeps(t)
	ctx := context.Background()
	sess, err := svc.Create(ctx, "u", "s")
	require.NoError(t, err)

	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "m1", UserID: "u", SessionID: sess.ID, Content: "one",
	}))
	require.NoError(t, pool.CreateMemory(ctx, &model.Memory{
		ID: "m2", UserID: "u", SessionID: sess.ID, Content: "two",
	}))

	a, err := svc.Analytics(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 1, a.SessionCount)
	require.Equal(t, 2, a.TotalMemoryCount)
	require.Equal(t, sess.ID, a.MostActiveSession)
}
