package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
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
	"github.com/mindcache/mindcache/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	pool, err := storage.Open(storage.PoolConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.InitSchema(context.Background()))

	v := validate.New(validate.Config{MaxMemoriesPerUser: 1000, ImportanceThreshold: 0.3})
	qe := query.New(pool)
	vecIdx := vector.New(pool.WriteDB(), vector.DefaultConfig())
	memSvc := memory.New(pool, qe, v, vecIdx)
	sessSvc := session.New(pool, v)
	decayEng := decay.New(pool, model.DecayPolicy{MaxAgeHours: 24 * 30, MaxMemoriesPerUser: 1000})

	cfg := config.DefaultConfig()
	cfg.Server.AutoPort = false
	return NewServer(cfg, memSvc, sessSvc, decayEng)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, "GET", "/api/v1/health", nil)
	require.Equal(t, 200, rec.Code)
}

func TestMemoryLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	createRec := doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id":    "alice",
		"session_id": "sess-1",
		"content":    "remember to water the plants",
		"importance": 0.5,
	})
	require.Equal(t, 201, createRec.Code)

	var created Response
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	data := created.Data.(map[string]any)
	id := data["id"].(string)
	require.NotEmpty(t, id)

	getRec := doJSON(t, srv, "GET", "/api/v1/memories/"+id, nil)
	require.Equal(t, 200, getRec.Code)

	updateRec := doJSON(t, srv, "PUT", "/api/v1/memories/"+id, map[string]any{
		"content": "watered the plants already",
	})
	require.Equal(t, 200, updateRec.Code)

	recallRec := doJSON(t, srv, "GET", "/api/v1/memories?user_id=alice", nil)
	require.Equal(t, 200, recallRec.Code)

	deleteRec := doJSON(t, srv, "DELETE", "/api/v1/memories/"+id, nil)
	require.Equal(t, 200, deleteRec.Code)

	getAfterDelete := doJSON(t, srv, "GET", "/api/v1/memories/"+id, nil)
	require.Equal(t, 404, getAfterDelete.Code)
}

func TestSearchSimilarOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	dim := config.DefaultConfig().Vector.Dimension
	near := make([]float32, dim)
	far := make([]float32, dim)
	near[0], far[0] = 1, -1

	createRec := doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id": "alice", "session_id": "s1", "content": "near",
		"embedding": near, "embedding_model": "test-model",
	})
	require.Equal(t, 201, createRec.Code)

	farRec := doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id": "alice", "session_id": "s1", "content": "far",
		"embedding": far, "embedding_model": "test-model",
	})
	require.Equal(t, 201, farRec.Code)

	searchRec := doJSON(t, srv, "POST", "/api/v1/memories/search/similar", map[string]any{
		"embedding": near, "embedding_model": "test-model", "limit": 5,
	})
	require.Equal(t, 200, searchRec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(searchRec.Body.Bytes(), &resp))
	results := resp.Data.([]any)
	require.NotEmpty(t, results)
	first := results[0].(map[string]any)
	require.Equal(t, "near", first["Content"])
}

func TestSessionSummaryOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	sessRec := doJSON(t, srv, "POST", "/api/v1/sessions", map[string]any{
		"user_id": "bob",
		"name":    "planning",
	})
	require.Equal(t, 201, sessRec.Code)
	var sessResp Response
	require.NoError(t, json.Unmarshal(sessRec.Body.Bytes(), &sessResp))
	sessData := sessResp.Data.(map[string]any)
	sessID := sessData["id"].(string)

	doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id": "bob", "session_id": sessID, "content": "launch the rocket on friday", "importance": 0.8,
	})
	doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id": "bob", "session_id": sessID, "content": "rocket fuel delivery confirmed", "importance": 0.5,
	})

	summaryRec := doJSON(t, srv, "GET", "/api/v1/sessions/"+sessID+"/summary", nil)
	require.Equal(t, 200, summaryRec.Code)
}

func TestDecayRunOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv, "POST", "/api/v1/memories", map[string]any{
		"user_id": "carol", "session_id": "sess-x", "content": "a memory to decay", "importance": 0.4,
	})

	rec := doJSON(t, srv, "POST", "/api/v1/decay/run", nil)
	require.Equal(t, 200, rec.Code)
}
