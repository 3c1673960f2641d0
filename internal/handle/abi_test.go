package handle

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/vector"
	"github.com/mindcache/mindcache/pkg/config"
)

func testHandle(t *testing.T) int64 {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "mindcache.db")
	cfg.Validator.EnableRequestLimits = false

	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	h := Init(string(b))
	require.NotZero(t, h)
	t.Cleanup(func() { Destroy(h) })
	return h
}

func TestInitIsValidDestroy(t *testing.T) {
	h := testHandle(t)
	assert.True(t, IsValid(h))

	Destroy(h)
	assert.False(t, IsValid(h))
}

func TestInitRejectsMalformedConfig(t *testing.T) {
	h := Init("{not json")
	assert.Zero(t, h)
}

func TestSaveGetRecallUpdateDeleteLifecycle(t *testing.T) {
	h := testHandle(t)

	id := Save(h, "alice", "sess-1", "met the rocket launch team today", 0.8, -1, "")
	require.NotEmpty(t, id)
	assert.Equal(t, ErrCodeNone, GetLastError(h))

	got := GetMemory(h, id)
	var m model.Memory
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.Equal(t, "met the rocket launch team today", m.Content)
	assert.Equal(t, "alice", m.UserID)

	filterJSON := `{"UserID":"alice","Limit":10}`
	recallJSON := Recall(h, filterJSON)
	var resp model.PaginatedResponse
	require.NoError(t, json.Unmarshal([]byte(recallJSON), &resp))
	assert.Equal(t, 1, resp.TotalCount)

	searchJSON := Search(h, "alice", "rocket launch", 10, 0)
	var sresp model.PaginatedResponse
	require.NoError(t, json.Unmarshal([]byte(searchJSON), &sresp))
	assert.Equal(t, 1, sresp.TotalCount)

	updateJSON := `{"Content":"met the rocket launch team yesterday"}`
	ok := UpdateMemory(h, id, updateJSON)
	assert.True(t, ok)

	got = GetMemory(h, id)
	require.NoError(t, json.Unmarshal([]byte(got), &m))
	assert.Equal(t, "met the rocket launch team yesterday", m.Content)

	assert.True(t, DeleteMemory(h, id))
	assert.Equal(t, "null", GetMemory(h, id))
}

func TestSearchSimilarRanksByCosine(t *testing.T) {
	h := testHandle(t)
	e, ok := lookup(h)
	require.True(t, ok)

	near := make([]float32, config.DefaultConfig().Vector.Dimension)
	far := make([]float32, config.DefaultConfig().Vector.Dimension)
	near[0], far[0] = 1, -1

	ctx := context.Background()
	_, err := e.mem.Save(ctx, model.Memory{
		UserID: "alice", SessionID: "s1", Content: "near", Importance: 0.5,
		Embedding: near, EmbeddingModel: "test-model",
	})
	require.NoError(t, err)
	_, err = e.mem.Save(ctx, model.Memory{
		UserID: "alice", SessionID: "s1", Content: "far", Importance: 0.5,
		Embedding: far, EmbeddingModel: "test-model",
	})
	require.NoError(t, err)

	queryJSON, err := json.Marshal(near)
	require.NoError(t, err)

	resultJSON := SearchSimilar(h, string(queryJSON), "test-model", 5)
	var results []vector.SimilarityResult
	require.NoError(t, json.Unmarshal([]byte(resultJSON), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "near", results[0].Content)
}

func TestSaveInvalidInputSetsLastError(t *testing.T) {
	h := testHandle(t)

	id := Save(h, "", "", "", 0, -1, "")
	assert.Empty(t, id)
	assert.Equal(t, ErrCodeInvalidInput, GetLastError(h))
	assert.NotEmpty(t, ErrorMessage(h, ErrCodeInvalidInput))
}

func TestSessionLifecycle(t *testing.T) {
	h := testHandle(t)

	sessJSON := CreateSession(h, "bob", "planning")
	var sess model.Session
	require.NoError(t, json.Unmarshal([]byte(sessJSON), &sess))
	require.NotEmpty(t, sess.ID)

	Save(h, "bob", sess.ID, "decided to launch the rocket on friday", 0.9, -1, "")
	Save(h, "bob", sess.ID, "rocket fuel supplier confirmed delivery", 0.6, -1, "")
	Save(h, "bob", sess.ID, "weather looks clear for the weekend", 0.4, -1, "")

	summaryJSON := GenerateSummary(h, sess.ID)
	var summary model.SessionSummary
	require.NoError(t, json.Unmarshal([]byte(summaryJSON), &summary))
	assert.Equal(t, 3, summary.MemoryCount)
	assert.Contains(t, summary.KeyTopics, "rocket")

	assert.True(t, DeleteSession(h, sess.ID, true))
}

func TestRunDecayAndRecommendations(t *testing.T) {
	h := testHandle(t)
	Save(h, "carol", "sess-x", "a memory to run decay against", 0.5, -1, "")

	statsJSON := RunDecay(h)
	var stats model.DecayStats
	require.NoError(t, json.Unmarshal([]byte(statsJSON), &stats))
	assert.Equal(t, model.DecayRunCompleted, stats.Status)

	recJSON := DecayRecommendations(h)
	var rec decay.Recommendations
	require.NoError(t, json.Unmarshal([]byte(recJSON), &rec))
}

func TestVersionAndUnknownHandle(t *testing.T) {
	assert.NotEmpty(t, Version())

	bogus := int64(999999)
	assert.False(t, IsValid(bogus))
	assert.Empty(t, Save(bogus, "u", "s", "c", 0.1, -1, ""))
	assert.Equal(t, "null", GetMemory(bogus, "x"))
	assert.Equal(t, ErrCodeNone, GetLastError(bogus))
	FreeString("anything")
}
