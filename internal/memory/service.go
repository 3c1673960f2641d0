package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/query"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
	"github.com/mindcache/mindcache/internal/vector"
)

var log = logging.GetLogger("memory")

// Service is the Memory Service: Save/SaveBatch/Recall/Get/Update/
// Delete/Export/Stats/SearchSimilar/HybridSearch. Save, SaveBatch,
// Recall and Update pass through the validator before touching the
// query/storage/vector layers; Get, Delete, Export, Stats,
// SearchSimilar and HybridSearch do not.
type Service struct {
	store     *storage.Pool
	query     *query.Engine
	validator *validate.Validator
	vectors   *vector.Index

	saveLat  *latencyRing
	queryLat *latencyRing
}

// New builds a Memory Service over an opened storage pool. vi may be
// nil, in which case Save never persists embeddings and
// SearchSimilar/HybridSearch return model.ErrInvalidInput.
func New(store *storage.Pool, qe *query.Engine, v *validate.Validator, vi *vector.Index) *Service {
	return &Service{
		store:    store,
		query:    qe,
		validator: v,
		vectors:  vi,
		saveLat:  newLatencyRing(1000),
		queryLat: newLatencyRing(1000),
	}
}

// Save persists a single memory, in order: validator rate check,
// id assignment, timestamp stamping, expires_at derivation from
// ttl_hours, importance clamping, atomic persistence. Returns the id.
func (s *Service) Save(ctx context.Context, m model.Memory) (string, error) {
	if err := s.validator.TryAcquire(1); err != nil {
		return "", err
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	applyTTL(&m, now)
	clampImportance(&m)

	if err := s.validator.ValidateMemory(&m); err != nil {
		return "", err
	}

	count, err := s.store.CountActiveMemories(ctx, m.UserID)
	if err != nil {
		return "", err
	}
	if err := s.validator.CheckQuota(count); err != nil {
		log.Warn("save rejected: quota exceeded", "user_id", m.UserID, "count", count)
		return "", err
	}

	start := time.Now()
	err = s.store.CreateMemory(ctx, &m)
	s.saveLat.record(time.Since(start))
	if err != nil {
		return "", err
	}
	if err := s.storeEmbedding(ctx, &m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// storeEmbedding persists m.Embedding under m.EmbeddingModel when both
// the index is wired and the caller supplied a vector; it is a no-op
// otherwise, since embeddings are optional on every save.
func (s *Service) storeEmbedding(ctx context.Context, m *model.Memory) error {
	if s.vectors == nil || len(m.Embedding) == 0 {
		return nil
	}
	modelName := m.EmbeddingModel
	if modelName == "" {
		modelName = "default"
	}
	return s.vectors.StoreEmbedding(ctx, m.ID, modelName, m.Embedding)
}

func applyTTL(m *model.Memory, now time.Time) {
	if m.TTLHours != nil {
		exp := now.Add(time.Duration(*m.TTLHours) * time.Hour)
		m.ExpiresAt = &exp
	} else {
		m.ExpiresAt = nil
	}
}

func clampImportance(m *model.Memory) {
	if m.Importance < 0 {
		m.Importance = 0
	}
	if m.Importance > 1 {
		m.Importance = 1
	}
}

// BatchItemResult is the per-item outcome of a batch save.
type BatchItemResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// BatchResult aggregates a batch save's outcome.
type BatchResult struct {
	Items        []BatchItemResult `json:"items"`
	SuccessCount int               `json:"success_count"`
	ErrorCount   int               `json:"error_count"`
	SuccessRate  float64           `json:"success_rate"`
}

// SaveBatch debits max(1, ceil(n/10)) tokens, rejects n > max batch
// size, then iterates individual saves. Per-item failures are captured
// unless failOnError is true, in which case iteration stops at the
// first failure.
func (s *Service) SaveBatch(ctx context.Context, memories []model.Memory, failOnError bool) (*BatchResult, error) {
	if err := s.validator.CheckBatchSize(len(memories)); err != nil {
		return nil, err
	}
	if err := s.validator.TryAcquire(validate.BatchTokenCost(len(memories))); err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for i, m := range memories {
		id, err := s.saveNoRateCheck(ctx, m)
		if err != nil {
			result.Items = append(result.Items, BatchItemResult{Index: i, Error: err.Error()})
			result.ErrorCount++
			if failOnError {
				break
			}
			continue
		}
		result.Items = append(result.Items, BatchItemResult{Index: i, ID: id})
		result.SuccessCount++
	}
	total := result.SuccessCount + result.ErrorCount
	if total > 0 {
		result.SuccessRate = float64(result.SuccessCount) / float64(total)
	}
	return result, nil
}

// saveNoRateCheck performs the same steps as Save without debiting the
// rate limiter again (the batch already paid its aggregate cost).
func (s *Service) saveNoRateCheck(ctx context.Context, m model.Memory) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	applyTTL(&m, now)
	clampImportance(&m)

	if err := s.validator.ValidateMemory(&m); err != nil {
		return "", err
	}
	count, err := s.store.CountActiveMemories(ctx, m.UserID)
	if err != nil {
		return "", err
	}
	if err := s.validator.CheckQuota(count); err != nil {
		return "", err
	}
	if err := s.store.CreateMemory(ctx, &m); err != nil {
		return "", err
	}
	if err := s.storeEmbedding(ctx, &m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// Recall delegates to the query engine, recording latency.
func (s *Service) Recall(ctx context.Context, f model.Filter) (*model.PaginatedResponse, error) {
	if err := s.validator.ValidateFilter(&f); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := s.query.Recall(ctx, f)
	s.queryLat.record(time.Since(start))
	return resp, err
}

// Get fetches a memory by id. Expired memories are invisible here,
// same as in Recall; only the decay engine's purge scan sees them.
func (s *Service) Get(ctx context.Context, id string) (*model.Memory, error) {
	return s.store.GetMemory(ctx, id)
}

// SearchSimilar ranks memories by cosine similarity to queryEmbedding
// under embeddingModel, requires the vector index to be wired.
func (s *Service) SearchSimilar(ctx context.Context, queryEmbedding []float32, embeddingModel string, k int) ([]vector.SimilarityResult, error) {
	if s.vectors == nil {
		return nil, fmt.Errorf("%w: vector index not configured", model.ErrInvalidInput)
	}
	return s.vectors.SearchSimilar(ctx, queryEmbedding, embeddingModel, k)
}

// HybridSearch blends a text predicate and a vector predicate into one
// ranked result set; requires the vector index to be wired.
func (s *Service) HybridSearch(ctx context.Context, text, embeddingModel string, queryEmbedding []float32, textWeight, vectorWeight float64, k int) ([]vector.SimilarityResult, error) {
	if s.vectors == nil {
		return nil, fmt.Errorf("%w: vector index not configured", model.ErrInvalidInput)
	}
	return s.vectors.HybridSearch(ctx, text, embeddingModel, queryEmbedding, textWeight, vectorWeight, k)
}

// Update is read-modify-write: absent fields are unchanged;
// TTLHoursSet distinguishes "not mentioned" from "explicitly cleared".
func (s *Service) Update(ctx context.Context, id string, patch model.MemoryUpdate) (*model.Memory, error) {
	var validationErr error
	updated, err := s.store.UpdateMemory(ctx, id, func(m *model.Memory) {
		if patch.Content != nil {
			m.Content = *patch.Content
		}
		if patch.Importance != nil {
			m.Importance = *patch.Importance
			clampImportance(m)
		}
		if patch.Metadata != nil {
			m.Metadata = patch.Metadata
		}
		if patch.TTLHoursSet {
			m.TTLHours = patch.TTLHours
		}
		m.UpdatedAt = time.Now()
		applyTTL(m, m.UpdatedAt)
		if vErr := s.validator.ValidateMemory(m); vErr != nil {
			validationErr = vErr
		}
	})
	if err != nil {
		return nil, err
	}
	if validationErr != nil {
		return nil, validationErr
	}
	return updated, nil
}

// Delete removes a memory by id.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteMemory(ctx, id)
}

// Export streams all memories for a user in 1000-item pages and
// concatenates them; intended for backup/migration.
func (s *Service) Export(ctx context.Context, userID string) ([]model.Memory, error) {
	const pageSize = 1000
	var all []model.Memory
	offset := 0
	for {
		resp, err := s.query.Recall(ctx, model.Filter{UserID: userID, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if !resp.HasNext || len(resp.Data) == 0 {
			return all, nil
		}
		offset += pageSize
	}
}

// Histogram is a named-bucket count map.
type Histogram map[string]int

// UserStats is the Memory Service's per-user statistics payload.
type UserStats struct {
	TotalCount            int        `json:"total_count"`
	MeanImportance        float64    `json:"mean_importance"`
	ImportanceHistogram    Histogram  `json:"importance_histogram"`
	AgeHistogram          Histogram  `json:"age_histogram"`
	AccessRecencyHistogram Histogram  `json:"access_recency_histogram"`
	Oldest                *time.Time `json:"oldest,omitempty"`
	Newest                *time.Time `json:"newest,omitempty"`
}

// Stats computes the user statistics described in the Memory Service
// spec: total active count, mean importance, importance/age/
// access-recency histograms, and the oldest/newest instants.
func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	all, err := s.Export(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := &UserStats{
		TotalCount: len(all),
		ImportanceHistogram: Histogram{"very_low": 0, "low": 0, "medium": 0, "high": 0},
		AgeHistogram:        Histogram{"24h": 0, "1w": 0, "1mo": 0, "1y": 0, "older": 0},
		AccessRecencyHistogram: Histogram{"24h": 0, "1w": 0, "1mo": 0, "older": 0, "never": 0},
	}
	if len(all) == 0 {
		return stats, nil
	}

	now := time.Now()
	var sum float64
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	oldest := all[0].CreatedAt
	newest := all[0].CreatedAt
	stats.Oldest = &oldest

	for _, m := range all {
		sum += float64(m.Importance)
		switch {
		case m.Importance < 0.2:
			stats.ImportanceHistogram["very_low"]++
		case m.Importance < 0.5:
			stats.ImportanceHistogram["low"]++
		case m.Importance < 0.8:
			stats.ImportanceHistogram["medium"]++
		default:
			stats.ImportanceHistogram["high"]++
		}

		age := now.Sub(m.CreatedAt)
		switch {
		case age <= 24*time.Hour:
			stats.AgeHistogram["24h"]++
		case age <= 7*24*time.Hour:
			stats.AgeHistogram["1w"]++
		case age <= 30*24*time.Hour:
			stats.AgeHistogram["1mo"]++
		case age <= 365*24*time.Hour:
			stats.AgeHistogram["1y"]++
		default:
			stats.AgeHistogram["older"]++
		}

		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}

		if m.LastAccessedAt == nil {
			stats.AccessRecencyHistogram["never"]++
		} else {
			switch sinceAccess := now.Sub(*m.LastAccessedAt); {
			case sinceAccess <= 24*time.Hour:
				stats.AccessRecencyHistogram["24h"]++
			case sinceAccess <= 7*24*time.Hour:
				stats.AccessRecencyHistogram["1w"]++
			case sinceAccess <= 30*24*time.Hour:
				stats.AccessRecencyHistogram["1mo"]++
			default:
				stats.AccessRecencyHistogram["older"]++
			}
		}
	}
	stats.Newest = &newest
	stats.MeanImportance = sum / float64(len(all))
	return stats, nil
}
