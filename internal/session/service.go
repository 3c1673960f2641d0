package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
)

var log = logging.GetLogger("session")

const maxSummaryMemories = 1000

// Service is the Session Service: lifecycle, summary generation,
// cross-session search, deletion, and analytics.
type Service struct {
	store     *storage.Pool
	validator *validate.Validator
}

// New builds a Session Service over an opened storage pool.
func New(store *storage.Pool, v *validate.Validator) *Service {
	return &Service{store: store, validator: v}
}

// Create validates user_id, assigns a fresh id, and persists the
// session with created_at = last_active = now.
func (s *Service) Create(ctx context.Context, userID, name string) (*model.Session, error) {
	if err := s.validator.TryAcquire(1); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", model.ErrInvalidInput)
	}
	now := time.Now()
	sess := &model.Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       name,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns a page of a user's sessions ordered by last_active
// descending, each with a live memory count.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]model.Session, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListSessions(ctx, userID, limit, offset)
}

// Get fetches a session by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.store.GetSession(ctx, id)
}

// GenerateSummary loads up to 1,000 memories for the session sorted
// by created_at, extracts topics via TF-IDF, composes the summary
// text deterministically, and persists the result.
func (s *Service) GenerateSummary(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	memories, err := s.store.SessionMemories(ctx, sessionID, maxSummaryMemories)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, fmt.Errorf("%w: session %s has no memories to summarize", model.ErrInvalidInput, sessionID)
	}

	sort.Slice(memories, func(i, j int) bool { return memories[i].CreatedAt.Before(memories[j].CreatedAt) })

	docs := make([]string, len(memories))
	for i, m := range memories {
		docs[i] = m.Content
	}
	topics := extractTopics(docs)

	start := memories[0].CreatedAt
	end := memories[len(memories)-1].CreatedAt
	high, medium := importanceTallies(memories)
	text := composeSummaryText(memories, topics, end.Sub(start), high, medium)

	summary := &model.SessionSummary{
		SessionID:        sessionID,
		Summary:          text,
		KeyTopics:        topics,
		MemoryCount:      len(memories),
		ImportanceScore:  meanImportance(memories),
		DateRangeStart:   start,
		DateRangeEnd:     end,
		HighImportance:   high,
		MediumImportance: medium,
		GeneratedAt:      time.Now(),
	}

	if err := s.store.PutSessionSummary(ctx, summary); err != nil {
		return nil, err
	}
	log.Info("session summary generated", "session_id", sessionID, "memory_count", len(memories))
	return summary, nil
}

// CrossSessionSearch finds every session for a user owning at least
// one memory matching the given keywords, sorted by last_active
// descending.
func (s *Service) CrossSessionSearch(ctx context.Context, userID string, keywords []string) ([]model.Session, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	expr := ftsExpr(keywords)
	return s.store.SessionsWithMemoriesMatching(ctx, userID, expr)
}

func ftsExpr(keywords []string) string {
	out := ""
	for i, k := range keywords {
		if i > 0 {
			out += " OR "
		}
		out += `"` + k + `"`
	}
	return out
}

// Delete removes a session, optionally purging its memories first.
func (s *Service) Delete(ctx context.Context, id string, deleteMemories bool) error {
	return s.store.DeleteSession(ctx, id, deleteMemories)
}

// Analytics aggregates session count, total memory count, mean
// memories per session, the most-active and most-recent sessions, and
// a daily activity histogram keyed YYYY-MM-DD.
type Analytics struct {
	SessionCount        int            `json:"session_count"`
	TotalMemoryCount     int           `json:"total_memory_count"`
	MeanMemoriesPerSession float64     `json:"mean_memories_per_session"`
	MostActiveSession    string        `json:"most_active_session,omitempty"`
	MostActiveCount      int           `json:"most_active_count"`
	MostRecentSession    string        `json:"most_recent_session,omitempty"`
	MostRecentAt         *time.Time    `json:"most_recent_at,omitempty"`
	DailyActivity        map[string]int `json:"daily_activity"`
}

// Analytics computes the aggregate view described above. The daily
// activity histogram is derived from the user's recent sessions'
// memories rather than a separate storage query, to keep the
// underlying SQL simple.
func (s *Service) Analytics(ctx context.Context, userID string) (*Analytics, error) {
	row, err := s.store.SessionAnalytics(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, _, err := s.store.ListSessions(ctx, userID, 1000, 0)
	if err != nil {
		return nil, err
	}

	daily := map[string]int{}
	for _, sess := range sessions {
		memories, err := s.store.SessionMemories(ctx, sess.ID, maxSummaryMemories)
		if err != nil {
			continue
		}
		for _, m := range memories {
			key := m.CreatedAt.Format("2006-01-02")
			daily[key]++
		}
	}

	a := &Analytics{
		SessionCount:     row.SessionCount,
		TotalMemoryCount: row.TotalMemoryCount,
		MostActiveSession: row.MostActiveSession,
		MostActiveCount:   row.MostActiveCount,
		MostRecentSession: row.MostRecentSession,
		DailyActivity:     daily,
	}
	if row.SessionCount > 0 {
		a.MeanMemoriesPerSession = float64(row.TotalMemoryCount) / float64(row.SessionCount)
	}
	if !row.MostRecentAt.IsZero() {
		t := row.MostRecentAt
		a.MostRecentAt = &t
	}
	return a, nil
}
