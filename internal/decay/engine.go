package decay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/internal/storage"
)

var log = logging.GetLogger("decay")

const bytesPerMemoryEstimate = 1024

// Engine runs decay passes against a storage pool under a tunable
// policy. It carries no state beyond the current policy.
type Engine struct {
	store  *storage.Pool
	policy model.DecayPolicy
}

// New builds a decay engine with the given policy.
func New(store *storage.Pool, policy model.DecayPolicy) *Engine {
	return &Engine{store: store, policy: policy}
}

// SetPolicy replaces the engine's runtime-tunable policy.
func (e *Engine) SetPolicy(p model.DecayPolicy) { e.policy = p }

// Policy returns the engine's current policy.
func (e *Engine) Policy() model.DecayPolicy { return e.policy }

// Run executes one decay pass: TTL expiry, old-and-unimportant purge,
// group compression (if enabled), session summarization (if enabled),
// and quota enforcement, in that order. A phase failure is recorded on
// the stats and does not abort later phases; the final status is
// failed iff any phase failed.
func (e *Engine) Run(ctx context.Context) (*model.DecayStats, error) {
	stats := &model.DecayStats{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Status:    model.DecayRunRunning,
	}

	countBefore, err := e.totalActiveMemories(ctx)
	if err == nil {
		stats.CountBefore = countBefore
	}
	if err := e.store.InsertDecayRun(ctx, stats); err != nil {
		return nil, err
	}

	var errs []string

	if n, err := e.store.ExpireMemories(ctx, time.Now()); err != nil {
		errs = append(errs, fmt.Sprintf("ttl expiry: %v", err))
	} else {
		stats.ExpiredCount = n
	}

	maxAge := time.Duration(e.policy.MaxAgeHours) * time.Hour
	if n, err := e.store.PurgeOldUnimportant(ctx, time.Now().Add(-maxAge), e.policy.ImportanceThreshold); err != nil {
		errs = append(errs, fmt.Sprintf("old-unimportant purge: %v", err))
	} else {
		stats.PurgedCount = n
	}

	if e.policy.CompressionEnabled {
		groups, originals, err := e.compress(ctx, maxAge)
		if err != nil {
			errs = append(errs, fmt.Sprintf("group compression: %v", err))
		} else {
			stats.CompressedGroups = groups
			stats.CompressedOriginals = originals
		}
	}

	if e.policy.AutoSummarizeSessions {
		n, err := e.summarizeInactiveSessions(ctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("session summarization: %v", err))
		} else {
			stats.SummarizedCount = n
		}
	}

	if e.policy.MaxMemoriesPerUser > 0 {
		n, err := e.enforceQuotas(ctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("quota enforcement: %v", err))
		} else {
			stats.QuotaEvictedCount = n
		}
	}

	countAfter, err := e.totalActiveMemories(ctx)
	if err == nil {
		stats.CountAfter = countAfter
	}
	removed := stats.CountBefore - stats.CountAfter
	if removed > 0 {
		stats.BytesReclaimed = int64(removed) * bytesPerMemoryEstimate
	}

	now := time.Now()
	stats.FinishedAt = &now
	if len(errs) > 0 {
		stats.Status = model.DecayRunFailed
		stats.ErrorMessage = strings.Join(errs, "; ")
		log.Warn("decay run completed with errors", "run_id", stats.ID, "errors", stats.ErrorMessage)
	} else {
		stats.Status = model.DecayRunCompleted
	}

	if err := e.store.UpdateDecayRun(ctx, stats); err != nil {
		return stats, err
	}
	log.Info("decay run finished", "run_id", stats.ID, "status", stats.Status,
		"expired", stats.ExpiredCount, "purged", stats.PurgedCount,
		"compressed_groups", stats.CompressedGroups, "quota_evicted", stats.QuotaEvictedCount)
	return stats, nil
}

func (e *Engine) totalActiveMemories(ctx context.Context) (int, error) {
	return e.store.CountAllActiveMemories(ctx)
}

// compress scans memories older than maxAge/2 with low importance,
// groups them by (user_id, session_id), and replaces every group of
// >= 3 with a single synthesized summary memory.
func (e *Engine) compress(ctx context.Context, maxAge time.Duration) (groups int, originals int, err error) {
	cutoff := time.Now().Add(-maxAge / 2)
	candidates, err := e.store.CompressionCandidates(ctx, cutoff, e.policy.ImportanceThreshold)
	if err != nil {
		return 0, 0, err
	}

	byGroup := map[string][]storage.CompressionCandidate{}
	var order []string
	for _, c := range candidates {
		key := c.UserID + "\x00" + c.SessionID
		if _, ok := byGroup[key]; !ok {
			order = append(order, key)
		}
		byGroup[key] = append(byGroup[key], c)
	}

	for _, key := range order {
		members := byGroup[key]
		if len(members) < 3 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })

		summary, ids, start, end := synthesizeCompressed(members)
		if err := e.store.ReplaceWithCompressedMemory(ctx, summary, ids, start, end); err != nil {
			return groups, originals, err
		}
		groups++
		originals += len(ids)
	}
	return groups, originals, nil
}

func synthesizeCompressed(members []storage.CompressionCandidate) (*model.Memory, []string, time.Time, time.Time) {
	ids := make([]string, len(members))
	contents := make([]string, len(members))
	var sum float32
	for i, m := range members {
		ids[i] = m.ID
		contents[i] = m.Content
		sum += m.Importance
	}
	sort.Strings(ids)

	start := members[0].CreatedAt
	end := members[len(members)-1].CreatedAt

	sortedByImportance := make([]storage.CompressionCandidate, len(members))
	copy(sortedByImportance, members)
	sort.Slice(sortedByImportance, func(i, j int) bool {
		return sortedByImportance[i].Importance > sortedByImportance[j].Importance
	})
	topN := sortedByImportance
	if len(topN) > 3 {
		topN = topN[:3]
	}
	excerpts := make([]string, len(topN))
	for i, m := range topN {
		excerpts[i] = truncate(m.Content, 100)
	}

	content := fmt.Sprintf("[COMPRESSED] %d memories over %s: %s",
		len(members), formatSpan(end.Sub(start)), strings.Join(excerpts, " | "))

	keyPoints := session.TopKeyPoints(contents, 5)
	metadata := map[string]string{
		"original_count":   fmt.Sprintf("%d", len(members)),
		"key_points":       strings.Join(keyPoints, ","),
		"date_range_start": start.Format(time.RFC3339),
		"date_range_end":   end.Format(time.RFC3339),
	}

	now := time.Now()
	summary := &model.Memory{
		ID:             uuid.New().String(),
		UserID:         members[0].UserID,
		SessionID:      members[0].SessionID,
		Content:        content,
		Importance:     sum / float32(len(members)),
		CreatedAt:      start,
		UpdatedAt:      now,
		Metadata:       metadata,
		IsCompressed:   true,
		CompressedFrom: ids,
	}
	return summary, ids, start, end
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d minutes", minutes)
}

// summarizeInactiveSessions regenerates summaries for sessions with >=
// 5 memories inactive for >= 7 days.
func (e *Engine) summarizeInactiveSessions(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	ids, err := e.store.SessionsInactiveSince(ctx, cutoff, 5)
	if err != nil {
		return 0, err
	}

	sessSvc := session.New(e.store, nil)
	count := 0
	for _, id := range ids {
		if _, err := e.summarizeOne(ctx, sessSvc, id); err != nil {
			log.Warn("failed to summarize inactive session, continuing", "session_id", id, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// summarizeOne exists only to isolate the validator-free session
// service construction used during decay (decay runs do not consult
// the request validator, since it is an internal maintenance pass).
func (e *Engine) summarizeOne(ctx context.Context, s *session.Service, id string) (*model.SessionSummary, error) {
	return s.GenerateSummary(ctx, id)
}

// enforceQuotas deletes lowest-importance-then-oldest memories for
// every user over MaxMemoriesPerUser, until each is back at quota.
func (e *Engine) enforceQuotas(ctx context.Context) (int, error) {
	over, err := e.store.UsersOverQuota(ctx, e.policy.MaxMemoriesPerUser)
	if err != nil {
		return 0, err
	}
	total := 0
	for userID, count := range over {
		excess := count - e.policy.MaxMemoriesPerUser
		if excess <= 0 {
			continue
		}
		n, err := e.store.EvictLowestImportance(ctx, userID, excess)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Recommendations is a read-only age-bucket analytics report.
type Recommendations struct {
	AgeBuckets      map[string]int `json:"age_buckets"`
	OldFraction     float64        `json:"old_fraction"`
	Suggestions     []string       `json:"suggestions"`
}

// GetRecommendations reports an age-bucket histogram, the fraction of
// "old" memories (3m-1y or 1y+ buckets), and human-readable
// suggestions, without mutating any state.
func (e *Engine) GetRecommendations(ctx context.Context) (*Recommendations, error) {
	buckets, total, err := e.store.AgeBuckets(ctx)
	if err != nil {
		return nil, err
	}

	rec := &Recommendations{AgeBuckets: buckets}
	if total == 0 {
		rec.Suggestions = append(rec.Suggestions, "no memories stored yet")
		return rec, nil
	}

	oldCount := buckets["1y"] + buckets["older"]
	rec.OldFraction = float64(oldCount) / float64(total)

	if rec.OldFraction > 0.5 {
		rec.Suggestions = append(rec.Suggestions, "over half of stored memories are older than 3 months; consider enabling compression or lowering max_age_hours")
	}
	if e.policy.ImportanceThreshold < 0.1 {
		rec.Suggestions = append(rec.Suggestions, "importance_threshold is very low; the old-unimportant purge phase will rarely trigger")
	}
	if len(rec.Suggestions) == 0 {
		rec.Suggestions = append(rec.Suggestions, "no action needed")
	}
	return rec, nil
}
