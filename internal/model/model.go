// Package model holds the data-model types shared across MindCache's
// service layer: memories, sessions, decay audit records, and the
// filter/pagination envelope the query engine speaks.
package model

import "time"

// Memory is the atomic unit MindCache persists. Fields mirror the
// on-disk row in the memories table, except Embedding and
// EmbeddingModel, which are stored in memory_embeddings.
type Memory struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	SessionID      string            `json:"session_id"`
	Content        string            `json:"content"`
	Importance     float32           `json:"importance"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	TTLHours       *int              `json:"ttl_hours,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IsCompressed   bool              `json:"is_compressed"`
	CompressedFrom []string          `json:"compressed_from,omitempty"`
	Embedding      []float32         `json:"embedding,omitempty"`
	EmbeddingModel string            `json:"embedding_model,omitempty"`
	AccessCount    int               `json:"access_count"`
	LastAccessedAt *time.Time        `json:"last_accessed_at,omitempty"`
}

// MemoryUpdate is a sparse, read-modify-write patch. A nil field means
// "leave unchanged". TTLHours is a two-level optional: TTLHoursSet
// distinguishes "not mentioned" from "explicitly cleared" since the
// pointer-to-pointer idiom reads awkwardly at call sites.
type MemoryUpdate struct {
	Content       *string
	Importance    *float32
	Metadata      map[string]string
	TTLHours      *int
	TTLHoursSet   bool
}

// Session is a chronological grouping of memories for one user.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	// MemoryCount is populated on list/analytics responses via an
	// outer join; it is never persisted.
	MemoryCount int `json:"memory_count,omitempty"`
}

// SessionSummary is a derived, regenerable view of a session.
type SessionSummary struct {
	SessionID        string    `json:"session_id"`
	Summary          string    `json:"summary"`
	KeyTopics        []string  `json:"key_topics"`
	MemoryCount      int       `json:"memory_count"`
	ImportanceScore  float32   `json:"importance_score"`
	DateRangeStart   time.Time `json:"date_range_start"`
	DateRangeEnd     time.Time `json:"date_range_end"`
	HighImportance   int       `json:"high_importance_count"`
	MediumImportance int       `json:"medium_importance_count"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// DecayRunStatus is the lifecycle state of one decay pass.
type DecayRunStatus string

const (
	DecayRunRunning   DecayRunStatus = "running"
	DecayRunCompleted DecayRunStatus = "completed"
	DecayRunFailed    DecayRunStatus = "failed"
)

// DecayStats is the audit record of one decay pass, persisted to
// decay_runs.
type DecayStats struct {
	ID                string         `json:"id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	Status            DecayRunStatus `json:"status"`
	ExpiredCount      int            `json:"expired_count"`
	PurgedCount       int            `json:"purged_count"`
	CompressedGroups  int            `json:"compressed_groups"`
	CompressedOriginals int          `json:"compressed_originals"`
	SummarizedCount   int            `json:"summarized_count"`
	QuotaEvictedCount int            `json:"quota_evicted_count"`
	CountBefore       int            `json:"count_before"`
	CountAfter        int            `json:"count_after"`
	BytesReclaimed    int64          `json:"bytes_reclaimed_estimate"`
	ErrorMessage      string         `json:"error_message,omitempty"`
}

// DecayPolicy is the runtime-tunable configuration a decay run obeys.
type DecayPolicy struct {
	MaxAgeHours           int     `json:"max_age_hours"`
	ImportanceThreshold   float32 `json:"importance_threshold"`
	MaxMemoriesPerUser    int     `json:"max_memories_per_user"`
	CompressionEnabled    bool    `json:"compression_enabled"`
	AutoSummarizeSessions bool    `json:"auto_summarize_sessions"`
}

// Filter composes a query against the memories table. Zero values mean
// "no constraint" except Limit/Offset which always carry their
// defaulted values once passed through query.Normalize.
type Filter struct {
	UserID        string
	SessionID     string
	Keywords      []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	MinImportance *float32
	Limit         int
	Offset        int
}

// PaginatedResponse is the envelope every paged read returns.
type PaginatedResponse struct {
	Data       []Memory `json:"data"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
	HasNext    bool     `json:"has_next"`
	HasPrev    bool     `json:"has_prev"`
}
