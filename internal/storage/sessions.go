package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindcache/mindcache/internal/model"
)

// CreateSession inserts a new session row.
func (p *Pool) CreateSession(ctx context.Context, s *model.Session) error {
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, user_id, name, created_at, last_active)
			VALUES (?, ?, ?, ?, ?)
		`, s.ID, s.UserID, s.Name, s.CreatedAt, s.LastActive)
		if err != nil {
			return fmt.Errorf("%w: insert session: %v", model.ErrStorage, err)
		}
		return nil
	})
}

// GetSession fetches a session by id, returning (nil, nil) if absent.
func (p *Pool) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var s *model.Session
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		var v model.Session
		err := db.QueryRowContext(ctx, `
			SELECT id, user_id, name, created_at, last_active FROM sessions WHERE id = ?
		`, id).Scan(&v.ID, &v.UserID, &v.Name, &v.CreatedAt, &v.LastActive)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: get session: %v", model.ErrStorage, err)
		}
		s = &v
		return nil
	})
	return s, err
}

// ListSessions returns every session for a user with a live memory
// count computed by outer join (not cached), ordered by last_active
// descending.
func (p *Pool) ListSessions(ctx context.Context, userID string, limit, offset int) ([]model.Session, int, error) {
	var sessions []model.Session
	var total int
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		if err := db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sessions WHERE user_id = ?
		`, userID).Scan(&total); err != nil {
			return fmt.Errorf("%w: count sessions: %v", model.ErrStorage, err)
		}

		rows, err := db.QueryContext(ctx, `
			SELECT s.id, s.user_id, s.name, s.created_at, s.last_active,
			       COUNT(m.id) FILTER (WHERE m.is_compressed = 0
			           AND (m.expires_at IS NULL OR m.expires_at > ?))
			FROM sessions s
			LEFT JOIN memories m ON m.session_id = s.id
			WHERE s.user_id = ?
			GROUP BY s.id
			ORDER BY s.last_active DESC
			LIMIT ? OFFSET ?
		`, time.Now(), userID, limit, offset)
		if err != nil {
			return fmt.Errorf("%w: list sessions: %v", model.ErrStorage, err)
		}
		defer rows.Close()
		for rows.Next() {
			var s model.Session
			if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt, &s.LastActive, &s.MemoryCount); err != nil {
				return fmt.Errorf("%w: scan session: %v", model.ErrStorage, err)
			}
			sessions = append(sessions, s)
		}
		return rows.Err()
	})
	return sessions, total, err
}

// SessionMemories loads up to `limit` memories for a session sorted by
// created_at ascending, used by summary generation.
func (p *Pool) SessionMemories(ctx context.Context, sessionID string, limit int) ([]model.Memory, error) {
	var out []model.Memory
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT `+memoryColumns+` FROM memories
			WHERE session_id = ? AND is_compressed = 0
			ORDER BY created_at ASC
			LIMIT ?
		`, sessionID, limit)
		if err != nil {
			return fmt.Errorf("%w: session memories: %v", model.ErrStorage, err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return fmt.Errorf("%w: scan session memory: %v", model.ErrStorage, err)
			}
			out = append(out, *m)
		}
		return rows.Err()
	})
	return out, err
}

// PutSessionSummary upserts the one-to-one session summary row.
func (p *Pool) PutSessionSummary(ctx context.Context, s *model.SessionSummary) error {
	topicsJSON, _ := json.Marshal(s.KeyTopics)
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO session_summaries (
				session_id, summary, key_topics_json, memory_count, importance_score,
				date_range_start, date_range_end, high_importance_count,
				medium_importance_count, generated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				summary = excluded.summary,
				key_topics_json = excluded.key_topics_json,
				memory_count = excluded.memory_count,
				importance_score = excluded.importance_score,
				date_range_start = excluded.date_range_start,
				date_range_end = excluded.date_range_end,
				high_importance_count = excluded.high_importance_count,
				medium_importance_count = excluded.medium_importance_count,
				generated_at = excluded.generated_at
		`,
			s.SessionID, s.Summary, string(topicsJSON), s.MemoryCount, s.ImportanceScore,
			s.DateRangeStart, s.DateRangeEnd, s.HighImportance, s.MediumImportance, s.GeneratedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert session summary: %v", model.ErrStorage, err)
		}
		return nil
	})
}

// DeleteSession removes a session row and, if purgeMemories is true,
// every memory scoped to it (FTS mirror removed in the same
// transaction via trigger).
func (p *Pool) DeleteSession(ctx context.Context, id string, purgeMemories bool) error {
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		if purgeMemories {
			if _, err := tx.Exec(`DELETE FROM memories WHERE session_id = ?`, id); err != nil {
				return fmt.Errorf("%w: purge session memories: %v", model.ErrStorage, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM session_summaries WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("%w: delete session summary: %v", model.ErrStorage, err)
		}
		if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%w: delete session: %v", model.ErrStorage, err)
		}
		return nil
	})
}

// SessionsWithMemoriesMatching returns the distinct set of sessions
// for a user that own at least one memory matching the FTS keyword
// expression, used by cross-session search.
func (p *Pool) SessionsWithMemoriesMatching(ctx context.Context, userID, ftsExpr string) ([]model.Session, error) {
	var out []model.Session
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT DISTINCT s.id, s.user_id, s.name, s.created_at, s.last_active
			FROM sessions s
			JOIN memories m ON m.session_id = s.id
			JOIN memories_fts fts ON fts.rowid = m.rowid
			WHERE s.user_id = ? AND memories_fts MATCH ?
			  AND m.is_compressed = 0
			ORDER BY s.last_active DESC
		`, userID, ftsExpr)
		if err != nil {
			return fmt.Errorf("%w: cross-session search: %v", model.ErrStorage, err)
		}
		defer rows.Close()
		for rows.Next() {
			var s model.Session
			if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt, &s.LastActive); err != nil {
				return fmt.Errorf("%w: scan session: %v", model.ErrStorage, err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// SessionAnalyticsRow is the raw aggregate the Session Service composes
// analytics from.
type SessionAnalyticsRow struct {
	SessionCount      int
	TotalMemoryCount  int
	MostActiveSession string
	MostActiveCount   int
	MostRecentSession string
	MostRecentAt      time.Time
}

// SessionAnalytics computes the aggregate counts for a user's
// sessions; daily activity histogram is computed by the caller from
// SessionMemories/recall results to keep this query simple.
func (p *Pool) SessionAnalytics(ctx context.Context, userID string) (*SessionAnalyticsRow, error) {
	var row SessionAnalyticsRow
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		if err := db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sessions WHERE user_id = ?
		`, userID).Scan(&row.SessionCount); err != nil {
			return fmt.Errorf("%w: count sessions: %v", model.ErrStorage, err)
		}
		if err := db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memories WHERE user_id = ? AND is_compressed = 0
		`, userID).Scan(&row.TotalMemoryCount); err != nil {
			return fmt.Errorf("%w: count memories: %v", model.ErrStorage, err)
		}
		var mostActive sql.NullString
		var mostActiveCount sql.NullInt64
		_ = db.QueryRowContext(ctx, `
			SELECT session_id, COUNT(*) c FROM memories
			WHERE user_id = ? AND is_compressed = 0
			GROUP BY session_id ORDER BY c DESC LIMIT 1
		`, userID).Scan(&mostActive, &mostActiveCount)
		row.MostActiveSession = mostActive.String
		row.MostActiveCount = int(mostActiveCount.Int64)

		var mostRecent sql.NullString
		var mostRecentAt sql.NullTime
		_ = db.QueryRowContext(ctx, `
			SELECT id, last_active FROM sessions WHERE user_id = ?
			ORDER BY last_active DESC LIMIT 1
		`, userID).Scan(&mostRecent, &mostRecentAt)
		row.MostRecentSession = mostRecent.String
		row.MostRecentAt = mostRecentAt.Time
		return nil
	})
	return &row, err
}
