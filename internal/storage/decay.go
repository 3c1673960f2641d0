package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindcache/mindcache/internal/model"
)

// InsertDecayRun persists a fresh "running" audit row and returns its id.
func (p *Pool) InsertDecayRun(ctx context.Context, s *model.DecayStats) error {
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO decay_runs (
				id, started_at, status, count_before
			) VALUES (?, ?, ?, ?)
		`, s.ID, s.StartedAt, s.Status, s.CountBefore)
		if err != nil {
			return fmt.Errorf("%w: insert decay run: %v", model.ErrStorage, err)
		}
		return nil
	})
}

// UpdateDecayRun overwrites the full audit row at the end of a pass.
func (p *Pool) UpdateDecayRun(ctx context.Context, s *model.DecayStats) error {
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE decay_runs SET
				finished_at = ?, status = ?, expired_count = ?, purged_count = ?,
				compressed_groups = ?, compressed_originals = ?, summarized_count = ?,
				quota_evicted_count = ?, count_before = ?, count_after = ?,
				bytes_reclaimed_estimate = ?, error_message = ?
			WHERE id = ?
		`,
			nullTime(s.FinishedAt), s.Status, s.ExpiredCount, s.PurgedCount,
			s.CompressedGroups, s.CompressedOriginals, s.SummarizedCount,
			s.QuotaEvictedCount, s.CountBefore, s.CountAfter,
			s.BytesReclaimed, nullString(s.ErrorMessage),
			s.ID,
		)
		if err != nil {
			return fmt.Errorf("%w: update decay run: %v", model.ErrStorage, err)
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ExpireMemories deletes every row with expires_at <= cutoff and
// returns the count removed.
func (p *Pool) ExpireMemories(ctx context.Context, cutoff time.Time) (int, error) {
	var n int64
	err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`, cutoff)
		if err != nil {
			return fmt.Errorf("%w: expire memories: %v", model.ErrStorage, err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// PurgeOldUnimportant deletes memories older than maxAge with
// importance below threshold, processed in batches of 1000 ordered by
// created_at ascending, returning the total removed.
func (p *Pool) PurgeOldUnimportant(ctx context.Context, olderThan time.Time, importanceThreshold float32) (int, error) {
	total := 0
	for {
		var ids []string
		err := p.withReadConn(ctx, func(db *sql.DB) error {
			rows, err := db.QueryContext(ctx, `
				SELECT id FROM memories
				WHERE is_compressed = 0 AND created_at < ? AND importance < ?
				ORDER BY created_at ASC LIMIT 1000
			`, olderThan, importanceThreshold)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return rows.Err()
		})
		if err != nil {
			return total, fmt.Errorf("%w: scan purge candidates: %v", model.ErrStorage, err)
		}
		if len(ids) == 0 {
			return total, nil
		}
		if err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
			for _, id := range ids {
				if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
					return fmt.Errorf("%w: purge memory %s: %v", model.ErrStorage, id, err)
				}
			}
			return nil
		}); err != nil {
			return total, err
		}
		total += len(ids)
		if len(ids) < 1000 {
			return total, nil
		}
	}
}

// CompressionCandidate is a raw row fed to the group-compression phase.
type CompressionCandidate struct {
	ID         string
	UserID     string
	SessionID  string
	Content    string
	Importance float32
	CreatedAt  time.Time
}

// CompressionCandidates returns memories older than cutoff with
// importance below threshold, for the decay engine to group by
// (user_id, session_id).
func (p *Pool) CompressionCandidates(ctx context.Context, cutoff time.Time, importanceThreshold float32) ([]CompressionCandidate, error) {
	var out []CompressionCandidate
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, user_id, session_id, content, importance, created_at
			FROM memories
			WHERE is_compressed = 0 AND created_at < ? AND importance < ?
			ORDER BY user_id, session_id, created_at ASC
		`, cutoff, importanceThreshold)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c CompressionCandidate
			if err := rows.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Content, &c.Importance, &c.CreatedAt); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compression candidates: %v", model.ErrStorage, err)
	}
	return out, nil
}

// ReplaceWithCompressedMemory persists the synthesized summary memory
// and deletes its originals in one transaction, plus an audit row in
// compressed_memories. Individual delete errors are logged and do not
// abort the rest of the batch, matching the decay engine's tolerance
// for partial originals cleanup.
func (p *Pool) ReplaceWithCompressedMemory(ctx context.Context, summary *model.Memory, originalIDs []string, dateStart, dateEnd time.Time) error {
	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		metaJSON, _ := jsonMarshal(orEmptyMap(summary.Metadata))
		compressedJSON, _ := jsonMarshal(summary.CompressedFrom)
		_, err := tx.Exec(`
			INSERT INTO memories (
				id, user_id, session_id, content, metadata_json, importance,
				created_at, updated_at, expires_at, ttl_hours,
				is_compressed, compressed_from_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, 1, ?)
		`, summary.ID, summary.UserID, summary.SessionID, summary.Content, metaJSON,
			summary.Importance, summary.CreatedAt, summary.UpdatedAt, compressedJSON)
		if err != nil {
			return fmt.Errorf("%w: insert compressed memory: %v", model.ErrStorage, err)
		}

		originalsJSON, _ := jsonMarshal(originalIDs)
		auditID := summary.ID + ":audit"
		_, err = tx.Exec(`
			INSERT INTO compressed_memories (
				id, summary_memory_id, original_ids_json, user_id, session_id,
				original_count, date_range_start, date_range_end, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, auditID, summary.ID, originalsJSON, summary.UserID, summary.SessionID,
			len(originalIDs), dateStart, dateEnd, summary.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert compression audit: %v", model.ErrStorage, err)
		}

		for _, id := range originalIDs {
			if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
				log.Warn("failed to delete compressed original, continuing", "id", id, "error", err)
			}
		}
		return nil
	})
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// UsersOverQuota returns (user_id, active_count) pairs for every user
// whose active memory count exceeds maxPerUser.
func (p *Pool) UsersOverQuota(ctx context.Context, maxPerUser int) (map[string]int, error) {
	out := make(map[string]int)
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT user_id, COUNT(*) c FROM memories
			WHERE is_compressed = 0
			GROUP BY user_id HAVING c > ?
		`, maxPerUser)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var uid string
			var c int
			if err := rows.Scan(&uid, &c); err != nil {
				return err
			}
			out[uid] = c
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: users over quota: %v", model.ErrStorage, err)
	}
	return out, nil
}

// EvictLowestImportance deletes `count` memories for a user, ordered
// by importance ascending then created_at ascending (lowest importance
// first, ties broken by oldest first), for quota enforcement.
func (p *Pool) EvictLowestImportance(ctx context.Context, userID string, count int) (int, error) {
	var n int
	err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id FROM memories WHERE user_id = ? AND is_compressed = 0
			ORDER BY importance ASC, created_at ASC LIMIT ?
		`, userID, count)
		if err != nil {
			return fmt.Errorf("%w: scan quota eviction candidates: %v", model.ErrStorage, err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
				return fmt.Errorf("%w: evict memory %s: %v", model.ErrStorage, id, err)
			}
		}
		n = len(ids)
		return nil
	})
	return n, err
}

// CountAllActiveMemories counts every non-expired, non-compressed row
// across all users, used by the decay engine's before/after tallies.
func (p *Pool) CountAllActiveMemories(ctx context.Context) (int, error) {
	var count int
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memories
			WHERE is_compressed = 0 AND (expires_at IS NULL OR expires_at > ?)
		`, time.Now()).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count all active memories: %v", model.ErrStorage, err)
	}
	return count, nil
}

// AgeBuckets buckets every active memory by age into
// 24h/1w/1mo/3mo/1y/older and returns the histogram plus the total
// count, for the decay engine's read-only recommendations report.
func (p *Pool) AgeBuckets(ctx context.Context) (map[string]int, int, error) {
	buckets := map[string]int{"24h": 0, "1w": 0, "1mo": 0, "3mo": 0, "1y": 0, "older": 0}
	total := 0
	now := time.Now()
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT created_at FROM memories
			WHERE is_compressed = 0 AND (expires_at IS NULL OR expires_at > ?)
		`, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var createdAt time.Time
			if err := rows.Scan(&createdAt); err != nil {
				return err
			}
			total++
			age := now.Sub(createdAt)
			switch {
			case age <= 24*time.Hour:
				buckets["24h"]++
			case age <= 7*24*time.Hour:
				buckets["1w"]++
			case age <= 30*24*time.Hour:
				buckets["1mo"]++
			case age <= 90*24*time.Hour:
				buckets["3mo"]++
			case age <= 365*24*time.Hour:
				buckets["1y"]++
			default:
				buckets["older"]++
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: age buckets: %v", model.ErrStorage, err)
	}
	return buckets, total, nil
}

// SessionsInactiveSince returns session ids, across all users, with at least
// minMemories active memories and last_active at or before cutoff.
func (p *Pool) SessionsInactiveSince(ctx context.Context, cutoff time.Time, minMemories int) ([]string, error) {
	var out []string
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT s.id FROM sessions s
			JOIN memories m ON m.session_id = s.id AND m.is_compressed = 0
			WHERE s.last_active <= ?
			GROUP BY s.id
			HAVING COUNT(m.id) >= ?
		`, cutoff, minMemories)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sessions inactive since: %v", model.ErrStorage, err)
	}
	return out, nil
}
