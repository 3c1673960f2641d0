package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindcache/mindcache/internal/model"
)

// CreateMemory inserts a new memory row. Callers (the Memory Service)
// are responsible for id assignment, timestamp stamping, expires_at
// derivation, and importance clamping before calling this; the storage
// layer only persists what it is given, atomically.
func (p *Pool) CreateMemory(ctx context.Context, m *model.Memory) error {
	metaJSON, err := json.Marshal(orEmptyMap(m.Metadata))
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", model.ErrInvalidInput, err)
	}
	var compressedJSON sql.NullString
	if len(m.CompressedFrom) > 0 {
		b, _ := json.Marshal(m.CompressedFrom)
		compressedJSON = sql.NullString{String: string(b), Valid: true}
	}

	return p.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO memories (
				id, user_id, session_id, content, metadata_json, importance,
				created_at, updated_at, expires_at, ttl_hours,
				is_compressed, compressed_from_json, access_count, last_accessed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)
		`,
			m.ID, m.UserID, m.SessionID, m.Content, string(metaJSON), m.Importance,
			m.CreatedAt, m.UpdatedAt, nullTime(m.ExpiresAt), nullInt(m.TTLHours),
			m.IsCompressed, compressedJSON,
		)
		if err != nil {
			return fmt.Errorf("%w: insert memory: %v", model.ErrStorage, err)
		}
		return touchSessionTx(tx, m.UserID, m.SessionID, m.UpdatedAt)
	})
}

// touchSessionTx advances a session's last_active, creating it if it
// does not exist yet (a memory may be the first write into a session).
func touchSessionTx(tx *sql.Tx, userID, sessionID string, at time.Time) error {
	res, err := tx.Exec(`UPDATE sessions SET last_active = ? WHERE id = ?`, at, sessionID)
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", model.ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, user_id, name, created_at, last_active)
			VALUES (?, ?, '', ?, ?)
		`, sessionID, userID, at, at)
		if err != nil {
			return fmt.Errorf("%w: create session: %v", model.ErrStorage, err)
		}
	}
	return nil
}

const memoryColumns = `
	id, user_id, session_id, content, metadata_json, importance,
	created_at, updated_at, expires_at, ttl_hours,
	is_compressed, compressed_from_json, access_count, last_accessed_at`

func scanMemory(row interface{ Scan(...any) error }) (*model.Memory, error) {
	var m model.Memory
	var metaJSON string
	var expiresAt sql.NullTime
	var ttl sql.NullInt64
	var compressedJSON sql.NullString
	var lastAccessedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.UserID, &m.SessionID, &m.Content, &metaJSON, &m.Importance,
		&m.CreatedAt, &m.UpdatedAt, &expiresAt, &ttl,
		&m.IsCompressed, &compressedJSON, &m.AccessCount, &lastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}
	if ttl.Valid {
		v := int(ttl.Int64)
		m.TTLHours = &v
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		m.LastAccessedAt = &t
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
	}
	if compressedJSON.Valid && compressedJSON.String != "" {
		_ = json.Unmarshal([]byte(compressedJSON.String), &m.CompressedFrom)
	}
	return &m, nil
}

// GetMemory fetches a memory by id and stamps the access: access_count
// is incremented and last_accessed_at set to now in the same
// transaction as the read. A memory whose expires_at has passed is
// invisible here just as it is in Recall/Search — only the decay
// engine's purge scan sees expired rows. Returns (nil, nil) if absent
// or expired.
func (p *Pool) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	var result *model.Memory
	err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND (expires_at IS NULL OR expires_at > ?)`, id, time.Now())
		m, err := scanMemory(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: get memory: %v", model.ErrStorage, err)
		}

		now := time.Now()
		m.AccessCount++
		m.LastAccessedAt = &now
		if _, err := tx.Exec(`UPDATE memories SET access_count = ?, last_accessed_at = ? WHERE id = ?`,
			m.AccessCount, now, id); err != nil {
			return fmt.Errorf("%w: stamp access: %v", model.ErrStorage, err)
		}

		result = m
		return nil
	})
	return result, err
}

// UpdateMemory applies a sparse patch and re-persists the row,
// returning the updated record. Returns (nil, nil) if the id is
// absent.
func (p *Pool) UpdateMemory(ctx context.Context, id string, patch func(*model.Memory)) (*model.Memory, error) {
	var result *model.Memory
	err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
		m, err := scanMemory(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: load memory: %v", model.ErrStorage, err)
		}

		patch(m)

		metaJSON, _ := json.Marshal(orEmptyMap(m.Metadata))
		var compressedJSON sql.NullString
		if len(m.CompressedFrom) > 0 {
			b, _ := json.Marshal(m.CompressedFrom)
			compressedJSON = sql.NullString{String: string(b), Valid: true}
		}

		_, err = tx.Exec(`
			UPDATE memories SET
				content = ?, metadata_json = ?, importance = ?,
				updated_at = ?, expires_at = ?, ttl_hours = ?,
				is_compressed = ?, compressed_from_json = ?
			WHERE id = ?
		`,
			m.Content, string(metaJSON), m.Importance,
			m.UpdatedAt, nullTime(m.ExpiresAt), nullInt(m.TTLHours),
			m.IsCompressed, compressedJSON,
			id,
		)
		if err != nil {
			return fmt.Errorf("%w: update memory: %v", model.ErrStorage, err)
		}
		result = m
		return nil
	})
	return result, err
}

// DeleteMemory removes a memory row; the FTS mirror is removed in the
// same transaction via trigger. Returns true if a row was deleted.
func (p *Pool) DeleteMemory(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := p.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: delete memory: %v", model.ErrStorage, err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// CountActiveMemories counts non-expired, non-compressed-parent rows
// for a user; used by quota enforcement and statistics.
func (p *Pool) CountActiveMemories(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.withReadConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM memories
			WHERE user_id = ? AND is_compressed = 0
			  AND (expires_at IS NULL OR expires_at > ?)
		`, userID, time.Now()).Scan(&count)
	})
	return count, err
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
