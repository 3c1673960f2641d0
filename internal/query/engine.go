// Package query is the Query Engine: filter composition, pagination
// metadata, and FTS term matching over the storage layer. Builds a
// dynamic WHERE clause the way a hand-rolled options-struct dispatcher
// would, collapsed down to the single composed Filter this store
// exposes rather than a menu of distinct search types.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
)

var log = logging.GetLogger("query")

// DB is the subset of the storage pool the query engine needs. Kept
// narrow so tests can fake it without pulling in the storage package.
type DB interface {
	WriteDB() *sql.DB
	ReadConn(ctx context.Context, fn func(*sql.DB) error) error
}

// Engine composes filters into SQL and executes them against the
// storage layer's read pool.
type Engine struct {
	db DB
}

// New builds a query engine over the given storage handle.
func New(db DB) *Engine {
	return &Engine{db: db}
}

// Normalize fills in the Filter's defaults (limit 50, offset 0) and
// clamps limit/offset to their documented bounds.
func Normalize(f model.Filter) model.Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Offset > 1_000_000 {
		f.Offset = 1_000_000
	}
	return f
}

// compose builds the WHERE clause and argument list for a filter,
// always appending the two mandatory predicates: not yet expired, and
// not a compressed parent.
func compose(f model.Filter) (where string, args []any, ftsJoin string) {
	var clauses []string
	if f.UserID != "" {
		clauses = append(clauses, "m.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "m.session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.CreatedAfter != nil {
		clauses = append(clauses, "m.created_at >= ?")
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		clauses = append(clauses, "m.created_at < ?")
		args = append(args, *f.CreatedBefore)
	}
	if f.MinImportance != nil {
		clauses = append(clauses, "m.importance >= ?")
		args = append(args, *f.MinImportance)
	}

	if len(f.Keywords) > 0 {
		ftsJoin = "JOIN memories_fts fts ON fts.rowid = m.rowid"
		clauses = append(clauses, "memories_fts MATCH ?")
		args = append(args, ftsExpr(f.Keywords))
	}

	clauses = append(clauses, "(m.expires_at IS NULL OR m.expires_at > ?)")
	args = append(args, time.Now())
	clauses = append(clauses, "m.is_compressed = 0")

	return strings.Join(clauses, " AND "), args, ftsJoin
}

// ftsExpr joins keywords with OR into an FTS5 MATCH expression. Every
// term is double-quoted, with embedded quotes doubled.
func ftsExpr(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = `"` + strings.ReplaceAll(k, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Recall runs a filter and returns a consistent paginated response:
// total_count and the page are read from a single connection within
// one transaction-equivalent read (a BEGIN DEFERRED snapshot) so they
// never diverge under a concurrent writer.
func (e *Engine) Recall(ctx context.Context, f model.Filter) (*model.PaginatedResponse, error) {
	f = Normalize(f)
	where, args, ftsJoin := compose(f)

	var resp model.PaginatedResponse
	err := e.db.ReadConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return fmt.Errorf("%w: begin recall snapshot: %v", model.ErrStorage, err)
		}
		defer tx.Rollback()

		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM memories m %s WHERE %s`, ftsJoin, where)
		if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&resp.TotalCount); err != nil {
			return fmt.Errorf("%w: count recall: %v", model.ErrStorage, err)
		}

		dataQuery := fmt.Sprintf(`
			SELECT m.id, m.user_id, m.session_id, m.content, m.metadata_json, m.importance,
			       m.created_at, m.updated_at, m.expires_at, m.ttl_hours,
			       m.is_compressed, m.compressed_from_json, m.access_count, m.last_accessed_at
			FROM memories m %s
			WHERE %s
			ORDER BY m.created_at DESC, m.importance DESC, m.id ASC
			LIMIT ? OFFSET ?
		`, ftsJoin, where)
		rows, err := tx.QueryContext(ctx, dataQuery, append(append([]any{}, args...), f.Limit, f.Offset)...)
		if err != nil {
			return fmt.Errorf("%w: recall query: %v", model.ErrStorage, err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanRow(rows)
			if err != nil {
				return fmt.Errorf("%w: scan recall row: %v", model.ErrStorage, err)
			}
			resp.Data = append(resp.Data, *m)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	resp.PerPage = f.Limit
	resp.Page = f.Offset / f.Limit
	if resp.TotalCount == 0 {
		resp.TotalPages = 0
	} else {
		resp.TotalPages = (resp.TotalCount + f.Limit - 1) / f.Limit
	}
	resp.HasNext = f.Offset+len(resp.Data) < resp.TotalCount
	resp.HasPrev = f.Offset > 0
	return &resp, nil
}

// SearchMemories splits query on whitespace, drops empty tokens, and
// recalls with those tokens as OR'ed keywords. An empty token set
// short-circuits to an empty page without touching storage.
func (e *Engine) SearchMemories(ctx context.Context, userID, query string, limit, offset int) (*model.PaginatedResponse, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return &model.PaginatedResponse{PerPage: limit, Data: []model.Memory{}}, nil
	}
	return e.Recall(ctx, model.Filter{
		UserID:   userID,
		Keywords: tokens,
		Limit:    limit,
		Offset:   offset,
	})
}

func tokenize(query string) []string {
	fields := strings.Fields(query)
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

func scanRow(rows *sql.Rows) (*model.Memory, error) {
	var m model.Memory
	var metaJSON string
	var expiresAt sql.NullTime
	var ttl sql.NullInt64
	var compressedJSON sql.NullString
	var lastAccessedAt sql.NullTime
	err := rows.Scan(
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
		_ = decodeMeta(metaJSON, &m.Metadata)
	}
	if compressedJSON.Valid && compressedJSON.String != "" {
		_ = decodeCompressed(compressedJSON.String, &m.CompressedFrom)
	}
	return &m, nil
}
