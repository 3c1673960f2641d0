// Package vector is the Vector Index: an ancillary per-memory
// embedding blob store plus a cosine-similarity scan registered as a
// custom SQLite scalar function via mattn/go-sqlite3's
// ConnectHook/RegisterFunc, rather than a separate vector database.
package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
)

var log = logging.GetLogger("vector")

const driverName = "sqlite3_mindcache_vector"

var registerOnce sync.Once

// registerDriver installs a sqlite3 driver variant whose ConnectHook
// registers cosine_similarity on every new connection. Must run before
// any sql.Open using driverName.
func registerDriver() {
	registerOnce.Do(func() {
		log.Info("registering cosine_similarity scalar function", "driver", driverName)
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("cosine_similarity", cosineSimilaritySQL, true)
			},
		})
	})
}

// DriverName returns the registered driver name storage.Open-compatible
// callers should use in place of "sqlite3" when the vector index is
// enabled, ensuring every pooled connection gets the scalar function.
func DriverName() string {
	registerDriver()
	return driverName
}

// cosineSimilaritySQL is the SQL-callable form of cosine similarity:
// two packed little-endian float32 blobs in, one REAL out. Returns 0
// if either vector has zero norm or the lengths mismatch, per the
// index's documented failure semantics (a mismatch is not an error at
// the SQL layer — validation happens in StoreEmbedding/SearchSimilar).
func cosineSimilaritySQL(a, b []byte) float64 {
	va, err1 := decode(a)
	vb, err2 := decode(b)
	if err1 != nil || err2 != nil || len(va) != len(vb) {
		return 0
	}
	return cosine(va, vb)
}

func decode(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

func encode(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f))
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Config is the vector index's runtime configuration.
type Config struct {
	Dimension              int
	SimilarityThreshold    float64
	MaxResults             int
	EnableApproximateSearch bool
}

// DefaultConfig returns the 384/0.7/50/true baseline: 384-dimensional
// embeddings, a 0.7 cosine-similarity cutoff, capped at 50 results,
// with approximate search enabled.
func DefaultConfig() Config {
	return Config{
		Dimension:           384,
		SimilarityThreshold: 0.7,
		MaxResults:          50,
		EnableApproximateSearch: true,
	}
}

// Index wraps the primary write handle for embedding storage and
// similarity search. It does not pool connections itself; it is handed
// the storage engine's write *sql.DB (embeddings are small, infrequent
// writes, so a dedicated pool is unnecessary).
type Index struct {
	db  *sql.DB
	cfg Config
}

// New wires an Index to an already-opened *sql.DB (opened with
// DriverName() so cosine_similarity is registered on its connections).
func New(db *sql.DB, cfg Config) *Index {
	if cfg.Dimension <= 0 {
		cfg = DefaultConfig()
	}
	return &Index{db: db, cfg: cfg}
}

// StoreEmbedding upserts the embedding for (memoryID, model). Rejects
// vectors whose length does not equal the index dimension D.
func (ix *Index) StoreEmbedding(ctx context.Context, memoryID, modelName string, embedding []float32) error {
	if len(embedding) != ix.cfg.Dimension {
		return fmt.Errorf("%w: got %d, want %d", model.ErrDimensionMismatch, len(embedding), ix.cfg.Dimension)
	}
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings (memory_id, model, embedding, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id, model) DO UPDATE SET
			embedding = excluded.embedding, dimension = excluded.dimension, created_at = excluded.created_at
	`, memoryID, modelName, encode(embedding), ix.cfg.Dimension, time.Now())
	if err != nil {
		return fmt.Errorf("%w: store embedding: %v", model.ErrStorage, err)
	}
	return nil
}

// SimilarityResult is one row of a similarity scan.
type SimilarityResult struct {
	MemoryID   string
	UserID     string
	SessionID  string
	Content    string
	Importance float32
	Similarity float64
}

// SearchSimilar scans every embedding matching modelName whose owning
// memory is active (not expired, not a compressed parent), keeps those
// with similarity >= the configured threshold, and returns the top
// min(k, MaxResults) ordered by similarity descending.
func (ix *Index) SearchSimilar(ctx context.Context, query []float32, modelName string, k int) ([]SimilarityResult, error) {
	if len(query) != ix.cfg.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", model.ErrDimensionMismatch, len(query), ix.cfg.Dimension)
	}
	if k <= 0 || k > ix.cfg.MaxResults {
		k = ix.cfg.MaxResults
	}
	qblob := encode(query)

	rows, err := ix.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.session_id, m.content, m.importance,
		       cosine_similarity(e.embedding, ?) AS similarity
		FROM memory_embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE e.model = ? AND m.is_compressed = 0
		  AND (m.expires_at IS NULL OR m.expires_at > ?)
		  AND similarity >= ?
		ORDER BY similarity DESC, m.created_at DESC, m.id ASC
		LIMIT ?
	`, qblob, modelName, time.Now(), ix.cfg.SimilarityThreshold, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search similar: %v", model.ErrStorage, err)
	}
	defer rows.Close()

	var out []SimilarityResult
	for rows.Next() {
		var r SimilarityResult
		if err := rows.Scan(&r.MemoryID, &r.UserID, &r.SessionID, &r.Content, &r.Importance, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan similarity row: %v", model.ErrStorage, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HybridSearch combines a text predicate (FTS match on T) and a
// vector predicate (cosine to V) into a weighted score:
//
//	score = textWeight * 1[fts_match] + vectorWeight * cos(emb, V)
//
// and returns candidates meeting the threshold
// textWeight*0.5 + vectorWeight*SimilarityThreshold, ordered by score
// desc, then created_at desc, then id asc — the exact formula of the
// original implementation's hybrid_search.
func (ix *Index) HybridSearch(ctx context.Context, text, modelName string, queryVec []float32, textWeight, vectorWeight float64, k int) ([]SimilarityResult, error) {
	if len(queryVec) != ix.cfg.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", model.ErrDimensionMismatch, len(queryVec), ix.cfg.Dimension)
	}
	if k <= 0 || k > ix.cfg.MaxResults {
		k = ix.cfg.MaxResults
	}
	minScore := textWeight*0.5 + vectorWeight*ix.cfg.SimilarityThreshold
	qblob := encode(queryVec)

	rows, err := ix.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.session_id, m.content, m.importance,
		       (? * CASE WHEN fts.rowid IS NOT NULL THEN 1.0 ELSE 0.0 END
		        + ? * cosine_similarity(e.embedding, ?)) AS score
		FROM memory_embeddings e
		JOIN memories m ON m.id = e.memory_id
		LEFT JOIN memories_fts fts ON fts.rowid = m.rowid AND memories_fts MATCH ?
		WHERE e.model = ? AND m.is_compressed = 0
		  AND (m.expires_at IS NULL OR m.expires_at > ?)
		  AND score >= ?
		ORDER BY score DESC, m.created_at DESC, m.id ASC
		LIMIT ?
	`, textWeight, vectorWeight, qblob, text, modelName, time.Now(), minScore, k)
	if err != nil {
		return nil, fmt.Errorf("%w: hybrid search: %v", model.ErrStorage, err)
	}
	defer rows.Close()

	var out []SimilarityResult
	for rows.Next() {
		var r SimilarityResult
		if err := rows.Scan(&r.MemoryID, &r.UserID, &r.SessionID, &r.Content, &r.Importance, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan hybrid row: %v", model.ErrStorage, err)
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, rows.Err()
}
