// Package storage is the Storage Engine: the relational+FTS on-disk
// layout, pooled connections with write/read separation, and the
// migration runner. Every other component reaches the database file
// only through this package.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/vector"
	"github.com/sony/gobreaker"
)

// sqlDriver is the sqlite3 driver variant every pooled connection
// opens with. It is vector's registered driver rather than the bare
// "sqlite3" one so that cosine_similarity is available on every
// connection without the vector index needing its own pool.
var sqlDriver = vector.DriverName()

var log = logging.GetLogger("storage")

// PoolConfig tunes the connection pool. Zero-valued fields fall back
// to sane defaults in Open.
type PoolConfig struct {
	// Path is the primary (writable) database file.
	Path string
	// ReadReplicaPaths, if set, are additional read-only files the
	// read pool round-robins over. When empty, reads are served from
	// the primary file through a separate, higher-concurrency handle.
	ReadReplicaPaths []string
	MaxReadConns     int
	WALEnabled       bool
	CacheSizePages   int // negative per SQLite convention = KiB
	BusyTimeout      time.Duration
	MmapSizeBytes    int64
	LeaseTimeout     time.Duration
}

func (c *PoolConfig) setDefaults() {
	if c.MaxReadConns <= 0 {
		c.MaxReadConns = 4
	}
	if c.CacheSizePages == 0 {
		c.CacheSizePages = -20000 // ~20MB page cache
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 30 * time.Second
	}
	if c.MmapSizeBytes <= 0 {
		c.MmapSizeBytes = 256 << 20
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 30 * time.Second
	}
	c.WALEnabled = true
}

// Pool is the Storage Engine's connection pool: one write handle
// (SetMaxOpenConns(1), since SQLite allows a single writer) plus one or
// more read handles. PRAGMA tuning is grounded on the connection-init
// closure of the original Rust pool: WAL, a tuned page cache, a long
// busy timeout, a memory-mapped region, and foreign-key enforcement.
type Pool struct {
	cfg     PoolConfig
	write   *sql.DB
	reads   []*sql.DB
	readRR  uint64
	breaker *gobreaker.CircuitBreaker
}

// Open opens (and, if necessary, creates) the primary database file
// and any configured read replicas, applying PRAGMA tuning to every
// connection.
func Open(cfg PoolConfig) (*Pool, error) {
	cfg.setDefaults()
	log.Info("opening storage pool", "path", cfg.Path, "read_replicas", len(cfg.ReadReplicaPaths))

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	write, err := sql.Open(sqlDriver, dsn(cfg.Path, cfg, false))
	if err != nil {
		return nil, fmt.Errorf("open primary database: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxLifetime(time.Hour)
	if err := write.Ping(); err != nil {
		write.Close()
		return nil, fmt.Errorf("ping primary database: %w", err)
	}

	var reads []*sql.DB
	if len(cfg.ReadReplicaPaths) > 0 {
		for _, p := range cfg.ReadReplicaPaths {
			r, err := sql.Open(sqlDriver, dsn(p, cfg, true))
			if err != nil {
				write.Close()
				closeAll(reads)
				return nil, fmt.Errorf("open read replica %s: %w", p, err)
			}
			r.SetMaxOpenConns(cfg.MaxReadConns)
			if err := r.Ping(); err != nil {
				write.Close()
				closeAll(reads)
				return nil, fmt.Errorf("ping read replica %s: %w", p, err)
			}
			reads = append(reads, r)
		}
	} else {
		r, err := sql.Open(sqlDriver, dsn(cfg.Path, cfg, false))
		if err != nil {
			write.Close()
			return nil, fmt.Errorf("open read handle: %w", err)
		}
		r.SetMaxOpenConns(cfg.MaxReadConns)
		if err := r.Ping(); err != nil {
			write.Close()
			r.Close()
			return nil, fmt.Errorf("ping read handle: %w", err)
		}
		reads = []*sql.DB{r}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "storage-write",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	p := &Pool{cfg: cfg, write: write, reads: reads, breaker: breaker}
	log.Info("storage pool ready", "path", cfg.Path)
	return p, nil
}

func dsn(path string, cfg PoolConfig, readOnly bool) string {
	mode := "rwc"
	if readOnly {
		mode = "ro"
	}
	return fmt.Sprintf(
		"file:%s?mode=%s&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d"+
			"&_cache_size=%d&_mmap_size=%d&_synchronous=NORMAL&_temp_store=memory",
		path, mode, cfg.BusyTimeout.Milliseconds(), cfg.CacheSizePages, cfg.MmapSizeBytes)
}

func closeAll(dbs []*sql.DB) {
	for _, db := range dbs {
		db.Close()
	}
}

// Close releases every underlying connection.
func (p *Pool) Close() error {
	var firstErr error
	if err := p.write.Close(); err != nil {
		firstErr = err
	}
	for _, r := range p.reads {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteDB exposes the primary connection for package-internal callers
// that need raw access (migrations, vector index registration).
func (p *Pool) WriteDB() *sql.DB { return p.write }

// readDB round-robins over the read pool.
func (p *Pool) readDB() *sql.DB {
	n := atomic.AddUint64(&p.readRR, 1)
	return p.reads[int(n)%len(p.reads)]
}

// Path returns the primary database file path.
func (p *Pool) Path() string { return p.cfg.Path }

// withReadConn runs fn against a round-robined read connection. Reads
// never open a transaction and never touch the write lock.
func (p *Pool) withReadConn(ctx context.Context, fn func(*sql.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.LeaseTimeout)
	defer cancel()
	_ = ctx // connection acquisition below is pool-internal; sql.DB has no explicit lease API
	return fn(p.readDB())
}

// ReadConn is the exported form of withReadConn, used by the query
// engine (internal/query.DB) so it can run its own multi-statement
// read snapshots without depending on storage's internal CRUD helpers.
func (p *Pool) ReadConn(ctx context.Context, fn func(*sql.DB) error) error {
	return p.withReadConn(ctx, fn)
}

// withWriteTx runs fn inside an explicit transaction on the primary
// connection, retrying up to 3 times with linearly increasing backoff
// on transient contention (SQLITE_BUSY/SQLITE_LOCKED), matching the
// retry discipline of the original connection pool. Writes that
// exhaust their retries trip the circuit breaker so subsequent calls
// fail fast for a cool-down window instead of queueing behind a
// wedged writer. A constraint violation is returned as ErrInvalidInput.
func (p *Pool) withWriteTx(ctx context.Context, fn func(*sql.Tx) error) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 1; attempt <= 3; attempt++ {
			tx, err := p.write.BeginTx(ctx, nil)
			if err != nil {
				lastErr = err
				if !isTransient(err) {
					return nil, err
				}
				backoff(attempt)
				continue
			}
			if err := fn(tx); err != nil {
				tx.Rollback()
				lastErr = err
				if !isTransient(err) {
					return nil, err
				}
				backoff(attempt)
				continue
			}
			if err := tx.Commit(); err != nil {
				lastErr = err
				if !isTransient(err) {
					return nil, err
				}
				backoff(attempt)
				continue
			}
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStorage, lastErr)
	})
	if err != nil {
		if strings.Contains(err.Error(), "constraint failed") {
			return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
		}
		return err
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "SQLITE_LOCKED")
}

func backoff(attempt int) {
	base := time.Duration(attempt) * 100 * time.Millisecond
	jitter := time.Duration(rand.Intn(50)) * time.Millisecond
	time.Sleep(base + jitter)
}

// Checkpoint forces a WAL checkpoint.
func (p *Pool) Checkpoint() error {
	_, err := p.write.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Vacuum runs VACUUM to reclaim space.
func (p *Pool) Vacuum() error {
	_, err := p.write.Exec("VACUUM")
	return err
}
