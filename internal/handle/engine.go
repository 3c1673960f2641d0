package handle

import (
	"context"
	"fmt"

	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/memory"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/query"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
	"github.com/mindcache/mindcache/internal/vector"
	"github.com/mindcache/mindcache/pkg/config"
)

// engine bundles one opened storage pool and its services behind a
// single handle.
type engine struct {
	pool   *storage.Pool
	mem    *memory.Service
	sess   *session.Service
	decayE *decay.Engine

	lastErrCode int
	lastErrMsg  string
}

func newEngine(cfg *config.Config) (*engine, error) {
	pool, err := storage.Open(storage.PoolConfig{
		Path:             cfg.Database.Path,
		ReadReplicaPaths: cfg.Database.ReadReplicaPaths,
		MaxReadConns:     cfg.Database.MaxReadConns,
		WALEnabled:       cfg.Database.WALEnabled,
		CacheSizePages:   cfg.Database.CacheSizePages,
		BusyTimeout:      cfg.Database.BusyTimeout,
		MmapSizeBytes:    cfg.Database.MmapSizeBytes,
		LeaseTimeout:     cfg.Database.LeaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := pool.InitSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	v := validate.New(validate.Config{
		EnableRequestLimits:  cfg.Validator.EnableRequestLimits,
		MaxRequestsPerMinute: cfg.Validator.MaxRequestsPerMinute,
		MaxBatchSize:         cfg.Validator.MaxBatchSize,
		MaxMemoriesPerUser:   cfg.Decay.MaxMemoriesPerUser,
		ImportanceThreshold:  cfg.Decay.ImportanceThreshold,
	})
	qe := query.New(pool)
	vecIdx := vector.New(pool.WriteDB(), vector.Config{
		Dimension:               cfg.Vector.Dimension,
		SimilarityThreshold:     cfg.Vector.SimilarityThreshold,
		MaxResults:              cfg.Vector.MaxResults,
		EnableApproximateSearch: cfg.Vector.EnableApproximateSearch,
	})
	memSvc := memory.New(pool, qe, v, vecIdx)
	sessSvc := session.New(pool, v)
	decayEng := decay.New(pool, model.DecayPolicy{
		MaxAgeHours:           cfg.Decay.MaxAgeHours,
		ImportanceThreshold:   cfg.Decay.ImportanceThreshold,
		MaxMemoriesPerUser:    cfg.Decay.MaxMemoriesPerUser,
		CompressionEnabled:    cfg.Decay.EnableCompression,
		AutoSummarizeSessions: cfg.Decay.AutoSummarizeSessions,
	})

	return &engine{pool: pool, mem: memSvc, sess: sessSvc, decayE: decayEng}, nil
}

func (e *engine) close() error {
	return e.pool.Close()
}

func (e *engine) setError(code int, msg string) {
	e.lastErrCode = code
	e.lastErrMsg = msg
}

func (e *engine) clearError() {
	e.lastErrCode = 0
	e.lastErrMsg = ""
}
