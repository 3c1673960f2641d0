package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindcache/mindcache/internal/api"
	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/memory"
	"github.com/mindcache/mindcache/internal/model"
	"github.com/mindcache/mindcache/internal/query"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/internal/storage"
	"github.com/mindcache/mindcache/internal/validate"
	"github.com/mindcache/mindcache/internal/vector"
	"github.com/mindcache/mindcache/pkg/config"
)

// Version is set during build.
var Version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "mindcache",
	Short:   "Local-first memory store for AI applications",
	Version: Version,
	Long: `MindCache persists short textual memories scoped to user and session,
retrieves them via lexical, attribute, or similarity queries, and
prunes stale content with a decay engine run on demand
("mindcache decay run", the REST API, or the handle ABI).

Examples:
  mindcache save alice sess-1 "decided to ship on friday" --importance 0.8
  mindcache recall alice
  mindcache search alice "friday ship"
  mindcache decay run
  mindcache serve`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log_level", "info", "log level (debug, info, warn, error)")
}

// services bundles the services every subcommand needs, opened fresh
// per invocation (the CLI is a short-lived process per call, unlike
// serve).
type services struct {
	pool   *storage.Pool
	mem    *memory.Service
	sess   *session.Service
	decayE *decay.Engine
}

func openServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}

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

	return &services{
		pool:   pool,
		mem:    memory.New(pool, qe, v, vecIdx),
		sess:   session.New(pool, v),
		decayE: decay.New(pool, model.DecayPolicy{
			MaxAgeHours:           cfg.Decay.MaxAgeHours,
			ImportanceThreshold:   cfg.Decay.ImportanceThreshold,
			MaxMemoriesPerUser:    cfg.Decay.MaxMemoriesPerUser,
			CompressionEnabled:    cfg.Decay.EnableCompression,
			AutoSummarizeSessions: cfg.Decay.AutoSummarizeSessions,
		}),
	}, nil
}

func (s *services) close() {
	s.pool.Close()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the optional local REST shell",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
		logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

		svcs, err := openServices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer svcs.close()

		srv := api.NewServer(cfg, svcs.mem, svcs.sess, svcs.decayE)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		if err := srv.StartWithContext(ctx, 10*time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
