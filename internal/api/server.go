package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mindcache/mindcache/internal/async"
	"github.com/mindcache/mindcache/internal/decay"
	"github.com/mindcache/mindcache/internal/logging"
	"github.com/mindcache/mindcache/internal/memory"
	"github.com/mindcache/mindcache/internal/session"
	"github.com/mindcache/mindcache/pkg/config"
)

// Server is the optional local REST shell over the memory, session, and
// decay services.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	facade     *async.Facade
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer wires a Server over already-constructed services. Handlers
// go through the async façade so HTTP requests pick up the same
// concurrency gate as any other embedder.
func NewServer(cfg *config.Config, mem *memory.Service, sess *session.Service, decayE *decay.Engine) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.Server.CORSEnabled {
		log.Debug("enabling CORS")
		corsConfig := cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders: []string{"Content-Length", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}

		switch {
		case len(cfg.Server.AllowOrigins) > 0:
			corsConfig.AllowOrigins = cfg.Server.AllowOrigins
		case cfg.Server.APIKey != "":
			corsConfig.AllowOrigins = []string{
				"http://localhost:*",
				"http://127.0.0.1:*",
				"https://localhost:*",
				"https://127.0.0.1:*",
			}
			corsConfig.AllowWildcard = true
		default:
			corsConfig.AllowAllOrigins = true
		}

		router.Use(cors.New(corsConfig))
	}

	if cfg.Server.APIKey != "" {
		log.Info("API key authentication enabled")
		router.Use(APIKeyAuthMiddleware(cfg.Server.APIKey))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	facade := async.New(mem, sess, decayE, 8)

	server := &Server{
		router: router,
		config: cfg,
		facade: facade,
		log:    log,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)

		v1.POST("/memories", s.createMemory)
		v1.POST("/memories/batch", s.createMemoryBatch)
		v1.GET("/memories", s.recallMemories)
		v1.GET("/memories/search", s.searchMemories)
		v1.POST("/memories/search/similar", s.searchSimilarMemories)
		v1.GET("/memories/:id", s.getMemory)
		v1.PUT("/memories/:id", s.updateMemory)
		v1.DELETE("/memories/:id", s.deleteMemory)
		v1.GET("/memories/export", s.exportMemories)
		v1.GET("/memories/stats", s.memoryStats)

		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions/:id/summary", s.generateSummary)
		v1.GET("/sessions/search", s.crossSessionSearch)
		v1.DELETE("/sessions/:id", s.deleteSession)
		v1.GET("/sessions/analytics", s.sessionAnalytics)

		v1.POST("/decay/run", s.runDecay)
		v1.GET("/decay/recommendations", s.decayRecommendations)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "healthy"})
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	port := s.config.Server.Port
	if s.config.Server.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return fmt.Errorf("find available port: %w", err)
		}
		port = availablePort
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext runs the server until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	port := s.config.Server.Port
	if s.config.Server.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return fmt.Errorf("find available port: %w", err)
		}
		port = availablePort
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("server shutdown error", "error", err)
		return err
	}
	return nil
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
