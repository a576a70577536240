package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/username/orphanrun/pkg/config"
	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/spi/csvfile"
	"github.com/username/orphanrun/pkg/stats"
)

// Analyzer is the part of orphanrun.Analyzer the HTTP layer needs
type Analyzer interface {
	Analyze(ctx context.Context, minRun int) (*core.Result, error)
	Fetch(ctx context.Context) (*core.Feed, error)
	Latest() (*core.Result, *core.Feed)
	MinRunLength() int
	OnUpdate(h core.UpdateHandler)
	Source() core.FeedSource
}

// Server serves the detection results, layouts and block counters over HTTP
type Server struct {
	analyzer   Analyzer
	cfg        *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	hub        *Hub
	blocks     *Hub
	jobsHub    *Hub
	jobs       core.FeedSource // nil when no jobs log is configured
	httpServer *http.Server
	now        func() time.Time
}

// New creates the server and registers the runs and blocks streams as update
// handlers. The jobs stream is fed by WatchJobs.
func New(analyzer Analyzer, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	s := &Server{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger,
		router:   router,
		hub:      NewHub("runs", logger),
		blocks:   NewHub("blocks", logger),
		jobsHub:  NewHub("jobs", logger),
		now:      time.Now,
	}
	if cfg.JobsCSVPath != "" {
		s.jobs = csvfile.New(cfg.JobsCSVPath, logger)
	}
	analyzer.OnUpdate(s.hub.Broadcast)
	analyzer.OnUpdate(s.publishBlocks)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	selfish := s.router.Group("/api/selfish-mining")
	{
		selfish.GET("", s.handleDetect)
		selfish.GET("/meta", s.handleMeta)
		selfish.GET("/runs", s.handleRuns)
		selfish.GET("/layouts", s.handleLayouts)
		selfish.GET("/page", s.handlePage)
		selfish.GET("/svg/:start", s.handleSVG)
	}

	orphan := s.router.Group("/api/orphan", noStore)
	{
		orphan.GET("/daily", s.handleCounters(stats.ByDay))
		orphan.GET("/hourly", s.handleCounters(stats.ByHour))
	}
	qubic := s.router.Group("/api/qubic", noStore)
	{
		qubic.GET("/daily", s.handleCounters(stats.ByDay))
		qubic.GET("/hourly", s.handleCounters(stats.ByHour))
	}

	s.router.GET("/api/blocks/ws", s.hub.HandleWebSocket)
	s.router.GET("/api/blocks.csv", noStore, s.handleBlocksCSV)
	blocks := s.router.Group("/api/blocks", noStore)
	{
		blocks.GET("", s.handleBlocks)
		blocks.GET("/uniq", s.handleBlocksUniq)
		blocks.GET("/stream", s.blocks.HandleWebSocket)
	}

	s.router.GET("/api/jobs.csv", noStore, s.handleJobsCSV)
	jobs := s.router.Group("/api/jobs", noStore)
	{
		jobs.GET("", s.handleJobs)
		jobs.GET("/stream", s.jobsHub.HandleWebSocket)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the runs stream hub
func (s *Server) Hub() *Hub { return s.hub }

// Start listens on the configured address in the background
func (s *Server) Start() error {
	if s.httpServer != nil {
		return errors.New("server already started")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.ListenAddr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes the websocket subscribers and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	for _, h := range []*Hub{s.hub, s.blocks, s.jobsHub} {
		h.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
