package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
	"github.com/vityasyyy/dalam-kemasan/internal/retention"
)

// Server exposes the drive over a JSON API.
type Server struct {
	cfg       *config.Config
	store     *drive.Store
	engine    *query.Engine
	retention *retention.Scheduler
	queue     *asynq.Client
	now       func() time.Time

	router *gin.Engine
	server *http.Server
	once   sync.Once
}

// Option customises a Server.
type Option func(*Server)

// WithQueue makes POST /api/trash/sweep enqueue a worker task instead of
// sweeping in-process.
func WithQueue(client *asynq.Client) Option {
	return func(s *Server) { s.queue = client }
}

// WithClock replaces the clock used for trash and open timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New constructs a Server.
func New(cfg *config.Config, store *drive.Store, engine *query.Engine, scheduler *retention.Scheduler, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		retention: scheduler,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), s.corsMiddleware())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	entities := api.Group("/entities")
	entities.POST("", s.handleCreate)
	entities.GET("/:id", s.handleGet)
	entities.PATCH("/:id/name", s.handleRename)
	entities.POST("/:id/move", s.handleMove)
	entities.PUT("/:id/starred", s.handleSetStarred)
	entities.PUT("/:id/shared", s.handleSetShared)
	entities.POST("/:id/open", s.handleOpen)
	entities.POST("/:id/trash", s.handleTrash)
	entities.POST("/:id/restore", s.handleRestore)
	entities.DELETE("/:id", s.handlePurge)

	views := api.Group("/views")
	views.GET("/children", s.handleChildren)
	views.GET("/recent", s.handleRecent)
	views.GET("/shared", s.handleShared)
	views.GET("/starred", s.handleStarred)
	views.GET("/trash", s.handleListTrash)

	trash := api.Group("/trash")
	trash.POST("/empty", s.handleEmptyTrash)
	trash.POST("/restore-all", s.handleRestoreAll)
	trash.POST("/sweep", s.handleSweep)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	logger.Log.Info().Str("address", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Owner-Id"}
	if len(s.cfg.CORSOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.CORSOrigins
	}
	return cors.New(cfg)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		c.Next()

		status := c.Writer.Status()
		event := logger.Log.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("request")
	}
}
