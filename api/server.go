package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vms-recordings/config"
	"vms-recordings/database"
	"vms-recordings/metrics"
	"vms-recordings/recording"
	"vms-recordings/service"
)

// RecordingService is what the HTTP handlers need from the service layer.
type RecordingService interface {
	Sync(ctx context.Context, trigger string) (recording.SyncResult, error)
	LastSync() metrics.SyncSnapshot
	List(ctx context.Context, filter database.RecordingFilter) ([]database.Recording, int, error)
	Search(ctx context.Context, filter database.RecordingFilter) ([]database.Recording, int, error)
	Get(ctx context.Context, id string) (*database.Recording, error)
	Delete(ctx context.Context, id string) (bool, error)
	Serve(ctx context.Context, w http.ResponseWriter, id, rangeHeader string, disposition recording.Disposition) error
	Stats(ctx context.Context) (*service.StatsReport, error)
	Health(ctx context.Context) service.HealthReport
}

type Server struct {
	config config.Config
	svc    RecordingService
	log    *zap.Logger
	server *http.Server
}

func NewServer(cfg config.Config, svc RecordingService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{config: cfg, svc: svc, log: log}
	s.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the gin engine with middleware and routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(cors.New(s.corsConfig()))
	s.setupRoutes(r)
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("[api] starting API server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("[api] stopping API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Range"},
		ExposeHeaders: []string{"Content-Range", "Content-Length", "Accept-Ranges", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.config.CORSAllowedOrigins) == 0 || slices.Contains(s.config.CORSAllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.CORSAllowedOrigins
	}
	return cfg
}

func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/health", s.handleHealthCheck)

	recordings := api.Group("/recordings")
	{
		recordings.GET("", s.listRecordings)
		recordings.GET("/search", s.searchRecordings)
		recordings.GET("/stats", s.getStats)
		recordings.GET("/sync/status", s.getSyncStatus)
		recordings.POST("/sync", s.triggerSync)
		recordings.GET("/:id", s.getRecording)
		recordings.GET("/:id/stream", s.streamRecording)
		recordings.GET("/:id/download", s.downloadRecording)
		recordings.DELETE("/:id", s.deleteRecording)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if rng := c.GetHeader("Range"); rng != "" {
			fields = append(fields, zap.String("range", rng))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("[api] request", fields...)
		case status >= 400:
			log.Warn("[api] request", fields...)
		default:
			log.Info("[api] request", fields...)
		}
	}
}
