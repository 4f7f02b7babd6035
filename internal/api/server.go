package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/store"
	"subforge/internal/tasklog"
	"subforge/internal/workflow"
)

// Scheduler is the subset of workflow.Scheduler the API drives.
type Scheduler interface {
	Submit(ctx context.Context, batch *workflow.Batch) error
	Cancel(taskID string) error
	Active() []string
}

// History reads persisted task snapshots.
type History interface {
	Get(ctx context.Context, id string) (*store.Record, error)
	List(ctx context.Context, opts store.ListOptions) ([]store.Record, error)
}

// LogReader reads per-task log entries.
type LogReader interface {
	Read(taskID string) ([]tasklog.Entry, error)
}

// Options wires the server to the daemon's components.
type Options struct {
	Scheduler   Scheduler
	History     History
	Logs        LogReader
	Hub         *events.Hub
	Broadcaster *Broadcaster
	Gatherer    prometheus.Gatherer
	// Defaults seed every submitted batch; requests may override the output
	// directory and concurrency.
	Defaults        workflow.BatchConfig
	DefaultLanguage string
	Logger          *slog.Logger
}

// Server exposes the HTTP API.
type Server struct {
	opts      Options
	logger    *slog.Logger
	engine    *gin.Engine
	startedAt time.Time

	// batches outlive the request that submitted them
	baseCtx context.Context

	listener net.Listener
	server   *http.Server
}

const longPollTimeout = 25 * time.Second

// New builds the router. Batches submitted through the server run under ctx.
func New(ctx context.Context, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "api"),
		startedAt: time.Now().UTC(),
		baseCtx:   ctx,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/api/health", s.handleHealth)
	r.POST("/api/batches", s.handleSubmit)
	r.GET("/api/tasks", s.handleTasks)
	r.GET("/api/tasks/:id", s.handleTask)
	r.GET("/api/tasks/:id/logs", s.handleLogs)
	r.POST("/api/tasks/:id/cancel", s.handleCancel)
	r.GET("/api/events", s.handleEvents)
	if opts.Broadcaster != nil {
		r.GET("/api/ws", gin.WrapH(opts.Broadcaster))
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "endpoint not found"})
	})
	s.engine = r
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on bind and serves until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context, bind string) error {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "", "api listen", "api_bind is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.Close()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), reqID))
		c.Writer.Header().Set("X-Request-ID", reqID)

		c.Next()

		s.logger.Debug("http request",
			logging.String(logging.FieldCorrelationID, reqID),
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logging.WithContext(c.Request.Context(), s.logger).Error("api request failed",
			logging.String("path", c.Request.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_error"),
		)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
