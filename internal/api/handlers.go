package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/store"
	"subforge/internal/workflow"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		StartedAt: s.startedAt.Format(time.RFC3339),
	}
	if s.opts.Scheduler != nil {
		resp.ActiveTasks = len(s.opts.Scheduler.Active())
	}
	if s.opts.Broadcaster != nil {
		resp.Clients = s.opts.Broadcaster.Clients()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSubmit(c *gin.Context) {
	if s.opts.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "scheduler unavailable"})
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, services.Wrap(services.ErrValidation, "", "submit batch", "invalid request body", err))
		return
	}
	batch, err := s.buildBatch(req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.opts.Scheduler.Submit(s.baseCtx, batch); err != nil {
		s.writeError(c, err)
		return
	}
	logging.WithContext(c.Request.Context(), s.logger).Info("batch accepted",
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("tasks", len(batch.Tasks)),
		logging.String(logging.FieldEventType, "batch_accepted"),
	)
	c.JSON(http.StatusAccepted, SubmitResponse{BatchID: batch.ID, TaskIDs: batch.TaskIDs()})
}

func (s *Server) buildBatch(req SubmitRequest) (*workflow.Batch, error) {
	lang := s.opts.DefaultLanguage
	if req.TargetLanguage != nil {
		lang = strings.TrimSpace(*req.TargetLanguage)
	}
	specs := make([]workflow.TaskSpec, 0, len(req.Files)+len(req.Tasks))
	for _, file := range req.Files {
		specs = append(specs, workflow.TaskSpec{InputPath: file, Workflow: req.Workflow, TargetLanguage: lang})
	}
	for _, spec := range req.Tasks {
		if spec.Workflow == "" {
			spec.Workflow = req.Workflow
		}
		specs = append(specs, spec)
	}
	for _, spec := range specs {
		if path := strings.TrimSpace(spec.InputPath); path != "" && !filepath.IsAbs(path) {
			return nil, services.Wrap(services.ErrValidation, "", "submit batch", fmt.Sprintf("%s: input paths must be absolute", path), nil)
		}
	}

	cfg := s.opts.Defaults
	if out := strings.TrimSpace(req.OutputDir); out != "" {
		if !filepath.IsAbs(out) {
			return nil, services.Wrap(services.ErrValidation, "", "submit batch", "outputDir must be absolute", nil)
		}
		cfg.OutputDir = out
	}
	if req.Concurrency < 0 {
		return nil, services.Wrap(services.ErrValidation, "", "submit batch", "concurrency must be positive", nil)
	}
	if req.Concurrency > 0 {
		cfg.Concurrency = req.Concurrency
	}
	return workflow.NewBatch(cfg, specs)
}

func (s *Server) handleTasks(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusOK, TaskListResponse{Tasks: []store.Record{}, Active: s.active()})
		return
	}
	opts := store.ListOptions{BatchID: strings.TrimSpace(c.Query("batch"))}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(c, services.Wrap(services.ErrValidation, "", "list tasks", "limit must be a non-negative integer", nil))
			return
		}
		opts.Limit = limit
	}
	for _, stage := range c.QueryArray("stage") {
		if trimmed := strings.TrimSpace(stage); trimmed != "" {
			opts.Stages = append(opts.Stages, trimmed)
		}
	}
	records, err := s.opts.History.List(c.Request.Context(), opts)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, TaskListResponse{Tasks: records, Active: s.active()})
}

func (s *Server) handleTask(c *gin.Context) {
	id := c.Param("id")
	if s.opts.History == nil {
		s.writeError(c, services.Wrap(services.ErrNotFound, "", "get task", id, nil))
		return
	}
	record, err := s.opts.History.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TaskResponse{Task: *record, Active: slices.Contains(s.active(), id)})
}

func (s *Server) handleLogs(c *gin.Context) {
	id := c.Param("id")
	if s.opts.Logs == nil {
		s.writeError(c, services.Wrap(services.ErrNotFound, "", "task log", id, nil))
		return
	}
	entries, err := s.opts.Logs.Read(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LogsResponse{TaskID: id, Entries: entries})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if s.opts.Scheduler == nil {
		s.writeError(c, services.Wrap(services.ErrNotFound, "", "cancel task", id, nil))
		return
	}
	if err := s.opts.Scheduler.Cancel(id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, CancelResponse{TaskID: id, Status: "cancel_requested"})
}

func (s *Server) handleEvents(c *gin.Context) {
	hub := s.opts.Hub
	if hub == nil {
		c.JSON(http.StatusOK, EventsResponse{Events: []events.Event{}})
		return
	}
	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	wait := c.Query("wait") == "1" || strings.EqualFold(c.Query("wait"), "true")
	taskID := strings.TrimSpace(c.Query("task"))

	ctx := c.Request.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, longPollTimeout)
		defer cancel()
	}
	batch, next, err := hub.Fetch(ctx, since, limit, wait)
	if err != nil && ctx.Err() == nil {
		s.writeError(c, err)
		return
	}
	out := make([]events.Event, 0, len(batch))
	for _, evt := range batch {
		if taskID != "" && evt.TaskID != taskID {
			continue
		}
		out = append(out, evt)
	}
	c.JSON(http.StatusOK, EventsResponse{Events: out, Next: next})
}

func (s *Server) active() []string {
	if s.opts.Scheduler == nil {
		return []string{}
	}
	active := s.opts.Scheduler.Active()
	if active == nil {
		return []string{}
	}
	return active
}
