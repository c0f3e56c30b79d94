package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// JobRunner runs a named maintenance job once.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// PipelineHandler serves manual triggers of maintenance jobs.
type PipelineHandler struct {
	jobs   JobRunner
	logger *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(jobs JobRunner, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{jobs: jobs, logger: logHandler(logger, "pipeline")}
}

// TriggerJob runs one job synchronously, e.g. an archive pass or an equity
// snapshot outside its schedule.
// POST /api/jobs/{name}/run
func (h *PipelineHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	h.logger.InfoContext(r.Context(), "job trigger requested", slog.String("job", name))
	start := time.Now()
	if err := h.jobs.RunNow(r.Context(), name); err != nil {
		writeServiceError(w, r, h.logger, "job failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "job completed",
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
