package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/pipeline"
	"go-workflow/internal/runner"
	"go-workflow/internal/store"
	"go-workflow/pkg/router"
)

// Handler serves the run API on top of a Runner.
type Handler struct {
	Runner *runner.Runner
	Log    logrus.FieldLogger
}

func New(r *runner.Runner, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Runner: r, Log: log}
}

// RunRequest starts a pipeline.
type RunRequest struct {
	Pipeline string     `json:"pipeline"`
	Params   *model.Map `json:"params"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]any{"error": msg}
	if err != nil {
		body["detail"] = err.Error()
		if k := errkind.Of(err); k != errkind.Unknown {
			body["kind"] = string(k)
		}
	}
	writeJSON(w, status, body)
}

// statusFor maps a start failure to an HTTP status.
func statusFor(err error) int {
	switch errkind.Of(err) {
	case errkind.ParamValidation, errkind.Configuration, errkind.Syntax:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) store(w http.ResponseWriter) (*store.Store, bool) {
	st := h.Runner.Store()
	if st == nil {
		writeError(w, http.StatusNotImplemented, "run history is disabled", nil)
		return nil, false
	}
	return st, true
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) (*model.RunRecord, bool) {
	st, ok := h.store(w)
	if !ok {
		return nil, false
	}
	id := router.Param(r, "id")
	rec, err := st.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run", err)
		return nil, false
	}
	return rec, true
}

// CreateRun starts a pipeline run
// @Summary Start a run
// @Description Start a configured pipeline in the background with the given parameters
// @Tags runs
// @Accept json
// @Produce json
// @Param run body RunRequest true "Pipeline name and parameters"
// @Success 202 {object} model.RunRecord "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid pipeline or parameters"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	if req.Pipeline == "" {
		writeError(w, http.StatusBadRequest, "pipeline is required", nil)
		return
	}
	rec, err := h.Runner.Start(r.Context(), req.Pipeline, req.Params)
	if err != nil {
		writeError(w, statusFor(err), "Failed to start run", err)
		return
	}
	h.Log.WithFields(logrus.Fields{"run_id": rec.ID, "pipeline": rec.Pipeline}).Info("run accepted")
	writeJSON(w, http.StatusAccepted, rec)
}

// ListRuns lists runs
// @Summary List runs
// @Description List runs newest first, optionally filtered by pipeline
// @Tags runs
// @Produce json
// @Param pipeline query string false "Pipeline name"
// @Param limit query int false "Maximum number of runs" default(100)
// @Success 200 {object} map[string]interface{} "Runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w)
	if !ok {
		return
	}
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	runs, err := st.ListRuns(r.Context(), r.URL.Query().Get("pipeline"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs), "limit": limit})
}

// GetRun returns one run
// @Summary Get run
// @Description Retrieve a run with its report, and live progress while it executes
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	body := map[string]any{"run": rec}
	if p, ok := h.Runner.Tracker().Progress(rec.ID); ok {
		body["progress"] = p
	}
	writeJSON(w, http.StatusOK, body)
}

// GetRunEvents returns a run's progress log
// @Summary Get run events
// @Description Retrieve progress events of a run, optionally only those after a given event id
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Param after query int false "Return events with a larger id"
// @Success 200 {object} map[string]interface{} "Run events"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/events [get]
func (h *Handler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	var after int64
	if s := r.URL.Query().Get("after"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an integer", err)
			return
		}
		after = v
	}
	events, err := h.Runner.Store().Events(r.Context(), rec.ID, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": rec.ID, "events": events, "count": len(events)})
}

// GetRunSummary aggregates a finished run per job
// @Summary Get run summary
// @Description Per-job counts of instantiation and stage outcomes, and the failed instantiations
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run summary"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 409 {object} map[string]interface{} "Run has no report yet"
// @Router /runs/{id}/summary [get]
func (h *Handler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	if rec.Report == nil {
		writeError(w, http.StatusConflict, "Run has no report yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  rec.ID,
		"summary": pipeline.Summarize(rec.Report),
		"failed":  pipeline.FailedInstances(rec.Report),
	})
}

// CancelRun cancels a run in flight
// @Summary Cancel run
// @Description Stop a running pipeline; dispatched stages finish and the remaining stages are skipped
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} map[string]interface{} "Cancellation requested"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 409 {object} map[string]interface{} "Run is not running"
// @Router /runs/{id}/cancel [patch]
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	if err := h.Runner.Cancel(rec.ID); err != nil {
		writeError(w, http.StatusConflict, "Run is not running", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": rec.ID, "status": "cancelling"})
}

// RetryRun starts the pipeline of a previous run again
// @Summary Retry run
// @Description Start a new run of the same pipeline with the same parameters
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} model.RunRecord "Retry accepted"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 409 {object} map[string]interface{} "Run is still running"
// @Router /runs/{id}/retry [post]
func (h *Handler) RetryRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	if rec.FinishedAt == nil {
		writeError(w, http.StatusConflict, "Run is still running", nil)
		return
	}
	next, err := h.Runner.Start(r.Context(), rec.Pipeline, rec.Params)
	if err != nil {
		writeError(w, statusFor(err), "Failed to start retry", err)
		return
	}
	h.Log.WithFields(logrus.Fields{"run_id": next.ID, "retry_of": rec.ID}).Info("retry accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"run": next, "retry_of": rec.ID})
}

// ListArtifacts lists files a run produced
// @Summary List run artifacts
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Artifacts"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	om := h.Runner.Outputs()
	if om == nil {
		writeJSON(w, http.StatusOK, map[string]any{"run_id": rec.ID, "artifacts": []any{}, "count": 0})
		return
	}
	artifacts, err := om.Artifacts(rec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list artifacts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": rec.ID, "artifacts": artifacts, "count": len(artifacts)})
}

// DownloadArtifact serves one artifact file
// @Summary Download run artifact
// @Tags runs
// @Produce octet-stream
// @Param id path string true "Run ID"
// @Param name path string true "Artifact name"
// @Success 200 {file} file "Artifact content"
// @Failure 404 {object} map[string]interface{} "Artifact not found"
// @Router /runs/{id}/artifacts/{name} [get]
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.getRun(w, r)
	if !ok {
		return
	}
	om := h.Runner.Outputs()
	name := filepath.Base(router.Param(r, "name"))
	if om == nil || name == "." || name == "/" {
		writeError(w, http.StatusNotFound, "Artifact not found", nil)
		return
	}
	path := filepath.Join(om.BaseOutputDir, filepath.Base(rec.ID), name)
	w.Header().Set("Content-Type", contentType(om.FileType(name)))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	http.ServeFile(w, r, path)
}

func contentType(fileType string) string {
	switch fileType {
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	case "text", "yaml":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Health reports liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "OK"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}
