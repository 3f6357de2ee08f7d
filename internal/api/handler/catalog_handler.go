package handler

import (
	"net/http"
	"strconv"
	"time"

	"go-workflow/internal/matrix"
	"go-workflow/internal/model"
	"go-workflow/internal/schedule"
	"go-workflow/pkg/router"
)

// PipelineInfo describes a configured pipeline.
type PipelineInfo struct {
	Name   string            `json:"name"`
	Desc   string            `json:"desc,omitempty"`
	Origin string            `json:"origin"`
	Params []model.ParamDecl `json:"params"`
	Jobs   []JobInfo         `json:"jobs"`
}

// JobInfo lists a job's stages and how many instantiations its matrix
// expands to.
type JobInfo struct {
	Name           string   `json:"name"`
	Stages         []string `json:"stages"`
	Instantiations int      `json:"instantiations"`
}

func describe(p *model.Pipeline, origin string) PipelineInfo {
	info := PipelineInfo{Name: p.Name, Desc: p.Desc, Origin: origin, Params: p.Params}
	for _, j := range p.Jobs {
		ji := JobInfo{Name: j.Name, Instantiations: 1}
		if j.Strategy != nil {
			ji.Instantiations = matrix.Count(j.Strategy)
		}
		for _, st := range j.Stages {
			ji.Stages = append(ji.Stages, st.ID)
		}
		info.Jobs = append(info.Jobs, ji)
	}
	return info
}

// ListPipelines lists configured pipelines
// @Summary List pipelines
// @Description List pipelines found in the configuration directory
// @Tags pipelines
// @Produce json
// @Success 200 {object} map[string]interface{} "Pipelines"
// @Failure 500 {object} map[string]interface{} "Configuration could not be loaded"
// @Router /pipelines [get]
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	out := make([]PipelineInfo, 0)
	for _, name := range cat.Pipelines() {
		p, _ := cat.Pipeline(name)
		out = append(out, describe(p, cat.Origin(name)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": out, "count": len(out)})
}

// GetPipelineMatrix expands a job's matrix
// @Summary Expand job matrix
// @Description Show the matrix bindings a job of a pipeline runs with, in execution order
// @Tags pipelines
// @Produce json
// @Param name path string true "Pipeline name"
// @Param job path string true "Job name"
// @Success 200 {object} map[string]interface{} "Bindings"
// @Failure 404 {object} map[string]interface{} "Pipeline or job not found"
// @Router /pipelines/{name}/jobs/{job}/matrix [get]
func (h *Handler) GetPipelineMatrix(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	p, err := cat.Pipeline(router.Param(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Pipeline not found", err)
		return
	}
	job, ok := p.Job(router.Param(r, "job"))
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", nil)
		return
	}
	bindings := make([]map[string]any, 0)
	if job.Strategy == nil {
		bindings = append(bindings, map[string]any{"index": 0})
	}
	for _, b := range matrix.Expand(job.Strategy) {
		bindings = append(bindings, map[string]any{"index": b.Index, "matrix": b.Values, "included": b.Included})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipeline": p.Name, "job": job.Name, "bindings": bindings, "count": len(bindings)})
}

// ListConnections lists configured connections
// @Summary List connections
// @Tags connections
// @Produce json
// @Success 200 {object} map[string]interface{} "Connection names and types"
// @Router /connections [get]
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	out := make([]map[string]string, 0)
	for _, d := range cat.Descriptors() {
		out = append(out, map[string]string{"name": d.Name, "type": d.Type, "origin": cat.Origin(d.Name)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out, "count": len(out)})
}

// GetConnection resolves one connection
// @Summary Resolve connection
// @Description Resolve a connection descriptor into its endpoint. Credentials are never returned.
// @Tags connections
// @Produce json
// @Param name path string true "Connection name"
// @Success 200 {object} map[string]interface{} "Resolved endpoint"
// @Failure 404 {object} map[string]interface{} "Connection not found"
// @Failure 422 {object} map[string]interface{} "Connection could not be resolved"
// @Router /connections/{name} [get]
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	name := router.Param(r, "name")
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	if _, ok := cat.Connection(name); !ok {
		writeError(w, http.StatusNotFound, "Connection not found", nil)
		return
	}
	ep, _, err := h.Runner.ResolveConnection(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Failed to resolve connection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connection": ep, "url": ep.String()})
}

// ListSchedules lists configured schedules
// @Summary List schedules
// @Tags schedules
// @Produce json
// @Success 200 {object} map[string]interface{} "Schedules"
// @Router /schedules [get]
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	out := make([]*schedule.Schedule, 0)
	for _, name := range cat.Schedules() {
		s, _ := cat.Schedule(name)
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out, "count": len(out)})
}

// GetSchedule shows upcoming or past run times
// @Summary Schedule run times
// @Description List the next run times of a schedule, or the previous ones with direction=prev. A start without an offset is read in the schedule's time zone.
// @Tags schedules
// @Produce json
// @Param name path string true "Schedule name"
// @Param from query string false "Start time, default now"
// @Param n query int false "Number of run times, default 5, at most 100"
// @Param direction query string false "next or prev"
// @Success 200 {object} map[string]interface{} "Run times"
// @Failure 400 {object} map[string]interface{} "Invalid query"
// @Failure 404 {object} map[string]interface{} "Schedule not found"
// @Router /schedules/{name} [get]
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	cat, err := h.Runner.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	s, err := cat.Schedule(router.Param(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Schedule not found", err)
		return
	}

	q := r.URL.Query()
	start := time.Now().In(s.Location())
	if from := q.Get("from"); from != "" {
		if start, err = s.ParseTime(from); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start time", err)
			return
		}
	}
	n := 5
	if v := q.Get("n"); v != "" {
		if n, err = strconv.Atoi(v); err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "n must be between 1 and 100", nil)
			return
		}
	}
	var prev bool
	switch q.Get("direction") {
	case "", "next":
	case "prev":
		prev = true
	default:
		writeError(w, http.StatusBadRequest, "direction must be next or prev", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule": s,
		"from":     start,
		"times":    s.Times(start, n, prev),
	})
}
