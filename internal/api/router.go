package api

import (
	"net/http"

	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-workflow/docs"
	"go-workflow/internal/api/handler"
	"go-workflow/internal/task"
	"go-workflow/pkg/router"
)

// @title go-workflow API
// @version 1.0
// @description Start, follow and cancel pipeline runs.
// @BasePath /api/v1

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/api/v1/health", h.Health)

	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/{id}", h.GetRun)
	r.GET("/api/v1/runs/{id}/events", h.GetRunEvents)
	r.GET("/api/v1/runs/{id}/summary", h.GetRunSummary)
	r.PATCH("/api/v1/runs/{id}/cancel", h.CancelRun)
	r.POST("/api/v1/runs/{id}/retry", h.RetryRun)
	r.GET("/api/v1/runs/{id}/artifacts", h.ListArtifacts)
	r.GET("/api/v1/runs/{id}/artifacts/{name}", h.DownloadArtifact)

	r.GET("/api/v1/pipelines", h.ListPipelines)
	r.GET("/api/v1/pipelines/{name}/jobs/{job}/matrix", h.GetPipelineMatrix)

	r.GET("/api/v1/connections", h.ListConnections)
	r.GET("/api/v1/connections/{name}", h.GetConnection)

	r.GET("/api/v1/schedules", h.ListSchedules)
	r.GET("/api/v1/schedules/{name}", h.GetSchedule)

	r.Handle("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// RegisterAgent exposes a dispatcher to remote executors.
func RegisterAgent(r *router.Router, d task.Dispatcher, log logrus.FieldLogger) {
	r.POST(task.AgentPath, task.AgentHandler(d, log))
	r.GET("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
