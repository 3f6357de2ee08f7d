package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-workflow/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()

	params := model.MapOf("run_date", "2024-05-01", "source", "landing")
	if _, err := s.CreateRun(ctx, "run-1", "ingest", params); err != nil {
		t.Fatal(err)
	}
	s.Record(ctx, model.RunEvent{RunID: "run-1", Type: model.EventRunStarted, Timestamp: time.Now()})

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunRunning || got.FinishedAt != nil {
		t.Errorf("run = %+v", got)
	}
	if keys := got.Params.Keys(); len(keys) != 2 || keys[0] != "run_date" {
		t.Errorf("params order = %v", keys)
	}

	report := &model.ExecutionReport{
		RunID:    "run-1",
		Pipeline: "ingest",
		Status:   model.RunFailed,
		Instances: []model.InstanceReport{{
			Job:         "load",
			Status:      model.InstanceFailed,
			FailedStage: "a",
			Stages: []model.StageReport{
				{ID: "a", Status: model.StageFailed, ErrorKind: "task_dispatch"},
				{ID: "b", Status: model.StageSkipped},
			},
		}},
	}
	if err := s.FinishRun(ctx, "run-1", report, nil); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunFailed || got.FinishedAt == nil || got.Report == nil {
		t.Fatalf("finished run = %+v", got)
	}
	if inst := got.Report.Instances[0]; inst.FailedStage != "a" || inst.Stages[1].Status != model.StageSkipped {
		t.Errorf("report = %+v", inst)
	}
}

func TestFinishRun_WithoutReport(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	if _, err := s.CreateRun(ctx, "run-2", "ingest", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, "run-2", nil, errors.New("param \"run_date\": required value is missing")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRun(ctx, "run-2")
	if got.Status != model.RunFailed || got.Error == "" || got.Report != nil {
		t.Errorf("run = %+v", got)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun err = %v", err)
	}
	if err := s.UpdateRunStatus(ctx, "nope", model.RunCancelled); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRunStatus err = %v", err)
	}
}

func TestListRunsAndEvents(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		pipeline := "ingest"
		if id == "b" {
			pipeline = "export"
		}
		if _, err := s.CreateRun(ctx, id, pipeline, nil); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(ctx, "ingest", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("ingest runs = %d", len(runs))
	}
	all, _ := s.ListRuns(ctx, "", 2)
	if len(all) != 2 {
		t.Errorf("limited runs = %d", len(all))
	}

	for _, st := range []string{"extract", "load"} {
		s.Record(ctx, model.RunEvent{
			RunID:    "a",
			Type:     model.EventStageFinished,
			Job:      "el",
			Instance: "el[0]",
			Stage:    st,
			Status:   "success",
			Details:  map[string]any{"attempts": 1},
		})
	}
	events, err := s.Events(ctx, "a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Stage != "extract" || events[1].Details["attempts"] != float64(1) {
		t.Fatalf("events = %+v", events)
	}
	later, _ := s.Events(ctx, "a", events[0].ID)
	if len(later) != 1 || later[0].Stage != "load" {
		t.Errorf("events after %d = %+v", events[0].ID, later)
	}
}
