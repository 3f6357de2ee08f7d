package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"go-workflow/internal/api/handler"
	"go-workflow/internal/loader"
	"go-workflow/internal/model"
	"go-workflow/internal/runner"
	"go-workflow/internal/scope"
	"go-workflow/internal/store"
	"go-workflow/internal/task"
	"go-workflow/internal/task/builtin"
	"go-workflow/pkg/router"
	"go-workflow/pkg/utils"
)

const conf = `
warehouse:
  type: conn.SQLite
  endpoint: "/warehouse.db"
  pwd: "@secrets{db_pwd}"

broken:
  type: conn.Nope
  endpoint: /x

quarterly:
  type: schedule
  cron: "*/30 */12 23 */3 *"
  tz: Asia/Bangkok
  extras:
    pipeline: nightly

nightly:
  type: pipeline
  params:
    run_date: date
  jobs:
    load:
      strategy:
        matrix:
          table: [customer, sales]
        exclude:
          - table: sales
      stages:
        - name: hello
          task: shell
          args:
            run: echo "loading ${{ matrix.table }} for ${{ params.run_date.fmt('%Y-%m-%d') }}"
        - name: boom
          task: fail
          if: "${{ matrix.table }}"
          args:
            message: no space left
`

type fixture struct {
	srv *httptest.Server
	run *runner.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conf.yml"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(filepath.Join(dir, "runs.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	reg := task.NewRegistry()
	builtin.Register(reg)
	logger, _ := test.NewNullLogger()
	run := runner.New(runner.Options{
		Source:  loader.DirSource{Dir: dir},
		Tasks:   reg,
		Root:    dir,
		Store:   st,
		Outputs: utils.NewOutputManager(filepath.Join(dir, "out")),
		Env:     scope.MapEnv{},
		Secrets: scope.MapSecrets{"db_pwd": "hunter22"},
		Log:     logger,
	})
	r := router.New(logger)
	RegisterRoutes(r, handler.New(run, logger))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, run: run}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/v1/runs", `{"pipeline":"nightly","params":{"run_date":"2024-05-01T13:45:00"}}`)
	if code != http.StatusAccepted {
		t.Fatalf("create = %d %v", code, body)
	}
	id, _ := body["id"].(string)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.run.Wait(ctx, id); err != nil {
		t.Fatal(err)
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/runs/"+id, "")
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	run := body["run"].(map[string]any)
	if run["status"] != string(model.RunFailed) {
		t.Fatalf("status = %v", run["status"])
	}
	report := run["report"].(map[string]any)
	instances := report["instances"].([]any)
	if len(instances) != 1 {
		t.Fatalf("instances = %d, sales should be excluded", len(instances))
	}
	inst := instances[0].(map[string]any)
	if inst["failed_stage"] != "boom" || inst["error_kind"] != "task_dispatch" {
		t.Errorf("instance = %v", inst)
	}
	first := inst["stages"].([]any)[0].(map[string]any)
	output := first["output"].(map[string]any)
	if output["output"] != "loading customer for 2024-05-01" {
		t.Errorf("shell output = %v", output["output"])
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/runs/"+id+"/summary", "")
	if code != http.StatusOK || len(body["failed"].([]any)) != 1 {
		t.Errorf("summary = %d %v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/v1/runs/"+id+"/events?after=1", "")
	if code != http.StatusOK || body["count"].(float64) < 3 {
		t.Errorf("events = %d %v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/v1/runs/"+id+"/artifacts", "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("artifacts = %d %v", code, body)
	}
	art := body["artifacts"].([]any)[0].(map[string]any)
	resp, err := http.Get(f.srv.URL + art["url"].(string))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || art["name"] != "load-0-hello.log" {
		t.Errorf("artifact %v: %d", art["name"], resp.StatusCode)
	}

	if code, _ := f.do(t, http.MethodPatch, "/api/v1/runs/"+id+"/cancel", ""); code != http.StatusConflict {
		t.Errorf("cancel finished run = %d", code)
	}
	code, body = f.do(t, http.MethodPost, "/api/v1/runs/"+id+"/retry", "")
	if code != http.StatusAccepted || body["retry_of"] != id {
		t.Errorf("retry = %d %v", code, body)
	}
	retried := body["run"].(map[string]any)["id"].(string)
	_ = f.run.Wait(ctx, retried)

	code, body = f.do(t, http.MethodGet, "/api/v1/runs?pipeline=nightly", "")
	if code != http.StatusOK || body["count"].(float64) != 2 {
		t.Errorf("list = %d %v", code, body)
	}
}

func TestCreateRun_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	tests := []struct {
		body string
		code int
		kind string
	}{
		{`{not json`, http.StatusBadRequest, ""},
		{`{}`, http.StatusBadRequest, ""},
		{`{"pipeline":"nightly"}`, http.StatusBadRequest, "param_validation"},
		{`{"pipeline":"nightly","params":{"run_date":"someday"}}`, http.StatusBadRequest, "param_validation"},
		{`{"pipeline":"missing"}`, http.StatusBadRequest, "configuration"},
	}
	for _, tt := range tests {
		code, body := f.do(t, http.MethodPost, "/api/v1/runs", tt.body)
		if code != tt.code {
			t.Errorf("%s: status %d, want %d", tt.body, code, tt.code)
		}
		if tt.kind != "" && body["kind"] != tt.kind {
			t.Errorf("%s: kind %v, want %s", tt.body, body["kind"], tt.kind)
		}
	}
	if code, _ := f.do(t, http.MethodGet, "/api/v1/runs/nope", ""); code != http.StatusNotFound {
		t.Errorf("unknown run = %d", code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/v1/pipelines", "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("pipelines = %d %v", code, body)
	}
	job := body["pipelines"].([]any)[0].(map[string]any)["jobs"].([]any)[0].(map[string]any)
	if job["instantiations"].(float64) != 1 {
		t.Errorf("job = %v", job)
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/pipelines/nightly/jobs/load/matrix", "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Errorf("matrix = %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/v1/connections/warehouse", "")
	if code != http.StatusOK {
		t.Fatalf("connection = %d %v", code, body)
	}
	ep := body["connection"].(map[string]any)
	if ep["type"] != "SQLite" || ep["path"] != "warehouse.db" {
		t.Errorf("endpoint = %v", ep)
	}
	raw, _ := json.Marshal(body)
	if strings.Contains(string(raw), "hunter22") {
		t.Error("credentials leaked")
	}

	if code, _ := f.do(t, http.MethodGet, "/api/v1/connections/broken", ""); code != http.StatusUnprocessableEntity {
		t.Errorf("broken connection = %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/v1/connections/absent", ""); code != http.StatusNotFound {
		t.Errorf("absent connection = %d", code)
	}
	if code, body := f.do(t, http.MethodGet, "/api/v1/connections", ""); code != http.StatusOK || body["count"].(float64) != 2 {
		t.Errorf("connections = %d %v", code, body)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/v1/schedules", "")
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("schedules = %d %v", code, body)
	}

	tests := []struct {
		name     string
		query    string
		wantCode int
		want     []string
	}{
		{"next", "?from=2024-01-01T12:00:00&n=2", http.StatusOK, []string{"2024-01-23T00:00:00+07:00", "2024-01-23T00:30:00+07:00"}},
		{"prev", "?from=2024-01-01T12:00:00&n=2&direction=prev", http.StatusOK, []string{"2023-10-23T12:30:00+07:00", "2023-10-23T12:00:00+07:00"}},
		{"bad start", "?from=someday", http.StatusBadRequest, nil},
		{"bad count", "?n=0", http.StatusBadRequest, nil},
		{"bad direction", "?direction=sideways", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodGet, "/api/v1/schedules/quarterly"+tt.query, "")
			if code != tt.wantCode {
				t.Fatalf("code = %d %v", code, body)
			}
			if tt.want == nil {
				return
			}
			times := body["times"].([]any)
			if len(times) != len(tt.want) {
				t.Fatalf("times = %v", times)
			}
			for i, want := range tt.want {
				if times[i] != want {
					t.Errorf("times[%d] = %v, want %s", i, times[i], want)
				}
			}
			sched := body["schedule"].(map[string]any)
			if sched["tz"] != "Asia/Bangkok" || sched["extras"].(map[string]any)["pipeline"] != "nightly" {
				t.Errorf("schedule = %v", sched)
			}
		})
	}

	if code, _ := f.do(t, http.MethodGet, "/api/v1/schedules/nightly", ""); code != http.StatusNotFound {
		t.Errorf("pipeline as schedule = %d", code)
	}
}
