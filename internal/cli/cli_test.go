package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-workflow/internal/errkind"
)

const testConf = `
scratch:
  type: conn.FlSys
  endpoint: "/data"

daily:
  type: pipeline
  params:
    region: str
  jobs:
    load:
      strategy:
        matrix:
          table: [a, b]
        include:
          - table: c
      stages:
        - name: say
          task: echo
          args:
            message: "${{ params.region }}/${{ matrix.table }}"

quarterly:
  type: schedule
  cron: "*/30 */12 23 */3 *"
  tz: Asia/Bangkok

broken:
  type: pipeline
  jobs:
    check:
      stages:
        - name: boom
          task: fail
          args:
            message: disk full
        - name: never
          task: echo
`

// setup writes a config file and a conf dir and returns the config path.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range map[string]string{
		"conf/pipelines.yaml": testConf,
		"data/one.csv":        "a,b\n",
		"data/two.txt":        "x\n",
		"workflow.yaml":       "paths:\n  conf: conf\n  output: out\nstore:\n  path: runs.db\nlog:\n  level: warn\n",
	} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "workflow.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun(t *testing.T) {
	t.Parallel()
	cfg := setup(t)
	report := filepath.Join(filepath.Dir(cfg), "reports", "daily.csv")

	out, err := execute(t, "run", "daily", "--config", cfg, "-p", "region=eu", "--parallel", "2", "--report", report)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"daily succeeded", "load[2]", "table=c", "1 ok, 0 failed, 0 skipped", "(3 records)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(report); err != nil {
		t.Errorf("report not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg), "runs.db")); err != nil {
		t.Errorf("run store not created: %v", err)
	}
}

func TestRun_Failures(t *testing.T) {
	t.Parallel()
	cfg := setup(t)

	out, err := execute(t, "run", "broken", "--config", cfg)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("err = %v, want exit code 1", err)
	}
	if !strings.Contains(out, "check failed at boom [task_dispatch]: ") || !strings.Contains(out, "0 ok, 1 failed, 1 skipped") {
		t.Errorf("output:\n%s", out)
	}

	_, err = execute(t, "run", "daily", "--config", cfg)
	if !errkind.Is(err, errkind.ParamValidation) {
		t.Errorf("missing param: %v", err)
	}
	_, err = execute(t, "run", "daily", "--config", cfg, "-p", "region")
	if err == nil {
		t.Error("malformed assignment accepted")
	}
	_, err = execute(t, "run", "nope", "--config", cfg)
	if !errkind.Is(err, errkind.Configuration) {
		t.Errorf("unknown pipeline: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := setup(t)

	out, err := execute(t, "validate", "--config", cfg)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok   broken") || !strings.Contains(out, "ok   daily") {
		t.Errorf("output:\n%s", out)
	}

	out, err = execute(t, "validate", "daily", "missing", "--config", cfg)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !strings.Contains(out, "FAIL missing") {
		t.Errorf("err = %v, output:\n%s", err, out)
	}
}

func TestMatrix(t *testing.T) {
	t.Parallel()
	cfg := setup(t)

	out, err := execute(t, "matrix", "daily", "load", "--config", cfg)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "table=a") || !strings.Contains(lines[3], "table=c") || !strings.Contains(lines[3], "include") {
		t.Errorf("output:\n%s", out)
	}

	out, err = execute(t, "matrix", "broken", "check", "--config", cfg)
	if err != nil || !strings.Contains(out, "single") {
		t.Errorf("job without strategy: %v\n%s", err, out)
	}
	if _, err := execute(t, "matrix", "daily", "nope", "--config", cfg); err == nil {
		t.Error("unknown job accepted")
	}
}

func TestConn(t *testing.T) {
	t.Parallel()
	cfg := setup(t)

	out, err := execute(t, "conn", "resolve", "scratch", "--config", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"type": "FlSys"`) || !strings.Contains(out, `"path": "data"`) {
		t.Errorf("resolve output:\n%s", out)
	}

	out, err = execute(t, "conn", "glob", "scratch", "*.csv", "--config", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "one.csv" {
		t.Errorf("glob = %q", out)
	}

	if _, err := execute(t, "conn", "resolve", "nope", "--config", cfg); err == nil {
		t.Error("unknown connection resolved")
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	cfg := setup(t)

	out, err := execute(t, "schedule", "quarterly", "--config", cfg, "--from", "2024-01-01 12:00:00", "-n", "3")
	if err != nil {
		t.Fatal(err)
	}
	want := "2024-01-23 00:00:00 +07:00\n2024-01-23 00:30:00 +07:00\n2024-01-23 12:00:00 +07:00\n"
	if out != want {
		t.Errorf("next:\n%s", out)
	}

	out, err = execute(t, "schedule", "quarterly", "--config", cfg, "--from", "2024-01-01 12:00:00", "-n", "1", "--prev")
	if err != nil || out != "2023-10-23 12:30:00 +07:00\n" {
		t.Errorf("prev = %q, %v", out, err)
	}

	out, err = execute(t, "schedule", "--config", cfg)
	if err != nil || !strings.Contains(out, "quarterly") || !strings.Contains(out, "Asia/Bangkok") {
		t.Errorf("list = %q, %v", out, err)
	}
	if _, err := execute(t, "schedule", "daily", "--config", cfg); !errkind.Is(err, errkind.Configuration) {
		t.Errorf("pipeline used as schedule: %v", err)
	}
}
