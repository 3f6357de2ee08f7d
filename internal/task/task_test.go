package task

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
)

func echoArgs(_ context.Context, inv *Invocation) (Result, error) {
	return Succeeded(inv.Args), nil
}

func TestRegistry_Invoke(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.RegisterFunc("echo", echoArgs)
	r.RegisterFunc("tasks/load@v2", func(context.Context, *Invocation) (Result, error) {
		return Succeeded(model.String("v2")), nil
	})
	r.RegisterFunc("tasks/load", func(context.Context, *Invocation) (Result, error) {
		return Succeeded(model.String("bare")), nil
	})

	tests := []struct {
		ref  string
		want string
	}{
		{"tasks/load@v2", "v2"},
		{"tasks/load@v1", "bare"},
		{"tasks/load", "bare"},
	}
	for _, tt := range tests {
		res, err := r.Invoke(context.Background(), tt.ref, &Invocation{})
		if err != nil {
			t.Fatalf("%s: %v", tt.ref, err)
		}
		if res.Output.Text() != tt.want || res.Status != model.StageSuccess {
			t.Errorf("%s = %v/%s, want %s", tt.ref, res.Output, res.Status, tt.want)
		}
	}

	inv := &Invocation{Args: model.MapValue(model.MapOf("x", 1))}
	res, err := r.Invoke(context.Background(), "echo", inv)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Output.Get("x"); v.Int() != 1 {
		t.Errorf("echo output = %v", res.Output)
	}
	if inv.Task != "echo" {
		t.Errorf("task ref not recorded: %q", inv.Task)
	}
}

func TestRegistry_Failures(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.RegisterFunc("boom", func(context.Context, *Invocation) (Result, error) {
		return Result{}, errors.New("disk full")
	})
	r.RegisterFunc("soft", func(context.Context, *Invocation) (Result, error) {
		return Result{Status: model.StageFailed, Output: model.MapValue(model.MapOf("error", "bad rows"))}, nil
	})
	r.RegisterFunc("weird", func(context.Context, *Invocation) (Result, error) {
		return Result{Status: "exploded"}, nil
	})

	tests := []struct {
		ref string
		msg string
	}{
		{"missing", "no handler registered"},
		{"boom", "disk full"},
		{"soft", "bad rows"},
		{"weird", "unknown result status"},
	}
	for _, tt := range tests {
		_, err := r.Invoke(context.Background(), tt.ref, &Invocation{})
		var de *DispatchError
		if !errors.As(err, &de) {
			t.Fatalf("%s: err = %v, want *DispatchError", tt.ref, err)
		}
		if errkind.Of(err) != errkind.TaskDispatch {
			t.Errorf("%s: kind = %s", tt.ref, errkind.Of(err))
		}
		if !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("%s: %v does not mention %q", tt.ref, err, tt.msg)
		}
	}
}

func TestRegistry_CancellationPassesThrough(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.RegisterFunc("wait", func(ctx context.Context, _ *Invocation) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Invoke(ctx, "wait", &Invocation{})
	if !errors.Is(err, context.Canceled) || errkind.Of(err) != errkind.Cancelled {
		t.Errorf("err = %v (%s)", err, errkind.Of(err))
	}
}

func TestRegistry_Fallback(t *testing.T) {
	t.Parallel()
	remote := NewRegistry()
	remote.RegisterFunc("far/away", echoArgs)
	r := NewRegistry()
	r.SetFallback(remote)
	if _, err := r.Invoke(context.Background(), "far/away", &Invocation{}); err != nil {
		t.Fatal(err)
	}
	if got := r.Refs(); len(got) != 0 {
		t.Errorf("refs = %v", got)
	}
}

func TestRemote_RoundTrip(t *testing.T) {
	t.Parallel()
	agentTasks := NewRegistry()
	agentTasks.RegisterFunc("echo", func(_ context.Context, inv *Invocation) (Result, error) {
		if inv.RunID != "run-1" || inv.Stage != "load" {
			return Result{}, errors.New("metadata lost")
		}
		return Succeeded(inv.Args), nil
	})
	agentTasks.RegisterFunc("fail", func(context.Context, *Invocation) (Result, error) {
		return Result{}, errors.New("exit 3")
	})
	srv := httptest.NewServer(AgentHandler(agentTasks, nil))
	defer srv.Close()

	remote := NewRemote(srv.URL+"/", nil)
	inv := &Invocation{
		RunID: "run-1",
		Stage: "load",
		Args:  model.MapValue(model.MapOf("table", "customer", "n", 3)),
	}
	res, err := remote.Invoke(context.Background(), "echo", inv)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Output.Get("table"); v.Text() != "customer" {
		t.Errorf("output = %v", res.Output)
	}
	if v, _ := res.Output.Get("n"); v.Kind() != model.KindInt {
		t.Errorf("n kind = %s", v.Kind())
	}

	_, err = remote.Invoke(context.Background(), "fail", &Invocation{})
	if errkind.Of(err) != errkind.TaskDispatch || !strings.Contains(err.Error(), "exit 3") {
		t.Errorf("remote failure = %v", err)
	}
}

func TestAgentHandler_BadRequests(t *testing.T) {
	t.Parallel()
	h := AgentHandler(NewRegistry(), nil)
	tests := []struct {
		method string
		body   string
		code   int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{"stage":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(tt.method, AgentPath, strings.NewReader(tt.body)))
		if rec.Code != tt.code {
			t.Errorf("%s %q = %d, want %d", tt.method, tt.body, rec.Code, tt.code)
		}
	}
}

func TestRemote_AgentDown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := NewRemote(srv.URL, nil).Invoke(context.Background(), "echo", &Invocation{})
	if errkind.Of(err) != errkind.TaskDispatch {
		t.Errorf("err = %v", err)
	}
}

func TestRemote_AgentStatuses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body     string
		wantKind errkind.Kind
		want     model.StageStatus
	}{
		{`{"status":"","output":1}`, "", model.StageSuccess},
		{`{"status":"skipped"}`, "", model.StageSkipped},
		{`{"status":"failed"}`, errkind.TaskDispatch, model.StageFailed},
		{`{"status":"exploded"}`, errkind.TaskDispatch, model.StageFailed},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(tt.body))
		}))
		res, err := NewRemote(srv.URL, nil).Invoke(context.Background(), "t", &Invocation{})
		srv.Close()
		if errkind.Of(err) != tt.wantKind || res.Status != tt.want {
			t.Errorf("%s: status %s, err %v", tt.body, res.Status, err)
		}
	}
}

func TestChecked(t *testing.T) {
	t.Parallel()
	res, err := Checked("t", Result{Status: model.StageFailed, Output: model.MapValue(model.MapOf("error", "quota exceeded"))})
	var de *DispatchError
	if !errors.As(err, &de) || !strings.Contains(err.Error(), "quota exceeded") || res.Status != model.StageFailed {
		t.Errorf("failed status: %v, %v", res, err)
	}
	if res, err := Checked("t", Result{}); err != nil || res.Status != model.StageSuccess {
		t.Errorf("empty status: %v, %v", res, err)
	}
}
