package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/model"
)

// AgentPath is where an agent accepts invocations.
const AgentPath = "/run"

// AgentResponse is the agent's reply to one invocation.
type AgentResponse struct {
	Task   string            `json:"task"`
	Stage  string            `json:"stage"`
	Status model.StageStatus `json:"status"`
	Output model.Value       `json:"output"`
	Error  string            `json:"error,omitempty"`
}

// Remote dispatches invocations to an agent over HTTP. Endpoint handles in
// the arguments cross the wire in their public form, without credentials.
type Remote struct {
	URL    string
	Client *http.Client
	Log    logrus.FieldLogger
}

func NewRemote(url string, log logrus.FieldLogger) *Remote {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Remote{
		URL:    strings.TrimRight(url, "/"),
		Client: &http.Client{Timeout: 30 * time.Minute},
		Log:    log,
	}
}

func (r *Remote) Invoke(ctx context.Context, ref string, inv *Invocation) (Result, error) {
	failed := Result{Status: model.StageFailed}
	inv.Task = ref
	body, err := json.Marshal(inv)
	if err != nil {
		return failed, &DispatchError{Task: ref, Msg: "encode invocation", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+AgentPath, bytes.NewReader(body))
	if err != nil {
		return failed, &DispatchError{Task: ref, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	r.Log.WithFields(logrus.Fields{"task": ref, "stage": inv.Stage, "agent": r.URL}).Debug("dispatching to agent")
	resp, err := r.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		return failed, &DispatchError{Task: ref, Msg: "agent unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return failed, &DispatchError{Task: ref, Msg: "read agent response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return failed, &DispatchError{Task: ref, Msg: fmt.Sprintf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	var out AgentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return failed, &DispatchError{Task: ref, Msg: "decode agent response", Err: err}
	}
	if out.Error != "" || out.Status == model.StageFailed {
		msg := out.Error
		if msg == "" {
			msg = "task reported failure"
		}
		return Result{Status: model.StageFailed, Output: out.Output}, &DispatchError{Task: ref, Msg: msg}
	}
	return Checked(ref, Result{Status: out.Status, Output: out.Output})
}

// AgentHandler serves POST /run by handing each invocation to d.
func AgentHandler(d Dispatcher, log logrus.FieldLogger) http.HandlerFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var inv Invocation
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			http.Error(w, "invalid invocation: "+err.Error(), http.StatusBadRequest)
			return
		}
		if inv.Task == "" {
			http.Error(w, "invalid invocation: task is required", http.StatusBadRequest)
			return
		}
		entry := log.WithFields(logrus.Fields{"run_id": inv.RunID, "job": inv.Job, "stage": inv.Stage, "task": inv.Task})
		inv.Log = entry
		entry.Info("received invocation")

		res, err := d.Invoke(r.Context(), inv.Task, &inv)
		out := AgentResponse{Task: inv.Task, Stage: inv.Stage, Status: res.Status, Output: res.Output}
		if err != nil {
			out.Status = model.StageFailed
			out.Error = err.Error()
			entry.WithError(err).Warn("invocation failed")
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			entry.WithError(err).Error("encode response")
		}
	}
}
