// Package task is the boundary between the executor and whatever actually
// performs a stage. The executor hands a task reference and evaluated
// arguments to a Dispatcher and gets back a status and an optional output.
package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
)

// Invocation is everything a handler receives for one stage attempt.
type Invocation struct {
	RunID    string      `json:"run_id"`
	Pipeline string      `json:"pipeline"`
	Job      string      `json:"job"`
	Instance int         `json:"instance"`
	Stage    string      `json:"stage"`
	Task     string      `json:"task"`
	Attempt  int         `json:"attempt"`
	Args     model.Value `json:"args"`
	Matrix   *model.Map  `json:"matrix,omitempty"`

	// OutputDir is a per-run directory handlers may write artifacts to.
	OutputDir string `json:"-"`

	Log logrus.FieldLogger `json:"-"`
}

// Logger returns the invocation logger, falling back to the standard one.
func (inv *Invocation) Logger() logrus.FieldLogger {
	if inv.Log != nil {
		return inv.Log
	}
	return logrus.StandardLogger()
}

// Arg returns a top-level argument.
func (inv *Invocation) Arg(name string) (model.Value, bool) {
	return inv.Args.Get(name)
}

// StringArg returns a top-level argument as text, or def when absent.
func (inv *Invocation) StringArg(name, def string) string {
	v, ok := inv.Args.Get(name)
	if !ok || v.IsNull() {
		return def
	}
	return v.Text()
}

// Result is what a handler reports back.
type Result struct {
	Status model.StageStatus `json:"status"`
	Output model.Value       `json:"output"`
}

// Succeeded is a success result carrying out.
func Succeeded(out model.Value) Result {
	return Result{Status: model.StageSuccess, Output: out}
}

// Handler runs one task.
type Handler interface {
	Run(ctx context.Context, inv *Invocation) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) (Result, error)

func (f HandlerFunc) Run(ctx context.Context, inv *Invocation) (Result, error) { return f(ctx, inv) }

// Dispatcher is what the executor calls.
type Dispatcher interface {
	Invoke(ctx context.Context, ref string, inv *Invocation) (Result, error)
}

// DispatchError is any failure reported by or on the way to a task.
type DispatchError struct {
	Task string
	Msg  string
	Err  error
}

func (e *DispatchError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return fmt.Sprintf("task %q: %s", e.Task, msg)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Kind() errkind.Kind { return errkind.TaskDispatch }

// Registry maps task references to handlers. A reference may carry a
// version suffix ("name@v1"); an exact match wins over the bare name.
// References nobody registered go to the fallback dispatcher when one is
// set.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Dispatcher
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds ref to h, replacing an earlier binding.
func (r *Registry) Register(ref string, h Handler) {
	r.mu.Lock()
	r.handlers[ref] = h
	r.mu.Unlock()
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(ref string, fn func(context.Context, *Invocation) (Result, error)) {
	r.Register(ref, HandlerFunc(fn))
}

// SetFallback routes unknown references to d.
func (r *Registry) SetFallback(d Dispatcher) {
	r.mu.Lock()
	r.fallback = d
	r.mu.Unlock()
}

// Refs lists the registered references in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for ref := range r.handlers {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(ref string) (Handler, Dispatcher) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[ref]; ok {
		return h, nil
	}
	if i := strings.LastIndexByte(ref, '@'); i > 0 {
		if h, ok := r.handlers[ref[:i]]; ok {
			return h, nil
		}
	}
	return nil, r.fallback
}

// Invoke runs the handler bound to ref. Handler errors and failed results
// come back as *DispatchError; cancellation of ctx is passed through as is.
func (r *Registry) Invoke(ctx context.Context, ref string, inv *Invocation) (Result, error) {
	h, fallback := r.lookup(ref)
	if h == nil {
		if fallback != nil {
			return fallback.Invoke(ctx, ref, inv)
		}
		return Result{Status: model.StageFailed}, &DispatchError{Task: ref, Msg: "no handler registered"}
	}
	if inv.Task == "" {
		inv.Task = ref
	}
	res, err := h.Run(ctx, inv)
	if err != nil {
		if ctx.Err() != nil && errkind.Of(err) == errkind.Cancelled {
			return Result{Status: model.StageFailed}, err
		}
		return Result{Status: model.StageFailed}, asDispatch(ref, err)
	}
	return Checked(ref, res)
}

// Checked normalizes a result returned without error: an empty status is a
// success, a failed status becomes a *DispatchError, and any status outside
// success, failed and skipped is rejected.
func Checked(ref string, res Result) (Result, error) {
	switch res.Status {
	case "":
		res.Status = model.StageSuccess
	case model.StageSuccess, model.StageSkipped:
	case model.StageFailed:
		msg := "task reported failure"
		if m, ok := res.Output.Get("error"); ok {
			msg = m.Text()
		}
		return res, &DispatchError{Task: ref, Msg: msg}
	default:
		return Result{Status: model.StageFailed}, &DispatchError{Task: ref, Msg: fmt.Sprintf("unknown result status %q", res.Status)}
	}
	return res, nil
}

func asDispatch(ref string, err error) error {
	if errkind.Is(err, errkind.TaskDispatch) {
		return err
	}
	return &DispatchError{Task: ref, Err: err}
}
