// Package runner ties configuration loading, the executor and the run store
// together for the command line and the HTTP API.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-workflow/internal/conn"
	"go-workflow/internal/expr"
	"go-workflow/internal/loader"
	"go-workflow/internal/model"
	"go-workflow/internal/pipeline"
	"go-workflow/internal/scope"
	"go-workflow/internal/store"
	"go-workflow/internal/task"
	"go-workflow/pkg/utils"
)

// ErrNotRunning is returned when cancelling a run that is not in flight.
var ErrNotRunning = errors.New("run is not running")

// Options configures a Runner. Source and Tasks are required.
type Options struct {
	Source   loader.Source
	Tasks    task.Dispatcher
	Root     string
	Parallel int
	Store    *store.Store // optional run history
	Outputs  *utils.OutputManager
	Env      scope.EnvSource
	Secrets  scope.SecretSource
	Redact   func(string)
	Log      logrus.FieldLogger
}

// Runner starts, tracks and cancels pipeline runs.
type Runner struct {
	opts    Options
	eval    *expr.Evaluator
	tracker *pipeline.Tracker
	log     logrus.FieldLogger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Runner {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Env == nil {
		opts.Env = scope.OSEnv
	}
	return &Runner{
		opts:    opts,
		eval:    expr.New(),
		tracker: pipeline.NewTracker(),
		log:     opts.Log,
		active:  make(map[string]*activeRun),
	}
}

// Tracker exposes live progress of in-flight runs.
func (r *Runner) Tracker() *pipeline.Tracker { return r.tracker }

// Store returns the run history, or nil.
func (r *Runner) Store() *store.Store { return r.opts.Store }

// Outputs returns the artifact layout, or nil.
func (r *Runner) Outputs() *utils.OutputManager { return r.opts.Outputs }

// Catalog loads the configuration documents. They are read on every call so
// edits apply to the next run.
func (r *Runner) Catalog(ctx context.Context) (*loader.Catalog, error) {
	return loader.Load(ctx, r.opts.Source, r.log)
}

func (r *Runner) resolver(cat *loader.Catalog) *conn.Resolver {
	return conn.NewResolver(
		conn.WithRoot(r.opts.Root),
		conn.WithEvaluator(r.eval),
		conn.WithLogger(r.log),
		conn.WithDescriptors(cat.Descriptors()...),
	)
}

func (r *Runner) executor(cat *loader.Catalog) *pipeline.Executor {
	recorders := pipeline.Recorders{r.tracker, pipeline.LogRecorder{Log: r.log}}
	if r.opts.Store != nil {
		recorders = append(recorders, r.opts.Store)
	}
	opts := []pipeline.Option{
		pipeline.WithDispatcher(r.opts.Tasks),
		pipeline.WithResolver(r.resolver(cat)),
		pipeline.WithEvaluator(r.eval),
		pipeline.WithRecorder(recorders),
		pipeline.WithLogger(r.log),
		pipeline.WithParallelism(r.opts.Parallel),
		pipeline.WithEnv(r.opts.Env),
	}
	if r.opts.Outputs != nil {
		opts = append(opts, pipeline.WithOutputManager(r.opts.Outputs))
	}
	if r.opts.Secrets != nil {
		opts = append(opts, pipeline.WithSecrets(r.opts.Secrets))
	}
	if r.opts.Redact != nil {
		opts = append(opts, pipeline.WithRedactor(r.opts.Redact))
	}
	return pipeline.NewExecutor(opts...)
}

// prepare loads the pipeline and checks its shape and parameters so callers
// get configuration and parameter errors before a run is recorded.
func (r *Runner) prepare(ctx context.Context, name string, params *model.Map) (*loader.Catalog, *model.Pipeline, error) {
	cat, err := r.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := cat.Pipeline(name)
	if err != nil {
		return nil, nil, err
	}
	if err := pipeline.ValidatePipeline(p); err != nil {
		return nil, nil, err
	}
	if _, err := pipeline.BindParams(p.Params, params, nil); err != nil {
		return nil, nil, err
	}
	return cat, p, nil
}

// Execute runs a pipeline to completion in the caller's goroutine.
func (r *Runner) Execute(ctx context.Context, name string, params *model.Map) (*model.ExecutionReport, error) {
	cat, p, err := r.prepare(ctx, name, params)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if err := r.createRun(ctx, id, name, params); err != nil {
		return nil, err
	}
	return r.execute(ctx, cat, p, id, params)
}

// Start launches a pipeline in the background and returns its pending
// record. The run is detached from ctx; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, name string, params *model.Map) (*model.RunRecord, error) {
	cat, p, err := r.prepare(ctx, name, params)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if err := r.createRun(ctx, id, name, params); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.active[id] = ar
	r.mu.Unlock()

	go func() {
		defer close(ar.done)
		defer func() {
			r.mu.Lock()
			delete(r.active, id)
			r.mu.Unlock()
			cancel()
		}()
		if _, err := r.execute(runCtx, cat, p, id, params); err != nil {
			r.log.WithError(err).WithField("run_id", id).Error("run failed to start")
		}
	}()
	return &model.RunRecord{ID: id, Pipeline: name, Status: model.RunPending, Params: params}, nil
}

func (r *Runner) createRun(ctx context.Context, id, name string, params *model.Map) error {
	if r.opts.Store == nil {
		return nil
	}
	if _, err := r.opts.Store.CreateRun(ctx, id, name, params); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, cat *loader.Catalog, p *model.Pipeline, id string, params *model.Map) (*model.ExecutionReport, error) {
	report, err := r.executor(cat).RunWithID(ctx, id, p, params)
	if r.opts.Store != nil {
		if ferr := r.opts.Store.FinishRun(context.WithoutCancel(ctx), id, report, err); ferr != nil {
			r.log.WithError(ferr).WithField("run_id", id).Warn("could not save run result")
		}
	}
	r.tracker.Forget(id)
	return report, err
}

// Cancel stops an in-flight run. Stages already dispatched finish; the rest
// are skipped.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	ar, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	ar.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done. Runs that are not in
// flight return immediately.
func (r *Runner) Wait(ctx context.Context, id string) error {
	r.mu.Lock()
	ar, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every in-flight run and waits for them to finish.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	runs := make([]*activeRun, 0, len(r.active))
	for _, ar := range r.active {
		runs = append(runs, ar)
	}
	r.mu.Unlock()
	for _, ar := range runs {
		ar.cancel()
	}
	for _, ar := range runs {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Scope returns a frozen scope for evaluating connection fields outside of
// a run, as the conn commands and the connections endpoint do.
func (r *Runner) Scope(res *conn.Resolver) *scope.Store {
	opts := []scope.Option{scope.WithEnv(r.opts.Env), scope.WithConns(res)}
	if r.opts.Secrets != nil {
		opts = append(opts, scope.WithSecrets(r.opts.Secrets))
	}
	if r.opts.Redact != nil {
		opts = append(opts, scope.WithRedactor(r.opts.Redact))
	}
	sc := scope.New(opts...)
	sc.Freeze()
	return sc
}

// ResolveConnection resolves a named connection of the current catalog.
// The returned resolver can ping or glob the endpoint.
func (r *Runner) ResolveConnection(ctx context.Context, name string) (*conn.Endpoint, *conn.Resolver, error) {
	cat, err := r.Catalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	res := r.resolver(cat)
	ep, err := res.ResolveName(ctx, name, r.Scope(res))
	if err != nil {
		return nil, nil, err
	}
	return ep, res, nil
}
