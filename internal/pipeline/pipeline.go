// Package pipeline drives one pipeline invocation: it binds parameters,
// expands matrix strategies into job instantiations and runs each
// instantiation's stages in order through a task dispatcher.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-workflow/internal/conn"
	"go-workflow/internal/errkind"
	"go-workflow/internal/expr"
	"go-workflow/internal/matrix"
	"go-workflow/internal/model"
	"go-workflow/internal/scope"
	"go-workflow/internal/task"
	"go-workflow/pkg/utils"
)

// Executor runs pipelines. One Executor may run many pipelines
// concurrently.
type Executor struct {
	tasks    task.Dispatcher
	resolver *conn.Resolver
	eval     *expr.Evaluator
	recorder Recorder
	log      logrus.FieldLogger
	outputs  *utils.OutputManager
	parallel int

	env     scope.EnvSource
	secrets scope.SecretSource
	redact  func(string)
	now     func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithDispatcher(d task.Dispatcher) Option { return func(e *Executor) { e.tasks = d } }

func WithResolver(r *conn.Resolver) Option { return func(e *Executor) { e.resolver = r } }

func WithEvaluator(ev *expr.Evaluator) Option { return func(e *Executor) { e.eval = ev } }

func WithRecorder(r Recorder) Option { return func(e *Executor) { e.recorder = r } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Executor) { e.log = l } }

// WithOutputManager gives every run an artifact directory.
func WithOutputManager(om *utils.OutputManager) Option { return func(e *Executor) { e.outputs = om } }

// WithParallelism sets how many instantiations of one job may run at once.
// 1, the default, runs them sequentially in expansion order.
func WithParallelism(n int) Option { return func(e *Executor) { e.parallel = n } }

func WithEnv(env scope.EnvSource) Option { return func(e *Executor) { e.env = env } }

func WithSecrets(s scope.SecretSource) Option { return func(e *Executor) { e.secrets = s } }

// WithRedactor registers a callback that receives every secret value the
// run resolves.
func WithRedactor(fn func(string)) Option { return func(e *Executor) { e.redact = fn } }

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{parallel: 1, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.eval == nil {
		e.eval = expr.New()
	}
	if e.resolver == nil {
		e.resolver = conn.NewResolver(conn.WithEvaluator(e.eval), conn.WithLogger(e.log))
	}
	if e.tasks == nil {
		e.tasks = task.NewRegistry()
	}
	if e.recorder == nil {
		e.recorder = LogRecorder{Log: e.log}
	}
	if e.parallel < 1 {
		e.parallel = 1
	}
	return e
}

// Resolver returns the connection resolver runs use.
func (e *Executor) Resolver() *conn.Resolver { return e.resolver }

// Run executes p with a fresh run id.
func (e *Executor) Run(ctx context.Context, p *model.Pipeline, params *model.Map) (*model.ExecutionReport, error) {
	return e.RunWithID(ctx, uuid.NewString(), p, params)
}

// RunWithID executes p. Pipeline shape and parameter problems abort before
// anything runs and are returned as errors; once jobs start, failures are
// reported per instantiation in the report and the error is nil.
func (e *Executor) RunWithID(ctx context.Context, runID string, p *model.Pipeline, params *model.Map) (*model.ExecutionReport, error) {
	log := e.log.WithFields(logrus.Fields{"run_id": runID, "pipeline": p.Name})
	if err := ValidatePipeline(p); err != nil {
		return nil, err
	}
	bound, err := BindParams(p.Params, params, log)
	if err != nil {
		return nil, err
	}
	root, err := e.rootScope(ctx, p, bound)
	if err != nil {
		return nil, err
	}

	run := &runState{id: runID, pipeline: p, root: root, log: log}
	if e.outputs != nil {
		if run.outputDir, err = e.outputs.RunDir(runID); err != nil {
			return nil, err
		}
	}

	report := &model.ExecutionReport{
		RunID:     runID,
		Pipeline:  p.Name,
		Status:    model.RunRunning,
		Params:    bound,
		StartedAt: e.now(),
	}
	e.emit(ctx, model.RunEvent{
		RunID:   runID,
		Type:    model.EventRunStarted,
		Status:  string(model.RunRunning),
		Details: map[string]any{"pipeline": p.Name, "jobs": len(p.Jobs)},
	})

	for _, job := range p.Jobs {
		report.Instances = append(report.Instances, e.runJob(ctx, run, job)...)
	}

	report.FinishedAt = e.now()
	report.Status = overallStatus(report)
	e.emit(ctx, model.RunEvent{
		RunID:   runID,
		Type:    model.EventRunFinished,
		Status:  string(report.Status),
		Details: map[string]any{"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds()},
	})
	return report, nil
}

type runState struct {
	id        string
	pipeline  *model.Pipeline
	root      *scope.Store
	outputDir string
	log       logrus.FieldLogger
}

// rootScope builds the read-only pipeline scope. Connection-typed params
// are resolved against it before it is frozen.
func (e *Executor) rootScope(ctx context.Context, p *model.Pipeline, params *model.Map) (*scope.Store, error) {
	opts := []scope.Option{scope.WithParams(params), scope.WithConns(e.resolver)}
	if e.env != nil {
		opts = append(opts, scope.WithEnv(e.env))
	}
	if e.secrets != nil {
		opts = append(opts, scope.WithSecrets(e.secrets))
	}
	if e.redact != nil {
		opts = append(opts, scope.WithRedactor(e.redact))
	}
	root := scope.New(opts...)

	for _, d := range p.Params {
		if d.Type != model.ParamConn {
			continue
		}
		v, _ := params.Get(d.Name)
		if v.IsNull() {
			continue
		}
		if _, ok := e.resolver.Descriptor(v.Text()); !ok {
			return nil, &ParamValidationError{Param: d.Name, Type: d.Type, Msg: fmt.Sprintf("unknown connection %q", v.Text())}
		}
		ep, err := e.resolver.ResolveName(ctx, v.Text(), root)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", d.Name, err)
		}
		params.Set(d.Name, model.Handle(ep))
	}
	root.Freeze()
	return root, nil
}

// runJob runs every instantiation of job and returns their reports in
// expansion order.
func (e *Executor) runJob(ctx context.Context, run *runState, job *model.Job) []model.InstanceReport {
	bindings := []matrix.Binding{{Index: 0}}
	if job.Strategy != nil {
		bindings = matrix.Expand(job.Strategy)
		if len(bindings) == 0 {
			run.log.WithField("job", job.Name).Warn("matrix produced no instantiations")
			return nil
		}
	}

	reports := make([]model.InstanceReport, len(bindings))
	limit := e.parallel
	if job.Strategy != nil && job.Strategy.MaxParallel > 0 && job.Strategy.MaxParallel < limit {
		limit = job.Strategy.MaxParallel
	}

	if limit <= 1 {
		for i, b := range bindings {
			reports[i] = e.runInstance(ctx, run, job, b)
		}
		return reports
	}

	// Instantiations are independent, so their failures never cancel the
	// group; only ctx does.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, b := range bindings {
		g.Go(func() error {
			reports[i] = e.runInstance(ctx, run, job, b)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// runInstance runs one instantiation's stages strictly in order.
func (e *Executor) runInstance(ctx context.Context, run *runState, job *model.Job, b matrix.Binding) model.InstanceReport {
	rep := model.InstanceReport{
		Job:       job.Name,
		Index:     b.Index,
		Matrix:    b.Values,
		Status:    model.InstanceSucceeded,
		Stages:    make([]model.StageReport, 0, len(job.Stages)),
		StartedAt: e.now(),
	}
	if job.Strategy != nil && rep.Matrix == nil {
		rep.Matrix = model.NewMap()
	}
	label := rep.Label()
	log := run.log.WithFields(logrus.Fields{"job": job.Name, "instance": label})

	bindings := model.NewMap()
	if b.Values != nil {
		bindings.Set(scope.NSMatrix, model.MapValue(b.Values))
	}
	published := model.NewMap()
	bindings.Set(scope.NSStages, model.MapValue(published))
	sc := run.root.WithScope(bindings)
	defer e.resolver.Forget(sc)

	if ctx.Err() != nil {
		rep.Status = model.InstanceCancelled
		rep.ErrorKind = string(errkind.Cancelled)
		rep.Error = ctx.Err().Error()
		for _, st := range job.Stages {
			rep.Stages = append(rep.Stages, skippedStage(st))
		}
		rep.FinishedAt = e.now()
		e.emit(ctx, model.RunEvent{RunID: run.id, Type: model.EventInstanceFinished, Job: job.Name, Instance: label, Status: string(rep.Status), Message: "not started"})
		return rep
	}

	e.emit(ctx, model.RunEvent{
		RunID:    run.id,
		Type:     model.EventInstanceStarted,
		Job:      job.Name,
		Instance: label,
		Details:  map[string]any{"matrix": model.MapValue(b.Values).Text(), "included": b.Included},
	})

	stopped := false
	for _, st := range job.Stages {
		if stopped {
			rep.Stages = append(rep.Stages, skippedStage(st))
			continue
		}
		if err := ctx.Err(); err != nil {
			rep.Status = model.InstanceCancelled
			rep.ErrorKind = string(errkind.Cancelled)
			rep.Error = err.Error()
			rep.Stages = append(rep.Stages, skippedStage(st))
			stopped = true
			continue
		}

		sr, out, err := e.runStage(ctx, run, job, b, label, st, sc, log)
		rep.Stages = append(rep.Stages, sr)
		if err != nil {
			stopped = true
			rep.FailedStage = st.ID
			rep.ErrorKind = sr.ErrorKind
			rep.Error = sr.Error
			rep.Status = model.InstanceFailed
			if sr.ErrorKind == string(errkind.Cancelled) && ctx.Err() != nil {
				rep.Status = model.InstanceCancelled
			}
			continue
		}
		if sr.Status == model.StageSuccess {
			published.Set(st.ID, model.MapValue(model.MapOf("outputs", out, "status", string(sr.Status))))
		}
	}

	rep.FinishedAt = e.now()
	e.emit(ctx, model.RunEvent{
		RunID:    run.id,
		Type:     model.EventInstanceFinished,
		Job:      job.Name,
		Instance: label,
		Stage:    rep.FailedStage,
		Status:   string(rep.Status),
		Message:  rep.Error,
	})
	return rep
}

// runStage evaluates the stage condition and arguments against sc and
// dispatches. A non-nil error means the instantiation must stop.
func (e *Executor) runStage(ctx context.Context, run *runState, job *model.Job, b matrix.Binding, label string, st *model.Stage, sc *scope.Store, log logrus.FieldLogger) (model.StageReport, model.Value, error) {
	sr := model.StageReport{ID: st.ID, Name: st.Name, Task: st.Task, StartedAt: e.now()}
	slog := log.WithField("stage", st.ID)

	fail := func(err error) (model.StageReport, model.Value, error) {
		sr.Status = model.StageFailed
		sr.ErrorKind = string(errkind.Of(err))
		sr.Error = err.Error()
		sr.Duration = e.now().Sub(sr.StartedAt)
		e.emit(ctx, model.RunEvent{
			RunID: run.id, Type: model.EventStageFinished, Job: job.Name, Instance: label, Stage: st.ID,
			Status: string(sr.Status), Message: sr.Error,
			Details: map[string]any{"error_kind": sr.ErrorKind, "attempts": sr.Attempts},
		})
		return sr, model.Value{}, err
	}

	if st.If != "" {
		cond, err := e.eval.Eval(ctx, sc, st.If)
		if err != nil {
			return fail(fmt.Errorf("stage %s condition: %w", st.ID, err))
		}
		if !cond.Truthy() {
			sr.Status = model.StageSkipped
			e.emit(ctx, model.RunEvent{RunID: run.id, Type: model.EventStageFinished, Job: job.Name, Instance: label, Stage: st.ID, Status: string(sr.Status), Message: "condition is false"})
			return sr, model.Value{}, nil
		}
	}

	args, err := e.eval.EvalDocument(ctx, sc, st.Args)
	if err != nil {
		return fail(fmt.Errorf("stage %s args: %w", st.ID, err))
	}
	timeout, _ := utils.ParseDuration(st.Timeout, 0)

	inv := &task.Invocation{
		RunID:     run.id,
		Pipeline:  run.pipeline.Name,
		Job:       job.Name,
		Instance:  b.Index,
		Stage:     st.ID,
		Task:      st.Task,
		Args:      args,
		Matrix:    b.Values,
		OutputDir: run.outputDir,
		Log:       slog,
	}
	e.emit(ctx, model.RunEvent{RunID: run.id, Type: model.EventStageStarted, Job: job.Name, Instance: label, Stage: st.ID, Details: map[string]any{"task": st.Task}})

	res, attempts, err := e.dispatch(ctx, st, inv, timeout, label)
	sr.Attempts = attempts
	if err != nil {
		return fail(err)
	}
	sr.Status = res.Status
	sr.Output = res.Output
	sr.Duration = e.now().Sub(sr.StartedAt)
	e.emit(ctx, model.RunEvent{
		RunID: run.id, Type: model.EventStageFinished, Job: job.Name, Instance: label, Stage: st.ID,
		Status:  string(sr.Status),
		Details: map[string]any{"attempts": attempts, "duration_ms": sr.Duration.Milliseconds()},
	})
	return sr, res.Output, nil
}

func skippedStage(st *model.Stage) model.StageReport {
	return model.StageReport{ID: st.ID, Name: st.Name, Task: st.Task, Status: model.StageSkipped}
}

func overallStatus(r *model.ExecutionReport) model.RunStatus {
	status := model.RunSucceeded
	for _, inst := range r.Instances {
		switch inst.Status {
		case model.InstanceFailed:
			return model.RunFailed
		case model.InstanceCancelled:
			status = model.RunCancelled
		}
	}
	return status
}

func (e *Executor) emit(ctx context.Context, ev model.RunEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	e.recorder.Record(ctx, ev)
}
