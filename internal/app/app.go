package app

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/api"
	"go-workflow/internal/api/handler"
	"go-workflow/internal/config"
	"go-workflow/internal/loader"
	"go-workflow/internal/logging"
	"go-workflow/internal/runner"
	"go-workflow/internal/store"
	"go-workflow/internal/task"
	"go-workflow/internal/task/builtin"
	"go-workflow/pkg/router"
	"go-workflow/pkg/utils"
)

// App is the process assembled from configuration.
type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	Redactor *logging.Redactor
	Tasks    *task.Registry
	Store    *store.Store
	Runner   *runner.Runner
}

// Options tune New.
type Options struct {
	Output io.Writer // log destination, stderr when nil
	// ReadOnly skips the run database and the output directory, for
	// commands that only inspect configuration.
	ReadOnly bool
}

// New builds the application. Tasks without a local handler go to the
// remote agent when agent.url is set.
func New(cfg *config.Config, opts Options) (*App, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, opts.Output)
	if err != nil {
		return nil, err
	}
	redactor := logging.NewRedactor().Attach(log)

	tasks := task.NewRegistry()
	builtin.Register(tasks)
	if cfg.Agent.URL != "" {
		tasks.SetFallback(task.NewRemote(cfg.Agent.URL, log))
	}

	a := &App{Config: cfg, Log: log, Redactor: redactor, Tasks: tasks}
	var outputs *utils.OutputManager
	if !opts.ReadOnly {
		if cfg.Store.Path != "" {
			if a.Store, err = store.Open(cfg.Store.Path, log); err != nil {
				return nil, fmt.Errorf("open run store: %w", err)
			}
		}
		outputs = utils.NewOutputManager(cfg.Paths.Output)
		if err := outputs.EnsureOutputDirExists(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Runner = runner.New(runner.Options{
		Source:   loader.SourceFor(cfg.Paths.Conf),
		Tasks:    tasks,
		Root:     cfg.Paths.Root,
		Parallel: cfg.Executor.Parallel,
		Store:    a.Store,
		Outputs:  outputs,
		Secrets:  cfg.SecretSource(),
		Redact:   redactor.Add,
		Log:      log,
	})
	return a, nil
}

func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// Serve runs the HTTP API until ctx is done, then cancels in-flight runs.
func (a *App) Serve(ctx context.Context) error {
	r := router.New(a.Log)
	api.RegisterRoutes(r, handler.New(a.Runner, a.Log))
	err := r.Start(ctx, a.Config.Server.Addr)
	if serr := a.Runner.Shutdown(context.WithoutCancel(ctx)); serr != nil && err == nil {
		err = serr
	}
	return err
}

// ServeAgent exposes the local task registry to remote executors.
func (a *App) ServeAgent(ctx context.Context) error {
	r := router.New(a.Log)
	api.RegisterAgent(r, a.Tasks, a.Log)
	a.Log.WithField("tasks", a.Tasks.Refs()).Info("agent ready")
	return r.Start(ctx, a.Config.Agent.Addr)
}
