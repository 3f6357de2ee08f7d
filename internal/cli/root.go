// Package cli contains the workflow command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-workflow/internal/app"
	"go-workflow/internal/config"
	"go-workflow/internal/errkind"
)

// Version is set via -ldflags.
var Version = "dev"

type globals struct {
	cfgFile   string
	logLevel  string
	logFormat string
}

// config loads the configuration file and applies flag overrides.
func (g *globals) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

func (g *globals) app(cmd *cobra.Command, cfg *config.Config, readOnly bool) (*app.App, error) {
	return app.New(cfg, app.Options{Output: cmd.ErrOrStderr(), ReadOnly: readOnly})
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "workflow",
		Short: "Run declarative data pipelines",
		Long: `workflow runs pipelines declared in YAML configuration files.

A pipeline is a list of jobs. Each job runs its stages once per matrix
combination; stages dispatch tasks with arguments that may reference
parameters, secrets, environment variables and named connections.

Examples:
  workflow validate                      Check every pipeline in the conf dir
  workflow run nightly -p run_date=2024-05-01
  workflow conn resolve warehouse        Show the resolved endpoint
  workflow schedule nightly -n 3         Show the next three run times
  workflow serve                         Start the HTTP API`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is ./workflow.yaml when present)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format (text or json)")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newConnCmd(g),
		newMatrixCmd(g),
		newScheduleCmd(g),
		newServeCmd(g),
		newAgentCmd(g),
	)
	return root
}

// Execute runs the command line and exits with the command's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", formatError(err))
	os.Exit(1)
}

// formatError prefixes classified errors with their kind.
func formatError(err error) string {
	if k := errkind.Of(err); k != "" {
		return fmt.Sprintf("[%s] %v", k, err)
	}
	return err.Error()
}
