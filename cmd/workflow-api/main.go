package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/app"
	"go-workflow/internal/config"
)

func main() {
	// Load config; WORKFLOW_* variables override the file
	cfg, err := config.Load(os.Getenv("WORKFLOW_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to start")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	if err := a.Serve(ctx); err != nil {
		a.Log.WithError(err).Error("server stopped")
	}
}
