// Package builtin provides the reference task handlers shipped with the
// engine: echo, sleep, fail, shell and sqlite.
package builtin

import (
	"context"
	"errors"
	"time"

	"go-workflow/internal/model"
	"go-workflow/internal/task"
	"go-workflow/pkg/utils"
)

// Register binds every builtin under its bare name.
func Register(r *task.Registry) {
	r.RegisterFunc("echo", Echo)
	r.RegisterFunc("sleep", Sleep)
	r.RegisterFunc("fail", Fail)
	r.Register("shell", Shell{})
	r.Register("sqlite", SQLite{})
}

// Echo logs args.message when present and returns the arguments as output.
func Echo(_ context.Context, inv *task.Invocation) (task.Result, error) {
	if msg, ok := inv.Arg("message"); ok {
		inv.Logger().Info(msg.Text())
	}
	return task.Succeeded(inv.Args), nil
}

// Sleep waits for args.duration, giving up early when ctx ends.
func Sleep(ctx context.Context, inv *task.Invocation) (task.Result, error) {
	d, err := utils.ParseDuration(inv.StringArg("duration", ""), time.Second)
	if err != nil {
		return task.Result{}, err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return task.Result{}, ctx.Err()
	case <-t.C:
	}
	return task.Succeeded(model.MapValue(model.MapOf("slept", d.String()))), nil
}

// Fail always fails with args.message.
func Fail(_ context.Context, inv *task.Invocation) (task.Result, error) {
	return task.Result{}, errors.New(inv.StringArg("message", "failed on request"))
}
