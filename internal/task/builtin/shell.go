package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go-workflow/internal/model"
	"go-workflow/internal/task"
	"go-workflow/pkg/utils"
)

// Shell runs args.run through "sh -c". args.env adds environment variables
// and args.dir sets the working directory. Combined output is returned and,
// when the run has an output directory, written to a per-stage log file.
type Shell struct{}

func (Shell) Run(ctx context.Context, inv *task.Invocation) (task.Result, error) {
	script := inv.StringArg("run", inv.StringArg("cmd", ""))
	if strings.TrimSpace(script) == "" {
		return task.Result{}, errors.New("shell: args.run is required")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = inv.StringArg("dir", "")
	if env, ok := inv.Arg("env"); ok && env.Kind() == model.KindMap {
		cmd.Env = append(os.Environ(), envList(env.Map())...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	output := model.MapOf("output", strings.TrimRight(out.String(), "\n"), "exit_code", exitCode)
	if inv.OutputDir != "" {
		logPath := filepath.Join(inv.OutputDir, utils.StageLogName(inv.Job, inv.Instance, inv.Stage))
		if werr := os.WriteFile(logPath, out.Bytes(), 0644); werr != nil {
			inv.Logger().WithError(werr).Warn("could not write stage log")
		} else {
			output.Set("log", model.String(logPath))
		}
	}

	if ctx.Err() != nil {
		return task.Result{}, ctx.Err()
	}
	if err != nil {
		if exitErr != nil {
			return task.Result{Status: model.StageFailed, Output: model.MapValue(output)},
				fmt.Errorf("command exited with code %d", exitCode)
		}
		return task.Result{}, err
	}
	return task.Succeeded(model.MapValue(output)), nil
}

func envList(m *model.Map) []string {
	var out []string
	m.Range(func(k string, v model.Value) bool {
		out = append(out, k+"="+v.Text())
		return true
	})
	sort.Strings(out)
	return out
}
