package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/task"
)

// dispatch invokes the stage's task, retrying dispatch failures according to
// the stage policy. It returns the last result, the number of attempts and
// the last error.
func (e *Executor) dispatch(ctx context.Context, st *model.Stage, inv *task.Invocation, timeout time.Duration, label string) (task.Result, int, error) {
	policy := model.DefaultRetryPolicy
	if st.Retry != nil {
		policy = *st.Retry
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		inv.Attempt = attempt
		res, err := e.invokeOnce(ctx, st, inv, timeout)
		if err == nil {
			return res, attempt, nil
		}
		if attempt >= policy.MaxAttempts || !isRetryable(ctx, err) {
			return res, attempt, err
		}

		delay := calculateDelay(policy, attempt)
		e.emit(ctx, model.RunEvent{
			RunID:    inv.RunID,
			Type:     model.EventStageRetry,
			Job:      inv.Job,
			Instance: label,
			Stage:    st.ID,
			Message:  fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, err),
			Details:  map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds()},
		})

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, attempt, err
		case <-t.C:
		}
	}
}

// invokeOnce runs one attempt. Results from any dispatcher go through
// task.Checked so a failed status stops the instantiation like an error.
func (e *Executor) invokeOnce(ctx context.Context, st *model.Stage, inv *task.Invocation, timeout time.Duration) (task.Result, error) {
	if timeout <= 0 {
		res, err := e.tasks.Invoke(ctx, st.Task, inv)
		if err != nil {
			return res, err
		}
		return task.Checked(st.Task, res)
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := e.tasks.Invoke(stageCtx, st.Task, inv)
	if err != nil && ctx.Err() == nil && stageCtx.Err() == context.DeadlineExceeded {
		// the stage's own deadline, not run cancellation
		return res, &task.DispatchError{Task: st.Task, Msg: "timed out after " + timeout.String(), Err: err}
	}
	if err != nil {
		return res, err
	}
	return task.Checked(st.Task, res)
}

// isRetryable reports whether a failed attempt may be repeated: only
// failures reported by the task itself, and never after cancellation.
func isRetryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && errkind.Of(err) == errkind.TaskDispatch
}

// calculateDelay applies exponential backoff and, when enabled, up to 10%
// jitter either way.
func calculateDelay(p model.RetryPolicy, attempt int) time.Duration {
	delay := p.Delay(attempt)
	if p.Jitter && delay > 0 {
		spread := float64(delay) * 0.1
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
	}
	return delay
}
