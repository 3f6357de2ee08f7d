package model

import "time"

// EventType classifies a progress event emitted while a run executes.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventRunFinished      EventType = "run_finished"
	EventInstanceStarted  EventType = "instance_started"
	EventInstanceFinished EventType = "instance_finished"
	EventStageStarted     EventType = "stage_started"
	EventStageRetry       EventType = "stage_retry"
	EventStageFinished    EventType = "stage_finished"
)

// RunEvent is one entry of a run's progress log.
type RunEvent struct {
	ID        int64          `json:"id,omitempty"`
	RunID     string         `json:"run_id"`
	Type      EventType      `json:"type"`
	Job       string         `json:"job,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Status    string         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunRecord is the persisted view of a run.
type RunRecord struct {
	ID         string           `json:"id"`
	Pipeline   string           `json:"pipeline"`
	Status     RunStatus        `json:"status"`
	Params     *Map             `json:"params,omitempty"`
	Report     *ExecutionReport `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// JobSummary counts instantiation and stage outcomes of one job.
type JobSummary struct {
	Job       string        `json:"job"`
	Instances int           `json:"instances"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Stages    int           `json:"stages"`
	Skipped   int           `json:"skipped"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
}

// Summary aggregates a report per job, in job order.
type Summary struct {
	Pipeline string        `json:"pipeline"`
	Status   RunStatus     `json:"status"`
	Jobs     []JobSummary  `json:"jobs"`
	Duration time.Duration `json:"duration"`
}
