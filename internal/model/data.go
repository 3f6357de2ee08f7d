package model

import (
	"strconv"
	"time"
)

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// InstanceStatus is the outcome of one job instantiation. Every
// instantiation ends in exactly one of these.
type InstanceStatus string

const (
	InstanceSucceeded InstanceStatus = "succeeded"
	InstanceFailed    InstanceStatus = "failed"
	InstanceCancelled InstanceStatus = "cancelled"
)

// RunStatus is the overall outcome of a pipeline invocation.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// StageReport records what happened to one stage.
type StageReport struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Task      string        `json:"task"`
	Status    StageStatus   `json:"status"`
	Attempts  int           `json:"attempts"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Output    Value         `json:"output"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// InstanceReport records one job instantiation.
type InstanceReport struct {
	Job         string         `json:"job"`
	Index       int            `json:"index"`
	Matrix      *Map           `json:"matrix,omitempty"`
	Status      InstanceStatus `json:"status"`
	FailedStage string         `json:"failed_stage,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	Stages      []StageReport  `json:"stages"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Label names the instantiation for logs: job or job[index].
func (r *InstanceReport) Label() string {
	if r.Matrix == nil {
		return r.Job
	}
	return r.Job + "[" + strconv.Itoa(r.Index) + "]"
}

// ExecutionReport is the result of one pipeline invocation.
type ExecutionReport struct {
	RunID      string           `json:"run_id"`
	Pipeline   string           `json:"pipeline"`
	Status     RunStatus        `json:"status"`
	Params     *Map             `json:"params,omitempty"`
	Instances  []InstanceReport `json:"instances"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Failed reports whether any instantiation failed.
func (r *ExecutionReport) Failed() bool {
	for i := range r.Instances {
		if r.Instances[i].Status == InstanceFailed {
			return true
		}
	}
	return false
}
