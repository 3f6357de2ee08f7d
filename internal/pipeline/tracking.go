package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/model"
)

// Recorder receives progress events while a run executes. Implementations
// must be safe for concurrent use; parallel instantiations report
// concurrently.
type Recorder interface {
	Record(ctx context.Context, ev model.RunEvent)
}

// Recorders fans one event out to several recorders.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, ev model.RunEvent) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}

// LogRecorder writes events to a logrus logger.
type LogRecorder struct {
	Log logrus.FieldLogger
}

func (l LogRecorder) Record(_ context.Context, ev model.RunEvent) {
	fields := logrus.Fields{"run_id": ev.RunID, "event": string(ev.Type)}
	if ev.Instance != "" {
		fields["instance"] = ev.Instance
	} else if ev.Job != "" {
		fields["job"] = ev.Job
	}
	if ev.Stage != "" {
		fields["stage"] = ev.Stage
	}
	if ev.Status != "" {
		fields["status"] = ev.Status
	}
	for k, v := range ev.Details {
		fields[k] = v
	}
	entry := l.Log.WithFields(fields)
	msg := ev.Message
	if msg == "" {
		msg = string(ev.Type)
	}
	switch {
	case ev.Status == string(model.StageFailed) || ev.Status == string(model.InstanceFailed) || ev.Status == string(model.RunFailed):
		entry.Error(msg)
	case ev.Type == model.EventStageRetry || ev.Status == string(model.InstanceCancelled):
		entry.Warn(msg)
	case ev.Type == model.EventStageStarted:
		entry.Debug(msg)
	default:
		entry.Info(msg)
	}
}

// Progress is a live view of one run.
type Progress struct {
	RunID          string            `json:"run_id"`
	Pipeline       string            `json:"pipeline"`
	Status         model.RunStatus   `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	Instances      int               `json:"instances"`
	InstancesDone  int               `json:"instances_done"`
	StagesFinished int               `json:"stages_finished"`
	StagesFailed   int               `json:"stages_failed"`
	Retries        int               `json:"retries"`
	Running        map[string]string `json:"running"` // instance label -> stage id
	LastEvent      time.Time         `json:"last_event"`
}

// Tracker keeps an in-memory Progress per run from the event stream.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*Progress
}

func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Progress)}
}

func (t *Tracker) Record(_ context.Context, ev model.RunEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.runs[ev.RunID]
	if !ok {
		p = &Progress{RunID: ev.RunID, Status: model.RunRunning, Running: make(map[string]string)}
		t.runs[ev.RunID] = p
	}
	p.LastEvent = ev.Timestamp
	switch ev.Type {
	case model.EventRunStarted:
		p.StartedAt = ev.Timestamp
		if name, ok := ev.Details["pipeline"].(string); ok {
			p.Pipeline = name
		}
	case model.EventInstanceStarted:
		p.Instances++
	case model.EventStageStarted:
		p.Running[ev.Instance] = ev.Stage
	case model.EventStageRetry:
		p.Retries++
	case model.EventStageFinished:
		p.StagesFinished++
		if ev.Status == string(model.StageFailed) {
			p.StagesFailed++
		}
		delete(p.Running, ev.Instance)
	case model.EventInstanceFinished:
		p.InstancesDone++
		delete(p.Running, ev.Instance)
	case model.EventRunFinished:
		p.Status = model.RunStatus(ev.Status)
		p.Running = map[string]string{}
	}
}

// Progress returns a copy of the run's progress.
func (t *Tracker) Progress(runID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.runs[runID]
	if !ok {
		return Progress{}, false
	}
	cp := *p
	cp.Running = make(map[string]string, len(p.Running))
	for k, v := range p.Running {
		cp.Running[k] = v
	}
	return cp, true
}

// Forget drops a finished run.
func (t *Tracker) Forget(runID string) {
	t.mu.Lock()
	delete(t.runs, runID)
	t.mu.Unlock()
}
