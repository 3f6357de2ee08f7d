package pipeline

import (
	"sort"

	"go-workflow/internal/model"
)

// Summarize groups a report by job, keeping job order of first appearance.
func Summarize(r *model.ExecutionReport) model.Summary {
	s := model.Summary{
		Pipeline: r.Pipeline,
		Status:   r.Status,
		Duration: r.FinishedAt.Sub(r.StartedAt),
	}
	index := make(map[string]int)
	for _, inst := range r.Instances {
		i, ok := index[inst.Job]
		if !ok {
			i = len(s.Jobs)
			index[inst.Job] = i
			s.Jobs = append(s.Jobs, model.JobSummary{Job: inst.Job})
		}
		js := &s.Jobs[i]
		js.Instances++
		switch inst.Status {
		case model.InstanceSucceeded:
			js.Succeeded++
		case model.InstanceFailed:
			js.Failed++
		case model.InstanceCancelled:
			js.Cancelled++
		}
		for _, st := range inst.Stages {
			js.Stages++
			js.Attempts += st.Attempts
			js.Duration += st.Duration
			if st.Status == model.StageSkipped {
				js.Skipped++
			}
		}
	}
	return s
}

// FailedInstances lists failed instantiations, slowest failure first.
func FailedInstances(r *model.ExecutionReport) []model.InstanceReport {
	var out []model.InstanceReport
	for _, inst := range r.Instances {
		if inst.Status == model.InstanceFailed {
			out = append(out, inst)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.Sub(out[i].StartedAt) > out[j].FinishedAt.Sub(out[j].StartedAt)
	})
	return out
}
