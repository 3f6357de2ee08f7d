package pipeline

import (
	"fmt"
	"strings"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/pkg/utils"
)

// ParamValidationError reports a missing or mistyped pipeline parameter.
type ParamValidationError struct {
	Param string
	Type  model.ParamType
	Msg   string
}

func (e *ParamValidationError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("param %q (%s): %s", e.Param, e.Type, e.Msg)
	}
	return fmt.Sprintf("param %q: %s", e.Param, e.Msg)
}

func (e *ParamValidationError) Kind() errkind.Kind { return errkind.ParamValidation }

var knownParamTypes = map[model.ParamType]bool{
	model.ParamStr:      true,
	model.ParamInt:      true,
	model.ParamFloat:    true,
	model.ParamBool:     true,
	model.ParamDatetime: true,
	model.ParamDate:     true,
	model.ParamList:     true,
	model.ParamMap:      true,
	model.ParamConn:     true,
}

// ValidatePipeline checks the shape of a pipeline before anything runs.
func ValidatePipeline(p *model.Pipeline) error {
	if p == nil {
		return &errkind.ConfigError{Msg: "no pipeline"}
	}
	doc := p.Name
	if strings.TrimSpace(p.Name) == "" {
		return &errkind.ConfigError{Field: "name", Msg: "pipeline name is required"}
	}

	seenParam := make(map[string]bool)
	for _, d := range p.Params {
		field := "params." + d.Name
		if d.Name == "" {
			return &errkind.ConfigError{Document: doc, Field: "params", Msg: "parameter without a name"}
		}
		if seenParam[d.Name] {
			return &errkind.ConfigError{Document: doc, Field: field, Msg: "declared twice"}
		}
		seenParam[d.Name] = true
		if !knownParamTypes[d.Type] {
			return &errkind.ConfigError{Document: doc, Field: field, Msg: fmt.Sprintf("unknown type %q", d.Type)}
		}
	}

	if len(p.Jobs) == 0 {
		return &errkind.ConfigError{Document: doc, Field: "jobs", Msg: "pipeline has no jobs"}
	}
	seenJob := make(map[string]bool)
	for _, j := range p.Jobs {
		if err := validateJob(doc, j, seenJob); err != nil {
			return err
		}
	}
	return nil
}

func validateJob(doc string, j *model.Job, seen map[string]bool) error {
	field := "jobs." + j.Name
	if j.Name == "" {
		return &errkind.ConfigError{Document: doc, Field: "jobs", Msg: "job without a name"}
	}
	if seen[j.Name] {
		return &errkind.ConfigError{Document: doc, Field: field, Msg: "declared twice"}
	}
	seen[j.Name] = true
	if len(j.Stages) == 0 {
		return &errkind.ConfigError{Document: doc, Field: field, Msg: "job has no stages"}
	}

	if s := j.Strategy; s != nil {
		axes := make(map[string]bool)
		for _, a := range s.Axes {
			if a.Name == "" {
				return &errkind.ConfigError{Document: doc, Field: field + ".strategy", Msg: "matrix axis without a name"}
			}
			if axes[a.Name] {
				return &errkind.ConfigError{Document: doc, Field: field + ".strategy.matrix." + a.Name, Msg: "axis declared twice"}
			}
			axes[a.Name] = true
		}
		if s.MaxParallel < 0 {
			return &errkind.ConfigError{Document: doc, Field: field + ".strategy.max_parallel", Msg: "must not be negative"}
		}
	}

	ids := make(map[string]bool)
	for i, st := range j.Stages {
		sf := fmt.Sprintf("%s.stages[%d]", field, i)
		if st.ID == "" {
			st.ID = st.Name
		}
		if st.ID == "" {
			return &errkind.ConfigError{Document: doc, Field: sf, Msg: "stage needs an id or a name"}
		}
		if ids[st.ID] {
			return &errkind.ConfigError{Document: doc, Field: sf, Msg: fmt.Sprintf("duplicate stage id %q", st.ID)}
		}
		ids[st.ID] = true
		if strings.TrimSpace(st.Task) == "" {
			return &errkind.ConfigError{Document: doc, Field: sf + ".task", Msg: "task reference is required"}
		}
		if _, err := utils.ParseDuration(st.Timeout, 0); err != nil {
			return &errkind.ConfigError{Document: doc, Field: sf + ".timeout", Msg: err.Error()}
		}
		if st.Retry != nil && st.Retry.MaxAttempts < 0 {
			return &errkind.ConfigError{Document: doc, Field: sf + ".retry.max_attempts", Msg: "must not be negative"}
		}
	}
	return nil
}
