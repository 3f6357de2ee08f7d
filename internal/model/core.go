package model

// Pipeline is the unit of invocation: declared params and ordered jobs.
type Pipeline struct {
	Name   string      `json:"name"`
	Desc   string      `json:"desc,omitempty"`
	Params []ParamDecl `json:"params"`
	Jobs   []*Job      `json:"jobs"` // declaration order
}

// Job returns the job named name.
func (p *Pipeline) Job(name string) (*Job, bool) {
	for _, j := range p.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// ParamType is the declared type tag of a pipeline parameter.
type ParamType string

const (
	ParamStr      ParamType = "str"
	ParamInt      ParamType = "int"
	ParamFloat    ParamType = "float"
	ParamBool     ParamType = "bool"
	ParamDatetime ParamType = "datetime"
	ParamDate     ParamType = "date"
	ParamList     ParamType = "list"
	ParamMap      ParamType = "map"
	ParamConn     ParamType = "conn"
)

// ParamDecl declares one pipeline parameter.
type ParamDecl struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Default  Value     `json:"default,omitempty"`
	Desc     string    `json:"desc,omitempty"`
}

// Job is an ordered sequence of stages, optionally replicated per matrix
// binding.
type Job struct {
	Name     string    `json:"name"`
	Strategy *Strategy `json:"strategy,omitempty"`
	Stages   []*Stage  `json:"stages"`
}

// Stage returns the stage with the given id.
func (j *Job) Stage(id string) (*Stage, bool) {
	for _, s := range j.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Stage is one task invocation step.
type Stage struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Task    string       `json:"task"`
	Args    Value        `json:"args"`
	If      string       `json:"if,omitempty"`
	Timeout string       `json:"timeout,omitempty"`
	Retry   *RetryPolicy `json:"retry,omitempty"`
}
