package model

// Axis is one named dimension of a matrix.
type Axis struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Strategy declares how a job is replicated: the Cartesian product of Axes,
// minus Exclude matches, plus every Include entry.
type Strategy struct {
	Axes    []Axis `json:"matrix"`
	Exclude []*Map `json:"exclude,omitempty"`
	Include []*Map `json:"include,omitempty"`

	// MaxParallel caps concurrently running instantiations of the job when
	// the executor runs in parallel mode. Zero means no per-job cap.
	MaxParallel int `json:"max_parallel,omitempty"`
}
