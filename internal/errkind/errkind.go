// Package errkind classifies orchestration errors so reports can name the
// failure kind without depending on the package that produced it.
package errkind

import (
	"context"
	"errors"
)

// Kind names one class of failure.
type Kind string

const (
	Unknown             Kind = "unknown"
	Configuration       Kind = "configuration"
	Interpolation       Kind = "interpolation"
	Resolution          Kind = "resolution"
	Syntax              Kind = "syntax"
	AmbiguousDescriptor Kind = "ambiguous_descriptor"
	UnknownType         Kind = "unknown_type"
	MalformedURL        Kind = "malformed_url"
	ParamValidation     Kind = "param_validation"
	TaskDispatch        Kind = "task_dispatch"
	Cancelled           Kind = "cancelled"
)

// Kinded is implemented by every typed error in this module.
type Kinded interface {
	error
	Kind() Kind
}

// Of returns the kind of the outermost classified error in err's chain.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if k, ok := err.(Kinded); ok && k.Kind() == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ConfigError reports a malformed document: a pipeline or descriptor shape
// the engine cannot run.
type ConfigError struct {
	Document string
	Field    string
	Msg      string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Document != "" && e.Field != "":
		return "configuration error in " + e.Document + " (" + e.Field + "): " + e.Msg
	case e.Document != "":
		return "configuration error in " + e.Document + ": " + e.Msg
	case e.Field != "":
		return "configuration error (" + e.Field + "): " + e.Msg
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigError) Kind() Kind { return Configuration }
