package expr

import (
	"fmt"

	"go-workflow/internal/errkind"
)

// SyntaxError reports malformed template or expression text. Offset is the
// byte offset of Fragment within the original string.
type SyntaxError struct {
	Fragment string
	Offset   int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d near %q: %s", e.Offset, e.Fragment, e.Msg)
}

func (e *SyntaxError) Kind() errkind.Kind { return errkind.Syntax }

// ResolutionError reports a path that does not resolve in the scope.
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cannot resolve %q", e.Path)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Kind() errkind.Kind { return errkind.Resolution }

// EvalError reports a built-in method applied to the wrong receiver or
// arguments.
type EvalError struct {
	Method string
	Msg    string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s(): %s", e.Method, e.Msg)
}

func (e *EvalError) Kind() errkind.Kind { return errkind.Interpolation }

// InterpolationError wraps any evaluation failure with the field it
// happened in. Connection resolution reports failures this way.
type InterpolationError struct {
	Field string
	Err   error
}

func (e *InterpolationError) Error() string {
	return fmt.Sprintf("interpolate %s: %v", e.Field, e.Err)
}

func (e *InterpolationError) Unwrap() error { return e.Err }

func (e *InterpolationError) Kind() errkind.Kind { return errkind.Interpolation }
