package conn

import (
	"fmt"
	"strings"

	"go-workflow/internal/errkind"
)

// AmbiguousDescriptorError reports a descriptor that sets both url and
// discrete fields, or neither.
type AmbiguousDescriptorError struct {
	Name   string
	Fields []string
}

func (e *AmbiguousDescriptorError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("connection %q: neither url nor any of host/port/user/pwd/endpoint/database is set", e.Name)
	}
	return fmt.Sprintf("connection %q: url cannot be combined with %s", e.Name, strings.Join(e.Fields, ", "))
}

func (e *AmbiguousDescriptorError) Kind() errkind.Kind { return errkind.AmbiguousDescriptor }

// UnknownTypeError reports a type tag with no registered driver.
type UnknownTypeError struct {
	Name string
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("connection %q: unknown type %q", e.Name, e.Type)
}

func (e *UnknownTypeError) Kind() errkind.Kind { return errkind.UnknownType }

// MalformedURLError reports a url that cannot be parsed or does not suit the
// driver. The url itself is never included since it may hold credentials.
type MalformedURLError struct {
	Name string
	Msg  string
	Err  error
}

func (e *MalformedURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection %q: malformed url: %s: %v", e.Name, e.Msg, e.Err)
	}
	return fmt.Sprintf("connection %q: malformed url: %s", e.Name, e.Msg)
}

func (e *MalformedURLError) Unwrap() error { return e.Err }

func (e *MalformedURLError) Kind() errkind.Kind { return errkind.MalformedURL }

// NotFoundError reports a connection name missing from the catalog.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("connection %q is not defined", e.Name)
}

func (e *NotFoundError) Kind() errkind.Kind { return errkind.Configuration }
