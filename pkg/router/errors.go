package router

import (
	"errors"
	"fmt"
	"strings"
)

// Route table construction and path generation errors.
var (
	ErrEmptyName      = errors.New("route name is empty")
	ErrDuplicateName  = errors.New("duplicate route name")
	ErrInvalidPattern = errors.New("invalid route pattern")
	ErrNilView        = errors.New("route has no view")
	ErrUnknownRoute   = errors.New("unknown route")
	ErrMissingParam   = errors.New("missing route parameter")
	ErrInvalidParam   = errors.New("invalid route parameter")
)

// RouteError ties a table error to the offending entry.
type RouteError struct {
	// Index is the position of the entry in the table
	Index int

	// Name is the route name, possibly empty
	Name string

	// Path is the route pattern
	Path string

	// Err is the underlying sentinel
	Err error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route #%d %q (%s): %v", e.Index, e.Name, e.Path, e.Err)
}

// Unwrap returns the underlying sentinel for errors.Is.
func (e *RouteError) Unwrap() error {
	return e.Err
}

// TableError wraps every problem found while building a table.
type TableError struct {
	Errors []*RouteError
}

func (e *TableError) Error() string {
	if len(e.Errors) == 0 {
		return "no route table errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d route table errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *TableError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}
