// Package sparql holds the error taxonomy shared by the query construction
// packages beneath it.
//
// Classification and structural errors are raised at the point of malformed
// input. Grammar failures surface as *InvalidQueryError from the raising
// validation paths.
package sparql

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching. Every typed error below unwraps to one of
// them.
var (
	ErrInvalidIRI   = errors.New("invalid IRI")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidQuery = errors.New("invalid SPARQL")
)

// InvalidIRIError reports a value that had to be an IRI but classifies as
// neither an absolute nor a shorthand IRI.
type InvalidIRIError struct {
	Value    any
	Position string // "subject", "predicate", "object", "graph", ...
	Reason   string
}

func (e *InvalidIRIError) Error() string {
	msg := fmt.Sprintf("invalid IRI %q", fmt.Sprint(e.Value))
	if e.Position != "" {
		msg = fmt.Sprintf("invalid %s IRI %q", e.Position, fmt.Sprint(e.Value))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidIRIError) Unwrap() error { return ErrInvalidIRI }

// InvalidInputError reports a structurally invalid combination of inputs,
// such as a literal in subject position or an existence query without any
// triple position.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Message
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// InputErrorf builds an *InvalidInputError.
func InputErrorf(format string, args ...any) error {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// InvalidQueryError reports an assembled query or update string that failed
// grammar validation.
type InvalidQueryError struct {
	Query  string
	Update bool
	Err    error
}

func (e *InvalidQueryError) Error() string {
	kind := "query"
	if e.Update {
		kind = "update"
	}
	if e.Err == nil {
		return "invalid SPARQL " + kind
	}
	return fmt.Sprintf("invalid SPARQL %s: %v", kind, e.Err)
}

// Unwrap exposes both the sentinel and the underlying parse error.
func (e *InvalidQueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidQuery}
	}
	return []error{ErrInvalidQuery, e.Err}
}
