package graphdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoRepository is returned when a repository-scoped request is made
	// before a repository was selected.
	ErrNoRepository = errors.New("no repository selected")
	// ErrUnknownRepository is returned by SetRepository for ids the server
	// does not list.
	ErrUnknownRepository = errors.New("unknown repository")
	// ErrTripleNotFound is returned by checked deletes and updates when the
	// triple is not stored.
	ErrTripleNotFound = errors.New("triple does not exist")
	// ErrLogin is returned when no GraphDB token could be obtained.
	ErrLogin = errors.New("unable to obtain a GraphDB token")
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.URL, e.Status, body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
