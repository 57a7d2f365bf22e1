// Package diag defines the diagnostics sink injected into the query builder,
// the validator and the client in place of a process-wide logger.
package diag

import (
	"io"
	"log/slog"
)

// Sink receives diagnostics. *slog.Logger satisfies it.
type Sink interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Discard returns a sink that drops everything.
func Discard() Sink {
	return discard
}

// OrDiscard returns s, or the discarding sink when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return discard
	}
	return s
}
