// Package validate gates assembled SPARQL strings on the SPARQL 1.1 query and
// update grammars before they are sent anywhere.
package validate

import (
	"github.com/aleksaelezovic/graphdbi/pkg/diag"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/parser"
)

// Grammar entry points, also used as verdict cache namespaces.
const (
	GrammarQuery  = "query"
	GrammarUpdate = "update"
)

// VerdictCache remembers grammar verdicts for query strings.
type VerdictCache interface {
	Get(grammar, query string) (valid, found bool)
	Put(grammar, query string, valid bool)
}

// Validator checks query and update strings. The zero value is usable.
type Validator struct {
	diag  diag.Sink
	cache VerdictCache
}

// Option configures a Validator.
type Option func(*Validator)

// WithDiagnostics sets the sink that receives validation failures.
func WithDiagnostics(s diag.Sink) Option {
	return func(v *Validator) { v.diag = s }
}

// WithCache consults c before parsing and records every verdict in it.
func WithCache(c VerdictCache) Option {
	return func(v *Validator) { v.cache = c }
}

// New returns a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateRead reports whether query parses as a SPARQL 1.1 query.
func (v *Validator) ValidateRead(query string) bool {
	return v.CheckRead(query) == nil
}

// ValidateUpdate reports whether update parses as a SPARQL 1.1 update.
func (v *Validator) ValidateUpdate(update string) bool {
	return v.CheckUpdate(update) == nil
}

// CheckRead returns an *sparql.InvalidQueryError wrapping the
// *parser.SyntaxError when query does not parse.
func (v *Validator) CheckRead(query string) error {
	return v.check(GrammarQuery, query, func(s string) error {
		_, err := parser.Parse(s)
		return err
	})
}

// CheckUpdate is CheckRead for the update grammar.
func (v *Validator) CheckUpdate(update string) error {
	return v.check(GrammarUpdate, update, func(s string) error {
		_, err := parser.ParseUpdate(s)
		return err
	})
}

// Check dispatches to CheckUpdate or CheckRead.
func (v *Validator) Check(query string, update bool) error {
	if update {
		return v.CheckUpdate(query)
	}
	return v.CheckRead(query)
}

func (v *Validator) check(grammar, query string, parse func(string) error) error {
	// A cached negative verdict is re-parsed to recover the error detail.
	if v != nil && v.cache != nil {
		if valid, found := v.cache.Get(grammar, query); found && valid {
			return nil
		}
	}

	err := parse(query)

	var sink diag.Sink
	if v != nil {
		sink = v.diag
		if v.cache != nil {
			v.cache.Put(grammar, query, err == nil)
		}
	}
	if err == nil {
		return nil
	}

	diag.OrDiscard(sink).Error("SPARQL "+grammar+" failed grammar validation", "error", err, "query", query)
	return &sparql.InvalidQueryError{Query: query, Update: grammar == GrammarUpdate, Err: err}
}

var std = New()

// ValidateRead reports whether query parses as a SPARQL 1.1 query.
func ValidateRead(query string) bool { return std.ValidateRead(query) }

// ValidateUpdate reports whether update parses as a SPARQL 1.1 update.
func ValidateUpdate(update string) bool { return std.ValidateUpdate(update) }

// CheckRead validates query without diagnostics or caching.
func CheckRead(query string) error { return std.CheckRead(query) }

// CheckUpdate validates update without diagnostics or caching.
func CheckUpdate(update string) error { return std.CheckUpdate(update) }
