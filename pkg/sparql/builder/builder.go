// Package builder assembles SPARQL query and update strings from typed blocks
// and refuses to hand out any string that fails grammar validation.
//
// A Builder is single-use and not safe for concurrent use. The prefix map it
// is given is read at render time, so it must not be modified while a build
// is in flight.
package builder

import (
	"errors"
	"strings"

	"github.com/aleksaelezovic/graphdbi/pkg/diag"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

// ErrNoBlocks is returned when rendering a builder that holds no blocks.
var ErrNoBlocks error = &sparql.InvalidInputError{Message: "query has no blocks"}

// Query is a rendered string that passed grammar validation. Only Build
// produces a non-zero Query and it is never modified afterwards.
type Query struct {
	text string
	form Form
}

// Text returns the query or update string.
func (q *Query) Text() string {
	return q.text
}

// Form returns the form of the first block.
func (q *Query) Form() Form {
	return q.form
}

// IsUpdate reports whether the query must be sent as an update.
func (q *Query) IsUpdate() bool {
	return q.form.IsUpdate()
}

// Built reports whether q came out of Build. The zero Query did not.
func (q *Query) Built() bool {
	return q != nil && q.text != ""
}

func (q *Query) String() string {
	return q.text
}

// Builder accumulates blocks.
type Builder struct {
	prefixes  *prefix.Map
	scope     Scope
	diag      diag.Sink
	validator *validate.Validator
	blocks    []Block
	err       error
}

// Option configures a Builder.
type Option func(*Builder)

// WithPrefixes sets the prefix map rendered as the preamble. The default is
// prefix.New().
func WithPrefixes(m *prefix.Map) Option {
	return func(b *Builder) { b.prefixes = m }
}

// WithNamedGraph scopes every block to the named graph iri. An empty iri
// means the default graph.
func WithNamedGraph(iri string) Option {
	return func(b *Builder) {
		if iri == "" {
			b.scope.Graph = ""
			return
		}
		if !token.IsIRI(iri) {
			b.fail(&sparql.InvalidIRIError{Value: iri, Position: "graph", Reason: "named graph must be an absolute IRI"})
			return
		}
		b.scope.Graph = token.StripDelimiters(iri)
	}
}

// WithScope restricts reads to explicit or implicit statements. Setting both
// or neither leaves the store default in place.
func WithScope(explicit, implicit bool) Option {
	return func(b *Builder) {
		b.scope.Explicit = explicit
		b.scope.Implicit = implicit
	}
}

// WithDiagnostics sets the sink for warnings and validation failures.
func WithDiagnostics(s diag.Sink) Option {
	return func(b *Builder) { b.diag = s }
}

// WithValidator replaces the validator used by Build.
func WithValidator(v *validate.Validator) Option {
	return func(b *Builder) { b.validator = v }
}

// New returns an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{prefixes: prefix.New()}
	for _, opt := range opts {
		opt(b)
	}
	if b.validator == nil {
		b.validator = validate.New(validate.WithDiagnostics(b.diag))
	}
	b.scope.OntoDeclared = ontoDeclared(b.prefixes)
	return b
}

func ontoDeclared(m *prefix.Map) bool {
	iri, ok := m.Lookup("onto")
	return ok && token.SameIRI(iri, prefix.Onto)
}

// Err returns the first error recorded while adding blocks.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Prefixes returns the prefix map rendered as the preamble.
func (b *Builder) Prefixes() *prefix.Map {
	return b.prefixes
}

// Normalizer returns a normalizer bound to the builder's prefixes and sink.
func (b *Builder) Normalizer() token.Normalizer {
	return token.Normalizer{Prefixes: b.prefixes, Diag: b.diag}
}

// Add appends a block.
func (b *Builder) Add(blk Block) *Builder {
	b.blocks = append(b.blocks, blk)
	return b
}

// Select appends SELECT vars WHERE { where }. An empty vars renders as *.
func (b *Builder) Select(vars []string, where ...string) *Builder {
	return b.Add(&SelectBlock{Scope: b.scope, Variables: variables(vars), Where: where})
}

// SelectDistinct is Select with DISTINCT.
func (b *Builder) SelectDistinct(vars []string, where ...string) *Builder {
	return b.Add(&SelectBlock{Scope: b.scope, Modifier: "DISTINCT", Variables: variables(vars), Where: where})
}

// SelectReduced is Select with REDUCED.
func (b *Builder) SelectReduced(vars []string, where ...string) *Builder {
	return b.Add(&SelectBlock{Scope: b.scope, Modifier: "REDUCED", Variables: variables(vars), Where: where})
}

// Construct appends CONSTRUCT { template } WHERE { where }.
func (b *Builder) Construct(template []token.Triple, where ...string) *Builder {
	return b.Add(&ConstructBlock{Scope: b.scope, Template: template, Where: where})
}

// Describe appends DESCRIBE resources. Resources are IRIs or variables.
func (b *Builder) Describe(resources []string, where ...string) *Builder {
	n := b.Normalizer()
	toks := make([]token.Token, 0, len(resources))
	for _, r := range resources {
		if strings.HasPrefix(r, "?") || strings.HasPrefix(r, "$") {
			toks = append(toks, token.Var(r))
			continue
		}
		tok, err := n.PrepareSubjectOrPredicate(r, "resource")
		if err != nil {
			b.fail(err)
			return b
		}
		toks = append(toks, tok)
	}
	return b.Add(&DescribeBlock{Scope: b.scope, Resources: toks, Where: where})
}

// Ask appends ASK WHERE { where }.
func (b *Builder) Ask(where ...string) *Builder {
	return b.Add(&AskBlock{Scope: b.scope, Where: where})
}

// InsertData appends INSERT DATA { triples }. Triples with variables are
// rejected.
func (b *Builder) InsertData(triples ...token.Triple) *Builder {
	if err := groundTriples("INSERT DATA", triples); err != nil {
		b.fail(err)
		return b
	}
	return b.Add(&InsertDataBlock{Scope: b.scope, Triples: triples})
}

// DeleteData appends DELETE DATA { triples }. Triples with variables are
// rejected.
func (b *Builder) DeleteData(triples ...token.Triple) *Builder {
	if err := groundTriples("DELETE DATA", triples); err != nil {
		b.fail(err)
		return b
	}
	return b.Add(&DeleteDataBlock{Scope: b.scope, Triples: triples})
}

// DeleteInsert appends DELETE { del } INSERT { ins } WHERE { where }.
func (b *Builder) DeleteInsert(del, ins []token.Triple, where ...string) *Builder {
	return b.Add(&DeleteInsertBlock{Scope: b.scope, Delete: del, Insert: ins, Where: where})
}

func variables(vars []string) []token.Token {
	toks := make([]token.Token, 0, len(vars))
	for _, v := range vars {
		if v == "*" {
			continue
		}
		toks = append(toks, token.Var(v))
	}
	return toks
}

func groundTriples(op string, triples []token.Triple) error {
	for _, t := range triples {
		if t.HasVariable() {
			return sparql.InputErrorf("%s cannot contain variables: %s", op, t.Line())
		}
	}
	return nil
}

// Render joins the prefix preamble and the blocks. Update operations are
// separated by " ;" so multi-operation requests stay grammatical.
func (b *Builder) Render() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if len(b.blocks) == 0 {
		return "", ErrNoBlocks
	}

	update := b.blocks[0].Form().IsUpdate()
	bodies := make([]string, len(b.blocks))
	for i, blk := range b.blocks {
		if blk.Form().IsUpdate() != update {
			return "", sparql.InputErrorf("cannot mix %s with %s in one request", b.blocks[0].Form(), blk.Form())
		}
		bodies[i] = blk.Render()
	}

	sep := "\n"
	if update {
		sep = " ;\n"
	}
	return b.prefixes.Preamble() + strings.Join(bodies, sep), nil
}

// Build renders and validates against the grammar of the first block.
// Grammar failures are returned as *sparql.InvalidQueryError.
func (b *Builder) Build() (*Query, error) {
	text, err := b.Render()
	if err != nil {
		return nil, err
	}
	form := b.blocks[0].Form()
	if err := b.validator.Check(text, form.IsUpdate()); err != nil {
		return nil, err
	}
	return &Query{text: text, form: form}, nil
}

// ToString returns the validated text, or "" and false when nothing valid
// could be produced. Prefer Build.
func (b *Builder) ToString() (string, bool) {
	q, err := b.Build()
	if err != nil {
		var qErr *sparql.InvalidQueryError
		if !errors.As(err, &qErr) {
			diag.OrDiscard(b.diag).Warn("no query produced", "error", err)
		}
		return "", false
	}
	return q.Text(), true
}
