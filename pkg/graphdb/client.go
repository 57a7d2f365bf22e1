package graphdb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aleksaelezovic/graphdbi/pkg/diag"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/builder"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/queries"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/results"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

// RepositoryManager is implemented by transports that can list and switch
// repositories.
type RepositoryManager interface {
	Repositories(ctx context.Context) ([]Repository, error)
	SetRepository(id string)
	Repository() string
}

// GraphStore is implemented by transports that speak the graph store
// protocol.
type GraphStore interface {
	PutGraph(ctx context.Context, graph, contentType string, payload []byte) error
	DeleteGraph(ctx context.Context, graph string) error
}

// Triple is a projected ?s ?p ?o solution.
type Triple struct {
	Subject   any
	Predicate any
	Object    any
}

// Client is a session against one repository. It owns the prefix map, the
// selected named graph and the reasoning scope used for every query it
// builds. All methods are safe for concurrent use.
type Client struct {
	transport Transport
	validator *validate.Validator
	diag      diag.Sink

	mu       sync.RWMutex
	prefixes *prefix.Map
	graph    string
	explicit bool
	implicit bool
}

// Option configures a Client.
type Option func(*Client)

// WithPrefixes replaces the default prefix map. The map is copied.
func WithPrefixes(m *prefix.Map) Option {
	return func(c *Client) { c.prefixes = m.Clone() }
}

// WithNamedGraph scopes the session to graph without checking that it
// exists. Use SetNamedGraph for a checked switch.
func WithNamedGraph(graph string) Option {
	return func(c *Client) { c.graph = token.StripDelimiters(graph) }
}

// WithScope selects explicit and implicit statements for reads.
func WithScope(explicit, implicit bool) Option {
	return func(c *Client) { c.explicit, c.implicit = explicit, implicit }
}

// WithDiagnostics sets the sink for warnings and errors.
func WithDiagnostics(s diag.Sink) Option {
	return func(c *Client) { c.diag = s }
}

// WithValidator sets the validator, for example one backed by a verdict
// cache.
func WithValidator(v *validate.Validator) Option {
	return func(c *Client) { c.validator = v }
}

// NewClient returns a session that dispatches through t.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		prefixes:  prefix.New(),
		explicit:  true,
		implicit:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.diag = diag.OrDiscard(c.diag)
	if c.validator == nil {
		c.validator = validate.New(validate.WithDiagnostics(c.diag))
	}
	return c
}

// Prefixes returns a copy of the session's prefix map.
func (c *Client) Prefixes() *prefix.Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixes.Clone()
}

// AddPrefix declares or redeclares a prefix.
func (c *Client) AddPrefix(name, iri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefixes.Add(name, iri)
}

// RemovePrefix removes a declared prefix.
func (c *Client) RemovePrefix(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefixes.Remove(name)
}

// NamedGraph returns the selected graph IRI, or "" for the default graph.
func (c *Client) NamedGraph() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// SetNamedGraph selects graph for subsequent queries. "" selects the default
// graph. A graph the repository does not list is selected with a warning.
func (c *Client) SetNamedGraph(ctx context.Context, graph string) error {
	if graph == "" {
		c.mu.Lock()
		c.graph = ""
		c.mu.Unlock()
		return nil
	}
	if !token.IsIRI(graph) {
		return fmt.Errorf("named graph %q is not an absolute IRI", graph)
	}

	graphs, err := c.NamedGraphs(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, g := range graphs {
		if token.SameIRI(g, graph) {
			known = true
			break
		}
	}
	if !known {
		c.diag.Warn("named graph does not exist in the repository", "graph", graph)
	}

	c.mu.Lock()
	c.graph = token.StripDelimiters(graph)
	c.mu.Unlock()
	return nil
}

// Scope returns the explicit and implicit read flags.
func (c *Client) Scope() (explicit, implicit bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.explicit, c.implicit
}

// SetScope changes the explicit and implicit read flags.
func (c *Client) SetScope(explicit, implicit bool) {
	c.mu.Lock()
	c.explicit, c.implicit = explicit, implicit
	c.mu.Unlock()
}

// Repository returns the selected repository id when the transport manages
// repositories.
func (c *Client) Repository() string {
	if rm, ok := c.transport.(RepositoryManager); ok {
		return rm.Repository()
	}
	return ""
}

// Repositories lists the repositories of the server.
func (c *Client) Repositories(ctx context.Context) ([]Repository, error) {
	rm, ok := c.transport.(RepositoryManager)
	if !ok {
		return nil, fmt.Errorf("transport %T cannot list repositories", c.transport)
	}
	return rm.Repositories(ctx)
}

// SetRepository switches to repository id after checking that the server
// lists it.
func (c *Client) SetRepository(ctx context.Context, id string) error {
	rm, ok := c.transport.(RepositoryManager)
	if !ok {
		return fmt.Errorf("transport %T cannot switch repositories", c.transport)
	}
	repos, err := rm.Repositories(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(repos))
	for i, r := range repos {
		if r.ID == id {
			rm.SetRepository(id)
			return nil
		}
		ids[i] = r.ID
	}
	return fmt.Errorf("%w %q, available: %s", ErrUnknownRepository, id, strings.Join(ids, ", "))
}

// Builder returns a query builder bound to the session's prefixes, graph,
// scope and validator.
func (c *Client) Builder() *builder.Builder {
	return builder.New(c.options()...)
}

func (c *Client) options() []builder.Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []builder.Option{
		builder.WithPrefixes(c.prefixes.Clone()),
		builder.WithNamedGraph(c.graph),
		builder.WithScope(c.explicit, c.implicit),
		builder.WithDiagnostics(c.diag),
		builder.WithValidator(c.validator),
	}
}

// Query validates a read query, runs it and decodes the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*results.Response, error) {
	body, err := c.QueryRaw(ctx, query)
	if err != nil {
		return nil, err
	}
	return results.Unmarshal(body)
}

// QueryRaw validates and runs a read query and returns the response body
// untouched.
func (c *Client) QueryRaw(ctx context.Context, query string) ([]byte, error) {
	if err := c.validator.CheckRead(query); err != nil {
		return nil, err
	}
	return c.transport.Dispatch(ctx, query, false)
}

// Update validates and runs an update.
func (c *Client) Update(ctx context.Context, update string) error {
	if err := c.validator.CheckUpdate(update); err != nil {
		return err
	}
	_, err := c.transport.Dispatch(ctx, update, true)
	return err
}

// Run dispatches a query produced by a builder bound to this session. A
// Query that did not come out of Build is refused.
func (c *Client) Run(ctx context.Context, q *builder.Query) (*results.Response, error) {
	if !q.Built() {
		return nil, sparql.InputErrorf("query was not produced by a builder")
	}
	if q.IsUpdate() {
		return nil, c.exec(ctx, q)
	}
	body, err := c.transport.Dispatch(ctx, q.Text(), false)
	if err != nil {
		return nil, err
	}
	return results.Unmarshal(body)
}

func (c *Client) exec(ctx context.Context, q *builder.Query) error {
	if !q.Built() {
		return sparql.InputErrorf("query was not produced by a builder")
	}
	_, err := c.transport.Dispatch(ctx, q.Text(), true)
	return err
}

func (c *Client) ask(ctx context.Context, q *builder.Query, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	resp, err := c.Run(ctx, q)
	if err != nil {
		return false, err
	}
	return resp.Bool()
}

// TripleExists reports whether s p o is stored.
func (c *Client) TripleExists(ctx context.Context, s, p, o any) (bool, error) {
	q, err := queries.TripleExists(s, p, o, c.options()...)
	return c.ask(ctx, q, err)
}

// IRIExists reports whether iri occurs in any of the selected positions.
func (c *Client) IRIExists(ctx context.Context, iri any, pos queries.Positions, filters map[string][]any) (bool, error) {
	q, err := queries.IRIExists(iri, pos, filters, c.options()...)
	return c.ask(ctx, q, err)
}

// IsSubclass reports whether sub rdfs:subClassOf sup is stored.
func (c *Client) IsSubclass(ctx context.Context, sub, sup any) (bool, error) {
	q, err := queries.IsSubclass(sub, sup, c.options()...)
	return c.ask(ctx, q, err)
}

// IsNamedIndividual reports whether iri is typed owl:NamedIndividual.
func (c *Client) IsNamedIndividual(ctx context.Context, iri any) (bool, error) {
	q, err := queries.IsNamedIndividual(iri, c.options()...)
	return c.ask(ctx, q, err)
}

// ClassesOf returns the OWL classes of individual outside the ignored
// prefixes (nil means queries.DefaultIgnoredPrefixes). With localNames the
// class IRIs are reduced to their local names.
func (c *Client) ClassesOf(ctx context.Context, individual any, ignored []string, localNames bool) ([]string, error) {
	q, err := queries.ClassesOf(individual, ignored, c.options()...)
	if err != nil {
		return nil, err
	}
	resp, err := c.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	classes := resp.Strings("class")
	if localNames {
		classes = queries.LocalNames(classes)
	}
	return classes, nil
}

// TriplesGet returns the stored triples matching pattern, with values
// projected to native Go types.
func (c *Client) TriplesGet(ctx context.Context, pattern queries.Pattern) ([]Triple, error) {
	q, err := queries.TriplesGet(pattern, c.options()...)
	if err != nil {
		return nil, err
	}
	resp, err := c.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	rows, err := resp.Rows()
	if err != nil {
		return nil, err
	}
	triples := make([]Triple, 0, len(rows))
	for _, row := range rows {
		triples = append(triples, Triple{Subject: row["s"], Predicate: row["p"], Object: row["o"]})
	}
	return triples, nil
}

// TripleAdd inserts s p o.
func (c *Client) TripleAdd(ctx context.Context, s, p, o any) error {
	q, err := queries.TripleAdd(s, p, o, c.options()...)
	if err != nil {
		return err
	}
	if err := c.exec(ctx, q); err != nil {
		return err
	}
	c.diag.Debug("added triple", "subject", s, "predicate", p, "object", o, "graph", c.NamedGraph())
	return nil
}

// TripleDelete deletes s p o. With checkExist a missing triple is
// ErrTripleNotFound and nothing is sent.
func (c *Client) TripleDelete(ctx context.Context, s, p, o any, checkExist bool) error {
	q, err := queries.TripleDelete(s, p, o, c.options()...)
	if err != nil {
		return err
	}
	if checkExist {
		if err := c.requireTriple(ctx, queries.Pattern{Subject: s, Predicate: p, Object: o}); err != nil {
			return err
		}
	}
	if err := c.exec(ctx, q); err != nil {
		return err
	}
	c.diag.Debug("deleted triple", "subject", s, "predicate", p, "object", o, "graph", c.NamedGraph())
	return nil
}

// TripleUpdate rewrites the old triple with the non-nil positions of
// replacement. A nil old object matches every object. With checkExist a
// missing old triple is ErrTripleNotFound.
func (c *Client) TripleUpdate(ctx context.Context, old, replacement queries.Pattern, checkExist bool) error {
	q, err := queries.TripleUpdate(old, replacement, c.options()...)
	if err != nil {
		return err
	}
	if checkExist {
		if old.Object == nil {
			old.Object = token.Var("o")
		}
		if err := c.requireTriple(ctx, old); err != nil {
			return err
		}
	}
	if err := c.exec(ctx, q); err != nil {
		return err
	}
	c.diag.Debug("updated triple", "from", old.String(), "to", replacement.String(), "graph", c.NamedGraph())
	return nil
}

func (c *Client) requireTriple(ctx context.Context, p queries.Pattern) error {
	ok, err := c.TripleExists(ctx, p.Subject, p.Predicate, p.Object)
	if err != nil {
		return err
	}
	if !ok {
		c.diag.Warn("triple does not exist", "triple", p.String())
		return fmt.Errorf("%w: %s", ErrTripleNotFound, p)
	}
	return nil
}

// NamedGraphs lists the graphs holding at least one triple. The session's
// named graph and scope do not apply.
func (c *Client) NamedGraphs(ctx context.Context) ([]string, error) {
	q, err := queries.NamedGraphs(c.options()...)
	if err != nil {
		return nil, err
	}
	resp, err := c.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.Strings("graph"), nil
}

// PutGraph replaces the content of graph with payload. N-Triples and
// N-Quads payloads are parsed before upload.
func (c *Client) PutGraph(ctx context.Context, graph, contentType string, payload []byte) error {
	gs, err := c.graphStore(graph)
	if err != nil {
		return err
	}
	switch contentType {
	case MediaNTriples, MediaNQuads:
		n, err := CheckNQuads(payload)
		if err != nil {
			return err
		}
		c.diag.Debug("checked payload", "statements", n)
	}
	if err := gs.PutGraph(ctx, token.StripDelimiters(graph), contentType, payload); err != nil {
		return err
	}
	c.diag.Debug("named graph replaced", "graph", graph, "content_type", contentType)
	return nil
}

// ImportJSONLD converts a JSON-LD document to N-Triples and replaces the
// content of graph with it. It returns the number of statements sent.
func (c *Client) ImportJSONLD(ctx context.Context, graph string, doc []byte) (int, error) {
	payload, n, err := JSONLDToNTriples(doc)
	if err != nil {
		return 0, err
	}
	if err := c.PutGraph(ctx, graph, MediaNTriples, payload); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteGraph drops graph.
func (c *Client) DeleteGraph(ctx context.Context, graph string) error {
	gs, err := c.graphStore(graph)
	if err != nil {
		return err
	}
	if err := gs.DeleteGraph(ctx, token.StripDelimiters(graph)); err != nil {
		return err
	}
	c.diag.Debug("named graph deleted", "graph", graph)
	return nil
}

func (c *Client) graphStore(graph string) (GraphStore, error) {
	if !token.IsIRI(graph) {
		return nil, fmt.Errorf("named graph %q is not an absolute IRI", graph)
	}
	gs, ok := c.transport.(GraphStore)
	if !ok {
		return nil, fmt.Errorf("transport %T does not support the graph store protocol", c.transport)
	}
	return gs, nil
}
