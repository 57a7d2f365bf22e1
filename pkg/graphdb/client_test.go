package graphdb_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/internal/graphdbtest"
	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/builder"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/queries"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/results"
)

const (
	exS = "http://example.org/s"
	exP = "http://example.org/p"
	exO = "http://example.org/o"
	exG = "http://example.org/g"
)

type recorder struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (r *recorder) Debug(string, ...any) {}

func (r *recorder) Warn(msg string, args ...any) {
	r.mu.Lock()
	r.warnings = append(r.warnings, fmt.Sprint(append([]any{msg}, args...)...))
	r.mu.Unlock()
}

func (r *recorder) Error(msg string, args ...any) {
	r.mu.Lock()
	r.errors = append(r.errors, fmt.Sprint(append([]any{msg}, args...)...))
	r.mu.Unlock()
}

func newClient(t *testing.T, srv *graphdbtest.Server, opts ...graphdb.Option) *graphdb.Client {
	t.Helper()
	return graphdb.NewClient(newTransport(t, srv, nil), opts...)
}

func TestQueryAndUpdateAreValidated(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	_, err := c.Query(ctx, "SELEC * WHERE { ?s ?p ?o }")
	assert.ErrorIs(t, err, sparql.ErrInvalidQuery)

	err = c.Update(ctx, "SELECT * WHERE { ?s ?p ?o }")
	assert.ErrorIs(t, err, sparql.ErrInvalidQuery)
	assert.Empty(t, srv.Requests(), "invalid strings are never sent")

	resp, err := c.Query(ctx, "SELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Empty(t, resp.Solutions())

	require.NoError(t, c.Update(ctx, "CLEAR DEFAULT"))
	assert.Equal(t, []string{"CLEAR DEFAULT"}, srv.Updates("test"))
}

func TestRunRefusesUnbuiltQuery(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	_, err := c.Run(ctx, &builder.Query{})
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)
	_, err = c.Run(ctx, nil)
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)
	assert.Empty(t, srv.Requests(), "nothing is sent for an unbuilt query")

	q, err := c.Builder().Ask("?s ?p ?o .").Build()
	require.NoError(t, err)
	_, err = c.Run(ctx, q)
	require.NoError(t, err)
	assert.Len(t, srv.Queries("test"), 1)
}

func TestTripleExists(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("<"+exS+"> <"+exP+"> <"+exO+">", results.NewAsk(true))
	c := newClient(t, srv)
	ctx := context.Background()

	ok, err := c.TripleExists(ctx, exS, exP, exO)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TripleExists(ctx, exS, exP, exS)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.TripleExists(ctx, "no iri", exP, exO)
	assert.ErrorIs(t, err, sparql.ErrInvalidIRI)
	assert.Len(t, srv.Queries("test"), 2)
}

func TestIRIExists(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("UNION", results.NewAsk(true))
	c := newClient(t, srv)

	ok, err := c.IRIExists(context.Background(), exS, queries.Positions{Subject: true, Object: true}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.IRIExists(context.Background(), exS, queries.Positions{}, nil)
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)
}

func TestTriplesGet(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("?s ?p ?o", results.NewSelect([]string{"s", "p", "o"}, []map[string]rdf.Term{
		{"s": rdf.NewNamedNode(exS), "p": rdf.NewNamedNode(exP), "o": rdf.NewIntegerLiteral(42)},
		{"s": rdf.NewNamedNode(exS), "p": rdf.NewNamedNode(exP), "o": rdf.NewLiteralWithLanguage("hallo", "de")},
	}))
	c := newClient(t, srv)

	triples, err := c.TriplesGet(context.Background(), queries.Pattern{Subject: exS})
	require.NoError(t, err)
	assert.Equal(t, []graphdb.Triple{
		{Subject: exS, Predicate: exP, Object: int64(42)},
		{Subject: exS, Predicate: exP, Object: "hallo"},
	}, triples)

	assert.Contains(t, srv.Queries("test")[0], "BIND(<"+exS+"> AS ?s)")

	_, err = c.TriplesGet(context.Background(), queries.Pattern{})
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)
}

func TestTripleAddUsesNamedGraph(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv, graphdb.WithNamedGraph("<"+exG+">"))

	require.NoError(t, c.TripleAdd(context.Background(), exS, exP, "text"))
	updates := srv.Updates("test")
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "INSERT DATA {\n  GRAPH <"+exG+"> {")
	assert.Contains(t, updates[0], `"text"^^<http://www.w3.org/2001/XMLSchema#string> .`)
}

func TestTripleDeleteChecksExistence(t *testing.T) {
	srv := graphdbtest.New(t)
	rec := &recorder{}
	c := newClient(t, srv, graphdb.WithDiagnostics(rec))
	ctx := context.Background()

	err := c.TripleDelete(ctx, exS, exP, exO, true)
	assert.ErrorIs(t, err, graphdb.ErrTripleNotFound)
	assert.Empty(t, srv.Updates("test"))
	assert.Len(t, rec.warnings, 1)

	require.NoError(t, c.TripleDelete(ctx, exS, exP, exO, false))
	srv.Answer("ASK", results.NewAsk(true))
	require.NoError(t, c.TripleDelete(ctx, exS, exP, exO, true))

	updates := srv.Updates("test")
	require.Len(t, updates, 2)
	assert.Contains(t, updates[1], "DELETE DATA {\n  <"+exS+"> <"+exP+"> <"+exO+"> .\n}")
}

func TestTripleUpdate(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	err := c.TripleUpdate(ctx, queries.Pattern{Subject: exS, Predicate: exP}, queries.Pattern{Object: 7}, true)
	assert.ErrorIs(t, err, graphdb.ErrTripleNotFound)
	assert.Contains(t, srv.Queries("test")[0], "<"+exS+"> <"+exP+"> ?o .")

	srv.Answer("ASK", results.NewAsk(true))
	require.NoError(t, c.TripleUpdate(ctx, queries.Pattern{Subject: exS, Predicate: exP}, queries.Pattern{Object: 7}, true))

	updates := srv.Updates("test")
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "DELETE {\n  <"+exS+"> <"+exP+"> ?o .\n}")
	assert.Contains(t, updates[0], `INSERT {`+"\n"+`  <`+exS+`> <`+exP+`> "7"^^<http://www.w3.org/2001/XMLSchema#integer> .`)

	err = c.TripleUpdate(ctx, queries.Pattern{Subject: exS, Predicate: exP}, queries.Pattern{}, false)
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)
}

func TestNamedGraphsAndSetNamedGraph(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("GRAPH ?graph", results.NewSelect([]string{"graph"}, []map[string]rdf.Term{
		{"graph": rdf.NewNamedNode(exG)},
	}))
	rec := &recorder{}
	c := newClient(t, srv, graphdb.WithDiagnostics(rec), graphdb.WithScope(true, false))
	ctx := context.Background()

	graphs, err := c.NamedGraphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{exG}, graphs)
	assert.NotContains(t, srv.Queries("test")[0], "FROM", "graph listing ignores the reasoning scope")

	require.NoError(t, c.SetNamedGraph(ctx, "<"+exG+">"))
	assert.Equal(t, exG, c.NamedGraph())
	assert.Empty(t, rec.warnings)

	require.NoError(t, c.SetNamedGraph(ctx, "http://example.org/other"))
	assert.Equal(t, "http://example.org/other", c.NamedGraph())
	assert.Len(t, rec.warnings, 1)

	assert.Error(t, c.SetNamedGraph(ctx, "not a graph"))

	require.NoError(t, c.SetNamedGraph(ctx, ""))
	assert.Empty(t, c.NamedGraph())
}

func TestScopeIsRendered(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv, graphdb.WithScope(true, false))

	_, err := c.TriplesGet(context.Background(), queries.Pattern{Predicate: exP})
	require.NoError(t, err)
	assert.Contains(t, srv.Queries("test")[0], "FROM onto:explicit")

	c.SetScope(false, true)
	explicit, implicit := c.Scope()
	assert.False(t, explicit)
	assert.True(t, implicit)
}

func TestSetRepository(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithRepositories("test", "other"))
	c := newClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.SetRepository(ctx, "other"))
	assert.Equal(t, "other", c.Repository())

	err := c.SetRepository(ctx, "nope")
	assert.ErrorIs(t, err, graphdb.ErrUnknownRepository)
	assert.Contains(t, err.Error(), "test, other")
	assert.Equal(t, "other", c.Repository())

	_, err = c.Query(ctx, "ASK {}")
	require.NoError(t, err)
	assert.Len(t, srv.Queries("other"), 1)
}

func TestPrefixes(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.AddPrefix("ex", "http://example.org/"))
	_, err := c.TripleExists(ctx, "ex:s", "ex:p", "ex:o")
	require.NoError(t, err)
	q := srv.Queries("test")[0]
	assert.Contains(t, q, "PREFIX ex: <http://example.org/>\n")
	assert.Contains(t, q, "ex:s ex:p ex:o .")

	require.NoError(t, c.RemovePrefix("ex"))
	assert.False(t, c.Prefixes().Has("ex"))
	_, err = c.TripleExists(ctx, "ex:s", "ex:p", "ex:o")
	assert.ErrorIs(t, err, sparql.ErrInvalidIRI)
}

func TestOWLHelpers(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("subClassOf", results.NewAsk(true))
	srv.Answer("owl#NamedIndividual", results.NewAsk(true))
	srv.Answer("?class", results.NewSelect([]string{"class"}, []map[string]rdf.Term{
		{"class": rdf.NewNamedNode("http://example.org/onto#Dog")},
		{"class": rdf.NewNamedNode("http://example.org/onto/Pet")},
	}))
	c := newClient(t, srv)
	ctx := context.Background()

	ok, err := c.IsSubclass(ctx, "http://example.org/onto#Dog", "http://example.org/onto#Animal")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsNamedIndividual(ctx, "http://example.org/rex")
	require.NoError(t, err)
	assert.True(t, ok)

	classes, err := c.ClassesOf(ctx, "http://example.org/rex", nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog", "Pet"}, classes)

	classes, err = c.ClassesOf(ctx, "http://example.org/rex", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.org/onto#Dog", "http://example.org/onto/Pet"}, classes)
}

func TestGraphUploads(t *testing.T) {
	srv := graphdbtest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	err := c.PutGraph(ctx, exG, graphdb.MediaNTriples, []byte("this is not a triple\n"))
	assert.Error(t, err)
	assert.Empty(t, srv.Requests())

	err = c.PutGraph(ctx, "no iri", graphdb.MediaTurtle, []byte(""))
	assert.Error(t, err)

	n, err := c.ImportJSONLD(ctx, "<"+exG+">", []byte(`{
		"@context": {"name": "http://xmlns.com/foaf/0.1/name"},
		"@id": "http://example.org/alice",
		"name": "Alice"
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, ok := srv.Graph(exG)
	require.True(t, ok)
	assert.Equal(t, graphdb.MediaNTriples, g.ContentType)
	assert.Contains(t, g.Payload, `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice"`)

	require.NoError(t, c.DeleteGraph(ctx, exG))
	_, ok = srv.Graph(exG)
	assert.False(t, ok)
}
