package builder

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
)

const (
	exS  = "http://example.org/s"
	exP  = "http://example.org/p"
	exO  = "http://example.org/o"
	exO2 = "http://example.org/o2"
	exG  = "http://example.org/g"
)

func triple(t *testing.T, s, p, o any) token.Triple {
	t.Helper()
	tr, err := token.NewTriple(s, p, o, nil)
	require.NoError(t, err)
	return tr
}

func TestGolden(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *Builder
	}{
		{
			name: "select_scoped",
			build: func(t *testing.T) *Builder {
				return New(WithNamedGraph("http://example.org/graph"), WithScope(true, false)).
					Select([]string{"s", "?label"}, "?s rdfs:label ?label .", `FILTER(LANG(?label) = "en")`)
			},
		},
		{
			name: "select_implicit_absolute",
			build: func(t *testing.T) *Builder {
				return New(WithPrefixes(prefix.Empty()), WithScope(false, true)).
					Select(nil, "?s ?p ?o .")
			},
		},
		{
			name: "ask_named_graph",
			build: func(t *testing.T) *Builder {
				return New(WithPrefixes(prefix.Empty()), WithNamedGraph("<"+exG+">")).
					Ask("<" + exS + "> ?p ?o .")
			},
		},
		{
			name: "insert_data_named_graph",
			build: func(t *testing.T) *Builder {
				return New(WithPrefixes(prefix.Empty()), WithNamedGraph(exG)).
					InsertData(triple(t, exS, exP, 42), triple(t, exS, exP, "hello world"))
			},
		},
		{
			name: "delete_insert_with",
			build: func(t *testing.T) *Builder {
				return New(WithPrefixes(prefix.Empty()), WithNamedGraph(exG)).
					DeleteInsert(
						[]token.Triple{triple(t, exS, exP, token.Var("o"))},
						[]token.Triple{triple(t, exS, exP, "new")},
						"<"+exS+"> <"+exP+"> ?o .",
					)
			},
		},
		{
			name: "update_sequence",
			build: func(t *testing.T) *Builder {
				return New(WithPrefixes(prefix.Empty())).
					DeleteData(triple(t, exS, exP, exO)).
					InsertData(triple(t, exS, exP, exO2))
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.build(t).Build()
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(q.Text()))
		})
	}
}

func TestBuildKinds(t *testing.T) {
	q, err := New().Select(nil, "?s ?p ?o .").Build()
	require.NoError(t, err)
	assert.False(t, q.IsUpdate())
	assert.Equal(t, FormSelect, q.Form())

	q, err = New().InsertData(triple(t, exS, exP, exO)).Build()
	require.NoError(t, err)
	assert.True(t, q.IsUpdate())
	assert.Equal(t, "INSERT DATA", q.Form().String())
}

func TestRenderDeterministic(t *testing.T) {
	build := func() string {
		m := prefix.New()
		require.NoError(t, m.Add("ex", "http://example.org/"))
		q, err := New(WithPrefixes(m), WithNamedGraph(exG)).
			SelectDistinct([]string{"s"}, "?s a ex:Thing .").
			Build()
		require.NoError(t, err)
		return q.Text()
	}
	first := build()
	for range 5 {
		assert.Equal(t, first, build())
	}
}

func TestScopeFlags(t *testing.T) {
	tests := []struct {
		name               string
		explicit, implicit bool
		want, notWant      string
	}{
		{"explicit only", true, false, "FROM onto:explicit", "onto:implicit"},
		{"implicit only", false, true, "FROM onto:implicit", "onto:explicit"},
		{"both", true, true, "", "FROM onto:"},
		{"neither", false, false, "", "FROM onto:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(WithScope(tt.explicit, tt.implicit)).Select(nil, "?s ?p ?o .").Build()
			require.NoError(t, err)
			if tt.want != "" {
				assert.Contains(t, q.Text(), tt.want)
			}
			assert.NotContains(t, q.Text(), tt.notWant)
		})
	}
}

func TestOntoOverwrittenFallsBackToAbsolute(t *testing.T) {
	m := prefix.New()
	require.NoError(t, m.Add("onto", "http://example.org/onto#"))

	q, err := New(WithPrefixes(m), WithScope(true, false)).Select(nil, "?s ?p ?o .").Build()
	require.NoError(t, err)
	assert.Contains(t, q.Text(), "FROM <http://www.ontotext.com/explicit>")
}

func TestSelectUsesFromNotGraph(t *testing.T) {
	q, err := New(WithNamedGraph(exG)).Select([]string{"s"}, "?s ?p ?o .").Build()
	require.NoError(t, err)
	assert.Contains(t, q.Text(), "FROM <"+exG+">")
	assert.NotContains(t, q.Text(), "GRAPH")
}

func TestNoNamedGraphLeavesContentUnwrapped(t *testing.T) {
	text, err := New(WithPrefixes(prefix.Empty())).DeleteData(triple(t, exS, exP, exO)).Render()
	require.NoError(t, err)
	assert.Equal(t, "DELETE DATA {\n  <"+exS+"> <"+exP+"> <"+exO+"> .\n}", text)
}

func TestDeleteInsertClauseOrder(t *testing.T) {
	text, err := New(WithPrefixes(prefix.Empty())).
		DeleteInsert(nil, []token.Triple{triple(t, exS, exP, exO)}).
		Render()
	require.NoError(t, err)

	del := bytes.Index([]byte(text), []byte("DELETE {}"))
	ins := bytes.Index([]byte(text), []byte("INSERT {"))
	where := bytes.Index([]byte(text), []byte("WHERE {"))
	require.GreaterOrEqual(t, del, 0)
	assert.Less(t, del, ins)
	assert.Less(t, ins, where)
	assert.NotContains(t, text, "WITH")
}

func TestRenderErrors(t *testing.T) {
	_, err := New().Render()
	assert.ErrorIs(t, err, ErrNoBlocks)
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)

	_, err = New().Ask("?s ?p ?o .").InsertData(triple(t, exS, exP, exO)).Render()
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)

	_, err = New().InsertData(triple(t, exS, exP, token.Var("o"))).Render()
	assert.ErrorIs(t, err, sparql.ErrInvalidInput)

	_, err = New(WithNamedGraph("not a graph")).Ask().Render()
	assert.ErrorIs(t, err, sparql.ErrInvalidIRI)

	_, err = New().Describe([]string{"plain words"}).Render()
	assert.ErrorIs(t, err, sparql.ErrInvalidIRI)
}

func TestBuildRejectsInvalidGrammar(t *testing.T) {
	_, err := New().Select([]string{"s"}, "?s ?p").Build()
	require.Error(t, err)

	var qErr *sparql.InvalidQueryError
	require.ErrorAs(t, err, &qErr)
	assert.False(t, qErr.Update)
	assert.Contains(t, qErr.Query, "?s ?p")
}

func TestToString(t *testing.T) {
	var buf bytes.Buffer
	sink := slog.New(slog.NewTextHandler(&buf, nil))

	text, ok := New(WithDiagnostics(sink)).Ask("?s ?p ?o .").ToString()
	assert.True(t, ok)
	assert.Contains(t, text, "ASK WHERE {")

	text, ok = New(WithDiagnostics(sink)).Ask("?s ?p").ToString()
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Contains(t, buf.String(), "failed grammar validation")

	buf.Reset()
	text, ok = New(WithDiagnostics(sink)).ToString()
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Contains(t, buf.String(), "no query produced")
}

func TestConstructAndDescribe(t *testing.T) {
	q, err := New().
		Construct([]token.Triple{triple(t, token.Var("s"), "rdfs:label", token.Var("l"))}, "?s rdfs:label ?l .").
		Build()
	require.NoError(t, err)
	assert.Equal(t, FormConstruct, q.Form())

	q, err = New(WithNamedGraph(exG)).Describe([]string{exS, "?x"}, "?x ?p <"+exS+"> .").Build()
	require.NoError(t, err)
	assert.Contains(t, q.Text(), "DESCRIBE <"+exS+"> ?x\nFROM <"+exG+">")

	q, err = New(WithPrefixes(prefix.Empty())).Describe([]string{exS}).Build()
	require.NoError(t, err)
	assert.Equal(t, "DESCRIBE <"+exS+">", q.Text())
}

func TestSelectModifiers(t *testing.T) {
	q, err := New(WithPrefixes(prefix.Empty())).
		Add(&SelectBlock{
			Modifier:  "REDUCED",
			Variables: []token.Token{token.Var("s")},
			Where:     []string{"?s ?p ?o ."},
			OrderBy:   []string{"DESC(?s)"},
			Limit:     10,
			Offset:    20,
		}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT REDUCED ?s\nWHERE {\n  ?s ?p ?o .\n}\nORDER BY DESC(?s)\nLIMIT 10\nOFFSET 20", q.Text())
}
