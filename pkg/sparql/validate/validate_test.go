package validate

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/parser"
)

func TestFixtures(t *testing.T) {
	assert.True(t, ValidateRead(`SELECT * WHERE { ?s ?p ?o . }`))
	assert.False(t, ValidateRead(`SELECT * WHERE { ?s ?p }`))
	assert.True(t, ValidateUpdate(`DELETE DATA { GRAPH <http://example.org/g> { <http://example.org/s> <http://example.org/p> "o" . } }`))
	assert.False(t, ValidateUpdate(`DELETE DATA { GRAPH <http://example.org/g> { <http://example.org/s> <http://example.org/p> } }`))
}

func TestGrammarsAreDistinct(t *testing.T) {
	q := `SELECT * WHERE { ?s ?p ?o }`
	u := `INSERT DATA { <http://example.org/s> <http://example.org/p> 1 }`

	assert.True(t, ValidateRead(q))
	assert.False(t, ValidateUpdate(q))
	assert.True(t, ValidateUpdate(u))
	assert.False(t, ValidateRead(u))
}

func TestCheckReturnsInvalidQueryError(t *testing.T) {
	err := CheckRead(`ASK { ?s ?p `)
	require.Error(t, err)
	assert.ErrorIs(t, err, sparql.ErrInvalidQuery)

	var qErr *sparql.InvalidQueryError
	require.ErrorAs(t, err, &qErr)
	assert.False(t, qErr.Update)
	assert.Equal(t, `ASK { ?s ?p `, qErr.Query)

	var se *parser.SyntaxError
	assert.ErrorAs(t, err, &se)

	err = CheckUpdate(`DELETE DATA { ?s ?p ?o }`)
	require.ErrorAs(t, err, &qErr)
	assert.True(t, qErr.Update)
}

func TestFailuresReachDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	v := New(WithDiagnostics(slog.New(slog.NewTextHandler(&buf, nil))))

	assert.False(t, v.ValidateRead(`SELECT WHERE {}`))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "failed grammar validation")

	buf.Reset()
	assert.True(t, v.ValidateRead(`SELECT * {}`))
	assert.Empty(t, buf.String())
}

type memoryCache struct {
	mu   sync.Mutex
	m    map[string]bool
	gets int
	puts int
}

func (c *memoryCache) Get(grammar, query string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.m[grammar+"\x00"+query]
	return v, ok
}

func (c *memoryCache) Put(grammar, query string, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.m[grammar+"\x00"+query] = valid
}

func TestVerdictCache(t *testing.T) {
	cache := &memoryCache{m: map[string]bool{}}
	v := New(WithCache(cache))

	q := `SELECT * WHERE { ?s ?p ?o }`
	assert.True(t, v.ValidateRead(q))
	assert.Equal(t, 1, cache.puts)

	assert.True(t, v.ValidateRead(q))
	assert.Equal(t, 1, cache.puts, "positive verdict served from cache")

	// Same text under the other grammar is a separate entry.
	assert.False(t, v.ValidateUpdate(q))
	assert.Equal(t, 2, cache.puts)

	// A poisoned positive entry is trusted.
	cache.m[GrammarQuery+"\x00broken"] = true
	assert.True(t, v.ValidateRead("broken"))

	// Negative entries are re-parsed so the error carries detail.
	err := v.CheckRead(`SELECT WHERE {}`)
	require.Error(t, err)
	err = v.CheckRead(`SELECT WHERE {}`)
	var se *parser.SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestNilValidator(t *testing.T) {
	var v *Validator
	assert.True(t, v.ValidateRead(`ASK {}`))
	assert.Error(t, v.Check(`ASK {`, false))
}
