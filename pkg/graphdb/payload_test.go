package graphdb_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
)

func TestCheckNQuads(t *testing.T) {
	n, err := graphdb.CheckNQuads([]byte(
		"<http://example.org/a> <http://example.org/p> \"x\" .\n" +
			"<http://example.org/a> <http://example.org/p> <http://example.org/b> <http://example.org/g> .\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = graphdb.CheckNQuads(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = graphdb.CheckNQuads([]byte("<http://example.org/a> <http://example.org/p>\n"))
	assert.Error(t, err)
}

func TestJSONLDToNTriplesFlattensGraphs(t *testing.T) {
	out, n, err := graphdb.JSONLDToNTriples([]byte(`{
		"@context": {"ex": "http://example.org/"},
		"@id": "ex:g",
		"@graph": [
			{"@id": "ex:a", "ex:p": "v"},
			{"@id": "ex:b", "ex:p": {"@id": "ex:a"}}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	text := string(out)
	assert.Contains(t, text, `<http://example.org/a> <http://example.org/p> "v"`)
	assert.Contains(t, text, "<http://example.org/b> <http://example.org/p> <http://example.org/a> .")
	assert.NotContains(t, text, "<http://example.org/g>")
	assert.Equal(t, 2, strings.Count(text, "\n"))

	back, err := graphdb.CheckNQuads(out)
	require.NoError(t, err)
	assert.Equal(t, 2, back)
}

func TestJSONLDToNTriplesRejectsBadInput(t *testing.T) {
	_, _, err := graphdb.JSONLDToNTriples([]byte(`{"@context": `))
	assert.Error(t, err)
}
