package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/internal/cache"
	"github.com/aleksaelezovic/graphdbi/internal/config"
	"github.com/aleksaelezovic/graphdbi/internal/graphdbtest"
	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/results"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/validate"
)

const offlineConfig = `
named_graph: http://example.org/g
prefixes:
  ex: http://example.org/
`

// execute runs the root command with a config file holding cfg.
func execute(t *testing.T, cfg, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{config.EnvURL, config.EnvUser, config.EnvPassword, config.EnvRepository} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "graphdbi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func serverConfig(srv *graphdbtest.Server) string {
	return "base_url: " + srv.URL + "\nrepository: test\nretries: 0\nprefixes:\n  ex: http://example.org/\n"
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"}, {"render", "add"}, {"render", "get"}, {"render", "update"}, {"render", "graphs"},
		{"query"}, {"update"}, {"repos"},
		{"graphs", "list"}, {"graphs", "put"}, {"graphs", "delete"}, {"graphs", "import"},
		{"triple", "add"}, {"triple", "delete"}, {"triple", "exists"}, {"triple", "get"}, {"triple", "update"},
		{"classes"}, {"subclass"}, {"config"},
	}
	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "", "--format", "xml", "validate", "ASK {}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBadConfigIsACommandError(t *testing.T) {
	_, err := execute(t, "retries: -1\n", "", "validate", "ASK {}")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "", "", "validate", "SELECT * WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, "✓ valid SPARQL query\n", out)

	out, err = execute(t, "", "", "validate", "INSERT DATA { <http://a/s> <http://a/p> 1 }")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ invalid SPARQL query")

	out, err = execute(t, "", "INSERT DATA { <http://a/s> <http://a/p> 1 }", "validate", "--update", "-")
	require.NoError(t, err)
	assert.Equal(t, "✓ valid SPARQL update\n", out)
}

func TestValidateJSON(t *testing.T) {
	out, err := execute(t, "", "", "--format", "json", "validate", "ASK {")
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, validate.GrammarQuery, resp.Data.Grammar)
	assert.NotEmpty(t, resp.Data.Error)
}

func TestValidateUsesVerdictCache(t *testing.T) {
	dir := t.TempDir()
	cfg := "cache:\n  enabled: true\n  dir: " + dir + "\n"

	_, err := execute(t, cfg, "", "validate", "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	_, err = execute(t, cfg, "", "validate", "ASK {")
	require.Error(t, err)

	verdicts, err := cache.Open(cache.Options{Dir: dir})
	require.NoError(t, err)
	defer verdicts.Close()

	valid, found := verdicts.Get(validate.GrammarQuery, "ASK { ?s ?p ?o }")
	assert.True(t, found)
	assert.True(t, valid)
	valid, found = verdicts.Get(validate.GrammarQuery, "ASK {")
	assert.True(t, found)
	assert.False(t, valid)
}

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	out, err := execute(t, offlineConfig, "", "render", "add", "ex:alice", "ex:knows", "ex:bob")
	require.NoError(t, err)
	g.Assert(t, "render_add", []byte(out))

	out, err = execute(t, offlineConfig, "", "render", "update",
		"-s", "ex:alice", "-p", "ex:age",
		"--new-object", "31", "--datatype", "http://www.w3.org/2001/XMLSchema#integer")
	require.NoError(t, err)
	g.Assert(t, "render_update", []byte(out))
}

func TestRenderJSON(t *testing.T) {
	out, err := execute(t, offlineConfig, "", "--format", "json", "render", "exists", "ex:alice", "ex:name", "Alice", "--lang", "en")
	require.NoError(t, err)

	var resp struct {
		Data RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ASK", resp.Data.Form)
	assert.False(t, resp.Data.Update)
	assert.Contains(t, resp.Data.Query, `ex:alice ex:name "Alice"@en .`)
}

func TestRenderGraphsIgnoresNamedGraph(t *testing.T) {
	out, err := execute(t, offlineConfig, "", "--format", "json", "render", "graphs")
	require.NoError(t, err)

	var resp struct {
		Data RenderResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "SELECT", resp.Data.Form)
	assert.Contains(t, resp.Data.Query, "SELECT DISTINCT ?graph")
	assert.Contains(t, resp.Data.Query, "GRAPH ?graph { ?s ?p ?o }")
	assert.NotContains(t, resp.Data.Query, "FROM")
}

func TestRenderRejectsBadInput(t *testing.T) {
	out, err := execute(t, offlineConfig, "", "render", "get")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidInput)

	_, err = execute(t, offlineConfig, "", "render", "classes", "ex:rex", "--ignore", "dc")
	require.Error(t, err)

	out, err = execute(t, offlineConfig, "", "render", "classes", "ex:rex", "--ignore", "")
	require.NoError(t, err)
	assert.NotContains(t, out, "FILTER")
}

func TestQueryAndUpdate(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("?name", results.NewSelect([]string{"s", "name"}, []map[string]rdf.Term{
		{"s": rdf.NewNamedNode("http://example.org/alice"), "name": rdf.NewLiteral("Alice")},
	}))
	cfg := serverConfig(srv)

	out, err := execute(t, cfg, "", "query", "SELECT ?s ?name WHERE { ?s <http://example.org/name> ?name }")
	require.NoError(t, err)
	assert.Equal(t, "s\tname\nhttp://example.org/alice\tAlice\n", out)

	out, err = execute(t, cfg, "", "query", "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	_, err = execute(t, cfg, "", "update", "SELECT * WHERE { ?s ?p ?o }")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, srv.Updates("test"))

	_, err = execute(t, cfg, "DELETE WHERE { ?s ?p ?o }", "update", "-")
	require.NoError(t, err)
	assert.Equal(t, []string{"DELETE WHERE { ?s ?p ?o }"}, srv.Updates("test"))
}

func TestUnknownRepository(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithRepositories("prod"))
	out, err := execute(t, serverConfig(srv), "", "query", "ASK {}")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
	assert.Empty(t, srv.Queries("test"))
}

func TestRepos(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithRepositories("alpha", "beta"))
	out, err := execute(t, "base_url: "+srv.URL+"\n", "", "repos")
	require.NoError(t, err)
	assert.Equal(t, "alpha\tgraphdb\tRUNNING\trw\nbeta\tgraphdb\tRUNNING\trw\n", out)
}

func TestTripleCommands(t *testing.T) {
	srv := graphdbtest.New(t)
	cfg := serverConfig(srv)

	out, err := execute(t, cfg, "", "triple", "exists", "ex:alice", "ex:knows", "ex:bob")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, err = execute(t, cfg, "", "triple", "delete", "ex:alice", "ex:knows", "ex:bob")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
	assert.Empty(t, srv.Updates("test"))

	_, err = execute(t, cfg, "", "triple", "add", "ex:alice", "ex:age", "30", "--datatype", "http://www.w3.org/2001/XMLSchema#integer")
	require.NoError(t, err)

	srv.Answer("ASK", results.NewAsk(true))
	_, err = execute(t, cfg, "", "triple", "update", "-s", "ex:alice", "-p", "ex:age", "--new-object", "31")
	require.NoError(t, err)

	updates := srv.Updates("test")
	require.Len(t, updates, 2)
	assert.Contains(t, updates[0], `ex:alice ex:age "30"^^<http://www.w3.org/2001/XMLSchema#integer> .`)
	assert.Contains(t, updates[1], "DELETE {\n  ex:alice ex:age ?o .\n}")

	srv.Answer("?s ?p ?o", results.NewSelect([]string{"s", "p", "o"}, []map[string]rdf.Term{
		{"s": rdf.NewNamedNode("http://example.org/alice"), "p": rdf.NewNamedNode("http://example.org/age"), "o": rdf.NewIntegerLiteral(31)},
	}))
	out, err = execute(t, cfg, "", "triple", "get", "-s", "ex:alice")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/alice\thttp://example.org/age\t31\n", out)
}

func TestOWLCommands(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("?class", results.NewSelect([]string{"class"}, []map[string]rdf.Term{
		{"class": rdf.NewNamedNode("http://example.org/onto#Dog")},
	}))
	srv.Answer("subClassOf", results.NewAsk(true))
	cfg := serverConfig(srv)

	out, err := execute(t, cfg, "", "classes", "ex:rex")
	require.NoError(t, err)
	assert.Equal(t, "Dog\n", out)

	out, err = execute(t, cfg, "", "classes", "--full", "ex:rex")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/onto#Dog\n", out)

	out, err = execute(t, cfg, "", "subclass", "ex:Dog", "ex:Animal")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestGraphsCommands(t *testing.T) {
	srv := graphdbtest.New(t)
	srv.Answer("GRAPH ?graph", results.NewSelect([]string{"graph"}, []map[string]rdf.Term{
		{"graph": rdf.NewNamedNode("http://example.org/g")},
	}))
	cfg := serverConfig(srv)
	dir := t.TempDir()

	out, err := execute(t, cfg, "", "graphs", "list")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/g\n", out)

	nt := filepath.Join(dir, "data.nt")
	require.NoError(t, os.WriteFile(nt, []byte("<http://example.org/a> <http://example.org/p> \"x\" .\n"), 0o600))
	_, err = execute(t, cfg, "", "graphs", "put", "http://example.org/g", nt)
	require.NoError(t, err)
	stored, ok := srv.Graph("http://example.org/g")
	require.True(t, ok)
	assert.Equal(t, "application/n-triples", stored.ContentType)

	bad := filepath.Join(dir, "bad.nt")
	require.NoError(t, os.WriteFile(bad, []byte("nonsense\n"), 0o600))
	_, err = execute(t, cfg, "", "graphs", "put", "http://example.org/bad", bad)
	require.Error(t, err)
	_, ok = srv.Graph("http://example.org/bad")
	assert.False(t, ok)

	_, err = execute(t, cfg, "", "graphs", "put", "http://example.org/g", filepath.Join(dir, "data.unknown"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	doc := `{"@id": "http://example.org/bob", "http://xmlns.com/foaf/0.1/name": "Bob"}`
	out, err = execute(t, cfg, doc, "graphs", "import", "http://example.org/people", "-")
	require.NoError(t, err)
	assert.Equal(t, "imported 1 statements into http://example.org/people\n", out)
	people, ok := srv.Graph("http://example.org/people")
	require.True(t, ok)
	assert.Contains(t, people.Payload, `<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob"`)

	_, err = execute(t, cfg, "", "graphs", "delete", "http://example.org/people")
	require.NoError(t, err)
	_, ok = srv.Graph("http://example.org/people")
	assert.False(t, ok)
}

func TestConfigMasksPassword(t *testing.T) {
	out, err := execute(t, "username: admin\npassword: secret\n", "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "username: admin")
	assert.NotContains(t, out, "secret")
}
