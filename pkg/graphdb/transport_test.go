package graphdb_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/graphdbi/internal/graphdbtest"
	"github.com/aleksaelezovic/graphdbi/pkg/graphdb"
)

func newTransport(t *testing.T, srv *graphdbtest.Server, mutate func(*graphdb.HTTPConfig)) *graphdb.HTTPTransport {
	t.Helper()
	cfg := graphdb.HTTPConfig{
		BaseURL:    srv.URL,
		Repository: "test",
		Timeout:    5 * time.Second,
		Backoff:    time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	tr, err := graphdb.NewHTTPTransport(cfg)
	require.NoError(t, err)
	return tr
}

func TestNewHTTPTransportRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  graphdb.HTTPConfig
	}{
		{"no scheme", graphdb.HTTPConfig{BaseURL: "localhost:7200"}},
		{"ftp", graphdb.HTTPConfig{BaseURL: "ftp://host"}},
		{"token without password", graphdb.HTTPConfig{BaseURL: "http://host", Auth: graphdb.AuthToken, Username: "u"}},
		{"negative retries", graphdb.HTTPConfig{BaseURL: "http://host", Retries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graphdb.NewHTTPTransport(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestDispatch(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, nil)
	ctx := context.Background()

	body, err := tr.Dispatch(ctx, "ASK WHERE { ?s ?p ?o . }", false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"head":{"vars":[]},"boolean":false}`, string(body))

	_, err = tr.Dispatch(ctx, "CLEAR DEFAULT", true)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, "/repositories/test", reqs[0].Path)
	assert.Equal(t, graphdb.MediaSPARQLQuery, reqs[0].ContentType)
	assert.Equal(t, graphdb.MediaSPARQLResults, reqs[0].Accept)

	assert.Equal(t, "/repositories/test/statements", reqs[1].Path)
	assert.Equal(t, graphdb.MediaSPARQLUpdate, reqs[1].ContentType)
	assert.Equal(t, "CLEAR DEFAULT", reqs[1].Body)

	for _, r := range reqs {
		_, err := uuid.Parse(r.RequestID)
		assert.NoError(t, err, "request id %q", r.RequestID)
	}
	assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
}

func TestDispatchWithoutRepository(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) { c.Repository = "" })

	_, err := tr.Dispatch(context.Background(), "ASK {}", false)
	assert.ErrorIs(t, err, graphdb.ErrNoRepository)
	assert.Empty(t, srv.Requests())
}

func TestDispatchUnknownRepository(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) { c.Repository = "missing" })

	_, err := tr.Dispatch(context.Background(), "ASK {}", false)
	var se *graphdb.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "unknown repository")
	assert.NotEmpty(t, se.RequestID)
}

func TestTokenAuth(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithLogin("admin", "root"))
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) {
		c.Auth, c.Username, c.Password = graphdb.AuthToken, "admin", "root"
	})
	ctx := context.Background()

	for range 2 {
		_, err := tr.Dispatch(ctx, "ASK {}", false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Logins(), "token is reused")

	queries := srv.Queries("test")
	require.Len(t, queries, 2)
	for _, r := range srv.Requests() {
		if r.Path == "/repositories/test" {
			assert.Equal(t, "GDB token-1", r.Authorization)
		}
	}

	srv.ExpireToken()
	_, err := tr.Dispatch(ctx, "ASK {}", false)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Logins(), "expired token triggers one fresh login")
}

func TestTokenAuthBadCredentials(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithLogin("admin", "root"))
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) {
		c.Auth, c.Username, c.Password = graphdb.AuthToken, "admin", "wrong"
	})

	_, err := tr.Dispatch(context.Background(), "ASK {}", false)
	assert.ErrorIs(t, err, graphdb.ErrLogin)
	assert.True(t, graphdb.IsStatus(err, http.StatusUnauthorized))
	assert.Empty(t, srv.Queries("test"))
}

func TestBasicAuth(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithBasicAuth("admin", "root"))

	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) {
		c.Auth, c.Username, c.Password = graphdb.AuthBasic, "admin", "root"
	})
	_, err := tr.Dispatch(context.Background(), "ASK {}", false)
	require.NoError(t, err)

	anon := newTransport(t, srv, nil)
	_, err = anon.Dispatch(context.Background(), "ASK {}", false)
	assert.True(t, graphdb.IsStatus(err, http.StatusUnauthorized))
}

func TestReadsAreRetried(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) { c.Retries = 2 })
	ctx := context.Background()

	srv.FailNext(2, http.StatusServiceUnavailable)
	_, err := tr.Dispatch(ctx, "ASK {}", false)
	require.NoError(t, err)
	assert.Len(t, srv.Queries("test"), 3)

	srv.FailNext(5, http.StatusInternalServerError)
	_, err = tr.Dispatch(ctx, "ASK {}", false)
	var se *graphdb.StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
	assert.Len(t, srv.Queries("test"), 6)
}

func TestUpdatesAndClientErrorsAreNotRetried(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) { c.Retries = 3 })
	ctx := context.Background()

	srv.FailNext(1, http.StatusServiceUnavailable)
	_, err := tr.Dispatch(ctx, "CLEAR ALL", true)
	assert.True(t, graphdb.IsStatus(err, http.StatusServiceUnavailable))
	assert.Len(t, srv.Updates("test"), 1)

	srv.FailNext(1, http.StatusBadRequest)
	_, err = tr.Dispatch(ctx, "ASK {}", false)
	assert.True(t, graphdb.IsStatus(err, http.StatusBadRequest))
	assert.Len(t, srv.Queries("test"), 1)
}

func TestRetryStopsOnCancel(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, func(c *graphdb.HTTPConfig) {
		c.Retries = 5
		c.Backoff = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	srv.FailNext(1, http.StatusBadGateway)
	_, err := tr.Dispatch(ctx, "ASK {}", false)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Len(t, srv.Queries("test"), 1)
}

func TestRepositoriesAreCached(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithRepositories("alpha", "beta"))
	tr := newTransport(t, srv, nil)
	ctx := context.Background()

	for range 3 {
		repos, err := tr.Repositories(ctx)
		require.NoError(t, err)
		require.Len(t, repos, 2)
		assert.Equal(t, "alpha", repos[0].ID)
		assert.True(t, repos[1].Writable)
	}
	assert.Len(t, srv.Bodies(http.MethodGet, "/rest/repositories"), 1)
}

func TestRepositoriesNoStore(t *testing.T) {
	srv := graphdbtest.New(t, graphdbtest.WithCacheControl("no-store"))
	tr := newTransport(t, srv, nil)
	ctx := context.Background()

	for range 2 {
		_, err := tr.Repositories(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, srv.Bodies(http.MethodGet, "/rest/repositories"), 2)
}

func TestGraphStore(t *testing.T) {
	srv := graphdbtest.New(t)
	tr := newTransport(t, srv, nil)
	ctx := context.Background()
	const g = "http://example.org/graph"

	err := tr.PutGraph(ctx, g, graphdb.MediaTurtle, []byte("<a:s> <a:p> <a:o> ."))
	require.NoError(t, err)

	stored, ok := srv.Graph(g)
	require.True(t, ok)
	assert.Equal(t, graphdb.MediaTurtle, stored.ContentType)
	assert.Equal(t, "<a:s> <a:p> <a:o> .", stored.Payload)

	reqs := srv.Requests()
	assert.Equal(t, "/repositories/test/rdf-graphs/service", reqs[0].Path)
	assert.Equal(t, "graph=http%3A%2F%2Fexample.org%2Fgraph", reqs[0].Query)

	require.NoError(t, tr.DeleteGraph(ctx, g))
	_, ok = srv.Graph(g)
	assert.False(t, ok)

	err = tr.DeleteGraph(ctx, g)
	assert.True(t, graphdb.IsStatus(err, http.StatusNotFound))
}
