// Package graphdb talks to a GraphDB (RDF4J protocol) server: SPARQL query
// and update dispatch, repository listing, graph store uploads and the
// session-level Client that builds and validates every request first.
package graphdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/cachecontrol"

	"github.com/aleksaelezovic/graphdbi/pkg/diag"
)

// Media types of the RDF4J protocol.
const (
	MediaSPARQLQuery   = "application/sparql-query"
	MediaSPARQLUpdate  = "application/sparql-update"
	MediaSPARQLResults = "application/sparql-results+json"
	MediaNQuads        = "application/n-quads"
	MediaNTriples      = "application/n-triples"
	MediaTurtle        = "text/turtle"
	MediaJSONLD        = "application/ld+json"
)

const requestIDHeader = "X-Request-ID"

// Transport delivers a finished SPARQL string to a store and returns the raw
// response body.
type Transport interface {
	Dispatch(ctx context.Context, query string, update bool) ([]byte, error)
}

// HTTPDoer is the subset of *http.Client used by HTTPTransport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthMode selects how HTTPTransport authenticates.
type AuthMode int

const (
	AuthNone AuthMode = iota
	// AuthToken logs in at rest/login and sends the returned GDB token.
	AuthToken
	AuthBasic
)

// HTTPConfig configures NewHTTPTransport.
type HTTPConfig struct {
	BaseURL    string
	Repository string

	Auth     AuthMode
	Username string
	Password string

	// Timeout applies to the default client only.
	Timeout time.Duration
	// Retries is the number of extra attempts for reads that failed with a
	// network error or a 5xx status. Updates are sent once.
	Retries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration

	Client HTTPDoer
	Diag   diag.Sink
}

// Repository is one entry of the server's repository list.
type Repository struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URI      string `json:"uri"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// HTTPTransport implements Transport over the GraphDB REST API.
type HTTPTransport struct {
	base     *url.URL
	client   HTTPDoer
	auth     AuthMode
	username string
	password string
	retries  int
	backoff  time.Duration
	diag     diag.Sink

	mu         sync.Mutex
	repository string
	token      string
	repos      []Repository
	reposUntil time.Time
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport returns a transport for the server at cfg.BaseURL.
// Token login happens lazily on the first request.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be an http or https URL", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.Auth != AuthNone && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("authentication needs a username and a password")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must not be negative, got %d", cfg.Retries)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &HTTPTransport{
		base:       base,
		client:     client,
		auth:       cfg.Auth,
		username:   cfg.Username,
		password:   cfg.Password,
		retries:    cfg.Retries,
		backoff:    backoff,
		diag:       diag.OrDiscard(cfg.Diag),
		repository: cfg.Repository,
	}, nil
}

// Repository returns the selected repository id.
func (t *HTTPTransport) Repository() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.repository
}

// SetRepository selects the repository without checking that it exists.
func (t *HTTPTransport) SetRepository(id string) {
	t.mu.Lock()
	t.repository = id
	t.mu.Unlock()
}

// Dispatch sends a query to repositories/{id} or an update to
// repositories/{id}/statements.
func (t *HTTPTransport) Dispatch(ctx context.Context, query string, update bool) ([]byte, error) {
	repo := t.Repository()
	if repo == "" {
		return nil, ErrNoRepository
	}

	path := "repositories/" + url.PathEscape(repo)
	contentType, accept := MediaSPARQLQuery, MediaSPARQLResults
	if update {
		path += "/statements"
		contentType, accept = MediaSPARQLUpdate, ""
	}

	_, body, err := t.do(ctx, !update, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(path, nil), strings.NewReader(query))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return req, nil
	})
	return body, err
}

// Repositories lists the repositories of the server. The list is kept for
// as long as the response's Cache-Control allows.
func (t *HTTPTransport) Repositories(ctx context.Context) ([]Repository, error) {
	t.mu.Lock()
	if t.repos != nil && time.Now().Before(t.reposUntil) {
		repos := append([]Repository(nil), t.repos...)
		t.mu.Unlock()
		return repos, nil
	}
	t.mu.Unlock()

	var last *http.Request
	resp, body, err := t.do(ctx, true, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("rest/repositories", nil), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		last = req
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var repos []Repository
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("decode repository list: %w", err)
	}

	reasons, expires, err := cachecontrol.CachableResponse(last, resp, cachecontrol.Options{PrivateCache: true})
	t.mu.Lock()
	if err == nil && len(reasons) == 0 && expires.After(time.Now()) {
		t.repos, t.reposUntil = repos, expires
	} else {
		t.repos, t.reposUntil = nil, time.Time{}
	}
	t.mu.Unlock()

	return append([]Repository(nil), repos...), nil
}

// PutGraph replaces the content of a named graph.
func (t *HTTPTransport) PutGraph(ctx context.Context, graph, contentType string, payload []byte) error {
	return t.graphStore(ctx, http.MethodPut, graph, contentType, payload)
}

// DeleteGraph drops a named graph.
func (t *HTTPTransport) DeleteGraph(ctx context.Context, graph string) error {
	return t.graphStore(ctx, http.MethodDelete, graph, "", nil)
}

func (t *HTTPTransport) graphStore(ctx context.Context, method, graph, contentType string, payload []byte) error {
	repo := t.Repository()
	if repo == "" {
		return ErrNoRepository
	}
	params := url.Values{"graph": {graph}}
	path := "repositories/" + url.PathEscape(repo) + "/rdf-graphs/service"

	_, _, err := t.do(ctx, false, func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.endpoint(path, params), body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("graph %s: %w", graph, err)
	}
	return nil
}

func (t *HTTPTransport) endpoint(path string, params url.Values) string {
	u := t.base.ResolveReference(&url.URL{Path: path})
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// do sends the request built by newReq. Reads (retry true) are repeated on
// network errors and 5xx responses. A 401 under token auth triggers one
// fresh login.
func (t *HTTPTransport) do(ctx context.Context, retry bool, newReq func() (*http.Request, error)) (*http.Response, []byte, error) {
	attempts := 1
	if retry {
		attempts += t.retries
	}
	relogged := false

	for attempt := 1; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, nil, err
		}
		id := uuid.NewString()
		req.Header.Set(requestIDHeader, id)
		if err := t.authorize(ctx, req); err != nil {
			return nil, nil, err
		}

		start := time.Now()
		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			t.diag.Warn("request failed", "request_id", id, "method", req.Method, "url", req.URL.String(), "attempt", attempt, "error", err)
			if attempt < attempts && t.wait(ctx, attempt) == nil {
				continue
			}
			return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read response: %w", err)
		}
		t.diag.Debug("request done", "request_id", id, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "elapsed", time.Since(start))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, body, nil
		}

		if resp.StatusCode == http.StatusUnauthorized && t.auth == AuthToken && !relogged {
			relogged = true
			t.mu.Lock()
			t.token = ""
			t.mu.Unlock()
			attempt--
			continue
		}

		serr := &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			RequestID:  id,
		}
		if serr.Temporary() && attempt < attempts {
			t.diag.Warn("retrying request", "request_id", id, "status", resp.StatusCode, "attempt", attempt)
			if err := t.wait(ctx, attempt); err != nil {
				return nil, nil, err
			}
			continue
		}
		t.diag.Error("request rejected", "request_id", id, "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)
		return resp, body, serr
	}
}

func (t *HTTPTransport) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * t.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *HTTPTransport) authorize(ctx context.Context, req *http.Request) error {
	switch t.auth {
	case AuthBasic:
		req.SetBasicAuth(t.username, t.password)
	case AuthToken:
		tok, err := t.loginToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", tok)
	}
	return nil
}

func (t *HTTPTransport) loginToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" {
		return t.token, nil
	}

	payload, err := json.Marshal(map[string]string{"username": t.username, "password": t.password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("rest/login", nil), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLogin, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	tok := resp.Header.Get("Authorization")
	if resp.StatusCode != http.StatusOK || tok == "" {
		t.diag.Error("login failed", "user", t.username, "status", resp.StatusCode)
		return "", errors.Join(ErrLogin, &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
			RequestID:  req.Header.Get(requestIDHeader),
		})
	}
	t.token = tok
	t.diag.Debug("obtained GraphDB token", "user", t.username)
	return tok, nil
}
