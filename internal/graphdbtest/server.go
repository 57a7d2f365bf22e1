// Package graphdbtest runs an in-process fake of the GraphDB REST endpoints
// used by the client: SPARQL query and update, login, repository listing and
// the graph store protocol. It records every request and answers queries
// from canned SPARQL JSON results.
package graphdbtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql/results"
)

// Request is a recorded request.
type Request struct {
	Method        string
	Path          string
	Query         string
	ContentType   string
	Accept        string
	Authorization string
	RequestID     string
	Body          string
}

// Repo is an entry of rest/repositories.
type Repo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URI      string `json:"uri"`
	Type     string `json:"type"`
	State    string `json:"state"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// Graph is a payload stored through the graph store protocol.
type Graph struct {
	ContentType string
	Payload     string
}

type answer struct {
	match  string
	result *results.Response
}

// Server is the fake endpoint. Configure it before issuing requests.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	requests     []Request
	repos        []Repo
	cacheControl string
	answers      []answer
	graphs       map[string]Graph

	user, password string
	basic          bool
	token          string
	logins         int

	failStatus int
	failCount  int
}

// Option configures New.
type Option func(*Server)

// WithRepositories sets the listed repositories. The default is a single
// writable repository "test".
func WithRepositories(ids ...string) Option {
	return func(s *Server) {
		s.repos = s.repos[:0]
		for _, id := range ids {
			s.repos = append(s.repos, Repo{ID: id, Title: id, Type: "graphdb", State: "RUNNING", Readable: true, Writable: true})
		}
	}
}

// WithCacheControl sets the Cache-Control header of rest/repositories.
func WithCacheControl(v string) Option {
	return func(s *Server) { s.cacheControl = v }
}

// WithLogin requires a GDB token obtained from rest/login with the given
// credentials.
func WithLogin(user, password string) Option {
	return func(s *Server) { s.user, s.password, s.basic = user, password, false }
}

// WithBasicAuth requires HTTP basic authentication.
func WithBasicAuth(user, password string) Option {
	return func(s *Server) { s.user, s.password, s.basic = user, password, true }
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		repos:        []Repo{{ID: "test", Title: "test", Type: "graphdb", State: "RUNNING", Readable: true, Writable: true}},
		cacheControl: "max-age=60",
		graphs:       map[string]Graph{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/login", s.handleLogin)
	mux.HandleFunc("GET /rest/repositories", s.guard(s.handleRepositories))
	mux.HandleFunc("POST /repositories/{id}", s.guard(s.repository(s.handleQuery)))
	mux.HandleFunc("POST /repositories/{id}/statements", s.guard(s.repository(s.handleUpdate)))
	mux.HandleFunc("PUT /repositories/{id}/rdf-graphs/service", s.guard(s.repository(s.handleGraphPut)))
	mux.HandleFunc("DELETE /repositories/{id}/rdf-graphs/service", s.guard(s.repository(s.handleGraphDelete)))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// Answer makes queries containing match return result. Later answers take
// precedence over earlier ones.
func (s *Server) Answer(match string, result *results.Response) {
	s.mu.Lock()
	s.answers = append(s.answers, answer{match: match, result: result})
	s.mu.Unlock()
}

// FailNext answers the next n repository requests with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	s.failCount, s.failStatus = n, status
	s.mu.Unlock()
}

// ExpireToken invalidates the issued token so the next request gets 401.
func (s *Server) ExpireToken() {
	s.mu.Lock()
	s.token = "expired"
	s.mu.Unlock()
}

// Logins returns the number of successful logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Requests returns the recorded requests in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Bodies returns the bodies of recorded requests to path.
func (s *Server) Bodies(method, path string) []string {
	var out []string
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r.Body)
		}
	}
	return out
}

// Updates returns the bodies of update requests to repository id.
func (s *Server) Updates(id string) []string {
	return s.Bodies(http.MethodPost, "/repositories/"+id+"/statements")
}

// Queries returns the bodies of query requests to repository id.
func (s *Server) Queries(id string) []string {
	return s.Bodies(http.MethodPost, "/repositories/"+id)
}

// Graph returns the payload last stored for iri.
func (s *Server) Graph(iri string) (Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.graphs[iri]
	return g, ok
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			ContentType:   r.Header.Get("Content-Type"),
			Accept:        r.Header.Get("Accept"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          string(body),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		user, password, basic, tok := s.user, s.password, s.basic, s.token
		s.mu.Unlock()

		switch {
		case user == "":
		case basic:
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != password {
				writeError(w, http.StatusUnauthorized, "bad credentials")
				return
			}
		default:
			if tok == "" || r.Header.Get("Authorization") != tok {
				writeError(w, http.StatusUnauthorized, "missing or expired token")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) repository(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.mu.Lock()
		known := false
		for _, repo := range s.repos {
			if repo.ID == id {
				known = true
				break
			}
		}
		fail := 0
		if s.failCount > 0 {
			s.failCount--
			fail = s.failStatus
		}
		s.mu.Unlock()

		if fail != 0 {
			writeError(w, fail, "injected failure")
			return
		}
		if !known {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown repository: %s", id))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == "" || s.basic || creds.Username != s.user || creds.Password != s.password {
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	s.logins++
	s.token = fmt.Sprintf("GDB token-%d", s.logins)
	w.Header().Set("Authorization", s.token)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	repos := append([]Repo(nil), s.repos...)
	cc := s.cacheControl
	s.mu.Unlock()

	data, err := json.Marshal(repos)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cc != "" {
		w.Header().Set("Cache-Control", cc)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "application/sparql-query" {
		writeError(w, http.StatusUnsupportedMediaType, "unexpected content type "+ct)
		return
	}
	body, _ := io.ReadAll(r.Body)
	query := string(body)

	result := s.lookup(query)
	if result == nil {
		if isAsk(query) {
			result = results.NewAsk(false)
		} else {
			result = results.NewSelect([]string{}, nil)
		}
	}
	data, err := result.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/sparql-results+json")
	_, _ = w.Write(data)
}

func (s *Server) lookup(query string) *results.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.answers) - 1; i >= 0; i-- {
		if strings.Contains(query, s.answers[i].match) {
			return s.answers[i].result
		}
	}
	return nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "application/sparql-update" {
		writeError(w, http.StatusUnsupportedMediaType, "unexpected content type "+ct)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGraphPut(w http.ResponseWriter, r *http.Request) {
	graph := r.URL.Query().Get("graph")
	if graph == "" {
		writeError(w, http.StatusBadRequest, "missing graph parameter")
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.graphs[graph] = Graph{ContentType: r.Header.Get("Content-Type"), Payload: string(body)}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGraphDelete(w http.ResponseWriter, r *http.Request) {
	graph := r.URL.Query().Get("graph")
	s.mu.Lock()
	_, ok := s.graphs[graph]
	delete(s.graphs, graph)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no such graph: "+graph)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isAsk reports whether the first keyword after the prologue is ASK.
func isAsk(query string) bool {
	for _, line := range strings.Split(query, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToUpper(line), "PREFIX") || strings.HasPrefix(strings.ToUpper(line), "BASE") {
			continue
		}
		return strings.HasPrefix(strings.ToUpper(line), "ASK")
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
