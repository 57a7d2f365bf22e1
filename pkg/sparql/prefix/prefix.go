// Package prefix implements the session prefix map used to declare and
// resolve shorthand IRIs.
package prefix

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
)

// Built-in namespaces present in every map created by New.
const (
	OWL  = "http://www.w3.org/2002/07/owl#"
	RDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS = "http://www.w3.org/2000/01/rdf-schema#"
	Onto = "http://www.ontotext.com/"
)

// Entry is one prefix declaration. IRI is stored delimited, e.g.
// "<http://example.org/>".
type Entry struct {
	Name string
	IRI  string
}

// Map is an insertion-ordered prefix map. It is safe for concurrent use,
// but callers building queries should not mutate a map that a builder is
// rendering from.
type Map struct {
	mu       sync.RWMutex
	order    []string
	iris     map[string]string
	builtins map[string]bool
}

// New returns a map holding the built-in owl, rdf, rdfs and onto prefixes.
func New() *Map {
	m := Empty()
	for _, e := range []Entry{
		{"owl", OWL},
		{"rdf", RDF},
		{"rdfs", RDFS},
		{"onto", Onto},
	} {
		m.set(e.Name, delimit(e.IRI))
		m.builtins[e.Name] = true
	}
	return m
}

// Empty returns a map without built-ins.
func Empty() *Map {
	return &Map{
		iris:     make(map[string]string),
		builtins: make(map[string]bool),
	}
}

// Add declares or overwrites a prefix. Built-ins may be overwritten; their
// position in the declaration order is kept.
func (m *Map) Add(name, iri string) error {
	if !validName(name) {
		return sparql.InputErrorf("invalid prefix name %q", name)
	}
	iri = strings.TrimSpace(iri)
	if iri == "" || iri == "<>" {
		return sparql.InputErrorf("empty namespace IRI for prefix %q", name)
	}
	if !rdf.IsAbsoluteIRI(strings.TrimSuffix(strings.TrimPrefix(iri, "<"), ">")) {
		return &sparql.InvalidIRIError{Value: iri, Position: "namespace", Reason: "namespace must be an absolute IRI"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(name, delimit(iri))
	return nil
}

// Remove drops a caller-added prefix. Removing a built-in fails.
func (m *Map) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.builtins[name] {
		return sparql.InputErrorf("prefix %q is built in and cannot be removed", name)
	}
	if _, ok := m.iris[name]; !ok {
		return sparql.InputErrorf("prefix %q is not declared", name)
	}
	delete(m.iris, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Has reports whether name is declared.
func (m *Map) Has(name string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.iris[name]
	return ok
}

// Lookup returns the delimited namespace IRI of name.
func (m *Map) Lookup(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	iri, ok := m.iris[name]
	return iri, ok
}

// IsBuiltin reports whether name is one of the built-in prefixes.
func (m *Map) IsBuiltin(name string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.builtins[name]
}

// Len returns the number of declared prefixes.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Entries returns the declarations in insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.order))
	for _, name := range m.order {
		entries = append(entries, Entry{Name: name, IRI: m.iris[name]})
	}
	return entries
}

// Expand resolves a shorthand IRI such as "ex:thing" to its delimited
// absolute form.
func (m *Map) Expand(shorthand string) (string, error) {
	name, local, ok := strings.Cut(shorthand, ":")
	if !ok {
		return "", sparql.InputErrorf("%q is not a shorthand IRI", shorthand)
	}
	ns, found := m.Lookup(name)
	if !found {
		return "", sparql.InputErrorf("prefix %q is not declared", name)
	}
	return ns[:len(ns)-1] + local + ">", nil
}

// Clone returns an independent copy, built-in markers included.
func (m *Map) Clone() *Map {
	c := Empty()
	if m == nil {
		return c
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		c.set(name, m.iris[name])
		if m.builtins[name] {
			c.builtins[name] = true
		}
	}
	return c
}

// Preamble renders one PREFIX line per entry, newline-joined with a trailing
// newline. An empty map renders as "".
func (m *Map) Preamble() string {
	entries := m.Entries()
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "PREFIX %s: %s\n", e.Name, e.IRI)
	}
	return sb.String()
}

func (m *Map) set(name, iri string) {
	if _, exists := m.iris[name]; !exists {
		m.order = append(m.order, name)
	}
	m.iris[name] = iri
}

func delimit(iri string) string {
	if strings.HasPrefix(iri, "<") && strings.HasSuffix(iri, ">") {
		return iri
	}
	return "<" + iri + ">"
}

// validName approximates SPARQL PN_PREFIX: empty, or a letter followed by
// letters, digits, '_', '-' or non-trailing '.'.
func validName(name string) bool {
	if name == "" {
		return true
	}
	if strings.HasSuffix(name, ".") {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r > 0x7f:
		case i > 0 && (r >= '0' && r <= '9' || r == '_' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
