// Package queries holds canned, validated queries for the triple-level and
// OWL convenience operations of the client.
//
// Every function is pure: it returns a *builder.Query ready for dispatch and
// never talks to a store. Builder options carry the prefix map, the named
// graph and the reasoning scope of the calling session.
package queries

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/builder"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
)

var (
	rdfType            = token.IRI(prefix.RDF + "type")
	rdfsSubClassOf     = token.IRI(prefix.RDFS + "subClassOf")
	owlClass           = token.IRI(prefix.OWL + "Class")
	owlNamedIndividual = token.IRI(prefix.OWL + "NamedIndividual")
)

// DefaultIgnoredPrefixes are the namespaces ClassesOf leaves out when the
// caller passes nil.
var DefaultIgnoredPrefixes = []string{"owl", "rdfs"}

// Pattern is a triple whose positions are still raw caller values. A nil
// position means "unspecified".
type Pattern struct {
	Subject   any
	Predicate any
	Object    any
}

func (p Pattern) String() string {
	return fmt.Sprintf("(%v, %v, %v)", p.Subject, p.Predicate, p.Object)
}

// TripleExists asks whether the triple s p o is stored.
func TripleExists(s, p, o any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	t, err := b.Normalizer().NewTriple(s, p, o)
	if err != nil {
		return nil, err
	}
	return b.Ask(t.Line()).Build()
}

// IsSubclass asks whether sub rdfs:subClassOf sup is stored.
func IsSubclass(sub, sup any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	n := b.Normalizer()
	s, err := n.PrepareSubjectOrPredicate(sub, "subject")
	if err != nil {
		return nil, err
	}
	o, err := n.PrepareObject(sup, true)
	if err != nil {
		return nil, err
	}
	t := token.Triple{Subject: s, Predicate: rdfsSubClassOf, Object: o}
	return b.Ask(t.Line()).Build()
}

// IsNamedIndividual asks whether iri rdf:type owl:NamedIndividual is stored.
func IsNamedIndividual(iri any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	s, err := b.Normalizer().PrepareSubjectOrPredicate(iri, "subject")
	if err != nil {
		return nil, err
	}
	t := token.Triple{Subject: s, Predicate: rdfType, Object: owlNamedIndividual}
	return b.Ask(t.Line()).Build()
}

// ClassesOf selects ?class for every owl:Class the individual is typed with,
// skipping classes in the ignored namespaces. A nil ignored slice means
// DefaultIgnoredPrefixes; an empty one disables filtering. Ignored prefixes
// must be declared in the builder's prefix map.
func ClassesOf(individual any, ignored []string, opts ...builder.Option) (*builder.Query, error) {
	if ignored == nil {
		ignored = DefaultIgnoredPrefixes
	}

	b := builder.New(opts...)
	prefixes := b.Prefixes()
	ind, err := b.Normalizer().PrepareSubjectOrPredicate(individual, "subject")
	if err != nil {
		return nil, err
	}

	class := token.Var("class")
	where := []string{
		token.Triple{Subject: class, Predicate: rdfType, Object: owlClass}.Line(),
		token.Triple{Subject: ind, Predicate: rdfType, Object: class}.Line(),
	}

	if len(ignored) > 0 {
		conds := make([]string, 0, len(ignored))
		for _, name := range ignored {
			if !prefixes.Has(name) {
				return nil, sparql.InputErrorf("ignored prefix %q is not declared", name)
			}
			conds = append(conds, fmt.Sprintf("!STRSTARTS(STR(?class), STR(%s:))", name))
		}
		where = append(where, "FILTER("+strings.Join(conds, " && ")+")")
	}

	return b.Select([]string{"class"}, where...).Build()
}

// Positions selects the triple positions IRIExists searches.
type Positions struct {
	Subject   bool
	Predicate bool
	Object    bool
}

// IRIExists asks whether iri occurs in any of the selected positions.
// Filters exclude matches by binding: keys are "s", "p" or "o", values are
// IRIs the variable must not equal.
func IRIExists(iri any, pos Positions, filters map[string][]any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	n := b.Normalizer()

	tok, err := n.PrepareSubjectOrPredicate(iri, "iri")
	if err != nil {
		return nil, err
	}
	if tok.Kind == token.Variable {
		return nil, sparql.InputErrorf("IRIExists needs an IRI, got variable %s", tok.Text)
	}

	var alternatives []string
	if pos.Subject {
		alternatives = append(alternatives, "{ "+tok.Text+" ?p ?o . }")
	}
	if pos.Predicate {
		alternatives = append(alternatives, "{ ?s "+tok.Text+" ?o . }")
	}
	if pos.Object {
		alternatives = append(alternatives, "{ ?s ?p "+tok.Text+" . }")
	}
	if len(alternatives) == 0 {
		return nil, sparql.InputErrorf("IRIExists needs at least one of subject, predicate or object")
	}
	where := []string{strings.Join(alternatives, " UNION ")}

	for key := range filters {
		if key != "s" && key != "p" && key != "o" {
			return nil, sparql.InputErrorf("filter key %q must be one of s, p, o", key)
		}
	}
	for _, key := range []string{"s", "p", "o"} {
		values := filters[key]
		if len(values) == 0 {
			continue
		}
		conds := make([]string, 0, len(values))
		for _, v := range values {
			excluded, err := n.PrepareSubjectOrPredicate(v, "filter")
			if err != nil {
				return nil, err
			}
			conds = append(conds, "?"+key+" != "+excluded.Text)
		}
		where = append(where, "FILTER("+strings.Join(conds, " && ")+")")
	}

	return b.Ask(where...).Build()
}

// TriplesGet selects ?s ?p ?o constrained by the given positions. IRIs are
// bound with BIND, literals are matched with an equality filter and any
// other string is matched as a substring of the value.
func TriplesGet(pattern Pattern, opts ...builder.Option) (*builder.Query, error) {
	if pattern.Subject == nil && pattern.Predicate == nil && pattern.Object == nil {
		return nil, sparql.InputErrorf("at least one of subject, predicate or object is required")
	}

	b := builder.New(opts...)
	n := b.Normalizer()

	var binds, filters []string
	constrain := func(v any, variable string) error {
		if v == nil {
			return nil
		}
		tok, err := n.Classify(v)
		if err != nil {
			return err
		}
		switch tok.Kind {
		case token.AbsoluteIRI, token.ShorthandIRI:
			binds = append(binds, "BIND("+tok.Text+" AS "+variable+")")
		case token.Literal:
			if variable != "?o" {
				return sparql.InputErrorf("literal %s cannot constrain %s", tok.Text, variable)
			}
			filters = append(filters, "FILTER("+variable+" = "+tok.Text+")")
		case token.FilterString:
			filters = append(filters, `FILTER(CONTAINS(STR(`+variable+`), "`+token.EscapeLiteral(tok.Text)+`"))`)
		default:
			return sparql.InputErrorf("cannot constrain %s with %s", variable, tok.Text)
		}
		return nil
	}
	if err := constrain(pattern.Subject, "?s"); err != nil {
		return nil, err
	}
	if err := constrain(pattern.Predicate, "?p"); err != nil {
		return nil, err
	}
	if err := constrain(pattern.Object, "?o"); err != nil {
		return nil, err
	}

	where := append(binds, "?s ?p ?o .")
	where = append(where, filters...)
	return b.Select([]string{"s", "p", "o"}, where...).Build()
}

// TripleAdd inserts one triple.
func TripleAdd(s, p, o any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	t, err := b.Normalizer().NewTriple(s, p, o)
	if err != nil {
		return nil, err
	}
	return b.InsertData(t).Build()
}

// TripleDelete deletes one triple.
func TripleDelete(s, p, o any, opts ...builder.Option) (*builder.Query, error) {
	b := builder.New(opts...)
	t, err := b.Normalizer().NewTriple(s, p, o)
	if err != nil {
		return nil, err
	}
	return b.DeleteData(t).Build()
}

// TripleUpdate replaces the old triple with one where every non-nil position
// of replacement is substituted. The old object defaults to ?o, which
// replaces all objects of the old subject and predicate.
func TripleUpdate(old, replacement Pattern, opts ...builder.Option) (*builder.Query, error) {
	if old.Subject == nil || old.Predicate == nil {
		return nil, sparql.InputErrorf("old subject and predicate are required")
	}
	if replacement.Subject == nil && replacement.Predicate == nil && replacement.Object == nil {
		return nil, sparql.InputErrorf("at least one of the new subject, predicate or object is required")
	}
	if old.Object == nil {
		old.Object = token.Var("o")
	}

	b := builder.New(opts...)
	n := b.Normalizer()

	from, err := n.NewTriple(old.Subject, old.Predicate, old.Object)
	if err != nil {
		return nil, err
	}
	to := from
	if replacement.Subject != nil {
		if to.Subject, err = n.PrepareSubjectOrPredicate(replacement.Subject, "subject"); err != nil {
			return nil, err
		}
	}
	if replacement.Predicate != nil {
		if to.Predicate, err = n.PrepareSubjectOrPredicate(replacement.Predicate, "predicate"); err != nil {
			return nil, err
		}
	}
	if replacement.Object != nil {
		if to.Object, err = n.PrepareObject(replacement.Object, false); err != nil {
			return nil, err
		}
	}

	return b.DeleteInsert([]token.Triple{from}, []token.Triple{to}, from.Line()).Build()
}

// NamedGraphs selects every graph that holds at least one triple. Any named
// graph in opts is ignored.
func NamedGraphs(opts ...builder.Option) (*builder.Query, error) {
	opts = append(opts[:len(opts):len(opts)], builder.WithNamedGraph(""), builder.WithScope(false, false))
	return builder.New(opts...).
		SelectDistinct([]string{"graph"}, "GRAPH ?graph { ?s ?p ?o }").
		Build()
}

// LocalNames maps IRIs to their fragment or last path segment.
func LocalNames(iris []string) []string {
	names := make([]string, len(iris))
	for i, iri := range iris {
		names[i] = token.LocalName(iri)
	}
	return names
}
