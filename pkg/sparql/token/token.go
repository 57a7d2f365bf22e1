// Package token classifies caller-supplied values into the SPARQL terms the
// query builder renders: absolute IRIs, shorthand IRIs, typed literals and
// plain filter strings.
package token

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/aleksaelezovic/graphdbi/pkg/diag"
	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
)

// Kind is the classification of a token.
type Kind int

const (
	AbsoluteIRI Kind = iota + 1
	ShorthandIRI
	Literal
	FilterString
	// Variable is never produced by classification. Use Var.
	Variable
)

func (k Kind) String() string {
	switch k {
	case AbsoluteIRI:
		return "AbsoluteIRI"
	case ShorthandIRI:
		return "ShorthandIRI"
	case Literal:
		return "Literal"
	case FilterString:
		return "FilterString"
	case Variable:
		return "Variable"
	default:
		return "Unknown"
	}
}

// Token is a classified value. Text is the SPARQL rendering; Value holds the
// bare IRI, the shorthand, the *rdf.Literal, the raw filter string or the
// variable name.
type Token struct {
	Kind  Kind
	Text  string
	Value any
}

func (t Token) String() string {
	return t.Text
}

// IsIRI reports whether the token is an absolute or shorthand IRI.
func (t Token) IsIRI() bool {
	return t.Kind == AbsoluteIRI || t.Kind == ShorthandIRI
}

// Var returns a variable token. A leading '?' or '$' is accepted.
func Var(name string) Token {
	name = strings.TrimLeft(name, "?$")
	return Token{Kind: Variable, Text: "?" + name, Value: name}
}

// IRI returns an absolute IRI token without going through classification.
func IRI(iri string) Token {
	bare := StripDelimiters(iri)
	return Token{Kind: AbsoluteIRI, Text: "<" + bare + ">", Value: bare}
}

// Normalizer classifies values against a prefix map. The zero value has no
// prefixes and discards diagnostics.
type Normalizer struct {
	Prefixes *prefix.Map
	Diag     diag.Sink
}

// Classify is Normalizer.Classify with a discarding sink.
func Classify(value any, prefixes *prefix.Map) (Token, error) {
	return Normalizer{Prefixes: prefixes}.Classify(value)
}

// Classify resolves value to exactly one Kind. Strings become AbsoluteIRI,
// ShorthandIRI or FilterString. Native values and *rdf.Literal become Literal.
// Tokens pass through unchanged.
func (n Normalizer) Classify(value any) (Token, error) {
	switch v := value.(type) {
	case Token:
		return v, nil
	case string:
		return n.classifyString(v), nil
	case *rdf.NamedNode:
		return IRI(v.IRI), nil
	case nil:
		return Token{}, sparql.InputErrorf("cannot classify a nil value")
	}
	lit, err := rdf.ToLiteral(value)
	if err != nil {
		return Token{}, sparql.InputErrorf("cannot classify value of type %T", value)
	}
	return LiteralToken(lit), nil
}

func (n Normalizer) classifyString(s string) Token {
	if IsIRI(s) {
		return IRI(s)
	}
	if IsShorthandIRI(s) {
		name, _, _ := strings.Cut(s, ":")
		if n.Prefixes.Len() == 0 || n.Prefixes.Has(name) {
			return Token{Kind: ShorthandIRI, Text: s, Value: s}
		}
		diag.OrDiscard(n.Diag).Warn("shorthand IRI uses an undeclared prefix; treating it as a filter string",
			"value", s, "prefix", name)
	}
	return Token{Kind: FilterString, Text: s, Value: s}
}

// LiteralToken renders lit as `"lexical"^^<datatype>` or `"lexical"@lang`.
func LiteralToken(lit *rdf.Literal) Token {
	text := `"` + EscapeLiteral(lit.Value) + `"`
	if lit.Language != "" {
		text += "@" + lit.Language
	} else {
		text += "^^<" + lit.DatatypeIRI() + ">"
	}
	return Token{Kind: Literal, Text: text, Value: lit}
}

// IsIRI reports whether s, with or without angle brackets, has a scheme and
// an authority and no characters forbidden in an IRI reference.
func IsIRI(s string) bool {
	return rdf.IsAbsoluteIRI(StripDelimiters(s))
}

// IsShorthandIRI reports whether s looks like prefix:local: exactly one colon,
// no whitespace, and not an absolute IRI. Prefix registration is not checked.
func IsShorthandIRI(s string) bool {
	if strings.Count(s, ":") != 1 || strings.ContainsAny(s, " \t\r\n<>\"") {
		return false
	}
	return !IsIRI(s)
}

// EnsureAbsolute wraps iri in angle brackets unless it already is.
func EnsureAbsolute(iri string) string {
	iri = strings.TrimSpace(iri)
	if strings.HasPrefix(iri, "<") && strings.HasSuffix(iri, ">") {
		return iri
	}
	return "<" + iri + ">"
}

// StripDelimiters removes the angle brackets added by EnsureAbsolute.
func StripDelimiters(iri string) string {
	iri = strings.TrimSpace(iri)
	if len(iri) >= 2 && iri[0] == '<' && iri[len(iri)-1] == '>' {
		return iri[1 : len(iri)-1]
	}
	return iri
}

// EscapeLiteral escapes a lexical form for a double-quoted SPARQL string.
// Input that already contains an escaped quote is assumed to be escaped and
// returned unchanged.
func EscapeLiteral(s string) string {
	if strings.Contains(s, `\"`) {
		return s
	}
	return rdf.EscapeString(s)
}

// LocalName returns the fragment or last path segment of a delimited or bare
// IRI.
func LocalName(iri string) string {
	return rdf.LocalName(StripDelimiters(iri))
}

// SameIRI compares two IRIs after stripping delimiters and applying Unicode
// NFC normalization.
func SameIRI(a, b string) bool {
	return norm.NFC.String(StripDelimiters(a)) == norm.NFC.String(StripDelimiters(b))
}

// PrepareSubjectOrPredicate is Normalizer.PrepareSubjectOrPredicate with a
// discarding sink.
func PrepareSubjectOrPredicate(value any, position string, prefixes *prefix.Map) (Token, error) {
	return Normalizer{Prefixes: prefixes}.PrepareSubjectOrPredicate(value, position)
}

// PrepareSubjectOrPredicate classifies a value for a subject or predicate
// position. Literals are an *InvalidInputError; anything else that is not an
// IRI or a variable is an *InvalidIRIError.
func (n Normalizer) PrepareSubjectOrPredicate(value any, position string) (Token, error) {
	switch v := value.(type) {
	case string, Token, *rdf.NamedNode:
	case *rdf.Literal, rdf.Literal:
		return Token{}, sparql.InputErrorf("literal %v cannot be used as %s", v, position)
	default:
		return Token{}, &sparql.InvalidIRIError{Value: value, Position: position, Reason: fmt.Sprintf("%T is not an IRI", value)}
	}
	tok, err := n.Classify(value)
	if err != nil {
		return Token{}, err
	}
	switch tok.Kind {
	case AbsoluteIRI, ShorthandIRI, Variable:
		return tok, nil
	case Literal:
		return Token{}, sparql.InputErrorf("literal %s cannot be used as %s", tok.Text, position)
	default:
		return Token{}, &sparql.InvalidIRIError{Value: value, Position: position, Reason: "not an absolute or shorthand IRI"}
	}
}

// PrepareObject is Normalizer.PrepareObject with a discarding sink.
func PrepareObject(value any, ensureIRI bool, prefixes *prefix.Map) (Token, error) {
	return Normalizer{Prefixes: prefixes}.PrepareObject(value, ensureIRI)
}

// PrepareObject classifies a value for the object position. Strings that are
// not IRIs become xsd:string literals unless ensureIRI is set, in which case
// they are an *InvalidIRIError.
func (n Normalizer) PrepareObject(value any, ensureIRI bool) (Token, error) {
	tok, err := n.Classify(value)
	if err != nil {
		return Token{}, err
	}
	switch tok.Kind {
	case AbsoluteIRI, ShorthandIRI, Variable:
		return tok, nil
	case Literal:
		if ensureIRI {
			return Token{}, &sparql.InvalidIRIError{Value: value, Position: "object", Reason: "literal given where an IRI is required"}
		}
		return tok, nil
	default:
		if ensureIRI {
			return Token{}, &sparql.InvalidIRIError{Value: value, Position: "object", Reason: "not an absolute or shorthand IRI"}
		}
		return LiteralToken(rdf.NewStringLiteral(tok.Text)), nil
	}
}

// Triple is a prepared subject, predicate and object.
type Triple struct {
	Subject   Token
	Predicate Token
	Object    Token
}

// NewTriple is Normalizer.NewTriple with a discarding sink.
func NewTriple(s, p, o any, prefixes *prefix.Map) (Triple, error) {
	return Normalizer{Prefixes: prefixes}.NewTriple(s, p, o)
}

// NewTriple prepares all three positions. The object may be an IRI, a
// literal or a variable.
func (n Normalizer) NewTriple(s, p, o any) (Triple, error) {
	subj, err := n.PrepareSubjectOrPredicate(s, "subject")
	if err != nil {
		return Triple{}, err
	}
	pred, err := n.PrepareSubjectOrPredicate(p, "predicate")
	if err != nil {
		return Triple{}, err
	}
	obj, err := n.PrepareObject(o, false)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: subj, Predicate: pred, Object: obj}, nil
}

// Pattern renders "s p o" without the terminating period.
func (t Triple) Pattern() string {
	return t.Subject.Text + " " + t.Predicate.Text + " " + t.Object.Text
}

// Line renders "s p o .".
func (t Triple) Line() string {
	return t.Pattern() + " ."
}

// HasVariable reports whether any position holds a variable.
func (t Triple) HasVariable() bool {
	return t.Subject.Kind == Variable || t.Predicate.Kind == Variable || t.Object.Kind == Variable
}
