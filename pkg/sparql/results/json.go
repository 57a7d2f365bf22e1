package results

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

// SPARQL JSON Results Format
// https://www.w3.org/TR/sparql11-results-json/

// Response is a SELECT or ASK result document
type Response struct {
	Head    Head      `json:"head"`
	Results *Bindings `json:"results,omitempty"`
	Boolean *bool     `json:"boolean,omitempty"`
}

// Head contains the variable names
type Head struct {
	Vars []string `json:"vars"`
}

// Bindings contains the solutions
type Bindings struct {
	Bindings []map[string]Binding `json:"bindings"`
}

// Binding is a single bound value
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Decode reads a SPARQL JSON results document
func Decode(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode SPARQL JSON results: %w", err)
	}
	return &resp, nil
}

// Unmarshal is Decode for a byte slice
func Unmarshal(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode SPARQL JSON results: %w", err)
	}
	return &resp, nil
}

// Bool returns the ASK answer. A document without one is an error.
func (r *Response) Bool() (bool, error) {
	if r.Boolean == nil {
		return false, fmt.Errorf("result has no boolean")
	}
	return *r.Boolean, nil
}

// Solutions returns the raw bindings, or nil for an ASK result
func (r *Response) Solutions() []map[string]Binding {
	if r.Results == nil {
		return nil
	}
	return r.Results.Bindings
}

// Rows projects every solution. Unbound variables are absent from a row.
func (r *Response) Rows() ([]map[string]any, error) {
	solutions := r.Solutions()
	rows := make([]map[string]any, 0, len(solutions))
	for i, solution := range solutions {
		row := make(map[string]any, len(solution))
		for name, b := range solution {
			v, err := Project(b)
			if err != nil {
				return nil, fmt.Errorf("row %d, ?%s: %w", i, name, err)
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Column projects one variable across all solutions, skipping solutions
// where it is unbound.
func (r *Response) Column(name string) ([]any, error) {
	var values []any
	for i, solution := range r.Solutions() {
		b, ok := solution[name]
		if !ok {
			continue
		}
		v, err := Project(b)
		if err != nil {
			return nil, fmt.Errorf("row %d, ?%s: %w", i, name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Strings is Column with every value rendered as its IRI, label or lexical
// form.
func (r *Response) Strings(name string) []string {
	var values []string
	for _, solution := range r.Solutions() {
		if b, ok := solution[name]; ok {
			values = append(values, b.Value)
		}
	}
	return values
}

// Project maps a binding to a Go value. IRIs come back as strings, literals
// with a known XSD datatype as their native value, and anything else as the
// lexical form.
func Project(b Binding) (any, error) {
	switch b.Type {
	case "uri", "bnode":
		return b.Value, nil
	case "literal", "typed-literal":
		if b.Lang != "" || b.Datatype == "" {
			return b.Value, nil
		}
		return rdf.FromLexical(b.Value, b.Datatype)
	default:
		return nil, fmt.Errorf("unknown binding type %q", b.Type)
	}
}

// Term converts a binding back to an RDF term
func (b Binding) Term() (rdf.Term, error) {
	switch b.Type {
	case "uri":
		return rdf.NewNamedNode(b.Value), nil
	case "bnode":
		return rdf.NewBlankNode(b.Value), nil
	case "literal", "typed-literal":
		if b.Lang != "" {
			return rdf.NewLiteralWithLanguage(b.Value, b.Lang), nil
		}
		if b.Datatype != "" {
			return rdf.NewLiteralWithDatatype(b.Value, rdf.NewNamedNode(b.Datatype)), nil
		}
		return rdf.NewLiteral(b.Value), nil
	default:
		return nil, fmt.Errorf("unknown binding type %q", b.Type)
	}
}

// NewSelect builds a SELECT result. When vars is nil the variables of all
// rows are collected and sorted.
func NewSelect(vars []string, rows []map[string]rdf.Term) *Response {
	if vars == nil {
		seen := make(map[string]bool)
		vars = []string{}
		for _, row := range rows {
			for name := range row {
				if !seen[name] {
					seen[name] = true
					vars = append(vars, name)
				}
			}
		}
		sort.Strings(vars)
	}

	bindings := make([]map[string]Binding, 0, len(rows))
	for _, row := range rows {
		solution := make(map[string]Binding, len(row))
		for name, term := range row {
			solution[name] = BindingOf(term)
		}
		bindings = append(bindings, solution)
	}

	return &Response{
		Head:    Head{Vars: vars},
		Results: &Bindings{Bindings: bindings},
	}
}

// NewAsk builds an ASK result
func NewAsk(answer bool) *Response {
	return &Response{
		Head:    Head{Vars: []string{}},
		Boolean: &answer,
	}
}

// Marshal renders the document as indented JSON
func (r *Response) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// BindingOf converts an RDF term to a binding
func BindingOf(term rdf.Term) Binding {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return Binding{Type: "uri", Value: t.IRI}

	case *rdf.BlankNode:
		return Binding{Type: "bnode", Value: t.ID}

	case *rdf.Literal:
		b := Binding{Type: "literal", Value: t.Value}
		if t.Language != "" {
			b.Lang = t.Language
		} else if t.Datatype != nil {
			b.Datatype = t.Datatype.IRI
		}
		return b

	default:
		return Binding{Type: "literal", Value: term.String()}
	}
}
