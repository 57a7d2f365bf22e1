package builder

import (
	"strconv"
	"strings"

	"github.com/aleksaelezovic/graphdbi/pkg/sparql/prefix"
	"github.com/aleksaelezovic/graphdbi/pkg/sparql/token"
)

// Form identifies a block variant.
type Form int

const (
	FormSelect Form = iota
	FormConstruct
	FormDescribe
	FormAsk
	FormInsertData
	FormDeleteData
	FormDeleteInsert
)

func (f Form) String() string {
	switch f {
	case FormSelect:
		return "SELECT"
	case FormConstruct:
		return "CONSTRUCT"
	case FormDescribe:
		return "DESCRIBE"
	case FormAsk:
		return "ASK"
	case FormInsertData:
		return "INSERT DATA"
	case FormDeleteData:
		return "DELETE DATA"
	case FormDeleteInsert:
		return "DELETE/INSERT"
	default:
		return "UNKNOWN"
	}
}

// IsUpdate reports whether the form belongs to the update grammar.
func (f Form) IsUpdate() bool {
	return f == FormInsertData || f == FormDeleteData || f == FormDeleteInsert
}

// Scope is the named graph and reasoning scope a block is rendered against.
type Scope struct {
	// Graph is a bare absolute IRI, or "" for the default graph.
	Graph    string
	Explicit bool
	Implicit bool
	// OntoDeclared selects the onto:explicit form over the absolute IRI.
	OntoDeclared bool
}

// Block is one query or update operation.
type Block interface {
	Form() Form
	Render() string
}

// SelectBlock renders SELECT, SELECT DISTINCT and SELECT REDUCED.
type SelectBlock struct {
	Scope     Scope
	Modifier  string // "", "DISTINCT" or "REDUCED"
	Variables []token.Token
	Where     []string
	OrderBy   []string
	Limit     int
	Offset    int
}

func (b *SelectBlock) Form() Form { return FormSelect }

func (b *SelectBlock) Render() string {
	head := "SELECT "
	if b.Modifier != "" {
		head += b.Modifier + " "
	}
	head += projection(b.Variables)
	return joinLines(head, datasetClauses(b.Scope), block("WHERE", b.Where), solutionModifiers(b.OrderBy, b.Limit, b.Offset))
}

// ConstructBlock renders CONSTRUCT { template } with the dataset clauses of
// SELECT.
type ConstructBlock struct {
	Scope    Scope
	Template []token.Triple
	Where    []string
	Limit    int
}

func (b *ConstructBlock) Form() Form { return FormConstruct }

func (b *ConstructBlock) Render() string {
	return joinLines(block("CONSTRUCT", tripleLines(b.Template)), datasetClauses(b.Scope), block("WHERE", b.Where), solutionModifiers(nil, b.Limit, 0))
}

// DescribeBlock renders DESCRIBE with an optional WHERE clause.
type DescribeBlock struct {
	Scope     Scope
	Resources []token.Token
	Where     []string
}

func (b *DescribeBlock) Form() Form { return FormDescribe }

func (b *DescribeBlock) Render() string {
	where := ""
	if len(b.Where) > 0 {
		where = block("WHERE", b.Where)
	}
	return joinLines("DESCRIBE "+projection(b.Resources), datasetClauses(b.Scope), where)
}

// AskBlock renders ASK WHERE { ... }, wrapped in GRAPH when a named graph is
// in scope.
type AskBlock struct {
	Scope Scope
	Where []string
}

func (b *AskBlock) Form() Form { return FormAsk }

func (b *AskBlock) Render() string {
	return block("ASK WHERE", wrapGraph(b.Scope.Graph, b.Where))
}

// InsertDataBlock renders INSERT DATA { ... }.
type InsertDataBlock struct {
	Scope   Scope
	Triples []token.Triple
}

func (b *InsertDataBlock) Form() Form { return FormInsertData }

func (b *InsertDataBlock) Render() string {
	return block("INSERT DATA", wrapGraph(b.Scope.Graph, tripleLines(b.Triples)))
}

// DeleteDataBlock renders DELETE DATA { ... }.
type DeleteDataBlock struct {
	Scope   Scope
	Triples []token.Triple
}

func (b *DeleteDataBlock) Form() Form { return FormDeleteData }

func (b *DeleteDataBlock) Render() string {
	return block("DELETE DATA", wrapGraph(b.Scope.Graph, tripleLines(b.Triples)))
}

// DeleteInsertBlock renders [WITH <g>] DELETE {} INSERT {} WHERE {}. All three
// clauses are always present and always in that order.
type DeleteInsertBlock struct {
	Scope  Scope
	Delete []token.Triple
	Insert []token.Triple
	Where  []string
}

func (b *DeleteInsertBlock) Form() Form { return FormDeleteInsert }

func (b *DeleteInsertBlock) Render() string {
	with := ""
	if b.Scope.Graph != "" {
		with = "WITH <" + b.Scope.Graph + ">"
	}
	return joinLines(with,
		block("DELETE", tripleLines(b.Delete)),
		block("INSERT", tripleLines(b.Insert)),
		block("WHERE", b.Where))
}

func projection(terms []token.Token) string {
	if len(terms) == 0 {
		return "*"
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// datasetClauses renders FROM <graph> and the reasoning scope. Explicit and
// implicit together mean the store default, which takes no clause.
func datasetClauses(s Scope) string {
	var lines []string
	if s.Graph != "" {
		lines = append(lines, "FROM <"+s.Graph+">")
	}
	if s.Explicit != s.Implicit {
		name := "explicit"
		if s.Implicit {
			name = "implicit"
		}
		if s.OntoDeclared {
			lines = append(lines, "FROM onto:"+name)
		} else {
			lines = append(lines, "FROM <"+prefix.Onto+name+">")
		}
	}
	return strings.Join(lines, "\n")
}

func solutionModifiers(orderBy []string, limit, offset int) string {
	var parts []string
	if len(orderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(orderBy, " "))
	}
	if limit > 0 {
		parts = append(parts, "LIMIT "+strconv.Itoa(limit))
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+strconv.Itoa(offset))
	}
	return strings.Join(parts, "\n")
}

func tripleLines(triples []token.Triple) []string {
	lines := make([]string, len(triples))
	for i, t := range triples {
		lines[i] = t.Line()
	}
	return lines
}

// block renders `head {}` for empty content, otherwise the content indented
// on its own lines.
func block(head string, lines []string) string {
	if len(lines) == 0 {
		return head + " {}"
	}
	return head + " {\n" + indent(strings.Join(lines, "\n")) + "\n}"
}

func wrapGraph(graph string, lines []string) []string {
	if graph == "" {
		return lines
	}
	return []string{block("GRAPH <"+graph+">", lines)}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "\n")
}

// joinLines joins the non-empty parts with newlines.
func joinLines(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
