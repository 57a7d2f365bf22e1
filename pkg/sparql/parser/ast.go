package parser

import (
	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

// Query represents a SPARQL query
type Query struct {
	QueryType QueryType
	Select    *SelectQuery
	Construct *ConstructQuery
	Ask       *AskQuery
	Describe  *DescribeQuery
}

// QueryType represents the type of SPARQL query
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeConstruct
	QueryTypeAsk
	QueryTypeDescribe
)

func (t QueryType) String() string {
	switch t {
	case QueryTypeSelect:
		return "SELECT"
	case QueryTypeConstruct:
		return "CONSTRUCT"
	case QueryTypeAsk:
		return "ASK"
	case QueryTypeDescribe:
		return "DESCRIBE"
	default:
		return "UNKNOWN"
	}
}

// DatasetClause is a FROM or FROM NAMED clause
type DatasetClause struct {
	IRI   string
	Named bool
}

// Modifiers holds the solution modifiers shared by every query form
type Modifiers struct {
	GroupBy []*GroupCondition
	Having  []*Filter
	OrderBy []*OrderCondition
	Limit   *int
	Offset  *int
}

// SelectQuery represents a SELECT query
type SelectQuery struct {
	Variables   []*Variable   // nil for SELECT *
	Projections []*Projection // (expr AS ?var) entries
	Distinct    bool
	Reduced     bool
	Dataset     []DatasetClause
	Where       *GraphPattern
	Modifiers
}

// Projection is a projected expression: (expression AS ?variable)
type Projection struct {
	Expression Expression
	Variable   *Variable
}

// ConstructQuery represents a CONSTRUCT query
type ConstructQuery struct {
	Template []*TriplePattern
	Dataset  []DatasetClause
	Where    *GraphPattern
	Modifiers
}

// AskQuery represents an ASK query
type AskQuery struct {
	Dataset []DatasetClause
	Where   *GraphPattern
	Modifiers
}

// DescribeQuery represents a DESCRIBE query
type DescribeQuery struct {
	Resources []*rdf.NamedNode
	Variables []*Variable
	Dataset   []DatasetClause
	Where     *GraphPattern // optional
	Modifiers
}

// GraphPattern represents a graph pattern
type GraphPattern struct {
	Type     GraphPatternType
	Patterns []*TriplePattern
	Filters  []*Filter
	Binds    []*Bind
	Children []*GraphPattern
	Elements []PatternElement // triples, filters and binds in source order
	Graph    *GraphTerm       // for GRAPH patterns
	Values   *InlineData      // for VALUES blocks
	SubQuery *SelectQuery     // for { SELECT ... } sub-selects
}

// GraphPatternType represents the type of graph pattern
type GraphPatternType int

const (
	GraphPatternTypeBasic GraphPatternType = iota
	GraphPatternTypeUnion
	GraphPatternTypeOptional
	GraphPatternTypeGraph
	GraphPatternTypeMinus
	GraphPatternTypeValues
	GraphPatternTypeSubQuery
)

// PatternElement is one ordered element of a group
type PatternElement struct {
	Triple *TriplePattern
	Filter *Filter
	Bind   *Bind
}

// InlineData is a VALUES block
type InlineData struct {
	Variables []*Variable
	Rows      [][]rdf.Term // nil entries stand for UNDEF
}

// TriplePattern represents a triple pattern with possible variables
type TriplePattern struct {
	Subject   TermOrVariable
	Predicate TermOrVariable
	Object    TermOrVariable
	// Path is set instead of Predicate when the verb is a property path
	// other than a single IRI.
	Path *Path
}

// PathKind identifies a property path operator.
type PathKind int

const (
	PathLink        PathKind = iota // a single IRI
	PathInverse                     // ^elt
	PathSequence                    // elt / elt
	PathAlternative                 // seq | seq
	PathZeroOrMore                  // elt*
	PathOneOrMore                   // elt+
	PathZeroOrOne                   // elt?
	PathNegated                     // !iri or !(iri | ^iri)
)

// Path is a property path expression tree.
type Path struct {
	Kind     PathKind
	IRI      string // PathLink only
	Children []*Path
}

// HasVariable reports whether any position is a variable
func (t *TriplePattern) HasVariable() bool {
	return t.Subject.IsVariable() || t.Predicate.IsVariable() || t.Object.IsVariable()
}

// HasBlankNode reports whether any position is a blank node
func (t *TriplePattern) HasBlankNode() bool {
	for _, tv := range []TermOrVariable{t.Subject, t.Predicate, t.Object} {
		if tv.Term != nil && tv.Term.Type() == rdf.TermTypeBlankNode {
			return true
		}
	}
	return false
}

// TermOrVariable can be either an RDF term or a variable
type TermOrVariable struct {
	Term     rdf.Term
	Variable *Variable
}

// IsVariable returns true if this is a variable
func (t *TermOrVariable) IsVariable() bool {
	return t.Variable != nil
}

// Variable represents a SPARQL variable
type Variable struct {
	Name string
}

// GraphTerm represents a graph name (can be IRI or variable)
type GraphTerm struct {
	IRI      *rdf.NamedNode
	Variable *Variable
}

// Filter represents a FILTER expression
type Filter struct {
	Expression Expression
}

// Bind represents a BIND expression (assigns an expression to a variable)
type Bind struct {
	Expression Expression
	Variable   *Variable
}

// Expression represents a SPARQL expression
type Expression interface {
	expressionNode()
}

// BinaryExpression represents a binary operation
type BinaryExpression struct {
	Left     Expression
	Operator Operator
	Right    Expression
}

func (e *BinaryExpression) expressionNode() {}

// UnaryExpression represents a unary operation
type UnaryExpression struct {
	Operator Operator
	Operand  Expression
}

func (e *UnaryExpression) expressionNode() {}

// VariableExpression represents a variable in an expression
type VariableExpression struct {
	Variable *Variable
}

func (e *VariableExpression) expressionNode() {}

// LiteralExpression represents a constant term in an expression
type LiteralExpression struct {
	Literal rdf.Term
}

func (e *LiteralExpression) expressionNode() {}

// FunctionCallExpression represents a function call
type FunctionCallExpression struct {
	Function  string
	Distinct  bool
	Arguments []Expression
	Separator *string // GROUP_CONCAT separator
}

func (e *FunctionCallExpression) expressionNode() {}

// InExpression represents IN and NOT IN
type InExpression struct {
	Not        bool
	Expression Expression
	Values     []Expression
}

func (e *InExpression) expressionNode() {}

// ExistsExpression represents EXISTS and NOT EXISTS
type ExistsExpression struct {
	Not     bool
	Pattern GraphPattern
}

func (e *ExistsExpression) expressionNode() {}

// Operator represents an operator in expressions
type Operator int

const (
	OpAnd Operator = iota
	OpOr
	OpNot

	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
)

// OrderCondition represents an ORDER BY condition
type OrderCondition struct {
	Expression Expression
	Ascending  bool
}

// GroupCondition represents a GROUP BY condition
type GroupCondition struct {
	Expression Expression
	Variable   *Variable // the AS variable, or the grouped variable itself
}

// Update is a sequence of update operations separated by ';'
type Update struct {
	Operations []UpdateOperation
}

// UpdateOperation is implemented by every update form
type UpdateOperation interface {
	updateNode()
}

// QuadBlock is a run of triples in the default graph or inside GRAPH
type QuadBlock struct {
	Graph   *GraphTerm // nil for the default graph
	Triples []*TriplePattern
}

// InsertData represents INSERT DATA
type InsertData struct {
	Quads []*QuadBlock
}

func (*InsertData) updateNode() {}

// DeleteData represents DELETE DATA
type DeleteData struct {
	Quads []*QuadBlock
}

func (*DeleteData) updateNode() {}

// DeleteWhere represents DELETE WHERE
type DeleteWhere struct {
	Quads []*QuadBlock
}

func (*DeleteWhere) updateNode() {}

// Modify represents WITH/DELETE/INSERT/USING/WHERE
type Modify struct {
	With   string
	Delete []*QuadBlock // nil when there is no DELETE clause
	Insert []*QuadBlock // nil when there is no INSERT clause
	Using  []DatasetClause
	Where  *GraphPattern
}

func (*Modify) updateNode() {}

// GraphManagement represents LOAD, CLEAR, DROP, CREATE, ADD, MOVE and COPY
type GraphManagement struct {
	Operation string // upper-case keyword
	Silent    bool
	Source    string // IRI, or DEFAULT, NAMED, ALL
	Target    string // INTO/TO target, empty when absent
}

func (*GraphManagement) updateNode() {}
