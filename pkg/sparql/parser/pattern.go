package parser

import (
	"fmt"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

var groupKeywords = []string{"GRAPH", "FILTER", "BIND", "OPTIONAL", "MINUS", "VALUES", "SERVICE"}

// parseGraphPattern parses a group graph pattern: { ... }
func (p *Parser) parseGraphPattern() (*GraphPattern, error) {
	if err := p.expect('{', "to start graph pattern"); err != nil {
		return nil, err
	}

	pattern := &GraphPattern{
		Type:     GraphPatternTypeBasic,
		Patterns: []*TriplePattern{},
		Filters:  []*Filter{},
		Binds:    []*Bind{},
		Elements: []PatternElement{},
	}

	for {
		p.skipWhitespace()

		if p.peek() == '}' {
			p.advance()
			return pattern, nil
		}
		if p.pos >= p.length {
			return nil, fmt.Errorf("unterminated graph pattern, expected '}'")
		}

		if p.matchKeyword("GRAPH") {
			graphPattern, err := p.parseGraphGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.Children = append(pattern.Children, graphPattern)
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("FILTER") {
			filter, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			pattern.Filters = append(pattern.Filters, filter)
			pattern.Elements = append(pattern.Elements, PatternElement{Filter: filter})
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("BIND") {
			bind, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			pattern.Binds = append(pattern.Binds, bind)
			pattern.Elements = append(pattern.Elements, PatternElement{Bind: bind})
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("OPTIONAL") {
			optionalPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			optionalPattern.Type = GraphPatternTypeOptional
			pattern.Children = append(pattern.Children, optionalPattern)
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("MINUS") {
			minusPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			minusPattern.Type = GraphPatternTypeMinus
			pattern.Children = append(pattern.Children, minusPattern)
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("VALUES") {
			data, err := p.parseInlineData()
			if err != nil {
				return nil, err
			}
			pattern.Children = append(pattern.Children, &GraphPattern{Type: GraphPatternTypeValues, Values: data})
			p.skipOptionalDot()
			continue
		}

		if p.matchKeyword("SERVICE") {
			p.matchKeyword("SILENT")
			graph, err := p.parseGraphTerm()
			if err != nil {
				return nil, fmt.Errorf("SERVICE: %w", err)
			}
			nested, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			nested.Graph = graph
			pattern.Children = append(pattern.Children, nested)
			p.skipOptionalDot()
			continue
		}

		// Nested group, sub-select, or UNION chain
		if p.peek() == '{' {
			left, err := p.parseGroupOrSubQuery()
			if err != nil {
				return nil, err
			}
			for p.matchKeyword("UNION") {
				right, err := p.parseGroupOrSubQuery()
				if err != nil {
					return nil, err
				}
				left = &GraphPattern{
					Type:     GraphPatternTypeUnion,
					Children: []*GraphPattern{left, right},
				}
			}
			pattern.Children = append(pattern.Children, left)
			p.skipOptionalDot()
			continue
		}

		triples, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		pattern.Patterns = append(pattern.Patterns, triples...)
		for _, triple := range triples {
			pattern.Elements = append(pattern.Elements, PatternElement{Triple: triple})
		}

		// Consecutive triple blocks must be separated by '.'
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		} else if p.peek() != '}' && p.peek() != '{' && !p.lookingAtKeyword(groupKeywords...) {
			return nil, fmt.Errorf("expected '.' or '}' after triple pattern, found %s", p.describeNext())
		}
	}
}

// rejectPaths fails when any triple uses a property path.
func rejectPaths(triples []*TriplePattern, where string) error {
	for _, t := range triples {
		if t.Path != nil {
			return fmt.Errorf("property paths are not allowed in %s", where)
		}
	}
	return nil
}

func (p *Parser) skipOptionalDot() {
	p.skipWhitespace()
	if p.peek() == '.' {
		p.advance()
	}
}

// parseGroupOrSubQuery parses { ... } or { SELECT ... }
func (p *Parser) parseGroupOrSubQuery() (*GraphPattern, error) {
	p.skipWhitespace()
	saved := p.pos
	if p.peek() == '{' {
		p.advance()
		if p.matchKeyword("SELECT") {
			sub, err := p.parseSelect(true)
			if err != nil {
				return nil, err
			}
			if err := p.parseValuesClause(); err != nil {
				return nil, err
			}
			if err := p.expect('}', "to close sub-select"); err != nil {
				return nil, err
			}
			return &GraphPattern{Type: GraphPatternTypeSubQuery, SubQuery: sub}, nil
		}
		p.pos = saved
	}
	return p.parseGraphPattern()
}

// parseGraphTerm parses an IRI, prefixed name or variable naming a graph
func (p *Parser) parseGraphTerm() (*GraphTerm, error) {
	p.skipWhitespace()
	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &GraphTerm{Variable: v}, nil
	}
	if p.peek() != '<' && !p.atPrefixedName() {
		return nil, fmt.Errorf("expected IRI or variable, found %s", p.describeNext())
	}
	iri, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return nil, err
	}
	return &GraphTerm{IRI: rdf.NewNamedNode(iri)}, nil
}

// parseGraphGraphPattern parses a GRAPH <iri> { ... } or GRAPH ?var { ... } pattern
func (p *Parser) parseGraphGraphPattern() (*GraphPattern, error) {
	graphTerm, err := p.parseGraphTerm()
	if err != nil {
		return nil, fmt.Errorf("GRAPH: %w", err)
	}

	nestedPattern, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}

	return &GraphPattern{
		Type:     GraphPatternTypeGraph,
		Graph:    graphTerm,
		Patterns: nestedPattern.Patterns,
		Filters:  nestedPattern.Filters,
		Binds:    nestedPattern.Binds,
		Children: nestedPattern.Children,
		Elements: nestedPattern.Elements,
	}, nil
}

// parseTriplesBlock parses { triples } as used by CONSTRUCT templates
func (p *Parser) parseTriplesBlock() ([]*TriplePattern, error) {
	if err := p.expect('{', "to start template"); err != nil {
		return nil, err
	}
	triples, err := p.parseTriplesTemplate()
	if err != nil {
		return nil, err
	}
	if err := p.expect('}', "to close template"); err != nil {
		return nil, err
	}
	if err := rejectPaths(triples, "templates"); err != nil {
		return nil, err
	}
	return triples, nil
}

// parseTriplesTemplate parses '.'-separated triples up to '}' or GRAPH
func (p *Parser) parseTriplesTemplate() ([]*TriplePattern, error) {
	var template []*TriplePattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' || p.pos >= p.length || p.lookingAtKeyword("GRAPH") {
			return template, nil
		}

		patterns, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		template = append(template, patterns...)

		p.skipWhitespace()
		if p.peek() != '.' {
			return template, nil
		}
		p.advance()
	}
}

// parseTriplePatterns parses a subject and its property list. A blank node
// property list or collection in subject position may stand alone. The
// result holds every triple the block expands to.
//
//	?s ?p1 ?o1 ; ?p2 ?o2 .          (semicolon repeats subject)
//	?s ?p ?o1 , ?o2 .               (comma repeats subject and predicate)
//	?s <p>/^<q>* [ ?r (1 2) ] .     (paths, blank node lists, collections)
func (p *Parser) parseTriplePatterns() ([]*TriplePattern, error) {
	var triples []*TriplePattern

	subject, err := p.parseGraphNode(&triples)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject: %w", err)
	}
	if subject.Term != nil && subject.Term.Type() == rdf.TermTypeLiteral {
		return nil, fmt.Errorf("literal %s cannot be a subject", subject.Term)
	}
	if len(triples) > 0 && !p.atVerb() {
		return triples, nil
	}

	if err := p.parsePropertyList(*subject, &triples); err != nil {
		return nil, err
	}
	return triples, nil
}

// parsePropertyList parses verb objectList ( ';' ( verb objectList )? )*.
func (p *Parser) parsePropertyList(subject TermOrVariable, triples *[]*TriplePattern) error {
	for {
		predicate, path, err := p.parseVerb()
		if err != nil {
			return fmt.Errorf("failed to parse predicate: %w", err)
		}

		for {
			object, err := p.parseGraphNode(triples)
			if err != nil {
				return fmt.Errorf("failed to parse object: %w", err)
			}
			*triples = append(*triples, &TriplePattern{
				Subject:   subject,
				Predicate: predicate,
				Object:    *object,
				Path:      path,
			})

			p.skipWhitespace()
			if p.peek() != ',' {
				break
			}
			p.advance()
		}

		if p.peek() != ';' {
			return nil
		}
		for p.peek() == ';' {
			p.advance()
			p.skipWhitespace()
		}
		// A trailing semicolon ends the list
		if !p.atVerb() {
			return nil
		}
	}
}

// atVerb reports whether a variable or the start of a path comes next.
func (p *Parser) atVerb() bool {
	p.skipWhitespace()
	switch ch := p.peek(); {
	case ch == '?', ch == '$', ch == '<', ch == '^', ch == '!', ch == '(':
		return true
	case ch == 'a' && !isNameChar(p.peekAt(1)):
		return true
	}
	return p.atPrefixedName()
}

// parseVerb parses a predicate variable or a property path. Single IRIs are
// returned as the predicate term with a nil path.
func (p *Parser) parseVerb() (TermOrVariable, *Path, error) {
	p.skipWhitespace()
	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return TermOrVariable{}, nil, err
		}
		return TermOrVariable{Variable: v}, nil, nil
	}

	path, err := p.parsePath()
	if err != nil {
		return TermOrVariable{}, nil, err
	}
	if path.Kind == PathLink {
		return TermOrVariable{Term: rdf.NewNamedNode(path.IRI)}, nil, nil
	}
	return TermOrVariable{}, path, nil
}

// parsePath parses PathAlternative: PathSequence ( '|' PathSequence )*.
func (p *Parser) parsePath() (*Path, error) {
	return p.parsePathList('|', PathAlternative, p.parsePathSequence)
}

// parsePathSequence parses PathEltOrInverse ( '/' PathEltOrInverse )*.
func (p *Parser) parsePathSequence() (*Path, error) {
	return p.parsePathList('/', PathSequence, p.parsePathEltOrInverse)
}

func (p *Parser) parsePathList(sep byte, kind PathKind, next func() (*Path, error)) (*Path, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	children := []*Path{first}
	for {
		p.skipWhitespace()
		if p.peek() != sep {
			break
		}
		p.advance()
		elt, err := next()
		if err != nil {
			return nil, err
		}
		children = append(children, elt)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &Path{Kind: kind, Children: children}, nil
}

func (p *Parser) parsePathEltOrInverse() (*Path, error) {
	p.skipWhitespace()
	if p.peek() != '^' {
		return p.parsePathElt()
	}
	p.advance()
	elt, err := p.parsePathElt()
	if err != nil {
		return nil, err
	}
	return &Path{Kind: PathInverse, Children: []*Path{elt}}, nil
}

// parsePathElt parses a primary with an optional '*', '+' or '?'. A '?'
// followed by a name character starts the object variable instead, and a
// '+' followed by a digit starts a signed number.
func (p *Parser) parsePathElt() (*Path, error) {
	primary, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	var kind PathKind
	switch next := p.peekAt(1); p.peek() {
	case '*':
		kind = PathZeroOrMore
	case '+':
		if isDigit(next) || next == '.' {
			return primary, nil
		}
		kind = PathOneOrMore
	case '?':
		if isVarChar(next) {
			return primary, nil
		}
		kind = PathZeroOrOne
	default:
		return primary, nil
	}
	p.advance()
	return &Path{Kind: kind, Children: []*Path{primary}}, nil
}

func (p *Parser) parsePathPrimary() (*Path, error) {
	p.skipWhitespace()
	switch p.peek() {
	case '!':
		p.advance()
		return p.parseNegatedPropertySet()
	case '(':
		p.advance()
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')', "to close path group"); err != nil {
			return nil, err
		}
		return path, nil
	}

	iri, err := p.parsePathIRI()
	if err != nil {
		return nil, err
	}
	return &Path{Kind: PathLink, IRI: iri}, nil
}

// parseNegatedPropertySet parses the operand of '!': one possibly inverted
// IRI, or a parenthesised '|' list of them.
func (p *Parser) parseNegatedPropertySet() (*Path, error) {
	negated := &Path{Kind: PathNegated}

	p.skipWhitespace()
	if p.peek() != '(' {
		one, err := p.parsePathOneInPropertySet()
		if err != nil {
			return nil, err
		}
		negated.Children = []*Path{one}
		return negated, nil
	}

	p.advance()
	p.skipWhitespace()
	if p.peek() == ')' {
		p.advance()
		return negated, nil
	}
	for {
		one, err := p.parsePathOneInPropertySet()
		if err != nil {
			return nil, err
		}
		negated.Children = append(negated.Children, one)

		p.skipWhitespace()
		switch p.peek() {
		case ')':
			p.advance()
			return negated, nil
		case '|':
			p.advance()
		default:
			return nil, fmt.Errorf("expected '|' or ')' in negated property set, found %s", p.describeNext())
		}
	}
}

func (p *Parser) parsePathOneInPropertySet() (*Path, error) {
	p.skipWhitespace()
	inverse := p.peek() == '^'
	if inverse {
		p.advance()
	}
	iri, err := p.parsePathIRI()
	if err != nil {
		return nil, err
	}
	link := &Path{Kind: PathLink, IRI: iri}
	if inverse {
		return &Path{Kind: PathInverse, Children: []*Path{link}}, nil
	}
	return link, nil
}

// parsePathIRI parses an IRI, a prefixed name or 'a'.
func (p *Parser) parsePathIRI() (string, error) {
	p.skipWhitespace()
	switch {
	case p.peek() == '<':
		return p.parseIRI()
	case p.peek() == 'a' && !isNameChar(p.peekAt(1)):
		p.advance()
		return rdf.RDFNamespace + "type", nil
	case p.atPrefixedName():
		return p.parsePrefixedName()
	}
	return "", fmt.Errorf("expected IRI or property path, found %s", p.describeNext())
}

// parseGraphNode parses a subject or object: a term, a variable, a blank node
// property list or a collection. Triples implied by the last two are
// appended to triples.
func (p *Parser) parseGraphNode(triples *[]*TriplePattern) (*TermOrVariable, error) {
	p.skipWhitespace()
	switch {
	case p.peek() == '[' && !p.atAnon():
		p.advance()
		node := TermOrVariable{Term: p.freshBlankNode()}
		if err := p.parsePropertyList(node, triples); err != nil {
			return nil, err
		}
		if err := p.expect(']', "to close blank node property list"); err != nil {
			return nil, err
		}
		return &node, nil
	case p.peek() == '(':
		p.advance()
		return p.parseCollection(triples)
	}
	return p.parseTermOrVariable()
}

// atAnon reports whether an empty [ ] comes next.
func (p *Parser) atAnon() bool {
	saved := p.pos
	defer func() { p.pos = saved }()
	p.advance()
	p.skipWhitespace()
	return p.peek() == ']'
}

// parseCollection parses the members after '(' and expands them into an
// rdf:first/rdf:rest chain. The empty collection is rdf:nil.
func (p *Parser) parseCollection(triples *[]*TriplePattern) (*TermOrVariable, error) {
	first := TermOrVariable{Term: rdf.NewNamedNode(rdf.RDFNamespace + "first")}
	rest := TermOrVariable{Term: rdf.NewNamedNode(rdf.RDFNamespace + "rest")}
	head := &TermOrVariable{Term: rdf.NewNamedNode(rdf.RDFNamespace + "nil")}

	var prev *TermOrVariable
	for {
		p.skipWhitespace()
		if p.peek() == ')' {
			p.advance()
			break
		}
		if p.pos >= p.length {
			return nil, fmt.Errorf("unterminated collection, expected ')'")
		}

		member, err := p.parseGraphNode(triples)
		if err != nil {
			return nil, err
		}
		cell := &TermOrVariable{Term: p.freshBlankNode()}
		if prev == nil {
			head = cell
		} else {
			*triples = append(*triples, &TriplePattern{Subject: *prev, Predicate: rest, Object: *cell})
		}
		*triples = append(*triples, &TriplePattern{Subject: *cell, Predicate: first, Object: *member})
		prev = cell
	}

	if prev != nil {
		*triples = append(*triples, &TriplePattern{
			Subject:   *prev,
			Predicate: rest,
			Object:    TermOrVariable{Term: rdf.NewNamedNode(rdf.RDFNamespace + "nil")},
		})
	}
	return head, nil
}

func (p *Parser) freshBlankNode() *rdf.BlankNode {
	p.bnodes++
	return rdf.NewBlankNode(fmt.Sprintf("genid%d", p.bnodes))
}

// parseTermOrVariable parses either an RDF term or a variable
func (p *Parser) parseTermOrVariable() (*TermOrVariable, error) {
	p.skipWhitespace()

	ch := p.peek()

	if p.pos >= p.length {
		return nil, fmt.Errorf("unexpected end of input")
	}

	if ch == '?' || ch == '$' {
		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Variable: variable}, nil
	}

	if ch == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	}

	if ch == '"' || ch == '\'' {
		literal, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	if (ch == '_' && p.peekAt(1) == ':') || ch == '[' {
		blankNode, err := p.parseBlankNode()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: blankNode}, nil
	}

	if isDigit(ch) || ((ch == '-' || ch == '+' || ch == '.') && (isDigit(p.peekAt(1)) || p.peekAt(1) == '.')) {
		literal, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	// Keyword 'a' (shorthand for rdf:type)
	if ch == 'a' && !isNameChar(p.peekAt(1)) {
		p.advance()
		return &TermOrVariable{Term: rdf.NewNamedNode(rdf.RDFNamespace + "type")}, nil
	}

	if p.matchKeyword("true") {
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(true)}, nil
	}
	if p.matchKeyword("false") {
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(false)}, nil
	}

	if p.atPrefixedName() {
		prefixedName, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(prefixedName)}, nil
	}

	return nil, fmt.Errorf("unexpected %s", p.describeNext())
}

// atPrefixedName reports whether a prefix followed by ':' comes next.
func (p *Parser) atPrefixedName() bool {
	i := p.pos
	if i < p.length && p.input[i] != ':' && !((p.input[i] >= 'a' && p.input[i] <= 'z') ||
		(p.input[i] >= 'A' && p.input[i] <= 'Z') || p.input[i] >= 0x80) {
		return false
	}
	for i < p.length && p.input[i] != ':' && (isVarChar(p.input[i]) || p.input[i] == '-' || p.input[i] == '.') {
		i++
	}
	return i < p.length && p.input[i] == ':'
}

// atFunctionCall reports whether a function name followed by '(' comes next.
func (p *Parser) atFunctionCall() bool {
	i := p.pos
	start := i
	for i < p.length && (isVarChar(p.input[i]) || p.input[i] == ':' || p.input[i] == '-') {
		i++
	}
	if i == start || isDigit(p.input[start]) {
		return false
	}
	for i < p.length && (p.input[i] == ' ' || p.input[i] == '\t' || p.input[i] == '\n' || p.input[i] == '\r') {
		i++
	}
	return i < p.length && p.input[i] == '('
}

// parseInlineData parses the body of a VALUES block
func (p *Parser) parseInlineData() (*InlineData, error) {
	data := &InlineData{}
	p.skipWhitespace()

	multi := p.peek() == '('
	if multi {
		p.advance()
		for {
			p.skipWhitespace()
			if p.peek() == ')' {
				p.advance()
				break
			}
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			data.Variables = append(data.Variables, v)
		}
	} else {
		v, err := p.parseVariable()
		if err != nil {
			return nil, fmt.Errorf("VALUES: %w", err)
		}
		data.Variables = []*Variable{v}
	}

	if err := p.expect('{', "to start VALUES data"); err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			return data, nil
		}
		if !multi {
			term, err := p.parseDataBlockValue()
			if err != nil {
				return nil, err
			}
			data.Rows = append(data.Rows, []rdf.Term{term})
			continue
		}
		if err := p.expect('(', "to start VALUES row"); err != nil {
			return nil, err
		}
		var row []rdf.Term
		for {
			p.skipWhitespace()
			if p.peek() == ')' {
				p.advance()
				break
			}
			term, err := p.parseDataBlockValue()
			if err != nil {
				return nil, err
			}
			row = append(row, term)
		}
		if len(row) != len(data.Variables) {
			return nil, fmt.Errorf("VALUES row has %d values for %d variables", len(row), len(data.Variables))
		}
		data.Rows = append(data.Rows, row)
	}
}

func (p *Parser) parseDataBlockValue() (rdf.Term, error) {
	if p.matchKeyword("UNDEF") {
		return nil, nil
	}
	tv, err := p.parseTermOrVariable()
	if err != nil {
		return nil, err
	}
	if tv.IsVariable() || tv.Term.Type() == rdf.TermTypeBlankNode {
		return nil, fmt.Errorf("VALUES data must be IRIs or literals")
	}
	return tv.Term, nil
}
