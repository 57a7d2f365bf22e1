package parser

import (
	"fmt"
	"strings"
)

// ParseUpdate parses a SPARQL update request: one or more operations
// separated by ';', each optionally preceded by PREFIX and BASE declarations.
func (p *Parser) ParseUpdate() (*Update, error) {
	update, err := p.parseUpdate()
	if err != nil {
		return nil, p.syntaxError(err)
	}
	return update, nil
}

func (p *Parser) parseUpdate() (*Update, error) {
	update := &Update{}

	for {
		if err := p.parsePrologue(); err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.pos >= p.length {
			break
		}

		op, err := p.parseUpdateOperation()
		if err != nil {
			return nil, err
		}
		update.Operations = append(update.Operations, op)

		p.skipWhitespace()
		if p.peek() != ';' {
			break
		}
		p.advance()
	}

	if len(update.Operations) == 0 {
		return nil, fmt.Errorf("empty update request")
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return update, nil
}

func (p *Parser) parseUpdateOperation() (UpdateOperation, error) {
	switch {
	case p.matchKeyword("INSERT"):
		if p.matchKeyword("DATA") {
			quads, err := p.parseQuadData(false)
			if err != nil {
				return nil, fmt.Errorf("INSERT DATA: %w", err)
			}
			return &InsertData{Quads: quads}, nil
		}
		return p.parseModify("", false)
	case p.matchKeyword("DELETE"):
		if p.matchKeyword("DATA") {
			quads, err := p.parseQuadData(true)
			if err != nil {
				return nil, fmt.Errorf("DELETE DATA: %w", err)
			}
			return &DeleteData{Quads: quads}, nil
		}
		if p.matchKeyword("WHERE") {
			quads, err := p.parseQuadPattern(true)
			if err != nil {
				return nil, fmt.Errorf("DELETE WHERE: %w", err)
			}
			return &DeleteWhere{Quads: quads}, nil
		}
		return p.parseModify("", true)
	case p.matchKeyword("WITH"):
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, fmt.Errorf("WITH: %w", err)
		}
		if p.matchKeyword("DELETE") {
			return p.parseModify(iri, true)
		}
		if p.matchKeyword("INSERT") {
			return p.parseModify(iri, false)
		}
		return nil, fmt.Errorf("expected DELETE or INSERT after WITH")
	case p.matchKeyword("LOAD"):
		return p.parseLoad()
	case p.lookingAtKeyword("CLEAR", "DROP"):
		return p.parseClearOrDrop()
	case p.matchKeyword("CREATE"):
		silent := p.matchKeyword("SILENT")
		if !p.matchKeyword("GRAPH") {
			return nil, fmt.Errorf("expected GRAPH after CREATE")
		}
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &GraphManagement{Operation: "CREATE", Silent: silent, Source: iri}, nil
	case p.lookingAtKeyword("ADD", "MOVE", "COPY"):
		return p.parseTransfer()
	}
	return nil, fmt.Errorf("expected update operation, found %s", p.describeNext())
}

// parseModify parses the rest of a DELETE/INSERT operation. The DELETE or
// INSERT keyword of the first clause has been consumed already.
func (p *Parser) parseModify(with string, deleteFirst bool) (*Modify, error) {
	op := &Modify{With: with}

	if deleteFirst {
		quads, err := p.parseQuadPattern(true)
		if err != nil {
			return nil, fmt.Errorf("DELETE: %w", err)
		}
		op.Delete = nonNil(quads)
		if p.matchKeyword("INSERT") {
			quads, err := p.parseQuadPattern(false)
			if err != nil {
				return nil, fmt.Errorf("INSERT: %w", err)
			}
			op.Insert = nonNil(quads)
		}
	} else {
		quads, err := p.parseQuadPattern(false)
		if err != nil {
			return nil, fmt.Errorf("INSERT: %w", err)
		}
		op.Insert = nonNil(quads)
	}

	for p.matchKeyword("USING") {
		named := p.matchKeyword("NAMED")
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, fmt.Errorf("USING: %w", err)
		}
		op.Using = append(op.Using, DatasetClause{IRI: iri, Named: named})
	}

	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE clause, found %s", p.describeNext())
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	op.Where = where
	return op, nil
}

func nonNil(quads []*QuadBlock) []*QuadBlock {
	if quads == nil {
		return []*QuadBlock{}
	}
	return quads
}

// parseQuadData parses the block of INSERT DATA or DELETE DATA. Variables are
// never allowed; blank nodes are rejected when deleting.
func (p *Parser) parseQuadData(deleting bool) ([]*QuadBlock, error) {
	quads, err := p.parseQuads()
	if err != nil {
		return nil, err
	}
	for _, q := range quads {
		if q.Graph != nil && q.Graph.Variable != nil {
			return nil, fmt.Errorf("variables are not allowed in DATA blocks")
		}
		for _, t := range q.Triples {
			if t.HasVariable() {
				return nil, fmt.Errorf("variables are not allowed in DATA blocks")
			}
			if t.Path != nil {
				return nil, fmt.Errorf("property paths are not allowed in DATA blocks")
			}
			if deleting && t.HasBlankNode() {
				return nil, fmt.Errorf("blank nodes are not allowed in DELETE DATA")
			}
		}
	}
	return quads, nil
}

// parseQuadPattern parses a DELETE or INSERT template. Blank nodes are
// rejected in DELETE templates.
func (p *Parser) parseQuadPattern(deleting bool) ([]*QuadBlock, error) {
	quads, err := p.parseQuads()
	if err != nil {
		return nil, err
	}
	for _, q := range quads {
		for _, t := range q.Triples {
			if t.Path != nil {
				return nil, fmt.Errorf("property paths are not allowed in templates")
			}
			if deleting && t.HasBlankNode() {
				return nil, fmt.Errorf("blank nodes are not allowed in DELETE templates")
			}
		}
	}
	return quads, nil
}

// parseQuads parses '{' triples ( GRAPH g '{' triples '}' '.'? triples )* '}'
func (p *Parser) parseQuads() ([]*QuadBlock, error) {
	if err := p.expect('{', "to start quad block"); err != nil {
		return nil, err
	}

	var quads []*QuadBlock
	for {
		triples, err := p.parseTriplesTemplate()
		if err != nil {
			return nil, err
		}
		if len(triples) > 0 {
			quads = append(quads, &QuadBlock{Triples: triples})
		}

		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			return quads, nil
		}
		if !p.matchKeyword("GRAPH") {
			return nil, fmt.Errorf("expected '.', GRAPH or '}' in quad block, found %s", p.describeNext())
		}

		graph, err := p.parseGraphTerm()
		if err != nil {
			return nil, fmt.Errorf("GRAPH: %w", err)
		}
		if err := p.expect('{', "after GRAPH name"); err != nil {
			return nil, err
		}
		inner, err := p.parseTriplesTemplate()
		if err != nil {
			return nil, err
		}
		if err := p.expect('}', "to close GRAPH block"); err != nil {
			return nil, err
		}
		quads = append(quads, &QuadBlock{Graph: graph, Triples: inner})
		p.skipOptionalDot()
	}
}

func (p *Parser) parseLoad() (*GraphManagement, error) {
	op := &GraphManagement{Operation: "LOAD", Silent: p.matchKeyword("SILENT")}
	iri, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return nil, fmt.Errorf("LOAD: %w", err)
	}
	op.Source = iri
	if p.matchKeyword("INTO") {
		if !p.matchKeyword("GRAPH") {
			return nil, fmt.Errorf("expected GRAPH after INTO")
		}
		if op.Target, err = p.parseIRIOrPrefixedName(); err != nil {
			return nil, fmt.Errorf("LOAD INTO: %w", err)
		}
	}
	return op, nil
}

// parseClearOrDrop parses CLEAR|DROP SILENT? (GRAPH iri | DEFAULT | NAMED | ALL)
func (p *Parser) parseClearOrDrop() (*GraphManagement, error) {
	op := &GraphManagement{Operation: "CLEAR"}
	if p.matchKeyword("DROP") {
		op.Operation = "DROP"
	} else {
		p.matchKeyword("CLEAR")
	}
	op.Silent = p.matchKeyword("SILENT")

	for _, kw := range []string{"DEFAULT", "NAMED", "ALL"} {
		if p.matchKeyword(kw) {
			op.Source = kw
			return op, nil
		}
	}
	if !p.matchKeyword("GRAPH") {
		return nil, fmt.Errorf("expected GRAPH, DEFAULT, NAMED or ALL after %s", op.Operation)
	}
	iri, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return nil, err
	}
	op.Source = iri
	return op, nil
}

// parseTransfer parses ADD|MOVE|COPY SILENT? from TO to
func (p *Parser) parseTransfer() (*GraphManagement, error) {
	op := &GraphManagement{}
	p.skipWhitespace()
	for _, kw := range []string{"ADD", "MOVE", "COPY"} {
		if p.matchKeyword(kw) {
			op.Operation = kw
			break
		}
	}
	op.Silent = p.matchKeyword("SILENT")

	source, err := p.parseGraphOrDefault()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Operation, err)
	}
	if !p.matchKeyword("TO") {
		return nil, fmt.Errorf("expected TO in %s", op.Operation)
	}
	target, err := p.parseGraphOrDefault()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Operation, err)
	}
	op.Source, op.Target = source, target
	return op, nil
}

func (p *Parser) parseGraphOrDefault() (string, error) {
	if p.matchKeyword("DEFAULT") {
		return "DEFAULT", nil
	}
	p.matchKeyword("GRAPH")
	iri, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return "", err
	}
	return iri, nil
}

// OperationNames returns the upper-case keyword of each operation, such as
// "INSERT DATA" or "DELETE/INSERT".
func (u *Update) OperationNames() []string {
	names := make([]string, 0, len(u.Operations))
	for _, op := range u.Operations {
		switch o := op.(type) {
		case *InsertData:
			names = append(names, "INSERT DATA")
		case *DeleteData:
			names = append(names, "DELETE DATA")
		case *DeleteWhere:
			names = append(names, "DELETE WHERE")
		case *Modify:
			var parts []string
			if o.Delete != nil {
				parts = append(parts, "DELETE")
			}
			if o.Insert != nil {
				parts = append(parts, "INSERT")
			}
			names = append(names, strings.Join(parts, "/"))
		case *GraphManagement:
			names = append(names, o.Operation)
		}
	}
	return names
}
