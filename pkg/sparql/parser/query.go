package parser

import (
	"fmt"
	"strconv"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

// Parse parses a SPARQL query. The whole input must be consumed.
func (p *Parser) Parse() (*Query, error) {
	query, err := p.parseQuery()
	if err != nil {
		return nil, p.syntaxError(err)
	}
	return query, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}

	queryType, err := p.parseQueryType()
	if err != nil {
		return nil, err
	}

	query := &Query{QueryType: queryType}

	switch queryType {
	case QueryTypeSelect:
		query.Select, err = p.parseSelect(false)
	case QueryTypeAsk:
		query.Ask, err = p.parseAsk()
	case QueryTypeConstruct:
		query.Construct, err = p.parseConstruct()
	case QueryTypeDescribe:
		query.Describe, err = p.parseDescribe()
	}
	if err != nil {
		return nil, err
	}

	if err := p.parseValuesClause(); err != nil {
		return nil, err
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return query, nil
}

// parseQueryType determines the query type
func (p *Parser) parseQueryType() (QueryType, error) {
	p.skipWhitespace()

	if p.matchKeyword("SELECT") {
		return QueryTypeSelect, nil
	}
	if p.matchKeyword("CONSTRUCT") {
		return QueryTypeConstruct, nil
	}
	if p.matchKeyword("ASK") {
		return QueryTypeAsk, nil
	}
	if p.matchKeyword("DESCRIBE") {
		return QueryTypeDescribe, nil
	}

	return 0, fmt.Errorf("expected query type (SELECT, CONSTRUCT, ASK, DESCRIBE), found %s", p.describeNext())
}

// parseSelect parses a SELECT query after the SELECT keyword. Sub-selects
// take no dataset clauses.
func (p *Parser) parseSelect(sub bool) (*SelectQuery, error) {
	query := &SelectQuery{}

	if p.matchKeyword("DISTINCT") {
		query.Distinct = true
	} else if p.matchKeyword("REDUCED") {
		query.Reduced = true
	}

	if err := p.parseProjection(query); err != nil {
		return nil, err
	}

	if !sub {
		dataset, err := p.parseDatasetClauses()
		if err != nil {
			return nil, err
		}
		query.Dataset = dataset
	}

	// WHERE keyword is optional
	p.matchKeyword("WHERE")

	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	if err := p.parseModifiers(&query.Modifiers); err != nil {
		return nil, err
	}
	return query, nil
}

// parseAsk parses an ASK query
func (p *Parser) parseAsk() (*AskQuery, error) {
	query := &AskQuery{}

	dataset, err := p.parseDatasetClauses()
	if err != nil {
		return nil, err
	}
	query.Dataset = dataset

	p.matchKeyword("WHERE")

	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	if err := p.parseModifiers(&query.Modifiers); err != nil {
		return nil, err
	}
	return query, nil
}

// parseConstruct parses a CONSTRUCT query
func (p *Parser) parseConstruct() (*ConstructQuery, error) {
	query := &ConstructQuery{}

	p.skipWhitespace()

	// CONSTRUCT WHERE { pattern } uses the pattern as template, which is only
	// allowed for plain triple patterns.
	if p.peek() != '{' {
		dataset, err := p.parseDatasetClauses()
		if err != nil {
			return nil, err
		}
		query.Dataset = dataset
		if !p.matchKeyword("WHERE") {
			return nil, fmt.Errorf("expected '{' or WHERE after CONSTRUCT")
		}
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		if len(where.Filters) > 0 || len(where.Children) > 0 || len(where.Binds) > 0 {
			return nil, fmt.Errorf("CONSTRUCT WHERE may only contain triple patterns")
		}
		if err := rejectPaths(where.Patterns, "CONSTRUCT WHERE"); err != nil {
			return nil, err
		}
		query.Where = where
		query.Template = where.Patterns
		if err := p.parseModifiers(&query.Modifiers); err != nil {
			return nil, err
		}
		return query, nil
	}

	template, err := p.parseTriplesBlock()
	if err != nil {
		return nil, err
	}
	query.Template = template

	dataset, err := p.parseDatasetClauses()
	if err != nil {
		return nil, err
	}
	query.Dataset = dataset

	p.matchKeyword("WHERE")
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	if err := p.parseModifiers(&query.Modifiers); err != nil {
		return nil, err
	}
	return query, nil
}

// parseDescribe parses a DESCRIBE query
func (p *Parser) parseDescribe() (*DescribeQuery, error) {
	query := &DescribeQuery{}

	p.skipWhitespace()
	if p.peek() == '*' {
		p.advance()
	} else {
		for {
			p.skipWhitespace()
			ch := p.peek()
			if ch == '?' || ch == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				query.Variables = append(query.Variables, v)
				continue
			}
			if ch == '<' || p.atPrefixedName() {
				iri, err := p.parseIRIOrPrefixedName()
				if err != nil {
					return nil, err
				}
				query.Resources = append(query.Resources, rdf.NewNamedNode(iri))
				continue
			}
			break
		}
		if len(query.Resources) == 0 && len(query.Variables) == 0 {
			return nil, fmt.Errorf("expected resource, variable or '*' after DESCRIBE")
		}
	}

	dataset, err := p.parseDatasetClauses()
	if err != nil {
		return nil, err
	}
	query.Dataset = dataset

	p.skipWhitespace()
	hasWhere := p.matchKeyword("WHERE")
	if hasWhere || p.peek() == '{' {
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		query.Where = where
	}

	if err := p.parseModifiers(&query.Modifiers); err != nil {
		return nil, err
	}
	return query, nil
}

// parseDatasetClauses parses FROM and FROM NAMED clauses
func (p *Parser) parseDatasetClauses() ([]DatasetClause, error) {
	var clauses []DatasetClause
	for p.matchKeyword("FROM") {
		named := p.matchKeyword("NAMED")
		iri, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, fmt.Errorf("FROM: %w", err)
		}
		clauses = append(clauses, DatasetClause{IRI: iri, Named: named})
	}
	return clauses, nil
}

// parseProjection parses the projection (variables, expressions or *)
func (p *Parser) parseProjection(query *SelectQuery) error {
	p.skipWhitespace()

	if p.peek() == '*' {
		p.advance()
		return nil
	}

	for {
		p.skipWhitespace()
		ch := p.peek()

		if ch == '(' {
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return err
			}
			if !p.matchKeyword("AS") {
				return fmt.Errorf("expected AS in SELECT expression")
			}
			v, err := p.parseVariable()
			if err != nil {
				return err
			}
			if err := p.expect(')', "to close SELECT expression"); err != nil {
				return err
			}
			query.Projections = append(query.Projections, &Projection{Expression: expr, Variable: v})
			continue
		}

		if ch != '?' && ch != '$' {
			break
		}

		variable, err := p.parseVariable()
		if err != nil {
			return err
		}
		query.Variables = append(query.Variables, variable)
	}

	if len(query.Variables) == 0 && len(query.Projections) == 0 {
		return fmt.Errorf("expected at least one variable or *")
	}
	return nil
}

// parseModifiers parses GROUP BY, HAVING, ORDER BY, LIMIT and OFFSET
func (p *Parser) parseModifiers(m *Modifiers) error {
	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return fmt.Errorf("expected BY after GROUP")
		}
		groupBy, err := p.parseGroupBy()
		if err != nil {
			return err
		}
		m.GroupBy = groupBy
	}

	if p.matchKeyword("HAVING") {
		having, err := p.parseHaving()
		if err != nil {
			return err
		}
		m.Having = having
	}

	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return fmt.Errorf("expected BY after ORDER")
		}
		orderBy, err := p.parseOrderBy()
		if err != nil {
			return err
		}
		m.OrderBy = orderBy
	}

	// LIMIT and OFFSET may come in either order
	for i := 0; i < 2; i++ {
		if m.Limit == nil && p.matchKeyword("LIMIT") {
			limit, err := p.parseInteger()
			if err != nil {
				return err
			}
			m.Limit = &limit
		} else if m.Offset == nil && p.matchKeyword("OFFSET") {
			offset, err := p.parseInteger()
			if err != nil {
				return err
			}
			m.Offset = &offset
		}
	}
	return nil
}

// parseGroupBy parses GROUP BY conditions
func (p *Parser) parseGroupBy() ([]*GroupCondition, error) {
	var conditions []*GroupCondition

	for {
		p.skipWhitespace()
		ch := p.peek()

		switch {
		case ch == '?' || ch == '$':
			variable, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{
				Expression: &VariableExpression{Variable: variable},
				Variable:   variable,
			})
		case ch == '(':
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			cond := &GroupCondition{Expression: expr}
			if p.matchKeyword("AS") {
				if cond.Variable, err = p.parseVariable(); err != nil {
					return nil, err
				}
			}
			if err := p.expect(')', "to close GROUP BY expression"); err != nil {
				return nil, err
			}
			conditions = append(conditions, cond)
		case p.atFunctionCall():
			expr, err := p.parseFunctionCall()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{Expression: expr})
		default:
			if len(conditions) == 0 {
				return nil, fmt.Errorf("expected at least one GROUP BY condition")
			}
			return conditions, nil
		}
	}
}

// parseHaving parses HAVING constraints
func (p *Parser) parseHaving() ([]*Filter, error) {
	var filters []*Filter

	for {
		p.skipWhitespace()
		if p.peek() != '(' && !p.atFunctionCall() {
			break
		}
		filter, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}

	if len(filters) == 0 {
		return nil, fmt.Errorf("expected at least one condition in HAVING")
	}
	return filters, nil
}

// parseOrderBy parses ORDER BY conditions
func (p *Parser) parseOrderBy() ([]*OrderCondition, error) {
	var conditions []*OrderCondition

	for {
		p.skipWhitespace()

		var (
			expr Expression
			err  error
		)
		ascending := true
		switch {
		case p.lookingAtKeyword("ASC", "DESC"):
			ascending = !p.matchKeyword("DESC")
			if ascending {
				p.matchKeyword("ASC")
			}
			if err := p.expect('(', "after ASC/DESC"); err != nil {
				return nil, err
			}
			if expr, err = p.parseExpression(); err != nil {
				return nil, err
			}
			if err := p.expect(')', "to close ORDER BY expression"); err != nil {
				return nil, err
			}
		case p.peek() == '?' || p.peek() == '$':
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			expr = &VariableExpression{Variable: v}
		case p.peek() == '(':
			p.advance()
			if expr, err = p.parseExpression(); err != nil {
				return nil, err
			}
			if err := p.expect(')', "to close ORDER BY expression"); err != nil {
				return nil, err
			}
		case p.atFunctionCall():
			if expr, err = p.parseFunctionCall(); err != nil {
				return nil, err
			}
		default:
			if len(conditions) == 0 {
				return nil, fmt.Errorf("expected at least one ORDER BY condition")
			}
			return conditions, nil
		}

		conditions = append(conditions, &OrderCondition{Expression: expr, Ascending: ascending})
	}
}

// parseInteger parses a non-negative integer
func (p *Parser) parseInteger() (int, error) {
	p.skipWhitespace()

	numStr := p.readWhile(isDigit)
	if numStr == "" {
		return 0, fmt.Errorf("expected integer, found %s", p.describeNext())
	}

	return strconv.Atoi(numStr)
}

// parseValuesClause parses an optional trailing VALUES block.
func (p *Parser) parseValuesClause() error {
	if !p.matchKeyword("VALUES") {
		return nil
	}
	_, err := p.parseInlineData()
	return err
}
