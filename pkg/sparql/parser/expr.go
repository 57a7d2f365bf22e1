package parser

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

// parseFilter parses a FILTER constraint: a bracketed expression, a function
// call, or [NOT] EXISTS { pattern }
func (p *Parser) parseFilter() (*Filter, error) {
	p.skipWhitespace()

	saved := p.pos
	not := p.matchKeyword("NOT")
	if p.matchKeyword("EXISTS") {
		pattern, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		return &Filter{Expression: &ExistsExpression{Not: not, Pattern: *pattern}}, nil
	}
	p.pos = saved

	if p.peek() == '(' {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, fmt.Errorf("error parsing FILTER expression: %w", err)
		}
		if err := p.expect(')', "after FILTER expression"); err != nil {
			return nil, err
		}
		return &Filter{Expression: expr}, nil
	}

	if p.atFunctionCall() {
		expr, err := p.parseFunctionCall()
		if err != nil {
			return nil, fmt.Errorf("error parsing FILTER expression: %w", err)
		}
		return &Filter{Expression: expr}, nil
	}

	return nil, fmt.Errorf("expected '(' or function call after FILTER, found %s", p.describeNext())
}

// parseBind parses a BIND expression: BIND(<expression> AS ?variable)
func (p *Parser) parseBind() (*Bind, error) {
	if err := p.expect('(', "after BIND"); err != nil {
		return nil, err
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing BIND expression: %w", err)
	}

	if !p.matchKeyword("AS") {
		return nil, fmt.Errorf("expected AS keyword in BIND expression")
	}

	variable, err := p.parseVariable()
	if err != nil {
		return nil, fmt.Errorf("expected variable after AS in BIND: %w", err)
	}

	if err := p.expect(')', "to close BIND expression"); err != nil {
		return nil, err
	}

	return &Bind{Expression: expr, Variable: variable}, nil
}

// Expression parsing with operator precedence
// Grammar:
// Expression → LogicalOrExpression
// LogicalOrExpression → LogicalAndExpression ( '||' LogicalAndExpression )*
// LogicalAndExpression → ComparisonExpression ( '&&' ComparisonExpression )*
// ComparisonExpression → AdditiveExpression ( ('=' | '!=' | '<' | '<=' | '>' | '>=') AdditiveExpression | [NOT] IN (...) )?
// AdditiveExpression → MultiplicativeExpression ( ('+' | '-') MultiplicativeExpression )*
// MultiplicativeExpression → UnaryExpression ( ('*' | '/') UnaryExpression )*
// UnaryExpression → ('!' | '-' | '+')? PrimaryExpression
// PrimaryExpression → Variable | Literal | FunctionCall | '(' Expression ')'

// parseExpression parses a SPARQL expression (entry point)
func (p *Parser) parseExpression() (Expression, error) {
	return p.parseLogicalOrExpression()
}

// parseLogicalOrExpression parses logical OR (lowest precedence)
func (p *Parser) parseLogicalOrExpression() (Expression, error) {
	left, err := p.parseLogicalAndExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		if !p.match("||") {
			return left, nil
		}
		right, err := p.parseLogicalAndExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpOr, Right: right}
	}
}

// parseLogicalAndExpression parses logical AND
func (p *Parser) parseLogicalAndExpression() (Expression, error) {
	left, err := p.parseComparisonExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		if !p.match("&&") {
			return left, nil
		}
		right, err := p.parseComparisonExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpAnd, Right: right}
	}
}

// parseComparisonExpression parses comparison operators and IN/NOT IN
func (p *Parser) parseComparisonExpression() (Expression, error) {
	left, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()

	savedPos := p.pos
	notIn := false
	if p.matchKeyword("NOT") {
		if !p.matchKeyword("IN") {
			p.pos = savedPos
			return left, nil
		}
		notIn = true
	} else if !p.matchKeyword("IN") {
		var op Operator
		switch {
		case p.match("<="):
			op = OpLessThanOrEqual
		case p.match(">="):
			op = OpGreaterThanOrEqual
		case p.match("!="):
			op = OpNotEqual
		case p.match("="):
			op = OpEqual
		case p.match("<"):
			op = OpLessThan
		case p.match(">"):
			op = OpGreaterThan
		default:
			return left, nil
		}

		right, err := p.parseAdditiveExpression()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: op, Right: right}, nil
	}

	values, err := p.parseExpressionList()
	if err != nil {
		return nil, fmt.Errorf("IN: %w", err)
	}
	return &InExpression{Not: notIn, Expression: left, Values: values}, nil
}

// parseExpressionList parses ( expr, expr, ... ) including the empty list
func (p *Parser) parseExpressionList() ([]Expression, error) {
	if err := p.expect('(', "to start expression list"); err != nil {
		return nil, err
	}

	var values []Expression
	p.skipWhitespace()
	if p.peek() == ')' {
		p.advance()
		return values, nil
	}
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		values = append(values, expr)

		p.skipWhitespace()
		if p.peek() != ',' {
			break
		}
		p.advance()
	}
	if err := p.expect(')', "to close expression list"); err != nil {
		return nil, err
	}
	return values, nil
}

// parseAdditiveExpression parses addition and subtraction
func (p *Parser) parseAdditiveExpression() (Expression, error) {
	left, err := p.parseMultiplicativeExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		var op Operator
		if p.match("+") {
			op = OpAdd
		} else if p.match("-") {
			op = OpSubtract
		} else {
			return left, nil
		}

		right, err := p.parseMultiplicativeExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: op, Right: right}
	}
}

// parseMultiplicativeExpression parses multiplication and division
func (p *Parser) parseMultiplicativeExpression() (Expression, error) {
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		var op Operator
		if p.match("*") {
			op = OpMultiply
		} else if p.match("/") {
			op = OpDivide
		} else {
			return left, nil
		}

		right, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: op, Right: right}
	}
}

// parseUnaryExpression parses unary operators
func (p *Parser) parseUnaryExpression() (Expression, error) {
	p.skipWhitespace()

	if p.peek() == '!' && p.peekAt(1) != '=' {
		p.advance()
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Operator: OpNot, Operand: operand}, nil
	}

	if (p.peek() == '+' || p.peek() == '-') && !isDigit(p.peekAt(1)) {
		negate := p.peek() == '-'
		p.advance()
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		if !negate {
			return operand, nil
		}
		// Represent as 0 - operand
		return &BinaryExpression{
			Left:     &LiteralExpression{Literal: rdf.NewIntegerLiteral(0)},
			Operator: OpSubtract,
			Right:    operand,
		}, nil
	}

	return p.parsePrimaryExpression()
}

// parsePrimaryExpression parses primary expressions (variables, literals, functions, parentheses)
func (p *Parser) parsePrimaryExpression() (Expression, error) {
	p.skipWhitespace()

	savedPos := p.pos
	not := p.matchKeyword("NOT")
	if p.matchKeyword("EXISTS") {
		pattern, err := p.parseGraphPattern()
		if err != nil {
			return nil, fmt.Errorf("failed to parse graph pattern in EXISTS: %w", err)
		}
		return &ExistsExpression{Not: not, Pattern: *pattern}, nil
	}
	p.pos = savedPos

	if p.peek() == '(' {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')', "after expression"); err != nil {
			return nil, err
		}
		return expr, nil
	}

	if p.peek() == '?' || p.peek() == '$' {
		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: variable}, nil
	}

	if p.atFunctionCall() {
		return p.parseFunctionCall()
	}

	termOrVar, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("expected expression: %w", err)
	}
	if termOrVar.Term.Type() == rdf.TermTypeBlankNode {
		return nil, fmt.Errorf("blank nodes are not allowed in expressions")
	}
	return &LiteralExpression{Literal: termOrVar.Term}, nil
}

// parseFunctionCall parses a built-in call, an aggregate, or a call to a
// function named by a prefixed name
func (p *Parser) parseFunctionCall() (Expression, error) {
	p.skipWhitespace()

	funcName := p.readWhile(func(c byte) bool {
		return isVarChar(c) || c == ':' || c == '-'
	})
	if funcName == "" {
		return nil, fmt.Errorf("expected function name")
	}

	if prefix, local, ok := strings.Cut(funcName, ":"); ok {
		ns, found := p.prefixes[prefix]
		if !found {
			return nil, fmt.Errorf("undefined prefix: '%s'", prefix)
		}
		funcName = ns + local
	} else {
		funcName = strings.ToUpper(funcName)
	}

	if err := p.expect('(', "after function name"); err != nil {
		return nil, err
	}

	call := &FunctionCallExpression{Function: funcName}
	call.Distinct = p.matchKeyword("DISTINCT")

	p.skipWhitespace()
	if p.peek() == ')' {
		p.advance()
		return call, nil
	}

	for {
		p.skipWhitespace()
		if funcName == "COUNT" && p.peek() == '*' {
			p.advance()
			call.Arguments = append(call.Arguments, &VariableExpression{Variable: &Variable{Name: "*"}})
		} else {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, fmt.Errorf("error parsing %s argument: %w", funcName, err)
			}
			call.Arguments = append(call.Arguments, arg)
		}

		p.skipWhitespace()
		if p.peek() != ',' {
			break
		}
		p.advance()
	}

	if funcName == "GROUP_CONCAT" && p.peek() == ';' {
		p.advance()
		if !p.matchKeyword("SEPARATOR") {
			return nil, fmt.Errorf("expected SEPARATOR in GROUP_CONCAT")
		}
		if err := p.expect('=', "after SEPARATOR"); err != nil {
			return nil, err
		}
		p.skipWhitespace()
		sep, err := p.parseString()
		if err != nil {
			return nil, err
		}
		call.Separator = &sep
	}

	if err := p.expect(')', "after function arguments"); err != nil {
		return nil, err
	}
	return call, nil
}
