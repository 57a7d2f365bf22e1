// Package parser implements a recursive-descent parser for the SPARQL 1.1
// query and update grammars. It is used as a syntax gate for generated
// queries; the AST it produces is not evaluated.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/graphdbi/pkg/rdf"
)

// SyntaxError reports where parsing stopped and why.
type SyntaxError struct {
	Offset int
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parser parses SPARQL queries and updates
type Parser struct {
	input    string
	pos      int
	length   int
	prefixes map[string]string // Maps prefix to IRI
	baseURI  string            // Base URI for resolving relative IRIs
	bnodes   int               // labels handed out for [ ... ] and ( ... )
}

// NewParser creates a new SPARQL parser
func NewParser(input string) *Parser {
	return &Parser{
		input:    input,
		pos:      0,
		length:   len(input),
		prefixes: make(map[string]string),
		baseURI:  "",
	}
}

// Parse parses query as a SPARQL 1.1 query.
func Parse(query string) (*Query, error) {
	return NewParser(query).Parse()
}

// ParseUpdate parses update as a SPARQL 1.1 update request.
func ParseUpdate(update string) (*Update, error) {
	return NewParser(update).ParseUpdate()
}

// syntaxError converts err into a *SyntaxError positioned at the current
// offset, unless it already is one.
func (p *Parser) syntaxError(err error) error {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se
	}
	line, col := 1, 1
	for i := 0; i < p.pos && i < p.length; i++ {
		if p.input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &SyntaxError{Offset: p.pos, Line: line, Column: col, Msg: err.Error()}
}

// parsePrologue consumes PREFIX and BASE declarations.
func (p *Parser) parsePrologue() error {
	for {
		p.skipWhitespace()
		if p.matchKeyword("PREFIX") {
			if err := p.parsePrefixDecl(); err != nil {
				return err
			}
		} else if p.matchKeyword("BASE") {
			if err := p.parseBaseDecl(); err != nil {
				return err
			}
		} else {
			return nil
		}
	}
}

// expectEnd fails if anything but whitespace and comments remains.
func (p *Parser) expectEnd() error {
	p.skipWhitespace()
	if p.pos < p.length {
		return fmt.Errorf("unexpected trailing input %q", p.excerpt())
	}
	return nil
}

func (p *Parser) excerpt() string {
	end := p.pos + 20
	if end > p.length {
		end = p.length
	}
	return p.input[p.pos:end]
}

// Helper methods

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) peekAt(offset int) byte {
	if p.pos+offset >= p.length {
		return 0
	}
	return p.input[p.pos+offset]
}

func (p *Parser) advance() {
	if p.pos < p.length {
		p.pos++
	}
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]

		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			p.pos++
			continue
		}

		// Comments run from # to end of line
		if ch == '#' {
			p.pos++
			for p.pos < p.length && p.input[p.pos] != '\n' && p.input[p.pos] != '\r' {
				p.pos++
			}
			continue
		}

		break
	}
}

func (p *Parser) readWhile(predicate func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && predicate(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// matchKeyword consumes keyword case-insensitively if it is followed by a
// non-name character.
func (p *Parser) matchKeyword(keyword string) bool {
	p.skipWhitespace()

	end := p.pos + len(keyword)
	if end > p.length || !strings.EqualFold(p.input[p.pos:end], keyword) {
		return false
	}
	if end < p.length && isNameChar(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

// lookingAtKeyword reports whether one of keywords comes next without
// consuming it.
func (p *Parser) lookingAtKeyword(keywords ...string) bool {
	saved := p.pos
	defer func() { p.pos = saved }()
	for _, kw := range keywords {
		if p.matchKeyword(kw) {
			return true
		}
	}
	return false
}

// match checks if the next characters match the given string and advances if they do
func (p *Parser) match(s string) bool {
	if p.pos+len(s) > p.length {
		return false
	}
	if p.input[p.pos:p.pos+len(s)] != s {
		return false
	}
	p.pos += len(s)
	return true
}

func (p *Parser) expect(ch byte, context string) error {
	p.skipWhitespace()
	if p.peek() != ch {
		return fmt.Errorf("expected '%c' %s, found %s", ch, context, p.describeNext())
	}
	p.advance()
	return nil
}

func (p *Parser) describeNext() string {
	if p.pos >= p.length {
		return "end of input"
	}
	return fmt.Sprintf("%q", p.excerpt())
}

func isNameChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch == '-' || ch == ':' || ch >= 0x80
}

func isVarChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch >= 0x80
}

// parsePrefixDecl parses and stores a PREFIX declaration (prefix: <iri>)
func (p *Parser) parsePrefixDecl() error {
	p.skipWhitespace()

	prefix := p.readWhile(func(ch byte) bool {
		return ch != ':' && (isVarChar(ch) || ch == '-' || ch == '.')
	})
	if p.peek() != ':' {
		return fmt.Errorf("expected ':' in PREFIX declaration")
	}
	p.advance()

	p.skipWhitespace()
	iri, err := p.parseIRI()
	if err != nil {
		return fmt.Errorf("PREFIX %s: %w", prefix, err)
	}

	p.prefixes[prefix] = p.resolveIRI(iri)
	return nil
}

// parseBaseDecl parses and stores a BASE declaration (<iri>)
func (p *Parser) parseBaseDecl() error {
	p.skipWhitespace()
	iri, err := p.parseIRI()
	if err != nil {
		return fmt.Errorf("BASE: %w", err)
	}
	p.baseURI = iri
	return nil
}

// parseVariable parses a SPARQL variable
func (p *Parser) parseVariable() (*Variable, error) {
	p.skipWhitespace()
	if p.peek() != '?' && p.peek() != '$' {
		return nil, fmt.Errorf("expected variable starting with ? or $, found %s", p.describeNext())
	}
	p.advance()

	name := p.readWhile(isVarChar)
	if name == "" {
		return nil, fmt.Errorf("invalid variable name")
	}

	return &Variable{Name: name}, nil
}

// parseIRI parses an IRI enclosed in < >
func (p *Parser) parseIRI() (string, error) {
	if p.peek() != '<' {
		return "", fmt.Errorf("expected '<' to start IRI")
	}
	p.advance()

	iri := p.readWhile(func(ch byte) bool {
		return ch != '>' && ch > ' ' && !strings.ContainsRune("<\"{}|^`\\", rune(ch))
	})

	if p.peek() != '>' {
		if p.pos >= p.length {
			return "", fmt.Errorf("unterminated IRI")
		}
		return "", fmt.Errorf("invalid character %q in IRI", p.peek())
	}
	p.advance()

	return p.resolveIRI(iri), nil
}

// parseIRIOrPrefixedName accepts <iri> or prefix:local.
func (p *Parser) parseIRIOrPrefixedName() (string, error) {
	p.skipWhitespace()
	if p.peek() == '<' {
		return p.parseIRI()
	}
	return p.parsePrefixedName()
}

// parsePrefixedName parses a prefixed name (like :foo or prefix:foo) and expands it to a full IRI
func (p *Parser) parsePrefixedName() (string, error) {
	prefix := p.readWhile(func(ch byte) bool {
		return ch != ':' && (isVarChar(ch) || ch == '-' || ch == '.')
	})

	if p.peek() != ':' {
		return "", fmt.Errorf("expected ':' in prefixed name, found %s", p.describeNext())
	}
	p.advance()

	// Local names may contain '.' but not end with it.
	local := p.readWhile(func(ch byte) bool {
		return isNameChar(ch) || ch == '.' || ch == '%'
	})
	for strings.HasSuffix(local, ".") {
		local = local[:len(local)-1]
		p.pos--
	}

	baseIRI, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("undefined prefix: '%s'", prefix)
	}

	return baseIRI + local, nil
}

// parseStringLiteral parses a string literal (supports single and triple-quoted)
// with an optional language tag or datatype.
func (p *Parser) parseStringLiteral() (*rdf.Literal, error) {
	value, err := p.parseString()
	if err != nil {
		return nil, err
	}

	if p.peek() == '@' {
		p.advance()
		lang := p.readWhile(func(ch byte) bool {
			return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-'
		})
		if lang == "" || lang[0] == '-' || strings.HasSuffix(lang, "-") {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		return rdf.NewLiteralWithLanguage(value, lang), nil
	}

	if p.match("^^") {
		dt, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, fmt.Errorf("datatype: %w", err)
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt)), nil
	}

	return rdf.NewLiteral(value), nil
}

func (p *Parser) parseString() (string, error) {
	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return "", fmt.Errorf("expected quote to start string literal")
	}

	long := p.peekAt(1) == quote && p.peekAt(2) == quote
	if long {
		p.pos += 3
	} else {
		p.advance()
	}

	var value strings.Builder
	for p.pos < p.length {
		ch := p.input[p.pos]
		switch {
		case long && ch == quote && p.peekAt(1) == quote && p.peekAt(2) == quote:
			p.pos += 3
			return value.String(), nil
		case !long && ch == quote:
			p.advance()
			return value.String(), nil
		case !long && (ch == '\n' || ch == '\r'):
			return "", fmt.Errorf("line break in short string literal")
		case ch == '\\':
			if err := p.parseEscape(&value); err != nil {
				return "", err
			}
		default:
			value.WriteByte(ch)
			p.advance()
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

func (p *Parser) parseEscape(sb *strings.Builder) error {
	p.advance() // backslash
	ch := p.peek()
	switch ch {
	case 't':
		sb.WriteByte('\t')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '"', '\'', '\\':
		sb.WriteByte(ch)
	case 'u', 'U':
		n := 4
		if ch == 'U' {
			n = 8
		}
		if p.pos+1+n > p.length {
			return fmt.Errorf("truncated \\%c escape", ch)
		}
		code, err := strconv.ParseUint(p.input[p.pos+1:p.pos+1+n], 16, 32)
		if err != nil {
			return fmt.Errorf("invalid \\%c escape", ch)
		}
		sb.WriteRune(rune(code))
		p.pos += n
	default:
		return fmt.Errorf("invalid escape sequence \\%c", ch)
	}
	p.advance()
	return nil
}

// parseBlankNode parses a labelled blank node or []
func (p *Parser) parseBlankNode() (*rdf.BlankNode, error) {
	if p.match("[") {
		p.skipWhitespace()
		if !p.match("]") {
			return nil, fmt.Errorf("blank node property lists are not allowed here")
		}
		return rdf.NewBlankNode(""), nil
	}
	if !p.match("_:") {
		return nil, fmt.Errorf("expected '_:' to start blank node")
	}

	id := p.readWhile(func(ch byte) bool {
		return isVarChar(ch) || ch == '-'
	})
	if id == "" {
		return nil, fmt.Errorf("empty blank node label")
	}

	return rdf.NewBlankNode(id), nil
}

// parseNumericLiteral parses an integer, decimal or double literal
func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.advance()
	}
	intPart := p.readWhile(isDigit)
	fracPart := ""
	if p.peek() == '.' && isDigit(p.peekAt(1)) {
		p.advance()
		fracPart = p.readWhile(isDigit)
	}
	if intPart == "" && fracPart == "" {
		p.pos = start
		return nil, fmt.Errorf("invalid numeric literal")
	}

	datatype := rdf.XSDInteger
	if fracPart != "" {
		datatype = rdf.XSDDecimal
	}
	if p.peek() == 'e' || p.peek() == 'E' {
		p.advance()
		if p.peek() == '+' || p.peek() == '-' {
			p.advance()
		}
		if p.readWhile(isDigit) == "" {
			return nil, fmt.Errorf("invalid exponent in numeric literal")
		}
		datatype = rdf.XSDDouble
	}

	return rdf.NewLiteralWithDatatype(p.input[start:p.pos], datatype), nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// resolveIRI resolves a potentially relative IRI against the BASE URI
func (p *Parser) resolveIRI(iri string) string {
	if p.baseURI == "" || isAbsoluteIRI(iri) {
		return iri
	}
	return p.baseURI + iri
}

// isAbsoluteIRI checks if an IRI is absolute (has a scheme)
func isAbsoluteIRI(iri string) bool {
	colonIdx := strings.Index(iri, ":")
	if colonIdx <= 0 {
		return false
	}
	for i := 0; i < colonIdx; i++ {
		c := iri[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9' && i > 0) || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
