package rdf

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

// Helper functions for common XSD datatypes
var (
	XSDString   = NewNamedNode(XSDNamespace + "string")
	XSDInteger  = NewNamedNode(XSDNamespace + "integer")
	XSDDecimal  = NewNamedNode(XSDNamespace + "decimal")
	XSDDouble   = NewNamedNode(XSDNamespace + "double")
	XSDFloat    = NewNamedNode(XSDNamespace + "float")
	XSDBoolean  = NewNamedNode(XSDNamespace + "boolean")
	XSDDateTime = NewNamedNode(XSDNamespace + "dateTime")
	XSDDate     = NewNamedNode(XSDNamespace + "date")

	RDFLangString = NewNamedNode(RDFNamespace + "langString")
)

// ErrUnsupportedValue is returned when a Go value has no XSD mapping.
var ErrUnsupportedValue = errors.New("rdf: unsupported literal value")

// integerTypes are the xsd:integer-derived datatypes mapped to int64.
var integerTypes = map[string]bool{
	XSDNamespace + "integer":            true,
	XSDNamespace + "int":                true,
	XSDNamespace + "long":               true,
	XSDNamespace + "short":              true,
	XSDNamespace + "byte":               true,
	XSDNamespace + "nonNegativeInteger": true,
	XSDNamespace + "nonPositiveInteger": true,
	XSDNamespace + "positiveInteger":    true,
	XSDNamespace + "negativeInteger":    true,
	XSDNamespace + "unsignedLong":       true,
	XSDNamespace + "unsignedInt":        true,
	XSDNamespace + "unsignedShort":      true,
	XSDNamespace + "unsignedByte":       true,
}

// Date is a calendar date without time of day, mapped to xsd:date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(formatDouble(value), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}

func NewDateTimeLiteral(value time.Time) *Literal {
	return NewLiteralWithDatatype(value.Format(time.RFC3339Nano), XSDDateTime)
}

func NewDateLiteral(value Date) *Literal {
	return NewLiteralWithDatatype(value.String(), XSDDate)
}

// NewStringLiteral returns an explicitly xsd:string typed literal.
func NewStringLiteral(value string) *Literal {
	return NewLiteralWithDatatype(value, XSDString)
}

// ToLiteral maps a native Go value to its canonical XSD literal.
// A *Literal is returned as is.
func ToLiteral(v any) (*Literal, error) {
	switch x := v.(type) {
	case *Literal:
		return x, nil
	case Literal:
		return &x, nil
	case string:
		return NewStringLiteral(x), nil
	case bool:
		return NewBooleanLiteral(x), nil
	case int:
		return NewIntegerLiteral(int64(x)), nil
	case int8:
		return NewIntegerLiteral(int64(x)), nil
	case int16:
		return NewIntegerLiteral(int64(x)), nil
	case int32:
		return NewIntegerLiteral(int64(x)), nil
	case int64:
		return NewIntegerLiteral(x), nil
	case uint:
		return NewLiteralWithDatatype(strconv.FormatUint(uint64(x), 10), XSDInteger), nil
	case uint8:
		return NewIntegerLiteral(int64(x)), nil
	case uint16:
		return NewIntegerLiteral(int64(x)), nil
	case uint32:
		return NewIntegerLiteral(int64(x)), nil
	case uint64:
		return NewLiteralWithDatatype(strconv.FormatUint(x, 10), XSDInteger), nil
	case float32:
		return NewDoubleLiteral(float64(x)), nil
	case float64:
		return NewDoubleLiteral(x), nil
	case time.Time:
		return NewDateTimeLiteral(x), nil
	case Date:
		return NewDateLiteral(x), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// FromLexical maps a lexical form to a native Go value according to the
// datatype IRI. Unknown datatypes yield the lexical form unchanged.
func FromLexical(lexical, datatype string) (any, error) {
	datatype = strings.TrimSuffix(strings.TrimPrefix(datatype, "<"), ">")
	if integerTypes[datatype] {
		v, err := strconv.ParseInt(strings.TrimSpace(lexical), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid xsd integer %q: %w", lexical, err)
		}
		return v, nil
	}

	switch datatype {
	case "", XSDString.IRI, RDFLangString.IRI:
		return lexical, nil
	case XSDDouble.IRI, XSDFloat.IRI, XSDDecimal.IRI:
		return parseDouble(lexical)
	case XSDBoolean.IRI:
		switch strings.TrimSpace(lexical) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("invalid xsd:boolean %q", lexical)
	case XSDDateTime.IRI:
		return parseDateTime(lexical)
	case XSDDate.IRI:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(lexical))
		if err != nil {
			return nil, fmt.Errorf("invalid xsd:date %q: %w", lexical, err)
		}
		return DateOf(t), nil
	default:
		return lexical, nil
	}
}

// Native returns the Go value of the literal.
func (l *Literal) Native() (any, error) {
	return FromLexical(l.Value, l.DatatypeIRI())
}

func formatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "INF"
	case math.IsInf(v, -1):
		return "-INF"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseDouble(lexical string) (float64, error) {
	switch s := strings.TrimSpace(lexical); s {
	case "NaN":
		return math.NaN(), nil
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid xsd double %q: %w", lexical, err)
		}
		return v, nil
	}
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseDateTime(lexical string) (time.Time, error) {
	s := strings.TrimSpace(lexical)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid xsd:dateTime %q", lexical)
}
