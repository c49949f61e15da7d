// Package filter parses task filter expressions into typed predicates.
//
// A filter is a boolean expression over device attributes, e.g.
//
//	manufacturer = 'Acme' AND battery_level >= 50
//	network_type IN ('WIFI', 'LTE') OR carrier != "Vodafone"
//
// Comparisons are "field op literal" with op one of = != <> < <= > >= or
// "field IN (literal, ...)". Literals are quoted strings, numbers, TRUE, FALSE,
// NULL or DATETIME('RFC3339 timestamp'). AND binds tighter than OR; parentheses
// group. Keywords are case-insensitive.
//
// A parsed Expr is evaluated in-process against attribute maps (Eval) or
// translated into a parameterized SQL condition (SQL); field names never reach
// the SQL text unless they map to a known column.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("filter: syntax error")

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "IN"
)

// Expr is a parsed filter expression.
type Expr interface {
	// Eval reports whether attrs satisfy the expression. A field absent from
	// attrs never matches.
	Eval(attrs map[string]any) bool
	String() string
	sql(b *sqlBuilder) string
}

// All matches everything; it is the expression of a blank filter.
type All struct{}

// Comparison tests one field against one literal (or a literal list for IN).
type Comparison struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// And matches when every term matches.
type And struct{ Terms []Expr }

// Or matches when any term matches.
type Or struct{ Terms []Expr }

func (All) String() string { return "TRUE" }

func (c Comparison) String() string {
	if c.Op == OpIn {
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = literalString(v)
		}
		return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, literalString(c.Value))
}

func (a And) String() string { return joinTerms(a.Terms, " AND ") }
func (o Or) String() string  { return joinTerms(o.Terms, " OR ") }

func joinTerms(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
		if _, nested := t.(Or); nested {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}

func literalString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "DATETIME('" + x.Format(time.RFC3339Nano) + "')"
	}
	return fmt.Sprint(v)
}

// Parse parses s. A blank s parses to All.
func Parse(s string) (Expr, error) {
	if strings.TrimSpace(s) == "" {
		return All{}, nil
	}
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, p.peek())
	}
	return e, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.i++
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.keyword("OR") {
		t, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.keyword("AND") {
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return And{Terms: terms}, nil
}

func (p *parser) parseTerm() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ')', got %s", ErrSyntax, t)
		}
		return e, nil
	}

	field := p.next()
	if field.kind != tokIdent || isReserved(field.text) {
		return nil, fmt.Errorf("%w: expected field name, got %s", ErrSyntax, field)
	}
	if p.keyword("IN") {
		vals, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return Comparison{Field: field.text, Op: OpIn, Values: vals}, nil
	}
	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("%w: expected operator, got %s", ErrSyntax, opTok)
	}
	v, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return Comparison{Field: field.text, Op: Op(opTok.text), Value: v}, nil
}

func (p *parser) parseList() ([]any, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, fmt.Errorf("%w: expected '(' after IN, got %s", ErrSyntax, t)
	}
	var vals []any
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		t := p.next()
		if t.kind == tokRParen {
			return vals, nil
		}
		if t.kind != tokComma {
			return nil, fmt.Errorf("%w: expected ',' or ')', got %s", ErrSyntax, t)
		}
	}
}

func (p *parser) parseLiteral() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %s", ErrSyntax, t)
		}
		return f, nil
	case tokIdent:
		switch strings.ToUpper(t.text) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		case "NULL":
			return nil, nil
		case "DATETIME":
			return p.parseDatetime()
		}
	}
	return nil, fmt.Errorf("%w: expected literal, got %s", ErrSyntax, t)
}

func (p *parser) parseDatetime() (any, error) {
	if t := p.next(); t.kind != tokLParen {
		return nil, fmt.Errorf("%w: expected '(' after DATETIME, got %s", ErrSyntax, t)
	}
	s := p.next()
	if s.kind != tokString {
		return nil, fmt.Errorf("%w: DATETIME expects a quoted timestamp, got %s", ErrSyntax, s)
	}
	ts, err := parseTime(s.text)
	if err != nil {
		return nil, fmt.Errorf("%w: bad DATETIME %s", ErrSyntax, s)
	}
	if t := p.next(); t.kind != tokRParen {
		return nil, fmt.Errorf("%w: expected ')', got %s", ErrSyntax, t)
	}
	return ts, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized timestamp")
}

func isReserved(s string) bool {
	switch strings.ToUpper(s) {
	case "AND", "OR", "IN", "TRUE", "FALSE", "NULL", "DATETIME":
		return true
	}
	return false
}
