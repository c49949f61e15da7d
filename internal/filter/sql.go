package filter

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the SQL type family of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindTime
	// KindTextArray is a text[] column; a comparison matches when any element matches.
	KindTextArray
)

// Column maps a filter field to a SQL column.
type Column struct {
	Name string
	Kind Kind
}

// Columns is the set of fields a table exposes to filters.
type Columns map[string]Column

// SQL renders e as a boolean SQL condition over cols. Literals become
// placeholders numbered from argOffset+1 and are returned in order. Fields that
// are not in cols, and literals whose type does not fit the column, render as
// FALSE, matching Eval's "absent or mismatched never matches" rule.
func SQL(e Expr, cols Columns, argOffset int) (string, []any) {
	b := &sqlBuilder{cols: cols, argOffset: argOffset}
	return e.sql(b), b.args
}

type sqlBuilder struct {
	cols      Columns
	args      []any
	argOffset int
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d::%s", b.argOffset+len(b.args), castFor(v))
}

func castFor(v any) string {
	switch v.(type) {
	case float64:
		return "double precision"
	case bool:
		return "boolean"
	case time.Time:
		return "timestamptz"
	}
	return "text"
}

func fits(k Kind, v any) bool {
	switch v.(type) {
	case string:
		return k == KindText || k == KindTextArray
	case float64:
		return k == KindNumber
	case bool:
		return k == KindBool
	case time.Time:
		return k == KindTime
	}
	return false
}

func (All) sql(*sqlBuilder) string { return "TRUE" }

func (a And) sql(b *sqlBuilder) string { return joinSQL(b, a.Terms, " AND ") }
func (o Or) sql(b *sqlBuilder) string  { return joinSQL(b, o.Terms, " OR ") }

func joinSQL(b *sqlBuilder, terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.sql(b)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// arrayOps flips the operator for "literal op ANY(column)".
var arrayOps = map[Op]string{OpEq: "=", OpNe: "<>", OpLt: ">", OpLe: ">=", OpGt: "<", OpGe: "<="}

func (c Comparison) sql(b *sqlBuilder) string {
	col, ok := b.cols[c.Field]
	if !ok {
		return "FALSE"
	}
	if c.Op == OpIn {
		var parts []string
		for _, v := range c.Values {
			eq := Comparison{Field: c.Field, Op: OpEq, Value: v}
			if s := eq.sql(b); s != "FALSE" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "FALSE"
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
	if c.Value == nil {
		if col.Kind == KindTextArray {
			return "FALSE"
		}
		switch c.Op {
		case OpEq:
			return col.Name + " IS NULL"
		case OpNe:
			return col.Name + " IS NOT NULL"
		}
		return "FALSE"
	}
	if !fits(col.Kind, c.Value) {
		return "FALSE"
	}
	if col.Kind == KindTextArray {
		return fmt.Sprintf("%s %s ANY(%s)", b.bind(c.Value), arrayOps[c.Op], col.Name)
	}
	if c.Op == OpNe {
		return fmt.Sprintf("%s IS DISTINCT FROM %s", col.Name, b.bind(c.Value))
	}
	return fmt.Sprintf("%s %s %s", col.Name, c.Op, b.bind(c.Value))
}
