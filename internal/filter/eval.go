package filter

import "time"

// Eval always matches.
func (All) Eval(map[string]any) bool { return true }

// Eval matches when every term matches.
func (a And) Eval(attrs map[string]any) bool {
	for _, t := range a.Terms {
		if !t.Eval(attrs) {
			return false
		}
	}
	return true
}

// Eval matches when any term matches.
func (o Or) Eval(attrs map[string]any) bool {
	for _, t := range o.Terms {
		if t.Eval(attrs) {
			return true
		}
	}
	return false
}

// Eval compares the named attribute with the literal. List-valued attributes
// match when any element matches and never match a NULL literal. Mismatched
// types never match.
func (c Comparison) Eval(attrs map[string]any) bool {
	v, ok := attrs[c.Field]
	if !ok {
		return false
	}
	if list, isList := v.([]string); isList {
		if c.Op != OpIn && c.Value == nil {
			return false
		}
		for _, elem := range list {
			if c.evalScalar(elem) {
				return true
			}
		}
		return false
	}
	return c.evalScalar(v)
}

func (c Comparison) evalScalar(v any) bool {
	if c.Op == OpIn {
		for _, want := range c.Values {
			if cmp, ok := compare(v, want); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	if v == nil || c.Value == nil {
		switch c.Op {
		case OpEq:
			return v == nil && c.Value == nil
		case OpNe:
			return (v == nil) != (c.Value == nil)
		}
		return false
	}
	cmp, ok := compare(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// compare orders a against b. ok is false when the two are not comparable.
func compare(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}
	if fa, isNum := toFloat(a); isNum {
		fb, isNum := toFloat(b)
		if !isNum {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		y, isTime := b.(time.Time)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
