// Package extension implements the schema-less attribute sidecar carried by tasks
// and measurements. Values live in one map per namespace; the composite
// "namespace:key" form only exists at the persistence boundary (Flatten/Unflatten).
package extension

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strconv"
	"strings"
)

// Namespace partitions the sidecar. Namespaces are disjoint by prefix only.
type Namespace string

const (
	// Param holds measurement parameters (tasks and measurements).
	Param Namespace = "param"
	// Context holds measurement contexts (tasks).
	Context Namespace = "context"
	// Value holds measurement result values (measurements).
	Value Namespace = "value"
)

// Separator joins namespace and key in composite keys.
const Separator = ":"

// MaxScalarBytes is the largest string a bounded scalar may hold; longer text is
// stored as unbounded text.
const MaxScalarBytes = 1000

// Prefix returns the composite-key prefix for ns, e.g. "param:".
func (ns Namespace) Prefix() string { return string(ns) + Separator }

// Attr is one stored value. Text marks values kept as unbounded text rather than
// bounded scalars; Data is a string, number, bool, nil, or nested maps/slices
// for structured parameters.
//
// Top-level numbers survive a JSON round trip with their Go type (int, uint64,
// float32, json.Number, ...). Numbers nested in maps or slices come back as
// int64 when integral and float64 otherwise.
type Attr struct {
	Data any  `json:"data"`
	Text bool `json:"text,omitempty"`
}

// wireAttr is the persisted form of Attr. Kind names the Go type of a
// numeric Data other than float64.
type wireAttr struct {
	Data any    `json:"data"`
	Text bool   `json:"text,omitempty"`
	Kind string `json:"kind,omitempty"`
}

var numberTypes = map[string]reflect.Type{}

func init() {
	for _, v := range []any{
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), json.Number(""),
	} {
		t := reflect.TypeOf(v)
		numberTypes[t.String()] = t
	}
}

func numberKind(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	if numberTypes[t.String()] == t {
		return t.String()
	}
	return ""
}

// MarshalJSON encodes a with the Go type of numeric data.
func (a Attr) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAttr{Data: a.Data, Text: a.Text, Kind: numberKind(a.Data)})
}

// UnmarshalJSON decodes a without routing numbers through float64.
func (a *Attr) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var w wireAttr
	if err := dec.Decode(&w); err != nil {
		return err
	}
	data, err := restore(w.Data, w.Kind)
	if err != nil {
		return err
	}
	*a = Attr{Data: data, Text: w.Text}
	return nil
}

// restore converts the json.Number leaves of v. kind applies to a top-level
// number only.
func restore(v any, kind string) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if kind == "" {
			return v.Float64()
		}
		return restoreNumber(v, kind)
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNested(e)
		}
		return v, nil
	case []any:
		for i, e := range v {
			v[i] = normalizeNested(e)
		}
		return v, nil
	}
	return v, nil
}

func restoreNumber(n json.Number, kind string) (any, error) {
	t, ok := numberTypes[kind]
	if !ok {
		return nil, fmt.Errorf("extension: unknown number kind %q", kind)
	}
	s := string(n)
	switch t.Kind() {
	case reflect.String:
		return n, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("extension: %s value %s: %w", kind, s, err)
		}
		return reflect.ValueOf(i).Convert(t).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("extension: %s value %s: %w", kind, s, err)
		}
		return reflect.ValueOf(u).Convert(t).Interface(), nil
	default:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("extension: %s value %s: %w", kind, s, err)
		}
		return reflect.ValueOf(f).Convert(t).Interface(), nil
	}
}

func normalizeNested(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNested(e)
		}
	case []any:
		for i, e := range v {
			v[i] = normalizeNested(e)
		}
	}
	return v
}

// Scalar wraps v as a bounded scalar.
func Scalar(v any) Attr { return Attr{Data: v} }

// LargeText wraps s as unbounded text.
func LargeText(s string) Attr { return Attr{Data: s, Text: true} }

// String renders the value for display.
func (a Attr) String() string {
	if s, ok := a.Data.(string); ok {
		return s
	}
	return fmt.Sprint(a.Data)
}

// Set is a namespaced key/value sidecar. The zero value is ready to use.
type Set struct {
	byNS map[Namespace]map[string]Attr
}

// Set stores v under key in ns, replacing any previous value.
func (s *Set) Set(ns Namespace, key string, v Attr) {
	if s.byNS == nil {
		s.byNS = make(map[Namespace]map[string]Attr)
	}
	m := s.byNS[ns]
	if m == nil {
		m = make(map[string]Attr)
		s.byNS[ns] = m
	}
	m[key] = v
}

// Get returns the value stored under key in ns and whether it is present.
func (s *Set) Get(ns Namespace, key string) (Attr, bool) {
	v, ok := s.byNS[ns][key]
	return v, ok
}

// All returns a copy of every entry in ns, keyed by bare key. Never nil.
func (s *Set) All(ns Namespace) map[string]Attr {
	out := make(map[string]Attr, len(s.byNS[ns]))
	maps.Copy(out, s.byNS[ns])
	return out
}

// Len returns the number of entries across all namespaces.
func (s *Set) Len() int {
	n := 0
	for _, m := range s.byNS {
		n += len(m)
	}
	return n
}

// Flatten returns every entry keyed by composite key ("param:x").
func (s *Set) Flatten() map[string]Attr {
	out := make(map[string]Attr, s.Len())
	for ns, m := range s.byNS {
		for k, v := range m {
			out[ns.Prefix()+k] = v
		}
	}
	return out
}

// Unflatten rebuilds a Set from composite keys. Keys without a separator are
// rejected since they cannot be assigned to a namespace.
func Unflatten(flat map[string]Attr) (Set, error) {
	var s Set
	for k, v := range flat {
		ns, key, ok := strings.Cut(k, Separator)
		if !ok || ns == "" {
			return Set{}, fmt.Errorf("extension: key %q has no namespace", k)
		}
		s.Set(Namespace(ns), key, v)
	}
	return s, nil
}

// MarshalJSON encodes the set in its flattened composite-key form.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Flatten())
}

// UnmarshalJSON decodes the flattened composite-key form.
func (s *Set) UnmarshalJSON(b []byte) error {
	var flat map[string]Attr
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	out, err := Unflatten(flat)
	if err != nil {
		return err
	}
	*s = out
	return nil
}
