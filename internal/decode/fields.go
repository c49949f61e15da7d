package decode

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	devicedomain "mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/extension"
)

// Timestamp decodes epoch microseconds given as a decimal string or a JSON number.
func Timestamp(field string, v any) (time.Time, *FieldError) {
	us, fe := Int64(field, v)
	if fe != nil {
		return time.Time{}, fe
	}
	return time.UnixMicro(us).UTC(), nil
}

// Location decodes {"latitude": .., "longitude": ..}. Both coordinates are
// required.
func Location(field string, v any) (*devicedomain.Location, *FieldError) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, malformed(field, v, "expected an object, got %T", v)
	}
	lat, fe := Float64(field+".latitude", m["latitude"])
	if fe != nil {
		return nil, fe
	}
	lon, fe := Float64(field+".longitude", m["longitude"])
	if fe != nil {
		return nil, fe
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, malformed(field, v, "coordinates out of range")
	}
	return &devicedomain.Location{Latitude: lat, Longitude: lon}, nil
}

// Int64 accepts integral JSON numbers and decimal strings.
func Int64(field string, v any) (int64, *FieldError) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return 0, malformed(field, v, "not an integer")
		}
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, malformed(field, v, "%v", err)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, malformed(field, v, "%v", err)
		}
		return n, nil
	}
	return 0, malformed(field, v, "expected an integer, got %T", v)
}

// Float64 accepts JSON numbers and decimal strings.
func Float64(field string, v any) (float64, *FieldError) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, malformed(field, v, "%v", err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, malformed(field, v, "%v", err)
		}
		return f, nil
	}
	return 0, malformed(field, v, "expected a number, got %T", v)
}

// Bool accepts JSON booleans and "true"/"false" strings.
func Bool(field string, v any) (bool, *FieldError) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, malformed(field, v, "%v", err)
		}
		return b, nil
	}
	return false, malformed(field, v, "expected a boolean, got %T", v)
}

// String accepts strings only.
func String(field string, v any) (string, *FieldError) {
	s, ok := v.(string)
	if !ok {
		return "", malformed(field, v, "expected a string, got %T", v)
	}
	return s, nil
}

// Strings accepts a list of strings.
func Strings(field string, v any) ([]string, *FieldError) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, malformed(field, v, "list element %T is not a string", e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, malformed(field, v, "expected a list of strings, got %T", v)
}

// IsLargeTextValue reports whether a measurement value stored under key is kept
// as unbounded text regardless of its length.
func IsLargeTextValue(key string) bool {
	switch key {
	case "body", "headers", "error", "context_results", "tcp_speed_results":
		return true
	}
	return strings.Contains(key, "navigationTimingResults") ||
		strings.Contains(key, "resource_") ||
		strings.HasPrefix(key, "video_")
}

// IsLargeTextParam reports whether a measurement parameter stored under key is
// kept as unbounded text regardless of its length.
func IsLargeTextParam(key string) bool {
	return strings.Contains(key, "content_u_r_l")
}

// attr wraps a payload value for the extension sidecar. Forced values are
// stored as text, encoding non-strings as JSON; strings longer than
// extension.MaxScalarBytes are promoted to text.
func attr(v any, forceText bool) (extension.Attr, error) {
	s, isString := v.(string)
	if forceText && !isString {
		b, err := json.Marshal(v)
		if err != nil {
			return extension.Attr{}, err
		}
		return extension.LargeText(string(b)), nil
	}
	if isString && (forceText || len(s) > extension.MaxScalarBytes) {
		return extension.LargeText(s), nil
	}
	return extension.Scalar(v), nil
}

func decodeExtensions(set *extension.Set, ns extension.Namespace, field string, v any, forceText func(string) bool) *FieldError {
	m, ok := v.(map[string]any)
	if !ok {
		return malformed(field, v, "expected an object, got %T", v)
	}
	for k, val := range m {
		a, err := attr(val, forceText != nil && forceText(k))
		if err != nil {
			return malformed(field+"."+k, val, "%v", err)
		}
		set.Set(ns, k, a)
	}
	return nil
}

// Parameters writes every entry of v into the param namespace of set.
func Parameters(set *extension.Set, v any) *FieldError {
	return decodeExtensions(set, extension.Param, "parameters", v, nil)
}

// MeasurementParameters is Parameters with the measurement large-text rule.
func MeasurementParameters(set *extension.Set, v any) *FieldError {
	return decodeExtensions(set, extension.Param, "parameters", v, IsLargeTextParam)
}

// Contexts writes every entry of v into the context namespace of set.
func Contexts(set *extension.Set, v any) *FieldError {
	return decodeExtensions(set, extension.Context, "contexts", v, nil)
}

// Values writes every entry of v into the value namespace of set, keeping
// free-text results as unbounded text.
func Values(set *extension.Set, v any) *FieldError {
	return decodeExtensions(set, extension.Value, "values", v, IsLargeTextValue)
}
