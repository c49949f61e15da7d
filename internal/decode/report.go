package decode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every FieldError.
var ErrMalformed = errors.New("decode: malformed value")

// FieldError describes one payload field that could not be decoded.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func malformed(field string, value any, format string, args ...any) *FieldError {
	return &FieldError{
		Field: field,
		Value: value,
		Err:   fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...),
	}
}

// Report collects the best-effort failures of one decode. Fields listed in it
// were left unset on the decoded entity.
type Report struct {
	Errors []*FieldError
}

func (r *Report) add(fe *FieldError) {
	r.Errors = append(r.Errors, fe)
}

// OK reports whether every field decoded.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Failed returns the failure recorded for field, if any.
func (r Report) Failed(field string) (*FieldError, bool) {
	for _, fe := range r.Errors {
		if fe.Field == field {
			return fe, true
		}
	}
	return nil, false
}

// Err joins every failure into one error, or returns nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, fe := range r.Errors {
		errs[i] = fe
	}
	return errors.Join(errs...)
}

func (r Report) String() string {
	if r.OK() {
		return "ok"
	}
	fields := make([]string, len(r.Errors))
	for i, fe := range r.Errors {
		fields[i] = fe.Field
	}
	return "failed: " + strings.Join(fields, ", ")
}
