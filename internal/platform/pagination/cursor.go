// Package pagination encodes keyset cursors. A cursor is the opaque form of the
// last key returned on a page; the next page starts strictly after it.
package pagination

import (
	"encoding/base64"
	"errors"
)

// ErrInvalidCursor is returned for cursors that were not produced by Encode.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// DefaultLimit applies when a caller passes a non-positive limit.
const DefaultLimit = 100

const prefix = "k1:"

// Encode returns the cursor that resumes after lastKey.
func Encode(lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(prefix + lastKey))
}

// Decode returns the key encoded in cursor. An empty cursor decodes to "" (start
// from the beginning).
func Decode(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(b) < len(prefix) || string(b[:len(prefix)]) != prefix {
		return "", ErrInvalidCursor
	}
	return string(b[len(prefix):]), nil
}

// Limit normalizes a requested page size.
func Limit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}
