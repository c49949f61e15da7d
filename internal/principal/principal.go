// Package principal carries the authenticated caller through the data layer.
// Every ACL-scoped query takes a Principal explicitly; the context helpers exist
// for request layers that resolve the caller once and pass ctx downstream.
package principal

import "context"

// Principal is the caller of a query: a user id plus its administrative grants.
type Principal struct {
	// UserID identifies the user. Empty means an unauthenticated caller.
	UserID string
	// Admin grants visibility over every device.
	Admin bool
	// AnonymousAdmin grants visibility over devices that have no owner.
	AnonymousAdmin bool
}

// Anonymous is the zero Principal; it sees nothing it does not own.
var Anonymous = Principal{}

// IsAdministrator reports whether p may see every device.
func (p Principal) IsAdministrator() bool { return p.Admin }

// IsAnonymousAdministrator reports whether p may see unclaimed devices.
func (p Principal) IsAnonymousAdministrator() bool { return p.AnonymousAdmin }

// Owns reports whether p is the owner recorded as ownerID. An unclaimed device
// (nil owner) is owned by nobody, including the anonymous principal.
func (p Principal) Owns(ownerID *string) bool {
	return ownerID != nil && p.UserID != "" && *ownerID == p.UserID
}

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the Principal stored in ctx and true if set; otherwise Anonymous, false.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Anonymous, false
	}
	return p, true
}
