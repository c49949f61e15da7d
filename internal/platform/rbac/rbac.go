// Package rbac holds the built-in visibility rules: who may see a device and which
// operations need an administrator.
package rbac

import (
	"context"
	"errors"

	devicedomain "mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/principal"
)

var (
	// ErrUnauthenticated is returned when no principal is present or it has no user id and no grants.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	// ErrAdminRequired is returned when the principal is not an administrator.
	ErrAdminRequired = errors.New("rbac: administrator required")
)

// CanAccessDevice reports whether who may see d: administrators see everything,
// anonymous administrators see unclaimed devices and users see what they own.
func CanAccessDevice(who principal.Principal, d *devicedomain.DeviceInfo) bool {
	if d == nil {
		return false
	}
	switch {
	case who.IsAdministrator():
		return true
	case who.IsAnonymousAdministrator() && d.IsUnclaimed():
		return true
	default:
		return who.Owns(d.OwnerID)
	}
}

// RequireAdmin returns nil when who is an administrator.
func RequireAdmin(who principal.Principal) error {
	if who.IsAdministrator() {
		return nil
	}
	if who.UserID == "" && !who.IsAnonymousAdministrator() {
		return ErrUnauthenticated
	}
	return ErrAdminRequired
}

// RequireAdminFromContext reads the principal from ctx and checks it with RequireAdmin.
func RequireAdminFromContext(ctx context.Context) (principal.Principal, error) {
	who, ok := principal.FromContext(ctx)
	if !ok {
		return principal.Anonymous, ErrUnauthenticated
	}
	if err := RequireAdmin(who); err != nil {
		return principal.Anonymous, err
	}
	return who, nil
}
