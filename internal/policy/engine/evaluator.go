package engine

import (
	"context"

	devicedomain "mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/principal"
)

// Evaluator decides device visibility for a principal using OPA or other engines.
type Evaluator interface {
	// CanAccessDevice reports whether who may see d and the data reported by it.
	// A nil device is never accessible.
	CanAccessDevice(ctx context.Context, who principal.Principal, d *devicedomain.DeviceInfo) (bool, error)
}
