package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/filter"
	"mobiperf/backend/internal/platform/pagination"
)

// ErrDuplicateID is returned when creating a device whose id already exists.
var ErrDuplicateID = errors.New("device: duplicate id")

// MemoryRepository is an in-process device repository for tests. Returned
// values are copies.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]domain.DeviceInfo
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]domain.DeviceInfo)}
}

func cloneDevice(d domain.DeviceInfo) *domain.DeviceInfo {
	if d.OwnerID != nil {
		owner := *d.OwnerID
		d.OwnerID = &owner
	}
	return &d
}

func (r *MemoryRepository) sorted() []domain.DeviceInfo {
	out := make([]domain.DeviceInfo, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b domain.DeviceInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// GetByID returns the device for id, or nil if not found.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.DeviceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, nil
	}
	return cloneDevice(d), nil
}

// List returns one page of devices ordered by id.
func (r *MemoryRepository) List(_ context.Context, q ListQuery) ([]*domain.DeviceInfo, string, error) {
	after, err := pagination.Decode(q.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.Limit(q.Limit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeviceInfo
	for _, d := range r.sorted() {
		if d.ID <= after {
			continue
		}
		if q.OwnerID != nil && (d.OwnerID == nil || *d.OwnerID != *q.OwnerID) {
			continue
		}
		if len(out) == limit {
			return out, pagination.Encode(out[limit-1].ID), nil
		}
		out = append(out, cloneDevice(d))
	}
	return out, "", nil
}

// Create stores d.
func (r *MemoryRepository) Create(_ context.Context, d *domain.DeviceInfo) error {
	if d.ID == "" {
		return errors.New("device: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	r.devices[d.ID] = *cloneDevice(*d)
	return nil
}

// UpdateOwner sets or clears the owner of device id.
func (r *MemoryRepository) UpdateOwner(_ context.Context, id string, ownerID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("device %s: not found", id)
	}
	d.OwnerID = nil
	if ownerID != nil {
		owner := *ownerID
		d.OwnerID = &owner
	}
	r.devices[id] = d
	return nil
}

// FindByFilter evaluates e against every device.
func (r *MemoryRepository) FindByFilter(_ context.Context, e filter.Expr) ([]*domain.DeviceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeviceInfo
	for _, d := range r.sorted() {
		if e.Eval(d.FilterAttributes()) {
			out = append(out, cloneDevice(d))
		}
	}
	return out, nil
}

// MemoryPropertiesRepository is an in-process snapshot repository. Snapshots
// without a timestamp are stamped with the clock.
type MemoryPropertiesRepository struct {
	mu      sync.RWMutex
	devices *MemoryRepository
	clock   clockwork.Clock
	byDev   map[string][]domain.DeviceProperties
}

// NewMemoryPropertiesRepository returns an empty repository joined to devices.
func NewMemoryPropertiesRepository(devices *MemoryRepository, clock clockwork.Clock) *MemoryPropertiesRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryPropertiesRepository{devices: devices, clock: clock, byDev: make(map[string][]domain.DeviceProperties)}
}

// Create stores p.
func (r *MemoryPropertiesRepository) Create(_ context.Context, p *domain.DeviceProperties) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = r.clock.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *p
	stored.HostApps = slices.Clone(p.HostApps)
	r.byDev[p.DeviceID] = append(r.byDev[p.DeviceID], stored)
	return nil
}

// Latest returns the newest snapshot for deviceID, or nil if none exists.
func (r *MemoryPropertiesRepository) Latest(_ context.Context, deviceID string) (*domain.DeviceProperties, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byDev[deviceID]
	if len(list) == 0 {
		return nil, nil
	}
	latest := slices.MaxFunc(list, func(a, b domain.DeviceProperties) int { return a.Timestamp.Compare(b.Timestamp) })
	latest.HostApps = slices.Clone(latest.HostApps)
	return &latest, nil
}

// Count returns the number of snapshots stored for deviceID.
func (r *MemoryPropertiesRepository) Count(_ context.Context, deviceID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byDev[deviceID])), nil
}

// DevicesMatching returns the devices owning a snapshot that satisfies e.
// Snapshots whose device is unknown are skipped.
func (r *MemoryPropertiesRepository) DevicesMatching(ctx context.Context, e filter.Expr) ([]*domain.DeviceInfo, error) {
	r.mu.RLock()
	var ids []string
	for id, list := range r.byDev {
		for i := range list {
			if e.Eval(list[i].FilterAttributes()) {
				ids = append(ids, id)
				break
			}
		}
	}
	r.mu.RUnlock()
	slices.Sort(ids)

	var out []*domain.DeviceInfo
	for _, id := range ids {
		d, err := r.devices.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

var (
	_ Repository           = (*MemoryRepository)(nil)
	_ PropertiesRepository = (*MemoryPropertiesRepository)(nil)
	_ Repository           = (*PostgresRepository)(nil)
	_ PropertiesRepository = (*PostgresPropertiesRepository)(nil)
)
