package memory

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DriverRepo implements ports.DriverRepository.
type DriverRepo struct {
	s *Store
}

// NewDriverRepo creates a DriverRepo over the store.
func NewDriverRepo(s *Store) *DriverRepo {
	return &DriverRepo{s: s}
}

func (r *DriverRepo) Create(ctx context.Context, d *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drivers[d.ID]; ok {
		return fmt.Errorf("insert driver: duplicate id %s", d.ID)
	}
	r.s.drivers[d.ID] = *d
	return nil
}

func (r *DriverRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Driver, error) {
	var out *domain.Driver
	r.s.read(func() {
		if d, ok := r.s.drivers[id]; ok {
			out = &d
		}
	})
	return out, nil
}

func (r *DriverRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Driver, error) {
	return r.GetByID(ctx, id)
}

func (r *DriverRepo) ListAssignable(ctx context.Context) ([]domain.Driver, error) {
	var out []domain.Driver
	r.s.read(func() {
		for _, d := range r.s.drivers {
			if d.IsAssignable() && d.HasLocation() {
				out = append(out, d)
			}
		}
	})
	sortBy(out, func(d domain.Driver) string { return d.ID.String() })
	return out, nil
}

func (r *DriverRepo) UpdateState(ctx context.Context, tx pgx.Tx, d *domain.Driver) error {
	var prev domain.Driver
	var found bool
	r.s.write(tx, func() {
		prev, found = r.s.drivers[d.ID]
		if !found {
			return
		}
		next := prev
		next.IsAvailable = d.IsAvailable
		next.IsActive = d.IsActive
		next.IsBlocked = d.IsBlocked
		next.CompletedOrders = d.CompletedOrders
		next.PayoutAccountEnc = d.PayoutAccountEnc
		next.UpdatedAt = d.UpdatedAt
		r.s.drivers[d.ID] = next
	}, func() {
		if found {
			r.s.drivers[d.ID] = prev
		}
	})
	if !found {
		return fmt.Errorf("driver not found: %s", d.ID)
	}
	return nil
}

func (r *DriverRepo) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drivers[id]
	if !ok {
		return fmt.Errorf("driver not found: %s", id)
	}
	d.Lat, d.Lng = &lat, &lng
	d.UpdatedAt = time.Now().UTC()
	r.s.drivers[id] = d
	return nil
}

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	s *Store
}

// NewBusinessRepo creates a BusinessRepo over the store.
func NewBusinessRepo(s *Store) *BusinessRepo {
	return &BusinessRepo{s: s}
}

func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.businesses[b.ID] = *b
	return nil
}

func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	var out *domain.Business
	r.s.read(func() {
		if b, ok := r.s.businesses[id]; ok {
			out = &b
		}
	})
	return out, nil
}
