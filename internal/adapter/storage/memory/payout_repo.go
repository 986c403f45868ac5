package memory

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	s *Store
}

// NewPayoutRepo creates a PayoutRepo over the store.
func NewPayoutRepo(s *Store) *PayoutRepo {
	return &PayoutRepo{s: s}
}

func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	r.s.write(tx, func() {
		r.s.payouts[p.ID] = *p
	}, func() {
		delete(r.s.payouts, p.ID)
	})
	return nil
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	var out *domain.Payout
	r.s.read(func() {
		if p, ok := r.s.payouts[id]; ok {
			out = &p
		}
	})
	return out, nil
}

func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error) {
	return r.GetByID(ctx, id)
}

func (r *PayoutRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	var prev domain.Payout
	var found bool
	r.s.write(tx, func() {
		prev, found = r.s.payouts[p.ID]
		if found {
			r.s.payouts[p.ID] = *p
		}
	}, func() {
		if found {
			r.s.payouts[p.ID] = prev
		}
	})
	if !found {
		return fmt.Errorf("payout not found: %s", p.ID)
	}
	return nil
}
