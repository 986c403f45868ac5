package memory

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	s *Store
}

// NewSettlementRepo creates a SettlementRepo over the store.
func NewSettlementRepo(s *Store) *SettlementRepo {
	return &SettlementRepo{s: s}
}

// Create enforces one open settlement per driver and week, like the
// partial unique index of the SQL schema.
func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, st *domain.Settlement) error {
	var conflict bool
	r.s.write(tx, func() {
		for _, existing := range r.s.settlements {
			if existing.DriverID == st.DriverID && existing.WeekStart.Equal(st.WeekStart) &&
				existing.Status.IsOpen() && st.Status.IsOpen() {
				conflict = true
				return
			}
		}
		r.s.settlements[st.ID] = *st
	}, func() {
		if !conflict {
			delete(r.s.settlements, st.ID)
		}
	})
	if conflict {
		return fmt.Errorf("insert settlement: open settlement exists for driver %s", st.DriverID)
	}
	return nil
}

func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	var out *domain.Settlement
	r.s.read(func() {
		if st, ok := r.s.settlements[id]; ok {
			out = &st
		}
	})
	return out, nil
}

func (r *SettlementRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Settlement, error) {
	return r.GetByID(ctx, id)
}

func (r *SettlementRepo) FindOpen(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, weekStart time.Time) (*domain.Settlement, error) {
	var out *domain.Settlement
	r.s.read(func() {
		for _, st := range r.s.settlements {
			if st.DriverID == driverID && st.WeekStart.Equal(weekStart) && st.Status.IsOpen() {
				out = &st
				return
			}
		}
	})
	return out, nil
}

func (r *SettlementRepo) CountOpen(ctx context.Context, tx pgx.Tx, driverID, exceptID uuid.UUID) (int, error) {
	var n int
	r.s.read(func() {
		for id, st := range r.s.settlements {
			if id != exceptID && st.DriverID == driverID && st.Status.IsOpen() {
				n++
			}
		}
	})
	return n, nil
}

func (r *SettlementRepo) Update(ctx context.Context, tx pgx.Tx, st *domain.Settlement) error {
	var prev domain.Settlement
	var found bool
	r.s.write(tx, func() {
		prev, found = r.s.settlements[st.ID]
		if !found {
			return
		}
		next := prev
		next.Status = st.Status
		next.ProofURL = st.ProofURL
		next.AdminNotes = st.AdminNotes
		next.SubmittedAt = st.SubmittedAt
		next.ReviewedAt = st.ReviewedAt
		next.ReviewedBy = st.ReviewedBy
		next.UpdatedAt = st.UpdatedAt
		r.s.settlements[st.ID] = next
	}, func() {
		if found {
			r.s.settlements[st.ID] = prev
		}
	})
	if !found {
		return fmt.Errorf("settlement not found: %s", st.ID)
	}
	return nil
}

func (r *SettlementRepo) ListPastDeadline(ctx context.Context, now time.Time) ([]domain.Settlement, error) {
	var out []domain.Settlement
	r.s.read(func() {
		for _, st := range r.s.settlements {
			if st.Status == domain.SettlementStatusPending && st.Deadline.Before(now) {
				out = append(out, st)
			}
		}
	})
	sortBy(out, func(st domain.Settlement) string { return st.Deadline.Format(time.RFC3339Nano) })
	return out, nil
}

// List returns settlements newest first.
func (r *SettlementRepo) List(ctx context.Context, params ports.SettlementListParams) ([]domain.Settlement, int64, error) {
	var matched []domain.Settlement
	r.s.read(func() {
		for _, st := range r.s.settlements {
			if params.DriverID != nil && st.DriverID != *params.DriverID {
				continue
			}
			if params.Status != nil && st.Status != *params.Status {
				continue
			}
			matched = append(matched, st)
		}
	})
	sortBy(matched, func(st domain.Settlement) string { return st.ID.String() })
	sortBy(matched, func(st domain.Settlement) string { return st.CreatedAt.Format(time.RFC3339Nano) })
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return paginate(matched, params.Page, params.PageSize), int64(len(matched)), nil
}
