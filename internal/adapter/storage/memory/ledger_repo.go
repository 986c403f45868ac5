package memory

import (
	"context"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.TransactionRepository.
type LedgerRepo struct {
	s *Store
}

// NewLedgerRepo creates a LedgerRepo over the store.
func NewLedgerRepo(s *Store) *LedgerRepo {
	return &LedgerRepo{s: s}
}

func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.s.write(tx, func() {
		r.s.seq++
		t.Sequence = r.s.seq
		r.s.entries[t.ID] = *t
		r.s.walletLedger[t.WalletID] = append(r.s.walletLedger[t.WalletID], t.ID)
	}, func() {
		delete(r.s.entries, t.ID)
		ids := r.s.walletLedger[t.WalletID]
		if n := len(ids); n > 0 && ids[n-1] == t.ID {
			r.s.walletLedger[t.WalletID] = ids[:n-1]
		}
	})
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	r.s.read(func() {
		if t, ok := r.s.entries[id]; ok {
			out = &t
		}
	})
	return out, nil
}

func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	r.s.read(func() {
		for _, id := range r.s.walletLedger[walletID] {
			out = append(out, r.s.entries[id])
		}
	})
	return out, nil
}

// List returns the wallet's entries newest first.
func (r *LedgerRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var matched []domain.Transaction
	r.s.read(func() {
		ids := r.s.walletLedger[params.WalletID]
		for i := len(ids) - 1; i >= 0; i-- {
			t := r.s.entries[ids[i]]
			if params.Type != nil && t.Type != *params.Type {
				continue
			}
			if params.Bucket != nil && t.Bucket != *params.Bucket {
				continue
			}
			if params.OrderID != nil && (t.OrderID == nil || *t.OrderID != *params.OrderID) {
				continue
			}
			if !inRange(t.CreatedAt, params.From, params.To) {
				continue
			}
			matched = append(matched, t)
		}
	})
	return paginate(matched, params.Page, params.PageSize), int64(len(matched)), nil
}
