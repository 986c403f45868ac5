package memory

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	s *Store
}

// NewWalletRepo creates a WalletRepo over the store.
func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wallets[w.ID]; ok {
		return fmt.Errorf("insert wallet: duplicate id %s", w.ID)
	}
	for _, existing := range r.s.wallets {
		if existing.OwnerID == w.OwnerID && existing.OwnerType == w.OwnerType {
			return fmt.Errorf("insert wallet: owner %s already has a %s wallet", w.OwnerID, w.OwnerType)
		}
	}
	r.s.wallets[w.ID] = *w
	return nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.s.read(func() {
		if w, ok := r.s.wallets[id]; ok {
			out = &w
		}
	})
	return out, nil
}

func (r *WalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.s.read(func() {
		for _, w := range r.s.wallets {
			if w.OwnerID == ownerID && w.OwnerType == ownerType {
				w := w
				out = &w
				return
			}
		}
	})
	return out, nil
}

func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *WalletRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error) {
	return r.GetByOwner(ctx, ownerID, ownerType)
}

func (r *WalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	var prev domain.Wallet
	var found bool
	r.s.write(tx, func() {
		prev, found = r.s.wallets[w.ID]
		if !found {
			return
		}
		next := prev
		next.Balance = w.Balance
		next.PendingBalance = w.PendingBalance
		next.CashOwed = w.CashOwed
		next.UpdatedAt = w.UpdatedAt
		r.s.wallets[w.ID] = next
	}, func() {
		if found {
			r.s.wallets[w.ID] = prev
		}
	})
	if !found {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	return nil
}

func (r *WalletRepo) ListDriverWalletsWithCashOwed(ctx context.Context) ([]domain.Wallet, error) {
	var out []domain.Wallet
	r.s.read(func() {
		for _, w := range r.s.wallets {
			if w.OwnerType == domain.OwnerTypeDriver && w.CashOwed > 0 {
				out = append(out, w)
			}
		}
	})
	sortBy(out, func(w domain.Wallet) string { return w.OwnerID.String() })
	return out, nil
}

func (r *WalletRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	r.s.read(func() {
		for id := range r.s.wallets {
			out = append(out, id)
		}
	})
	sortBy(out, func(id uuid.UUID) string { return id.String() })
	return out, nil
}
