package service

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
) ports.ReportingService {
	return &reportingService{
		txRepo:     txRepo,
		walletRepo: walletRepo,
	}
}

// GetWallet returns a wallet the actor owns, or any wallet for admins.
func (s *reportingService) GetWallet(ctx context.Context, actor domain.Actor, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !canViewWallet(actor, wallet) {
		return nil, apperror.ErrForbidden()
	}
	return wallet, nil
}

// GetOwnWallet returns the wallet of the calling business or driver.
func (s *reportingService) GetOwnWallet(ctx context.Context, actor domain.Actor) (*domain.Wallet, error) {
	ownerType, ok := ownerTypeFor(actor.Role)
	if !ok {
		return nil, apperror.ErrForbidden()
	}

	wallet, err := s.walletRepo.GetByOwner(ctx, actor.ID, ownerType)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet by owner: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

// ListTransactions returns a paginated list of ledger entries of one wallet.
func (s *reportingService) ListTransactions(ctx context.Context, actor domain.Actor, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if _, err := s.GetWallet(ctx, actor, params.WalletID); err != nil {
		return nil, 0, err
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, apperror.Validation("from must not be after to")
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

func canViewWallet(actor domain.Actor, w *domain.Wallet) bool {
	if actor.IsPrivileged() {
		return true
	}
	ownerType, ok := ownerTypeFor(actor.Role)
	return ok && w.OwnerID == actor.ID && w.OwnerType == ownerType
}

func ownerTypeFor(role domain.Role) (domain.OwnerType, bool) {
	switch role {
	case domain.RoleBusiness:
		return domain.OwnerTypeBusiness, true
	case domain.RoleDriver:
		return domain.OwnerTypeDriver, true
	}
	return "", false
}
