package service

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. It is the only writer of
// wallet balances.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// CreateWallet returns the owner's wallet, creating an empty one if needed.
func (s *LedgerServiceImpl) CreateWallet(ctx context.Context, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error) {
	if ownerID == uuid.Nil || !ownerType.Valid() {
		return nil, apperror.Validation("owner id and a valid owner type are required")
	}

	existing, err := s.walletRepo.GetByOwner(ctx, ownerID, ownerType)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet by owner: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerType: ownerType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.walletRepo.Create(ctx, w); err != nil {
		// Lost a race against a concurrent create for the same owner.
		if again, getErr := s.walletRepo.GetByOwner(ctx, ownerID, ownerType); getErr == nil && again != nil {
			return again, nil
		}
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("owner_id", ownerID.String()).
		Str("owner_type", string(ownerType)).
		Msg("wallet created")
	return w, nil
}

// PostTransaction posts a single entry in its own database transaction.
func (s *LedgerServiceImpl) PostTransaction(ctx context.Context, req ports.PostRequest) (*domain.Transaction, error) {
	if err := validatePost(req); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.PostInTx(ctx, dbTx, req)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return entry, nil
}

// PostInTx locks the wallet, moves one bucket and appends the entry inside
// the caller's transaction.
func (s *LedgerServiceImpl) PostInTx(ctx context.Context, tx pgx.Tx, req ports.PostRequest) (*domain.Transaction, error) {
	if err := validatePost(req); err != nil {
		return nil, err
	}

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, req.WalletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	before := wallet.BucketBalance(req.Bucket)
	after := before + req.Amount
	if req.Type == domain.TransactionTypeWithdrawal && after < 0 {
		return nil, apperror.ErrInsufficientFunds()
	}

	now := time.Now().UTC()
	wallet.SetBucketBalance(req.Bucket, after)
	wallet.UpdatedAt = now
	if err := s.walletRepo.UpdateBalances(ctx, tx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balances: %w", err))
	}

	entry := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		Bucket:        req.Bucket,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   req.Description,
		Status:        domain.TransactionStatusCompleted,
		OrderID:       req.OrderID,
		CreatedAt:     now,
	}
	if err := s.txRepo.Create(ctx, tx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	s.log.Debug().
		Str("wallet_id", wallet.ID.String()).
		Str("bucket", string(req.Bucket)).
		Str("type", string(req.Type)).
		Int64("amount", req.Amount).
		Int64("balance_after", after).
		Msg("ledger entry posted")

	return entry, nil
}

func validatePost(req ports.PostRequest) error {
	switch {
	case req.WalletID == uuid.Nil:
		return apperror.Validation("wallet id is required")
	case req.Amount == 0:
		return apperror.Validation("amount must not be zero")
	case !req.Bucket.Valid():
		return apperror.Validation("invalid bucket")
	case !req.Type.Valid():
		return apperror.Validation("invalid transaction type")
	case req.Type == domain.TransactionTypeWithdrawal && req.Bucket != domain.BucketAvailable:
		return apperror.Validation("withdrawals come out of the available bucket")
	}
	return nil
}

// Reconcile replays the wallet's ledger and, when the stored figures have
// drifted, overwrites them with the replayed ones. Drift is logged, not
// returned.
func (s *LedgerServiceImpl) Reconcile(ctx context.Context, walletID uuid.UUID) (*ports.ReconcileReport, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	entries, err := s.txRepo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallet ledger: %w", err))
	}

	report := &ports.ReconcileReport{
		WalletID: walletID,
		Stored:   wallet.Balances(),
		Replayed: domain.ReplayBalances(entries),
	}
	report.Drift = report.Stored != report.Replayed
	if !report.Drift {
		return report, nil
	}

	s.log.Warn().
		Str("wallet_id", walletID.String()).
		Interface("stored", report.Stored).
		Interface("replayed", report.Replayed).
		Msg("ledger drift detected, correcting stored balances")

	wallet.Balance = report.Replayed.Available
	wallet.PendingBalance = report.Replayed.Pending
	wallet.CashOwed = report.Replayed.CashOwed
	wallet.UpdatedAt = time.Now().UTC()
	if err := s.walletRepo.UpdateBalances(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("correct balances: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	report.Corrected = true
	return report, nil
}

// ReconcileAll reconciles every wallet; a failing wallet does not stop the run.
func (s *LedgerServiceImpl) ReconcileAll(ctx context.Context) (*ports.ReconcileSummary, error) {
	ids, err := s.walletRepo.ListIDs(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}

	summary := &ports.ReconcileSummary{}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report, err := s.Reconcile(ctx, id)
		summary.Checked++
		if err != nil {
			summary.Failed++
			s.log.Error().Err(err).Str("wallet_id", id.String()).Msg("wallet reconciliation failed")
			continue
		}
		if report.Drift {
			summary.Drifted++
		}
	}

	s.log.Info().
		Int("checked", summary.Checked).
		Int("drifted", summary.Drifted).
		Int("failed", summary.Failed).
		Msg("ledger reconciliation finished")
	return summary, nil
}
