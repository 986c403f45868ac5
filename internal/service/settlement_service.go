package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	settlementRepo ports.SettlementRepository
	walletRepo     ports.WalletRepository
	driverRepo     ports.DriverRepository
	orderRepo      ports.OrderRepository
	payoutRepo     ports.PayoutRepository
	outboxRepo     ports.OutboxRepository
	ledger         ports.LedgerService
	audit          ports.AuditService
	transactor     ports.DBTransactor
	deadline       time.Duration
	log            zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	settlementRepo ports.SettlementRepository,
	walletRepo ports.WalletRepository,
	driverRepo ports.DriverRepository,
	orderRepo ports.OrderRepository,
	payoutRepo ports.PayoutRepository,
	outboxRepo ports.OutboxRepository,
	ledger ports.LedgerService,
	audit ports.AuditService,
	transactor ports.DBTransactor,
	deadline time.Duration,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		settlementRepo: settlementRepo,
		walletRepo:     walletRepo,
		driverRepo:     driverRepo,
		orderRepo:      orderRepo,
		payoutRepo:     payoutRepo,
		outboxRepo:     outboxRepo,
		ledger:         ledger,
		audit:          audit,
		transactor:     transactor,
		deadline:       deadline,
		log:            log,
	}
}

// CloseWeek opens a settlement for every driver still holding cash for the
// previous week and takes them off the road until it is approved.
func (s *SettlementServiceImpl) CloseWeek(ctx context.Context, now time.Time) (*ports.CycleResult, error) {
	weekStart, weekEnd := domain.PreviousWeek(now)

	wallets, err := s.walletRepo.ListDriverWalletsWithCashOwed(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list driver wallets: %w", err))
	}

	result := &ports.CycleResult{}
	for i := range wallets {
		opened, err := s.openSettlement(ctx, wallets[i].ID, weekStart, weekEnd, now)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("driver %s: %v", wallets[i].OwnerID, err))
			s.log.Error().Err(err).Str("driver_id", wallets[i].OwnerID.String()).Msg("failed to open settlement")
		case opened:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionCloseWeek,
		ResourceType: "settlement",
		Details:      fmt.Sprintf(`{"week_start":%q,"opened":%d,"failed":%d}`, weekStart.Format(time.DateOnly), result.Processed, result.Failed),
		CreatedAt:    now,
	})

	s.log.Info().
		Time("week_start", weekStart).
		Int("opened", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("week closed")
	return result, nil
}

func (s *SettlementServiceImpl) openSettlement(ctx context.Context, walletID uuid.UUID, weekStart, weekEnd, now time.Time) (bool, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return false, fmt.Errorf("lock wallet: %w", err)
	}
	if wallet == nil || wallet.CashOwed <= 0 {
		return false, nil
	}

	open, err := s.settlementRepo.FindOpen(ctx, dbTx, wallet.OwnerID, weekStart)
	if err != nil {
		return false, fmt.Errorf("find open settlement: %w", err)
	}
	if open != nil {
		return false, nil
	}

	settlement := &domain.Settlement{
		ID:         uuid.New(),
		DriverID:   wallet.OwnerID,
		WalletID:   wallet.ID,
		WeekStart:  weekStart,
		WeekEnd:    weekEnd,
		AmountOwed: wallet.CashOwed,
		Status:     domain.SettlementStatusPending,
		Deadline:   now.Add(s.deadline),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.settlementRepo.Create(ctx, dbTx, settlement); err != nil {
		return false, fmt.Errorf("create settlement: %w", err)
	}

	if err := s.updateDriver(ctx, dbTx, wallet.OwnerID, func(d *domain.Driver) {
		d.IsActive = false
		d.IsAvailable = false
	}); err != nil {
		return false, err
	}

	if err := notify(ctx, dbTx, s.outboxRepo, wallet.OwnerID, domain.NotifySettlementOpened, map[string]string{
		"settlement_id": settlement.ID.String(),
		"amount_owed":   fmt.Sprint(settlement.AmountOwed),
		"deadline":      settlement.Deadline.Format(time.RFC3339),
	}); err != nil {
		return false, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Info().
		Str("settlement_id", settlement.ID.String()).
		Str("driver_id", settlement.DriverID.String()).
		Int64("amount_owed", settlement.AmountOwed).
		Msg("settlement opened")
	return true, nil
}

// BlockOverdue marks pending settlements past their deadline OVERDUE and
// blocks their drivers.
func (s *SettlementServiceImpl) BlockOverdue(ctx context.Context, now time.Time) (*ports.CycleResult, error) {
	due, err := s.settlementRepo.ListPastDeadline(ctx, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list overdue settlements: %w", err))
	}

	result := &ports.CycleResult{}
	for i := range due {
		blocked, err := s.blockOne(ctx, due[i].ID, now)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("settlement %s: %v", due[i].ID, err))
			s.log.Error().Err(err).Str("settlement_id", due[i].ID.String()).Msg("failed to block overdue settlement")
		case blocked:
			result.Processed++
		default:
			result.Skipped++
		}
	}

	if result.Processed > 0 {
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionBlockOverdue,
			ResourceType: "settlement",
			Details:      fmt.Sprintf(`{"blocked":%d}`, result.Processed),
			CreatedAt:    now,
		})
	}
	return result, nil
}

func (s *SettlementServiceImpl) blockOne(ctx context.Context, settlementID uuid.UUID, now time.Time) (bool, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	st, err := s.settlementRepo.GetByIDForUpdate(ctx, dbTx, settlementID)
	if err != nil {
		return false, fmt.Errorf("lock settlement: %w", err)
	}
	// Proof may have arrived since the listing.
	if st == nil || !st.IsPastDeadline(now) {
		return false, nil
	}

	st.Status = domain.SettlementStatusOverdue
	st.UpdatedAt = now
	if err := s.settlementRepo.Update(ctx, dbTx, st); err != nil {
		return false, fmt.Errorf("update settlement: %w", err)
	}
	if err := s.updateDriver(ctx, dbTx, st.DriverID, func(d *domain.Driver) {
		d.IsBlocked = true
		d.IsActive = false
		d.IsAvailable = false
	}); err != nil {
		return false, err
	}
	if err := notify(ctx, dbTx, s.outboxRepo, st.DriverID, domain.NotifySettlementOverdue, map[string]string{
		"settlement_id": st.ID.String(),
	}); err != nil {
		return false, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Warn().
		Str("settlement_id", st.ID.String()).
		Str("driver_id", st.DriverID.String()).
		Msg("settlement overdue, driver blocked")
	return true, nil
}

// SubmitProof attaches the driver's payment proof.
func (s *SettlementServiceImpl) SubmitProof(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, proofURL string) (*domain.Settlement, error) {
	if actor.Role != domain.RoleDriver {
		return nil, apperror.ErrForbidden()
	}
	proofURL = strings.TrimSpace(proofURL)
	if proofURL == "" {
		return nil, apperror.Validation("proof_url is required")
	}

	return s.review(ctx, settlementID, func(ctx context.Context, tx pgx.Tx, st *domain.Settlement, now time.Time) error {
		if st.DriverID != actor.ID {
			return apperror.ErrForbidden()
		}
		if !st.Status.CanSubmitProof() {
			return apperror.ErrInvalidState(fmt.Sprintf("cannot submit proof for a %s settlement", st.Status))
		}
		st.Status = domain.SettlementStatusSubmitted
		st.ProofURL = &proofURL
		st.SubmittedAt = &now
		return nil
	})
}

// Approve clears the driver's cash debt for the settlement, reactivates
// them unless another week is still unresolved and queues the week's
// card earnings payout.
func (s *SettlementServiceImpl) Approve(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, notes string) (*domain.Settlement, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperror.ErrForbidden()
	}

	return s.review(ctx, settlementID, func(ctx context.Context, tx pgx.Tx, st *domain.Settlement, now time.Time) error {
		if !st.Status.CanReview() {
			return apperror.ErrInvalidState(fmt.Sprintf("cannot approve a %s settlement", st.Status))
		}

		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, st.WalletID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return apperror.ErrNotFound("wallet")
		}
		// Never take cash owed below zero.
		settled := min(st.AmountOwed, wallet.CashOwed)
		if settled > 0 {
			if _, err := s.ledger.PostInTx(ctx, tx, ports.PostRequest{
				WalletID:    wallet.ID,
				Bucket:      domain.BucketCashOwed,
				Type:        domain.TransactionTypeAdjustment,
				Amount:      -settled,
				Description: "weekly settlement approved",
			}); err != nil {
				return err
			}
		}

		st.Status = domain.SettlementStatusApproved
		setReview(st, actor, notes, now)

		// Other unresolved weeks keep the driver blocked.
		others, err := s.settlementRepo.CountOpen(ctx, tx, st.DriverID, st.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("count open settlements: %w", err))
		}

		var driver *domain.Driver
		if err := s.updateDriver(ctx, tx, st.DriverID, func(d *domain.Driver) {
			if others == 0 {
				d.IsActive = true
				d.IsBlocked = false
				d.IsAvailable = true
			}
			driver = d
		}); err != nil {
			return err
		}

		if err := s.queuePayout(ctx, tx, st, driver, now); err != nil {
			return err
		}
		return notify(ctx, tx, s.outboxRepo, st.DriverID, domain.NotifySettlementApproved, map[string]string{
			"settlement_id": st.ID.String(),
		})
	})
}

// queuePayout creates a pending payout of the driver's card earnings for
// the settled week. The transfer itself happens after commit.
func (s *SettlementServiceImpl) queuePayout(ctx context.Context, tx pgx.Tx, st *domain.Settlement, driver *domain.Driver, now time.Time) error {
	if !driver.HasPayoutAccount() {
		s.log.Info().Str("driver_id", driver.ID.String()).Msg("no payout account linked, skipping payout")
		return nil
	}

	earned, err := s.orderRepo.SumDriverCardEarnings(ctx, tx, st.DriverID, st.WeekStart, st.WeekEnd)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("sum card earnings: %w", err))
	}
	if earned <= 0 {
		return nil
	}

	settlementID := st.ID
	payout := &domain.Payout{
		ID:           uuid.New(),
		DriverID:     st.DriverID,
		WalletID:     st.WalletID,
		SettlementID: &settlementID,
		Amount:       earned,
		Status:       domain.PayoutStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
		return apperror.InternalError(fmt.Errorf("create payout: %w", err))
	}
	if err := enqueue(ctx, tx, s.outboxRepo, domain.OutboxKindPayoutTransfer, payout.ID, domain.PayoutTransferRequest{
		PayoutID: payout.ID,
	}); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Info().
		Str("payout_id", payout.ID.String()).
		Str("driver_id", payout.DriverID.String()).
		Int64("amount", payout.Amount).
		Msg("payout queued")
	return nil
}

// Reject closes the settlement without clearing the debt. The driver stays
// inactive.
func (s *SettlementServiceImpl) Reject(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, notes string) (*domain.Settlement, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperror.ErrForbidden()
	}
	if strings.TrimSpace(notes) == "" {
		return nil, apperror.Validation("notes are required when rejecting")
	}

	return s.review(ctx, settlementID, func(ctx context.Context, tx pgx.Tx, st *domain.Settlement, now time.Time) error {
		if !st.Status.CanReview() {
			return apperror.ErrInvalidState(fmt.Sprintf("cannot reject a %s settlement", st.Status))
		}
		st.Status = domain.SettlementStatusRejected
		setReview(st, actor, notes, now)
		return notify(ctx, tx, s.outboxRepo, st.DriverID, domain.NotifySettlementRejected, map[string]string{
			"settlement_id": st.ID.String(),
			"notes":         notes,
		})
	})
}

// review locks a settlement, lets apply change it and persists the result.
func (s *SettlementServiceImpl) review(ctx context.Context, settlementID uuid.UUID, apply func(context.Context, pgx.Tx, *domain.Settlement, time.Time) error) (*domain.Settlement, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	st, err := s.settlementRepo.GetByIDForUpdate(ctx, dbTx, settlementID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock settlement: %w", err))
	}
	if st == nil {
		return nil, apperror.ErrNotFound("settlement")
	}

	now := time.Now().UTC()
	if err := apply(ctx, dbTx, st, now); err != nil {
		return nil, err
	}
	st.UpdatedAt = now
	if err := s.settlementRepo.Update(ctx, dbTx, st); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update settlement: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("settlement_id", st.ID.String()).
		Str("driver_id", st.DriverID.String()).
		Str("status", string(st.Status)).
		Msg("settlement updated")
	return st, nil
}

// Get returns a settlement. Drivers only see their own.
func (s *SettlementServiceImpl) Get(ctx context.Context, actor domain.Actor, settlementID uuid.UUID) (*domain.Settlement, error) {
	st, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get settlement: %w", err))
	}
	if st == nil {
		return nil, apperror.ErrNotFound("settlement")
	}
	if !actor.IsPrivileged() && !(actor.Role == domain.RoleDriver && actor.ID == st.DriverID) {
		return nil, apperror.ErrForbidden()
	}
	return st, nil
}

// List returns settlements. A driver's listing is always scoped to them.
func (s *SettlementServiceImpl) List(ctx context.Context, actor domain.Actor, params ports.SettlementListParams) ([]domain.Settlement, int64, error) {
	switch {
	case actor.IsPrivileged():
	case actor.Role == domain.RoleDriver:
		id := actor.ID
		params.DriverID = &id
	default:
		return nil, 0, apperror.ErrForbidden()
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	list, total, err := s.settlementRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list settlements: %w", err))
	}
	return list, total, nil
}

func (s *SettlementServiceImpl) updateDriver(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, fn func(*domain.Driver)) error {
	driver, err := s.driverRepo.GetByIDForUpdate(ctx, tx, driverID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock driver: %w", err))
	}
	if driver == nil {
		return apperror.ErrNotFound("driver")
	}
	fn(driver)
	driver.UpdatedAt = time.Now().UTC()
	if err := s.driverRepo.UpdateState(ctx, tx, driver); err != nil {
		return apperror.InternalError(fmt.Errorf("update driver: %w", err))
	}
	return nil
}

func setReview(st *domain.Settlement, actor domain.Actor, notes string, now time.Time) {
	st.ReviewedAt = &now
	st.ReviewedBy = actor.IDPtr()
	if n := strings.TrimSpace(notes); n != "" {
		st.AdminNotes = &n
	}
}
