package service

import (
	"context"
	"fmt"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DistributionServiceImpl implements ports.DistributionService.
type DistributionServiceImpl struct {
	orderRepo       ports.OrderRepository
	ledger          ports.LedgerService
	transactor      ports.DBTransactor
	policy          domain.CommissionPolicy
	platformOwnerID uuid.UUID
	log             zerolog.Logger
}

// NewDistributionService creates a new DistributionServiceImpl.
func NewDistributionService(
	orderRepo ports.OrderRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	policy domain.CommissionPolicy,
	platformOwnerID uuid.UUID,
	log zerolog.Logger,
) *DistributionServiceImpl {
	return &DistributionServiceImpl{
		orderRepo:       orderRepo,
		ledger:          ledger,
		transactor:      transactor,
		policy:          policy,
		platformOwnerID: platformOwnerID,
		log:             log,
	}
}

// Distribute splits a delivered order in its own transaction. Calling it
// again for the same order is a no-op.
func (s *DistributionServiceImpl) Distribute(ctx context.Context, orderID uuid.UUID) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return apperror.ErrNotFound("order")
	}
	if order.IsDistributed() {
		return nil
	}
	if order.Status != domain.OrderStatusDelivered {
		return apperror.ErrInvalidState("order is not delivered")
	}

	if err := s.DistributeInTx(ctx, dbTx, order); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// DistributeInTx writes the split and its ledger entries inside tx. The
// order row must already be locked by the caller.
func (s *DistributionServiceImpl) DistributeInTx(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	if order.DriverID == nil {
		return apperror.ErrInvalidState("order has no driver")
	}

	split := domain.ComputeSplit(order.Total, s.policy)
	claimed, err := s.orderRepo.SetEarnings(ctx, tx, order.ID, split)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("set earnings: %w", err))
	}
	if !claimed {
		s.log.Info().Str("order_id", order.ID.String()).Msg("order already distributed, skipping")
		return nil
	}

	businessWallet, err := s.ledger.CreateWallet(ctx, order.BusinessID, domain.OwnerTypeBusiness)
	if err != nil {
		return err
	}
	driverWallet, err := s.ledger.CreateWallet(ctx, *order.DriverID, domain.OwnerTypeDriver)
	if err != nil {
		return err
	}
	platformWallet, err := s.ledger.CreateWallet(ctx, s.platformOwnerID, domain.OwnerTypePlatform)
	if err != nil {
		return err
	}

	orderID := order.ID
	post := func(walletID uuid.UUID, bucket domain.Bucket, typ domain.TransactionType, amount int64, desc string) error {
		if amount == 0 {
			return nil
		}
		_, err := s.ledger.PostInTx(ctx, tx, ports.PostRequest{
			WalletID:    walletID,
			Bucket:      bucket,
			Type:        typ,
			Amount:      amount,
			Description: desc,
			OrderID:     &orderID,
		})
		return err
	}

	switch order.PaymentMethod {
	case domain.PaymentMethodCard:
		if err := post(businessWallet.ID, domain.BucketAvailable, domain.TransactionTypeCommission, split.Business, "business earnings"); err != nil {
			return err
		}
		if err := post(driverWallet.ID, domain.BucketAvailable, domain.TransactionTypeCommission, split.Driver, "delivery earnings"); err != nil {
			return err
		}
		if err := post(platformWallet.ID, domain.BucketAvailable, domain.TransactionTypeCommission, split.Platform, "platform fee"); err != nil {
			return err
		}
		if order.IsCaptured() {
			if err := post(platformWallet.ID, domain.BucketPending, domain.TransactionTypePayment, -order.Total, "release captured charge"); err != nil {
				return err
			}
		}
	case domain.PaymentMethodCash:
		if err := post(businessWallet.ID, domain.BucketAvailable, domain.TransactionTypeCommission, split.Business, "business earnings"); err != nil {
			return err
		}
		if err := post(platformWallet.ID, domain.BucketAvailable, domain.TransactionTypeCommission, split.Platform, "platform fee"); err != nil {
			return err
		}
		// The driver holds the cash and owes everyone else's share.
		if err := post(driverWallet.ID, domain.BucketCashOwed, domain.TransactionTypeCommission, split.Business+split.Platform, "cash collected for business and platform"); err != nil {
			return err
		}
	default:
		return apperror.ErrInvalidState("unknown payment method")
	}

	platform, business, driver := split.Platform, split.Business, split.Driver
	order.PlatformFee = &platform
	order.BusinessEarnings = &business
	order.DeliveryEarnings = &driver

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("payment_method", string(order.PaymentMethod)).
		Int64("business", split.Business).
		Int64("driver", split.Driver).
		Int64("platform", split.Platform).
		Msg("order revenue distributed")
	return nil
}
