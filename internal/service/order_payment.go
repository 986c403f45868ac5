package service

import (
	"context"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// ApplyPaymentCaptured marks a card order as paid and parks the charge in
// the platform's pending bucket until delivery.
func (s *OrderServiceImpl) ApplyPaymentCaptured(ctx context.Context, tx pgx.Tx, data domain.PaymentIntentData) error {
	order, err := s.lockOrder(ctx, tx, data.OrderID)
	if err != nil {
		return err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return apperror.ErrInvalidState("order is not paid by card")
	}
	if order.PaymentStatus == domain.PaymentStatusCaptured || order.PaymentStatus == domain.PaymentStatusRefunded {
		return nil
	}
	if data.Amount != order.Total {
		s.log.Warn().
			Str("order_id", order.ID.String()).
			Int64("captured", data.Amount).
			Int64("total", order.Total).
			Msg("captured amount differs from order total")
	}

	chargeID := data.ChargeID
	order.ChargeID = &chargeID
	order.PaymentStatus = domain.PaymentStatusCaptured
	order.UpdatedAt = time.Now().UTC()
	if err := s.orderRepo.UpdatePayment(ctx, tx, order); err != nil {
		return apperror.InternalError(fmt.Errorf("update order payment: %w", err))
	}

	if err := s.postPlatform(ctx, tx, order, domain.BucketPending, domain.TransactionTypePayment, order.Total, "card charge captured"); err != nil {
		return err
	}

	// The customer may have cancelled while the charge was in flight.
	if order.Status == domain.OrderStatusCancelled {
		if err := s.requestRefundIfCaptured(ctx, tx, order); err != nil {
			return err
		}
	}

	s.log.Info().Str("order_id", order.ID.String()).Str("charge_id", chargeID).Msg("card payment captured")
	return nil
}

// ApplyPaymentFailed cancels a card order that never got paid.
func (s *OrderServiceImpl) ApplyPaymentFailed(ctx context.Context, tx pgx.Tx, data domain.PaymentIntentData) error {
	order, err := s.lockOrder(ctx, tx, data.OrderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus != domain.PaymentStatusAwaiting {
		s.log.Info().
			Str("order_id", order.ID.String()).
			Str("payment_status", string(order.PaymentStatus)).
			Msg("payment failure ignored for settled charge")
		return nil
	}

	order.PaymentStatus = domain.PaymentStatusFailed
	order.UpdatedAt = time.Now().UTC()
	if err := s.orderRepo.UpdatePayment(ctx, tx, order); err != nil {
		return apperror.InternalError(fmt.Errorf("update order payment: %w", err))
	}

	if order.Status != domain.OrderStatusPending {
		s.log.Warn().
			Str("order_id", order.ID.String()).
			Str("status", string(order.Status)).
			Msg("payment failed after order left pending")
		return nil
	}

	reason := "payment failed"
	if data.FailureReason != "" {
		reason = "payment failed: " + data.FailureReason
	}
	return s.transitionInTx(ctx, tx, order, domain.OrderStatusCancelled, domain.SystemActor, transitionOpts{
		before: func(o *domain.Order) { o.CancelReason = &reason },
	})
}

// ApplyRefund records a cumulative refund amount. Only the increase over
// what was already recorded is posted.
func (s *OrderServiceImpl) ApplyRefund(ctx context.Context, tx pgx.Tx, data domain.ChargeRefundedData) error {
	order, err := s.lockOrder(ctx, tx, data.OrderID)
	if err != nil {
		return err
	}
	if data.AmountRefunded <= 0 {
		return apperror.Validation("refunded amount must be positive")
	}

	var previous int64
	if order.RefundAmount != nil {
		previous = *order.RefundAmount
	}
	delta := data.AmountRefunded - previous
	if delta <= 0 {
		return nil
	}

	bucket := domain.BucketPending
	if order.IsDistributed() {
		bucket = domain.BucketAvailable
	}
	if err := s.postPlatform(ctx, tx, order, bucket, domain.TransactionTypeRefund, -delta, "charge refunded"); err != nil {
		return err
	}

	now := time.Now().UTC()
	amount := data.AmountRefunded
	order.RefundAmount = &amount
	order.RefundedAt = &now
	order.UpdatedAt = now
	if amount >= order.Total {
		order.PaymentStatus = domain.PaymentStatusRefunded
	}
	if err := s.orderRepo.UpdatePayment(ctx, tx, order); err != nil {
		return apperror.InternalError(fmt.Errorf("update order payment: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Int64("refunded", amount).
		Int64("delta", delta).
		Msg("refund applied")
	return nil
}

func (s *OrderServiceImpl) postPlatform(ctx context.Context, tx pgx.Tx, order *domain.Order, bucket domain.Bucket, typ domain.TransactionType, amount int64, desc string) error {
	wallet, err := s.ledger.CreateWallet(ctx, s.platformOwnerID, domain.OwnerTypePlatform)
	if err != nil {
		return err
	}
	orderID := order.ID
	_, err = s.ledger.PostInTx(ctx, tx, ports.PostRequest{
		WalletID:    wallet.ID,
		Bucket:      bucket,
		Type:        typ,
		Amount:      amount,
		Description: desc,
		OrderID:     &orderID,
	})
	return err
}
