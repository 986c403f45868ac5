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

// failPayout marks a payout FAILED. If the withdrawal was already posted
// (PROCESSING) the amount is credited back to the driver.
func failPayout(ctx context.Context, tx pgx.Tx, repo ports.PayoutRepository, ledger ports.LedgerService, p *domain.Payout, reason string) error {
	if p.Status.IsTerminal() {
		return nil
	}
	withdrawn := p.Status == domain.PayoutStatusProcessing

	p.Status = domain.PayoutStatusFailed
	if reason != "" {
		p.FailureReason = &reason
	}
	p.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, tx, p); err != nil {
		return apperror.InternalError(fmt.Errorf("update payout: %w", err))
	}

	if !withdrawn {
		return nil
	}
	_, err := ledger.PostInTx(ctx, tx, ports.PostRequest{
		WalletID:    p.WalletID,
		Bucket:      domain.BucketAvailable,
		Type:        domain.TransactionTypeAdjustment,
		Amount:      p.Amount,
		Description: "payout failed, funds returned",
	})
	return err
}
