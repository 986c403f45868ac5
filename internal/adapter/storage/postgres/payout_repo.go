package postgres

import (
	"context"
	"errors"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payoutColumns = `id, driver_id, wallet_id, settlement_id, amount, status, external_transfer_id,
	failure_reason, created_at, updated_at`

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	pool Pool
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(pool Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Create inserts a payout within a transaction.
func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `INSERT INTO payouts (` + payoutColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.DriverID, p.WalletID, p.SettlementID, p.Amount, p.Status,
		p.ExternalTransferID, p.FailureReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID fetches a payout without locking.
func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	return scanPayout(r.pool.QueryRow(ctx, query, id), "get payout by id")
}

// GetByIDForUpdate fetches a payout and locks its row until commit.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`
	return scanPayout(tx.QueryRow(ctx, query, id), "get payout for update")
}

// Update writes status, transfer id and failure reason.
func (r *PayoutRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	tag, err := tx.Exec(ctx,
		`UPDATE payouts SET status = $1, external_transfer_id = $2, failure_reason = $3, updated_at = $4 WHERE id = $5`,
		p.Status, p.ExternalTransferID, p.FailureReason, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout not found: %s", p.ID)
	}
	return nil
}

func scanPayout(row pgx.Row, op string) (*domain.Payout, error) {
	p := &domain.Payout{}
	err := row.Scan(
		&p.ID, &p.DriverID, &p.WalletID, &p.SettlementID, &p.Amount, &p.Status,
		&p.ExternalTransferID, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
