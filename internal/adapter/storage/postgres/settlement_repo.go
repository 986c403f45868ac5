package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const settlementColumns = `id, driver_id, wallet_id, week_start, week_end, amount_owed, status, deadline,
	proof_url, admin_notes, submitted_at, reviewed_at, reviewed_by, created_at, updated_at`

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Create inserts a settlement within a transaction.
func (r *SettlementRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error {
	query := `INSERT INTO weekly_settlements (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.DriverID, s.WalletID, s.WeekStart, s.WeekEnd, s.AmountOwed, s.Status, s.Deadline,
		s.ProofURL, s.AdminNotes, s.SubmittedAt, s.ReviewedAt, s.ReviewedBy, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID fetches a settlement without locking.
func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM weekly_settlements WHERE id = $1`
	return scanSettlement(r.pool.QueryRow(ctx, query, id), "get settlement by id")
}

// GetByIDForUpdate fetches a settlement and locks its row until commit.
func (r *SettlementRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM weekly_settlements WHERE id = $1 FOR UPDATE`
	return scanSettlement(tx.QueryRow(ctx, query, id), "get settlement for update")
}

// FindOpen looks up an unresolved settlement of the driver for a week.
func (r *SettlementRepo) FindOpen(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, weekStart time.Time) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM weekly_settlements
		WHERE driver_id = $1 AND week_start = $2 AND status IN ('PENDING', 'SUBMITTED', 'OVERDUE')
		LIMIT 1`
	return scanSettlement(tx.QueryRow(ctx, query, driverID, weekStart), "find open settlement")
}

// CountOpen counts the driver's unresolved settlements other than exceptID.
func (r *SettlementRepo) CountOpen(ctx context.Context, tx pgx.Tx, driverID, exceptID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM weekly_settlements
		WHERE driver_id = $1 AND id <> $2 AND status IN ('PENDING', 'SUBMITTED', 'OVERDUE')`

	var n int
	if err := tx.QueryRow(ctx, query, driverID, exceptID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open settlements: %w", err)
	}
	return n, nil
}

// Update writes the mutable columns of a settlement.
func (r *SettlementRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error {
	query := `UPDATE weekly_settlements SET
			status = $1, proof_url = $2, admin_notes = $3, submitted_at = $4,
			reviewed_at = $5, reviewed_by = $6, updated_at = $7
		WHERE id = $8`

	tag, err := tx.Exec(ctx, query,
		s.Status, s.ProofURL, s.AdminNotes, s.SubmittedAt, s.ReviewedAt, s.ReviewedBy, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement not found: %s", s.ID)
	}
	return nil
}

// ListPastDeadline returns pending settlements whose deadline has passed.
func (r *SettlementRepo) ListPastDeadline(ctx context.Context, now time.Time) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM weekly_settlements
		WHERE status = 'PENDING' AND deadline < $1 ORDER BY deadline ASC`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue settlements: %w", err)
	}
	defer rows.Close()
	return collectSettlements(rows)
}

// List retrieves a filtered, paginated page of settlements, newest first.
func (r *SettlementRepo) List(ctx context.Context, params ports.SettlementListParams) ([]domain.Settlement, int64, error) {
	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if params.DriverID != nil {
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", argIdx))
		args = append(args, *params.DriverID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM weekly_settlements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count settlements: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM weekly_settlements %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		settlementColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	list, err := collectSettlements(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func collectSettlements(rows pgx.Rows) ([]domain.Settlement, error) {
	var list []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows, "scan settlement row")
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement rows: %w", err)
	}
	return list, nil
}

func scanSettlement(row pgx.Row, op string) (*domain.Settlement, error) {
	s := &domain.Settlement{}
	err := row.Scan(
		&s.ID, &s.DriverID, &s.WalletID, &s.WeekStart, &s.WeekEnd, &s.AmountOwed, &s.Status, &s.Deadline,
		&s.ProofURL, &s.AdminNotes, &s.SubmittedAt, &s.ReviewedAt, &s.ReviewedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}
