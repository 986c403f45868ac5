package postgres

import (
	"context"
	"errors"
	"fmt"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const driverColumns = `id, name, vehicle_type, rating, completed_orders, lat, lng,
	is_available, is_active, is_blocked, payout_account_enc, created_at, updated_at`

// DriverRepo implements ports.DriverRepository.
type DriverRepo struct {
	pool Pool
}

// NewDriverRepo creates a new DriverRepo.
func NewDriverRepo(pool Pool) *DriverRepo {
	return &DriverRepo{pool: pool}
}

// Create inserts a new driver.
func (r *DriverRepo) Create(ctx context.Context, d *domain.Driver) error {
	query := `INSERT INTO drivers (` + driverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.Name, d.VehicleType, d.Rating, d.CompletedOrders, d.Lat, d.Lng,
		d.IsAvailable, d.IsActive, d.IsBlocked, d.PayoutAccountEnc, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

// GetByID fetches a driver without locking.
func (r *DriverRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	return scanDriver(r.pool.QueryRow(ctx, query, id), "get driver by id")
}

// GetByIDForUpdate fetches a driver and locks its row until commit.
func (r *DriverRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1 FOR UPDATE`
	return scanDriver(tx.QueryRow(ctx, query, id), "get driver for update")
}

// ListAssignable returns drivers that may currently take an order.
func (r *DriverRepo) ListAssignable(ctx context.Context) ([]domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers
		WHERE is_available AND is_active AND NOT is_blocked AND lat IS NOT NULL AND lng IS NOT NULL`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list assignable drivers: %w", err)
	}
	defer rows.Close()

	var drivers []domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows, "scan driver row")
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate driver rows: %w", err)
	}
	return drivers, nil
}

// UpdateState writes availability flags, counters and payout destination.
func (r *DriverRepo) UpdateState(ctx context.Context, tx pgx.Tx, d *domain.Driver) error {
	query := `UPDATE drivers SET
			is_available = $1, is_active = $2, is_blocked = $3, completed_orders = $4,
			payout_account_enc = $5, updated_at = $6
		WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		d.IsAvailable, d.IsActive, d.IsBlocked, d.CompletedOrders, d.PayoutAccountEnc, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update driver state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver not found: %s", d.ID)
	}
	return nil
}

// UpdateLocation stores the driver's last reported position.
func (r *DriverRepo) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE drivers SET lat = $1, lng = $2, updated_at = NOW() WHERE id = $3`, lat, lng, id)
	if err != nil {
		return fmt.Errorf("update driver location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver not found: %s", id)
	}
	return nil
}

func scanDriver(row pgx.Row, op string) (*domain.Driver, error) {
	d := &domain.Driver{}
	err := row.Scan(
		&d.ID, &d.Name, &d.VehicleType, &d.Rating, &d.CompletedOrders, &d.Lat, &d.Lng,
		&d.IsAvailable, &d.IsActive, &d.IsBlocked, &d.PayoutAccountEnc, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}
