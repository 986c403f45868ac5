package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, customer_id, business_id, driver_id, status, status_version, total,
	payment_method, payment_status, charge_id, platform_fee, business_earnings, delivery_earnings,
	refund_amount, cancel_reason, created_at, updated_at, accepted_at, ready_at, assigned_at,
	picked_up_at, delivered_at, cancelled_at, refunded_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order within a transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders
		(id, customer_id, business_id, status, status_version, total, payment_method, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.CustomerID, o.BusinessID, o.Status, o.StatusVersion, o.Total,
		o.PaymentMethod, o.PaymentStatus, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID fetches an order without locking.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, id), "get order by id")
}

// GetByIDForUpdate fetches an order and locks its row until commit.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(tx.QueryRow(ctx, query, id), "get order for update")
}

// UpdateStatus is a compare-and-set on (status, status_version). On success
// the in-memory version is bumped to match the row.
func (r *OrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, o *domain.Order, expected domain.OrderStatus, expectedVersion int) (bool, error) {
	query := `UPDATE orders SET
			status = $1, status_version = status_version + 1, driver_id = $2, cancel_reason = $3,
			accepted_at = $4, ready_at = $5, assigned_at = $6, picked_up_at = $7,
			delivered_at = $8, cancelled_at = $9, updated_at = $10
		WHERE id = $11 AND status = $12 AND status_version = $13`

	tag, err := tx.Exec(ctx, query,
		o.Status, o.DriverID, o.CancelReason,
		o.AcceptedAt, o.ReadyAt, o.AssignedAt, o.PickedUpAt,
		o.DeliveredAt, o.CancelledAt, o.UpdatedAt,
		o.ID, expected, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	o.StatusVersion = expectedVersion + 1
	return true, nil
}

// AssignDriver claims a READY order for a driver. Only one concurrent
// caller can win because of the driver_id IS NULL guard.
func (r *OrderRepo) AssignDriver(ctx context.Context, tx pgx.Tx, orderID, driverID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE orders SET
			driver_id = $1, status = 'ASSIGNED', status_version = status_version + 1,
			assigned_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'READY' AND driver_id IS NULL`

	tag, err := tx.Exec(ctx, query, driverID, at, orderID)
	if err != nil {
		return false, fmt.Errorf("assign driver: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetEarnings records the commission split once.
func (r *OrderRepo) SetEarnings(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, split domain.Split) (bool, error) {
	query := `UPDATE orders SET platform_fee = $1, business_earnings = $2, delivery_earnings = $3, updated_at = NOW()
		WHERE id = $4 AND business_earnings IS NULL`

	tag, err := tx.Exec(ctx, query, split.Platform, split.Business, split.Driver, orderID)
	if err != nil {
		return false, fmt.Errorf("set order earnings: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePayment writes the payment columns of an order.
func (r *OrderRepo) UpdatePayment(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `UPDATE orders SET payment_status = $1, charge_id = $2, refund_amount = $3, refunded_at = $4, updated_at = $5
		WHERE id = $6`

	tag, err := tx.Exec(ctx, query, o.PaymentStatus, o.ChargeID, o.RefundAmount, o.RefundedAt, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", o.ID)
	}
	return nil
}

// AppendEvent inserts a status history row.
func (r *OrderRepo) AppendEvent(ctx context.Context, tx pgx.Tx, e *domain.OrderEvent) error {
	query := `INSERT INTO order_events (id, order_id, from_status, to_status, actor_role, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query, e.ID, e.OrderID, e.FromStatus, e.ToStatus, e.ActorRole, e.ActorID, e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}

// ListEvents returns the status history of an order, oldest first.
func (r *OrderRepo) ListEvents(ctx context.Context, orderID uuid.UUID) ([]domain.OrderEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, from_status, to_status, actor_role, actor_id, note, created_at
		 FROM order_events WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order events: %w", err)
	}
	defer rows.Close()

	var events []domain.OrderEvent
	for rows.Next() {
		var e domain.OrderEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorRole, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SumDriverCardEarnings totals the driver's share of delivered card orders
// in [from, to).
func (r *OrderRepo) SumDriverCardEarnings(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, from, to time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(delivery_earnings), 0) FROM orders
		WHERE driver_id = $1 AND payment_method = 'CARD' AND status = 'DELIVERED'
		AND delivered_at >= $2 AND delivered_at < $3`

	var sum int64
	if err := tx.QueryRow(ctx, query, driverID, from, to).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum driver card earnings: %w", err)
	}
	return sum, nil
}

func scanOrder(row pgx.Row, op string) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.BusinessID, &o.DriverID, &o.Status, &o.StatusVersion, &o.Total,
		&o.PaymentMethod, &o.PaymentStatus, &o.ChargeID, &o.PlatformFee, &o.BusinessEarnings, &o.DeliveryEarnings,
		&o.RefundAmount, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt, &o.AcceptedAt, &o.ReadyAt, &o.AssignedAt,
		&o.PickedUpAt, &o.DeliveredAt, &o.CancelledAt, &o.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}
