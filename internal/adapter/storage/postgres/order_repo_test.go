package postgres

import (
	"context"
	"testing"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderCols() []string {
	return []string{"id", "customer_id", "business_id", "driver_id", "status", "status_version", "total",
		"payment_method", "payment_status", "charge_id", "platform_fee", "business_earnings", "delivery_earnings",
		"refund_amount", "cancel_reason", "created_at", "updated_at", "accepted_at", "ready_at", "assigned_at",
		"picked_up_at", "delivered_at", "cancelled_at", "refunded_at"}
}

func orderRow(o *domain.Order) *pgxmock.Rows {
	return pgxmock.NewRows(orderCols()).AddRow(
		o.ID, o.CustomerID, o.BusinessID, o.DriverID, o.Status, o.StatusVersion, o.Total,
		o.PaymentMethod, o.PaymentStatus, o.ChargeID, o.PlatformFee, o.BusinessEarnings, o.DeliveryEarnings,
		o.RefundAmount, o.CancelReason, o.CreatedAt, o.UpdatedAt, o.AcceptedAt, o.ReadyAt, o.AssignedAt,
		o.PickedUpAt, o.DeliveredAt, o.CancelledAt, o.RefundedAt,
	)
}

func newTestOrder(status domain.OrderStatus) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		BusinessID:    uuid.New(),
		Status:        status,
		StatusVersion: 3,
		Total:         12000,
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusCaptured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder(domain.OrderStatusPending)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.CustomerID, o.BusinessID, o.Status, o.StatusVersion, o.Total,
			o.PaymentMethod, o.PaymentStatus, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder(domain.OrderStatusReady)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id .+ FOR UPDATE").
		WithArgs(o.ID).
		WillReturnRows(orderRow(o))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByIDForUpdate(context.Background(), tx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.OrderStatusReady, got.Status)
	assert.Equal(t, 3, got.StatusVersion)
	assert.Nil(t, got.DriverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(orderCols()))

	got, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderRepo_UpdateStatus_BumpsVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder(domain.OrderStatusAccepted)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET .+ WHERE id = \\$11 AND status = \\$12 AND status_version = \\$13").
		WithArgs(o.Status, o.DriverID, o.CancelReason, o.AcceptedAt, o.ReadyAt, o.AssignedAt, o.PickedUpAt,
			o.DeliveredAt, o.CancelledAt, o.UpdatedAt, o.ID, domain.OrderStatusPending, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.UpdateStatus(context.Background(), tx, o, domain.OrderStatusPending, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, o.StatusVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_UpdateStatus_StaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder(domain.OrderStatusCancelled)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			o.ID, domain.OrderStatusPending, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.UpdateStatus(context.Background(), tx, o, domain.OrderStatusPending, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, o.StatusVersion)
}

func TestOrderRepo_AssignDriver(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"claims ready order", 1, true},
		{"already claimed", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewOrderRepo(mock)
			orderID, driverID := uuid.New(), uuid.New()
			at := time.Now().UTC()

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE orders SET .+ WHERE id = \\$3 AND status = 'READY' AND driver_id IS NULL").
				WithArgs(driverID, at, orderID).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			ok, err := repo.AssignDriver(context.Background(), tx, orderID, driverID, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOrderRepo_SetEarnings_OnlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	orderID := uuid.New()
	split := domain.Split{Business: 8400, Driver: 2500, Platform: 1100}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET platform_fee .+ business_earnings IS NULL").
		WithArgs(int64(1100), int64(8400), int64(2500), orderID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE orders SET platform_fee .+ business_earnings IS NULL").
		WithArgs(int64(1100), int64(8400), int64(2500), orderID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	first, err := repo.SetEarnings(context.Background(), tx, orderID, split)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.SetEarnings(context.Background(), tx, orderID, split)
	require.NoError(t, err)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_SumDriverCardEarnings(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	driverID := uuid.New()
	from := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(delivery_earnings\\), 0\\) FROM orders").
		WithArgs(driverID, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(7500)))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	sum, err := repo.SumDriverCardEarnings(context.Background(), tx, driverID, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), sum)
}

func TestOrderRepo_ListEvents(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	orderID := uuid.New()
	actorID := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "order_id", "from_status", "to_status", "actor_role", "actor_id", "note", "created_at"}).
		AddRow(uuid.New(), orderID, domain.OrderStatusPending, domain.OrderStatusAccepted, domain.RoleBusiness, &actorID, "", now).
		AddRow(uuid.New(), orderID, domain.OrderStatusAccepted, domain.OrderStatusCancelled, domain.RoleSystem, (*uuid.UUID)(nil), "payment failed", now)

	mock.ExpectQuery("SELECT .+ FROM order_events WHERE order_id").
		WithArgs(orderID).
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.OrderStatusAccepted, events[0].ToStatus)
	assert.Nil(t, events[1].ActorID)
	assert.Equal(t, "payment failed", events[1].Note)
}
