package ports

import (
	"context"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

// Methods accepting pgx.Tx run inside the caller's transaction. The
// ...ForUpdate variants take a row lock that is held until commit.

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	ListDriverWalletsWithCashOwed(ctx context.Context) ([]domain.Wallet, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TransactionRepository defines persistence operations for ledger entries.
// Entries are never updated or deleted.
type TransactionRepository interface {
	// Create inserts the entry and fills in its Sequence.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// ListByWallet returns every entry of a wallet ordered by Sequence.
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing ledger entries.
type TransactionListParams struct {
	WalletID uuid.UUID
	Type     *domain.TransactionType
	Bucket   *domain.Bucket
	OrderID  *uuid.UUID
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)
	// UpdateStatus writes the lifecycle columns of order only if the stored
	// row still has expected status and version. Returns false otherwise.
	UpdateStatus(ctx context.Context, tx pgx.Tx, order *domain.Order, expected domain.OrderStatus, expectedVersion int) (bool, error)
	// AssignDriver sets the driver only if the order is READY with no driver.
	AssignDriver(ctx context.Context, tx pgx.Tx, orderID, driverID uuid.UUID, at time.Time) (bool, error)
	// SetEarnings writes the split only if no earnings were recorded yet.
	SetEarnings(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, split domain.Split) (bool, error)
	UpdatePayment(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	AppendEvent(ctx context.Context, tx pgx.Tx, event *domain.OrderEvent) error
	ListEvents(ctx context.Context, orderID uuid.UUID) ([]domain.OrderEvent, error)
	// SumDriverCardEarnings totals delivery earnings of delivered card orders
	// in [from, to).
	SumDriverCardEarnings(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, from, to time.Time) (int64, error)
}

// DriverRepository defines persistence operations for drivers.
type DriverRepository interface {
	Create(ctx context.Context, driver *domain.Driver) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Driver, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Driver, error)
	// ListAssignable returns available, active, unblocked drivers with coordinates.
	ListAssignable(ctx context.Context) ([]domain.Driver, error)
	UpdateState(ctx context.Context, tx pgx.Tx, driver *domain.Driver) error
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
}

// BusinessRepository defines persistence operations for businesses.
type BusinessRepository interface {
	Create(ctx context.Context, business *domain.Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
}

// SettlementRepository defines persistence operations for weekly settlements.
type SettlementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, settlement *domain.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Settlement, error)
	// FindOpen returns a PENDING, SUBMITTED or OVERDUE settlement of the
	// driver for the week starting at weekStart, or nil.
	FindOpen(ctx context.Context, tx pgx.Tx, driverID uuid.UUID, weekStart time.Time) (*domain.Settlement, error)
	// CountOpen counts the driver's unresolved settlements other than exceptID.
	CountOpen(ctx context.Context, tx pgx.Tx, driverID, exceptID uuid.UUID) (int, error)
	Update(ctx context.Context, tx pgx.Tx, settlement *domain.Settlement) error
	ListPastDeadline(ctx context.Context, now time.Time) ([]domain.Settlement, error)
	List(ctx context.Context, params SettlementListParams) ([]domain.Settlement, int64, error)
}

// SettlementListParams holds filter + pagination for listing settlements.
type SettlementListParams struct {
	DriverID *uuid.UUID
	Status   *domain.SettlementStatus
	Page     int
	PageSize int
}

// PayoutRepository defines persistence operations for driver payouts.
type PayoutRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payout, error)
	Update(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
}

// ProcessedEventRepository is the durable dedupe log of payment events.
type ProcessedEventRepository interface {
	// Record inserts the event id. It returns false if it was already there.
	Record(ctx context.Context, tx pgx.Tx, event *domain.ProcessedEvent) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
}

// OutboxRepository stores side effects to dispatch after commit.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error)
	UpdateDelivery(ctx context.Context, msg *domain.OutboxMessage) error
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
