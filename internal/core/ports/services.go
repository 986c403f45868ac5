package ports

import (
	"context"
	"time"

	"delivery-settlement/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=services.go -destination=mocks/services_mock.go -package=mocks

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(actor domain.Actor) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ActorID uuid.UUID
	Role    domain.Role
}

// EventCache is the Redis fast path in front of the processed event table.
// It may forget entries; the table is authoritative.
type EventCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// PushTokenStore maps a user to their device push token.
type PushTokenStore interface {
	Register(ctx context.Context, userID uuid.UUID, token string) error
	Lookup(ctx context.Context, userID uuid.UUID) (string, error) // "" when none
	Remove(ctx context.Context, userID uuid.UUID) error
}

// JobLock is a cluster-wide mutex for scheduled jobs.
type JobLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// NotificationSink delivers a notification to one device. Failures never
// affect the state change that produced it.
type NotificationSink interface {
	Send(ctx context.Context, deviceToken string, n domain.Notification) error
}

// PaymentProcessor is the outbound side of the external card processor.
type PaymentProcessor interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
	CreateRefund(ctx context.Context, req domain.RefundRequest) (string, error)
}

// TransferRequest asks the processor to move funds to a driver account.
// IdempotencyKey makes retried calls safe on the processor side.
type TransferRequest struct {
	IdempotencyKey string
	Destination    string
	Amount         int64
	PayoutID       uuid.UUID
}

// --- Service Ports (Business Logic) ---

// LedgerService owns every wallet mutation.
type LedgerService interface {
	CreateWallet(ctx context.Context, ownerID uuid.UUID, ownerType domain.OwnerType) (*domain.Wallet, error)
	PostTransaction(ctx context.Context, req PostRequest) (*domain.Transaction, error)
	PostInTx(ctx context.Context, tx pgx.Tx, req PostRequest) (*domain.Transaction, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*ReconcileReport, error)
	ReconcileAll(ctx context.Context) (*ReconcileSummary, error)
}

// PostRequest holds validated input for a single ledger posting.
type PostRequest struct {
	WalletID    uuid.UUID
	Bucket      domain.Bucket
	Type        domain.TransactionType
	Amount      int64
	Description string
	OrderID     *uuid.UUID
}

// ReconcileReport compares stored wallet figures against a ledger replay.
type ReconcileReport struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	Stored    domain.Balances `json:"stored"`
	Replayed  domain.Balances `json:"replayed"`
	Drift     bool            `json:"drift"`
	Corrected bool            `json:"corrected"`
}

// ReconcileSummary is the outcome of reconciling every wallet.
type ReconcileSummary struct {
	Checked int `json:"checked"`
	Drifted int `json:"drifted"`
	Failed  int `json:"failed"`
}

// DistributionService splits a delivered order's revenue into the ledger.
type DistributionService interface {
	Distribute(ctx context.Context, orderID uuid.UUID) error
	DistributeInTx(ctx context.Context, tx pgx.Tx, order *domain.Order) error
}

// AssignmentService ranks drivers for a pickup point and keeps their
// reported positions.
type AssignmentService interface {
	Rank(ctx context.Context, lat, lng float64) ([]domain.DriverCandidate, error)
	UpdateLocation(ctx context.Context, actor domain.Actor, lat, lng float64) error
}

// OrderService drives the order lifecycle.
type OrderService interface {
	Create(ctx context.Context, actor domain.Actor, req CreateOrderRequest) (*domain.Order, error)
	Get(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	Events(ctx context.Context, actor domain.Actor, orderID uuid.UUID) ([]domain.OrderEvent, error)
	Accept(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	StartPreparing(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	MarkReady(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	Assign(ctx context.Context, actor domain.Actor, orderID, driverID uuid.UUID) (*domain.Order, error)
	AutoAssign(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	PickUp(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	Deliver(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID, reason string) (*domain.Order, error)
	RegretCancel(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)
}

// CreateOrderRequest holds validated input for placing an order.
type CreateOrderRequest struct {
	BusinessID    uuid.UUID
	Total         int64
	PaymentMethod domain.PaymentMethod
}

// OrderPaymentHandler applies processor outcomes to an order inside the
// payment event transaction.
type OrderPaymentHandler interface {
	ApplyPaymentCaptured(ctx context.Context, tx pgx.Tx, data domain.PaymentIntentData) error
	ApplyPaymentFailed(ctx context.Context, tx pgx.Tx, data domain.PaymentIntentData) error
	ApplyRefund(ctx context.Context, tx pgx.Tx, data domain.ChargeRefundedData) error
}

// SettlementService runs the weekly cash settlement cycle.
type SettlementService interface {
	CloseWeek(ctx context.Context, now time.Time) (*CycleResult, error)
	BlockOverdue(ctx context.Context, now time.Time) (*CycleResult, error)
	SubmitProof(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, proofURL string) (*domain.Settlement, error)
	Approve(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, notes string) (*domain.Settlement, error)
	Reject(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, notes string) (*domain.Settlement, error)
	Get(ctx context.Context, actor domain.Actor, settlementID uuid.UUID) (*domain.Settlement, error)
	List(ctx context.Context, actor domain.Actor, params SettlementListParams) ([]domain.Settlement, int64, error)
}

// CycleResult summarises one run of a per-driver job.
type CycleResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// PaymentEventService applies processor events exactly once.
type PaymentEventService interface {
	Apply(ctx context.Context, event domain.PaymentEvent) (domain.EventOutcome, error)
	ApplyBatch(ctx context.Context, events []domain.PaymentEvent) []EventResult
}

// EventResult is the per-event outcome of a batch.
type EventResult struct {
	EventID string              `json:"event_id"`
	Outcome domain.EventOutcome `json:"outcome"`
	Error   string              `json:"error,omitempty"`
}

// ReportingService exposes wallet balances and ledger history.
type ReportingService interface {
	GetWallet(ctx context.Context, actor domain.Actor, walletID uuid.UUID) (*domain.Wallet, error)
	GetOwnWallet(ctx context.Context, actor domain.Actor) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, actor domain.Actor, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// AuditService records privileged actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// OutboxDispatcher delivers committed side effects.
type OutboxDispatcher interface {
	Dispatch(ctx context.Context, now time.Time) (*CycleResult, error)
}
