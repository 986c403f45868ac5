package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxKind names the side effect an outbox message asks for.
type OutboxKind string

const (
	OutboxKindNotification   OutboxKind = "NOTIFICATION"
	OutboxKindPayoutTransfer OutboxKind = "PAYOUT_TRANSFER"
	OutboxKindRefundRequest  OutboxKind = "REFUND_REQUEST"
)

// OutboxStatus represents the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusDelivered OutboxStatus = "DELIVERED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxMessage is an external side effect recorded in the same database
// transaction as the state change that caused it, and dispatched after
// commit.
type OutboxMessage struct {
	ID            uuid.UUID    `json:"id"`
	Kind          OutboxKind   `json:"kind"`
	AggregateID   uuid.UUID    `json:"aggregate_id"`
	Payload       []byte       `json:"payload"` // JSON
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	LastError     *string      `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Notification template keys.
const (
	NotifyOrderStatusChanged = "order.status_changed"
	NotifyOrderAssigned      = "order.assigned"
	NotifySettlementOpened   = "settlement.opened"
	NotifySettlementOverdue  = "settlement.overdue"
	NotifySettlementApproved = "settlement.approved"
	NotifySettlementRejected = "settlement.rejected"
)

// Notification is the payload of a NOTIFICATION outbox message.
type Notification struct {
	RecipientID uuid.UUID         `json:"recipient_id"`
	Template    string            `json:"template"`
	Data        map[string]string `json:"data,omitempty"`
}

// PayoutTransferRequest is the payload of a PAYOUT_TRANSFER outbox message.
type PayoutTransferRequest struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

// RefundRequest is the payload of a REFUND_REQUEST outbox message.
type RefundRequest struct {
	OrderID  uuid.UUID `json:"order_id"`
	ChargeID string    `json:"charge_id"`
	Amount   int64     `json:"amount"`
}
