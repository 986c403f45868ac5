package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType is the processor's event name.
type PaymentEventType string

const (
	EventPaymentSucceeded PaymentEventType = "payment_intent.succeeded"
	EventPaymentFailed    PaymentEventType = "payment_intent.payment_failed"
	EventChargeRefunded   PaymentEventType = "charge.refunded"
	EventAccountUpdated   PaymentEventType = "account.updated"
	EventPayoutPaid       PaymentEventType = "payout.paid"
	EventPayoutFailed     PaymentEventType = "payout.failed"
)

// PaymentEvent is a callback from the external payment processor. It may
// be delivered more than once and out of order.
type PaymentEvent struct {
	ID      string           `json:"id"`
	Type    PaymentEventType `json:"type"`
	Created int64            `json:"created"`
	Data    json.RawMessage  `json:"data"`
}

// ProcessedEvent is the durable record that an event id has been applied.
type ProcessedEvent struct {
	EventID     string           `json:"event_id"`
	EventType   PaymentEventType `json:"event_type"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// PaymentIntentData is the body of payment_intent.* events.
type PaymentIntentData struct {
	OrderID       uuid.UUID `json:"order_id"`
	ChargeID      string    `json:"charge_id"`
	Amount        int64     `json:"amount"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// ChargeRefundedData is the body of charge.refunded.
type ChargeRefundedData struct {
	OrderID        uuid.UUID `json:"order_id"`
	ChargeID       string    `json:"charge_id"`
	AmountRefunded int64     `json:"amount_refunded"`
}

// AccountUpdatedData is the body of account.updated.
type AccountUpdatedData struct {
	DriverID       uuid.UUID `json:"driver_id"`
	AccountID      string    `json:"account_id"`
	PayoutsEnabled bool      `json:"payouts_enabled"`
}

// PayoutEventData is the body of payout.* events.
type PayoutEventData struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	TransferID    string    `json:"transfer_id"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// EventOutcome is the result of applying one event.
type EventOutcome string

const (
	EventOutcomeApplied   EventOutcome = "applied"
	EventOutcomeDuplicate EventOutcome = "duplicate"
	EventOutcomeIgnored   EventOutcome = "ignored"
	EventOutcomeFailed    EventOutcome = "failed"
)
