package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus tracks a transfer of card earnings to a driver's account.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusPaid       PayoutStatus = "PAID"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

// IsTerminal returns true for PAID and FAILED.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusFailed
}

// Payout is one transfer of a driver's weekly card earnings.
type Payout struct {
	ID                 uuid.UUID    `json:"id"`
	DriverID           uuid.UUID    `json:"driver_id"`
	WalletID           uuid.UUID    `json:"wallet_id"`
	SettlementID       *uuid.UUID   `json:"settlement_id,omitempty"`
	Amount             int64        `json:"amount"`
	Status             PayoutStatus `json:"status"`
	ExternalTransferID *string      `json:"external_transfer_id,omitempty"`
	FailureReason      *string      `json:"failure_reason,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
