package domain

import (
	"time"

	"github.com/google/uuid"
)

// SettlementStatus is the state of a driver's weekly cash settlement.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusSubmitted SettlementStatus = "SUBMITTED"
	SettlementStatusApproved  SettlementStatus = "APPROVED"
	SettlementStatusRejected  SettlementStatus = "REJECTED"
	SettlementStatusOverdue   SettlementStatus = "OVERDUE"
)

// IsOpen returns true until an admin has approved or rejected the
// settlement. An open settlement blocks a second one for the same week.
func (s SettlementStatus) IsOpen() bool {
	return s == SettlementStatusPending || s == SettlementStatusSubmitted || s == SettlementStatusOverdue
}

// CanSubmitProof reports whether a driver may upload proof from this state.
func (s SettlementStatus) CanSubmitProof() bool {
	return s == SettlementStatusPending || s == SettlementStatusOverdue
}

// CanReview reports whether an admin may approve or reject from this state.
func (s SettlementStatus) CanReview() bool {
	return s == SettlementStatusPending || s == SettlementStatusSubmitted || s == SettlementStatusOverdue
}

// Settlement is the weekly reconciliation of cash a driver collected on
// behalf of the platform and businesses.
type Settlement struct {
	ID          uuid.UUID        `json:"id"`
	DriverID    uuid.UUID        `json:"driver_id"`
	WalletID    uuid.UUID        `json:"wallet_id"`
	WeekStart   time.Time        `json:"week_start"`
	WeekEnd     time.Time        `json:"week_end"`
	AmountOwed  int64            `json:"amount_owed"`
	Status      SettlementStatus `json:"status"`
	Deadline    time.Time        `json:"deadline"`
	ProofURL    *string          `json:"proof_url,omitempty"`
	AdminNotes  *string          `json:"admin_notes,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy  *uuid.UUID       `json:"reviewed_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsPastDeadline reports whether a pending settlement missed its deadline.
func (s *Settlement) IsPastDeadline(now time.Time) bool {
	return s.Status == SettlementStatusPending && now.After(s.Deadline)
}

// PreviousWeek returns the [start, end) bounds of the calendar week (Monday
// 00:00 UTC) before the one containing now.
func PreviousWeek(now time.Time) (time.Time, time.Time) {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(midnight.Weekday()) + 6) % 7
	thisMonday := midnight.AddDate(0, 0, -offset)
	return thisMonday.AddDate(0, 0, -7), thisMonday
}
