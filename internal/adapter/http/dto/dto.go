package dto

import "delivery-settlement/internal/core/domain"

// CreateOrderRequest is the request body for placing an order.
type CreateOrderRequest struct {
	BusinessID    string `json:"business_id" binding:"required,uuid"`
	Total         int64  `json:"total" binding:"required,gt=0"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=CARD CASH"`
}

// AssignDriverRequest is the request body for a manual assignment.
type AssignDriverRequest struct {
	DriverID string `json:"driver_id" binding:"required,uuid"`
}

// CancelOrderRequest is the request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// LocationRequest is the request body for a driver position update.
type LocationRequest struct {
	Lat *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

// RankQuery holds the pickup point for ranking drivers.
type RankQuery struct {
	Lat *float64 `form:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `form:"lng" binding:"required,min=-180,max=180"`
}

// ProofRequest is the request body for submitting settlement proof.
type ProofRequest struct {
	ProofURL string `json:"proof_url" binding:"required,max=2048,safe_url"`
}

// ReviewRequest is the request body for approving or rejecting a settlement.
type ReviewRequest struct {
	Notes string `json:"notes" binding:"max=1000"`
}

// SettlementListQuery filters the settlement listing.
type SettlementListQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=PENDING SUBMITTED APPROVED REJECTED OVERDUE"`
	DriverID string `form:"driver_id" binding:"omitempty,uuid"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// TransactionListQuery filters a wallet's ledger history.
type TransactionListQuery struct {
	Type     string `form:"type" binding:"omitempty,oneof=PAYMENT COMMISSION REFUND WITHDRAWAL ADJUSTMENT"`
	Bucket   string `form:"bucket" binding:"omitempty,oneof=AVAILABLE PENDING CASH_OWED"`
	OrderID  string `form:"order_id" binding:"omitempty,uuid"`
	From     string `form:"from" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To       string `form:"to" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// AdjustmentRequest is the request body for a manual ledger correction.
type AdjustmentRequest struct {
	Bucket      string `json:"bucket" binding:"required,oneof=AVAILABLE PENDING CASH_OWED"`
	Amount      int64  `json:"amount" binding:"required,ne=0"`
	Description string `json:"description" binding:"required,max=255"`
}

// PushTokenRequest registers the caller's device for push notifications.
type PushTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096,safe_token"`
}

// WebhookBatch is the batch form of the payment webhook body.
type WebhookBatch struct {
	Events []domain.PaymentEvent `json:"events"`
}
