package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is a node of the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusAssigned  OrderStatus = "ASSIGNED"
	OrderStatusPickedUp  OrderStatus = "PICKED_UP"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// AllowedTransitions is the order state flow as code. Terminal states have
// no entry.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:  {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned:  {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:  {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for DELIVERED and CANCELLED.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "CARD"
	PaymentMethodCash PaymentMethod = "CASH"
)

// Valid reports whether the method is known.
func (p PaymentMethod) Valid() bool {
	return p == PaymentMethodCard || p == PaymentMethodCash
}

// PaymentStatus tracks the external card charge of an order.
type PaymentStatus string

const (
	PaymentStatusNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentStatusAwaiting    PaymentStatus = "AWAITING"
	PaymentStatusCaptured    PaymentStatus = "CAPTURED"
	PaymentStatusFailed      PaymentStatus = "FAILED"
	PaymentStatusRefunded    PaymentStatus = "REFUNDED"
)

// Order is a customer purchase fulfilled by a business and a driver.
type Order struct {
	ID               uuid.UUID     `json:"id"`
	CustomerID       uuid.UUID     `json:"customer_id"`
	BusinessID       uuid.UUID     `json:"business_id"`
	DriverID         *uuid.UUID    `json:"driver_id,omitempty"`
	Status           OrderStatus   `json:"status"`
	StatusVersion    int           `json:"status_version"`
	Total            int64         `json:"total"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	ChargeID         *string       `json:"charge_id,omitempty"`
	PlatformFee      *int64        `json:"platform_fee,omitempty"`
	BusinessEarnings *int64        `json:"business_earnings,omitempty"`
	DeliveryEarnings *int64        `json:"delivery_earnings,omitempty"`
	RefundAmount     *int64        `json:"refund_amount,omitempty"`
	CancelReason     *string       `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	AcceptedAt       *time.Time    `json:"accepted_at,omitempty"`
	ReadyAt          *time.Time    `json:"ready_at,omitempty"`
	AssignedAt       *time.Time    `json:"assigned_at,omitempty"`
	PickedUpAt       *time.Time    `json:"picked_up_at,omitempty"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time    `json:"refunded_at,omitempty"`
}

// IsDistributed returns true once commission has been split for the order.
func (o *Order) IsDistributed() bool {
	return o.BusinessEarnings != nil
}

// IsCaptured returns true when a card charge is held by the platform.
func (o *Order) IsCaptured() bool {
	return o.PaymentStatus == PaymentStatusCaptured
}

// HasDriver reports whether driverID is the assigned driver.
func (o *Order) HasDriver(driverID uuid.UUID) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}

// StampTransition sets the timestamp column that belongs to status.
func (o *Order) StampTransition(status OrderStatus, at time.Time) {
	t := at
	switch status {
	case OrderStatusAccepted:
		o.AcceptedAt = &t
	case OrderStatusReady:
		o.ReadyAt = &t
	case OrderStatusAssigned:
		o.AssignedAt = &t
	case OrderStatusPickedUp:
		o.PickedUpAt = &t
	case OrderStatusDelivered:
		o.DeliveredAt = &t
	case OrderStatusCancelled:
		o.CancelledAt = &t
	}
	o.UpdatedAt = t
}

// OrderEvent is one row of the append-only order status history.
type OrderEvent struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ActorRole  Role        `json:"actor_role"`
	ActorID    *uuid.UUID  `json:"actor_id,omitempty"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
