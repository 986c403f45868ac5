package domain

import (
	"time"

	"github.com/google/uuid"
)

// Driver is an independent courier. IsActive is the soft hold applied when a
// week closes with cash owed; IsBlocked is the hard block for overdue debt.
type Driver struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	VehicleType      string    `json:"vehicle_type"`
	Rating           float64   `json:"rating"`
	CompletedOrders  int       `json:"completed_orders"`
	Lat              *float64  `json:"lat,omitempty"`
	Lng              *float64  `json:"lng,omitempty"`
	IsAvailable      bool      `json:"is_available"`
	IsActive         bool      `json:"is_active"`
	IsBlocked        bool      `json:"is_blocked"`
	PayoutAccountEnc *string   `json:"-"` // AES-256-GCM, never exposed
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsAssignable returns true if the driver may take a new order.
func (d *Driver) IsAssignable() bool {
	return d.IsAvailable && d.IsActive && !d.IsBlocked
}

// HasLocation reports whether the driver has reported coordinates.
func (d *Driver) HasLocation() bool {
	return d.Lat != nil && d.Lng != nil
}

// HasPayoutAccount reports whether an external payout destination is linked.
func (d *Driver) HasPayoutAccount() bool {
	return d.PayoutAccountEnc != nil && *d.PayoutAccountEnc != ""
}

// Business is a merchant that prepares orders.
type Business struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	CreatedAt time.Time `json:"created_at"`
}
