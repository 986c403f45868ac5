package domain

import (
	"time"

	"github.com/google/uuid"
)

// OwnerType identifies which marketplace party holds a wallet.
type OwnerType string

const (
	OwnerTypeBusiness OwnerType = "BUSINESS"
	OwnerTypeDriver   OwnerType = "DRIVER"
	OwnerTypePlatform OwnerType = "PLATFORM"
)

// Valid reports whether the owner type is known.
func (o OwnerType) Valid() bool {
	switch o {
	case OwnerTypeBusiness, OwnerTypeDriver, OwnerTypePlatform:
		return true
	}
	return false
}

// Bucket names one of the three figures a wallet tracks.
type Bucket string

const (
	BucketAvailable Bucket = "AVAILABLE"
	BucketPending   Bucket = "PENDING"
	BucketCashOwed  Bucket = "CASH_OWED"
)

// Valid reports whether the bucket is known.
func (b Bucket) Valid() bool {
	switch b {
	case BucketAvailable, BucketPending, BucketCashOwed:
		return true
	}
	return false
}

// Wallet holds the balances of one business, driver or the platform.
// Figures are only ever changed through ledger transactions.
type Wallet struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	OwnerType      OwnerType `json:"owner_type"`
	Balance        int64     `json:"balance"`
	PendingBalance int64     `json:"pending_balance"`
	CashOwed       int64     `json:"cash_owed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BucketBalance returns the stored figure for a bucket.
func (w *Wallet) BucketBalance(b Bucket) int64 {
	switch b {
	case BucketPending:
		return w.PendingBalance
	case BucketCashOwed:
		return w.CashOwed
	default:
		return w.Balance
	}
}

// SetBucketBalance overwrites the stored figure for a bucket.
func (w *Wallet) SetBucketBalance(b Bucket, v int64) {
	switch b {
	case BucketPending:
		w.PendingBalance = v
	case BucketCashOwed:
		w.CashOwed = v
	default:
		w.Balance = v
	}
}

// Balances is a snapshot of the three bucket figures.
type Balances struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
	CashOwed  int64 `json:"cash_owed"`
}

// Balances returns the stored figures as a snapshot.
func (w *Wallet) Balances() Balances {
	return Balances{Available: w.Balance, Pending: w.PendingBalance, CashOwed: w.CashOwed}
}
