package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeCommission TransactionType = "COMMISSION"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether the type is known.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePayment, TransactionTypeCommission, TransactionTypeRefund,
		TransactionTypeWithdrawal, TransactionTypeAdjustment:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an immutable ledger entry. Amount is signed: positive
// credits, negative debits the named bucket of the wallet.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	Sequence      int64             `json:"sequence"`
	WalletID      uuid.UUID         `json:"wallet_id"`
	Bucket        Bucket            `json:"bucket"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Description   string            `json:"description"`
	Status        TransactionStatus `json:"status"`
	OrderID       *uuid.UUID        `json:"order_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsCompleted returns true when the entry counts towards balances.
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// ReplayBalances folds completed entries, in the order given, into
// per-bucket totals. Callers pass entries sorted by Sequence.
func ReplayBalances(txs []Transaction) Balances {
	var b Balances
	for i := range txs {
		if !txs[i].IsCompleted() {
			continue
		}
		switch txs[i].Bucket {
		case BucketPending:
			b.Pending += txs[i].Amount
		case BucketCashOwed:
			b.CashOwed += txs[i].Amount
		default:
			b.Available += txs[i].Amount
		}
	}
	return b
}
