package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/internal/core/ports/mocks"
	"delivery-settlement/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLedgerService_CreateWallet_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	w1, err := env.ledger.CreateWallet(ctx, owner, domain.OwnerTypeDriver)
	require.NoError(t, err)
	w2, err := env.ledger.CreateWallet(ctx, owner, domain.OwnerTypeDriver)
	require.NoError(t, err)

	assert.Equal(t, w1.ID, w2.ID)
	assert.Zero(t, w1.Balance)
	assert.Zero(t, w1.PendingBalance)
	assert.Zero(t, w1.CashOwed)
}

func TestLedgerService_CreateWallet_Invalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.CreateWallet(context.Background(), uuid.Nil, domain.OwnerTypeDriver)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = env.ledger.CreateWallet(context.Background(), uuid.New(), domain.OwnerType("BANK"))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestLedgerService_PostTransaction_RecordsBeforeAndAfter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeBusiness)
	require.NoError(t, err)

	first, err := env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeCommission, Amount: 8400,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.BalanceBefore)
	assert.Equal(t, int64(8400), first.BalanceAfter)
	assert.Equal(t, domain.TransactionStatusCompleted, first.Status)

	second, err := env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeWithdrawal, Amount: -400,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8400), second.BalanceBefore)
	assert.Equal(t, int64(8000), second.BalanceAfter)
	assert.Greater(t, second.Sequence, first.Sequence)

	stored := env.wallet(t, w.OwnerID, domain.OwnerTypeBusiness)
	assert.Equal(t, int64(8000), stored.Balance)
	env.replayMatches(t, stored)
}

func TestLedgerService_PostTransaction_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeDriver)
	require.NoError(t, err)

	_, err = env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeWithdrawal, Amount: -1,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds))

	list, err := env.entries.ListByWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLedgerService_PostTransaction_Validation(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.ledger.CreateWallet(context.Background(), uuid.New(), domain.OwnerTypeDriver)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  ports.PostRequest
	}{
		{"missing wallet", ports.PostRequest{Bucket: domain.BucketAvailable, Type: domain.TransactionTypeAdjustment, Amount: 1}},
		{"zero amount", ports.PostRequest{WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeAdjustment}},
		{"unknown bucket", ports.PostRequest{WalletID: w.ID, Bucket: "SAVINGS", Type: domain.TransactionTypeAdjustment, Amount: 1}},
		{"unknown type", ports.PostRequest{WalletID: w.ID, Bucket: domain.BucketAvailable, Type: "GIFT", Amount: 1}},
		{"withdrawal from cash owed", ports.PostRequest{WalletID: w.ID, Bucket: domain.BucketCashOwed, Type: domain.TransactionTypeWithdrawal, Amount: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.PostTransaction(context.Background(), tt.req)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestLedgerService_PostTransaction_UnknownWallet(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ledger.PostTransaction(context.Background(), ports.PostRequest{
		WalletID: uuid.New(), Bucket: domain.BucketAvailable, Type: domain.TransactionTypeAdjustment, Amount: 10,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestLedgerService_ConcurrentWithdrawals_NeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeDriver)
	require.NoError(t, err)
	_, err = env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeCommission, Amount: 1000,
	})
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.PostTransaction(ctx, ports.PostRequest{
				WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeWithdrawal, Amount: -100,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperror.HasCode(err, apperror.CodeInsufficientFunds) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, rejected)

	stored := env.wallet(t, w.OwnerID, domain.OwnerTypeDriver)
	assert.Equal(t, int64(0), stored.Balance)
	env.replayMatches(t, stored)
}

func TestLedgerService_Reconcile_NoDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeDriver)
	require.NoError(t, err)
	_, err = env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketCashOwed, Type: domain.TransactionTypeCommission, Amount: 9500,
	})
	require.NoError(t, err)

	report, err := env.ledger.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, report.Drift)
	assert.False(t, report.Corrected)
	assert.Equal(t, int64(9500), report.Replayed.CashOwed)
}

func TestLedgerService_Reconcile_CorrectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeBusiness)
	require.NoError(t, err)
	_, err = env.ledger.PostTransaction(ctx, ports.PostRequest{
		WalletID: w.ID, Bucket: domain.BucketAvailable, Type: domain.TransactionTypeCommission, Amount: 8400,
	})
	require.NoError(t, err)

	// Simulate a write that bypassed the ledger.
	tampered := env.wallet(t, w.OwnerID, domain.OwnerTypeBusiness)
	tampered.Balance = 99999
	require.NoError(t, env.wallets.UpdateBalances(ctx, nil, tampered))

	report, err := env.ledger.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, report.Drift)
	assert.True(t, report.Corrected)
	assert.Equal(t, int64(99999), report.Stored.Available)
	assert.Equal(t, int64(8400), report.Replayed.Available)

	assert.Equal(t, int64(8400), env.wallet(t, w.OwnerID, domain.OwnerTypeBusiness).Balance)
}

func TestLedgerService_ReconcileAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeDriver)
		require.NoError(t, err)
	}
	drifted, err := env.ledger.CreateWallet(ctx, uuid.New(), domain.OwnerTypeDriver)
	require.NoError(t, err)
	drifted.CashOwed = 700
	require.NoError(t, env.wallets.UpdateBalances(ctx, nil, drifted))

	summary, err := env.ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Checked)
	assert.Equal(t, 1, summary.Drifted)
	assert.Equal(t, 0, summary.Failed)
}

func TestLedgerService_PostTransaction_BeginFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWalletRepo := mocks.NewMockWalletRepository(ctrl)
	mockTxRepo := mocks.NewMockTransactionRepository(ctrl)
	mockTransactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewLedgerService(mockWalletRepo, mockTxRepo, mockTransactor, newTestLogger())

	mockTransactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := svc.PostTransaction(context.Background(), ports.PostRequest{
		WalletID: uuid.New(), Bucket: domain.BucketAvailable, Type: domain.TransactionTypeAdjustment, Amount: 5,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
	assert.ErrorContains(t, err, "connection refused")
}

func TestLedgerService_CreateWallet_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockWalletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewLedgerService(mockWalletRepo, mocks.NewMockTransactionRepository(ctrl), mocks.NewMockDBTransactor(ctrl), newTestLogger())

	owner := uuid.New()
	mockWalletRepo.EXPECT().GetByOwner(gomock.Any(), owner, domain.OwnerTypeBusiness).Return(nil, nil)
	mockWalletRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	mockWalletRepo.EXPECT().GetByOwner(gomock.Any(), owner, domain.OwnerTypeBusiness).Return(nil, nil)

	_, err := svc.CreateWallet(context.Background(), owner, domain.OwnerTypeBusiness)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}
