package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"pending to accepted", OrderStatusPending, OrderStatusAccepted, true},
		{"accepted to preparing", OrderStatusAccepted, OrderStatusPreparing, true},
		{"preparing to ready", OrderStatusPreparing, OrderStatusReady, true},
		{"ready to assigned", OrderStatusReady, OrderStatusAssigned, true},
		{"assigned to picked up", OrderStatusAssigned, OrderStatusPickedUp, true},
		{"picked up to delivered", OrderStatusPickedUp, OrderStatusDelivered, true},
		{"picked up to cancelled", OrderStatusPickedUp, OrderStatusCancelled, true},
		{"pending to delivered", OrderStatusPending, OrderStatusDelivered, false},
		{"ready to picked up", OrderStatusReady, OrderStatusPickedUp, false},
		{"delivered to cancelled", OrderStatusDelivered, OrderStatusCancelled, false},
		{"cancelled to pending", OrderStatusCancelled, OrderStatusPending, false},
		{"backwards", OrderStatusAssigned, OrderStatusReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPickedUp.IsTerminal())
	for s := range AllowedTransitions {
		assert.False(t, s.IsTerminal(), "%s has outgoing edges", s)
	}
}

func TestDriver_IsAssignable(t *testing.T) {
	tests := []struct {
		name      string
		available bool
		active    bool
		blocked   bool
		want      bool
	}{
		{"ready", true, true, false, true},
		{"busy", false, true, false, false},
		{"soft hold", true, false, false, false},
		{"blocked", true, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Driver{IsAvailable: tt.available, IsActive: tt.active, IsBlocked: tt.blocked}
			assert.Equal(t, tt.want, d.IsAssignable())
		})
	}
}

func defaultPolicy() CommissionPolicy {
	return CommissionPolicy{
		BusinessRate:  decimal.RequireFromString("0.70"),
		DriverFlatFee: 2500,
	}
}

func TestComputeSplit_FlatFee(t *testing.T) {
	s := ComputeSplit(12000, defaultPolicy())
	assert.Equal(t, Split{Business: 8400, Driver: 2500, Platform: 1100}, s)
	assert.Equal(t, int64(12000), s.Total())
}

func TestComputeSplit_DriverRate(t *testing.T) {
	p := defaultPolicy()
	p.DriverRate = decimal.RequireFromString("0.15")
	s := ComputeSplit(10000, p)
	assert.Equal(t, Split{Business: 7000, Driver: 1500, Platform: 1500}, s)
}

func TestComputeSplit_ClampsDriverFee(t *testing.T) {
	s := ComputeSplit(3000, defaultPolicy())
	assert.Equal(t, int64(2100), s.Business)
	assert.Equal(t, int64(900), s.Driver)
	assert.Equal(t, int64(0), s.Platform)
}

func TestComputeSplit_Rounding(t *testing.T) {
	s := ComputeSplit(9999, defaultPolicy())
	assert.Equal(t, int64(6999), s.Business)
	assert.Equal(t, int64(9999), s.Total())
	assert.GreaterOrEqual(t, s.Platform, int64(0))
}

func TestComputeSplit_NonPositiveTotal(t *testing.T) {
	assert.Equal(t, Split{}, ComputeSplit(0, defaultPolicy()))
	assert.Equal(t, Split{}, ComputeSplit(-5, defaultPolicy()))
}

func TestCommissionPolicy_Validate(t *testing.T) {
	require.NoError(t, defaultPolicy().Validate())

	bad := defaultPolicy()
	bad.BusinessRate = decimal.RequireFromString("1.2")
	assert.Error(t, bad.Validate())

	bad = defaultPolicy()
	bad.DriverFlatFee = -1
	assert.Error(t, bad.Validate())
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 79.8, Score(1, 4.8, 30), 1e-9)
	assert.InDelta(t, 61.2, Score(3, 4.2, 5), 1e-9)
	// distance component floors at zero, experience caps at 50
	assert.InDelta(t, 0.3*100+0.2*50, Score(25, 5, 400), 1e-9)
}

func ptr[T any](v T) *T { return &v }

func TestRankCandidates_PrefersCloserHigherRated(t *testing.T) {
	// ~1 km and ~3 km north of the pickup point.
	lat, lng := 36.8000, 10.1800
	x := Driver{ID: uuid.New(), Rating: 4.8, CompletedOrders: 30, Lat: ptr(lat + 0.008993), Lng: ptr(lng)}
	y := Driver{ID: uuid.New(), Rating: 4.2, CompletedOrders: 5, Lat: ptr(lat + 0.026980), Lng: ptr(lng)}

	ranked := RankCandidates([]Driver{y, x}, lat, lng)
	require.Len(t, ranked, 2)
	assert.Equal(t, x.ID, ranked[0].DriverID)
	assert.Equal(t, y.ID, ranked[1].DriverID)
	assert.InDelta(t, 1.0, ranked[0].DistanceKm, 0.01)
	assert.InDelta(t, 79.8, ranked[0].Score, 0.1)
	assert.InDelta(t, 61.2, ranked[1].Score, 0.1)
}

func TestRankCandidates_TieBreaks(t *testing.T) {
	lat, lng := 0.0, 0.0
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	drivers := []Driver{
		{ID: b, Rating: 4, CompletedOrders: 10, Lat: ptr(0.0), Lng: ptr(0.0)},
		{ID: a, Rating: 4, CompletedOrders: 10, Lat: ptr(0.0), Lng: ptr(0.0)},
		{ID: uuid.New(), Rating: 5, CompletedOrders: 10},
	}
	ranked := RankCandidates(drivers, lat, lng)
	require.Len(t, ranked, 2, "drivers without coordinates are skipped")
	assert.Equal(t, a, ranked[0].DriverID)
	assert.Equal(t, b, ranked[1].DriverID)
}

func TestReplayBalances(t *testing.T) {
	txs := []Transaction{
		{Bucket: BucketAvailable, Amount: 8400, Status: TransactionStatusCompleted},
		{Bucket: BucketPending, Amount: 12000, Status: TransactionStatusCompleted},
		{Bucket: BucketPending, Amount: -12000, Status: TransactionStatusCompleted},
		{Bucket: BucketCashOwed, Amount: 9500, Status: TransactionStatusCompleted},
		{Bucket: BucketAvailable, Amount: 500, Status: TransactionStatusFailed},
	}
	assert.Equal(t, Balances{Available: 8400, Pending: 0, CashOwed: 9500}, ReplayBalances(txs))
}

func TestWallet_Buckets(t *testing.T) {
	w := &Wallet{}
	w.SetBucketBalance(BucketAvailable, 10)
	w.SetBucketBalance(BucketPending, 20)
	w.SetBucketBalance(BucketCashOwed, 30)
	assert.Equal(t, int64(10), w.BucketBalance(BucketAvailable))
	assert.Equal(t, int64(20), w.BucketBalance(BucketPending))
	assert.Equal(t, int64(30), w.BucketBalance(BucketCashOwed))
	assert.Equal(t, Balances{Available: 10, Pending: 20, CashOwed: 30}, w.Balances())
}

func TestPreviousWeek(t *testing.T) {
	// Wednesday 2025-03-12 -> week of Monday 2025-03-03.
	start, end := PreviousWeek(time.Date(2025, 3, 12, 15, 4, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), end)

	// Monday midnight closes the week that just ended.
	start, end = PreviousWeek(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), end)

	// Sunday still belongs to the running week.
	start, _ = PreviousWeek(time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), start)
}

func TestSettlementStatus_Guards(t *testing.T) {
	assert.True(t, SettlementStatusPending.IsOpen())
	assert.True(t, SettlementStatusSubmitted.IsOpen())
	assert.True(t, SettlementStatusOverdue.IsOpen())
	assert.False(t, SettlementStatusApproved.IsOpen())
	assert.False(t, SettlementStatusRejected.IsOpen())

	assert.True(t, SettlementStatusOverdue.CanSubmitProof())
	assert.False(t, SettlementStatusSubmitted.CanSubmitProof())

	assert.True(t, SettlementStatusOverdue.CanReview())
	assert.False(t, SettlementStatusApproved.CanReview())
	assert.False(t, SettlementStatusRejected.CanReview())
}

func TestSettlement_IsPastDeadline(t *testing.T) {
	now := time.Now()
	s := &Settlement{Status: SettlementStatusPending, Deadline: now.Add(-time.Minute)}
	assert.True(t, s.IsPastDeadline(now))

	s.Status = SettlementStatusSubmitted
	assert.False(t, s.IsPastDeadline(now))
}

func TestOrder_StampTransition(t *testing.T) {
	o := &Order{}
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	o.StampTransition(OrderStatusDelivered, at)
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, at, *o.DeliveredAt)
	assert.Equal(t, at, o.UpdatedAt)
	assert.Nil(t, o.PickedUpAt)
}

func TestActor(t *testing.T) {
	assert.True(t, Actor{Role: RoleAdmin}.IsPrivileged())
	assert.True(t, SystemActor.IsPrivileged())
	assert.False(t, Actor{Role: RoleDriver}.IsPrivileged())
	assert.Nil(t, SystemActor.IDPtr())

	id := uuid.New()
	assert.Equal(t, id, *Actor{ID: id, Role: RoleCustomer}.IDPtr())
}
