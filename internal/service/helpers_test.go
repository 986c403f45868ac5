package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"delivery-settlement/internal/adapter/storage/memory"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// testPolicy gives the 70% business share and a flat 2500 delivery fee.
func testPolicy() domain.CommissionPolicy {
	return domain.CommissionPolicy{
		BusinessRate:  decimal.RequireFromString("0.70"),
		DriverFlatFee: 2500,
	}
}

// testEnv wires every service over one in-memory store.
type testEnv struct {
	store       *memory.Store
	wallets     *memory.WalletRepo
	entries     *memory.LedgerRepo
	orderRepo   *memory.OrderRepo
	drivers     *memory.DriverRepo
	businesses  *memory.BusinessRepo
	settleRepo  *memory.SettlementRepo
	payouts     *memory.PayoutRepo
	processed   *memory.ProcessedEventRepo
	outbox      *memory.OutboxRepo
	auditRepo   *memory.AuditRepo
	encryption  *AESEncryptionService
	ledger      *LedgerServiceImpl
	distributor *DistributionServiceImpl
	assignment  *AssignmentServiceImpl
	orders      *OrderServiceImpl
	audit       *AuditServiceImpl
	settlements *SettlementServiceImpl
	events      *PaymentEventServiceImpl
	platformID  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := newTestLogger()
	s := memory.NewStore()

	enc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	e := &testEnv{
		store:      s,
		wallets:    memory.NewWalletRepo(s),
		entries:    memory.NewLedgerRepo(s),
		orderRepo:  memory.NewOrderRepo(s),
		drivers:    memory.NewDriverRepo(s),
		businesses: memory.NewBusinessRepo(s),
		settleRepo: memory.NewSettlementRepo(s),
		payouts:    memory.NewPayoutRepo(s),
		processed:  memory.NewProcessedEventRepo(s),
		outbox:     memory.NewOutboxRepo(s),
		auditRepo:  memory.NewAuditRepo(s),
		encryption: enc,
		platformID: uuid.New(),
	}
	e.ledger = NewLedgerService(e.wallets, e.entries, s, log)
	e.distributor = NewDistributionService(e.orderRepo, e.ledger, s, testPolicy(), e.platformID, log)
	e.assignment = NewAssignmentService(e.drivers, log)
	e.orders = NewOrderService(e.orderRepo, e.drivers, e.businesses, e.outbox, e.ledger,
		e.distributor, e.assignment, s, e.platformID, 3, log)
	e.audit = NewAuditService(e.auditRepo, log)
	e.settlements = NewSettlementService(e.settleRepo, e.wallets, e.drivers, e.orderRepo, e.payouts,
		e.outbox, e.ledger, e.audit, s, 48*time.Hour, log)
	e.events = NewPaymentEventService(e.processed, nil, e.orders, e.drivers, e.payouts, e.ledger,
		enc, s, time.Hour, log)
	t.Cleanup(e.audit.Wait)
	return e
}

func (e *testEnv) addBusiness(t *testing.T, lat, lng float64) uuid.UUID {
	t.Helper()
	b := &domain.Business{ID: uuid.New(), Name: "Corner Bakery", Lat: lat, Lng: lng, CreatedAt: time.Now()}
	require.NoError(t, e.businesses.Create(context.Background(), b))
	return b.ID
}

func (e *testEnv) addDriver(t *testing.T, lat, lng, rating float64, completed int) uuid.UUID {
	t.Helper()
	d := &domain.Driver{
		ID:              uuid.New(),
		Name:            "driver",
		VehicleType:     "bike",
		Rating:          rating,
		CompletedOrders: completed,
		Lat:             &lat,
		Lng:             &lng,
		IsAvailable:     true,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, e.drivers.Create(context.Background(), d))
	return d.ID
}

func (e *testEnv) driver(t *testing.T, id uuid.UUID) *domain.Driver {
	t.Helper()
	d, err := e.drivers.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (e *testEnv) wallet(t *testing.T, ownerID uuid.UUID, ownerType domain.OwnerType) *domain.Wallet {
	t.Helper()
	w, err := e.wallets.GetByOwner(context.Background(), ownerID, ownerType)
	require.NoError(t, err)
	if w == nil {
		return &domain.Wallet{OwnerID: ownerID, OwnerType: ownerType}
	}
	return w
}

func (e *testEnv) order(t *testing.T, id uuid.UUID) *domain.Order {
	t.Helper()
	o, err := e.orderRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func customer() domain.Actor { return domain.Actor{ID: uuid.New(), Role: domain.RoleCustomer} }

func businessActor(id uuid.UUID) domain.Actor { return domain.Actor{ID: id, Role: domain.RoleBusiness} }

func driverActor(id uuid.UUID) domain.Actor { return domain.Actor{ID: id, Role: domain.RoleDriver} }

var adminActor = domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}

// placeReadyOrder creates an order and walks it to READY. Card orders are
// captured first. No drivers exist yet, so it stays unassigned.
func (e *testEnv) placeReadyOrder(t *testing.T, businessID uuid.UUID, total int64, method domain.PaymentMethod) *domain.Order {
	t.Helper()
	ctx := context.Background()

	o, err := e.orders.Create(ctx, customer(), ports.CreateOrderRequest{
		BusinessID:    businessID,
		Total:         total,
		PaymentMethod: method,
	})
	require.NoError(t, err)

	if method == domain.PaymentMethodCard {
		e.capture(t, o.ID, total)
	}

	biz := businessActor(businessID)
	_, err = e.orders.Accept(ctx, biz, o.ID)
	require.NoError(t, err)
	_, err = e.orders.StartPreparing(ctx, biz, o.ID)
	require.NoError(t, err)
	o, err = e.orders.transition(ctx, biz, o.ID, domain.OrderStatusReady, transitionOpts{authorize: isBusinessOwner})
	require.NoError(t, err)
	return o
}

// deliver assigns driverID to a READY order and completes it.
func (e *testEnv) deliver(t *testing.T, orderID, driverID uuid.UUID) *domain.Order {
	t.Helper()
	ctx := context.Background()
	_, err := e.orders.Assign(ctx, adminActor, orderID, driverID)
	require.NoError(t, err)
	_, err = e.orders.PickUp(ctx, driverActor(driverID), orderID)
	require.NoError(t, err)
	o, err := e.orders.Deliver(ctx, driverActor(driverID), orderID)
	require.NoError(t, err)
	return o
}

func (e *testEnv) capture(t *testing.T, orderID uuid.UUID, amount int64) {
	t.Helper()
	outcome, err := e.events.Apply(context.Background(), paymentEvent(t, domain.EventPaymentSucceeded, domain.PaymentIntentData{
		OrderID:  orderID,
		ChargeID: "ch_" + orderID.String()[:8],
		Amount:   amount,
	}))
	require.NoError(t, err)
	require.Equal(t, domain.EventOutcomeApplied, outcome)
}

func paymentEvent(t *testing.T, typ domain.PaymentEventType, data any) domain.PaymentEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return domain.PaymentEvent{ID: "evt_" + uuid.NewString(), Type: typ, Created: time.Now().Unix(), Data: raw}
}

func (e *testEnv) replayMatches(t *testing.T, w *domain.Wallet) {
	t.Helper()
	list, err := e.entries.ListByWallet(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, w.Balances(), domain.ReplayBalances(list))
}

func (e *testEnv) outboxKinds(kind domain.OutboxKind) []domain.OutboxMessage {
	var out []domain.OutboxMessage
	for _, m := range e.outbox.Messages() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
