package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"delivery-settlement/internal/adapter/http/middleware"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/internal/core/ports/mocks"
	"delivery-settlement/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	customerActor = domain.Actor{ID: uuid.New(), Role: domain.RoleCustomer}
	driverActor   = domain.Actor{ID: uuid.New(), Role: domain.RoleDriver}
	adminActor    = domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
)

// newContext builds a gin context for calling a handler directly. A nil
// actor leaves the request unauthenticated.
func newContext(method, target string, body any, actor *domain.Actor, id string) (*gin.Context, *httptest.ResponseRecorder) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if actor != nil {
		c.Set(middleware.CtxActor, *actor)
	}
	if id != "" {
		c.Params = gin.Params{{Key: "id", Value: id}}
	}
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- Order Handler Tests ---

func TestCreateOrder_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	businessID := uuid.New()
	orderID := uuid.New()
	orderSvc.EXPECT().Create(gomock.Any(), customerActor, ports.CreateOrderRequest{
		BusinessID:    businessID,
		Total:         10000,
		PaymentMethod: domain.PaymentMethodCard,
	}).Return(&domain.Order{ID: orderID, Status: domain.OrderStatusPending, Total: 10000}, nil)

	c, w := newContext(http.MethodPost, "/api/v1/orders", map[string]any{
		"business_id":    businessID.String(),
		"total":          10000,
		"payment_method": "CARD",
	}, &customerActor, "")
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, orderID.String(), data["id"])
	assert.Equal(t, "PENDING", data["status"])
}

func TestCreateOrder_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	cases := map[string]map[string]any{
		"unknown method": {"business_id": uuid.NewString(), "total": 100, "payment_method": "BITCOIN"},
		"zero total":     {"business_id": uuid.NewString(), "total": 0, "payment_method": "CASH"},
		"bad business":   {"business_id": "nope", "total": 100, "payment_method": "CASH"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, w := newContext(http.MethodPost, "/api/v1/orders", body, &customerActor, "")
			h.Create(c)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, apperror.CodeValidation, decode(t, w)["error_code"])
		})
	}
}

func TestCreateOrder_Unauthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	c, w := newContext(http.MethodPost, "/api/v1/orders", "{}", nil, "")
	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderTransition_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	c, w := newContext(http.MethodPost, "/", nil, &customerActor, "not-a-uuid")
	h.Accept(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderTransition_InvalidTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID := uuid.New()
	orderSvc.EXPECT().PickUp(gomock.Any(), driverActor, orderID).
		Return(nil, apperror.ErrInvalidTransition("READY", "PICKED_UP"))

	c, w := newContext(http.MethodPost, "/", nil, &driverActor, orderID.String())
	h.PickUp(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeInvalidTransition, decode(t, w)["error_code"])
}

func TestCancel_BodyIsOptional(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID := uuid.New()
	orderSvc.EXPECT().Cancel(gomock.Any(), customerActor, orderID, "").
		Return(&domain.Order{ID: orderID, Status: domain.OrderStatusCancelled}, nil)

	c, w := newContext(http.MethodPost, "/", nil, &customerActor, orderID.String())
	h.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancel_CapturedChargeIsAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID := uuid.New()
	orderSvc.EXPECT().Cancel(gomock.Any(), customerActor, orderID, "").
		Return(&domain.Order{ID: orderID, Status: domain.OrderStatusCancelled, PaymentStatus: domain.PaymentStatusCaptured}, nil)

	c, w := newContext(http.MethodPost, "/", nil, &customerActor, orderID.String())
	h.Cancel(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCancel_SanitizesReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID := uuid.New()
	orderSvc.EXPECT().Cancel(gomock.Any(), customerActor, orderID, "&lt;b&gt;late&lt;/b&gt;").
		Return(&domain.Order{ID: orderID, Status: domain.OrderStatusCancelled}, nil)

	c, w := newContext(http.MethodPost, "/", map[string]string{"reason": "  <b>late</b> "}, &customerActor, orderID.String())
	h.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssign_RequiresDriver(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewOrderHandler(mocks.NewMockOrderService(ctrl))

	c, w := newContext(http.MethodPost, "/", "{}", &adminActor, uuid.NewString())
	h.Assign(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssign_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID, driverID := uuid.New(), uuid.New()
	orderSvc.EXPECT().Assign(gomock.Any(), adminActor, orderID, driverID).
		Return(&domain.Order{ID: orderID, DriverID: &driverID, Status: domain.OrderStatusAssigned}, nil)

	c, w := newContext(http.MethodPost, "/", map[string]string{"driver_id": driverID.String()}, &adminActor, orderID.String())
	h.Assign(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, driverID.String(), data["driver_id"])
}

func TestAutoAssign_NoDriver(t *testing.T) {
	ctrl := gomock.NewController(t)
	orderSvc := mocks.NewMockOrderService(ctrl)
	h := NewOrderHandler(orderSvc)

	orderID := uuid.New()
	orderSvc.EXPECT().AutoAssign(gomock.Any(), orderID).Return(nil, apperror.ErrNoDriverAvailable())

	c, w := newContext(http.MethodPost, "/", nil, &adminActor, orderID.String())
	h.AutoAssign(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeNoDriver, decode(t, w)["error_code"])
}

// --- Driver Handler Tests ---

func TestRank(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignSvc := mocks.NewMockAssignmentService(ctrl)
	h := NewDriverHandler(assignSvc, mocks.NewMockPushTokenStore(ctrl))

	driverID := uuid.New()
	assignSvc.EXPECT().Rank(gomock.Any(), 10.5, 106.7).
		Return([]domain.DriverCandidate{{DriverID: driverID, Score: 71}}, nil)

	c, w := newContext(http.MethodGet, "/api/v1/drivers/rank?lat=10.5&lng=106.7", nil, &adminActor, "")
	h.Rank(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, driverID.String(), data[0].(map[string]interface{})["driver_id"])
}

func TestRank_MissingCoordinates(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewDriverHandler(mocks.NewMockAssignmentService(ctrl), mocks.NewMockPushTokenStore(ctrl))

	for _, target := range []string{"/rank?lng=1", "/rank?lat=95&lng=1", "/rank?lat=1&lng=abc"} {
		c, w := newContext(http.MethodGet, target, nil, &adminActor, "")
		h.Rank(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestUpdateLocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignSvc := mocks.NewMockAssignmentService(ctrl)
	h := NewDriverHandler(assignSvc, mocks.NewMockPushTokenStore(ctrl))

	assignSvc.EXPECT().UpdateLocation(gomock.Any(), driverActor, 0.0, 0.0).Return(nil)

	// Zero is a valid coordinate and must not trip "required".
	c, w := newContext(http.MethodPut, "/", map[string]float64{"lat": 0, "lng": 0}, &driverActor, "")
	h.UpdateLocation(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterPushToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockPushTokenStore(ctrl)
	h := NewDriverHandler(mocks.NewMockAssignmentService(ctrl), tokens)

	tokens.EXPECT().Register(gomock.Any(), driverActor.ID, "fcm:abc-123").Return(nil)

	c, w := newContext(http.MethodPut, "/", map[string]string{"token": "fcm:abc-123"}, &driverActor, "")
	h.RegisterPushToken(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodPut, "/", map[string]string{"token": "<script>"}, &driverActor, "")
	h.RegisterPushToken(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemovePushToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockPushTokenStore(ctrl)
	h := NewDriverHandler(mocks.NewMockAssignmentService(ctrl), tokens)

	tokens.EXPECT().Remove(gomock.Any(), driverActor.ID).Return(nil)

	c, w := newContext(http.MethodDelete, "/", nil, &driverActor, "")
	h.RemovePushToken(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterPushToken_StoreDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockPushTokenStore(ctrl)
	h := NewDriverHandler(mocks.NewMockAssignmentService(ctrl), tokens)

	tokens.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	c, w := newContext(http.MethodPut, "/", map[string]string{"token": "abc"}, &driverActor, "")
	h.RegisterPushToken(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// --- Settlement Handler Tests ---

func TestSubmitProof(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(settlementSvc)

	id := uuid.New()
	url := "https://files.example.com/receipts/1.jpg"
	settlementSvc.EXPECT().SubmitProof(gomock.Any(), driverActor, id, url).
		Return(&domain.Settlement{ID: id, Status: domain.SettlementStatusSubmitted}, nil)

	c, w := newContext(http.MethodPost, "/", map[string]string{"proof_url": url}, &driverActor, id.String())
	h.SubmitProof(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "SUBMITTED", data["status"])
}

func TestSubmitProof_RejectsNonHTTPURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewSettlementHandler(mocks.NewMockSettlementService(ctrl))

	c, w := newContext(http.MethodPost, "/", map[string]string{"proof_url": "javascript:alert(1)"}, &driverActor, uuid.NewString())
	h.SubmitProof(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveAndReject(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(settlementSvc)

	id := uuid.New()
	settlementSvc.EXPECT().Approve(gomock.Any(), adminActor, id, "").
		Return(&domain.Settlement{ID: id, Status: domain.SettlementStatusApproved}, nil)
	settlementSvc.EXPECT().Reject(gomock.Any(), adminActor, id, "blurry photo").
		Return(nil, apperror.ErrInvalidState("settlement is already APPROVED"))

	c, w := newContext(http.MethodPost, "/", nil, &adminActor, id.String())
	h.Approve(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodPost, "/", map[string]string{"notes": "blurry photo"}, &adminActor, id.String())
	h.Reject(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListSettlements(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(settlementSvc)

	status := domain.SettlementStatusOverdue
	settlementSvc.EXPECT().List(gomock.Any(), adminActor, ports.SettlementListParams{Status: &status, Page: 2, PageSize: 5}).
		Return([]domain.Settlement{{ID: uuid.New(), Status: status}}, int64(6), nil)

	c, w := newContext(http.MethodGet, "/api/v1/settlements?status=OVERDUE&page=2&page_size=5", nil, &adminActor, "")
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	meta := decode(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(5), meta["page_size"])
	assert.Equal(t, float64(6), meta["total"])
}

func TestListSettlements_BadStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewSettlementHandler(mocks.NewMockSettlementService(ctrl))

	c, w := newContext(http.MethodGet, "/api/v1/settlements?status=PAID", nil, &adminActor, "")
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseWeek(t *testing.T) {
	ctrl := gomock.NewController(t)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	h := NewSettlementHandler(settlementSvc)

	settlementSvc.EXPECT().CloseWeek(gomock.Any(), gomock.Any()).
		Return(&ports.CycleResult{Processed: 3, Skipped: 1}, nil)

	c, w := newContext(http.MethodPost, "/", nil, &adminActor, "")
	h.CloseWeek(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["processed"])
}

// --- Wallet Handler Tests ---

func TestGetOwnWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	reportingSvc := mocks.NewMockReportingService(ctrl)
	h := NewWalletHandler(reportingSvc, mocks.NewMockLedgerService(ctrl))

	reportingSvc.EXPECT().GetOwnWallet(gomock.Any(), driverActor).
		Return(&domain.Wallet{ID: uuid.New(), Balance: 2500, CashOwed: 9500}, nil)

	c, w := newContext(http.MethodGet, "/", nil, &driverActor, "")
	h.GetOwn(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(9500), data["cash_owed"])
}

func TestListTransactions(t *testing.T) {
	ctrl := gomock.NewController(t)
	reportingSvc := mocks.NewMockReportingService(ctrl)
	h := NewWalletHandler(reportingSvc, mocks.NewMockLedgerService(ctrl))

	walletID := uuid.New()
	reportingSvc.EXPECT().ListTransactions(gomock.Any(), adminActor, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Actor, p ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			assert.Equal(t, walletID, p.WalletID)
			require.NotNil(t, p.Bucket)
			assert.Equal(t, domain.Bucket("CASH_OWED"), *p.Bucket)
			require.NotNil(t, p.From)
			assert.Equal(t, 2026, p.From.Year())
			assert.Nil(t, p.To)
			return []domain.Transaction{}, 0, nil
		})

	c, w := newContext(http.MethodGet, "/x?bucket=CASH_OWED&from=2026-01-05T00:00:00Z", nil, &adminActor, walletID.String())
	h.ListTransactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTransactions_BadDate(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockReportingService(ctrl), mocks.NewMockLedgerService(ctrl))

	c, w := newContext(http.MethodGet, "/x?from=yesterday", nil, &adminActor, uuid.NewString())
	h.ListTransactions(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjust(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mocks.NewMockReportingService(ctrl), ledgerSvc)

	walletID := uuid.New()
	ledgerSvc.EXPECT().PostTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.PostRequest) (*domain.Transaction, error) {
			assert.Equal(t, walletID, req.WalletID)
			assert.Equal(t, domain.TransactionTypeAdjustment, req.Type)
			assert.Equal(t, domain.Bucket("AVAILABLE"), req.Bucket)
			assert.Equal(t, int64(-300), req.Amount)
			assert.Contains(t, req.Description, "duplicate tip")
			assert.Contains(t, req.Description, adminActor.ID.String())
			return &domain.Transaction{ID: uuid.New(), WalletID: walletID, Amount: req.Amount}, nil
		})

	c, w := newContext(http.MethodPost, "/", map[string]any{
		"bucket":      "AVAILABLE",
		"amount":      -300,
		"description": "duplicate tip",
	}, &adminActor, walletID.String())
	h.Adjust(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAdjust_ZeroAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWalletHandler(mocks.NewMockReportingService(ctrl), mocks.NewMockLedgerService(ctrl))

	c, w := newContext(http.MethodPost, "/", map[string]any{
		"bucket":      "AVAILABLE",
		"amount":      0,
		"description": "noop",
	}, &adminActor, uuid.NewString())
	h.Adjust(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcile(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerSvc := mocks.NewMockLedgerService(ctrl)
	h := NewWalletHandler(mocks.NewMockReportingService(ctrl), ledgerSvc)

	walletID := uuid.New()
	ledgerSvc.EXPECT().Reconcile(gomock.Any(), walletID).
		Return(&ports.ReconcileReport{WalletID: walletID, Drift: true, Corrected: true}, nil)

	c, w := newContext(http.MethodPost, "/", nil, &adminActor, walletID.String())
	h.Reconcile(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["corrected"])
}

// --- Webhook Handler Tests ---

func TestWebhook_SingleEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	eventSvc := mocks.NewMockPaymentEventService(ctrl)
	h := NewWebhookHandler(eventSvc)

	eventSvc.EXPECT().Apply(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e domain.PaymentEvent) (domain.EventOutcome, error) {
			assert.Equal(t, "evt_1", e.ID)
			assert.Equal(t, domain.EventPaymentSucceeded, e.Type)
			return domain.EventOutcomeDuplicate, nil
		})

	c, w := newContext(http.MethodPost, "/", `{"id":"evt_1","type":"payment_intent.succeeded","data":{}}`, nil, "")
	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "duplicate", data["outcome"])
}

func TestWebhook_BatchWithFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	eventSvc := mocks.NewMockPaymentEventService(ctrl)
	h := NewWebhookHandler(eventSvc)

	eventSvc.EXPECT().ApplyBatch(gomock.Any(), gomock.Len(2)).Return([]ports.EventResult{
		{EventID: "evt_1", Outcome: domain.EventOutcomeApplied},
		{EventID: "evt_2", Outcome: domain.EventOutcomeFailed, Error: "boom"},
	})

	body := `{"events":[{"id":"evt_1","type":"payout.paid"},{"id":"evt_2","type":"payout.failed"}]}`
	c, w := newContext(http.MethodPost, "/", body, nil, "")
	h.Receive(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	results := decode(t, w)["results"].([]interface{})
	assert.Len(t, results, 2)
}

func TestWebhook_BatchAllApplied(t *testing.T) {
	ctrl := gomock.NewController(t)
	eventSvc := mocks.NewMockPaymentEventService(ctrl)
	h := NewWebhookHandler(eventSvc)

	eventSvc.EXPECT().ApplyBatch(gomock.Any(), gomock.Len(1)).Return([]ports.EventResult{
		{EventID: "evt_1", Outcome: domain.EventOutcomeApplied},
	})

	c, w := newContext(http.MethodPost, "/", `{"events":[{"id":"evt_1","type":"payout.paid"}]}`, nil, "")
	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_Malformed(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewWebhookHandler(mocks.NewMockPaymentEventService(ctrl))

	c, w := newContext(http.MethodPost, "/", `not json`, nil, "")
	h.Receive(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_ValidationFromService(t *testing.T) {
	ctrl := gomock.NewController(t)
	eventSvc := mocks.NewMockPaymentEventService(ctrl)
	h := NewWebhookHandler(eventSvc)

	eventSvc.EXPECT().Apply(gomock.Any(), gomock.Any()).
		Return(domain.EventOutcomeFailed, apperror.Validation("event id and type are required"))

	c, w := newContext(http.MethodPost, "/", `{"type":"payout.paid"}`, nil, "")
	h.Receive(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Health & Router Tests ---

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Ping(context.Context) error { return f.err }
func (f fakeChecker) Name() string               { return f.name }

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck(fakeChecker{name: "postgresql"}, fakeChecker{name: "redis", err: errors.New("down")}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "healthy", deps["postgresql"].(map[string]interface{})["status"])
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
}

func newTestRouter(ctrl *gomock.Controller) (*gin.Engine, *mocks.MockTokenService, *mocks.MockSettlementService) {
	tokenSvc := mocks.NewMockTokenService(ctrl)
	settlementSvc := mocks.NewMockSettlementService(ctrl)
	r := SetupRouter(RouterDeps{
		OrderSvc:       mocks.NewMockOrderService(ctrl),
		AssignSvc:      mocks.NewMockAssignmentService(ctrl),
		SettlementSvc:  settlementSvc,
		ReportingSvc:   mocks.NewMockReportingService(ctrl),
		LedgerSvc:      mocks.NewMockLedgerService(ctrl),
		EventSvc:       mocks.NewMockPaymentEventService(ctrl),
		PushTokens:     mocks.NewMockPushTokenStore(ctrl),
		TokenSvc:       tokenSvc,
		SigSvc:         mocks.NewMockSignatureService(ctrl),
		WebhookSecret:  "whsec",
		HealthCheckers: []ports.HealthChecker{fakeChecker{name: "memory"}},
		Mode:           gin.TestMode,
	})
	return r, tokenSvc, settlementSvc
}

func TestRouter_Health(t *testing.T) {
	r, _, _ := newTestRouter(gomock.NewController(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestRouter_RequiresBearer(t *testing.T) {
	r, _, _ := newTestRouter(gomock.NewController(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallets/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_UnsignedWebhook(t *testing.T) {
	r, _, _ := newTestRouter(gomock.NewController(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader([]byte(`{}`))))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeInvalidSignature, decode(t, w)["error_code"])
}

func TestRouter_AdminRoutesNeedAdmin(t *testing.T) {
	r, tokenSvc, settlementSvc := newTestRouter(gomock.NewController(t))

	tokenSvc.EXPECT().Validate("driver-token").
		Return(&ports.TokenClaims{ActorID: driverActor.ID, Role: domain.RoleDriver}, nil)
	tokenSvc.EXPECT().Validate("admin-token").
		Return(&ports.TokenClaims{ActorID: adminActor.ID, Role: domain.RoleAdmin}, nil)
	settlementSvc.EXPECT().BlockOverdue(gomock.Any(), gomock.Any()).Return(&ports.CycleResult{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/settlements/block-overdue", nil)
	req.Header.Set("Authorization", "Bearer driver-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/settlements/block-overdue", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
