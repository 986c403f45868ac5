package handler

import (
	"fmt"
	"time"

	"delivery-settlement/internal/adapter/http/dto"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet reads and admin ledger operations.
type WalletHandler struct {
	reportingSvc ports.ReportingService
	ledgerSvc    ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reportingSvc ports.ReportingService, ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{reportingSvc: reportingSvc, ledgerSvc: ledgerSvc}
}

// GetOwn handles GET /api/v1/wallets/me.
func (h *WalletHandler) GetOwn(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	wallet, err := h.reportingSvc.GetOwnWallet(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	wallet, err := h.reportingSvc.GetWallet(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// ListTransactions handles GET /api/v1/wallets/:id/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var q dto.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params, err := transactionParams(id, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), actor, params)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, pageSize := pageOrDefault(q.Page, q.PageSize)
	response.Page(c, txns, page, pageSize, total)
}

// Adjust handles POST /api/v1/admin/wallets/:id/adjustments.
func (h *WalletHandler) Adjust(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.AdjustmentRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	entry, err := h.ledgerSvc.PostTransaction(c.Request.Context(), ports.PostRequest{
		WalletID:    id,
		Bucket:      domain.Bucket(req.Bucket),
		Type:        domain.TransactionTypeAdjustment,
		Amount:      req.Amount,
		Description: fmt.Sprintf("%s (by %s)", req.Description, actor.ID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Reconcile handles POST /api/v1/admin/wallets/:id/reconcile.
func (h *WalletHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	report, err := h.ledgerSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

func transactionParams(walletID uuid.UUID, q dto.TransactionListQuery) (ports.TransactionListParams, error) {
	params := ports.TransactionListParams{
		WalletID: walletID,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Type != "" {
		t := domain.TransactionType(q.Type)
		params.Type = &t
	}
	if q.Bucket != "" {
		b := domain.Bucket(q.Bucket)
		params.Bucket = &b
	}
	if q.OrderID != "" {
		orderID := uuid.MustParse(q.OrderID)
		params.OrderID = &orderID
	}
	if q.From != "" {
		from, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			return params, apperror.Validation("invalid from")
		}
		params.From = &from
	}
	if q.To != "" {
		to, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			return params, apperror.Validation("invalid to")
		}
		params.To = &to
	}
	return params, nil
}
