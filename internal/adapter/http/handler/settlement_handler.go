package handler

import (
	"context"
	"time"

	"delivery-settlement/internal/adapter/http/dto"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SettlementHandler handles the weekly cash settlement endpoints.
type SettlementHandler struct {
	settlementSvc ports.SettlementService
	now           func() time.Time
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, now: time.Now}
}

// SubmitProof handles POST /api/v1/settlements/:id/proof.
func (h *SettlementHandler) SubmitProof(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ProofRequest
	if !bindJSON(c, &req) {
		return
	}

	s, err := h.settlementSvc.SubmitProof(c.Request.Context(), actor, id, req.ProofURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// Approve handles POST /api/v1/settlements/:id/approve.
func (h *SettlementHandler) Approve(c *gin.Context) {
	h.review(c, h.settlementSvc.Approve)
}

// Reject handles POST /api/v1/settlements/:id/reject.
func (h *SettlementHandler) Reject(c *gin.Context) {
	h.review(c, h.settlementSvc.Reject)
}

type reviewFunc func(ctx context.Context, actor domain.Actor, settlementID uuid.UUID, notes string) (*domain.Settlement, error)

func (h *SettlementHandler) review(c *gin.Context, decide reviewFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	s, err := decide(c.Request.Context(), actor, id, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// Get handles GET /api/v1/settlements/:id.
func (h *SettlementHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	s, err := h.settlementSvc.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}

// List handles GET /api/v1/settlements. Drivers only see their own rows.
func (h *SettlementHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q dto.SettlementListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.SettlementListParams{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.SettlementStatus(q.Status)
		params.Status = &status
	}
	if q.DriverID != "" {
		driverID := uuid.MustParse(q.DriverID)
		params.DriverID = &driverID
	}

	items, total, err := h.settlementSvc.List(c.Request.Context(), actor, params)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, pageSize := pageOrDefault(q.Page, q.PageSize)
	response.Page(c, items, page, pageSize, total)
}

// CloseWeek handles POST /api/v1/admin/settlements/close-week.
func (h *SettlementHandler) CloseWeek(c *gin.Context) {
	result, err := h.settlementSvc.CloseWeek(c.Request.Context(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BlockOverdue handles POST /api/v1/admin/settlements/block-overdue.
func (h *SettlementHandler) BlockOverdue(c *gin.Context) {
	result, err := h.settlementSvc.BlockOverdue(c.Request.Context(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
