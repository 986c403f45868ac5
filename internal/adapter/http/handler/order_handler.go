package handler

import (
	"context"

	"delivery-settlement/internal/adapter/http/dto"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles the order lifecycle endpoints.
type OrderHandler struct {
	orderSvc ports.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderSvc.Create(c.Request.Context(), actor, ports.CreateOrderRequest{
		BusinessID:    uuid.MustParse(req.BusinessID),
		Total:         req.Total,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	h.run(c, h.orderSvc.Get)
}

// Events handles GET /api/v1/orders/:id/events.
func (h *OrderHandler) Events(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.orderSvc.Events(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}

// Accept handles POST /api/v1/orders/:id/accept.
func (h *OrderHandler) Accept(c *gin.Context) { h.run(c, h.orderSvc.Accept) }

// Prepare handles POST /api/v1/orders/:id/prepare.
func (h *OrderHandler) Prepare(c *gin.Context) { h.run(c, h.orderSvc.StartPreparing) }

// Ready handles POST /api/v1/orders/:id/ready.
func (h *OrderHandler) Ready(c *gin.Context) { h.run(c, h.orderSvc.MarkReady) }

// PickUp handles POST /api/v1/orders/:id/pickup.
func (h *OrderHandler) PickUp(c *gin.Context) { h.run(c, h.orderSvc.PickUp) }

// Deliver handles POST /api/v1/orders/:id/deliver.
func (h *OrderHandler) Deliver(c *gin.Context) { h.run(c, h.orderSvc.Deliver) }

// RegretCancel handles POST /api/v1/orders/:id/regret-cancel.
func (h *OrderHandler) RegretCancel(c *gin.Context) { h.run(c, h.orderSvc.RegretCancel) }

// Assign handles POST /api/v1/orders/:id/assign.
func (h *OrderHandler) Assign(c *gin.Context) {
	var req dto.AssignDriverRequest
	if !bindJSON(c, &req) {
		return
	}
	h.run(c, func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Order, error) {
		return h.orderSvc.Assign(ctx, actor, id, uuid.MustParse(req.DriverID))
	})
}

// AutoAssign handles POST /api/v1/orders/:id/auto-assign (admin).
func (h *OrderHandler) AutoAssign(c *gin.Context) {
	h.run(c, func(ctx context.Context, _ domain.Actor, id uuid.UUID) (*domain.Order, error) {
		return h.orderSvc.AutoAssign(ctx, id)
	})
}

// Cancel handles POST /api/v1/orders/:id/cancel. The body is optional.
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orderSvc.Cancel(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	// A captured charge is refunded asynchronously.
	if order.PaymentStatus == domain.PaymentStatusCaptured {
		response.Accepted(c, order)
		return
	}
	response.OK(c, order)
}

type orderAction func(ctx context.Context, actor domain.Actor, orderID uuid.UUID) (*domain.Order, error)

func (h *OrderHandler) run(c *gin.Context, action orderAction) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := action(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}
