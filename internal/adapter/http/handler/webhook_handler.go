package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"delivery-settlement/internal/adapter/http/dto"
	"delivery-settlement/internal/adapter/http/middleware"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives payment processor callbacks.
type WebhookHandler struct {
	eventSvc ports.PaymentEventService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(eventSvc ports.PaymentEventService) *WebhookHandler {
	return &WebhookHandler{eventSvc: eventSvc}
}

// Receive handles POST /api/v1/webhooks/payments. The body is either one
// event or {"events": [...]}. A batch with any failed event answers 500 so
// the processor redelivers it; applied events are deduplicated on retry.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := rawBody(c)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		response.Error(c, apperror.Validation("malformed event payload"))
		return
	}

	if _, isBatch := probe["events"]; isBatch {
		var batch dto.WebhookBatch
		if err := json.Unmarshal(body, &batch); err != nil {
			response.Error(c, apperror.Validation("malformed event batch"))
			return
		}
		results := h.eventSvc.ApplyBatch(c.Request.Context(), batch.Events)
		for _, r := range results {
			if r.Outcome == domain.EventOutcomeFailed {
				c.JSON(http.StatusInternalServerError, gin.H{"results": results})
				return
			}
		}
		response.OK(c, gin.H{"results": results})
		return
	}

	var event domain.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.Error(c, apperror.Validation("malformed event"))
		return
	}
	outcome, err := h.eventSvc.Apply(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ports.EventResult{EventID: event.ID, Outcome: outcome})
}

// rawBody prefers the bytes the signature check already read.
func rawBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(middleware.CtxRawBody); ok {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return io.ReadAll(c.Request.Body)
}
