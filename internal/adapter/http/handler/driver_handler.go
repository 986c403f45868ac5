package handler

import (
	"delivery-settlement/internal/adapter/http/dto"
	"delivery-settlement/internal/core/ports"
	"delivery-settlement/pkg/apperror"
	"delivery-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// DriverHandler handles driver ranking, positions and device registration.
type DriverHandler struct {
	assignSvc  ports.AssignmentService
	pushTokens ports.PushTokenStore
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(assignSvc ports.AssignmentService, pushTokens ports.PushTokenStore) *DriverHandler {
	return &DriverHandler{assignSvc: assignSvc, pushTokens: pushTokens}
}

// Rank handles GET /api/v1/drivers/rank?lat=&lng=.
func (h *DriverHandler) Rank(c *gin.Context) {
	var q dto.RankQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	candidates, err := h.assignSvc.Rank(c.Request.Context(), *q.Lat, *q.Lng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, candidates)
}

// UpdateLocation handles PUT /api/v1/drivers/me/location.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.LocationRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.assignSvc.UpdateLocation(c.Request.Context(), actor, *req.Lat, *req.Lng); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"lat": *req.Lat, "lng": *req.Lng})
}

// RegisterPushToken handles PUT /api/v1/push-tokens.
func (h *DriverHandler) RegisterPushToken(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.PushTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.pushTokens.Register(c.Request.Context(), actor.ID, req.Token); err != nil {
		response.Error(c, apperror.ErrServiceUnavailable(err))
		return
	}
	response.OK(c, gin.H{"registered": true})
}

// RemovePushToken handles DELETE /api/v1/push-tokens.
func (h *DriverHandler) RemovePushToken(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.pushTokens.Remove(c.Request.Context(), actor.ID); err != nil {
		response.Error(c, apperror.ErrServiceUnavailable(err))
		return
	}
	response.OK(c, gin.H{"registered": false})
}
