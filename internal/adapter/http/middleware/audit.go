package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful privileged writes. Routes are matched on
// their registered pattern, so ids in the path do not matter.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actorID *uuid.UUID
		if actor, ok := ActorFrom(c); ok {
			actorID = actor.IDPtr()
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch route {
	case "/api/v1/settlements/:id/approve":
		return domain.AuditActionApproveSettlement, "settlement"
	case "/api/v1/settlements/:id/reject":
		return domain.AuditActionRejectSettlement, "settlement"
	case "/api/v1/admin/settlements/close-week":
		return domain.AuditActionCloseWeek, "settlement"
	case "/api/v1/admin/settlements/block-overdue":
		return domain.AuditActionBlockOverdue, "settlement"
	case "/api/v1/admin/wallets/:id/adjustments":
		return domain.AuditActionLedgerAdjustment, "wallet"
	case "/api/v1/admin/wallets/:id/reconcile":
		return domain.AuditActionReconcileWallet, "wallet"
	case "/api/v1/orders/:id/assign", "/api/v1/orders/:id/auto-assign":
		return domain.AuditActionAssignDriver, "order"
	}
	return "", ""
}
