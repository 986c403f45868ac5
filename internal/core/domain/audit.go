package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionApproveSettlement AuditAction = "APPROVE_SETTLEMENT"
	AuditActionRejectSettlement  AuditAction = "REJECT_SETTLEMENT"
	AuditActionCloseWeek         AuditAction = "CLOSE_WEEK"
	AuditActionBlockOverdue      AuditAction = "BLOCK_OVERDUE"
	AuditActionLedgerAdjustment  AuditAction = "LEDGER_ADJUSTMENT"
	AuditActionReconcileWallet   AuditAction = "RECONCILE_WALLET"
	AuditActionAssignDriver      AuditAction = "ASSIGN_DRIVER"
)

// AuditLog records a single privileged action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
