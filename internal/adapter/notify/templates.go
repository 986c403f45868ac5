package notify

import (
	"fmt"

	"delivery-settlement/internal/core/domain"
)

// render turns a template key and its data into a title and body.
func render(n domain.Notification) (string, string) {
	switch n.Template {
	case domain.NotifyOrderStatusChanged:
		return "Order update", fmt.Sprintf("Your order is now %s", n.Data["status"])
	case domain.NotifyOrderAssigned:
		return "New delivery", "You have been assigned a new order"
	case domain.NotifySettlementOpened:
		return "Weekly settlement", fmt.Sprintf("Please settle %s before %s", n.Data["amount_owed"], n.Data["deadline"])
	case domain.NotifySettlementOverdue:
		return "Settlement overdue", "Your account is blocked until the settlement is approved"
	case domain.NotifySettlementApproved:
		return "Settlement approved", "You can accept orders again"
	case domain.NotifySettlementRejected:
		return "Settlement rejected", n.Data["notes"]
	}
	return "Notification", n.Template
}
