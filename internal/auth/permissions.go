package auth

import (
	"fms/internal/apperr"
	"fms/internal/models"
)

// Actions that need the approval permission.
const (
	ActionApproveRequisition = "approve requisition"
	ActionApprovePO          = "approve purchase order"
	ActionSeedCatalog        = "seed cabinet catalog"
	ActionManageUsers        = "manage users"
	ActionViewAudit          = "view audit log"
)

// RequireApproval returns a PermissionError unless the actor may approve.
func RequireApproval(actor models.Actor, action string) error {
	if !actor.CanApprove {
		return apperr.Forbidden(action)
	}
	return nil
}
