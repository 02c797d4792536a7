package rbac

import "github.com/farmlink/farmlink/internal/shared"

// Role represents a high-level permission grouping.
type Role string

const (
	RoleWarehouseOperator Role = "warehouse_operator"
	RoleFinance           Role = "finance"
	RoleCashier           Role = "cashier"
	RoleAdmin             Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleWarehouseOperator, RoleFinance, RoleCashier, RoleAdmin:
		return true
	}
	return false
}

// Actor describes the user performing an operation.
type Actor struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	WarehouseID int64  `json:"warehouseId,omitempty"`
}

func (a Actor) is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// CanCreateAcquisition allows operators bound to the warehouse, and admins.
func (a Actor) CanCreateAcquisition(warehouseID int64) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.Role == RoleWarehouseOperator && a.WarehouseID != 0 && a.WarehouseID == warehouseID
}

// CanAudit allows approving and rejecting settlements.
func (a Actor) CanAudit() bool { return a.is(RoleFinance, RoleAdmin) }

// CanMarkPaying allows starting a payout.
func (a Actor) CanMarkPaying() bool { return a.is(RoleCashier, RoleFinance, RoleAdmin) }

// CanCompletePayment allows confirming a payout.
func (a Actor) CanCompletePayment() bool { return a.is(RoleCashier, RoleAdmin) }

// CanCorrect allows the original creator, or an admin, to amend an acquisition.
func (a Actor) CanCorrect(createdBy int64) bool {
	return a.Role == RoleAdmin || (a.ID != 0 && a.ID == createdBy)
}

// CanDelete allows soft-deleting acquisitions.
func (a Actor) CanDelete() bool { return a.is(RoleFinance, RoleAdmin) }

// CanIssueDebt allows recording seed, input and cash advance distributions.
func (a Actor) CanIssueDebt() bool { return a.is(RoleFinance, RoleAdmin) }

// CanViewLedger allows reading farmer balances.
func (a Actor) CanViewLedger() bool { return a.Role.Valid() }

// Require converts a permission check into the domain error.
func Require(allowed bool) error {
	if !allowed {
		return shared.ErrPermissionDenied
	}
	return nil
}
