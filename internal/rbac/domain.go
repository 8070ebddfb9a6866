package rbac

import "fmt"

// Permission names declared for the finance and operations modules.
const (
	PermFinanceGLView        = "finance.gl.view"
	PermFinanceGLEdit        = "finance.gl.edit"
	PermFinanceApprove       = "finance.approve"
	PermFinancePeriodClose   = "finance.period.close"
	PermFinanceYearEndClose  = "finance.yearend.close"
	PermFinanceReconcile     = "finance.reconcile"
	PermMaterialsView        = "materials.view"
	PermMaterialsEdit        = "materials.edit"
	PermProjectsView         = "projects.view"
	PermProjectsEdit         = "projects.edit"
	PermPaymentsManage       = "payments.manage"
)

// AuthorizationError carries the denied permission and the acting user.
type AuthorizationError struct {
	Required  string
	ActorID   int64
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("rbac: user %d lacks %s for %s", e.ActorID, e.Required, e.Operation)
}
