package auth

// Staff roles carried in admin tokens. A cashier works the payment-request
// queue; bonus grants need admin.
const (
	RoleViewer     = "viewer"
	RoleCashier    = "cashier"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// StaffRoles returns every role that may read the review queue and audits.
func StaffRoles() []string {
	return []string{RoleViewer, RoleCashier, RoleAdmin, RoleSuperAdmin}
}

// ReviewRoles returns roles that can approve, reject, cancel, settle and fail
// payment requests.
func ReviewRoles() []string {
	return []string{RoleCashier, RoleAdmin, RoleSuperAdmin}
}

// GrantRoles returns roles that can credit bonuses by hand.
func GrantRoles() []string {
	return []string{RoleAdmin, RoleSuperAdmin}
}

