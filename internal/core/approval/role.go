package approval

import "strings"

// Role is an organizational role. Routing and authorization compare roles,
// never user identities.
type Role string

const (
	RoleEmployee          Role = "EMPLOYEE"
	RoleDepartmentManager Role = "DEPARTMENT_MANAGER"
	RoleFinanceManager    Role = "FINANCE_MANAGER"
	RoleTransportManager  Role = "TRANSPORT_MANAGER"
	RoleCEO               Role = "CEO"
	RoleDriver            Role = "DRIVER"
	RoleGeneralSystem     Role = "GENERAL_SYSTEM"
	RoleBudgetManager     Role = "BUDGET_MANAGER"
	RoleSystemAdmin       Role = "SYSTEM_ADMIN"
)

var allRoles = []Role{
	RoleEmployee,
	RoleDepartmentManager,
	RoleFinanceManager,
	RoleTransportManager,
	RoleCEO,
	RoleDriver,
	RoleGeneralSystem,
	RoleBudgetManager,
	RoleSystemAdmin,
}

func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Label is the human form used in notification text.
func (r Role) Label() string {
	switch r {
	case RoleDepartmentManager:
		return "Department Manager"
	case RoleFinanceManager:
		return "Finance Manager"
	case RoleTransportManager:
		return "Transport Manager"
	case RoleCEO:
		return "CEO"
	case RoleGeneralSystem:
		return "General System"
	case RoleBudgetManager:
		return "Budget Manager"
	case RoleSystemAdmin:
		return "System Admin"
	case RoleDriver:
		return "Driver"
	case RoleEmployee:
		return "Employee"
	}
	return string(r)
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}
