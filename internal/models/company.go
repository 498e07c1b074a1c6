package models

// Company member roles. Only admins may alter membership; any member may
// spend against the shared balance.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Company struct {
	CompanyID string `json:"company_id" db:"company_id"`
	Name      string `json:"name" db:"name"`
}

type CompanyMember struct {
	CompanyID string `json:"company_id" db:"company_id"`
	UserID    string `json:"user_id" db:"user_id"`
	Role      string `json:"role" db:"role"`
}
