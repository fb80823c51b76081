package permission

import "time"

// PrincipalKind distinguishes individual users from directory groups.
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindGroup PrincipalKind = "group"
)

// Role is the coarse role carried by a grant.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Principal is an identity that may hold a Grant.
type Principal struct {
	ID   string
	Kind PrincipalKind
}

// Grant represents a row in the grants table.
type Grant struct {
	PrincipalID      string
	Kind             PrincipalKind
	Role             Role
	IsActive         bool
	Datasets         []string
	Agents           []string
	CanViewDashboard bool
	CanViewReports   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the grant is an active admin grant.
func (g *Grant) IsAdmin() bool {
	return g != nil && g.IsActive && g.Role == RoleAdmin
}
