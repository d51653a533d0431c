package domain

import "fmt"

// Role 调用方角色（closed set，由调用方身份决定）
// Assigned by the caller's identity; never inferred from query text.
type Role string

const (
	RoleClinician  Role = "clinician"
	RoleResearcher Role = "researcher"
	RoleAnalyst    Role = "analyst"
	RoleTrainee    Role = "trainee"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleClinician, RoleResearcher, RoleAnalyst, RoleTrainee}

// ParseRole validates an inbound role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClinician, RoleResearcher, RoleAnalyst, RoleTrainee:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// User 发起查询的调用方身份
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
