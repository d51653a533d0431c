package access

import (
	"medquery/internal/domain"
)

// PermissionProfile 单个角色的能力开关与脱敏字段集合
type PermissionProfile struct {
	CanViewIdentifyingInfo bool
	CanViewMedicalDetails  bool
	CanViewAggregates      bool

	// RedactedFields JSON field names that must never reach this role.
	// Must stay consistent with the three flags above.
	RedactedFields []string
}

// Policy 角色 -> 权限配置的只读映射
// Constructed once at startup and passed explicitly into every component
// that needs it; safe for unsynchronized concurrent reads.
type Policy struct {
	profiles map[domain.Role]PermissionProfile
}

// NewPolicy builds the static role table.
func NewPolicy() *Policy {
	return &Policy{profiles: map[domain.Role]PermissionProfile{
		domain.RoleClinician: {
			CanViewIdentifyingInfo: true,
			CanViewMedicalDetails:  true,
			CanViewAggregates:      true,
			RedactedFields:         []string{},
		},
		domain.RoleResearcher: {
			CanViewIdentifyingInfo: false,
			CanViewMedicalDetails:  true,
			CanViewAggregates:      true,
			RedactedFields:         []string{"name", "address"},
		},
		domain.RoleAnalyst: {
			CanViewIdentifyingInfo: false,
			CanViewMedicalDetails:  false,
			CanViewAggregates:      true,
			RedactedFields:         []string{"name", "address", "notes", "visit_dates"},
		},
		domain.RoleTrainee: {
			CanViewIdentifyingInfo: false,
			CanViewMedicalDetails:  false,
			CanViewAggregates:      false,
			RedactedFields:         []string{"name", "address", "notes", "visit_dates", "conditions", "medications"},
		},
	}}
}

// Profile returns the profile for a role. Unknown roles get the most
// restrictive profile (trainee), the same strict default the
// role_permissions lookups use elsewhere.
func (p *Policy) Profile(role domain.Role) PermissionProfile {
	prof, ok := p.profiles[role]
	if !ok {
		prof = p.profiles[domain.RoleTrainee]
	}
	return prof
}

// RedactedFields returns a copy of the role's redaction set.
func (p *Policy) RedactedFields(role domain.Role) []string {
	return append([]string{}, p.Profile(role).RedactedFields...)
}

// CanAccessField reports whether the role may see the named field.
func (p *Policy) CanAccessField(field string, role domain.Role) bool {
	for _, f := range p.Profile(role).RedactedFields {
		if f == field {
			return false
		}
	}
	return true
}

// CheckQueryPermission enforces category-level access:
// help is always permitted, individual patient queries require medical
// detail access, aggregates require aggregate access, everything else
// is denied by default.
func (p *Policy) CheckQueryPermission(category domain.QueryCategory, role domain.Role) bool {
	prof := p.Profile(role)
	switch category {
	case domain.CategoryHelp:
		return true
	case domain.CategoryIndividualPatient:
		return prof.CanViewMedicalDetails
	case domain.CategoryAggregateStats:
		return prof.CanViewAggregates
	}
	return false
}

// Descriptions returns human-readable permission lines for a role,
// used by the role catalog endpoint and the generative system prompt.
func (p *Policy) Descriptions(role domain.Role) []string {
	prof := p.Profile(role)
	var out []string
	if prof.CanViewIdentifyingInfo {
		out = append(out,
			"Full access to all patient fields",
			"Can view individual patient records",
			"Can view identifying information",
		)
	} else {
		out = append(out, "No access to identifying information")
		if prof.CanViewMedicalDetails {
			out = append(out, "Can view de-identified records only")
		} else {
			out = append(out, "No direct patient data access")
		}
	}
	if prof.CanViewAggregates {
		out = append(out, "Can access aggregated statistics")
	} else {
		out = append(out, "Requires supervision for any queries")
	}
	return out
}
