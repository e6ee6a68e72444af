package domain

import (
	"strings"
	"time"
)

// User is a local account. Username holds the identifier resolved from the
// identity provider's claims (usually the email address).
type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
	IsActive     bool
	OTPSecret    string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role is the role a user holds within one organisation.
type Role string

const (
	RoleOrganisationLead Role = "organisation_lead"
	RoleOrganisationUser Role = "organisation_user"
	RoleCyberAdvisor     Role = "cyber_advisor"
	// RoleAssessor is only assigned through admin tooling.
	RoleAssessor         Role = "assessor"
)

// RoleInfo describes a role for the profile forms.
type RoleInfo struct {
	Role    Role
	Label   string
	Actions string
}

// Roles lists every role in display order.
var Roles = []RoleInfo{
	{RoleOrganisationLead, "Organisation lead", "Can manage users, systems and submit assessments for the organisation."},
	{RoleOrganisationUser, "Organisation user", "Can complete draft assessments for the organisation."},
	{RoleCyberAdvisor, "Cyber advisor", "Can manage systems and users, and review assessments."},
	{RoleAssessor, "Assessor", "Can review and complete submitted assessments."},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, info := range Roles {
		if info.Role == r {
			return true
		}
	}
	return false
}

// Label returns the display label for r.
func (r Role) Label() string {
	for _, info := range Roles {
		if info.Role == r {
			return info.Label
		}
	}
	return string(r)
}

// AssignableRoles are the roles offered by the self-service profile form.
// Cyber advisors and assessors are created through admin tooling only.
func AssignableRoles() []RoleInfo {
	out := make([]RoleInfo, 0, len(Roles))
	for _, info := range Roles {
		if info.Role == RoleCyberAdvisor || info.Role == RoleAssessor {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Assignable reports whether r can be chosen on the self-service form.
func (r Role) Assignable() bool {
	for _, info := range AssignableRoles() {
		if info.Role == r {
			return true
		}
	}
	return false
}

// UserProfile links a user to an organisation with a role.
// OrganisationID is nil only for the seeded superuser profile.
type UserProfile struct {
	ID             int64
	UserID         int64
	OrganisationID *int64
	Role           Role
	CreatedAt      time.Time

	// Joined for display.
	User         User
	Organisation *Organisation
}

// OrgID returns the organisation id, or 0 when the profile has none.
func (p UserProfile) OrgID() int64 {
	if p.OrganisationID == nil {
		return 0
	}
	return *p.OrganisationID
}
