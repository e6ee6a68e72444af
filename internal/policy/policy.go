// Package policy decides whether the caller's active profile may perform an
// action on a resource.
//
// Every protected handler names an Action. Each Action declares the roles
// allowed to perform it, and resources owned by another organisation are
// always refused. Unknown actions and roles are refused too.
package policy

import (
	"fmt"
	"slices"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// Action is a protected operation.
type Action string

const (
	ActionViewSystems        Action = "systems:view"
	ActionManageSystems      Action = "systems:manage"
	ActionViewUsers          Action = "users:view"
	ActionManageUsers        Action = "users:manage"
	ActionDeleteUser         Action = "users:delete"
	ActionEditAssessment     Action = "assessments:edit"
	ActionSubmitAssessment   Action = "assessments:submit"
	ActionCompleteAssessment Action = "assessments:complete"
	ActionExportAssessment   Action = "assessments:export"
	ActionEditOrganisation   Action = "organisation:edit"
)

var (
	systemRoles = []domain.Role{domain.RoleCyberAdvisor}
	userRoles   = []domain.Role{domain.RoleCyberAdvisor, domain.RoleOrganisationLead}
	anyRole     = []domain.Role{domain.RoleOrganisationLead, domain.RoleOrganisationUser, domain.RoleCyberAdvisor, domain.RoleAssessor}
)

// declared maps each action to the roles that may perform it.
var declared = map[Action][]domain.Role{
	ActionViewSystems:        {domain.RoleCyberAdvisor, domain.RoleOrganisationLead},
	ActionManageSystems:      systemRoles,
	ActionViewUsers:          userRoles,
	ActionManageUsers:        userRoles,
	ActionDeleteUser:         userRoles,
	ActionEditAssessment:     anyRole,
	ActionSubmitAssessment:   {domain.RoleOrganisationLead, domain.RoleCyberAdvisor},
	ActionCompleteAssessment: {domain.RoleCyberAdvisor, domain.RoleAssessor},
	ActionExportAssessment:   anyRole,
	ActionEditOrganisation:   anyRole,
}

// Roles returns the roles declared for action.
func Roles(action Action) []domain.Role {
	return slices.Clone(declared[action])
}

// Subject is the caller as seen through the active profile.
type Subject struct {
	UserID         int64
	ProfileID      int64
	Role           domain.Role
	OrganisationID int64
	IsStaff        bool
}

// SubjectFor builds a subject from a user and their active profile.
func SubjectFor(user domain.User, profile *domain.UserProfile) Subject {
	s := Subject{UserID: user.ID, IsStaff: user.IsStaff}
	if profile != nil {
		s.ProfileID = profile.ID
		s.Role = profile.Role
		s.OrganisationID = profile.OrgID()
	}
	return s
}

// Resource is what the action touches. Zero fields are not checked.
type Resource struct {
	OrganisationID int64

	// Target profile, for user management.
	TargetProfileID int64
	TargetUserID    int64
	TargetRole      domain.Role
	// LeadCount is the number of organisation leads in the target's
	// organisation, including the target.
	LeadCount int
}

// Policy evaluates authorization decisions.
type Policy struct {
	deletionGuards bool
}

// Option configures a Policy.
type Option func(*Policy)

// WithDeletionGuards refuses deleting your own profile and the last lead.
func WithDeletionGuards(enabled bool) Option {
	return func(p *Policy) { p.deletionGuards = enabled }
}

// New creates a Policy.
func New(opts ...Option) *Policy {
	p := &Policy{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authorize returns nil when subject may perform action on resource and a
// Forbidden AppError otherwise.
func (p *Policy) Authorize(subject Subject, action Action, resource Resource) error {
	if subject.ProfileID == 0 {
		return apperrors.Forbidden(apperrors.CodeNoActiveProfile, "no active profile")
	}
	roles, ok := declared[action]
	if !ok {
		return apperrors.Forbidden(apperrors.CodePermissionDenied, fmt.Sprintf("unknown action %q", action))
	}
	if !subject.Role.Valid() || !slices.Contains(roles, subject.Role) {
		return apperrors.Forbidden(apperrors.CodeRoleNotPermitted,
			fmt.Sprintf("role %q may not perform %s", subject.Role, action))
	}
	if resource.OrganisationID != 0 && resource.OrganisationID != subject.OrganisationID {
		return apperrors.Forbidden(apperrors.CodeCrossOrganisation, "resource belongs to a different organisation")
	}

	if action == ActionDeleteUser && p.deletionGuards {
		if resource.TargetUserID != 0 && resource.TargetUserID == subject.UserID {
			return apperrors.Forbidden(apperrors.CodeSelfDeletion, "you cannot remove your own profile")
		}
		if resource.TargetRole == domain.RoleOrganisationLead && resource.LeadCount <= 1 {
			return apperrors.Forbidden(apperrors.CodeLastLeadDeletion, "an organisation must keep at least one lead")
		}
	}
	return nil
}

// Allowed is Authorize as a predicate.
func (p *Policy) Allowed(subject Subject, action Action, resource Resource) bool {
	return p.Authorize(subject, action, resource) == nil
}

// CanViewSystems reports whether the systems list is visible to subject.
func (p *Policy) CanViewSystems(subject Subject) bool {
	return p.Allowed(subject, ActionViewSystems, Resource{})
}

// CanViewUsers reports whether the user profiles list is visible to subject.
func (p *Policy) CanViewUsers(subject Subject) bool {
	return p.Allowed(subject, ActionViewUsers, Resource{})
}

// CanDeleteUser reports whether subject may remove target.
func (p *Policy) CanDeleteUser(subject Subject, target Resource) bool {
	return p.Allowed(subject, ActionDeleteUser, target)
}
