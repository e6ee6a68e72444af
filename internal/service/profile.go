package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
)

// ProfileService manages the user profiles of the caller's organisation.
type ProfileService struct {
	repos  Repos
	policy *policy.Policy
	events domain.EventPublisher
}

// NewProfileService creates a ProfileService. events may be nil.
func NewProfileService(repos Repos, p *policy.Policy, events domain.EventPublisher) *ProfileService {
	return &ProfileService{repos: repos, policy: p, events: events}
}

// List returns the active organisation's profiles.
func (s *ProfileService) List(ctx context.Context, caller Caller) ([]domain.UserProfile, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionViewUsers, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	profiles, err := s.repos.Profiles.ListByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// Get loads a profile of the caller's organisation for editing.
func (s *ProfileService) Get(ctx context.Context, caller Caller, id int64) (*domain.UserProfile, error) {
	profile, err := s.repos.Profiles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionManageUsers, policy.Resource{
		OrganisationID:  profile.OrgID(),
		TargetProfileID: profile.ID,
		TargetUserID:    profile.UserID,
	}); err != nil {
		return nil, err
	}
	return profile, nil
}

// ValidateForm checks a profile form without writing anything.
func (s *ProfileService) ValidateForm(caller Caller, form ProfileForm) (ProfileForm, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return form, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionManageUsers, policy.Resource{OrganisationID: orgID}); err != nil {
		return form, err
	}
	form.normalise()
	return form, validateForm(form)
}

// Create adds a profile in the caller's organisation. The user is looked up
// by email and created with username = email when missing.
func (s *ProfileService) Create(ctx context.Context, caller Caller, form ProfileForm) (*domain.UserProfile, error) {
	form, err := s.ValidateForm(caller, form)
	if err != nil {
		return nil, err
	}
	orgID := caller.OrganisationID()

	var profile domain.UserProfile
	err = s.repos.InTx(ctx, func(tx Repos) error {
		user, err := tx.Users.GetByEmail(ctx, form.Email)
		switch {
		case err == nil:
		case isNotFound(err):
			user = &domain.User{
				Username:  form.Email,
				Email:     form.Email,
				FirstName: form.FirstName,
				LastName:  form.LastName,
				IsActive:  true,
			}
			if err := tx.Users.Create(ctx, user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		default:
			return fmt.Errorf("get user by email: %w", err)
		}

		profile = domain.UserProfile{UserID: user.ID, OrganisationID: &orgID, Role: domain.Role(form.Role), User: *user}
		if err := tx.Profiles.Create(ctx, &profile); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("user profile created",
		zap.Int64("profile_id", profile.ID),
		zap.Int64("organisation_id", orgID),
		logger.Email("email", form.Email),
		zap.String("role", form.Role),
	)
	publish(ctx, s.events, domain.EventProfileCreated, "user_profile", profile.ID, caller.Actor(), domain.ProfileEventPayload{
		ProfileID:      profile.ID,
		UserID:         profile.UserID,
		OrganisationID: orgID,
		Role:           profile.Role,
		ActorID:        caller.User.ID,
	})
	return &profile, nil
}

// Update changes a profile's role and the user's name.
func (s *ProfileService) Update(ctx context.Context, caller Caller, id int64, form ProfileForm) (*domain.UserProfile, error) {
	profile, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if form.Email == "" {
		form.Email = profile.User.Email
	}
	// The form only offers assignable roles; any other role is left as it is.
	keepRole := !profile.Role.Assignable()
	if keepRole {
		form.Role = string(domain.RoleOrganisationUser)
	}
	form, err = s.ValidateForm(caller, form)
	if err != nil {
		return nil, err
	}
	if keepRole {
		form.Role = string(profile.Role)
	}

	err = s.repos.InTx(ctx, func(tx Repos) error {
		user := profile.User
		if user.FirstName != form.FirstName || user.LastName != form.LastName {
			user.FirstName, user.LastName = form.FirstName, form.LastName
			if err := tx.Users.Update(ctx, user); err != nil {
				return fmt.Errorf("update user: %w", err)
			}
			profile.User = user
		}
		if profile.Role != domain.Role(form.Role) {
			if err := tx.Profiles.UpdateRole(ctx, profile.ID, domain.Role(form.Role)); err != nil {
				return fmt.Errorf("update role: %w", err)
			}
			profile.Role = domain.Role(form.Role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CanDelete reports whether the caller may remove the profile, for showing
// the remove link.
func (s *ProfileService) CanDelete(ctx context.Context, caller Caller, target domain.UserProfile) bool {
	resource, err := s.deleteResource(ctx, target)
	if err != nil {
		return false
	}
	return s.policy.CanDeleteUser(caller.Subject(), resource)
}

func (s *ProfileService) deleteResource(ctx context.Context, target domain.UserProfile) (policy.Resource, error) {
	resource := policy.Resource{
		OrganisationID:  target.OrgID(),
		TargetProfileID: target.ID,
		TargetUserID:    target.UserID,
		TargetRole:      target.Role,
	}
	if target.Role == domain.RoleOrganisationLead {
		leads, err := s.repos.Profiles.CountByRole(ctx, target.OrgID(), domain.RoleOrganisationLead)
		if err != nil {
			return resource, fmt.Errorf("count leads: %w", err)
		}
		resource.LeadCount = leads
	}
	return resource, nil
}

// Delete removes a profile after the confirm step.
func (s *ProfileService) Delete(ctx context.Context, caller Caller, id int64) error {
	target, err := s.repos.Profiles.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	resource, err := s.deleteResource(ctx, *target)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionDeleteUser, resource); err != nil {
		return err
	}
	if err := s.repos.Profiles.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	logger.Info("user profile deleted",
		zap.Int64("profile_id", id),
		zap.Int64("organisation_id", target.OrgID()),
		zap.Int64("actor_id", caller.User.ID),
	)
	publish(ctx, s.events, domain.EventProfileDeleted, "user_profile", id, caller.Actor(), domain.ProfileEventPayload{
		ProfileID:      id,
		UserID:         target.UserID,
		OrganisationID: target.OrgID(),
		Role:           target.Role,
		ActorID:        caller.User.ID,
	})
	return nil
}
