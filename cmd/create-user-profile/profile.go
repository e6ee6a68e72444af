package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/service"
)

type result struct {
	User         *domain.User
	Organisation *domain.Organisation
	Profile      *domain.UserProfile
}

// ensureProfile gets or creates the user by username and sets the role of
// its profile in the organisation, creating the profile when missing.
func ensureProfile(ctx context.Context, repos service.Repos, opts options) (*result, error) {
	org, err := repos.Organisations.GetByName(ctx, opts.Organisation)
	switch {
	case err == nil:
	case !apperrors.IsNotFound(err):
		return nil, fmt.Errorf("load organisation: %w", err)
	case !opts.CreateOrganisation:
		return nil, fmt.Errorf("organisation %q does not exist, use --create-organisation", opts.Organisation)
	default:
		if org, _, err = repos.Organisations.FindOrCreateByName(ctx, opts.Organisation); err != nil {
			return nil, fmt.Errorf("create organisation: %w", err)
		}
		logger.Info("Created organisation", zap.String("organisation", org.Name))
	}

	user, err := repos.Users.GetByUsername(ctx, opts.Email)
	if apperrors.IsNotFound(err) {
		user = &domain.User{Username: opts.Email, Email: opts.Email, IsActive: true}
		err = repos.Users.Create(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if opts.Superuser && !(user.IsStaff && user.IsSuperuser) {
		user.IsStaff = true
		user.IsSuperuser = true
		if err := repos.Users.Update(ctx, *user); err != nil {
			return nil, fmt.Errorf("grant superuser: %w", err)
		}
	}

	orgID := org.ID
	profile := &domain.UserProfile{UserID: user.ID, OrganisationID: &orgID, Role: opts.Role}
	if err := repos.Profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	return &result{User: user, Organisation: org, Profile: profile}, nil
}
