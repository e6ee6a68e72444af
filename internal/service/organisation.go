package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
)

// OrganisationService backs the my-organisation pages.
type OrganisationService struct {
	repos  Repos
	policy *policy.Policy
}

// NewOrganisationService creates an OrganisationService.
func NewOrganisationService(repos Repos, p *policy.Policy) *OrganisationService {
	return &OrganisationService{repos: repos, policy: p}
}

// Mine returns the caller's active organisation.
func (s *OrganisationService) Mine(ctx context.Context, caller Caller) (*domain.Organisation, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	org, err := s.repos.Organisations.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	return org, nil
}

func (s *OrganisationService) editable(ctx context.Context, caller Caller) (*domain.Organisation, error) {
	org, err := s.Mine(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionEditOrganisation, policy.Resource{OrganisationID: org.ID}); err != nil {
		return nil, err
	}
	return org, nil
}

// UpdateType stores the organisation type. Nothing is written when it is
// unchanged; changed reports whether a write happened.
func (s *OrganisationService) UpdateType(ctx context.Context, caller Caller, form OrganisationTypeForm) (changed bool, err error) {
	if err := validateForm(form); err != nil {
		return false, err
	}
	org, err := s.editable(ctx, caller)
	if err != nil {
		return false, err
	}
	if org.OrganisationType == form.OrganisationType {
		return false, nil
	}
	org.OrganisationType = form.OrganisationType
	if err := s.repos.Organisations.Update(ctx, *org); err != nil {
		return false, fmt.Errorf("update organisation type: %w", err)
	}
	logger.Info("organisation type updated",
		zap.Int64("organisation_id", org.ID),
		zap.String("organisation_type", org.OrganisationType),
	)
	return true, nil
}

// UpdateContact stores the organisation contact. Same write rule as UpdateType.
func (s *OrganisationService) UpdateContact(ctx context.Context, caller Caller, form ContactForm) (changed bool, err error) {
	form.normalise()
	if err := validateForm(form); err != nil {
		return false, err
	}
	org, err := s.editable(ctx, caller)
	if err != nil {
		return false, err
	}
	next := domain.OrganisationContact{
		ContactName:  form.ContactName,
		ContactRole:  form.ContactRole,
		ContactEmail: form.ContactEmail,
	}
	if org.Contact() == next {
		return false, nil
	}
	org.ContactName, org.ContactRole, org.ContactEmail = next.ContactName, next.ContactRole, next.ContactEmail
	if err := s.repos.Organisations.Update(ctx, *org); err != nil {
		return false, fmt.Errorf("update organisation contact: %w", err)
	}
	logger.Info("organisation contact updated",
		zap.Int64("organisation_id", org.ID),
		logger.Email("contact_email", org.ContactEmail),
	)
	return true, nil
}
