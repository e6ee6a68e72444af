package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
)

const corporateServicesOtherMessage = "Please enter a description of the corporate services."

// SystemService manages the systems of the caller's organisation.
type SystemService struct {
	repos  Repos
	policy *policy.Policy
}

// NewSystemService creates a SystemService.
func NewSystemService(repos Repos, p *policy.Policy) *SystemService {
	return &SystemService{repos: repos, policy: p}
}

// List returns the systems of the active organisation.
func (s *SystemService) List(ctx context.Context, caller Caller) ([]domain.System, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionViewSystems, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	systems, err := s.repos.Systems.ListByOrganisation(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return systems, nil
}

// Get loads a system for editing. Systems of other organisations are refused.
func (s *SystemService) Get(ctx context.Context, caller Caller, id int64) (*domain.System, error) {
	sys, err := s.repos.Systems.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get system: %w", err)
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionManageSystems, policy.Resource{OrganisationID: sys.OrganisationID}); err != nil {
		return nil, err
	}
	return sys, nil
}

// Validate checks the form for the change step. id is 0 for a new system.
// The returned form is normalised and is what Save should receive.
func (s *SystemService) Validate(ctx context.Context, caller Caller, id int64, form SystemForm) (SystemForm, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return form, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionManageSystems, policy.Resource{OrganisationID: orgID}); err != nil {
		return form, err
	}
	form.normalise()

	var fieldErrs []apperrors.FieldError
	if err := validateForm(form); err != nil {
		verr, ok := apperrors.IsValidation(err)
		if !ok {
			return form, err
		}
		fieldErrs = append(fieldErrs, verr.FieldErrors...)
	}

	if len(form.CorporateServices) > 0 && form.CorporateServices[0] == domain.CorporateServicesOtherID {
		if form.CorporateServicesOther == "" {
			fieldErrs = append(fieldErrs, apperrors.FieldError{
				Field:   "corporate_services_other",
				Code:    apperrors.CodeFieldRequired,
				Message: corporateServicesOtherMessage,
			})
		}
	} else {
		form.CorporateServicesOther = ""
	}

	if form.Name != "" {
		taken, err := s.repos.Systems.NameTaken(ctx, orgID, form.Name, id)
		if err != nil {
			return form, fmt.Errorf("check system name: %w", err)
		}
		if taken {
			fieldErrs = append(fieldErrs, apperrors.FieldError{
				Field:   "name",
				Code:    apperrors.CodeFieldDuplicate,
				Message: fmt.Sprintf("A system with this name %s already exists.", form.Name),
			})
		}
	}

	if len(fieldErrs) > 0 {
		return form, apperrors.Validation(fieldErrs...)
	}
	return form, nil
}

// Save validates again and writes the system. id is 0 for a new system.
func (s *SystemService) Save(ctx context.Context, caller Caller, id int64, form SystemForm) (*domain.System, error) {
	if id != 0 {
		if _, err := s.Get(ctx, caller, id); err != nil {
			return nil, err
		}
	}
	form, err := s.Validate(ctx, caller, id, form)
	if err != nil {
		return nil, err
	}

	sys := domain.System{
		ID:                     id,
		OrganisationID:         caller.OrganisationID(),
		Name:                   form.Name,
		SystemType:             form.SystemType,
		LastAssessed:           form.LastAssessed,
		SystemOwner:            form.SystemOwner,
		HostingType:            form.HostingType,
		CorporateServices:      form.CorporateServices,
		CorporateServicesOther: form.CorporateServicesOther,
	}
	if id == 0 {
		if err := s.repos.Systems.Create(ctx, &sys); err != nil {
			return nil, fmt.Errorf("create system: %w", err)
		}
		logger.Info("system created", zap.Int64("system_id", sys.ID), zap.Int64("organisation_id", sys.OrganisationID))
		return &sys, nil
	}
	if err := s.repos.Systems.Update(ctx, sys); err != nil {
		return nil, fmt.Errorf("update system: %w", err)
	}
	logger.Info("system updated", zap.Int64("system_id", sys.ID))
	return &sys, nil
}
