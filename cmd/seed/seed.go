package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/service"
)

const (
	superuserName     = "admin"
	superuserPassword = "password" // local development only
	seedPeriod        = "2025/26"
	seedFramework     = "caf32"
)

var errNoOrganisation = errors.New("no organisation exists: pass --organisation or create one first")

type seedUser struct {
	Email string
	Role  domain.Role
}

func seedUsers() []seedUser {
	return []seedUser{
		{Email: "lead@example.gov.uk", Role: domain.RoleOrganisationLead},
		{Email: "user@example.gov.uk", Role: domain.RoleOrganisationUser},
	}
}

func seedSystemNames() []string {
	return []string{"Big System", "Little System"}
}

// seedConfigurations returns the periods in order; the first is the default.
func seedConfigurations() []domain.Configuration {
	return []domain.Configuration{
		{Name: "25/26", ConfigData: domain.ConfigData{
			CurrentAssessmentPeriod: "2025/26",
			AssessmentPeriodEnd:     "31 March 2026 11:59pm",
			DefaultFramework:        seedFramework,
		}},
		{Name: "26/27", ConfigData: domain.ConfigData{
			CurrentAssessmentPeriod: "2026/27",
			AssessmentPeriodEnd:     "31 March 2027 11:59pm",
			DefaultFramework:        seedFramework,
		}},
	}
}

type seeder struct {
	repos service.Repos
}

func newSeeder(repos service.Repos) *seeder {
	return &seeder{repos: repos}
}

func (s *seeder) run(ctx context.Context, orgName string) error {
	org, err := s.organisation(ctx, orgName)
	if err != nil {
		return err
	}
	if err := s.superuser(ctx); err != nil {
		return fmt.Errorf("seed superuser: %w", err)
	}
	if err := s.configurations(ctx); err != nil {
		return fmt.Errorf("seed configurations: %w", err)
	}
	systems, err := s.systems(ctx, org)
	if err != nil {
		return fmt.Errorf("seed systems: %w", err)
	}
	owner, err := s.users(ctx, org)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if err := s.drafts(ctx, systems, owner); err != nil {
		return fmt.Errorf("seed drafts: %w", err)
	}
	return nil
}

// organisation returns the first organisation. With none present it is
// created from orgName, or the seed stops.
func (s *seeder) organisation(ctx context.Context, orgName string) (*domain.Organisation, error) {
	org, err := s.repos.Organisations.First(ctx)
	if err == nil {
		return org, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("load organisation: %w", err)
	}
	if orgName == "" {
		return nil, errNoOrganisation
	}
	org, _, err = s.repos.Organisations.FindOrCreateByName(ctx, orgName)
	if err != nil {
		return nil, fmt.Errorf("create organisation: %w", err)
	}
	logger.Info("Seeded organisation", zap.String("organisation", org.Name))
	return org, nil
}

func (s *seeder) superuser(ctx context.Context) error {
	if _, err := s.repos.Users.GetByUsername(ctx, superuserName); err == nil {
		logger.Warn("Superuser already exists, skipping", zap.String("username", superuserName))
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}

	hash, err := service.HashPassword(superuserPassword)
	if err != nil {
		return err
	}
	u := &domain.User{
		Username:     superuserName,
		Email:        superuserName + "@admin.org",
		PasswordHash: hash,
		IsStaff:      true,
		IsSuperuser:  true,
		IsActive:     true,
	}
	if err := s.repos.Users.Create(ctx, u); err != nil {
		return err
	}
	if err := s.repos.Profiles.Create(ctx, &domain.UserProfile{UserID: u.ID, Role: domain.RoleAssessor}); err != nil {
		return err
	}
	logger.Info("Seeded superuser", zap.String("username", superuserName))
	return nil
}

// configurations creates missing periods and makes the first the default
// when no default exists yet. Existing rows are left untouched.
func (s *seeder) configurations(ctx context.Context) error {
	configs := seedConfigurations()
	for i := range configs {
		c := configs[i]
		if _, err := s.repos.Configurations.GetByName(ctx, c.Name); err == nil {
			continue
		} else if !apperrors.IsNotFound(err) {
			return err
		}
		if err := s.repos.Configurations.Upsert(ctx, &c); err != nil {
			return err
		}
		logger.Info("Seeded configuration", zap.String("name", c.Name))
	}

	if _, err := s.repos.Configurations.Default(ctx); err == nil {
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	return s.repos.Configurations.SetDefault(ctx, configs[0].Name)
}

func (s *seeder) systems(ctx context.Context, org *domain.Organisation) ([]domain.System, error) {
	for _, name := range seedSystemNames() {
		taken, err := s.repos.Systems.NameTaken(ctx, org.ID, name, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			logger.Warn("System already exists, skipping",
				zap.String("system", name),
				zap.String("organisation", org.Name),
			)
			continue
		}
		sys := &domain.System{
			OrganisationID:    org.ID,
			Name:              name,
			SystemType:        domain.SystemTypes[0].ID,
			LastAssessed:      domain.AssessedChoices[0].ID,
			SystemOwner:       []string{domain.OwnerTypes[0].ID},
			HostingType:       []string{domain.HostingTypes[0].ID},
			CorporateServices: []string{domain.CorporateServices[0].ID},
		}
		if err := s.repos.Systems.Create(ctx, sys); err != nil {
			return nil, err
		}
		logger.Info("Seeded system", zap.String("system", name))
	}
	return s.repos.Systems.ListByOrganisation(ctx, org.ID)
}

// users creates the seed users and their profiles. It returns the first
// seed user, who owns the seeded drafts.
func (s *seeder) users(ctx context.Context, org *domain.Organisation) (*domain.User, error) {
	var owner *domain.User
	for _, su := range seedUsers() {
		u, err := s.repos.Users.GetByUsername(ctx, su.Email)
		if apperrors.IsNotFound(err) {
			u = &domain.User{Username: su.Email, Email: su.Email, IsActive: true}
			if err = s.repos.Users.Create(ctx, u); err == nil {
				logger.Info("Seeded user", logger.Email("email", su.Email))
			}
		}
		if err != nil {
			return nil, err
		}

		profiles, err := s.repos.Profiles.ListByUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if len(profiles) == 0 {
			orgID := org.ID
			if err := s.repos.Profiles.Create(ctx, &domain.UserProfile{UserID: u.ID, OrganisationID: &orgID, Role: su.Role}); err != nil {
				return nil, err
			}
		}
		if owner == nil {
			owner = u
		}
	}
	return owner, nil
}

func (s *seeder) drafts(ctx context.Context, systems []domain.System, owner *domain.User) error {
	if owner == nil {
		return nil
	}
	for _, sys := range systems {
		if _, err := s.repos.Assessments.FindDraft(ctx, sys.ID, seedPeriod, seedFramework); err == nil {
			continue
		} else if !apperrors.IsNotFound(err) {
			return err
		}
		a := &domain.Assessment{
			SystemID:         sys.ID,
			AssessmentPeriod: seedPeriod,
			Framework:        seedFramework,
			CAFProfile:       domain.ProfileBaseline,
			ReviewType:       domain.ReviewSelfAssessment,
			Status:           domain.StatusDraft,
			Data:             domain.AssessmentData{},
			CreatedBy:        owner.ID,
			LastUpdatedBy:    owner.ID,
		}
		if err := s.repos.Assessments.Create(ctx, a); err != nil {
			if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeAssessmentExists {
				logger.Warn("System already has an assessment for the period, skipping", zap.String("system", sys.Name))
				continue
			}
			return err
		}
		logger.Info("Seeded draft assessment", zap.String("system", sys.Name), zap.String("reference", a.Reference()))
	}
	return nil
}
