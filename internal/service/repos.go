// Package service holds WebCAF's use cases: the registry (organisations,
// systems, user profiles), the assessment workflow, account pages and sign-in.
//
// Services depend on the narrow store interfaces below, not on pgx. Writes
// that must succeed or fail together go through Repos.InTx.
package service

import (
	"context"
	"time"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/repository"
)

// UserStore persists users.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u domain.User) error
	SetPassword(ctx context.Context, id int64, hash string) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// OrganisationStore persists organisations.
type OrganisationStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Organisation, error)
	GetByName(ctx context.Context, name string) (*domain.Organisation, error)
	First(ctx context.Context) (*domain.Organisation, error)
	FindOrCreateByName(ctx context.Context, name string) (*domain.Organisation, bool, error)
	Update(ctx context.Context, o domain.Organisation) error
}

// SystemStore persists systems.
type SystemStore interface {
	GetByID(ctx context.Context, id int64) (*domain.System, error)
	ListByOrganisation(ctx context.Context, orgID int64) ([]domain.System, error)
	CountByOrganisation(ctx context.Context, orgID int64) (int, error)
	NameTaken(ctx context.Context, orgID int64, name string, excludeID int64) (bool, error)
	Candidates(ctx context.Context, orgID int64, period string, includeID int64) ([]domain.System, error)
	Create(ctx context.Context, s *domain.System) error
	Update(ctx context.Context, s domain.System) error
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id int64) (*domain.UserProfile, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.UserProfile, error)
	ListByOrganisation(ctx context.Context, orgID int64) ([]domain.UserProfile, error)
	CountByRole(ctx context.Context, orgID int64, role domain.Role) (int, error)
	Create(ctx context.Context, p *domain.UserProfile) error
	Upsert(ctx context.Context, p *domain.UserProfile) error
	UpdateRole(ctx context.Context, id int64, role domain.Role) error
	Delete(ctx context.Context, id int64) error
}

// AssessmentStore persists assessments.
type AssessmentStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Assessment, error)
	GetForOrganisation(ctx context.Context, id, orgID int64, statuses ...domain.AssessmentStatus) (*domain.Assessment, error)
	ListByOrganisation(ctx context.Context, orgID int64, statuses ...domain.AssessmentStatus) ([]domain.Assessment, error)
	FindDraft(ctx context.Context, systemID int64, period, framework string) (*domain.Assessment, error)
	Create(ctx context.Context, a *domain.Assessment) error
	UpdateSelection(ctx context.Context, a domain.Assessment) error
	UpdateData(ctx context.Context, id int64, data domain.AssessmentData, updatedBy int64) error
	Transition(ctx context.Context, id int64, from, to domain.AssessmentStatus, updatedBy int64) error
}

// ConfigurationStore persists assessment period configurations.
type ConfigurationStore interface {
	Default(ctx context.Context) (*domain.Configuration, error)
	GetByName(ctx context.Context, name string) (*domain.Configuration, error)
	List(ctx context.Context) ([]domain.Configuration, error)
	Upsert(ctx context.Context, c *domain.Configuration) error
	SetDefault(ctx context.Context, name string) error
}

// Repos bundles the stores one unit of work runs against.
type Repos struct {
	Users          UserStore
	Organisations  OrganisationStore
	Systems        SystemStore
	Profiles       ProfileStore
	Assessments    AssessmentStore
	Configurations ConfigurationStore

	tx func(ctx context.Context, fn func(Repos) error) error
}

// ReposFromStore adapts the pgx store. InTx opens a real transaction.
func ReposFromStore(s *repository.Store) Repos {
	return Repos{
		Users:          s.Users,
		Organisations:  s.Organisations,
		Systems:        s.Systems,
		Profiles:       s.Profiles,
		Assessments:    s.Assessments,
		Configurations: s.Configurations,
		tx: func(ctx context.Context, fn func(Repos) error) error {
			return s.InTx(ctx, func(tx *repository.Store) error {
				return fn(ReposFromStore(tx))
			})
		},
	}
}

// InTx runs fn inside a transaction when the backing store supports one, and
// directly otherwise.
func (r Repos) InTx(ctx context.Context, fn func(Repos) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx(ctx, fn)
}
