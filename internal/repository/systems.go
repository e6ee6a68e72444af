package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// SystemRepository persists organisation systems.
type SystemRepository struct {
	db DBTX
}

const systemColumns = `s.id, s.organisation_id, s.name, s.system_type, s.last_assessed,
	s.system_owner, s.hosting_type, s.corporate_services, s.corporate_services_other,
	s.created_at, s.updated_at`

func scanSystem(row pgx.Row) (*domain.System, error) {
	var s domain.System
	if err := row.Scan(
		&s.ID, &s.OrganisationID, &s.Name, &s.SystemType, &s.LastAssessed,
		&s.SystemOwner, &s.HostingType, &s.CorporateServices, &s.CorporateServicesOther,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeSystemNotFound, "system not found")
		}
		return nil, err
	}
	return &s, nil
}

func collectSystems(rows pgx.Rows) ([]domain.System, error) {
	defer rows.Close()
	var out []domain.System
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetByID loads a system.
func (r *SystemRepository) GetByID(ctx context.Context, id int64) (*domain.System, error) {
	return scanSystem(r.db.QueryRow(ctx, `SELECT `+systemColumns+` FROM systems s WHERE s.id = $1`, id))
}

// ListByOrganisation returns an organisation's systems ordered by name.
func (r *SystemRepository) ListByOrganisation(ctx context.Context, orgID int64) ([]domain.System, error) {
	rows, err := r.db.Query(ctx, `SELECT `+systemColumns+` FROM systems s WHERE s.organisation_id = $1 ORDER BY s.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list systems for organisation %d: %w", orgID, err)
	}
	return collectSystems(rows)
}

// CountByOrganisation counts an organisation's systems.
func (r *SystemRepository) CountByOrganisation(ctx context.Context, orgID int64) (int, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM systems WHERE organisation_id = $1`, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count systems for organisation %d: %w", orgID, err)
	}
	return int(n), nil
}

// NameTaken reports whether another system in the organisation already uses name.
// excludeID skips the system being edited; pass 0 on create.
func (r *SystemRepository) NameTaken(ctx context.Context, orgID int64, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM systems WHERE organisation_id = $1 AND name = $2 AND id <> $3)`,
		orgID, name, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check system name: %w", err)
	}
	return taken, nil
}

// Candidates returns the organisation's systems with no draft, submitted or
// completed assessment in period. includeID, when non-zero, is always kept so
// an edited assessment can stay on its own system.
func (r *SystemRepository) Candidates(ctx context.Context, orgID int64, period string, includeID int64) ([]domain.System, error) {
	rows, err := r.db.Query(ctx, `SELECT `+systemColumns+` FROM systems s
		WHERE s.organisation_id = $1
		AND (s.id = $3 OR NOT EXISTS (
			SELECT 1 FROM assessments a
			WHERE a.system_id = s.id AND a.assessment_period = $2
			AND a.status IN ('draft', 'submitted', 'completed')))
		ORDER BY s.name`,
		orgID, period, includeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list candidate systems: %w", err)
	}
	return collectSystems(rows)
}

// Create inserts s and fills in its id and timestamps.
func (r *SystemRepository) Create(ctx context.Context, s *domain.System) error {
	err := r.db.QueryRow(ctx, `INSERT INTO systems
		(organisation_id, name, system_type, last_assessed, system_owner, hosting_type, corporate_services, corporate_services_other)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		s.OrganisationID, s.Name, s.SystemType, s.LastAssessed,
		nonNil(s.SystemOwner), nonNil(s.HostingType), nonNil(s.CorporateServices), s.CorporateServicesOther,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeSystemExists, fmt.Sprintf("A system with this name %s already exists.", s.Name))
		}
		return fmt.Errorf("insert system: %w", err)
	}
	return nil
}

// Update writes every editable field of s.
func (r *SystemRepository) Update(ctx context.Context, s domain.System) error {
	tag, err := r.db.Exec(ctx, `UPDATE systems
		SET name = $2, system_type = $3, last_assessed = $4, system_owner = $5, hosting_type = $6,
		corporate_services = $7, corporate_services_other = $8, updated_at = now()
		WHERE id = $1`,
		s.ID, s.Name, s.SystemType, s.LastAssessed,
		nonNil(s.SystemOwner), nonNil(s.HostingType), nonNil(s.CorporateServices), s.CorporateServicesOther,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeSystemExists, fmt.Sprintf("A system with this name %s already exists.", s.Name))
		}
		return fmt.Errorf("update system %d: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeSystemNotFound, "system not found")
	}
	return nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
