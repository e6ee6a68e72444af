package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// OrganisationRepository persists organisations.
type OrganisationRepository struct {
	db DBTX
}

const organisationColumns = `id, name, organisation_type, contact_name, contact_role, contact_email, created_at, updated_at`

func scanOrganisation(row pgx.Row) (*domain.Organisation, error) {
	var o domain.Organisation
	if err := row.Scan(&o.ID, &o.Name, &o.OrganisationType, &o.ContactName, &o.ContactRole, &o.ContactEmail, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
		}
		return nil, err
	}
	return &o, nil
}

// GetByID loads an organisation.
func (r *OrganisationRepository) GetByID(ctx context.Context, id int64) (*domain.Organisation, error) {
	return scanOrganisation(r.db.QueryRow(ctx, `SELECT `+organisationColumns+` FROM organisations WHERE id = $1`, id))
}

// GetByName loads an organisation by its normalised name.
func (r *OrganisationRepository) GetByName(ctx context.Context, name string) (*domain.Organisation, error) {
	return scanOrganisation(r.db.QueryRow(ctx,
		`SELECT `+organisationColumns+` FROM organisations WHERE normalised_name = $1`, domain.NormaliseName(name)))
}

// First returns the organisation with the lowest id.
func (r *OrganisationRepository) First(ctx context.Context) (*domain.Organisation, error) {
	return scanOrganisation(r.db.QueryRow(ctx, `SELECT `+organisationColumns+` FROM organisations ORDER BY id LIMIT 1`))
}

// List returns every organisation ordered by name.
func (r *OrganisationRepository) List(ctx context.Context) ([]domain.Organisation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+organisationColumns+` FROM organisations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list organisations: %w", err)
	}
	defer rows.Close()

	var out []domain.Organisation
	for rows.Next() {
		o, err := scanOrganisation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// FindOrCreateByName returns the organisation whose normalised name matches
// name, creating it when missing. created reports whether a row was inserted.
func (r *OrganisationRepository) FindOrCreateByName(ctx context.Context, name string) (org *domain.Organisation, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperrors.BadRequest(apperrors.CodeValidationFailed, "organisation name is required")
	}
	var o domain.Organisation
	err = r.db.QueryRow(ctx, `INSERT INTO organisations (name, normalised_name)
		VALUES ($1, $2)
		ON CONFLICT (normalised_name) DO UPDATE SET normalised_name = EXCLUDED.normalised_name
		RETURNING `+organisationColumns+`, (xmax = 0) AS inserted`,
		name, domain.NormaliseName(name),
	).Scan(&o.ID, &o.Name, &o.OrganisationType, &o.ContactName, &o.ContactRole, &o.ContactEmail, &o.CreatedAt, &o.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("find or create organisation %q: %w", name, err)
	}
	return &o, created, nil
}

// Update writes the type and contact fields of o and stamps updated_at.
func (r *OrganisationRepository) Update(ctx context.Context, o domain.Organisation) error {
	tag, err := r.db.Exec(ctx, `UPDATE organisations
		SET organisation_type = $2, contact_name = $3, contact_role = $4, contact_email = $5, updated_at = now()
		WHERE id = $1`,
		o.ID, o.OrganisationType, o.ContactName, o.ContactRole, o.ContactEmail,
	)
	if err != nil {
		return fmt.Errorf("update organisation %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
	}
	return nil
}
