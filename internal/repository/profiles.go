package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// ProfileRepository persists user profiles, the user-organisation-role links.
type ProfileRepository struct {
	db DBTX
}

const profileSelect = `SELECT p.id, p.user_id, COALESCE(p.organisation_id, 0), p.role, p.created_at,
	u.username, u.email, u.first_name, u.last_name, u.is_staff,
	COALESCE(o.name, ''), COALESCE(o.organisation_type, '')
	FROM user_profiles p
	JOIN users u ON u.id = p.user_id
	LEFT JOIN organisations o ON o.id = p.organisation_id`

func scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	var (
		p       domain.UserProfile
		orgID   int64
		orgName string
		orgType string
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &orgID, &p.Role, &p.CreatedAt,
		&p.User.Username, &p.User.Email, &p.User.FirstName, &p.User.LastName, &p.User.IsStaff,
		&orgName, &orgType,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
		}
		return nil, err
	}
	p.User.ID = p.UserID
	p.OrganisationID = nullID(orgID)
	if orgID != 0 {
		p.Organisation = &domain.Organisation{ID: orgID, Name: orgName, OrganisationType: orgType}
	}
	return &p, nil
}

func collectProfiles(rows pgx.Rows) ([]domain.UserProfile, error) {
	defer rows.Close()
	var out []domain.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetByID loads a profile with its user and organisation.
func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*domain.UserProfile, error) {
	return scanProfile(r.db.QueryRow(ctx, profileSelect+` WHERE p.id = $1`, id))
}

// ListByUser returns a user's profiles ordered by id.
func (r *ProfileRepository) ListByUser(ctx context.Context, userID int64) ([]domain.UserProfile, error) {
	rows, err := r.db.Query(ctx, profileSelect+` WHERE p.user_id = $1 ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles for user %d: %w", userID, err)
	}
	return collectProfiles(rows)
}

// ListByOrganisation returns an organisation's profiles ordered by id.
func (r *ProfileRepository) ListByOrganisation(ctx context.Context, orgID int64) ([]domain.UserProfile, error) {
	rows, err := r.db.Query(ctx, profileSelect+` WHERE p.organisation_id = $1 ORDER BY p.id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list profiles for organisation %d: %w", orgID, err)
	}
	return collectProfiles(rows)
}

// CountByRole counts the organisation's profiles holding role.
func (r *ProfileRepository) CountByRole(ctx context.Context, orgID int64, role domain.Role) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM user_profiles WHERE organisation_id = $1 AND role = $2`, orgID, string(role),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s profiles: %w", role, err)
	}
	return int(n), nil
}

// UserIDsByRole returns the user ids holding role in the organisation.
func (r *ProfileRepository) UserIDsByRole(ctx context.Context, orgID int64, role domain.Role) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT user_id FROM user_profiles WHERE organisation_id = $1 AND role = $2 ORDER BY user_id`,
		orgID, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", role, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts p. A profile already linking the same user and organisation
// is a conflict.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.UserProfile) error {
	err := r.db.QueryRow(ctx, `INSERT INTO user_profiles (user_id, organisation_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		p.UserID, p.OrganisationID, string(p.Role),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeProfileExists, "the user already has a profile in this organisation")
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Upsert creates p or, when the user already belongs to the organisation,
// updates the role of the existing profile.
func (r *ProfileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	err := r.db.QueryRow(ctx, `INSERT INTO user_profiles (user_id, organisation_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, organisation_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING id, created_at`,
		p.UserID, p.OrganisationID, string(p.Role),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// UpdateRole changes the role of a profile.
func (r *ProfileRepository) UpdateRole(ctx context.Context, id int64, role domain.Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_profiles SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("update profile %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
	}
	return nil
}

// Delete removes a profile.
func (r *ProfileRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
	}
	return nil
}
