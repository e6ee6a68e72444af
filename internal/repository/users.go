package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// UserRepository persists local user accounts.
type UserRepository struct {
	db DBTX
}

const userColumns = `id, username, email, first_name, last_name, password_hash,
	is_staff, is_superuser, is_active, otp_secret,
	COALESCE(last_login_at, 'epoch'::timestamptz), created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u         domain.User
		lastLogin time.Time
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &u.OTPSecret,
		&lastLogin, &u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
		}
		return nil, err
	}
	u.LastLoginAt = nullTime(lastLogin)
	return &u, nil
}

// GetByID loads a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername loads a user by username, ignoring case. An exact match wins
// over a case-folded one.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users
		WHERE lower(username) = lower($1)
		ORDER BY username <> $1, id LIMIT 1`, username))
}

// GetByEmail loads the oldest user with email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`, email))
}

// Create inserts u and fills in its id and created_at.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRow(ctx, `INSERT INTO users
		(username, email, first_name, last_name, password_hash, is_staff, is_superuser, is_active, otp_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
		u.IsStaff, u.IsSuperuser, u.IsActive, u.OTPSecret,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeUserExists, fmt.Sprintf("user %s already exists", u.Username))
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes the profile and flag fields of u.
func (r *UserRepository) Update(ctx context.Context, u domain.User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users
		SET email = $2, first_name = $3, last_name = $4, is_staff = $5, is_superuser = $6, is_active = $7,
		    username = COALESCE(NULLIF($8, ''), username)
		WHERE id = $1`,
		u.ID, u.Email, u.FirstName, u.LastName, u.IsStaff, u.IsSuperuser, u.IsActive, u.Username,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeUserExists, fmt.Sprintf("user %s already exists", u.Username))
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
	}
	return nil
}

// SetPassword stores a new password hash.
func (r *UserRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash); err != nil {
		return fmt.Errorf("set password for user %d: %w", id, err)
	}
	return nil
}

// SetOTPSecret stores the per-user one-time passcode secret.
func (r *UserRepository) SetOTPSecret(ctx context.Context, id int64, secret string) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET otp_secret = $2 WHERE id = $1`, id, secret); err != nil {
		return fmt.Errorf("set otp secret for user %d: %w", id, err)
	}
	return nil
}

// TouchLogin records a successful sign-in.
func (r *UserRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch login for user %d: %w", id, err)
	}
	return nil
}
