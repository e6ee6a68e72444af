package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// AssessmentRepository persists CAF assessments.
type AssessmentRepository struct {
	db DBTX
}

const assessmentSelect = `SELECT a.id, a.system_id, a.assessment_period, a.framework, a.caf_profile, a.review_type,
	a.status, a.assessments_data, a.created_by, a.last_updated_by, a.created_on, a.last_updated,
	COALESCE(a.submission_due_date, 'epoch'::timestamptz), COALESCE(a.submitted_at, 'epoch'::timestamptz),
	s.name, s.organisation_id, o.name, u.username
	FROM assessments a
	JOIN systems s ON s.id = a.system_id
	JOIN organisations o ON o.id = s.organisation_id
	JOIN users u ON u.id = a.created_by`

func scanAssessment(row pgx.Row) (*domain.Assessment, error) {
	var (
		a         domain.Assessment
		data      []byte
		due       time.Time
		submitted time.Time
	)
	if err := row.Scan(
		&a.ID, &a.SystemID, &a.AssessmentPeriod, &a.Framework, &a.CAFProfile, &a.ReviewType,
		&a.Status, &data, &a.CreatedBy, &a.LastUpdatedBy, &a.CreatedOn, &a.LastUpdated,
		&due, &submitted,
		&a.SystemName, &a.OrganisationID, &a.OrganisationName, &a.CreatedByName,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAssessmentNotFound()
		}
		return nil, err
	}
	a.Data = domain.AssessmentData{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, fmt.Errorf("decode assessments_data for %d: %w", a.ID, err)
		}
	}
	a.SubmissionDueDate = nullTime(due)
	a.SubmittedAt = nullTime(submitted)
	return &a, nil
}

func collectAssessments(rows pgx.Rows) ([]domain.Assessment, error) {
	defer rows.Close()
	var out []domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func encodeData(data domain.AssessmentData) ([]byte, error) {
	if data == nil {
		data = domain.AssessmentData{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode assessments_data: %w", err)
	}
	return b, nil
}

// GetByID loads an assessment with its system and organisation names.
func (r *AssessmentRepository) GetByID(ctx context.Context, id int64) (*domain.Assessment, error) {
	return scanAssessment(r.db.QueryRow(ctx, assessmentSelect+` WHERE a.id = $1`, id))
}

// GetForOrganisation loads an assessment only when its system belongs to orgID
// and its status is one of statuses.
func (r *AssessmentRepository) GetForOrganisation(ctx context.Context, id, orgID int64, statuses ...domain.AssessmentStatus) (*domain.Assessment, error) {
	return scanAssessment(r.db.QueryRow(ctx,
		assessmentSelect+` WHERE a.id = $1 AND s.organisation_id = $2 AND a.status = ANY($3)`,
		id, orgID, statusStrings(statuses),
	))
}

// ListByOrganisation returns the organisation's assessments in statuses,
// most recently updated first.
func (r *AssessmentRepository) ListByOrganisation(ctx context.Context, orgID int64, statuses ...domain.AssessmentStatus) ([]domain.Assessment, error) {
	rows, err := r.db.Query(ctx,
		assessmentSelect+` WHERE s.organisation_id = $1 AND a.status = ANY($2) ORDER BY a.last_updated DESC`,
		orgID, statusStrings(statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("list assessments for organisation %d: %w", orgID, err)
	}
	return collectAssessments(rows)
}

// FindDraft returns the draft for system, period and framework, if any.
func (r *AssessmentRepository) FindDraft(ctx context.Context, systemID int64, period, framework string) (*domain.Assessment, error) {
	return scanAssessment(r.db.QueryRow(ctx,
		assessmentSelect+` WHERE a.system_id = $1 AND a.assessment_period = $2 AND a.framework = $3 AND a.status = 'draft'`,
		systemID, period, framework,
	))
}

// Create inserts a and fills in its id and timestamps. Another live
// assessment of the same system and period is a conflict.
func (r *AssessmentRepository) Create(ctx context.Context, a *domain.Assessment) error {
	data, err := encodeData(a.Data)
	if err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = domain.StatusDraft
	}
	err = r.db.QueryRow(ctx, `INSERT INTO assessments
		(system_id, assessment_period, framework, caf_profile, review_type, status, assessments_data,
		created_by, last_updated_by, submission_due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_on, last_updated`,
		a.SystemID, a.AssessmentPeriod, a.Framework, string(a.CAFProfile), string(a.ReviewType), string(a.Status), data,
		a.CreatedBy, a.LastUpdatedBy, a.SubmissionDueDate,
	).Scan(&a.ID, &a.CreatedOn, &a.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeAssessmentExists, "the system already has an assessment for this period")
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// UpdateSelection rewrites the draft's system, profile and review type.
func (r *AssessmentRepository) UpdateSelection(ctx context.Context, a domain.Assessment) error {
	tag, err := r.db.Exec(ctx, `UPDATE assessments
		SET system_id = $2, caf_profile = $3, review_type = $4, last_updated_by = $5, last_updated = now()
		WHERE id = $1 AND status = 'draft'`,
		a.ID, a.SystemID, string(a.CAFProfile), string(a.ReviewType), a.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeAssessmentExists, "the system already has an assessment for this period")
		}
		return fmt.Errorf("update assessment %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Forbidden(apperrors.CodeAssessmentNotEditable, "only draft assessments can be edited")
	}
	return nil
}

// UpdateData replaces the outcome data of a draft. The last write wins.
func (r *AssessmentRepository) UpdateData(ctx context.Context, id int64, data domain.AssessmentData, updatedBy int64) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE assessments
		SET assessments_data = $2, last_updated_by = $3, last_updated = now()
		WHERE id = $1 AND status = 'draft'`,
		id, raw, updatedBy,
	)
	if err != nil {
		return fmt.Errorf("update assessment data %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Forbidden(apperrors.CodeAssessmentNotEditable, "only draft assessments can be edited")
	}
	return nil
}

// Transition moves an assessment from one status to another. submitted_at is
// stamped when to is submitted.
func (r *AssessmentRepository) Transition(ctx context.Context, id int64, from, to domain.AssessmentStatus, updatedBy int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE assessments
		SET status = $3, last_updated_by = $4, last_updated = now(),
		submitted_at = CASE WHEN $3 = 'submitted' THEN now() ELSE submitted_at END
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), updatedBy,
	)
	if err != nil {
		return fmt.Errorf("transition assessment %d to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Forbidden(apperrors.CodeAssessmentWrongStatus,
			fmt.Sprintf("assessment is not %s", from))
	}
	return nil
}

// DueBetween returns drafts whose submission due date falls in [from, to).
func (r *AssessmentRepository) DueBetween(ctx context.Context, from, to time.Time) ([]domain.Assessment, error) {
	rows, err := r.db.Query(ctx,
		assessmentSelect+` WHERE a.status = 'draft' AND a.submission_due_date >= $1 AND a.submission_due_date < $2 ORDER BY a.submission_due_date`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list assessments due: %w", err)
	}
	return collectAssessments(rows)
}

func statusStrings(statuses []domain.AssessmentStatus) []string {
	if len(statuses) == 0 {
		statuses = domain.LiveStatuses
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
