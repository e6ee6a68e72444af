package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// RecipientFinder resolves who is told about an organisation's assessments.
type RecipientFinder interface {
	UserIDsByRole(ctx context.Context, orgID int64, role domain.Role) ([]int64, error)
}

// Triggers turns assessment lifecycle events into inbox notifications.
//
//  1. ASSESSMENT_SUBMITTED: tell the organisation leads.
//  2. ASSESSMENT_COMPLETED: tell the user who created the assessment.
//  3. SUBMISSION_DUE: remind the organisation leads of an open draft.
type Triggers struct {
	sender Sender
	finder RecipientFinder
}

// NewTriggers creates a new notification trigger service.
func NewTriggers(sender Sender, finder RecipientFinder) *Triggers {
	return &Triggers{sender: sender, finder: finder}
}

// OnAssessmentSubmitted notifies every lead of the assessment's organisation.
func (t *Triggers) OnAssessmentSubmitted(ctx context.Context, p domain.AssessmentEventPayload, submittedBy string) error {
	leads, err := t.finder.UserIDsByRole(ctx, p.OrganisationID, domain.RoleOrganisationLead)
	if err != nil {
		return fmt.Errorf("find organisation leads: %w", err)
	}
	if len(leads) == 0 {
		logger.Warn("no organisation leads to notify", zap.Int64("assessment_id", p.AssessmentID))
		return nil
	}

	params := Params{
		Type:         domain.NotificationAssessmentSubmitted,
		Title:        fmt.Sprintf("Assessment %s submitted", p.Reference),
		Message:      fmt.Sprintf("%s submitted the %s assessment of %s.", submittedBy, p.Period, p.SystemName),
		ResourceType: "assessment",
		ResourceID:   strconv.FormatInt(p.AssessmentID, 10),
	}
	if err := t.sender.SendToMany(ctx, leads, params); err != nil {
		logger.Error("failed to send ASSESSMENT_SUBMITTED notifications",
			zap.Int64("assessment_id", p.AssessmentID),
			zap.Int("lead_count", len(leads)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// OnAssessmentCompleted notifies the user who created the assessment.
func (t *Triggers) OnAssessmentCompleted(ctx context.Context, p domain.AssessmentEventPayload, createdBy int64) error {
	params := Params{
		RecipientID:  createdBy,
		Type:         domain.NotificationAssessmentCompleted,
		Title:        fmt.Sprintf("Assessment %s completed", p.Reference),
		Message:      fmt.Sprintf("The %s assessment of %s has been reviewed and completed.", p.Period, p.SystemName),
		ResourceType: "assessment",
		ResourceID:   strconv.FormatInt(p.AssessmentID, 10),
	}
	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send ASSESSMENT_COMPLETED notification",
			zap.Int64("assessment_id", p.AssessmentID),
			zap.Int64("recipient", createdBy),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// OnSubmissionDue reminds the organisation leads that a draft is due.
func (t *Triggers) OnSubmissionDue(ctx context.Context, a domain.Assessment) error {
	if a.SubmissionDueDate == nil {
		return nil
	}
	leads, err := t.finder.UserIDsByRole(ctx, a.OrganisationID, domain.RoleOrganisationLead)
	if err != nil {
		return fmt.Errorf("find organisation leads: %w", err)
	}
	due := a.SubmissionDueDate.In(londonOrUTC()).Format(domain.DueDateLayout)
	params := Params{
		Type:         domain.NotificationSubmissionDue,
		Title:        fmt.Sprintf("Assessment of %s due %s", a.SystemName, due),
		Message:      fmt.Sprintf("The %s draft assessment of %s must be submitted by %s.", a.AssessmentPeriod, a.SystemName, due),
		ResourceType: "assessment",
		ResourceID:   strconv.FormatInt(a.ID, 10),
	}
	return t.sender.SendToMany(ctx, leads, params)
}

func londonOrUTC() *time.Location {
	if loc, err := time.LoadLocation("Europe/London"); err == nil {
		return loc
	}
	return time.UTC
}
