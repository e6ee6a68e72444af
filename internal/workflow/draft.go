// Package workflow models the draft assessment wizard as a value object that
// lives in the session between requests.
//
// The wizard collects a system, a CAF profile and a review type. Only when all
// three are present does the service layer materialise an Assessment row.
package workflow

import (
	"fmt"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// Step is a position in the wizard.
type Step string

const (
	StepNoDraft            Step = "no_draft"
	StepChoosingSystem     Step = "choosing_system"
	StepChoosingProfile    Step = "choosing_profile"
	StepChoosingReviewType Step = "choosing_review_type"
	StepEditingOutcomes    Step = "editing_outcomes"
	StepSubmitted          Step = "submitted"
	StepCompleted          Step = "completed"
)

// Draft is the in-progress wizard state. Zero value means no draft.
type Draft struct {
	AssessmentID int64             `json:"assessment_id,omitempty"`
	System       int64             `json:"system,omitempty"`
	SystemName   string            `json:"system_name,omitempty"`
	CAFProfile   domain.CAFProfile `json:"caf_profile,omitempty"`
	ReviewType   domain.ReviewType `json:"review_type,omitempty"`
	Framework    string            `json:"framework,omitempty"`

	// Status mirrors the materialised assessment; empty before that.
	Status domain.AssessmentStatus `json:"status,omitempty"`
}

// Empty reports whether nothing has been chosen yet.
func (d Draft) Empty() bool {
	return d == Draft{}
}

// ChooseSystem records the system. Candidate filtering happens in the service.
func (d *Draft) ChooseSystem(systemID int64, name string) error {
	if systemID <= 0 {
		return apperrors.Validation(apperrors.FieldError{
			Field: "system", Code: apperrors.CodeFieldRequired, Message: "Select a system.",
		})
	}
	d.System = systemID
	d.SystemName = name
	return nil
}

// ChooseProfile records the CAF profile and applies its review-type default.
// Enhanced assessments are independently reviewed unless changed on the
// review-type step. Baseline ones never reach that step, so they are always
// self-assessed.
func (d *Draft) ChooseProfile(profile domain.CAFProfile) error {
	if !profile.Valid() {
		return apperrors.Validation(apperrors.FieldError{
			Field: "caf_profile", Code: apperrors.CodeFieldRequired, Message: "Select a CAF profile.",
		})
	}
	d.CAFProfile = profile
	switch profile {
	case domain.ProfileEnhanced:
		d.ReviewType = domain.ReviewIndependent
	case domain.ProfileBaseline:
		d.ReviewType = domain.ReviewSelfAssessment
	}
	return nil
}

// ChooseReviewType records the review type.
func (d *Draft) ChooseReviewType(rt domain.ReviewType) error {
	if !rt.Valid() {
		return apperrors.Validation(apperrors.FieldError{
			Field: "review_type", Code: apperrors.CodeFieldRequired, Message: "Select a review type.",
		})
	}
	if d.CAFProfile == "" {
		return apperrors.BadRequest(apperrors.CodeDraftIncomplete, "choose a CAF profile before the review type")
	}
	d.ReviewType = rt
	return nil
}

// Ready reports whether the three mandatory fields are present.
func (d Draft) Ready() bool {
	return d.System > 0 && d.CAFProfile != "" && d.ReviewType != ""
}

// RoutesToReviewType reports whether the step after the profile is the
// review-type step. Enhanced always does, baseline never does.
func (d Draft) RoutesToReviewType() bool {
	return d.CAFProfile == domain.ProfileEnhanced
}

// NextStep derives the wizard position from the collected fields.
func (d Draft) NextStep() Step {
	switch {
	case d.Status == domain.StatusSubmitted:
		return StepSubmitted
	case d.Status == domain.StatusCompleted:
		return StepCompleted
	case d.Empty():
		return StepNoDraft
	case d.System == 0:
		return StepChoosingSystem
	case d.CAFProfile == "":
		return StepChoosingProfile
	case d.ReviewType == "":
		return StepChoosingReviewType
	default:
		return StepEditingOutcomes
	}
}

// FromAssessment rebuilds the draft for an existing assessment.
func FromAssessment(a domain.Assessment) Draft {
	return Draft{
		AssessmentID: a.ID,
		System:       a.SystemID,
		SystemName:   a.SystemName,
		CAFProfile:   a.CAFProfile,
		ReviewType:   a.ReviewType,
		Framework:    a.Framework,
		Status:       a.Status,
	}
}

// String is used in log fields.
func (d Draft) String() string {
	return fmt.Sprintf("draft{assessment=%d system=%d profile=%s review=%s}",
		d.AssessmentID, d.System, d.CAFProfile, d.ReviewType)
}
