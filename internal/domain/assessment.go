package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssessmentStatus is the lifecycle state of an assessment row.
type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusSubmitted AssessmentStatus = "submitted"
	StatusCompleted AssessmentStatus = "completed"
)

// LiveStatuses are the statuses that claim a system for a period.
var LiveStatuses = []AssessmentStatus{StatusDraft, StatusSubmitted, StatusCompleted}

// CAFProfile is the rigour level of an assessment.
type CAFProfile string

const (
	ProfileBaseline CAFProfile = "baseline"
	ProfileEnhanced CAFProfile = "enhanced"
)

// Valid reports whether p is a known CAF profile.
func (p CAFProfile) Valid() bool {
	return p == ProfileBaseline || p == ProfileEnhanced
}

// CAFProfiles lists the profile choices.
var CAFProfiles = []Choice{
	{string(ProfileBaseline), "Baseline"},
	{string(ProfileEnhanced), "Enhanced"},
}

// ReviewType classifies who reviews the assessment.
type ReviewType string

const (
	ReviewSelfAssessment ReviewType = "self_assessment"
	ReviewPeerReview     ReviewType = "peer_review"
	ReviewIndependent    ReviewType = "independent"
)

// Valid reports whether r is a known review type.
func (r ReviewType) Valid() bool {
	switch r {
	case ReviewSelfAssessment, ReviewPeerReview, ReviewIndependent:
		return true
	}
	return false
}

// ReviewTypes lists the review type choices.
var ReviewTypes = []Choice{
	{string(ReviewSelfAssessment), "Self-assessment"},
	{string(ReviewPeerReview), "Peer review"},
	{string(ReviewIndependent), "Independent assurance review"},
}

// Outcome statuses derived from the checked indicators.
const (
	OutcomeAchieved          = "Achieved"
	OutcomePartiallyAchieved = "Partially achieved"
	OutcomeNotAchieved       = "Not achieved"
)

// OutcomeRecord is the stored state of one outcome.
type OutcomeRecord struct {
	Indicators   map[string]bool `json:"indicators"`
	Status       string          `json:"status"`
	Confirmation string          `json:"confirmation,omitempty"`
	Comments     string          `json:"comments,omitempty"`
}

// Confirmed reports whether the outcome passed the confirmation sub-step.
func (r OutcomeRecord) Confirmed() bool {
	return r.Confirmation == "confirm" && strings.TrimSpace(r.Comments) != ""
}

// AssessmentData is objective → outcome → record. It is stored verbatim as JSON.
type AssessmentData map[string]map[string]OutcomeRecord

// Outcome returns the record for objective/outcome, if present.
func (d AssessmentData) Outcome(objective, outcome string) (OutcomeRecord, bool) {
	rec, ok := d[objective][outcome]
	return rec, ok
}

// SetOutcome stores rec, creating the objective map when needed.
func (d AssessmentData) SetOutcome(objective, outcome string, rec OutcomeRecord) {
	if d[objective] == nil {
		d[objective] = map[string]OutcomeRecord{}
	}
	d[objective][outcome] = rec
}

// Assessment is one CAF assessment of a system for a period.
type Assessment struct {
	ID                int64
	SystemID          int64
	AssessmentPeriod  string
	Framework         string
	CAFProfile        CAFProfile
	ReviewType        ReviewType
	Status            AssessmentStatus
	Data              AssessmentData
	CreatedBy         int64
	LastUpdatedBy     int64
	CreatedOn         time.Time
	LastUpdated       time.Time
	SubmissionDueDate *time.Time
	SubmittedAt       *time.Time

	// Joined for display.
	SystemName       string
	OrganisationID   int64
	OrganisationName string
	CreatedByName    string
}

// Reference is the display reference printed on exports,
// e.g. "WCAF-202526-00042".
func (a Assessment) Reference() string {
	period := strings.NewReplacer("/", "", " ", "").Replace(a.AssessmentPeriod)
	return fmt.Sprintf("WCAF-%s-%05d", period, a.ID)
}

// Editable reports whether outcome and field edits are allowed.
func (a Assessment) Editable() bool {
	return a.Status == StatusDraft
}
