package domain

import "time"

// Notification types shown in the inbox.
const (
	NotificationAssessmentSubmitted = "ASSESSMENT_SUBMITTED"
	NotificationAssessmentCompleted = "ASSESSMENT_COMPLETED"
	NotificationSubmissionDue       = "SUBMISSION_DUE"
)

// Notification is one inbox message for a user.
type Notification struct {
	ID           string
	Type         string
	Title        string
	Message      string
	RecipientID  int64
	ResourceType string
	ResourceID   string
	Read         bool
	CreatedAt    time.Time
}

// AuditEntry is an append-only record of an auditable action.
type AuditEntry struct {
	ID           string
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}
