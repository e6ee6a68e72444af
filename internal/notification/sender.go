// Package notification delivers inbox messages and outbound mail.
//
// Inbox notifications are synchronous database writes made by the job or
// request that raises them. Mail goes through a Mailer.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Params holds the fields of a notification.
type Params struct {
	RecipientID  int64
	Type         string // one of the domain.Notification* constants
	Title        string
	Message      string
	ResourceType string // e.g. "assessment"
	ResourceID   string
}

// Sender delivers notifications.
type Sender interface {
	// Send creates a notification for a single recipient.
	Send(ctx context.Context, params Params) error

	// SendToMany creates notifications for several recipients. Delivery is
	// best-effort: one failure does not stop the others.
	SendToMany(ctx context.Context, recipientIDs []int64, params Params) error
}

// Store is the persistence InboxSender needs.
type Store interface {
	Create(ctx context.Context, n domain.Notification) error
}

// InboxSender writes notifications to the in-app inbox.
type InboxSender struct {
	store Store
}

// NewInboxSender creates a new inbox sender.
func NewInboxSender(store Store) *InboxSender {
	return &InboxSender{store: store}
}

// Send stores a single notification.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	if !knownType(params.Type) {
		return fmt.Errorf("unknown notification type: %s", params.Type)
	}

	err := s.store.Create(ctx, domain.Notification{
		ID:           uuid.NewString(),
		Type:         params.Type,
		Title:        params.Title,
		Message:      params.Message,
		RecipientID:  params.RecipientID,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
	})
	if err != nil {
		return fmt.Errorf("create notification for user %d: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.Int64("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)
	return nil
}

// SendToMany creates notifications for multiple recipients (best-effort).
func (s *InboxSender) SendToMany(ctx context.Context, recipientIDs []int64, params Params) error {
	if len(recipientIDs) == 0 {
		return nil
	}

	var failCount int
	for _, recipientID := range recipientIDs {
		p := params
		p.RecipientID = recipientID
		if err := s.Send(ctx, p); err != nil {
			failCount++
			logger.Error("notification delivery failed",
				zap.Int64("recipient", recipientID),
				zap.String("type", params.Type),
				zap.Error(err),
			)
		}
	}

	if failCount > 0 {
		return fmt.Errorf("notification delivery failed for %d/%d recipients", failCount, len(recipientIDs))
	}
	return nil
}

var _ Sender = (*InboxSender)(nil)

func validateParams(p Params) error {
	if p.RecipientID == 0 {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

func knownType(t string) bool {
	switch t {
	case domain.NotificationAssessmentSubmitted, domain.NotificationAssessmentCompleted, domain.NotificationSubmissionDue:
		return true
	}
	return false
}
