// Package audit records who did what to which resource.
//
// Audit rows are append-only. Nothing in the application updates or deletes
// them.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Store is the persistence Logger writes to.
type Store interface {
	Insert(ctx context.Context, e domain.AuditEntry) error
}

// Logger writes audit records to the database.
type Logger struct {
	store Store
}

// NewLogger creates a new audit Logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]interface{}) error {
	err := l.store.Insert(ctx, domain.AuditEntry{
		ID:           generateAuditID(),
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
	if err != nil {
		logger.Error("Failed to write audit log",
			zap.String("action", action),
			zap.String("resource_type", resourceType),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// HandleEvent is a domain.EventHandler that writes one row per event.
// The action is the lower-cased event type, e.g. "assessment_submitted".
func (l *Logger) HandleEvent(ctx context.Context, event *domain.DomainEvent) error {
	details := map[string]interface{}{"event_id": event.EventID}
	var payload map[string]interface{}
	if err := event.DecodePayload(&payload); err == nil {
		for k, v := range payload {
			details[k] = v
		}
	}
	return l.LogAction(ctx, actionName(event.EventType), event.AggregateType, event.AggregateID, event.Actor, details)
}

func actionName(t domain.EventType) string {
	return strings.ToLower(string(t))
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
