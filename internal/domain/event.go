package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventAssessmentCreated   EventType = "ASSESSMENT_CREATED"
	EventAssessmentSubmitted EventType = "ASSESSMENT_SUBMITTED"
	EventAssessmentCompleted EventType = "ASSESSMENT_COMPLETED"
	EventProfileCreated      EventType = "PROFILE_CREATED"
	EventProfileDeleted      EventType = "PROFILE_DELETED"
	EventUserSignedIn        EventType = "USER_SIGNED_IN"
)

// DomainEvent is an immutable fact about the system. Handlers receive the
// event, not the aggregate; they reload what they need by AggregateID.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewEvent builds an event with a time-ordered id.
func NewEvent(eventType EventType, aggregateType string, aggregateID int64, actor string, payload interface{}) (*DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		Payload:       raw,
		Actor:         actor,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// AssessmentEventPayload accompanies assessment lifecycle events.
type AssessmentEventPayload struct {
	AssessmentID   int64            `json:"assessment_id"`
	SystemID       int64            `json:"system_id"`
	SystemName     string           `json:"system_name"`
	OrganisationID int64            `json:"organisation_id"`
	Reference      string           `json:"reference"`
	Period         string           `json:"period"`
	Status         AssessmentStatus `json:"status"`
	ActorID        int64            `json:"actor_id"`
}

// ProfileEventPayload accompanies profile events.
type ProfileEventPayload struct {
	ProfileID      int64 `json:"profile_id"`
	UserID         int64 `json:"user_id"`
	OrganisationID int64 `json:"organisation_id"`
	Role           Role  `json:"role"`
	ActorID        int64 `json:"actor_id"`
}

// SignInPayload accompanies EventUserSignedIn.
type SignInPayload struct {
	UserID int64  `json:"user_id"`
	Method string `json:"method"` // oidc or local
	// Created is true when the sign-in provisioned the local user.
	Created bool `json:"created"`
}

// DecodePayload unmarshals the event payload into v.
func (e *DomainEvent) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
