package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
)

// Caller is the signed-in user acting through their active profile.
type Caller struct {
	User    domain.User
	Profile *domain.UserProfile
}

// Subject converts the caller for policy checks.
func (c Caller) Subject() policy.Subject {
	return policy.SubjectFor(c.User, c.Profile)
}

// OrganisationID is the active profile's organisation, 0 without one.
func (c Caller) OrganisationID() int64 {
	if c.Profile == nil {
		return 0
	}
	return c.Profile.OrgID()
}

// Actor is the name recorded on events and audit entries.
func (c Caller) Actor() string {
	if name := c.User.FullName(); name != "" {
		return name
	}
	return c.User.Username
}

// requireOrganisation fails for callers without an organisation, such as the
// seeded superuser profile.
func (c Caller) requireOrganisation() (int64, error) {
	if c.Profile == nil {
		return 0, apperrors.Wrap(apperrors.ErrNoProfile, apperrors.CodeNoActiveProfile, "no active profile", http.StatusForbidden)
	}
	orgID := c.OrganisationID()
	if orgID == 0 {
		return 0, apperrors.Forbidden(apperrors.CodeNoActiveProfile, "the active profile has no organisation")
	}
	return orgID, nil
}

func isNotFound(err error) bool {
	appErr, ok := apperrors.IsAppError(err)
	return ok && appErr.HTTPStatus == http.StatusNotFound
}

// publish dispatches an event. Handler failures are logged by the dispatcher
// and never fail the committed request.
func publish(ctx context.Context, pub domain.EventPublisher, eventType domain.EventType, aggregateType string, aggregateID int64, actor string, payload any) {
	if pub == nil {
		return
	}
	event, err := domain.NewEvent(eventType, aggregateType, aggregateID, actor, payload)
	if err != nil {
		logger.Error("build domain event", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}
	if err := pub.Dispatch(ctx, event); err != nil {
		logger.Warn("domain event handlers failed",
			zap.String("event_type", string(eventType)),
			zap.String("aggregate_id", fmt.Sprintf("%d", aggregateID)),
			zap.Error(err),
		)
	}
}
