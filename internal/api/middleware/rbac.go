package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/session"
)

const callerKey = "webcaf_caller"

// UserLookup loads the signed-in user.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// ProfileResolver picks the active profile for a user.
type ProfileResolver interface {
	ActiveProfile(ctx context.Context, userID, currentID int64) (*domain.UserProfile, int, error)
}

// SetCaller stores the caller on the request.
func SetCaller(c *gin.Context, caller service.Caller) {
	c.Set(callerKey, caller)
}

// CallerFrom returns the caller set by Attribution.
func CallerFrom(c *gin.Context) (service.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return service.Caller{}, false
	}
	caller, ok := v.(service.Caller)
	return caller, ok
}

// Attribution loads the session's user and active profile. The first profile
// is chosen when the session has none and the choice is written back. A user
// without any profile gets a caller with a nil profile; pages that need one
// fail with ErrNoProfile.
func Attribution(users UserLookup, profiles ProfileResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c)
		if !sess.Authenticated() {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		user, err := users.GetByID(ctx, sess.Data.UserID)
		if err != nil || !user.IsActive {
			logger.Warn("session user no longer valid",
				zap.Int64("user_id", sess.Data.UserID),
				zap.Error(err),
			)
			sess.Destroy()
			c.Redirect(http.StatusFound, PathIndex)
			c.Abort()
			return
		}

		caller := service.Caller{User: *user}
		profile, count, err := profiles.ActiveProfile(ctx, user.ID, sess.Data.CurrentProfileID)
		switch {
		case err == nil:
			caller.Profile = profile
			if sess.Data.CurrentProfileID != profile.ID || sess.Data.ProfileCount != count {
				sess.Data.CurrentProfileID = profile.ID
				sess.Data.ProfileCount = count
				sess.Changed()
			}
		case errors.Is(err, apperrors.ErrNoProfile):
		default:
			_ = c.Error(err)
			c.Abort()
			return
		}
		SetCaller(c, caller)
		c.Next()
	}
}

// RequireAction refuses callers whose role is outside the action's declared
// set. Organisation ownership is checked later by the service.
func RequireAction(p *policy.Policy, action policy.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok || caller.Profile == nil {
			_ = c.Error(apperrors.Wrap(apperrors.ErrNoProfile, apperrors.CodeNoActiveProfile, "no active profile", http.StatusForbidden))
			c.Abort()
			return
		}
		if err := p.Authorize(caller.Subject(), action, policy.Resource{}); err != nil {
			logger.Info("role check refused",
				zap.String("action", string(action)),
				zap.String("role", string(caller.Profile.Role)),
				zap.Int64("user_id", caller.User.ID),
			)
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}
