package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/session"
)

// KeyFunc picks the rate limit bucket for a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests by client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// BySessionUser buckets requests by the signed-in user, falling back to the
// client address before sign-in.
func BySessionUser(c *gin.Context) string {
	if sess := session.FromContext(c); sess.Authenticated() {
		return "user:" + strconv.FormatInt(sess.Data.UserID, 10)
	}
	return ByClientIP(c)
}

// RateLimit refuses requests over l's budget with 429 and a Retry-After
// header. A store error lets the request through.
func RateLimit(l *ratelimit.Limiter, key KeyFunc, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := l.Allow(c.Request.Context(), key(c))
		if err != nil {
			logger.Error("rate limit check failed", zap.String("limiter", l.Name()), zap.Error(err))
			c.Next()
			return
		}
		if res.Allowed {
			c.Next()
			return
		}

		m.Throttled(l.Name())
		logger.Warn("request rate limited",
			zap.String("limiter", l.Name()),
			zap.String("path", c.FullPath()),
			zap.String("request_id", GetRequestID(c.Request.Context())),
		)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		_ = c.Error(apperrors.New(apperrors.CodeRateLimited,
			"You have made too many attempts. Wait a few minutes and try again.", http.StatusTooManyRequests))
		c.Abort()
	}
}
