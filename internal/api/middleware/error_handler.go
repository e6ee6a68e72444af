// Package middleware provides the gin middleware in front of WebCAF's pages:
// request ids, the access gate, CSRF checks, security headers, metrics and
// error pages.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Error page templates. The router must load templates with these names.
const (
	TemplateError     = "error.html"
	TemplateNoProfile = "no_profile.html"
)

// authFailureCodes send the browser back to the start page instead of an
// error page.
var authFailureCodes = map[string]bool{
	apperrors.CodeAuthFailed:     true,
	apperrors.CodeClaimsRejected: true,
	apperrors.CodeStateMismatch:  true,
	apperrors.CodeTokenExchange:  true,
}

// ErrorHandler renders errors added with c.Error. Handlers that already wrote
// a response are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		if errors.Is(err, apperrors.ErrNoProfile) {
			c.HTML(http.StatusForbidden, TemplateNoProfile, gin.H{"RequestID": rid})
			return
		}

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			if authFailureCodes[appErr.Code] {
				logger.Warn("sign-in failed",
					zap.String("code", appErr.Code),
					zap.String("request_id", rid),
					zap.Error(err),
				)
				c.Redirect(http.StatusFound, PathIndex)
				return
			}
			status := appErr.HTTPStatus
			if status < http.StatusBadRequest {
				status = http.StatusBadRequest
			}
			logger.Warn("request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", status),
				zap.String("request_id", rid),
			)
			c.HTML(status, TemplateError, gin.H{
				"Status":    status,
				"Title":     titleFor(status),
				"Code":      appErr.Code,
				"Message":   appErr.Message,
				"RequestID": rid,
			})
			return
		}

		logger.Error("unhandled request error", zap.String("request_id", rid), zap.Error(err))
		c.HTML(http.StatusInternalServerError, TemplateError, gin.H{
			"Status":    http.StatusInternalServerError,
			"Title":     titleFor(http.StatusInternalServerError),
			"Code":      apperrors.CodeInternal,
			"RequestID": rid,
		})
	}
}

func titleFor(status int) string {
	switch status {
	case http.StatusForbidden:
		return "You do not have permission to view this page"
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusBadRequest:
		return "There is a problem with your request"
	case http.StatusTooManyRequests:
		return "Too many attempts"
	default:
		return "Sorry, there is a problem with the service"
	}
}
