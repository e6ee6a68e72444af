package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/session"
)

// CSRF form field and header names.
const (
	CSRFField  = "csrfmiddlewaretoken"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF rejects unsafe requests whose token does not match the session's.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		sess := session.FromContext(c)
		sent := c.GetHeader(CSRFHeader)
		if sent == "" {
			sent = c.PostForm(CSRFField)
		}
		want := sess.Data.CSRFToken
		if want == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(want)) != 1 {
			logger.Warn("csrf token rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Bool("session_token", want != ""),
				zap.String("request_id", GetRequestID(c.Request.Context())),
			)
			_ = c.Error(apperrors.Forbidden(apperrors.CodeCSRFTokenInvalid, "The form has expired. Go back, refresh the page and try again."))
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecureHeaders sets the browser hardening headers. hsts adds
// Strict-Transport-Security and should only be on behind TLS.
func SecureHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; frame-ancestors 'none'; form-action 'self'")
		if hsts {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// NoStore stops caching of pages that show assessment data.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// Metrics records request counts and latency by route pattern. Unmatched
// routes are grouped under "unmatched".
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AccessLog writes one line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", GetRequestID(c.Request.Context())),
		)
	}
}
