package middleware

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantBody     string
		wantLocation string
	}{
		{"not found", apperrors.NotFound(apperrors.CodeSystemNotFound, "system not found"), http.StatusNotFound, "code=SYSTEM_NOT_FOUND system not found", ""},
		{"permission", apperrors.ErrPermissionDenied("nope"), http.StatusForbidden, "status=403", ""},
		{"no profile", fmt.Errorf("account: %w", apperrors.ErrNoProfile), http.StatusForbidden, "no profile", ""},
		{"auth failure redirects", apperrors.New(apperrors.CodeStateMismatch, "state", http.StatusBadRequest), http.StatusFound, "", PathIndex},
		{"generic", fmt.Errorf("boom"), http.StatusInternalServerError, "code=INTERNAL_ERROR", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newEngine(t, nil)
			r.GET("/fail", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := do(r, http.MethodGet, "/fail", nil, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestErrorHandler_NoErrors(t *testing.T) {
	t.Parallel()
	r, _ := newEngine(t, nil)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := do(r, http.MethodGet, "/ok", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
