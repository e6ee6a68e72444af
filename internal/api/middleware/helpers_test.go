package middleware

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

const testCookie = "webcaf_session"

var testTemplates = template.Must(template.New("pages").Parse(
	`{{define "error.html"}}status={{.Status}} code={{.Code}} {{.Message}}{{end}}` +
		`{{define "no_profile.html"}}no profile{{end}}`))

// newEngine returns an engine with the session middleware and error pages.
// When data is non-nil it is stored under a session id and the matching
// cookie is returned.
func newEngine(t *testing.T, data *session.Data) (*gin.Engine, *http.Cookie) {
	t.Helper()
	store := session.NewMemoryStore()
	mgr := session.NewManager(store, config.SessionConfig{Cookie: testCookie, Lifetime: time.Hour, IdleTimeout: time.Hour})

	r := gin.New()
	r.SetHTMLTemplate(testTemplates)
	r.Use(RequestID(), mgr.Middleware(), ErrorHandler())

	if data == nil {
		return r, nil
	}
	now := time.Now()
	data.CreatedAt, data.LastSeen = now, now
	require.NoError(t, store.Save(context.Background(), "sid-1", data, now.Add(time.Hour)))
	return r, &http.Cookie{Name: testCookie, Value: "sid-1"}
}

func do(r *gin.Engine, method, target string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
