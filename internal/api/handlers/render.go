package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var london = func() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}()

var templateFuncs = template.FuncMap{
	"choiceLabel": func(choices []domain.Choice, id string) string {
		for _, c := range choices {
			if c.ID == id {
				return c.Label
			}
		}
		return id
	},
	"contains": func(list []string, v string) bool { return slices.Contains(list, v) },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(london).Format("2 January 2006")
	},
	"dateTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(london).Format(domain.DueDateLayout)
	},
	"orgTypeLabel":     domain.OrganisationTypeLabel,
	"notificationLink": notificationLink,
	"editSystemPath":   editSystemPath,
	"editProfilePath":  editProfilePath,
	"removeProfile":    removeProfilePath,
	"editDraftPath":    editDraftPath,
	"exportPath":       exportPath,
}

// Templates parses the embedded page templates. Each page is registered under
// its file name, e.g. "my_account.html".
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is Templates for program start-up.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// render writes a page with the fields every layout needs.
func (s *Server) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	sess := session.FromContext(c)
	data["CSRFField"] = middleware.CSRFField
	data["CSRFToken"] = sess.CSRFToken()
	data["SignedIn"] = sess.Authenticated()
	data["ProfileCount"] = sess.Data.ProfileCount
	data["RequestID"] = middleware.GetRequestID(c.Request.Context())
	if caller, ok := middleware.CallerFrom(c); ok {
		data["Caller"] = caller
	}
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = map[string]string{}
	}
	c.HTML(status, name, data)
}

// renderForm re-renders a form page with the field errors from err. It
// reports false when err is not a validation error.
func (s *Server) renderForm(c *gin.Context, name string, data gin.H, err error) bool {
	v, ok := apperrors.IsValidation(err)
	if !ok {
		return false
	}
	if data == nil {
		data = gin.H{}
	}
	errs := make(map[string]string, len(v.FieldErrors))
	for _, fe := range v.FieldErrors {
		if _, seen := errs[fe.Field]; !seen {
			errs[fe.Field] = fe.Message
		}
	}
	data["Errors"] = errs
	data["ErrorSummary"] = v.FieldErrors
	s.render(c, http.StatusOK, name, data)
	return true
}

// fail hands err to middleware.ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func callerOf(c *gin.Context) service.Caller {
	caller, _ := middleware.CallerFrom(c)
	return caller
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound(apperrors.CodePageNotFound, "page not found")
	}
	return id, nil
}

func formID(c *gin.Context, name string) int64 {
	id, err := strconv.ParseInt(c.PostForm(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// seeOther redirects after a successful POST.
func seeOther(c *gin.Context, location string) {
	c.Redirect(http.StatusFound, location)
}
