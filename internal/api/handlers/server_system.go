package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/service"
)

// Two-step form actions shared by the system and profile forms.
const (
	actionField   = "action"
	actionChange  = "change"
	actionConfirm = "confirm"
)

func systemFormData(form service.SystemForm, action string) gin.H {
	return gin.H{
		"Form":              form,
		"Action":            action,
		"SystemTypes":       domain.SystemTypes,
		"OwnerTypes":        domain.OwnerTypes,
		"HostingTypes":      domain.HostingTypes,
		"AssessedChoices":   domain.AssessedChoices,
		"CorporateServices": domain.CorporateServices,
	}
}

// ViewSystems handles GET /view-systems/.
func (s *Server) ViewSystems(c *gin.Context) {
	systems, err := s.systems.List(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "systems.html", gin.H{"Systems": systems})
}

// CreateSystemPage handles GET /create-new-system/.
func (s *Server) CreateSystemPage(c *gin.Context) {
	s.render(c, http.StatusOK, "system.html", systemFormData(service.SystemForm{}, PathCreateSystem))
}

// CreateSystem handles POST /create-new-system/.
func (s *Server) CreateSystem(c *gin.Context) {
	s.saveSystem(c, 0, PathCreateSystem)
}

// EditSystemPage handles GET /edit-system/:system_id/.
func (s *Server) EditSystemPage(c *gin.Context) {
	id, err := paramID(c, "system_id")
	if err != nil {
		fail(c, err)
		return
	}
	sys, err := s.systems.Get(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "system.html", systemFormData(service.FromSystem(*sys), editSystemPath(id)))
}

// EditSystem handles POST /edit-system/:system_id/.
func (s *Server) EditSystem(c *gin.Context) {
	id, err := paramID(c, "system_id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.systems.Get(c.Request.Context(), callerOf(c), id); err != nil {
		fail(c, err)
		return
	}
	s.saveSystem(c, id, editSystemPath(id))
}

// saveSystem runs the change/confirm steps. A valid form without an action
// shows the confirm page; "change" goes back to the form; "confirm" saves.
func (s *Server) saveSystem(c *gin.Context, id int64, formAction string) {
	var form service.SystemForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid system form"))
		return
	}
	ctx := c.Request.Context()
	caller := callerOf(c)

	switch c.PostForm(actionField) {
	case actionChange:
		s.render(c, http.StatusOK, "system.html", systemFormData(form, formAction))
	case actionConfirm:
		if _, err := s.systems.Save(ctx, caller, id, form); err != nil {
			if s.renderForm(c, "system.html", systemFormData(form, formAction), err) {
				return
			}
			fail(c, err)
			return
		}
		seeOther(c, PathViewSystems)
	default:
		checked, err := s.systems.Validate(ctx, caller, id, form)
		if err != nil {
			if s.renderForm(c, "system.html", systemFormData(checked, formAction), err) {
				return
			}
			fail(c, err)
			return
		}
		s.render(c, http.StatusOK, "system_confirm.html", systemFormData(checked, formAction))
	}
}

// CreateOrSkipSystem handles POST /create-or-skip-new-system/. A missing
// choice returns to the systems list.
func (s *Server) CreateOrSkipSystem(c *gin.Context) {
	switch c.PostForm(actionField) {
	case actionConfirm:
		seeOther(c, PathCreateSystem)
	case "":
		seeOther(c, PathViewSystems)
	default:
		seeOther(c, middleware.PathMyAccount)
	}
}
