package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/service"
)

// MyOrganisation handles GET /my-organisation/.
func (s *Server) MyOrganisation(c *gin.Context) {
	org, err := s.organisations.Mine(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "my_organisation.html", gin.H{"Organisation": org})
}

// EditOrganisationTypePage handles GET /edit-my-organisation/type/.
func (s *Server) EditOrganisationTypePage(c *gin.Context) {
	org, err := s.organisations.Mine(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "organisation_type.html", gin.H{
		"Organisation": org,
		"Types":        domain.OrganisationTypes,
		"Selected":     org.OrganisationType,
	})
}

// EditOrganisationType handles POST /edit-my-organisation/type/.
func (s *Server) EditOrganisationType(c *gin.Context) {
	var form service.OrganisationTypeForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid organisation form"))
		return
	}
	if _, err := s.organisations.UpdateType(c.Request.Context(), callerOf(c), form); err != nil {
		if s.renderForm(c, "organisation_type.html", gin.H{"Types": domain.OrganisationTypes, "Selected": form.OrganisationType}, err) {
			return
		}
		fail(c, err)
		return
	}
	seeOther(c, PathEditOrgContact)
}

// EditOrganisationContactPage handles GET /edit-my-organisation/contact/.
func (s *Server) EditOrganisationContactPage(c *gin.Context) {
	org, err := s.organisations.Mine(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "organisation_contact.html", gin.H{"Organisation": org, "Form": org.Contact()})
}

// EditOrganisationContact handles POST /edit-my-organisation/contact/.
func (s *Server) EditOrganisationContact(c *gin.Context) {
	var form service.ContactForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid contact form"))
		return
	}
	if _, err := s.organisations.UpdateContact(c.Request.Context(), callerOf(c), form); err != nil {
		if s.renderForm(c, "organisation_contact.html", gin.H{"Form": form}, err) {
			return
		}
		fail(c, err)
		return
	}
	seeOther(c, PathMyOrganisation)
}
