package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/session"
)

// MyAccount handles GET /my-account/. Visiting the dashboard abandons any
// wizard in progress.
func (s *Server) MyAccount(c *gin.Context) {
	session.FromContext(c).ResetDraft()

	caller := callerOf(c)
	summary, err := s.accounts.Summary(c.Request.Context(), caller)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "my_account.html", gin.H{
		"Summary":        summary,
		"CanViewSystems": s.policy.CanViewSystems(caller.Subject()),
		"CanViewUsers":   s.policy.CanViewUsers(caller.Subject()),
		"CanSubmit":      s.policy.Allowed(caller.Subject(), policy.ActionSubmitAssessment, policy.Resource{}),
		"CanComplete":    s.policy.Allowed(caller.Subject(), policy.ActionCompleteAssessment, policy.Resource{}),
	})
}

// DraftAssessments handles GET /draft-assessments/.
func (s *Server) DraftAssessments(c *gin.Context) {
	drafts, err := s.assessments.Drafts(c.Request.Context(), callerOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "draft_assessments.html", gin.H{"Drafts": drafts})
}

// ChangeOrganisationPage handles GET /change-organisation/.
func (s *Server) ChangeOrganisationPage(c *gin.Context) {
	caller := callerOf(c)
	profiles, err := s.accounts.Profiles(c.Request.Context(), caller.User.ID)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "change_organisation.html", gin.H{"Profiles": profiles})
}

// ChangeOrganisation handles POST /change-organisation/.
func (s *Server) ChangeOrganisation(c *gin.Context) {
	caller := callerOf(c)
	profile, err := s.accounts.ChangeOrganisation(c.Request.Context(), caller.User.ID, formID(c, "profile_id"))
	if err != nil {
		fail(c, err)
		return
	}
	sess := session.FromContext(c)
	sess.Data.CurrentProfileID = profile.ID
	sess.ResetDraft()
	sess.Changed()
	logger.Info("active organisation changed",
		zap.Int64("user_id", caller.User.ID),
		zap.Int64("profile_id", profile.ID),
		zap.Int64("organisation_id", profile.OrgID()),
	)
	seeOther(c, middleware.PathMyAccount)
}

// Notifications handles GET /notifications/.
func (s *Server) Notifications(c *gin.Context) {
	caller := callerOf(c)
	ctx := c.Request.Context()
	items, err := s.inbox.ListForRecipient(ctx, caller.User.ID, 50)
	if err != nil {
		fail(c, err)
		return
	}
	unread, err := s.inbox.CountUnread(ctx, caller.User.ID)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "notifications.html", gin.H{"Items": items, "Unread": unread})
}

// MarkNotificationRead handles POST /notifications/:id/read/.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	caller := callerOf(c)
	if err := s.inbox.MarkRead(c.Request.Context(), c.Param("id"), caller.User.ID); err != nil {
		fail(c, err)
		return
	}
	seeOther(c, PathNotifications)
}

// notificationLink sends the reader to the notification's resource.
func notificationLink(n domain.Notification) string {
	if n.ResourceType == "assessment" && n.ResourceID != "" {
		return "/download-submitted-assessment/" + n.ResourceID
	}
	return ""
}
