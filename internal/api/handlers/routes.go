package handlers

import (
	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/pkg/ratelimit"
	"webcaf.gov.uk/webcaf/internal/policy"
)

// Health paths, served outside the session middleware.
const (
	PathLiveness  = "/health/live"
	PathReadiness = "/health/ready"
)

// RegisterHealth adds the health endpoints.
func RegisterHealth(r gin.IRoutes, s *Server) {
	r.GET(PathLiveness, s.GetLiveness)
	r.GET(PathReadiness, s.GetReadiness)
}

// RegisterRoutes adds every page. The caller installs the session, gate and
// attribution middleware on r first; role checks are added here per route.
func RegisterRoutes(r gin.IRoutes, s *Server) {
	need := func(action policy.Action) gin.HandlerFunc {
		return middleware.RequireAction(s.policy, action)
	}
	limited := func(l *ratelimit.Limiter, key middleware.KeyFunc, h gin.HandlerFunc) []gin.HandlerFunc {
		if l == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{middleware.RateLimit(l, key, s.metrics), h}
	}

	r.GET(middleware.PathIndex, s.Index)
	r.GET(middleware.PathSessionExpired, s.SessionExpired)
	if s.auth.SSODisabled() {
		r.GET(s.auth.LoginURL, s.LoginPage)
		r.POST(s.auth.LoginURL, limited(s.loginLimiter, middleware.ByClientIP, s.Login)...)
	} else {
		r.GET(middleware.PathOIDCInit, s.OIDCAuthenticate)
		r.GET(middleware.PathOIDCCallback, limited(s.loginLimiter, middleware.ByClientIP, s.OIDCCallback)...)
		r.GET(middleware.PathOIDCLogout, s.Logout)
		r.POST(middleware.PathOIDCLogout, s.Logout)
	}
	r.GET(middleware.PathLogout, s.Logout)
	r.POST(middleware.PathLogout, s.Logout)
	r.GET(middleware.PathVerify2FA, limited(s.verifyLimiter, middleware.BySessionUser, s.VerifyPage)...)
	r.POST(middleware.PathVerify2FA, limited(s.verifyLimiter, middleware.BySessionUser, s.Verify)...)

	r.GET(middleware.PathMyAccount, s.MyAccount)
	r.GET(PathChangeOrganisation, s.ChangeOrganisationPage)
	r.POST(PathChangeOrganisation, s.ChangeOrganisation)
	r.GET(PathNotifications, s.Notifications)
	r.POST(PathNotifications+":id/read/", s.MarkNotificationRead)

	r.GET(PathMyOrganisation, s.MyOrganisation)
	r.GET(PathEditOrgType, need(policy.ActionEditOrganisation), s.EditOrganisationTypePage)
	r.POST(PathEditOrgType, need(policy.ActionEditOrganisation), s.EditOrganisationType)
	r.GET(PathEditOrgContact, need(policy.ActionEditOrganisation), s.EditOrganisationContactPage)
	r.POST(PathEditOrgContact, need(policy.ActionEditOrganisation), s.EditOrganisationContact)

	r.GET(PathViewSystems, need(policy.ActionViewSystems), s.ViewSystems)
	r.GET(PathCreateSystem, need(policy.ActionManageSystems), s.CreateSystemPage)
	r.POST(PathCreateSystem, need(policy.ActionManageSystems), s.CreateSystem)
	r.GET("/edit-system/:system_id/", need(policy.ActionManageSystems), s.EditSystemPage)
	r.POST("/edit-system/:system_id/", need(policy.ActionManageSystems), s.EditSystem)
	r.POST(PathCreateOrSkipSys, need(policy.ActionManageSystems), s.CreateOrSkipSystem)

	r.GET(PathViewProfiles, need(policy.ActionViewUsers), s.ViewProfiles)
	r.GET(PathCreateProfile, need(policy.ActionManageUsers), s.CreateProfilePage)
	r.POST(PathCreateProfile, need(policy.ActionManageUsers), s.CreateProfile)
	r.GET("/edit-profile/:profile_id/", need(policy.ActionManageUsers), s.EditProfilePage)
	r.POST("/edit-profile/:profile_id/", need(policy.ActionManageUsers), s.EditProfile)
	r.GET("/remove-profile/:profile_id/", need(policy.ActionDeleteUser), s.RemoveProfilePage)
	r.POST("/remove-profile/:profile_id/", need(policy.ActionDeleteUser), s.RemoveProfile)
	r.POST(PathCreateOrSkipUser, need(policy.ActionViewUsers), s.CreateOrSkipProfile)

	edit := need(policy.ActionEditAssessment)
	r.GET(PathDraftAssessments, edit, s.DraftAssessments)
	r.GET(PathCreateDraft, edit, s.CreateDraft)
	r.GET("/edit-draft-assessment/:assessment_id/", edit, s.EditDraft)
	for _, base := range []string{PathCreateDraft, "/edit-draft-assessment/:assessment_id/"} {
		r.GET(base+stepChooseSystem, edit, s.ChooseSystemPage)
		r.POST(base+stepChooseSystem, edit, s.ChooseSystem)
		r.GET(base+stepChooseProfile, edit, s.ChooseProfilePage)
		r.POST(base+stepChooseProfile, edit, s.ChooseProfile)
		r.GET(base+stepChooseReviewType, edit, s.ChooseReviewTypePage)
		r.POST(base+stepChooseReviewType, edit, s.ChooseReviewType)
	}
	outcome := "/edit-draft-assessment/:assessment_id/objective/:objective/outcome/:outcome/"
	r.GET(outcome, edit, s.Outcome)
	r.POST(outcome, edit, s.FillOutcome)
	r.POST(outcome+"confirm/", edit, s.ConfirmOutcome)

	r.POST("/edit-draft-assessment/:assessment_id/submit/", need(policy.ActionSubmitAssessment), s.SubmitAssessment)
	r.POST("/complete-assessment/:assessment_id/", need(policy.ActionCompleteAssessment), s.CompleteAssessment)
	r.GET("/download-submitted-assessment/:assessment_id", need(policy.ActionExportAssessment), s.DownloadAssessment)
}
