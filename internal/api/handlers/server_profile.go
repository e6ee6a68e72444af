package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/service"
)

type profileRow struct {
	domain.UserProfile
	CanDelete bool
}

func profileFormData(form service.ProfileForm, action string, editing bool) gin.H {
	return gin.H{
		"Form":    form,
		"Action":  action,
		"Editing": editing,
		"Roles":   domain.AssignableRoles(),
	}
}

// ViewProfiles handles GET /view-profiles/.
func (s *Server) ViewProfiles(c *gin.Context) {
	ctx := c.Request.Context()
	caller := callerOf(c)
	profiles, err := s.profiles.List(ctx, caller)
	if err != nil {
		fail(c, err)
		return
	}
	rows := make([]profileRow, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, profileRow{UserProfile: p, CanDelete: s.profiles.CanDelete(ctx, caller, p)})
	}
	s.render(c, http.StatusOK, "users.html", gin.H{"Profiles": rows})
}

// CreateProfilePage handles GET /create-new-profile/.
func (s *Server) CreateProfilePage(c *gin.Context) {
	s.render(c, http.StatusOK, "user.html", profileFormData(service.ProfileForm{}, PathCreateProfile, false))
}

// CreateProfile handles POST /create-new-profile/ with the same
// change/confirm steps as the system form.
func (s *Server) CreateProfile(c *gin.Context) {
	var form service.ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid profile form"))
		return
	}
	caller := callerOf(c)

	switch c.PostForm(actionField) {
	case actionChange:
		s.render(c, http.StatusOK, "user.html", profileFormData(form, PathCreateProfile, false))
	case actionConfirm:
		if _, err := s.profiles.Create(c.Request.Context(), caller, form); err != nil {
			if s.renderForm(c, "user.html", profileFormData(form, PathCreateProfile, false), err) {
				return
			}
			fail(c, err)
			return
		}
		seeOther(c, PathViewProfiles)
	default:
		checked, err := s.profiles.ValidateForm(caller, form)
		if err != nil {
			if s.renderForm(c, "user.html", profileFormData(checked, PathCreateProfile, false), err) {
				return
			}
			fail(c, err)
			return
		}
		data := profileFormData(checked, PathCreateProfile, false)
		data["RoleLabel"] = domain.Role(checked.Role).Label()
		s.render(c, http.StatusOK, "user_confirm.html", data)
	}
}

// EditProfilePage handles GET /edit-profile/:profile_id/.
func (s *Server) EditProfilePage(c *gin.Context) {
	id, err := paramID(c, "profile_id")
	if err != nil {
		fail(c, err)
		return
	}
	profile, err := s.profiles.Get(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	form := service.ProfileForm{
		Email:     profile.User.Email,
		FirstName: profile.User.FirstName,
		LastName:  profile.User.LastName,
		Role:      string(profile.Role),
	}
	s.render(c, http.StatusOK, "user.html", profileFormData(form, editProfilePath(id), true))
}

// EditProfile handles POST /edit-profile/:profile_id/.
func (s *Server) EditProfile(c *gin.Context) {
	id, err := paramID(c, "profile_id")
	if err != nil {
		fail(c, err)
		return
	}
	var form service.ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid profile form"))
		return
	}
	if _, err := s.profiles.Update(c.Request.Context(), callerOf(c), id, form); err != nil {
		if s.renderForm(c, "user.html", profileFormData(form, editProfilePath(id), true), err) {
			return
		}
		fail(c, err)
		return
	}
	seeOther(c, PathViewProfiles)
}

// RemoveProfilePage handles GET /remove-profile/:profile_id/.
func (s *Server) RemoveProfilePage(c *gin.Context) {
	id, err := paramID(c, "profile_id")
	if err != nil {
		fail(c, err)
		return
	}
	profile, err := s.profiles.Get(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "delete_user.html", gin.H{"Target": profile})
}

// RemoveProfile handles POST /remove-profile/:profile_id/. Anything but an
// explicit confirm goes back to the list untouched.
func (s *Server) RemoveProfile(c *gin.Context) {
	id, err := paramID(c, "profile_id")
	if err != nil {
		fail(c, err)
		return
	}
	if c.PostForm(actionField) == actionConfirm {
		if err := s.profiles.Delete(c.Request.Context(), callerOf(c), id); err != nil {
			fail(c, err)
			return
		}
	}
	seeOther(c, PathViewProfiles)
}

// CreateOrSkipProfile handles POST /create-or-skip-new-profile/.
func (s *Server) CreateOrSkipProfile(c *gin.Context) {
	if c.PostForm("add_new_user") == "yes" {
		seeOther(c, PathCreateProfile)
		return
	}
	seeOther(c, middleware.PathMyAccount)
}
