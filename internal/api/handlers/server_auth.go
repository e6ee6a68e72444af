package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/session"
	"webcaf.gov.uk/webcaf/internal/twofactor"
)

// otpField is the passcode input on the verification page.
const otpField = "otp_token"

// Index handles GET /.
func (s *Server) Index(c *gin.Context) {
	s.render(c, http.StatusOK, "index.html", gin.H{"StartURL": s.loginPath()})
}

// SessionExpired handles GET /session-expired/.
func (s *Server) SessionExpired(c *gin.Context) {
	s.render(c, http.StatusOK, "session_expired.html", gin.H{"StartURL": s.loginPath()})
}

func (s *Server) loginPath() string {
	if s.auth.SSODisabled() {
		return s.auth.LoginURL
	}
	return middleware.PathOIDCInit
}

// LoginPage handles GET on the local login URL.
func (s *Server) LoginPage(c *gin.Context) {
	if session.FromContext(c).Authenticated() {
		seeOther(c, middleware.PathMyAccount)
		return
	}
	s.render(c, http.StatusOK, "login.html", nil)
}

// Login handles POST on the local login URL.
func (s *Server) Login(c *gin.Context) {
	var form service.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid login form"))
		return
	}
	user, err := s.signIn.LocalLogin(c.Request.Context(), form)
	if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeInvalidCredentials {
		err = apperrors.Validation(apperrors.FieldError{Field: "username", Code: appErr.Code, Message: appErr.Message})
	}
	if err != nil {
		if s.renderForm(c, "login.html", gin.H{"Username": form.Username}, err) {
			return
		}
		fail(c, err)
		return
	}
	sess := session.FromContext(c)
	sess.Login(user.ID, user.IsStaff)
	s.redirectAfterSignIn(c, sess)
}

// OIDCAuthenticate handles GET /oidc/authenticate/.
func (s *Server) OIDCAuthenticate(c *gin.Context) {
	if s.oidc == nil {
		fail(c, apperrors.NotFound(apperrors.CodePageNotFound, "single sign-on is disabled"))
		return
	}
	sess := session.FromContext(c)
	if next := c.Query("next"); safeNext(next) {
		sess.Data.LoginNext = next
	}
	sess.Data.OIDCState = rand.Text()
	sess.Data.OIDCNonce = rand.Text()
	sess.Changed()
	c.Redirect(http.StatusFound, s.oidc.AuthCodeURL(sess.Data.OIDCState, sess.Data.OIDCNonce))
}

// OIDCCallback handles GET /oidc/callback/.
func (s *Server) OIDCCallback(c *gin.Context) {
	if s.oidc == nil {
		fail(c, apperrors.NotFound(apperrors.CodePageNotFound, "single sign-on is disabled"))
		return
	}
	ctx := c.Request.Context()
	sess := session.FromContext(c)
	state, nonce := sess.Data.OIDCState, sess.Data.OIDCNonce
	sess.Data.OIDCState, sess.Data.OIDCNonce = "", ""
	sess.Changed()

	if reason := c.Query("error"); reason != "" {
		s.metrics.Login(service.MethodOIDC, false)
		fail(c, apperrors.New(apperrors.CodeAuthFailed, "identity provider returned "+reason, http.StatusUnauthorized))
		return
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(c.Query("state")), []byte(state)) != 1 {
		s.metrics.Login(service.MethodOIDC, false)
		fail(c, apperrors.New(apperrors.CodeStateMismatch, "state does not match the session", http.StatusBadRequest))
		return
	}

	result, err := s.oidc.Exchange(ctx, c.Query("code"), nonce)
	if err != nil {
		s.metrics.Login(service.MethodOIDC, false)
		fail(c, err)
		return
	}
	user, err := s.signIn.SignInOIDC(ctx, result.Claims)
	if err != nil {
		fail(c, err)
		return
	}
	sess.Login(user.ID, user.IsStaff)
	sess.Data.OIDCIDToken = result.RawIDToken
	s.redirectAfterSignIn(c, sess)
}

func (s *Server) redirectAfterSignIn(c *gin.Context, sess *session.Session) {
	if s.auth.Enabled2FA && !sess.Data.IsStaff && !sess.Data.Verified {
		seeOther(c, middleware.PathVerify2FA)
		return
	}
	seeOther(c, takeNext(sess))
}

func takeNext(sess *session.Session) string {
	next := sess.Data.LoginNext
	if next != "" {
		sess.Data.LoginNext = ""
		sess.Changed()
	}
	return nextOrAccount(next)
}

// Logout handles /logout/ and /oidc/logout/. With SSO on, the browser is sent
// to the provider's end-session endpoint when an ID token is held.
func (s *Server) Logout(c *gin.Context) {
	sess := session.FromContext(c)
	idToken, userID := sess.Data.OIDCIDToken, sess.Data.UserID
	sess.Destroy()

	target := s.auth.LogoutRedirectURL
	if target == "" {
		target = middleware.PathIndex
	}
	if !s.auth.SSODisabled() && s.oidc != nil && idToken != "" {
		u, err := s.oidc.LogoutURL(idToken, target)
		if err != nil {
			logger.Warn("build provider logout url failed", zap.Error(err))
		} else {
			target = u
		}
	}
	if userID != 0 {
		logger.Info("user signed out", zap.Int64("user_id", userID))
	}
	c.Redirect(http.StatusFound, target)
}

// VerifyPage handles GET /verify-2fa-token/ and mails a fresh passcode. A
// code already sent within the resend cooldown is not sent again.
func (s *Server) VerifyPage(c *gin.Context) {
	sess := session.FromContext(c)
	if !s.needsSecondFactor(sess) {
		seeOther(c, takeNext(sess))
		return
	}
	ctx := c.Request.Context()
	user, err := s.users.GetByID(ctx, sess.Data.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.passcodes.Send(ctx, user); err != nil && !errors.Is(err, twofactor.ErrResendTooSoon) {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "verify_2fa.html", gin.H{"Email": logger.MaskEmail(user.Email)})
}

// Verify handles POST /verify-2fa-token/.
func (s *Server) Verify(c *gin.Context) {
	sess := session.FromContext(c)
	if !s.needsSecondFactor(sess) {
		seeOther(c, takeNext(sess))
		return
	}
	ctx := c.Request.Context()
	user, err := s.users.GetByID(ctx, sess.Data.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.passcodes.Verify(ctx, user, c.PostForm(otpField)); err != nil {
		var fe apperrors.FieldError
		switch {
		case errors.Is(err, twofactor.ErrCodeRejected):
			fe = apperrors.FieldError{Field: otpField, Code: apperrors.CodeOTPInvalid,
				Message: "Enter the code we sent to your email address."}
		case errors.Is(err, twofactor.ErrNewCodeRequired):
			fe = apperrors.FieldError{Field: otpField, Code: apperrors.CodeOTPExhausted,
				Message: "You entered too many incorrect codes. Send a new code and try again."}
		default:
			fail(c, err)
			return
		}
		logger.Info("passcode rejected", zap.Int64("user_id", user.ID), zap.String("reason", fe.Code))
		s.renderForm(c, "verify_2fa.html", gin.H{"Email": logger.MaskEmail(user.Email)}, apperrors.Validation(fe))
		return
	}
	sess.Data.Verified = true
	sess.Changed()
	seeOther(c, takeNext(sess))
}

func (s *Server) needsSecondFactor(sess *session.Session) bool {
	return s.auth.Enabled2FA && s.passcodes != nil && sess.Authenticated() && !sess.Data.Verified && !sess.Data.IsStaff
}
