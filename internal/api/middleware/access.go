package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/session"
)

// Paths the gate knows about.
const (
	PathIndex          = "/"
	PathOIDCInit       = "/oidc/authenticate/"
	PathOIDCCallback   = "/oidc/callback/"
	PathOIDCLogout     = "/oidc/logout/"
	PathVerify2FA      = "/verify-2fa-token/"
	PathSessionExpired = "/session-expired/"
	PathLogout         = "/logout/"
	PathMyAccount      = "/my-account/"
)

var exemptPrefixes = []string{
	PathOIDCInit,
	PathOIDCCallback,
	PathOIDCLogout,
	"/admin/",
	"/assets/",
	"/static/",
	"/media",
	"/public/",
	PathSessionExpired,
	PathLogout,
}

// Identity is the session's sign-in state as the gate sees it.
type Identity struct {
	Authenticated bool
	Verified      bool
	IsStaff       bool
}

// IdentityFrom reads the gate's view of a session.
func IdentityFrom(d session.Data) Identity {
	return Identity{Authenticated: d.UserID != 0, Verified: d.Verified, IsStaff: d.IsStaff}
}

// Decision is the gate's verdict. Redirect is set when Allow is false.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision { return Decision{Allow: true} }
func redirect(to string) Decision { return Decision{Redirect: to} }

// Gate decides whether a request may proceed given the caller's sign-in state.
type Gate struct {
	twoFactor bool
	loginURL  string
	exempt    []string
}

// NewGate builds a gate from the auth settings. With SSO disabled the
// sign-in redirect goes to LoginURL instead of the OIDC init endpoint.
func NewGate(cfg config.AuthConfig) *Gate {
	g := &Gate{twoFactor: cfg.Enabled2FA, loginURL: PathOIDCInit, exempt: exemptPrefixes}
	if cfg.LoginURL != "" {
		g.exempt = append(append([]string{}, exemptPrefixes...), cfg.LoginURL)
		if cfg.SSODisabled() {
			g.loginURL = cfg.LoginURL
		}
	}
	return g
}

// Exempt reports whether path skips the gate.
func (g *Gate) Exempt(path string) bool {
	if path == PathIndex {
		return true
	}
	for _, prefix := range g.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Decide is the access decision for one request.
func (g *Gate) Decide(method, path string, id Identity) Decision {
	if g.Exempt(path) {
		return allow()
	}
	if !id.Authenticated {
		if method == http.MethodPost && path == PathVerify2FA {
			return redirect(PathSessionExpired)
		}
		return redirect(g.loginURL)
	}
	if !g.twoFactor || id.Verified || id.IsStaff {
		return allow()
	}
	if path == PathVerify2FA {
		return allow()
	}
	return redirect(PathVerify2FA)
}

// Middleware applies Decide to every request. A GET that is sent to sign in
// remembers its path so the callback can return there.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c)
		path := c.Request.URL.Path
		d := g.Decide(c.Request.Method, path, IdentityFrom(sess.Data))
		if d.Allow {
			c.Next()
			return
		}
		if d.Redirect == g.loginURL && c.Request.Method == http.MethodGet {
			sess.Data.LoginNext = c.Request.URL.RequestURI()
			sess.Changed()
		}
		logger.Debug("access gate redirect",
			zap.String("path", path),
			zap.String("to", d.Redirect),
			zap.String("request_id", GetRequestID(c.Request.Context())),
		)
		c.Redirect(http.StatusFound, d.Redirect)
		c.Abort()
	}
}
