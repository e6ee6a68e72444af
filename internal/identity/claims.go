// Package identity adapts the external OpenID Connect provider to local users.
package identity

import (
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Claims is the merged ID token and userinfo claim set.
type Claims map[string]any

// String returns the claim as a trimmed string, or "" when absent or not a string.
func (c Claims) String(key string) string {
	v, _ := c[key].(string)
	return strings.TrimSpace(v)
}

// Merge copies other over c. Empty values in other do not overwrite.
func (c Claims) Merge(other Claims) Claims {
	out := make(Claims, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// identifierClaims is the lookup order for the local username.
var identifierClaims = []string{"email", "preferred_username", "upn", "sub"}

// Identifier returns the first non-empty of email, preferred_username, upn and sub.
// Email-shaped identifiers are lowercased so they match invited users.
func Identifier(c Claims) string {
	for _, key := range identifierClaims {
		if v := c.String(key); v != "" {
			return NormaliseIdentifier(v)
		}
	}
	return ""
}

// NormaliseIdentifier lowercases an email-shaped identifier. Opaque subjects
// are case-sensitive and left alone.
func NormaliseIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if strings.Contains(id, "@") {
		return strings.ToLower(id)
	}
	return id
}

// emailFor returns the email claim, or the identifier when it is an address.
func emailFor(c Claims, id string) string {
	if !strings.Contains(id, "@") {
		return ""
	}
	if email := c.String("email"); email != "" {
		return strings.ToLower(email)
	}
	return id
}

// CreateUser builds a new local user from claims.
func CreateUser(c Claims) domain.User {
	id := Identifier(c)
	u := domain.User{Username: id, IsActive: true, Email: emailFor(c, id)}
	u.FirstName = firstName(c)
	u.LastName = c.String("family_name")
	return u
}

// UpdateUser re-syncs u from claims, keeping existing values the claims omit.
// The username follows the identifier.
func UpdateUser(u domain.User, c Claims) domain.User {
	id := Identifier(c)
	if email := emailFor(c, id); email != "" {
		u.Email = email
	}
	if id != "" {
		u.Username = id
	}
	if first := firstName(c); first != "" {
		u.FirstName = first
	}
	if last := c.String("family_name"); last != "" {
		u.LastName = last
	}
	return u
}

func firstName(c Claims) string {
	if v := c.String("given_name"); v != "" {
		return v
	}
	return c.String("name")
}

// ClaimsVerifier decides whether a claim set may sign in.
type ClaimsVerifier struct {
	Mode     string
	ClientID string
	Scopes   []string
}

// NewClaimsVerifier creates a verifier from the relying-party configuration.
func NewClaimsVerifier(cfg config.OIDCConfig) ClaimsVerifier {
	mode := cfg.ClaimsMode
	if mode == "" {
		mode = config.ClaimsModeStrict
	}
	return ClaimsVerifier{Mode: mode, ClientID: cfg.ClientID, Scopes: cfg.ScopeList()}
}

// Verify applies the decision for the configured mode. Unknown modes reject.
func (v ClaimsVerifier) Verify(c Claims) bool {
	switch v.Mode {
	case config.ClaimsModeStrict:
		return v.strict(c)
	case config.ClaimsModeRelaxed:
		return v.relaxed(c)
	case config.ClaimsModeDebug:
		v.logShape(c)
		return v.strict(c)
	default:
		return false
	}
}

// strict accepts the standard email check, or an identifier with a matching
// audience when the provider sends no email.
func (v ClaimsVerifier) strict(c Claims) bool {
	if v.emailCheck(c) {
		return true
	}
	if c.String("email") != "" || Identifier(c) == "" {
		return false
	}
	present, match := audienceMatches(c["aud"], v.ClientID)
	return present && match
}

// emailCheck requires an email only when the email scope was requested.
func (v ClaimsVerifier) emailCheck(c Claims) bool {
	if !slices.Contains(v.Scopes, "email") {
		return true
	}
	return c.String("email") != ""
}

func (v ClaimsVerifier) relaxed(c Claims) bool {
	if Identifier(c) == "" {
		return false
	}
	present, match := audienceMatches(c["aud"], v.ClientID)
	return !present || match
}

func (v ClaimsVerifier) logShape(c Claims) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	present, match := audienceMatches(c["aud"], v.ClientID)
	logger.Info("OIDC claims received",
		zap.Strings("keys", keys),
		zap.Any("aud", c["aud"]),
		zap.Bool("aud_present", present),
		zap.Bool("aud_matches", match),
		zap.Bool("has_email", c.String("email") != ""),
		zap.Bool("has_preferred_username", c.String("preferred_username") != ""),
		zap.Bool("has_upn", c.String("upn") != ""),
		zap.Bool("has_sub", c.String("sub") != ""),
	)
}

// audienceMatches reports whether aud is present and whether it names clientID.
// aud may be a string or a list.
func audienceMatches(aud any, clientID string) (present, match bool) {
	switch a := aud.(type) {
	case nil:
		return false, false
	case string:
		return true, a == clientID
	case []string:
		return true, slices.Contains(a, clientID)
	case []any:
		for _, item := range a {
			if s, ok := item.(string); ok && s == clientID {
				return true, true
			}
		}
		return true, false
	default:
		return true, false
	}
}
