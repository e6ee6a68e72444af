package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"webcaf.gov.uk/webcaf/internal/config"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

// Result is a verified sign-in.
type Result struct {
	Claims      Claims
	Identifier  string
	RawIDToken  string
	AccessToken string
}

// Client talks to the identity provider as a relying party.
type Client struct {
	cfg      config.OIDCConfig
	oauth    *oauth2.Config
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	claims   ClaimsVerifier
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	keySet   oidc.KeySet
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithKeySet verifies ID tokens against ks instead of the provider's JWKS.
func WithKeySet(ks oidc.KeySet) Option {
	return func(c *Client) { c.keySet = ks }
}

// WithHTTPClient replaces the outbound HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// userAgentTransport stamps every provider request with the configured agent.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}

// NewClient builds the relying party. With discovery enabled the provider
// metadata is fetched from the issuer; otherwise the configured endpoints
// are used as-is.
func NewClient(ctx context.Context, cfg config.OIDCConfig, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg, claims: NewClaimsVerifier(cfg), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.http = &http.Client{
			Timeout:   timeout,
			Transport: userAgentTransport{agent: cfg.UserAgent, base: http.DefaultTransport},
		}
	}

	octx := oidc.ClientContext(ctx, c.http)
	if cfg.Discovery {
		p, err := oidc.NewProvider(octx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discover OIDC provider: %w", err)
		}
		c.provider = p
	} else {
		pc := &oidc.ProviderConfig{
			IssuerURL:   cfg.Issuer,
			AuthURL:     cfg.AuthorizationEndpoint,
			TokenURL:    cfg.TokenEndpoint,
			UserInfoURL: cfg.UserEndpoint,
			JWKSURL:     cfg.JWKSEndpoint,
			Algorithms:  []string{cfg.SignAlgo},
		}
		c.provider = pc.NewProvider(octx)
	}

	verifierCfg := &oidc.Config{
		ClientID:             cfg.ClientID,
		SupportedSigningAlgs: []string{cfg.SignAlgo},
		SkipIssuerCheck:      cfg.Issuer == "",
		Now:                  c.now,
	}
	if c.keySet != nil {
		c.verifier = oidc.NewVerifier(cfg.Issuer, c.keySet, verifierCfg)
	} else {
		c.verifier = c.provider.Verifier(verifierCfg)
	}

	endpoint := c.provider.Endpoint()
	switch cfg.TokenAuthMethod {
	case config.TokenAuthClientSecretBasic:
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	default:
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	c.oauth = &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.ScopeList(),
	}
	if cfg.TokenAuthMethod != config.TokenAuthPrivateKeyJWT {
		c.oauth.ClientSecret = cfg.ClientSecret
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oidc-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// AuthCodeURL returns the provider's authorization URL for state and nonce.
func (c *Client) AuthCodeURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange redeems code, verifies the ID token and nonce, merges userinfo
// and applies the claim decision.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (*Result, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	ctx = oidc.ClientContext(ctx, c.http)

	var opts []oauth2.AuthCodeOption
	if c.cfg.TokenAuthMethod == config.TokenAuthPrivateKeyJWT {
		assertion, err := ClientAssertion(AssertionConfig{
			ClientID:      c.cfg.ClientID,
			TokenEndpoint: c.oauth.Endpoint.TokenURL,
			PrivateKey:    c.cfg.ClientAssertionPrivateKey,
			KeyID:         c.cfg.ClientAssertionKID,
			Algorithm:     c.cfg.ClientAssertionAlg,
		}, c.now())
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeTokenExchange, "build client assertion", http.StatusUnauthorized)
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("client_assertion_type", ClientAssertionType),
			oauth2.SetAuthURLParam("client_assertion", assertion),
		)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.oauth.Exchange(ctx, code, opts...)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTokenExchange, "token exchange failed", http.StatusUnauthorized)
	}
	token := out.(*oauth2.Token)

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, apperrors.New(apperrors.CodeTokenExchange, "token response has no id_token", http.StatusUnauthorized)
	}
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAuthFailed, "id token verification failed", http.StatusUnauthorized)
	}
	if idToken.Nonce != nonce {
		return nil, apperrors.New(apperrors.CodeAuthFailed, "nonce mismatch", http.StatusUnauthorized)
	}

	claims := Claims{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeAuthFailed, "decode id token claims", http.StatusUnauthorized)
	}

	if c.hasUserInfo() {
		info, err := c.userInfo(ctx, token)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeAuthFailed, "userinfo request failed", http.StatusUnauthorized)
		}
		claims = claims.Merge(info)
	}

	if !c.claims.Verify(claims) {
		logger.Warn("OIDC claims rejected",
			zap.String("mode", c.claims.Mode),
			logger.Email("identifier", Identifier(claims)),
		)
		return nil, apperrors.New(apperrors.CodeClaimsRejected, "claims verification failed", http.StatusUnauthorized)
	}

	return &Result{
		Claims:      claims,
		Identifier:  Identifier(claims),
		RawIDToken:  rawIDToken,
		AccessToken: token.AccessToken,
	}, nil
}

func (c *Client) hasUserInfo() bool {
	if c.cfg.Discovery {
		return c.provider.UserInfoEndpoint() != ""
	}
	return c.cfg.UserEndpoint != ""
}

func (c *Client) userInfo(ctx context.Context, token *oauth2.Token) (Claims, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	})
	if err != nil {
		return nil, err
	}
	info := out.(*oidc.UserInfo)
	claims := Claims{}
	if err := info.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ErrNoLogoutEndpoint is returned when the provider has no end-session URL.
var ErrNoLogoutEndpoint = errors.New("no logout endpoint configured")

// LogoutURL builds the provider's end-session URL. Parameters are appended
// in the order id_token_hint, client_id, redirect_uri.
func (c *Client) LogoutURL(idTokenHint, redirectURI string) (string, error) {
	return LogoutURL(c.cfg.LogoutEndpoint, idTokenHint, c.cfg.ClientID, redirectURI)
}

// LogoutURL builds an end-session URL for endpoint.
func LogoutURL(endpoint, idTokenHint, clientID, redirectURI string) (string, error) {
	if endpoint == "" {
		return "", ErrNoLogoutEndpoint
	}
	sep := "?"
	if u, err := url.Parse(endpoint); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return endpoint + sep +
		"id_token_hint=" + url.QueryEscape(idTokenHint) +
		"&client_id=" + url.QueryEscape(clientID) +
		"&redirect_uri=" + url.QueryEscape(redirectURI), nil
}
