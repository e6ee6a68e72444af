package identity

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/config"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

type fakeProvider struct {
	srv      *httptest.Server
	key      *rsa.PrivateKey
	claims   jwt.MapClaims
	userinfo map[string]any

	mu       sync.Mutex
	lastForm url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, _ := rsaPEM(t)
	fp := &fakeProvider{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "webcaf-test" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fp.mu.Lock()
		fp.lastForm = r.PostForm
		fp.mu.Unlock()
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, fp.claims).SignedString(fp.key)
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fp.userinfo)
	})
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) form() url.Values {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.lastForm
}

func (fp *fakeProvider) config(method string, withUserInfo bool) config.OIDCConfig {
	cfg := config.OIDCConfig{
		Issuer:                fp.srv.URL,
		ClientID:              "webcaf",
		ClientSecret:          "secret",
		AuthorizationEndpoint: fp.srv.URL + "/authorize",
		TokenEndpoint:         fp.srv.URL + "/token",
		JWKSEndpoint:          fp.srv.URL + "/jwks",
		LogoutEndpoint:        fp.srv.URL + "/logout",
		RedirectURL:           "http://localhost:8000/oidc/callback/",
		Scopes:                "openid email profile",
		SignAlgo:              "RS256",
		TokenAuthMethod:       method,
		ClientAssertionAlg:    "RS256",
		UserAgent:             "webcaf-test",
		HTTPTimeout:           5 * time.Second,
		ClaimsMode:            config.ClaimsModeStrict,
	}
	if withUserInfo {
		cfg.UserEndpoint = fp.srv.URL + "/userinfo"
	}
	return cfg
}

func (fp *fakeProvider) idClaims(nonce string, extra map[string]any) jwt.MapClaims {
	now := time.Now()
	c := jwt.MapClaims{
		"iss":   fp.srv.URL,
		"aud":   "webcaf",
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
		"nonce": nonce,
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func (fp *fakeProvider) client(t *testing.T, cfg config.OIDCConfig) *Client {
	t.Helper()
	ks := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&fp.key.PublicKey}}
	c, err := NewClient(context.Background(), cfg, WithKeySet(ks))
	require.NoError(t, err)
	return c
}

func TestClient_ExchangeMergesUserInfo(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.claims = fp.idClaims("n-1", map[string]any{"sub": "user-1", "email": "jo@x.gov.uk"})
	fp.userinfo = map[string]any{"sub": "user-1", "given_name": "Jo", "family_name": "Bloggs"}
	c := fp.client(t, fp.config(config.TokenAuthClientSecretPost, true))

	res, err := c.Exchange(context.Background(), "good-code", "n-1")
	require.NoError(t, err)

	assert.Equal(t, "jo@x.gov.uk", res.Identifier)
	assert.Equal(t, "Jo", res.Claims.String("given_name"))
	assert.Equal(t, "access-1", res.AccessToken)
	assert.NotEmpty(t, res.RawIDToken)

	form := fp.form()
	assert.Equal(t, "webcaf", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Empty(t, form.Get("client_assertion"))
}

func TestClient_ExchangePrivateKeyJWT(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.claims = fp.idClaims("n-2", map[string]any{"sub": "user-2", "email": "sam@x.gov.uk"})
	_, keyPEM := rsaPEM(t)
	cfg := fp.config(config.TokenAuthPrivateKeyJWT, false)
	cfg.ClientAssertionPrivateKey = keyPEM
	c := fp.client(t, cfg)

	_, err := c.Exchange(context.Background(), "good-code", "n-2")
	require.NoError(t, err)

	form := fp.form()
	assert.Equal(t, ClientAssertionType, form.Get("client_assertion_type"))
	assert.NotEmpty(t, form.Get("client_assertion"))
	assert.Empty(t, form.Get("client_secret"))
}

func TestClient_ExchangeFailures(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	c := fp.client(t, fp.config(config.TokenAuthClientSecretPost, false))

	fp.claims = fp.idClaims("expected", map[string]any{"sub": "user-3", "email": "a@x.gov.uk"})
	_, err := c.Exchange(context.Background(), "good-code", "different")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeAuthFailed, appErr.Code)

	_, err = c.Exchange(context.Background(), "bad-code", "expected")
	appErr, ok = apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeTokenExchange, appErr.Code)
}

func TestClient_ClaimsRejected(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.claims = fp.idClaims("n-4", nil)
	c := fp.client(t, fp.config(config.TokenAuthClientSecretPost, false))

	_, err := c.Exchange(context.Background(), "good-code", "n-4")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeClaimsRejected, appErr.Code)
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	c := fp.client(t, fp.config(config.TokenAuthClientSecretPost, false))

	u, err := url.Parse(c.AuthCodeURL("state-1", "nonce-1"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "webcaf", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestLogoutURL(t *testing.T) {
	t.Parallel()

	got, err := LogoutURL("https://idp.example/logout", "tok en", "webcaf", "http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/logout?id_token_hint=tok+en&client_id=webcaf&redirect_uri=http%3A%2F%2Flocalhost%3A8000%2F", got)

	got, err = LogoutURL("https://idp.example/logout?p=1", "t", "c", "/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "https://idp.example/logout?p=1&id_token_hint=t"))

	_, err = LogoutURL("", "t", "c", "/")
	assert.ErrorIs(t, err, ErrNoLogoutEndpoint)
}
