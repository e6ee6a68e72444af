package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClientAssertionType is the assertion type posted with private_key_jwt.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime bounds how long a signed assertion is accepted.
const assertionLifetime = 300 * time.Second

// AssertionConfig carries what is needed to sign a client assertion.
type AssertionConfig struct {
	ClientID      string
	TokenEndpoint string
	PrivateKey    string
	KeyID         string
	Algorithm     string
}

// ClientAssertion signs a JWT authenticating the client at the token endpoint.
func ClientAssertion(cfg AssertionConfig, now time.Time) (string, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return "", fmt.Errorf("unsupported client assertion algorithm %q", cfg.Algorithm)
	}
	key, err := parseSigningKey(method, cfg.PrivateKey)
	if err != nil {
		return "", err
	}

	iat := now.Unix()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"aud": cfg.TokenEndpoint,
		"iss": cfg.ClientID,
		"sub": cfg.ClientID,
		"iat": iat,
		"exp": iat + int64(assertionLifetime/time.Second),
		"jti": strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	if cfg.KeyID != "" {
		token.Header["kid"] = cfg.KeyID
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return signed, nil
}

// normalisePEM undoes the escaping env files apply to multi-line keys.
func normalisePEM(s string) []byte {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r", "")
	return []byte(strings.TrimSpace(s) + "\n")
}

func parseSigningKey(method jwt.SigningMethod, pemText string) (any, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, fmt.Errorf("client assertion private key is empty")
	}
	raw := normalisePEM(pemText)

	var (
		key any
		err error
	)
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		key, err = jwt.ParseRSAPrivateKeyFromPEM(raw)
	case *jwt.SigningMethodECDSA:
		key, err = jwt.ParseECPrivateKeyFromPEM(raw)
	case *jwt.SigningMethodEd25519:
		key, err = jwt.ParseEdPrivateKeyFromPEM(raw)
	default:
		return nil, fmt.Errorf("algorithm %s cannot sign client assertions", method.Alg())
	}
	if err != nil {
		return nil, fmt.Errorf("parse client assertion key: %w", err)
	}
	return key, nil
}
