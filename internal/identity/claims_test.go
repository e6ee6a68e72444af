package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
)

func TestIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{"email first", Claims{"email": "a@x.gov.uk", "preferred_username": "pu", "sub": "s"}, "a@x.gov.uk"},
		{"preferred username", Claims{"email": " ", "preferred_username": "pu", "upn": "u"}, "pu"},
		{"upn", Claims{"upn": "u@corp", "sub": "s"}, "u@corp"},
		{"sub last", Claims{"sub": "abc"}, "abc"},
		{"email lowercased", Claims{"email": " Jane.Doe@Example.gov.uk "}, "jane.doe@example.gov.uk"},
		{"opaque sub keeps case", Claims{"sub": "AbC-123"}, "AbC-123"},
		{"non-string ignored", Claims{"email": 42, "sub": "abc"}, "abc"},
		{"nothing", Claims{}, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Identifier(tt.claims))
		})
	}
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	u := CreateUser(Claims{"email": "jo@x.gov.uk", "given_name": "Jo", "family_name": "Bloggs"})
	assert.Equal(t, domain.User{Username: "jo@x.gov.uk", Email: "jo@x.gov.uk", FirstName: "Jo", LastName: "Bloggs", IsActive: true}, u)

	// Email taken from the identifier when the claim is missing.
	u = CreateUser(Claims{"preferred_username": "sam@x.gov.uk", "name": "Sam"})
	assert.Equal(t, "sam@x.gov.uk", u.Email)
	assert.Equal(t, "Sam", u.FirstName)

	// Mixed-case addresses are stored lowercased.
	u = CreateUser(Claims{"email": "Jane.Doe@Example.gov.uk"})
	assert.Equal(t, "jane.doe@example.gov.uk", u.Username)
	assert.Equal(t, "jane.doe@example.gov.uk", u.Email)

	// No email when the identifier is not an address.
	u = CreateUser(Claims{"sub": "opaque-id"})
	assert.Equal(t, "opaque-id", u.Username)
	assert.Empty(t, u.Email)
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()

	existing := domain.User{ID: 3, Username: "jo@x.gov.uk", Email: "jo@x.gov.uk", FirstName: "Jo", LastName: "Bloggs"}

	tests := []struct {
		name   string
		claims Claims
		want   domain.User
	}{
		{
			name:   "same identity keeps values",
			claims: Claims{"email": "Jo@X.gov.uk"},
			want:   existing,
		},
		{
			name:   "new email and names",
			claims: Claims{"given_name": "Joanne", "email": "joanne@x.gov.uk"},
			want:   domain.User{ID: 3, Username: "joanne@x.gov.uk", Email: "joanne@x.gov.uk", FirstName: "Joanne", LastName: "Bloggs"},
		},
		{
			name:   "email backfilled from identifier",
			claims: Claims{"upn": "Jo.Bloggs@X.gov.uk", "family_name": "Smith"},
			want:   domain.User{ID: 3, Username: "jo.bloggs@x.gov.uk", Email: "jo.bloggs@x.gov.uk", FirstName: "Jo", LastName: "Smith"},
		},
		{
			name:   "opaque identifier keeps email",
			claims: Claims{"sub": "s-1"},
			want:   domain.User{ID: 3, Username: "s-1", Email: "jo@x.gov.uk", FirstName: "Jo", LastName: "Bloggs"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, UpdateUser(existing, tt.claims))
		})
	}
}

func TestClaimsVerifier(t *testing.T) {
	t.Parallel()

	const client = "webcaf"
	withEmail := []string{"openid", "email"}
	noEmail := []string{"openid"}

	tests := []struct {
		name   string
		mode   string
		scopes []string
		claims Claims
		want   bool
	}{
		{"strict email present", config.ClaimsModeStrict, withEmail, Claims{"email": "a@x"}, true},
		{"strict no email scope", config.ClaimsModeStrict, noEmail, Claims{}, true},
		{"strict missing email, aud string", config.ClaimsModeStrict, withEmail, Claims{"sub": "s", "aud": client}, true},
		{"strict missing email, aud list", config.ClaimsModeStrict, withEmail, Claims{"upn": "u", "aud": []any{"other", client}}, true},
		{"strict missing email, aud other", config.ClaimsModeStrict, withEmail, Claims{"sub": "s", "aud": "other"}, false},
		{"strict missing email, no aud", config.ClaimsModeStrict, withEmail, Claims{"sub": "s"}, false},
		{"strict no identifier", config.ClaimsModeStrict, withEmail, Claims{"aud": client}, false},
		{"relaxed no aud", config.ClaimsModeRelaxed, withEmail, Claims{"sub": "s"}, true},
		{"relaxed aud list", config.ClaimsModeRelaxed, withEmail, Claims{"sub": "s", "aud": []string{client}}, true},
		{"relaxed aud other", config.ClaimsModeRelaxed, withEmail, Claims{"sub": "s", "aud": "other"}, false},
		{"relaxed no identifier", config.ClaimsModeRelaxed, withEmail, Claims{"aud": client}, false},
		{"debug matches strict", config.ClaimsModeDebug, withEmail, Claims{"sub": "s", "aud": "other"}, false},
		{"debug accepts email", config.ClaimsModeDebug, withEmail, Claims{"email": "a@x"}, true},
		{"unknown mode", "lenient", withEmail, Claims{"email": "a@x"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := ClaimsVerifier{Mode: tt.mode, ClientID: client, Scopes: tt.scopes}
			assert.Equal(t, tt.want, v.Verify(tt.claims))
		})
	}
}

func TestClaims_Merge(t *testing.T) {
	t.Parallel()

	base := Claims{"sub": "s", "email": "a@x"}
	got := base.Merge(Claims{"email": "", "given_name": "Al", "name": nil})
	assert.Equal(t, Claims{"sub": "s", "email": "a@x", "given_name": "Al"}, got)
	assert.NotContains(t, base, "given_name")
}
