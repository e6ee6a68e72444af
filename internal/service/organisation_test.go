package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/policy"
)

func TestOrganisationService_UpdateType(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewOrganisationService(f.repos, policy.New())

	changed, err := svc.UpdateType(ctx, f.orgUser, OrganisationTypeForm{OrganisationType: "executive-agency"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.UpdateType(ctx, f.orgUser, OrganisationTypeForm{OrganisationType: "executive-agency"})
	require.NoError(t, err)
	assert.False(t, changed, "same value must not write")

	_, err = svc.UpdateType(ctx, f.orgUser, OrganisationTypeForm{OrganisationType: "made-up"})
	verr, ok := apperrors.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Select a valid choice.", verr.FieldMessage("organisation_type"))

	org, err := svc.Mine(ctx, f.orgUser)
	require.NoError(t, err)
	assert.Equal(t, "executive-agency", org.OrganisationType)
}

func TestOrganisationService_UpdateContact(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewOrganisationService(f.repos, policy.New())

	tests := []struct {
		name        string
		form        ContactForm
		wantChanged bool
		wantField   string
	}{
		{"first save writes", ContactForm{" Ada ", "CISO", "ada@example.gov.uk"}, true, ""},
		{"same values after trimming skip the write", ContactForm{"Ada", "CISO ", "ada@example.gov.uk"}, false, ""},
		{"bad email", ContactForm{"Ada", "CISO", "not-an-email"}, false, "contact_email"},
		{"missing name", ContactForm{"", "CISO", "ada@example.gov.uk"}, false, "contact_name"},
	}
	for _, tt := range tests {
		changed, err := svc.UpdateContact(ctx, f.lead, tt.form)
		if tt.wantField != "" {
			verr, ok := apperrors.IsValidation(err)
			require.True(t, ok, tt.name)
			assert.NotEmpty(t, verr.FieldMessage(tt.wantField), tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantChanged, changed, tt.name)
	}
}
