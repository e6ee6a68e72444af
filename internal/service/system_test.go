package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/policy"
)

func validSystemForm(name string) SystemForm {
	return SystemForm{
		Name:              name,
		SystemType:        domain.SystemTypes[0].ID,
		SystemOwner:       []string{domain.OwnerTypes[0].ID},
		HostingType:       []string{domain.HostingTypes[0].ID, domain.HostingTypes[1].ID},
		LastAssessed:      domain.AssessedChoices[0].ID,
		CorporateServices: []string{domain.CorporateServices[0].ID},
	}
}

func TestSystemService_Validate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addSystem(t, f.org.ID, "Payroll")
	svc := NewSystemService(f.repos, policy.New())

	tests := []struct {
		name      string
		form      func() SystemForm
		wantField string
		wantMsg   string
		check     func(t *testing.T, got SystemForm)
	}{
		{
			name: "valid",
			form: func() SystemForm { return validSystemForm("  Ledger  ") },
			check: func(t *testing.T, got SystemForm) {
				assert.Equal(t, "Ledger", got.Name)
			},
		},
		{
			name:      "missing name",
			form:      func() SystemForm { return validSystemForm("") },
			wantField: "name",
			wantMsg:   "Enter the system name.",
		},
		{
			name: "no hosting type",
			form: func() SystemForm {
				f := validSystemForm("Ledger")
				f.HostingType = nil
				return f
			},
			wantField: "hosting_type",
			wantMsg:   "Select how the system is hosted.",
		},
		{
			name: "unknown hosting type",
			form: func() SystemForm {
				f := validSystemForm("Ledger")
				f.HostingType = []string{"moon"}
				return f
			},
			wantField: "hosting_type",
			wantMsg:   "Select a valid choice.",
		},
		{
			name: "other corporate services needs a description",
			form: func() SystemForm {
				f := validSystemForm("Ledger")
				f.CorporateServices = []string{domain.CorporateServicesOtherID}
				return f
			},
			wantField: "corporate_services_other",
			wantMsg:   "Please enter a description of the corporate services.",
		},
		{
			name: "other corporate services keeps the description",
			form: func() SystemForm {
				f := validSystemForm("Ledger")
				f.CorporateServices = []string{domain.CorporateServicesOtherID}
				f.CorporateServicesOther = " Fleet "
				return f
			},
			check: func(t *testing.T, got SystemForm) {
				assert.Equal(t, "Fleet", got.CorporateServicesOther)
			},
		},
		{
			name: "description cleared when other is not first",
			form: func() SystemForm {
				f := validSystemForm("Ledger")
				f.CorporateServicesOther = "stale"
				return f
			},
			check: func(t *testing.T, got SystemForm) {
				assert.Empty(t, got.CorporateServicesOther)
			},
		},
		{
			name:      "duplicate name",
			form:      func() SystemForm { return validSystemForm("Payroll") },
			wantField: "name",
			wantMsg:   "A system with this name Payroll already exists.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Validate(context.Background(), f.advisor, 0, tt.form())
			if tt.wantField == "" {
				require.NoError(t, err)
				tt.check(t, got)
				return
			}
			verr, ok := apperrors.IsValidation(err)
			require.True(t, ok, "want validation error, got %v", err)
			assert.Equal(t, tt.wantMsg, verr.FieldMessage(tt.wantField))
		})
	}
}

func TestSystemService_SaveAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.addSystem(t, f.otherOrg.ID, "Elsewhere")
	svc := NewSystemService(f.repos, policy.New())

	created, err := svc.Save(ctx, f.advisor, 0, validSystemForm("Ledger"))
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, created.OrganisationID)

	form := validSystemForm("Ledger v2")
	updated, err := svc.Save(ctx, f.advisor, created.ID, form)
	require.NoError(t, err)
	assert.Equal(t, "Ledger v2", updated.Name)

	// Keeping its own name is not a duplicate.
	_, err = svc.Save(ctx, f.advisor, created.ID, form)
	require.NoError(t, err)

	systems, err := svc.List(ctx, f.lead)
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "Ledger v2", systems[0].Name)
}

func TestSystemService_Permissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	foreign := f.addSystem(t, f.otherOrg.ID, "Elsewhere")
	svc := NewSystemService(f.repos, policy.New())

	_, err := svc.List(ctx, f.orgUser)
	assert.True(t, IsPermission(err), "organisation users cannot list systems")

	_, err = svc.Save(ctx, f.lead, 0, validSystemForm("Ledger"))
	assert.True(t, IsPermission(err), "leads cannot manage systems")

	_, err = svc.Get(ctx, f.advisor, foreign.ID)
	assert.True(t, IsPermission(err), "other organisation's system")

	_, err = svc.Save(ctx, f.advisor, foreign.ID, validSystemForm("Mine now"))
	assert.True(t, IsPermission(err))
}
