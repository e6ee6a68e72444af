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

func TestProfileService_Create(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewProfileService(f.repos, policy.New(), f.events)

	created, err := svc.Create(ctx, f.lead, ProfileForm{
		Email: " New.Person@Example.gov.uk ", FirstName: "New", LastName: "Person", Role: string(domain.RoleOrganisationUser),
	})
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, created.OrgID())

	user, err := f.store.Users.GetByID(ctx, created.UserID)
	require.NoError(t, err)
	assert.Equal(t, "new.person@example.gov.uk", user.Username, "username is the email")
	assert.Equal(t, "New", user.FirstName)

	// An existing user gains a profile in another organisation.
	again, err := svc.Create(ctx, f.outsider, ProfileForm{
		Email: "new.person@example.gov.uk", FirstName: "Ignored", LastName: "Ignored", Role: string(domain.RoleOrganisationLead),
	})
	require.NoError(t, err)
	assert.Equal(t, created.UserID, again.UserID)

	_, err = svc.Create(ctx, f.lead, ProfileForm{
		Email: "new.person@example.gov.uk", FirstName: "New", LastName: "Person", Role: string(domain.RoleOrganisationUser),
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProfileExists, appErr.Code)

	assert.Equal(t, []domain.EventType{domain.EventProfileCreated, domain.EventProfileCreated}, f.events.types())
}

func TestProfileService_CreateRejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewProfileService(f.repos, policy.New(), nil)

	tests := []struct {
		name   string
		caller Caller
		role   domain.Role
		check  func(t *testing.T, err error)
	}{
		{"cyber advisor is not assignable", f.lead, domain.RoleCyberAdvisor, func(t *testing.T, err error) {
			verr, ok := apperrors.IsValidation(err)
			require.True(t, ok)
			assert.Equal(t, "Select a role.", verr.FieldMessage("role"))
		}},
		{"assessor is not assignable", f.lead, domain.RoleAssessor, func(t *testing.T, err error) {
			_, ok := apperrors.IsValidation(err)
			assert.True(t, ok)
		}},
		{"organisation users cannot add users", f.orgUser, domain.RoleOrganisationUser, func(t *testing.T, err error) {
			assert.True(t, IsPermission(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.caller, ProfileForm{
				Email: "x@example.gov.uk", FirstName: "X", LastName: "Y", Role: string(tt.role),
			})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestProfileService_ListAndUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewProfileService(f.repos, policy.New(), nil)

	profiles, err := svc.List(ctx, f.lead)
	require.NoError(t, err)
	assert.Len(t, profiles, 4)

	updated, err := svc.Update(ctx, f.lead, f.orgUser.Profile.ID, ProfileForm{
		FirstName: "Renamed", LastName: "User", Role: string(domain.RoleOrganisationLead),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOrganisationLead, updated.Role)
	assert.Equal(t, "Renamed", updated.User.FirstName)

	stored, err := f.store.Profiles.GetByID(ctx, f.orgUser.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOrganisationLead, stored.Role)
	assert.Equal(t, "Renamed User", stored.User.FullName())

	_, err = svc.Update(ctx, f.lead, f.outsider.Profile.ID, ProfileForm{FirstName: "A", LastName: "B", Role: "organisation_user"})
	assert.True(t, IsPermission(err))
}

func TestProfileService_UpdateKeepsUnassignableRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewProfileService(f.repos, policy.New(), nil)

	for _, target := range []Caller{f.advisor, f.assessor} {
		updated, err := svc.Update(ctx, f.lead, target.Profile.ID, ProfileForm{
			FirstName: "Kept", LastName: "Role", Role: string(domain.RoleOrganisationUser),
		})
		require.NoError(t, err)
		assert.Equal(t, target.Profile.Role, updated.Role)
		assert.Equal(t, "Kept", updated.User.FirstName)

		stored, err := f.store.Profiles.GetByID(ctx, target.Profile.ID)
		require.NoError(t, err)
		assert.Equal(t, target.Profile.Role, stored.Role)
	}
}

func TestProfileService_Delete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		guards   bool
		target   func(f *fixture) Caller
		wantCode string
	}{
		{"lead removes a user", false, func(f *fixture) Caller { return f.orgUser }, ""},
		{"guards off allows removing yourself", false, func(f *fixture) Caller { return f.lead }, ""},
		{"guards refuse removing yourself", true, func(f *fixture) Caller { return f.lead }, apperrors.CodeSelfDeletion},
		{"other organisation", false, func(f *fixture) Caller { return f.outsider }, apperrors.CodeCrossOrganisation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			svc := NewProfileService(f.repos, policy.New(policy.WithDeletionGuards(tt.guards)), f.events)
			target := tt.target(f)

			err := svc.Delete(ctx, f.lead, target.Profile.ID)
			if tt.wantCode != "" {
				appErr, ok := apperrors.IsAppError(err)
				require.True(t, ok, "want %s, got %v", tt.wantCode, err)
				assert.Equal(t, tt.wantCode, appErr.Code)
				return
			}
			require.NoError(t, err)
			_, err = f.store.Profiles.GetByID(ctx, target.Profile.ID)
			assert.Error(t, err)
			assert.Equal(t, []domain.EventType{domain.EventProfileDeleted}, f.events.types())
		})
	}
}

func TestProfileService_LastLeadGuard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	svc := NewProfileService(f.repos, policy.New(policy.WithDeletionGuards(true)), nil)

	// The advisor can manage users; the lead is the organisation's only lead.
	assert.False(t, svc.CanDelete(ctx, f.advisor, *f.lead.Profile))
	err := svc.Delete(ctx, f.advisor, f.lead.Profile.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeLastLeadDeletion, appErr.Code)

	second := f.addCaller(t, "second.lead@example.gov.uk", f.org.ID, domain.RoleOrganisationLead)
	assert.True(t, svc.CanDelete(ctx, f.advisor, *second.Profile))
	require.NoError(t, svc.Delete(ctx, f.advisor, second.Profile.ID))
}
