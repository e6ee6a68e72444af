package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/framework"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/testutil"
	"webcaf.gov.uk/webcaf/internal/workflow"
)

type recorder struct {
	mu     sync.Mutex
	events []*domain.DomainEvent
}

func (r *recorder) Dispatch(_ context.Context, e *domain.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func memRepos(s *testutil.MemStore) Repos {
	return Repos{
		Users:          s.Users,
		Organisations:  s.Organisations,
		Systems:        s.Systems,
		Profiles:       s.Profiles,
		Assessments:    s.Assessments,
		Configurations: s.Configurations,
	}
}

type fixture struct {
	store  *testutil.MemStore
	repos  Repos
	events *recorder

	org      *domain.Organisation
	otherOrg *domain.Organisation

	lead     Caller
	orgUser  Caller
	advisor  Caller
	assessor Caller
	outsider Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewMemStore()
	f := &fixture{store: store, repos: memRepos(store), events: &recorder{}}

	var err error
	f.org, _, err = store.Organisations.FindOrCreateByName(ctx, "Department for Testing")
	require.NoError(t, err)
	f.otherOrg, _, err = store.Organisations.FindOrCreateByName(ctx, "Other Office")
	require.NoError(t, err)

	f.lead = f.addCaller(t, "lead@example.gov.uk", f.org.ID, domain.RoleOrganisationLead)
	f.orgUser = f.addCaller(t, "user@example.gov.uk", f.org.ID, domain.RoleOrganisationUser)
	f.advisor = f.addCaller(t, "advisor@example.gov.uk", f.org.ID, domain.RoleCyberAdvisor)
	f.assessor = f.addCaller(t, "assessor@example.gov.uk", f.org.ID, domain.RoleAssessor)
	f.outsider = f.addCaller(t, "outsider@example.gov.uk", f.otherOrg.ID, domain.RoleCyberAdvisor)

	cfg := &domain.Configuration{Name: "25/26", ConfigData: domain.ConfigData{
		CurrentAssessmentPeriod: "25/26",
		AssessmentPeriodEnd:     "31 March 2026 11:59pm",
		DefaultFramework:        "caf32",
	}}
	require.NoError(t, store.Configurations.Upsert(ctx, cfg))
	require.NoError(t, store.Configurations.SetDefault(ctx, cfg.Name))
	return f
}

func (f *fixture) addCaller(t *testing.T, email string, orgID int64, role domain.Role) Caller {
	t.Helper()
	ctx := context.Background()
	local, _, _ := strings.Cut(email, "@")
	u := &domain.User{Username: email, Email: email, FirstName: strings.ToUpper(local[:1]) + local[1:], LastName: "Tester", IsActive: true}
	require.NoError(t, f.store.Users.Create(ctx, u))
	p := &domain.UserProfile{UserID: u.ID, OrganisationID: &orgID, Role: role}
	require.NoError(t, f.store.Profiles.Create(ctx, p))
	joined, err := f.store.Profiles.GetByID(ctx, p.ID)
	require.NoError(t, err)
	return Caller{User: joined.User, Profile: joined}
}

func (f *fixture) addSystem(t *testing.T, orgID int64, name string) domain.System {
	t.Helper()
	sys := &domain.System{
		OrganisationID:    orgID,
		Name:              name,
		SystemType:        domain.SystemTypes[0].ID,
		LastAssessed:      domain.AssessedChoices[0].ID,
		SystemOwner:       []string{domain.OwnerTypes[0].ID},
		HostingType:       []string{domain.HostingTypes[0].ID},
		CorporateServices: []string{domain.CorporateServices[0].ID},
	}
	require.NoError(t, f.store.Systems.Create(context.Background(), sys))
	return *sys
}

// addAssessment stores an assessment directly, bypassing the wizard.
func (f *fixture) addAssessment(t *testing.T, sys domain.System, profile domain.CAFProfile, data domain.AssessmentData) domain.Assessment {
	t.Helper()
	a := &domain.Assessment{
		SystemID:         sys.ID,
		AssessmentPeriod: "25/26",
		Framework:        "caf32",
		CAFProfile:       profile,
		ReviewType:       domain.ReviewSelfAssessment,
		Status:           domain.StatusDraft,
		Data:             data,
		CreatedBy:        f.lead.User.ID,
		LastUpdatedBy:    f.lead.User.ID,
	}
	require.NoError(t, f.store.Assessments.Create(context.Background(), a))
	return *a
}

// completeData confirms every outcome in scope for profile.
func completeData(t *testing.T, profile domain.CAFProfile) domain.AssessmentData {
	t.Helper()
	fw, err := framework.Get("caf32")
	require.NoError(t, err)
	data := domain.AssessmentData{}
	for _, ref := range fw.OutcomesFor(profile) {
		rec := workflow.FillOutcome(indicatorIDs(ref.Outcome), nil)
		rec, err = workflow.Confirm(rec, workflow.ConfirmChoice, "Summary for "+ref.Outcome.Code)
		require.NoError(t, err)
		data.SetOutcome(ref.Objective, ref.Outcome.Code, rec)
	}
	return data
}

func (f *fixture) assessments(p *policy.Policy) *AssessmentService {
	return NewAssessmentService(f.repos, p, f.events, nil)
}
