package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/framework"
	"webcaf.gov.uk/webcaf/internal/identity"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/service"
	"webcaf.gov.uk/webcaf/internal/session"
	"webcaf.gov.uk/webcaf/internal/testutil"
	"webcaf.gov.uk/webcaf/internal/twofactor"
	"webcaf.gov.uk/webcaf/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

const testCookie = "webcaf_session"

// fakePasscodes accepts code. With max set, max wrong codes in a row use up
// the current code until the next Send.
type fakePasscodes struct {
	code     string
	max      int
	sent     int
	failures int
}

func (f *fakePasscodes) Send(context.Context, *domain.User) error {
	f.sent++
	f.failures = 0
	return nil
}

func (f *fakePasscodes) Verify(_ context.Context, _ *domain.User, code string) error {
	if f.max > 0 && f.failures >= f.max {
		return twofactor.ErrNewCodeRequired
	}
	if code == f.code {
		f.failures = 0
		return nil
	}
	f.failures++
	if f.max > 0 && f.failures >= f.max {
		return twofactor.ErrNewCodeRequired
	}
	return twofactor.ErrCodeRejected
}

type fakeOIDC struct {
	claims identity.Claims
	nonce  string
}

func (f *fakeOIDC) AuthCodeURL(state, nonce string) string {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state) + "&nonce=" + url.QueryEscape(nonce)
}

func (f *fakeOIDC) Exchange(_ context.Context, code, nonce string) (*identity.Result, error) {
	if code != "good-code" {
		return nil, apperrors.Wrap(errors.New("exchange refused"), apperrors.CodeTokenExchange, "token exchange failed", http.StatusUnauthorized)
	}
	f.nonce = nonce
	return &identity.Result{Claims: f.claims, Identifier: identity.Identifier(f.claims), RawIDToken: "raw-id-token"}, nil
}

func (f *fakeOIDC) LogoutURL(idTokenHint, redirectURI string) (string, error) {
	return "https://idp.example/logout?id_token_hint=" + idTokenHint, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

// harness is a full page stack over the in-memory store.
type harness struct {
	t         *testing.T
	store     *testutil.MemStore
	sessions  *session.MemoryStore
	engine    *gin.Engine
	passcodes *fakePasscodes
	oidc      *fakeOIDC

	org     *domain.Organisation
	lead    domain.User
	orgUser domain.User
	advisor domain.User

	seq int
}

func newHarness(t *testing.T, auth config.AuthConfig, opts ...func(*ServerDeps)) *harness {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewMemStore()
	h := &harness{
		t:         t,
		store:     store,
		sessions:  session.NewMemoryStore(),
		passcodes: &fakePasscodes{code: "123456"},
		oidc:      &fakeOIDC{claims: identity.Claims{"sub": "abc", "email": "new.person@example.gov.uk"}},
	}

	var err error
	h.org, _, err = store.Organisations.FindOrCreateByName(ctx, "Department for Testing")
	require.NoError(t, err)
	h.lead = h.addUser("lead@example.gov.uk", h.org.ID, domain.RoleOrganisationLead)
	h.orgUser = h.addUser("user@example.gov.uk", h.org.ID, domain.RoleOrganisationUser)
	h.advisor = h.addUser("advisor@example.gov.uk", h.org.ID, domain.RoleCyberAdvisor)

	cfg := &domain.Configuration{Name: "25/26", ConfigData: domain.ConfigData{
		CurrentAssessmentPeriod: "25/26",
		AssessmentPeriodEnd:     "31 March 2026 11:59pm",
		DefaultFramework:        "caf32",
	}}
	require.NoError(t, store.Configurations.Upsert(ctx, cfg))
	require.NoError(t, store.Configurations.SetDefault(ctx, cfg.Name))

	repos := service.Repos{
		Users:          store.Users,
		Organisations:  store.Organisations,
		Systems:        store.Systems,
		Profiles:       store.Profiles,
		Assessments:    store.Assessments,
		Configurations: store.Configurations,
	}
	p := policy.New(policy.WithDeletionGuards(true))
	accounts := service.NewAccountService(repos)
	deps := ServerDeps{
		Auth:          auth,
		Accounts:      accounts,
		Organisations: service.NewOrganisationService(repos, p),
		Systems:       service.NewSystemService(repos, p),
		Profiles:      service.NewProfileService(repos, p, nil),
		Assessments:   service.NewAssessmentService(repos, p, nil, nil),
		SignIn:        service.NewAuthService(store.Users, nil, nil),
		Users:         store.Users,
		Policy:        p,
		OIDC:          h.oidc,
		Passcodes:     h.passcodes,
		Inbox:         store.Notifications,
		DB:            fakePinger{},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(deps)

	mgr := session.NewManager(h.sessions, config.SessionConfig{Cookie: testCookie, Lifetime: time.Hour, IdleTimeout: time.Hour})
	r := gin.New()
	r.SetHTMLTemplate(MustTemplates())
	RegisterHealth(r, srv)
	pages := r.Group("/")
	pages.Use(middleware.RequestID(), mgr.Middleware(), middleware.ErrorHandler(),
		middleware.Attribution(store.Users, accounts))
	RegisterRoutes(pages, srv)
	h.engine = r
	return h
}

func (h *harness) addUser(email string, orgID int64, role domain.Role) domain.User {
	h.t.Helper()
	ctx := context.Background()
	local, _, _ := strings.Cut(email, "@")
	u := &domain.User{Username: email, Email: email, FirstName: local, LastName: "Tester", IsActive: true}
	require.NoError(h.t, h.store.Users.Create(ctx, u))
	require.NoError(h.t, h.store.Profiles.Create(ctx, &domain.UserProfile{UserID: u.ID, OrganisationID: &orgID, Role: role}))
	return *u
}

// signIn stores a verified session for u and returns its cookie.
func (h *harness) signIn(u domain.User) *http.Cookie {
	h.t.Helper()
	h.seq++
	id := "sid-" + strconv.Itoa(h.seq)
	now := time.Now()
	data := &session.Data{UserID: u.ID, IsStaff: u.IsStaff, Verified: true, CreatedAt: now, LastSeen: now}
	require.NoError(h.t, h.sessions.Save(context.Background(), id, data, now.Add(time.Hour)))
	return &http.Cookie{Name: testCookie, Value: id}
}

func (h *harness) addSystem(name string) domain.System {
	h.t.Helper()
	sys := &domain.System{
		OrganisationID:    h.org.ID,
		Name:              name,
		SystemType:        domain.SystemTypes[0].ID,
		LastAssessed:      domain.AssessedChoices[0].ID,
		SystemOwner:       []string{domain.OwnerTypes[0].ID},
		HostingType:       []string{domain.HostingTypes[0].ID},
		CorporateServices: []string{domain.CorporateServices[0].ID},
	}
	require.NoError(h.t, h.store.Systems.Create(context.Background(), sys))
	return *sys
}

func (h *harness) addAssessment(sys domain.System, status domain.AssessmentStatus, data domain.AssessmentData) domain.Assessment {
	h.t.Helper()
	a := &domain.Assessment{
		SystemID:         sys.ID,
		AssessmentPeriod: "25/26",
		Framework:        "caf32",
		CAFProfile:       domain.ProfileBaseline,
		ReviewType:       domain.ReviewSelfAssessment,
		Status:           status,
		Data:             data,
		CreatedBy:        h.lead.ID,
		LastUpdatedBy:    h.lead.ID,
	}
	require.NoError(h.t, h.store.Assessments.Create(context.Background(), a))
	return *a
}

func (h *harness) assessment(id int64) domain.Assessment {
	h.t.Helper()
	a, err := h.store.Assessments.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return *a
}

func (h *harness) do(method, target string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

// sessionCookie returns the session cookie set by w, or current when none was set.
func sessionCookie(w *httptest.ResponseRecorder, current *http.Cookie) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == testCookie && c.Value != "" {
			return c
		}
	}
	return current
}

func indicatorIDs(o *framework.Outcome) []string {
	ids := make([]string, 0, len(o.Indicators))
	for _, ind := range o.Indicators {
		ids = append(ids, ind.ID)
	}
	return ids
}

func baselineOutcomes(t *testing.T) []framework.OutcomeRef {
	t.Helper()
	fw, err := framework.Get("caf32")
	require.NoError(t, err)
	refs := fw.OutcomesFor(domain.ProfileBaseline)
	require.NotEmpty(t, refs)
	return refs
}

// completeData confirms every baseline outcome.
func completeData(t *testing.T) domain.AssessmentData {
	t.Helper()
	data := domain.AssessmentData{}
	for _, ref := range baselineOutcomes(t) {
		rec := workflow.FillOutcome(indicatorIDs(ref.Outcome), nil)
		rec, err := workflow.Confirm(rec, workflow.ConfirmChoice, "Summary for "+ref.Outcome.Code)
		require.NoError(t, err)
		data.SetOutcome(ref.Objective, ref.Outcome.Code, rec)
	}
	return data
}
