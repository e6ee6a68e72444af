package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
)

// MemStore is an in-memory stand-in for repository.Store. Each field has the
// same method set as the matching pgx repository, including its error codes.
//
// The clock advances one second per write so "most recently updated" ordering
// is deterministic.
type MemStore struct {
	mu    sync.Mutex
	clock time.Time
	seq   int64

	users         map[int64]domain.User
	organisations map[int64]domain.Organisation
	systems       map[int64]domain.System
	profiles      map[int64]domain.UserProfile
	assessments   map[int64]domain.Assessment
	configs       map[string]domain.Configuration
	notifications []domain.Notification
	audit         []domain.AuditEntry

	Users          *MemUsers
	Organisations  *MemOrganisations
	Systems        *MemSystems
	Profiles       *MemProfiles
	Assessments    *MemAssessments
	Configurations *MemConfigurations
	Notifications  *MemNotifications
	Audit          *MemAudit
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	s := &MemStore{
		clock:         time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		users:         map[int64]domain.User{},
		organisations: map[int64]domain.Organisation{},
		systems:       map[int64]domain.System{},
		profiles:      map[int64]domain.UserProfile{},
		assessments:   map[int64]domain.Assessment{},
		configs:       map[string]domain.Configuration{},
	}
	s.Users = &MemUsers{s}
	s.Organisations = &MemOrganisations{s}
	s.Systems = &MemSystems{s}
	s.Profiles = &MemProfiles{s}
	s.Assessments = &MemAssessments{s}
	s.Configurations = &MemConfigurations{s}
	s.Notifications = &MemNotifications{s}
	s.Audit = &MemAudit{s}
	return s
}

func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *MemStore) nextID() int64 {
	s.seq++
	return s.seq
}

// Now returns the store's current clock.
func (s *MemStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// MemUsers mirrors repository.UserRepository.
type MemUsers struct{ s *MemStore }

func (r *MemUsers) find(match func(domain.User) bool) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.users))
	for id := range r.s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if u := r.s.users[id]; match(u) {
			return &u, nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
}

func (r *MemUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *MemUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	if u, err := r.find(func(u domain.User) bool { return u.Username == username }); err == nil {
		return u, nil
	}
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *MemUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *MemUsers) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Username == u.Username {
			return apperrors.Conflict(apperrors.CodeUserExists, fmt.Sprintf("user %s already exists", u.Username))
		}
	}
	u.ID = r.s.nextID()
	u.CreatedAt = r.s.tick()
	r.s.users[u.ID] = *u
	return nil
}

func (r *MemUsers) Update(_ context.Context, u domain.User) error {
	return r.mutate(u.ID, func(cur *domain.User) {
		cur.Email, cur.FirstName, cur.LastName = u.Email, u.FirstName, u.LastName
		if u.Username != "" {
			cur.Username = u.Username
		}
		cur.IsStaff, cur.IsSuperuser, cur.IsActive = u.IsStaff, u.IsSuperuser, u.IsActive
	})
}

func (r *MemUsers) SetPassword(_ context.Context, id int64, hash string) error {
	return r.mutate(id, func(cur *domain.User) { cur.PasswordHash = hash })
}

func (r *MemUsers) SetOTPSecret(_ context.Context, id int64, secret string) error {
	return r.mutate(id, func(cur *domain.User) { cur.OTPSecret = secret })
}

func (r *MemUsers) TouchLogin(_ context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(cur *domain.User) { cur.LastLoginAt = &at })
}

func (r *MemUsers) mutate(id int64, fn func(*domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[id]
	if !ok {
		return apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")
	}
	fn(&cur)
	r.s.users[id] = cur
	return nil
}

// ---------------------------------------------------------------------------
// Organisations
// ---------------------------------------------------------------------------

// MemOrganisations mirrors repository.OrganisationRepository.
type MemOrganisations struct{ s *MemStore }

func (r *MemOrganisations) GetByID(_ context.Context, id int64) (*domain.Organisation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.organisations[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
	}
	return &o, nil
}

func (r *MemOrganisations) GetByName(_ context.Context, name string) (*domain.Organisation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.organisations {
		if domain.NormaliseName(o.Name) == domain.NormaliseName(name) {
			return &o, nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
}

func (r *MemOrganisations) First(ctx context.Context) (*domain.Organisation, error) {
	all, _ := r.List(ctx)
	if len(all) == 0 {
		return nil, apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return &all[0], nil
}

func (r *MemOrganisations) List(context.Context) ([]domain.Organisation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Organisation, 0, len(r.s.organisations))
	for _, o := range r.s.organisations {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemOrganisations) FindOrCreateByName(ctx context.Context, name string) (*domain.Organisation, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperrors.BadRequest(apperrors.CodeValidationFailed, "organisation name is required")
	}
	if o, err := r.GetByName(ctx, name); err == nil {
		return o, false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	o := domain.Organisation{ID: r.s.nextID(), Name: name, CreatedAt: now, UpdatedAt: now}
	r.s.organisations[o.ID] = o
	return &o, true, nil
}

func (r *MemOrganisations) Update(_ context.Context, o domain.Organisation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.organisations[o.ID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeOrganisationNotFound, "organisation not found")
	}
	cur.OrganisationType = o.OrganisationType
	cur.ContactName, cur.ContactRole, cur.ContactEmail = o.ContactName, o.ContactRole, o.ContactEmail
	cur.UpdatedAt = r.s.tick()
	r.s.organisations[o.ID] = cur
	return nil
}

// ---------------------------------------------------------------------------
// Systems
// ---------------------------------------------------------------------------

// MemSystems mirrors repository.SystemRepository.
type MemSystems struct{ s *MemStore }

func (r *MemSystems) GetByID(_ context.Context, id int64) (*domain.System, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sys, ok := r.s.systems[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeSystemNotFound, "system not found")
	}
	return &sys, nil
}

func (r *MemSystems) list(match func(domain.System) bool) []domain.System {
	out := []domain.System{}
	for _, sys := range r.s.systems {
		if match(sys) {
			out = append(out, sys)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *MemSystems) ListByOrganisation(_ context.Context, orgID int64) ([]domain.System, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(s domain.System) bool { return s.OrganisationID == orgID }), nil
}

func (r *MemSystems) CountByOrganisation(ctx context.Context, orgID int64) (int, error) {
	all, err := r.ListByOrganisation(ctx, orgID)
	return len(all), err
}

func (r *MemSystems) NameTaken(_ context.Context, orgID int64, name string, excludeID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.nameTaken(orgID, name, excludeID), nil
}

func (r *MemSystems) nameTaken(orgID int64, name string, excludeID int64) bool {
	for _, sys := range r.s.systems {
		if sys.OrganisationID == orgID && sys.Name == name && sys.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *MemSystems) Candidates(_ context.Context, orgID int64, period string, includeID int64) ([]domain.System, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	claimed := map[int64]bool{}
	for _, a := range r.s.assessments {
		if a.AssessmentPeriod == period && slices.Contains(domain.LiveStatuses, a.Status) {
			claimed[a.SystemID] = true
		}
	}
	return r.list(func(s domain.System) bool {
		return s.OrganisationID == orgID && (s.ID == includeID || !claimed[s.ID])
	}), nil
}

func (r *MemSystems) Create(_ context.Context, sys *domain.System) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.nameTaken(sys.OrganisationID, sys.Name, 0) {
		return apperrors.Conflict(apperrors.CodeSystemExists, fmt.Sprintf("A system with this name %s already exists.", sys.Name))
	}
	sys.ID = r.s.nextID()
	sys.CreatedAt = r.s.tick()
	sys.UpdatedAt = sys.CreatedAt
	r.s.systems[sys.ID] = *sys
	return nil
}

func (r *MemSystems) Update(_ context.Context, sys domain.System) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.systems[sys.ID]
	if !ok {
		return apperrors.NotFound(apperrors.CodeSystemNotFound, "system not found")
	}
	if r.nameTaken(cur.OrganisationID, sys.Name, sys.ID) {
		return apperrors.Conflict(apperrors.CodeSystemExists, fmt.Sprintf("A system with this name %s already exists.", sys.Name))
	}
	sys.OrganisationID = cur.OrganisationID
	sys.CreatedAt = cur.CreatedAt
	sys.UpdatedAt = r.s.tick()
	r.s.systems[sys.ID] = sys
	return nil
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

// MemProfiles mirrors repository.ProfileRepository. Returned profiles carry
// the joined user and organisation.
type MemProfiles struct{ s *MemStore }

func (r *MemProfiles) joined(p domain.UserProfile) domain.UserProfile {
	p.User = r.s.users[p.UserID]
	if p.OrganisationID != nil {
		if o, ok := r.s.organisations[*p.OrganisationID]; ok {
			p.Organisation = &o
		}
	}
	return p
}

func (r *MemProfiles) list(match func(domain.UserProfile) bool) []domain.UserProfile {
	out := []domain.UserProfile{}
	for _, p := range r.s.profiles {
		if match(p) {
			out = append(out, r.joined(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemProfiles) GetByID(_ context.Context, id int64) (*domain.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
	}
	p = r.joined(p)
	return &p, nil
}

func (r *MemProfiles) ListByUser(_ context.Context, userID int64) ([]domain.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p domain.UserProfile) bool { return p.UserID == userID }), nil
}

func (r *MemProfiles) ListByOrganisation(_ context.Context, orgID int64) ([]domain.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(p domain.UserProfile) bool { return p.OrgID() == orgID }), nil
}

func (r *MemProfiles) CountByRole(ctx context.Context, orgID int64, role domain.Role) (int, error) {
	ids, err := r.UserIDsByRole(ctx, orgID, role)
	return len(ids), err
}

func (r *MemProfiles) UserIDsByRole(_ context.Context, orgID int64, role domain.Role) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, p := range r.list(func(p domain.UserProfile) bool { return p.OrgID() == orgID && p.Role == role }) {
		if !slices.Contains(ids, p.UserID) {
			ids = append(ids, p.UserID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *MemProfiles) existing(userID, orgID int64) (domain.UserProfile, bool) {
	for _, p := range r.s.profiles {
		if p.UserID == userID && p.OrgID() == orgID {
			return p, true
		}
	}
	return domain.UserProfile{}, false
}

func (r *MemProfiles) Create(_ context.Context, p *domain.UserProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	orgID := int64(0)
	if p.OrganisationID != nil {
		orgID = *p.OrganisationID
	}
	if _, dup := r.existing(p.UserID, orgID); dup {
		return apperrors.Conflict(apperrors.CodeProfileExists, "the user already has a profile in this organisation")
	}
	p.ID = r.s.nextID()
	p.CreatedAt = r.s.tick()
	r.s.profiles[p.ID] = domain.UserProfile{ID: p.ID, UserID: p.UserID, OrganisationID: p.OrganisationID, Role: p.Role, CreatedAt: p.CreatedAt}
	return nil
}

func (r *MemProfiles) Upsert(ctx context.Context, p *domain.UserProfile) error {
	r.s.mu.Lock()
	orgID := int64(0)
	if p.OrganisationID != nil {
		orgID = *p.OrganisationID
	}
	if cur, ok := r.existing(p.UserID, orgID); ok {
		cur.Role = p.Role
		r.s.profiles[cur.ID] = cur
		p.ID, p.CreatedAt = cur.ID, cur.CreatedAt
		r.s.mu.Unlock()
		return nil
	}
	r.s.mu.Unlock()
	return r.Create(ctx, p)
}

func (r *MemProfiles) UpdateRole(_ context.Context, id int64, role domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.profiles[id]
	if !ok {
		return apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
	}
	cur.Role = role
	r.s.profiles[id] = cur
	return nil
}

func (r *MemProfiles) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[id]; !ok {
		return apperrors.NotFound(apperrors.CodeProfileNotFound, "profile not found")
	}
	delete(r.s.profiles, id)
	return nil
}

// ---------------------------------------------------------------------------
// Assessments
// ---------------------------------------------------------------------------

// MemAssessments mirrors repository.AssessmentRepository, including the
// one-live-assessment-per-system-and-period constraint.
type MemAssessments struct{ s *MemStore }

func (r *MemAssessments) joined(a domain.Assessment) domain.Assessment {
	sys := r.s.systems[a.SystemID]
	a.SystemName = sys.Name
	a.OrganisationID = sys.OrganisationID
	a.OrganisationName = r.s.organisations[sys.OrganisationID].Name
	a.CreatedByName = r.s.users[a.CreatedBy].Username
	if a.Data == nil {
		a.Data = domain.AssessmentData{}
	}
	a.Data = cloneData(a.Data)
	return a
}

func cloneData(d domain.AssessmentData) domain.AssessmentData {
	out := make(domain.AssessmentData, len(d))
	for obj, outcomes := range d {
		out[obj] = make(map[string]domain.OutcomeRecord, len(outcomes))
		for code, rec := range outcomes {
			indicators := make(map[string]bool, len(rec.Indicators))
			for k, v := range rec.Indicators {
				indicators[k] = v
			}
			rec.Indicators = indicators
			out[obj][code] = rec
		}
	}
	return out
}

func withDefault(statuses []domain.AssessmentStatus) []domain.AssessmentStatus {
	if len(statuses) == 0 {
		return domain.LiveStatuses
	}
	return statuses
}

func (r *MemAssessments) get(match func(domain.Assessment) bool) (*domain.Assessment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assessments {
		if match(a) {
			a = r.joined(a)
			return &a, nil
		}
	}
	return nil, apperrors.ErrAssessmentNotFound()
}

func (r *MemAssessments) GetByID(_ context.Context, id int64) (*domain.Assessment, error) {
	return r.get(func(a domain.Assessment) bool { return a.ID == id })
}

func (r *MemAssessments) GetForOrganisation(_ context.Context, id, orgID int64, statuses ...domain.AssessmentStatus) (*domain.Assessment, error) {
	statuses = withDefault(statuses)
	return r.get(func(a domain.Assessment) bool {
		return a.ID == id && r.s.systems[a.SystemID].OrganisationID == orgID && slices.Contains(statuses, a.Status)
	})
}

func (r *MemAssessments) ListByOrganisation(_ context.Context, orgID int64, statuses ...domain.AssessmentStatus) ([]domain.Assessment, error) {
	statuses = withDefault(statuses)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Assessment{}
	for _, a := range r.s.assessments {
		if r.s.systems[a.SystemID].OrganisationID == orgID && slices.Contains(statuses, a.Status) {
			out = append(out, r.joined(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (r *MemAssessments) FindDraft(_ context.Context, systemID int64, period, framework string) (*domain.Assessment, error) {
	return r.get(func(a domain.Assessment) bool {
		return a.SystemID == systemID && a.AssessmentPeriod == period && a.Framework == framework && a.Status == domain.StatusDraft
	})
}

func (r *MemAssessments) liveConflict(systemID int64, period string, excludeID int64) bool {
	for _, a := range r.s.assessments {
		if a.ID != excludeID && a.SystemID == systemID && a.AssessmentPeriod == period && slices.Contains(domain.LiveStatuses, a.Status) {
			return true
		}
	}
	return false
}

func (r *MemAssessments) Create(_ context.Context, a *domain.Assessment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.Status == "" {
		a.Status = domain.StatusDraft
	}
	if r.liveConflict(a.SystemID, a.AssessmentPeriod, 0) {
		return apperrors.Conflict(apperrors.CodeAssessmentExists, "the system already has an assessment for this period")
	}
	a.ID = r.s.nextID()
	a.CreatedOn = r.s.tick()
	a.LastUpdated = a.CreatedOn
	stored := *a
	if stored.Data == nil {
		stored.Data = domain.AssessmentData{}
	}
	stored.Data = cloneData(stored.Data)
	r.s.assessments[a.ID] = stored
	return nil
}

func (r *MemAssessments) mutateDraft(id int64, fn func(*domain.Assessment) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.assessments[id]
	if !ok || cur.Status != domain.StatusDraft {
		return apperrors.Forbidden(apperrors.CodeAssessmentNotEditable, "only draft assessments can be edited")
	}
	if err := fn(&cur); err != nil {
		return err
	}
	cur.LastUpdated = r.s.tick()
	r.s.assessments[id] = cur
	return nil
}

func (r *MemAssessments) UpdateSelection(_ context.Context, a domain.Assessment) error {
	return r.mutateDraft(a.ID, func(cur *domain.Assessment) error {
		if r.liveConflict(a.SystemID, cur.AssessmentPeriod, a.ID) {
			return apperrors.Conflict(apperrors.CodeAssessmentExists, "the system already has an assessment for this period")
		}
		cur.SystemID, cur.CAFProfile, cur.ReviewType, cur.LastUpdatedBy = a.SystemID, a.CAFProfile, a.ReviewType, a.LastUpdatedBy
		return nil
	})
}

func (r *MemAssessments) UpdateData(_ context.Context, id int64, data domain.AssessmentData, updatedBy int64) error {
	return r.mutateDraft(id, func(cur *domain.Assessment) error {
		cur.Data = cloneData(data)
		cur.LastUpdatedBy = updatedBy
		return nil
	})
}

func (r *MemAssessments) Transition(_ context.Context, id int64, from, to domain.AssessmentStatus, updatedBy int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.assessments[id]
	if !ok || cur.Status != from {
		return apperrors.Forbidden(apperrors.CodeAssessmentWrongStatus, fmt.Sprintf("assessment is not %s", from))
	}
	now := r.s.tick()
	cur.Status = to
	cur.LastUpdatedBy = updatedBy
	cur.LastUpdated = now
	if to == domain.StatusSubmitted {
		cur.SubmittedAt = &now
	}
	r.s.assessments[id] = cur
	return nil
}

func (r *MemAssessments) DueBetween(_ context.Context, from, to time.Time) ([]domain.Assessment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Assessment{}
	for _, a := range r.s.assessments {
		due := a.SubmissionDueDate
		if a.Status == domain.StatusDraft && due != nil && !due.Before(from) && due.Before(to) {
			out = append(out, r.joined(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionDueDate.Before(*out[j].SubmissionDueDate) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Configurations
// ---------------------------------------------------------------------------

// MemConfigurations mirrors repository.ConfigurationRepository.
type MemConfigurations struct{ s *MemStore }

func (r *MemConfigurations) Default(context.Context) (*domain.Configuration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.configs {
		if c.IsDefault {
			return &c, nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeConfigurationNotFound, "no default configuration")
}

func (r *MemConfigurations) GetByName(_ context.Context, name string) (*domain.Configuration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.configs[name]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeConfigurationNotFound, "configuration not found")
	}
	return &c, nil
}

func (r *MemConfigurations) List(context.Context) ([]domain.Configuration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Configuration, 0, len(r.s.configs))
	for _, c := range r.s.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemConfigurations) Upsert(_ context.Context, c *domain.Configuration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.configs[c.Name]; ok {
		cur.ConfigData = c.ConfigData
		r.s.configs[c.Name] = cur
		*c = cur
		return nil
	}
	c.ID = r.s.nextID()
	c.CreatedAt = r.s.tick()
	r.s.configs[c.Name] = *c
	return nil
}

func (r *MemConfigurations) SetDefault(_ context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.configs[name]; !ok {
		return apperrors.NotFound(apperrors.CodeConfigurationNotFound, fmt.Sprintf("configuration %s not found", name))
	}
	for n, c := range r.s.configs {
		c.IsDefault = n == name
		r.s.configs[n] = c
	}
	return nil
}

// ---------------------------------------------------------------------------
// Notifications and audit
// ---------------------------------------------------------------------------

// MemNotifications mirrors repository.NotificationRepository.
type MemNotifications struct{ s *MemStore }

func (r *MemNotifications) Create(_ context.Context, n domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.CreatedAt = r.s.tick()
	r.s.notifications = append(r.s.notifications, n)
	return nil
}

func (r *MemNotifications) ListForRecipient(_ context.Context, userID int64, limit int) ([]domain.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Notification{}
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.RecipientID == userID {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemNotifications) CountUnread(ctx context.Context, userID int64) (int, error) {
	all, _ := r.ListForRecipient(ctx, userID, 0)
	n := 0
	for _, item := range all {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (r *MemNotifications) MarkRead(_ context.Context, id string, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, n := range r.s.notifications {
		if n.ID == id && n.RecipientID == userID {
			r.s.notifications[i].Read = true
			return nil
		}
	}
	return apperrors.NotFound(apperrors.CodeNotificationNotFound, "notification not found")
}

func (r *MemNotifications) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.notifications[:0]
	var deleted int64
	for _, n := range r.s.notifications {
		if n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	r.s.notifications = kept
	return deleted, nil
}

// MemAudit mirrors repository.AuditRepository.
type MemAudit struct{ s *MemStore }

func (r *MemAudit) Insert(_ context.Context, e domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.CreatedAt = r.s.tick()
	r.s.audit = append(r.s.audit, e)
	return nil
}

func (r *MemAudit) ListByResource(_ context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.AuditEntry{}
	for _, e := range r.s.audit {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Actions returns every audited action in insertion order.
func (r *MemAudit) Actions() []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, len(r.s.audit))
	for i, e := range r.s.audit {
		out[i] = e.Action
	}
	return out
}
