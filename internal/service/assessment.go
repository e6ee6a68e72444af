package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/framework"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/workflow"
)

// AssessmentService drives the draft wizard and the assessment lifecycle.
//
// Every write path loads the assessment through the caller's organisation and
// the draft status, so another organisation's assessment, or one that has
// been submitted, surfaces as a permission error rather than a 404.
type AssessmentService struct {
	repos   Repos
	policy  *policy.Policy
	events  domain.EventPublisher
	metrics *metrics.Collector
}

// NewAssessmentService creates an AssessmentService. events and m may be nil.
func NewAssessmentService(repos Repos, p *policy.Policy, events domain.EventPublisher, m *metrics.Collector) *AssessmentService {
	return &AssessmentService{repos: repos, policy: p, events: events, metrics: m}
}

func (s *AssessmentService) currentConfig(ctx context.Context) (*domain.Configuration, error) {
	c, err := s.repos.Configurations.Default(ctx)
	if err != nil {
		return nil, fmt.Errorf("default configuration: %w", err)
	}
	return c, nil
}

// Candidates lists the systems the draft may choose: the organisation's
// systems with no live assessment in the current period, plus the system of
// the assessment being edited.
func (s *AssessmentService) Candidates(ctx context.Context, caller Caller, draft workflow.Draft) ([]domain.System, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	cfg, err := s.currentConfig(ctx)
	if err != nil {
		return nil, err
	}
	var include int64
	if draft.AssessmentID != 0 {
		include = draft.System
	}
	systems, err := s.repos.Systems.Candidates(ctx, orgID, cfg.CurrentAssessmentPeriod(), include)
	if err != nil {
		return nil, fmt.Errorf("list candidate systems: %w", err)
	}
	return systems, nil
}

// ChooseSystem records systemID on the draft if it is a candidate.
func (s *AssessmentService) ChooseSystem(ctx context.Context, caller Caller, draft *workflow.Draft, systemID int64) error {
	candidates, err := s.Candidates(ctx, caller, *draft)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(candidates, func(sys domain.System) bool { return sys.ID == systemID })
	if idx < 0 {
		return apperrors.Validation(apperrors.FieldError{
			Field: "system", Code: apperrors.CodeFieldInvalid, Message: "Select a system.",
		})
	}
	return draft.ChooseSystem(systemID, candidates[idx].Name)
}

// Materialise writes the draft once it is Ready. A new draft is found or
// created on (system, current period, default framework); a draft with an
// assessment id updates that assessment's selection. The session draft is
// refreshed from the stored row.
func (s *AssessmentService) Materialise(ctx context.Context, caller Caller, draft *workflow.Draft) (*domain.Assessment, error) {
	if !draft.Ready() {
		return nil, apperrors.BadRequest(apperrors.CodeDraftIncomplete, "choose a system, CAF profile and review type first")
	}
	if _, err := caller.requireOrganisation(); err != nil {
		return nil, err
	}
	if draft.AssessmentID != 0 {
		return s.updateSelection(ctx, caller, draft)
	}
	return s.getOrCreate(ctx, caller, draft)
}

func (s *AssessmentService) getOrCreate(ctx context.Context, caller Caller, draft *workflow.Draft) (*domain.Assessment, error) {
	if err := s.policy.Authorize(caller.Subject(), policy.ActionEditAssessment, policy.Resource{OrganisationID: caller.OrganisationID()}); err != nil {
		return nil, err
	}
	cfg, err := s.currentConfig(ctx)
	if err != nil {
		return nil, err
	}
	fw := cfg.DefaultFramework()
	if _, err := framework.Get(fw); err != nil {
		return nil, err
	}
	sys, err := s.repos.Systems.GetByID(ctx, draft.System)
	if err != nil {
		return nil, fmt.Errorf("get system: %w", err)
	}
	if sys.OrganisationID != caller.OrganisationID() {
		return nil, apperrors.Forbidden(apperrors.CodeCrossOrganisation, "the system belongs to a different organisation")
	}

	var (
		assessment *domain.Assessment
		created    bool
	)
	err = s.repos.InTx(ctx, func(tx Repos) error {
		existing, err := tx.Assessments.FindDraft(ctx, draft.System, cfg.CurrentAssessmentPeriod(), fw)
		if err == nil {
			assessment = existing
			return nil
		}
		if !isNotFound(err) {
			return fmt.Errorf("find draft: %w", err)
		}

		a := &domain.Assessment{
			SystemID:         draft.System,
			AssessmentPeriod: cfg.CurrentAssessmentPeriod(),
			Framework:        fw,
			CAFProfile:       draft.CAFProfile,
			ReviewType:       draft.ReviewType,
			Status:           domain.StatusDraft,
			Data:             domain.AssessmentData{},
			CreatedBy:        caller.User.ID,
			LastUpdatedBy:    caller.User.ID,
		}
		if due, err := cfg.SubmissionDueDate(); err == nil {
			a.SubmissionDueDate = &due
		} else {
			logger.Warn("configuration has no usable due date", zap.String("configuration", cfg.Name), zap.Error(err))
		}
		if err := tx.Assessments.Create(ctx, a); err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}
		created = true
		assessment, err = tx.Assessments.GetByID(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	*draft = workflow.FromAssessment(*assessment)
	if created {
		logger.Info("draft assessment created",
			zap.Int64("assessment_id", assessment.ID),
			zap.Int64("system_id", assessment.SystemID),
			zap.String("period", assessment.AssessmentPeriod),
		)
		s.publish(ctx, caller, domain.EventAssessmentCreated, *assessment)
	}
	return assessment, nil
}

func (s *AssessmentService) updateSelection(ctx context.Context, caller Caller, draft *workflow.Draft) (*domain.Assessment, error) {
	current, err := s.LoadForEdit(ctx, caller, draft.AssessmentID)
	if err != nil {
		return nil, err
	}
	if draft.System != current.SystemID {
		sys, err := s.repos.Systems.GetByID(ctx, draft.System)
		if err != nil {
			return nil, fmt.Errorf("get system: %w", err)
		}
		if sys.OrganisationID != caller.OrganisationID() {
			return nil, apperrors.Forbidden(apperrors.CodeCrossOrganisation, "the system belongs to a different organisation")
		}
	}
	current.SystemID = draft.System
	current.CAFProfile = draft.CAFProfile
	current.ReviewType = draft.ReviewType
	current.LastUpdatedBy = caller.User.ID
	if err := s.repos.Assessments.UpdateSelection(ctx, *current); err != nil {
		return nil, fmt.Errorf("update assessment: %w", err)
	}
	updated, err := s.repos.Assessments.GetByID(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("reload assessment: %w", err)
	}
	*draft = workflow.FromAssessment(*updated)
	return updated, nil
}

// LoadForEdit returns a draft of the caller's organisation. Anything else is
// a permission error.
func (s *AssessmentService) LoadForEdit(ctx context.Context, caller Caller, id int64) (*domain.Assessment, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionEditAssessment, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	a, err := s.repos.Assessments.GetForOrganisation(ctx, id, orgID, domain.StatusDraft)
	if err != nil {
		if isNotFound(err) {
			logger.Warn("edit of non-draft or foreign assessment refused",
				zap.Int64("assessment_id", id),
				zap.Int64("organisation_id", orgID),
				zap.Int64("user_id", caller.User.ID),
			)
			return nil, apperrors.ErrPermissionDenied("you cannot edit this assessment")
		}
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	return a, nil
}

// Drafts lists the organisation's drafts with their progress.
func (s *AssessmentService) Drafts(ctx context.Context, caller Caller) ([]DraftSummary, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	drafts, err := s.repos.Assessments.ListByOrganisation(ctx, orgID, domain.StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	out := make([]DraftSummary, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, summariseDraft(d))
	}
	return out, nil
}

// OutcomeView is an outcome page: the definition plus what is stored.
type OutcomeView struct {
	Assessment *domain.Assessment
	Ref        framework.OutcomeRef
	Grouped    map[workflow.Bucket][]framework.Indicator
	Record     domain.OutcomeRecord
	Recorded   bool
}

// Outcome loads an outcome of an editable assessment.
func (s *AssessmentService) Outcome(ctx context.Context, caller Caller, id int64, objective, outcome string) (*OutcomeView, error) {
	a, err := s.LoadForEdit(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	ref, err := findOutcome(*a, objective, outcome)
	if err != nil {
		return nil, err
	}
	view := &OutcomeView{Assessment: a, Ref: ref, Grouped: map[workflow.Bucket][]framework.Indicator{}}
	for _, ind := range ref.Outcome.Indicators {
		if b := workflow.BucketOf(ind.ID); b != "" {
			view.Grouped[b] = append(view.Grouped[b], ind)
		}
	}
	view.Record, view.Recorded = a.Data.Outcome(objective, outcome)
	return view, nil
}

func findOutcome(a domain.Assessment, objective, outcome string) (framework.OutcomeRef, error) {
	fw, err := framework.Get(a.Framework)
	if err != nil {
		return framework.OutcomeRef{}, err
	}
	ref, ok := fw.Find(objective, outcome)
	if !ok || !ref.Outcome.AppliesTo(a.CAFProfile) {
		return framework.OutcomeRef{}, apperrors.NotFound(apperrors.CodeOutcomeNotFound,
			fmt.Sprintf("outcome %s/%s is not part of this assessment", objective, outcome))
	}
	return ref, nil
}

func indicatorIDs(o *framework.Outcome) []string {
	ids := make([]string, 0, len(o.Indicators))
	for _, ind := range o.Indicators {
		ids = append(ids, ind.ID)
	}
	return ids
}

// FillOutcome builds the unconfirmed record for the confirm step. Checked
// holds the ticked indicator ids; directives, keyed by bucket, add the items
// a fill directive selects within that bucket.
func (s *AssessmentService) FillOutcome(ctx context.Context, caller Caller, id int64, objective, outcome string,
	checked []string, directives map[workflow.Bucket]string) (domain.OutcomeRecord, error) {
	view, err := s.Outcome(ctx, caller, id, objective, outcome)
	if err != nil {
		return domain.OutcomeRecord{}, err
	}
	all := indicatorIDs(view.Ref.Outcome)
	grouped := workflow.GroupIndicators(all)
	selected := slices.Clone(checked)
	for _, b := range workflow.Buckets {
		selected = append(selected, workflow.ApplyDirective(directives[b], grouped[b])...)
	}
	return workflow.FillOutcome(all, selected), nil
}

// ConfirmOutcome validates the confirm step and records the outcome.
func (s *AssessmentService) ConfirmOutcome(ctx context.Context, caller Caller, id int64, objective, outcome string,
	checked []string, choice, comment string) (domain.OutcomeRecord, error) {
	a, err := s.LoadForEdit(ctx, caller, id)
	if err != nil {
		return domain.OutcomeRecord{}, err
	}
	ref, err := findOutcome(*a, objective, outcome)
	if err != nil {
		return domain.OutcomeRecord{}, err
	}
	rec := workflow.FillOutcome(indicatorIDs(ref.Outcome), checked)
	rec, err = workflow.Confirm(rec, choice, comment)
	if err != nil {
		return rec, err
	}

	data := a.Data
	if data == nil {
		data = domain.AssessmentData{}
	}
	data.SetOutcome(objective, outcome, rec)
	if err := s.repos.Assessments.UpdateData(ctx, a.ID, data, caller.User.ID); err != nil {
		return rec, fmt.Errorf("save outcome: %w", err)
	}
	logger.Debug("outcome confirmed",
		zap.Int64("assessment_id", a.ID),
		zap.String("objective", objective),
		zap.String("outcome", outcome),
		zap.String("status", rec.Status),
	)
	return rec, nil
}

// Submit moves a complete draft to submitted.
func (s *AssessmentService) Submit(ctx context.Context, caller Caller, id int64) (*domain.Assessment, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionSubmitAssessment, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	a, err := s.LoadForEdit(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	fw, err := framework.Get(a.Framework)
	if err != nil {
		return nil, err
	}
	if !fw.IsComplete(a.CAFProfile, a.Data) {
		done, total := fw.Progress(a.CAFProfile, a.Data)
		return nil, apperrors.Forbidden(apperrors.CodeAssessmentIncomplete,
			fmt.Sprintf("%d of %d outcomes are confirmed", done, total))
	}
	return s.transition(ctx, caller, a, domain.StatusDraft, domain.StatusSubmitted, domain.EventAssessmentSubmitted)
}

// Complete moves a submitted assessment to completed.
func (s *AssessmentService) Complete(ctx context.Context, caller Caller, id int64) (*domain.Assessment, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionCompleteAssessment, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	a, err := s.repos.Assessments.GetForOrganisation(ctx, id, orgID, domain.StatusSubmitted)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.Forbidden(apperrors.CodeAssessmentWrongStatus, "only submitted assessments can be completed")
		}
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	return s.transition(ctx, caller, a, domain.StatusSubmitted, domain.StatusCompleted, domain.EventAssessmentCompleted)
}

func (s *AssessmentService) transition(ctx context.Context, caller Caller, a *domain.Assessment,
	from, to domain.AssessmentStatus, eventType domain.EventType) (*domain.Assessment, error) {
	if err := s.repos.Assessments.Transition(ctx, a.ID, from, to, caller.User.ID); err != nil {
		return nil, fmt.Errorf("%s assessment: %w", to, err)
	}
	updated, err := s.repos.Assessments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("reload assessment: %w", err)
	}
	s.metrics.Transition(string(to))
	logger.Info("assessment transitioned",
		zap.Int64("assessment_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int64("actor_id", caller.User.ID),
	)
	s.publish(ctx, caller, eventType, *updated)
	return updated, nil
}

func (s *AssessmentService) publish(ctx context.Context, caller Caller, eventType domain.EventType, a domain.Assessment) {
	publish(ctx, s.events, eventType, "assessment", a.ID, caller.Actor(), domain.AssessmentEventPayload{
		AssessmentID:   a.ID,
		SystemID:       a.SystemID,
		SystemName:     a.SystemName,
		OrganisationID: a.OrganisationID,
		Reference:      a.Reference(),
		Period:         a.AssessmentPeriod,
		Status:         a.Status,
		ActorID:        caller.User.ID,
	})
}

// ForExport loads a submitted or completed assessment of the caller's
// organisation for download.
func (s *AssessmentService) ForExport(ctx context.Context, caller Caller, id int64) (*domain.Assessment, error) {
	orgID, err := caller.requireOrganisation()
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(caller.Subject(), policy.ActionExportAssessment, policy.Resource{OrganisationID: orgID}); err != nil {
		return nil, err
	}
	a, err := s.repos.Assessments.GetForOrganisation(ctx, id, orgID, domain.StatusSubmitted, domain.StatusCompleted)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrAssessmentNotFound()
		}
		return nil, fmt.Errorf("load assessment: %w", err)
	}
	return a, nil
}

// IsPermission reports whether err should render the permission page.
func IsPermission(err error) bool {
	return apperrors.IsForbidden(err) && !errors.Is(err, apperrors.ErrNoProfile)
}
