package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcaf.gov.uk/webcaf/internal/domain"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/policy"
	"webcaf.gov.uk/webcaf/internal/workflow"
)

func TestAssessmentService_WizardCreatesDraft(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sys := f.addSystem(t, f.org.ID, "Big System")
	svc := f.assessments(policy.New())

	var draft workflow.Draft
	err := svc.ChooseSystem(ctx, f.orgUser, &draft, 424242)
	_, ok := apperrors.IsValidation(err)
	require.True(t, ok, "unknown system is not a candidate")

	require.NoError(t, svc.ChooseSystem(ctx, f.orgUser, &draft, sys.ID))
	assert.Equal(t, "Big System", draft.SystemName)
	require.NoError(t, draft.ChooseProfile(domain.ProfileBaseline))
	assert.False(t, draft.RoutesToReviewType())
	require.True(t, draft.Ready())

	created, err := svc.Materialise(ctx, f.orgUser, &draft)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.Equal(t, "25/26", created.AssessmentPeriod)
	assert.Equal(t, "caf32", created.Framework)
	assert.Equal(t, domain.ReviewSelfAssessment, created.ReviewType)
	assert.Equal(t, f.orgUser.User.ID, created.CreatedBy)
	require.NotNil(t, created.SubmissionDueDate)
	assert.Equal(t, 2026, created.SubmissionDueDate.Year())
	assert.Equal(t, created.ID, draft.AssessmentID)
	assert.Equal(t, workflow.StepEditingOutcomes, draft.NextStep())

	// Get-or-create: a fresh wizard for the same system finds the same draft.
	fresh := workflow.Draft{System: sys.ID, CAFProfile: domain.ProfileBaseline, ReviewType: domain.ReviewSelfAssessment}
	again, err := svc.Materialise(ctx, f.lead, &fresh)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	assert.Equal(t, []domain.EventType{domain.EventAssessmentCreated}, f.events.types())
}

func TestAssessmentService_Candidates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	taken := f.addSystem(t, f.org.ID, "Taken")
	free := f.addSystem(t, f.org.ID, "Free")
	f.addSystem(t, f.otherOrg.ID, "Elsewhere")
	existing := f.addAssessment(t, taken, domain.ProfileBaseline, nil)
	svc := f.assessments(policy.New())

	names := func(systems []domain.System) []string {
		out := []string{}
		for _, s := range systems {
			out = append(out, s.Name)
		}
		return out
	}

	got, err := svc.Candidates(ctx, f.orgUser, workflow.Draft{})
	require.NoError(t, err)
	assert.Equal(t, []string{free.Name}, names(got))

	got, err = svc.Candidates(ctx, f.orgUser, workflow.FromAssessment(existing))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{taken.Name, free.Name}, names(got))
}

func TestAssessmentService_EditSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sys := f.addSystem(t, f.org.ID, "Big System")
	a := f.addAssessment(t, sys, domain.ProfileBaseline, nil)
	svc := f.assessments(policy.New())

	draft := workflow.FromAssessment(a)
	require.NoError(t, draft.ChooseProfile(domain.ProfileEnhanced))
	assert.True(t, draft.RoutesToReviewType())

	updated, err := svc.Materialise(ctx, f.orgUser, &draft)
	require.NoError(t, err)
	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, domain.ProfileEnhanced, updated.CAFProfile)
	assert.Equal(t, domain.ReviewIndependent, updated.ReviewType)
	assert.Equal(t, f.orgUser.User.ID, updated.LastUpdatedBy)

	// Another organisation cannot edit it.
	_, err = svc.Materialise(ctx, f.outsider, &draft)
	assert.True(t, IsPermission(err))
}

func TestAssessmentService_LoadForEdit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sys := f.addSystem(t, f.org.ID, "Big System")
	done := f.addSystem(t, f.org.ID, "Done System")
	draft := f.addAssessment(t, sys, domain.ProfileBaseline, nil)
	submitted := f.addAssessment(t, done, domain.ProfileBaseline, nil)
	require.NoError(t, f.store.Assessments.Transition(ctx, submitted.ID, domain.StatusDraft, domain.StatusSubmitted, f.lead.User.ID))
	svc := f.assessments(policy.New())

	tests := []struct {
		name    string
		caller  Caller
		id      int64
		allowed bool
	}{
		{"own draft", f.orgUser, draft.ID, true},
		{"submitted is read-only", f.orgUser, submitted.ID, false},
		{"other organisation", f.outsider, draft.ID, false},
		{"missing", f.orgUser, 9999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.LoadForEdit(ctx, tt.caller, tt.id)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			assert.True(t, IsPermission(err), "got %v", err)
		})
	}
}

func TestAssessmentService_Outcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sys := f.addSystem(t, f.org.ID, "Big System")
	a := f.addAssessment(t, sys, domain.ProfileBaseline, nil)
	svc := f.assessments(policy.New())

	view, err := svc.Outcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a")
	require.NoError(t, err)
	assert.False(t, view.Recorded)
	assert.Len(t, view.Grouped[workflow.BucketAchieved], 2)
	assert.Len(t, view.Grouped[workflow.BucketNotAchieved], 3)

	_, err = svc.Outcome(ctx, f.orgUser, a.ID, "objective_A", "A2.b")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok, "enhanced outcome is out of scope for baseline")
	assert.Equal(t, apperrors.CodeOutcomeNotFound, appErr.Code)

	rec, err := svc.FillOutcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a", nil,
		map[workflow.Bucket]string{workflow.BucketAchieved: workflow.DirectiveAll})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAchieved, rec.Status)
	assert.False(t, rec.Confirmed())

	rec, err = svc.FillOutcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a", []string{"achieved_A1.a.1"},
		map[workflow.Bucket]string{workflow.BucketNotAchieved: workflow.DirectiveSome})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotAchieved, rec.Status)
	assert.True(t, rec.Indicators["not-achieved_A1.a.1"])
	assert.False(t, rec.Indicators["not-achieved_A1.a.2"])
	assert.True(t, rec.Indicators["not-achieved_A1.a.3"])

	view, err = svc.Outcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a")
	require.NoError(t, err)
	assert.False(t, view.Recorded, "filling does not record the outcome")

	checked := []string{"achieved_A1.a.1", "achieved_A1.a.2"}
	_, err = svc.ConfirmOutcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a", checked, "", "")
	verr, ok := apperrors.IsValidation(err)
	require.True(t, ok)
	assert.NotEmpty(t, verr.FieldMessage(workflow.ConfirmField))
	assert.NotEmpty(t, verr.FieldMessage(workflow.ConfirmCommentField))

	rec, err = svc.ConfirmOutcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a", checked, workflow.ConfirmChoice, "  Governance is in place. ")
	require.NoError(t, err)
	assert.True(t, rec.Confirmed())

	view, err = svc.Outcome(ctx, f.orgUser, a.ID, "objective_A", "A1.a")
	require.NoError(t, err)
	require.True(t, view.Recorded)
	assert.Equal(t, domain.OutcomeAchieved, view.Record.Status)
	assert.Equal(t, "Governance is in place.", view.Record.Comments)
}

func TestAssessmentService_SubmitAndComplete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sys := f.addSystem(t, f.org.ID, "Big System")
	partial := f.addAssessment(t, f.addSystem(t, f.org.ID, "Partial"), domain.ProfileBaseline, nil)
	a := f.addAssessment(t, sys, domain.ProfileBaseline, completeData(t, domain.ProfileBaseline))
	svc := f.assessments(policy.New())

	_, err := svc.Submit(ctx, f.lead, partial.ID)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeAssessmentIncomplete, appErr.Code)

	_, err = svc.Submit(ctx, f.orgUser, a.ID)
	assert.True(t, IsPermission(err), "organisation users cannot submit")

	submitted, err := svc.Submit(ctx, f.lead, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, f.lead.User.ID, submitted.LastUpdatedBy)

	_, err = svc.LoadForEdit(ctx, f.lead, a.ID)
	assert.True(t, IsPermission(err), "submitted assessments are read-only")
	_, err = svc.Submit(ctx, f.lead, a.ID)
	assert.True(t, IsPermission(err))

	_, err = svc.Complete(ctx, f.lead, a.ID)
	assert.True(t, IsPermission(err), "leads cannot complete")
	_, err = svc.Complete(ctx, f.advisor, partial.ID)
	assert.True(t, IsPermission(err), "drafts cannot be completed")

	completed, err := svc.Complete(ctx, f.assessor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	assert.Equal(t, []domain.EventType{domain.EventAssessmentSubmitted, domain.EventAssessmentCompleted}, f.events.types())

	var payload domain.AssessmentEventPayload
	require.NoError(t, f.events.events[0].DecodePayload(&payload))
	assert.Equal(t, a.ID, payload.AssessmentID)
	assert.Equal(t, "Big System", payload.SystemName)
	assert.Equal(t, f.org.ID, payload.OrganisationID)
	assert.Equal(t, submitted.Reference(), payload.Reference)
	assert.Equal(t, "Lead Tester", f.events.events[0].Actor)
}

func TestAssessmentService_ForExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	draft := f.addAssessment(t, f.addSystem(t, f.org.ID, "Draft"), domain.ProfileBaseline, nil)
	sent := f.addAssessment(t, f.addSystem(t, f.org.ID, "Sent"), domain.ProfileBaseline, nil)
	require.NoError(t, f.store.Assessments.Transition(ctx, sent.ID, domain.StatusDraft, domain.StatusSubmitted, f.lead.User.ID))
	svc := f.assessments(policy.New())

	got, err := svc.ForExport(ctx, f.orgUser, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)

	for _, tc := range []struct {
		caller Caller
		id     int64
	}{{f.orgUser, draft.ID}, {f.outsider, sent.ID}} {
		_, err := svc.ForExport(ctx, tc.caller, tc.id)
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeAssessmentNotFound, appErr.Code)
	}
}

func TestAssessmentService_NoOrganisation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.assessments(policy.New())

	superuser := Caller{User: domain.User{ID: 99, IsSuperuser: true}, Profile: &domain.UserProfile{ID: 77, Role: domain.RoleAssessor}}
	_, err := svc.Drafts(context.Background(), superuser)
	assert.True(t, apperrors.IsForbidden(err))
}
