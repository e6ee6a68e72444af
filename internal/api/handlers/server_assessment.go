package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/api/middleware"
	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/export"
	"webcaf.gov.uk/webcaf/internal/framework"
	apperrors "webcaf.gov.uk/webcaf/internal/pkg/errors"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
	"webcaf.gov.uk/webcaf/internal/session"
	"webcaf.gov.uk/webcaf/internal/workflow"
)

// Wizard and outcome form fields.
const (
	systemField     = "system"
	profileField    = "caf_profile"
	reviewTypeField = "review_type"
	indicatorField  = "indicator"
	fillFieldPrefix = "fill_"
)

var bucketLabels = map[workflow.Bucket]string{
	workflow.BucketAchieved:          domain.OutcomeAchieved,
	workflow.BucketPartiallyAchieved: domain.OutcomePartiallyAchieved,
	workflow.BucketNotAchieved:       domain.OutcomeNotAchieved,
}

type outcomeRow struct {
	Objective string
	Code      string
	Title     string
	Status    string
	Confirmed bool
	URL       string
}

type objectiveRow struct {
	Code     string
	Title    string
	Outcomes []outcomeRow
}

type indicatorView struct {
	ID      string
	Text    string
	Checked bool
}

type bucketView struct {
	Bucket     workflow.Bucket
	Label      string
	Field      string
	Indicators []indicatorView
}

// objectiveRows lists the outcomes in scope for the assessment, grouped by
// objective, with their recorded status.
func objectiveRows(a domain.Assessment) ([]objectiveRow, error) {
	fw, err := framework.Get(a.Framework)
	if err != nil {
		return nil, err
	}
	var rows []objectiveRow
	for _, obj := range fw.Objectives {
		row := objectiveRow{Code: obj.Code, Title: obj.Title}
		for _, pr := range obj.Principles {
			for _, out := range pr.Outcomes {
				if !out.AppliesTo(a.CAFProfile) {
					continue
				}
				o := outcomeRow{Objective: obj.Code, Code: out.Code, Title: out.Title, URL: outcomePath(a.ID, obj.Code, out.Code)}
				if rec, ok := a.Data.Outcome(obj.Code, out.Code); ok {
					o.Status = rec.Status
					o.Confirmed = rec.Confirmed()
				}
				row.Outcomes = append(row.Outcomes, o)
			}
		}
		if len(row.Outcomes) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// CreateDraft handles GET /create-draft-assessment/.
func (s *Server) CreateDraft(c *gin.Context) {
	draft := session.FromContext(c).Data.Draft
	if draft.AssessmentID != 0 {
		seeOther(c, editDraftPath(draft.AssessmentID))
		return
	}
	s.render(c, http.StatusOK, "draft_assessment.html", gin.H{
		"Draft": draft,
		"Step":  draft.NextStep(),
		"Base":  PathCreateDraft,
	})
}

// EditDraft handles GET /edit-draft-assessment/:assessment_id/.
func (s *Server) EditDraft(c *gin.Context) {
	id, err := paramID(c, "assessment_id")
	if err != nil {
		fail(c, err)
		return
	}
	a, err := s.assessments.LoadForEdit(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	rows, err := objectiveRows(*a)
	if err != nil {
		fail(c, err)
		return
	}
	fw, err := framework.Get(a.Framework)
	if err != nil {
		fail(c, err)
		return
	}
	done, total := fw.Progress(a.CAFProfile, a.Data)

	draft := workflow.FromAssessment(*a)
	session.FromContext(c).SetDraft(draft)
	s.render(c, http.StatusOK, "draft_assessment.html", gin.H{
		"Draft":      draft,
		"Step":       draft.NextStep(),
		"Base":       editDraftPath(a.ID),
		"Assessment": a,
		"Objectives": rows,
		"Done":       done,
		"Total":      total,
		"Complete":   done == total && total > 0,
	})
}

// wizardDraft returns the draft a wizard step works on: the session draft
// for a new assessment, or the stored selection of the assessment named in
// the path.
func (s *Server) wizardDraft(c *gin.Context) (workflow.Draft, error) {
	if c.Param("assessment_id") == "" {
		draft := session.FromContext(c).Data.Draft
		if draft.AssessmentID != 0 {
			draft = workflow.Draft{}
		}
		return draft, nil
	}
	id, err := paramID(c, "assessment_id")
	if err != nil {
		return workflow.Draft{}, err
	}
	a, err := s.assessments.LoadForEdit(c.Request.Context(), callerOf(c), id)
	if err != nil {
		return workflow.Draft{}, err
	}
	return workflow.FromAssessment(*a), nil
}

// advance stores the draft, materialises it once it is ready and sends the
// browser to the next step.
func (s *Server) advance(c *gin.Context, draft workflow.Draft, toReviewType bool) {
	if draft.Ready() {
		if _, err := s.assessments.Materialise(c.Request.Context(), callerOf(c), &draft); err != nil {
			fail(c, err)
			return
		}
	}
	session.FromContext(c).SetDraft(draft)
	next := wizardBase(draft.AssessmentID)
	if toReviewType {
		next += stepChooseReviewType
	}
	seeOther(c, next)
}

func (s *Server) chooseSystemPage(c *gin.Context, draft workflow.Draft, status int, err error) {
	systems, cerr := s.assessments.Candidates(c.Request.Context(), callerOf(c), draft)
	if cerr != nil {
		fail(c, cerr)
		return
	}
	data := gin.H{
		"Systems":  systems,
		"Selected": draft.System,
		"Action":   wizardBase(draft.AssessmentID) + stepChooseSystem,
		"Base":     wizardBase(draft.AssessmentID),
	}
	if err != nil && s.renderForm(c, "choose_system.html", data, err) {
		return
	}
	s.render(c, status, "choose_system.html", data)
}

// ChooseSystemPage handles GET on the choose-system step.
func (s *Server) ChooseSystemPage(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	s.chooseSystemPage(c, draft, http.StatusOK, nil)
}

// ChooseSystem handles POST on the choose-system step.
func (s *Server) ChooseSystem(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.assessments.ChooseSystem(c.Request.Context(), callerOf(c), &draft, formID(c, systemField)); err != nil {
		if _, ok := apperrors.IsValidation(err); ok {
			s.chooseSystemPage(c, draft, http.StatusOK, err)
			return
		}
		fail(c, err)
		return
	}
	s.advance(c, draft, false)
}

func profileData(draft workflow.Draft) gin.H {
	return gin.H{
		"Profiles": domain.CAFProfiles,
		"Selected": string(draft.CAFProfile),
		"Action":   wizardBase(draft.AssessmentID) + stepChooseProfile,
		"Base":     wizardBase(draft.AssessmentID),
	}
}

// ChooseProfilePage handles GET on the CAF profile step.
func (s *Server) ChooseProfilePage(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "choose_profile.html", profileData(draft))
}

// ChooseProfile handles POST on the CAF profile step. Enhanced assessments
// always go on to the review-type step.
func (s *Server) ChooseProfile(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := draft.ChooseProfile(domain.CAFProfile(c.PostForm(profileField))); err != nil {
		if s.renderForm(c, "choose_profile.html", profileData(draft), err) {
			return
		}
		fail(c, err)
		return
	}
	s.advance(c, draft, draft.RoutesToReviewType())
}

func reviewTypeData(draft workflow.Draft) gin.H {
	return gin.H{
		"ReviewTypes": domain.ReviewTypes,
		"Selected":    string(draft.ReviewType),
		"Action":      wizardBase(draft.AssessmentID) + stepChooseReviewType,
		"Base":        wizardBase(draft.AssessmentID),
	}
}

// ChooseReviewTypePage handles GET on the review-type step.
func (s *Server) ChooseReviewTypePage(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	if draft.CAFProfile == "" {
		seeOther(c, wizardBase(draft.AssessmentID)+stepChooseProfile)
		return
	}
	s.render(c, http.StatusOK, "choose_review_type.html", reviewTypeData(draft))
}

// ChooseReviewType handles POST on the review-type step.
func (s *Server) ChooseReviewType(c *gin.Context) {
	draft, err := s.wizardDraft(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := draft.ChooseReviewType(domain.ReviewType(c.PostForm(reviewTypeField))); err != nil {
		if s.renderForm(c, "choose_review_type.html", reviewTypeData(draft), err) {
			return
		}
		fail(c, err)
		return
	}
	s.advance(c, draft, false)
}

type outcomeParams struct {
	id        int64
	objective string
	outcome   string
}

func outcomeParamsOf(c *gin.Context) (outcomeParams, error) {
	id, err := paramID(c, "assessment_id")
	if err != nil {
		return outcomeParams{}, err
	}
	return outcomeParams{id: id, objective: c.Param("objective"), outcome: c.Param("outcome")}, nil
}

// Outcome handles GET on an outcome page.
func (s *Server) Outcome(c *gin.Context) {
	p, err := outcomeParamsOf(c)
	if err != nil {
		fail(c, err)
		return
	}
	view, err := s.assessments.Outcome(c.Request.Context(), callerOf(c), p.id, p.objective, p.outcome)
	if err != nil {
		fail(c, err)
		return
	}
	buckets := make([]bucketView, 0, len(workflow.Buckets))
	for _, b := range workflow.Buckets {
		bv := bucketView{Bucket: b, Label: bucketLabels[b], Field: fillFieldPrefix + string(b)}
		for _, ind := range view.Grouped[b] {
			bv.Indicators = append(bv.Indicators, indicatorView{ID: ind.ID, Text: ind.Text, Checked: view.Record.Indicators[ind.ID]})
		}
		buckets = append(buckets, bv)
	}
	s.render(c, http.StatusOK, "outcome.html", gin.H{
		"View":       view,
		"Buckets":    buckets,
		"Action":     outcomePath(p.id, p.objective, p.outcome),
		"Back":       editDraftPath(p.id),
		"Directives": []string{workflow.DirectiveAll, workflow.DirectiveSome},
	})
}

// FillOutcome handles POST on an outcome page and shows the confirm step.
// Nothing is stored until the outcome is confirmed.
func (s *Server) FillOutcome(c *gin.Context) {
	p, err := outcomeParamsOf(c)
	if err != nil {
		fail(c, err)
		return
	}
	directives := make(map[workflow.Bucket]string, len(workflow.Buckets))
	for _, b := range workflow.Buckets {
		directives[b] = c.PostForm(fillFieldPrefix + string(b))
	}
	rec, err := s.assessments.FillOutcome(c.Request.Context(), callerOf(c), p.id, p.objective, p.outcome,
		c.PostFormArray(indicatorField), directives)
	if err != nil {
		fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "outcome_confirm.html", confirmData(p, rec))
}

func confirmData(p outcomeParams, rec domain.OutcomeRecord) gin.H {
	var checked []string
	for id, on := range rec.Indicators {
		if on {
			checked = append(checked, id)
		}
	}
	return gin.H{
		"Objective":    p.objective,
		"Outcome":      p.outcome,
		"Record":       rec,
		"Checked":      checked,
		"Action":       outcomePath(p.id, p.objective, p.outcome) + "confirm/",
		"Back":         outcomePath(p.id, p.objective, p.outcome),
		"ChoiceField":  workflow.ConfirmField,
		"CommentField": workflow.ConfirmCommentField,
		"Choice":       workflow.ConfirmChoice,
		"ChoiceLabel":  workflow.ConfirmChoiceLabel,
	}
}

// ConfirmOutcome handles POST on the confirm step and records the outcome.
func (s *Server) ConfirmOutcome(c *gin.Context) {
	p, err := outcomeParamsOf(c)
	if err != nil {
		fail(c, err)
		return
	}
	rec, err := s.assessments.ConfirmOutcome(c.Request.Context(), callerOf(c), p.id, p.objective, p.outcome,
		c.PostFormArray(indicatorField), c.PostForm(workflow.ConfirmField), c.PostForm(workflow.ConfirmCommentField))
	if err != nil {
		data := confirmData(p, rec)
		data["Comment"] = c.PostForm(workflow.ConfirmCommentField)
		if s.renderForm(c, "outcome_confirm.html", data, err) {
			return
		}
		fail(c, err)
		return
	}
	seeOther(c, editDraftPath(p.id))
}

// SubmitAssessment handles POST /edit-draft-assessment/:assessment_id/submit/.
func (s *Server) SubmitAssessment(c *gin.Context) {
	id, err := paramID(c, "assessment_id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.assessments.Submit(c.Request.Context(), callerOf(c), id); err != nil {
		fail(c, err)
		return
	}
	session.FromContext(c).ResetDraft()
	seeOther(c, middleware.PathMyAccount)
}

// CompleteAssessment handles POST /complete-assessment/:assessment_id/.
func (s *Server) CompleteAssessment(c *gin.Context) {
	id, err := paramID(c, "assessment_id")
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.assessments.Complete(c.Request.Context(), callerOf(c), id); err != nil {
		fail(c, err)
		return
	}
	seeOther(c, middleware.PathMyAccount)
}

// DownloadAssessment handles GET /download-submitted-assessment/:assessment_id.
func (s *Server) DownloadAssessment(c *gin.Context) {
	id, err := paramID(c, "assessment_id")
	if err != nil {
		fail(c, err)
		return
	}
	a, err := s.assessments.ForExport(c.Request.Context(), callerOf(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	body, err := export.Render(*a)
	if err != nil {
		logger.Error("render assessment pdf failed", zap.Int64("assessment_id", id), zap.Error(err))
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(*a)+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
