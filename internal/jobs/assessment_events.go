package jobs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/governance/audit"
	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

// AssessmentSubmittedArgs fans a submission out to the organisation leads.
type AssessmentSubmittedArgs struct {
	Payload     domain.AssessmentEventPayload `json:"payload"`
	SubmittedBy string                        `json:"submitted_by"`
}

// Kind returns the job kind identifier.
func (AssessmentSubmittedArgs) Kind() string { return "assessment_submitted" }

// InsertOpts returns default insert options.
func (AssessmentSubmittedArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// AssessmentCompletedArgs tells the assessment's creator it was completed.
type AssessmentCompletedArgs struct {
	Payload   domain.AssessmentEventPayload `json:"payload"`
	CreatedBy int64                         `json:"created_by"`
}

// Kind returns the job kind identifier.
func (AssessmentCompletedArgs) Kind() string { return "assessment_completed" }

// InsertOpts returns default insert options.
func (AssessmentCompletedArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// AssessmentSubmittedWorker runs AssessmentSubmittedArgs.
type AssessmentSubmittedWorker struct {
	river.WorkerDefaults[AssessmentSubmittedArgs]
	notifier    EventNotifier
	auditLogger *audit.Logger
	metrics     *metrics.Collector
}

// NewAssessmentSubmittedWorker creates the worker.
func NewAssessmentSubmittedWorker(notifier EventNotifier, auditLogger *audit.Logger, m *metrics.Collector) *AssessmentSubmittedWorker {
	return &AssessmentSubmittedWorker{notifier: notifier, auditLogger: auditLogger, metrics: m}
}

// Work notifies the leads.
func (w *AssessmentSubmittedWorker) Work(ctx context.Context, job *river.Job[AssessmentSubmittedArgs]) error {
	p := job.Args.Payload
	err := w.notifier.OnAssessmentSubmitted(ctx, p, job.Args.SubmittedBy)
	w.metrics.Job(job.Args.Kind(), err)
	if err != nil {
		return fmt.Errorf("notify submission of assessment %d: %w", p.AssessmentID, err)
	}
	logAudit(ctx, w.auditLogger, "notification.assessment_submitted", "assessment", strconv.FormatInt(p.AssessmentID, 10), map[string]interface{}{
		"reference": p.Reference,
	})
	return nil
}

// AssessmentCompletedWorker runs AssessmentCompletedArgs.
type AssessmentCompletedWorker struct {
	river.WorkerDefaults[AssessmentCompletedArgs]
	notifier    EventNotifier
	auditLogger *audit.Logger
	metrics     *metrics.Collector
}

// NewAssessmentCompletedWorker creates the worker.
func NewAssessmentCompletedWorker(notifier EventNotifier, auditLogger *audit.Logger, m *metrics.Collector) *AssessmentCompletedWorker {
	return &AssessmentCompletedWorker{notifier: notifier, auditLogger: auditLogger, metrics: m}
}

// Work notifies the creator.
func (w *AssessmentCompletedWorker) Work(ctx context.Context, job *river.Job[AssessmentCompletedArgs]) error {
	p := job.Args.Payload
	err := w.notifier.OnAssessmentCompleted(ctx, p, job.Args.CreatedBy)
	w.metrics.Job(job.Args.Kind(), err)
	if err != nil {
		return fmt.Errorf("notify completion of assessment %d: %w", p.AssessmentID, err)
	}
	logAudit(ctx, w.auditLogger, "notification.assessment_completed", "assessment", strconv.FormatInt(p.AssessmentID, 10), map[string]interface{}{
		"reference": p.Reference,
	})
	return nil
}

// Inserter is the part of river.Client the enqueuer uses.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// CreatorLookup resolves who created an assessment.
type CreatorLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Assessment, error)
}

// EventEnqueuer hands assessment lifecycle events to River.
type EventEnqueuer struct {
	inserter    Inserter
	assessments CreatorLookup
}

// NewEventEnqueuer creates an enqueuer.
func NewEventEnqueuer(inserter Inserter, assessments CreatorLookup) *EventEnqueuer {
	return &EventEnqueuer{inserter: inserter, assessments: assessments}
}

// Register subscribes the enqueuer to the events it handles.
func (e *EventEnqueuer) Register(d *domain.EventDispatcher) {
	d.Register(domain.EventAssessmentSubmitted, e.handleSubmitted)
	d.Register(domain.EventAssessmentCompleted, e.handleCompleted)
}

func (e *EventEnqueuer) handleSubmitted(ctx context.Context, event *domain.DomainEvent) error {
	var p domain.AssessmentEventPayload
	if err := event.DecodePayload(&p); err != nil {
		return err
	}
	if _, err := e.inserter.Insert(ctx, AssessmentSubmittedArgs{Payload: p, SubmittedBy: event.Actor}, nil); err != nil {
		return fmt.Errorf("enqueue %s: %w", AssessmentSubmittedArgs{}.Kind(), err)
	}
	return nil
}

func (e *EventEnqueuer) handleCompleted(ctx context.Context, event *domain.DomainEvent) error {
	var p domain.AssessmentEventPayload
	if err := event.DecodePayload(&p); err != nil {
		return err
	}
	a, err := e.assessments.GetByID(ctx, p.AssessmentID)
	if err != nil {
		return fmt.Errorf("load assessment %d: %w", p.AssessmentID, err)
	}
	if _, err := e.inserter.Insert(ctx, AssessmentCompletedArgs{Payload: p, CreatedBy: a.CreatedBy}, nil); err != nil {
		return fmt.Errorf("enqueue %s: %w", AssessmentCompletedArgs{}.Kind(), err)
	}
	return nil
}
