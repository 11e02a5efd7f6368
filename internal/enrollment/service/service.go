// Package service orchestrates the enrollment case lifecycle. It owns the
// case-level status, enforces the transition table, and aggregates document
// and interview readiness. Every mutating operation runs the authorization
// gate first, then transitions under the store's compare-and-swap inside the
// aggregate's transaction boundary, with the audit write in the same boundary.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"caregate/internal/authz"
	docmodels "caregate/internal/document/models"
	"caregate/internal/enrollment/models"
	"caregate/internal/enrollment/store"
	ivmodels "caregate/internal/interview/models"
	ivstore "caregate/internal/interview/store"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	"caregate/pkg/platform/sentinel"
)

// DocumentReader exposes the document statuses the state machine needs to
// judge readiness. Implemented by the document store.
type DocumentReader interface {
	ListByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*docmodels.Document, error)
}

// Notifier delivers lifecycle events to external systems (EMR, schedulers).
// Delivery retries and records are the dispatcher's concern, not ours.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload map[string]string) error
}

// EventEnrollmentCompleted is sent to external targets when a case completes.
const EventEnrollmentCompleted = "enrollment.completed"

// cancelCASAttempts bounds how often Cancel chases a moving status before
// giving up. In practice one retry suffices.
const cancelCASAttempts = 3

type Service struct {
	store      store.Store
	documents  DocumentReader
	interviews ivstore.Store
	gate       authz.Gate
	audit      *publisher.Publisher
	tx         AggregateTx
	notifier   Notifier
	logger     *slog.Logger
	clock      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier wires the notification dispatcher. Without it, completion
// events are logged and dropped.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(
	enrollments store.Store,
	documents DocumentReader,
	interviews ivstore.Store,
	gate authz.Gate,
	auditPublisher *publisher.Publisher,
	tx AggregateTx,
	opts ...Option,
) *Service {
	s := &Service{
		store:      enrollments,
		documents:  documents,
		interviews: interviews,
		gate:       gate,
		audit:      auditPublisher,
		tx:         tx,
		logger:     slog.Default(),
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create opens a new case in DRAFT for the actor.
func (s *Service) Create(ctx context.Context, actor authz.Actor, metadata map[string]string) (*models.Enrollment, error) {
	resource := authz.Resource{Type: "enrollment", OwnerID: actor.ID}
	if err := s.checkGate(ctx, actor, authz.ActionCreateEnrollment, resource); err != nil {
		return nil, err
	}

	if missing := models.MissingMetadataKeys(metadata); len(missing) > 0 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "missing required metadata fields: %v", missing)
	}

	now := s.clock()
	enrollment := &models.Enrollment{
		ID:        id.NewEnrollmentID(),
		OwnerID:   actor.ID,
		Status:    models.StatusDraft,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.RunInAggregate(ctx, enrollment.ID, func(ctx context.Context) error {
		if err := s.store.Create(ctx, enrollment); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create enrollment")
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectEnrollment,
			SubjectID:   enrollment.ID.String(),
			ActorID:     actor.ID,
			Action:      string(audit.ActionEnrollmentCreated),
			Payload:     map[string]string{"status": string(models.StatusDraft)},
			RequestID:   middleware.GetRequestID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "enrollment created",
		"enrollment_id", enrollment.ID.String(),
		"owner_id", actor.ID.String(),
	)
	return enrollment, nil
}

// Get returns the case with its document statuses and interview reference.
func (s *Service) Get(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) (*View, error) {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionReadEnrollment, resource); err != nil {
		return nil, err
	}

	view := &View{Enrollment: enrollment}
	if s.documents != nil {
		documents, err := s.documents.ListByEnrollment(ctx, enrollmentID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list enrollment documents")
		}
		view.Documents = documents
	}
	if enrollment.InterviewID != nil {
		interview, err := s.interviews.FindByID(ctx, *enrollment.InterviewID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load interview")
		}
		view.Interview = interview
	}
	return view, nil
}

// View aggregates the case for read endpoints.
type View struct {
	Enrollment *models.Enrollment
	Documents  []*docmodels.Document
	Interview  *ivmodels.Interview
}

// SubmitDocuments moves a DRAFT case into document collection.
func (s *Service) SubmitDocuments(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionSubmitDocuments, resource); err != nil {
		return err
	}
	return s.transition(ctx, actor.ID, enrollment, models.StatusDocumentsPending, nil)
}

// RecordHealthDeclaration stores the applicant's questionnaire. The case must
// be in HEALTH_DECLARATION_PENDING; the status itself does not move until an
// interview is scheduled.
func (s *Service) RecordHealthDeclaration(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, answers map[string]string) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionRecordDeclaration, resource); err != nil {
		return err
	}

	if enrollment.Status != models.StatusHealthDeclarationPending {
		return s.invalidTransition(ctx, actor.ID, enrollment, models.StatusHealthDeclarationPending)
	}
	if missing := models.MissingDeclarationAnswers(answers); len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeBadRequest, "missing required declaration answers: %v", missing)
	}

	declaration := models.HealthDeclaration{Answers: answers, RecordedAt: s.clock()}
	return s.tx.RunInAggregate(ctx, enrollmentID, func(ctx context.Context) error {
		if err := s.store.SaveDeclaration(ctx, enrollmentID, declaration); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save health declaration")
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectEnrollment,
			SubjectID:   enrollmentID.String(),
			ActorID:     actor.ID,
			Action:      string(audit.ActionHealthDeclarationSaved),
			Payload:     map[string]string{"declaration": "recorded"},
			RequestID:   middleware.GetRequestID(ctx),
		})
	})
}

// ScheduleInterview creates the interview and advances the case. The health
// declaration must already be recorded.
func (s *Service) ScheduleInterview(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, interviewerID id.UserID, at time.Time) (*ivmodels.Interview, error) {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionScheduleInterview, resource); err != nil {
		return nil, err
	}

	if enrollment.Declaration == nil {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "health declaration not recorded")
	}

	now := s.clock()
	interview := &ivmodels.Interview{
		ID:            id.NewInterviewID(),
		EnrollmentID:  enrollmentID,
		InterviewerID: interviewerID,
		ScheduledAt:   at,
		Status:        ivmodels.StatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.tx.RunInAggregate(ctx, enrollmentID, func(ctx context.Context) error {
		if err := s.casWithAudit(ctx, actor.ID, enrollment, models.StatusInterviewScheduled, map[string]string{
			"interview_id":   interview.ID.String(),
			"interviewer_id": interviewerID.String(),
		}); err != nil {
			return err
		}
		if err := s.interviews.Save(ctx, interview); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save interview")
		}
		if err := s.store.SetInterview(ctx, enrollmentID, interview.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "link interview")
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectInterview,
			SubjectID:   interview.ID.String(),
			ActorID:     actor.ID,
			Action:      string(audit.ActionInterviewScheduled),
			Payload: map[string]string{
				"enrollment_id": enrollmentID.String(),
				"scheduled_at":  at.UTC().Format(time.RFC3339),
			},
			RequestID: middleware.GetRequestID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return interview, nil
}

// CompleteInterview finishes the interview and, once every invariant holds,
// completes the case and notifies external systems.
func (s *Service) CompleteInterview(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionCompleteInterview, resource); err != nil {
		return err
	}

	if enrollment.InterviewID == nil {
		return dErrors.New(dErrors.CodeInvalidTransition, "no interview scheduled")
	}
	verified, err := s.allRequiredDocumentsVerified(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if !verified {
		return dErrors.New(dErrors.CodeInvalidTransition, "required documents are not all verified")
	}

	completedAt := s.clock()
	err = s.tx.RunInAggregate(ctx, enrollmentID, func(ctx context.Context) error {
		if err := s.interviews.UpdateStatus(ctx, *enrollment.InterviewID, ivmodels.StatusCompleted); err != nil {
			if errors.Is(err, sentinel.ErrTerminal) {
				return dErrors.New(dErrors.CodeInvalidTransition, "interview already finished")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "complete interview")
		}
		if err := s.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectInterview,
			SubjectID:   enrollment.InterviewID.String(),
			ActorID:     actor.ID,
			Action:      string(audit.ActionInterviewCompleted),
			Payload:     map[string]string{"enrollment_id": enrollmentID.String()},
			RequestID:   middleware.GetRequestID(ctx),
		}); err != nil {
			return err
		}

		if err := s.casWithAudit(ctx, actor.ID, enrollment, models.StatusInterviewCompleted, nil); err != nil {
			return err
		}
		enrollment.Status = models.StatusInterviewCompleted

		if err := s.casWithAudit(ctx, actor.ID, enrollment, models.StatusCompleted, nil); err != nil {
			return err
		}
		if err := s.store.SetCompletedAt(ctx, enrollmentID, completedAt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "stamp completion")
		}
		return s.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectEnrollment,
			SubjectID:   enrollmentID.String(),
			ActorID:     actor.ID,
			Action:      string(audit.ActionEnrollmentCompleted),
			Payload:     map[string]string{"completed_at": completedAt.Format(time.RFC3339)},
			RequestID:   middleware.GetRequestID(ctx),
		})
	})
	if err != nil {
		return err
	}

	s.notifyCompleted(ctx, enrollment)
	return nil
}

// Cancel retires the case from any non-terminal status. Repeated cancels are
// no-op successes.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, reason string) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := s.checkGate(ctx, actor, authz.ActionCancelEnrollment, resource); err != nil {
		return err
	}

	for attempt := 0; attempt < cancelCASAttempts; attempt++ {
		if enrollment.Status == models.StatusCancelled {
			return nil
		}
		if enrollment.Status == models.StatusCompleted {
			return s.invalidTransition(ctx, actor.ID, enrollment, models.StatusCancelled)
		}

		err = s.tx.RunInAggregate(ctx, enrollmentID, func(ctx context.Context) error {
			if err := s.store.UpdateStatusCAS(ctx, enrollmentID, enrollment.Status, models.StatusCancelled, s.clock()); err != nil {
				return err
			}
			if err := s.store.SetCancelReason(ctx, enrollmentID, reason); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "record cancel reason")
			}
			if enrollment.InterviewID != nil {
				if err := s.interviews.UpdateStatus(ctx, *enrollment.InterviewID, ivmodels.StatusCancelled); err != nil &&
					!errors.Is(err, sentinel.ErrTerminal) && !errors.Is(err, sentinel.ErrNotFound) {
					return dErrors.Wrap(err, dErrors.CodeInternal, "cancel interview")
				}
			}
			payload := map[string]string{
				"from":   string(enrollment.Status),
				"reason": reason,
			}
			if device := middleware.GetDeviceInfo(ctx); device.OS != "" {
				payload["client_os"] = device.OS
				payload["client_browser"] = device.Browser
			}
			return s.audit.Emit(ctx, audit.Entry{
				SubjectType: audit.SubjectEnrollment,
				SubjectID:   enrollmentID.String(),
				ActorID:     actor.ID,
				Action:      string(audit.ActionEnrollmentCancelled),
				Payload:     payload,
				RequestID:   middleware.GetRequestID(ctx),
			})
		})
		if err == nil {
			s.logger.InfoContext(ctx, "enrollment cancelled",
				"enrollment_id", enrollmentID.String(),
				"from", string(enrollment.Status),
			)
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "enrollment not found")
			}
			return err
		}

		// status moved underneath us; re-read and try again
		enrollment, err = s.load(ctx, enrollmentID)
		if err != nil {
			return err
		}
	}
	return dErrors.New(dErrors.CodeConflict, "enrollment status kept changing during cancel")
}

// AdvanceOnDocumentEvent is the pipeline's callback. Upload events may move
// the case to DOCUMENTS_SUBMITTED; verification events may move it to
// HEALTH_DECLARATION_PENDING once every required type is VERIFIED. Concurrent
// callbacks racing for the same forward transition resolve to exactly one
// winner; losers observe the already-advanced state and no-op.
func (s *Service) AdvanceOnDocumentEvent(ctx context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID, status docmodels.Status) error {
	enrollment, err := s.load(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if enrollment.Status.Terminal() {
		return nil
	}

	documents, err := s.documents.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list enrollment documents")
	}

	switch status {
	case docmodels.StatusUploaded:
		if enrollment.Status != models.StatusDocumentsPending {
			return nil
		}
		if !allRequiredPresent(documents) {
			return nil
		}
		return s.advance(ctx, enrollment, models.StatusDocumentsSubmitted, documentID)

	case docmodels.StatusVerified:
		if enrollment.Status != models.StatusDocumentsPending && enrollment.Status != models.StatusDocumentsSubmitted {
			return nil
		}
		if !allRequiredVerified(documents) {
			return nil
		}
		return s.advance(ctx, enrollment, models.StatusHealthDeclarationPending, documentID)

	default:
		// REJECTED blocks progress; the member re-uploads under a new document.
		return nil
	}
}

// advance performs one CAS forward step for a document-driven transition,
// treating a lost race whose outcome already holds as success.
func (s *Service) advance(ctx context.Context, enrollment *models.Enrollment, next models.Status, documentID id.DocumentID) error {
	err := s.tx.RunInAggregate(ctx, enrollment.ID, func(ctx context.Context) error {
		return s.casWithAudit(ctx, id.UserID{}, enrollment, next, map[string]string{
			"trigger_document_id": documentID.String(),
		})
	})
	if err != nil && dErrors.Is(err, dErrors.CodeConflict) {
		current, loadErr := s.load(ctx, enrollment.ID)
		if loadErr == nil && (current.Status == next || current.Status.Terminal()) {
			return nil
		}
	}
	return err
}

// transition runs one gate-checked status move inside the aggregate boundary.
func (s *Service) transition(ctx context.Context, actorID id.UserID, enrollment *models.Enrollment, next models.Status, payload map[string]string) error {
	err := s.tx.RunInAggregate(ctx, enrollment.ID, func(ctx context.Context) error {
		return s.casWithAudit(ctx, actorID, enrollment, next, payload)
	})
	if err != nil && dErrors.Is(err, dErrors.CodeConflict) {
		current, loadErr := s.load(ctx, enrollment.ID)
		if loadErr == nil && current.Status == next {
			// the intended outcome already holds; benign race
			return nil
		}
	}
	return err
}

// casWithAudit swaps the status and writes the matching audit entry in the
// caller's transaction context. The transition table is consulted first; an
// illegal move fails without touching the aggregate.
func (s *Service) casWithAudit(ctx context.Context, actorID id.UserID, enrollment *models.Enrollment, next models.Status, payload map[string]string) error {
	from := enrollment.Status
	if !from.CanTransitionTo(next) {
		return s.invalidTransition(ctx, actorID, enrollment, next)
	}

	if err := s.store.UpdateStatusCAS(ctx, enrollment.ID, from, next, s.clock()); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Newf(dErrors.CodeConflict, "enrollment moved past %s", string(from))
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "update enrollment status")
	}

	entryPayload := map[string]string{"from": string(from), "to": string(next)}
	for k, v := range payload {
		entryPayload[k] = v
	}
	return s.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectEnrollment,
		SubjectID:   enrollment.ID.String(),
		ActorID:     actorID,
		Action:      string(audit.ActionEnrollmentStatusChanged),
		Payload:     entryPayload,
		RequestID:   middleware.GetRequestID(ctx),
	})
}

// invalidTransition audits the misuse and returns the typed error. The
// aggregate is never mutated on this path.
func (s *Service) invalidTransition(ctx context.Context, actorID id.UserID, enrollment *models.Enrollment, attempted models.Status) error {
	if err := s.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectEnrollment,
		SubjectID:   enrollment.ID.String(),
		ActorID:     actorID,
		Action:      string(audit.ActionInvalidTransition),
		Payload: map[string]string{
			"from":      string(enrollment.Status),
			"attempted": string(attempted),
		},
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit invalid transition", "error", err)
	}
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"cannot transition from %s to %s", string(enrollment.Status), string(attempted))
}

// checkGate runs the authorization gate and audits every denial.
func (s *Service) checkGate(ctx context.Context, actor authz.Actor, action authz.Action, resource authz.Resource) error {
	err := s.gate.Check(ctx, actor, action, resource)
	if err == nil {
		return nil
	}
	if auditErr := s.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectEnrollment,
		SubjectID:   resource.ID,
		ActorID:     actor.ID,
		Action:      string(audit.ActionForbiddenAccess),
		Payload:     map[string]string{"action": string(action)},
		RequestID:   middleware.GetRequestID(ctx),
	}); auditErr != nil {
		s.logger.ErrorContext(ctx, "failed to audit authorization denial", "error", auditErr)
	}
	return err
}

func (s *Service) load(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	enrollment, err := s.store.FindByID(ctx, enrollmentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment")
	}
	return enrollment, nil
}

func (s *Service) notifyCompleted(ctx context.Context, enrollment *models.Enrollment) {
	if s.notifier == nil {
		s.logger.WarnContext(ctx, "no notifier configured, completion event dropped",
			"enrollment_id", enrollment.ID.String(),
		)
		return
	}
	err := s.notifier.Notify(ctx, EventEnrollmentCompleted, map[string]string{
		"enrollment_id": enrollment.ID.String(),
		"owner_id":      enrollment.OwnerID.String(),
		"status":        string(models.StatusCompleted),
	})
	if err != nil {
		// delivery has its own retry and failure record; log and move on
		s.logger.ErrorContext(ctx, "completion notification dispatch failed",
			"enrollment_id", enrollment.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) allRequiredDocumentsVerified(ctx context.Context, enrollmentID id.EnrollmentID) (bool, error) {
	documents, err := s.documents.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "list enrollment documents")
	}
	return allRequiredVerified(documents), nil
}

func allRequiredPresent(documents []*docmodels.Document) bool {
	present := make(map[docmodels.Type]bool)
	for _, document := range documents {
		present[document.Type] = true
	}
	for _, required := range docmodels.RequiredTypes() {
		if !present[required] {
			return false
		}
	}
	return true
}

func allRequiredVerified(documents []*docmodels.Document) bool {
	verified := make(map[docmodels.Type]bool)
	for _, document := range documents {
		if document.Status == docmodels.StatusVerified {
			verified[document.Type] = true
		}
	}
	for _, required := range docmodels.RequiredTypes() {
		if !verified[required] {
			return false
		}
	}
	return true
}
