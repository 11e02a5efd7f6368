// Package service runs the document verification pipeline: validate, store,
// extract, confidence-check, audit. The pipeline is the only writer of
// document status.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"caregate/internal/authz"
	"caregate/internal/blobstore"
	"caregate/internal/document/claim"
	"caregate/internal/document/metrics"
	"caregate/internal/document/models"
	"caregate/internal/document/store"
	enrmodels "caregate/internal/enrollment/models"
	"caregate/internal/extraction"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	"caregate/pkg/platform/backoff"
	"caregate/pkg/platform/circuit"
	"caregate/pkg/platform/sentinel"
)

// DefaultConfidenceThreshold is the minimum extraction confidence for
// VERIFIED. The comparison is inclusive: exactly the threshold passes.
const DefaultConfidenceThreshold = 0.85

// DefaultMaxUploadBytes caps document payloads at 10 MiB.
const DefaultMaxUploadBytes = 10 << 20

// CasePort is the slice of the enrollment module the pipeline needs: read
// the owning case, attach uploads to it, and report document events back.
type CasePort interface {
	FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*enrmodels.Enrollment, error)
	AttachDocument(ctx context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID) error
}

// CaseAdvancer is the state machine callback invoked on document events.
type CaseAdvancer interface {
	AdvanceOnDocumentEvent(ctx context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID, status models.Status) error
}

type Pipeline struct {
	store     store.Store
	cases     CasePort
	advancer  CaseAdvancer
	blobs     blobstore.Store
	extractor extraction.Client
	breaker   *circuit.Breaker
	claims    claim.Claimer
	gate      authz.Gate
	audit     *publisher.Publisher
	metrics   *metrics.Metrics

	policy         backoff.Policy
	sleeper        backoff.Sleeper
	threshold      float64
	maxUploadBytes int64
	claimTTL       time.Duration
	logger         *slog.Logger
	clock          func() time.Time
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRetryPolicy overrides the extraction retry policy.
func WithRetryPolicy(policy backoff.Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithBreaker replaces the extraction circuit breaker.
func WithBreaker(breaker *circuit.Breaker) Option {
	return func(p *Pipeline) {
		if breaker != nil {
			p.breaker = breaker
		}
	}
}

// WithSleeper replaces the backoff sleeper; tests pass a recording no-op.
func WithSleeper(sleeper backoff.Sleeper) Option {
	return func(p *Pipeline) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

// WithConfidenceThreshold overrides the verification threshold.
func WithConfidenceThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		if threshold > 0 {
			p.threshold = threshold
		}
	}
}

// WithMaxUploadBytes overrides the payload size cap.
func WithMaxUploadBytes(limit int64) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.maxUploadBytes = limit
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func New(
	documents store.Store,
	cases CasePort,
	advancer CaseAdvancer,
	blobs blobstore.Store,
	extractor extraction.Client,
	claims claim.Claimer,
	gate authz.Gate,
	auditPublisher *publisher.Publisher,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:          documents,
		cases:          cases,
		advancer:       advancer,
		blobs:          blobs,
		extractor:      extractor,
		breaker:        circuit.New("extraction"),
		claims:         claims,
		gate:           gate,
		audit:          auditPublisher,
		policy:         backoff.ExtractionDefaults(),
		sleeper:        backoff.Wait,
		threshold:      DefaultConfidenceThreshold,
		maxUploadBytes: DefaultMaxUploadBytes,
		claimTTL:       claim.DefaultTTL,
		logger:         slog.Default(),
		clock:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ListByEnrollment exposes document reads for the enrollment view.
func (p *Pipeline) ListByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Document, error) {
	return p.store.ListByEnrollment(ctx, enrollmentID)
}

// Get returns one document.
func (p *Pipeline) Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	document, err := p.store.FindByID(ctx, documentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	return document, nil
}

// Upload validates and registers a new document in UPLOADED. Type and size
// are rejected before anything is written. Processing runs separately; the
// caller hands the raw bytes to Process (usually via the worker pool).
func (p *Pipeline) Upload(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, docType models.Type, data []byte) (*models.Document, error) {
	if !docType.IsSupported() {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedType, "unsupported document type %q", string(docType))
	}
	if int64(len(data)) > p.maxUploadBytes {
		return nil, dErrors.Newf(dErrors.CodePayloadTooLarge, "document exceeds %d byte limit", p.maxUploadBytes)
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "document payload is empty")
	}

	enrollment, err := p.cases.FindByID(ctx, enrollmentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "enrollment not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment")
	}

	resource := authz.Resource{Type: "enrollment", ID: enrollmentID.String(), OwnerID: enrollment.OwnerID}
	if err := p.gate.Check(ctx, actor, authz.ActionUploadDocument, resource); err != nil {
		p.auditDenied(ctx, actor, enrollmentID)
		return nil, err
	}

	if enrollment.Status != enrmodels.StatusDocumentsPending && enrollment.Status != enrmodels.StatusDocumentsSubmitted {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"enrollment in %s does not accept document uploads", string(enrollment.Status))
	}

	now := p.clock()
	document := &models.Document{
		ID:           id.NewDocumentID(),
		EnrollmentID: enrollmentID,
		Type:         docType,
		Status:       models.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.Create(ctx, document); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create document")
	}
	if err := p.cases.AttachDocument(ctx, enrollmentID, document.ID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "attach document to enrollment")
	}
	if err := p.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectDocument,
		SubjectID:   document.ID.String(),
		ActorID:     actor.ID,
		Action:      string(audit.ActionDocumentUploaded),
		Payload: map[string]string{
			"enrollment_id": enrollmentID.String(),
			"type":          string(docType),
			"size_bytes":    strconv.Itoa(len(data)),
		},
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		return nil, err
	}

	if err := p.advancer.AdvanceOnDocumentEvent(ctx, enrollmentID, document.ID, models.StatusUploaded); err != nil {
		p.logger.ErrorContext(ctx, "document upload callback failed",
			"document_id", document.ID.String(),
			"error", err,
		)
	}
	return document, nil
}

// Process drives one document from UPLOADED to a terminal status. It is
// idempotent: a VERIFIED or REJECTED document returns its stored result with
// no further extraction call. At most one worker processes a document at a
// time; losers of the claim return the current record untouched.
func (p *Pipeline) Process(ctx context.Context, documentID id.DocumentID, data []byte) (*models.Document, error) {
	document, err := p.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if document.Status.Terminal() {
		return document, nil
	}

	claimed, err := p.claims.Claim(ctx, documentID, p.claimTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "acquire processing claim")
	}
	if !claimed {
		return document, nil
	}
	defer func() {
		if releaseErr := p.claims.Release(context.WithoutCancel(ctx), documentID); releaseErr != nil {
			p.logger.ErrorContext(ctx, "failed to release processing claim",
				"document_id", documentID.String(),
				"error", releaseErr,
			)
		}
	}()

	started := p.clock()
	document.Status = models.StatusProcessing
	document.UpdatedAt = started
	if err := p.store.Update(ctx, document); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark document processing")
	}

	// storage failures are caller-retryable, not auto-retried: a second Put
	// of identical bytes would be wasted work, not a correctness hazard, but
	// the caller decides when to spend it
	if document.StorageHandle == "" {
		handle, err := p.blobs.Put(ctx, data)
		if err != nil {
			document.Status = models.StatusUploaded
			document.UpdatedAt = p.clock()
			if updateErr := p.store.Update(ctx, document); updateErr != nil {
				p.logger.ErrorContext(ctx, "failed to revert document after storage failure",
					"document_id", documentID.String(),
					"error", updateErr,
				)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store document bytes")
		}
		document.StorageHandle = string(handle)
		if err := p.store.Update(ctx, document); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record storage handle")
		}
	}

	result, err := p.extractWithRetry(ctx, document)
	if err != nil {
		return p.finalize(ctx, document, models.StatusRejected, nil, models.ErrReasonExtractionUnavailable, started)
	}

	p.auditSensitiveFlag(ctx, document, result)

	if result.Confidence < p.threshold {
		// one re-extraction is allowed for transient OCR noise
		retried, retryErr := p.extractOnce(ctx, document)
		document.AttemptCount++
		if retryErr == nil {
			p.auditSensitiveFlag(ctx, document, retried)
			result = retried
		}
		if result.Confidence < p.threshold {
			return p.finalize(ctx, document, models.StatusRejected, nil, models.ErrReasonLowConfidence, started)
		}
	}

	return p.finalize(ctx, document, models.StatusVerified, result, "", started)
}

// extractWithRetry calls the extraction service under the retry policy,
// recording every failed attempt on the document.
func (p *Pipeline) extractWithRetry(ctx context.Context, document *models.Document) (*models.ExtractionResult, error) {
	var result *models.ExtractionResult
	err := backoff.Retry(ctx, p.policy, p.sleeper, func(ctx context.Context, attempt int) error {
		extracted, err := p.extractOnce(ctx, document)
		if err != nil {
			document.AttemptCount++
			document.UpdatedAt = p.clock()
			if updateErr := p.store.Update(ctx, document); updateErr != nil {
				p.logger.ErrorContext(ctx, "failed to persist attempt count",
					"document_id", document.ID.String(),
					"error", updateErr,
				)
			}
			if auditErr := p.audit.Emit(ctx, audit.Entry{
				SubjectType: audit.SubjectDocument,
				SubjectID:   document.ID.String(),
				Action:      string(audit.ActionExtractionRetried),
				Payload: map[string]string{
					"attempt": strconv.Itoa(document.AttemptCount),
					"error":   err.Error(),
				},
				RequestID: middleware.GetRequestID(ctx),
			}); auditErr != nil {
				p.logger.ErrorContext(ctx, "failed to audit extraction retry", "error", auditErr)
			}
			return err
		}
		result = extracted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// extractOnce performs a single extraction call through the circuit breaker.
func (p *Pipeline) extractOnce(ctx context.Context, document *models.Document) (*models.ExtractionResult, error) {
	if !p.breaker.Allow() {
		p.metrics.IncrementExtraction("error")
		return nil, fmt.Errorf("extraction call: %w: circuit open", sentinel.ErrUnavailable)
	}
	result, err := p.extractor.Extract(ctx, blobstore.Handle(document.StorageHandle), document.Type)
	if err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "extraction circuit opened", "breaker", p.breaker.Name())
		}
		p.metrics.IncrementExtraction("error")
		return nil, err
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "extraction circuit closed", "breaker", p.breaker.Name())
	}
	if result.Confidence < p.threshold {
		p.metrics.IncrementExtraction("low_confidence")
	} else {
		p.metrics.IncrementExtraction("ok")
	}
	return result, nil
}

// finalize persists the terminal outcome, unless the owning case was
// cancelled while processing was in flight, in which case the result is
// discarded and the document returns to UPLOADED.
func (p *Pipeline) finalize(ctx context.Context, document *models.Document, status models.Status, result *models.ExtractionResult, lastError string, started time.Time) (*models.Document, error) {
	enrollment, err := p.cases.FindByID(ctx, document.EnrollmentID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load enrollment for finalize")
	}
	if enrollment != nil && enrollment.Status == enrmodels.StatusCancelled {
		document.Status = models.StatusUploaded
		document.Extraction = nil
		document.UpdatedAt = p.clock()
		if err := p.store.Update(ctx, document); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "discard document result")
		}
		if auditErr := p.audit.Emit(ctx, audit.Entry{
			SubjectType: audit.SubjectDocument,
			SubjectID:   document.ID.String(),
			Action:      string(audit.ActionDiscardedPostCancel),
			Payload: map[string]string{
				"enrollment_id":    document.EnrollmentID.String(),
				"discarded_status": string(status),
			},
			RequestID: middleware.GetRequestID(ctx),
		}); auditErr != nil {
			p.logger.ErrorContext(ctx, "failed to audit discarded result", "error", auditErr)
		}
		return document, nil
	}

	document.Status = status
	document.LastError = lastError
	if status == models.StatusVerified {
		document.Extraction = result
	}
	document.UpdatedAt = p.clock()
	if err := p.store.Update(ctx, document); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist document outcome")
	}

	action := audit.ActionDocumentVerified
	payload := map[string]string{
		"enrollment_id": document.EnrollmentID.String(),
		"type":          string(document.Type),
	}
	if status == models.StatusRejected {
		action = audit.ActionDocumentRejected
		payload["last_error"] = lastError
		payload["attempts"] = strconv.Itoa(document.AttemptCount)
	} else if result != nil {
		payload["confidence"] = strconv.FormatFloat(result.Confidence, 'f', 4, 64)
	}
	if err := p.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectDocument,
		SubjectID:   document.ID.String(),
		Action:      string(action),
		Payload:     payload,
		RequestID:   middleware.GetRequestID(ctx),
	}); err != nil {
		return nil, err
	}

	p.metrics.IncrementOutcome(string(document.Type), string(status))
	p.metrics.ObserveProcessLatency(p.clock().Sub(started))

	if err := p.advancer.AdvanceOnDocumentEvent(ctx, document.EnrollmentID, document.ID, status); err != nil {
		p.logger.ErrorContext(ctx, "document event callback failed",
			"document_id", document.ID.String(),
			"status", string(status),
			"error", err,
		)
	}

	p.logger.InfoContext(ctx, "document processing finished",
		"document_id", document.ID.String(),
		"type", string(document.Type),
		"status", string(status),
		"attempts", document.AttemptCount,
	)
	return document, nil
}

// auditSensitiveFlag records that extraction saw unmasked identifiers beyond
// the expected type. A logging side effect, never a blocking condition.
func (p *Pipeline) auditSensitiveFlag(ctx context.Context, document *models.Document, result *models.ExtractionResult) {
	if result == nil || !result.FlaggedSensitive {
		return
	}
	if err := p.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectDocument,
		SubjectID:   document.ID.String(),
		Action:      string(audit.ActionSensitiveDataAccess),
		Payload: map[string]string{
			"enrollment_id": document.EnrollmentID.String(),
			"type":          string(document.Type),
		},
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		p.logger.ErrorContext(ctx, "failed to audit sensitive data flag", "error", err)
	}
}

func (p *Pipeline) auditDenied(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) {
	if err := p.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectEnrollment,
		SubjectID:   enrollmentID.String(),
		ActorID:     actor.ID,
		Action:      string(audit.ActionForbiddenAccess),
		Payload:     map[string]string{"action": string(authz.ActionUploadDocument)},
		RequestID:   middleware.GetRequestID(ctx),
	}); err != nil {
		p.logger.ErrorContext(ctx, "failed to audit authorization denial", "error", err)
	}
}
