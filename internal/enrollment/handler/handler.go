// Package handler exposes the enrollment lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"caregate/internal/authz"
	"caregate/internal/enrollment/models"
	"caregate/internal/enrollment/service"
	ivmodels "caregate/internal/interview/models"
	"caregate/internal/platform/metrics"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mocks.go -package=mocks Service

// Service defines the lifecycle operations the handler exposes.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, metadata map[string]string) (*models.Enrollment, error)
	Get(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) (*service.View, error)
	SubmitDocuments(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) error
	RecordHealthDeclaration(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, answers map[string]string) error
	ScheduleInterview(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, interviewerID id.UserID, at time.Time) (*ivmodels.Interview, error)
	CompleteInterview(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID) error
	Cancel(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, reason string) error
}

// Handler handles enrollment lifecycle endpoints.
type Handler struct {
	logger       *slog.Logger
	enrollments  Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	validate     *validator.Validate
}

// New creates a new enrollment Handler.
func New(
	enrollments Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		enrollments:  enrollments,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		validate:     validator.New(),
	}
}

// Register registers the enrollment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Device)
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/enrollments", h.handleCreate)
		r.Get("/enrollments/{enrollmentID}", h.handleGet)
		r.Post("/enrollments/{enrollmentID}/submit", h.handleSubmitDocuments)
		r.Post("/enrollments/{enrollmentID}/health-declaration", h.handleHealthDeclaration)
		r.Post("/enrollments/{enrollmentID}/interview", h.handleScheduleInterview)
		r.Post("/enrollments/{enrollmentID}/interview/complete", h.handleCompleteInterview)
		r.Post("/enrollments/{enrollmentID}/cancel", h.handleCancel)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "metadata is required"))
		return
	}

	enrollment, err := h.enrollments.Create(ctx, actor, req.Metadata)
	if err != nil {
		h.writeServiceError(ctx, w, "create enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEnrollmentResponse(enrollment))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	view, err := h.enrollments.Get(ctx, actor, enrollmentID)
	if err != nil {
		h.writeServiceError(ctx, w, "get enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toViewResponse(view))
}

func (h *Handler) handleSubmitDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	if err := h.enrollments.SubmitDocuments(ctx, actor, enrollmentID); err != nil {
		h.writeServiceError(ctx, w, "submit documents", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealthDeclaration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	var req healthDeclarationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "answers are required"))
		return
	}

	if err := h.enrollments.RecordHealthDeclaration(ctx, actor, enrollmentID, req.Answers); err != nil {
		h.writeServiceError(ctx, w, "record health declaration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScheduleInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	var req scheduleInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "interviewer_id and scheduled_at are required"))
		return
	}
	interviewerID, err := id.ParseUserID(req.InterviewerID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid interviewer_id"))
		return
	}

	interview, err := h.enrollments.ScheduleInterview(ctx, actor, enrollmentID, interviewerID, req.ScheduledAt)
	if err != nil {
		h.writeServiceError(ctx, w, "schedule interview", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInterviewResponse(interview))
}

func (h *Handler) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	if err := h.enrollments.CompleteInterview(ctx, actor, enrollmentID); err != nil {
		h.writeServiceError(ctx, w, "complete interview", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.enrollments.Cancel(ctx, actor, enrollmentID, req.Reason); err != nil {
		h.writeServiceError(ctx, w, "cancel enrollment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actor rebuilds the authenticated principal from the context populated by
// RequireAuth. A missing identity means the middleware chain is misconfigured.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return authz.Actor{}, false
	}
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid actor id"))
		return authz.Actor{}, false
	}
	return authz.Actor{ID: parsed, Roles: middleware.GetRoles(ctx)}, true
}

func (h *Handler) enrollmentID(w http.ResponseWriter, r *http.Request) (id.EnrollmentID, bool) {
	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "enrollmentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid enrollment id"))
		return id.EnrollmentID{}, false
	}
	return enrollmentID, true
}

// writeServiceError logs at a severity matching the error class and renders
// the shared envelope. Expected domain errors stay at warn.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
