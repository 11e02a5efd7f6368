// Package handler exposes document upload and retrieval over HTTP. Uploads
// are accepted synchronously; verification runs on the worker pool.
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
	"caregate/internal/document/models"
	"caregate/internal/platform/metrics"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mocks.go -package=mocks Service,Queue

// Service defines the pipeline operations the handler exposes.
type Service interface {
	Upload(ctx context.Context, actor authz.Actor, enrollmentID id.EnrollmentID, docType models.Type, data []byte) (*models.Document, error)
	Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
}

// Queue hands accepted documents to the asynchronous processing pool.
type Queue interface {
	Enqueue(ctx context.Context, documentID id.DocumentID, data []byte) bool
}

// Handler handles document endpoints.
type Handler struct {
	logger       *slog.Logger
	documents    Service
	queue        Queue
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	validate     *validator.Validate
	uploadLimit  func(http.Handler) http.Handler
}

// Option configures optional handler behavior.
type Option func(*Handler)

// WithUploadLimiter rate-limits the upload route. Uploads fan out to blob
// storage and the extraction vendor; reads stay unthrottled.
func WithUploadLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.uploadLimit = mw }
}

// New creates a new document Handler.
func New(
	documents Service,
	queue Queue,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		documents:    documents,
		queue:        queue,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		validate:     validator.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register registers the document routes with the chi router.
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
		if h.uploadLimit != nil {
			r.With(h.uploadLimit).Post("/enrollments/{enrollmentID}/documents", h.handleUpload)
		} else {
			r.Post("/enrollments/{enrollmentID}/documents", h.handleUpload)
		}
		r.Get("/documents/{documentID}", h.handleGet)
	})
}

type uploadRequest struct {
	Type string `json:"type" validate:"required"`
	// Content is the raw document, base64-encoded on the wire.
	Content []byte `json:"content" validate:"required"`
}

type uploadResponse struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type documentResponse struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// handleUpload registers the document and queues it for verification. The
// response is 202: the document is durably UPLOADED but not yet processed.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "enrollmentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid enrollment id"))
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "type and content are required"))
		return
	}

	document, err := h.documents.Upload(ctx, actor, enrollmentID, models.Type(req.Type), req.Content)
	if err != nil {
		h.writeServiceError(ctx, w, "upload document", err)
		return
	}

	if !h.queue.Enqueue(ctx, document.ID, req.Content) {
		// The document stays UPLOADED; a re-upload or an operator requeue
		// picks it up.
		h.logger.WarnContext(ctx, "processing queue full, document not enqueued",
			"document_id", document.ID.String(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}

	httputil.WriteJSON(w, http.StatusAccepted, uploadResponse{
		ID:           document.ID.String(),
		EnrollmentID: document.EnrollmentID.String(),
		Type:         string(document.Type),
		Status:       string(document.Status),
		CreatedAt:    document.CreatedAt,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid document id"))
		return
	}

	document, err := h.documents.Get(ctx, documentID)
	if err != nil {
		h.writeServiceError(ctx, w, "get document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentResponse{
		ID:           document.ID.String(),
		EnrollmentID: document.EnrollmentID.String(),
		Type:         string(document.Type),
		Status:       string(document.Status),
		AttemptCount: document.AttemptCount,
		LastError:    document.LastError,
		CreatedAt:    document.CreatedAt,
		UpdatedAt:    document.UpdatedAt,
	})
}

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
