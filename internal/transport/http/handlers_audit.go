package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"caregate/internal/authz"
	"caregate/internal/platform/metrics"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	"caregate/pkg/platform/httputil"
)

// AuditHandler exposes the compliance read over the audit trail. The trail
// itself is append-only; this surface is strictly read.
type AuditHandler struct {
	logger       *slog.Logger
	audit        *publisher.Publisher
	gate         authz.Gate
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// NewAuditHandler creates the audit read handler.
func NewAuditHandler(
	auditPublisher *publisher.Publisher,
	gate authz.Gate,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *AuditHandler {
	return &AuditHandler{
		logger:       logger,
		audit:        auditPublisher,
		gate:         gate,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the audit routes with the chi router.
func (h *AuditHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Latency(h.metrics))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/audit/{subjectType}/{subjectID}", h.handleListBySubject)
	})
}

type auditEntryResponse struct {
	ID          string            `json:"id"`
	SubjectType string            `json:"subject_type"`
	SubjectID   string            `json:"subject_id"`
	ActorID     string            `json:"actor_id,omitempty"`
	Action      string            `json:"action"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     map[string]string `json:"payload,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
}

var knownSubjectTypes = map[audit.SubjectType]bool{
	audit.SubjectEnrollment: true,
	audit.SubjectDocument:   true,
	audit.SubjectInterview:  true,
	audit.SubjectDelivery:   true,
}

func (h *AuditHandler) handleListBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	actorID, err := id.ParseUserID(userID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid actor id"))
		return
	}
	actor := authz.Actor{ID: actorID, Roles: middleware.GetRoles(ctx)}

	subjectType := audit.SubjectType(chi.URLParam(r, "subjectType"))
	if !knownSubjectTypes[subjectType] {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown subject type"))
		return
	}
	subjectID := chi.URLParam(r, "subjectID")

	resource := authz.Resource{Type: string(subjectType), ID: subjectID}
	if err := h.gate.Check(ctx, actor, authz.ActionReadAudit, resource); err != nil {
		h.logger.WarnContext(ctx, "audit read denied",
			"actor_id", actorID.String(),
			"subject_type", string(subjectType),
			"subject_id", subjectID,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.audit.ListBySubject(ctx, subjectType, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit entries",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit entries"))
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := auditEntryResponse{
			ID:          e.ID,
			SubjectType: string(e.SubjectType),
			SubjectID:   e.SubjectID,
			Action:      e.Action,
			Timestamp:   e.Timestamp,
			Payload:     e.Payload,
			RequestID:   e.RequestID,
		}
		if !e.ActorID.IsNil() {
			resp.ActorID = e.ActorID.String()
		}
		out = append(out, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
