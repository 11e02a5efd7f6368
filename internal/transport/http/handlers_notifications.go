package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"caregate/internal/authz"
	notifmodels "caregate/internal/notification/models"
	"caregate/internal/platform/metrics"
	"caregate/internal/platform/middleware"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// NotificationService is the dispatcher surface the operator endpoints use.
type NotificationService interface {
	ListFailed(ctx context.Context) ([]*notifmodels.Delivery, error)
	Redeliver(ctx context.Context, deliveryID id.DeliveryID) error
}

// NotificationHandler exposes the operator surface over outbound webhook
// deliveries: listing exhausted ones and requeueing them after the receiving
// end is fixed.
type NotificationHandler struct {
	logger       *slog.Logger
	deliveries   NotificationService
	gate         authz.Gate
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// NewNotificationHandler creates the notification operator handler.
func NewNotificationHandler(
	deliveries NotificationService,
	gate authz.Gate,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *NotificationHandler {
	return &NotificationHandler{
		logger:       logger,
		deliveries:   deliveries,
		gate:         gate,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the notification routes with the chi router.
func (h *NotificationHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Latency(h.metrics))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/notifications/failed", h.handleListFailed)
		r.Post("/notifications/{deliveryID}/redeliver", h.handleRedeliver)
	})
}

type deliveryResponse struct {
	ID        string     `json:"id"`
	EventType string     `json:"event_type"`
	Target    string     `json:"target"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Delivered *time.Time `json:"delivered_at,omitempty"`
}

func (h *NotificationHandler) actor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	ctx := r.Context()
	actorID, err := id.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid actor id"))
		return authz.Actor{}, false
	}
	actor := authz.Actor{ID: actorID, Roles: middleware.GetRoles(ctx)}
	resource := authz.Resource{Type: "delivery", ID: chi.URLParam(r, "deliveryID")}
	if err := h.gate.Check(ctx, actor, authz.ActionRedeliverWebhook, resource); err != nil {
		h.logger.WarnContext(ctx, "notification operation denied",
			"actor_id", actorID.String(),
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return authz.Actor{}, false
	}
	return actor, true
}

func (h *NotificationHandler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	failed, err := h.deliveries.ListFailed(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list exhausted deliveries",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list deliveries"))
		return
	}

	out := make([]deliveryResponse, 0, len(failed))
	for _, d := range failed {
		out = append(out, deliveryResponse{
			ID:        d.ID.String(),
			EventType: d.EventType,
			Target:    d.Target,
			Status:    string(d.Status),
			Attempts:  d.Attempts,
			LastError: d.LastError,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
			Delivered: d.DeliveredAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": out})
}

func (h *NotificationHandler) handleRedeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	deliveryID, err := id.ParseDeliveryID(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid delivery id"))
		return
	}

	if err := h.deliveries.Redeliver(ctx, deliveryID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
