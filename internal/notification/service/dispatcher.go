// Package service implements the outbound notification dispatcher. Lifecycle
// events are persisted as delivery records, signed, and pushed to the
// configured webhook target with retries. Exhausted retries mark the record
// FAILED; nothing is silently dropped.
package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"caregate/internal/notification/metrics"
	"caregate/internal/notification/models"
	"caregate/internal/notification/store"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	"caregate/pkg/platform/backoff"
	"caregate/pkg/platform/sentinel"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body. Receivers
// verify it against the shared secret before trusting the payload.
const SignatureHeader = "X-Caregate-Signature"

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultQueueSize   = 256
	defaultWorkers     = 2
)

// envelope is the wire shape of one delivery.
type envelope struct {
	DeliveryID string            `json:"delivery_id"`
	EventType  string            `json:"event_type"`
	Payload    map[string]string `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Dispatcher persists and delivers lifecycle notifications. Notify is cheap
// and non-blocking; delivery with its retry schedule runs on Run's workers.
type Dispatcher struct {
	store   store.Store
	audit   *publisher.Publisher
	http    *http.Client
	target  string
	secret  []byte
	policy  backoff.Policy
	sleep   backoff.Sleeper
	metrics *metrics.Metrics
	logger  *slog.Logger
	clock   func() time.Time
	workers int
	queue   chan id.DeliveryID
}

// Option configures optional Dispatcher dependencies.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRetryPolicy overrides the delivery retry schedule.
func WithRetryPolicy(policy backoff.Policy) Option {
	return func(d *Dispatcher) { d.policy = policy }
}

// WithSleeper overrides how retry delays pass. Tests inject a no-op sleeper.
func WithSleeper(sleep backoff.Sleeper) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.http = client
		}
	}
}

func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan id.DeliveryID, size)
		}
	}
}

func WithWorkers(workers int) Option {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New creates a Dispatcher targeting one webhook endpoint. The secret signs
// every delivery body.
func New(deliveries store.Store, auditPublisher *publisher.Publisher, target string, secret []byte, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   deliveries,
		audit:   auditPublisher,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		target:  target,
		secret:  secret,
		policy:  backoff.NotificationDefaults(),
		sleep:   backoff.Wait,
		logger:  slog.Default(),
		clock:   func() time.Time { return time.Now().UTC() },
		workers: defaultWorkers,
		queue:   make(chan id.DeliveryID, defaultQueueSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Notify records the event as a PENDING delivery and queues it. The record is
// durable before Notify returns; actual delivery happens asynchronously.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, payload map[string]string) error {
	now := d.clock()
	delivery := &models.Delivery{
		ID:        id.NewDeliveryID(),
		EventType: eventType,
		Target:    d.target,
		Payload:   payload,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.Create(ctx, delivery); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create delivery record")
	}

	select {
	case d.queue <- delivery.ID:
	default:
		// Record stays PENDING; Redeliver picks it up.
		d.logger.WarnContext(ctx, "delivery queue full",
			"delivery_id", delivery.ID.String(),
			"event_type", eventType,
		)
	}
	return nil
}

// Run consumes queued deliveries until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case deliveryID := <-d.queue:
					d.deliver(ctx, deliveryID)
				}
			}
		})
	}
	return g.Wait()
}

// ListFailed returns deliveries whose retries were exhausted.
func (d *Dispatcher) ListFailed(ctx context.Context) ([]*models.Delivery, error) {
	failed, err := d.store.ListFailed(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list failed deliveries")
	}
	return failed, nil
}

// Redeliver requeues a FAILED or stuck PENDING delivery for another full
// retry cycle. Used by operators after fixing the receiving end.
func (d *Dispatcher) Redeliver(ctx context.Context, deliveryID id.DeliveryID) error {
	delivery, err := d.store.FindByID(ctx, deliveryID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load delivery")
	}
	if delivery.Status == models.StatusDelivered {
		return dErrors.New(dErrors.CodeConflict, "delivery already succeeded")
	}

	delivery.Status = models.StatusPending
	delivery.UpdatedAt = d.clock()
	if err := d.store.Update(ctx, delivery); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update delivery")
	}

	select {
	case d.queue <- delivery.ID:
		return nil
	default:
		return dErrors.New(dErrors.CodeUnavailable, "delivery queue full")
	}
}

// deliver runs one full retry cycle for a delivery and records the terminal
// outcome.
func (d *Dispatcher) deliver(ctx context.Context, deliveryID id.DeliveryID) {
	delivery, err := d.store.FindByID(ctx, deliveryID)
	if err != nil {
		d.logger.ErrorContext(ctx, "load queued delivery failed",
			"delivery_id", deliveryID.String(),
			"error", err,
		)
		return
	}
	if delivery.Status == models.StatusDelivered {
		return
	}

	body, err := json.Marshal(envelope{
		DeliveryID: delivery.ID.String(),
		EventType:  delivery.EventType,
		Payload:    delivery.Payload,
		OccurredAt: delivery.CreatedAt,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "marshal delivery envelope failed",
			"delivery_id", deliveryID.String(),
			"error", err,
		)
		return
	}

	err = backoff.Retry(ctx, d.policy, d.sleep, func(ctx context.Context, attempt int) error {
		sendErr := d.send(ctx, body)
		delivery.Attempts++
		delivery.UpdatedAt = d.clock()
		if sendErr != nil {
			d.metrics.IncrementAttempt("error")
			delivery.LastError = sendErr.Error()
			if updateErr := d.store.Update(ctx, delivery); updateErr != nil {
				d.logger.ErrorContext(ctx, "persist delivery attempt failed",
					"delivery_id", delivery.ID.String(),
					"error", updateErr,
				)
			}
			return sendErr
		}
		d.metrics.IncrementAttempt("ok")
		return nil
	})

	if err != nil {
		d.finalize(ctx, delivery, models.StatusFailed)
		return
	}
	now := d.clock()
	delivery.DeliveredAt = &now
	delivery.LastError = ""
	d.finalize(ctx, delivery, models.StatusDelivered)
}

func (d *Dispatcher) finalize(ctx context.Context, delivery *models.Delivery, status models.Status) {
	delivery.Status = status
	delivery.UpdatedAt = d.clock()
	if err := d.store.Update(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "persist delivery outcome failed",
			"delivery_id", delivery.ID.String(),
			"error", err,
		)
		return
	}

	action := audit.ActionNotificationDelivered
	if status == models.StatusFailed {
		action = audit.ActionNotificationFailed
	}
	if err := d.audit.Emit(ctx, audit.Entry{
		SubjectType: audit.SubjectDelivery,
		SubjectID:   delivery.ID.String(),
		Action:      string(action),
		Payload: map[string]string{
			"event_type": delivery.EventType,
			"attempts":   strconv.Itoa(delivery.Attempts),
		},
	}); err != nil {
		d.logger.ErrorContext(ctx, "audit delivery outcome failed",
			"delivery_id", delivery.ID.String(),
			"error", err,
		)
	}
	d.metrics.IncrementOutcome(delivery.EventType, string(status))

	if status == models.StatusFailed {
		d.logger.ErrorContext(ctx, "notification delivery exhausted retries",
			"delivery_id", delivery.ID.String(),
			"event_type", delivery.EventType,
			"attempts", delivery.Attempts,
			"last_error", delivery.LastError,
		)
		return
	}
	d.logger.InfoContext(ctx, "notification delivered",
		"delivery_id", delivery.ID.String(),
		"event_type", delivery.EventType,
		"attempts", delivery.Attempts,
	)
}

// send posts the signed body once. Any non-2xx response is a failed attempt.
func (d *Dispatcher) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, d.Sign(body))

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("post delivery: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery target returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body with the shared secret. Exposed
// so receivers in this repo can verify without duplicating the scheme.
func (d *Dispatcher) Sign(body []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
