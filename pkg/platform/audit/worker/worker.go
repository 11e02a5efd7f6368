// Package worker publishes staged audit outbox rows to Kafka.
//
// The audit trail is written durably to PostgreSQL in the mutating
// transaction; this worker drains the outbox into the audit topic so
// downstream consumers (compliance archive, SIEM) receive every entry at
// least once. Messages are keyed by subject so per-subject ordering is
// preserved within a partition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"caregate/pkg/platform/audit/store/postgres"
)

// Topic is the Kafka topic carrying audit entries.
const Topic = "caregate.audit"

// OutboxSource is the slice of the postgres store the worker needs.
type OutboxSource interface {
	PendingOutbox(ctx context.Context, limit int) ([]postgres.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Worker polls the outbox and produces to Kafka.
type Worker struct {
	source    OutboxSource
	client    *kgo.Client
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

func WithBatchSize(n int) Option {
	return func(w *Worker) { w.batchSize = n }
}

func New(source OutboxSource, client *kgo.Client, opts ...Option) (*Worker, error) {
	if source == nil {
		return nil, fmt.Errorf("outbox source is required")
	}
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	w := &Worker{
		source:    source,
		client:    client,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// EnsureTopic creates the audit topic when it does not exist yet. Safe to
// call on every startup.
func EnsureTopic(ctx context.Context, client *kgo.Client, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, Topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic: %w", resp.Err)
	}
	return nil
}

// Run drains the outbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

// drainOnce publishes one batch. Rows are marked published only after every
// produce in the batch is acknowledged, so a crash re-publishes the batch
// (at-least-once; consumers dedupe on entry id).
func (w *Worker) drainOnce(ctx context.Context) error {
	rows, err := w.source.PendingOutbox(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending outbox rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		records = append(records, &kgo.Record{
			Topic: Topic,
			Key:   []byte(row.SubjectType + ":" + row.SubjectID),
			Value: row.Payload,
		})
		ids = append(ids, row.ID)
	}

	results := w.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}

	if err := w.source.MarkPublished(ctx, ids); err != nil {
		return fmt.Errorf("mark batch published: %w", err)
	}

	w.logger.DebugContext(ctx, "published audit batch", "count", len(rows))
	return nil
}
