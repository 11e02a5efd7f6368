//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "caregate/pkg/domain"
	"caregate/pkg/platform/audit"
	auditpg "caregate/pkg/platform/audit/store/postgres"
	"caregate/pkg/platform/audit/worker"
	"caregate/pkg/testutil/containers"
)

func applySchema(t *testing.T, pc *containers.PostgresContainer) {
	t.Helper()
	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err, "read schema migration")
	pc.Exec(t, string(schema))
}

func appendEntry(t *testing.T, store *auditpg.Store, subjectID string, action audit.Action) {
	t.Helper()
	err := store.Append(context.Background(), audit.Entry{
		ID:          id.NewEnrollmentID().String(),
		SubjectType: audit.SubjectEnrollment,
		SubjectID:   subjectID,
		ActorID:     id.NewUserID(),
		Action:      string(action),
		Timestamp:   time.Now().UTC(),
		Payload:     map[string]string{"status": "DRAFT"},
		RequestID:   "req-integration",
	})
	require.NoError(t, err)
}

func TestOutboxWorker_PublishesAuditEntries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pc := containers.NewPostgresContainer(t)
	applySchema(t, pc)
	rp := containers.NewRedpandaContainer(t)

	store := auditpg.New(pc.DB)
	subjectID := id.NewEnrollmentID().String()
	appendEntry(t, store, subjectID, audit.ActionEnrollmentCreated)
	appendEntry(t, store, subjectID, audit.ActionEnrollmentStatusChanged)

	pending, err := store.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "appends must stage outbox rows")

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.AllowAutoTopicCreation(),
	)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, worker.EnsureTopic(ctx, producer, 1, 1))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := worker.New(store, producer,
		worker.WithLogger(logger),
		worker.WithPollInterval(100*time.Millisecond),
	)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(runCtx)
	}()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(worker.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, fetches.Err())
		records = append(records, fetches.Records()...)
	}
	stop()
	<-done

	// Per-subject ordering: both records share the subject key, and the
	// payloads decode back to the appended entries in order.
	for _, record := range records {
		assert.Equal(t, "enrollment:"+subjectID, string(record.Key))
	}
	var first map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &first))
	assert.Equal(t, string(audit.ActionEnrollmentCreated), first["action"])

	// Published rows leave the outbox; the audit trail itself is untouched.
	require.Eventually(t, func() bool {
		pending, err := store.PendingOutbox(context.Background(), 10)
		return err == nil && len(pending) == 0
	}, 10*time.Second, 200*time.Millisecond)

	entries, err := store.ListBySubject(ctx, audit.SubjectEnrollment, subjectID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
