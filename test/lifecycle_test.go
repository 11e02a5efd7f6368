package test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregate/internal/authz"
	"caregate/internal/blobstore"
	"caregate/internal/document/claim"
	docmodels "caregate/internal/document/models"
	docservice "caregate/internal/document/service"
	docstore "caregate/internal/document/store"
	enrmodels "caregate/internal/enrollment/models"
	enrservice "caregate/internal/enrollment/service"
	enrstore "caregate/internal/enrollment/store"
	ivstore "caregate/internal/interview/store"
	notifservice "caregate/internal/notification/service"
	notifstore "caregate/internal/notification/store"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	auditmem "caregate/pkg/platform/audit/store/memory"
	"caregate/pkg/platform/backoff"
)

// scriptedExtractor returns pre-scripted results per document type, in order.
type scriptedExtractor struct {
	mu      sync.Mutex
	results map[docmodels.Type][]*docmodels.ExtractionResult
}

func (e *scriptedExtractor) Extract(_ context.Context, _ blobstore.Handle, docType docmodels.Type) (*docmodels.ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	queue := e.results[docType]
	if len(queue) == 0 {
		return &docmodels.ExtractionResult{Confidence: 0.95}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		e.results[docType] = queue[1:]
	}
	return next, nil
}

// TestEnrollmentLifecycle drives a full case through the real services with
// in-memory stores: create, submit, document verification (including one
// low-confidence re-extraction), health declaration, interview, completion,
// and the signed completion webhook.
func TestEnrollmentLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Webhook sink verifying the HMAC signature on every delivery.
	secret := []byte("lifecycle-test-secret")
	var webhookMu sync.Mutex
	var deliveries []map[string]any
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mac := hmac.New(sha256.New, secret)
		mac.Write(body)
		require.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get(notifservice.SignatureHeader))

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(body, &envelope))
		webhookMu.Lock()
		deliveries = append(deliveries, envelope)
		webhookMu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	auditStore := auditmem.New()
	auditPublisher := publisher.New(auditStore)
	gate := authz.NewPolicyGate()

	dispatcher := notifservice.New(notifstore.NewInMemoryStore(), auditPublisher, sink.URL, secret,
		notifservice.WithLogger(logger),
		notifservice.WithWorkers(1),
	)
	go func() { _ = dispatcher.Run(ctx) }()

	enrollments := enrstore.NewInMemoryStore()
	documents := docstore.NewInMemoryStore()
	lifecycle := enrservice.New(enrollments, documents, ivstore.NewMemory(), gate, auditPublisher,
		enrservice.NewShardedTx(),
		enrservice.WithLogger(logger),
		enrservice.WithNotifier(dispatcher),
	)

	extractor := &scriptedExtractor{results: map[docmodels.Type][]*docmodels.ExtractionResult{
		docmodels.TypeID: {
			{Confidence: 0.95, Fields: map[string]string{"full_name": "Ada Nilsen"}, FlaggedSensitive: true},
		},
		docmodels.TypeProofOfAddress: {
			{Confidence: 0.60, Fields: map[string]string{"address": "blurred"}},
			{Confidence: 0.90, Fields: map[string]string{"address": "12 Storgata"}},
		},
	}}
	pipeline := docservice.New(documents, enrollments, lifecycle, blobstore.NewMemory(), extractor,
		claim.NewInMemoryClaimer(), gate, auditPublisher,
		docservice.WithLogger(logger),
		docservice.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		docservice.WithRetryPolicy(backoff.Policy{MaxAttempts: 3, Base: time.Millisecond, Factor: 2, Cap: time.Millisecond}),
	)

	member := authz.Actor{ID: id.NewUserID(), Roles: []string{authz.RoleMember}}
	agent := authz.Actor{ID: id.NewUserID(), Roles: []string{authz.RoleAgent}}
	medical := authz.Actor{ID: id.NewUserID(), Roles: []string{authz.RoleMedical}}

	enrollment, err := lifecycle.Create(ctx, member, map[string]string{
		"full_name":     "Ada Nilsen",
		"date_of_birth": "1987-04-12",
		"contact_email": "ada.nilsen@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, enrmodels.StatusDraft, enrollment.Status)

	require.NoError(t, lifecycle.SubmitDocuments(ctx, member, enrollment.ID))

	upload := func(docType docmodels.Type) *docmodels.Document {
		t.Helper()
		document, err := pipeline.Upload(ctx, member, enrollment.ID, docType, []byte("scan of "+string(docType)))
		require.NoError(t, err)
		processed, err := pipeline.Process(ctx, document.ID, []byte("scan of "+string(docType)))
		require.NoError(t, err)
		return processed
	}

	idDoc := upload(docmodels.TypeID)
	assert.Equal(t, docmodels.StatusVerified, idDoc.Status)
	require.NotNil(t, idDoc.Extraction)
	assert.InDelta(t, 0.95, idDoc.Extraction.Confidence, 0.001)

	// The proof of address scores 0.60 first; the single re-extraction
	// brings it over the threshold.
	poaDoc := upload(docmodels.TypeProofOfAddress)
	assert.Equal(t, docmodels.StatusVerified, poaDoc.Status)
	assert.InDelta(t, 0.90, poaDoc.Extraction.Confidence, 0.001)

	view, err := lifecycle.Get(ctx, member, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, enrmodels.StatusHealthDeclarationPending, view.Enrollment.Status)

	require.NoError(t, lifecycle.RecordHealthDeclaration(ctx, member, enrollment.ID, map[string]string{
		"chronic_conditions":  "none",
		"current_medications": "none",
		"allergies":           "pollen",
	}))

	interview, err := lifecycle.ScheduleInterview(ctx, agent, enrollment.ID, id.NewUserID(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, interview)

	require.NoError(t, lifecycle.CompleteInterview(ctx, medical, enrollment.ID))

	view, err = lifecycle.Get(ctx, member, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, enrmodels.StatusCompleted, view.Enrollment.Status)
	assert.NotNil(t, view.Enrollment.CompletedAt)

	// The completion webhook arrives asynchronously, signed and well-formed.
	require.Eventually(t, func() bool {
		webhookMu.Lock()
		defer webhookMu.Unlock()
		return len(deliveries) == 1
	}, 10*time.Second, 50*time.Millisecond, "expected exactly one completion delivery")

	webhookMu.Lock()
	envelope := deliveries[0]
	webhookMu.Unlock()
	assert.Equal(t, enrservice.EventEnrollmentCompleted, envelope["event_type"])
	payload, ok := envelope["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enrollment.ID.String(), payload["enrollment_id"])

	// The audit trail reconstructs the case history, declaration redacted.
	entries, err := auditStore.ListBySubject(ctx, audit.SubjectEnrollment, enrollment.ID.String())
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
		if entry.Action == string(audit.ActionHealthDeclarationSaved) {
			assert.Equal(t, "[REDACTED]", entry.Payload["declaration"])
		}
	}
	assert.Contains(t, actions, string(audit.ActionEnrollmentCreated))
	assert.Contains(t, actions, string(audit.ActionHealthDeclarationSaved))
	assert.Contains(t, actions, string(audit.ActionEnrollmentCompleted))
}
