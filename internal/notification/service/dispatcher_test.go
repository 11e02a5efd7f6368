package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caregate/internal/notification/models"
	"caregate/internal/notification/store"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/audit"
	"caregate/pkg/platform/audit/publisher"
	auditmem "caregate/pkg/platform/audit/store/memory"
	"caregate/pkg/platform/backoff"
)

var noSleep backoff.Sleeper = func(context.Context, time.Duration) error { return nil }

// receiver is a scripted webhook endpoint. It fails the first failures
// requests and records everything it accepts.
type receiver struct {
	mu       sync.Mutex
	failures int
	requests []receivedRequest
}

type receivedRequest struct {
	Signature string
	Body      []byte
}

func (r *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failures > 0 {
			r.failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		r.requests = append(r.requests, receivedRequest{
			Signature: req.Header.Get(SignatureHeader),
			Body:      body,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (r *receiver) accepted() []receivedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedRequest(nil), r.requests...)
}

type DispatcherSuite struct {
	suite.Suite

	receiver   *receiver
	server     *httptest.Server
	deliveries *store.InMemoryStore
	auditStore *auditmem.Store
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.receiver = &receiver{}
	s.server = httptest.NewServer(s.receiver.handler())
	s.deliveries = store.NewInMemoryStore()
	s.auditStore = auditmem.New()
	s.dispatcher = New(s.deliveries, publisher.New(s.auditStore), s.server.URL, []byte("test-secret"),
		WithSleeper(noSleep),
	)
}

func (s *DispatcherSuite) TearDownTest() {
	s.server.Close()
}

// notifyAndDrain records the event and runs the queued delivery synchronously.
func (s *DispatcherSuite) notifyAndDrain(eventType string, payload map[string]string) *models.Delivery {
	ctx := context.Background()
	s.Require().NoError(s.dispatcher.Notify(ctx, eventType, payload))
	deliveryID := <-s.dispatcher.queue
	s.dispatcher.deliver(ctx, deliveryID)
	delivery, err := s.deliveries.FindByID(ctx, deliveryID)
	s.Require().NoError(err)
	return delivery
}

// --- delivery ---

func (s *DispatcherSuite) TestDeliverySignedAndRecorded() {
	delivery := s.notifyAndDrain("enrollment.completed", map[string]string{"enrollment_id": "e-1"})

	s.Equal(models.StatusDelivered, delivery.Status)
	s.Equal(1, delivery.Attempts)
	s.Empty(delivery.LastError)
	s.NotNil(delivery.DeliveredAt)

	accepted := s.receiver.accepted()
	s.Require().Len(accepted, 1)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(accepted[0].Body)
	s.Equal(hex.EncodeToString(mac.Sum(nil)), accepted[0].Signature)

	var env envelope
	s.Require().NoError(json.Unmarshal(accepted[0].Body, &env))
	s.Equal("enrollment.completed", env.EventType)
	s.Equal(delivery.ID.String(), env.DeliveryID)
	s.Equal("e-1", env.Payload["enrollment_id"])

	entries, err := s.auditStore.ListBySubject(context.Background(), audit.SubjectDelivery, delivery.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(string(audit.ActionNotificationDelivered), entries[0].Action)
}

func (s *DispatcherSuite) TestTransientFailureRetriedToSuccess() {
	s.receiver.failures = 2

	delivery := s.notifyAndDrain("enrollment.completed", nil)

	s.Equal(models.StatusDelivered, delivery.Status)
	s.Equal(3, delivery.Attempts)
	s.Len(s.receiver.accepted(), 1)
}

func (s *DispatcherSuite) TestExhaustedRetriesMarkFailed() {
	s.receiver.failures = 100

	delivery := s.notifyAndDrain("enrollment.completed", nil)

	s.Equal(models.StatusFailed, delivery.Status)
	s.Equal(backoff.NotificationDefaults().MaxAttempts, delivery.Attempts)
	s.Contains(delivery.LastError, "502")

	entries, err := s.auditStore.ListBySubject(context.Background(), audit.SubjectDelivery, delivery.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(string(audit.ActionNotificationFailed), entries[0].Action)

	failed, err := s.dispatcher.ListFailed(context.Background())
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(delivery.ID, failed[0].ID)
}

func (s *DispatcherSuite) TestRedeliverAfterTargetRecovers() {
	ctx := context.Background()
	s.receiver.failures = 100
	delivery := s.notifyAndDrain("enrollment.completed", nil)
	s.Require().Equal(models.StatusFailed, delivery.Status)

	// Target recovers; operator retriggers.
	s.receiver.mu.Lock()
	s.receiver.failures = 0
	s.receiver.mu.Unlock()

	s.Require().NoError(s.dispatcher.Redeliver(ctx, delivery.ID))
	s.dispatcher.deliver(ctx, <-s.dispatcher.queue)

	delivered, err := s.deliveries.FindByID(ctx, delivery.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, delivered.Status)
	s.Len(s.receiver.accepted(), 1)
}

func (s *DispatcherSuite) TestRedeliverRejectsDeliveredAndUnknown() {
	ctx := context.Background()
	delivery := s.notifyAndDrain("enrollment.completed", nil)
	s.Require().Equal(models.StatusDelivered, delivery.Status)

	s.Error(s.dispatcher.Redeliver(ctx, delivery.ID))
	s.Error(s.dispatcher.Redeliver(ctx, id.NewDeliveryID()))
}
