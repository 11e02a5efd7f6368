package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caregate/internal/authz"
	notifmodels "caregate/internal/notification/models"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
)

// fakeDispatcher scripts the operator surface without a running worker pool.
type fakeDispatcher struct {
	failed      []*notifmodels.Delivery
	redelivered []id.DeliveryID
}

func (f *fakeDispatcher) ListFailed(context.Context) ([]*notifmodels.Delivery, error) {
	return f.failed, nil
}

func (f *fakeDispatcher) Redeliver(_ context.Context, deliveryID id.DeliveryID) error {
	for _, d := range f.failed {
		if d.ID == deliveryID {
			f.redelivered = append(f.redelivered, deliveryID)
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "delivery not found")
}

type NotificationHandlerSuite struct {
	suite.Suite

	dispatcher *fakeDispatcher
	jwt        *authz.JWTService
	router     chi.Router

	failedID id.DeliveryID
}

func TestNotificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(NotificationHandlerSuite))
}

func (s *NotificationHandlerSuite) SetupTest() {
	s.failedID = id.NewDeliveryID()
	s.dispatcher = &fakeDispatcher{
		failed: []*notifmodels.Delivery{{
			ID:        s.failedID,
			EventType: "enrollment.completed",
			Target:    "https://partners.example/events",
			Status:    notifmodels.StatusFailed,
			Attempts:  5,
			LastError: "unexpected status 503",
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}},
	}
	s.jwt = authz.NewJWTService("test-signing-key", "caregate", "caregate")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewNotificationHandler(s.dispatcher, authz.NewPolicyGate(), logger, nil, s.jwt)
	s.router = chi.NewRouter()
	handler.Register(s.router)
}

func (s *NotificationHandlerSuite) do(method, path, role string) *httptest.ResponseRecorder {
	token, err := s.jwt.GenerateToken(uuid.New(), []string{role}, time.Hour)
	s.Require().NoError(err)

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *NotificationHandlerSuite) TestListFailedAsCompliance() {
	rec := s.do(http.MethodGet, "/notifications/failed", authz.RoleCompliance)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Deliveries []deliveryResponse `json:"deliveries"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Deliveries, 1)
	s.Equal(s.failedID.String(), body.Deliveries[0].ID)
	s.Equal("FAILED", body.Deliveries[0].Status)
	s.Equal(5, body.Deliveries[0].Attempts)
}

func (s *NotificationHandlerSuite) TestRedeliverRequeues() {
	rec := s.do(http.MethodPost, "/notifications/"+s.failedID.String()+"/redeliver", authz.RoleAdmin)
	s.Require().Equal(http.StatusNoContent, rec.Code)
	s.Equal([]id.DeliveryID{s.failedID}, s.dispatcher.redelivered)
}

func (s *NotificationHandlerSuite) TestRedeliverUnknownDelivery() {
	rec := s.do(http.MethodPost, "/notifications/"+id.NewDeliveryID().String()+"/redeliver", authz.RoleCompliance)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *NotificationHandlerSuite) TestRedeliverMalformedID() {
	rec := s.do(http.MethodPost, "/notifications/not-a-uuid/redeliver", authz.RoleCompliance)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *NotificationHandlerSuite) TestMemberForbidden() {
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/notifications/failed", authz.RoleMember).Code)
	s.Equal(http.StatusForbidden,
		s.do(http.MethodPost, "/notifications/"+s.failedID.String()+"/redeliver", authz.RoleMember).Code)
	s.Empty(s.dispatcher.redelivered)
}
