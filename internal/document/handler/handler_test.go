package handler

import (
	"bytes"
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
	"go.uber.org/mock/gomock"

	"caregate/internal/authz"
	"caregate/internal/document/handler/mocks"
	"caregate/internal/document/models"
	id "caregate/pkg/domain"
	dErrors "caregate/pkg/domain-errors"
)

type DocumentHandlerSuite struct {
	suite.Suite

	ctrl    *gomock.Controller
	service *mocks.MockService
	queue   *mocks.MockQueue
	jwt     *authz.JWTService
	router  chi.Router

	memberID uuid.UUID
	token    string
}

func TestDocumentHandlerSuite(t *testing.T) {
	suite.Run(t, new(DocumentHandlerSuite))
}

func (s *DocumentHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.queue = mocks.NewMockQueue(s.ctrl)
	s.jwt = authz.NewJWTService("test-signing-key", "caregate", "caregate")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, s.queue, logger, nil, s.jwt)
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.memberID = uuid.New()
	token, err := s.jwt.GenerateToken(s.memberID, []string{authz.RoleMember}, time.Hour)
	s.Require().NoError(err)
	s.token = token
}

func (s *DocumentHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DocumentHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// --- upload ---

func (s *DocumentHandlerSuite) TestUploadAcceptsAndEnqueues() {
	enrollmentID := id.NewEnrollmentID()
	content := []byte("scanned id card")
	document := &models.Document{
		ID:           id.NewDocumentID(),
		EnrollmentID: enrollmentID,
		Type:         models.TypeID,
		Status:       models.StatusUploaded,
	}

	s.service.EXPECT().
		Upload(gomock.Any(), gomock.Any(), enrollmentID, models.TypeID, content).
		Return(document, nil)
	s.queue.EXPECT().
		Enqueue(gomock.Any(), document.ID, content).
		Return(true)

	w := s.do(http.MethodPost, "/enrollments/"+enrollmentID.String()+"/documents", map[string]any{
		"type":    "ID",
		"content": content,
	})

	s.Equal(http.StatusAccepted, w.Code)
	var resp uploadResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(document.ID.String(), resp.ID)
	s.Equal("UPLOADED", resp.Status)
}

func (s *DocumentHandlerSuite) TestUploadStillAcceptedWhenQueueFull() {
	enrollmentID := id.NewEnrollmentID()
	content := []byte("scan")
	document := &models.Document{
		ID:           id.NewDocumentID(),
		EnrollmentID: enrollmentID,
		Type:         models.TypeProofOfAddress,
		Status:       models.StatusUploaded,
	}

	s.service.EXPECT().
		Upload(gomock.Any(), gomock.Any(), enrollmentID, models.TypeProofOfAddress, content).
		Return(document, nil)
	s.queue.EXPECT().
		Enqueue(gomock.Any(), document.ID, content).
		Return(false)

	w := s.do(http.MethodPost, "/enrollments/"+enrollmentID.String()+"/documents", map[string]any{
		"type":    "PROOF_OF_ADDRESS",
		"content": content,
	})

	s.Equal(http.StatusAccepted, w.Code)
}

func (s *DocumentHandlerSuite) TestUploadRejectsMissingFields() {
	enrollmentID := id.NewEnrollmentID()

	w := s.do(http.MethodPost, "/enrollments/"+enrollmentID.String()+"/documents", map[string]any{
		"type": "ID",
	})

	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *DocumentHandlerSuite) TestUploadSurfacesPipelineRejections() {
	enrollmentID := id.NewEnrollmentID()
	content := []byte("x")
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unsupported type", dErrors.New(dErrors.CodeUnsupportedType, "unsupported document type"), http.StatusUnsupportedMediaType, "unsupported_type"},
		{"too large", dErrors.New(dErrors.CodePayloadTooLarge, "document exceeds limit"), http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"wrong state", dErrors.New(dErrors.CodeInvalidTransition, "does not accept uploads"), http.StatusConflict, "invalid_transition"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().
				Upload(gomock.Any(), gomock.Any(), enrollmentID, gomock.Any(), content).
				Return(nil, tt.err)

			w := s.do(http.MethodPost, "/enrollments/"+enrollmentID.String()+"/documents", map[string]any{
				"type":    "ID",
				"content": content,
			})

			s.Equal(tt.wantStatus, w.Code)
			var resp map[string]string
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
			s.Equal(tt.wantCode, resp["error"])
		})
	}
}

// --- get ---

func (s *DocumentHandlerSuite) TestGetReturnsDocument() {
	document := &models.Document{
		ID:           id.NewDocumentID(),
		EnrollmentID: id.NewEnrollmentID(),
		Type:         models.TypeID,
		Status:       models.StatusRejected,
		AttemptCount: 3,
		LastError:    models.ErrReasonExtractionUnavailable,
	}
	s.service.EXPECT().
		Get(gomock.Any(), document.ID).
		Return(document, nil)

	w := s.do(http.MethodGet, "/documents/"+document.ID.String(), nil)

	s.Equal(http.StatusOK, w.Code)
	var resp documentResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("REJECTED", resp.Status)
	s.Equal(3, resp.AttemptCount)
	s.Equal(models.ErrReasonExtractionUnavailable, resp.LastError)
}

func (s *DocumentHandlerSuite) TestGetUnknownDocument() {
	documentID := id.NewDocumentID()
	s.service.EXPECT().
		Get(gomock.Any(), documentID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))

	w := s.do(http.MethodGet, "/documents/"+documentID.String(), nil)

	s.Equal(http.StatusNotFound, w.Code)
}
