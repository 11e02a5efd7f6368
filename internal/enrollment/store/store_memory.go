package store

import (
	"context"
	"sync"
	"time"

	"caregate/internal/enrollment/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
)

// InMemoryStore keeps aggregates in a map. CAS is enforced under the store
// lock, which gives the same linearizable status-swap contract the postgres
// store gets from a conditional UPDATE.
type InMemoryStore struct {
	mu          sync.RWMutex
	enrollments map[id.EnrollmentID]*models.Enrollment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{enrollments: make(map[id.EnrollmentID]*models.Enrollment)}
}

func (s *InMemoryStore) Create(_ context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.enrollments[enrollment.ID]; exists {
		return sentinel.ErrConflict
	}
	s.enrollments[enrollment.ID] = copyEnrollment(enrollment)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEnrollment(enrollment), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Enrollment
	for _, enrollment := range s.enrollments {
		if enrollment.OwnerID == ownerID {
			out = append(out, copyEnrollment(enrollment))
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatusCAS(_ context.Context, enrollmentID id.EnrollmentID, expected, next models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if enrollment.Status != expected {
		return sentinel.ErrConflict
	}
	enrollment.Status = next
	enrollment.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) AttachDocument(_ context.Context, enrollmentID id.EnrollmentID, documentID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	enrollment.DocumentIDs = append(enrollment.DocumentIDs, documentID)
	return nil
}

func (s *InMemoryStore) SetInterview(_ context.Context, enrollmentID id.EnrollmentID, interviewID id.InterviewID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	enrollment.InterviewID = &interviewID
	return nil
}

func (s *InMemoryStore) SaveDeclaration(_ context.Context, enrollmentID id.EnrollmentID, declaration models.HealthDeclaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	decl := declaration
	decl.Answers = copyStringMap(declaration.Answers)
	enrollment.Declaration = &decl
	return nil
}

func (s *InMemoryStore) SetCancelReason(_ context.Context, enrollmentID id.EnrollmentID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	enrollment.CancelReason = reason
	return nil
}

func (s *InMemoryStore) SetCompletedAt(_ context.Context, enrollmentID id.EnrollmentID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enrollment, ok := s.enrollments[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	enrollment.CompletedAt = &at
	return nil
}

func copyEnrollment(e *models.Enrollment) *models.Enrollment {
	out := *e
	out.Metadata = copyStringMap(e.Metadata)
	out.DocumentIDs = append([]id.DocumentID(nil), e.DocumentIDs...)
	if e.InterviewID != nil {
		interviewID := *e.InterviewID
		out.InterviewID = &interviewID
	}
	if e.Declaration != nil {
		decl := *e.Declaration
		decl.Answers = copyStringMap(e.Declaration.Answers)
		out.Declaration = &decl
	}
	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		out.CompletedAt = &completedAt
	}
	return &out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
