package store

import (
	"context"
	"sync"
	"time"

	"caregate/internal/interview/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
)

// Memory is the in-memory interview store for tests and dev.
type Memory struct {
	mu         sync.RWMutex
	interviews map[id.InterviewID]*models.Interview
}

func NewMemory() *Memory {
	return &Memory{interviews: make(map[id.InterviewID]*models.Interview)}
}

func (s *Memory) Save(_ context.Context, interview *models.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *interview
	s.interviews[interview.ID] = &cp
	return nil
}

func (s *Memory) FindByID(_ context.Context, interviewID id.InterviewID) (*models.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	interview, ok := s.interviews[interviewID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *interview
	return &cp, nil
}

func (s *Memory) UpdateStatus(_ context.Context, interviewID id.InterviewID, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	interview, ok := s.interviews[interviewID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if interview.Status.Terminal() {
		return sentinel.ErrTerminal
	}
	interview.Status = status
	interview.UpdatedAt = time.Now().UTC()
	return nil
}
