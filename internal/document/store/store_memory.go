package store

import (
	"context"
	"sort"
	"sync"

	"caregate/internal/document/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{documents: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(_ context.Context, document *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[document.ID]; exists {
		return sentinel.ErrConflict
	}
	s.documents[document.ID] = copyDocument(document)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	document, ok := s.documents[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDocument(document), nil
}

func (s *InMemoryStore) ListByEnrollment(_ context.Context, enrollmentID id.EnrollmentID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, document := range s.documents {
		if document.EnrollmentID == enrollmentID {
			out = append(out, copyDocument(document))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, document *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[document.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.documents[document.ID] = copyDocument(document)
	return nil
}

func copyDocument(d *models.Document) *models.Document {
	out := *d
	if d.Extraction != nil {
		extraction := *d.Extraction
		if d.Extraction.Fields != nil {
			extraction.Fields = make(map[string]string, len(d.Extraction.Fields))
			for k, v := range d.Extraction.Fields {
				extraction.Fields[k] = v
			}
		}
		out.Extraction = &extraction
	}
	return &out
}
