package store

import (
	"context"
	"sort"
	"sync"

	"caregate/internal/notification/models"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
)

// InMemoryStore is the map-backed Store used in tests and local runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	deliveries map[id.DeliveryID]*models.Delivery
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{deliveries: make(map[id.DeliveryID]*models.Delivery)}
}

func (s *InMemoryStore) Create(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[delivery.ID]; exists {
		return sentinel.ErrConflict
	}
	s.deliveries[delivery.ID] = copyDelivery(delivery)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, deliveryID id.DeliveryID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivery, ok := s.deliveries[deliveryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDelivery(delivery), nil
}

func (s *InMemoryStore) Update(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[delivery.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.deliveries[delivery.ID] = copyDelivery(delivery)
	return nil
}

func (s *InMemoryStore) ListFailed(_ context.Context) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Delivery
	for _, delivery := range s.deliveries {
		if delivery.Status == models.StatusFailed {
			out = append(out, copyDelivery(delivery))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyDelivery(delivery *models.Delivery) *models.Delivery {
	out := *delivery
	if delivery.Payload != nil {
		out.Payload = make(map[string]string, len(delivery.Payload))
		for k, v := range delivery.Payload {
			out.Payload[k] = v
		}
	}
	if delivery.DeliveredAt != nil {
		at := *delivery.DeliveredAt
		out.DeliveredAt = &at
	}
	return &out
}
