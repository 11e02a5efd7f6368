// Package store persists notification delivery records.
package store

import (
	"context"

	"caregate/internal/notification/models"
	id "caregate/pkg/domain"
)

// Store persists Delivery records. Implementations return
// sentinel.ErrNotFound for missing deliveries.
type Store interface {
	Create(ctx context.Context, delivery *models.Delivery) error
	FindByID(ctx context.Context, deliveryID id.DeliveryID) (*models.Delivery, error)
	Update(ctx context.Context, delivery *models.Delivery) error
	// ListFailed returns FAILED deliveries ordered oldest first, for manual
	// redelivery.
	ListFailed(ctx context.Context) ([]*models.Delivery, error)
}
