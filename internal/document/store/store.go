// Package store persists documents. Only the pipeline mutates documents;
// everything else reads.
package store

import (
	"context"

	"caregate/internal/document/models"
	id "caregate/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, document *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	ListByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Document, error)
	// Update persists the document's mutable fields (status, storage handle,
	// extraction, attempt count, last error). Returns sentinel.ErrNotFound
	// when the document does not exist.
	Update(ctx context.Context, document *models.Document) error
}
