// Package extraction adapts the external OCR/extraction service behind a
// narrow client interface. The service is treated as unreliable: calls carry
// a hard timeout, failures have no side effects, and repeated extraction of
// the same immutable handle is safe (though probabilistic OCR may return a
// slightly different confidence each time).
package extraction

import (
	"context"

	"caregate/internal/blobstore"
	"caregate/internal/document/models"
)

//go:generate mockgen -source=client.go -destination=mock/client_mock.go -package=mock

// Client extracts structured field data from a stored document.
type Client interface {
	Extract(ctx context.Context, handle blobstore.Handle, docType models.Type) (*models.ExtractionResult, error)
}
