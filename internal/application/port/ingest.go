package port

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// Ingestor turns a document on disk into a normalized invoice.
// On failure it still returns a placeholder invoice carrying provenance.
type Ingestor interface {
	Ingest(ctx context.Context, path string) (*entity.Invoice, error)
}
