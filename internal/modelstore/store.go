// Package modelstore persists one model artifact and one metadata record
// per SKU. There is no versioning: a successful retrain replaces the
// previous artifact wholesale.
package modelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/siprems/backend-go/internal/domain"
)

// ErrNotFound means no artifact exists for the SKU.
var ErrNotFound = errors.New("model artifact not found")

// Store is the artifact persistence boundary. Implementations must
// guarantee that Get never observes a partially written artifact; the
// filesystem backend does this with write-to-temp plus rename.
type Store interface {
	// Get returns the artifact and its metadata. A missing artifact is
	// ErrNotFound; missing or unreadable metadata is reported as a nil
	// metadata with a nil error so callers can degrade gracefully.
	Get(ctx context.Context, sku string) (*domain.TrainedModel, *domain.ModelMetadata, error)

	// PutAtomic replaces the SKU's artifact and metadata together.
	PutAtomic(ctx context.Context, sku string, model *domain.TrainedModel, meta *domain.ModelMetadata) error
}

func modelKey(sku string) string {
	return fmt.Sprintf("model_%s.json", sku)
}

func metaKey(sku string) string {
	return fmt.Sprintf("meta_%s.json", sku)
}
