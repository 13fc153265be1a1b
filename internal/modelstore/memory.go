package modelstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/siprems/backend-go/internal/domain"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]*domain.TrainedModel
	metas  map[string]*domain.ModelMetadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]*domain.TrainedModel),
		metas:  make(map[string]*domain.ModelMetadata),
	}
}

func (s *MemoryStore) Get(ctx context.Context, sku string) (*domain.TrainedModel, *domain.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, ok := s.models[sku]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, sku)
	}

	modelCopy := *model
	var metaCopy *domain.ModelMetadata
	if meta, ok := s.metas[sku]; ok {
		m := *meta
		metaCopy = &m
	}
	return &modelCopy, metaCopy, nil
}

func (s *MemoryStore) PutAtomic(ctx context.Context, sku string, model *domain.TrainedModel, meta *domain.ModelMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	modelCopy := *model
	metaCopy := *meta
	s.models[sku] = &modelCopy
	s.metas[sku] = &metaCopy
	return nil
}

// DropMeta removes the metadata record only, simulating a corrupt or
// missing metadata file.
func (s *MemoryStore) DropMeta(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metas, sku)
}
