package modelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/domain"
)

// LocalStore keeps artifacts on the local filesystem. Writes go to a temp
// file in the same directory followed by a rename, so concurrent readers
// see either the old or the new artifact, never a torn one.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Get(ctx context.Context, sku string) (*domain.TrainedModel, *domain.ModelMetadata, error) {
	modelPath := filepath.Join(s.dir, modelKey(sku))

	data, err := os.ReadFile(modelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, sku)
		}
		return nil, nil, fmt.Errorf("failed to read model for %s: %w", sku, err)
	}

	var model domain.TrainedModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, nil, fmt.Errorf("failed to decode model for %s: %w", sku, err)
	}

	return &model, s.readMeta(sku), nil
}

// readMeta degrades to nil on any problem; the predictor falls back to
// default calibration values.
func (s *LocalStore) readMeta(sku string) *domain.ModelMetadata {
	data, err := os.ReadFile(filepath.Join(s.dir, metaKey(sku)))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("sku", sku).Msg("could not read model metadata")
		}
		return nil
	}

	var meta domain.ModelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		log.Warn().Err(err).Str("sku", sku).Msg("could not decode model metadata")
		return nil
	}
	return &meta
}

func (s *LocalStore) PutAtomic(ctx context.Context, sku string, model *domain.TrainedModel, meta *domain.ModelMetadata) error {
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", sku, err)
	}
	modelData, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode model for %s: %w", sku, err)
	}

	// Metadata first: a reader pairing the new model with the new metadata
	// must never pair the new model with the old correction factor for
	// longer than one rename.
	if err := s.writeAtomic(metaKey(sku), metaData); err != nil {
		return err
	}
	return s.writeAtomic(modelKey(sku), modelData)
}

func (s *LocalStore) writeAtomic(name string, data []byte) error {
	final := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
