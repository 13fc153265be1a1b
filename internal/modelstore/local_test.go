package modelstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siprems/backend-go/internal/domain"
)

func sampleArtifact(sku string) (*domain.TrainedModel, *domain.ModelMetadata) {
	model := &domain.TrainedModel{
		SKU:             sku,
		SerializedModel: []byte(`{"values":[1,2,3]}`),
		TrainedAt:       time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
		SampleCount:     3,
	}
	meta := &domain.ModelMetadata{
		SKU:              sku,
		CorrectionFactor: 1.05,
		MAE:              2.4,
		MAPEPercent:      12.5,
		AccuracyScore:    87.5,
	}
	return model, meta
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))

	got, gotMeta, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)

	assert.Equal(t, model.SerializedModel, got.SerializedModel)
	assert.Equal(t, model.SampleCount, got.SampleCount)
	assert.True(t, model.TrainedAt.Equal(got.TrainedAt))
	require.NotNil(t, gotMeta)
	assert.Equal(t, 1.05, gotMeta.CorrectionFactor)
}

func TestLocalStoreNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStoreOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))

	model.SerializedModel = []byte(`{"values":[9,9]}`)
	meta.CorrectionFactor = 0.9
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))

	got, gotMeta, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"values":[9,9]}`), got.SerializedModel)
	assert.Equal(t, 0.9, gotMeta.CorrectionFactor)
}

func TestLocalStoreMissingMetadataDegrades(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))
	require.NoError(t, os.Remove(filepath.Join(dir, metaKey("SKU-1"))))

	got, gotMeta, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Nil(t, gotMeta)
}

func TestLocalStoreCorruptMetadataDegrades(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaKey("SKU-1")), []byte("{broken"), 0644))

	_, gotMeta, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Nil(t, gotMeta)
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	store := NewMemoryStore()

	model, meta := sampleArtifact("SKU-1")
	require.NoError(t, store.PutAtomic(context.Background(), "SKU-1", model, meta))

	got, _, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	got.SampleCount = 999

	again, _, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 3, again.SampleCount)
}

func TestModelKeys(t *testing.T) {
	assert.Equal(t, "model_SKU-1.json", modelKey("SKU-1"))
	assert.Equal(t, "meta_SKU-1.json", metaKey("SKU-1"))
}
