package modelstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/config"
	"github.com/siprems/backend-go/internal/domain"
)

// ObjectStore keeps artifacts in an S3-compatible bucket. Object PUTs are
// atomic on the object level, which gives the same no-torn-read guarantee
// as the local rename.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(cfg config.ModelStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("model store endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("model store credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("model store bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectStore) Get(ctx context.Context, sku string) (*domain.TrainedModel, *domain.ModelMetadata, error) {
	data, err := s.getObject(ctx, modelKey(sku))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, sku)
		}
		return nil, nil, fmt.Errorf("failed to read model for %s: %w", sku, err)
	}

	var model domain.TrainedModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, nil, fmt.Errorf("failed to decode model for %s: %w", sku, err)
	}

	var meta *domain.ModelMetadata
	if metaData, err := s.getObject(ctx, metaKey(sku)); err == nil {
		meta = &domain.ModelMetadata{}
		if err := json.Unmarshal(metaData, meta); err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("could not decode model metadata")
			meta = nil
		}
	} else if !isNoSuchKey(err) {
		log.Warn().Err(err).Str("sku", sku).Msg("could not read model metadata")
	}

	return &model, meta, nil
}

func (s *ObjectStore) PutAtomic(ctx context.Context, sku string, model *domain.TrainedModel, meta *domain.ModelMetadata) error {
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", sku, err)
	}
	modelData, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode model for %s: %w", sku, err)
	}

	if err := s.putObject(ctx, metaKey(sku), metaData); err != nil {
		return err
	}
	return s.putObject(ctx, modelKey(sku), modelData)
}

func (s *ObjectStore) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (s *ObjectStore) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
