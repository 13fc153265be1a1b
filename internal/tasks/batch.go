package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/forecast"
	"github.com/siprems/backend-go/internal/repository"
)

// BatchTrainer retrains every known SKU. One SKU's failure is recorded and
// the batch continues; the result map covers every SKU attempted.
type BatchTrainer struct {
	products    repository.ProductRepository
	trainer     *forecast.Trainer
	concurrency int
}

func NewBatchTrainer(products repository.ProductRepository, trainer *forecast.Trainer, concurrency int) *BatchTrainer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchTrainer{
		products:    products,
		trainer:     trainer,
		concurrency: concurrency,
	}
}

// TrainAll runs the batch. Returns an error only when the SKU list itself
// cannot be read; individual training failures live in the result map.
func (b *BatchTrainer) TrainAll(ctx context.Context) (map[string]domain.TrainResult, error) {
	skus, err := b.products.ListSKUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products for batch training: %w", err)
	}

	log.Info().Int("products", len(skus)).Msg("starting batch training")

	results := make(map[string]domain.TrainResult, len(skus))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, sku := range skus {
		sku := sku
		g.Go(func() error {
			result, err := b.trainer.Train(gctx, sku)
			if err != nil {
				result = domain.TrainResult{
					SKU:    sku,
					Status: domain.TrainStatusError,
					Reason: err.Error(),
				}
			}

			mu.Lock()
			results[sku] = result
			mu.Unlock()

			// Per-SKU failures never abort the batch.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	succeeded := 0
	for _, r := range results {
		if r.Status == domain.TrainStatusSuccess {
			succeeded++
		}
	}
	log.Info().Int("total", len(results)).Int("succeeded", succeeded).Msg("batch training completed")

	return results, nil
}

// TrainAllTask adapts the batch for orchestrator submission.
func (b *BatchTrainer) TrainAllTask() TaskFunc {
	return func(ctx context.Context) (interface{}, error) {
		return b.TrainAll(ctx)
	}
}
