package service

import (
	"context"
	"fmt"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/forecast"
	"github.com/siprems/backend-go/internal/tasks"
)

// TaskService submits training and prediction work to the orchestrator and
// exposes status polling and cancellation.
type TaskService struct {
	orchestrator *tasks.Orchestrator
	trainer      *forecast.Trainer
	predictions  *PredictionService
	batch        *tasks.BatchTrainer
}

func NewTaskService(
	orchestrator *tasks.Orchestrator,
	trainer *forecast.Trainer,
	predictions *PredictionService,
	batch *tasks.BatchTrainer,
) *TaskService {
	return &TaskService{
		orchestrator: orchestrator,
		trainer:      trainer,
		predictions:  predictions,
		batch:        batch,
	}
}

// SubmitTraining queues model training for one SKU.
func (s *TaskService) SubmitTraining(ctx context.Context, sku string) (string, error) {
	if sku == "" {
		return "", fmt.Errorf("product SKU is required")
	}
	return s.orchestrator.Submit(ctx, "train_product", func(ctx context.Context) (interface{}, error) {
		return s.trainer.Train(ctx, sku)
	})
}

// SubmitTrainingAll queues a batch retrain over every known SKU.
func (s *TaskService) SubmitTrainingAll(ctx context.Context) (string, error) {
	return s.orchestrator.Submit(ctx, "train_all", s.batch.TrainAllTask())
}

// SubmitPrediction queues an out-of-band prediction.
func (s *TaskService) SubmitPrediction(ctx context.Context, sku string, days int) (string, error) {
	if sku == "" {
		return "", fmt.Errorf("product SKU is required")
	}
	return s.orchestrator.Submit(ctx, "predict_stock", func(ctx context.Context) (interface{}, error) {
		return s.predictions.PredictStock(ctx, sku, days)
	})
}

// GetStatus returns the current task state.
func (s *TaskService) GetStatus(ctx context.Context, id string) (*domain.AsyncTask, error) {
	return s.orchestrator.Status(ctx, id)
}

// Cancel revokes a task, best effort.
func (s *TaskService) Cancel(ctx context.Context, id string) error {
	return s.orchestrator.Cancel(ctx, id)
}
