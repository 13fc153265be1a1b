package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler periodically submits the batch retrain, the equivalent of the
// nightly beat schedule.
type Scheduler struct {
	orchestrator *Orchestrator
	batch        *BatchTrainer
	interval     time.Duration
}

func NewScheduler(orchestrator *Orchestrator, batch *BatchTrainer, interval time.Duration) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		batch:        batch,
		interval:     interval,
	}
}

// Start blocks until ctx ends, submitting a train-all task every interval.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		log.Warn().Msg("batch training schedule disabled")
		<-ctx.Done()
		return
	}

	log.Info().Dur("interval", s.interval).Msg("batch training schedule started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := s.orchestrator.Submit(ctx, "train_all", s.batch.TrainAllTask())
			if err != nil {
				log.Error().Err(err).Msg("failed to submit scheduled batch training")
				continue
			}
			log.Info().Str("task_id", id).Msg("scheduled batch training submitted")
		}
	}
}
