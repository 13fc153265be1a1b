package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/modelstore"
	"github.com/siprems/backend-go/internal/repository"
)

// Fallback calibration when metadata is missing or unreadable.
const (
	defaultCorrectionFactor = 1.0
	defaultAccuracyScore    = 0.0
)

// Result is a served forecast: the charted points, the model accuracy, and
// the effective horizon after clamping. Recommendation math must use
// HorizonDays, not the requested value, or historical chart points leak
// into the demand sum.
type Result struct {
	Points      []domain.ForecastPoint
	Accuracy    float64
	HorizonDays int
}

// ServerOptions bound the horizon and control staleness-triggered retrains.
type ServerOptions struct {
	MaxHorizonDays int
	// StaleAfterDays retrains inline once this many observation days exist
	// after the artifact's TrainedAt. Zero disables the check.
	StaleAfterDays int
}

// Server loads (or trains) a model and produces corrected forecast points.
type Server struct {
	sales      repository.SalesHistoryRepository
	store      modelstore.Store
	trainer    *Trainer
	forecaster Forecaster
	opts       ServerOptions
}

func NewServer(
	sales repository.SalesHistoryRepository,
	store modelstore.Store,
	trainer *Trainer,
	forecaster Forecaster,
	opts ServerOptions,
) *Server {
	if opts.MaxHorizonDays <= 0 {
		opts.MaxHorizonDays = 365
	}
	return &Server{
		sales:      sales,
		store:      store,
		trainer:    trainer,
		forecaster: forecaster,
		opts:       opts,
	}
}

// Predict serves a forecast for the SKU over horizonDays. If no artifact
// exists it trains synchronously first; an unreadable metadata record
// degrades to the default calibration instead of failing.
func (s *Server) Predict(ctx context.Context, sku string, horizonDays int) (*Result, error) {
	if horizonDays < 1 {
		horizonDays = 1
	}
	if horizonDays > s.opts.MaxHorizonDays {
		horizonDays = s.opts.MaxHorizonDays
	}

	history, err := s.sales.GetDailySales(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales history for %s: %w", sku, err)
	}

	artifact, meta, err := s.loadOrTrain(ctx, sku, history)
	if err != nil {
		return nil, err
	}

	factor := defaultCorrectionFactor
	accuracy := defaultAccuracyScore
	if meta != nil {
		factor = meta.CorrectionFactor
		accuracy = meta.AccuracyScore
	} else {
		log.Warn().Str("sku", sku).Msg("model metadata unavailable, using default calibration")
	}

	model, err := s.forecaster.Load(artifact.SerializedModel)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact for %s is unreadable: %v", domain.ErrModelUnavailable, sku, err)
	}

	dates, promos := s.buildRange(history, horizonDays)

	predictions, err := model.Predict(dates, promos)
	if err != nil {
		return nil, fmt.Errorf("predict failed for %s: %w", sku, err)
	}

	actuals := make(map[string]float64, len(history))
	for _, obs := range history {
		actuals[obs.Date.Format(dateLayout)] = obs.Quantity
	}

	points := make([]domain.ForecastPoint, 0, len(predictions))
	for _, p := range predictions {
		dateStr := p.Date.Format(dateLayout)

		point := domain.ForecastPoint{
			Date:      p.Date,
			DateStr:   dateStr,
			Predicted: clampNonNegative(math.Expm1(p.Yhat) * factor),
			Lower:     clampNonNegative(math.Expm1(p.YhatLower) * factor),
			Upper:     clampNonNegative(math.Expm1(p.YhatUpper) * factor),
		}
		if actual, ok := actuals[dateStr]; ok {
			v := actual
			point.Actual = &v
		}
		points = append(points, point)
	}

	return &Result{Points: points, Accuracy: accuracy, HorizonDays: horizonDays}, nil
}

// loadOrTrain fetches the artifact, training on demand when none exists and
// retraining when too much history has arrived since the last fit.
func (s *Server) loadOrTrain(ctx context.Context, sku string, history []domain.SalesObservation) (*domain.TrainedModel, *domain.ModelMetadata, error) {
	artifact, meta, err := s.store.Get(ctx, sku)
	if errors.Is(err, modelstore.ErrNotFound) {
		if err := s.trainNow(ctx, sku); err != nil {
			return nil, nil, err
		}
		artifact, meta, err = s.store.Get(ctx, sku)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", domain.ErrModelUnavailable, sku)
		}
		return artifact, meta, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if s.isStale(artifact, history) {
		log.Info().Str("sku", sku).Msg("model stale, retraining before predict")
		if err := s.trainNow(ctx, sku); err != nil {
			// Keep serving the existing artifact if the refresh fails.
			log.Warn().Err(err).Str("sku", sku).Msg("stale retrain failed, serving previous model")
			return artifact, meta, nil
		}
		if fresh, freshMeta, err := s.store.Get(ctx, sku); err == nil {
			return fresh, freshMeta, nil
		}
	}

	return artifact, meta, nil
}

func (s *Server) trainNow(ctx context.Context, sku string) error {
	result, err := s.trainer.Train(ctx, sku)
	if err != nil {
		return fmt.Errorf("%w: on-demand training for %s failed: %v", domain.ErrModelUnavailable, sku, err)
	}
	if result.Status != domain.TrainStatusSuccess {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientData, result.Reason)
	}
	return nil
}

// isStale counts observation days recorded after the artifact was trained.
func (s *Server) isStale(artifact *domain.TrainedModel, history []domain.SalesObservation) bool {
	if s.opts.StaleAfterDays <= 0 {
		return false
	}
	newer := 0
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].Date.After(artifact.TrainedAt) {
			break
		}
		newer++
	}
	return newer >= s.opts.StaleAfterDays
}

// buildRange covers [earliest history date, last history date + horizon].
// The promo regressor uses the recorded flag for historical dates; future
// dates default to 0 on the assumption that no future promotion is known.
func (s *Server) buildRange(history []domain.SalesObservation, horizonDays int) ([]time.Time, []float64) {
	var start, last time.Time
	if len(history) > 0 {
		start = history[0].Date
		last = history[len(history)-1].Date
	} else {
		// No history to anchor on: chart the last 30 days plus the horizon.
		last = time.Now().UTC().Truncate(24 * time.Hour)
		start = last.AddDate(0, 0, -30)
	}

	promoByDate := make(map[string]float64, len(history))
	for _, obs := range history {
		promoByDate[obs.Date.Format(dateLayout)] = float64(obs.PromoFlag)
	}

	end := last.AddDate(0, 0, horizonDays)
	days := int(end.Sub(start).Hours()/24) + 1

	dates := make([]time.Time, 0, days)
	promos := make([]float64, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
		promos = append(promos, promoByDate[d.Format(dateLayout)])
	}

	return dates, promos
}

func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
