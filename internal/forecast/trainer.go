package forecast

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/modelstore"
	"github.com/siprems/backend-go/internal/repository"
)

const (
	ratioEpsilon = 1e-6

	// lockStripes bounds lock memory regardless of catalog size. A hash
	// collision only serializes two unrelated SKUs' training runs.
	lockStripes = 64
)

// Trainer fits and calibrates a model for a SKU and persists the artifact.
// Training for the same SKU is serialized through a striped per-SKU lock;
// reads stay lock-free and rely on the store's atomic write.
type Trainer struct {
	sales      repository.SalesHistoryRepository
	holidays   repository.HolidayRepository
	store      modelstore.Store
	forecaster Forecaster
	cfg        SeasonalityConfig

	locks [lockStripes]sync.Mutex
}

func NewTrainer(
	sales repository.SalesHistoryRepository,
	holidays repository.HolidayRepository,
	store modelstore.Store,
	forecaster Forecaster,
) *Trainer {
	return &Trainer{
		sales:      sales,
		holidays:   holidays,
		store:      store,
		forecaster: forecaster,
		cfg:        DefaultSeasonality(),
	}
}

// Train fits a model for the SKU. It reports skipped (with a nil error)
// when there is not enough history, and wraps numeric fit errors as
// transient so the orchestrator can retry them.
func (t *Trainer) Train(ctx context.Context, sku string) (domain.TrainResult, error) {
	lock := t.lockFor(sku)
	lock.Lock()
	defer lock.Unlock()

	history, err := t.sales.GetDailySales(ctx, sku)
	if err != nil {
		return domain.TrainResult{}, fmt.Errorf("failed to read sales history for %s: %w", sku, err)
	}

	series, err := Preprocess(history)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			log.Warn().Str("sku", sku).Int("points", len(history)).Msg("training skipped")
			return domain.TrainResult{
				SKU:    sku,
				Status: domain.TrainStatusSkipped,
				Reason: err.Error(),
			}, nil
		}
		return domain.TrainResult{}, err
	}

	holidays, err := t.holidays.GetPredictionHolidays(ctx)
	if err != nil {
		// Holidays improve the fit but are not required for it.
		log.Warn().Err(err).Msg("failed to load holidays, fitting without them")
		holidays = nil
	}

	model, err := t.forecaster.Fit(ctx, series, holidays, t.cfg)
	if err != nil {
		if ctx.Err() != nil {
			return domain.TrainResult{}, ctx.Err()
		}
		return domain.TrainResult{}, domain.Transient(fmt.Errorf("fit failed for %s: %w", sku, err))
	}

	meta, err := t.calibrate(sku, model, series)
	if err != nil {
		return domain.TrainResult{}, domain.Transient(err)
	}

	artifact, err := model.Bytes()
	if err != nil {
		return domain.TrainResult{}, fmt.Errorf("failed to serialize model for %s: %w", sku, err)
	}

	trained := &domain.TrainedModel{
		SKU:             sku,
		SerializedModel: artifact,
		TrainedAt:       time.Now().UTC(),
		SampleCount:     len(series),
	}
	if err := t.store.PutAtomic(ctx, sku, trained, meta); err != nil {
		return domain.TrainResult{}, fmt.Errorf("failed to persist model for %s: %w", sku, err)
	}

	log.Info().
		Str("sku", sku).
		Float64("accuracy", meta.AccuracyScore).
		Float64("correction_factor", meta.CorrectionFactor).
		Int("samples", len(series)).
		Msg("model trained")

	return domain.TrainResult{
		SKU:              sku,
		Status:           domain.TrainStatusSuccess,
		CorrectionFactor: meta.CorrectionFactor,
		AccuracyScore:    meta.AccuracyScore,
		MAE:              meta.MAE,
		MAPEPercent:      meta.MAPEPercent,
		SampleCount:      len(series),
	}, nil
}

// calibrate derives the bias-correction factor and accuracy metrics from
// in-sample predictions, comparing in the original (inverse-transformed)
// scale.
func (t *Trainer) calibrate(sku string, model Model, series []SeriesPoint) (*domain.ModelMetadata, error) {
	dates := make([]time.Time, len(series))
	promos := make([]float64, len(series))
	for i, p := range series {
		dates[i] = p.Date
		promos[i] = p.Promo
	}

	predictions, err := model.Predict(dates, promos)
	if err != nil {
		return nil, fmt.Errorf("in-sample predict failed for %s: %w", sku, err)
	}
	if len(predictions) != len(series) {
		return nil, fmt.Errorf("in-sample predict returned %d points for %d inputs", len(predictions), len(series))
	}

	ratios := make([]float64, len(series))
	var absErrSum, pctErrSum float64
	for i, p := range series {
		yTrue := math.Expm1(p.Value)
		yPred := math.Expm1(predictions[i].Yhat)

		ratios[i] = yTrue / (yPred + ratioEpsilon)
		absErrSum += math.Abs(yTrue - yPred)
		pctErrSum += math.Abs(yTrue-yPred) / math.Max(math.Abs(yTrue), ratioEpsilon)
	}

	n := float64(len(series))
	mae := absErrSum / n
	mape := pctErrSum / n

	factor := clamp(median(ratios), 0.85, 1.15)
	accuracy := math.Max(0, 100*(1-math.Min(mape, 1.0)))

	return &domain.ModelMetadata{
		SKU:              sku,
		CorrectionFactor: factor,
		MAE:              mae,
		MAPEPercent:      mape * 100,
		AccuracyScore:    accuracy,
	}, nil
}

func (t *Trainer) lockFor(sku string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sku))
	return &t.locks[h.Sum32()%lockStripes]
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
