package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/modelstore"
)

type fakeSalesRepo struct {
	history map[string][]domain.SalesObservation
	err     error
}

func (r *fakeSalesRepo) GetDailySales(ctx context.Context, sku string) ([]domain.SalesObservation, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.history[sku], nil
}

type fakeHolidayRepo struct {
	holidays []domain.HolidayEntry
	err      error
}

func (r *fakeHolidayRepo) GetPredictionHolidays(ctx context.Context) ([]domain.HolidayEntry, error) {
	return r.holidays, r.err
}

// echoForecaster answers in-sample dates with the exact training value, so
// calibration sees a perfect fit. It records the series it was fitted on.
type echoForecaster struct {
	lastSeries []SeriesPoint
	fitCalls   int
	fitErr     error
}

type echoModel struct {
	ByDate map[string]float64 `json:"by_date"`
	Mean   float64            `json:"mean"`
}

func (f *echoForecaster) Fit(ctx context.Context, series []SeriesPoint, holidays []domain.HolidayEntry, cfg SeasonalityConfig) (Model, error) {
	if f.fitErr != nil {
		return nil, f.fitErr
	}
	f.fitCalls++
	f.lastSeries = series

	byDate := make(map[string]float64, len(series))
	var sum float64
	for _, p := range series {
		byDate[p.Date.Format(dateLayout)] = p.Value
		sum += p.Value
	}
	mean := 0.0
	if len(series) > 0 {
		mean = sum / float64(len(series))
	}
	return &echoModel{ByDate: byDate, Mean: mean}, nil
}

func (f *echoForecaster) Load(data []byte) (Model, error) {
	var m echoModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *echoModel) Predict(dates []time.Time, promo []float64) ([]Prediction, error) {
	out := make([]Prediction, len(dates))
	for i, d := range dates {
		yhat, ok := m.ByDate[d.Format(dateLayout)]
		if !ok {
			yhat = m.Mean
		}
		out[i] = Prediction{Date: d, Yhat: yhat, YhatLower: yhat - 0.1, YhatUpper: yhat + 0.1}
	}
	return out, nil
}

func (m *echoModel) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

func newTrainerFixture(history []domain.SalesObservation) (*Trainer, *echoForecaster, *modelstore.MemoryStore) {
	forecaster := &echoForecaster{}
	store := modelstore.NewMemoryStore()
	trainer := NewTrainer(
		&fakeSalesRepo{history: map[string][]domain.SalesObservation{"SKU-1": history}},
		&fakeHolidayRepo{},
		store,
		forecaster,
	)
	return trainer, forecaster, store
}

func TestTrainSuccess(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	trainer, _, store := newTrainerFixture(dailyObservations(start, 10, 12, 9, 14, 11, 13, 10, 12, 11, 10))

	result, err := trainer.Train(context.Background(), "SKU-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TrainStatusSuccess, result.Status)
	assert.Equal(t, 10, result.SampleCount)
	assert.GreaterOrEqual(t, result.CorrectionFactor, 0.85)
	assert.LessOrEqual(t, result.CorrectionFactor, 1.15)
	// A perfect in-sample fit has near-zero error.
	assert.InDelta(t, 100, result.AccuracyScore, 0.5)
	assert.InDelta(t, 0, result.MAE, 0.01)

	model, meta, err := store.Get(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 10, model.SampleCount)
	assert.False(t, model.TrainedAt.IsZero())
	require.NotNil(t, meta)
	assert.Equal(t, result.CorrectionFactor, meta.CorrectionFactor)
}

func TestTrainSkippedOnShortHistory(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	trainer, _, store := newTrainerFixture(dailyObservations(start, 10, 12, 9))

	result, err := trainer.Train(context.Background(), "SKU-1")
	require.NoError(t, err)

	assert.Equal(t, domain.TrainStatusSkipped, result.Status)
	assert.NotEmpty(t, result.Reason)

	_, _, err = store.Get(context.Background(), "SKU-1")
	assert.True(t, errors.Is(err, modelstore.ErrNotFound))
}

func TestTrainExcludesOutlierFromFit(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	quantities := make([]float64, 31)
	for i := range quantities {
		quantities[i] = 10
	}
	quantities[15] = 10000

	trainer, forecaster, _ := newTrainerFixture(dailyObservations(start, quantities...))

	result, err := trainer.Train(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TrainStatusSuccess, result.Status)

	require.Len(t, forecaster.lastSeries, 30)
	for _, p := range forecaster.lastSeries {
		assert.Less(t, p.Value, math.Log1p(100))
	}
}

func TestTrainFitFailureIsTransient(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	trainer, forecaster, _ := newTrainerFixture(dailyObservations(start, 10, 12, 9, 14, 11, 13))
	forecaster.fitErr = errors.New("matrix is singular")

	_, err := trainer.Train(context.Background(), "SKU-1")
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestTrainSurvivesHolidayReadFailure(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	forecaster := &echoForecaster{}
	store := modelstore.NewMemoryStore()
	trainer := NewTrainer(
		&fakeSalesRepo{history: map[string][]domain.SalesObservation{
			"SKU-1": dailyObservations(start, 10, 12, 9, 14, 11, 13),
		}},
		&fakeHolidayRepo{err: errors.New("connection refused")},
		store,
		forecaster,
	)

	result, err := trainer.Train(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TrainStatusSuccess, result.Status)
}

func TestLockForIsStable(t *testing.T) {
	trainer, _, _ := newTrainerFixture(nil)

	assert.Same(t, trainer.lockFor("SKU-1"), trainer.lockFor("SKU-1"))
	assert.Same(t, trainer.lockFor("SKU-2"), trainer.lockFor("SKU-2"))
}

func TestCorrectionFactorClamped(t *testing.T) {
	assert.Equal(t, 0.85, clamp(0.2, 0.85, 1.15))
	assert.Equal(t, 1.15, clamp(3.7, 0.85, 1.15))
	assert.Equal(t, 1.02, clamp(1.02, 0.85, 1.15))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.Equal(t, 0.0, median(nil))
}
