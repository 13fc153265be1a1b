// Package forecast contains the demand-forecasting pipeline: preprocessing,
// model training and calibration, forecast serving, and restock
// recommendations. The curve fitting itself is delegated to a Forecaster
// collaborator; this package prepares its input and calibrates its output.
package forecast

import (
	"context"
	"time"

	"github.com/siprems/backend-go/internal/domain"
)

// SeriesPoint is one training observation in log space, with its promo
// regressor value.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Promo float64   `json:"promo"`
}

// Prediction is raw collaborator output for a single date, still in log
// space and uncorrected.
type Prediction struct {
	Date      time.Time
	Yhat      float64
	YhatLower float64
	YhatUpper float64
}

// SeasonalityConfig describes the trend/seasonality structure the
// collaborator should fit. Fitting happens in log space, so additive
// components there act multiplicatively on the original scale.
type SeasonalityConfig struct {
	Weekly         bool    `json:"weekly"`
	Yearly         bool    `json:"yearly"`
	MonthlyPeriod  float64 `json:"monthly_period"`
	Multiplicative bool    `json:"multiplicative"`
	IntervalWidth  float64 `json:"interval_width"`
}

// DefaultSeasonality mirrors the configuration the models have always been
// trained with: weekly + yearly + ~monthly multiplicative seasonality and a
// 95% prediction interval.
func DefaultSeasonality() SeasonalityConfig {
	return SeasonalityConfig{
		Weekly:         true,
		Yearly:         true,
		MonthlyPeriod:  30.5,
		Multiplicative: true,
		IntervalWidth:  0.95,
	}
}

// Model is a fitted forecasting model.
type Model interface {
	// Predict returns log-space estimates for the given dates. promo must
	// align index-for-index with dates; in-sample dates are answered from
	// the fit, later dates are extrapolated.
	Predict(dates []time.Time, promo []float64) ([]Prediction, error)

	// Bytes serializes the model for the model store.
	Bytes() ([]byte, error)
}

// Forecaster is the external curve-fitting collaborator. Fit is CPU-bound
// and honors ctx cancellation only between internal stages.
type Forecaster interface {
	Fit(ctx context.Context, series []SeriesPoint, holidays []domain.HolidayEntry, cfg SeasonalityConfig) (Model, error)
	Load(data []byte) (Model, error)
}
