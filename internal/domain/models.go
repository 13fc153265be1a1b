package domain

import "time"

// SalesObservation is one day of aggregated sales for a SKU. Days without
// any transaction do not produce an observation.
type SalesObservation struct {
	Date      time.Time `json:"date" db:"ds"`
	Quantity  float64   `json:"quantity" db:"y"`
	PromoFlag int       `json:"promo_flag" db:"promo"`
}

// HolidayEntry is a calendar event included in prediction. WindowBefore and
// WindowAfter extend the effect to the surrounding days.
type HolidayEntry struct {
	Name         string    `json:"name" db:"holiday"`
	Date         time.Time `json:"date" db:"ds"`
	WindowBefore int       `json:"window_before"`
	WindowAfter  int       `json:"window_after"`
}

// Product is the slice of product data the forecasting side needs.
type Product struct {
	SKU          string `json:"sku" db:"sku"`
	Name         string `json:"name" db:"name"`
	CurrentStock int    `json:"current_stock" db:"stock"`
}

// TrainedModel is the persisted model artifact for a SKU. It is fully
// overwritten on retrain; there is no version history.
type TrainedModel struct {
	SKU             string    `json:"sku"`
	SerializedModel []byte    `json:"serialized_model"`
	TrainedAt       time.Time `json:"trained_at"`
	SampleCount     int       `json:"sample_count"`
}

// ModelMetadata is written atomically alongside TrainedModel.
type ModelMetadata struct {
	SKU              string  `json:"sku"`
	CorrectionFactor float64 `json:"correction_factor"`
	MAE              float64 `json:"mae"`
	MAPEPercent      float64 `json:"mape_percent"`
	AccuracyScore    float64 `json:"accuracy_score"`
}

// ForecastPoint is one charted day. Actual is nil for dates with no
// recorded sales.
type ForecastPoint struct {
	Date      time.Time `json:"-"`
	DateStr   string    `json:"date"`
	Actual    *float64  `json:"actual"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Trend direction of a forecast over the requested horizon.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// Urgency tier of a restock recommendation.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Recommendation is the restock suggestion derived from a forecast.
type Recommendation struct {
	Product      string  `json:"product"`
	SKU          string  `json:"sku"`
	CurrentStock int     `json:"current"`
	OptimalStock int     `json:"optimal"`
	Trend        Trend   `json:"trend"`
	Suggestion   string  `json:"suggestion"`
	Urgency      Urgency `json:"urgency"`
}

// TaskStatus follows the Celery-style task state machine.
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskStarted TaskStatus = "STARTED"
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailure TaskStatus = "FAILURE"
	TaskRetry   TaskStatus = "RETRY"
	TaskRevoked TaskStatus = "REVOKED"
)

// Terminal reports whether a task in this status will not transition again.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure || s == TaskRevoked
}

// AsyncTask is the polled view of a submitted background task.
type AsyncTask struct {
	ID        string      `json:"task_id"`
	Kind      string      `json:"kind"`
	Status    TaskStatus  `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Attempts  int         `json:"attempts"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TrainResult is what a single training run reports.
type TrainResult struct {
	SKU              string  `json:"product_sku"`
	Status           string  `json:"status"` // "success" | "skipped" | "error"
	Reason           string  `json:"reason,omitempty"`
	CorrectionFactor float64 `json:"correction_factor,omitempty"`
	AccuracyScore    float64 `json:"accuracy,omitempty"`
	MAE              float64 `json:"mae,omitempty"`
	MAPEPercent      float64 `json:"mape_percent,omitempty"`
	SampleCount      int     `json:"samples,omitempty"`
}

const (
	TrainStatusSuccess = "success"
	TrainStatusSkipped = "skipped"
	TrainStatusError   = "error"
)

// PredictionResponse is the payload returned by the predict operation.
type PredictionResponse struct {
	ChartData       []ForecastPoint  `json:"chartData"`
	Recommendations []Recommendation `json:"recommendations"`
	Accuracy        float64          `json:"accuracy"`
}
