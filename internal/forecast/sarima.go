package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sartorproj/goarima/arima"
	"github.com/sartorproj/goarima/sarima"
	"github.com/sartorproj/goarima/timeseries"

	"github.com/siprems/backend-go/internal/domain"
)

const (
	weeklyPeriod = 7
	dateLayout   = "2006-01-02"

	// Minimum calendar lengths for each engine tier. The seasonal model
	// needs a full warm-up of weekly lags; below that we degrade to plain
	// ARIMA and finally to a level model so short histories still fit.
	minSeasonalLen = 36
	minARIMALen    = 12
	minMeanLen     = 10
)

// SarimaForecaster fits demand curves with the goarima SARIMA/ARIMA
// engines. Promo and holiday effects are handled as log-space uplifts
// estimated from the training data and removed before the curve fit, then
// added back on prediction.
type SarimaForecaster struct{}

func NewSarimaForecaster() *SarimaForecaster {
	return &SarimaForecaster{}
}

// modelState is everything needed to reconstruct a fitted model. The curve
// fit is deterministic for a given series, so the artifact stores the
// calendar-completed training series rather than engine internals.
type modelState struct {
	Start         string            `json:"start"`
	Values        []float64         `json:"values"`
	Promos        []float64         `json:"promos"`
	PromoUplift   float64           `json:"promo_uplift"`
	HolidayUplift float64           `json:"holiday_uplift"`
	HolidayDates  []string          `json:"holiday_dates"`
	Config        SeasonalityConfig `json:"config"`
}

type sarimaModel struct {
	state    modelState
	start    time.Time
	holidays map[string]bool
	engine   curveEngine
	fitted   []float64
	residStd float64
	z        float64
}

func (f *SarimaForecaster) Fit(ctx context.Context, series []SeriesPoint, holidays []domain.HolidayEntry, cfg SeasonalityConfig) (Model, error) {
	if len(series) == 0 {
		return nil, errors.New("empty training series")
	}

	points := make([]SeriesPoint, len(series))
	copy(points, series)
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	holidaySet := expandHolidays(holidays)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := points[0].Date
	values, promos := completeCalendar(points)

	promoUplift, holidayUplift := estimateUplifts(points, holidaySet)

	state := modelState{
		Start:         start.Format(dateLayout),
		Values:        values,
		Promos:        promos,
		PromoUplift:   promoUplift,
		HolidayUplift: holidayUplift,
		HolidayDates:  sortedKeys(holidaySet),
		Config:        cfg,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return fitFromState(state)
}

func (f *SarimaForecaster) Load(data []byte) (Model, error) {
	var state modelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if len(state.Values) == 0 {
		return nil, errors.New("model artifact has no training series")
	}
	return fitFromState(state)
}

func fitFromState(state modelState) (*sarimaModel, error) {
	start, err := time.Parse(dateLayout, state.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid model start date: %w", err)
	}

	holidaySet := make(map[string]bool, len(state.HolidayDates))
	for _, d := range state.HolidayDates {
		holidaySet[d] = true
	}

	// Remove the regressor effects so the curve engine sees the baseline.
	adjusted := make([]float64, len(state.Values))
	for i, v := range state.Values {
		day := start.AddDate(0, 0, i)
		adj := v - state.Promos[i]*state.PromoUplift
		if holidaySet[day.Format(dateLayout)] {
			adj -= state.HolidayUplift
		}
		adjusted[i] = adj
	}

	engine := selectEngine(len(adjusted), state.Config)
	if err := engine.fit(adjusted); err != nil {
		return nil, fmt.Errorf("curve fit failed: %w", err)
	}

	model := &sarimaModel{
		state:    state,
		start:    start,
		holidays: holidaySet,
		engine:   engine,
		fitted:   engine.fittedValues(),
		z:        zScore(state.Config.IntervalWidth),
	}
	model.residStd = stddev(engine.residuals())

	return model, nil
}

// Predict answers in-sample dates from the fitted values and extrapolates
// beyond the training range, then layers the promo/holiday uplifts back on.
func (m *sarimaModel) Predict(dates []time.Time, promo []float64) ([]Prediction, error) {
	if len(dates) != len(promo) {
		return nil, fmt.Errorf("regressor length %d does not match %d dates", len(promo), len(dates))
	}
	if len(dates) == 0 {
		return nil, nil
	}

	n := len(m.state.Values)
	maxSteps := 0
	for _, d := range dates {
		if steps := m.dayIndex(d) - n + 1; steps > maxSteps {
			maxSteps = steps
		}
	}

	var fPoint, fLower, fUpper []float64
	if maxSteps > 0 {
		var err error
		fPoint, fLower, fUpper, err = m.engine.forecast(maxSteps, m.state.Config.IntervalWidth)
		if err != nil {
			return nil, fmt.Errorf("forecast failed: %w", err)
		}
	}

	out := make([]Prediction, 0, len(dates))
	for i, d := range dates {
		idx := m.dayIndex(d)

		var yhat, lower, upper float64
		switch {
		case idx < n:
			yhat = m.fittedAt(idx)
			lower = yhat - m.z*m.residStd
			upper = yhat + m.z*m.residStd
		default:
			step := idx - n
			if step >= len(fPoint) {
				step = len(fPoint) - 1
			}
			yhat = fPoint[step]
			lower = fLower[step]
			upper = fUpper[step]
		}

		uplift := promo[i] * m.state.PromoUplift
		if m.holidays[d.Format(dateLayout)] {
			uplift += m.state.HolidayUplift
		}

		out = append(out, Prediction{
			Date:      d,
			Yhat:      yhat + uplift,
			YhatLower: lower + uplift,
			YhatUpper: upper + uplift,
		})
	}

	return out, nil
}

func (m *sarimaModel) Bytes() ([]byte, error) {
	return json.Marshal(m.state)
}

func (m *sarimaModel) dayIndex(d time.Time) int {
	idx := int(d.Sub(m.start).Hours() / 24)
	if idx < 0 {
		idx = 0
	}
	return idx
}

// fittedAt tolerates engines whose fitted values skip a warm-up prefix.
func (m *sarimaModel) fittedAt(idx int) float64 {
	offset := len(m.state.Values) - len(m.fitted)
	if offset < 0 {
		offset = 0
	}
	j := idx - offset
	if j < 0 {
		j = 0
	}
	if j >= len(m.fitted) {
		j = len(m.fitted) - 1
	}
	if j < 0 {
		return 0
	}
	return m.fitted[j]
}

// completeCalendar fills the daily grid between the first and last
// observation. Gap days (no transactions, or dropped as outliers) are
// linearly interpolated in log space with promo = 0.
func completeCalendar(points []SeriesPoint) (values, promos []float64) {
	start := points[0].Date
	end := points[len(points)-1].Date
	days := int(end.Sub(start).Hours()/24) + 1

	values = make([]float64, days)
	promos = make([]float64, days)
	known := make([]bool, days)

	for _, p := range points {
		idx := int(p.Date.Sub(start).Hours() / 24)
		if idx >= 0 && idx < days {
			values[idx] = p.Value
			promos[idx] = p.Promo
			known[idx] = true
		}
	}

	prev := 0
	for i := 1; i < days; i++ {
		if !known[i] {
			continue
		}
		if i-prev > 1 {
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				frac := float64(j-prev) / span
				values[j] = values[prev] + frac*(values[i]-values[prev])
			}
		}
		prev = i
	}

	return values, promos
}

// estimateUplifts measures the average log-space lift of promo days and
// holiday-window days over the remaining observations.
func estimateUplifts(points []SeriesPoint, holidaySet map[string]bool) (promoUplift, holidayUplift float64) {
	var promoSum, promoN, baseSum, baseN float64
	var holSum, holN float64

	for _, p := range points {
		isHoliday := holidaySet[p.Date.Format(dateLayout)]
		switch {
		case p.Promo > 0:
			promoSum += p.Value
			promoN++
		case isHoliday:
			holSum += p.Value
			holN++
		default:
			baseSum += p.Value
			baseN++
		}
	}

	if baseN == 0 {
		return 0, 0
	}
	base := baseSum / baseN

	if promoN > 0 {
		promoUplift = promoSum/promoN - base
	}
	if holN > 0 {
		holidayUplift = holSum/holN - base
	}
	return promoUplift, holidayUplift
}

// expandHolidays turns each entry into the set of affected calendar days,
// honoring the asymmetric pre/post window.
func expandHolidays(holidays []domain.HolidayEntry) map[string]bool {
	set := make(map[string]bool)
	for _, h := range holidays {
		for offset := -h.WindowBefore; offset <= h.WindowAfter; offset++ {
			set[h.Date.AddDate(0, 0, offset).Format(dateLayout)] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// curveEngine abstracts the goarima model tiers.
type curveEngine interface {
	fit(values []float64) error
	fittedValues() []float64
	residuals() []float64
	forecast(steps int, confidence float64) (point, lower, upper []float64, err error)
}

func selectEngine(n int, cfg SeasonalityConfig) curveEngine {
	switch {
	case cfg.Weekly && n >= minSeasonalLen:
		return &seasonalEngine{}
	case n >= minARIMALen:
		return &arimaEngine{p: 1, d: 0, q: 1}
	case n >= minMeanLen:
		return &arimaEngine{p: 0, d: 0, q: 0}
	default:
		return &levelEngine{}
	}
}

type seasonalEngine struct {
	model *sarima.Model
}

func (e *seasonalEngine) fit(values []float64) error {
	e.model = sarima.New(1, 0, 1, 1, 0, 1, weeklyPeriod)
	return e.model.Fit(timeseries.New(values))
}

func (e *seasonalEngine) fittedValues() []float64 { return e.model.FittedValues() }
func (e *seasonalEngine) residuals() []float64    { return e.model.Residuals() }

func (e *seasonalEngine) forecast(steps int, confidence float64) ([]float64, []float64, []float64, error) {
	return e.model.PredictWithInterval(steps, confidence)
}

type arimaEngine struct {
	p, d, q  int
	model    *arima.Model
	residStd float64
}

func (e *arimaEngine) fit(values []float64) error {
	e.model = arima.New(e.p, e.d, e.q)
	if err := e.model.Fit(timeseries.New(values)); err != nil {
		return err
	}
	e.residStd = stddev(e.model.Residuals())
	return nil
}

func (e *arimaEngine) fittedValues() []float64 { return e.model.FittedValues() }
func (e *arimaEngine) residuals() []float64    { return e.model.Residuals() }

func (e *arimaEngine) forecast(steps int, confidence float64) ([]float64, []float64, []float64, error) {
	point, err := e.model.Predict(steps)
	if err != nil {
		return nil, nil, nil, err
	}
	z := zScore(confidence)
	lower := make([]float64, len(point))
	upper := make([]float64, len(point))
	for i, v := range point {
		// Interval widens with horizon, as forecast uncertainty compounds.
		w := z * e.residStd * math.Sqrt(1+float64(i)/4)
		lower[i] = v - w
		upper[i] = v + w
	}
	return point, lower, upper, nil
}

// levelEngine is the degenerate tier for very short histories: a constant
// level with a residual band.
type levelEngine struct {
	mean   float64
	std    float64
	resids []float64
	n      int
}

func (e *levelEngine) fit(values []float64) error {
	if len(values) == 0 {
		return errors.New("empty series")
	}
	e.n = len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	e.mean = sum / float64(e.n)

	e.resids = make([]float64, e.n)
	for i, v := range values {
		e.resids[i] = v - e.mean
	}
	e.std = stddev(e.resids)
	return nil
}

func (e *levelEngine) fittedValues() []float64 {
	fitted := make([]float64, e.n)
	for i := range fitted {
		fitted[i] = e.mean
	}
	return fitted
}

func (e *levelEngine) residuals() []float64 { return e.resids }

func (e *levelEngine) forecast(steps int, confidence float64) ([]float64, []float64, []float64, error) {
	z := zScore(confidence)
	point := make([]float64, steps)
	lower := make([]float64, steps)
	upper := make([]float64, steps)
	for i := 0; i < steps; i++ {
		point[i] = e.mean
		lower[i] = e.mean - z*e.std
		upper[i] = e.mean + z*e.std
	}
	return point, lower, upper, nil
}

func zScore(intervalWidth float64) float64 {
	switch {
	case intervalWidth >= 0.99:
		return 2.576
	case intervalWidth >= 0.95:
		return 1.960
	case intervalWidth >= 0.90:
		return 1.645
	case intervalWidth >= 0.80:
		return 1.282
	default:
		return 1.960
	}
}

func stddev(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mu := sum / n
	var ss float64
	for _, v := range values {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}
