package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/forecast"
)

type stubProductRepo struct {
	products map[string]*domain.Product
}

func (r *stubProductRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, ok := r.products[sku]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *stubProductRepo) ListSKUs(ctx context.Context) ([]string, error) {
	skus := make([]string, 0, len(r.products))
	for sku := range r.products {
		skus = append(skus, sku)
	}
	return skus, nil
}

type stubForecastServer struct {
	result   *forecast.Result
	err      error
	lastDays int
}

func (s *stubForecastServer) Predict(ctx context.Context, sku string, horizonDays int) (*forecast.Result, error) {
	s.lastDays = horizonDays
	return s.result, s.err
}

func flatForecast(days int, perDay float64) *forecast.Result {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.ForecastPoint, days)
	for i := range points {
		d := start.AddDate(0, 0, i)
		points[i] = domain.ForecastPoint{
			Date:      d,
			DateStr:   d.Format("2006-01-02"),
			Predicted: perDay,
		}
	}
	return &forecast.Result{Points: points, Accuracy: 87.654, HorizonDays: days}
}

func TestPredictStock(t *testing.T) {
	products := &stubProductRepo{products: map[string]*domain.Product{
		"SKU-1": {SKU: "SKU-1", Name: "Kopi Susu", CurrentStock: 50},
	}}
	server := &stubForecastServer{result: flatForecast(7, 10)}
	svc := NewPredictionService(products, server, 7)

	resp, err := svc.PredictStock(context.Background(), "SKU-1", 7)
	require.NoError(t, err)

	assert.Len(t, resp.ChartData, 7)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "Kopi Susu", resp.Recommendations[0].Product)
	// 70 predicted units, 20% buffer, 50 on hand.
	assert.Equal(t, "restock +34 unit", resp.Recommendations[0].Suggestion)
	assert.Equal(t, 87.7, resp.Accuracy)
}

func TestPredictStockRejectsEmptySKU(t *testing.T) {
	svc := NewPredictionService(&stubProductRepo{}, &stubForecastServer{}, 7)

	_, err := svc.PredictStock(context.Background(), "", 7)
	assert.Error(t, err)
}

func TestPredictStockUnknownProduct(t *testing.T) {
	svc := NewPredictionService(&stubProductRepo{}, &stubForecastServer{result: flatForecast(7, 10)}, 7)

	_, err := svc.PredictStock(context.Background(), "SKU-404", 7)
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestPredictStockDefaultsHorizon(t *testing.T) {
	products := &stubProductRepo{products: map[string]*domain.Product{
		"SKU-1": {SKU: "SKU-1", Name: "Kopi Susu"},
	}}
	server := &stubForecastServer{result: flatForecast(7, 10)}
	svc := NewPredictionService(products, server, 14)

	_, err := svc.PredictStock(context.Background(), "SKU-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 14, server.lastDays)
}

func TestPredictStockFollowsClampedHorizon(t *testing.T) {
	products := &stubProductRepo{products: map[string]*domain.Product{
		"SKU-1": {SKU: "SKU-1", Name: "Kopi Susu", CurrentStock: 0},
	}}

	// A server that clamped a 400-day request down to 14 days returns 30
	// historical chart points plus the 14-day horizon.
	result := flatForecast(44, 10)
	result.HorizonDays = 14
	server := &stubForecastServer{result: result}
	svc := NewPredictionService(products, server, 7)

	resp, err := svc.PredictStock(context.Background(), "SKU-1", 400)
	require.NoError(t, err)

	// 140 predicted units over the effective horizon, 10% buffer. The 30
	// historical points must not be summed into demand.
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, 154, resp.Recommendations[0].OptimalStock)
	assert.Equal(t, "restock +154 unit", resp.Recommendations[0].Suggestion)
}

func TestPredictStockPropagatesForecastError(t *testing.T) {
	products := &stubProductRepo{products: map[string]*domain.Product{
		"SKU-1": {SKU: "SKU-1", Name: "Kopi Susu"},
	}}
	server := &stubForecastServer{err: domain.ErrInsufficientData}
	svc := NewPredictionService(products, server, 7)

	_, err := svc.PredictStock(context.Background(), "SKU-1", 7)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestPredictStockEmptyForecast(t *testing.T) {
	products := &stubProductRepo{products: map[string]*domain.Product{
		"SKU-1": {SKU: "SKU-1", Name: "Kopi Susu"},
	}}
	server := &stubForecastServer{result: &forecast.Result{}}
	svc := NewPredictionService(products, server, 7)

	_, err := svc.PredictStock(context.Background(), "SKU-1", 7)
	assert.Error(t, err)
}
