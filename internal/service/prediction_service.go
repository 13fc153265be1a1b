package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/forecast"
	"github.com/siprems/backend-go/internal/repository"
)

// ForecastServer is the slice of the forecast package this service needs.
type ForecastServer interface {
	Predict(ctx context.Context, sku string, horizonDays int) (*forecast.Result, error)
}

// PredictionService is the use-case layer for the predict operation:
// validate the product, serve the forecast, derive the recommendation.
type PredictionService struct {
	products           repository.ProductRepository
	server             ForecastServer
	defaultHorizonDays int
}

func NewPredictionService(products repository.ProductRepository, server ForecastServer, defaultHorizonDays int) *PredictionService {
	if defaultHorizonDays < 1 {
		defaultHorizonDays = 7
	}
	return &PredictionService{
		products:           products,
		server:             server,
		defaultHorizonDays: defaultHorizonDays,
	}
}

// PredictStock forecasts demand for the SKU and turns it into chart data
// plus a restock recommendation. Unknown SKUs are rejected before any
// history is read.
func (s *PredictionService) PredictStock(ctx context.Context, sku string, days int) (*domain.PredictionResponse, error) {
	if sku == "" {
		return nil, errors.New("product SKU is required")
	}
	if days < 1 {
		days = s.defaultHorizonDays
	}

	product, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	result, err := s.server.Predict(ctx, sku, days)
	if err != nil {
		return nil, err
	}
	if len(result.Points) == 0 {
		return nil, fmt.Errorf("no forecast data could be generated for %s", sku)
	}

	// The server clamps oversized horizons; the recommendation must follow
	// the effective horizon, not the requested one.
	effectiveDays := result.HorizonDays
	if effectiveDays < 1 {
		effectiveDays = days
	}
	recommendation := forecast.BuildRecommendation(product, result.Points, effectiveDays)

	log.Debug().
		Str("sku", sku).
		Int("days", effectiveDays).
		Str("urgency", string(recommendation.Urgency)).
		Msg("prediction served")

	return &domain.PredictionResponse{
		ChartData:       result.Points,
		Recommendations: []domain.Recommendation{recommendation},
		Accuracy:        math.Round(result.Accuracy*10) / 10,
	}, nil
}
