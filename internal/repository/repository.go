package repository

import (
	"context"

	"github.com/siprems/backend-go/internal/domain"
)

// SalesHistoryRepository aggregates a SKU's transactions into daily
// observations.
type SalesHistoryRepository interface {
	// GetDailySales returns one observation per calendar day with at least
	// one transaction, ordered by date ascending. Empty slice for a SKU
	// with no transactions.
	GetDailySales(ctx context.Context, sku string) ([]domain.SalesObservation, error)
}

// HolidayRepository reads calendar entries marked for inclusion in
// prediction.
type HolidayRepository interface {
	GetPredictionHolidays(ctx context.Context) ([]domain.HolidayEntry, error)
}

// ProductRepository is the narrow product lookup the forecasting side needs.
type ProductRepository interface {
	// GetBySKU returns domain.ErrProductNotFound for an unknown SKU.
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListSKUs(ctx context.Context) ([]string, error)
}
