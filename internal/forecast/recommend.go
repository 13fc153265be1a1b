package forecast

import (
	"fmt"
	"math"

	"github.com/siprems/backend-go/internal/domain"
)

// Restock buffer policy: short horizons get a larger safety margin.
const (
	shortHorizonBuffer  = 1.20
	longHorizonBuffer   = 1.10
	shortHorizonDays    = 7
	excessStockMultiple = 1.5
	highUrgencyFraction = 0.75
)

// BuildRecommendation converts a forecast into a restock suggestion. Only
// the final horizonDays points count toward demand; earlier points are
// historical chart context.
func BuildRecommendation(product *domain.Product, points []domain.ForecastPoint, horizonDays int) domain.Recommendation {
	horizon := points
	if len(points) > horizonDays {
		horizon = points[len(points)-horizonDays:]
	}

	var totalPredicted float64
	for _, p := range horizon {
		totalPredicted += p.Predicted
	}

	buffer := longHorizonBuffer
	if horizonDays <= shortHorizonDays {
		buffer = shortHorizonBuffer
	}

	optimal := int(math.Round(totalPredicted * buffer))
	current := product.CurrentStock
	gap := optimal - current

	rec := domain.Recommendation{
		Product:      product.Name,
		SKU:          product.SKU,
		CurrentStock: current,
		OptimalStock: optimal,
		Trend:        trendOf(horizon),
	}

	if gap <= 0 {
		rec.Suggestion = "stock sufficient"
		rec.Urgency = domain.UrgencyLow
		if float64(current) > float64(optimal)*excessStockMultiple {
			rec.Suggestion = "excess stock"
		}
		return rec
	}

	rec.Suggestion = fmt.Sprintf("restock +%d unit", gap)
	if float64(gap) > float64(current)*highUrgencyFraction {
		rec.Urgency = domain.UrgencyHigh
	} else {
		rec.Urgency = domain.UrgencyMedium
	}
	return rec
}

func trendOf(horizon []domain.ForecastPoint) domain.Trend {
	if len(horizon) > 0 && horizon[len(horizon)-1].Predicted > horizon[0].Predicted {
		return domain.TrendUp
	}
	return domain.TrendDown
}
