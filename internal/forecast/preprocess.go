package forecast

import (
	"fmt"
	"math"

	"github.com/siprems/backend-go/internal/domain"
)

const (
	// MinObservations is the minimum number of usable daily points, checked
	// both before and after outlier removal.
	MinObservations = 5

	// outlierSigma is the cutoff for dropping extreme days in log space.
	outlierSigma = 3.5
)

// Preprocess applies the variance-stabilizing log1p transform and removes
// extreme outliers. Returns domain.ErrInsufficientData when fewer than
// MinObservations points remain at either stage.
func Preprocess(observations []domain.SalesObservation) ([]SeriesPoint, error) {
	if len(observations) < MinObservations {
		return nil, fmt.Errorf("%w: %d daily points", domain.ErrInsufficientData, len(observations))
	}

	points := make([]SeriesPoint, 0, len(observations))
	for _, obs := range observations {
		points = append(points, SeriesPoint{
			Date:  obs.Date,
			Value: math.Log1p(obs.Quantity),
			Promo: float64(obs.PromoFlag),
		})
	}

	mu, sigma := meanStd(points)
	if sigma > 0 {
		kept := points[:0]
		for _, p := range points {
			if math.Abs(p.Value-mu) <= outlierSigma*sigma {
				kept = append(kept, p)
			}
		}
		points = kept
	}

	if len(points) < MinObservations {
		return nil, fmt.Errorf("%w: %d daily points after outlier removal", domain.ErrInsufficientData, len(points))
	}

	return points, nil
}

// meanStd returns the mean and sample standard deviation of the log values.
func meanStd(points []SeriesPoint) (float64, float64) {
	n := float64(len(points))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mu := sum / n

	if n < 2 {
		return mu, 0
	}

	var ss float64
	for _, p := range points {
		d := p.Value - mu
		ss += d * d
	}
	return mu, math.Sqrt(ss / (n - 1))
}
