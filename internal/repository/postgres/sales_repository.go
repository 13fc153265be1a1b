package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/repository"
)

type salesRepository struct {
	db *DB
}

func NewSalesRepository(db *DB) repository.SalesHistoryRepository {
	return &salesRepository{db: db}
}

type dailySalesRow struct {
	Date     time.Time `db:"ds"`
	Quantity float64   `db:"y"`
	Promo    int       `db:"promo"`
}

// GetDailySales aggregates the transaction log per calendar day. The promo
// flag for a day is the OR across that day's transactions.
func (r *salesRepository) GetDailySales(ctx context.Context, sku string) ([]domain.SalesObservation, error) {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT
			DATE(t.transaction_date) AS ds,
			SUM(t.quantity_sold) AS y,
			MAX(CASE WHEN t.is_promo THEN 1 ELSE 0 END) AS promo
		FROM transactions t
		JOIN products p ON t.product_id = p.product_id
		WHERE p.sku = $1
		GROUP BY DATE(t.transaction_date)
		ORDER BY ds ASC
	`

	var rows []dailySalesRow
	if err := r.db.SelectContext(ctx, &rows, query, sku); err != nil {
		return nil, fmt.Errorf("failed to fetch daily sales for %s: %w", sku, err)
	}

	observations := make([]domain.SalesObservation, 0, len(rows))
	for _, row := range rows {
		if row.Quantity < 0 {
			row.Quantity = 0
		}
		observations = append(observations, domain.SalesObservation{
			Date:      row.Date.UTC().Truncate(24 * time.Hour),
			Quantity:  row.Quantity,
			PromoFlag: row.Promo,
		})
	}

	return observations, nil
}
