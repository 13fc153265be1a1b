package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/siprems/backend-go/internal/domain"
	"github.com/siprems/backend-go/internal/repository"
)

// Holiday effects reach 2 days before and 1 day after the event itself.
const (
	holidayWindowBefore = 2
	holidayWindowAfter  = 1
)

type holidayRepository struct {
	db *DB
}

func NewHolidayRepository(db *DB) repository.HolidayRepository {
	return &holidayRepository{db: db}
}

type holidayRow struct {
	Name string    `db:"holiday"`
	Date time.Time `db:"ds"`
}

func (r *holidayRepository) GetPredictionHolidays(ctx context.Context) ([]domain.HolidayEntry, error) {
	release, err := r.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT event_name AS holiday, event_date AS ds
		FROM events
		WHERE include_in_prediction = TRUE
		AND event_type IN ('holiday', 'promotion', 'seasonal')
	`

	var rows []holidayRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to fetch holidays: %w", err)
	}

	entries := make([]domain.HolidayEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.HolidayEntry{
			Name:         row.Name,
			Date:         row.Date.UTC().Truncate(24 * time.Hour),
			WindowBefore: holidayWindowBefore,
			WindowAfter:  holidayWindowAfter,
		})
	}

	return entries, nil
}
