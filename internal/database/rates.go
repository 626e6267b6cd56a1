package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

// StoreRate saves one observation
func (db *DB) StoreRate(ctx context.Context, at time.Time, rate float64) error {
	_, err := db.ExecContext(ctx, `INSERT INTO rates (timestamp, rate) VALUES ($1, $2)`, at, rate)
	if err != nil {
		return fmt.Errorf("storing rate: %w", err)
	}
	return nil
}

// RecentRates returns the latest limit rates, oldest first.
func (db *DB) RecentRates(ctx context.Context, limit int) ([]float64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rate FROM (
			SELECT timestamp, rate FROM rates ORDER BY timestamp DESC LIMIT $1
		) recent
		ORDER BY timestamp ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent rates: %w", err)
	}
	defer rows.Close()

	rates := make([]float64, 0, limit)
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scanning rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// RatesSince returns every rate at or after since in ascending order.
func (db *DB) RatesSince(ctx context.Context, since time.Time) ([]models.RatePoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT timestamp, rate
		FROM rates
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("querying rates since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var points []models.RatePoint
	for rows.Next() {
		var p models.RatePoint
		if err := rows.Scan(&p.Timestamp, &p.Rate); err != nil {
			return nil, fmt.Errorf("scanning rate point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// StoreExpectedRange upserts the range for its date
func (db *DB) StoreExpectedRange(ctx context.Context, r models.ExpectedRange) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO expected_ranges (date, low, high, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE
		SET low = EXCLUDED.low,
			high = EXCLUDED.high,
			source = EXCLUDED.source
	`, r.Date.In(models.KST).Format("2006-01-02"), r.Low, r.High, r.Source)
	if err != nil {
		return fmt.Errorf("storing expected range: %w", err)
	}
	return nil
}

// ExpectedRangeFor returns the stored range for day, or nil when none was scraped.
func (db *DB) ExpectedRangeFor(ctx context.Context, day time.Time) (*models.ExpectedRange, error) {
	var r models.ExpectedRange
	err := db.QueryRowContext(ctx, `
		SELECT date, low, high, source FROM expected_ranges WHERE date = $1
	`, day.In(models.KST).Format("2006-01-02")).Scan(&r.Date, &r.Low, &r.High, &r.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying expected range: %w", err)
	}
	return &r, nil
}
