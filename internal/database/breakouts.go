package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

// InsertBreakout stores a new unresolved event and fills in its id
func (db *DB) InsertBreakout(ctx context.Context, ev *models.BreakoutEvent) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO breakout_events (event_type, timestamp, boundary, threshold, predicted_probability)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, string(ev.Type), ev.Timestamp, ev.Boundary, ev.Threshold, ev.PredictedProbability).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("inserting breakout event: %w", err)
	}
	ev.Resolved = false
	ev.ResolvedAt = nil
	return nil
}

// PendingBreakouts returns unresolved events recorded at or after since
func (db *DB) PendingBreakouts(ctx context.Context, since time.Time) ([]models.BreakoutEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, boundary, threshold, predicted_probability
		FROM breakout_events
		WHERE resolved = FALSE
		  AND timestamp >= $1
		ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("querying pending breakouts: %w", err)
	}
	defer rows.Close()

	return scanBreakouts(rows)
}

// BreakoutsSince returns every event recorded at or after since, resolved or not
func (db *DB) BreakoutsSince(ctx context.Context, since time.Time) ([]models.BreakoutEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, boundary, threshold, predicted_probability, resolved, resolved_at
		FROM breakout_events
		WHERE timestamp >= $1
		ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("querying breakouts since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var events []models.BreakoutEvent
	for rows.Next() {
		var ev models.BreakoutEvent
		var typ string
		var predicted sql.NullFloat64
		var resolvedAt sql.NullTime
		if err := rows.Scan(&ev.ID, &typ, &ev.Timestamp, &ev.Boundary, &ev.Threshold, &predicted, &ev.Resolved, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning breakout event: %w", err)
		}
		ev.Type = models.BreakoutType(typ)
		if predicted.Valid {
			ev.PredictedProbability = predicted.Float64
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			ev.ResolvedAt = &t
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanBreakouts(rows *sql.Rows) ([]models.BreakoutEvent, error) {
	var events []models.BreakoutEvent
	for rows.Next() {
		var ev models.BreakoutEvent
		var typ string
		var predicted sql.NullFloat64
		if err := rows.Scan(&ev.ID, &typ, &ev.Timestamp, &ev.Boundary, &ev.Threshold, &predicted); err != nil {
			return nil, fmt.Errorf("scanning breakout event: %w", err)
		}
		ev.Type = models.BreakoutType(typ)
		if predicted.Valid {
			ev.PredictedProbability = predicted.Float64
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkBreakoutResolved flags an event as resolved
func (db *DB) MarkBreakoutResolved(ctx context.Context, id int64, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE breakout_events
		SET resolved = TRUE, resolved_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("resolving breakout %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("breakout %d not found", id)
	}
	return nil
}
