package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Alias1177/RateWatcher/models"
)

// LogDecision persists an emitted decision together with its inputs
func (db *DB) LogDecision(ctx context.Context, e models.DecisionLogEntry) error {
	probs, err := json.Marshal(e.Probabilities)
	if err != nil {
		return fmt.Errorf("encoding probabilities: %w", err)
	}
	features, err := json.Marshal(e.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO decision_log (
			instrument, timestamp, rate, action, confirmed, score, reason, probabilities, features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.Instrument, e.Time, e.Rate, string(e.Action), e.Confirmed, e.Score, e.Reason, string(probs), string(features))
	if err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	return nil
}
