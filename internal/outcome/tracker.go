// Package outcome records band breakouts and checks whether they reverted within the horizon.
package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	Horizon = 30 * time.Minute
	// Epsilon is the slack a rate must clear beyond the threshold to count as reverted.
	Epsilon = 0.01
)

// EventStore persists breakout events.
type EventStore interface {
	InsertBreakout(ctx context.Context, ev *models.BreakoutEvent) error
	PendingBreakouts(ctx context.Context, since time.Time) ([]models.BreakoutEvent, error)
	MarkBreakoutResolved(ctx context.Context, id int64, at time.Time) error
}

type Tracker struct {
	store   EventStore
	horizon time.Duration
	epsilon float64
	logger  zerolog.Logger
}

func NewTracker(store EventStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		horizon: Horizon,
		epsilon: Epsilon,
		logger:  logger.With().Str("component", "outcome").Logger(),
	}
}

// Record stores a newly detected breakout as unresolved.
func (t *Tracker) Record(ctx context.Context, typ models.BreakoutType, at time.Time, boundary, threshold, predicted float64) (models.BreakoutEvent, error) {
	ev := models.BreakoutEvent{
		Type:                 typ,
		Timestamp:            at,
		Boundary:             boundary,
		Threshold:            threshold,
		PredictedProbability: predicted,
	}
	if err := t.store.InsertBreakout(ctx, &ev); err != nil {
		return models.BreakoutEvent{}, fmt.Errorf("recording %s: %w", typ, err)
	}

	t.logger.Info().
		Int64("id", ev.ID).
		Str("type", string(typ)).
		Float64("boundary", boundary).
		Float64("threshold", threshold).
		Float64("predicted", predicted).
		Msg("breakout recorded")
	return ev, nil
}

// CheckResolutions marks pending events the current rate has crossed back
// over and merges them into one summary. It returns nil when nothing resolved.
func (t *Tracker) CheckResolutions(ctx context.Context, rate float64, now time.Time) (*models.OutcomeSummary, error) {
	pending, err := t.store.PendingBreakouts(ctx, now.Add(-t.horizon))
	if err != nil {
		return nil, fmt.Errorf("loading pending breakouts: %w", err)
	}

	var resolved []models.ResolvedEvent
	for _, ev := range pending {
		elapsed := now.Sub(ev.Timestamp)
		if elapsed > t.horizon || !t.reverted(ev, rate) {
			continue
		}

		if err := t.store.MarkBreakoutResolved(ctx, ev.ID, now); err != nil {
			return nil, fmt.Errorf("resolving breakout %d: %w", ev.ID, err)
		}
		resolvedAt := now
		ev.Resolved = true
		ev.ResolvedAt = &resolvedAt

		resolved = append(resolved, models.ResolvedEvent{Event: ev, Rate: rate, Elapsed: elapsed})
		t.logger.Info().
			Int64("id", ev.ID).
			Str("type", string(ev.Type)).
			Dur("elapsed", elapsed).
			Float64("rate", rate).
			Msg("breakout resolved")
	}

	if len(resolved) == 0 {
		return nil, nil
	}
	return &models.OutcomeSummary{At: now, Resolved: resolved}, nil
}

func (t *Tracker) reverted(ev models.BreakoutEvent, rate float64) bool {
	switch ev.Type {
	case models.LowerBreakout:
		return rate >= ev.Threshold+t.epsilon
	case models.UpperBreakout:
		return rate <= ev.Threshold-t.epsilon
	default:
		return false
	}
}

// Label maps a resolved breakout to the action that would have been right at the time.
func Label(typ models.BreakoutType) models.Action {
	switch typ {
	case models.LowerBreakout:
		return models.ActionBuy
	case models.UpperBreakout:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}
