package indicators

import (
	"fmt"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	ExpectedKey = "expected"

	ExpectedCooldown  = 15 * time.Minute
	ExpectedSustained = 30 * time.Minute
)

// ExpectedRange watches the rate against the dealers' range for the day.
type ExpectedRange struct {
	below, above bool
	lastAlert    time.Time
	since        time.Time
}

func NewExpectedRange() *ExpectedRange {
	return &ExpectedRange{}
}

// Analyze signals the first breach of the range and, after the cooldown,
// a breach that has lasted longer than ExpectedSustained.
func (e *ExpectedRange) Analyze(rate float64, rng *models.ExpectedRange, now time.Time) models.RawSignal {
	empty := models.RawSignal{Key: ExpectedKey}
	if rng == nil || !models.SameDay(rng.Date, now) {
		return empty
	}

	if rng.Contains(rate) {
		e.below, e.above = false, false
		e.since = time.Time{}
		return empty
	}

	dir, bound, side, was := models.DirectionUp, rng.High, "above", &e.above
	if rate < rng.Low {
		dir, bound, side, was = models.DirectionDown, rng.Low, "below", &e.below
	}

	if !*was {
		*was = true
		e.lastAlert, e.since = now, now
		return e.signal(dir, 0.75, fmt.Sprintf("rate %.2f broke %s the expected range (%.2f)", rate, side, bound), rate, bound)
	}
	if now.Sub(e.lastAlert) < ExpectedCooldown {
		return empty
	}
	if !e.since.IsZero() && now.Sub(e.since) > ExpectedSustained {
		e.lastAlert = now
		e.since = time.Time{}
		return e.signal(dir, 0.9, fmt.Sprintf("rate %.2f has stayed %s the expected range (%.2f) for over 30m", rate, side, bound), rate, bound)
	}
	return empty
}

func (e *ExpectedRange) signal(dir models.Direction, conf float64, evidence string, rate, bound float64) models.RawSignal {
	s := models.StructuredSignal{
		Key:        ExpectedKey,
		Direction:  dir,
		Confidence: conf,
		Evidence:   evidence,
		Meta:       map[string]float64{"bound": bound, "gap": round2(rate - bound)},
	}
	return models.RawSignal{Key: ExpectedKey, Structured: &s}
}
