package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	JumpKey = "jump"
	// RelativeJump is the share of ATR a single move must reach.
	RelativeJump = 0.6
)

// Jump flags single-tick moves that are large relative to recent volatility.
type Jump struct {
	threshold float64
	atrPeriod int
	cooldown  time.Duration

	lastJump time.Time
}

func NewJump(threshold float64, atrPeriod int, cooldown time.Duration) *Jump {
	return &Jump{threshold: threshold, atrPeriod: atrPeriod, cooldown: cooldown}
}

// Analyze compares the last two rates.
func (j *Jump) Analyze(rates []float64, now time.Time) models.RawSignal {
	if len(rates) < 2 {
		return models.RawSignal{Key: JumpKey}
	}
	prev, current := rates[len(rates)-2], rates[len(rates)-1]
	diff := round2(current - prev)

	atr := ATR(rates, j.atrPeriod)
	if atr == 0 {
		atr = j.threshold
	}
	limit := math.Max(j.threshold, RelativeJump*atr)

	if math.Abs(diff) < limit {
		return models.RawSignal{Key: JumpKey}
	}
	if !j.lastJump.IsZero() && now.Sub(j.lastJump) < j.cooldown {
		return models.RawSignal{Key: JumpKey}
	}
	j.lastJump = now

	dir, word := models.DirectionUp, "surge"
	if diff < 0 {
		dir, word = models.DirectionDown, "plunge"
	}
	s := models.StructuredSignal{
		Key:        JumpKey,
		Direction:  dir,
		Confidence: 0.7,
		Evidence:   fmt.Sprintf("%s %+.2f (%.2f -> %.2f, ATR=%.2f)", word, diff, prev, current, atr),
		Meta:       map[string]float64{"diff": diff, "atr": round2(atr)},
	}
	return models.RawSignal{Key: JumpKey, Structured: &s}
}
