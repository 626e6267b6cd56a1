package indicators

import (
	"fmt"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	CrossoverKey = "cross"
	// CrossEpsilon is the spread below which the averages count as equal.
	CrossEpsilon = 0.005
)

// Crossover tracks the short and long moving averages between ticks.
type Crossover struct {
	short, long int

	prevShort, prevLong float64
	primed              bool
}

func NewCrossover(short, long int) *Crossover {
	return &Crossover{short: short, long: long}
}

// Analyze reports a golden or dead cross; otherwise an inactive comparison.
func (c *Crossover) Analyze(rates []float64) models.RawSignal {
	shortMA, ok := Mean(rates, c.short)
	if !ok {
		return models.RawSignal{Key: CrossoverKey}
	}
	longMA, ok := Mean(rates, c.long)
	if !ok {
		return models.RawSignal{Key: CrossoverKey}
	}

	prevShort, prevLong, primed := c.prevShort, c.prevLong, c.primed
	c.prevShort, c.prevLong, c.primed = shortMA, longMA, true
	if !primed {
		return models.RawSignal{Key: CrossoverKey}
	}

	diffNow := shortMA - longMA
	diffPrev := prevShort - prevLong

	s := models.StructuredSignal{
		Key:      CrossoverKey,
		Evidence: fmt.Sprintf("short MA %.2f %s long MA %.2f", shortMA, compSign(diffNow), longMA),
		Meta:     map[string]float64{"short": shortMA, "long": longMA, "spread": diffNow},
	}
	switch {
	case diffNow > CrossEpsilon && diffPrev <= CrossEpsilon:
		s.Direction, s.Confidence = models.DirectionUp, 0.7
		s.Evidence = "golden cross: " + s.Evidence
	case diffNow < -CrossEpsilon && diffPrev >= -CrossEpsilon:
		s.Direction, s.Confidence = models.DirectionDown, 0.7
		s.Evidence = "dead cross: " + s.Evidence
	}
	return models.RawSignal{Key: CrossoverKey, Structured: &s}
}

func compSign(diff float64) string {
	switch {
	case diff > CrossEpsilon:
		return ">"
	case diff < -CrossEpsilon:
		return "<"
	default:
		return "="
	}
}
