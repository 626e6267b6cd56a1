// Package gate applies the rule-based checks a classifier opinion must pass before it becomes a candidate.
package gate

import (
	"sort"

	"github.com/creasty/defaults"

	"github.com/Alias1177/RateWatcher/internal/features"
	"github.com/Alias1177/RateWatcher/models"
)

const (
	ReasonSingleSignal           = "single signal"
	ReasonInsufficientAgreement  = "insufficient agreement"
	ReasonInsufficientConfidence = "insufficient confidence"
	ReasonEventProximity         = "event proximity"
	ReasonOK                     = "ok"
)

// Regime is the volatility band derived from ATR/price.
type Regime string

const (
	RegimeLow  Regime = "low"
	RegimeBase Regime = "base"
	RegimeHigh Regime = "high"
)

// Config holds the gate thresholds.
type Config struct {
	ProbBase        float64 `default:"0.60"`
	MarginMin       float64 `default:"0.10"`
	AgreeBase       int     `default:"2"`
	AgreeLowVol     int     `default:"3"`
	ProbLowVol      float64 `default:"0.65"`
	ProbHighVol     float64 `default:"0.57"`
	LowVolRatio     float64 `default:"0.0003"`
	HighVolRatio    float64 `default:"0.0007"`
	AgreeConfidence float64 `default:"0.5"`
	MinActive       int     `default:"2"`
}

// DefaultConfig returns the thresholds from the struct tags.
func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// PriceContext carries the market state the gate needs beyond the signals.
type PriceContext struct {
	Price            float64
	ATR              float64
	NearEvent        bool
	PrevSameDecision bool
}

// Thresholds resolves the probability bar and agreement requirement for a context.
func (c Config) Thresholds(ctx PriceContext) (Regime, float64, int) {
	if ctx.ATR <= 0 || ctx.Price <= 0 {
		return RegimeBase, c.ProbBase, c.AgreeBase
	}

	ratio := ctx.ATR / ctx.Price
	switch {
	case ratio <= c.LowVolRatio:
		return RegimeLow, c.ProbLowVol, c.AgreeLowVol
	case ratio >= c.HighVolRatio:
		return RegimeHigh, c.ProbHighVol, c.AgreeBase
	default:
		return RegimeBase, c.ProbBase, c.AgreeBase
	}
}

// Decide returns the candidate action and the reason it was reached.
// Any failed check yields hold.
func Decide(signals map[string]models.StructuredSignal, probs models.Probabilities, ctx PriceContext, cfg Config) (models.Action, string) {
	active := 0
	for _, s := range signals {
		if s.Active() {
			active++
		}
	}
	if active < cfg.MinActive {
		return models.ActionHold, ReasonSingleSignal
	}

	_, probBar, agreeReq := cfg.Thresholds(ctx)

	pos, neg := features.Agreement(signals, cfg.AgreeConfidence)
	if max(pos, neg) < agreeReq {
		return models.ActionHold, ReasonInsufficientAgreement
	}

	ranked := Rank(probs)
	top, second := ranked[0], ranked[1]
	if probs[top] < probBar || probs[top]-probs[second] < cfg.MarginMin {
		return models.ActionHold, ReasonInsufficientConfidence
	}

	if ctx.NearEvent && !ctx.PrevSameDecision {
		return models.ActionHold, ReasonEventProximity
	}

	return top, ReasonOK
}

// Rank orders actions by descending probability, ties in models.Actions order.
func Rank(probs models.Probabilities) []models.Action {
	ranked := append([]models.Action(nil), models.Actions...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return probs[ranked[i]] > probs[ranked[j]]
	})
	return ranked
}
