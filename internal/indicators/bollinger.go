package indicators

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/RateWatcher/internal/probability"
	"github.com/Alias1177/RateWatcher/models"
)

const (
	BollingerKey = "boll"
	// BandEpsilon is how far past a band the rate must be to count as a breakout.
	BandEpsilon = 0.01
)

// BreakoutRecorder persists newly detected breakouts.
type BreakoutRecorder interface {
	Record(ctx context.Context, typ models.BreakoutType, at time.Time, boundary, threshold, predicted float64) (models.BreakoutEvent, error)
}

// Bollinger emits a signal on the first tick of each band breakout.
type Bollinger struct {
	period    int
	k         float64
	estimator probability.Estimator
	recorder  BreakoutRecorder

	status      models.BreakoutType
	upperStreak int
	lowerStreak int
}

func NewBollinger(period int, estimator probability.Estimator, recorder BreakoutRecorder) *Bollinger {
	return &Bollinger{period: period, k: probability.BandWidth, estimator: estimator, recorder: recorder}
}

// Status is the breakout currently in progress, empty when inside the bands.
func (b *Bollinger) Status() models.BreakoutType {
	return b.status
}

// Streaks counts consecutive breakout episodes on the same side.
func (b *Bollinger) Streaks() (upper, lower int) {
	return b.upperStreak, b.lowerStreak
}

// Analyze evaluates the latest rate, the last element of rates.
func (b *Bollinger) Analyze(ctx context.Context, rates []float64, now time.Time) (models.RawSignal, error) {
	empty := models.RawSignal{Key: BollingerKey}

	upper, middle, lower, ok := Bands(rates, b.period, b.k)
	if !ok || upper-lower < BandEpsilon {
		b.status = ""
		return empty, nil
	}
	current := rates[len(rates)-1]

	var typ models.BreakoutType
	var boundary, deviation float64
	switch {
	case current > upper+BandEpsilon:
		typ, boundary, deviation = models.UpperBreakout, upper, round2(current-upper)
	case current < lower-BandEpsilon:
		typ, boundary, deviation = models.LowerBreakout, lower, round2(lower-current)
	default:
		b.status = ""
		return empty, nil
	}

	if typ == b.status {
		return empty, nil
	}

	res, err := b.estimator.Estimate(ctx, probability.Query{
		Side:      typ,
		Boundary:  boundary,
		Deviation: deviation,
		Tolerance: probability.AutoTolerance(deviation),
		Window:    b.period,
		At:        now,
	})
	if err != nil {
		return empty, fmt.Errorf("estimating %s reversion: %w", typ, err)
	}

	if _, err := b.recorder.Record(ctx, typ, now, boundary, boundary, res.Percent); err != nil {
		return empty, err
	}

	b.status = typ
	var streak int
	if typ == models.UpperBreakout {
		b.upperStreak++
		b.lowerStreak = 0
		streak = b.upperStreak
	} else {
		b.lowerStreak++
		b.upperStreak = 0
		streak = b.lowerStreak
	}

	sd := (upper - middle) / b.k
	dir, conf := breakoutSignal(typ, res)
	s := models.StructuredSignal{
		Key:        BollingerKey,
		Direction:  dir,
		Confidence: conf,
		Evidence:   bollingerEvidence(typ, current, boundary, deviation, (current-middle)/sd, res),
		Meta: map[string]float64{
			"z":           (current - middle) / sd,
			"band_width":  upper - lower,
			"deviation":   deviation,
			"probability": res.Percent,
			"matched":     float64(res.Matched),
			"streak":      float64(streak),
		},
	}
	return models.RawSignal{Key: BollingerKey, Structured: &s}, nil
}

// breakoutSignal reads the historical reversion rate: a likely reversion
// points back into the band, otherwise the breakout is followed.
func breakoutSignal(typ models.BreakoutType, res probability.Result) (models.Direction, float64) {
	follow, revert := models.DirectionUp, models.DirectionDown
	if typ == models.LowerBreakout {
		follow, revert = models.DirectionDown, models.DirectionUp
	}

	if res.Matched == 0 {
		return follow, 0.6
	}
	p := math.Min(math.Max(res.Percent/100, 0), 1)
	if p >= 0.5 {
		return revert, p
	}
	return follow, 1 - p
}

func bollingerEvidence(typ models.BreakoutType, current, boundary, deviation, z float64, res probability.Result) string {
	side, move := "upper", "pullback"
	if typ == models.LowerBreakout {
		side, move = "lower", "rebound"
	}
	ev := fmt.Sprintf("Bollinger %s band break at %.2f (band %.2f, %.2f beyond, z=%.2f)", side, current, boundary, deviation, z)
	if res.Matched > 0 {
		ev += fmt.Sprintf(", 30m %s rate %.0f%% over %d similar cases", move, res.Percent, res.Matched)
	}
	return ev
}
