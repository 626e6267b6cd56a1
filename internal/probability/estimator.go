// Package probability estimates how often past band breakouts of a similar size reverted.
package probability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	// Horizon is how long a breakout has to revert.
	Horizon         = 30 * time.Minute
	DefaultLookback = 90 * 24 * time.Hour
	BandWidth       = 2.0
	// Warmup is history loaded ahead of the lookback so the earliest
	// eligible points still get a full band window, weekends included.
	Warmup = 7 * 24 * time.Hour
)

var ErrInvalidQuery = errors.New("invalid probability query")

// Query describes the breakout being evaluated.
type Query struct {
	Side      models.BreakoutType
	Boundary  float64
	Deviation float64
	Tolerance float64
	Window    int
	At        time.Time
}

func (q Query) validate() error {
	if q.Side != models.UpperBreakout && q.Side != models.LowerBreakout {
		return fmt.Errorf("%w: side %q", ErrInvalidQuery, q.Side)
	}
	if q.Window < 2 {
		return fmt.Errorf("%w: window %d", ErrInvalidQuery, q.Window)
	}
	if q.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance %v", ErrInvalidQuery, q.Tolerance)
	}
	return nil
}

// Result is the historical reversion rate for a query.
type Result struct {
	Percent  float64 `json:"percent"`
	Matched  int     `json:"matched"`
	Reverted int     `json:"reverted"`
}

func newResult(matched, reverted int) Result {
	r := Result{Matched: matched, Reverted: reverted}
	if matched > 0 {
		r.Percent = math.Round(float64(reverted)/float64(matched)*1000) / 10
	}
	return r
}

// Estimator answers reversion-probability queries.
type Estimator interface {
	Estimate(ctx context.Context, q Query) (Result, error)
}

// HistorySource provides the stored rate series in ascending time order.
type HistorySource interface {
	RatesSince(ctx context.Context, since time.Time) ([]models.RatePoint, error)
}

// SeriesEstimator computes estimates in one pass over the stored series.
type SeriesEstimator struct {
	source   HistorySource
	lookback time.Duration
	horizon  time.Duration
	k        float64
}

func NewSeriesEstimator(source HistorySource, lookback time.Duration) *SeriesEstimator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &SeriesEstimator{source: source, lookback: lookback, horizon: Horizon, k: BandWidth}
}

func (e *SeriesEstimator) Estimate(ctx context.Context, q Query) (Result, error) {
	if err := q.validate(); err != nil {
		return Result{}, err
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}
	from := q.At.Add(-e.lookback)
	points, err := e.source.RatesSince(ctx, from.Add(-Warmup))
	if err != nil {
		return Result{}, fmt.Errorf("loading rate history: %w", err)
	}
	return estimateSeries(points, q, from, e.horizon, e.k), nil
}

// estimateSeries reconstructs the band at every point with a full window,
// selects breakouts of similar size in [from, q.At] and checks each one for
// a crossing back within the horizon. Points before from only feed the
// windows. Rolling sums and a monotonic deque keep it linear.
func estimateSeries(points []models.RatePoint, q Query, from time.Time, horizon time.Duration, k float64) Result {
	n := len(points)
	if n < q.Window {
		return Result{}
	}

	lower := q.Side == models.LowerBreakout
	ref := points[0].Rate
	w := float64(q.Window)

	var sum, sumSq float64
	var deque []int
	next := 0
	matched, reverted := 0, 0

	for i := 0; i < n; i++ {
		x := points[i].Rate - ref
		sum += x
		sumSq += x * x
		if i >= q.Window {
			old := points[i-q.Window].Rate - ref
			sum -= old
			sumSq -= old * old
		}

		// Extend the forward window to cover (t_i, t_i + horizon].
		limit := points[i].Timestamp.Add(horizon)
		for next < n && !points[next].Timestamp.After(limit) {
			v := points[next].Rate
			for len(deque) > 0 && dominated(points[deque[len(deque)-1]].Rate, v, lower) {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, next)
			next++
		}
		for len(deque) > 0 && (deque[0] <= i || !points[deque[0]].Timestamp.After(points[i].Timestamp)) {
			deque = deque[1:]
		}

		if i < q.Window-1 || points[i].Timestamp.Before(from) || points[i].Timestamp.After(q.At) {
			continue
		}

		mean := sum / w
		variance := (sumSq - sum*sum/w) / (w - 1)
		std := math.Sqrt(math.Max(variance, 0))

		var band, dev float64
		if lower {
			band = ref + mean - k*std
			dev = band - points[i].Rate
		} else {
			band = ref + mean + k*std
			dev = points[i].Rate - band
		}
		if dev < q.Deviation-q.Tolerance || dev > q.Deviation+q.Tolerance {
			continue
		}

		matched++
		if len(deque) == 0 {
			continue
		}
		extreme := points[deque[0]].Rate
		if (lower && extreme >= band) || (!lower && extreme <= band) {
			reverted++
		}
	}

	return newResult(matched, reverted)
}

// dominated reports whether a queued value can never be the window extreme
// once v has been appended: for a max-deque that is any value <= v.
func dominated(queued, v float64, keepMax bool) bool {
	if keepMax {
		return queued <= v
	}
	return queued >= v
}
