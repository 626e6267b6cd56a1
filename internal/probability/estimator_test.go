package probability

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/cache"
	"github.com/Alias1177/RateWatcher/models"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, models.KST)

func minuteSeries(rates []float64) []models.RatePoint {
	pts := make([]models.RatePoint, len(rates))
	for i, r := range rates {
		pts[i] = models.RatePoint{Timestamp: t0.Add(time.Duration(i) * time.Minute), Rate: r}
	}
	return pts
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func alternating(n int) []float64 {
	var out []float64
	for i := 0; i < n; i++ {
		out = append(out, 100.0, 100.1)
	}
	return out
}

type sliceSource []models.RatePoint

func (s sliceSource) RatesSince(_ context.Context, since time.Time) ([]models.RatePoint, error) {
	var out []models.RatePoint
	for _, p := range s {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestAutoTolerance(t *testing.T) {
	tests := []struct {
		dev  float64
		want float64
	}{
		{0.0, 0.01},
		{0.04, 0.01},
		{0.05, 0.02},
		{0.12, 0.03},
		{0.5, 0.05},
		{0.7, 0.10},
		{3, 0.10},
	}
	for _, tt := range tests {
		if got := AutoTolerance(tt.dev); got != tt.want {
			t.Errorf("AutoTolerance(%v) = %v, want %v", tt.dev, got, tt.want)
		}
	}
}

func TestEstimateSeries(t *testing.T) {
	// Two identical lower breakouts: the first bounces back inside the band, the second drifts.
	var rates []float64
	rates = append(rates, alternating(5)...)
	rates = append(rates, 99.0, 100.0)
	rates = append(rates, alternating(20)...)
	rates = append(rates, 99.0)
	rates = append(rates, repeat(99.05, 40)...)
	pts := minuteSeries(rates)
	at := pts[len(pts)-1].Timestamp

	tests := []struct {
		name string
		q    Query
		from time.Time
		want Result
	}{
		{
			name: "lower half reverted",
			q:    Query{Side: models.LowerBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: at},
			want: Result{Percent: 50, Matched: 2, Reverted: 1},
		},
		{
			name: "no upper matches",
			q:    Query{Side: models.UpperBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: at},
			want: Result{},
		},
		{
			name: "cutoff before the second breakout",
			q:    Query{Side: models.LowerBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: pts[40].Timestamp},
			want: Result{Percent: 100, Matched: 1, Reverted: 1},
		},
		{
			name: "earlier history only feeds the windows",
			q:    Query{Side: models.LowerBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: at},
			from: pts[12].Timestamp,
			want: Result{Percent: 0, Matched: 1, Reverted: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateSeries(pts, tt.q, tt.from, Horizon, BandWidth)
			if got != tt.want {
				t.Errorf("estimateSeries() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEstimateSeriesUpper(t *testing.T) {
	rates := append(alternating(5), 101.0, 100.0)
	pts := minuteSeries(rates)

	got := estimateSeries(pts, Query{Side: models.UpperBreakout, Deviation: 0.25, Tolerance: 0.03, Window: 10, At: pts[len(pts)-1].Timestamp}, time.Time{}, Horizon, BandWidth)
	if got.Matched != 1 || got.Reverted != 1 || got.Percent != 100 {
		t.Errorf("estimateSeries() = %+v", got)
	}
}

// bruteForce recomputes every window from scratch and scans the horizon directly.
func bruteForce(pts []models.RatePoint, q Query) Result {
	matched, reverted := 0, 0
	for i := q.Window - 1; i < len(pts); i++ {
		if pts[i].Timestamp.After(q.At) {
			continue
		}
		var mean float64
		for _, p := range pts[i-q.Window+1 : i+1] {
			mean += p.Rate
		}
		mean /= float64(q.Window)
		var ss float64
		for _, p := range pts[i-q.Window+1 : i+1] {
			ss += (p.Rate - mean) * (p.Rate - mean)
		}
		std := math.Sqrt(ss / float64(q.Window-1))

		band := mean + BandWidth*std
		dev := pts[i].Rate - band
		if q.Side == models.LowerBreakout {
			band = mean - BandWidth*std
			dev = band - pts[i].Rate
		}
		if dev < q.Deviation-q.Tolerance || dev > q.Deviation+q.Tolerance {
			continue
		}
		matched++
		for j := i + 1; j < len(pts) && !pts[j].Timestamp.After(pts[i].Timestamp.Add(Horizon)); j++ {
			if (q.Side == models.LowerBreakout && pts[j].Rate >= band) || (q.Side == models.UpperBreakout && pts[j].Rate <= band) {
				reverted++
				break
			}
		}
	}
	return newResult(matched, reverted)
}

func TestEstimateSeriesMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rates := make([]float64, 3000)
	r := 1380.0
	for i := range rates {
		r += rng.NormFloat64() * 0.3
		rates[i] = r
	}
	pts := minuteSeries(rates)
	at := pts[len(pts)-1].Timestamp

	for _, side := range []models.BreakoutType{models.LowerBreakout, models.UpperBreakout} {
		for _, dev := range []float64{0.05, 0.2, 0.5} {
			q := Query{Side: side, Deviation: dev, Tolerance: AutoTolerance(dev), Window: 45, At: at}
			got := estimateSeries(pts, q, time.Time{}, Horizon, BandWidth)
			want := bruteForce(pts, q)
			if got != want {
				t.Errorf("%s dev=%v: streaming %+v, brute force %+v", side, dev, got, want)
			}
		}
	}
}

func TestSeriesEstimatorDeterministic(t *testing.T) {
	var rates []float64
	rates = append(rates, alternating(5)...)
	rates = append(rates, 99.0, 100.0)
	pts := minuteSeries(rates)

	e := NewSeriesEstimator(sliceSource(pts), 0)
	q := Query{Side: models.LowerBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: pts[len(pts)-1].Timestamp}

	first, err := e.Estimate(context.Background(), q)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	second, _ := e.Estimate(context.Background(), q)
	if first != second || first.Percent != 100 {
		t.Errorf("estimates differ or wrong: %+v vs %+v", first, second)
	}

	if _, err := e.Estimate(context.Background(), Query{Side: "sideways", Window: 10}); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestSeriesEstimatorWarmsUpBeforeLookback(t *testing.T) {
	var rates []float64
	rates = append(rates, alternating(5)...)
	rates = append(rates, 99.0, 100.0)
	pts := minuteSeries(rates)
	at := pts[len(pts)-1].Timestamp

	// The lookback starts at pts[5], leaving fewer than Window points inside it.
	e := NewSeriesEstimator(sliceSource(pts), at.Sub(pts[5].Timestamp))
	got, err := e.Estimate(context.Background(), Query{Side: models.LowerBreakout, Deviation: 0.275, Tolerance: 0.05, Window: 10, At: at})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got.Matched != 1 || got.Reverted != 1 {
		t.Errorf("Estimate() = %+v, want the breakout at pts[10] matched", got)
	}
}

type countingEstimator struct {
	calls int
}

func (c *countingEstimator) Estimate(context.Context, Query) (Result, error) {
	c.calls++
	return Result{Percent: 62.5, Matched: 8, Reverted: 5}, nil
}

func TestCachedEstimator(t *testing.T) {
	inner := &countingEstimator{}
	e := NewCachedEstimator(inner, cache.NewTTLCache(), time.Minute, zerolog.Nop())
	q := Query{Side: models.UpperBreakout, Deviation: 0.12, Tolerance: 0.03, Window: 45, At: t0}

	for i := 0; i < 3; i++ {
		r, err := e.Estimate(context.Background(), q)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		if r.Percent != 62.5 {
			t.Errorf("Percent = %v", r.Percent)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner estimator called %d times, want 1", inner.calls)
	}

	q.Side = models.LowerBreakout
	e.Estimate(context.Background(), q)
	if inner.calls != 2 {
		t.Errorf("different side should miss the cache")
	}
}

func TestCachedEstimatorBucketsCutoff(t *testing.T) {
	inner := &countingEstimator{}
	e := NewCachedEstimator(inner, cache.NewTTLCache(), time.Minute, zerolog.Nop())
	q := Query{Side: models.LowerBreakout, Deviation: 0.2, Tolerance: 0.03, Window: 45}

	tests := []struct {
		name      string
		at        time.Time
		wantCalls int
	}{
		{"first", t0, 1},
		{"same bucket", t0.Add(30 * time.Second), 1},
		{"next bucket", t0.Add(90 * time.Second), 2},
		{"back to the first bucket", t0.Add(10 * time.Second), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q.At = tt.at
			if _, err := e.Estimate(context.Background(), q); err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if inner.calls != tt.wantCalls {
				t.Errorf("inner calls = %d, want %d", inner.calls, tt.wantCalls)
			}
		})
	}
}

func TestBuildReversionQuery(t *testing.T) {
	lower := buildReversionQuery(models.LowerBreakout, 45)
	upper := buildReversionQuery(models.UpperBreakout, 45)

	for _, q := range []string{lower, upper} {
		if !strings.Contains(q, "ROWS BETWEEN 44 PRECEDING") || !strings.Contains(q, "b.n = 45") {
			t.Errorf("window not interpolated:\n%s", q)
		}
	}
	if !strings.Contains(lower, "LIMIT 44") || !strings.Contains(lower, "AND b.timestamp >= $1::timestamptz") {
		t.Errorf("bands must warm up before the lookback and filter breaks after it:\n%s", lower)
	}
	if !strings.Contains(lower, "r2.rate >= b.band") || !strings.Contains(upper, "r2.rate <= b.band") {
		t.Error("reversion comparison not side specific")
	}
}
