package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/engine"
	"github.com/Alias1177/RateWatcher/internal/outcome"
	"github.com/Alias1177/RateWatcher/internal/probability"
	"github.com/Alias1177/RateWatcher/internal/summary"
	"github.com/Alias1177/RateWatcher/models"
)

var tuesday = time.Date(2025, 6, 3, 10, 0, 0, 0, models.KST)

type fakeRates struct {
	rates []float64
	calls int
}

func (f *fakeRates) GetRate(context.Context) (float64, error) {
	if f.calls >= len(f.rates) {
		return 0, errors.New("no more rates")
	}
	r := f.rates[f.calls]
	f.calls++
	return r, nil
}

type fakeRanges struct {
	calls int
}

func (f *fakeRanges) FetchExpectedRange(_ context.Context, day time.Time) (models.ExpectedRange, error) {
	f.calls++
	return models.ExpectedRange{Date: day, Low: 1370, High: 1385, Source: "test"}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	rates     []float64
	points    []models.RatePoint
	breakouts []models.BreakoutEvent
	ranges    []models.ExpectedRange
	decisions []models.DecisionLogEntry
}

func (s *fakeStore) StoreRate(_ context.Context, at time.Time, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, rate)
	s.points = append(s.points, models.RatePoint{Timestamp: at, Rate: rate})
	return nil
}

func (s *fakeStore) RatesSince(_ context.Context, since time.Time) ([]models.RatePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RatePoint
	for _, p := range s.points {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) BreakoutsSince(_ context.Context, since time.Time) ([]models.BreakoutEvent, error) {
	var out []models.BreakoutEvent
	for _, ev := range s.breakouts {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) RecentRates(_ context.Context, limit int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rates) > limit {
		return append([]float64(nil), s.rates[len(s.rates)-limit:]...), nil
	}
	return append([]float64(nil), s.rates...), nil
}

func (s *fakeStore) StoreExpectedRange(_ context.Context, r models.ExpectedRange) error {
	s.ranges = append(s.ranges, r)
	return nil
}

func (s *fakeStore) ExpectedRangeFor(_ context.Context, day time.Time) (*models.ExpectedRange, error) {
	for i := len(s.ranges) - 1; i >= 0; i-- {
		if models.SameDay(s.ranges[i].Date, day) {
			r := s.ranges[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) LogDecision(_ context.Context, e models.DecisionLogEntry) error {
	s.decisions = append(s.decisions, e)
	return nil
}

type fakeNotifier struct {
	decisions []models.DecisionResult
	signals   [][]models.StructuredSignal
	outcomes  []models.OutcomeSummary
	ranges    []models.ExpectedRange
	summaries []summary.Summary
	streaks   []models.StreakAdvisory
	admin     []string
}

func (f *fakeNotifier) NotifyDecision(_ context.Context, d models.DecisionResult) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeNotifier) NotifySignals(_ context.Context, s []models.StructuredSignal) error {
	f.signals = append(f.signals, s)
	return nil
}

func (f *fakeNotifier) NotifyOutcome(_ context.Context, s models.OutcomeSummary) error {
	f.outcomes = append(f.outcomes, s)
	return nil
}

func (f *fakeNotifier) NotifyRange(_ context.Context, r models.ExpectedRange) error {
	f.ranges = append(f.ranges, r)
	return nil
}

func (f *fakeNotifier) NotifySummary(_ context.Context, s summary.Summary) error {
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeNotifier) NotifyStreak(_ context.Context, a models.StreakAdvisory) error {
	f.streaks = append(f.streaks, a)
	return nil
}

func (f *fakeNotifier) NotifyStart(context.Context, time.Duration) error { return nil }

func (f *fakeNotifier) Admin(_ context.Context, text string) error {
	f.admin = append(f.admin, text)
	return nil
}

type fakeMetrics struct {
	ticks    int
	outcomes int
	errors   []string
}

func (f *fakeMetrics) RecordTick(string, float64)         { f.ticks++ }
func (f *fakeMetrics) RecordOutcome(models.BreakoutType) { f.outcomes++ }
func (f *fakeMetrics) RecordError(kind string)           { f.errors = append(f.errors, kind) }

type fakeEstimator struct {
	err error
}

func (f fakeEstimator) Estimate(context.Context, probability.Query) (probability.Result, error) {
	return probability.Result{}, f.err
}

type recordingEngine struct {
	*engine.Engine
	reinforced []models.Action
}

func (e *recordingEngine) Reinforce(at time.Time, label models.Action) bool {
	ok := e.Engine.Reinforce(at, label)
	if ok {
		e.reinforced = append(e.reinforced, label)
	}
	return ok
}

type fixture struct {
	w        *Watcher
	rates    *fakeRates
	ranges   *fakeRanges
	store    *fakeStore
	events   *outcome.MemoryStore
	tracker  *outcome.Tracker
	engine   *recordingEngine
	notifier *fakeNotifier
	metrics  *fakeMetrics
}

func newFixture(history []float64, fetched ...float64) *fixture {
	return buildFixture(fakeEstimator{}, func(*Config) {}, history, fetched)
}

func buildFixture(est probability.Estimator, configure func(*Config), history, fetched []float64) *fixture {
	f := &fixture{
		rates:    &fakeRates{rates: fetched},
		ranges:   &fakeRanges{},
		store:    &fakeStore{rates: append([]float64(nil), history...)},
		events:   outcome.NewMemoryStore(),
		engine:   &recordingEngine{Engine: engine.New("USDKRW")},
		notifier: &fakeNotifier{},
		metrics:  &fakeMetrics{},
	}
	f.tracker = outcome.NewTracker(f.events, zerolog.Nop())
	cfg := Config{
		Instrument:     "USDKRW",
		Interval:       200 * time.Second,
		MovingAverage:  45,
		ShortPeriod:    90,
		LongPeriod:     306,
		JumpThreshold:  1.0,
		ATRPeriod:      14,
		EventWindow:    10 * time.Minute,
		OnlineLearning: true,
	}
	configure(&cfg)
	f.w = New(cfg, Deps{
		Rates:     f.rates,
		Ranges:    f.ranges,
		Store:     f.store,
		Tracker:   f.tracker,
		Estimator: est,
		Engine:    f.engine,
		Notifier:  f.notifier,
		Metrics:   f.metrics,
		Logger:    zerolog.Nop(),
	})
	return f
}

func TestTickSkipsWeekend(t *testing.T) {
	f := newFixture(nil, 1380)
	saturday := time.Date(2025, 6, 7, 10, 0, 0, 0, models.KST)

	if err := f.w.Tick(context.Background(), saturday); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if f.rates.calls != 0 {
		t.Errorf("fetched %d rates on a weekend", f.rates.calls)
	}
}

func TestTickStoresAndLogs(t *testing.T) {
	f := newFixture(nil, 1380.25)

	if err := f.w.Tick(context.Background(), tuesday); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(f.store.rates) != 1 || f.store.rates[0] != 1380.25 {
		t.Errorf("stored rates = %v", f.store.rates)
	}
	if len(f.store.decisions) != 1 || f.store.decisions[0].Action != models.ActionHold {
		t.Fatalf("decisions = %+v", f.store.decisions)
	}
	if f.store.decisions[0].Rate != 1380.25 {
		t.Errorf("logged rate = %v", f.store.decisions[0].Rate)
	}
	if len(f.notifier.signals)+len(f.notifier.decisions) != 0 {
		t.Error("expected no messages without active signals")
	}
	if st := f.w.Status(); st.LastRate != 1380.25 || !st.LastTick.Equal(tuesday) {
		t.Errorf("status = %+v", st)
	}
	if f.metrics.ticks != 1 {
		t.Errorf("ticks = %d", f.metrics.ticks)
	}
}

func TestTickSingleSignalSendsSignalMessage(t *testing.T) {
	f := newFixture([]float64{1380, 1380, 1380, 1380}, 1382)

	if err := f.w.Tick(context.Background(), tuesday); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(f.notifier.signals) != 1 || len(f.notifier.signals[0]) != 1 {
		t.Fatalf("signal messages = %+v", f.notifier.signals)
	}
	s := f.notifier.signals[0][0]
	if s.Key != "jump" || s.Direction != models.DirectionUp {
		t.Errorf("signal = %+v", s)
	}
	if len(f.notifier.decisions) != 0 {
		t.Error("decision message sent for a single signal")
	}
}

func TestTickFetchErrorIsCounted(t *testing.T) {
	f := newFixture(nil)

	if err := f.w.Tick(context.Background(), tuesday); err == nil {
		t.Fatal("expected error")
	}
	if len(f.metrics.errors) != 1 || f.metrics.errors[0] != "fetch_rate" {
		t.Errorf("errors = %v", f.metrics.errors)
	}
}

func TestScrapeOncePerDay(t *testing.T) {
	f := newFixture(nil, 1380, 1380.5, 1381)
	at := time.Date(2025, 6, 3, 11, 5, 0, 0, models.KST)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.w.Tick(ctx, at.Add(time.Duration(i)*200*time.Second)); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	if f.ranges.calls != 1 {
		t.Errorf("scraped %d times, want 1", f.ranges.calls)
	}
	if len(f.store.ranges) != 1 || len(f.notifier.ranges) != 1 {
		t.Errorf("stored %d ranges, notified %d", len(f.store.ranges), len(f.notifier.ranges))
	}
}

func TestResolvedBreakoutReinforces(t *testing.T) {
	f := newFixture(nil, 1380.0, 1381.5)
	ctx := context.Background()

	if err := f.w.Tick(ctx, tuesday); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if _, err := f.tracker.Record(ctx, models.LowerBreakout, tuesday, 1381.0, 1381.0, 62.5); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := f.w.Tick(ctx, tuesday.Add(200*time.Second)); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	if len(f.notifier.outcomes) != 1 || len(f.notifier.outcomes[0].Resolved) != 1 {
		t.Fatalf("outcomes = %+v", f.notifier.outcomes)
	}
	if len(f.engine.reinforced) != 1 || f.engine.reinforced[0] != models.ActionBuy {
		t.Errorf("reinforced = %v, want [buy]", f.engine.reinforced)
	}
	if f.metrics.outcomes != 1 {
		t.Errorf("outcome metric = %d", f.metrics.outcomes)
	}
	if ev := f.events.Events(); !ev[0].Resolved {
		t.Error("event not marked resolved")
	}
}

func TestEstimatorFailureStillDecides(t *testing.T) {
	history := make([]float64, 44)
	for i := range history {
		history[i] = 1379.9
		if i%2 == 1 {
			history[i] = 1380.1
		}
	}
	f := buildFixture(fakeEstimator{err: errors.New("history store unavailable")}, func(*Config) {}, history, []float64{1370})

	if err := f.w.Tick(context.Background(), tuesday); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(f.metrics.errors) != 1 || f.metrics.errors[0] != "bollinger" {
		t.Errorf("errors = %v, want [bollinger]", f.metrics.errors)
	}
	if len(f.store.decisions) != 1 {
		t.Fatalf("decisions logged = %d, want 1", len(f.store.decisions))
	}
	if len(f.events.Events()) != 0 {
		t.Error("breakout recorded without an estimate")
	}
	if len(f.notifier.signals) != 1 || f.notifier.signals[0][0].Key != "jump" || f.notifier.signals[0][0].Direction != models.DirectionDown {
		t.Errorf("signal messages = %+v", f.notifier.signals)
	}
	if st := f.engine.State(); st.Last == nil {
		t.Error("engine produced no result")
	}
}

func TestTickSendsBlockSummaryOnce(t *testing.T) {
	f := newFixture(nil, 1379.8, 1379.9)
	blockStart := time.Date(2025, 6, 3, 9, 30, 0, 0, models.KST)
	f.store.points = []models.RatePoint{
		{Timestamp: blockStart.Add(-time.Minute), Rate: 1375},
		{Timestamp: blockStart.Add(time.Minute), Rate: 1379},
		{Timestamp: blockStart.Add(10 * time.Minute), Rate: 1380.2},
		{Timestamp: blockStart.Add(20 * time.Minute), Rate: 1379.6},
	}
	f.store.breakouts = []models.BreakoutEvent{
		{Type: models.LowerBreakout, Timestamp: blockStart.Add(15 * time.Minute), Threshold: 1379.1},
	}
	ctx := context.Background()

	for _, at := range []time.Time{tuesday.Add(time.Minute), tuesday.Add(2 * time.Minute)} {
		if err := f.w.Tick(ctx, at); err != nil {
			t.Fatalf("Tick at %v: %v", at, err)
		}
	}

	if len(f.notifier.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(f.notifier.summaries))
	}
	s := f.notifier.summaries[0]
	if !s.Start.Equal(blockStart) || !s.End.Equal(tuesday) {
		t.Errorf("block = %v ~ %v", s.Start, s.End)
	}
	if s.Open != 1379 || s.Close != 1379.6 || s.High != 1380.2 || s.Low != 1379 {
		t.Errorf("ohlc = %v/%v/%v/%v", s.Open, s.High, s.Low, s.Close)
	}
	if s.Trend != summary.TrendUp || len(s.Events) != 1 {
		t.Errorf("trend = %s, events = %+v", s.Trend, s.Events)
	}
	if st := f.w.Status(); !st.LastSummary.Equal(tuesday) || !st.MarketOpen {
		t.Errorf("status = %+v", st)
	}
}

func TestTickSkipsSummaryAwayFromBoundary(t *testing.T) {
	f := newFixture(nil, 1380)
	f.store.points = []models.RatePoint{{Timestamp: tuesday.Add(-10 * time.Minute), Rate: 1379}}

	if err := f.w.Tick(context.Background(), tuesday.Add(10*time.Minute)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(f.notifier.summaries) != 0 {
		t.Errorf("summary sent mid block: %+v", f.notifier.summaries)
	}
}

func TestRepeatedUpperBreakoutsRaiseStreakAdvisory(t *testing.T) {
	var fetched []float64
	for i := 0; i < 5; i++ {
		fetched = append(fetched, 1382)
		if i < 4 {
			for j := 0; j < 10; j++ {
				fetched = append(fetched, 1380)
			}
		}
	}
	history := []float64{1380, 1380, 1380, 1380, 1380, 1380, 1380, 1380, 1380, 1380}
	f := buildFixture(fakeEstimator{}, func(c *Config) { c.MovingAverage = 10 }, history, fetched)
	ctx := context.Background()

	for i := range fetched {
		if err := f.w.Tick(ctx, tuesday.Add(time.Duration(i)*200*time.Second)); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	if len(f.notifier.streaks) != 1 {
		t.Fatalf("streak advisories = %+v, want one", f.notifier.streaks)
	}
	adv := f.notifier.streaks[0]
	if adv.Side != models.UpperBreakout || adv.Streak != 5 || adv.Level != 3 {
		t.Errorf("advisory = %+v", adv)
	}
	if n := len(f.events.Events()); n != 5 {
		t.Errorf("recorded %d breakouts, want 5", n)
	}
}
