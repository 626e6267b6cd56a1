// Package watcher runs the polling loop that feeds rates through the
// indicators and the decision engine.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/engine"
	"github.com/Alias1177/RateWatcher/internal/indicators"
	"github.com/Alias1177/RateWatcher/internal/outcome"
	"github.com/Alias1177/RateWatcher/internal/probability"
	"github.com/Alias1177/RateWatcher/internal/summary"
	"github.com/Alias1177/RateWatcher/models"
)

// Store is the persistence the loop needs.
type Store interface {
	StoreRate(ctx context.Context, at time.Time, rate float64) error
	RecentRates(ctx context.Context, limit int) ([]float64, error)
	RatesSince(ctx context.Context, since time.Time) ([]models.RatePoint, error)
	BreakoutsSince(ctx context.Context, since time.Time) ([]models.BreakoutEvent, error)
	StoreExpectedRange(ctx context.Context, r models.ExpectedRange) error
	ExpectedRangeFor(ctx context.Context, day time.Time) (*models.ExpectedRange, error)
	LogDecision(ctx context.Context, e models.DecisionLogEntry) error
}

// Tracker resolves recorded breakouts and records new ones.
type Tracker interface {
	indicators.BreakoutRecorder
	CheckResolutions(ctx context.Context, rate float64, now time.Time) (*models.OutcomeSummary, error)
}

// Engine is the per-instrument decision engine.
type Engine interface {
	OnTick(t engine.Tick) (models.DecisionResult, bool)
	Reinforce(at time.Time, label models.Action) bool
	State() engine.State
}

type Notifier interface {
	NotifyDecision(ctx context.Context, d models.DecisionResult) error
	NotifySignals(ctx context.Context, signals []models.StructuredSignal) error
	NotifyOutcome(ctx context.Context, summary models.OutcomeSummary) error
	NotifyRange(ctx context.Context, r models.ExpectedRange) error
	NotifySummary(ctx context.Context, s summary.Summary) error
	NotifyStreak(ctx context.Context, a models.StreakAdvisory) error
	NotifyStart(ctx context.Context, interval time.Duration) error
	Admin(ctx context.Context, text string) error
}

type Metrics interface {
	RecordTick(instrument string, rate float64)
	RecordOutcome(typ models.BreakoutType)
	RecordError(kind string)
}

type Config struct {
	Instrument     string
	Interval       time.Duration
	MovingAverage  int
	ShortPeriod    int
	LongPeriod     int
	JumpThreshold  float64
	JumpCooldown   time.Duration
	ATRPeriod      int
	MarketEvents   []models.ClockTime
	EventWindow    time.Duration
	OnlineLearning bool
	// Local keeps the loop running on weekends.
	Local bool
}

// Deps are the collaborators the watcher drives.
type Deps struct {
	Rates     models.RateClient
	Ranges    models.RangeClient
	Store     Store
	Tracker   Tracker
	Estimator probability.Estimator
	Engine    Engine
	Notifier  Notifier
	Metrics   Metrics
	Logger    zerolog.Logger
}

type Watcher struct {
	cfg  Config
	deps Deps

	bollinger *indicators.Bollinger
	crossover *indicators.Crossover
	jump      *indicators.Jump
	expected  *indicators.ExpectedRange

	mu          sync.RWMutex
	lastScraped time.Time
	lastSummary time.Time
	lastRate    float64
	lastTick    time.Time
}

func New(cfg Config, deps Deps) *Watcher {
	if cfg.JumpCooldown == 0 {
		cfg.JumpCooldown = 10 * time.Minute
	}
	deps.Logger = deps.Logger.With().Str("component", "watcher").Str("instrument", cfg.Instrument).Logger()

	return &Watcher{
		cfg:       cfg,
		deps:      deps,
		bollinger: indicators.NewBollinger(cfg.MovingAverage, deps.Estimator, deps.Tracker),
		crossover: indicators.NewCrossover(cfg.ShortPeriod, cfg.LongPeriod),
		jump:      indicators.NewJump(cfg.JumpThreshold, cfg.ATRPeriod, cfg.JumpCooldown),
		expected:  indicators.NewExpectedRange(),
	}
}

// Run ticks every Interval until ctx is done. Tick errors are logged and
// counted; the loop keeps going.
func (w *Watcher) Run(ctx context.Context) error {
	w.deps.Logger.Info().Dur("interval", w.cfg.Interval).Msg("watcher started")
	if err := w.deps.Notifier.NotifyStart(ctx, w.cfg.Interval); err != nil {
		w.deps.Logger.Warn().Err(err).Msg("start message failed")
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx, time.Now()); err != nil {
			w.deps.Logger.Error().Err(err).Msg("tick failed")
		}

		select {
		case <-ctx.Done():
			w.deps.Logger.Info().Msg("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full evaluation at now.
func (w *Watcher) Tick(ctx context.Context, now time.Time) error {
	if !w.cfg.Local && models.IsWeekend(now) {
		w.deps.Logger.Debug().Msg("weekend, skipping tick")
		return nil
	}

	if models.IsScrapeTime(now, w.scrapedAt()) {
		w.scrapeRange(ctx, now)
	}

	rate, err := w.deps.Rates.GetRate(ctx)
	if err != nil {
		w.deps.Metrics.RecordError("fetch_rate")
		return fmt.Errorf("fetching rate: %w", err)
	}
	if err := w.deps.Store.StoreRate(ctx, now, rate); err != nil {
		w.deps.Metrics.RecordError("store_rate")
		return fmt.Errorf("storing rate: %w", err)
	}
	w.deps.Metrics.RecordTick(w.cfg.Instrument, rate)
	w.mu.Lock()
	w.lastRate, w.lastTick = rate, now
	w.mu.Unlock()

	rates, err := w.deps.Store.RecentRates(ctx, w.cfg.LongPeriod)
	if err != nil {
		w.deps.Metrics.RecordError("load_rates")
		return fmt.Errorf("loading recent rates: %w", err)
	}

	w.resolveOutcomes(ctx, rate, now)

	signals := w.signals(ctx, rates, rate, now)

	var notifyErr error
	result, ok := w.deps.Engine.OnTick(engine.Tick{
		Time:      now,
		Price:     rate,
		ATR:       indicators.ATR(rates, w.cfg.ATRPeriod),
		NearEvent: models.NearEvent(now, w.cfg.MarketEvents, w.cfg.EventWindow),
		Signals:   signals,
	})
	if ok {
		notifyErr = w.decide(ctx, result, rate)
	}

	w.adviseStreak(ctx, signals)
	w.summarize(ctx, now)
	return notifyErr
}

// decide persists and announces one engine result.
func (w *Watcher) decide(ctx context.Context, result models.DecisionResult, rate float64) error {
	if err := w.deps.Store.LogDecision(ctx, models.DecisionLogEntry{
		Instrument:    result.Instrument,
		Time:          result.Time,
		Rate:          rate,
		Action:        result.Action,
		Confirmed:     result.Confirmed,
		Score:         result.Score,
		Reason:        result.Reason,
		Probabilities: result.Probabilities,
		Features:      result.Features,
	}); err != nil {
		w.deps.Metrics.RecordError("log_decision")
		w.deps.Logger.Error().Err(err).Msg("failed to log decision")
	}

	w.deps.Logger.Info().
		Float64("rate", rate).
		Str("action", string(result.Action)).
		Bool("confirmed", result.Confirmed).
		Int("score", result.Score).
		Str("reason", result.Reason).
		Msg("decision")

	return w.notify(ctx, result)
}

// signals runs every indicator. A Bollinger failure leaves its signal empty
// and the rest of the tick goes ahead.
func (w *Watcher) signals(ctx context.Context, rates []float64, rate float64, now time.Time) []models.RawSignal {
	boll, err := w.bollinger.Analyze(ctx, rates, now)
	if err != nil {
		w.deps.Metrics.RecordError("bollinger")
		w.deps.Logger.Error().Err(err).Msg("bollinger analysis failed")
		boll = models.RawSignal{Key: indicators.BollingerKey}
	}

	rng, err := w.deps.Store.ExpectedRangeFor(ctx, now)
	if err != nil {
		w.deps.Metrics.RecordError("load_range")
		w.deps.Logger.Warn().Err(err).Msg("expected range unavailable")
		rng = nil
	}

	return []models.RawSignal{
		boll,
		w.crossover.Analyze(rates),
		w.jump.Analyze(rates, now),
		w.expected.Analyze(rate, rng, now),
	}
}

// adviseStreak warns when a fresh breakout extends a same-side streak to an alert level.
func (w *Watcher) adviseStreak(ctx context.Context, signals []models.RawSignal) {
	var boll, cross, jump models.RawSignal
	for _, s := range signals {
		switch s.Key {
		case indicators.BollingerKey:
			boll = s
		case indicators.CrossoverKey:
			cross = s
		case indicators.JumpKey:
			jump = s
		}
	}
	if boll.Structured == nil {
		return
	}

	side := w.bollinger.Status()
	upper, lower := w.bollinger.Streaks()
	streak := upper
	if side == models.LowerBreakout {
		streak = lower
	}

	adv, ok := indicators.CheckStreak(side, streak, cross, jump)
	if !ok {
		return
	}
	w.deps.Logger.Info().Str("side", string(adv.Side)).Int("streak", adv.Streak).Msg("breakout streak")
	if err := w.deps.Notifier.NotifyStreak(ctx, adv); err != nil {
		w.deps.Metrics.RecordError("notify")
		w.deps.Logger.Error().Err(err).Msg("sending streak advisory")
	}
}

// summarize sends the recap of the half-hour block that ends near now, once per block.
func (w *Watcher) summarize(ctx context.Context, now time.Time) {
	start, end, due := models.CompletedBlock(now)
	if !due {
		return
	}
	w.mu.RLock()
	sent := w.lastSummary.Equal(end)
	w.mu.RUnlock()
	if sent {
		return
	}

	points, err := w.deps.Store.RatesSince(ctx, start)
	if err != nil {
		w.deps.Metrics.RecordError("summary")
		w.deps.Logger.Error().Err(err).Msg("loading rates for summary")
		return
	}
	events, err := w.deps.Store.BreakoutsSince(ctx, start)
	if err != nil {
		w.deps.Metrics.RecordError("summary")
		w.deps.Logger.Warn().Err(err).Msg("breakouts unavailable for summary")
		events = nil
	}

	s, ok := summary.Build(start, end, points, events)
	if !ok {
		w.deps.Logger.Debug().Time("block_end", end).Msg("no rates in block, summary skipped")
		return
	}
	if err := w.deps.Notifier.NotifySummary(ctx, s); err != nil {
		w.deps.Metrics.RecordError("notify")
		w.deps.Logger.Error().Err(err).Msg("sending summary")
		return
	}

	w.mu.Lock()
	w.lastSummary = end
	w.mu.Unlock()
}

// notify sends per-signal messages when one indicator fired alone and the
// combined decision when several did.
func (w *Watcher) notify(ctx context.Context, result models.DecisionResult) error {
	active := result.ActiveSignals()
	switch {
	case len(active) == 0:
		return nil
	case len(active) == 1:
		if err := w.deps.Notifier.NotifySignals(ctx, active); err != nil {
			w.deps.Metrics.RecordError("notify")
			return fmt.Errorf("sending signal: %w", err)
		}
	default:
		if err := w.deps.Notifier.NotifyDecision(ctx, result); err != nil {
			w.deps.Metrics.RecordError("notify")
			return fmt.Errorf("sending decision: %w", err)
		}
	}
	return nil
}

func (w *Watcher) resolveOutcomes(ctx context.Context, rate float64, now time.Time) {
	summary, err := w.deps.Tracker.CheckResolutions(ctx, rate, now)
	if err != nil {
		w.deps.Metrics.RecordError("outcomes")
		w.deps.Logger.Error().Err(err).Msg("checking breakout resolutions")
		return
	}
	if summary == nil {
		return
	}

	for _, r := range summary.Resolved {
		w.deps.Metrics.RecordOutcome(r.Event.Type)
		if w.cfg.OnlineLearning && !w.deps.Engine.Reinforce(r.Event.Timestamp, outcome.Label(r.Event.Type)) {
			w.deps.Logger.Debug().Int64("id", r.Event.ID).Msg("no feature snapshot for resolved breakout")
		}
	}

	if err := w.deps.Notifier.NotifyOutcome(ctx, *summary); err != nil {
		w.deps.Metrics.RecordError("notify")
		w.deps.Logger.Error().Err(err).Msg("sending outcome summary")
	}
}

func (w *Watcher) scrapeRange(ctx context.Context, now time.Time) {
	rng, err := w.deps.Ranges.FetchExpectedRange(ctx, now)
	if err != nil {
		w.deps.Metrics.RecordError("scrape_range")
		w.deps.Logger.Warn().Err(err).Msg("expected range scrape failed")
		if adminErr := w.deps.Notifier.Admin(ctx, fmt.Sprintf("⚠️ Expected range scrape failed: %v", err)); adminErr != nil {
			w.deps.Logger.Warn().Err(adminErr).Msg("admin message failed")
		}
		return
	}

	if err := w.deps.Store.StoreExpectedRange(ctx, rng); err != nil {
		w.deps.Metrics.RecordError("store_range")
		w.deps.Logger.Error().Err(err).Msg("storing expected range")
		return
	}

	w.mu.Lock()
	w.lastScraped = now
	w.mu.Unlock()

	if err := w.deps.Notifier.NotifyRange(ctx, rng); err != nil {
		w.deps.Metrics.RecordError("notify")
		w.deps.Logger.Error().Err(err).Msg("sending expected range")
	}
}

func (w *Watcher) scrapedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastScraped
}

// Status is what the ops endpoint reports.
type Status struct {
	Engine      engine.State `json:"engine"`
	LastRate    float64      `json:"last_rate"`
	LastTick    time.Time    `json:"last_tick"`
	LastScraped time.Time    `json:"last_scraped"`
	LastSummary time.Time    `json:"last_summary"`
	MarketOpen  bool         `json:"market_open"`
}

func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		Engine:      w.deps.Engine.State(),
		LastRate:    w.lastRate,
		LastTick:    w.lastTick,
		LastScraped: w.lastScraped,
		LastSummary: w.lastSummary,
		MarketOpen:  !w.lastTick.IsZero() && models.IsMarketOpen(w.lastTick),
	}
}
