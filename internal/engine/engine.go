// Package engine fuses one instrument's indicator signals into a single decision per tick.
package engine

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/internal/classifier"
	"github.com/Alias1177/RateWatcher/internal/features"
	"github.com/Alias1177/RateWatcher/internal/gate"
	"github.com/Alias1177/RateWatcher/internal/signal"
	"github.com/Alias1177/RateWatcher/internal/stability"
	"github.com/Alias1177/RateWatcher/models"
)

// Predictor is the learned part of the pipeline.
type Predictor interface {
	Predict(f models.FeatureVector) (models.Action, models.Probabilities)
	Update(f models.FeatureVector, label models.Action)
}

// Metrics receives decision outcomes.
type Metrics interface {
	ObserveDecision(instrument string, action models.Action, confirmed bool)
	ObserveGateHold(instrument, reason string)
	ObserveSuppressed(instrument string)
	ObserveReinforce(instrument string, label models.Action)
}

// EvidenceWeights rank signals when picking the evidence shown with a decision.
var EvidenceWeights = map[string]float64{
	"boll":     0.30,
	"cross":    0.35,
	"jump":     0.20,
	"expected": 0.15,
}

const maxEvidence = 3

// Tick is everything the engine needs for one evaluation.
type Tick struct {
	Time      time.Time
	Price     float64
	ATR       float64
	NearEvent bool
	Signals   []models.RawSignal
}

type snapshot struct {
	at       time.Time
	features models.FeatureVector
}

// Engine holds the per-instrument state. OnTick must not be called concurrently.
type Engine struct {
	instrument string
	normalizer *signal.Normalizer
	predictor  Predictor
	gateCfg    gate.Config
	stability  *stability.Controller
	metrics    Metrics
	logger     zerolog.Logger
	retention  time.Duration

	mu        sync.RWMutex
	snapshots []snapshot
	last      *models.DecisionResult
}

type Option func(*Engine)

func WithPredictor(p Predictor) Option {
	return func(e *Engine) { e.predictor = p }
}

func WithNormalizer(n *signal.Normalizer) Option {
	return func(e *Engine) { e.normalizer = n }
}

func WithGateConfig(cfg gate.Config) Option {
	return func(e *Engine) { e.gateCfg = cfg }
}

func WithStabilityConfig(cfg stability.Config) Option {
	return func(e *Engine) { e.stability = stability.New(cfg) }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRetention sets how long feature snapshots are kept for Reinforce.
func WithRetention(d time.Duration) Option {
	return func(e *Engine) { e.retention = d }
}

func New(instrument string, opts ...Option) *Engine {
	e := &Engine{
		instrument: instrument,
		normalizer: signal.NewNormalizer(nil),
		predictor:  classifier.New(),
		gateCfg:    gate.DefaultConfig(),
		stability:  stability.New(stability.DefaultConfig()),
		metrics:    nopMetrics{},
		logger:     zerolog.Nop(),
		retention:  time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "engine").Str("instrument", instrument).Logger()
	return e
}

// OnTick evaluates one tick. ok is false only when the decision was
// suppressed by the cooldown; every other tick yields a result.
func (e *Engine) OnTick(t Tick) (models.DecisionResult, bool) {
	signals := e.normalizer.NormalizeAll(t.Signals)
	f := features.Build(signals)
	e.remember(t.Time, f)

	predicted, probs := e.predictor.Predict(f)
	ctx := gate.PriceContext{
		Price:            t.Price,
		ATR:              t.ATR,
		NearEvent:        t.NearEvent,
		PrevSameDecision: e.stability.PrevCandidate() == predicted,
	}
	candidate, reason := gate.Decide(signals, probs, ctx, e.gateCfg)

	e.logger.Debug().
		Str("predicted", string(predicted)).
		Str("candidate", string(candidate)).
		Str("reason", reason).
		Float64("p_buy", probs[models.ActionBuy]).
		Float64("p_sell", probs[models.ActionSell]).
		Float64("p_hold", probs[models.ActionHold]).
		Msg("gate evaluated")

	if candidate == models.ActionHold {
		e.metrics.ObserveGateHold(e.instrument, reason)
	}

	out := e.stability.Apply(candidate, reason, probs, t.Time)
	if out.Suppressed {
		e.metrics.ObserveSuppressed(e.instrument)
		e.logger.Debug().Str("action", string(out.Action)).Msg("decision suppressed by cooldown")
		return models.DecisionResult{}, false
	}

	result := models.DecisionResult{
		Instrument:    e.instrument,
		Time:          t.Time,
		Action:        out.Action,
		Confirmed:     out.Confirmed,
		Pending:       out.Pending,
		Score:         score(out.Action, probs),
		Reason:        out.Reason,
		Evidence:      evidence(signals, out),
		Probabilities: probs,
		Features:      f,
		Signals:       sortedSignals(signals),
	}

	e.metrics.ObserveDecision(e.instrument, result.Action, result.Confirmed)

	e.mu.Lock()
	e.last = &result
	e.mu.Unlock()

	return result, true
}

// Reinforce trains the predictor with the features seen at or just before at.
// It reports false when no snapshot covers that time.
func (e *Engine) Reinforce(at time.Time, label models.Action) bool {
	e.mu.RLock()
	var f models.FeatureVector
	for i := len(e.snapshots) - 1; i >= 0; i-- {
		if !e.snapshots[i].at.After(at) {
			f = e.snapshots[i].features
			break
		}
	}
	e.mu.RUnlock()

	if f == nil {
		return false
	}
	e.predictor.Update(f, label)
	e.metrics.ObserveReinforce(e.instrument, label)
	e.logger.Info().Time("at", at).Str("label", string(label)).Msg("classifier reinforced")
	return true
}

// State is a read-only view for the ops endpoint.
type State struct {
	Instrument string                 `json:"instrument"`
	Stability  stability.State        `json:"stability"`
	Last       *models.DecisionResult `json:"last,omitempty"`
	Snapshots  int                    `json:"snapshots"`
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := State{
		Instrument: e.instrument,
		Stability:  e.stability.State(),
		Snapshots:  len(e.snapshots),
	}
	if e.last != nil {
		last := *e.last
		st.Last = &last
	}
	return st
}

func (e *Engine) remember(at time.Time, f models.FeatureVector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snapshots = append(e.snapshots, snapshot{at: at, features: f.Clone()})

	cutoff := at.Add(-e.retention)
	drop := 0
	for drop < len(e.snapshots) && e.snapshots[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		e.snapshots = append(e.snapshots[:0], e.snapshots[drop:]...)
	}
}

func score(action models.Action, probs models.Probabilities) int {
	p := math.Round(100 * probs[action])
	return int(math.Max(0, math.Min(100, p)))
}

func evidence(signals map[string]models.StructuredSignal, out stability.Outcome) []string {
	type contrib struct {
		weight float64
		key    string
		text   string
	}

	var cs []contrib
	for key, s := range signals {
		if s.Evidence == "" {
			continue
		}
		w := EvidenceWeights[key] * math.Abs(float64(s.Direction)) * s.Confidence
		cs = append(cs, contrib{weight: w, key: key, text: s.Evidence})
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].weight != cs[j].weight {
			return cs[i].weight > cs[j].weight
		}
		return cs[i].key < cs[j].key
	})

	var lines []string
	if out.Action == models.ActionHold && out.Reason != "" {
		lines = append(lines, out.Reason)
	}
	for i := 0; i < len(cs) && i < maxEvidence; i++ {
		lines = append(lines, cs[i].text)
	}
	return lines
}

func sortedSignals(signals map[string]models.StructuredSignal) []models.StructuredSignal {
	out := make([]models.StructuredSignal, 0, len(signals))
	for _, s := range signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type nopMetrics struct{}

func (nopMetrics) ObserveDecision(string, models.Action, bool) {}
func (nopMetrics) ObserveGateHold(string, string)              {}
func (nopMetrics) ObserveSuppressed(string)                    {}
func (nopMetrics) ObserveReinforce(string, models.Action)      {}
