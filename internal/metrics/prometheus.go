// Package metrics exposes watcher and engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Alias1177/RateWatcher/models"
)

const namespace = "ratewatcher"

// Recorder implements engine.Metrics and the watcher's counters using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	suppressed  *prometheus.CounterVec
	gateHolds   *prometheus.CounterVec
	reinforced  *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastRate    *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Total number of processed ticks",
			},
			[]string{"instrument"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Emitted decisions by action and confirmation",
			},
			[]string{"instrument", "action", "confirmed"},
		),
		suppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suppressed_total",
				Help:      "Ticks whose decision was suppressed by cooldown",
			},
			[]string{"instrument"},
		),
		gateHolds: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_holds_total",
				Help:      "Holds forced by the decision gate, by reason",
			},
			[]string{"instrument", "reason"},
		),
		reinforced: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reinforcements_total",
				Help:      "Classifier updates from resolved outcomes",
			},
			[]string{"instrument", "label"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_resolved_total",
				Help:      "Breakout events that reverted within the horizon",
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastRate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_rate",
				Help:      "Last fetched rate for an instrument",
			},
			[]string{"instrument"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) ObserveDecision(instrument string, action models.Action, confirmed bool) {
	c := "false"
	if confirmed {
		c = "true"
	}
	r.decisions.WithLabelValues(instrument, string(action), c).Inc()
}

func (r *Recorder) ObserveGateHold(instrument, reason string) {
	r.gateHolds.WithLabelValues(instrument, reason).Inc()
}

func (r *Recorder) ObserveSuppressed(instrument string) {
	r.suppressed.WithLabelValues(instrument).Inc()
}

func (r *Recorder) ObserveReinforce(instrument string, label models.Action) {
	r.reinforced.WithLabelValues(instrument, string(label)).Inc()
}

// RecordTick counts a processed tick and records its rate.
func (r *Recorder) RecordTick(instrument string, rate float64) {
	r.ticks.WithLabelValues(instrument).Inc()
	r.lastRate.WithLabelValues(instrument).Set(rate)
}

// RecordOutcome counts one resolved breakout.
func (r *Recorder) RecordOutcome(typ models.BreakoutType) {
	r.outcomes.WithLabelValues(string(typ)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records how long op took since start.
func (r *Recorder) RecordLatency(op string, start time.Time) {
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
