package models

import (
	"fmt"
	"time"
)

// Action is the decision emitted for an instrument on a tick
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Actions lists the classes in tie-breaking order.
var Actions = []Action{ActionBuy, ActionSell, ActionHold}

// Directional reports whether the action is buy or sell.
func (a Action) Directional() bool {
	return a == ActionBuy || a == ActionSell
}

// Direction is the sign of an indicator reading: -1, 0 or +1
type Direction int

const (
	DirectionDown    Direction = -1
	DirectionNeutral Direction = 0
	DirectionUp      Direction = 1
)

// StructuredSignal is the normalized output of one indicator for one tick.
type StructuredSignal struct {
	Key        string             `json:"key"`
	Direction  Direction          `json:"direction"`
	Confidence float64            `json:"confidence"`
	Evidence   string             `json:"evidence"`
	Meta       map[string]float64 `json:"meta,omitempty"`
}

// Active reports whether the signal takes part in voting.
func (s StructuredSignal) Active() bool {
	return s.Direction != DirectionNeutral && s.Confidence > 0
}

// Validate checks the direction and confidence contract.
func (s StructuredSignal) Validate() error {
	if s.Direction < DirectionDown || s.Direction > DirectionUp {
		return fmt.Errorf("signal %q: direction %d out of range", s.Key, s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 1 || s.Confidence != s.Confidence {
		return fmt.Errorf("signal %q: confidence %v out of [0,1]", s.Key, s.Confidence)
	}
	return nil
}

// RawSignal is what an indicator hands to the normalizer: either a structured
// payload or a free-text message.
type RawSignal struct {
	Key        string
	Structured *StructuredSignal
	Text       string
}

// Empty reports whether the raw signal carries nothing to normalize.
func (r RawSignal) Empty() bool {
	return r.Structured == nil && r.Text == ""
}

// FeatureVector maps feature names to values.
type FeatureVector map[string]float64

// Clone returns a copy that can be kept past the tick.
func (f FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Probabilities is a distribution over buy/sell/hold.
type Probabilities map[Action]float64

// Top returns the most probable action, ties resolved in Actions order.
func (p Probabilities) Top() (Action, float64) {
	best, bestProb := ActionHold, -1.0
	for _, a := range Actions {
		if p[a] > bestProb {
			best, bestProb = a, p[a]
		}
	}
	return best, bestProb
}

// DecisionResult is what the engine emits per tick
type DecisionResult struct {
	Instrument    string             `json:"instrument"`
	Time          time.Time          `json:"time"`
	Action        Action             `json:"action"`
	Confirmed     bool               `json:"confirmed"`
	Pending       bool               `json:"pending"`
	Score         int                `json:"score"`
	Reason        string             `json:"reason"`
	Evidence      []string           `json:"evidence"`
	Probabilities Probabilities      `json:"probabilities"`
	Features      FeatureVector      `json:"features,omitempty"`
	Signals       []StructuredSignal `json:"signals,omitempty"`
}

// ActiveSignals returns the signals that voted on this tick.
func (d DecisionResult) ActiveSignals() []StructuredSignal {
	var out []StructuredSignal
	for _, s := range d.Signals {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out
}

// BreakoutType identifies which band was crossed
type BreakoutType string

const (
	UpperBreakout BreakoutType = "upper_breakout"
	LowerBreakout BreakoutType = "lower_breakout"
)

// BreakoutEvent is a recorded band crossing awaiting resolution.
type BreakoutEvent struct {
	ID                   int64        `json:"id"`
	Type                 BreakoutType `json:"event_type"`
	Timestamp            time.Time    `json:"timestamp"`
	Boundary             float64      `json:"boundary"`
	Threshold            float64      `json:"threshold"`
	PredictedProbability float64      `json:"predicted_probability"`
	Resolved             bool         `json:"resolved"`
	ResolvedAt           *time.Time   `json:"resolved_at,omitempty"`
}

// StreakAdvisory warns that the same band has broken several times in a row.
// Rebound marks a lower-band streak that coincided with a surge.
type StreakAdvisory struct {
	Side    BreakoutType `json:"side"`
	Streak  int          `json:"streak"`
	Level   int          `json:"level"`
	Rebound bool         `json:"rebound"`
}

// ResolvedEvent is one breakout that crossed back inside the horizon.
type ResolvedEvent struct {
	Event   BreakoutEvent `json:"event"`
	Rate    float64       `json:"rate"`
	Elapsed time.Duration `json:"elapsed"`
}

// OutcomeSummary merges every event resolved on a single tick.
type OutcomeSummary struct {
	At       time.Time       `json:"at"`
	Resolved []ResolvedEvent `json:"resolved"`
}

// RatePoint is one stored observation
type RatePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Rate      float64   `json:"rate"`
}

// ExpectedRange is the dealers' expected trading range for a day.
type ExpectedRange struct {
	Date   time.Time `json:"date"`
	Low    float64   `json:"low"`
	High   float64   `json:"high"`
	Source string    `json:"source"`
}

// Contains reports whether the rate is inside the range, bounds included.
func (r ExpectedRange) Contains(rate float64) bool {
	return rate >= r.Low && rate <= r.High
}

// DecisionLogEntry is persisted for every emitted decision.
type DecisionLogEntry struct {
	Instrument    string        `json:"instrument"`
	Time          time.Time     `json:"time"`
	Rate          float64       `json:"rate"`
	Action        Action        `json:"action"`
	Confirmed     bool          `json:"confirmed"`
	Score         int           `json:"score"`
	Reason        string        `json:"reason"`
	Probabilities Probabilities `json:"probabilities"`
	Features      FeatureVector `json:"features"`
}
