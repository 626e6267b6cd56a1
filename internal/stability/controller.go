// Package stability keeps emitted decisions from flapping between ticks.
package stability

import (
	"sync"
	"time"

	"github.com/creasty/defaults"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	ReasonHysteresis = "hysteresis"
	ReasonPending    = "pending transition"
)

type Config struct {
	Cooldown         time.Duration `default:"600s"`
	DebounceRequired int           `default:"2"`
	HysteresisBase   float64       `default:"0.60"`
	HysteresisDelta  float64       `default:"0.05"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// State is the controller's memory across ticks.
type State struct {
	LastAction     models.Action `json:"last_action,omitempty"`
	LastActionTime time.Time     `json:"last_action_time,omitempty"`
	PrevCandidate  models.Action `json:"prev_candidate,omitempty"`
	SameCount      int           `json:"same_count"`
}

// Outcome is the post-stability view of a gate candidate.
type Outcome struct {
	Action     models.Action
	Reason     string
	Confirmed  bool
	Pending    bool
	Suppressed bool
}

// Controller applies hysteresis, debounce and cooldown for one instrument.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	state State
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Apply runs one candidate through the controller and advances its state.
func (c *Controller) Apply(candidate models.Action, reason string, probs models.Probabilities, now time.Time) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &c.state

	// Flipping sides needs a wider margin than entering.
	if candidate.Directional() && st.LastAction.Directional() && candidate != st.LastAction {
		if probs[candidate] < c.cfg.HysteresisBase+c.cfg.HysteresisDelta {
			candidate, reason = models.ActionHold, ReasonHysteresis
		}
	}

	if !candidate.Directional() {
		st.PrevCandidate = models.ActionHold
		st.SameCount = 0
		return Outcome{Action: models.ActionHold, Reason: reason}
	}

	if st.PrevCandidate == candidate {
		st.SameCount++
	} else {
		st.SameCount = 1
	}
	st.PrevCandidate = candidate

	if st.SameCount < max(1, c.cfg.DebounceRequired) {
		return Outcome{Action: models.ActionHold, Reason: ReasonPending, Pending: true}
	}

	if st.LastAction == candidate && now.Sub(st.LastActionTime) < c.cfg.Cooldown {
		return Outcome{Action: candidate, Reason: reason, Suppressed: true}
	}

	st.LastAction = candidate
	st.LastActionTime = now
	return Outcome{Action: candidate, Reason: reason, Confirmed: true}
}

// PrevCandidate is the candidate seen on the previous tick.
func (c *Controller) PrevCandidate() models.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.PrevCandidate
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
