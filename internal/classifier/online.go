// Package classifier implements a three-class online logistic regression over sparse features.
package classifier

import (
	"math"
	"sync"

	"github.com/Alias1177/RateWatcher/internal/features"
	"github.com/Alias1177/RateWatcher/models"
)

const (
	// LogitClamp bounds every logit before exponentiation.
	LogitClamp = 20.0
	// MinActionProbability is the lowest winning probability that still yields buy or sell.
	MinActionProbability = 0.55
	DefaultLearningRate  = 0.05
)

// Weights holds one sparse weight map per class.
type Weights map[models.Action]map[string]float64

// DefaultPriors encode which features are expected to lean towards each class.
func DefaultPriors() Weights {
	return Weights{
		models.ActionBuy: {
			features.Bias:       -0.8,
			"expected_dir_+1":   0.6,
			"boll_dir_+1":       0.25,
			"cross_type_golden": 0.6,
			features.AgreeCount: 0.3,
		},
		models.ActionSell: {
			features.Bias:       -0.8,
			"expected_dir_-1":   0.6,
			"boll_dir_-1":       0.25,
			"cross_type_dead":   0.6,
			features.AgreeCount: 0.3,
		},
		models.ActionHold: {
			features.Bias: 0.0,
		},
	}
}

// Classifier is safe for concurrent use.
type Classifier struct {
	mu sync.RWMutex
	lr float64
	w  Weights
}

type Option func(*Classifier)

// WithLearningRate overrides the SGD step size.
func WithLearningRate(lr float64) Option {
	return func(c *Classifier) {
		if lr > 0 {
			c.lr = lr
		}
	}
}

// WithWeights replaces the priors, e.g. with a restored snapshot.
func WithWeights(w Weights) Option {
	return func(c *Classifier) {
		c.w = w.clone()
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{lr: DefaultLearningRate, w: DefaultPriors()}
	for _, opt := range opts {
		opt(c)
	}
	for _, a := range models.Actions {
		if c.w[a] == nil {
			c.w[a] = map[string]float64{}
		}
	}
	return c
}

// Predict returns the chosen action and the full class distribution.
// The action falls back to hold when no class reaches MinActionProbability.
func (c *Classifier) Predict(f models.FeatureVector) (models.Action, models.Probabilities) {
	c.mu.RLock()
	probs := c.probabilities(f)
	c.mu.RUnlock()

	action, p := probs.Top()
	if p < MinActionProbability {
		action = models.ActionHold
	}
	return action, probs
}

// Update takes one cross-entropy gradient step towards label.
func (c *Classifier) Update(f models.FeatureVector, label models.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	probs := c.probabilities(f)
	for _, a := range models.Actions {
		target := 0.0
		if a == label {
			target = 1.0
		}
		step := c.lr * (target - probs[a])

		// The bias moves once on its own and again as the constant bias feature.
		w := c.w[a]
		w[features.Bias] += step
		for k, x := range f {
			w[k] += step * x
		}
	}
}

// Snapshot returns a deep copy of the current weights.
func (c *Classifier) Snapshot() Weights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.w.clone()
}

func (c *Classifier) probabilities(f models.FeatureVector) models.Probabilities {
	logits := make(map[models.Action]float64, len(models.Actions))
	for _, a := range models.Actions {
		logits[a] = clamp(dot(c.w[a], f), -LogitClamp, LogitClamp)
	}

	var z float64
	exps := make(map[models.Action]float64, len(logits))
	for a, l := range logits {
		exps[a] = math.Exp(l)
		z += exps[a]
	}

	probs := make(models.Probabilities, len(exps))
	for a, e := range exps {
		probs[a] = e / z
	}
	return probs
}

// dot starts from the bias weight; a bias feature in f adds it a second time.
func dot(w map[string]float64, f models.FeatureVector) float64 {
	s := w[features.Bias]
	for k, x := range f {
		s += w[k] * x
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for a, m := range w {
		cp := make(map[string]float64, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[a] = cp
	}
	return out
}
