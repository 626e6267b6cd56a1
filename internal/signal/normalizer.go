// Package signal turns heterogeneous indicator outputs into StructuredSignals.
package signal

import (
	"strings"

	"github.com/Alias1177/RateWatcher/models"
)

// DefaultConfidence applies to text with no confidence hints.
const DefaultConfidence = 0.6

// Adapter converts one raw indicator output. ok is false when the adapter
// does not handle this kind of payload.
type Adapter interface {
	Normalize(raw models.RawSignal) (models.StructuredSignal, bool)
}

// StructuredAdapter passes pre-structured payloads through unchanged.
type StructuredAdapter struct{}

func (StructuredAdapter) Normalize(raw models.RawSignal) (models.StructuredSignal, bool) {
	if raw.Structured == nil {
		return models.StructuredSignal{}, false
	}
	s := *raw.Structured
	if s.Key == "" {
		s.Key = raw.Key
	}
	return s, true
}

// Normalizer runs adapters in order; the first one that accepts a payload wins.
type Normalizer struct {
	adapters []Adapter
}

// NewNormalizer returns a normalizer preferring structured payloads and
// falling back to the keyword text parser.
func NewNormalizer(text *TextAdapter) *Normalizer {
	if text == nil {
		text = NewTextAdapter()
	}
	return &Normalizer{adapters: []Adapter{StructuredAdapter{}, text}}
}

// Normalize converts a single raw signal. Unhandled payloads become neutral.
// A signal violating the direction/confidence contract panics.
func (n *Normalizer) Normalize(raw models.RawSignal) models.StructuredSignal {
	for _, a := range n.adapters {
		if s, ok := a.Normalize(raw); ok {
			if err := s.Validate(); err != nil {
				panic(err)
			}
			return s
		}
	}
	return models.StructuredSignal{Key: raw.Key, Evidence: raw.Text}
}

// NormalizeAll converts every non-empty raw signal, keyed by indicator.
func (n *Normalizer) NormalizeAll(raws []models.RawSignal) map[string]models.StructuredSignal {
	out := make(map[string]models.StructuredSignal, len(raws))
	for _, raw := range raws {
		if raw.Empty() {
			continue
		}
		s := n.Normalize(raw)
		out[s.Key] = s
	}
	return out
}

// TextAdapter infers direction and confidence from free-text messages.
type TextAdapter struct {
	Bullish []string
	Bearish []string
}

// NewTextAdapter returns the default keyword vocabulary.
func NewTextAdapter() *TextAdapter {
	return &TextAdapter{
		Bullish: []string{"upper", "surge", "golden", "bullish", "buy"},
		Bearish: []string{"lower", "plunge", "dead", "bearish", "sell"},
	}
}

func (t *TextAdapter) Normalize(raw models.RawSignal) (models.StructuredSignal, bool) {
	if raw.Text == "" {
		return models.StructuredSignal{Key: raw.Key}, true
	}
	return models.StructuredSignal{
		Key:        raw.Key,
		Direction:  t.direction(raw.Text),
		Confidence: textConfidence(raw.Text),
		Evidence:   firstLine(raw.Text),
	}, true
}

func (t *TextAdapter) direction(text string) models.Direction {
	lower := strings.ToLower(text)
	pos := containsAny(lower, t.Bullish)
	neg := containsAny(lower, t.Bearish)
	switch {
	case pos && !neg:
		return models.DirectionUp
	case neg && !pos:
		return models.DirectionDown
	default:
		return models.DirectionNeutral
	}
}

var severityBadges = []struct {
	badge string
	conf  float64
}{
	{"🟥", 0.9},
	{"🟧", 0.75},
	{"🟨", 0.65},
}

func textConfidence(text string) float64 {
	lower := strings.ToLower(text)
	conf := DefaultConfidence

	if strings.Contains(lower, "low confidence") {
		conf = 0.3
	}
	if strings.Contains(lower, "medium confidence") {
		conf = max(conf, 0.6)
	}
	if strings.Contains(lower, "confirmed") || strings.Contains(lower, "high confidence") {
		conf = max(conf, 0.9)
	}
	if containsAny(lower, []string{"z=", "spread", "atr="}) {
		conf = max(conf, 0.75)
	}
	for _, b := range severityBadges {
		if strings.Contains(text, b.badge) {
			conf = max(conf, b.conf)
		}
	}

	return min(max(conf, 0), 1)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
