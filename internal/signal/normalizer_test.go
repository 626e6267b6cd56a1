package signal

import (
	"testing"

	"github.com/Alias1177/RateWatcher/models"
)

func TestTextAdapter(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantDir  models.Direction
		wantConf float64
	}{
		{"empty", "", models.DirectionNeutral, 0},
		{"golden cross", "Golden cross detected", models.DirectionUp, 0.6},
		{"bearish low confidence", "bearish drift, low confidence", models.DirectionDown, 0.3},
		{"both sides", "upper band test then lower band test", models.DirectionNeutral, 0.6},
		{"no keywords", "rate unchanged", models.DirectionNeutral, 0.6},
		{"confirmed", "dead cross confirmed", models.DirectionDown, 0.9},
		{"quant tag", "surge z=2.4", models.DirectionUp, 0.75},
		{"badge", "🟨 plunge", models.DirectionDown, 0.65},
		{"low overridden by badge", "🟥 sell pressure, low confidence", models.DirectionDown, 0.9},
	}

	a := NewTextAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := a.Normalize(models.RawSignal{Key: "k", Text: tt.text})
			if !ok {
				t.Fatal("text adapter should accept every payload")
			}
			if s.Direction != tt.wantDir {
				t.Errorf("direction = %d, want %d", s.Direction, tt.wantDir)
			}
			if s.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", s.Confidence, tt.wantConf)
			}
		})
	}
}

func TestNormalizerPrefersStructured(t *testing.T) {
	n := NewNormalizer(nil)
	raw := models.RawSignal{
		Key:        "boll",
		Structured: &models.StructuredSignal{Direction: models.DirectionDown, Confidence: 0.8, Evidence: "band"},
		Text:       "golden cross confirmed",
	}

	s := n.Normalize(raw)
	if s.Key != "boll" || s.Direction != models.DirectionDown || s.Confidence != 0.8 {
		t.Errorf("structured payload not passed through: %+v", s)
	}
}

func TestNormalizeAllSkipsEmpty(t *testing.T) {
	n := NewNormalizer(nil)
	got := n.NormalizeAll([]models.RawSignal{
		{Key: "boll", Text: "upper band breakout"},
		{Key: "jump"},
		{Key: "cross", Structured: &models.StructuredSignal{Direction: models.DirectionUp, Confidence: 0.7}},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(got))
	}
	if got["boll"].Direction != models.DirectionUp {
		t.Errorf("boll direction = %d, want +1", got["boll"].Direction)
	}
	if got["cross"].Key != "cross" {
		t.Errorf("structured key not filled from raw key: %q", got["cross"].Key)
	}
}

func TestNormalizePanicsOnInvalidConfidence(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for confidence above 1")
		}
	}()

	NewNormalizer(nil).Normalize(models.RawSignal{
		Key:        "boll",
		Structured: &models.StructuredSignal{Direction: models.DirectionUp, Confidence: 1.5},
	})
}
