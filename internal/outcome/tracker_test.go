package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alias1177/RateWatcher/models"
)

var t0 = time.Date(2025, 6, 3, 10, 0, 0, 0, models.KST)

func TestCheckResolutions(t *testing.T) {
	tests := []struct {
		name         string
		typ          models.BreakoutType
		threshold    float64
		rate         float64
		after        time.Duration
		wantResolved bool
	}{
		{"lower within slack", models.LowerBreakout, 1380.20, 1380.205, 10 * time.Minute, false},
		{"lower cleared", models.LowerBreakout, 1380.20, 1380.25, 10 * time.Minute, true},
		{"upper cleared", models.UpperBreakout, 1385.00, 1384.95, 29 * time.Minute, true},
		{"upper still above", models.UpperBreakout, 1385.00, 1385.10, 5 * time.Minute, false},
		{"past horizon", models.LowerBreakout, 1380.20, 1381.00, 31 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			tr := NewTracker(store, zerolog.Nop())

			if _, err := tr.Record(ctx, tt.typ, t0, tt.threshold, tt.threshold, 64.3); err != nil {
				t.Fatalf("Record: %v", err)
			}

			summary, err := tr.CheckResolutions(ctx, tt.rate, t0.Add(tt.after))
			if err != nil {
				t.Fatalf("CheckResolutions: %v", err)
			}
			if got := summary != nil; got != tt.wantResolved {
				t.Fatalf("resolved = %v, want %v", got, tt.wantResolved)
			}
			if !tt.wantResolved {
				if store.Events()[0].Resolved {
					t.Error("event marked resolved")
				}
				return
			}
			if summary.Resolved[0].Elapsed != tt.after {
				t.Errorf("elapsed = %v, want %v", summary.Resolved[0].Elapsed, tt.after)
			}
			if !store.Events()[0].Resolved {
				t.Error("event not marked resolved in store")
			}
		})
	}
}

func TestCheckResolutionsMergesAndResolvesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := NewTracker(store, zerolog.Nop())

	tr.Record(ctx, models.LowerBreakout, t0, 1380.0, 1380.0, 50)
	tr.Record(ctx, models.LowerBreakout, t0.Add(5*time.Minute), 1379.5, 1379.5, 70)
	tr.Record(ctx, models.UpperBreakout, t0.Add(6*time.Minute), 1390.0, 1390.0, 40)

	summary, err := tr.CheckResolutions(ctx, 1381.0, t0.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("CheckResolutions: %v", err)
	}
	if summary == nil || len(summary.Resolved) != 3 {
		t.Fatalf("expected one summary with 3 events, got %+v", summary)
	}
	if summary.Resolved[0].Event.Timestamp != t0 {
		t.Error("resolved events should be ordered by time")
	}

	again, err := tr.CheckResolutions(ctx, 1381.0, t0.Add(16*time.Minute))
	if err != nil {
		t.Fatalf("CheckResolutions: %v", err)
	}
	if again != nil {
		t.Errorf("events resolved twice: %+v", again)
	}
}

func TestLabel(t *testing.T) {
	if Label(models.LowerBreakout) != models.ActionBuy || Label(models.UpperBreakout) != models.ActionSell {
		t.Error("unexpected labels")
	}
}
