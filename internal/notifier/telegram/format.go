package telegram

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Alias1177/RateWatcher/internal/summary"
	"github.com/Alias1177/RateWatcher/models"
)

const gaugeWidth = 10

var headlines = map[models.Action]string{
	models.ActionBuy:  "🔴 🛒 Buy",
	models.ActionSell: "🔵 💸 Sell",
	models.ActionHold: "⚪ ⏸ Hold",
}

var strengthTitles = map[models.Action]string{
	models.ActionBuy:  "🔴 Buy strength",
	models.ActionSell: "🔵 Sell strength",
	models.ActionHold: "⚪ Hold strength",
}

var signalIcons = map[string]string{
	"boll":     "📊",
	"cross":    "🔁",
	"jump":     "⚡",
	"expected": "📡",
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// Gauge renders a score in [0,100] as a 10-block bar colored by action.
func Gauge(action models.Action, score int) string {
	score = max(0, min(100, score))
	filled := int(math.Round(float64(score) / (100 / gaugeWidth)))

	block := "⬜"
	switch action {
	case models.ActionSell:
		block = "🟥"
	case models.ActionBuy:
		block = "🟦"
	}
	return strings.Repeat(block, filled) + strings.Repeat("⬛", gaugeWidth-filled) + fmt.Sprintf(" %d", score)
}

func FormatDecision(d models.DecisionResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s (%d/100)*", headlines[d.Action], d.Score)
	if d.Pending {
		b.WriteString(" _pending confirmation_")
	}
	b.WriteString("\n\n📌 Key evidence\n")
	if len(d.Evidence) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, ev := range d.Evidence {
		fmt.Fprintf(&b, "- %s\n", escape(ev))
	}
	fmt.Fprintf(&b, "\n%s\n%s", strengthTitles[d.Action], Gauge(d.Action, d.Score))
	return b.String()
}

func FormatSignal(s models.StructuredSignal) string {
	icon, ok := signalIcons[s.Key]
	if !ok {
		icon = "•"
	}
	arrow := "📈"
	if s.Direction < 0 {
		arrow = "📉"
	}
	return fmt.Sprintf("%s %s *%s signal* (confidence %.0f%%)\n%s", icon, arrow, s.Key, s.Confidence*100, escape(s.Evidence))
}

func FormatOutcome(summary models.OutcomeSummary) string {
	var b strings.Builder
	b.WriteString("🔁 *Breakout reverted*\n")
	for _, r := range summary.Resolved {
		side := "Upper band breakout"
		if r.Event.Type == models.LowerBreakout {
			side = "Lower band breakout"
		}
		fmt.Fprintf(&b, "- %s at %s (%.2f) reverted after %d min, rate now %.2f",
			side,
			r.Event.Timestamp.In(models.KST).Format("15:04"),
			r.Event.Threshold,
			int(r.Elapsed.Minutes()),
			r.Rate,
		)
		if r.Event.PredictedProbability > 0 {
			fmt.Fprintf(&b, " (predicted %.1f%%)", r.Event.PredictedProbability)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatSummary(s summary.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏱️ *Last 30 min recap (%s ~ %s)*\n\n",
		s.Start.In(models.KST).Format("15:04"), s.End.In(models.KST).Format("15:04"))
	fmt.Fprintf(&b, "📈 *Trend*: %s\n- %.2f → %.2f (%+.2f)\n\n", s.Trend, s.Open, s.Close, s.Change)
	fmt.Fprintf(&b, "📊 *Range*: high %.2f / low %.2f\n- width %.2f (%s volatility)\n\n", s.High, s.Low, s.Width, s.Volatility)

	b.WriteString("📌 *Band breaks*\n")
	if len(s.Events) == 0 {
		b.WriteString("- none\n")
	}
	for _, ev := range s.Events {
		label := "upper band break"
		if ev.Type == models.LowerBreakout {
			label = "lower band break"
		}
		fmt.Fprintf(&b, "- %s %s (band %.2f)\n", ev.Timestamp.In(models.KST).Format("15:04"), label, ev.Threshold)
	}

	fmt.Fprintf(&b, "\n💡 *Reading*: %s", s.Advice)
	return b.String()
}

func FormatStreak(a models.StreakAdvisory) string {
	var b strings.Builder
	b.WriteString("🧭 *Repeated signal alert*\n")
	if a.Side == models.LowerBreakout {
		fmt.Fprintf(&b, "⚠️ *Persistent lower band breaks!* %d in a row.\n", a.Streak)
		b.WriteString("📉 The rate keeps sliding and the move looks unstable.\n")
		if a.Rebound {
			b.WriteString("📈 A short rebound showed up, but the downtrend still holds.\n")
		}
		b.WriteString("💡 *Better to wait than to rush in.*")
		return b.String()
	}
	fmt.Fprintf(&b, "🚨 *Persistent upper band breaks!* %d in a row.\n", a.Streak)
	b.WriteString("📈 The rate keeps climbing and looks overheated.\n")
	b.WriteString("💡 *This may be near a top; check risk and whether to take profit.*")
	return b.String()
}

func FormatRange(r models.ExpectedRange) string {
	return fmt.Sprintf(
		"📊 *Today's expected range*\n\n- Low: *%.2f*\n- High: *%.2f*\n\n(source: %s)",
		r.Low, r.High, escape(r.Source),
	)
}

func FormatStart(interval time.Duration) string {
	return fmt.Sprintf(
		"👋 *Rate watcher started*\n\n"+
			"Alerts on sharp moves, Bollinger band breaks, moving average crosses "+
			"and expected range breaches. Combined signals carry a direction and a strength gauge.\n\n"+
			"⏱️ Checked every %s. 🌙 Quiet on weekends and early mornings (KST).",
		interval,
	)
}
