// Package summary condenses a block of stored rates into the periodic market recap.
package summary

import (
	"math"
	"sort"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "sideways"
)

type Volatility string

const (
	VolatilityNarrow   Volatility = "very narrow"
	VolatilityModerate Volatility = "moderate"
	VolatilityWide     Volatility = "relatively wide"
)

const (
	// FlatBand is the largest net change still read as sideways.
	FlatBand = 0.05
	// StrongMove is the net change behind a directional reading.
	StrongMove = 0.5

	narrowWidth   = 1.0
	moderateWidth = 2.0
)

const (
	AdviceBuySmall = "uptrend holding, small buys possible"
	AdviceWait     = "short-term decline, stay on the sidelines"
	AdviceMixed    = "mixed trend, watch first"
)

// Summary describes one block of rates.
type Summary struct {
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
	Open       float64                `json:"open"`
	Close      float64                `json:"close"`
	High       float64                `json:"high"`
	Low        float64                `json:"low"`
	Change     float64                `json:"change"`
	Width      float64                `json:"width"`
	Trend      Trend                  `json:"trend"`
	Volatility Volatility             `json:"volatility"`
	Advice     string                 `json:"advice"`
	Events     []models.BreakoutEvent `json:"events,omitempty"`
}

// Build summarizes the points in [start, end) together with the breakouts
// recorded since start. ok is false when the block holds no rates.
func Build(start, end time.Time, points []models.RatePoint, events []models.BreakoutEvent) (Summary, bool) {
	var block []models.RatePoint
	for _, p := range points {
		if !p.Timestamp.Before(start) && p.Timestamp.Before(end) {
			block = append(block, p)
		}
	}
	if len(block) == 0 {
		return Summary{}, false
	}
	sort.SliceStable(block, func(i, j int) bool {
		return block[i].Timestamp.Before(block[j].Timestamp)
	})

	s := Summary{
		Start: start,
		End:   end,
		Open:  block[0].Rate,
		Close: block[len(block)-1].Rate,
		High:  block[0].Rate,
		Low:   block[0].Rate,
	}
	for _, p := range block[1:] {
		s.High = math.Max(s.High, p.Rate)
		s.Low = math.Min(s.Low, p.Rate)
	}
	s.Change = round2(s.Close - s.Open)
	s.Width = round2(s.High - s.Low)
	s.Trend = trend(s.Change)
	s.Volatility = volatility(s.High - s.Low)
	s.Advice = advice(s.Trend, s.Change)

	for _, ev := range events {
		if !ev.Timestamp.Before(start) {
			s.Events = append(s.Events, ev)
		}
	}
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Events[i].Timestamp.Before(s.Events[j].Timestamp)
	})
	return s, true
}

func trend(change float64) Trend {
	switch {
	case change > FlatBand:
		return TrendUp
	case change < -FlatBand:
		return TrendDown
	default:
		return TrendFlat
	}
}

func volatility(width float64) Volatility {
	switch {
	case width < narrowWidth:
		return VolatilityNarrow
	case width < moderateWidth:
		return VolatilityModerate
	default:
		return VolatilityWide
	}
}

func advice(t Trend, change float64) string {
	switch {
	case t == TrendUp && change > StrongMove:
		return AdviceBuySmall
	case t == TrendDown && -change > StrongMove:
		return AdviceWait
	default:
		return AdviceMixed
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
