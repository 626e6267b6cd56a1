package indicators

import "github.com/Alias1177/RateWatcher/models"

// StreakLevels are the consecutive same-side breakout counts that raise an advisory.
var StreakLevels = []int{5, 9, 13, 17}

// firstStreakLevel numbers the advisory raised at StreakLevels[0].
const firstStreakLevel = 3

// CheckStreak returns an advisory when streak has just reached one of
// StreakLevels. A dead cross on the same tick silences the lower-band
// warning and a plunge silences the upper-band one.
func CheckStreak(side models.BreakoutType, streak int, cross, jump models.RawSignal) (models.StreakAdvisory, bool) {
	level := 0
	for i, n := range StreakLevels {
		if streak == n {
			level = firstStreakLevel + i
			break
		}
	}
	if level == 0 {
		return models.StreakAdvisory{}, false
	}

	switch side {
	case models.LowerBreakout:
		if direction(cross) == models.DirectionDown {
			return models.StreakAdvisory{}, false
		}
	case models.UpperBreakout:
		if direction(jump) == models.DirectionDown {
			return models.StreakAdvisory{}, false
		}
	default:
		return models.StreakAdvisory{}, false
	}

	return models.StreakAdvisory{
		Side:    side,
		Streak:  streak,
		Level:   level,
		Rebound: side == models.LowerBreakout && direction(jump) == models.DirectionUp,
	}, true
}

func direction(raw models.RawSignal) models.Direction {
	if raw.Structured == nil || !raw.Structured.Active() {
		return models.DirectionNeutral
	}
	return raw.Structured.Direction
}
