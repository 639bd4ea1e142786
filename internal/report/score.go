package report

import (
	"math"

	"truehabits/internal/models"
)

// Point ceilings per frequency. A weekly habit is worth a week of daily
// effort, hence the 5x ceiling.
const (
	dailyPointsMax  = 10.0
	weeklyPointsMax = 50.0
)

// maxPoints returns the per-day ceiling for a frequency. Anything that is
// not weekly is capped like a daily habit.
func maxPoints(freq models.Frequency) float64 {
	if freq.IsWeekly() {
		return weeklyPointsMax
	}
	return dailyPointsMax
}

// score converts one day's summed quantity into points.
//
// "dejar" habits are all-or-nothing: staying at or under the goal earns the
// full ceiling, a single exceedance zeroes the day. Accumulate habits earn
// linear partial credit capped at the ceiling. A zero goal never divides:
// it earns nothing.
func score(category models.Category, freq models.Frequency, total, goal float64) float64 {
	max := maxPoints(freq)
	if category == models.CategoryQuit {
		if total <= goal {
			return max
		}
		return 0
	}
	if goal <= 0 {
		return 0
	}
	if total >= goal {
		return max
	}
	return math.Min(total/goal*max, max)
}

// round1 is the presentation rounding used for user-facing totals.
// Intermediate aggregation always works on unrounded values.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
