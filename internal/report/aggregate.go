package report

import (
	"time"

	"truehabits/internal/models"
)

type habitKey struct {
	userID int64
	habit  string
}

// SumWeeklyPoints totals a reconstructed current-week series. Daily rows
// sum directly. A weekly habit contributes the maximum single-day value of
// its series, not the sum of its days: each day already carries that day's
// credit toward the same weekly pool.
func SumWeeklyPoints(series []Row) float64 {
	var daily float64
	weeklyMax := make(map[habitKey]float64)
	for _, r := range series {
		if r.Frequency.IsWeekly() {
			k := habitKey{r.UserID, r.Habit}
			if r.Points > weeklyMax[k] {
				weeklyMax[k] = r.Points
			}
			continue
		}
		daily += r.Points
	}
	total := daily
	for _, v := range weeklyMax {
		total += v
	}
	return total
}

// SumAllTimePoints totals an all-time series week by week and returns the
// grand total rounded to one decimal.
func SumAllTimePoints(series []Row) float64 {
	weeks := make(map[string]float64)
	for _, r := range series {
		day, err := time.Parse(dayFormat, r.Day)
		if err != nil {
			continue
		}
		weeks[WeekStart(day).Format(dayFormat)] += r.Points
	}
	var total float64
	for _, v := range weeks {
		total += v
	}
	return round1(total)
}

// CategoryTotals sums points per category for one week. Weekly habits
// contribute their best day per habit; daily habits contribute every day.
// Every category present in the series appears, zero or not, so an idle
// category still shows an empty bar instead of vanishing.
func CategoryTotals(series []Row) map[models.Category]float64 {
	totals := make(map[models.Category]float64)
	weeklyMax := make(map[habitKey]Row)
	for _, r := range series {
		if _, ok := totals[r.Category]; !ok {
			totals[r.Category] = 0
		}
		if r.Frequency.IsWeekly() {
			k := habitKey{r.UserID, r.Habit}
			if best, ok := weeklyMax[k]; !ok || r.Points > best.Points {
				weeklyMax[k] = r
			}
			continue
		}
		totals[r.Category] += r.Points
	}
	for _, r := range weeklyMax {
		totals[r.Category] += r.Points
	}
	return totals
}

// CompletionCounts counts, per category, the distinct week days on which a
// daily habit fully met its goal. The "dejar" count is different in kind:
// it is the number of week days with no logged lapse at all, walked over
// the explicit date range because a lapse-free day may have no row prior
// to back-filling.
func CompletionCounts(series []Row, now time.Time) map[models.Category]int {
	met := make(map[models.Category]map[string]bool)
	lapses := make(map[string]bool)
	hasQuitDaily := false
	for _, r := range series {
		if r.Frequency.IsWeekly() {
			continue
		}
		if r.Category == models.CategoryQuit {
			hasQuitDaily = true
			if r.Total > 0 {
				lapses[r.Day] = true
			}
			continue
		}
		if r.Met() {
			if met[r.Category] == nil {
				met[r.Category] = make(map[string]bool)
			}
			met[r.Category][r.Day] = true
		}
	}

	counts := make(map[models.Category]int)
	for cat, days := range met {
		counts[cat] = len(days)
	}
	if hasQuitDaily {
		start := WeekStart(now)
		clean := 0
		for i := 0; i < 7; i++ {
			if !lapses[start.AddDate(0, 0, i).Format(dayFormat)] {
				clean++
			}
		}
		counts[models.CategoryQuit] = clean
	}
	return counts
}

// WeekdayTotals sums a category's points per week day, Monday first,
// zero-filling days with no activity so the series always lines up with a
// Mon..Sun axis.
func WeekdayTotals(series []Row, category models.Category) [7]float64 {
	var totals [7]float64
	for _, r := range series {
		if r.Category != category {
			continue
		}
		day, err := time.Parse(dayFormat, r.Day)
		if err != nil {
			continue
		}
		totals[(int(day.Weekday())+6)%7] += r.Points
	}
	return totals
}

// PeerWeekdayTotals builds the peer-comparison overlay: everyone else's
// points in the category summed per week day. The requesting user is
// excluded here, at consumption time.
func PeerWeekdayTotals(peerSeries []Row, category models.Category, excludeUser int64) [7]float64 {
	var others []Row
	for _, r := range peerSeries {
		if r.UserID != excludeUser {
			others = append(others, r)
		}
	}
	return WeekdayTotals(others, category)
}
