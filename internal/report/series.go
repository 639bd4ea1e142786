package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"truehabits/internal/models"
)

const dayFormat = "2006-01-02"

// Row is one scored day of one habit in the reconstructed series.
type Row struct {
	UserID       int64
	Habit        string
	Category     models.Category
	Frequency    models.Frequency
	Day          string // dayFormat
	Total        float64
	GoalQuantity float64
	Mean         float64
	QuitMin      float64
	Points       float64
	PointsMax    float64
}

// Met reports whether this day fully reached the habit's goal.
func (r Row) Met() bool {
	return r.Points >= r.PointsMax
}

// WeekStart returns the Monday 00:00 of t's week in t's location.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// BuildSeries expands sparse rollup rows into a complete scored series:
// one row per (user, habit, day). Rollups only contain days that have
// actions (or one placeholder row from the outer join), so downstream
// counts and charts would silently skip days without this pass.
//
// now is the reference time that anchors the current week; it is threaded
// explicitly so the pipeline stays deterministic under test.
func BuildSeries(rollup []models.RollupRow, now time.Time) []Row {
	rows := normalize(rollup, now)
	if len(rows) == 0 {
		return nil
	}
	rows = backfillQuitDaily(rows, now)
	rows = dedup(rows)
	rows = fillDailyWeeks(rows)

	var out []Row
	for _, r := range rows {
		if r.Frequency.IsWeekly() {
			continue
		}
		r.Points = score(r.Category, r.Frequency, r.Total, r.GoalQuantity)
		r.PointsMax = maxPoints(r.Frequency)
		out = append(out, r)
	}
	out = append(out, reindexWeekly(rows)...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if out[i].Habit != out[j].Habit {
			return out[i].Habit < out[j].Habit
		}
		return out[i].Day < out[j].Day
	})
	return out
}

// normalize coerces nullable rollup columns to zero values and lowercases
// the free-text tags. Outer-join rows without a day land on the week start
// of the reference time, so a habit with no actions still registers as an
// unmet 0-quantity entry.
func normalize(rollup []models.RollupRow, now time.Time) []Row {
	weekStart := WeekStart(now)
	rows := make([]Row, 0, len(rollup))
	for _, rr := range rollup {
		r := Row{
			UserID:    rr.UserID,
			Habit:     strings.ToLower(strings.TrimSpace(rr.Habit)),
			Category:  models.ParseCategory(string(rr.Category)),
			Frequency: models.ParseFrequency(string(rr.Frequency)),
		}
		if rr.Day != nil {
			r.Day = rr.Day.Format(dayFormat)
		} else {
			r.Day = weekStart.Format(dayFormat)
		}
		if rr.Total != nil {
			r.Total = *rr.Total
		}
		if rr.GoalQuantity != nil {
			r.GoalQuantity = *rr.GoalQuantity
		}
		if rr.Mean != nil {
			r.Mean = *rr.Mean
		}
		if rr.QuitMin != nil {
			r.QuitMin = *rr.QuitMin
		}
		rows = append(rows, r)
	}
	return rows
}

// backfillQuitDaily synthesizes 0-quantity rows for daily "dejar" habits on
// week days that have no logged lapse. Those habits must visibly show a
// clean day on every date, or the "days without the bad habit" count comes
// out short. The range deliberately starts at weekStart+1, matching the
// historical accounting.
func backfillQuitDaily(rows []Row, now time.Time) []Row {
	type habitKey struct {
		userID int64
		habit  string
	}
	templates := make(map[habitKey]Row)
	var order []habitKey
	seen := make(map[habitKey]map[string]bool)
	for _, r := range rows {
		k := habitKey{r.UserID, r.Habit}
		if r.Category == models.CategoryQuit && r.Frequency == models.FrequencyDaily {
			if _, ok := templates[k]; !ok {
				templates[k] = r
				order = append(order, k)
			}
		}
		if seen[k] == nil {
			seen[k] = make(map[string]bool)
		}
		seen[k][r.Day] = true
	}

	weekStart := WeekStart(now)
	for _, k := range order {
		tmpl := templates[k]
		for i := 1; i <= 6; i++ {
			day := weekStart.AddDate(0, 0, i).Format(dayFormat)
			if seen[k][day] {
				continue
			}
			rows = append(rows, Row{
				UserID:       tmpl.UserID,
				Habit:        tmpl.Habit,
				Category:     tmpl.Category,
				Frequency:    tmpl.Frequency,
				Day:          day,
				Total:        0,
				GoalQuantity: tmpl.GoalQuantity,
				Mean:         0,
				QuitMin:      tmpl.QuitMin,
			})
		}
	}
	return rows
}

// fillDailyWeeks completes every daily habit's week: for each Monday..Sunday
// window a habit appears in, the days without a row are synthesized with
// quantity 0 so streak counts and chart axes never skip a day. "dejar"
// habits are excluded here; their fill is the dedicated pass above, which
// deliberately starts one day into the week.
func fillDailyWeeks(rows []Row) []Row {
	type windowKey struct {
		userID    int64
		habit     string
		weekStart string
	}
	present := make(map[windowKey]map[string]bool)
	templates := make(map[windowKey]Row)
	var order []windowKey
	for _, r := range rows {
		if r.Frequency.IsWeekly() || r.Category == models.CategoryQuit {
			continue
		}
		day, err := time.Parse(dayFormat, r.Day)
		if err != nil {
			continue
		}
		k := windowKey{r.UserID, r.Habit, WeekStart(day).Format(dayFormat)}
		if present[k] == nil {
			present[k] = make(map[string]bool)
			templates[k] = r
			order = append(order, k)
		}
		present[k][r.Day] = true
	}

	for _, k := range order {
		tmpl := templates[k]
		start, _ := time.Parse(dayFormat, k.weekStart)
		for i := 0; i < 7; i++ {
			day := start.AddDate(0, 0, i).Format(dayFormat)
			if present[k][day] {
				continue
			}
			rows = append(rows, Row{
				UserID:       tmpl.UserID,
				Habit:        tmpl.Habit,
				Category:     tmpl.Category,
				Frequency:    tmpl.Frequency,
				Day:          day,
				GoalQuantity: tmpl.GoalQuantity,
			})
		}
	}
	return rows
}

// dedup merges rows sharing the full grouping key, summing quantities,
// averaging means and keeping the worst (minimum) lapse signal. The join
// can emit duplicates for the same habit-day.
func dedup(rows []Row) []Row {
	type groupKey struct {
		userID int64
		habit  string
		cat    models.Category
		freq   models.Frequency
		day    string
		goal   float64
	}
	merged := make(map[groupKey]*Row)
	counts := make(map[groupKey]int)
	var order []groupKey
	for _, r := range rows {
		k := groupKey{r.UserID, r.Habit, r.Category, r.Frequency, r.Day, r.GoalQuantity}
		if m, ok := merged[k]; ok {
			m.Total += r.Total
			m.Mean += r.Mean
			if r.QuitMin < m.QuitMin {
				m.QuitMin = r.QuitMin
			}
			counts[k]++
			continue
		}
		cp := r
		merged[k] = &cp
		counts[k] = 1
		order = append(order, k)
	}
	out := make([]Row, 0, len(order))
	for _, k := range order {
		m := merged[k]
		m.Mean /= float64(counts[k])
		out = append(out, *m)
	}
	return out
}

// reindexWeekly expands weekly-habit rows into full Monday..Sunday windows.
// Each window is anchored on the earliest action date of that habit inside
// it, not on the wall clock, so historical weeks reconstruct the same way
// as the current one. Every day earns independent credit toward the weekly
// pool from that single day's quantity; aggregation later takes the best
// day per habit, not the sum.
func reindexWeekly(rows []Row) []Row {
	type windowKey struct {
		userID    int64
		habit     string
		weekStart string
	}
	byDay := make(map[windowKey]map[string]float64)
	templates := make(map[windowKey]Row)
	var order []windowKey
	for _, r := range rows {
		if !r.Frequency.IsWeekly() {
			continue
		}
		day, err := time.Parse(dayFormat, r.Day)
		if err != nil {
			continue
		}
		k := windowKey{r.UserID, r.Habit, WeekStart(day).Format(dayFormat)}
		if _, ok := byDay[k]; !ok {
			byDay[k] = make(map[string]float64)
			templates[k] = r
			order = append(order, k)
		}
		byDay[k][r.Day] += r.Total
	}

	var out []Row
	for _, k := range order {
		tmpl := templates[k]
		start, _ := time.Parse(dayFormat, k.weekStart)
		for i := 0; i < 7; i++ {
			day := start.AddDate(0, 0, i).Format(dayFormat)
			total := byDay[k][day]
			// Plain ratio credit regardless of category; weekly habits
			// have no all-or-nothing branch.
			var points float64
			if tmpl.GoalQuantity > 0 {
				points = math.Min(total/tmpl.GoalQuantity*weeklyPointsMax, weeklyPointsMax)
			}
			out = append(out, Row{
				UserID:       tmpl.UserID,
				Habit:        tmpl.Habit,
				Category:     tmpl.Category,
				Frequency:    models.FrequencyWeekly,
				Day:          day,
				Total:        total,
				GoalQuantity: tmpl.GoalQuantity,
				Points:       points,
				PointsMax:    weeklyPointsMax,
			})
		}
	}
	return out
}
