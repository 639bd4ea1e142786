package report

import (
	"math"
	"testing"
	"time"

	"truehabits/internal/models"
)

// The test week is Monday 2024-01-01 through Sunday 2024-01-07; the
// reference instant is mid-week.
var testNow = time.Date(2024, time.January, 3, 12, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

func dayOf(d int) *time.Time {
	t := time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func rollupRow(userID int64, habit string, cat models.Category, freq models.Frequency, day *time.Time, total, goal float64) models.RollupRow {
	return models.RollupRow{
		UserID:       userID,
		Habit:        habit,
		Category:     cat,
		Frequency:    freq,
		Day:          day,
		Total:        fp(total),
		GoalQuantity: fp(goal),
		Mean:         fp(total),
	}
}

func rowsFor(series []Row, habit string) []Row {
	var out []Row
	for _, r := range series {
		if r.Habit == habit {
			out = append(out, r)
		}
	}
	return out
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "2024-01-01"},  // Monday
		{time.Date(2024, 1, 3, 23, 59, 0, 0, time.UTC), "2024-01-01"}, // Wednesday
		{time.Date(2024, 1, 7, 1, 0, 0, 0, time.UTC), "2024-01-01"},  // Sunday
		{time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), "2024-01-08"},  // next Monday
	}
	for _, tt := range tests {
		if got := WeekStart(tt.in).Format(dayFormat); got != tt.want {
			t.Errorf("WeekStart(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBuildSeries_DailyHabitWeekComplete(t *testing.T) {
	rollup := []models.RollupRow{
		rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
		rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(4), 3, 5),
	}
	series := BuildSeries(rollup, testNow)

	if len(series) != 7 {
		t.Fatalf("got %d rows, want 7", len(series))
	}
	seen := make(map[string]bool)
	for i, r := range series {
		want := "2024-01-0" + string(rune('1'+i))
		if r.Day != want {
			t.Errorf("row %d day = %s, want %s", i, r.Day, want)
		}
		if seen[r.Day] {
			t.Errorf("duplicate day %s", r.Day)
		}
		seen[r.Day] = true
		if r.PointsMax != 10 {
			t.Errorf("day %s points max = %v, want 10", r.Day, r.PointsMax)
		}
	}
	if series[0].Points != 10 {
		t.Errorf("met day points = %v, want 10", series[0].Points)
	}
	if series[3].Points != 6 {
		t.Errorf("partial day points = %v, want 6", series[3].Points)
	}
	if series[1].Points != 0 || series[1].Total != 0 {
		t.Errorf("gap day = %+v, want zero total and points", series[1])
	}
}

func TestBuildSeries_OuterJoinPlaceholderLandsOnWeekStart(t *testing.T) {
	// A habit with no actions this week arrives as a single row with a
	// nil day and nil quantities.
	rollup := []models.RollupRow{{
		UserID:       1,
		Habit:        "leer",
		Category:     models.CategoryLifestyle,
		Frequency:    models.FrequencyDaily,
		GoalQuantity: fp(10),
	}}
	series := BuildSeries(rollup, testNow)

	if len(series) != 7 {
		t.Fatalf("got %d rows, want 7", len(series))
	}
	for _, r := range series {
		if r.Total != 0 || r.Points != 0 {
			t.Errorf("day %s = %v points, want all-zero week", r.Day, r.Points)
		}
	}
}

func TestBuildSeries_WeeklyIndependentDailyCredit(t *testing.T) {
	// Seven days of 2 against a weekly goal of 7: every day earns
	// (2/7)*50 on its own, with no intra-week accumulation.
	var rollup []models.RollupRow
	for d := 1; d <= 7; d++ {
		rollup = append(rollup, rollupRow(1, "nadar", models.CategorySport, models.FrequencyWeekly, dayOf(d), 2, 7))
	}
	series := BuildSeries(rollup, testNow)

	if len(series) != 7 {
		t.Fatalf("got %d rows, want 7", len(series))
	}
	want := 2.0 / 7 * 50
	for _, r := range series {
		if math.Abs(r.Points-want) > 1e-9 {
			t.Errorf("day %s points = %v, want %v", r.Day, r.Points, want)
		}
		if r.PointsMax != 50 {
			t.Errorf("day %s points max = %v, want 50", r.Day, r.PointsMax)
		}
	}
}

func TestBuildSeries_WeeklyAnchorsOnEarliestAction(t *testing.T) {
	// A historical week: actions on Wed 2023-12-20 must reconstruct the
	// Mon 2023-12-18 .. Sun 2023-12-24 window, not the current week.
	wed := time.Date(2023, time.December, 20, 0, 0, 0, 0, time.UTC)
	rollup := []models.RollupRow{
		rollupRow(1, "leer", models.CategoryLifestyle, models.FrequencyWeekly, &wed, 35, 70),
	}
	series := BuildSeries(rollup, testNow)

	if len(series) != 7 {
		t.Fatalf("got %d rows, want 7", len(series))
	}
	if series[0].Day != "2023-12-18" {
		t.Errorf("window starts %s, want 2023-12-18", series[0].Day)
	}
	if series[6].Day != "2023-12-24" {
		t.Errorf("window ends %s, want 2023-12-24", series[6].Day)
	}
	for _, r := range series {
		if r.Day == "2023-12-20" {
			if r.Points != 25 {
				t.Errorf("action day points = %v, want 25", r.Points)
			}
		} else if r.Points != 0 {
			t.Errorf("day %s points = %v, want 0", r.Day, r.Points)
		}
	}
}

func TestBuildSeries_QuitDailyBackfillSkipsWeekStart(t *testing.T) {
	// One lapse on Wednesday. Back-fill covers Tuesday through Sunday;
	// Monday is deliberately left out of this pass.
	rollup := []models.RollupRow{
		rollupRow(1, "fumar", models.CategoryQuit, models.FrequencyDaily, dayOf(3), 4, 2),
	}
	series := BuildSeries(rollup, testNow)

	if len(series) != 6 {
		t.Fatalf("got %d rows, want 6 (Tue..Sun)", len(series))
	}
	for _, r := range series {
		if r.Day == "2024-01-01" {
			t.Errorf("week start day was back-filled: %+v", r)
		}
		switch r.Day {
		case "2024-01-03":
			if r.Points != 0 {
				t.Errorf("lapse day points = %v, want 0", r.Points)
			}
		default:
			if r.Points != 10 {
				t.Errorf("clean day %s points = %v, want 10", r.Day, r.Points)
			}
		}
	}
}

func TestBuildSeries_DedupSumsDuplicateRows(t *testing.T) {
	rollup := []models.RollupRow{
		rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(2), 2, 5),
		rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(2), 3, 5),
	}
	series := BuildSeries(rollup, testNow)

	var tuesday *Row
	for i := range series {
		if series[i].Day == "2024-01-02" {
			tuesday = &series[i]
		}
	}
	if tuesday == nil {
		t.Fatal("no row for 2024-01-02")
	}
	if tuesday.Total != 5 {
		t.Errorf("merged total = %v, want 5", tuesday.Total)
	}
	if tuesday.Points != 10 {
		t.Errorf("merged points = %v, want 10", tuesday.Points)
	}
}

func TestBuildSeries_Empty(t *testing.T) {
	if got := BuildSeries(nil, testNow); got != nil {
		t.Errorf("BuildSeries(nil) = %v, want nil", got)
	}
}

func TestBuildSeries_MixedUsersStaySeparate(t *testing.T) {
	rollup := []models.RollupRow{
		rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
		rollupRow(2, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 1, 5),
	}
	series := BuildSeries(rollup, testNow)
	if len(series) != 14 {
		t.Fatalf("got %d rows, want 14 (7 per user)", len(series))
	}
	for _, r := range series {
		if r.UserID == 1 && r.Day == "2024-01-01" && r.Points != 10 {
			t.Errorf("user 1 Monday points = %v, want 10", r.Points)
		}
		if r.UserID == 2 && r.Day == "2024-01-01" && r.Points != 2 {
			t.Errorf("user 2 Monday points = %v, want 2", r.Points)
		}
	}
}
