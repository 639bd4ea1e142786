package report

import (
	"context"
	"testing"
	"time"

	"truehabits/internal/models"
	"truehabits/pkg/logger"
)

type stubStore struct {
	habits  []models.Habit
	allTime []models.RollupRow
	week    []models.RollupRow
	peers   []models.RollupRow
}

func (s *stubStore) GetHabits(_ context.Context, _ int64) ([]models.Habit, error) {
	return s.habits, nil
}

func (s *stubStore) AllTimeRollup(_ context.Context, _ int64) ([]models.RollupRow, error) {
	return s.allTime, nil
}

func (s *stubStore) CurrentWeekRollup(_ context.Context, _ int64, _ time.Time) ([]models.RollupRow, error) {
	return s.week, nil
}

func (s *stubStore) PeerRollup(_ context.Context, _ time.Time) ([]models.RollupRow, error) {
	return s.peers, nil
}

func newTestReporter(store *stubStore) *Reporter {
	return NewReporter(store, logger.NewDevelopment()).WithClock(func() time.Time { return testNow })
}

func TestReporter_DailyHabitMetOnceScenario(t *testing.T) {
	// One daily habit "correr" (5 km/day), 5 km logged on Monday only.
	store := &stubStore{
		habits: []models.Habit{{
			UserID: 1, Name: "correr",
			Category:  models.CategorySport,
			Frequency: models.FrequencyDaily,
			GoalUnit:  "km", GoalQuantity: 5,
		}},
		week: []models.RollupRow{
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
		},
	}
	r := newTestReporter(store)

	points, err := r.WeeklyPoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeeklyPoints failed: %v", err)
	}
	if points != 10 {
		t.Errorf("weekly points = %v, want 10", points)
	}

	bundle, err := r.ComputeWeeklyReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeWeeklyReport failed: %v", err)
	}
	if bundle == nil {
		t.Fatal("bundle is nil, want report")
	}
	if bundle.TotalPoints != 10 {
		t.Errorf("bundle total = %v, want 10", bundle.TotalPoints)
	}
	if bundle.MaxPoints != 70 {
		t.Errorf("bundle max = %v, want 70 (one daily habit)", bundle.MaxPoints)
	}
	if bundle.DaysMet[models.CategorySport] != 1 {
		t.Errorf("days met = %d, want 1", bundle.DaysMet[models.CategorySport])
	}
	series := rowsFor(bundle.Series, "correr")
	if len(series) != 7 {
		t.Fatalf("series has %d rows, want 7", len(series))
	}
	for _, row := range series {
		want := 0.0
		if row.Day == "2024-01-01" {
			want = 10
		}
		if row.Points != want || row.PointsMax != 10 {
			t.Errorf("day %s = %v/%v points, want %v/10", row.Day, row.Points, row.PointsMax, want)
		}
	}
}

func TestReporter_WeeklyHabitHalfwayScenario(t *testing.T) {
	// One weekly habit "leer" (70 pages/week), 35 pages on Wednesday.
	store := &stubStore{
		habits: []models.Habit{{
			UserID: 1, Name: "leer",
			Category:  models.CategoryLifestyle,
			Frequency: models.FrequencyWeekly,
			GoalUnit:  "paginas", GoalQuantity: 70,
		}},
		week: []models.RollupRow{
			rollupRow(1, "leer", models.CategoryLifestyle, models.FrequencyWeekly, dayOf(3), 35, 70),
		},
	}
	r := newTestReporter(store)

	points, err := r.WeeklyPoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeeklyPoints failed: %v", err)
	}
	if points != 25 {
		t.Errorf("weekly points = %v, want 25", points)
	}

	bundle, err := r.ComputeWeeklyReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeWeeklyReport failed: %v", err)
	}
	if bundle.MaxPoints != 50 {
		t.Errorf("bundle max = %v, want 50 (one weekly habit)", bundle.MaxPoints)
	}
	for _, row := range bundle.Series {
		want := 0.0
		if row.Day == "2024-01-03" {
			want = 25
		}
		if row.Points != want {
			t.Errorf("day %s points = %v, want %v", row.Day, row.Points, want)
		}
	}
}

func TestReporter_EmptyWeekReturnsNilBundle(t *testing.T) {
	// Habits exist, but the outer join only yields zero placeholders.
	store := &stubStore{
		habits: []models.Habit{{
			UserID: 1, Name: "correr",
			Category:  models.CategorySport,
			Frequency: models.FrequencyDaily,
			GoalQuantity: 5,
		}},
		week: []models.RollupRow{{
			UserID:       1,
			Habit:        "correr",
			Category:     models.CategorySport,
			Frequency:    models.FrequencyDaily,
			GoalQuantity: fp(5),
		}},
	}
	r := newTestReporter(store)

	bundle, err := r.ComputeWeeklyReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeWeeklyReport failed: %v", err)
	}
	if bundle != nil {
		t.Errorf("bundle = %+v, want nil for empty week", bundle)
	}
}

func TestReporter_NoHabitsAtAll(t *testing.T) {
	r := newTestReporter(&stubStore{})

	points, err := r.WeeklyPoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeeklyPoints failed: %v", err)
	}
	if points != 0 {
		t.Errorf("weekly points = %v, want 0", points)
	}
	bundle, err := r.ComputeWeeklyReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeWeeklyReport failed: %v", err)
	}
	if bundle != nil {
		t.Error("bundle is not nil for user with no data")
	}
}

func TestReporter_WeeklyPointsIdempotent(t *testing.T) {
	store := &stubStore{
		week: []models.RollupRow{
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 3, 5),
			rollupRow(1, "leer", models.CategoryLifestyle, models.FrequencyWeekly, dayOf(3), 20, 70),
		},
	}
	r := newTestReporter(store)

	first, err := r.WeeklyPoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := r.WeeklyPoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if first != second {
		t.Errorf("weekly points not idempotent: %v then %v", first, second)
	}
}

func TestReporter_AllTimePoints(t *testing.T) {
	store := &stubStore{
		allTime: []models.RollupRow{
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(10), 5, 5),
		},
	}
	r := newTestReporter(store)

	points, err := r.AllTimePoints(context.Background(), 1)
	if err != nil {
		t.Fatalf("AllTimePoints failed: %v", err)
	}
	if points != 20 {
		t.Errorf("all-time points = %v, want 20", points)
	}
}

func TestReporter_PeerOverlayForSharedCategories(t *testing.T) {
	store := &stubStore{
		habits: []models.Habit{{
			UserID: 1, Name: "correr",
			Category:  models.CategorySport,
			Frequency: models.FrequencyDaily,
			GoalQuantity: 5,
		}},
		week: []models.RollupRow{
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
		},
		peers: []models.RollupRow{
			rollupRow(1, "correr", models.CategorySport, models.FrequencyDaily, dayOf(1), 5, 5),
			rollupRow(2, "correr", models.CategorySport, models.FrequencyDaily, dayOf(2), 5, 5),
		},
	}
	r := newTestReporter(store)

	bundle, err := r.ComputeWeeklyReport(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeWeeklyReport failed: %v", err)
	}
	peer, ok := bundle.PeerSeries[models.CategorySport]
	if !ok {
		t.Fatal("no peer series for deporte")
	}
	want := [7]float64{0, 10, 0, 0, 0, 0, 0}
	if peer != want {
		t.Errorf("peer series = %v, want %v (requester excluded)", peer, want)
	}
}
