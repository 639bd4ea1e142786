package report

import (
	"context"
	"fmt"
	"time"

	"truehabits/internal/models"
	"truehabits/pkg/logger"
)

// Store is the read surface the reporting pipeline needs. Implemented by
// the postgres layer; kept narrow so tests can feed rollups directly.
type Store interface {
	GetHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	AllTimeRollup(ctx context.Context, userID int64) ([]models.RollupRow, error)
	CurrentWeekRollup(ctx context.Context, userID int64, now time.Time) ([]models.RollupRow, error)
	PeerRollup(ctx context.Context, now time.Time) ([]models.RollupRow, error)
}

// Bundle is the computed weekly report: the numeric answers for the chat
// layer and the data series for the rendering sink.
type Bundle struct {
	UserID         int64
	WeekStart      time.Time
	TotalPoints    float64
	MaxPoints      float64
	CategoryTotals map[models.Category]float64
	DaysMet        map[models.Category]int
	Series         []Row
	CategorySeries map[models.Category][7]float64
	PeerSeries     map[models.Category][7]float64
}

// Reporter is the reporting facade. Every call recomputes from current
// store state; nothing is cached.
type Reporter struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewReporter(store Store, log *logger.Logger) *Reporter {
	return &Reporter{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the reference clock. Tests pin it to a fixed instant.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// WeeklyPoints returns the user's points for the current week. Unrounded;
// callers round for display.
func (r *Reporter) WeeklyPoints(ctx context.Context, userID int64) (float64, error) {
	now := r.now()
	rollup, err := r.store.CurrentWeekRollup(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to load current week rollup: %w", err)
	}
	return SumWeeklyPoints(BuildSeries(rollup, now)), nil
}

// AllTimePoints returns the user's historical point total, rounded to one
// decimal.
func (r *Reporter) AllTimePoints(ctx context.Context, userID int64) (float64, error) {
	now := r.now()
	rollup, err := r.store.AllTimeRollup(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load all-time rollup: %w", err)
	}
	return SumAllTimePoints(BuildSeries(rollup, now)), nil
}

// ComputeWeeklyReport assembles the full weekly bundle. A nil bundle with
// a nil error means the user has no activity this week; callers render a
// friendly empty state, never an error.
func (r *Reporter) ComputeWeeklyReport(ctx context.Context, userID int64) (*Bundle, error) {
	now := r.now()
	rollup, err := r.store.CurrentWeekRollup(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load current week rollup: %w", err)
	}
	series := BuildSeries(rollup, now)
	if !hasActivity(series) {
		return nil, nil
	}

	habits, err := r.store.GetHabits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load habits: %w", err)
	}
	var daily, weekly int
	for _, h := range habits {
		if h.Frequency.IsWeekly() {
			weekly++
		} else {
			daily++
		}
	}

	bundle := &Bundle{
		UserID:         userID,
		WeekStart:      WeekStart(now),
		TotalPoints:    SumWeeklyPoints(series),
		MaxPoints:      float64(daily)*7*dailyPointsMax + float64(weekly)*weeklyPointsMax,
		CategoryTotals: CategoryTotals(series),
		DaysMet:        CompletionCounts(series, now),
		Series:         series,
		CategorySeries: make(map[models.Category][7]float64),
	}
	for cat := range bundle.CategoryTotals {
		bundle.CategorySeries[cat] = WeekdayTotals(series, cat)
	}

	bundle.PeerSeries = r.peerSeries(ctx, userID, bundle.CategoryTotals, now)
	return bundle, nil
}

// peerSeries overlays the peer cohort for the shared comparison categories.
// A peer rollup failure degrades to no overlay; the report itself still
// goes out.
func (r *Reporter) peerSeries(ctx context.Context, userID int64, totals map[models.Category]float64, now time.Time) map[models.Category][7]float64 {
	compare := []models.Category{models.CategorySport, models.CategoryLifestyle}
	wanted := false
	for _, cat := range compare {
		if _, ok := totals[cat]; ok {
			wanted = true
		}
	}
	if !wanted {
		return nil
	}

	rollup, err := r.store.PeerRollup(ctx, now)
	if err != nil {
		r.log.Errorw("failed to load peer rollup", "error", err, "user_id", userID)
		return nil
	}
	peers := BuildSeries(rollup, now)

	out := make(map[models.Category][7]float64)
	for _, cat := range compare {
		if _, ok := totals[cat]; ok {
			out[cat] = PeerWeekdayTotals(peers, cat, userID)
		}
	}
	return out
}

func hasActivity(series []Row) bool {
	for _, r := range series {
		if r.Total > 0 {
			return true
		}
	}
	return false
}
