package report

import (
	"math"
	"testing"

	"truehabits/internal/models"
)

func TestScore_AccumulateMonotonic(t *testing.T) {
	goal := 8.0
	prev := -1.0
	for q := 0.0; q <= goal; q += 0.5 {
		got := score(models.CategorySport, models.FrequencyDaily, q, goal)
		if got < prev {
			t.Fatalf("score decreased: score(%v)=%v < score(prev)=%v", q, got, prev)
		}
		prev = got
	}
}

func TestScore_AccumulateCappedAtMax(t *testing.T) {
	for _, q := range []float64{5, 5.1, 10, 1000} {
		got := score(models.CategorySport, models.FrequencyDaily, q, 5)
		if got != 10 {
			t.Errorf("score(quantity=%v, goal=5) = %v, want 10", q, got)
		}
	}
}

func TestScore_AccumulatePartialCredit(t *testing.T) {
	tests := []struct {
		name  string
		freq  models.Frequency
		total float64
		goal  float64
		want  float64
	}{
		{"half of daily goal", models.FrequencyDaily, 2.5, 5, 5},
		{"tenth of daily goal", models.FrequencyDaily, 0.5, 5, 1},
		{"half of weekly goal", models.FrequencyWeekly, 35, 70, 25},
		{"weekly two sevenths", models.FrequencyWeekly, 2, 7, 2.0 / 7 * 50},
		{"nothing logged", models.FrequencyDaily, 0, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := score(models.CategorySport, tt.freq, tt.total, tt.goal)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("score(%v/%v) = %v, want %v", tt.total, tt.goal, got, tt.want)
			}
		})
	}
}

func TestScore_QuitThreshold(t *testing.T) {
	goal := 2.0
	tests := []struct {
		total float64
		want  float64
	}{
		{0, 10},
		{1, 10},
		{2, 10},
		{2.01, 0},
		{5, 0},
	}
	for _, tt := range tests {
		got := score(models.CategoryQuit, models.FrequencyDaily, tt.total, goal)
		if got != tt.want {
			t.Errorf("quit score(total=%v, goal=%v) = %v, want %v", tt.total, goal, got, tt.want)
		}
		if got != 0 && got != maxPoints(models.FrequencyDaily) {
			t.Errorf("quit score produced intermediate value %v", got)
		}
	}
}

func TestScore_ZeroGoalNeverDivides(t *testing.T) {
	for _, q := range []float64{0, 1, 100} {
		if got := score(models.CategorySport, models.FrequencyDaily, q, 0); got != 0 {
			t.Errorf("score(quantity=%v, goal=0) = %v, want 0", q, got)
		}
	}
}

func TestMaxPoints(t *testing.T) {
	if got := maxPoints(models.FrequencyWeekly); got != 50 {
		t.Errorf("weekly max = %v, want 50", got)
	}
	if got := maxPoints(models.FrequencyDaily); got != 10 {
		t.Errorf("daily max = %v, want 10", got)
	}
	// Unrecognized frequencies cap like daily habits.
	if got := maxPoints(models.ParseFrequency("mensual")); got != 10 {
		t.Errorf("unrecognized frequency max = %v, want 10", got)
	}
}
