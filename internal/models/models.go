package models

import (
	"strings"
	"time"
)

// Frequency is how often a habit goal renews. Anything that is not
// "semanal" is scored under the daily regime.
type Frequency string

const (
	FrequencyDaily  Frequency = "diaria"
	FrequencyWeekly Frequency = "semanal"
)

// ParseFrequency lowercases the user-entered frequency. Unrecognized
// values are kept as-is: only "semanal" changes scoring behavior.
func ParseFrequency(s string) Frequency {
	return Frequency(strings.ToLower(strings.TrimSpace(s)))
}

func (f Frequency) IsWeekly() bool {
	return f == FrequencyWeekly
}

// Category tags a habit. The set is open: categories outside the known
// constants pass through lowercased so that grouping keeps them apart.
type Category string

const (
	CategoryWalk      Category = "caminar"
	CategorySport     Category = "deporte"
	CategoryLifestyle Category = "estilo-vida"
	CategoryTime      Category = "tiempo"
	CategoryDiet      Category = "alimentacion"
	CategoryQuit      Category = "dejar"
)

func ParseCategory(s string) Category {
	return Category(strings.ToLower(strings.TrimSpace(s)))
}

type User struct {
	ID           int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Sex          string    `json:"sex"`
	Premium      bool      `json:"premium"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Habit is identified by (UserID, Name); names are unique per user only.
type Habit struct {
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Icon         string    `json:"icon"`
	Category     Category  `json:"category"`
	Goal         string    `json:"goal"`
	Frequency    Frequency `json:"frequency"`
	GoalUnit     string    `json:"goal_unit"`
	GoalQuantity float64   `json:"goal_quantity"`
}

// Normalize applies the write-boundary rules: lowercased tags and the
// domain special case that a habit named "caminar" always lands in the
// "caminar" category, whatever the user picked.
func (h *Habit) Normalize() {
	h.Name = strings.ToLower(strings.TrimSpace(h.Name))
	h.Category = ParseCategory(string(h.Category))
	h.Frequency = ParseFrequency(string(h.Frequency))
	if h.Name == string(CategoryWalk) {
		h.Category = CategoryWalk
	}
	if h.GoalQuantity < 0 {
		h.GoalQuantity = 0
	}
}

// UserState tracks where a user is in a chat flow: the registration form,
// the habit entry loop, or day-to-day logging. Held in memory only.
type UserState struct {
	TelegramID      int64
	CurrentState    string
	Name            string
	Age             int
	Sex             string
	Draft           Habit
	Habits          []Habit
	StripeSessionID string
}

// Action is one logged occurrence against a habit. Quantity is already
// normalized into the habit's goal unit by the interpretation boundary.
type Action struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Habit       string    `json:"habit"`
	PerformedAt time.Time `json:"performed_at"`
	Text        string    `json:"text"`
	Quantity    float64   `json:"quantity"`
}

// RollupRow is one grouped row of the habit+action join: one calendar day
// of one habit. Day is nil for outer-join rows of habits with no actions
// in the window. QuitMin is only populated for category "dejar" (the worst
// single lapse that day) and nil otherwise.
type RollupRow struct {
	UserID       int64      `json:"user_id"`
	Habit        string     `json:"habit"`
	Category     Category   `json:"category"`
	Frequency    Frequency  `json:"frequency"`
	Day          *time.Time `json:"day"`
	Total        *float64   `json:"total"`
	GoalQuantity *float64   `json:"goal_quantity"`
	Mean         *float64   `json:"mean"`
	QuitMin      *float64   `json:"quit_min"`
}
