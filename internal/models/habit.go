package models

import "time"

// Habit represents a recurring practice with a daily completion target
type Habit struct {
	ID            string     `json:"habitId"`
	UserID        string     `json:"userId"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Note          string     `json:"note"`
	RepeatCount   int        `json:"repeatCount"`
	Streak        int        `json:"streak"`
	LastCheckDate *time.Time `json:"lastCheckDate,omitempty"`
	Archived      bool       `json:"archived"`
	CreatedAt     time.Time  `json:"createdAt"`
	Version       int        `json:"-"`
}

// Target returns the number of completions that make a day count toward the streak.
// Stored targets below 1 are treated as 1.
func (h Habit) Target() int {
	if h.RepeatCount < 1 {
		return 1
	}
	return h.RepeatCount
}
