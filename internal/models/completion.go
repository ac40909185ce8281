package models

import "time"

// Completion is one recorded instance of performing a habit
type Completion struct {
	ID          string    `json:"completionId"`
	HabitID     string    `json:"habitId"`
	CompletedAt time.Time `json:"completedAt"`
	CoinsEarned int       `json:"coinsEarned"`
}
