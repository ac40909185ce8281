// Package streak turns a habit's completion history into a streak count and
// enforces the daily completion target.
//
// A calendar day qualifies when its completion count reaches the habit's target.
// The streak is the length of the run of consecutive qualifying days that ends at
// the most recent qualifying day. Recording and removing completions apply the
// same rule, so a from-scratch Recompute always reproduces the stored value.
package streak

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/models"
)

var (
	// ErrLimitReached is returned when today's completions already meet the target
	ErrLimitReached = errors.New("daily completion limit reached")
	// ErrNotFound is returned when a completion does not exist for the habit
	ErrNotFound = errors.New("completion not found")
)

// Config configures an Engine. Zero values fall back to UTC, the default reward
// and random UUIDs.
type Config struct {
	Location           *time.Location
	CoinsPerCompletion int
	NewID              func() string
}

type Engine struct {
	loc    *time.Location
	reward int
	newID  func() string
}

func New(cfg Config) *Engine {
	e := &Engine{
		loc:    cfg.Location,
		reward: cfg.CoinsPerCompletion,
		newID:  cfg.NewID,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.reward <= 0 {
		e.reward = constants.DefaultCoinsPerCompletion
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Location returns the reference time zone used for calendar days
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Day returns the calendar day (YYYY-MM-DD) of t in the reference time zone
func (e *Engine) Day(t time.Time) string {
	return t.In(e.loc).Format(constants.DateFormat)
}

type RecordResult struct {
	Habit          models.Habit
	Completion     models.Completion
	CompletedToday int
	Target         int
}

// RecordCompletion appends a completion at now. The streak only changes at the
// moment today's count reaches the target exactly.
func (e *Engine) RecordCompletion(habit models.Habit, history []models.Completion, now time.Time) (RecordResult, error) {
	target := habit.Target()
	today := e.Day(now)
	counts := e.dailyCounts(history)

	if counts[today] >= target {
		return RecordResult{}, ErrLimitReached
	}

	completion := models.Completion{
		ID:          e.newID(),
		HabitID:     habit.ID,
		CompletedAt: now.UTC(),
		CoinsEarned: e.reward,
	}
	completedToday := counts[today] + 1

	if completedToday == target {
		yesterday := previousDay(today)
		if counts[yesterday] >= target {
			habit.Streak = runLength(counts, yesterday, target) + 1
		} else {
			habit.Streak = 1
		}
		checked := now.UTC()
		habit.LastCheckDate = &checked
	}

	return RecordResult{
		Habit:          habit,
		Completion:     completion,
		CompletedToday: completedToday,
		Target:         target,
	}, nil
}

type RemoveResult struct {
	Habit     models.Habit
	Removed   models.Completion
	Remaining []models.Completion
}

// RemoveCompletion drops completionID from history and recomputes the streak
// from what remains. LastCheckDate is left as is.
func (e *Engine) RemoveCompletion(habit models.Habit, history []models.Completion, completionID string) (RemoveResult, error) {
	idx := -1
	for i, c := range history {
		if c.ID == completionID && c.HabitID == habit.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return RemoveResult{}, ErrNotFound
	}

	removed := history[idx]
	remaining := make([]models.Completion, 0, len(history)-1)
	remaining = append(remaining, history[:idx]...)
	remaining = append(remaining, history[idx+1:]...)

	habit.Streak = e.Recompute(habit.Target(), remaining)

	return RemoveResult{
		Habit:     habit,
		Removed:   removed,
		Remaining: SortDescending(remaining),
	}, nil
}

// Recompute derives the streak for target from scratch
func (e *Engine) Recompute(target int, completions []models.Completion) int {
	if target < 1 {
		target = 1
	}
	counts := e.dailyCounts(completions)

	latest := ""
	for day, n := range counts {
		if n >= target && day > latest {
			latest = day
		}
	}
	if latest == "" {
		return 0
	}
	return runLength(counts, latest, target)
}

type Progress struct {
	CompletedToday int  `json:"completedToday"`
	Target         int  `json:"target"`
	Streak         int  `json:"streak"`
	DoneToday      bool `json:"doneToday"`
}

// Progress reports where the habit stands for the calendar day of now
func (e *Engine) Progress(habit models.Habit, history []models.Completion, now time.Time) Progress {
	target := habit.Target()
	today := e.dailyCounts(history)[e.Day(now)]
	return Progress{
		CompletedToday: today,
		Target:         target,
		Streak:         habit.Streak,
		DoneToday:      today >= target,
	}
}

func (e *Engine) dailyCounts(completions []models.Completion) map[string]int {
	counts := make(map[string]int, len(completions))
	for _, c := range completions {
		counts[e.Day(c.CompletedAt)]++
	}
	return counts
}

// runLength counts consecutive qualifying days walking backward from day
func runLength(counts map[string]int, day string, target int) int {
	n := 0
	for counts[day] >= target {
		n++
		day = previousDay(day)
	}
	return n
}

func previousDay(day string) string {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(constants.DateFormat)
}

// SortDescending returns completions ordered newest first
func SortDescending(completions []models.Completion) []models.Completion {
	sorted := make([]models.Completion, len(completions))
	copy(sorted, completions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CompletedAt.After(sorted[j].CompletedAt)
	})
	return sorted
}
