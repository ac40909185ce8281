package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/internal/streak"
)

type CreateHabitInput struct {
	UserID      string
	Name        string
	Category    string
	Note        string
	RepeatCount int
}

// HabitPatch carries the fields of a partial update. Nil fields are kept.
type HabitPatch struct {
	Name        *string
	Category    *string
	Note        *string
	RepeatCount *int
}

// HabitSummary is a habit as shown in listings
type HabitSummary struct {
	models.Habit
	CompletionCount int  `json:"completionCount"`
	CompletedToday  int  `json:"completedToday"`
	DoneToday       bool `json:"doneToday"`
}

// HabitDetail is a single habit with today's progress
type HabitDetail struct {
	models.Habit
	CompletionCount int             `json:"completionCount"`
	Progress        streak.Progress `json:"progress"`
}

func checkRepeatCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: repeatCount must be at least 1", ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateHabit(ctx context.Context, in CreateHabitInput) (models.Habit, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Habit{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := checkRepeatCount(in.RepeatCount); err != nil {
		return models.Habit{}, err
	}
	if _, err := s.store.GetUser(ctx, in.UserID); err != nil {
		return models.Habit{}, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = constants.DefaultCategory
	}

	habit := models.Habit{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Name:        name,
		Category:    category,
		Note:        in.Note,
		RepeatCount: in.RepeatCount,
		CreatedAt:   s.now().UTC(),
		Version:     1,
	}
	if err := s.store.CreateHabit(ctx, habit); err != nil {
		return models.Habit{}, err
	}

	logger.Info("Habit created", "habit", habit.ID, "user", habit.UserID, "target", habit.RepeatCount)
	return habit, nil
}

// GetHabit returns the habit with today's progress. An empty userID skips
// the ownership check.
func (s *Service) GetHabit(ctx context.Context, userID, habitID string) (HabitDetail, error) {
	habit, err := s.ownedHabit(ctx, userID, habitID)
	if err != nil {
		return HabitDetail{}, err
	}
	completions, err := s.store.ListCompletions(ctx, habitID)
	if err != nil {
		return HabitDetail{}, err
	}
	return HabitDetail{
		Habit:           habit,
		CompletionCount: len(completions),
		Progress:        s.engine.Progress(habit, completions, s.now()),
	}, nil
}

func (s *Service) ownedHabit(ctx context.Context, userID, habitID string) (models.Habit, error) {
	habit, err := s.store.GetHabit(ctx, habitID)
	if err != nil {
		return models.Habit{}, err
	}
	if userID != "" && habit.UserID != userID {
		return models.Habit{}, ErrForbidden
	}
	return habit, nil
}

// todayRange returns the bounds of the current calendar day in the engine's zone
func (s *Service) todayRange() (time.Time, time.Time) {
	now := s.now().In(s.engine.Location())
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// ListHabits returns the user's active or archived habits with completion counts
func (s *Service) ListHabits(ctx context.Context, userID string, archived bool) ([]HabitSummary, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	habits, err := s.store.ListHabits(ctx, storage.HabitFilter{UserID: userID, Archived: &archived})
	if err != nil {
		return nil, err
	}

	from, to := s.todayRange()
	stats, err := s.store.CompletionStats(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	summaries := make([]HabitSummary, 0, len(habits))
	for _, h := range habits {
		st := stats[h.ID]
		summaries = append(summaries, HabitSummary{
			Habit:           h,
			CompletionCount: st.Total,
			CompletedToday:  st.InRange,
			DoneToday:       st.InRange >= h.Target(),
		})
	}
	return summaries, nil
}

// UpdateHabit applies patch. Changing the target recomputes the streak so the
// stored value keeps matching the history.
func (s *Service) UpdateHabit(ctx context.Context, userID, habitID string, patch HabitPatch) (models.Habit, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return models.Habit{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	if patch.RepeatCount != nil {
		if err := checkRepeatCount(*patch.RepeatCount); err != nil {
			return models.Habit{}, err
		}
	}

	var updated models.Habit
	err := s.inHabitTx(ctx, "update", userID, habitID, func(tx storage.Tx, habit models.Habit) error {
		if patch.Name != nil {
			habit.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			habit.Category = strings.TrimSpace(*patch.Category)
			if habit.Category == "" {
				habit.Category = constants.DefaultCategory
			}
		}
		if patch.Note != nil {
			habit.Note = *patch.Note
		}
		if patch.RepeatCount != nil && *patch.RepeatCount != habit.RepeatCount {
			habit.RepeatCount = *patch.RepeatCount
			history, err := tx.Completions(ctx)
			if err != nil {
				return err
			}
			habit.Streak = s.engine.Recompute(habit.Target(), history)
		}

		var err error
		updated, err = tx.SaveHabit(ctx, habit)
		return err
	})
	if err != nil {
		return models.Habit{}, err
	}
	return updated, nil
}

// SetArchived flips the archived flag
func (s *Service) SetArchived(ctx context.Context, userID, habitID string, archived bool) (models.Habit, error) {
	var updated models.Habit
	err := s.inHabitTx(ctx, "archive", userID, habitID, func(tx storage.Tx, habit models.Habit) error {
		habit.Archived = archived
		var err error
		updated, err = tx.SaveHabit(ctx, habit)
		return err
	})
	if err != nil {
		return models.Habit{}, err
	}
	logger.Info("Habit archive state changed", "habit", habitID, "archived", archived)
	return updated, nil
}

// DeleteHabit removes the habit and all of its completions
func (s *Service) DeleteHabit(ctx context.Context, userID, habitID string) error {
	if _, err := s.ownedHabit(ctx, userID, habitID); err != nil {
		return err
	}
	if err := s.store.DeleteHabit(ctx, habitID); err != nil {
		return err
	}
	logger.Info("Habit deleted", "habit", habitID, "user", userID)
	return nil
}

// ListCompletions returns the habit's completion history, newest first
func (s *Service) ListCompletions(ctx context.Context, userID, habitID string) ([]models.Completion, error) {
	if _, err := s.ownedHabit(ctx, userID, habitID); err != nil {
		return nil, err
	}
	return s.store.ListCompletions(ctx, habitID)
}
