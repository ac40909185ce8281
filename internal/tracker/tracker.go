// Package tracker is the application service behind the HTTP API and the CLI.
// Every completion change runs inside a per-habit storage transaction so the
// daily limit and the stored streak stay consistent under concurrent requests.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/internal/streak"
)

var (
	ErrForbidden          = errors.New("habit belongs to another user")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
)

type Service struct {
	store      storage.Provider
	engine     *streak.Engine
	now        func() time.Time
	bcryptCost int
}

type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func New(store storage.Provider, engine *streak.Engine, opts ...Option) *Service {
	s := &Service{
		store:      store,
		engine:     engine,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the streak engine the service applies
func (s *Service) Engine() *streak.Engine {
	return s.engine
}

// withRetry reruns fn while it fails with storage.ErrConflict
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= constants.MaxTxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("Concurrent habit update, retrying", "op", op, "attempt", attempt)
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, constants.MaxTxAttempts, err)
}

// inHabitTx locks habitID, checks that userID owns it and runs fn, retrying
// on version conflicts.
func (s *Service) inHabitTx(ctx context.Context, op, userID, habitID string, fn func(tx storage.Tx, habit models.Habit) error) error {
	return s.withRetry(ctx, op, func() error {
		return s.store.WithHabitTx(ctx, habitID, func(tx storage.Tx, habit models.Habit) error {
			if habit.UserID != userID {
				return ErrForbidden
			}
			return fn(tx, habit)
		})
	})
}

type CompleteResult struct {
	Completion     models.Completion `json:"completion"`
	CompletedToday int               `json:"completedToday"`
	Target         int               `json:"target"`
	Streak         int               `json:"streak"`
	Balance        int               `json:"balance"`
}

// Complete records a completion for today and credits its coins
func (s *Service) Complete(ctx context.Context, userID, habitID string) (CompleteResult, error) {
	var result CompleteResult
	err := s.inHabitTx(ctx, "complete", userID, habitID, func(tx storage.Tx, habit models.Habit) error {
		history, err := tx.Completions(ctx)
		if err != nil {
			return err
		}

		rec, err := s.engine.RecordCompletion(habit, history, s.now())
		if err != nil {
			return err
		}

		if err := tx.AddCompletion(ctx, rec.Completion); err != nil {
			return err
		}
		if _, err := tx.SaveHabit(ctx, rec.Habit); err != nil {
			return err
		}
		balance, err := tx.AdjustBalance(ctx, userID, rec.Completion.CoinsEarned)
		if err != nil {
			return err
		}

		result = CompleteResult{
			Completion:     rec.Completion,
			CompletedToday: rec.CompletedToday,
			Target:         rec.Target,
			Streak:         rec.Habit.Streak,
			Balance:        balance,
		}
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}

	logger.Info("Habit completed", "habit", habitID, "today", result.CompletedToday, "target", result.Target, "streak", result.Streak)
	return result, nil
}

type UncompleteResult struct {
	Removed   models.Completion `json:"removed"`
	NewStreak int               `json:"newStreak"`
	Balance   int               `json:"balance"`
}

// Uncomplete deletes one completion, recomputes the streak and takes the
// coins back.
func (s *Service) Uncomplete(ctx context.Context, userID, habitID, completionID string) (UncompleteResult, error) {
	var result UncompleteResult
	err := s.inHabitTx(ctx, "uncomplete", userID, habitID, func(tx storage.Tx, habit models.Habit) error {
		history, err := tx.Completions(ctx)
		if err != nil {
			return err
		}

		rem, err := s.engine.RemoveCompletion(habit, history, completionID)
		if err != nil {
			return err
		}

		if err := tx.DeleteCompletion(ctx, rem.Removed.ID); err != nil {
			return err
		}
		if _, err := tx.SaveHabit(ctx, rem.Habit); err != nil {
			return err
		}
		balance, err := tx.AdjustBalance(ctx, userID, -rem.Removed.CoinsEarned)
		if err != nil {
			return err
		}

		result = UncompleteResult{
			Removed:   rem.Removed,
			NewStreak: rem.Habit.Streak,
			Balance:   balance,
		}
		return nil
	})
	if err != nil {
		return UncompleteResult{}, err
	}

	logger.Info("Habit completion removed", "habit", habitID, "completion", completionID, "streak", result.NewStreak)
	return result, nil
}

// Drift describes a habit whose stored streak disagrees with its history
type Drift struct {
	HabitID  string
	UserID   string
	Name     string
	Stored   int
	Computed int
	Fixed    bool
}

// RecomputeAll compares every stored streak with a recomputation and, when
// fix is set, writes the recomputed value back.
func (s *Service) RecomputeAll(ctx context.Context, fix bool) ([]Drift, error) {
	habits, err := s.store.ListHabits(ctx, storage.HabitFilter{})
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, h := range habits {
		completions, err := s.store.ListCompletions(ctx, h.ID)
		if err != nil {
			return drifts, err
		}
		computed := s.engine.Recompute(h.Target(), completions)
		if computed == h.Streak {
			continue
		}

		d := Drift{HabitID: h.ID, UserID: h.UserID, Name: h.Name, Stored: h.Streak, Computed: computed}
		if fix {
			if err := s.repairStreak(ctx, h); err != nil {
				return drifts, fmt.Errorf("failed to repair habit %s: %w", h.ID, err)
			}
			d.Fixed = true
			logger.Info("Repaired habit streak", "habit", h.ID, "stored", d.Stored, "computed", d.Computed)
		}
		drifts = append(drifts, d)
	}
	return drifts, nil
}

func (s *Service) repairStreak(ctx context.Context, h models.Habit) error {
	return s.inHabitTx(ctx, "recompute", h.UserID, h.ID, func(tx storage.Tx, habit models.Habit) error {
		history, err := tx.Completions(ctx)
		if err != nil {
			return err
		}
		habit.Streak = s.engine.Recompute(habit.Target(), history)
		_, err = tx.SaveHabit(ctx, habit)
		return err
	})
}
