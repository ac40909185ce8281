package storage

import (
	"context"
	"errors"
	"time"

	"github.com/julianstephens/habittrack/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

// HabitFilter narrows ListHabits. A nil Archived returns both states.
type HabitFilter struct {
	UserID   string
	Archived *bool
}

// CompletionStats summarizes the completions of one habit
type CompletionStats struct {
	Total   int
	InRange int
}

// Tx is the view of the store inside a per-habit transaction. The habit row
// is locked for the lifetime of the transaction.
type Tx interface {
	Completions(ctx context.Context) ([]models.Completion, error)
	AddCompletion(ctx context.Context, c models.Completion) error
	DeleteCompletion(ctx context.Context, id string) error
	// SaveHabit writes the mutable habit fields, failing with ErrConflict when
	// the stored version no longer matches habit.Version.
	SaveHabit(ctx context.Context, habit models.Habit) (models.Habit, error)
	AdjustBalance(ctx context.Context, userID string, delta int) (int, error)
}

type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	Driver() string
	SchemaStatus(ctx context.Context) (current, latest int, err error)

	// Users
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	// UpdateUser writes username, email and password hash. Balance is only
	// moved through Tx.AdjustBalance.
	UpdateUser(ctx context.Context, user models.User) error

	// Habits
	CreateHabit(ctx context.Context, habit models.Habit) error
	GetHabit(ctx context.Context, id string) (models.Habit, error)
	ListHabits(ctx context.Context, filter HabitFilter) ([]models.Habit, error)
	UpdateHabit(ctx context.Context, habit models.Habit) (models.Habit, error)
	DeleteHabit(ctx context.Context, id string) error

	// Completions
	ListCompletions(ctx context.Context, habitID string) ([]models.Completion, error)
	// CompletionStats counts completions per habit of userID, with InRange
	// limited to completions in [from, to).
	CompletionStats(ctx context.Context, userID string, from, to time.Time) (map[string]CompletionStats, error)

	// WithHabitTx locks habitID and runs fn inside one transaction. fn's error
	// rolls the transaction back and is returned unchanged.
	WithHabitTx(ctx context.Context, habitID string, fn func(tx Tx, habit models.Habit) error) error
}
