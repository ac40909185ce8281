package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

type habitTx struct {
	store   *Store
	tx      *sqlx.Tx
	habitID string
}

func (t *habitTx) Completions(ctx context.Context) ([]models.Completion, error) {
	return t.store.listCompletions(ctx, t.tx, t.habitID)
}

func (t *habitTx) AddCompletion(ctx context.Context, c models.Completion) error {
	if c.HabitID != t.habitID {
		return fmt.Errorf("completion belongs to habit %s, transaction holds %s", c.HabitID, t.habitID)
	}
	return t.store.addCompletion(ctx, t.tx, c)
}

func (t *habitTx) DeleteCompletion(ctx context.Context, id string) error {
	return t.store.deleteCompletion(ctx, t.tx, t.habitID, id)
}

func (t *habitTx) SaveHabit(ctx context.Context, habit models.Habit) (models.Habit, error) {
	if habit.ID != t.habitID {
		return models.Habit{}, fmt.Errorf("habit %s is not held by this transaction", habit.ID)
	}
	return t.store.saveHabit(ctx, t.tx, habit)
}

func (t *habitTx) AdjustBalance(ctx context.Context, userID string, delta int) (int, error) {
	return t.store.adjustBalance(ctx, t.tx, userID, delta)
}

// WithHabitTx begins a transaction, reads habitID with the dialect's row lock
// and hands both to fn. The transaction commits only if fn returns nil.
func (s *Store) WithHabitTx(ctx context.Context, habitID string, fn func(tx storage.Tx, habit models.Habit) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	habit, err := s.getHabit(ctx, tx, habitID, true)
	if err != nil {
		return err
	}

	if err := fn(&habitTx{store: s, tx: tx, habitID: habitID}, habit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
