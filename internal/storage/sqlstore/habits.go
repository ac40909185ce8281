package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

var habitColumns = []string{
	"id", "user_id", "name", "category", "note", "repeat_count",
	"streak", "last_check_date", "archived", "created_at", "version",
}

type habitRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	Name          string         `db:"name"`
	Category      string         `db:"category"`
	Note          string         `db:"note"`
	RepeatCount   int            `db:"repeat_count"`
	Streak        int            `db:"streak"`
	LastCheckDate sql.NullString `db:"last_check_date"`
	Archived      bool           `db:"archived"`
	CreatedAt     string         `db:"created_at"`
	Version       int            `db:"version"`
}

func (r habitRow) model() (models.Habit, error) {
	h := models.Habit{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Category:    r.Category,
		Note:        r.Note,
		RepeatCount: r.RepeatCount,
		Streak:      r.Streak,
		Archived:    r.Archived,
		Version:     r.Version,
	}

	var err error
	h.CreatedAt, err = parseTime(r.CreatedAt)
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if r.LastCheckDate.Valid {
		t, err := parseTime(r.LastCheckDate.String)
		if err != nil {
			return models.Habit{}, fmt.Errorf("failed to parse last_check_date: %w", err)
		}
		h.LastCheckDate = &t
	}
	return h, nil
}

func (s *Store) CreateHabit(ctx context.Context, habit models.Habit) error {
	if habit.Version < 1 {
		habit.Version = 1
	}
	query, args, err := s.sb.Insert("habits").
		Columns(habitColumns...).
		Values(
			habit.ID, habit.UserID, habit.Name, habit.Category, habit.Note, habit.RepeatCount,
			habit.Streak, nullTime(habit.LastCheckDate), habit.Archived, formatTime(habit.CreatedAt), habit.Version,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.wrapWriteErr("create habit", err)
	}
	return nil
}

func (s *Store) GetHabit(ctx context.Context, id string) (models.Habit, error) {
	return s.getHabit(ctx, s.db, id, false)
}

func (s *Store) getHabit(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (models.Habit, error) {
	builder := s.sb.Select(habitColumns...).From("habits").Where(sq.Eq{"id": id})
	if lock && s.dialect.LockSuffix != "" {
		builder = builder.Suffix(s.dialect.LockSuffix)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return models.Habit{}, err
	}

	var row habitRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if notFound(err) {
			return models.Habit{}, storage.ErrNotFound
		}
		return models.Habit{}, fmt.Errorf("failed to get habit: %w", err)
	}
	return row.model()
}

func (s *Store) ListHabits(ctx context.Context, filter storage.HabitFilter) ([]models.Habit, error) {
	builder := s.sb.Select(habitColumns...).From("habits").OrderBy("created_at ASC", "id ASC")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Archived != nil {
		builder = builder.Where(sq.Eq{"archived": *filter.Archived})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []habitRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}

	habits := make([]models.Habit, 0, len(rows))
	for _, r := range rows {
		h, err := r.model()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

// UpdateHabit writes the mutable fields of habit if its version is current
// and returns the habit with the bumped version.
func (s *Store) UpdateHabit(ctx context.Context, habit models.Habit) (models.Habit, error) {
	return s.saveHabit(ctx, s.db, habit)
}

func (s *Store) saveHabit(ctx context.Context, ext sqlx.ExtContext, habit models.Habit) (models.Habit, error) {
	query, args, err := s.sb.Update("habits").
		SetMap(map[string]interface{}{
			"name":            habit.Name,
			"category":        habit.Category,
			"note":            habit.Note,
			"repeat_count":    habit.RepeatCount,
			"streak":          habit.Streak,
			"last_check_date": nullTime(habit.LastCheckDate),
			"archived":        habit.Archived,
			"version":         sq.Expr("version + 1"),
		}).
		Where(sq.Eq{"id": habit.ID, "version": habit.Version}).
		ToSql()
	if err != nil {
		return models.Habit{}, err
	}

	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to update habit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Habit{}, fmt.Errorf("failed to update habit: %w", err)
	}
	if n == 0 {
		if _, err := s.getHabit(ctx, ext, habit.ID, false); errors.Is(err, storage.ErrNotFound) {
			return models.Habit{}, storage.ErrNotFound
		}
		return models.Habit{}, storage.ErrConflict
	}

	habit.Version++
	return habit, nil
}

// DeleteHabit removes the habit and its completions
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sb.Delete("completions").Where(sq.Eq{"habit_id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete completions: %w", err)
	}

	query, args, err = s.sb.Delete("habits").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
