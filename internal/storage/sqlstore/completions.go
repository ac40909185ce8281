package sqlstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

var completionColumns = []string{"id", "habit_id", "completed_at", "coins_earned"}

type completionRow struct {
	ID          string `db:"id"`
	HabitID     string `db:"habit_id"`
	CompletedAt string `db:"completed_at"`
	CoinsEarned int    `db:"coins_earned"`
}

func (s *Store) ListCompletions(ctx context.Context, habitID string) ([]models.Completion, error) {
	return s.listCompletions(ctx, s.db, habitID)
}

// listCompletions returns the habit's completions newest first
func (s *Store) listCompletions(ctx context.Context, q sqlx.QueryerContext, habitID string) ([]models.Completion, error) {
	query, args, err := s.sb.Select(completionColumns...).
		From("completions").
		Where(sq.Eq{"habit_id": habitID}).
		OrderBy("completed_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []completionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	completions := make([]models.Completion, 0, len(rows))
	for _, r := range rows {
		completedAt, err := parseTime(r.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		completions = append(completions, models.Completion{
			ID:          r.ID,
			HabitID:     r.HabitID,
			CompletedAt: completedAt,
			CoinsEarned: r.CoinsEarned,
		})
	}
	return completions, nil
}

func (s *Store) addCompletion(ctx context.Context, ext sqlx.ExtContext, c models.Completion) error {
	query, args, err := s.sb.Insert("completions").
		Columns(completionColumns...).
		Values(c.ID, c.HabitID, formatTime(c.CompletedAt), c.CoinsEarned).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := ext.ExecContext(ctx, query, args...); err != nil {
		return s.wrapWriteErr("add completion", err)
	}
	return nil
}

func (s *Store) deleteCompletion(ctx context.Context, ext sqlx.ExtContext, habitID, id string) error {
	query, args, err := s.sb.Delete("completions").Where(sq.Eq{"id": id, "habit_id": habitID}).ToSql()
	if err != nil {
		return err
	}
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete completion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type statsRow struct {
	HabitID string `db:"habit_id"`
	Total   int    `db:"total"`
	InRange int    `db:"in_range"`
}

func (s *Store) CompletionStats(ctx context.Context, userID string, from, to time.Time) (map[string]storage.CompletionStats, error) {
	query, args, err := s.sb.Select("c.habit_id AS habit_id", "COUNT(*) AS total").
		Column(sq.Expr(
			"COALESCE(SUM(CASE WHEN c.completed_at >= ? AND c.completed_at < ? THEN 1 ELSE 0 END), 0) AS in_range",
			formatTime(from), formatTime(to),
		)).
		From("completions c").
		Join("habits h ON h.id = c.habit_id").
		Where(sq.Eq{"h.user_id": userID}).
		GroupBy("c.habit_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []statsRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	stats := make(map[string]storage.CompletionStats, len(rows))
	for _, r := range rows {
		stats[r.HabitID] = storage.CompletionStats{Total: r.Total, InRange: r.InRange}
	}
	return stats, nil
}
