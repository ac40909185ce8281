package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

var userColumns = []string{"id", "username", "email", "password_hash", "role", "balance", "created_at"}

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Balance      int    `db:"balance"`
	CreatedAt    string `db:"created_at"`
}

func (r userRow) model() (models.User, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Balance:      r.Balance,
		CreatedAt:    createdAt,
	}, nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	query, args, err := s.sb.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.Balance, formatTime(user.CreatedAt)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.wrapWriteErr("create user", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user models.User) error {
	query, args, err := s.sb.Update("users").
		SetMap(map[string]interface{}{
			"username":      user.Username,
			"email":         user.Email,
			"password_hash": user.PasswordHash,
		}).
		Where(sq.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.wrapWriteErr("update user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, sq.Eq{"email": email})
}

func (s *Store) getUser(ctx context.Context, where sq.Eq) (models.User, error) {
	query, args, err := s.sb.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return models.User{}, err
	}

	var row userRow
	if err := sqlx.GetContext(ctx, s.db, &row, query, args...); err != nil {
		if notFound(err) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.model()
}

// adjustBalance adds delta to the user's balance, clamping at zero, and
// returns the new balance.
func (s *Store) adjustBalance(ctx context.Context, ext sqlx.ExtContext, userID string, delta int) (int, error) {
	query, args, err := s.sb.Update("users").
		Set("balance", sq.Expr("CASE WHEN balance + ? < 0 THEN 0 ELSE balance + ? END", delta, delta)).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, storage.ErrNotFound
	}

	query, args, err = s.sb.Select("balance").From("users").Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return 0, err
	}
	var balance int
	if err := sqlx.GetContext(ctx, ext, &balance, query, args...); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}
