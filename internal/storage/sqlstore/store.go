// Package sqlstore holds the SQL shared by the SQLite and PostgreSQL providers.
// Dialect differences are limited to placeholders, row locking and the
// unique-violation check.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/migration"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/migrations"
)

type Dialect struct {
	// Name is the database/sql driver name and the migrations subdirectory
	Name        string
	Placeholder sq.PlaceholderFormat
	// LockSuffix is appended to the habit select inside WithHabitTx
	LockSuffix        string
	IsUniqueViolation func(error) bool
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

func New(db *sqlx.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Driver() string {
	return s.dialect.Name
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, s.dialect.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s migrations: %w", s.dialect.Name, err)
	}
	return migration.NewRunner(s.db.DB, subFS, s.dialect.Placeholder), nil
}

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) (int, error) {
	r, err := s.runner()
	if err != nil {
		return 0, err
	}
	return r.Apply(ctx, func(msg string) {
		logger.Info(msg, "driver", s.dialect.Name)
	})
}

func (s *Store) SchemaStatus(ctx context.Context) (int, int, error) {
	r, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	return r.Status(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(constants.TimestampFormat)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(constants.TimestampFormat, value)
	if err != nil {
		// Rows written by hand may carry RFC 3339 timestamps.
		if t2, err2 := time.Parse(time.RFC3339Nano, value); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func (s *Store) wrapWriteErr(op string, err error) error {
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
