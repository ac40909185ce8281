package sqlite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/storage/sqlstore"
)

// Store is the single-file SQLite provider. Writers serialize on BEGIN
// IMMEDIATE, which stands in for row locks.
type Store struct {
	*sqlstore.Store
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Dialect describes SQLite to the shared SQL layer
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              constants.DriverSQLite,
		Placeholder:       sq.Question,
		IsUniqueViolation: isUniqueViolation,
	}
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// DSN builds the driver connection string for path
func DSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Open connects to the database file without migrating it
func (s *Store) Open(ctx context.Context) error {
	if s.Store != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlx.Open(constants.DriverSQLite, DSN(s.path))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.Store = sqlstore.New(db, Dialect())
	return nil
}

// Init opens the database and applies pending migrations
func (s *Store) Init(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	if _, err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool. A closed store can be opened again.
func (s *Store) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}
