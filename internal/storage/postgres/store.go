package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/storage/sqlstore"
)

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Store is the PostgreSQL provider. Tables live in the habittrack schema and
// habit transactions lock the row with SELECT ... FOR UPDATE.
type Store struct {
	*sqlstore.Store
	connStr string
}

func New(connStr string) *Store {
	return &Store{connStr: withSearchPath(connStr)}
}

// Dialect describes PostgreSQL to the shared SQL layer
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              constants.DriverPostgres,
		Placeholder:       sq.Dollar,
		LockSuffix:        "FOR UPDATE",
		IsUniqueViolation: isUniqueViolation,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func isURL(connStr string) bool {
	return strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://")
}

// hasParam reports whether connStr sets key, in either URL or key=value form.
// Keys match case-insensitively.
func hasParam(connStr, key string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for k := range u.Query() {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	for _, field := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// withSearchPath points the connection at the application schema unless the
// caller already chose one.
func withSearchPath(connStr string) string {
	if hasParam(connStr, "search_path") {
		return connStr
	}
	if isURL(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return connStr
		}
		q := u.Query()
		q.Set("search_path", constants.AppName)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
}

// ValidateConnString checks that connStr parses as a PostgreSQL URI or DSN
// and carries no password.
func ValidateConnString(connStr string) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	if isURL(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
		}
		if _, set := u.User.Password(); set {
			return ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return nil
	}

	if hasParam(connStr, "password") {
		return ErrEmbeddedCredentials
	}
	return nil
}

// Open connects and creates the application schema without migrating
func (s *Store) Open(ctx context.Context) error {
	if s.Store != nil {
		return nil
	}

	db, err := sqlx.Open(constants.DriverPostgres, s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(constants.DefaultMaxOpenConn)
	db.SetMaxIdleConns(constants.DefaultMaxOpenConn)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasParam(s.connStr, "sslmode") {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.AppName); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
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
