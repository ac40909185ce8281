// Package cli holds the state shared by the habittrack commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/julianstephens/habittrack/internal/backup"
	"github.com/julianstephens/habittrack/internal/config"
	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/internal/storage/postgres"
	"github.com/julianstephens/habittrack/internal/storage/sqlite"
	"github.com/julianstephens/habittrack/internal/streak"
	"github.com/julianstephens/habittrack/internal/tracker"
)

var ErrNotSQLite = errors.New("backups are only supported for the sqlite driver")

// Store is a provider that can be opened without migrating
type Store interface {
	storage.Provider
	Open(ctx context.Context) error
	Migrate(ctx context.Context) (int, error)
}

type Context struct {
	Config *config.Config
	Out    io.Writer

	base  context.Context
	store Store
}

func New(ctx context.Context, cfg *config.Config) *Context {
	return &Context{Config: cfg, Out: os.Stdout, base: ctx}
}

// Ctx returns the command's cancellation context
func (c *Context) Ctx() context.Context {
	if c.base == nil {
		return context.Background()
	}
	return c.base
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

// Store returns the configured provider. It is not opened.
func (c *Context) Store() Store {
	if c.store != nil {
		return c.store
	}
	switch c.Config.Database.Driver {
	case constants.DriverPostgres:
		c.store = postgres.New(c.Config.Database.URL)
	default:
		c.store = sqlite.NewStore(c.Config.Database.Path)
	}
	return c.store
}

// SetStore replaces the provider, for tests
func (c *Context) SetStore(s Store) {
	c.store = s
}

// OpenStore opens the provider and applies pending migrations
func (c *Context) OpenStore() (Store, error) {
	s := c.Store()
	if err := s.Init(c.Ctx()); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Context) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Engine builds the streak engine from the streak settings
func (c *Context) Engine() (*streak.Engine, error) {
	loc, err := c.Config.Location()
	if err != nil {
		return nil, err
	}
	return streak.New(streak.Config{
		Location:           loc,
		CoinsPerCompletion: c.Config.Streak.CoinsPerCompletion,
	}), nil
}

// Service wires a tracker over an already opened store
func (c *Context) Service(s storage.Provider) (*tracker.Service, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return tracker.New(s, engine), nil
}

// Tracker opens the store and returns the service on top of it
func (c *Context) Tracker() (*tracker.Service, error) {
	s, err := c.OpenStore()
	if err != nil {
		return nil, err
	}
	return c.Service(s)
}

// Backups returns the backup manager for the SQLite database file
func (c *Context) Backups() (*backup.Manager, error) {
	if c.Config.Database.Driver != constants.DriverSQLite {
		return nil, ErrNotSQLite
	}
	return backup.NewManager(c.Config.Database.Path), nil
}
