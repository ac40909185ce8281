// Package config assembles runtime settings from defaults, a YAML file, an
// optional .env file, HABITTRACK_* environment variables and, for the
// PostgreSQL connection string, the OS keyring. Later sources win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/keyring"
	"github.com/julianstephens/habittrack/internal/storage/postgres"
)

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
	// URLSource records where URL came from: "file", "env" or "keyring"
	URLSource string `yaml:"-"`
}

type StreakConfig struct {
	Timezone           string `yaml:"timezone"`
	CoinsPerCompletion int    `yaml:"coins_per_completion"`
}

type LogConfig struct {
	Debug  bool   `yaml:"debug"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Streak   StreakConfig   `yaml:"streak"`
	Log      LogConfig      `yaml:"log"`

	// File is the YAML file that was loaded, empty when none was found
	File string `yaml:"-"`
}

type LoadOptions struct {
	// ConfigPath is an explicit YAML file. Missing explicit files are an error.
	ConfigPath string
	// EnvFile defaults to .env in the working directory. Missing is fine.
	EnvFile string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           constants.DefaultListenAddr,
			RequestTimeout: constants.DefaultRequestTimeout,
			ShutdownGrace:  constants.DefaultShutdownGrace,
			CORSOrigins:    []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: constants.DriverSQLite,
			Path:   constants.DefaultSQLitePath,
		},
		Streak: StreakConfig{
			Timezone:           constants.DefaultTimezone,
			CoinsPerCompletion: constants.DefaultCoinsPerCompletion,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Dir:    constants.DefaultDataDir,
		},
	}
}

// Load builds the configuration and validates it
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, err := findConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = constants.DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		p, err := ExpandPath(explicit)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}
	if p, ok := os.LookupEnv(constants.EnvPrefix + "CONFIG"); ok && p != "" {
		return findConfigFile(p)
	}
	for _, loc := range []string{constants.DefaultConfigFile, "habittrack.yml"} {
		if _, err := os.Stat(loc); err == nil {
			return loc, nil
		}
	}
	return "", nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	if c.Database.URL != "" {
		c.Database.URLSource = "file"
	}
	return nil
}

func env(key string) (string, bool) {
	v, ok := os.LookupEnv(constants.EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (c *Config) applyEnv() error {
	if v, ok := env("ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := env("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sREQUEST_TIMEOUT: %w", constants.EnvPrefix, err)
		}
		c.Server.RequestTimeout = d
	}
	if v, ok := env("CORS_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	if v, ok := env("DB_DRIVER"); ok {
		c.Database.Driver = strings.ToLower(v)
	}
	if v, ok := env("DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := env("DATABASE_URL"); ok {
		c.Database.URL = v
		c.Database.URLSource = "env"
	}
	if v, ok := env("TIMEZONE"); ok {
		c.Streak.Timezone = v
	}
	if v, ok := env("COINS_PER_COMPLETION"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCOINS_PER_COMPLETION: %w", constants.EnvPrefix, err)
		}
		c.Streak.CoinsPerCompletion = n
	}
	if v, ok := env("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG: %w", constants.EnvPrefix, err)
		}
		c.Log.Debug = b
	}
	if v, ok := env("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := env("LOG_DIR"); ok {
		c.Log.Dir = v
	}
	return nil
}

// resolve expands paths, pulls the keyring fallback and validates
func (c *Config) resolve() error {
	var err error
	if c.Database.Path, err = ExpandPath(c.Database.Path); err != nil {
		return err
	}
	if c.Log.Dir, err = ExpandPath(c.Log.Dir); err != nil {
		return err
	}

	switch c.Database.Driver {
	case constants.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case constants.DriverPostgres:
		if err := c.resolvePostgresURL(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported database driver %q (want %s or %s)", c.Database.Driver, constants.DriverSQLite, constants.DriverPostgres)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Streak.CoinsPerCompletion < 1 {
		return errors.New("streak.coins_per_completion must be at least 1")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = constants.DefaultRequestTimeout
	}
	if c.Server.ShutdownGrace <= 0 {
		c.Server.ShutdownGrace = constants.DefaultShutdownGrace
	}
	return nil
}

// resolvePostgresURL falls back to the keyring. Passwords are only accepted
// from the keyring.
func (c *Config) resolvePostgresURL() error {
	if c.Database.URL == "" {
		connStr, err := keyring.GetConnectionString()
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return fmt.Errorf("no PostgreSQL connection string configured: set database.url, %sDATABASE_URL or run 'habittrack keyring set'", constants.EnvPrefix)
			}
			return err
		}
		c.Database.URL = connStr
		c.Database.URLSource = "keyring"
		return nil
	}

	if err := postgres.ValidateConnString(c.Database.URL); err != nil {
		if errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("%w: use .pgpass, PGPASSWORD or the OS keyring instead", err)
		}
		return err
	}
	return nil
}

// Location returns the reference time zone for streak days
func (c *Config) Location() (*time.Location, error) {
	tz := c.Streak.Timezone
	if tz == "" {
		tz = constants.DefaultTimezone
	}
	if tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid streak.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
