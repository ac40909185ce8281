package constants

import "time"

const (
	AppName            = "habittrack"
	Version            = "v0.1.0"
	EnvPrefix          = "HABITTRACK_"
	DefaultKeyringUser = "database-connection"
	DefaultConfigFile  = "habittrack.yaml"
	DefaultEnvFile     = ".env"
	DefaultDataDir     = "~/.local/share/habittrack"

	// DateFormat is the calendar day format used for streak arithmetic (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimestampFormat is the fixed-width UTC layout used for TEXT timestamp columns.
	// Fixed width keeps lexical and chronological order identical.
	TimestampFormat = "2006-01-02T15:04:05.000000Z"

	// Streak defaults
	DefaultTimezone           = "UTC"
	DefaultCoinsPerCompletion = 10
	DefaultRepeatCount        = 1
	DefaultCategory           = "other"

	// Server defaults
	DefaultListenAddr     = ":5000"
	DefaultRequestTimeout = 30 * time.Second
	DefaultShutdownGrace  = 10 * time.Second
	MaxBodyBytes          = 1 << 20

	// Storage defaults
	DriverSQLite       = "sqlite"
	DriverPostgres     = "postgres"
	DefaultSQLitePath  = "~/.local/share/habittrack/habittrack.db"
	DefaultMaxOpenConn = 25
	MaxTxAttempts      = 3

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habittrack-"
	BackupFileSuffix = ".db"

	// Roles
	RoleUser = "user"
)
