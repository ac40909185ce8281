package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/habittrack/internal/constants"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger
)

// Config holds logger configuration
type Config struct {
	Debug bool
	// Console mirrors log output to stderr. The server always sets it.
	Console bool
	// Level overrides the default level ("debug", "info", "warn", "error").
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Dir receives logs/habittrack.log. Empty disables the file output.
	Dir string
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var writers []io.Writer

	if cfg.Dir != "" {
		logDir := filepath.Join(cfg.Dir, "logs")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(logDir, constants.AppName+".log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	if cfg.Debug || cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	} else if cfg.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return err
		}
		level = parsed
	}

	Logger = log.NewWithOptions(io.MultiWriter(writers...), log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	if strings.EqualFold(cfg.Format, "json") {
		Logger.SetFormatter(log.JSONFormatter)
	}

	return nil
}

// With returns a child logger carrying keyvals, or nil before Init
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return nil
	}
	return Logger.With(keyvals...)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
