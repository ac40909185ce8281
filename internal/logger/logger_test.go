package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestInit(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	if err := Init(Config{Dir: dataDir}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logDir := filepath.Join(dataDir, "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log directory was not created: %s", logDir)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after initialization")
	}
	if Logger.GetLevel() != log.InfoLevel {
		t.Errorf("expected info level by default, got %v", Logger.GetLevel())
	}

	Info("Test info message", "key", "value")
	Warn("Test warning message")
	Error("Test error message")

	data, err := os.ReadFile(filepath.Join(logDir, "habittrack.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "Test info message") {
		t.Errorf("expected info message in log file, got %q", string(data))
	}
}

func TestInitLevels(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		level log.Level
	}{
		{"debug flag wins", Config{Debug: true, Level: "error"}, log.DebugLevel},
		{"explicit warn", Config{Level: "warn"}, log.WarnLevel},
		{"explicit upper case", Config{Level: "ERROR"}, log.ErrorLevel},
		{"default", Config{}, log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Dir = t.TempDir()
			if err := Init(tt.cfg); err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			if got := Logger.GetLevel(); got != tt.level {
				t.Errorf("expected level %v, got %v", tt.level, got)
			}
		})
	}
}

func TestInitInvalidLevel(t *testing.T) {
	if err := Init(Config{Level: "verbose", Dir: t.TempDir()}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestInitJSONFormat(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{Dir: dir, Format: "json"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Info("structured", "habit", "h1")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "habittrack.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"habit":"h1"`) {
		t.Errorf("expected JSON key in log output, got %q", string(data))
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
	if With("k", "v") != nil {
		t.Error("expected nil child logger before Init")
	}
}
