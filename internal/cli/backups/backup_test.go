package backups

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/config"
	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/storage/storagetest"
)

func setupTestContext(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "habittrack.db")

	var out bytes.Buffer
	ctx := cli.New(context.Background(), cfg)
	ctx.Out = &out
	t.Cleanup(func() { ctx.Close() })

	store, err := ctx.OpenStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	storagetest.NewUser(t, store)
	return ctx, &out
}

func TestBackupCreateAndList(t *testing.T) {
	ctx, out := setupTestContext(t)

	if err := (&BackupCreateCmd{}).Run(ctx); err != nil {
		t.Fatalf("BackupCreateCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Backup created") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := (&BackupListCmd{}).Run(ctx); err != nil {
		t.Fatalf("BackupListCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 total") {
		t.Errorf("expected one backup listed, got %q", out.String())
	}
}

func TestBackupList_Empty(t *testing.T) {
	ctx, out := setupTestContext(t)
	if err := (&BackupListCmd{}).Run(ctx); err != nil {
		t.Fatalf("BackupListCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "No backups found") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestBackupRestore_ByName(t *testing.T) {
	ctx, out := setupTestContext(t)
	mgr, err := ctx.Backups()
	if err != nil {
		t.Fatal(err)
	}
	path, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	cmd := &BackupRestoreCmd{BackupFile: filepath.Base(path), Yes: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("BackupRestoreCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Database restored") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestBackupCommands_RequireSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = constants.DriverPostgres
	ctx := cli.New(context.Background(), cfg)

	if err := (&BackupCreateCmd{}).Run(ctx); !errors.Is(err, cli.ErrNotSQLite) {
		t.Errorf("expected ErrNotSQLite, got %v", err)
	}
	if err := (&BackupListCmd{}).Run(ctx); !errors.Is(err, cli.ErrNotSQLite) {
		t.Errorf("expected ErrNotSQLite, got %v", err)
	}
}

func TestResolveBackupPath(t *testing.T) {
	backupDir := t.TempDir()
	inDir := filepath.Join(backupDir, "habittrack-20240301-090000.db")
	if err := os.WriteFile(inDir, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := resolveBackupPath(inDir, backupDir)
	if err != nil || got != inDir {
		t.Errorf("absolute path: got %q, %v", got, err)
	}

	got, err = resolveBackupPath("habittrack-20240301-090000.db", backupDir)
	if err != nil || got != inDir {
		t.Errorf("file name: got %q, %v", got, err)
	}

	if _, err := resolveBackupPath("missing.db", backupDir); err == nil {
		t.Error("expected an error for a missing backup")
	}
	if _, err := resolveBackupPath(filepath.Join(backupDir, "missing.db"), backupDir); err == nil {
		t.Error("expected an error for a missing absolute path")
	}
}
