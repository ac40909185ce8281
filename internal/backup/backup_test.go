package backup

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habittrack/internal/migration"
	"github.com/julianstephens/habittrack/internal/storage/sqlite"
	"github.com/julianstephens/habittrack/internal/storage/storagetest"
)

// setupTestDB creates a migrated database holding one user and returns its path
func setupTestDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "habittrack.db")

	store := sqlite.NewStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	storagetest.NewUser(t, store)
	return dbPath
}

func countUsers(t *testing.T, dbPath string) int {
	t.Helper()
	db, err := sql.Open("sqlite", sqlite.DSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open %s: %v", dbPath, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	return n
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestCreate(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)

	path, err := mgr.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Dir(path) != mgr.Dir() {
		t.Errorf("expected backup in %s, got %s", mgr.Dir(), path)
	}
	if got := countUsers(t, path); got != 1 {
		t.Errorf("expected 1 user in backup, got %d", got)
	}
}

func TestCreate_MissingDatabase(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := mgr.Create(context.Background()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("expected ErrNoDatabase, got %v", err)
	}
}

func TestCreate_UniqueNames(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	mgr.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		path, err := mgr.Create(context.Background())
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if seen[path] {
			t.Fatalf("duplicate backup path %s", path)
		}
		seen[path] = true
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(backups))
	}
	if filepath.Base(backups[0].Path) != "habittrack-20240301-090000-2.db" {
		t.Errorf("expected the latest collision first, got %s", filepath.Base(backups[0].Path))
	}
}

func TestRotation(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	mgr.keep = 3

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		mgr.now = fixedClock(start.Add(time.Duration(i) * time.Hour))
		if _, err := mgr.Create(context.Background()); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups after rotation, got %d", len(backups))
	}
	if !backups[0].Timestamp.Equal(start.Add(4 * time.Hour)) {
		t.Errorf("expected newest backup first, got %v", backups[0].Timestamp)
	}
	if !backups[2].Timestamp.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("expected oldest kept backup at +2h, got %v", backups[2].Timestamp)
	}
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	if err := os.MkdirAll(mgr.Dir(), 0700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"notes.txt", "habittrack-garbage.db", "habittrack-20240301-090000-x.db"} {
		if err := os.WriteFile(filepath.Join(mgr.Dir(), name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %v", backups)
	}
}

func TestList_NoDirectory(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "habittrack.db"))
	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected empty list, got %d", len(backups))
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	mgr.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	snapshot, err := mgr.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	store := sqlite.NewStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	storagetest.NewUser(t, store)
	store.Close()

	if got := countUsers(t, dbPath); got != 2 {
		t.Fatalf("expected 2 users before restore, got %d", got)
	}

	previous, err := mgr.Restore(ctx, snapshot)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := countUsers(t, dbPath); got != 1 {
		t.Errorf("expected 1 user after restore, got %d", got)
	}
	if previous == "" {
		t.Fatal("expected the pre-restore database to be backed up")
	}
	if got := countUsers(t, previous); got != 2 {
		t.Errorf("expected 2 users in pre-restore backup, got %d", got)
	}
	if _, err := os.Stat(dbPath + ".restore.tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Error("expected temporary restore file to be removed")
	}
}

func TestRestore_RejectsInvalidFiles(t *testing.T) {
	ctx := context.Background()
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, []byte("not a database"), 0600); err != nil {
		t.Fatal(err)
	}

	foreign := filepath.Join(dir, "foreign.db")
	db, err := sql.Open("sqlite", foreign)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE tasks (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	for _, path := range []string{garbage, foreign, filepath.Join(dir, "missing.db")} {
		if _, err := mgr.Restore(ctx, path); err == nil {
			t.Errorf("expected Restore(%s) to fail", filepath.Base(path))
		}
	}
	if got := countUsers(t, dbPath); got != 1 {
		t.Errorf("expected database untouched, got %d users", got)
	}
}

func TestRestore_RejectsNewerSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)

	snapshot, err := mgr.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	db, err := sql.Open("sqlite", snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 999"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := mgr.Restore(ctx, snapshot); !errors.Is(err, migration.ErrSchemaTooNew) {
		t.Errorf("expected ErrSchemaTooNew, got %v", err)
	}
}
