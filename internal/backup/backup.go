// Package backup snapshots and restores the SQLite database file.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/migration"
	"github.com/julianstephens/habittrack/migrations"
)

const stampLayout = "20060102-150405"

var ErrNoDatabase = errors.New("database does not exist")

type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64

	seq int
}

type Manager struct {
	dbPath    string
	backupDir string
	keep      int
	now       func() time.Time
}

// NewManager places backups in a directory next to the database file
func NewManager(dbPath string) *Manager {
	return &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:      constants.MaxBackups,
		now:       time.Now,
	}
}

func (m *Manager) Dir() string {
	return m.backupDir
}

// Create writes a consistent snapshot with VACUUM INTO and prunes the
// oldest snapshots beyond the retention limit.
func (m *Manager) Create(ctx context.Context) (string, error) {
	path, err := m.create(ctx)
	if err != nil {
		return "", err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate old backups", "dir", m.backupDir, "err", err)
	}
	return path, nil
}

func (m *Manager) create(ctx context.Context) (string, error) {
	if _, err := os.Stat(m.dbPath); errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoDatabase, m.dbPath)
	}
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest, err := m.nextPath()
	if err != nil {
		return "", err
	}

	src, err := sql.Open(constants.DriverSQLite, "file:"+m.dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer src.Close()

	if _, err := src.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	logger.Info("Backup created", "path", dest)
	return dest, nil
}

func (m *Manager) nextPath() (string, error) {
	stamp := m.now().UTC().Format(stampLayout)
	path := filepath.Join(m.backupDir, constants.BackupFilePrefix+stamp+constants.BackupFileSuffix)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if i > 100 {
			return "", errors.New("failed to generate unique backup filename")
		}
		path = filepath.Join(m.backupDir, fmt.Sprintf("%s%s-%d%s", constants.BackupFilePrefix, stamp, i, constants.BackupFileSuffix))
	}
}

// parseName extracts the timestamp and collision counter from a backup file name
func parseName(name string) (time.Time, int, bool) {
	if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
		return time.Time{}, 0, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix)

	seq := 0
	if parts := strings.Split(stamp, "-"); len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return time.Time{}, 0, false
		}
		seq = n
		stamp = parts[0] + "-" + parts[1]
	}

	ts, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, seq, true
}

// List returns the backups, newest first
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []Info{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, seq, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.backupDir, entry.Name()),
			Timestamp: ts,
			Size:      fi.Size(),
			seq:       seq,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].seq > backups[j].seq
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
		logger.Debug("Removed old backup", "path", backups[i].Path)
	}
	return nil
}

// Restore replaces the database with backupPath. The current database is
// snapshotted first and the restored file must carry a schema this build can
// open. The server must not be running.
func (m *Manager) Restore(ctx context.Context, backupPath string) (string, error) {
	if _, err := os.Stat(backupPath); err != nil {
		return "", fmt.Errorf("backup file %s: %w", backupPath, err)
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tmp); err != nil {
		return "", fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := verify(ctx, tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	var previous string
	if _, err := os.Stat(m.dbPath); err == nil {
		if previous, err = m.create(ctx); err != nil {
			os.Remove(tmp)
			return "", fmt.Errorf("failed to back up current database before restore: %w", err)
		}
	}

	// stale WAL pages would be replayed over the restored file
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			os.Remove(tmp)
			return "", fmt.Errorf("failed to remove %s: %w", m.dbPath+suffix, err)
		}
	}

	if err := os.Rename(tmp, m.dbPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to restore database: %w", err)
	}

	logger.Info("Database restored", "from", backupPath, "previous", previous)
	return previous, nil
}

// verify checks that path is a habittrack database this build can open
func verify(ctx context.Context, path string) error {
	db, err := sql.Open(constants.DriverSQLite, "file:"+path)
	if err != nil {
		return err
	}
	defer db.Close()

	var tables int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'habits', 'completions')",
	).Scan(&tables)
	if err != nil {
		return err
	}
	if tables != 3 {
		return errors.New("not a habittrack database")
	}

	sub, err := fs.Sub(migrations.FS, constants.DriverSQLite)
	if err != nil {
		return err
	}
	return migration.NewRunner(db, sub, nil).ValidateVersion(ctx)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}
