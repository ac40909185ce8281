package backups

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/constants"
)

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}
	path, err := mgr.Create(ctx.Ctx())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	ctx.Println(cli.OK("Backup created"))
	ctx.Printf("   %s\n", path)
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		ctx.Println("No backups found.")
		ctx.Printf("Backups are stored in: %s\n", mgr.Dir())
		return nil
	}

	ctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	for _, b := range backups {
		ctx.Printf("  %s  %s  (%.1f KB)\n",
			b.Timestamp.Local().Format("2006-01-02 15:04:05"),
			filepath.Base(b.Path),
			float64(b.Size)/1024.0,
		)
	}
	ctx.Printf("\nBackup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or file name of the backup to restore."`
	Yes        bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}

	path, err := resolveBackupPath(c.BackupFile, mgr.Dir())
	if err != nil {
		return err
	}

	if !c.Yes {
		confirmed := false
		err := huh.NewConfirm().
			Title("Restore " + filepath.Base(path) + "?").
			Description("This replaces the current database. Stop the habittrack server first.\nThe current database is backed up before restoring.").
			Affirmative("Restore").
			Negative("Cancel").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			ctx.Println("Restore cancelled.")
			return nil
		}
	}

	// release our own handle on the file first
	if err := ctx.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
	}

	previous, err := mgr.Restore(ctx.Ctx(), path)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	ctx.Println(cli.OK("Database restored"))
	if previous != "" {
		ctx.Printf("   Previous database saved as %s\n", filepath.Base(previous))
	}
	return nil
}

// resolveBackupPath accepts an absolute path, a path relative to the working
// directory or a file name inside the backup directory.
func resolveBackupPath(name, backupDir string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("backup file not found: %s", name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	candidate := filepath.Join(backupDir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return "", fmt.Errorf("backup file not found: tried the current directory and %s", backupDir)
}
