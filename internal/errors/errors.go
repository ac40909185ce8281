// Package errors renders failures for the command line and maps request
// validation errors to per-field details.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/julianstephens/habittrack/internal/backup"
	"github.com/julianstephens/habittrack/internal/keyring"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/migration"
	"github.com/julianstephens/habittrack/internal/storage"
)

// hints pairs known failures with the command or setting that resolves them.
// The first match wins.
var hints = []struct {
	target error
	hint   string
}{
	{migration.ErrSchemaTooNew, "this database was migrated by a newer habittrack, upgrade the binary before using it"},
	{backup.ErrNoDatabase, "run 'habittrack migrate' to create the database"},
	{keyring.ErrNotFound, "store a connection string with 'habittrack keyring set' or set HABITTRACK_DATABASE_URL"},
	{keyring.ErrKeyringUnavailable, "set HABITTRACK_DATABASE_URL instead of using the OS keyring"},
	{storage.ErrDuplicate, "another user already has that email"},
	{storage.ErrConflict, "the habit changed while the command ran, try again"},
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Hint returns the suggested next step for err, or "" when none is known.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	for _, h := range hints {
		if stderrors.Is(err, h.target) {
			return h.hint
		}
	}
	return ""
}

// Report writes err and its hint, if any, to w.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, Format(err))
	if hint := Hint(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// Fatal logs err, reports it on stderr and exits with code 1. A nil err is
// ignored.
func Fatal(err error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err, "hint", Hint(err))
	Report(os.Stderr, err)
	os.Exit(1)
}
