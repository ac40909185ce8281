package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/keyring"
)

var ErrDoctorFailed = errors.New("one or more health checks failed")

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	failed := false
	report := func(label string, err error) bool {
		if err != nil {
			ctx.Println(cli.Fail(label))
			ctx.Printf("   Error: %v\n", err)
			failed = true
			return false
		}
		ctx.Println(cli.OK(label))
		return true
	}

	report("Configuration", checkConfig(ctx))
	reachable := report("Database reachable", checkDatabase(ctx))
	defer ctx.Close()

	if reachable {
		report("Schema version", checkSchema(ctx))
		report("Streak integrity", checkStreaks(ctx))
	} else {
		ctx.Println(cli.Skip("Schema version", "database not reachable"))
		ctx.Println(cli.Skip("Streak integrity", "database not reachable"))
	}

	if ctx.Config.Database.Driver == constants.DriverSQLite {
		if err := checkBackups(ctx); err != nil {
			ctx.Println(cli.Warn("Backups present"))
			ctx.Printf("   %v\n", err)
		} else {
			ctx.Println(cli.OK("Backups present"))
		}
	} else {
		ctx.Println(cli.Skip("Backups present", "not a sqlite database"))
	}

	if keyring.IsAvailable() {
		ctx.Println(cli.OK("OS keyring"))
	} else if ctx.Config.Database.URLSource == "keyring" {
		report("OS keyring", keyring.ErrKeyringUnavailable)
	} else {
		ctx.Println(cli.Warn("OS keyring"))
		ctx.Println("   OS keyring is not available, connection strings must come from the environment")
	}

	ctx.Println()
	if failed {
		return ErrDoctorFailed
	}
	ctx.Println("All checks passed.")
	return nil
}

func checkConfig(ctx *cli.Context) error {
	if _, err := ctx.Config.Location(); err != nil {
		return err
	}
	if ctx.Config.File != "" {
		ctx.Printf("   Loaded %s\n", ctx.Config.File)
	}
	return nil
}

func checkDatabase(ctx *cli.Context) error {
	store := ctx.Store()
	if err := store.Open(ctx.Ctx()); err != nil {
		return err
	}
	return store.Ping(ctx.Ctx())
}

func checkSchema(ctx *cli.Context) error {
	current, latest, err := ctx.Store().SchemaStatus(ctx.Ctx())
	if err != nil {
		return err
	}
	switch {
	case current < latest:
		return fmt.Errorf("database at version %d, %d pending, run 'habittrack migrate'", current, latest-current)
	case current > latest:
		return fmt.Errorf("database at version %d but this build supports %d, upgrade habittrack", current, latest)
	}
	return nil
}

// checkStreaks recomputes every stored streak without repairing it
func checkStreaks(ctx *cli.Context) error {
	current, latest, err := ctx.Store().SchemaStatus(ctx.Ctx())
	if err != nil {
		return err
	}
	if current != latest {
		return errors.New("schema is not current")
	}

	svc, err := ctx.Service(ctx.Store())
	if err != nil {
		return err
	}
	drifts, err := svc.RecomputeAll(ctx.Ctx(), false)
	if err != nil {
		return err
	}
	if len(drifts) > 0 {
		return fmt.Errorf("%d habit(s) have a stored streak that disagrees with their history, run 'habittrack streak recompute --fix'", len(drifts))
	}
	return nil
}

func checkBackups(ctx *cli.Context) error {
	mgr, err := ctx.Backups()
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups found in %s, run 'habittrack backup create'", mgr.Dir())
	}
	return nil
}
