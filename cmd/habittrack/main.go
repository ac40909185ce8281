package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/cli/backups"
	"github.com/julianstephens/habittrack/internal/cli/habits"
	"github.com/julianstephens/habittrack/internal/cli/system"
	"github.com/julianstephens/habittrack/internal/cli/users"
	"github.com/julianstephens/habittrack/internal/config"
	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/errors"
	"github.com/julianstephens/habittrack/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"YAML config file." type:"path" env:"HABITTRACK_CONFIG"`
	EnvFile string `help:"Dotenv file with HABITTRACK_* variables." type:"path" default:".env"`
	Debug   bool   `help:"Enable debug logging to stderr."`

	Serve   system.ServeCmd   `cmd:"" help:"Run the HTTP API server." default:"1"`
	Migrate system.MigrateCmd `cmd:"" help:"Apply pending database migrations."`
	Doctor  system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Streak  struct {
		Recompute habits.StreakRecomputeCmd `cmd:"" help:"Compare stored streaks with their completion history."`
	} `cmd:"" help:"Inspect habit streaks."`
	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a backup of the SQLite database." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage SQLite database backups."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the PostgreSQL connection string in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage database credentials in the OS keyring."`
	User struct {
		Add users.UserAddCmd `cmd:"" help:"Register a user."`
	} `cmd:"" help:"Manage users."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracking REST backend"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(config.LoadOptions{ConfigPath: CLI.Config, EnvFile: CLI.EnvFile})
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.Debug {
		cfg.Log.Debug = true
	}

	if err := logger.Init(logger.Config{
		Debug:   cfg.Log.Debug,
		Console: kctx.Command() == "serve",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Dir:     cfg.Log.Dir,
	}); err != nil {
		errors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := cli.New(ctx, cfg)
	if err := kctx.Run(appCtx); err != nil {
		stop()
		errors.Fatal(err)
	}
}
