package system

import (
	"fmt"

	"github.com/julianstephens/habittrack/internal/cli"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	store := ctx.Store()
	if err := store.Open(ctx.Ctx()); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer ctx.Close()

	before, _, err := store.SchemaStatus(ctx.Ctx())
	if err != nil {
		return err
	}

	count, err := store.Migrate(ctx.Ctx())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Printf("No migrations to apply. Database is at version %d.\n", before)
		return nil
	}

	after, _, err := store.SchemaStatus(ctx.Ctx())
	if err != nil {
		return err
	}
	ctx.Printf("Successfully applied %d migration(s): version %d -> %d\n", count, before, after)
	return nil
}
