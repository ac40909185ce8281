package habits

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julianstephens/habittrack/internal/cli"
	"github.com/julianstephens/habittrack/internal/config"
	"github.com/julianstephens/habittrack/internal/storage/storagetest"
)

func reopen(t *testing.T, ctx *cli.Context) cli.Store {
	t.Helper()
	store, err := ctx.OpenStore()
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	return store
}

func TestStreakRecomputeCmd(t *testing.T) {
	ctx0 := context.Background()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "habittrack.db")

	var out bytes.Buffer
	ctx := cli.New(ctx0, cfg)
	ctx.Out = &out
	t.Cleanup(func() { ctx.Close() })

	store, err := ctx.OpenStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	if err := (&StreakRecomputeCmd{}).Run(ctx); err != nil {
		t.Fatalf("StreakRecomputeCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "matches its history") {
		t.Errorf("expected a clean report, got %q", out.String())
	}

	// the command closes the store when it finishes
	store = reopen(t, ctx)
	user := storagetest.NewUser(t, store)
	habit := storagetest.NewHabit(t, store, user.ID, 1)
	habit.Name = "Stretch"
	habit.Streak = 4
	if _, err := store.UpdateHabit(ctx0, habit); err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}

	out.Reset()
	if err := (&StreakRecomputeCmd{}).Run(ctx); err != nil {
		t.Fatalf("StreakRecomputeCmd failed: %v", err)
	}
	if !strings.Contains(out.String(), "Stretch") || !strings.Contains(out.String(), "drift") {
		t.Errorf("expected a drift row, got %q", out.String())
	}
	store = reopen(t, ctx)
	if got, _ := store.GetHabit(ctx0, habit.ID); got.Streak != 4 {
		t.Errorf("report-only run changed the streak to %d", got.Streak)
	}

	out.Reset()
	if err := (&StreakRecomputeCmd{Fix: true}).Run(ctx); err != nil {
		t.Fatalf("StreakRecomputeCmd --fix failed: %v", err)
	}
	if !strings.Contains(out.String(), "Repaired 1 habit(s)") {
		t.Errorf("expected a repair summary, got %q", out.String())
	}
	store = reopen(t, ctx)
	if got, _ := store.GetHabit(ctx0, habit.ID); got.Streak != 0 {
		t.Errorf("expected streak repaired to 0, got %d", got.Streak)
	}
}
