package habits

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habittrack/internal/cli"
)

// StreakRecomputeCmd compares every stored streak with one rebuilt from the
// completion history.
type StreakRecomputeCmd struct {
	Fix bool `help:"Write the recomputed streaks back."`
}

func (c *StreakRecomputeCmd) Run(ctx *cli.Context) error {
	svc, err := ctx.Tracker()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer ctx.Close()

	drifts, err := svc.RecomputeAll(ctx.Ctx(), c.Fix)
	if err != nil {
		return err
	}

	if len(drifts) == 0 {
		ctx.Println(cli.OK("Streaks"))
		ctx.Println("   Every stored streak matches its history.")
		return nil
	}

	nameWidth := len("HABIT")
	for _, d := range drifts {
		nameWidth = max(nameWidth, lipgloss.Width(d.Name))
	}
	cell := lipgloss.NewStyle().Width(nameWidth + 2)
	num := lipgloss.NewStyle().Width(10)

	ctx.Println(cli.HeaderStyle.Render(
		cell.Render("HABIT") + num.Render("STORED") + num.Render("COMPUTED") + "STATUS",
	))
	for _, d := range drifts {
		status := "drift"
		if d.Fixed {
			status = "fixed"
		}
		ctx.Println(cell.Render(d.Name) + num.Render(fmt.Sprint(d.Stored)) + num.Render(fmt.Sprint(d.Computed)) + status)
	}
	ctx.Println()

	if !c.Fix {
		ctx.Printf("%d habit(s) drifted. Run with --fix to repair %s.\n", len(drifts), pluralize(len(drifts)))
		return nil
	}
	ctx.Printf("Repaired %d habit(s).\n", len(drifts))
	return nil
}

func pluralize(n int) string {
	if n == 1 {
		return "it"
	}
	return "them"
}
