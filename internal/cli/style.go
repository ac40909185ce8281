package cli

import "github.com/charmbracelet/lipgloss"

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	skipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	// HeaderStyle renders table headings
	HeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func OK(label string) string {
	return okStyle.Render("✓ " + label + ": OK")
}

func Fail(label string) string {
	return failStyle.Render("❌ " + label + ": FAIL")
}

func Warn(label string) string {
	return warnStyle.Render("⚠ " + label + ": WARNING")
}

func Skip(label, reason string) string {
	return skipStyle.Render("⊘ " + label + ": SKIPPED (" + reason + ")")
}
