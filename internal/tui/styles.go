package tui

import "github.com/charmbracelet/lipgloss"

var (
	primary     = lipgloss.Color("#2c7be5")
	muted       = lipgloss.Color("#8a94a6")
	success     = lipgloss.Color("#8BC34A")
	destructive = lipgloss.Color("#e53935")
)

// Styles holds the lipgloss styles used by the form view
type Styles struct {
	Label       lipgloss.Style
	Focused     lipgloss.Style
	Hint        lipgloss.Style
	Button      lipgloss.Style
	ButtonFocus lipgloss.Style
	ButtonBusy  lipgloss.Style
	Result      lipgloss.Style
	Error       lipgloss.Style
	Help        lipgloss.Style
	Spinner     lipgloss.Style
}

// DefaultStyles returns the standard palette
func DefaultStyles() Styles {
	button := lipgloss.NewStyle().Padding(0, 2).MarginTop(1)
	return Styles{
		Label:       lipgloss.NewStyle().Bold(true),
		Focused:     lipgloss.NewStyle().Bold(true).Foreground(primary),
		Hint:        lipgloss.NewStyle().Foreground(muted),
		Button:      button.Foreground(lipgloss.Color("#ffffff")).Background(muted),
		ButtonFocus: button.Foreground(lipgloss.Color("#ffffff")).Background(primary).Bold(true),
		ButtonBusy:  button.Foreground(muted),
		Result:      lipgloss.NewStyle().Bold(true).Foreground(success).MarginTop(1),
		Error:       lipgloss.NewStyle().Foreground(destructive).MarginTop(1),
		Help:        lipgloss.NewStyle().Foreground(muted).MarginTop(1),
		Spinner:     lipgloss.NewStyle().Foreground(primary),
	}
}
