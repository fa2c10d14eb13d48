package popup

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	root       lipgloss.Style
	header     lipgloss.Style
	panel      lipgloss.Style
	panelTitle lipgloss.Style
	inputPanel lipgloss.Style
	response   lipgloss.Style
	errorText  lipgloss.Style
	helpText   lipgloss.Style
	itemTime   lipgloss.Style
	itemPick   lipgloss.Style
	item       lipgloss.Style
	spinner    lipgloss.Style
}

// newTheme returns the dark palette unless name is "light".
func newTheme(name string) uiTheme {
	accent := lipgloss.Color("#7c9cff")
	text := lipgloss.Color("#e6e8f0")
	muted := lipgloss.Color("#8a90a6")
	border := lipgloss.Color("#3a3f55")
	errColor := lipgloss.Color("#ff6b6b")
	pickFg := lipgloss.Color("#10121a")
	if name == "light" {
		accent = lipgloss.Color("#3451d1")
		text = lipgloss.Color("#1d2130")
		muted = lipgloss.Color("#6b7085")
		border = lipgloss.Color("#c9cddb")
		errColor = lipgloss.Color("#c92a2a")
		pickFg = lipgloss.Color("#ffffff")
	}

	return uiTheme{
		root: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(accent).Bold(true),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		response:  lipgloss.NewStyle().Foreground(text),
		errorText: lipgloss.NewStyle().Foreground(errColor).Bold(true),
		helpText:  lipgloss.NewStyle().Foreground(muted),
		itemTime:  lipgloss.NewStyle().Foreground(muted),
		item:      lipgloss.NewStyle().Foreground(text),
		itemPick: lipgloss.NewStyle().
			Foreground(pickFg).
			Background(accent).
			Bold(true),
		spinner: lipgloss.NewStyle().Foreground(accent),
	}
}
