package ui

import "github.com/charmbracelet/lipgloss"

var (
	PrimaryColor = lipgloss.AdaptiveColor{Light: "#5A4FCF", Dark: "#7D74FF"}
	SubtleColor  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	TextColor    = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#5EDC8C"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().Width(22).Foreground(SubtleColor)
	hintStyle  = lipgloss.NewStyle().Foreground(ErrorColor).PaddingLeft(22)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(PrimaryColor)
	disabledButtonStyle = lipgloss.NewStyle().
				Padding(0, 2).
				Foreground(SubtleColor).
				Strikethrough(true)

	logStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SubtleColor).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(SubtleColor).Italic(true)
	okStyle     = lipgloss.NewStyle().Foreground(SuccessColor)
	failStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
)
