// Package styles holds pimgr's lipgloss palette and shared styles.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on black and dark surfaces.
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	InfoColor      = lipgloss.Color("#60A5FA") // Blue
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937")
	TextColor      = lipgloss.Color("#F9FAFB")
	BorderColor    = lipgloss.Color("#6B7280")

	Primary = lipgloss.NewStyle().Foreground(PrimaryColor)
	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
	Text    = lipgloss.NewStyle().Foreground(TextColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor)

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	MenuItem = lipgloss.NewStyle().
			Foreground(TextColor).
			PaddingLeft(2)

	MenuItemActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			PaddingLeft(0)

	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	TableCell = lipgloss.NewStyle().
			Padding(0, 1)

	SuccessMsg = lipgloss.NewStyle().Foreground(SecondaryColor)
	WarningMsg = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorMsg   = lipgloss.NewStyle().Bold(true).Foreground(ErrorColor)
	InfoMsg    = lipgloss.NewStyle().Foreground(InfoColor)
)

// Status levels understood by StatusColor and StatusIcon.
const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelInfo    = "info"
)

// StatusColor returns the color for a status level or wizard module state.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case LevelSuccess, "completed", "active", "enabled":
		return SecondaryColor
	case LevelWarning, "pending":
		return WarningColor
	case LevelError, "failed", "inactive", "disabled":
		return ErrorColor
	case LevelInfo:
		return InfoColor
	default:
		return MutedColor
	}
}

// StatusIcon returns the glyph for a status level or wizard module state.
func StatusIcon(status string) string {
	switch status {
	case LevelSuccess, "completed", "active", "enabled":
		return "✓"
	case LevelWarning:
		return "⚠"
	case "pending":
		return "⧖"
	case LevelError, "failed", "inactive", "disabled":
		return "✗"
	case LevelInfo:
		return "ℹ"
	default:
		return "•"
	}
}
