// Package tui renders pimgr's terminal surface: status lines, tables,
// number formatting and the bubbletea menu, prompt and confirm models.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pihole-manager/pimgr/internal/tui/styles"
)

func status(level, msg string) string {
	style := lipgloss.NewStyle().Foreground(styles.StatusColor(level))
	return style.Render(styles.StatusIcon(level) + " " + msg)
}

// Success formats a success line.
func Success(format string, args ...any) string {
	return status(styles.LevelSuccess, fmt.Sprintf(format, args...))
}

// Warn formats a warning line.
func Warn(format string, args ...any) string {
	return status(styles.LevelWarning, fmt.Sprintf(format, args...))
}

// Fail formats an error line.
func Fail(format string, args ...any) string {
	return status(styles.LevelError, fmt.Sprintf(format, args...))
}

// Info formats an informational line.
func Info(format string, args ...any) string {
	return status(styles.LevelInfo, fmt.Sprintf(format, args...))
}

// Mark renders a pass/fail glyph.
func Mark(ok bool) string {
	if ok {
		return styles.SuccessMsg.Render("✓")
	}
	return styles.ErrorMsg.Render("✗")
}

// State renders a word in its status color with icon, e.g. "✓ completed".
func State(s string) string {
	return lipgloss.NewStyle().Foreground(styles.StatusColor(s)).Render(styles.StatusIcon(s) + " " + s)
}

// Heading renders a section title.
func Heading(title string) string {
	return styles.Header.Render(title)
}

// Table renders rows under headers with a rounded border. An empty title
// is omitted.
func Table(title string, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			return styles.TableCell
		})
	if title == "" {
		return t.Render()
	}
	return styles.Title.Render(title) + "\n" + t.Render()
}

// KeyValues renders label/value pairs with aligned values.
func KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if w := lipgloss.Width(p[0]); w > width {
			width = w
		}
	}
	var b strings.Builder
	for _, p := range pairs {
		label := p[0] + ":" + strings.Repeat(" ", width-lipgloss.Width(p[0]))
		b.WriteString(styles.Muted.Render(label) + " " + p[1] + "\n")
	}
	return b.String()
}
