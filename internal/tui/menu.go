package tui

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/tui/styles"
)

// Menu is a single-choice list. Items can be picked with the cursor or by
// their number (1-9).
type Menu struct {
	title    string
	subtitle string
	items    []string
	cursor   int
	chosen   int
	quitting bool
}

// NewMenu creates a menu over items.
func NewMenu(title string, items []string) Menu {
	return Menu{title: title, items: items, chosen: -1}
}

// WithSubtitle sets the line shown under the title.
func (m Menu) WithSubtitle(s string) Menu {
	m.subtitle = s
	return m
}

// Init implements tea.Model.
func (m Menu) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	s := key.String()
	if isBack(s) {
		m.quitting = true
		return m, tea.Quit
	}
	if len(m.items) == 0 {
		return m, nil
	}

	switch s {
	case "up", "k":
		m.cursor--
		if m.cursor < 0 {
			m.cursor = len(m.items) - 1
		}
	case "down", "j":
		m.cursor++
		if m.cursor >= len(m.items) {
			m.cursor = 0
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.items) - 1
	case "enter", " ":
		m.chosen = m.cursor
		m.quitting = true
		return m, tea.Quit
	default:
		if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if i := int(s[0] - '1'); i < len(m.items) {
				m.cursor = i
				m.chosen = i
				m.quitting = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func isBack(s string) bool {
	return s == "q" || s == "esc" || s == "ctrl+c"
}

// View implements tea.Model.
func (m Menu) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(m.title) + "\n")
	if m.subtitle != "" {
		b.WriteString(styles.Subtitle.Render(m.subtitle) + "\n\n")
	}
	for i, item := range m.items {
		label := item
		if i < 9 {
			label = fmt.Sprintf("[%d] %s", i+1, item)
		}
		if i == m.cursor {
			b.WriteString(styles.MenuItemActive.Render("> "+label) + "\n")
		} else {
			b.WriteString(styles.MenuItem.Render(label) + "\n")
		}
	}
	help := styles.HelpKey.Render("↑/↓") + " move  " +
		styles.HelpKey.Render("enter") + " select  " +
		styles.HelpKey.Render("q") + " back"
	b.WriteString(styles.HelpBar.Render(help))
	return b.String()
}

// Cursor returns the highlighted index.
func (m Menu) Cursor() int { return m.cursor }

// Chosen returns the selected index; ok is false when the menu was left.
func (m Menu) Chosen() (int, bool) {
	return m.chosen, m.chosen >= 0
}

// RunMenu shows a menu on in/out and returns the chosen index. Leaving the
// menu returns ErrCanceled.
func RunMenu(in io.Reader, out io.Writer, title string, items []string) (int, error) {
	final, err := tea.NewProgram(NewMenu(title, items), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return -1, err
	}
	idx, ok := final.(Menu).Chosen()
	if !ok {
		return -1, errors.ErrCanceled
	}
	return idx, nil
}
