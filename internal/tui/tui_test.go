package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestMenuNavigation(t *testing.T) {
	m := NewMenu("Main", []string{"Stats", "Devices", "Lists"})

	steps := []struct {
		key  tea.KeyMsg
		want int
	}{
		{tea.KeyMsg{Type: tea.KeyDown}, 1},
		{runes("j"), 2},
		{tea.KeyMsg{Type: tea.KeyDown}, 0},
		{tea.KeyMsg{Type: tea.KeyUp}, 2},
		{runes("k"), 1},
	}
	for i, s := range steps {
		next, cmd := m.Update(s.key)
		m = next.(Menu)
		if cmd != nil {
			t.Fatalf("step %d: unexpected command", i)
		}
		if m.Cursor() != s.want {
			t.Errorf("step %d: cursor = %d, want %d", i, m.Cursor(), s.want)
		}
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Menu)
	if cmd == nil {
		t.Fatal("enter should quit")
	}
	if idx, ok := m.Chosen(); !ok || idx != 1 {
		t.Errorf("Chosen() = %d, %v; want 1, true", idx, ok)
	}
	if m.View() != "" {
		t.Error("view should be empty after choosing")
	}
}

func TestMenuNumberShortcut(t *testing.T) {
	m := NewMenu("Main", []string{"a", "b", "c"})
	next, cmd := m.Update(runes("3"))
	if cmd == nil {
		t.Fatal("number should select")
	}
	if idx, _ := next.(Menu).Chosen(); idx != 2 {
		t.Errorf("Chosen() = %d, want 2", idx)
	}

	next, cmd = m.Update(runes("7"))
	if cmd != nil {
		t.Error("out of range number must be ignored")
	}
	if _, ok := next.(Menu).Chosen(); ok {
		t.Error("nothing should be chosen")
	}
}

func TestMenuBack(t *testing.T) {
	for _, key := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		next, cmd := NewMenu("Main", nil).Update(key)
		if cmd == nil {
			t.Errorf("%s should quit", key)
		}
		if _, ok := next.(Menu).Chosen(); ok {
			t.Errorf("%s should not choose", key)
		}
	}
}

func TestMenuView(t *testing.T) {
	view := NewMenu("Pi-hole Manager", []string{"Statistics", "Devices"}).WithSubtitle("v1").View()
	for _, want := range []string{"Pi-hole Manager", "v1", "> [1] Statistics", "[2] Devices", "enter"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func typeInto(p Prompt, s string) Prompt {
	next, _ := p.Update(runes(s))
	return next.(Prompt)
}

func TestPrompt(t *testing.T) {
	p := typeInto(NewPrompt("Domain"), "example.com")
	next, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should quit")
	}
	if v, ok := next.(Prompt).Value(); !ok || v != "example.com" {
		t.Errorf("Value() = %q, %v", v, ok)
	}
}

func TestPromptDefaultAndValidation(t *testing.T) {
	p := NewPrompt("Profile", WithDefault("moderate"), WithValidator(func(s string) error {
		if s == "bad" {
			return errors.New("unknown profile")
		}
		return nil
	}))

	next, _ := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if v, _ := next.(Prompt).Value(); v != "moderate" {
		t.Errorf("empty input should use the default, got %q", v)
	}

	p = typeInto(p, "bad")
	next, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("invalid value must not quit")
	}
	p = next.(Prompt)
	if _, ok := p.Value(); ok {
		t.Error("invalid value must not be accepted")
	}
	if !strings.Contains(p.View(), "unknown profile") {
		t.Errorf("view should show the error:\n%s", p.View())
	}
}

func TestPromptMasked(t *testing.T) {
	p := typeInto(NewPrompt("Router password", Masked()), "hunter2")
	if strings.Contains(p.View(), "hunter2") {
		t.Error("masked prompt echoed the secret")
	}
	next, _ := p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := next.(Prompt).Value(); ok {
		t.Error("esc should cancel")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name    string
		def     bool
		key     tea.KeyMsg
		yes, ok bool
	}{
		{"yes", false, runes("y"), true, true},
		{"no", true, runes("N"), false, true},
		{"enter default yes", true, tea.KeyMsg{Type: tea.KeyEnter}, true, true},
		{"enter default no", false, tea.KeyMsg{Type: tea.KeyEnter}, false, true},
		{"esc", true, tea.KeyMsg{Type: tea.KeyEsc}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := NewConfirm("Proceed?", tt.def).Update(tt.key)
			if cmd == nil {
				t.Fatal("expected quit")
			}
			yes, ok := next.(Confirm).Answer()
			if yes != tt.yes || ok != tt.ok {
				t.Errorf("Answer() = %v, %v; want %v, %v", yes, ok, tt.yes, tt.ok)
			}
		})
	}

	if _, cmd := NewConfirm("Proceed?", false).Update(runes("x")); cmd != nil {
		t.Error("other keys must be ignored")
	}
	if v := NewConfirm("Proceed?", true).View(); !strings.Contains(v, "[Y/n]") {
		t.Errorf("View() = %q", v)
	}
}

func TestFormatting(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		got, want string
	}{
		{Number(1234567), "1,234,567"},
		{Number(int64(42)), "42"},
		{Percent(12.345), "12.3%"},
		{Ago(now.Add(-3*time.Minute), now), "3 minutes ago"},
		{Ago(time.Time{}, now), "never"},
		{Bytes(82854982), "83 MB"},
		{Truncate("doubleclick.net", 8), "doublec…"},
		{Truncate("short", 8), "short"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStatusLines(t *testing.T) {
	if got := Success("saved %d rules", 2); !strings.Contains(got, "✓ saved 2 rules") {
		t.Errorf("Success() = %q", got)
	}
	if got := Fail("boom"); !strings.Contains(got, "✗ boom") {
		t.Errorf("Fail() = %q", got)
	}
	if got := Warn("careful"); !strings.Contains(got, "⚠ careful") {
		t.Errorf("Warn() = %q", got)
	}
	if got := Info("note"); !strings.Contains(got, "ℹ note") {
		t.Errorf("Info() = %q", got)
	}
}

func TestTable(t *testing.T) {
	out := Table("Top Domains", []string{"Domain", "Queries"}, [][]string{
		{"example.com", "1,024"},
		{"doubleclick.net", "77"},
	})
	for _, want := range []string{"Top Domains", "Domain", "Queries", "example.com", "1,024", "doubleclick.net"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestKeyValues(t *testing.T) {
	out := KeyValues([][2]string{{"Host", "192.168.0.1"}, {"Username", "admin"}})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if strings.Index(lines[0], "192.168.0.1") != strings.Index(lines[1], "admin") {
		t.Errorf("values not aligned:\n%s", out)
	}
}
