package tui

import (
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/tui/styles"
)

// Prompt reads one line of text. In masked mode the input is echoed as
// bullets.
type Prompt struct {
	label    string
	input    textinput.Model
	def      string
	validate func(string) error
	errMsg   string
	value    string
	done     bool
	canceled bool
}

// PromptOption configures a Prompt.
type PromptOption func(*Prompt)

// Masked hides the typed characters.
func Masked() PromptOption {
	return func(p *Prompt) {
		p.input.EchoMode = textinput.EchoPassword
		p.input.EchoCharacter = '•'
	}
}

// WithDefault is returned when the operator submits an empty line.
func WithDefault(v string) PromptOption {
	return func(p *Prompt) {
		p.def = v
		p.input.Placeholder = v
	}
}

// WithValidator rejects values until fn returns nil.
func WithValidator(fn func(string) error) PromptOption {
	return func(p *Prompt) { p.validate = fn }
}

// NewPrompt creates a focused prompt.
func NewPrompt(label string, opts ...PromptOption) Prompt {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 48
	ti.Focus()
	p := Prompt{label: label, input: ti}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Init implements tea.Model.
func (p Prompt) Init() tea.Cmd { return textinput.Blink }

// Update implements tea.Model.
func (p Prompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "ctrl+c":
			p.canceled = true
			return p, tea.Quit
		case "enter":
			v := strings.TrimSpace(p.input.Value())
			if v == "" {
				v = p.def
			}
			if p.validate != nil {
				if err := p.validate(v); err != nil {
					p.errMsg = err.Error()
					return p, nil
				}
			}
			p.value = v
			p.done = true
			return p, tea.Quit
		}
		p.errMsg = ""
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View implements tea.Model.
func (p Prompt) View() string {
	if p.done || p.canceled {
		return ""
	}
	s := styles.Primary.Render(p.label) + "\n" + p.input.View()
	if p.errMsg != "" {
		s += "\n" + styles.ErrorMsg.Render(p.errMsg)
	}
	return s + "\n"
}

// Value returns the submitted value; ok is false when canceled or still
// editing.
func (p Prompt) Value() (string, bool) {
	return p.value, p.done
}

// Confirm asks a yes/no question.
type Confirm struct {
	question string
	def      bool
	answer   bool
	done     bool
	canceled bool
}

// NewConfirm creates a question whose answer on a bare enter is def.
func NewConfirm(question string, def bool) Confirm {
	return Confirm{question: question, def: def}
}

// Init implements tea.Model.
func (c Confirm) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (c Confirm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}
	switch key.String() {
	case "y", "Y":
		c.answer, c.done = true, true
	case "n", "N":
		c.answer, c.done = false, true
	case "enter":
		c.answer, c.done = c.def, true
	case "esc", "ctrl+c", "q":
		c.canceled = true
	default:
		return c, nil
	}
	return c, tea.Quit
}

// View implements tea.Model.
func (c Confirm) View() string {
	if c.done || c.canceled {
		return ""
	}
	hint := "[y/N]"
	if c.def {
		hint = "[Y/n]"
	}
	return styles.Primary.Render(c.question) + " " + styles.Muted.Render(hint) + " "
}

// Answer returns the answer; ok is false when canceled.
func (c Confirm) Answer() (yes, ok bool) {
	return c.answer, c.done
}

// Console runs prompts on a fixed input and output.
type Console struct {
	In  io.Reader
	Out io.Writer
}

func (c Console) run(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m, tea.WithInput(c.In), tea.WithOutput(c.Out)).Run()
}

// Ask reads a line of text.
func (c Console) Ask(label string, opts ...PromptOption) (string, error) {
	final, err := c.run(NewPrompt(label, opts...))
	if err != nil {
		return "", err
	}
	v, ok := final.(Prompt).Value()
	if !ok {
		return "", errors.ErrCanceled
	}
	return v, nil
}

// Secret reads a masked line.
func (c Console) Secret(label string) (string, error) {
	return c.Ask(label, Masked())
}

// Confirm asks a yes/no question.
func (c Console) Confirm(question string, def bool) (bool, error) {
	final, err := c.run(NewConfirm(question, def))
	if err != nil {
		return false, err
	}
	yes, ok := final.(Confirm).Answer()
	if !ok {
		return false, errors.ErrCanceled
	}
	return yes, nil
}

// Menu shows a menu and returns the chosen index.
func (c Console) Menu(title string, items []string) (int, error) {
	return RunMenu(c.In, c.Out, title, items)
}
