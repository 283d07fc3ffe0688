package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

// Interactive prompts with a terminal text input.
type Interactive struct {
	in  io.Reader
	out io.Writer
}

// NewInteractive creates a terminal prompter reading keys from in.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out}
}

// Prompt runs a single-field form and returns the trimmed value.
func (p *Interactive) Prompt(ctx context.Context, message string) (string, error) {
	program := tea.NewProgram(newInputModel(message),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
	)

	final, err := program.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("run prompt: %w", err)
	}

	m, ok := final.(inputModel)
	if !ok || m.cancelled {
		return "", ErrCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}

type inputModel struct {
	label     string
	input     textinput.Model
	submitted bool
	cancelled bool
}

func newInputModel(label string) inputModel {
	ti := textinput.New()
	ti.Placeholder = "subject id"
	ti.CharLimit = 128
	ti.Focus()
	return inputModel{label: label, input: ti}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.submitted = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	return labelStyle.Render(m.label) + "\n" +
		m.input.View() + "\n" +
		hintStyle.Render("enter to confirm, esc to cancel") + "\n"
}
