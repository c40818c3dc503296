package cli

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// StaticConfirmer always gives the same answer.
type StaticConfirmer bool

// Confirm returns the fixed answer.
func (s StaticConfirmer) Confirm(string) (bool, error) {
	return bool(s), nil
}

// TerminalConfirmer prompts on a terminal and waits for a key press.
// Anything other than "y" counts as no.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm shows prompt followed by [y/N] and blocks until answered.
func (c TerminalConfirmer) Confirm(prompt string) (bool, error) {
	program := tea.NewProgram(newConfirmModel(prompt), tea.WithInput(c.In), tea.WithOutput(c.Out))
	final, err := program.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	model, ok := final.(confirmModel)
	return ok && model.answer, nil
}

// newConfirmer builds the confirmer used by commands. Tests replace it.
var newConfirmer = func(in io.Reader, out io.Writer) Confirmer {
	return TerminalConfirmer{In: in, Out: out}
}

type confirmModel struct {
	prompt string
	answer bool
	done   bool
}

func newConfirmModel(prompt string) confirmModel {
	return confirmModel{prompt: prompt}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch strings.ToLower(key.String()) {
	case "y":
		m.answer = true
		m.done = true
		return m, tea.Quit
	case "n", "enter", "esc", "q", "ctrl+c", "ctrl+d":
		m.answer = false
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if !m.done {
		return fmt.Sprintf("%s [y/N]: ", m.prompt)
	}
	return fmt.Sprintf("%s [y/N]: %s\n", m.prompt, formatYesNo(m.answer))
}
