package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type actionMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	action  func(context.Context) ([]string, error)
	ctx     context.Context
	done    bool
	details []string
	err     error
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		details, err := m.action(ctx)
		return actionMsg{details: details, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case actionMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	if !m.done {
		return fmt.Sprintf("Running %s...\n", m.title)
	}
	if m.err != nil {
		return fmt.Sprintf("FAILED %s: %v\n", m.title, m.err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "OK %s\n", m.title)
	for _, d := range m.details {
		fmt.Fprintf(&b, "  - %s\n", d)
	}
	return b.String()
}

// Run executes the action behind a minimal terminal status view and returns
// the action's outcome.
func Run(ctx context.Context, title string, action func(context.Context) ([]string, error)) ([]string, error) {
	p := tea.NewProgram(model{title: title, action: action, ctx: ctx})
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected final model %T", final)
	}
	return m.details, m.err
}
