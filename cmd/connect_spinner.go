package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	elapsedStyle = lipgloss.NewStyle().Faint(true)
)

type dialDoneMsg struct{ err error }

// connectModel animates the dial, adding an elapsed counter once the
// attempt has been running long enough to worry about.
type connectModel struct {
	spinner spinner.Model
	label   string
	started time.Time
	quit    bool
}

func newConnectModel(label string) connectModel {
	return connectModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(spinnerStyle)),
		label:   label,
		started: time.Now(),
	}
}

func (m connectModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dialDoneMsg:
		m.quit = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m connectModel) View() string {
	if m.quit {
		return ""
	}
	line := m.spinner.View() + " " + labelStyle.Render(m.label)
	if elapsed := time.Since(m.started).Round(time.Second); elapsed >= 3*time.Second {
		line += " " + elapsedStyle.Render(fmt.Sprintf("(%s)", elapsed))
	}
	return line
}

// runConnectSpinner animates on output until connect returns. Input is
// detached, so piped and test invocations drive the dial the same way
// an interactive terminal does.
func runConnectSpinner(ctx context.Context, output io.Writer, label string, connect func(context.Context) error) error {
	p := tea.NewProgram(
		newConnectModel(label),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	dialErr := make(chan error, 1)
	go func() {
		err := connect(ctx)
		dialErr <- err
		p.Send(dialDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	return <-dialErr
}
