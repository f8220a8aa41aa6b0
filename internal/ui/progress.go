// Package ui renders live minification progress in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"triage/internal/minify"
)

type progressModel struct {
	title   string
	events  <-chan minify.Event
	spinner spinner.Model
	prog    progress.Model
	last    minify.Event
	history []string
	width   int
	done    bool
}

type eventMsg minify.Event
type doneMsg struct{}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	acceptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// NewProgressModel returns a Bubble Tea model that renders minifier progress.
func NewProgressModel(title string, events <-chan minify.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := minify.Event(msg)
		m.last = ev
		if ev.Accepted {
			m.push(acceptStyle.Render(fmt.Sprintf("kept %d ops (chunk %d, eval %d)", ev.OpsLeft, ev.ChunkSize, ev.Evals)))
		}
		if ev.Done {
			m.done = true
			return m, tea.Quit
		}
		return m, m.listenForEvent()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.prog.Width = msg.Width - 4
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) push(line string) {
	m.history = append(m.history, line)
	if len(m.history) > 6 {
		m.history = m.history[len(m.history)-6:]
	}
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteByte('\n')

	frac := 0.0
	if m.last.Budget > 0 {
		frac = float64(m.last.Evals) / float64(m.last.Budget)
		if frac > 1 {
			frac = 1
		}
	}
	b.WriteString(m.prog.ViewAs(frac))
	b.WriteByte('\n')

	status := fmt.Sprintf("%s evals %d/%d, %d ops left",
		m.spinner.View(), m.last.Evals, m.last.Budget, m.last.OpsLeft)
	if m.done {
		status = fmt.Sprintf("done: %s after %d evals", m.last.Status, m.last.Evals)
	}
	b.WriteString(truncate(status, m.width))
	b.WriteByte('\n')

	for _, line := range m.history {
		b.WriteString(dimStyle.Render(truncate("  "+line, m.width)))
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 3 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
