package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/telemetry"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	timeStyle    = lipgloss.NewStyle().Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// TimingMsg carries one frame timing into the viewer.
type TimingMsg telemetry.Timing

// Model shows the latest frame time and keeps window statistics. The mode
// switch it toggles is the one the pipeline reads each frame.
type Model struct {
	title     string
	mode      *processor.ModeSwitch
	stats     *telemetry.Stats
	last      telemetry.Timing
	hasTiming bool
	quitting  bool
}

func NewModel(title string, mode *processor.ModeSwitch, window int) Model {
	return Model{
		title: title,
		mode:  mode,
		stats: telemetry.NewStats(window),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "t":
			m.mode.Toggle()
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case TimingMsg:
		t := telemetry.Timing(msg)
		m.stats.Observe(t)
		m.last = t
		m.hasTiming = true
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case !m.hasTiming:
		b.WriteString(timeStyle.Render("frame time: waiting for first frame"))
	case m.last.Err != nil:
		b.WriteString(failureStyle.Render(fmt.Sprintf("frame %d failed after %.1f ms: %v", m.last.Seq, m.last.Millis(), m.last.Err)))
	default:
		b.WriteString(timeStyle.Render(fmt.Sprintf("frame time: %.1f ms", m.last.Millis())))
		b.WriteString(fmt.Sprintf(" (frame %d)", m.last.Seq))
	}
	b.WriteString("\n")
	b.WriteString("mode: " + modeStyle.Render(m.mode.Load().String()))
	b.WriteString("\n")
	b.WriteString(m.stats.Summary().String())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("t: toggle mode  q: quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) Summary() telemetry.Summary {
	return m.stats.Summary()
}
