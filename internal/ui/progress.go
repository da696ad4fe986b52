package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"ferment/internal/buildpipeline"
)

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	prog    progress.Model
	rows    []row
	index   map[string]int
	width   int
	done    bool
	failed  bool
}

type row struct {
	label  string
	status string
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model with one row per crate being
// parsed followed by one row per later pipeline stage.
func NewProgressModel(title string, crates []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int),
		width:   80,
	}
	for _, c := range crates {
		m.addRow(rowKey(c, buildpipeline.StageParse), "parse "+c)
	}
	for _, s := range buildpipeline.Stages[1:] {
		m.addRow(rowKey("", s), string(s))
	}
	return m
}

func (m *progressModel) addRow(key, label string) {
	m.index[key] = len(m.rows)
	m.rows = append(m.rows, row{label: label, status: "queued"})
}

func rowKey(unit string, stage buildpipeline.Stage) string {
	if unit != "" {
		return "crate:" + unit
	}
	return "stage:" + string(stage)
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(buildpipeline.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	switch {
	case m.done && m.failed:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-16, 20)
	for _, r := range m.rows {
		status := styleStatus(r.status).Render(fmt.Sprintf("%10s", r.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(r.label, nameWidth))
	}
	b.WriteString("\n")
	if m.done && !m.failed {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
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

func (m *progressModel) applyEvent(ev buildpipeline.Event) tea.Cmd {
	idx, ok := m.index[rowKey(ev.Unit, ev.Stage)]
	if !ok {
		return nil
	}
	m.rows[idx].status = statusLabel(ev.Status)
	if ev.Status == buildpipeline.StatusError {
		m.failed = true
	}
	finished := 0
	for _, r := range m.rows {
		if r.status == "done" || r.status == "skipped" || r.status == "error" {
			finished++
		}
	}
	return m.prog.SetPercent(float64(finished) / float64(len(m.rows)))
}

func statusLabel(status buildpipeline.Status) string {
	if status == buildpipeline.StatusWorking {
		return "working"
	}
	return string(status)
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "working":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
