// Package ui shows live run progress: a progress bar over completed tasks and
// per-command counters, refreshed from aggregator snapshots. The view is drawn
// on stderr so a piped report stays clean.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loadflare/log"
	"loadflare/report"
	"loadflare/stats"
)

var highlightColor = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#7D56F4"}

var progressTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(highlightColor)

var countStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#888888", Dark: "#777777",
})

type tickMsg time.Time

// Model is the bubbletea model for the progress display.
type Model struct {
	poll     func() stats.Snapshot
	cancel   func()
	progress progress.Model
	spinner  spinner.Model
	snap     stats.Snapshot
	start    time.Time
	stopping bool
	logEvery *log.Every
}

// NewModel creates a progress model. poll is called on every tick; cancel is
// invoked when the user interrupts the run from the progress view.
func NewModel(poll func() stats.Snapshot, cancel func()) Model {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(highlightColor)

	return Model{
		poll:     poll,
		cancel:   cancel,
		progress: p,
		spinner:  s,
		snap:     poll(),
		start:    time.Now(),
		logEvery: log.NewEvery(2 * time.Second),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.poll()
		if log.IsDebugEnabled() && m.logEvery.ShouldLog() {
			log.DebugLog.Printf("progress: %d/%d recorded", m.snap.Recorded, m.snap.Expected)
		}
		if m.snap.Done() {
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Stop claiming; the view stays up until every task has a result.
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.progress.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder

	title := "Firing requests"
	if m.stopping {
		title = "Stopping"
	}
	sb.WriteString(progressTitleStyle.Render(title))
	sb.WriteString("\n\n")

	ratio := 0.0
	if m.snap.Expected > 0 {
		ratio = float64(m.snap.Recorded) / float64(m.snap.Expected)
	}
	sb.WriteString(fmt.Sprintf("%s %d/%d  %v\n", m.spinner.View(),
		m.snap.Recorded, m.snap.Expected, time.Since(m.start).Round(time.Second)))
	sb.WriteString(m.progress.ViewAs(ratio))
	sb.WriteString("\n\n")

	for i, cs := range m.snap.Commands {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, report.Sanitize(cs.Raw)))
		sb.WriteString(countStyle.Render(fmt.Sprintf("   %d/%d done, %d ok, %d failed",
			cs.Total, cs.Expected, cs.Succeeded, cs.Failed)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(countStyle.Render("press q or ctrl+c to stop"))
	sb.WriteString("\n")
	return sb.String()
}

// Run displays the progress view until every task has a result.
func Run(poll func() stats.Snapshot, cancel func()) error {
	p := tea.NewProgram(NewModel(poll, cancel), tea.WithOutput(os.Stderr))
	_, err := p.Run()
	return err
}
