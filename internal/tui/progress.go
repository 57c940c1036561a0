// Package tui renders the live export progress while titles are scraped
// and resolved.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/core"
)

var (
	colorPrimary    = lipgloss.Color("#3a6b4a")
	colorSecondary  = lipgloss.Color("#5a8c6a")
	colorAccent     = lipgloss.Color("#8fc279")
	colorBackground = lipgloss.Color("#f8f8f8")
	colorError      = lipgloss.Color("#f04c56")
)

// summaryMsg carries the next engine summary.
type summaryMsg core.Summary

// tickMsg refreshes the scraped-entry count between summaries.
type tickMsg time.Time

// ExportProgressModel displays resolution progress for one export run. It
// consumes the engine's summary stream; the scraped count comes from a
// callback because the history total grows while the page is still
// scrolling.
type ExportProgressModel struct {
	events  <-chan core.Summary
	scraped func() int
	cancel  context.CancelFunc

	width    int
	height   int
	progress progress.Model

	summary  core.Summary
	total    int
	quitting bool
}

// NewExportProgressModel builds the model. cancel is invoked when the user
// aborts with esc or ctrl+c; the run then winds down and the final Done
// summary closes the UI.
func NewExportProgressModel(events <-chan core.Summary, scraped func() int, cancel context.CancelFunc) *ExportProgressModel {
	p := progress.New(progress.WithGradient(string(colorPrimary), string(colorAccent)))
	p.Width = 50

	return &ExportProgressModel{
		events:   events,
		scraped:  scraped,
		cancel:   cancel,
		width:    80,
		height:   12,
		progress: p,
	}
}

func (m *ExportProgressModel) Init() tea.Cmd {
	return tea.Batch(m.waitForSummary(), tick())
}

func (m *ExportProgressModel) waitForSummary() tea.Cmd {
	return func() tea.Msg {
		return summaryMsg(<-m.events)
	}
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *ExportProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = msg.Width - 4
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" || msg.String() == "esc" {
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	case summaryMsg:
		m.summary = core.Summary(msg)
		if m.summary.Done {
			return m, tea.Quit
		}
		cmd := m.progress.SetPercent(m.ratio())
		return m, tea.Batch(cmd, m.waitForSummary())
	case tickMsg:
		if m.scraped != nil {
			m.total = m.scraped()
		}
		return m, tea.Batch(m.progress.SetPercent(m.ratio()), tick())
	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *ExportProgressModel) ratio() float64 {
	if m.total <= 0 {
		return 0
	}
	r := float64(m.summary.Resolved) / float64(m.total)
	if r > 1 {
		r = 1
	}
	return r
}

// Summary returns the last summary seen, for the caller's final report.
func (m *ExportProgressModel) Summary() core.Summary {
	return m.summary
}

func (m *ExportProgressModel) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Background(colorPrimary).
		Foreground(colorBackground).
		Width(m.width).
		Render("Exporting Prime Video Watch History")

	bar := m.progress.View()

	workerStyle := lipgloss.NewStyle().
		Foreground(colorAccent).
		Bold(true)
	workerInfo := workerStyle.Render(fmt.Sprintf("Active Workers: %d/%d",
		m.summary.ActiveWorkers, m.summary.WorkerLimit))

	current := ""
	if m.summary.LastTitle != "" {
		current = "Resolving: " + m.summary.LastTitle
	}

	statsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(1).
		Width(m.width - 4)

	stats := fmt.Sprintf("Scraped: %d\nResolved: %d\nMatched: %d\nUnmatched: %d",
		m.total, m.summary.Resolved, m.summary.Matched, m.summary.Unmatched)

	if m.summary.ErrorCount > 0 {
		errStyle := lipgloss.NewStyle().Foreground(colorError)
		stats += "\n" + errStyle.Render(fmt.Sprintf("Provider errors: %d", m.summary.ErrorCount))
	}

	statusText := "Resolving titles in parallel... press esc to cancel"
	if m.quitting {
		statusText = "Cancelling... finishing in-flight titles"
	}
	status := lipgloss.NewStyle().
		Background(colorSecondary).
		Foreground(colorBackground).
		Width(m.width).
		Render(statusText)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		workerInfo,
		bar,
		current,
		statsStyle.Render(stats),
		status,
	) + "\n"
}

// Run drives the progress UI until the engine reports Done or the user
// aborts. It returns the final summary.
func Run(events <-chan core.Summary, scraped func() int, cancel context.CancelFunc) (core.Summary, error) {
	model := NewExportProgressModel(events, scraped, cancel)
	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return core.Summary{}, fmt.Errorf("progress ui: %w", err)
	}
	if m, ok := final.(*ExportProgressModel); ok {
		return m.Summary(), nil
	}
	return model.Summary(), nil
}

// RenderFinalReport formats the closing summary printed after the UI exits.
func RenderFinalReport(summary core.Summary, exported int, outputPath string) string {
	var b strings.Builder
	if summary.Canceled {
		b.WriteString("Export cancelled.\n")
	} else {
		b.WriteString("Export complete.\n")
	}
	fmt.Fprintf(&b, "  Resolved:  %d\n", summary.Resolved)
	fmt.Fprintf(&b, "  Matched:   %d\n", summary.Matched)
	fmt.Fprintf(&b, "  Unmatched: %d\n", summary.Unmatched)
	fmt.Fprintf(&b, "  Written:   %d rows to %s\n", exported, outputPath)
	if summary.ErrorCount > 0 {
		fmt.Fprintf(&b, "  Provider errors: %d (see session log)\n", summary.ErrorCount)
	}
	return b.String()
}
