// Package tui implements the live dashboard for a running monitor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mr-karan/slawatch/internal/cli/timerange"
	"github.com/mr-karan/slawatch/internal/monitor"
	"github.com/mr-karan/slawatch/pkg/models"
)

const requestTimeout = 30 * time.Second

// API is the subset of the HTTP client the dashboard needs.
type API interface {
	SchedulerStatus(ctx context.Context) (*monitor.SchedulerStatus, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	Trigger(ctx context.Context) (*monitor.CycleSummary, error)
}

// Options configures the dashboard.
type Options struct {
	Refresh time.Duration
	Limit   int
	Now     func() time.Time
}

type Model struct {
	api      API
	opts     Options
	width    int
	height   int
	spinner  spinner.Model
	viewport viewport.Model

	status      *monitor.SchedulerStatus
	alerts      []models.Alert
	err         error
	flash       string
	loading     bool
	triggering  bool
	lastRefresh time.Time
}

type snapshotMsg struct {
	status *monitor.SchedulerStatus
	alerts []models.Alert
	err    error
	at     time.Time
}

type triggerMsg struct {
	summary *monitor.CycleSummary
	err     error
}

type tickMsg time.Time

func New(api API, opts Options) *Model {
	if opts.Refresh <= 0 {
		opts.Refresh = 10 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(highlight)

	return &Model{
		api:      api,
		opts:     opts,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		loading:  true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetch(),
		m.tick(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = m.bodyHeight()
		m.viewport.SetContent(m.renderAlerts())
		return m, nil

	case tickMsg:
		if m.loading {
			return m, m.tick()
		}
		m.loading = true
		return m, tea.Batch(m.fetch(), m.tick())

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.alerts = msg.alerts
			m.lastRefresh = msg.at
			m.viewport.SetContent(m.renderAlerts())
		}
		return m, nil

	case triggerMsg:
		m.triggering = false
		if msg.err != nil {
			m.flash = errorStyle.Render("trigger failed: " + msg.err.Error())
			return m, nil
		}
		m.flash = successStyle.Render(fmt.Sprintf("cycle done: %d evaluated, %d alerts sent",
			msg.summary.Evaluated, msg.summary.Sent))
		m.loading = true
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit

	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.fetch()

	case "t":
		if m.triggering {
			return m, nil
		}
		m.triggering = true
		m.flash = ""
		return m, m.trigger()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) fetch() tea.Cmd {
	api, limit, now := m.api, m.opts.Limit, m.opts.Now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		st, err := api.SchedulerStatus(ctx)
		if err != nil {
			return snapshotMsg{err: err}
		}
		list, err := api.ListAlerts(ctx, models.AlertFilter{Limit: limit})
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{status: st, alerts: list, at: now()}
	}
}

func (m Model) trigger() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		summary, err := api.Trigger(ctx)
		return triggerMsg{summary: summary, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n")
	b.WriteString(tableHeaderStyle.Width(m.width).Render(alertRow("CREATED", "TICKET", pad("SEVERITY", 9), "RISK", "SLA LEFT", "MESSAGE", m.width)))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("slawatch")
	refreshed := "never refreshed"
	if !m.lastRefresh.IsZero() {
		refreshed = "refreshed " + m.lastRefresh.Format("15:04:05")
	}
	if m.loading {
		refreshed = m.spinner.View() + " " + refreshed
	}
	right := lipgloss.NewStyle().Foreground(muted).Render(refreshed)

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + right)
}

func (m Model) renderSummary() string {
	if m.status == nil {
		return summaryStyle.Render("waiting for the monitor...")
	}
	st := m.status
	state := successStyle.Render("idle")
	if st.Running || m.triggering {
		state = lipgloss.NewStyle().Foreground(warning).Render("cycle running")
	}

	parts := []string{
		state,
		fmt.Sprintf("retry queue %d", st.QueueDepth),
		"next main " + timerange.Ago(st.NextMainRun, m.opts.Now()),
	}
	if c := st.LastCycle; c != nil {
		parts = append(parts, fmt.Sprintf("last cycle %d evaluated, %d sent, %d suppressed",
			c.Evaluated, c.Sent, c.Suppressed))
	}
	return summaryStyle.Render(strings.Join(parts, "  │  "))
}

func (m Model) renderAlerts() string {
	if len(m.alerts) == 0 {
		return helpStyle.Render(" no alerts yet")
	}
	rows := make([]string, len(m.alerts))
	for i, a := range m.alerts {
		rows[i] = alertRow(
			a.CreatedAt.Local().Format("15:04:05"),
			a.TicketID,
			getSeverityStyle(a.Severity).Render(pad(strings.ToUpper(string(a.Severity)), 9)),
			fmt.Sprintf("%.2f", a.RiskScore),
			fmt.Sprintf("%dm", a.MinutesRemaining),
			a.Message,
			m.width,
		)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderStatusBar() string {
	left := m.flash
	if m.err != nil {
		left = errorStyle.Render(m.err.Error())
	} else if left == "" {
		left = fmt.Sprintf("%d alerts", len(m.alerts))
	}

	right := helpStyle.Render("q:quit  r:refresh  t:trigger cycle  ↑/↓:scroll")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) bodyHeight() int {
	h := m.height - 5
	if h < 5 {
		h = 5
	}
	return h
}

// alertRow lays out one row. severity must already be padded to 9 columns.
func alertRow(created, ticket, severity, risk, left, message string, width int) string {
	fixed := pad(created, 9) + " " + pad(ticket, 14) + " " + severity + " " + pad(risk, 5) + " " + pad(left, 8) + " "
	rest := width - lipgloss.Width(fixed) - 2
	if rest < 10 {
		rest = 10
	}
	return " " + fixed + truncate(message, rest)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

// Run starts the dashboard and blocks until the user quits.
func Run(api API, opts Options) error {
	p := tea.NewProgram(New(api, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
