// Package render provides output rendering for the slawatch CLI.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mr-karan/slawatch/internal/cli/timerange"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/monitor"
	"github.com/mr-karan/slawatch/pkg/models"
)

// Options configures the renderer
type Options struct {
	Format string // table, json
	Color  bool
	Out    io.Writer
	Now    func() time.Time
}

// Renderer writes API results for humans or scripts.
type Renderer struct {
	opts Options
}

// New creates a new renderer
func New(opts Options) (*Renderer, error) {
	if opts.Format == "" {
		opts.Format = "table"
	}
	if opts.Format != "table" && opts.Format != "json" {
		return nil, fmt.Errorf("unknown output format: %s (valid: table, json)", opts.Format)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{opts: opts}, nil
}

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	labelStyle    = lipgloss.NewStyle().Bold(true).Width(22)
)

func (r *Renderer) json(v any) error {
	enc := json.NewEncoder(r.opts.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.opts.Color {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) severity(sev models.AlertSeverity) string {
	label := strings.ToUpper(string(sev))
	switch sev {
	case models.AlertSeverityCritical:
		return r.style(criticalStyle, label)
	case models.AlertSeverityError:
		return r.style(errorStyle, label)
	case models.AlertSeverityWarning:
		return r.style(warnStyle, label)
	default:
		return r.style(infoStyle, label)
	}
}

func (r *Renderer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		Rows(rows...)

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	fmt.Fprintln(r.opts.Out, t.Render())
}

func (r *Renderer) field(label string, value any) {
	if r.opts.Color {
		label = labelStyle.Render(label)
	} else {
		label = fmt.Sprintf("%-22s", label)
	}
	fmt.Fprintf(r.opts.Out, "%s %v\n", label, value)
}

// Alerts renders alert history.
func (r *Renderer) Alerts(alerts []models.Alert) error {
	if r.opts.Format == "json" {
		if alerts == nil {
			alerts = []models.Alert{}
		}
		return r.json(alerts)
	}
	if len(alerts) == 0 {
		fmt.Fprintln(r.opts.Out, "No alerts found.")
		return nil
	}

	now := r.opts.Now()
	rows := make([][]string, len(alerts))
	for i, a := range alerts {
		rows[i] = []string{
			a.CreatedAt.Local().Format("01-02 15:04:05"),
			a.TicketID,
			strings.ReplaceAll(string(a.Kind), "_", " "),
			r.severity(a.Severity),
			fmt.Sprintf("%.2f", a.RiskScore),
			formatMinutes(a.MinutesRemaining),
			joinChannels(a.Channels),
			truncate(a.Message, 60),
		}
	}
	r.table([]string{"CREATED", "TICKET", "KIND", "SEVERITY", "RISK", "SLA LEFT", "CHANNELS", "MESSAGE"}, rows)
	fmt.Fprintln(r.opts.Out, r.style(dimStyle, fmt.Sprintf("%d alerts, newest %s", len(alerts), timerange.Ago(alerts[0].CreatedAt, now))))
	return nil
}

// Status renders the scheduler status.
func (r *Renderer) Status(st *monitor.SchedulerStatus) error {
	if r.opts.Format == "json" {
		return r.json(st)
	}

	now := r.opts.Now()
	state := r.style(infoStyle, "idle")
	if st.Running {
		state = r.style(warnStyle, "cycle running")
	}
	r.field("State", state)
	r.field("Retry queue depth", st.QueueDepth)
	if !st.NextMainRun.IsZero() {
		r.field("Next main cycle", timerange.Ago(st.NextMainRun, now))
	}
	fmt.Fprintln(r.opts.Out)

	rows := make([][]string, len(st.Triggers))
	for i, t := range st.Triggers {
		lastErr := t.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		rows[i] = []string{
			t.Name,
			t.Interval.String(),
			fmt.Sprintf("%d", t.Runs),
			fmt.Sprintf("%d", t.Skipped),
			fmt.Sprintf("%d", t.Failures),
			timerange.Ago(t.LastRun, now),
			truncate(lastErr, 40),
		}
	}
	r.table([]string{"TRIGGER", "INTERVAL", "RUNS", "SKIPPED", "FAILURES", "LAST RUN", "LAST ERROR"}, rows)

	if st.LastCycle != nil {
		fmt.Fprintln(r.opts.Out)
		fmt.Fprintln(r.opts.Out, r.style(dimStyle, "Last cycle"))
		r.cycle(st.LastCycle)
	}
	return nil
}

// Cycle renders a cycle summary.
func (r *Renderer) Cycle(s *monitor.CycleSummary) error {
	if r.opts.Format == "json" {
		return r.json(s)
	}
	r.cycle(s)
	return nil
}

func (r *Renderer) cycle(s *monitor.CycleSummary) {
	r.field("Scope", s.Scope)
	r.field("Started", s.StartedAt.Local().Format(time.RFC3339))
	r.field("Duration", s.Duration.Round(time.Millisecond))
	r.field("Tickets", fmt.Sprintf("%d fetched, %d evaluated, %d skipped", s.Fetched, s.Evaluated, s.Skipped))
	r.field("Escalations", fmt.Sprintf("%d (%d write-back failures)", s.Escalations, s.WriteBackFailures))
	r.field("Alerts", fmt.Sprintf("%d generated, %d sent, %d suppressed, %d rate-limited",
		s.Generated, s.Sent, s.Suppressed, s.RateLimited))
	if len(s.BySeverity) > 0 {
		var parts []string
		for _, sev := range []models.AlertSeverity{
			models.AlertSeverityCritical, models.AlertSeverityError, models.AlertSeverityWarning, models.AlertSeverityInfo,
		} {
			if n := s.BySeverity[string(sev)]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", sev, n))
			}
		}
		r.field("By severity", strings.Join(parts, " "))
	}
	r.field("Deliveries", s.Deliveries)
}

// Stats renders delivery statistics.
func (r *Renderer) Stats(st *models.DeliveryStats) error {
	if r.opts.Format == "json" {
		return r.json(st)
	}
	r.field("Deliveries", st.Total)
	r.field("Sent", st.Sent)
	r.field("Retried", st.Retried)
	failed := fmt.Sprintf("%d", st.PermanentlyFailed)
	if st.PermanentlyFailed > 0 {
		failed = r.style(errorStyle, failed)
	}
	r.field("Permanently failed", failed)
	r.field("Success rate", fmt.Sprintf("%.1f%%", st.SuccessRate*100))
	r.field("Average attempts", fmt.Sprintf("%.2f", st.AverageAttempts))
	r.field("Retry queue depth", st.QueueDepth)
	return nil
}

// Suppressions renders suppression records.
func (r *Renderer) Suppressions(recs []models.SuppressionRecord) error {
	if r.opts.Format == "json" {
		if recs == nil {
			recs = []models.SuppressionRecord{}
		}
		return r.json(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(r.opts.Out, "No active suppressions.")
		return nil
	}
	now := r.opts.Now()
	rows := make([][]string, len(recs))
	for i, rec := range recs {
		rows[i] = []string{
			rec.TicketID,
			strings.ReplaceAll(string(rec.Kind), "_", " "),
			timerange.Ago(rec.LastSent, now),
			fmt.Sprintf("%d", rec.Count),
		}
	}
	r.table([]string{"TICKET", "KIND", "LAST SENT", "COUNT"}, rows)
	return nil
}

// Settings renders the runtime-tunable part of the server configuration.
func (r *Renderer) Settings(cfg *config.Config) error {
	if r.opts.Format == "json" {
		return r.json(cfg)
	}
	a, d := cfg.Alerts, cfg.Delivery
	r.field("Risk thresholds", fmt.Sprintf("medium=%.2f high=%.2f critical=%.2f",
		a.RiskThresholds.Medium, a.RiskThresholds.High, a.RiskThresholds.Critical))
	r.field("Escalation thresholds", fmt.Sprintf("level1=%.2f level2=%.2f level3=%.2f",
		a.EscalationThresholds.Level1, a.EscalationThresholds.Level2, a.EscalationThresholds.Level3))
	r.field("Suppression window", fmt.Sprintf("%dm", a.SuppressionWindowMinutes))
	r.field("Max alerts per hour", a.MaxAlertsPerHour)
	r.field("Main cycle period", cfg.Scheduler.MainCyclePeriod)
	r.field("Critical cycle period", cfg.Scheduler.CriticalCyclePeriod)

	var enabled []string
	if d.ChannelsEnabled.Chat {
		enabled = append(enabled, string(models.ChannelChat))
	}
	if d.ChannelsEnabled.Bot {
		enabled = append(enabled, string(models.ChannelBot))
	}
	if d.ChannelsEnabled.Email {
		enabled = append(enabled, string(models.ChannelEmail))
	}
	if len(enabled) == 0 {
		enabled = []string{r.style(warnStyle, "none")}
	}
	r.field("Channels enabled", strings.Join(enabled, ","))

	delays := make([]string, len(d.RetryDelaySchedule))
	for i, delay := range d.RetryDelaySchedule {
		delays[i] = delay.String()
	}
	r.field("Retry schedule", strings.Join(delays, " "))
	r.field("Max retries", d.MaxRetries)
	return nil
}

func formatMinutes(m int) string {
	if m <= 0 {
		return "breached"
	}
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

func joinChannels(chs []models.ChannelType) string {
	if len(chs) == 0 {
		return "-"
	}
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return strings.Join(out, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
