package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/slawatch/cmd/slawatch/tui"
	"github.com/mr-karan/slawatch/internal/cli/client"
	"github.com/mr-karan/slawatch/internal/cli/timerange"
	"github.com/mr-karan/slawatch/pkg/models"
)

// statusCommand returns the status subcommand
func (a *App) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show scheduler state and the last cycle",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			st, err := c.SchedulerStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.Status(st)
		},
	}
}

// triggerCommand returns the trigger subcommand
func (a *App) triggerCommand() *cli.Command {
	return &cli.Command{
		Name:  "trigger",
		Usage: "run a monitoring cycle now and wait for it",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			summary, err := c.Trigger(ctx)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
					return fmt.Errorf("a monitoring cycle is already running, try again shortly")
				}
				return fmt.Errorf("failed to trigger cycle: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.Cycle(summary)
		},
	}
}

// alertsCommand returns the alerts subcommand
func (a *App) alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "list alert history",
		Description: `List alerts recorded by the monitor, newest first.

Examples:
   slawatch alerts --since 24h
   slawatch alerts --severity critical --limit 10
   slawatch alerts --ticket T-1042 -o json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "ticket",
				Usage: "only alerts for this ticket ID",
			},
			&cli.StringFlag{
				Name:  "severity",
				Usage: "only alerts of this severity: info, warning, error, critical",
			},
			&cli.StringFlag{
				Name:    "since",
				Aliases: []string{"s"},
				Usage:   "relative time range (e.g., 15m, 1h, 24h, 7d)",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "absolute start time (ISO8601 format)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "absolute end time (ISO8601 format)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "maximum number of results",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runAlerts(ctx, cmd)
		},
	}
}

func (a *App) runAlerts(ctx context.Context, cmd *cli.Command) error {
	from, to, err := timerange.Parse(timerange.Options{
		Since: cmd.String("since"),
		From:  cmd.String("from"),
		To:    cmd.String("to"),
	}, time.Now())
	if err != nil {
		return err
	}

	filter := models.AlertFilter{
		TicketID: cmd.String("ticket"),
		Severity: models.AlertSeverity(cmd.String("severity")),
		From:     from,
		To:       to,
		Limit:    a.Config.Output.Limit,
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return fmt.Errorf("invalid severity %q", filter.Severity)
	}
	if cmd.IsSet("limit") {
		filter.Limit = int(cmd.Int("limit"))
	}

	log.Debug("listing alerts",
		"ticket", filter.TicketID,
		"severity", filter.Severity,
		"from", from,
		"to", to,
		"limit", filter.Limit,
	)

	c, err := a.client()
	if err != nil {
		return err
	}
	list, err := c.ListAlerts(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}
	return r.Alerts(list)
}

// statsCommand returns the stats subcommand
func (a *App) statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show delivery statistics",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			st, err := c.DeliveryStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get delivery stats: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.Stats(st)
		},
	}
}

// suppressionsCommand returns the suppressions subcommand
func (a *App) suppressionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "suppressions",
		Usage: "list tickets whose alerts are currently suppressed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			recs, err := c.Suppressions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list suppressions: %w", err)
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			return r.Suppressions(recs)
		},
	}
}

// watchCommand returns the watch subcommand
func (a *App) watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "live dashboard of scheduler state and recent alerts",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "refresh",
				Aliases: []string{"n"},
				Usage:   "refresh interval",
				Value:   10 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !isTerminal() {
				return fmt.Errorf("watch needs a terminal, use 'slawatch status' instead")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			return tui.Run(c, tui.Options{
				Refresh: cmd.Duration("refresh"),
				Limit:   a.Config.Output.Limit,
			})
		},
	}
}
