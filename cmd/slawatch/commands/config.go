package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	cliconfig "github.com/mr-karan/slawatch/internal/cli/config"
	"github.com/mr-karan/slawatch/internal/config"
)

// settingsCommand manages the runtime-tunable settings of a running monitor.
func (a *App) settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "view and update monitor runtime settings",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "show current runtime settings",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := a.client()
					if err != nil {
						return err
					}
					cfg, err := c.Config(ctx)
					if err != nil {
						return fmt.Errorf("failed to get settings: %w", err)
					}
					r, err := a.renderer()
					if err != nil {
						return err
					}
					return r.Settings(cfg)
				},
			},
			{
				Name:  "update",
				Usage: "update runtime settings; unset flags keep their current value",
				Description: `Examples:
   slawatch settings update --max-alerts-per-hour 30
   slawatch settings update --risk-critical 0.9 --disable email
   slawatch settings update --retry-delay 1m --retry-delay 5m --retry-delay 15m`,
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "risk-medium", Usage: "medium risk threshold"},
					&cli.FloatFlag{Name: "risk-high", Usage: "high risk threshold"},
					&cli.FloatFlag{Name: "risk-critical", Usage: "critical risk threshold"},
					&cli.FloatFlag{Name: "escalation-level1", Usage: "breach probability for escalation level 1"},
					&cli.FloatFlag{Name: "escalation-level2", Usage: "breach probability for escalation level 2"},
					&cli.FloatFlag{Name: "escalation-level3", Usage: "breach probability for escalation level 3"},
					&cli.IntFlag{Name: "suppression-window", Usage: "suppression window in minutes"},
					&cli.IntFlag{Name: "max-alerts-per-hour", Usage: "global alert budget"},
					&cli.StringFlag{Name: "main-period", Usage: "main cycle period (e.g., 5m)"},
					&cli.StringFlag{Name: "critical-period", Usage: "critical cycle period (e.g., 1m)"},
					&cli.StringSliceFlag{Name: "retry-delay", Usage: "retry delay schedule entry, repeatable"},
					&cli.IntFlag{Name: "max-retries", Usage: "total delivery attempts per channel"},
					&cli.StringSliceFlag{Name: "enable", Usage: "enable a channel: chat, bot, email"},
					&cli.StringSliceFlag{Name: "disable", Usage: "disable a channel: chat, bot, email"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.runSettingsUpdate(ctx, cmd)
				},
			},
		},
	}
}

func (a *App) runSettingsUpdate(ctx context.Context, cmd *cli.Command) error {
	c, err := a.client()
	if err != nil {
		return err
	}
	current, err := c.Config(ctx)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	update, err := buildRuntimeUpdate(cmd, current)
	if err != nil {
		return err
	}
	if isEmptyUpdate(update) {
		return fmt.Errorf("nothing to update, see 'slawatch settings update --help'")
	}

	cfg, err := c.UpdateConfig(ctx, update)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	fmt.Fprintln(a.out, successStyle.Render("Settings updated"))

	r, err := a.renderer()
	if err != nil {
		return err
	}
	return r.Settings(cfg)
}

// buildRuntimeUpdate collects the flags that were set. Threshold groups are sent
// whole, so unset members are taken from current.
func buildRuntimeUpdate(cmd *cli.Command, current *config.Config) (config.RuntimeUpdate, error) {
	var u config.RuntimeUpdate

	if cmd.IsSet("risk-medium") || cmd.IsSet("risk-high") || cmd.IsSet("risk-critical") {
		rt := current.Alerts.RiskThresholds
		if cmd.IsSet("risk-medium") {
			rt.Medium = cmd.Float("risk-medium")
		}
		if cmd.IsSet("risk-high") {
			rt.High = cmd.Float("risk-high")
		}
		if cmd.IsSet("risk-critical") {
			rt.Critical = cmd.Float("risk-critical")
		}
		u.RiskThresholds = &rt
	}

	if cmd.IsSet("escalation-level1") || cmd.IsSet("escalation-level2") || cmd.IsSet("escalation-level3") {
		et := current.Alerts.EscalationThresholds
		if cmd.IsSet("escalation-level1") {
			et.Level1 = cmd.Float("escalation-level1")
		}
		if cmd.IsSet("escalation-level2") {
			et.Level2 = cmd.Float("escalation-level2")
		}
		if cmd.IsSet("escalation-level3") {
			et.Level3 = cmd.Float("escalation-level3")
		}
		u.EscalationThresholds = &et
	}

	if cmd.IsSet("suppression-window") {
		v := int(cmd.Int("suppression-window"))
		u.SuppressionWindowMinutes = &v
	}
	if cmd.IsSet("max-alerts-per-hour") {
		v := int(cmd.Int("max-alerts-per-hour"))
		u.MaxAlertsPerHour = &v
	}
	if cmd.IsSet("max-retries") {
		v := int(cmd.Int("max-retries"))
		u.MaxRetries = &v
	}
	if cmd.IsSet("main-period") {
		v := cmd.String("main-period")
		u.MainCyclePeriod = &v
	}
	if cmd.IsSet("critical-period") {
		v := cmd.String("critical-period")
		u.CriticalCyclePeriod = &v
	}
	if cmd.IsSet("retry-delay") {
		u.RetryDelaySchedule = cmd.StringSlice("retry-delay")
	}

	if cmd.IsSet("enable") || cmd.IsSet("disable") {
		ch := current.Delivery.ChannelsEnabled
		for _, name := range cmd.StringSlice("enable") {
			if err := setChannel(&ch, name, true); err != nil {
				return u, err
			}
		}
		for _, name := range cmd.StringSlice("disable") {
			if err := setChannel(&ch, name, false); err != nil {
				return u, err
			}
		}
		u.ChannelsEnabled = &ch
	}

	return u, nil
}

func isEmptyUpdate(u config.RuntimeUpdate) bool {
	return u.RiskThresholds == nil && u.EscalationThresholds == nil &&
		u.SuppressionWindowMinutes == nil && u.MaxAlertsPerHour == nil &&
		u.ChannelsEnabled == nil && u.MainCyclePeriod == nil &&
		u.CriticalCyclePeriod == nil && len(u.RetryDelaySchedule) == 0 &&
		u.MaxRetries == nil
}

func setChannel(ch *config.ChannelsEnabled, name string, on bool) error {
	switch name {
	case "chat":
		ch.Chat = on
	case "bot":
		ch.Bot = on
	case "email":
		ch.Email = on
	default:
		return fmt.Errorf("unknown channel %q (valid: chat, bot, email)", name)
	}
	return nil
}

// configCommand manages the local CLI configuration.
func (a *App) configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage CLI configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "show current configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.runConfigShow()
				},
			},
			{
				Name:      "set",
				Usage:     "set a configuration value",
				ArgsUsage: "<key> <value>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.runConfigSet(cmd)
				},
			},
			{
				Name:  "init",
				Usage: "initialize configuration interactively",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return a.runConfigInit(cmd)
				},
			},
		},
	}
}

func (a *App) runConfigShow() error {
	fmt.Fprintf(a.out, "Server URL:     %s\n", a.Config.Server.URL)
	fmt.Fprintf(a.out, "Timeout:        %s\n", a.Config.Server.Timeout)
	fmt.Fprintf(a.out, "Output Format:  %s\n", a.Config.Output.Format)
	fmt.Fprintf(a.out, "Color:          %s\n", a.Config.Output.Color)
	fmt.Fprintf(a.out, "Alert Limit:    %d\n", a.Config.Output.Limit)

	if a.Config.Auth.Token != "" {
		token := a.Config.Auth.Token
		if len(token) > 8 {
			token = token[:8] + "..."
		}
		fmt.Fprintf(a.out, "API Token:      %s\n", mutedStyle.Render(token))
	} else {
		fmt.Fprintf(a.out, "API Token:      %s\n", errorStyle.Render("not set"))
	}
	return nil
}

func (a *App) runConfigSet(cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: slawatch config set <key> <value>")
	}
	key, value := args[0], args[1]

	if err := applyConfigValue(a.Config, key, value); err != nil {
		return err
	}
	if err := a.Config.Save(cmd.String("config")); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(a.out, "%s %s = %s\n", successStyle.Render("Set"), key, value)
	return nil
}

const validConfigKeys = "server.url, server.timeout, auth.token, output.format, output.color, output.limit"

func applyConfigValue(cfg *cliconfig.Config, key, value string) error {
	switch key {
	case "server.url":
		cfg.Server.URL = value
	case "server.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		cfg.Server.Timeout = d
	case "auth.token":
		cfg.Auth.Token = value
	case "output.format":
		if value != "table" && value != "json" {
			return fmt.Errorf("invalid output format %q (valid: table, json)", value)
		}
		cfg.Output.Format = value
	case "output.color":
		if value != "auto" && value != "always" && value != "never" {
			return fmt.Errorf("invalid color mode %q (valid: auto, always, never)", value)
		}
		cfg.Output.Color = value
	case "output.limit":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", value)
		}
		cfg.Output.Limit = n
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: %s", key, validConfigKeys)
	}
	return nil
}

func (a *App) runConfigInit(cmd *cli.Command) error {
	serverURL := a.Config.Server.URL
	var token string
	format := a.Config.Output.Format

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("slawatch Server URL").
				Description("The URL of your slawatch monitor").
				Placeholder("http://localhost:8125").
				Value(&serverURL),
			huh.NewInput().
				Title("API Token").
				Description("Leave empty if the server does not require one").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output Format").
				Options(
					huh.NewOption("Table", "table"),
					huh.NewOption("JSON", "json"),
				).
				Value(&format),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if serverURL != "" {
		a.Config.Server.URL = serverURL
	}
	if token != "" {
		a.Config.Auth.Token = token
	}
	a.Config.Output.Format = format

	if err := a.Config.Save(cmd.String("config")); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintln(a.out, successStyle.Render("Configuration saved"))
	return nil
}
