// Package commands provides the CLI command definitions for slawatch.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/slawatch/internal/cli/client"
	cliconfig "github.com/mr-karan/slawatch/internal/cli/config"
	"github.com/mr-karan/slawatch/internal/cli/render"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Config  *cliconfig.Config
	Version string
	Commit  string
	Date    string

	out     io.Writer
	noColor bool
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	return newRoot(&App{
		Version: version,
		Commit:  commit,
		Date:    date,
		out:     os.Stdout,
	})
}

func newRoot(app *App) *cli.Command {
	return &cli.Command{
		Name:    "slawatch",
		Usage:   "SLA risk monitoring and escalation delivery",
		Version: app.Version,
		Description: `slawatch watches support tickets for SLA breach risk, raises alerts
   and escalations, and delivers them to chat, bot and email channels.

   Run 'slawatch serve' to start the monitor. The other commands query a
   running monitor over its HTTP API.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to CLI config file",
				Sources: cli.EnvVars("SLAWATCH_CLI_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "slawatch server URL",
				Sources: cli.EnvVars("SLAWATCH_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "API token for authentication",
				Sources: cli.EnvVars("SLAWATCH_API_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "configuration profile to use",
				Sources: cli.EnvVars("SLAWATCH_PROFILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, json",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			if cmd.Bool("no-color") {
				app.noColor = true
				log.SetStyles(log.DefaultStyles())
				lipgloss.SetHasDarkBackground(false)
			}

			cfg, err := cliconfig.Load(cliconfig.LoadOptions{
				ConfigPath: cmd.String("config"),
				Profile:    cmd.String("profile"),
			})
			if err != nil {
				// A profile that was asked for by name must exist.
				if cmd.String("profile") != "" {
					return ctx, err
				}
				log.Debug("config load warning", "error", err)
				cfg = cliconfig.Default()
			}

			if server := cmd.String("server"); server != "" {
				cfg.Server.URL = server
			}
			if token := cmd.String("token"); token != "" {
				cfg.Auth.Token = token
			}
			if output := cmd.String("output"); output != "" {
				cfg.Output.Format = output
			}

			app.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.serveCommand(),
			app.statusCommand(),
			app.triggerCommand(),
			app.alertsCommand(),
			app.statsCommand(),
			app.suppressionsCommand(),
			app.watchCommand(),
			app.settingsCommand(),
			app.configCommand(),
			app.versionCommand(),
		},
	}
}

// isTerminal returns true if stdout is a terminal
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (a *App) useColor() bool {
	if a.noColor {
		return false
	}
	switch a.Config.Output.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal()
	}
}

func (a *App) client() (*client.Client, error) {
	return client.New(a.Config)
}

func (a *App) renderer() (*render.Renderer, error) {
	return render.New(render.Options{
		Format: a.Config.Output.Format,
		Color:  a.useColor(),
		Out:    a.out,
	})
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Fprintf(a.out, "%s version %s\n", logoStyle.Render("slawatch"), a.Version)
			fmt.Fprintf(a.out, "  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Fprintf(a.out, "  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
