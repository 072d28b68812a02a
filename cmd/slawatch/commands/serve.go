package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/slawatch/internal/app"
)

const shutdownTimeout = 15 * time.Second

// serveCommand runs the monitor: scheduler, delivery pipeline and HTTP API.
func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the SLA monitor",
		Description: `Start the monitoring scheduler and the HTTP API.

Examples:
   slawatch serve --server-config config.toml
   SLAWATCH_SERVER__ADDRESS=:9000 slawatch serve`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-config",
				Aliases: []string{"f"},
				Usage:   "path to the server config file",
				Value:   "config.toml",
				Sources: cli.EnvVars("SLAWATCH_CONFIG"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runServe(ctx, cmd)
		},
	}
}

func (a *App) runServe(ctx context.Context, cmd *cli.Command) error {
	application, err := app.New(app.Options{
		ConfigPath: cmd.String("server-config"),
		BuildInfo:  fmt.Sprintf("%s (%s, %s)", a.Version, a.Commit, a.Date),
		Version:    a.Version,
	})
	if err != nil {
		return err
	}

	if err := application.Initialize(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = application.Shutdown(shutdownCtx)
		return fmt.Errorf("failed to initialize: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- application.Start()
	}()

	select {
	case err = <-serverErr:
	case <-ctx.Done():
		application.Logger.Info("received shutdown signal")
	}

	//nolint:contextcheck // the parent context is already cancelled here
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
