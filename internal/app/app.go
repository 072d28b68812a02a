package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-karan/slawatch/internal/alerts"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/delivery"
	"github.com/mr-karan/slawatch/internal/monitor"
	"github.com/mr-karan/slawatch/internal/risk"
	"github.com/mr-karan/slawatch/internal/server"
	"github.com/mr-karan/slawatch/internal/sqlite"
	"github.com/mr-karan/slawatch/internal/tickets"
	"github.com/mr-karan/slawatch/pkg/logger"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config    *config.Config
	SQLite    *sqlite.DB
	Logger    *slog.Logger
	Engine    *monitor.Engine
	Scheduler *monitor.Scheduler
	server    *server.Server
	BuildInfo string
	Version   string

	// closers release external connections in reverse order on shutdown.
	closers []func() error
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	BuildInfo  string
	Version    string
}

// New loads and validates the configuration. Nothing is started.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &App{
		Config: cfg,
		Logger: logger.NewWithOptions(logger.Options{
			Debug:  cfg.Logging.Level == "debug",
			Format: cfg.Logging.Format,
		}),
		BuildInfo: opts.BuildInfo,
		Version:   opts.Version,
	}, nil
}

// Initialize connects the stores and builds the engine, scheduler and HTTP server.
func (a *App) Initialize(ctx context.Context) error {
	var (
		history  alerts.HistoryStore = alerts.NewMemoryHistory()
		settings server.SettingsWriter
	)

	if a.Config.SQLite.Path != "" {
		db, err := sqlite.New(sqlite.Options{Config: a.Config.SQLite, Logger: a.Logger})
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite: %w", err)
		}
		a.SQLite = db
		a.closers = append(a.closers, db.Close)

		if err := a.seedSystemSettings(ctx); err != nil {
			a.Logger.Warn("failed to seed system settings from config", "error", err)
		}

		runtime := config.ApplyRuntimeOverrides(ctx, a.Config, db, a.Logger)
		if err := runtime.Validate(); err != nil {
			a.closeAll()
			return fmt.Errorf("stored runtime settings: %w", err)
		}
		a.Config = runtime
		history = db
		settings = db
	} else {
		a.Logger.Warn("sqlite path not set, alert history is kept in memory only")
	}

	source, err := a.buildSource(ctx)
	if err != nil {
		return err
	}
	assessor, err := buildAssessor(a.Config, a.Logger)
	if err != nil {
		return err
	}
	store, err := a.buildSuppressionStore(ctx)
	if err != nil {
		return err
	}

	channels := buildChannels(a.Config, a.Logger)
	if len(channels) == 0 {
		a.Logger.Warn("no delivery channel configured, alerts will only be recorded")
	}
	for _, ch := range channels {
		a.Logger.Info("delivery channel configured", "channel", ch.ID(), "type", ch.Type())
	}

	dispatcher := delivery.NewDispatcher(delivery.DispatcherOptions{
		Channels:    channels,
		Routing:     monitor.Routing(a.Config),
		PrimaryChat: a.Config.Delivery.PrimaryChat,
		Enabled:     monitor.EnabledChannels(a.Config),
		Policy:      monitor.RetryPolicy(a.Config),
		SendTimeout: a.Config.Delivery.SendTimeout,
		Recorder:    history,
		Logger:      a.Logger,
	})

	a.Engine, err = monitor.NewEngine(monitor.Options{
		Config:      a.Config,
		Source:      source,
		Assessor:    assessor,
		Dispatcher:  dispatcher,
		Suppression: alerts.NewSuppressionTracker(store, monitor.SuppressionWindow(a.Config), a.Logger, nil),
		History:     history,
		Logger:      a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build monitoring engine: %w", err)
	}
	a.Scheduler = monitor.NewScheduler(a.Engine, a.Logger)

	a.server = server.New(server.ServerOptions{
		Config:    a.Config,
		Engine:    a.Engine,
		Scheduler: a.Scheduler,
		Settings:  settings,
		Logger:    a.Logger,
		Version:   a.Version,
	})

	a.Scheduler.Start(ctx)
	return nil
}

func (a *App) buildSource(ctx context.Context) (tickets.Source, error) {
	switch a.Config.Tickets.Source {
	case "postgres":
		src, err := tickets.NewPostgresSource(ctx, a.Config.Tickets.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect ticket database: %w", err)
		}
		a.closers = append(a.closers, func() error { src.Close(); return nil })
		a.Logger.Info("using postgres ticket source")
		return src, nil
	default:
		src, err := tickets.NewHTTPSource(tickets.HTTPSourceOptions{
			BaseURL: a.Config.Tickets.BaseURL,
			Token:   a.Config.Tickets.Token,
			Timeout: a.Config.Tickets.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build ticket source: %w", err)
		}
		a.Logger.Info("using http ticket source", "base_url", a.Config.Tickets.BaseURL)
		return src, nil
	}
}

func (a *App) buildSuppressionStore(ctx context.Context) (alerts.SuppressionStore, error) {
	if a.Config.Alerts.SuppressionStore != "redis" {
		return alerts.NewMemoryStore(), nil
	}
	store, err := alerts.NewRedisStore(ctx, alerts.RedisStoreOptions{
		Address:  a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
		Prefix:   a.Config.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis suppression store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.Logger.Info("using redis suppression store", "address", a.Config.Redis.Address)
	return store, nil
}

// buildAssessor returns the rule-based evaluator or the prediction service
// evaluator, optionally falling back to rules.
func buildAssessor(cfg *config.Config, log *slog.Logger) (*risk.Evaluator, error) {
	opts := risk.EvaluatorOptions{
		Predictor: risk.RulePredictor{},
		Timeout:   cfg.Prediction.Timeout,
		Logger:    log,
	}
	if cfg.Prediction.Mode == "service" {
		p, err := risk.NewHTTPPredictor(risk.HTTPPredictorOptions{
			URL:     cfg.Prediction.URL,
			Timeout: cfg.Prediction.Timeout,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build prediction client: %w", err)
		}
		opts.Predictor = p
		if cfg.Prediction.FallbackToRules {
			opts.Fallback = risk.RulePredictor{}
		}
	}
	return risk.NewEvaluator(opts), nil
}

// buildChannels creates a channel for every configured transport.
func buildChannels(cfg *config.Config, log *slog.Logger) []delivery.Channel {
	var out []delivery.Channel
	ch := cfg.Channels
	if ch.Slack.WebhookURL != "" {
		out = append(out, delivery.NewSlackChannel("slack", ch.Slack.WebhookURL, ch.Slack.Channel))
	}
	if ch.Webhook.URL != "" {
		out = append(out, delivery.NewWebhookChannel("webhook", ch.Webhook.URL, ch.Webhook.Headers))
	}
	if ch.Telegram.BotToken != "" && ch.Telegram.ChatID != "" {
		out = append(out, delivery.NewTelegramChannel("telegram", ch.Telegram.APIURL, ch.Telegram.BotToken, ch.Telegram.ChatID))
	}
	if ch.Email.Host != "" && len(ch.Email.To) > 0 {
		out = append(out, delivery.NewEmailChannel(delivery.EmailChannelOptions{
			ID:            "email",
			Host:          ch.Email.Host,
			Port:          ch.Email.Port,
			Username:      ch.Email.Username,
			Password:      ch.Email.Password,
			From:          ch.Email.From,
			To:            ch.Email.To,
			Security:      ch.Email.Security,
			Timeout:       cfg.Delivery.SendTimeout,
			SkipTLSVerify: ch.Email.TLSInsecureSkipVerify,
			Logger:        log,
		}))
	}
	return out
}

// Start begins the application's main execution loop (starts the HTTP server).
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server")
	return a.server.Start()
}

// Shutdown gracefully stops all application components with timeouts.
//
//nolint:contextcheck // Shutdown receives its own context from caller (e.g., signal handler)
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
	defer serverCancel()

	// Stop accepting requests first so no manual trigger races the scheduler stop.
	if a.server != nil {
		a.Logger.Info("shutting down HTTP server")

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- a.server.Shutdown(serverCtx)
		}()

		select {
		case err := <-serverDone:
			if err != nil {
				a.Logger.Error("error shutting down server", "error", err)
			} else {
				a.Logger.Info("HTTP server shut down successfully")
			}
		case <-serverCtx.Done():
			a.Logger.Warn("timeout shutting down HTTP server, continuing")
		}
	}

	if a.Scheduler != nil {
		a.Logger.Info("stopping monitoring scheduler")
		stopped := make(chan struct{})
		go func() {
			a.Scheduler.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			// The cycle still holds the stores; closing them under it would fail its writes.
			a.Logger.Warn("timeout waiting for in-flight cycle, leaving stores open")
			return fmt.Errorf("waiting for in-flight cycle: %w", ctx.Err())
		}
	}

	a.closeAll()
	a.Logger.Info("application shutdown complete")
	return nil
}

// closeAll releases stores and connections in reverse order of acquisition.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("error closing resource", "error", err)
		}
	}
	a.closers = nil
}

// seedSystemSettings writes the runtime-tunable options from the config file into
// the settings table on first boot. Afterwards the table is the source of truth.
func (a *App) seedSystemSettings(ctx context.Context) error {
	settings, err := a.SQLite.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing settings: %w", err)
	}
	if len(settings) > 0 {
		a.Logger.Debug("system settings already exist, skipping seeding")
		return nil
	}

	a.Logger.Info("seeding system settings from config (first boot)")
	return a.SQLite.SaveSettings(ctx, config.RuntimeSettings(a.Config))
}
