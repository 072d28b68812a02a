package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/internal/sqlite"
	"github.com/mr-karan/slawatch/pkg/logger"
	"github.com/mr-karan/slawatch/pkg/models"
)

func TestBuildChannels(t *testing.T) {
	cfg := config.Default()
	assert.Empty(t, buildChannels(cfg, nil))

	cfg.Channels.Slack.WebhookURL = "https://hooks.example.com/T000"
	cfg.Channels.Telegram.BotToken = "123:abc"
	cfg.Channels.Telegram.ChatID = "-100"
	cfg.Channels.Email.Host = "smtp.example.com"
	cfg.Channels.Email.To = []string{"oncall@example.com"}

	got := buildChannels(cfg, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "slack", got[0].ID())
	assert.Equal(t, models.ChannelChat, got[0].Type())
	assert.Equal(t, models.ChannelBot, got[1].Type())
	assert.Equal(t, models.ChannelEmail, got[2].Type())
}

func TestBuildAssessorRulesMode(t *testing.T) {
	cfg := config.Default()
	ev, err := buildAssessor(cfg, logger.New(false))
	require.NoError(t, err)

	now := time.Now()
	a, err := ev.Evaluate(context.Background(), models.Ticket{
		ID:          "T-1",
		Priority:    models.PriorityCritical,
		Status:      models.StatusOpen,
		CreatedAt:   now.Add(-3 * time.Hour),
		SLADeadline: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentFromRules, a.Source)
	assert.InDelta(t, 1.0, a.BreachProbability, 0.01)
}

func TestBuildAssessorServiceFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Prediction.Mode = "service"
	cfg.Prediction.URL = srv.URL
	cfg.Prediction.Timeout = time.Second

	ev, err := buildAssessor(cfg, logger.New(false))
	require.NoError(t, err)

	now := time.Now()
	a, err := ev.Evaluate(context.Background(), models.Ticket{
		ID:          "T-2",
		Priority:    models.PriorityHigh,
		Status:      models.StatusOpen,
		CreatedAt:   now.Add(-time.Hour),
		SLADeadline: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssessmentFromRules, a.Source)
}

func TestInitializeAndShutdown(t *testing.T) {
	tickets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets": []}`))
	}))
	defer tickets.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := fmt.Sprintf(`
[sqlite]
path = %q

[tickets]
base_url = %q

[alerts]
max_alerts_per_hour = 40
`, filepath.Join(dir, "slawatch.db"), tickets.URL)
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))

	a, err := New(Options{ConfigPath: path, Version: "test"})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	// First boot seeds the runtime settings from the file.
	assert.Equal(t, 40, a.SQLite.GetIntSetting(context.Background(), "alerts.max_alerts_per_hour", 0))

	require.Eventually(t, func() bool { return a.Engine.LastSummary() != nil }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[alerts]\nmax_alerts_per_hour = 0\n"), 0o600))

	_, err := New(Options{ConfigPath: path})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func writeConfig(t *testing.T, dir, ticketsURL string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	toml := fmt.Sprintf(`
[sqlite]
path = %q

[tickets]
base_url = %q
`, filepath.Join(dir, "slawatch.db"), ticketsURL)
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))
	return path
}

func TestInitializeRejectsInvalidStoredSettings(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http://127.0.0.1:1")

	db, err := sqlite.New(sqlite.Options{Config: config.SQLiteConfig{Path: filepath.Join(dir, "slawatch.db")}})
	require.NoError(t, err)
	require.NoError(t, db.SaveSettings(context.Background(), map[string]string{"alerts.max_alerts_per_hour": "0"}))
	require.NoError(t, db.Close())

	a, err := New(Options{ConfigPath: path})
	require.NoError(t, err)
	err = a.Initialize(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Nil(t, a.Scheduler)
	assert.Empty(t, a.closers)
}

func TestShutdownKeepsStoresOpenWhileCycleRuns(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	tickets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets": []}`))
	}))
	defer tickets.Close()

	a, err := New(Options{ConfigPath: writeConfig(t, t.TempDir(), tickets.URL)})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	closed := false
	a.closers = append(a.closers, func() error { closed = true; return nil })

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("monitoring cycle did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = a.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, closed, "stores must stay open under an in-flight cycle")

	close(release)
	a.Scheduler.Stop()
	a.closeAll()
	assert.True(t, closed)
}
