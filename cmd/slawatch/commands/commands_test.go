package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	cliconfig "github.com/mr-karan/slawatch/internal/cli/config"
	"github.com/mr-karan/slawatch/internal/config"
	"github.com/mr-karan/slawatch/pkg/models"
)

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

// run executes the CLI against handler and returns stdout.
func run(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var out bytes.Buffer
	root := newRoot(&App{Version: "test", out: &out})
	full := append([]string{
		"slawatch",
		"--config", filepath.Join(t.TempDir(), "cli.toml"),
		"--server", server.URL,
		"--no-color",
	}, args...)
	err := root.Run(context.Background(), full)
	return out.String(), err
}

func TestAlertsCommand(t *testing.T) {
	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("severity") != "critical" || q.Get("limit") != "5" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if q.Get("from") == "" {
			t.Error("--since should set from")
		}
		writeData(w, []models.Alert{{ID: "a-1", TicketID: "T-9", Severity: models.AlertSeverityCritical}})
	}, "-o", "json", "alerts", "--severity", "critical", "--limit", "5", "--since", "2h")
	if err != nil {
		t.Fatalf("alerts error = %v", err)
	}

	var alerts []models.Alert
	if err := json.Unmarshal([]byte(out), &alerts); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(alerts) != 1 || alerts[0].TicketID != "T-9" {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestAlertsCommand_DefaultLimit(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q, want CLI default 50", got)
		}
		writeData(w, []models.Alert{})
	}, "alerts")
	if err != nil {
		t.Fatalf("alerts error = %v", err)
	}
}

func TestAlertsCommand_BadSeverity(t *testing.T) {
	called := false
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "alerts", "--severity", "urgent")
	if err == nil || !strings.Contains(err.Error(), "invalid severity") {
		t.Errorf("alerts error = %v, want invalid severity", err)
	}
	if called {
		t.Error("server should not be called for an invalid severity")
	}
}

func TestTriggerCommand_Conflict(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "error",
			"message":    "A monitoring cycle is already running",
			"error_type": "ConflictError",
		})
	}, "trigger")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("trigger error = %v, want conflict message", err)
	}
}

func TestSettingsUpdate(t *testing.T) {
	var got config.RuntimeUpdate
	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeData(w, config.Default())
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
				return
			}
			cfg, err := got.Apply(config.Default())
			if err != nil {
				t.Errorf("Apply() error = %v", err)
				return
			}
			writeData(w, cfg)
		}
	}, "settings", "update", "--risk-critical", "0.95", "--enable", "email", "--max-alerts-per-hour", "12")
	if err != nil {
		t.Fatalf("settings update error = %v", err)
	}

	defaults := config.Default()
	if got.RiskThresholds == nil || got.RiskThresholds.Critical != 0.95 {
		t.Fatalf("risk thresholds = %+v", got.RiskThresholds)
	}
	if got.RiskThresholds.Medium != defaults.Alerts.RiskThresholds.Medium {
		t.Errorf("unset medium threshold = %v, want current %v", got.RiskThresholds.Medium, defaults.Alerts.RiskThresholds.Medium)
	}
	if got.ChannelsEnabled == nil || !got.ChannelsEnabled.Email || !got.ChannelsEnabled.Chat {
		t.Errorf("channels = %+v", got.ChannelsEnabled)
	}
	if got.MaxAlertsPerHour == nil || *got.MaxAlertsPerHour != 12 {
		t.Errorf("max alerts per hour = %v", got.MaxAlertsPerHour)
	}
	if got.EscalationThresholds != nil || got.MainCyclePeriod != nil {
		t.Error("unset flags should not be sent")
	}
	if !strings.Contains(out, "Settings updated") {
		t.Errorf("output = %q", out)
	}
}

func TestSettingsUpdate_Nothing(t *testing.T) {
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			t.Error("empty update should not be sent")
		}
		writeData(w, config.Default())
	}, "settings", "update")
	if err == nil || !strings.Contains(err.Error(), "nothing to update") {
		t.Errorf("settings update error = %v", err)
	}
}

func TestApplyConfigValue(t *testing.T) {
	cfg := cliconfig.Default()
	if err := applyConfigValue(cfg, "output.limit", "20"); err != nil || cfg.Output.Limit != 20 {
		t.Errorf("output.limit: err = %v, limit = %d", err, cfg.Output.Limit)
	}
	if err := applyConfigValue(cfg, "server.timeout", "10s"); err != nil || cfg.Server.Timeout.String() != "10s" {
		t.Errorf("server.timeout: err = %v, timeout = %v", err, cfg.Server.Timeout)
	}
	if err := applyConfigValue(cfg, "output.format", "csv"); err == nil {
		t.Error("output.format csv should be rejected")
	}
	if err := applyConfigValue(cfg, "defaults.team", "x"); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {}, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "version test") {
		t.Errorf("version output = %q", out)
	}
}
