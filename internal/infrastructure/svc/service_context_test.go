package svc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tickerhub/internal/infrastructure/config"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	t.Setenv("FINNHUB_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

const feedsTOML = `
[feeds.binance]
enabled = true
ws_url = "wss://stream.binance.test/ws"

[feeds.finnhub]
enabled = true
ws_url = "wss://ws.finnhub.test"
`

func TestNewWiresComponents(t *testing.T) {
	cfg := loadConfig(t, feedsTOML)

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()

	if sc.App().Supervisor() == nil {
		t.Fatalf("supervisor not built")
	}
	if got := sc.manager.Upstreams(); len(got) != 2 {
		t.Fatalf("expected both feeds enabled, got %v", got)
	}

	deps := sc.BuildMonitorServiceDeps()
	if deps.Board != sc.App().Board() || deps.Snapshots == nil || deps.RefreshEvery <= 0 {
		t.Fatalf("monitor deps incomplete: %+v", deps)
	}
	if got := deps.Symbols(); len(got) != 5 {
		t.Fatalf("expected default watchlist, got %v", got)
	}

	srv := httptest.NewServer(sc.HTTPHandler())
	defer srv.Close()
	for _, path := range []string{"/api/status", "/api/prices", "/api/watchlist", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestNewWithoutFeeds(t *testing.T) {
	cfg := loadConfig(t, strings.ReplaceAll(feedsTOML, "enabled = true", "enabled = false"))

	_, err := New(context.Background(), cfg)
	if !errors.Is(err, ErrNoFeedsEnabled) {
		t.Fatalf("expected ErrNoFeedsEnabled, got %v", err)
	}
}

func TestNewWithSQLiteStorage(t *testing.T) {
	dbPath := filepath.ToSlash(filepath.Join(t.TempDir(), "tickerhub.db"))
	cfg := loadConfig(t, feedsTOML+`
[storage]
enabled = true
preferences = "sqlite"

[storage.sqlite]
enabled = true
path = "`+dbPath+`"
`)

	sc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sc.Close()

	ctx := context.Background()
	wl := sc.App().WatchlistService()
	if err := wl.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// finnhub has no api key here, so the subscription is only queued
	if err := wl.Add(ctx, "NVDA"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sc.App().Supervisor().DisconnectAll()

	blob, err := sc.infra.SQLiteRepo().Load(ctx, "watchlist")
	if err != nil || !strings.Contains(string(blob), "NVDA") {
		t.Fatalf("watchlist not persisted to sqlite: %s, %v", blob, err)
	}
}
