package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// FeedConfig configures one streaming upstream.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
	APIKey  string `toml:"api_key"`
	// APIKeyEnv names the environment variable holding the key when api_key is empty.
	APIKeyEnv string `toml:"api_key_env"`
}

type Config struct {
	App struct {
		PrintEveryMin int    `toml:"print_every_min"`
		LogLevel      string `toml:"log_level"`
		HTTPAddr      string `toml:"http_addr"`
		StaleAfterSec int    `toml:"stale_after_sec"`
	} `toml:"app"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	History struct {
		Capacity     int `toml:"capacity"`
		DefaultLimit int `toml:"default_limit"`
	} `toml:"history"`

	Routing struct {
		Prefixes        map[string]string `toml:"prefixes"`
		DefaultUpstream string            `toml:"default_upstream"`
	} `toml:"routing"`

	Supervisor struct {
		InitialBackoffMs   int `toml:"initial_backoff_ms"`
		MaxBackoffMs       int `toml:"max_backoff_ms"`
		MaxRetries         int `toml:"max_retries"`
		ResubscribeDelayMs int `toml:"resubscribe_delay_ms"`
	} `toml:"supervisor"`

	Feeds map[string]FeedConfig `toml:"feeds"`

	Metadata struct {
		Enabled        bool    `toml:"enabled"`
		FinnhubURL     string  `toml:"finnhub_url"`
		CoinGeckoURL   string  `toml:"coingecko_url"`
		RequestsPerSec float64 `toml:"requests_per_sec"`
	} `toml:"metadata"`

	Storage struct {
		Enabled bool `toml:"enabled"`
		// Preferences selects the watchlist/settings store: memory, sqlite or redis.
		Preferences string `toml:"preferences"`

		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
			Channel    string `toml:"channel"`
		} `toml:"redis"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Kafka struct {
			Enabled bool     `toml:"enabled"`
			Brokers []string `toml:"brokers"`
			Topic   string   `toml:"topic"`
		} `toml:"kafka"`
	} `toml:"storage"`
}

// Preference store kinds
const (
	PreferencesMemory = "memory"
	PreferencesSQLite = "sqlite"
	PreferencesRedis  = "redis"
)

var defaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "BINANCE:BTC-USD", "BINANCE:ETH-USD"}

// Load reads an optional .env next to the working directory, then the TOML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	resolveSecrets(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.PrintEveryMin <= 0 {
		cfg.App.PrintEveryMin = 5
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.StaleAfterSec <= 0 {
		cfg.App.StaleAfterSec = 60
	}
	if len(cfg.Symbols.List) == 0 {
		cfg.Symbols.List = append([]string(nil), defaultSymbols...)
	}

	if cfg.History.Capacity <= 0 {
		cfg.History.Capacity = 100
	}
	if cfg.History.DefaultLimit <= 0 {
		cfg.History.DefaultLimit = 50
	}

	if cfg.Routing.Prefixes == nil {
		cfg.Routing.Prefixes = map[string]string{"BINANCE": "binance"}
	}
	if cfg.Routing.DefaultUpstream == "" {
		cfg.Routing.DefaultUpstream = "finnhub"
	}

	if cfg.Supervisor.InitialBackoffMs <= 0 {
		cfg.Supervisor.InitialBackoffMs = 500
	}
	if cfg.Supervisor.MaxBackoffMs <= 0 {
		cfg.Supervisor.MaxBackoffMs = 10_000
	}

	if cfg.Feeds == nil {
		cfg.Feeds = map[string]FeedConfig{}
	}
	if f, ok := cfg.Feeds["finnhub"]; ok && f.APIKey == "" && f.APIKeyEnv == "" {
		f.APIKeyEnv = "FINNHUB_API_KEY"
		cfg.Feeds["finnhub"] = f
	}

	if cfg.Metadata.RequestsPerSec <= 0 {
		cfg.Metadata.RequestsPerSec = 1
	}

	if cfg.Storage.Preferences == "" {
		cfg.Storage.Preferences = PreferencesMemory
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "tickerhub"
	}
	if cfg.Storage.Redis.Channel == "" {
		cfg.Storage.Redis.Channel = "tickerhub:prices"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/tickerhub.db"
	}
	if cfg.Storage.Kafka.Topic == "" {
		cfg.Storage.Kafka.Topic = "tickerhub.ticks"
	}
}

// resolveSecrets fills api_key from api_key_env.
func resolveSecrets(cfg *Config) {
	for name, f := range cfg.Feeds {
		if strings.TrimSpace(f.APIKey) == "" && f.APIKeyEnv != "" {
			f.APIKey = strings.TrimSpace(os.Getenv(f.APIKeyEnv))
			cfg.Feeds[name] = f
		}
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.List = normalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		return errors.New("symbols.list is empty")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.App.LogLevel)); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}

	if cfg.Supervisor.MaxBackoffMs < cfg.Supervisor.InitialBackoffMs {
		return errors.New("supervisor.max_backoff_ms is below initial_backoff_ms")
	}
	if cfg.Supervisor.MaxRetries < 0 {
		return errors.New("supervisor.max_retries must be >= 0")
	}

	prefixes := make(map[string]string, len(cfg.Routing.Prefixes))
	for prefix, upstream := range cfg.Routing.Prefixes {
		p := strings.ToUpper(strings.TrimSpace(prefix))
		u := strings.TrimSpace(upstream)
		if p == "" || u == "" {
			return fmt.Errorf("routing.prefixes: empty entry %q = %q", prefix, upstream)
		}
		prefixes[p] = u
	}
	cfg.Routing.Prefixes = prefixes

	for name, f := range cfg.Feeds {
		if f.Enabled && strings.TrimSpace(f.WsURL) == "" {
			return fmt.Errorf("feeds.%s.ws_url empty but enabled", name)
		}
	}

	switch cfg.Storage.Preferences {
	case PreferencesMemory:
	case PreferencesSQLite:
		if !cfg.Storage.Enabled || !cfg.Storage.SQLite.Enabled {
			return errors.New("storage.preferences = sqlite but sqlite storage disabled")
		}
	case PreferencesRedis:
		if !cfg.Storage.Enabled || !cfg.Storage.Redis.Enabled {
			return errors.New("storage.preferences = redis but redis storage disabled")
		}
	default:
		return fmt.Errorf("storage.preferences: unknown store %q", cfg.Storage.Preferences)
	}

	if cfg.Storage.Enabled {
		if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			return errors.New("storage.redis.addr empty but enabled")
		}
		if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but enabled")
		}
		if cfg.Storage.Kafka.Enabled && len(cfg.Storage.Kafka.Brokers) == 0 {
			return errors.New("storage.kafka.brokers empty but enabled")
		}
	}
	return nil
}

// GetEnabledFeeds returns the names of enabled feeds, sorted.
func (c *Config) GetEnabledFeeds() []string {
	out := make([]string, 0, len(c.Feeds))
	for name, f := range c.Feeds {
		if f.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.App.StaleAfterSec) * time.Second
}

func (c *Config) ResubscribeDelay() time.Duration {
	return time.Duration(c.Supervisor.ResubscribeDelayMs) * time.Millisecond
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
