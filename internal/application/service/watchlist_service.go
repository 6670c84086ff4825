package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
)

// Preference keys
const (
	WatchlistKey = "watchlist"
	SettingsKey  = "settings"
)

var (
	ErrWatchlistFull = errors.New("watchlist full")
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// DefaultWatchlist is used when nothing has been saved yet.
var DefaultWatchlist = []string{"AAPL", "GOOGL", "MSFT", "BINANCE:BTC-USD", "BINANCE:ETH-USD"}

// Settings are the user preferences stored next to the watchlist.
type Settings struct {
	UpdateIntervalMs  int `json:"update_interval_ms"`
	MaxWatchlistItems int `json:"max_watchlist_items"`
}

var DefaultSettings = Settings{UpdateIntervalMs: 1000, MaxWatchlistItems: 50}

func (s Settings) withDefaults() Settings {
	if s.UpdateIntervalMs <= 0 {
		s.UpdateIntervalMs = DefaultSettings.UpdateIntervalMs
	}
	if s.MaxWatchlistItems <= 0 {
		s.MaxWatchlistItems = DefaultSettings.MaxWatchlistItems
	}
	return s
}

// SymbolSubscriber is the part of the Supervisor the watchlist drives.
type SymbolSubscriber interface {
	SubscribeToSymbol(ctx context.Context, symbol string) error
	UnsubscribeFromSymbol(symbol string)
}

// WatchlistService keeps the watched symbols and the settings, persisting
// every change through the PreferenceStore.
type WatchlistService struct {
	store port.PreferenceStore
	subs  SymbolSubscriber

	defaults []string
	canon    func(string) string

	mu       sync.RWMutex
	symbols  []string
	settings Settings
}

type WatchlistOption func(*WatchlistService)

// WithDefaultSymbols replaces DefaultWatchlist as the list used when nothing is saved.
func WithDefaultSymbols(symbols []string) WatchlistOption {
	return func(s *WatchlistService) {
		if list := dedupe(symbols, domain.NormalizeSymbol); len(list) > 0 {
			s.defaults = list
		}
	}
}

// WithSymbolCanonicalizer rewrites every symbol before it is stored, so the
// watchlist holds the keys prices are recorded under.
func WithSymbolCanonicalizer(fn func(string) string) WatchlistOption {
	return func(s *WatchlistService) {
		if fn != nil {
			s.canon = fn
		}
	}
}

// NewWatchlistService creates the service with defaults; call Load to read
// saved preferences. store and subs may be nil.
func NewWatchlistService(store port.PreferenceStore, subs SymbolSubscriber, opts ...WatchlistOption) *WatchlistService {
	s := &WatchlistService{
		store:    store,
		subs:     subs,
		defaults: append([]string(nil), DefaultWatchlist...),
		settings: DefaultSettings,
		canon:    domain.NormalizeSymbol,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.defaults = dedupe(s.defaults, s.canon)
	s.symbols = append([]string(nil), s.defaults...)
	return s
}

// Load reads settings and watchlist. Missing or unreadable blobs fall back to defaults.
func (s *WatchlistService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	settings := DefaultSettings
	if blob, err := s.store.Load(ctx, SettingsKey); err == nil {
		var saved Settings
		if err := json.Unmarshal(blob, &saved); err != nil {
			log.Warn().Err(err).Msg("settings blob unreadable, using defaults")
		} else {
			settings = saved.withDefaults()
		}
	} else if !errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("load settings: %w", err)
	}

	symbols := append([]string(nil), s.defaults...)
	if blob, err := s.store.Load(ctx, WatchlistKey); err == nil {
		var saved []string
		if err := json.Unmarshal(blob, &saved); err != nil {
			log.Warn().Err(err).Msg("watchlist blob unreadable, using defaults")
		} else {
			symbols = dedupe(saved, s.canon)
		}
	} else if !errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("load watchlist: %w", err)
	}
	if len(symbols) > settings.MaxWatchlistItems {
		symbols = symbols[:settings.MaxWatchlistItems]
	}

	s.mu.Lock()
	s.settings = settings
	s.symbols = symbols
	s.mu.Unlock()

	log.Info().Strs("symbols", symbols).Msg("watchlist loaded")
	return nil
}

func (s *WatchlistService) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.symbols...)
}

func (s *WatchlistService) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Add appends symbol. Adding a symbol already present is a no-op.
func (s *WatchlistService) Add(ctx context.Context, symbol string) error {
	symbol = s.canon(domain.NormalizeSymbol(symbol))
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if prefix, body := domain.SplitSymbol(symbol); prefix != "" && body == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	s.mu.Lock()
	for _, existing := range s.symbols {
		if existing == symbol {
			s.mu.Unlock()
			return nil
		}
	}
	if len(s.symbols) >= s.settings.MaxWatchlistItems {
		s.mu.Unlock()
		return ErrWatchlistFull
	}
	s.symbols = append(s.symbols, symbol)
	snapshot := append([]string(nil), s.symbols...)
	s.mu.Unlock()

	if s.subs != nil {
		if err := s.subs.SubscribeToSymbol(ctx, symbol); err != nil {
			log.Warn().Str("symbol", symbol).Err(err).Msg("subscribe watchlist symbol")
		}
	}
	return s.save(ctx, WatchlistKey, snapshot)
}

// Remove drops symbol; port.ErrNotFound when it is not watched.
func (s *WatchlistService) Remove(ctx context.Context, symbol string) error {
	symbol = s.canon(domain.NormalizeSymbol(symbol))

	s.mu.Lock()
	idx := -1
	for i, existing := range s.symbols {
		if existing == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return port.ErrNotFound
	}
	s.symbols = append(s.symbols[:idx], s.symbols[idx+1:]...)
	snapshot := append([]string(nil), s.symbols...)
	s.mu.Unlock()

	if s.subs != nil {
		s.subs.UnsubscribeFromSymbol(symbol)
	}
	return s.save(ctx, WatchlistKey, snapshot)
}

// UpdateSettings replaces the settings; zero fields keep their defaults.
func (s *WatchlistService) UpdateSettings(ctx context.Context, next Settings) error {
	next = next.withDefaults()
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	return s.save(ctx, SettingsKey, next)
}

func (s *WatchlistService) save(ctx context.Context, key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, key, blob); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func dedupe(in []string, canon func(string) string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = canon(domain.NormalizeSymbol(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
