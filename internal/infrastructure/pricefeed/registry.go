package pricefeed

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/infrastructure/exchange"
)

// Options carries the per-upstream settings a protocol factory needs.
type Options struct {
	WsURL  string
	APIKey string
}

// Factory builds the wire protocol for one upstream.
type Factory func(opts Options) exchange.Protocol

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a protocol factory for an upstream.
// Called from the init() of each upstream package.
func Register(upstream string, factory Factory) {
	if factory == nil {
		log.Warn().Str("feed", upstream).Msg("invalid protocol factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[upstream]; exists {
		log.Warn().Str("feed", upstream).Msg("protocol factory already registered, overwriting")
	}
	registry[upstream] = factory
}

// Get returns the factory registered for upstream.
func Get(upstream string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[upstream]
	return factory, ok
}

// Names lists registered upstreams, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
