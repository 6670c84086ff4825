package service

import (
	"sort"
	"strings"

	"tickerhub/internal/application"
	"tickerhub/internal/domain"
)

// Router maps a canonical symbol to the upstream that serves it.
// The prefix table is copied at construction and never changes.
type Router struct {
	table    map[string]string
	fallback string
	canon    map[string]func(string) (string, bool)
}

type RouterOption func(*Router)

// WithCanonicalizer registers the rewrite applied to symbols of one namespace
// so that subscriptions use the same key the upstream's ticks are stored under.
func WithCanonicalizer(prefix string, fn func(string) (string, bool)) RouterOption {
	return func(r *Router) {
		if prefix = domain.NormalizeSymbol(prefix); prefix != "" && fn != nil {
			r.canon[prefix] = fn
		}
	}
}

// NewRouter builds a router from a prefix -> upstream table. Prefixes are
// matched case-insensitively; symbols without a known prefix go to fallback.
func NewRouter(table map[string]string, fallback string, opts ...RouterOption) *Router {
	r := &Router{
		table:    make(map[string]string, len(table)),
		fallback: strings.TrimSpace(fallback),
		canon:    make(map[string]func(string) (string, bool)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for prefix, upstream := range table {
		prefix = domain.NormalizeSymbol(prefix)
		upstream = strings.TrimSpace(upstream)
		if prefix == "" || upstream == "" {
			continue
		}
		r.table[prefix] = upstream
	}
	if r.fallback == "" {
		r.fallback = application.UpstreamFinnhub
	}
	return r
}

// DefaultRouter sends BINANCE:* to binance and everything else to finnhub.
func DefaultRouter() *Router {
	return NewRouter(map[string]string{application.PrefixBinance: application.UpstreamBinance}, application.UpstreamFinnhub)
}

// Route is total: every symbol maps to exactly one upstream.
func (r *Router) Route(symbol string) string {
	prefix, _ := domain.SplitSymbol(domain.NormalizeSymbol(symbol))
	if prefix != "" {
		if upstream, ok := r.table[prefix]; ok {
			return upstream
		}
	}
	return r.fallback
}

// Canonical normalizes symbol and applies its namespace's canonicalizer.
// Symbols the canonicalizer rejects are returned normalized.
func (r *Router) Canonical(symbol string) string {
	symbol = domain.NormalizeSymbol(symbol)
	prefix, _ := domain.SplitSymbol(symbol)
	if fn, ok := r.canon[prefix]; ok && prefix != "" {
		if c, ok := fn(symbol); ok {
			return c
		}
	}
	return symbol
}

// Partition groups symbols by upstream, keeping input order and dropping
// duplicates and empty entries.
func (r *Router) Partition(symbols []string) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = r.Canonical(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		upstream := r.Route(s)
		out[upstream] = append(out[upstream], s)
	}
	return out
}

// Upstreams returns every upstream the router can produce, sorted.
func (r *Router) Upstreams() []string {
	set := map[string]struct{}{r.fallback: {}}
	for _, u := range r.table {
		set[u] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
