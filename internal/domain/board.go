package domain

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Board is the aggregation engine: it owns every PriceRecord and is the only writer.
// All feed connections share one Board through ApplyTick.
type Board struct {
	mu       sync.RWMutex
	records  map[Symbol]*PriceRecord
	capacity int
	now      func() time.Time

	watchMu  sync.Mutex
	watchers map[int]chan Symbol
	nextID   int
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithHistoryCapacity overrides the per-symbol history bound.
func WithHistoryCapacity(n int) BoardOption {
	return func(b *Board) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithClock overrides the ingestion clock (tests).
func WithClock(now func() time.Time) BoardOption {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBoard creates a new Board instance
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{
		records:  make(map[Symbol]*PriceRecord),
		capacity: DefaultHistoryCapacity,
		now:      time.Now,
		watchers: make(map[int]chan Symbol),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ApplyTick is the single entry point for state mutation.
// Safe for concurrent use by multiple feed connections. Ticks without a
// symbol or with a non-finite price are ignored.
func (b *Board) ApplyTick(t PriceTick) {
	if t.Symbol == "" || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return
	}

	b.mu.Lock()
	rec := b.records[t.Symbol]
	if rec == nil {
		rec = &PriceRecord{}
		b.records[t.Symbol] = rec
	}
	rec.apply(t, b.now().UnixMilli(), b.capacity)
	b.mu.Unlock()

	b.notify(t.Symbol)
}

// GetPrice returns the last price, or 0 when the symbol is unknown.
func (b *Board) GetPrice(symbol Symbol) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rec := b.records[symbol]; rec != nil {
		return rec.Current.Price
	}
	return 0
}

// GetChange returns the percent change between the last two ticks. Without a
// previous tick it falls back to the upstream 24h change, then 0.
func (b *Board) GetChange(symbol Symbol) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rec := b.records[symbol]; rec != nil {
		return rec.Change()
	}
	return 0
}

// GetVolume returns the volume of the last tick, or 0.
func (b *Board) GetVolume(symbol Symbol) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rec := b.records[symbol]; rec != nil {
		return rec.Current.Volume
	}
	return 0
}

// GetLastUpdate returns the ingestion time of the last tick in unix ms, or 0.
func (b *Board) GetLastUpdate(symbol Symbol) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rec := b.records[symbol]; rec != nil {
		return rec.LastUpdate
	}
	return 0
}

// GetDirection returns the movement of the last tick relative to the previous one.
func (b *Board) GetDirection(symbol Symbol) Direction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rec := b.records[symbol]; rec != nil {
		return rec.Direction
	}
	return DirectionSame
}

// GetHistory returns up to limit of the most recent points, oldest first.
// limit <= 0 means DefaultHistoryLimit.
func (b *Board) GetHistory(symbol Symbol, limit int) []HistoryPoint {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	rec := b.records[symbol]
	if rec == nil {
		return []HistoryPoint{}
	}
	h := rec.History
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]HistoryPoint, len(h))
	copy(out, h)
	return out
}

// IsStale reports whether the symbol has not been updated within maxAge.
// Unknown symbols are stale.
func (b *Board) IsStale(symbol Symbol, maxAge time.Duration) bool {
	now := b.now().UnixMilli()
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec := b.records[symbol]
	if rec == nil {
		return true
	}
	return rec.StaleAt(now, maxAge)
}

// Now returns the Board's ingestion clock.
func (b *Board) Now() time.Time { return b.now() }

// Snapshot returns a consistent copy of one record.
func (b *Board) Snapshot(symbol Symbol) (PriceRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec := b.records[symbol]
	if rec == nil {
		return PriceRecord{}, false
	}
	return rec.clone(), true
}

// Symbols returns every symbol with a record, sorted.
func (b *Board) Symbols() []Symbol {
	b.mu.RLock()
	out := make([]Symbol, 0, len(b.records))
	for s := range b.records {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// ClearHistory empties the history of one symbol. Current price state is kept.
func (b *Board) ClearHistory(symbol Symbol) {
	b.mu.Lock()
	rec := b.records[symbol]
	if rec != nil {
		rec.History = nil
	}
	b.mu.Unlock()

	if rec != nil {
		b.notify(symbol)
	}
}

// ClearAllHistory empties the history of every symbol.
func (b *Board) ClearAllHistory() {
	b.mu.Lock()
	syms := make([]Symbol, 0, len(b.records))
	for s, rec := range b.records {
		rec.History = nil
		syms = append(syms, s)
	}
	b.mu.Unlock()

	for _, s := range syms {
		b.notify(s)
	}
}

// Reset drops every record.
func (b *Board) Reset() {
	b.mu.Lock()
	b.records = make(map[Symbol]*PriceRecord)
	b.mu.Unlock()
}

// Watch registers for change notifications keyed by symbol. Delivery never
// blocks ApplyTick: when the buffer is full the event is dropped for this
// watcher, so consumers should re-read state instead of counting events.
// The returned cancel func closes the channel.
func (b *Board) Watch(buffer int) (<-chan Symbol, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Symbol, buffer)

	b.watchMu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = ch
	b.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.watchMu.Lock()
			delete(b.watchers, id)
			b.watchMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Board) notify(symbol Symbol) {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	for _, ch := range b.watchers {
		select {
		case ch <- symbol:
		default:
		}
	}
}
