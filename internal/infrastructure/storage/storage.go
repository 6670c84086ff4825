package storage

import (
	"context"
	"sort"
	"sync"

	"tickerhub/internal/application/port"
)

// LatestPrice is the last mirrored price of one symbol.
type LatestPrice struct {
	Upstream string  `json:"upstream"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Ts       int64   `json:"ts"`
}

// SnapshotRow is one persisted snapshot.
type SnapshotRow struct {
	Ts      int64
	Payload string
}

// MemoryStore keeps latest prices, snapshots and preference blobs in process.
// It is the default preference store and is handy in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	latest    map[string]LatestPrice
	snapshots []SnapshotRow
	prefs     map[string][]byte
	// snapshots beyond maxSnapshots are evicted oldest first
	maxSnapshots int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:       make(map[string]LatestPrice),
		prefs:        make(map[string][]byte),
		maxSnapshots: 100,
	}
}

func (s *MemoryStore) UpsertLatestPrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[upstream+":"+symbol] = LatestPrice{Upstream: upstream, Symbol: symbol, Price: price, Ts: ts}
	return nil
}

func (s *MemoryStore) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, SnapshotRow{Ts: ts, Payload: payload})
	if len(s.snapshots) > s.maxSnapshots {
		s.snapshots = append([]SnapshotRow(nil), s.snapshots[len(s.snapshots)-s.maxSnapshots:]...)
	}
	return nil
}

// LatestPrices returns every mirrored price ordered by symbol then upstream.
func (s *MemoryStore) LatestPrices() []LatestPrice {
	s.mu.RLock()
	out := make([]LatestPrice, 0, len(s.latest))
	for _, lp := range s.latest {
		out = append(out, lp)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Upstream < out[j].Upstream
	})
	return out
}

func (s *MemoryStore) Snapshots() []SnapshotRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SnapshotRow(nil), s.snapshots...)
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.prefs[key]
	if !ok {
		return nil, port.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var (
	_ port.Repository      = (*MemoryStore)(nil)
	_ port.PreferenceStore = (*MemoryStore)(nil)
)
