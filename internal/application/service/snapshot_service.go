package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tickerhub/internal/application/port"
	"tickerhub/internal/domain"
)

// SnapshotEntry is the state of one symbol at snapshot time.
type SnapshotEntry struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Change     float64 `json:"change"`
	Volume     float64 `json:"volume"`
	LastUpdate int64   `json:"last_update"`
	Direction  string  `json:"direction"`
}

type Snapshot struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"ts"`
	Prices    []SnapshotEntry `json:"prices"`
}

type SnapshotService struct {
	repo  port.Repository
	board *domain.Board
}

func NewSnapshotService(repo port.Repository, board *domain.Board) *SnapshotService {
	return &SnapshotService{repo: repo, board: board}
}

// SaveSnapshot is a no-op without a repository.
func (s *SnapshotService) SaveSnapshot(ctx context.Context, ts int64, payload string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.InsertSnapshot(ctx, ts, payload)
}

// Build collects the given symbols (all known symbols when empty). Symbols
// without a record are skipped.
func (s *SnapshotService) Build(ts int64, symbols []string) Snapshot {
	if len(symbols) == 0 {
		symbols = s.board.Symbols()
	}
	snap := Snapshot{ID: uuid.NewString(), Timestamp: ts, Prices: make([]SnapshotEntry, 0, len(symbols))}
	for _, sym := range symbols {
		rec, ok := s.board.Snapshot(sym)
		if !ok {
			continue
		}
		snap.Prices = append(snap.Prices, SnapshotEntry{
			Symbol:     sym,
			Price:      rec.Current.Price,
			Change:     s.board.GetChange(sym),
			Volume:     rec.Current.Volume,
			LastUpdate: rec.LastUpdate,
			Direction:  rec.Direction.String(),
		})
	}
	return snap
}

// Capture builds a snapshot and persists it as JSON.
func (s *SnapshotService) Capture(ctx context.Context, ts int64, symbols []string) (Snapshot, error) {
	snap := s.Build(ts, symbols)
	payload, err := json.Marshal(snap)
	if err != nil {
		return snap, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.SaveSnapshot(ctx, ts, string(payload)); err != nil {
		return snap, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}
