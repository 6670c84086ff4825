package service

import (
	"context"
	"encoding/json"
	"testing"

	"tickerhub/internal/domain"
)

func TestSnapshotServiceCapture(t *testing.T) {
	board := domain.NewBoard()
	board.ApplyTick(domain.NewPriceTick("AAPL", 100, 1, 5, nil))
	board.ApplyTick(domain.NewPriceTick("AAPL", 110, 2, 6, nil))
	board.ApplyTick(domain.NewPriceTick("MSFT", 400, 1, 1, nil))

	repo := newMockRepository()
	svc := NewSnapshotService(repo, board)

	snap, err := svc.Capture(context.Background(), 1234, []string{"AAPL", "UNKNOWN"})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if snap.ID == "" || snap.Timestamp != 1234 {
		t.Fatalf("bad snapshot header: %+v", snap)
	}
	if len(snap.Prices) != 1 || snap.Prices[0].Price != 110 || snap.Prices[0].Direction != "up" {
		t.Fatalf("unexpected entries: %+v", snap.Prices)
	}

	if len(repo.snapshots) != 1 {
		t.Fatalf("expected one persisted snapshot, got %d", len(repo.snapshots))
	}
	var stored Snapshot
	if err := json.Unmarshal([]byte(repo.snapshots[0]), &stored); err != nil {
		t.Fatalf("stored payload is not json: %v", err)
	}
	if stored.ID != snap.ID {
		t.Errorf("stored id %q != %q", stored.ID, snap.ID)
	}

	all := svc.Build(1, nil)
	if len(all.Prices) != 2 {
		t.Errorf("expected all symbols, got %d", len(all.Prices))
	}
}
