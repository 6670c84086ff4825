package monitor

import (
	"context"

	"tickerhub/internal/application/service"
)

// SnapshotCapturer persists a periodic snapshot of the watched symbols.
type SnapshotCapturer interface {
	Capture(ctx context.Context, ts int64, symbols []string) (service.Snapshot, error)
}
