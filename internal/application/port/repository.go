package port

import (
	"context"
	"errors"
)

// ErrNotFound is returned by PreferenceStore.Load for an unknown key.
var ErrNotFound = errors.New("not found")

// Repository mirrors price state to storage. Writes are best effort.
type Repository interface {
	// Price operations
	UpsertLatestPrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error

	// Snapshot operations
	InsertSnapshot(ctx context.Context, ts int64, payload string) error

	Close() error
}

// TickPublisher fans ticks out to a message bus.
type TickPublisher interface {
	PublishTick(ctx context.Context, upstream string, t PriceTick) error
	Close() error
}

// PreferenceStore persists opaque blobs (watchlist, settings).
type PreferenceStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}
