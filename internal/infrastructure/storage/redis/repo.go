package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/storage"
)

const defaultSnapshotKeep = 100

type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	keySnapshots string // prefix + ":snapshots"
	channel      string
	keep         int64
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, channel string) *Repo {
	if prefix == "" {
		prefix = "tickerhub"
	}
	if channel == "" {
		channel = prefix + ":prices"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		keySnapshots: prefix + ":snapshots",
		channel:      channel,
		keep:         defaultSnapshotKeep,
	}
}

// Close leaves the client alone; its owner closes it.
func (r *Repo) Close() error { return nil }

func (r *Repo) UpsertLatestPrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	lp := storage.LatestPrice{Upstream: upstream, Symbol: symbol, Price: price, Ts: ts}
	b, _ := json.Marshal(lp)

	// Hash: field = "binance:BINANCE:BTC-USD" -> json
	field := fmt.Sprintf("%s:%s", upstream, symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	// PubSub: PUBLISH <channel> json
	pipe.Publish(ctx, r.channel, string(b))
	_, err := pipe.Exec(ctx)
	return err
}

// GetLatestPrice returns port.ErrNotFound when the hash has no such field.
func (r *Repo) GetLatestPrice(ctx context.Context, upstream, symbol string) (storage.LatestPrice, error) {
	var lp storage.LatestPrice
	s, err := r.rdb.HGet(ctx, r.keyLatest, fmt.Sprintf("%s:%s", upstream, symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return lp, port.ErrNotFound
	}
	if err != nil {
		return lp, err
	}
	err = json.Unmarshal([]byte(s), &lp)
	return lp, err
}

// InsertSnapshot keeps the newest snapshots in a capped list.
func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, r.keySnapshots, payload)
	pipe.LTrim(ctx, r.keySnapshots, 0, r.keep-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) prefKey(key string) string {
	return r.prefix + ":pref:" + key
}

// Load implements port.PreferenceStore.
func (r *Repo) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrNotFound
	}
	return b, err
}

// Save implements port.PreferenceStore. Preferences never expire.
func (r *Repo) Save(ctx context.Context, key string, blob []byte) error {
	return r.rdb.Set(ctx, r.prefKey(key), blob, 0).Err()
}

var (
	_ port.Repository      = (*Repo)(nil)
	_ port.PreferenceStore = (*Repo)(nil)
)
