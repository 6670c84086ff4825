package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tickerhub/internal/application/port"
	"tickerhub/internal/infrastructure/storage"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS prices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  upstream TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(upstream, symbol)
);
CREATE INDEX IF NOT EXISTS idx_prices_ts ON prices(ts_ms);
CREATE INDEX IF NOT EXISTS idx_prices_symbol ON prices(symbol);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);

CREATE TABLE IF NOT EXISTS preferences (
  key TEXT PRIMARY KEY,
  blob BLOB NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, upstream, symbol string, price float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(upstream, symbol, price, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(upstream, symbol) DO UPDATE SET
		price=excluded.price, ts_ms=excluded.ts_ms
	`, upstream, symbol, price, ts, time.Now().UnixMilli())
	return err
}

// GetLatestPrice returns port.ErrNotFound when nothing was mirrored for the pair.
func (r *Repo) GetLatestPrice(ctx context.Context, upstream, symbol string) (storage.LatestPrice, error) {
	lp := storage.LatestPrice{Upstream: upstream, Symbol: symbol}
	err := r.db.QueryRowContext(ctx, `SELECT price, ts_ms FROM prices WHERE upstream=? AND symbol=?`, upstream, symbol).
		Scan(&lp.Price, &lp.Ts)
	if errors.Is(err, sql.ErrNoRows) {
		return lp, port.ErrNotFound
	}
	return lp, err
}

func (r *Repo) ListLatestPrices(ctx context.Context) ([]storage.LatestPrice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT upstream, symbol, price, ts_ms FROM prices ORDER BY symbol, upstream`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.LatestPrice
	for rows.Next() {
		var lp storage.LatestPrice
		if err := rows.Scan(&lp.Upstream, &lp.Symbol, &lp.Price, &lp.Ts); err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, time.Now().UnixMilli())
	return err
}

// LatestSnapshot returns port.ErrNotFound when no snapshot was stored yet.
func (r *Repo) LatestSnapshot(ctx context.Context) (storage.SnapshotRow, error) {
	var row storage.SnapshotRow
	err := r.db.QueryRowContext(ctx, `SELECT ts_ms, payload FROM snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`).
		Scan(&row.Ts, &row.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return row, port.ErrNotFound
	}
	return row, err
}

// Load implements port.PreferenceStore.
func (r *Repo) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT blob FROM preferences WHERE key=?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	return blob, err
}

// Save implements port.PreferenceStore.
func (r *Repo) Save(ctx context.Context, key string, blob []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences(key, blob, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at
	`, key, blob, time.Now().UnixMilli())
	return err
}

var (
	_ port.Repository      = (*Repo)(nil)
	_ port.PreferenceStore = (*Repo)(nil)
)
