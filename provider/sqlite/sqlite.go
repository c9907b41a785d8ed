package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	pr "github.com/unkn0wn-root/precache/provider"
)

// Provider persists cache generations in a SQLite file, so an installed
// generation survives restarts of the process without an external server.
type Provider struct {
	db *sql.DB
	// SQLite allows one writer at a time; serialize writes in-process
	// instead of surfacing SQLITE_BUSY.
	writeMu sync.Mutex
	now     func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// Path of the database file. Empty opens a shared in-memory database.
	Path string
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	if cfg.Path == "" {
		// the shared in-memory database lives as long as one connection does
		db.SetMaxOpenConns(1)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS precache (
			key TEXT PRIMARY KEY,
			expires INTEGER NOT NULL DEFAULT 0,
			value BLOB NOT NULL
		)`,
		`PRAGMA journal_mode=WAL`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return &Provider{db: db, now: time.Now}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		expires int64
		value   []byte
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT expires, value FROM precache WHERE key = ?", key).Scan(&expires, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires > 0 && p.now().UnixNano() > expires {
		_ = p.Del(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var expires int64
	if ttl > 0 {
		expires = p.now().Add(ttl).UnixNano()
	}
	if value == nil {
		value = []byte{}
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO precache (key, expires, value) VALUES (?, ?, ?)", key, expires, value)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.db.ExecContext(ctx, "DELETE FROM precache WHERE key = ?", key)
	return err
}

func (p *Provider) Close(_ context.Context) error {
	return p.db.Close()
}
