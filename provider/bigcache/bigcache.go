package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/precache/provider"
)

// Provider keeps cache generations in a bigcache instance.
//
// BigCache evicts by a global LifeWindow rather than per entry. Generations
// are meant to live until activation sweeps them, so the default window is
// long and the cleaner is off unless CleanWindow is set.
type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

const defaultLifeWindow = 365 * 24 * time.Hour

type Config struct {
	LifeWindow         time.Duration // 0 => one year
	CleanWindow        time.Duration // 0 => no background cleaning
	MaxEntrySize       int           // bytes; hint for shard sizing
	HardMaxCacheSizeMB int           // 0 = unlimited
	Shards             int           // power of two; 0 => library default
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = cfg.CleanWindow
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores cost and ttl; see the type comment.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

// Len reports the number of stored keys (entries, indexes and name lists).
func (p *Provider) Len() int { return p.c.Len() }
