package genstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/precache/internal/util"
	"github.com/unkn0wn-root/precache/internal/wire"
	pr "github.com/unkn0wn-root/precache/provider"
)

// ProviderGenStore stores the name list as a single value in a Provider, so
// a persistent provider (sqlite, redis) keeps names and entries together.
// Updates are read-modify-write guarded by an in-process mutex; share a
// provider between processes only with RedisGenStore.
type ProviderGenStore struct {
	p   pr.Provider
	key string
	mu  sync.Mutex
}

var _ GenStore = (*ProviderGenStore)(nil)

func NewProviderGenStore(p pr.Provider, namespace string) *ProviderGenStore {
	return &ProviderGenStore{p: p, key: util.NamesKey(namespace)}
}

func (s *ProviderGenStore) load(ctx context.Context) ([]string, error) {
	raw, ok, err := s.p.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	idx, err := wire.DecodeIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("genstore: names list: %w", err)
	}
	return idx.Keys, nil
}

func (s *ProviderGenStore) store(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return s.p.Del(ctx, s.key)
	}
	b, err := wire.EncodeIndex(wire.Index{Keys: names})
	if err != nil {
		return err
	}
	ok, err := s.p.Set(ctx, s.key, b, int64(len(b)), 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("genstore: names list: %w", pr.ErrRejected)
	}
	return nil
}

func (s *ProviderGenStore) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.load(ctx)
	if errors.Is(err, wire.ErrCorrupt) {
		// a corrupt list cannot be repaired; start over
		_ = s.p.Del(ctx, s.key)
		return nil, nil
	}
	return names, err
}

func (s *ProviderGenStore) Add(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.load(ctx)
	if err != nil && !errors.Is(err, wire.ErrCorrupt) {
		return false, err
	}
	if indexOf(names, name) >= 0 {
		return false, nil
	}
	if err := s.store(ctx, append(names, name)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ProviderGenStore) Remove(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	i := indexOf(names, name)
	if i < 0 {
		return false, nil
	}
	if err := s.store(ctx, append(names[:i], names[i+1:]...)); err != nil {
		return false, err
	}
	return true, nil
}

// Close does not close the provider; its owner does.
func (s *ProviderGenStore) Close(_ context.Context) error { return nil }
