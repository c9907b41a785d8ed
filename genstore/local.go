package genstore

import (
	"context"
	"sync"
)

// LocalGenStore keeps names in-process.
type LocalGenStore struct {
	mu    sync.RWMutex
	names []string
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore() *LocalGenStore {
	return &LocalGenStore{}
}

func (s *LocalGenStore) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Add(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.names, name) >= 0 {
		return false, nil
	}
	s.names = append(s.names, name)
	return true, nil
}

func (s *LocalGenStore) Remove(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.names, name)
	if i < 0 {
		return false, nil
	}
	s.names = append(s.names[:i], s.names[i+1:]...)
	return true, nil
}

func (s *LocalGenStore) Close(_ context.Context) error { return nil }

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
