package genstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generation names across processes and survives restarts.
// Names live in a sorted set scored by a per-namespace sequence, which keeps
// creation order stable for all readers.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
}

var _ GenStore = (*RedisGenStore)(nil)

func NewRedisGenStore(client redis.UniversalClient, namespace string) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace}
}

func (s *RedisGenStore) setKey() string { return "gens:" + s.ns }
func (s *RedisGenStore) seqKey() string { return "gens:" + s.ns + ":seq" }

func (s *RedisGenStore) Names(ctx context.Context) ([]string, error) {
	return s.rdb.ZRange(ctx, s.setKey(), 0, -1).Result()
}

func (s *RedisGenStore) Add(ctx context.Context, name string) (bool, error) {
	seq, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return false, err
	}
	n, err := s.rdb.ZAddNX(ctx, s.setKey(), redis.Z{Score: float64(seq), Member: name}).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisGenStore) Remove(ctx context.Context, name string) (bool, error) {
	n, err := s.rdb.ZRem(ctx, s.setKey(), name).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close closes the underlying Redis client.
func (s *RedisGenStore) Close(context.Context) error { return s.rdb.Close() }
