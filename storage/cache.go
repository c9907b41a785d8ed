package storage

import (
	"context"
	"fmt"
	"net/http"

	"github.com/unkn0wn-root/precache/internal/util"
	"github.com/unkn0wn-root/precache/internal/wire"
	pr "github.com/unkn0wn-root/precache/provider"
	"github.com/unkn0wn-root/precache/record"
)

// Cache is one generation of the store.
type Cache struct {
	s    *Storage
	name string
}

func (c *Cache) Name() string { return c.name }

// Match returns the first record of this generation answering req.
func (c *Cache) Match(ctx context.Context, req *http.Request, opts record.MatchOptions) (record.Record, bool, error) {
	key := record.Key(req.URL)
	// One retry covers a commit that replaced the index (and dropped the
	// previous epoch) between our index read and entry read.
	for attempt := 0; attempt < 2; attempt++ {
		idx, ok, err := c.loadIndex(ctx)
		if err != nil || !ok {
			return record.Record{}, false, err
		}
		candidates := []string{key}
		if opts.IgnoreSearch {
			candidates = idx.Keys
		} else if !contains(idx.Keys, key) {
			return record.Record{}, false, nil
		}
		stale := false
		for _, k := range candidates {
			recs, found, err := c.loadEntry(ctx, idx.Epoch, k)
			if err != nil {
				return record.Record{}, false, err
			}
			if !found {
				stale = true
				continue
			}
			for _, r := range recs {
				if r.Matches(req, key, opts) {
					return r, true, nil
				}
			}
		}
		if !stale {
			return record.Record{}, false, nil
		}
	}
	return record.Record{}, false, nil
}

// Records returns every stored record in index order.
func (c *Cache) Records(ctx context.Context) ([]record.Record, error) {
	idx, ok, err := c.loadIndex(ctx)
	if err != nil || !ok {
		return nil, err
	}
	var out []record.Record
	for _, k := range idx.Keys {
		recs, _, err := c.loadEntry(ctx, idx.Epoch, k)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Len returns the number of stored records without decoding them.
func (c *Cache) Len(ctx context.Context) (int, error) {
	idx, ok, err := c.loadIndex(ctx)
	if err != nil || !ok {
		return 0, err
	}
	n := 0
	for _, k := range idx.Keys {
		raw, found, err := c.s.provider.Get(ctx, util.EntryKey(c.s.ns, c.name, idx.Epoch, k))
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		epoch, payloads, err := wire.DecodeEntry(raw)
		if err != nil || epoch != idx.Epoch {
			continue
		}
		n += len(payloads)
	}
	return n, nil
}

// Put stores one record, replacing the variants it supersedes.
func (c *Cache) Put(ctx context.Context, rec record.Record) error {
	return c.PutAll(ctx, []record.Record{rec})
}

// PutAll stores recs atomically: either all of them become visible or, on
// any error, the generation keeps its previous contents. A stored variant
// is replaced when it matches the request of an incoming record.
func (c *Cache) PutAll(ctx context.Context, recs []record.Record) error {
	for i := range recs {
		for j := i + 1; j < len(recs); j++ {
			if recs[i].URL == recs[j].URL && recs[j].Matches(recs[i].Request(), recs[i].URL, record.MatchOptions{}) {
				return fmt.Errorf("%w: %s", ErrDuplicateRequest, recs[i].URL)
			}
		}
	}
	return c.commit(ctx, func(order []string, byKey map[string][]record.Record) []string {
		for _, in := range recs {
			req := in.Request()
			kept := byKey[in.URL][:0:0]
			for _, old := range byKey[in.URL] {
				if !old.Matches(req, in.URL, record.MatchOptions{}) {
					kept = append(kept, old)
				}
			}
			if _, ok := byKey[in.URL]; !ok {
				order = append(order, in.URL)
			}
			byKey[in.URL] = append(kept, in)
		}
		return order
	})
}

// Delete removes the records answering req. It reports whether any were removed.
func (c *Cache) Delete(ctx context.Context, req *http.Request, opts record.MatchOptions) (bool, error) {
	key := record.Key(req.URL)
	removed := false
	err := c.commit(ctx, func(order []string, byKey map[string][]record.Record) []string {
		out := order[:0:0]
		for _, k := range order {
			kept := byKey[k][:0:0]
			for _, r := range byKey[k] {
				if r.Matches(req, key, opts) {
					removed = true
					continue
				}
				kept = append(kept, r)
			}
			if len(kept) == 0 {
				delete(byKey, k)
				continue
			}
			byKey[k] = kept
			out = append(out, k)
		}
		return out
	})
	return removed, err
}

// commit loads the current epoch, lets mutate rewrite it, then writes a new
// epoch and swaps the index. mutate returns the new key order; keys absent
// from it are dropped.
func (c *Cache) commit(ctx context.Context, mutate func(order []string, byKey map[string][]record.Record) []string) error {
	mu := c.s.lock(c.name)
	mu.Lock()
	defer mu.Unlock()

	idx, _, err := c.loadIndex(ctx)
	if err != nil {
		return err
	}
	byKey := make(map[string][]record.Record, len(idx.Keys))
	order := make([]string, 0, len(idx.Keys))
	for _, k := range idx.Keys {
		recs, found, err := c.loadEntry(ctx, idx.Epoch, k)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		byKey[k] = recs
		order = append(order, k)
	}

	order = mutate(order, byKey)

	next := idx.Epoch + 1
	written := make([]string, 0, len(order))
	rollback := func() {
		for _, sk := range written {
			_ = c.s.provider.Del(ctx, sk)
		}
	}
	for _, k := range order {
		payloads := make([][]byte, 0, len(byKey[k]))
		for _, r := range byKey[k] {
			b, err := c.s.codec.Encode(r)
			if err != nil {
				rollback()
				return fmt.Errorf("storage: encode %s: %w", k, err)
			}
			payloads = append(payloads, b)
		}
		sk := util.EntryKey(c.s.ns, c.name, next, k)
		if err := c.set(ctx, sk, wire.EncodeEntry(next, payloads)); err != nil {
			rollback()
			return fmt.Errorf("storage: write %s: %w", k, err)
		}
		written = append(written, sk)
	}

	raw, err := wire.EncodeIndex(wire.Index{Epoch: next, Keys: order})
	if err != nil {
		rollback()
		return err
	}
	if err := c.set(ctx, util.IndexKey(c.s.ns, c.name), raw); err != nil {
		rollback()
		return fmt.Errorf("storage: commit %q: %w", c.name, err)
	}

	// previous epoch is unreachable now
	for _, k := range idx.Keys {
		_ = c.s.provider.Del(ctx, util.EntryKey(c.s.ns, c.name, idx.Epoch, k))
	}
	return nil
}

func (c *Cache) set(ctx context.Context, key string, raw []byte) error {
	ok, err := c.s.provider.Set(ctx, key, raw, c.s.cost(key, raw), 0)
	if err != nil {
		return err
	}
	if !ok {
		return pr.ErrRejected
	}
	return nil
}

// loadIndex returns the committed index; ok=false when nothing was committed.
func (c *Cache) loadIndex(ctx context.Context) (wire.Index, bool, error) {
	k := util.IndexKey(c.s.ns, c.name)
	raw, ok, err := c.s.provider.Get(ctx, k)
	if err != nil || !ok {
		return wire.Index{}, false, err
	}
	idx, err := wire.DecodeIndex(raw)
	if err != nil {
		_ = c.s.provider.Del(ctx, k) // self-heal
		c.s.onCorrupt(k, ReasonIndexCorrupt)
		return wire.Index{}, false, nil
	}
	return idx, true, nil
}

// loadEntry decodes the variants stored for key under epoch. Undecodable
// entries are deleted and reported; found=false means nothing usable.
func (c *Cache) loadEntry(ctx context.Context, epoch uint64, key string) ([]record.Record, bool, error) {
	sk := util.EntryKey(c.s.ns, c.name, epoch, key)
	raw, ok, err := c.s.provider.Get(ctx, sk)
	if err != nil || !ok {
		return nil, false, err
	}
	got, payloads, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = c.s.provider.Del(ctx, sk)
		c.s.onCorrupt(sk, ReasonCorrupt)
		return nil, false, nil
	}
	if got != epoch {
		_ = c.s.provider.Del(ctx, sk)
		c.s.onCorrupt(sk, ReasonEpochMismatch)
		return nil, false, nil
	}
	recs := make([]record.Record, 0, len(payloads))
	for _, p := range payloads {
		r, err := c.s.codec.Decode(p)
		if err != nil {
			c.s.onCorrupt(sk, ReasonValueDecode)
			continue
		}
		recs = append(recs, r)
	}
	return recs, true, nil
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
