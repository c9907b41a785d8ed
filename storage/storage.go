// Package storage implements the cache store: named cache generations, each
// holding (request, response) records, on top of a byte Provider.
//
// Layout in the provider:
//
//	names:<ns>                           - generation names (via ProviderGenStore)
//	index:<ns>:<gen>                     - commit index: epoch + URL keys
//	entry:<ns>:<gen>:<epoch>:<url hash>  - all stored variants of one URL
//
// Writes to a generation build a complete new epoch of entries and then
// replace the index in one Set, so a reader sees either the old or the new
// contents and a failed write leaves the old contents in place.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/unkn0wn-root/precache/codec"
	gen "github.com/unkn0wn-root/precache/genstore"
	"github.com/unkn0wn-root/precache/internal/util"
	"github.com/unkn0wn-root/precache/internal/wire"
	pr "github.com/unkn0wn-root/precache/provider"
	"github.com/unkn0wn-root/precache/record"
)

var (
	// ErrDuplicateRequest is returned by PutAll when two records would
	// answer the same request.
	ErrDuplicateRequest = errors.New("storage: duplicate request in batch")

	// ErrCorrupt marks stored bytes that failed validation. Reads self-heal
	// and never return it; it is passed to OnCorrupt.
	ErrCorrupt = wire.ErrCorrupt
)

// Corruption reasons passed to Options.OnCorrupt.
const (
	ReasonCorrupt       = "corrupt"
	ReasonEpochMismatch = "epoch_mismatch"
	ReasonValueDecode   = "value_decode"
	ReasonIndexCorrupt  = "index_corrupt"
)

type Options struct {
	// Required
	Namespace string // isolates several stores sharing one provider
	Provider  pr.Provider
	Codec     codec.Codec[record.Record]

	GenStore       gen.GenStore                       // nil => ProviderGenStore on Provider
	OnCorrupt      func(storageKey, reason string)    // called when a read self-heals
	ComputeSetCost func(key string, raw []byte) int64 // default len(raw)
}

// Storage is the set of cache generations of one namespace.
// It is safe for concurrent use.
type Storage struct {
	ns        string
	provider  pr.Provider
	codec     codec.Codec[record.Record]
	names     gen.GenStore
	onCorrupt func(string, string)
	cost      func(string, []byte) int64

	locks sync.Map // generation name -> *sync.Mutex
}

func New(opts Options) (*Storage, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("storage: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("storage: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("storage: namespace is required")
	}
	s := &Storage{
		ns:        opts.Namespace,
		provider:  opts.Provider,
		codec:     opts.Codec,
		names:     opts.GenStore,
		onCorrupt: opts.OnCorrupt,
		cost:      opts.ComputeSetCost,
	}
	if s.names == nil {
		s.names = gen.NewProviderGenStore(opts.Provider, opts.Namespace)
	}
	if s.onCorrupt == nil {
		s.onCorrupt = func(string, string) {}
	}
	if s.cost == nil {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	return s, nil
}

// Open returns the named generation, creating it if absent.
func (s *Storage) Open(ctx context.Context, name string) (*Cache, error) {
	if name == "" {
		return nil, fmt.Errorf("storage: empty generation name")
	}
	if _, err := s.names.Add(ctx, name); err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", name, err)
	}
	return &Cache{s: s, name: name}, nil
}

// Has reports whether the named generation exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	names, err := s.names.Names(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Keys returns the generation names in creation order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	return s.names.Names(ctx)
}

// Delete removes the named generation and its entries. The name is
// unregistered first so that readers stop searching it before its entries go.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	removed, err := s.names.Remove(ctx, name)
	if err != nil {
		return false, fmt.Errorf("storage: delete %q: %w", name, err)
	}
	c := &Cache{s: s, name: name}
	idx, _, err := c.loadIndex(ctx)
	if err != nil {
		return removed, err
	}
	var errs []error
	for _, k := range idx.Keys {
		if err := s.provider.Del(ctx, util.EntryKey(s.ns, name, idx.Epoch, k)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.provider.Del(ctx, util.IndexKey(s.ns, name)); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("storage: delete %q: %w", name, errors.Join(errs...))
	}
	return removed, nil
}

// Match searches every generation, in creation order, for a record
// answering req. The first match wins.
func (s *Storage) Match(ctx context.Context, req *http.Request, opts record.MatchOptions) (record.Record, string, bool, error) {
	names, err := s.names.Names(ctx)
	if err != nil {
		return record.Record{}, "", false, err
	}
	for _, name := range names {
		c := &Cache{s: s, name: name}
		rec, ok, err := c.Match(ctx, req, opts)
		if err != nil {
			return record.Record{}, "", false, err
		}
		if ok {
			return rec, name, true, nil
		}
	}
	return record.Record{}, "", false, nil
}

// PutAll opens the named generation and stores recs in it atomically.
func (s *Storage) PutAll(ctx context.Context, name string, recs []record.Record) error {
	c, err := s.Open(ctx, name)
	if err != nil {
		return err
	}
	return c.PutAll(ctx, recs)
}

// Len returns the number of records in the named generation; 0 if absent.
func (s *Storage) Len(ctx context.Context, name string) (int, error) {
	return (&Cache{s: s, name: name}).Len(ctx)
}

// Close closes the name registry and the provider.
func (s *Storage) Close(ctx context.Context) error {
	_ = s.names.Close(ctx)
	return s.provider.Close(ctx)
}

func (s *Storage) lock(name string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
