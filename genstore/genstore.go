// Package genstore keeps the registry of cache generation names.
//
// A name is registered when its generation is created (install) and removed
// when the generation is deleted (activate sweep). Listing order is creation
// order, which is also the order cache-wide matching searches generations in.
package genstore

import (
	"context"
)

// GenStore abstracts where generation names live.
// Use LocalGenStore for a single process with an in-memory provider,
// ProviderGenStore to keep names next to the entries, or RedisGenStore to
// share them across processes.
type GenStore interface {
	// Names returns all registered names in creation order.
	Names(ctx context.Context) ([]string, error)
	// Add registers name; added=false if it was already present.
	Add(ctx context.Context, name string) (added bool, err error)
	// Remove unregisters name; removed=false if it was absent.
	Remove(ctx context.Context, name string) (removed bool, err error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
