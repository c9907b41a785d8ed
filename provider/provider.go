// Package provider defines the byte store backing precache's cache storage.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// The keyspaces "entry:<ns>:", "index:<ns>:" and "names:<ns>" are owned by
// precache. Foreign values found under them are treated as corruption and
// deleted on read.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected may be wrapped by callers when a Provider refuses a write
// (ok=false from Set). Providers themselves report refusal through ok.
var ErrRejected = errors.New("provider: write rejected")

// Provider is a minimal byte store.
// Must be safe for concurrent use. Writes must be visible to a subsequent Get
// from the same process once Set returns.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry; cache generations are
	// written without TTL and live until deleted. cost may be ignored.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
