package precache

import (
	"context"
	"net/http"
	"net/url"

	"github.com/unkn0wn-root/precache/record"
)

// Fetcher is the network fetch API: one live request per call.
// network.HTTP is the default implementation.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CacheStorage is the cache store API the worker runs against.
// *storage.Storage implements it.
type CacheStorage interface {
	Has(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error) // creation order
	Delete(ctx context.Context, name string) (bool, error)
	Len(ctx context.Context, name string) (int, error)

	// PutAll opens (create-if-absent) name and stores recs atomically.
	PutAll(ctx context.Context, name string, recs []record.Record) error

	// Match searches all generations; it returns the generation that answered.
	Match(ctx context.Context, req *http.Request, opts record.MatchOptions) (rec record.Record, generation string, ok bool, err error)
}

// Options configure one Worker. Generation, Assets, Storage and Fetcher are
// required; others have sensible defaults.
type Options struct {
	// Required
	Generation string   // current generation, e.g. "cache-v3"; bump it to roll out new assets
	Assets     []string // absolute, or relative to Origin; pre-fetched at install
	Storage    CacheStorage
	Fetcher    Fetcher

	Origin             *url.URL            // resolves relative assets and intercepted requests
	Logger             Logger              // if nil, NopLogger is used
	Hooks              Hooks               // if nil, NopHooks is used
	WaitForClients     bool                // default false => skip waiting after install
	DisableClaim       bool                // default false => claim clients on activate
	InstallConcurrency int                 // 0 => 4
	MaxBodyBytes       int64               // per asset; 0 => 32 MiB, <0 => unlimited
	Match              record.MatchOptions // fetch-time matching; zero => strict
}

func New(opts Options) (*Worker, error) {
	return newWorker(opts)
}
