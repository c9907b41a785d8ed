package precache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/unkn0wn-root/precache/record"
	"github.com/unkn0wn-root/precache/storage"
)

// Worker is the installable cache worker of one generation. Handling an
// event never mutates the store; Commit applies what Handle decided.
// A Worker is safe for concurrent fetch handling.
type Worker struct {
	gen     string
	assets  []*url.URL
	origin  *url.URL
	store   CacheStorage
	fetcher Fetcher
	log     Logger
	hooks   Hooks

	waitForClients bool
	disableClaim   bool
	concurrency    int
	maxBody        int64
	match          record.MatchOptions
}

func newWorker(opts Options) (*Worker, error) {
	if opts.Generation == "" {
		return nil, ErrNoGeneration
	}
	if len(opts.Assets) == 0 {
		return nil, ErrNoAssets
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("precache: storage is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("precache: fetcher is required")
	}

	w := &Worker{
		gen:            opts.Generation,
		origin:         opts.Origin,
		store:          opts.Storage,
		fetcher:        opts.Fetcher,
		waitForClients: opts.WaitForClients,
		disableClaim:   opts.DisableClaim,
		match:          opts.Match,
	}

	// defaults
	w.log = coalesce[Logger](opts.Logger, NopLogger{})
	w.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	w.concurrency = coalesce(opts.InstallConcurrency, defaultInstallConcurrency)
	w.maxBody = coalesce[int64](opts.MaxBodyBytes, defaultMaxBodyBytes)
	if w.maxBody < 0 {
		w.maxBody = 0
	}

	seen := make(map[string]struct{}, len(opts.Assets))
	for _, raw := range opts.Assets {
		u, err := record.Resolve(opts.Origin, raw)
		if err != nil {
			return nil, fmt.Errorf("precache: asset %q: %w", raw, err)
		}
		k := record.Key(u)
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, k)
		}
		seen[k] = struct{}{}
		w.assets = append(w.assets, u)
	}
	return w, nil
}

func (w *Worker) Generation() string { return w.gen }

// Assets returns the normalized asset URLs, in install order.
func (w *Worker) Assets() []string {
	out := make([]string, len(w.assets))
	for i, u := range w.assets {
		out[i] = record.Key(u)
	}
	return out
}

// Handle runs the transition for ev. It may read the store and the network
// but leaves the store untouched; pass the Result to Commit to apply it.
func (w *Worker) Handle(ctx context.Context, ev Event) (Result, error) {
	switch ev.Kind {
	case EventInstall:
		return w.handleInstall(ctx)
	case EventActivate:
		return w.handleActivate(ctx)
	case EventFetch:
		if ev.Request == nil {
			return Result{}, fmt.Errorf("precache: fetch event without request")
		}
		return w.handleFetch(ctx, ev.Request)
	default:
		return Result{}, fmt.Errorf("precache: unknown event %d", ev.Kind)
	}
}

func (w *Worker) handleInstall(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, w.installFailed(&InstallError{Generation: w.gen, Err: err})
	}
	existed, err := w.store.Has(ctx, w.gen)
	if err != nil {
		return Result{}, w.installFailed(&InstallError{Generation: w.gen, Err: err})
	}

	reqs := make([]*http.Request, 0, len(w.assets))
	for _, u := range w.assets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return Result{}, w.installFailed(&InstallError{Generation: w.gen, URL: record.Key(u), Err: err})
		}
		reqs = append(reqs, req)
	}

	recs, err := storage.FetchAll(ctx, w.fetcher, reqs, storage.FetchOptions{
		Concurrency: w.concurrency,
		MaxBody:     w.maxBody,
	})
	if err != nil {
		ie := &InstallError{Generation: w.gen, Err: err}
		var fe *storage.FetchError
		if errors.As(err, &fe) {
			ie.URL, ie.Status, ie.Err = fe.URL, fe.Status, fe.Err
		}
		return Result{}, w.installFailed(ie)
	}

	w.log.Debug("install fetched assets", Fields{"generation": w.gen, "count": len(recs)})
	return Result{
		Mutations: []Mutation{{
			Kind:       MutationPutAll,
			Generation: w.gen,
			Records:    recs,
			Created:    !existed,
		}},
		SkipWaiting: !w.waitForClients,
	}, nil
}

func (w *Worker) handleActivate(ctx context.Context) (Result, error) {
	names, err := w.store.Keys(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("precache: activate %q: list generations: %w", w.gen, err)
	}
	var muts []Mutation
	for _, n := range names {
		if n != w.gen {
			muts = append(muts, Mutation{Kind: MutationDelete, Generation: n})
		}
	}
	return Result{Mutations: muts, Claim: !w.disableClaim}, nil
}

func (w *Worker) handleFetch(ctx context.Context, req *http.Request) (Result, error) {
	mreq := w.absolute(req)
	key := record.Key(mreq.URL)

	rec, gen, ok, err := w.store.Match(ctx, mreq, w.match)
	if err != nil {
		// treated as a miss
		w.log.Warn("cache match failed", Fields{"url": key, "err": err})
	}
	if ok {
		w.hooks.FetchServed(key, SourceCache.String())
		return Result{Response: rec.Response(req), Source: SourceCache, Generation: gen}, nil
	}

	res, err := w.fetcher.Fetch(ctx, mreq)
	if err != nil {
		w.hooks.NetworkFailed(key, err)
		w.log.Debug("network fetch failed", Fields{"url": key, "err": err})
		return Result{Source: SourceNetwork}, err
	}
	w.hooks.FetchServed(key, SourceNetwork.String())
	return Result{Response: res, Source: SourceNetwork}, nil
}

// absolute resolves an intercepted request (path only) against the origin
// so that it matches how assets were stored.
func (w *Worker) absolute(req *http.Request) *http.Request {
	if w.origin == nil || req.URL.IsAbs() {
		return req
	}
	u := *req.URL
	u.Host = ""
	out := req.Clone(req.Context())
	out.URL = w.origin.ResolveReference(&u)
	out.RequestURI = ""
	return out
}

// Commit applies the mutations of res in order. A failed PutAll fails the
// install; the generation is removed again when Handle saw it absent.
// Failed deletes are reported together after all were attempted.
func (w *Worker) Commit(ctx context.Context, res Result) error {
	var errs []error
	for _, m := range res.Mutations {
		switch m.Kind {
		case MutationPutAll:
			if err := w.store.PutAll(ctx, m.Generation, m.Records); err != nil {
				if m.Created {
					if _, derr := w.store.Delete(ctx, m.Generation); derr != nil {
						w.log.Warn("could not remove failed generation", Fields{"generation": m.Generation, "err": derr})
					}
				}
				return w.installFailed(&InstallError{Generation: m.Generation, Err: err})
			}
			w.log.Info("generation installed", Fields{"generation": m.Generation, "entries": len(m.Records)})
		case MutationDelete:
			removed, err := w.store.Delete(ctx, m.Generation)
			if err != nil {
				w.log.Error("could not delete stale generation", Fields{"generation": m.Generation, "err": err})
				errs = append(errs, err)
				continue
			}
			if removed {
				w.hooks.GenerationDeleted(m.Generation)
				w.log.Info("stale generation deleted", Fields{"generation": m.Generation, "current": w.gen})
			}
		default:
			errs = append(errs, fmt.Errorf("precache: unknown mutation %d", m.Kind))
		}
	}
	return errors.Join(errs...)
}

// Install handles and commits the install event. It returns only after
// every asset is stored, or with an *InstallError and nothing stored.
func (w *Worker) Install(ctx context.Context) (Result, error) {
	return w.handleAndCommit(ctx, Event{Kind: EventInstall})
}

// Activate handles and commits the activate event, leaving only the
// current generation in the store.
func (w *Worker) Activate(ctx context.Context) (Result, error) {
	return w.handleAndCommit(ctx, Event{Kind: EventActivate})
}

// Fetch answers req from the cache, else from the network.
// The caller closes Result.Response.Body.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (Result, error) {
	return w.Handle(ctx, Event{Kind: EventFetch, Request: req})
}

func (w *Worker) handleAndCommit(ctx context.Context, ev Event) (Result, error) {
	res, err := w.Handle(ctx, ev)
	if err != nil {
		return res, err
	}
	return res, w.Commit(ctx, res)
}

func (w *Worker) installFailed(e *InstallError) error {
	w.hooks.InstallFailed(e.Generation, e)
	w.log.Error("install failed", Fields{"generation": e.Generation, "url": e.URL, "status": e.Status, "err": e.Err})
	return e
}
