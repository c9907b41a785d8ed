package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/unkn0wn-root/precache/record"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves a response for a request, typically from the network.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetchError reports the request that made FetchAll fail. Status is set
// when a response arrived with a non-2xx status.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("storage: fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

type FetchOptions struct {
	Concurrency int   // 0 => 4
	MaxBody     int64 // 0 => no limit
}

// FetchAll fetches every request and captures the responses as records, in
// request order. The first failure (transport error, non-2xx status, body
// read error) cancels the remaining fetches and is returned as *FetchError.
func FetchAll(ctx context.Context, f Fetcher, reqs []*http.Request, opts FetchOptions) ([]record.Record, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}
	out := make([]record.Record, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			key := record.Key(req.URL)
			res, err := f.Fetch(gctx, req.WithContext(gctx))
			if err != nil {
				return &FetchError{URL: key, Err: err}
			}
			if !record.OK(res.StatusCode) {
				res.Body.Close()
				return &FetchError{URL: key, Status: res.StatusCode}
			}
			rec, err := record.FromResponse(req, key, res, time.Now(), opts.MaxBody)
			if err != nil {
				return &FetchError{URL: key, Status: res.StatusCode, Err: err}
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddAll fetches reqs and stores the responses atomically. Nothing is stored
// unless every fetch succeeds with a 2xx status.
func (c *Cache) AddAll(ctx context.Context, f Fetcher, reqs []*http.Request, opts FetchOptions) error {
	recs, err := FetchAll(ctx, f, reqs, opts)
	if err != nil {
		return err
	}
	return c.PutAll(ctx, recs)
}

// Keys returns the stored requests, in index order.
func (c *Cache) Keys(ctx context.Context) ([]*http.Request, error) {
	recs, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*http.Request, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Request())
	}
	return out, nil
}
