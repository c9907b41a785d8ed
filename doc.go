// Package precache implements an installable, versioned, read-through cache
// for a small fixed set of static assets, with the lifecycle of an
// offline-first service worker.
//
// Lifecycle:
//   - install: fetch every asset into the current cache generation; all or nothing.
//   - activate: delete every other generation, then claim clients.
//   - fetch: answer from the cache, else from the network. Nothing is written back.
//
// Components:
//   - Worker: one generation and its asset list. Events are pure transitions
//     (Handle) whose store mutations are applied by Commit.
//   - Registration: the host side; worker states, waiting and claiming.
//   - CacheStorage: named generations of (request, response) records
//     (package storage, on top of a byte Provider).
//   - Fetcher: live network access (package network).
//
// Usage:
//
//	w, _ := precache.New(precache.Options{
//	    Generation: "cache-v3",
//	    Assets:     []string{"/", "/static/styles.css?v=3", "/manifest.webmanifest"},
//	    Origin:     origin,
//	    Storage:    store,
//	    Fetcher:    network.New(network.Config{Origin: origin}),
//	})
//	reg := precache.NewRegistration(precache.RegistrationOptions{})
//	_ = reg.Register(ctx, w) // install + activate
//	res, err := w.Fetch(ctx, req)
package precache
