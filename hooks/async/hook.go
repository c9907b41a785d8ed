// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/precache"
//	"github.com/unkn0wn-root/precache/hooks/async"
//	"github.com/unkn0wn-root/precache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FetchEvery: 100, // sample logs: ~every 100th served fetch
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	w, _ := precache.New(precache.Options{
//	    Generation: "cache-v3",
//	    Assets:     assets,
//	    Storage:    store,
//	    Fetcher:    fetcher,
//	    Hooks:      hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/precache"
)

type Hooks struct {
	inner precache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ precache.Hooks = (*Hooks)(nil)

func New(inner precache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events delivered after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) GenerationDeleted(n string) { h.try(func() { h.inner.GenerationDeleted(n) }) }
func (h *Hooks) FetchServed(u, s string)    { h.try(func() { h.inner.FetchServed(u, s) }) }
func (h *Hooks) EntryCorrupt(k, r string)   { h.try(func() { h.inner.EntryCorrupt(k, r) }) }
func (h *Hooks) InstallFailed(g string, err error) {
	h.try(func() { h.inner.InstallFailed(g, err) })
}
func (h *Hooks) NetworkFailed(u string, err error) {
	h.try(func() { h.inner.NetworkFailed(u, err) })
}
func (h *Hooks) StateChanged(g string, s precache.State) {
	h.try(func() { h.inner.StateChanged(g, s) })
}
