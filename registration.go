package precache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a registered worker.
type State uint8

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// RegistrationOptions bound client tracking. The zero value is ready to use.
type RegistrationOptions struct {
	ClientIdleTimeout time.Duration    // 0 => 30m; a client unseen this long is forgotten
	MaxClients        int              // 0 => 100000; the least recently seen client is evicted beyond it
	Now               func() time.Time // nil => time.Now
}

// Registration is the host side of the worker lifecycle: it installs and
// activates workers, keeps the active and the waiting one, and decides which
// worker controls each client (page). Safe for concurrent use.
//
// A client is controlled by the worker that was active when it navigated,
// or by the worker that claimed it. Clients whose worker became redundant
// are uncontrolled and go to the network until they navigate again. Only
// navigations start tracking a client; idle clients are forgotten.
type Registration struct {
	mu      sync.Mutex
	states  map[*Worker]State
	active  *Worker
	waiting *Worker
	clients map[string]*client

	// active worker whose activation failed; retried on Register and Release
	retry *Worker

	idle       time.Duration
	maxClients int
	now        func() time.Time
}

type client struct {
	w    *Worker // nil => known but uncontrolled
	seen time.Time
}

func NewRegistration(opts RegistrationOptions) *Registration {
	r := &Registration{
		states:     make(map[*Worker]State),
		clients:    make(map[string]*client),
		idle:       coalesce(opts.ClientIdleTimeout, defaultClientIdleTimeout),
		maxClients: coalesce(opts.MaxClients, defaultMaxClients),
		now:        opts.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Register installs w, holding the caller until the install is done. On
// failure (including cancellation of ctx) w becomes redundant and the
// active worker keeps serving; a later Register starts over with a new
// Worker. On success w waits, and is activated right away when it skips
// waiting or the active worker controls no client.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	if st, ok := r.states[w]; ok {
		r.mu.Unlock()
		if st == StateRedundant {
			return ErrWorkerRedundant
		}
		return fmt.Errorf("precache: worker %q is already registered (%s)", w.gen, st)
	}
	r.setState(w, StateParsed)
	r.setState(w, StateInstalling)
	r.sweep(r.now())
	r.mu.Unlock()

	_ = r.retryActivate(ctx) // logged

	res, err := w.Install(ctx)

	r.mu.Lock()
	if err != nil {
		r.setState(w, StateRedundant)
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrWorkerRedundant, err)
	}
	r.setState(w, StateInstalled)
	if r.waiting != nil {
		r.setState(r.waiting, StateRedundant)
	}
	r.waiting = w
	promote := res.SkipWaiting || !r.inUse(r.active)
	r.mu.Unlock()

	if !promote {
		w.log.Info("worker waiting", Fields{"generation": w.gen})
		return nil
	}
	return r.activateWaiting(ctx)
}

// Release detaches a client (page closed). The waiting worker is activated
// once the active one controls no client.
func (r *Registration) Release(ctx context.Context, clientID string) error {
	r.mu.Lock()
	delete(r.clients, clientID)
	r.sweep(r.now())
	promote := r.waiting != nil && !r.inUse(r.active)
	r.mu.Unlock()
	if !promote {
		_ = r.retryActivate(ctx) // logged
		return nil
	}
	return r.activateWaiting(ctx)
}

// Controller returns the worker controlling clientID, or nil when the client
// is uncontrolled. A navigation attaches the client to the active worker;
// other requests from unknown clients are not tracked.
func (r *Registration) Controller(clientID string, navigate bool) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if navigate {
		r.track(clientID, r.active, now)
		return r.active
	}
	c, ok := r.clients[clientID]
	if !ok {
		return nil
	}
	if r.expired(c, now) {
		delete(r.clients, clientID)
		return nil
	}
	c.seen = now
	if c.w == nil || r.states[c.w] == StateRedundant {
		return nil
	}
	return c.w
}

// Clients returns the number of tracked clients.
func (r *Registration) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// State returns the state of w; StateParsed for a worker never registered.
func (r *Registration) State(w *Worker) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[w]
}

func (r *Registration) activateWaiting(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil {
		r.mu.Unlock()
		return nil
	}
	r.waiting = nil
	if r.active != nil {
		r.setState(r.active, StateRedundant)
	}
	r.active = w
	r.setState(w, StateActivating)
	r.mu.Unlock()

	res, err := w.Activate(ctx)
	return r.finishActivate(w, res, err)
}

// retryActivate re-runs a failed activation of the active worker.
func (r *Registration) retryActivate(ctx context.Context) error {
	r.mu.Lock()
	w := r.retry
	r.retry = nil
	if w == nil || w != r.active {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	res, err := w.Activate(ctx)
	return r.finishActivate(w, res, err)
}

// finishActivate records the outcome of w.Activate. A failed activation
// leaves w activating until a retry succeeds.
func (r *Registration) finishActivate(w *Worker, res Result, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != w {
		// superseded while activating
		return err
	}
	// a failed stale delete does not stop the claim
	if res.Claim {
		for _, c := range r.clients {
			c.w = w
		}
	}
	if err != nil {
		r.retry = w
		w.log.Error("activate failed", Fields{"generation": w.gen, "err": err})
		return err
	}
	r.setState(w, StateActivated)
	return nil
}

// inUse reports whether any live client is controlled by w. Caller holds mu.
func (r *Registration) inUse(w *Worker) bool {
	if w == nil {
		return false
	}
	now := r.now()
	for _, c := range r.clients {
		if c.w == w && !r.expired(c, now) {
			return true
		}
	}
	return false
}

// track records a navigation of id. Caller holds mu.
func (r *Registration) track(id string, w *Worker, now time.Time) {
	if c, ok := r.clients[id]; ok {
		c.w, c.seen = w, now
		return
	}
	if len(r.clients) >= r.maxClients {
		r.sweep(now)
	}
	if len(r.clients) >= r.maxClients {
		r.evictOldest()
	}
	r.clients[id] = &client{w: w, seen: now}
}

func (r *Registration) expired(c *client, now time.Time) bool {
	return now.Sub(c.seen) > r.idle
}

// sweep forgets idle clients. Caller holds mu.
func (r *Registration) sweep(now time.Time) {
	for id, c := range r.clients {
		if r.expired(c, now) {
			delete(r.clients, id)
		}
	}
}

func (r *Registration) evictOldest() {
	var (
		oldest string
		seen   time.Time
	)
	for id, c := range r.clients {
		if oldest == "" || c.seen.Before(seen) {
			oldest, seen = id, c.seen
		}
	}
	delete(r.clients, oldest)
}

// setState records and reports a transition. Caller holds mu.
func (r *Registration) setState(w *Worker, s State) {
	r.states[w] = s
	w.hooks.StateChanged(w.gen, s)
	w.log.Debug("worker state changed", Fields{"generation": w.gen, "state": s.String()})
}
