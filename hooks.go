package precache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The worker calls them on the fetch path.
type Hooks interface {
	// Install of generation failed; the worker became redundant.
	InstallFailed(generation string, err error)

	// A stale generation was deleted during activation.
	GenerationDeleted(name string)

	// A fetch event was answered.
	// source ∈ {"cache", "network"}
	FetchServed(url, source string)

	// The network fallback failed for url.
	NetworkFailed(url string, err error)

	// A stored entry was deleted on read.
	// reason ∈ {"corrupt", "epoch_mismatch", "value_decode", "index_corrupt"}
	EntryCorrupt(storageKey, reason string)

	// A registered worker moved to state.
	StateChanged(generation string, state State)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) InstallFailed(string, error) {}
func (NopHooks) GenerationDeleted(string)    {}
func (NopHooks) FetchServed(string, string)  {}
func (NopHooks) NetworkFailed(string, error) {}
func (NopHooks) EntryCorrupt(string, string) {}
func (NopHooks) StateChanged(string, State)  {}

// JoinHooks fans every event out to hs in order. Nil entries are skipped.
func JoinHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) InstallFailed(generation string, err error) {
	for _, h := range m {
		h.InstallFailed(generation, err)
	}
}

func (m multiHooks) GenerationDeleted(name string) {
	for _, h := range m {
		h.GenerationDeleted(name)
	}
}

func (m multiHooks) FetchServed(url, source string) {
	for _, h := range m {
		h.FetchServed(url, source)
	}
}

func (m multiHooks) NetworkFailed(url string, err error) {
	for _, h := range m {
		h.NetworkFailed(url, err)
	}
}

func (m multiHooks) EntryCorrupt(storageKey, reason string) {
	for _, h := range m {
		h.EntryCorrupt(storageKey, reason)
	}
}

func (m multiHooks) StateChanged(generation string, state State) {
	for _, h := range m {
		h.StateChanged(generation, state)
	}
}
