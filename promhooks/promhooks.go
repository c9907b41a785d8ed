// Package promhooks exports worker events as Prometheus counters.
package promhooks

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unkn0wn-root/precache"
)

type Hooks struct {
	registry *prometheus.Registry

	installFailed     prometheus.Counter
	generationDeleted prometheus.Counter
	fetches           *prometheus.CounterVec
	networkFailed     prometheus.Counter
	entryCorrupt      *prometheus.CounterVec
	transitions       *prometheus.CounterVec
}

var _ precache.Hooks = (*Hooks)(nil)

// New registers the counters on a fresh registry. Pass reg to expose them
// on an existing registry instead; nil => new.
func New(reg *prometheus.Registry) *Hooks {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	installFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "precache_install_failed_total",
		Help: "Total failed installs",
	})

	generationDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "precache_generations_deleted_total",
		Help: "Total stale generations deleted on activate",
	})

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "precache_fetch_total",
		Help: "Total fetch events answered",
	}, []string{"source"})

	networkFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "precache_network_failed_total",
		Help: "Total network fallbacks that failed",
	})

	entryCorrupt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "precache_entry_corrupt_total",
		Help: "Total stored entries deleted on read",
	}, []string{"reason"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "precache_worker_transitions_total",
		Help: "Total worker state transitions",
	}, []string{"state"})

	reg.MustRegister(installFailed, generationDeleted, fetches, networkFailed, entryCorrupt, transitions)

	return &Hooks{
		registry:          reg,
		installFailed:     installFailed,
		generationDeleted: generationDeleted,
		fetches:           fetches,
		networkFailed:     networkFailed,
		entryCorrupt:      entryCorrupt,
		transitions:       transitions,
	}
}

func (h *Hooks) Registry() *prometheus.Registry { return h.registry }

// Handler serves the registry in the Prometheus text format.
func (h *Hooks) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

func (h *Hooks) InstallFailed(string, error)   { h.installFailed.Inc() }
func (h *Hooks) GenerationDeleted(string)      { h.generationDeleted.Inc() }
func (h *Hooks) FetchServed(_, source string)  { h.fetches.WithLabelValues(source).Inc() }
func (h *Hooks) NetworkFailed(string, error)   { h.networkFailed.Inc() }
func (h *Hooks) EntryCorrupt(_, reason string) { h.entryCorrupt.WithLabelValues(reason).Inc() }
func (h *Hooks) StateChanged(_ string, s precache.State) {
	h.transitions.WithLabelValues(s.String()).Inc()
}
