package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/precache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery   uint64
	CorruptEvery uint64
	// Optional storage key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr   atomic.Uint64
	corruptCtr atomic.Uint64
}

var _ precache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) InstallFailed(generation string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("precache.install_failed",
		"generation", generation,
		"err", err)
}

func (h *Hooks) GenerationDeleted(name string) {
	if h.l == nil {
		return
	}
	h.l.Info("precache.generation_deleted",
		"generation", name)
}

func (h *Hooks) FetchServed(url, source string) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("precache.fetch_served",
		"url", url,
		"source", source)
}

func (h *Hooks) NetworkFailed(url string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("precache.network_failed",
		"url", url,
		"err", err)
}

func (h *Hooks) EntryCorrupt(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.CorruptEvery, &h.corruptCtr) {
		return
	}
	h.l.Warn("precache.entry_corrupt",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StateChanged(generation string, state precache.State) {
	if h.l == nil {
		return
	}
	h.l.Info("precache.state_changed",
		"generation", generation,
		"state", state.String())
}
