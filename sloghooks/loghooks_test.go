package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/precache"
)

func newBuffered() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestFetchServedIsSampled(t *testing.T) {
	l, buf := newBuffered()
	h := New(l, Options{FetchEvery: 10})
	for i := 0; i < 30; i++ {
		h.FetchServed("https://example.com/", "cache")
	}
	if n := strings.Count(buf.String(), "precache.fetch_served"); n != 3 {
		t.Fatalf("logged %d fetches, want 3", n)
	}
}

func TestEntryCorruptRedactsKey(t *testing.T) {
	l, buf := newBuffered()
	h := New(l, Options{})
	h.EntryCorrupt("entry:site:secret", "corrupt")
	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("storage key leaked: %s", out)
	}
	if !strings.Contains(out, "reason=corrupt") {
		t.Fatalf("reason missing: %s", out)
	}

	buf.Reset()
	h = New(l, Options{Redact: func(string) string { return "k" }})
	h.EntryCorrupt("entry:site:secret", "epoch_mismatch")
	if !strings.Contains(buf.String(), "key=k") {
		t.Fatalf("custom redactor ignored: %s", buf.String())
	}
}

func TestStateChangedAndNilLogger(t *testing.T) {
	l, buf := newBuffered()
	New(l, Options{}).StateChanged("cache-v3", precache.StateActivated)
	if !strings.Contains(buf.String(), "state=activated") {
		t.Fatalf("state missing: %s", buf.String())
	}

	nilHooks := New(nil, Options{})
	nilHooks.InstallFailed("g", nil)
	nilHooks.GenerationDeleted("g")
	nilHooks.NetworkFailed("u", nil)
}
