package util

import (
	"strings"
	"testing"
)

func TestEntryKeyIsolatesGenerationsAndEpochs(t *testing.T) {
	u := "https://example.com/"
	a := EntryKey("app", "cache-v2", 1, u)
	b := EntryKey("app", "cache-v3", 1, u)
	c := EntryKey("app", "cache-v3", 2, u)
	if a == b || b == c || a == c {
		t.Fatalf("keys must differ: %q %q %q", a, b, c)
	}
	if EntryKey("app", "cache-v3", 2, u) != c {
		t.Fatalf("keys must be deterministic")
	}
	if !strings.HasPrefix(c, "entry:app:") {
		t.Fatalf("unexpected prefix: %q", c)
	}
}

func TestSeparatorsInGenerationDoNotCollide(t *testing.T) {
	if EntryKey("ns", "a:1", 1, "x") == EntryKey("ns", "a", 1, "1:x") {
		t.Fatalf("separator collision")
	}
	if IndexKey("ns", "a:b") == IndexKey("ns", "a") {
		t.Fatalf("index collision")
	}
}
