package genstore

import (
	"context"
	"reflect"
	"testing"
	"time"
)

type memProvider struct{ m map[string][]byte }

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	v, ok := p.m[k]
	return v, ok, nil
}
func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.m[k] = v
	return true, nil
}
func (p *memProvider) Del(_ context.Context, k string) error { delete(p.m, k); return nil }
func (p *memProvider) Close(context.Context) error           { return nil }

func stores() map[string]GenStore {
	return map[string]GenStore{
		"local":    NewLocalGenStore(),
		"provider": NewProviderGenStore(&memProvider{m: map[string][]byte{}}, "app"),
	}
}

func TestAddKeepsCreationOrderAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores() {
		for _, g := range []string{"cache-v1", "cache-v2", "cache-v3"} {
			if added, err := s.Add(ctx, g); err != nil || !added {
				t.Fatalf("%s: Add(%s) added=%v err=%v", name, g, added, err)
			}
		}
		if added, err := s.Add(ctx, "cache-v2"); err != nil || added {
			t.Fatalf("%s: re-Add should be a no-op, added=%v err=%v", name, added, err)
		}
		got, err := s.Names(ctx)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"cache-v1", "cache-v2", "cache-v3"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores() {
		_, _ = s.Add(ctx, "a")
		_, _ = s.Add(ctx, "b")
		if removed, err := s.Remove(ctx, "a"); err != nil || !removed {
			t.Fatalf("%s: Remove(a) removed=%v err=%v", name, removed, err)
		}
		if removed, err := s.Remove(ctx, "a"); err != nil || removed {
			t.Fatalf("%s: second Remove should report absent", name)
		}
		got, _ := s.Names(ctx)
		if !reflect.DeepEqual(got, []string{"b"}) {
			t.Fatalf("%s: got %v", name, got)
		}
		_, _ = s.Remove(ctx, "b")
		got, _ = s.Names(ctx)
		if len(got) != 0 {
			t.Fatalf("%s: expected empty, got %v", name, got)
		}
	}
}

func TestNamesReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore()
	_, _ = s.Add(ctx, "x")
	got, _ := s.Names(ctx)
	got[0] = "mutated"
	again, _ := s.Names(ctx)
	if again[0] != "x" {
		t.Fatalf("Names exposed internal slice")
	}
}

func TestProviderGenStoreDropsCorruptList(t *testing.T) {
	ctx := context.Background()
	p := &memProvider{m: map[string][]byte{}}
	s := NewProviderGenStore(p, "app")
	p.m["names:app"] = []byte("garbage")

	got, err := s.Names(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", got, err)
	}
	if _, ok := p.m["names:app"]; ok {
		t.Fatalf("corrupt list should be deleted")
	}
	if added, err := s.Add(ctx, "cache-v3"); err != nil || !added {
		t.Fatalf("Add after corruption: added=%v err=%v", added, err)
	}
}
