package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/precache"
	"github.com/unkn0wn-root/precache/codec"
	"github.com/unkn0wn-root/precache/network"
	"github.com/unkn0wn-root/precache/storage"
)

type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[k]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[k] = v
	return true, nil
}

func (p *memProvider) Del(_ context.Context, k string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, k)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

type fixture struct {
	origin *httptest.Server
	hits   *atomic.Int32
	reg    *precache.Registration
	h      *Handler
}

func newFixture(t *testing.T, register bool) *fixture {
	t.Helper()
	hits := &atomic.Int32{}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		out := "origin " + r.Method + " " + r.URL.RequestURI()
		if len(body) > 0 {
			out += " " + string(body)
		}
		_, _ = io.WriteString(w, out)
	}))
	t.Cleanup(origin.Close)

	u, _ := url.Parse(origin.URL)
	net := network.New(network.Config{Origin: u})
	store, err := storage.New(storage.Options{
		Namespace: "site",
		Provider:  &memProvider{m: map[string][]byte{}},
		Codec:     codec.Proto{},
	})
	if err != nil {
		t.Fatal(err)
	}

	reg := precache.NewRegistration(precache.RegistrationOptions{})
	if register {
		w, err := precache.New(precache.Options{
			Generation: "cache-v3",
			Assets:     []string{"/", "/static/styles.css?v=3", "/manifest.webmanifest"},
			Origin:     u,
			Storage:    store,
			Fetcher:    net,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := reg.Register(context.Background(), w); err != nil {
			t.Fatal(err)
		}
	}

	n := 0
	h, err := New(Options{
		Registration: reg,
		Network:      net,
		NewClientID: func() string {
			n++
			return "client-" + string(rune('0'+n))
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{origin: origin, hits: hits, reg: reg, h: h}
}

func (f *fixture) do(method, target, client string) *httptest.ResponseRecorder {
	return f.send(httptest.NewRequest(method, target, nil), client)
}

func (f *fixture) send(req *http.Request, client string) *httptest.ResponseRecorder {
	if client != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: client})
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresRegistrationAndNetwork(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without registration")
	}
	if _, err := New(Options{Registration: precache.NewRegistration(precache.RegistrationOptions{})}); err == nil {
		t.Fatalf("expected error without network")
	}
}

func TestHitIssuesCookieAndSkipsNetwork(t *testing.T) {
	f := newFixture(t, true)
	if got := f.hits.Load(); got != 3 {
		t.Fatalf("install hit origin %d times", got)
	}

	rec := f.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(CacheStatusHeader); got != "precache; hit" {
		t.Fatalf("Cache-Status = %q", got)
	}
	if rec.Body.String() != "origin GET /" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), DefaultCookieName+"=client-1") {
		t.Fatalf("client cookie not issued: %q", rec.Header().Get("Set-Cookie"))
	}
	if got := f.hits.Load(); got != 3 {
		t.Fatalf("cache hit reached the origin")
	}
}

func TestMissGoesToNetworkOnce(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/", "") // navigation attaches client-1

	rec := f.do(http.MethodGet, "/unknown", "client-1")
	if got := rec.Header().Get(CacheStatusHeader); got != "precache; fwd=uri-miss" {
		t.Fatalf("Cache-Status = %q", got)
	}
	if rec.Body.String() != "origin GET /unknown" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatalf("known client must not get a new cookie")
	}
	if got := f.hits.Load(); got != 4 {
		t.Fatalf("origin hits = %d, want 4", got)
	}

	rec = f.do(http.MethodPost, "/", "client-1")
	if got := rec.Header().Get(CacheStatusHeader); got != "precache; fwd=method" {
		t.Fatalf("POST Cache-Status = %q", got)
	}
}

func TestUncontrolledClientBypasses(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/", "")
	if got := rec.Header().Get(CacheStatusHeader); got != "precache; fwd=bypass" {
		t.Fatalf("Cache-Status = %q", got)
	}
	if rec.Body.String() != "origin GET /" || f.hits.Load() != 1 {
		t.Fatalf("body=%q hits=%d", rec.Body.String(), f.hits.Load())
	}
}

func TestNetworkFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/", "")
	f.origin.Close()

	rec := f.do(http.MethodGet, "/unknown", "client-1")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if got := rec.Header().Get(CacheStatusHeader); got != "precache; fwd=uri-miss" {
		t.Fatalf("Cache-Status = %q", got)
	}

	// precached assets are still served
	rec = f.do(http.MethodGet, "/manifest.webmanifest", "client-1")
	if rec.Code != http.StatusOK || rec.Header().Get(CacheStatusHeader) != "precache; hit" {
		t.Fatalf("offline hit: status=%d cache-status=%q", rec.Code, rec.Header().Get(CacheStatusHeader))
	}
}

func TestReleaseDetachesClient(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/", "")
	if f.reg.Controller("client-1", false) == nil {
		t.Fatalf("client-1 should be controlled")
	}
	rec := f.do(http.MethodPost, DefaultReleasePath, "client-1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.reg.Controller("client-1", false) != nil {
		t.Fatalf("released client should be uncontrolled")
	}
}

func TestCacheStatusString(t *testing.T) {
	var cs CacheStatus
	if cs.String() != "precache; fwd=miss" {
		t.Fatalf("zero = %q", cs.String())
	}
	cs.Forward(FwdURIMiss)
	cs.Hit()
	if cs.String() != "precache; hit" {
		t.Fatalf("hit = %q", cs.String())
	}
}

func TestNonGetIsForwardedWithBody(t *testing.T) {
	f := newFixture(t, true)
	f.do(http.MethodGet, "/", "")

	req := httptest.NewRequest(http.MethodPost, "/lists/7/items", strings.NewReader("item=42"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.send(req, "client-1")

	if got := rec.Header().Get(CacheStatusHeader); got != "precache; fwd=method" {
		t.Fatalf("Cache-Status = %q", got)
	}
	if got := rec.Body.String(); got != "origin POST /lists/7/items item=42" {
		t.Fatalf("origin response = %q", got)
	}
}
