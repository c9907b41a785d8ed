// Package network performs live fetches against an origin server.
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Config struct {
	// Origin resolves relative request URLs. Optional when every request
	// carries an absolute URL.
	Origin *url.URL
	// Host overrides the Host header and the TLS server name sent to the origin.
	Host string
	// Timeout bounds a whole fetch; 0 => none.
	Timeout time.Duration
	// FollowRedirects makes the client follow 3xx responses. By default the
	// redirect response itself is returned.
	FollowRedirects bool
	// Transport replaces the default transport (tests, custom dialers).
	Transport http.RoundTripper
}

// Error is a request-time network failure.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("network: fetch %s: %v", e.URL, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// HTTP fetches requests from the origin over HTTP(S). Safe for concurrent use.
type HTTP struct {
	origin *url.URL
	host   string
	client *http.Client
}

func New(cfg Config) *HTTP {
	h := &HTTP{
		origin: cfg.Origin,
		host:   cfg.Host,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if !cfg.FollowRedirects {
		h.client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	switch {
	case cfg.Transport != nil:
		h.client.Transport = cfg.Transport
	case cfg.Host != "":
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{ServerName: cfg.Host}
		h.client.Transport = t
	}
	return h
}

// Fetch issues req, body included, against the origin and returns the
// response verbatim. The caller closes the body. Any transport failure is an *Error.
func (h *HTTP) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	u := h.resolve(req.URL)
	out, err := http.NewRequestWithContext(ctx, methodOf(req), u.String(), req.Body)
	if err != nil {
		return nil, &Error{URL: u.String(), Err: err}
	}
	if req.Body != nil {
		out.ContentLength = req.ContentLength
		out.GetBody = req.GetBody
	}
	copyHeader(out.Header, req.Header)
	// hop-by-hop
	out.Header.Del("Connection")
	if h.host != "" {
		out.Host = h.host
	}

	res, err := h.client.Do(out)
	if err != nil {
		return nil, &Error{URL: u.String(), Err: err}
	}
	return res, nil
}

// resolve makes u absolute against the origin. An intercepted server-side
// request has only a path; it is sent to the origin as-is.
func (h *HTTP) resolve(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if h.origin == nil {
		return &c
	}
	if c.IsAbs() {
		return &c
	}
	c.Host = ""
	return h.origin.ResolveReference(&c)
}

func methodOf(req *http.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
