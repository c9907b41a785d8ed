// Package record defines the (request, response) pair held by a cache
// generation and the rules used to match incoming requests against it.
package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBodyTooLarge is returned by FromResponse when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("record: response body too large")

// Record is one stored (request, response) pair.
type Record struct {
	Method        string      `json:"method" msgpack:"method"`
	URL           string      `json:"url" msgpack:"url"`
	RequestHeader http.Header `json:"request_header,omitempty" msgpack:"request_header,omitempty"`
	Status        int         `json:"status" msgpack:"status"`
	Header        http.Header `json:"header,omitempty" msgpack:"header,omitempty"`
	Body          []byte      `json:"body,omitempty" msgpack:"body,omitempty"`
	StoredAt      time.Time   `json:"stored_at" msgpack:"stored_at"`
}

// MatchOptions relax the default matching rules.
type MatchOptions struct {
	IgnoreSearch bool // compare URLs without their query
	IgnoreMethod bool // match non-GET requests too
	IgnoreVary   bool // skip the Vary header comparison
}

// Resolve parses raw and resolves it against origin when origin is set.
func Resolve(origin *url.URL, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("record: parse %q: %w", raw, err)
	}
	if origin != nil && !u.IsAbs() {
		u = origin.ResolveReference(u)
	}
	return u, nil
}

// Key returns the normalized form of u used for storage and matching:
// fragment dropped, scheme and host lowercased, empty path of an absolute
// URL replaced by "/". The query is significant.
func Key(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Host != "" && c.Path == "" && c.Opaque == "" {
		c.Path = "/"
	}
	return c.String()
}

func withoutQuery(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}

// OK reports whether status is in the 2xx range.
func OK(status int) bool { return status >= 200 && status <= 299 }

// FromResponse captures res (issued for req, normalized to key) into a Record.
// The body is read completely and closed. maxBody <= 0 disables the limit.
func FromResponse(req *http.Request, key string, res *http.Response, now time.Time, maxBody int64) (Record, error) {
	var body []byte
	if res.Body != nil {
		defer res.Body.Close()
		r := io.Reader(res.Body)
		if maxBody > 0 {
			r = io.LimitReader(res.Body, maxBody+1)
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return Record{}, fmt.Errorf("record: read body of %s: %w", key, err)
		}
		if maxBody > 0 && int64(len(b)) > maxBody {
			return Record{}, fmt.Errorf("%w: %s", ErrBodyTooLarge, key)
		}
		body = b
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	return Record{
		Method:        method,
		URL:           key,
		RequestHeader: req.Header.Clone(),
		Status:        res.StatusCode,
		Header:        res.Header.Clone(),
		Body:          body,
		StoredAt:      now,
	}, nil
}

// Response rebuilds an *http.Response from the record. Every call returns
// a fresh body reader.
func (r Record) Response(req *http.Request) *http.Response {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + http.StatusText(r.Status),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// Matches reports whether req, normalized to key, selects this record.
func (r Record) Matches(req *http.Request, key string, opts MatchOptions) bool {
	if !opts.IgnoreMethod && req.Method != "" && req.Method != http.MethodGet {
		return false
	}
	if opts.IgnoreSearch {
		if withoutQuery(r.URL) != withoutQuery(key) {
			return false
		}
	} else if r.URL != key {
		return false
	}
	if opts.IgnoreVary {
		return true
	}
	return r.varyMatches(req.Header)
}

// varyMatches compares the headers named by the stored Vary field.
// "Vary: *" never matches.
func (r Record) varyMatches(h http.Header) bool {
	for _, name := range r.VaryNames() {
		if name == "*" {
			return false
		}
		if h.Get(name) != r.RequestHeader.Get(name) {
			return false
		}
	}
	return true
}

// VaryNames returns the header names listed in the stored Vary field.
func (r Record) VaryNames() []string {
	var names []string
	for _, v := range r.Header.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				names = append(names, p)
			}
		}
	}
	return names
}

// Request rebuilds the request the record was stored for (method, URL,
// headers; no body).
func (r Record) Request() *http.Request {
	u, err := url.Parse(r.URL)
	if err != nil {
		u = &url.URL{Path: r.URL}
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	h := r.RequestHeader.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &http.Request{Method: method, URL: u, Header: h, Host: u.Host}
}
