// Package handler serves intercepted HTTP requests as fetch events of the
// worker that controls the requesting client.
package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/unkn0wn-root/precache"
)

const (
	DefaultCookieName  = "precache-client"
	DefaultReleasePath = "/.precache/release"
)

type Options struct {
	// Required
	Registration *precache.Registration
	Network      precache.Fetcher // serves uncontrolled clients

	Logger      precache.Logger // if nil, NopLogger is used
	CookieName  string          // "" => DefaultCookieName
	ReleasePath string          // "" => DefaultReleasePath; a POST detaches the client
	NewClientID func() string   // nil => random UUID
}

type Handler struct {
	reg         *precache.Registration
	network     precache.Fetcher
	log         precache.Logger
	cookie      string
	releasePath string
	newID       func() string
}

var _ http.Handler = (*Handler)(nil)

func New(opts Options) (*Handler, error) {
	if opts.Registration == nil {
		return nil, fmt.Errorf("handler: registration is required")
	}
	if opts.Network == nil {
		return nil, fmt.Errorf("handler: network fetcher is required")
	}
	h := &Handler{
		reg:         opts.Registration,
		network:     opts.Network,
		log:         opts.Logger,
		cookie:      opts.CookieName,
		releasePath: opts.ReleasePath,
		newID:       opts.NewClientID,
	}
	if h.log == nil {
		h.log = precache.NopLogger{}
	}
	if h.cookie == "" {
		h.cookie = DefaultCookieName
	}
	if h.releasePath == "" {
		h.releasePath = DefaultReleasePath
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	return h, nil
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, issued := h.clientID(w, r)

	if r.URL.Path == h.releasePath && r.Method == http.MethodPost {
		if err := h.reg.Release(r.Context(), id); err != nil {
			h.log.Error("release failed", precache.Fields{"client": id, "err": err})
			http.Error(w, "release failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var (
		status CacheStatus
		res    *http.Response
		err    error
	)
	worker := h.reg.Controller(id, issued || isNavigation(r))
	if worker == nil {
		status.Forward(FwdBypass)
		res, err = h.network.Fetch(r.Context(), r)
	} else {
		var out precache.Result
		out, err = worker.Fetch(r.Context(), r)
		res = out.Response
		switch {
		case out.Source == precache.SourceCache:
			status.Hit()
		case r.Method != http.MethodGet:
			status.Forward(FwdMethod)
		default:
			status.Forward(FwdURIMiss)
		}
	}

	if err != nil {
		h.log.Warn("could not reach origin", precache.Fields{"url": r.URL.String(), "err": err})
		w.Header().Set(CacheStatusHeader, status.String())
		http.Error(w, "could not reach origin", http.StatusBadGateway)
		return
	}
	h.send(w, res, status)
}

func (h *Handler) send(w http.ResponseWriter, res *http.Response, status CacheStatus) {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.Header().Set(CacheStatusHeader, status.String())
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		h.log.Debug("error writing to client", precache.Fields{"err": err})
	}
}

// clientID returns the client identity carried by the cookie, issuing a new
// one when absent. issued reports a new client.
func (h *Handler) clientID(w http.ResponseWriter, r *http.Request) (id string, issued bool) {
	if c, err := r.Cookie(h.cookie); err == nil && c.Value != "" {
		return c.Value, false
	}
	id = h.newID()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, true
}

// isNavigation reports a top-level page load.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
