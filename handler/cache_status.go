package handler

import "fmt"

// CacheStatusHeader is the RFC 9211 response header.
const CacheStatusHeader = "Cache-Status"

const cacheName = "precache"

type FwdReason string

const (
	// The client is not controlled by any worker.
	FwdBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdURIMiss FwdReason = "uri-miss"
)

type CacheStatus struct {
	hit       bool
	fwdReason FwdReason
}

func (cs *CacheStatus) Hit() {
	cs.hit = true
	cs.fwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.fwdReason = reason
}

func (cs CacheStatus) String() string {
	if cs.hit {
		return cacheName + "; hit"
	}
	if cs.fwdReason == "" {
		return cacheName + "; fwd=miss"
	}
	return fmt.Sprintf("%s; fwd=%s", cacheName, cs.fwdReason)
}
