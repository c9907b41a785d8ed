package precache

import (
	"net/http"

	"github.com/unkn0wn-root/precache/record"
)

type EventKind uint8

const (
	EventInstall EventKind = iota + 1
	EventActivate
	EventFetch
)

func (k EventKind) String() string {
	switch k {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Event is one lifecycle event delivered to a worker. Request is set for
// EventFetch only.
type Event struct {
	Kind    EventKind
	Request *http.Request
}

// Source tells where a fetch response came from.
type Source uint8

const (
	SourceNone Source = iota
	SourceCache
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

type MutationKind uint8

const (
	// MutationPutAll stores Records in Generation atomically.
	MutationPutAll MutationKind = iota + 1
	// MutationDelete removes Generation and all its records.
	MutationDelete
)

// Mutation is one store change produced by Handle and applied by Commit.
type Mutation struct {
	Kind       MutationKind
	Generation string
	Records    []record.Record
	// Created marks a PutAll into a generation that did not exist when the
	// event was handled; Commit removes it again if the write fails.
	Created bool
}

// Result is the outcome of handling one event.
type Result struct {
	Mutations []Mutation

	// fetch
	Response   *http.Response
	Source     Source
	Generation string // generation that answered a cache hit

	SkipWaiting bool // install: activate without waiting for clients to leave
	Claim       bool // activate: take control of all clients immediately
}
