package precache

import "time"

const (
	defaultInstallConcurrency = 4
	defaultMaxBodyBytes       = 32 << 20

	defaultClientIdleTimeout = 30 * time.Minute
	defaultMaxClients        = 100_000
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
