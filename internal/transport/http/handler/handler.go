package handler

import "context"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves the health and readiness probes. Either dependency may
// be nil, in which case its check is skipped.
type Handler struct {
	db    Pinger
	cache Pinger
}

// New creates the probe handler over the service's dependencies.
func New(db, cache Pinger) *Handler {
	return &Handler{db: db, cache: cache}
}
