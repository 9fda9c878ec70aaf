// ABOUTME: Position source abstraction normalizing platform location backends
// ABOUTME: Defines Sample, WatchOptions, and the Source interface

package position

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned when the platform reports no location capability
// or a one-shot fetch times out. Callers treat it as "no update", not a
// fatal error.
var ErrUnavailable = errors.New("position unavailable")

// CurrentTimeout bounds a one-shot position fetch. After this the fetch
// resolves as unavailable rather than hanging.
const CurrentTimeout = 10 * time.Second

// Default watch thresholds. Both are lower bounds: the platform emits a
// sample when either the interval elapsed OR the device moved the distance.
const (
	DefaultInterval = 10 * time.Second
	DefaultDistance = 10.0 // meters
)

// Sample is one normalized position reading. Immutable; never persisted
// directly, always wrapped into a store record before transmission.
type Sample struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64 // meters, 1-sigma; nil when the backend reported none
	CapturedAt time.Time
}

// WatchOptions controls the cadence of a position watch.
type WatchOptions struct {
	Interval time.Duration // minimum time between samples, default 10s
	Distance float64       // minimum movement in meters, default 10
	// Background requests background-capable delivery. Ignored by backends
	// without background support.
	Background bool
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Distance <= 0 {
		o.Distance = DefaultDistance
	}
	return o
}

// Watch is a live position watch. Stop must be called on every exit path;
// it is safe to call more than once.
type Watch interface {
	Stop()
}

// Source abstracts "get one position" and "watch position changes" across
// platform backends. Implementations are selected at construction time;
// tests substitute fakes.
type Source interface {
	// Current fetches one position, bounded by CurrentTimeout.
	Current(ctx context.Context) (Sample, error)

	// Watch starts a live watch delivering samples to fn until Stop is
	// called. Duplicate samples are acceptable; consumers merge with
	// most-recent-wins semantics.
	Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (Watch, error)

	// SupportsBackground reports whether this backend can deliver samples
	// while the app is backgrounded.
	SupportsBackground() bool
}

// stopFunc adapts a cancel function into a Watch with idempotent Stop.
type stopFunc struct {
	once sync.Once
	fn   func()
}

func newWatch(fn func()) *stopFunc {
	return &stopFunc{fn: fn}
}

func (s *stopFunc) Stop() {
	s.once.Do(s.fn)
}
