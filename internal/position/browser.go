// ABOUTME: Browser-backed position source for foreground-only geolocation APIs
// ABOUTME: Combines the change callback with an unconditional interval poll

package position

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Geolocation is the browser geolocation API surface. Change-triggered
// callbacks exist but are not guaranteed to fire at a useful cadence.
type Geolocation interface {
	// Supported reports whether the environment exposes geolocation at all.
	Supported() bool

	// CurrentPosition fetches one position. The caller bounds it with a
	// context.
	CurrentPosition(ctx context.Context) (Sample, error)

	// WatchPosition begins change-triggered delivery. Returns a cancel
	// function. No cadence guarantee.
	WatchPosition(fn func(Sample)) (func(), error)
}

// BrowserSource adapts a Geolocation API to the Source interface.
// Background delivery does not exist in this environment.
type BrowserSource struct {
	geo    Geolocation
	logger *slog.Logger
}

// NewBrowserSource creates a Source backed by a browser geolocation API.
func NewBrowserSource(geo Geolocation) *BrowserSource {
	return &BrowserSource{
		geo:    geo,
		logger: slog.Default().With("component", "position"),
	}
}

// Current fetches one position, bounded by CurrentTimeout.
func (b *BrowserSource) Current(ctx context.Context) (Sample, error) {
	if !b.geo.Supported() {
		return Sample{}, fmt.Errorf("geolocation not supported: %w", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, CurrentTimeout)
	defer cancel()

	sample, err := b.geo.CurrentPosition(ctx)
	if err != nil {
		b.logger.Debug("geolocation fetch failed", "error", err)
		return Sample{}, fmt.Errorf("fetching position: %w", ErrUnavailable)
	}
	return sample, nil
}

// Watch combines the change-triggered callback with an unconditional
// fixed-interval poll, because the callback alone may not fire at a useful
// cadence. Both paths feed the same fn; duplicates are acceptable.
func (b *BrowserSource) Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (Watch, error) {
	opts = opts.withDefaults()

	if !b.geo.Supported() {
		return nil, fmt.Errorf("geolocation not supported: %w", ErrUnavailable)
	}

	cancelWatch, err := b.geo.WatchPosition(fn)
	if err != nil {
		return nil, fmt.Errorf("starting geolocation watch: %w", err)
	}

	// The poll lives until Stop, not until the start call's context ends.
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	go b.poll(pollCtx, opts.Interval, fn)

	b.logger.Debug("browser watch started", "poll_interval", opts.Interval)

	return newWatch(func() {
		cancelWatch()
		cancelPoll()
	}), nil
}

// poll fetches a fresh position every interval and forwards it.
// A failed fetch is no update, not an error.
func (b *BrowserSource) poll(ctx context.Context, interval time.Duration, fn func(Sample)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := b.Current(ctx)
			if err != nil {
				b.logger.Debug("interval poll skipped", "error", err)
				continue
			}
			fn(sample)
		}
	}
}

// SupportsBackground always reports false: browsers stop delivering
// positions when the page is backgrounded.
func (b *BrowserSource) SupportsBackground() bool {
	return false
}

var _ Source = (*BrowserSource)(nil)
