// ABOUTME: Push-fed position source for headless deployments
// ABOUTME: Devices report samples in; watchers get them after threshold filtering

package position

import (
	"context"
	"math"
	"sync"
	"time"
)

const earthRadiusMeters = 6371000

// PushSource is a Source fed by external reports instead of local hardware.
// A device (or its bridge) calls Offer with each fix; Current returns the
// most recent one and Watch delivers new fixes that cross the configured
// time or distance threshold.
type PushSource struct {
	mu       sync.Mutex
	last     *Sample
	watchers map[int]*pushWatcher
	nextID   int
}

type pushWatcher struct {
	opts          WatchOptions
	fn            func(Sample)
	lastDelivered *Sample
	deliveredAt   time.Time
}

// NewPushSource creates an empty PushSource. A push-fed device has no
// foreground/background distinction, so background delivery is supported.
func NewPushSource() *PushSource {
	return &PushSource{watchers: make(map[int]*pushWatcher)}
}

// Offer feeds one reported fix to the source. Watchers receive it when it is
// their first, or when it crosses their time or distance threshold.
func (p *PushSource) Offer(sample Sample) {
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}

	p.mu.Lock()
	s := sample
	p.last = &s

	var deliveries []func(Sample)
	now := time.Now()
	for _, w := range p.watchers {
		if !w.shouldDeliver(sample, now) {
			continue
		}
		delivered := sample
		w.lastDelivered = &delivered
		w.deliveredAt = now
		deliveries = append(deliveries, w.fn)
	}
	p.mu.Unlock()

	for _, fn := range deliveries {
		fn(sample)
	}
}

func (w *pushWatcher) shouldDeliver(sample Sample, now time.Time) bool {
	if w.lastDelivered == nil {
		return true
	}
	if now.Sub(w.deliveredAt) >= w.opts.Interval {
		return true
	}
	return distanceMeters(*w.lastDelivered, sample) >= w.opts.Distance
}

// Current returns the most recently offered fix, or ErrUnavailable when no
// device has reported yet.
func (p *PushSource) Current(ctx context.Context) (Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Sample{}, ErrUnavailable
	}
	return *p.last, nil
}

// Watch registers a threshold-filtered callback. The most recent fix, if any,
// is delivered immediately.
func (p *PushSource) Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (Watch, error) {
	opts = opts.withDefaults()

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	w := &pushWatcher{opts: opts, fn: fn}
	var initial *Sample
	if p.last != nil {
		s := *p.last
		initial = &s
		w.lastDelivered = &s
		w.deliveredAt = time.Now()
	}
	p.watchers[id] = w
	p.mu.Unlock()

	if initial != nil {
		fn(*initial)
	}

	return newWatch(func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}), nil
}

func (p *PushSource) SupportsBackground() bool { return true }

// distanceMeters is the haversine great-circle distance between two samples.
func distanceMeters(a, b Sample) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

var _ Source = (*PushSource)(nil)
