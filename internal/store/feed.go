// ABOUTME: In-process change feed fanning out committed inserts to subscribers
// ABOUTME: Provides Subscription with a circle-id filter and buffered delivery

package store

import (
	"log/slog"
	"sync"
)

// subscriptionBuffer is the per-subscription channel depth. A subscriber that
// falls this far behind starts losing records; presence merge is most-recent
// wins, so the next insert repairs the view.
const subscriptionBuffer = 64

// Subscription is one live registration on the insert feed. Records matching
// the circle-id filter arrive on C in insertion order. C is closed when the
// subscription or the store is closed.
type Subscription struct {
	id        uint64
	circleIDs map[string]bool
	ch        chan *LocationRecord
	feed      *feed
	closeOnce sync.Once
}

// C returns the channel on which matching records are delivered.
func (s *Subscription) C() <-chan *LocationRecord {
	return s.ch
}

// Close removes the subscription from the feed and closes C.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.feed.remove(s.id)
		close(s.ch)
	})
}

func (s *Subscription) matches(circleID string) bool {
	return s.circleIDs[circleID]
}

// feed tracks live subscriptions and fans out inserts. Both SQLiteStore and
// MockStore embed one so the feed contract is identical across backends.
type feed struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
	logger *slog.Logger
}

func newFeed(logger *slog.Logger) *feed {
	return &feed{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// subscribe registers a new subscription filtered to the given circle ids.
func (f *feed) subscribe(circleIDs []string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrStoreClosed
	}

	filter := make(map[string]bool, len(circleIDs))
	for _, id := range circleIDs {
		filter[id] = true
	}

	f.nextID++
	sub := &Subscription{
		id:        f.nextID,
		circleIDs: filter,
		ch:        make(chan *LocationRecord, subscriptionBuffer),
		feed:      f,
	}
	f.subs[sub.id] = sub

	f.logger.Debug("feed subscription opened", "id", sub.id, "circles", len(circleIDs))
	return sub, nil
}

func (f *feed) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[id]; ok {
		delete(f.subs, id)
		f.logger.Debug("feed subscription closed", "id", id)
	}
}

// publish delivers a committed record to every matching subscription.
// Delivery never blocks the writer: a full subscriber buffer drops the
// record with a warning.
func (f *feed) publish(rec *LocationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for _, sub := range f.subs {
		if !sub.matches(rec.CircleID) {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			f.logger.Warn("feed subscriber lagging, dropping record",
				"subscription", sub.id,
				"record_id", rec.ID,
				"circle_id", rec.CircleID,
			)
		}
	}
}

// closeAll closes every open subscription and marks the feed closed.
func (f *feed) closeAll() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.subs = make(map[uint64]*Subscription)
	f.mu.Unlock()

	// Close outside the lock; Subscription.Close calls back into remove.
	for _, sub := range subs {
		sub.closeOnce.Do(func() {
			close(sub.ch)
		})
	}
}
