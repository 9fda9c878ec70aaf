// ABOUTME: Presence synchronization folding the store change feed into a per-member view
// ABOUTME: Handles backfill, live merge, circle-set rebinding, and feed-loss recovery

package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/haven-app/havend/internal/store"
)

// MemberPresence is the read-model entry for one member: the most recent
// known position across every shared circle.
type MemberPresence struct {
	UserID      string
	Latitude    float64
	Longitude   float64
	Accuracy    *float64
	Timestamp   time.Time
	CircleIDs   []string // sorted; every circle this member was observed through
	IsLastKnown bool
}

// memberEntry is the internal mutable form of a presence entry.
type memberEntry struct {
	userID      string
	latitude    float64
	longitude   float64
	accuracy    *float64
	timestamp   time.Time
	circleIDs   map[string]bool
	isLastKnown bool
}

func (e *memberEntry) snapshot() MemberPresence {
	circles := make([]string, 0, len(e.circleIDs))
	for id := range e.circleIDs {
		circles = append(circles, id)
	}
	sort.Strings(circles)
	return MemberPresence{
		UserID:      e.userID,
		Latitude:    e.latitude,
		Longitude:   e.longitude,
		Accuracy:    e.accuracy,
		Timestamp:   e.timestamp,
		CircleIDs:   circles,
		IsLastKnown: e.isLastKnown,
	}
}

// Sync subscribes to the store's insert feed for the current circle set and
// maintains the presence map. The map is mutated only by Sync's merge step;
// everyone else reads copies via Snapshot.
type Sync struct {
	store    store.Store
	logger   *slog.Logger
	onUpdate func() // optional change notification, may be nil

	mu        sync.Mutex
	members   map[string]*memberEntry
	circleIDs []string // canonical sorted set
	sub       *store.Subscription
	done      chan struct{} // closed when the consumer for s.sub exits
	gen       uint64        // bumped on every deliberate rebind or teardown
	closed    bool
}

// NewSync creates a presence synchronizer over the given store.
// onUpdate, if non-nil, is called after every change to the presence map.
func NewSync(st store.Store, onUpdate func()) *Sync {
	return &Sync{
		store:    st,
		logger:   slog.Default().With("component", "presence"),
		onUpdate: onUpdate,
		members:  make(map[string]*memberEntry),
	}
}

// SetCircles rebinds the subscription to a new circle set. The rebind only
// happens when the set actually changed (order-insensitive); a changed set
// closes the old feed and rebuilds the map from a fresh backfill.
func (s *Sync) SetCircles(ctx context.Context, circleIDs []string) error {
	canonical := canonicalSet(circleIDs)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if equalSets(s.circleIDs, canonical) {
		s.mu.Unlock()
		return nil
	}
	s.circleIDs = canonical
	s.gen++
	gen := s.gen
	oldSub := s.sub
	oldDone := s.done
	s.sub = nil
	s.done = nil
	s.mu.Unlock()

	// Close the old feed before opening the new one. The consumer sees
	// the generation moved on and treats the close as deliberate.
	if oldSub != nil {
		oldSub.Close()
		<-oldDone
	}

	if len(canonical) == 0 {
		s.mu.Lock()
		s.members = make(map[string]*memberEntry)
		s.mu.Unlock()
		s.logger.Info("no circles, presence subscription torn down")
		s.notify()
		return nil
	}

	return s.bind(ctx, canonical, gen)
}

// bind opens a feed subscription and seeds the map from a backfill query.
// Subscribing before the backfill means records inserted during the query
// are not lost; the live merge supersedes the backfill harmlessly.
// The subscription commits only if gen is still current; a rebind that lost
// a race against a newer SetCircles or Close is discarded.
func (s *Sync) bind(ctx context.Context, circleIDs []string, gen uint64) error {
	sub, err := s.store.SubscribeInserts(circleIDs)
	if err != nil {
		return fmt.Errorf("subscribing to location feed: %w", err)
	}

	records, err := s.store.ListRecent(ctx, circleIDs, 0)
	if err != nil {
		sub.Close()
		return fmt.Errorf("backfilling locations: %w", err)
	}

	members := backfill(records)

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.members = members
	s.sub = sub
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	if len(records) == 0 {
		s.logger.Info("no initial locations found", "circles", len(circleIDs))
	} else {
		s.logger.Info("presence map seeded from backfill",
			"members", len(members),
			"records", len(records),
		)
	}
	s.notify()

	go s.consume(sub, done, gen)
	return nil
}

// backfill folds a newest-first record list into a fresh presence map.
// Processing strictly newest to oldest means the first record seen per user
// wins the position; circle membership unions across all of a user's records.
func backfill(records []*store.LocationRecord) map[string]*memberEntry {
	members := make(map[string]*memberEntry)
	for _, rec := range records {
		entry, ok := members[rec.UserID]
		if !ok {
			members[rec.UserID] = entryFor(rec)
			continue
		}
		entry.circleIDs[rec.CircleID] = true
	}
	return members
}

// consume drains the live feed until it closes. A close that Sync did not
// initiate is a lost subscription and triggers an automatic rebind, but only
// while gen is still current: a concurrent SetCircles or Close bumps the
// generation and owns the replacement itself.
func (s *Sync) consume(sub *store.Subscription, done chan struct{}, gen uint64) {
	defer close(done)

	for rec := range sub.C() {
		s.merge(rec)
	}

	s.mu.Lock()
	lost := s.sub == sub && !s.closed && s.gen == gen
	if lost {
		s.sub = nil
		s.done = nil
	}
	circleIDs := append([]string(nil), s.circleIDs...)
	s.mu.Unlock()

	if !lost {
		return
	}

	s.logger.Warn("location feed lost, resubscribing", "circles", len(circleIDs))
	if err := s.bind(context.Background(), circleIDs, gen); err != nil {
		s.logger.Error("resubscribing after feed loss", "error", err)
	}
}

// merge folds one live record into the presence map. Circle-set union is
// unconditional; position, timestamp, and the last-known flag are overwritten
// because the feed delivers inserts in temporal order.
//
// CircleIDs never shrinks within one subscription session, so a member who
// leaves a circle lingers until the next rebind; every rebind rebuilds the
// map from backfill, which corrects it.
func (s *Sync) merge(rec *store.LocationRecord) {
	s.mu.Lock()
	entry, ok := s.members[rec.UserID]
	if !ok {
		s.members[rec.UserID] = entryFor(rec)
	} else {
		entry.circleIDs[rec.CircleID] = true
		entry.latitude = rec.Latitude
		entry.longitude = rec.Longitude
		entry.accuracy = rec.Accuracy
		entry.timestamp = rec.RecordedAt
		entry.isLastKnown = rec.IsLastKnown
	}
	s.mu.Unlock()

	s.notify()
}

func entryFor(rec *store.LocationRecord) *memberEntry {
	return &memberEntry{
		userID:      rec.UserID,
		latitude:    rec.Latitude,
		longitude:   rec.Longitude,
		accuracy:    rec.Accuracy,
		timestamp:   rec.RecordedAt,
		circleIDs:   map[string]bool{rec.CircleID: true},
		isLastKnown: rec.IsLastKnown,
	}
}

// Snapshot returns a copy of the presence map keyed by user id.
func (s *Sync) Snapshot() map[string]MemberPresence {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]MemberPresence, len(s.members))
	for userID, entry := range s.members {
		out[userID] = entry.snapshot()
	}
	return out
}

// Close tears down the feed subscription. Required on every consumer exit
// path: an unclosed Sync leaks a live feed registration.
func (s *Sync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	sub := s.sub
	done := s.done
	s.sub = nil
	s.done = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
		<-done
	}
	s.logger.Info("presence sync closed")
}

func (s *Sync) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// canonicalSet dedupes and sorts a circle id list.
func canonicalSet(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
