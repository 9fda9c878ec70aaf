// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
// It carries the same insert feed as SQLiteStore.
type MockStore struct {
	mu      sync.RWMutex
	records []*LocationRecord
	feed    *feed
	closed  bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		feed: newFeed(slog.Default().With("component", "mockstore")),
	}
}

// InsertRecords stores the records and fans them out to subscribers.
func (m *MockStore) InsertRecords(ctx context.Context, records []*LocationRecord) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}
	for _, rec := range records {
		// Copy to avoid external modification
		r := *rec
		m.records = append(m.records, &r)
	}
	m.mu.Unlock()

	for _, rec := range records {
		r := *rec
		m.feed.publish(&r)
	}
	return nil
}

// ListRecent returns records for the given circles, newest first.
func (m *MockStore) ListRecent(ctx context.Context, circleIDs []string, limit int) ([]*LocationRecord, error) {
	if len(circleIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}

	filter := make(map[string]bool, len(circleIDs))
	for _, id := range circleIDs {
		filter[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*LocationRecord
	for _, rec := range m.records {
		if filter[rec.CircleID] {
			r := *rec
			out = append(out, &r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SubscribeInserts opens a live feed subscription filtered by circle id.
func (m *MockStore) SubscribeInserts(circleIDs []string) (*Subscription, error) {
	return m.feed.subscribe(circleIDs)
}

// Close closes all feed subscriptions.
func (m *MockStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.feed.closeAll()
	return nil
}

// RecordCount returns the number of stored records. Test helper.
func (m *MockStore) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Records returns a copy of all stored records in insertion order. Test helper.
func (m *MockStore) Records() []*LocationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*LocationRecord, 0, len(m.records))
	for _, rec := range m.records {
		r := *rec
		out = append(out, &r)
	}
	return out
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
