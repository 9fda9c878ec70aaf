// ABOUTME: Store interface and data types for havend location persistence
// ABOUTME: Defines LocationRecord and the Store interface for the shared locations table

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStoreClosed is returned when an operation is attempted on a closed store
var ErrStoreClosed = errors.New("store closed")

// LocationRecord is the wire/storage form of one position sample for one circle.
// A user in N circles produces N records per sample. IsLastKnown marks the
// terminal record written on transition to offline, at most once per circle
// per transition.
type LocationRecord struct {
	ID          string
	UserID      string
	CircleID    string
	Latitude    float64
	Longitude   float64
	Accuracy    *float64 // meters, 1-sigma; nil when the device reported none
	IsLastKnown bool
	RecordedAt  time.Time
}

// Store defines the interface for location record persistence and the
// insert change feed consumed by presence synchronization.
type Store interface {
	// InsertRecords writes a batch of location records atomically and
	// delivers them to matching feed subscriptions in insertion order.
	InsertRecords(ctx context.Context, records []*LocationRecord) error

	// ListRecent returns records across the given circle ids ordered by
	// recorded_at descending (newest first). If limit is 0 or negative a
	// default limit is used.
	ListRecent(ctx context.Context, circleIDs []string, limit int) ([]*LocationRecord, error)

	// SubscribeInserts opens a live feed of newly inserted records filtered
	// by circle id. The caller must Close the subscription when done;
	// an unclosed subscription leaks a feed registration.
	SubscribeInserts(circleIDs []string) (*Subscription, error)

	// Close releases any resources held by the store and closes all
	// open subscriptions.
	Close() error
}
