// Package store provides persistent storage for location records using SQLite.
//
// # Architecture
//
// The Store interface has two implementations:
//
//   - SQLiteStore: production store backed by modernc.org/sqlite
//   - MockStore: in-memory store for unit tests
//
// Both carry the same in-process insert feed, so the change-feed contract
// (insertion order, circle-id filtering, close-on-teardown) is identical
// regardless of backend.
//
// # Data Model
//
// One LocationRecord is written per (sample, circle) pair: a user in N
// circles produces N rows per sample. Records with IsLastKnown=true are
// terminal markers written once per offline transition per circle.
//
// Accuracy is nullable and must round-trip as NULL; a device that reports
// no accuracy is distinct from a device reporting 0 meters.
//
// # Change Feed
//
// SubscribeInserts returns a Subscription delivering newly committed rows
// matching a circle-id filter, in insertion order. Delivery never blocks
// the write path: a subscriber whose buffer is full loses records, which
// the most-recent-wins presence merge tolerates.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// All methods accept context.Context for cancellation support.
package store
