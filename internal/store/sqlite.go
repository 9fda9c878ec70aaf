// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides location record persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// recordedAtFormat is the storage layout for timestamps. Fixed-width
// milliseconds keep the TEXT column lexicographically ordered; RFC3339Nano
// trims trailing zeros, which would break the ORDER BY on recorded_at.
const recordedAtFormat = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	feed   *feed
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		feed:   newFeed(logger),
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS locations (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			circle_id     TEXT NOT NULL,
			latitude      REAL NOT NULL,
			longitude     REAL NOT NULL,
			accuracy      REAL,
			is_last_known INTEGER NOT NULL DEFAULT 0,
			recorded_at   TEXT NOT NULL,

			CHECK (is_last_known IN (0, 1))
		);

		CREATE INDEX IF NOT EXISTS idx_locations_circle_recorded
			ON locations(circle_id, recorded_at DESC);

		CREATE INDEX IF NOT EXISTS idx_locations_user
			ON locations(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertRecords writes the batch in one transaction, then fans the records
// out to feed subscribers in slice order. Feed delivery happens only after
// a successful commit so subscribers never observe rolled-back rows.
func (s *SQLiteStore) InsertRecords(ctx context.Context, records []*LocationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO locations (id, user_id, circle_id, latitude, longitude, accuracy, is_last_known, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, query,
			rec.ID,
			rec.UserID,
			rec.CircleID,
			rec.Latitude,
			rec.Longitude,
			nullFloat(rec.Accuracy),
			boolToInt(rec.IsLastKnown),
			rec.RecordedAt.UTC().Format(recordedAtFormat),
		)
		if err != nil {
			return fmt.Errorf("inserting location record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing location records: %w", err)
	}

	for _, rec := range records {
		s.feed.publish(rec)
	}

	s.logger.Debug("inserted location records",
		"count", len(records),
		"user_id", records[0].UserID,
		"last_known", records[0].IsLastKnown,
	)
	return nil
}

// ListRecent retrieves records across the given circle ids, newest first.
// If limit is 0 or negative, a default limit of 500 is used.
func (s *SQLiteStore) ListRecent(ctx context.Context, circleIDs []string, limit int) ([]*LocationRecord, error) {
	if len(circleIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	placeholders := strings.Repeat("?,", len(circleIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT id, user_id, circle_id, latitude, longitude, accuracy, is_last_known, recorded_at
		FROM locations
		WHERE circle_id IN (%s)
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, placeholders)

	args := make([]any, 0, len(circleIDs)+1)
	for _, id := range circleIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying locations: %w", err)
	}
	defer rows.Close()

	var records []*LocationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating location rows: %w", err)
	}

	return records, nil
}

// scanRecord scans one locations row, preserving NULL accuracy as nil.
func scanRecord(rows *sql.Rows) (*LocationRecord, error) {
	var rec LocationRecord
	var accuracy sql.NullFloat64
	var lastKnown int
	var recordedAtStr string

	if err := rows.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.CircleID,
		&rec.Latitude,
		&rec.Longitude,
		&accuracy,
		&lastKnown,
		&recordedAtStr,
	); err != nil {
		return nil, fmt.Errorf("scanning location row: %w", err)
	}

	if accuracy.Valid {
		rec.Accuracy = &accuracy.Float64
	}
	rec.IsLastKnown = lastKnown != 0

	var err error
	rec.RecordedAt, err = time.Parse(time.RFC3339, recordedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}

	return &rec, nil
}

// SubscribeInserts opens a live feed subscription filtered by circle id.
func (s *SQLiteStore) SubscribeInserts(circleIDs []string) (*Subscription, error) {
	return s.feed.subscribe(circleIDs)
}

// Close closes all feed subscriptions and the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	s.feed.closeAll()
	return s.db.Close()
}

// nullFloat returns nil for a nil pointer, otherwise the value.
// Accuracy must round-trip as NULL, never 0.
func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
