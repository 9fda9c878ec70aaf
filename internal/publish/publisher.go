// ABOUTME: Publisher writing position samples to the shared store per circle
// ABOUTME: Handles the one-shot last-known record on the offline transition

package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haven-app/havend/internal/identity"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/store"
)

// Publisher serializes position samples into one outbound record per circle
// and writes them to the shared store. There is no retry or backoff: a failed
// write surfaces as an error for the caller to log, and the next scheduled
// sample attempts again naturally.
type Publisher struct {
	store    store.Store
	identity identity.Provider
	source   position.Source
	logger   *slog.Logger
}

// NewPublisher creates a Publisher writing to the given store as the
// authenticated user.
func NewPublisher(st store.Store, id identity.Provider, src position.Source) *Publisher {
	return &Publisher{
		store:    st,
		identity: id,
		source:   src,
		logger:   slog.Default().With("component", "publish"),
	}
}

// Publish writes exactly one record per circle id for the sample, all with
// IsLastKnown=false. When no user is authenticated the sample is dropped and
// logged, not queued or retried.
func (p *Publisher) Publish(ctx context.Context, sample position.Sample, circleIDs []string) error {
	return p.write(ctx, sample, circleIDs, false)
}

// PublishLastKnown fetches one fresh position and writes one record per
// circle id with IsLastKnown=true. Called exactly once at the moment the
// user declares themselves offline, before the tracking watch is torn down.
// An unavailable position is absorbed: there is simply no terminal record.
func (p *Publisher) PublishLastKnown(ctx context.Context, circleIDs []string) error {
	if len(circleIDs) == 0 {
		return nil
	}

	sample, err := p.source.Current(ctx)
	if err != nil {
		p.logger.Error("could not get current location for last-known record", "error", err)
		return nil
	}

	return p.write(ctx, sample, circleIDs, true)
}

func (p *Publisher) write(ctx context.Context, sample position.Sample, circleIDs []string, lastKnown bool) error {
	if len(circleIDs) == 0 {
		return nil
	}

	userID, err := p.identity.UserID(ctx)
	if err != nil {
		p.logger.Warn("no authenticated user, dropping location sample", "error", err)
		return nil
	}

	recordedAt := sample.CapturedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	records := make([]*store.LocationRecord, 0, len(circleIDs))
	for _, circleID := range circleIDs {
		records = append(records, &store.LocationRecord{
			ID:          uuid.New().String(),
			UserID:      userID,
			CircleID:    circleID,
			Latitude:    sample.Latitude,
			Longitude:   sample.Longitude,
			Accuracy:    sample.Accuracy,
			IsLastKnown: lastKnown,
			RecordedAt:  recordedAt,
		})
	}

	if err := p.store.InsertRecords(ctx, records); err != nil {
		return fmt.Errorf("publishing location to %d circles: %w", len(circleIDs), err)
	}

	p.logger.Debug("published location",
		"circles", len(circleIDs),
		"last_known", lastKnown,
	)
	return nil
}
