// ABOUTME: Coordinator composing tracking, publishing, presence, and preferences
// ABOUTME: Owns the online/offline transitions and the UI-facing read model

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haven-app/havend/internal/identity"
	"github.com/haven-app/havend/internal/permission"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/prefs"
	"github.com/haven-app/havend/internal/presence"
	"github.com/haven-app/havend/internal/publish"
	"github.com/haven-app/havend/internal/tracking"
)

// Status is the read model served to the UI layer.
type Status struct {
	Online          bool
	TrackingActive  bool
	TrackingMode    tracking.Mode
	Permissions     permission.State
	CurrentLocation *position.Sample
	CircleIDs       []string
	MemberCount     int
}

// Coordinator wires the tracking controller, publisher, presence sync, and
// preference store together and drives the online/offline transitions. Circle
// membership is pushed in from outside via SetCircles; the coordinator never
// queries membership itself.
type Coordinator struct {
	source    position.Source
	gate      *permission.Gate
	tracker   *tracking.Controller
	publisher *publish.Publisher
	presence  *presence.Sync
	prefs     prefs.Store
	identity  identity.Provider
	trackOpts tracking.Options
	logger    *slog.Logger

	mu        sync.Mutex
	online    bool
	circleIDs []string
	current   *position.Sample
}

// New creates a Coordinator and loads the persisted online preference.
// A user never seen before, or no authenticated user, defaults to online.
func New(
	ctx context.Context,
	source position.Source,
	gate *permission.Gate,
	publisher *publish.Publisher,
	pres *presence.Sync,
	pf prefs.Store,
	id identity.Provider,
	notifier tracking.Notifier,
	trackOpts tracking.Options,
) (*Coordinator, error) {
	c := &Coordinator{
		source:    source,
		gate:      gate,
		publisher: publisher,
		presence:  pres,
		prefs:     pf,
		identity:  id,
		trackOpts: trackOpts,
		logger:    slog.Default().With("component", "coordinator"),
		online:    true,
	}
	// The tracker publishes through the coordinator so every delivered
	// sample also refreshes the current-location read model.
	c.tracker = tracking.NewController(source, gate, c, notifier)

	userID, err := id.UserID(ctx)
	if err != nil {
		c.logger.Info("no authenticated user at startup, defaulting to online")
		return c, nil
	}
	online, err := pf.Online(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading online preference: %w", err)
	}
	c.online = online
	c.logger.Info("loaded online preference", "user_id", userID, "online", online)
	return c, nil
}

// Publish implements tracking.Publisher: record the sample in the read model,
// then hand it to the real publisher.
func (c *Coordinator) Publish(ctx context.Context, sample position.Sample, circleIDs []string) error {
	c.setCurrent(sample)
	return c.publisher.Publish(ctx, sample, circleIDs)
}

// SetCircles receives a membership push from the outside world. It rebinds
// the presence subscription, retargets any live tracking session, and applies
// the auto-start rule: online with circles but not yet tracking means start.
// The tracking-active guard keeps repeated pushes from looping.
func (c *Coordinator) SetCircles(ctx context.Context, circleIDs []string) error {
	c.mu.Lock()
	c.circleIDs = append([]string(nil), circleIDs...)
	online := c.online
	c.mu.Unlock()

	if err := c.presence.SetCircles(ctx, circleIDs); err != nil {
		return fmt.Errorf("rebinding presence: %w", err)
	}

	if len(circleIDs) == 0 {
		c.tracker.Stop()
		return nil
	}

	if c.tracker.Active() {
		c.tracker.UpdateCircleIDs(circleIDs)
		return nil
	}

	if online {
		return c.startTracking(ctx, circleIDs)
	}
	return nil
}

// SetOnline persists the user's sharing intent, then applies it.
//
// Going offline is strictly ordered: persist, publish the last-known record
// while the watch still holds the position source, then stop tracking. Going
// online persists and starts a session for the current circles.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) error {
	c.persistOnline(ctx, online)

	c.mu.Lock()
	c.online = online
	circleIDs := append([]string(nil), c.circleIDs...)
	c.mu.Unlock()

	if !online {
		if err := c.publisher.PublishLastKnown(ctx, circleIDs); err != nil {
			c.logger.Error("publishing last-known location", "error", err)
		}
		c.tracker.Stop()
		c.logger.Info("went offline")
		return nil
	}

	if len(circleIDs) == 0 {
		c.logger.Info("online with no circles, tracking deferred")
		return nil
	}
	return c.startTracking(ctx, circleIDs)
}

func (c *Coordinator) persistOnline(ctx context.Context, online bool) {
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		c.logger.Warn("no authenticated user, online preference not persisted")
		return
	}
	if err := c.prefs.SetOnline(ctx, userID, online); err != nil {
		c.logger.Error("persisting online preference", "error", err)
	}
}

func (c *Coordinator) startTracking(ctx context.Context, circleIDs []string) error {
	if err := c.tracker.Start(ctx, circleIDs, c.trackOpts); err != nil {
		return fmt.Errorf("starting tracking: %w", err)
	}
	return nil
}

// RequestPermission runs the foreground permission flow.
func (c *Coordinator) RequestPermission(ctx context.Context) (bool, error) {
	return c.gate.RequestForeground(ctx)
}

// RequestBackgroundPermission runs the background permission flow.
func (c *Coordinator) RequestBackgroundPermission(ctx context.Context) (bool, error) {
	return c.gate.RequestBackground(ctx)
}

// RefreshCurrentLocation fetches one fresh position for display and updates
// the read model. It does not publish.
func (c *Coordinator) RefreshCurrentLocation(ctx context.Context) (position.Sample, error) {
	sample, err := c.source.Current(ctx)
	if err != nil {
		return position.Sample{}, fmt.Errorf("fetching current location: %w", err)
	}
	c.setCurrent(sample)
	return sample, nil
}

// Presence returns the current presence snapshot.
func (c *Coordinator) Presence() map[string]presence.MemberPresence {
	return c.presence.Snapshot()
}

// Status returns the full read model.
func (c *Coordinator) Status() Status {
	snap := c.presence.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	var current *position.Sample
	if c.current != nil {
		s := *c.current
		current = &s
	}
	return Status{
		Online:          c.online,
		TrackingActive:  c.tracker.Active(),
		TrackingMode:    c.tracker.CurrentMode(),
		Permissions:     c.gate.State(),
		CurrentLocation: current,
		CircleIDs:       append([]string(nil), c.circleIDs...),
		MemberCount:     len(snap),
	}
}

func (c *Coordinator) setCurrent(sample position.Sample) {
	c.mu.Lock()
	c.current = &sample
	c.mu.Unlock()
}

// Close stops tracking and tears down the presence subscription.
func (c *Coordinator) Close() {
	c.tracker.Stop()
	c.presence.Close()
}
