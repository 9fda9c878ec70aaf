// ABOUTME: Tracking controller owning the lifecycle of an active position watch
// ABOUTME: Handles permission gating, background fallback, and circle rebinding

package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haven-app/havend/internal/permission"
	"github.com/haven-app/havend/internal/position"
)

// ErrPermissionDenied is returned when foreground location permission was
// refused. Recoverable: the UI may prompt again later.
var ErrPermissionDenied = errors.New("location permission denied")

// State is the controller lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
)

// Mode is the delivery mode of an active session.
type Mode string

const (
	ModeForeground Mode = "foreground"
	ModeBackground Mode = "background"
)

// Publisher is the outbound write path for emitted samples.
type Publisher interface {
	Publish(ctx context.Context, sample position.Sample, circleIDs []string) error
}

// Notifier shows the persistent visible indicator required by platform
// policy while a background watch is running.
type Notifier interface {
	Show(title, body string)
	Hide()
}

// NopNotifier is a Notifier for environments with no notification surface.
type NopNotifier struct{}

func (NopNotifier) Show(title, body string) {}
func (NopNotifier) Hide()                   {}

// Options controls one tracking session.
type Options struct {
	Interval time.Duration // sampling interval lower bound, default 10s
	Distance float64       // movement threshold in meters, default 10

	// DisableBackground opts out of background delivery even when the
	// platform supports it.
	DisableBackground bool

	// OnBackgroundPermission is invoked with the background grant result
	// when background delivery was attempted. Degradation is reported
	// here, never as an error.
	OnBackgroundPermission func(granted bool)

	// Notification text shown while a background watch runs.
	NotificationTitle string
	NotificationBody  string
}

// Controller owns the live watch handle and the target circle set of one
// tracking session. All session state is instance state: two controllers
// never interfere.
type Controller struct {
	source    position.Source
	gate      *permission.Gate
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	mode      Mode
	gen       uint64 // bumped per Start; a stale start attempt may not commit
	circleIDs []string
	watch     position.Watch
	notified  bool
}

// NewController creates an idle tracking controller.
func NewController(source position.Source, gate *permission.Gate, publisher Publisher, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Controller{
		source:    source,
		gate:      gate,
		publisher: publisher,
		notifier:  notifier,
		logger:    slog.Default().With("component", "tracking"),
		state:     StateIdle,
	}
}

// Start begins a tracking session publishing to the given circles.
// Any existing session is stopped first, so restart is idempotent.
// An empty circle set is a logged no-op. Foreground permission denial
// returns ErrPermissionDenied with the controller back in Idle.
func (c *Controller) Start(ctx context.Context, circleIDs []string, opts Options) error {
	c.mu.Lock()
	c.stopLocked()

	if len(circleIDs) == 0 {
		c.mu.Unlock()
		c.logger.Info("no circles to track location for")
		return nil
	}

	c.state = StateStarting
	c.circleIDs = append([]string(nil), circleIDs...)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	granted, err := c.gate.RequestForeground(ctx)
	if err != nil {
		c.abortStart(gen)
		return fmt.Errorf("requesting foreground permission: %w", err)
	}
	if !granted {
		c.abortStart(gen)
		return ErrPermissionDenied
	}

	c.logger.Info("starting location tracking", "circles", len(circleIDs))

	mode := ModeForeground
	if c.source.SupportsBackground() && !opts.DisableBackground {
		bgGranted, err := c.gate.RequestBackground(ctx)
		if err != nil {
			// Degradation, not failure: fall through to foreground
			c.logger.Warn("background permission request failed", "error", err)
			bgGranted = false
		}
		if opts.OnBackgroundPermission != nil {
			opts.OnBackgroundPermission(bgGranted)
		}
		if bgGranted {
			mode = ModeBackground
		} else {
			c.logger.Warn("background permission not granted, falling back to foreground tracking")
		}
	}

	watchOpts := position.WatchOptions{
		Interval:   opts.Interval,
		Distance:   opts.Distance,
		Background: mode == ModeBackground,
	}

	// Watch runs without holding c.mu: sources may deliver their first
	// sample synchronously from inside Watch, and onSample takes the lock.
	watch, err := c.source.Watch(ctx, watchOpts, c.onSample)
	if err != nil {
		c.abortStart(gen)
		return fmt.Errorf("starting position watch: %w", err)
	}

	c.mu.Lock()
	if c.state != StateStarting || c.gen != gen {
		// A Stop or a newer Start raced this one; the session is theirs.
		c.mu.Unlock()
		watch.Stop()
		return nil
	}
	if mode == ModeBackground {
		title, body := opts.NotificationTitle, opts.NotificationBody
		if title == "" {
			title = "Sharing location"
		}
		if body == "" {
			body = "Your location is being shared with your circles"
		}
		c.notifier.Show(title, body)
		c.notified = true
	}
	c.watch = watch
	c.mode = mode
	c.state = StateActive
	c.mu.Unlock()

	c.logger.Info("location tracking active", "mode", mode)
	return nil
}

// abortStart returns the controller to Idle unless a newer session
// already claimed it.
func (c *Controller) abortStart(gen uint64) {
	c.mu.Lock()
	if c.state == StateStarting && c.gen == gen {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// onSample forwards one emitted sample to the publisher for the session's
// current circle set. Publish failures are absorbed here; the next sample
// retries naturally.
func (c *Controller) onSample(sample position.Sample) {
	c.mu.Lock()
	circleIDs := append([]string(nil), c.circleIDs...)
	c.mu.Unlock()

	if len(circleIDs) == 0 {
		return
	}

	if err := c.publisher.Publish(context.Background(), sample, circleIDs); err != nil {
		c.logger.Error("publishing location sample", "error", err)
	}
}

// UpdateCircleIDs mutates the live session's target circle set without
// tearing down the watch. The next sample publishes to the new set.
func (c *Controller) UpdateCircleIDs(circleIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circleIDs = append([]string(nil), circleIDs...)
	c.logger.Info("updated circles for location tracking", "circles", len(circleIDs))
}

// Stop cancels whichever watch is active and returns to Idle.
// Safe to call when already idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.watch != nil {
		c.watch.Stop()
		c.watch = nil
		c.logger.Info("location tracking stopped", "mode", c.mode)
	}
	if c.notified {
		c.notifier.Hide()
		c.notified = false
	}
	c.state = StateIdle
	c.mode = ""
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateActive
}

// CurrentMode returns the delivery mode of the active session, or "" when idle.
func (c *Controller) CurrentMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
