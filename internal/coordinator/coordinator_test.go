// ABOUTME: Tests for the coordinator
// ABOUTME: Covers online/offline transitions, auto-start, and the read model

package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-app/havend/internal/identity"
	"github.com/haven-app/havend/internal/permission"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/prefs"
	"github.com/haven-app/havend/internal/presence"
	"github.com/haven-app/havend/internal/publish"
	"github.com/haven-app/havend/internal/store"
	"github.com/haven-app/havend/internal/tracking"
)

// fakeSource tracks watch lifecycle and records when one-shot fetches happen
// relative to watch teardown.
type fakeSource struct {
	mu           sync.Mutex
	fn           func(position.Sample)
	watches      int
	stops        int
	fetches      int
	stopsAtFetch []int
}

func (f *fakeSource) Current(ctx context.Context) (position.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.stopsAtFetch = append(f.stopsAtFetch, f.stops)
	return position.Sample{Latitude: 52.52, Longitude: 13.405, CapturedAt: time.Now().UTC()}, nil
}

func (f *fakeSource) Watch(ctx context.Context, opts position.WatchOptions, fn func(position.Sample)) (position.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	f.watches++
	return sourceWatch{f}, nil
}

func (f *fakeSource) SupportsBackground() bool { return false }

func (f *fakeSource) emit(s position.Sample) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

type sourceWatch struct{ f *fakeSource }

func (w sourceWatch) Stop() {
	w.f.mu.Lock()
	w.f.stops++
	w.f.fn = nil
	w.f.mu.Unlock()
}

type grantAll struct{}

func (grantAll) PromptForeground(ctx context.Context) (bool, error) { return true, nil }
func (grantAll) PromptBackground(ctx context.Context) (bool, error) { return true, nil }
func (grantAll) HasBackgroundConcept() bool                         { return false }
func (grantAll) PersistsForegroundGrant() bool                      { return true }

type denyAll struct{ grantAll }

func (denyAll) PromptForeground(ctx context.Context) (bool, error) { return false, nil }

type harness struct {
	coord  *Coordinator
	source *fakeSource
	store  *store.MockStore
	prefs  *prefs.MemoryStore
}

func setup(t *testing.T, prompter permission.Prompter) *harness {
	t.Helper()
	st := store.NewMockStore()
	pf := prefs.NewMemoryStore()
	id := identity.NewStaticProvider("user-1")
	source := &fakeSource{}
	gate := permission.NewGate(prompter)
	pub := publish.NewPublisher(st, id, source)
	pres := presence.NewSync(st, nil)

	coord, err := New(context.Background(), source, gate, pub, pres, pf, id, tracking.NopNotifier{}, tracking.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		coord.Close()
		st.Close()
	})
	return &harness{coord: coord, source: source, store: st, prefs: pf}
}

func lastKnownCount(records []*store.LocationRecord) int {
	n := 0
	for _, rec := range records {
		if rec.IsLastKnown {
			n++
		}
	}
	return n
}

func TestCoordinator_AutoStartOnCircles(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	assert.Equal(t, 1, h.source.watches, "online with circles starts tracking")

	status := h.coord.Status()
	assert.True(t, status.Online)
	assert.True(t, status.TrackingActive)
}

func TestCoordinator_RepeatedPushDoesNotRestart(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1", "c2"}))

	assert.Equal(t, 1, h.source.watches, "live session retargets, never restarts")

	h.source.emit(position.Sample{Latitude: 1, Longitude: 2, CapturedAt: time.Now()})
	records := h.store.Records()
	require.Len(t, records, 2, "sample fans out to the updated set")
}

func TestCoordinator_EmptyCirclesStopsTracking(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	require.NoError(t, h.coord.SetCircles(context.Background(), nil))

	assert.False(t, h.coord.Status().TrackingActive)
	assert.Equal(t, 1, h.source.stops)
}

func TestCoordinator_GoOfflinePublishesLastKnownBeforeStop(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	require.NoError(t, h.coord.SetOnline(context.Background(), false))

	records := h.store.Records()
	assert.Equal(t, 1, lastKnownCount(records), "exactly one last-known record")
	assert.False(t, h.coord.Status().TrackingActive)

	// The last-known fetch happened before the watch was released
	require.NotEmpty(t, h.source.stopsAtFetch)
	assert.Equal(t, 0, h.source.stopsAtFetch[len(h.source.stopsAtFetch)-1])

	// And the preference survived
	online, err := h.prefs.Online(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestCoordinator_GoOnlineStartsTracking(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	require.NoError(t, h.coord.SetOnline(context.Background(), false))
	require.NoError(t, h.coord.SetOnline(context.Background(), true))

	assert.True(t, h.coord.Status().TrackingActive)
	assert.Equal(t, 2, h.source.watches)
}

func TestCoordinator_OfflinePreferenceBlocksAutoStart(t *testing.T) {
	st := store.NewMockStore()
	defer st.Close()
	pf := prefs.NewMemoryStore()
	require.NoError(t, pf.SetOnline(context.Background(), "user-1", false))

	id := identity.NewStaticProvider("user-1")
	source := &fakeSource{}
	gate := permission.NewGate(grantAll{})
	pub := publish.NewPublisher(st, id, source)
	pres := presence.NewSync(st, nil)

	coord, err := New(context.Background(), source, gate, pub, pres, pf, id, tracking.NopNotifier{}, tracking.Options{})
	require.NoError(t, err)
	defer coord.Close()

	require.NoError(t, coord.SetCircles(context.Background(), []string{"c1"}))
	assert.False(t, coord.Status().Online, "persisted preference loaded at startup")
	assert.Equal(t, 0, source.watches, "offline user must not auto-start")
}

func TestCoordinator_PermissionDeniedSurfaced(t *testing.T) {
	h := setup(t, denyAll{})

	err := h.coord.SetCircles(context.Background(), []string{"c1"})
	assert.ErrorIs(t, err, tracking.ErrPermissionDenied)
	assert.False(t, h.coord.Status().TrackingActive)
}

func TestCoordinator_RefreshCurrentLocationDoesNotPublish(t *testing.T) {
	h := setup(t, grantAll{})

	sample, err := h.coord.RefreshCurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 52.52, sample.Latitude)
	assert.Equal(t, 0, h.store.RecordCount())

	status := h.coord.Status()
	require.NotNil(t, status.CurrentLocation)
	assert.Equal(t, 52.52, status.CurrentLocation.Latitude)
}

func TestCoordinator_TrackedSampleUpdatesReadModel(t *testing.T) {
	h := setup(t, grantAll{})

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	h.source.emit(position.Sample{Latitude: 40.4, Longitude: -3.7, CapturedAt: time.Now()})

	status := h.coord.Status()
	require.NotNil(t, status.CurrentLocation)
	assert.Equal(t, 40.4, status.CurrentLocation.Latitude)
	assert.Equal(t, 1, h.store.RecordCount())
}

func TestCoordinator_PresenceFollowsCircles(t *testing.T) {
	h := setup(t, grantAll{})

	now := time.Now().UTC()
	require.NoError(t, h.store.InsertRecords(context.Background(), []*store.LocationRecord{{
		ID: "r1", UserID: "friend", CircleID: "c1", Latitude: 1, Longitude: 2, RecordedAt: now,
	}}))

	require.NoError(t, h.coord.SetCircles(context.Background(), []string{"c1"}))
	snap := h.coord.Presence()
	require.Len(t, snap, 1)
	assert.Contains(t, snap, "friend")
	assert.Equal(t, 1, h.coord.Status().MemberCount)
}

func TestCoordinator_PermissionRequests(t *testing.T) {
	h := setup(t, grantAll{})

	granted, err := h.coord.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	// No background concept on this platform
	granted, err = h.coord.RequestBackgroundPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}
