// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Uses a stub coordinator and httptest recorders

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-app/havend/internal/coordinator"
	"github.com/haven-app/havend/internal/permission"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/presence"
	"github.com/haven-app/havend/internal/tracking"
)

type stubCoordinator struct {
	status     coordinator.Status
	members    map[string]presence.MemberPresence
	onlineSet  *bool
	onlineErr  error
	refreshErr error
	sample     position.Sample
	granted    bool
	circlesSet []string
	circlesErr error
}

func (s *stubCoordinator) Status() coordinator.Status                   { return s.status }
func (s *stubCoordinator) Presence() map[string]presence.MemberPresence { return s.members }

func (s *stubCoordinator) SetCircles(ctx context.Context, circleIDs []string) error {
	if s.circlesErr != nil {
		return s.circlesErr
	}
	s.circlesSet = circleIDs
	return nil
}

func (s *stubCoordinator) SetOnline(ctx context.Context, online bool) error {
	if s.onlineErr != nil {
		return s.onlineErr
	}
	s.onlineSet = &online
	return nil
}

func (s *stubCoordinator) RequestPermission(ctx context.Context) (bool, error) {
	return s.granted, nil
}

func (s *stubCoordinator) RequestBackgroundPermission(ctx context.Context) (bool, error) {
	return s.granted, nil
}

func (s *stubCoordinator) RefreshCurrentLocation(ctx context.Context) (position.Sample, error) {
	if s.refreshErr != nil {
		return position.Sample{}, s.refreshErr
	}
	return s.sample, nil
}

func do(t *testing.T, stub *stubCoordinator, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	mux := NewServer(stub, nil).Routes()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, &stubCoordinator{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPresence_SortedByUserID(t *testing.T) {
	acc := 12.5
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubCoordinator{members: map[string]presence.MemberPresence{
		"zara": {UserID: "zara", Latitude: 1, Longitude: 2, Timestamp: ts, CircleIDs: []string{"c1"}},
		"alex": {UserID: "alex", Latitude: 3, Longitude: 4, Accuracy: &acc, Timestamp: ts, CircleIDs: []string{"c1", "c2"}, IsLastKnown: true},
	}}

	rec := do(t, stub, http.MethodGet, "/api/presence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PresenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 2)
	assert.Equal(t, "alex", resp.Members[0].UserID)
	assert.Equal(t, "zara", resp.Members[1].UserID)
	assert.Equal(t, &acc, resp.Members[0].Accuracy)
	assert.True(t, resp.Members[0].IsLastKnown)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Members[0].Timestamp)
	assert.Nil(t, resp.Members[1].Accuracy)
}

func TestPresence_MethodNotAllowed(t *testing.T) {
	rec := do(t, &stubCoordinator{}, http.MethodPost, "/api/presence", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLocation_NotObservedYet(t *testing.T) {
	rec := do(t, &stubCoordinator{}, http.MethodGet, "/api/location", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocation_Observed(t *testing.T) {
	stub := &stubCoordinator{status: coordinator.Status{
		CurrentLocation: &position.Sample{Latitude: 52.52, Longitude: 13.405, CapturedAt: time.Now().UTC()},
	}}

	rec := do(t, stub, http.MethodGet, "/api/location", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 52.52, resp.Latitude)
}

func TestRefreshLocation(t *testing.T) {
	stub := &stubCoordinator{sample: position.Sample{Latitude: 9, Longitude: 8, CapturedAt: time.Now().UTC()}}

	rec := do(t, stub, http.MethodPost, "/api/location/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 9.0, resp.Latitude)
}

func TestRefreshLocation_Unavailable(t *testing.T) {
	stub := &stubCoordinator{refreshErr: position.ErrUnavailable}
	rec := do(t, stub, http.MethodPost, "/api/location/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	stub := &stubCoordinator{status: coordinator.Status{
		Online:         true,
		TrackingActive: true,
		TrackingMode:   tracking.ModeBackground,
		Permissions:    permission.State{ForegroundGranted: true, BackgroundGranted: true},
		CircleIDs:      []string{"c1"},
		MemberCount:    3,
	}}

	rec := do(t, stub, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Online)
	assert.True(t, resp.TrackingActive)
	assert.Equal(t, "background", resp.TrackingMode)
	assert.True(t, resp.ForegroundGranted)
	assert.Equal(t, []string{"c1"}, resp.CircleIDs)
	assert.Equal(t, 3, resp.MemberCount)
	assert.Nil(t, resp.Location)
}

func TestSetOnline(t *testing.T) {
	stub := &stubCoordinator{}
	rec := do(t, stub, http.MethodPost, "/api/online", []byte(`{"online": false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.onlineSet)
	assert.False(t, *stub.onlineSet)
}

func TestSetOnline_InvalidBody(t *testing.T) {
	rec := do(t, &stubCoordinator{}, http.MethodPost, "/api/online", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetOnline_PermissionDenied(t *testing.T) {
	stub := &stubCoordinator{onlineErr: tracking.ErrPermissionDenied}
	rec := do(t, stub, http.MethodPost, "/api/online", []byte(`{"online": true}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "permission")
}

func TestSetCircles(t *testing.T) {
	stub := &stubCoordinator{}
	rec := do(t, stub, http.MethodPost, "/api/circles", []byte(`{"circle_ids": ["c1", "c2"]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"c1", "c2"}, stub.circlesSet)
}

func TestSetCircles_PermissionDenied(t *testing.T) {
	stub := &stubCoordinator{circlesErr: tracking.ErrPermissionDenied}
	rec := do(t, stub, http.MethodPost, "/api/circles", []byte(`{"circle_ids": ["c1"]}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportLocation(t *testing.T) {
	src := position.NewPushSource()
	mux := NewServer(&stubCoordinator{}, src).Routes()

	body := []byte(`{"latitude": 48.85, "longitude": 2.35, "accuracy": 5, "captured_at": "2026-03-01T12:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/location/report", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	sample, err := src.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48.85, sample.Latitude)
	require.NotNil(t, sample.Accuracy)
	assert.Equal(t, 5.0, *sample.Accuracy)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), sample.CapturedAt)
}

func TestReportLocation_Validation(t *testing.T) {
	src := position.NewPushSource()
	mux := NewServer(&stubCoordinator{}, src).Routes()

	for name, body := range map[string]string{
		"latitude out of range": `{"latitude": 91, "longitude": 0}`,
		"bad timestamp":         `{"latitude": 1, "longitude": 2, "captured_at": "yesterday"}`,
		"not json":              `{nope`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/location/report", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestReportLocation_NoReporterWired(t *testing.T) {
	rec := do(t, &stubCoordinator{}, http.MethodPost, "/api/location/report", []byte(`{"latitude": 1, "longitude": 2}`))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestPermissionEndpoints(t *testing.T) {
	stub := &stubCoordinator{granted: true}

	for _, path := range []string{"/api/permissions/foreground", "/api/permissions/background"} {
		rec := do(t, stub, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp PermissionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Granted)
	}

	rec := do(t, stub, http.MethodGet, "/api/permissions/foreground", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
