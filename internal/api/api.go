// ABOUTME: HTTP API handlers exposing the coordinator read model and operations
// ABOUTME: Provides the JSON surface consumed by UI layers

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/haven-app/havend/internal/coordinator"
	"github.com/haven-app/havend/internal/position"
	"github.com/haven-app/havend/internal/presence"
	"github.com/haven-app/havend/internal/tracking"
)

// Coordinator is the slice of the coordinator surface the API serves.
type Coordinator interface {
	Status() coordinator.Status
	Presence() map[string]presence.MemberPresence
	SetOnline(ctx context.Context, online bool) error
	SetCircles(ctx context.Context, circleIDs []string) error
	RequestPermission(ctx context.Context) (bool, error)
	RequestBackgroundPermission(ctx context.Context) (bool, error)
	RefreshCurrentLocation(ctx context.Context) (position.Sample, error)
}

// Reporter accepts position fixes pushed in by an external device.
type Reporter interface {
	Offer(sample position.Sample)
}

// MemberResponse is the JSON form of one presence entry.
type MemberResponse struct {
	UserID      string   `json:"user_id"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	Timestamp   string   `json:"timestamp"`
	CircleIDs   []string `json:"circle_ids"`
	IsLastKnown bool     `json:"is_last_known"`
}

// PresenceResponse is the JSON response for GET /api/presence.
type PresenceResponse struct {
	Members []MemberResponse `json:"members"`
}

// LocationResponse is the JSON form of the device's own position.
type LocationResponse struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	CapturedAt string   `json:"captured_at"`
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Online            bool              `json:"online"`
	TrackingActive    bool              `json:"tracking_active"`
	TrackingMode      string            `json:"tracking_mode,omitempty"`
	ForegroundGranted bool              `json:"foreground_granted"`
	BackgroundGranted bool              `json:"background_granted"`
	CircleIDs         []string          `json:"circle_ids"`
	MemberCount       int               `json:"member_count"`
	Location          *LocationResponse `json:"location,omitempty"`
}

// SetOnlineRequest is the JSON request body for POST /api/online.
type SetOnlineRequest struct {
	Online bool `json:"online"`
}

// SetCirclesRequest is the JSON request body for POST /api/circles.
type SetCirclesRequest struct {
	CircleIDs []string `json:"circle_ids"`
}

// ReportLocationRequest is the JSON request body for POST /api/location/report.
type ReportLocationRequest struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
	CapturedAt string   `json:"captured_at,omitempty"`
}

// PermissionResponse is the JSON response for permission operations.
type PermissionResponse struct {
	Granted bool `json:"granted"`
}

// Server serves the havend HTTP API.
type Server struct {
	coord    Coordinator
	reporter Reporter // may be nil when no push-fed source is wired
	logger   *slog.Logger
}

// NewServer creates an API server over the given coordinator. reporter may
// be nil; the report endpoint then rejects fixes.
func NewServer(coord Coordinator, reporter Reporter) *Server {
	return &Server{
		coord:    coord,
		reporter: reporter,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes registers all API routes on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/presence", s.handlePresence)
	mux.HandleFunc("/api/location", s.handleLocation)
	mux.HandleFunc("/api/location/refresh", s.handleRefreshLocation)
	mux.HandleFunc("/api/location/report", s.handleReportLocation)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/online", s.handleSetOnline)
	mux.HandleFunc("/api/circles", s.handleSetCircles)
	mux.HandleFunc("/api/permissions/foreground", s.handleForegroundPermission)
	mux.HandleFunc("/api/permissions/background", s.handleBackgroundPermission)
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePresence handles GET /api/presence requests.
// It returns every member's latest known position, sorted by user id.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap := s.coord.Presence()
	members := make([]MemberResponse, 0, len(snap))
	for _, entry := range snap {
		members = append(members, MemberResponse{
			UserID:      entry.UserID,
			Latitude:    entry.Latitude,
			Longitude:   entry.Longitude,
			Accuracy:    entry.Accuracy,
			Timestamp:   entry.Timestamp.UTC().Format(time.RFC3339),
			CircleIDs:   entry.CircleIDs,
			IsLastKnown: entry.IsLastKnown,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PresenceResponse{Members: members})
}

// handleLocation handles GET /api/location requests.
// Returns 404 until a position has been observed.
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := s.coord.Status()
	if status.CurrentLocation == nil {
		s.sendJSONError(w, http.StatusNotFound, "no location observed yet")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(locationResponse(*status.CurrentLocation))
}

// handleRefreshLocation handles POST /api/location/refresh requests.
// It fetches one fresh position for display without publishing it.
func (s *Server) handleRefreshLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sample, err := s.coord.RefreshCurrentLocation(r.Context())
	if err != nil {
		if errors.Is(err, position.ErrUnavailable) {
			s.sendJSONError(w, http.StatusServiceUnavailable, "position unavailable")
			return
		}
		s.logger.Error("refreshing location", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "could not refresh location")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(locationResponse(sample))
}

// handleReportLocation handles POST /api/location/report requests.
// A device bridge pushes raw fixes here; threshold filtering happens in the
// position source, not at the API boundary.
func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.reporter == nil {
		s.sendJSONError(w, http.StatusNotImplemented, "no push-fed position source configured")
		return
	}

	var req ReportLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		s.sendJSONError(w, http.StatusBadRequest, "latitude/longitude out of range")
		return
	}

	sample := position.Sample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.CapturedAt != "" {
		ts, err := time.Parse(time.RFC3339, req.CapturedAt)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "captured_at must be RFC3339")
			return
		}
		sample.CapturedAt = ts
	}

	s.reporter.Offer(sample)
	w.WriteHeader(http.StatusAccepted)
}

// handleSetCircles handles POST /api/circles requests.
// Circle membership is owned by an external system; this is where its
// pushes arrive.
func (s *Server) handleSetCircles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SetCirclesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.coord.SetCircles(r.Context(), req.CircleIDs); err != nil {
		if errors.Is(err, tracking.ErrPermissionDenied) {
			s.sendJSONError(w, http.StatusForbidden, "location permission denied")
			return
		}
		s.logger.Error("setting circles", "circles", len(req.CircleIDs), "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "could not update circles")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"circles": len(req.CircleIDs)})
}

// handleStatus handles GET /api/status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := s.coord.Status()
	resp := StatusResponse{
		Online:            status.Online,
		TrackingActive:    status.TrackingActive,
		TrackingMode:      string(status.TrackingMode),
		ForegroundGranted: status.Permissions.ForegroundGranted,
		BackgroundGranted: status.Permissions.BackgroundGranted,
		CircleIDs:         status.CircleIDs,
		MemberCount:       status.MemberCount,
	}
	if status.CurrentLocation != nil {
		loc := locationResponse(*status.CurrentLocation)
		resp.Location = &loc
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleSetOnline handles POST /api/online requests.
func (s *Server) handleSetOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SetOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.coord.SetOnline(r.Context(), req.Online); err != nil {
		if errors.Is(err, tracking.ErrPermissionDenied) {
			s.sendJSONError(w, http.StatusForbidden, "location permission denied")
			return
		}
		s.logger.Error("setting online status", "online", req.Online, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "could not change online status")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"online": req.Online})
}

// handleForegroundPermission handles POST /api/permissions/foreground requests.
func (s *Server) handleForegroundPermission(w http.ResponseWriter, r *http.Request) {
	s.handlePermission(w, r, s.coord.RequestPermission)
}

// handleBackgroundPermission handles POST /api/permissions/background requests.
func (s *Server) handleBackgroundPermission(w http.ResponseWriter, r *http.Request) {
	s.handlePermission(w, r, s.coord.RequestBackgroundPermission)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request, request func(context.Context) (bool, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	granted, err := request(r.Context())
	if err != nil {
		s.logger.Error("requesting permission", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "permission request failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PermissionResponse{Granted: granted})
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func locationResponse(sample position.Sample) LocationResponse {
	return LocationResponse{
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Accuracy:   sample.Accuracy,
		CapturedAt: sample.CapturedAt.UTC().Format(time.RFC3339),
	}
}
