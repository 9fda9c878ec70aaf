// ABOUTME: Sensor-backed position source for devices with native location APIs
// ABOUTME: Supports change-triggered watches and background delivery

package position

import (
	"context"
	"fmt"
	"log/slog"
)

// Device is the native location sensor API. The platform layer provides the
// real implementation; tests provide fakes.
type Device interface {
	// Available reports whether location services are enabled.
	Available(ctx context.Context) bool

	// Read fetches one position. The caller bounds it with a context.
	Read(ctx context.Context) (Sample, error)

	// StartUpdates begins change-triggered delivery honoring the interval
	// and distance thresholds (OR semantics). Returns a cancel function.
	StartUpdates(opts WatchOptions, fn func(Sample)) (func(), error)

	// SupportsBackground reports whether updates continue while backgrounded.
	SupportsBackground() bool
}

// SensorSource adapts a native Device to the Source interface.
type SensorSource struct {
	device Device
	logger *slog.Logger
}

// NewSensorSource creates a Source backed by a native location sensor.
func NewSensorSource(device Device) *SensorSource {
	return &SensorSource{
		device: device,
		logger: slog.Default().With("component", "position"),
	}
}

// Current fetches one position from the sensor, bounded by CurrentTimeout.
func (s *SensorSource) Current(ctx context.Context) (Sample, error) {
	if !s.device.Available(ctx) {
		return Sample{}, fmt.Errorf("location services disabled: %w", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, CurrentTimeout)
	defer cancel()

	sample, err := s.device.Read(ctx)
	if err != nil {
		s.logger.Debug("sensor read failed", "error", err)
		return Sample{}, fmt.Errorf("reading sensor: %w", ErrUnavailable)
	}
	return sample, nil
}

// Watch starts change-triggered delivery on the sensor.
func (s *SensorSource) Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (Watch, error) {
	opts = opts.withDefaults()

	if !s.device.Available(ctx) {
		return nil, fmt.Errorf("location services disabled: %w", ErrUnavailable)
	}

	cancel, err := s.device.StartUpdates(opts, fn)
	if err != nil {
		return nil, fmt.Errorf("starting sensor updates: %w", err)
	}

	s.logger.Debug("sensor watch started",
		"interval", opts.Interval,
		"distance_m", opts.Distance,
		"background", opts.Background,
	)
	return newWatch(cancel), nil
}

// SupportsBackground reports the sensor's background capability.
func (s *SensorSource) SupportsBackground() bool {
	return s.device.SupportsBackground()
}

var _ Source = (*SensorSource)(nil)
