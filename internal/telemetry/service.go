// Package telemetry ties enumeration and the vendor backends together: it
// dispatches reads to the backend matching each device, picks a primary GPU
// and polls all devices on a fixed interval.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

// Enumerator lists the GPUs present on the host.
type Enumerator interface {
	Enumerate(ctx context.Context) []gpu.Device
}

// Service is the single entry point for device discovery and stats reads.
// Backend calls are serialized, so the Service may be shared between the
// poller and HTTP handlers.
type Service struct {
	enumerator Enumerator
	backends   []gpu.Backend
	logger     *slog.Logger

	mu         sync.Mutex
	devices    []gpu.Device
	enumerated bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service. Backends are consulted in order; the first
// whose Supports matches a device serves it.
func NewService(enumerator Enumerator, backends []gpu.Backend, opts ...ServiceOption) *Service {
	s := &Service{
		enumerator: enumerator,
		backends:   backends,
		logger:     slog.Default().With("component", "telemetry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Devices returns the device list, enumerating on first use only.
func (s *Service) Devices(ctx context.Context) []gpu.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enumerated {
		s.enumerateLocked(ctx)
	}
	return append([]gpu.Device(nil), s.devices...)
}

// Refresh re-enumerates devices and drops backend caches keyed on them.
// Existing Device values are not modified.
func (s *Service) Refresh(ctx context.Context) []gpu.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.backends {
		if inv, ok := b.(gpu.Invalidator); ok {
			inv.Invalidate()
		}
	}
	s.enumerateLocked(ctx)
	return append([]gpu.Device(nil), s.devices...)
}

func (s *Service) enumerateLocked(ctx context.Context) {
	s.devices = s.enumerator.Enumerate(ctx)
	s.enumerated = true

	for _, d := range s.devices {
		s.logger.Info("gpu found",
			"card", d.ID(),
			"vendor", d.Vendor,
			"name", d.Name,
			"bus_id", d.PCIBusID,
			"backend", s.backendNameLocked(d),
		)
	}
	if len(s.devices) == 0 {
		s.logger.Info("no gpu found")
	}
}

// ReadStatsFor reads dev through the first backend that supports it. When no
// backend matches, or nothing plausible was obtained, it returns false and a
// record with every field at its sentinel.
func (s *Service) ReadStatsFor(dev gpu.Device) (bool, gpu.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.backendForLocked(dev)
	if b == nil {
		return false, gpu.NewStats()
	}

	ok, stats := b.ReadStats(dev)
	if !ok {
		return false, gpu.NewStats()
	}
	stats = stats.Sanitize()
	if !stats.HasData() {
		return false, gpu.NewStats()
	}
	return true, stats
}

// ReadExtendedFor returns the vendor-specific stats structure for dev.
// It reports false when the serving backend has no extended read.
func (s *Service) ReadExtendedFor(dev gpu.Device) (bool, any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.backendForLocked(dev).(gpu.ExtendedBackend)
	if !ok {
		return false, nil
	}
	return b.ReadExtended(dev)
}

// BackendFor returns the name of the backend serving dev, or "" if none.
func (s *Service) BackendFor(dev gpu.Device) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendNameLocked(dev)
}

// Backends returns the configured backends in dispatch order.
func (s *Service) Backends() []gpu.Backend {
	return append([]gpu.Backend(nil), s.backends...)
}

// Close releases backend resources such as the NVML handle.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) backendForLocked(dev gpu.Device) gpu.Backend {
	for _, b := range s.backends {
		if b.Supports(dev) {
			return b
		}
	}
	return nil
}

func (s *Service) backendNameLocked(dev gpu.Device) string {
	if b := s.backendForLocked(dev); b != nil {
		return b.Name()
	}
	return ""
}
