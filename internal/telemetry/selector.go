package telemetry

import (
	"log/slog"
	"sort"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

// SlotState is the state of the primary-GPU slot.
type SlotState int

const (
	// SlotNoDevice means enumeration found no GPU.
	SlotNoDevice SlotState = iota
	// SlotProbing means devices exist but none has been selected yet.
	SlotProbing
	// SlotSelected means a primary device is bound and read each tick.
	SlotSelected
)

func (s SlotState) String() string {
	switch s {
	case SlotNoDevice:
		return "no_device"
	case SlotProbing:
		return "probing"
	case SlotSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// ReadFunc reads stats for one device.
type ReadFunc func(gpu.Device) (bool, gpu.Stats)

// Select picks the primary GPU. Devices are visited in vendor priority order
// (NVIDIA, AMD, Intel, Unknown) keeping enumeration order within a vendor.
// The first device reporting utilization above zero wins immediately;
// otherwise the first device that returned data at all is chosen.
func Select(devices []gpu.Device, read ReadFunc) (gpu.Device, gpu.Stats, bool) {
	ordered := append([]gpu.Device(nil), devices...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Vendor.Priority() < ordered[j].Vendor.Priority()
	})

	var (
		fallback      gpu.Device
		fallbackStats gpu.Stats
		found         bool
	)
	for _, dev := range ordered {
		ok, stats := read(dev)
		if !ok {
			continue
		}
		if stats.UtilizationPercent > 0 {
			return dev, stats, true
		}
		if !found {
			fallback, fallbackStats, found = dev, stats, true
		}
	}
	if !found {
		return gpu.Device{}, gpu.NewStats(), false
	}
	return fallback, fallbackStats, true
}

// Selector holds the primary-GPU slot across ticks. Once a device is
// selected it is re-read every tick; a failed read triggers selection again
// in the same tick. It is not safe for concurrent use.
type Selector struct {
	logger  *slog.Logger
	state   SlotState
	current gpu.Device
}

// NewSelector creates a Selector in the no-device state.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger.With("component", "selector")}
}

// State returns the current slot state.
func (s *Selector) State() SlotState {
	return s.state
}

// Current returns the selected device, if any.
func (s *Selector) Current() (gpu.Device, bool) {
	return s.current, s.state == SlotSelected
}

// Tick advances the slot for one polling interval and returns the primary
// device with its stats.
func (s *Selector) Tick(devices []gpu.Device, read ReadFunc) (gpu.Device, gpu.Stats, bool) {
	if len(devices) == 0 {
		if s.state == SlotSelected {
			s.logger.Info("primary gpu gone", "card", s.current.ID())
		}
		s.state = SlotNoDevice
		s.current = gpu.Device{}
		return gpu.Device{}, gpu.NewStats(), false
	}

	if s.state == SlotSelected {
		if !containsDevice(devices, s.current) {
			s.logger.Info("primary gpu no longer enumerated", "card", s.current.ID())
		} else if ok, stats := read(s.current); ok {
			return s.current, stats, true
		} else {
			s.logger.Warn("primary gpu read failed, reselecting", "card", s.current.ID())
		}
		s.state = SlotProbing
		s.current = gpu.Device{}
	}

	s.state = SlotProbing
	dev, stats, ok := Select(devices, read)
	if !ok {
		return gpu.Device{}, stats, false
	}

	s.state = SlotSelected
	s.current = dev
	s.logger.Info("primary gpu selected",
		"card", dev.ID(),
		"vendor", dev.Vendor,
		"name", dev.Name,
		"utilization", stats.UtilizationPercent,
	)
	return dev, stats, true
}

func containsDevice(devices []gpu.Device, dev gpu.Device) bool {
	for _, d := range devices {
		if d.CardPath == dev.CardPath {
			return true
		}
	}
	return false
}
