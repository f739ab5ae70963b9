package gpu

// Unavailable is the sentinel for integer stats fields that could not be read.
const Unavailable = -1

// Stats is one point-in-time reading. Every field is independently optional:
// numeric fields hold Unavailable, memory fields hold 0 and strings are empty
// unless a read from the underlying source succeeded.
type Stats struct {
	UtilizationPercent int     `json:"utilization_percent"`
	MemoryUsedBytes    uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes"`
	TemperatureC       int     `json:"temperature_c"`
	CoreClockKHz       int64   `json:"core_clock_khz"`
	MemoryClockKHz     int64   `json:"memory_clock_khz"`
	PowerUsageWatts    float64 `json:"power_usage_watts"`
	MaxPowerWatts      float64 `json:"max_power_watts"`
	FanSpeedPercent    int     `json:"fan_speed_percent"`
	FanSpeedRPM        int     `json:"fan_speed_rpm"`
	GraphicsUtil       int     `json:"graphics_util_percent"`
	VideoEncodeUtil    int     `json:"video_encode_util_percent"`
	VideoDecodeUtil    int     `json:"video_decode_util_percent"`
	ComputeUtil        int     `json:"compute_util_percent"`
	DriverVersion      string  `json:"driver_version"`
	VBIOSVersion       string  `json:"vbios_version"`
	PCIeGeneration     int     `json:"pcie_generation"`
	PCIeLanes          int     `json:"pcie_lanes"`
}

// Plausible range for a GPU die temperature in °C.
const (
	minTemperatureC = 0
	maxTemperatureC = 120
)

// NewStats returns a record with every field at its sentinel.
func NewStats() Stats {
	return Stats{
		UtilizationPercent: Unavailable,
		TemperatureC:       Unavailable,
		CoreClockKHz:       Unavailable,
		MemoryClockKHz:     Unavailable,
		PowerUsageWatts:    Unavailable,
		MaxPowerWatts:      Unavailable,
		FanSpeedPercent:    Unavailable,
		FanSpeedRPM:        Unavailable,
		GraphicsUtil:       Unavailable,
		VideoEncodeUtil:    Unavailable,
		VideoDecodeUtil:    Unavailable,
		ComputeUtil:        Unavailable,
		PCIeGeneration:     Unavailable,
		PCIeLanes:          Unavailable,
	}
}

// HasData reports whether at least one field differs from its sentinel.
func (s Stats) HasData() bool {
	return s != NewStats()
}

// Sanitize returns s with implausible values replaced by sentinels, so a
// driver glitch cannot leak a 250% utilization or a 6000 °C reading.
// Used memory is clamped to the total when the total is known.
func (s Stats) Sanitize() Stats {
	s.UtilizationPercent = percentOrUnavailable(s.UtilizationPercent)
	s.GraphicsUtil = percentOrUnavailable(s.GraphicsUtil)
	s.VideoEncodeUtil = percentOrUnavailable(s.VideoEncodeUtil)
	s.VideoDecodeUtil = percentOrUnavailable(s.VideoDecodeUtil)
	s.ComputeUtil = percentOrUnavailable(s.ComputeUtil)
	s.FanSpeedPercent = percentOrUnavailable(s.FanSpeedPercent)

	if s.TemperatureC < minTemperatureC || s.TemperatureC > maxTemperatureC {
		s.TemperatureC = Unavailable
	}
	if s.MemoryTotalBytes > 0 && s.MemoryUsedBytes > s.MemoryTotalBytes {
		s.MemoryUsedBytes = s.MemoryTotalBytes
	}
	if s.CoreClockKHz < 0 {
		s.CoreClockKHz = Unavailable
	}
	if s.MemoryClockKHz < 0 {
		s.MemoryClockKHz = Unavailable
	}
	if s.PowerUsageWatts < 0 {
		s.PowerUsageWatts = Unavailable
	}
	if s.MaxPowerWatts < 0 {
		s.MaxPowerWatts = Unavailable
	}
	if s.FanSpeedRPM < 0 {
		s.FanSpeedRPM = Unavailable
	}
	if s.PCIeGeneration < 0 {
		s.PCIeGeneration = Unavailable
	}
	if s.PCIeLanes < 0 {
		s.PCIeLanes = Unavailable
	}
	return s
}

func percentOrUnavailable(v int) int {
	if v < 0 || v > 100 {
		return Unavailable
	}
	return v
}
