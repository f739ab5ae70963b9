// Package amd reads amdgpu telemetry from sysfs and the device's hwmon tree.
package amd

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/hwmon"
	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// ExtendedStats adds amdgpu-only dimensions to the core stats.
type ExtendedStats struct {
	gpu.Stats
	GTTUsedBytes      uint64         `json:"gtt_used_bytes"`
	GTTTotalBytes     uint64         `json:"gtt_total_bytes"`
	CoreClockLevels   []ClockLevel   `json:"core_clock_levels,omitempty"`
	MemoryClockLevels []ClockLevel   `json:"memory_clock_levels,omitempty"`
	PowerProfiles     []PowerProfile `json:"power_profiles,omitempty"`
}

// Backend implements gpu.Backend for amdgpu devices.
type Backend struct {
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// New creates an AMD backend.
func New(opts ...Option) *Backend {
	b := &Backend{logger: slog.Default().With("backend", "amd")}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "amd".
func (b *Backend) Name() string { return "amd" }

// Supports reports whether dev is an AMD device.
func (b *Backend) Supports(dev gpu.Device) bool {
	return dev.Vendor == gpu.AMD
}

// ReadStats reads the core stats for dev.
func (b *Backend) ReadStats(dev gpu.Device) (bool, gpu.Stats) {
	stats := readCore(dev.DevicePath).Sanitize()
	ok := stats.HasData()
	if !ok {
		b.logger.Debug("no readable attributes", "device", dev.DevicePath)
	}
	return ok, stats
}

// ReadExtendedStats reads the core stats plus GTT, DPM levels and power
// profiles. The result is sanitized before the data check, so a record whose
// only readings were implausible reports no data.
func (b *Backend) ReadExtendedStats(dev gpu.Device) (bool, ExtendedStats) {
	path := dev.DevicePath
	ext := ExtendedStats{Stats: readCore(path)}
	gttOK := false

	if v, found := sysfs.ReadInteger(filepath.Join(path, "mem_info_gtt_used")); found && v >= 0 {
		ext.GTTUsedBytes = uint64(v)
		gttOK = true
	}
	if v, found := sysfs.ReadInteger(filepath.Join(path, "mem_info_gtt_total")); found && v >= 0 {
		ext.GTTTotalBytes = uint64(v)
		gttOK = true
	}
	if content, found := sysfs.ReadContent(filepath.Join(path, "pp_dpm_sclk")); found {
		ext.CoreClockLevels = ParseClockLevels(content)
	}
	if content, found := sysfs.ReadContent(filepath.Join(path, "pp_dpm_mclk")); found {
		ext.MemoryClockLevels = ParseClockLevels(content)
	}
	if content, found := sysfs.ReadContent(filepath.Join(path, "pp_power_profile_mode")); found {
		ext.PowerProfiles = ParsePowerProfiles(content)
	}

	ext = ext.Sanitize()
	ok := ext.Stats.HasData() || gttOK ||
		len(ext.CoreClockLevels) > 0 || len(ext.MemoryClockLevels) > 0 || len(ext.PowerProfiles) > 0
	if !ok {
		b.logger.Debug("no readable attributes", "device", path)
	}
	return ok, ext
}

// Sanitize applies the core range checks and clamps GTT usage to its total.
func (e ExtendedStats) Sanitize() ExtendedStats {
	e.Stats = e.Stats.Sanitize()
	if e.GTTTotalBytes > 0 && e.GTTUsedBytes > e.GTTTotalBytes {
		e.GTTUsedBytes = e.GTTTotalBytes
	}
	return e
}

// ReadExtended implements gpu.ExtendedBackend.
func (b *Backend) ReadExtended(dev gpu.Device) (bool, any) {
	return b.ReadExtendedStats(dev)
}

func readCore(path string) gpu.Stats {
	stats := gpu.NewStats()

	if v, ok := sysfs.ReadInteger(filepath.Join(path, "gpu_busy_percent")); ok {
		stats.UtilizationPercent = int(v)
	}

	// VRAM
	if v, ok := sysfs.ReadInteger(filepath.Join(path, "mem_info_vram_used")); ok && v >= 0 {
		stats.MemoryUsedBytes = uint64(v)
	}
	if v, ok := sysfs.ReadInteger(filepath.Join(path, "mem_info_vram_total")); ok && v >= 0 {
		stats.MemoryTotalBytes = uint64(v)
	}

	if dir, ok := hwmon.FindDir(path); ok {
		readSensors(dir, &stats)
	}

	// Clocks
	if content, ok := sysfs.ReadContent(filepath.Join(path, "pp_dpm_sclk")); ok {
		if mhz, ok := ParseCurrentClock(content); ok {
			stats.CoreClockKHz = int64(mhz) * 1000
		}
	}
	if content, ok := sysfs.ReadContent(filepath.Join(path, "pp_dpm_mclk")); ok {
		if mhz, ok := ParseCurrentClock(content); ok {
			stats.MemoryClockKHz = int64(mhz) * 1000
		}
	}

	stats.DriverVersion = readDriverVersion(path)
	if v, ok := sysfs.ReadFirstLine(filepath.Join(path, "vbios_version")); ok {
		stats.VBIOSVersion = v
	}

	// PCIe link
	if speed, ok := sysfs.ReadFirstLine(filepath.Join(path, "current_link_speed")); ok {
		if gen, ok := ParseLinkGeneration(speed); ok {
			stats.PCIeGeneration = gen
		}
	}
	if v, ok := sysfs.ReadInteger(filepath.Join(path, "current_link_width")); ok && v > 0 {
		stats.PCIeLanes = int(v)
	}

	return stats
}

func readSensors(dir string, stats *gpu.Stats) {
	if v, ok := hwmon.ReadFirst(dir, "temp*_input"); ok {
		stats.TemperatureC = hwmon.Millidegrees(v)
	}

	// power*_average is the smoothed reading; newer kernels only expose power*_input.
	if files := hwmon.FindFiles(dir, "power*_average"); len(files) > 0 {
		if v, ok := hwmon.ReadFirst(dir, "power*_average"); ok {
			stats.PowerUsageWatts = hwmon.Microwatts(v)
		}
	} else if v, ok := hwmon.ReadFirst(dir, "power*_input"); ok {
		stats.PowerUsageWatts = hwmon.Microwatts(v)
	}
	if v, ok := hwmon.ReadFirst(dir, "power*_cap"); ok {
		stats.MaxPowerWatts = hwmon.Microwatts(v)
	}

	rpm, rpmOK, pct, pctOK := hwmon.ReadFan(dir)
	if rpmOK {
		stats.FanSpeedRPM = rpm
	}
	if pctOK {
		stats.FanSpeedPercent = pct
	}
}

// readDriverVersion prefers an explicit version file and falls back to the
// driver name when modalias carries an AMD vendor signature.
func readDriverVersion(path string) string {
	for _, rel := range []string{"driver/version", "driver/module/version"} {
		if v, ok := sysfs.ReadFirstLine(filepath.Join(path, rel)); ok {
			return v
		}
	}
	if alias, ok := sysfs.ReadFirstLine(filepath.Join(path, "modalias")); ok {
		if strings.Contains(alias, "v00001002") || strings.Contains(alias, "v00001022") {
			return "amdgpu"
		}
	}
	return ""
}
