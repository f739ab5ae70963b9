// Package intel reads i915 telemetry: per-engine busy counters, GT
// frequencies and the hwmon sensors discrete parts expose.
package intel

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/hwmon"
	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// Candidate hwmon attribute names, tried in order.
var (
	temperatureFiles = []string{"temp1_input", "temp2_input", "temp_input"}
	powerFiles       = []string{"power1_average", "power1_input", "power_average", "power_input"}
	powerLimitFiles  = []string{"power1_max", "power1_cap", "power1_rated_max"}
)

// ExtendedStats adds i915-only dimensions to the core stats.
type ExtendedStats struct {
	gpu.Stats
	Engines        []Engine `json:"engines"`
	PlatformName   string   `json:"platform_name"`
	CurrentFreqMHz int      `json:"current_freq_mhz"`
	MinFreqMHz     int      `json:"min_freq_mhz"`
	MaxFreqMHz     int      `json:"max_freq_mhz"`
}

// Backend implements gpu.Backend for Intel devices. Discovered engines are
// cached per device path until Invalidate is called.
type Backend struct {
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string][]engineDescriptor
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// New creates an Intel backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:  slog.Default().With("backend", "intel"),
		engines: make(map[string][]engineDescriptor),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "intel".
func (b *Backend) Name() string { return "intel" }

// Supports reports whether dev is an Intel device.
func (b *Backend) Supports(dev gpu.Device) bool {
	return dev.Vendor == gpu.Intel
}

// Invalidate drops the engine cache so the next read rediscovers engines.
func (b *Backend) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engines = make(map[string][]engineDescriptor)
}

// ReadStats reads the core stats for dev. Like every read, it reports data
// only when the record it returns has a populated field: the frequency range
// and engine list live in the extended record alone, so a device exposing
// only those reports data from ReadExtendedStats but not from ReadStats.
func (b *Backend) ReadStats(dev gpu.Device) (bool, gpu.Stats) {
	_, ext := b.ReadExtendedStats(dev)
	return ext.Stats.HasData(), ext.Stats
}

// ReadExtendedStats reads the core stats together with the engine list,
// platform label and frequency range. It reports data when the sanitized
// core stats, any frequency or any engine is populated.
func (b *Backend) ReadExtendedStats(dev gpu.Device) (bool, ExtendedStats) {
	path := dev.DevicePath
	ext := ExtendedStats{
		Stats:          gpu.NewStats(),
		CurrentFreqMHz: gpu.Unavailable,
		MinFreqMHz:     gpu.Unavailable,
		MaxFreqMHz:     gpu.Unavailable,
	}

	ext.Engines = b.readEngines(path)
	if avg, ok := averageUtilization(ext.Engines, ""); ok {
		ext.UtilizationPercent = avg
	}
	if avg, ok := averageUtilization(ext.Engines, ClassRender); ok {
		ext.GraphicsUtil = avg
	}
	if avg, ok := averageUtilization(ext.Engines, ClassCompute); ok {
		ext.ComputeUtil = avg
	}

	if dir, ok := hwmon.FindDir(path); ok {
		readSensors(dir, &ext.Stats)
	}

	freqOK := readFrequencies(path, &ext)
	if ext.CurrentFreqMHz > 0 {
		ext.CoreClockKHz = int64(ext.CurrentFreqMHz) * 1000
	}

	ext.DriverVersion = readDriverVersion(path)
	if id, ok := readDeviceID(path); ok {
		ext.PlatformName = PlatformName(id)
	}

	ext = ext.Sanitize()

	// Memory stays unpopulated: integrated parts share system RAM and
	// expose no stable accounting.
	ok := ext.Stats.HasData() || freqOK || len(ext.Engines) > 0
	if !ok {
		b.logger.Debug("no readable attributes", "device", path)
	}
	return ok, ext
}

// Sanitize applies the core range checks to the embedded stats.
func (e ExtendedStats) Sanitize() ExtendedStats {
	e.Stats = e.Stats.Sanitize()
	return e
}

// ReadExtended implements gpu.ExtendedBackend.
func (b *Backend) ReadExtended(dev gpu.Device) (bool, any) {
	return b.ReadExtendedStats(dev)
}

// readEngines returns fresh counters for the cached engine set of a device,
// discovering it on first use.
func (b *Backend) readEngines(devicePath string) []Engine {
	b.mu.Lock()
	descs, cached := b.engines[devicePath]
	if !cached {
		descs = discoverEngines(devicePath)
		if len(descs) > 0 {
			b.engines[devicePath] = descs
			b.logger.Debug("discovered engines", "device", devicePath, "count", len(descs))
		}
	}
	b.mu.Unlock()

	engines := make([]Engine, 0, len(descs))
	for _, desc := range descs {
		e, _ := readEngine(filepath.Join(devicePath, "engine", desc.name), desc)
		engines = append(engines, e)
	}
	return engines
}

func readSensors(dir string, stats *gpu.Stats) {
	if v, ok := hwmon.ReadFirstOf(dir, temperatureFiles...); ok {
		stats.TemperatureC = hwmon.Millidegrees(v)
	}
	if v, ok := hwmon.ReadFirstOf(dir, powerFiles...); ok {
		stats.PowerUsageWatts = hwmon.Microwatts(v)
	}
	if v, ok := hwmon.ReadFirstOf(dir, powerLimitFiles...); ok && v > 0 {
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

// readFrequencies fills the GT frequency range and reports whether any of
// the three values was readable.
func readFrequencies(path string, ext *ExtendedStats) bool {
	ok := false
	if v, found := sysfs.ReadInteger(filepath.Join(path, "gt_cur_freq_mhz")); found && v >= 0 {
		ext.CurrentFreqMHz = int(v)
		ok = true
	}
	if v, found := sysfs.ReadInteger(filepath.Join(path, "gt_min_freq_mhz")); found && v >= 0 {
		ext.MinFreqMHz = int(v)
		ok = true
	}
	if v, found := sysfs.ReadInteger(filepath.Join(path, "gt_max_freq_mhz")); found && v >= 0 {
		ext.MaxFreqMHz = int(v)
		ok = true
	}
	return ok
}

// readDriverVersion tries the module version, the driver symlink and the
// uevent DRIVER field, then assumes i915 for any device with an ID.
func readDriverVersion(path string) string {
	for _, rel := range []string{"driver/module/version", "driver/version"} {
		if v, ok := sysfs.ReadFirstLine(filepath.Join(path, rel)); ok {
			return v
		}
	}
	if name, ok := sysfs.ReadLinkBase(filepath.Join(path, "driver")); ok {
		return name
	}
	if driver := sysfs.ParseUevent(filepath.Join(path, "uevent"))["DRIVER"]; driver != "" {
		return driver
	}
	if _, ok := readDeviceID(path); ok {
		return "i915"
	}
	return ""
}
