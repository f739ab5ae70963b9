// Package nvidia reads NVIDIA telemetry through NVML, loaded at runtime from
// the driver's shared library. When the library is absent or incomplete the
// backend reports every device as unsupported instead of failing.
package nvidia

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

// DisableEnv switches the NVML path off when set to any value, including
// empty. Useful on hosts where a broken driver stack hangs nvmlInit.
const DisableEnv = "PICOGPU_DISABLE_NVML"

// maxProcesses bounds each running-process list.
const maxProcesses = 32

// DefaultLibraryCandidates lists where distributions install libnvidia-ml,
// followed by bare names resolved by the dynamic loader.
var DefaultLibraryCandidates = []string{
	"/usr/lib/x86_64-linux-gnu/libnvidia-ml.so.1",
	"/usr/lib64/libnvidia-ml.so.1",
	"/usr/lib/libnvidia-ml.so.1",
	"/usr/local/cuda/lib64/libnvidia-ml.so.1",
	"libnvidia-ml.so.1",
	"libnvidia-ml.so",
}

// State is the lifecycle state of the NVML binding.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
	StateShutdown
)

// States lists every lifecycle state in order.
var States = []State{StateUninitialized, StateLoading, StateReady, StateFailed, StateShutdown}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProcessType tags the context a process holds on the GPU.
type ProcessType string

const (
	ProcessGraphics ProcessType = "graphics"
	ProcessCompute  ProcessType = "compute"
)

// ProcessUsage is one process holding GPU memory.
type ProcessUsage struct {
	PID             uint32      `json:"pid"`
	MemoryUsedBytes uint64      `json:"memory_used_bytes"`
	Type            ProcessType `json:"type"`
	Name            string      `json:"name"`
}

// ExtendedStats adds NVML-only dimensions to the core stats.
type ExtendedStats struct {
	gpu.Stats
	PerformanceState int            `json:"performance_state"`
	Processes        []ProcessUsage `json:"processes"`
}

// Info describes the loaded library.
type Info struct {
	State         string `json:"state"`
	LibraryPath   string `json:"library_path,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
	NVMLVersion   string `json:"nvml_version,omitempty"`
	DeviceCount   int    `json:"device_count"`
	Error         string `json:"error,omitempty"`
}

// ProcessNamer maps a pid to a display name.
type ProcessNamer interface {
	ProcessName(pid uint32) string
}

// Backend implements gpu.Backend on top of NVML. NVML handles are
// process-global, so all calls are serialized on mu.
type Backend struct {
	logger     *slog.Logger
	open       Opener
	candidates []string
	disabled   bool
	namer      ProcessNamer

	mu          sync.Mutex
	state       State
	lib         Library
	caps        capabilities
	libraryPath string
	loadErr     error
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

// WithOpener replaces the go-nvml binding. Tests use it to inject fakes.
func WithOpener(open Opener) Option {
	return func(b *Backend) {
		b.open = open
	}
}

// WithLibraryCandidates replaces the library search list.
func WithLibraryCandidates(paths ...string) Option {
	return func(b *Backend) {
		b.candidates = paths
	}
}

// WithLibraryPath puts path in front of the default search list.
func WithLibraryPath(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.candidates = append([]string{path}, b.candidates...)
		}
	}
}

// WithDisabled switches NVML off regardless of the environment.
func WithDisabled(disabled bool) Option {
	return func(b *Backend) {
		b.disabled = b.disabled || disabled
	}
}

// WithProcessNamer sets the pid to name resolver.
func WithProcessNamer(n ProcessNamer) Option {
	return func(b *Backend) {
		b.namer = n
	}
}

// New creates the backend and loads NVML immediately unless DisableEnv is
// set. A load failure leaves the backend in StateFailed.
func New(opts ...Option) *Backend {
	_, envDisabled := os.LookupEnv(DisableEnv)

	b := &Backend{
		logger:     slog.Default().With("backend", "nvidia"),
		open:       openNVML,
		candidates: append([]string(nil), DefaultLibraryCandidates...),
		disabled:   envDisabled,
		namer:      systemProcessNamer{},
		state:      StateUninitialized,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.load()
	return b
}

// Name returns "nvidia".
func (b *Backend) Name() string { return "nvidia" }

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the reason the backend is not ready, if any.
func (b *Backend) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

func (b *Backend) load() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled {
		b.state = StateFailed
		b.loadErr = ErrDisabled
		b.logger.Info("nvml disabled", "env", DisableEnv)
		return
	}

	b.state = StateLoading
	var errs []error
	for _, path := range b.candidates {
		if strings.ContainsRune(path, '/') && !libraryReadable(path) {
			continue
		}

		lib := b.open(path)
		if err := lib.Init(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		if sym, missing := missingRequired(lib); missing {
			_ = lib.Shutdown()
			b.state = StateFailed
			b.loadErr = fmt.Errorf("%w: %s in %s", ErrMissingSymbol, sym, path)
			b.logger.Warn("nvml unusable", "library", path, "error", b.loadErr)
			return
		}

		b.lib = lib
		b.caps = resolveCapabilities(lib)
		b.libraryPath = path
		b.state = StateReady
		b.logger.Info("nvml loaded", "library", path)
		return
	}

	b.state = StateFailed
	b.loadErr = ErrLibraryNotFound
	if len(errs) > 0 {
		b.loadErr = fmt.Errorf("%w: %w", ErrLibraryNotFound, errors.Join(errs...))
	}
	b.logger.Info("nvml unavailable", "error", b.loadErr)
}

// Supports reports whether dev is an NVIDIA device and NVML is ready.
func (b *Backend) Supports(dev gpu.Device) bool {
	if dev.Vendor != gpu.NVIDIA {
		return false
	}
	return b.State() == StateReady
}

// ReadStats reads the core stats for dev. Any failure to resolve the device
// handle yields no data.
func (b *Backend) ReadStats(dev gpu.Device) (bool, gpu.Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.handle(dev)
	if !ok {
		return false, gpu.NewStats()
	}

	stats := b.readCore(h).Sanitize()
	return stats.HasData(), stats
}

// ReadExtendedStats reads the core stats plus performance state and the
// compute and graphics process lists.
func (b *Backend) ReadExtendedStats(dev gpu.Device) (bool, ExtendedStats) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ext := ExtendedStats{Stats: gpu.NewStats(), PerformanceState: gpu.Unavailable}

	h, ok := b.handle(dev)
	if !ok {
		return false, ext
	}

	ext.Stats = b.readCore(h)
	ext = ext.Sanitize()
	ok = ext.Stats.HasData()

	if b.caps.performanceState {
		if p, err := h.PerformanceState(); err == nil && p >= 0 {
			ext.PerformanceState = p
			ok = true
		}
	}

	if b.caps.computeProcesses {
		if procs, err := h.ComputeProcesses(); err == nil {
			ext.Processes = append(ext.Processes, b.processUsages(procs, ProcessCompute)...)
			ok = true
		}
	}
	if b.caps.graphicsProcesses {
		if procs, err := h.GraphicsProcesses(); err == nil {
			ext.Processes = append(ext.Processes, b.processUsages(procs, ProcessGraphics)...)
			ok = true
		}
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

// Info reports the library state, versions and device count.
func (b *Backend) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := Info{State: b.state.String(), LibraryPath: b.libraryPath}
	if b.loadErr != nil {
		info.Error = b.loadErr.Error()
	}
	if b.state != StateReady {
		return info
	}

	if b.caps.driverVersion {
		if v, err := b.lib.DriverVersion(); err == nil {
			info.DriverVersion = v
		}
	}
	if v, err := b.lib.NVMLVersion(); err == nil {
		info.NVMLVersion = v
	}
	if n, err := b.lib.DeviceCount(); err == nil {
		info.DeviceCount = n
	}
	return info
}

// Close shuts NVML down. It is safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateReady {
		return nil
	}
	b.state = StateShutdown
	if err := b.lib.Shutdown(); err != nil {
		return fmt.Errorf("nvml shutdown: %w", err)
	}
	return nil
}

// handle resolves dev to an NVML device. Callers hold mu.
func (b *Backend) handle(dev gpu.Device) (Device, bool) {
	if b.state != StateReady || dev.PCIBusID == "" {
		return nil, false
	}
	h, err := b.lib.DeviceByPCIBusID(dev.PCIBusID)
	if err != nil {
		b.logger.Debug("device handle lookup failed", "bus_id", dev.PCIBusID, "error", err)
		return nil, false
	}
	return h, true
}

// readCore fills the vendor-neutral fields. Callers hold mu.
func (b *Backend) readCore(h Device) gpu.Stats {
	stats := gpu.NewStats()

	if util, _, err := h.Utilization(); err == nil {
		stats.UtilizationPercent = int(util)
	}
	if total, used, err := h.MemoryInfo(); err == nil {
		stats.MemoryTotalBytes = total
		stats.MemoryUsedBytes = used
	}
	if t, err := h.Temperature(); err == nil {
		stats.TemperatureC = int(t)
	}

	if b.caps.clocks {
		if mhz, err := h.ClockMHz(ClockGraphics); err == nil {
			stats.CoreClockKHz = int64(mhz) * 1000
		}
		if mhz, err := h.ClockMHz(ClockMemory); err == nil {
			stats.MemoryClockKHz = int64(mhz) * 1000
		}
	}
	if b.caps.power {
		if mw, err := h.PowerUsage(); err == nil {
			stats.PowerUsageWatts = float64(mw) / 1000
		}
	}
	if b.caps.powerLimit {
		if mw, err := h.EnforcedPowerLimit(); err == nil {
			stats.MaxPowerWatts = float64(mw) / 1000
		}
	}
	if b.caps.fan {
		if pct, err := h.FanSpeed(); err == nil {
			stats.FanSpeedPercent = int(pct)
		}
	}
	if b.caps.encoder {
		if pct, err := h.EncoderUtilization(); err == nil {
			stats.VideoEncodeUtil = int(pct)
		}
	}
	if b.caps.decoder {
		if pct, err := h.DecoderUtilization(); err == nil {
			stats.VideoDecodeUtil = int(pct)
		}
	}
	if b.caps.driverVersion {
		if v, err := b.lib.DriverVersion(); err == nil {
			stats.DriverVersion = v
		}
	}
	if b.caps.vbiosVersion {
		if v, err := h.VBIOSVersion(); err == nil {
			stats.VBIOSVersion = v
		}
	}
	if b.caps.pcieGeneration {
		if gen, err := h.PCIeLinkGeneration(); err == nil && gen > 0 {
			stats.PCIeGeneration = gen
		}
	}
	if b.caps.pcieWidth {
		if width, err := h.PCIeLinkWidth(); err == nil && width > 0 {
			stats.PCIeLanes = width
		}
	}

	return stats
}

func (b *Backend) processUsages(procs []ProcessInfo, typ ProcessType) []ProcessUsage {
	if len(procs) > maxProcesses {
		procs = procs[:maxProcesses]
	}

	usages := make([]ProcessUsage, 0, len(procs))
	for _, p := range procs {
		mem := p.UsedGPUMemory
		// NVML_VALUE_NOT_AVAILABLE
		if mem == math.MaxUint64 {
			mem = 0
		}
		usages = append(usages, ProcessUsage{
			PID:             p.PID,
			MemoryUsedBytes: mem,
			Type:            typ,
			Name:            b.processName(p.PID),
		})
	}
	return usages
}

func (b *Backend) processName(pid uint32) string {
	if b.namer == nil {
		return fallbackProcessName(pid)
	}
	if name := b.namer.ProcessName(pid); name != "" {
		return name
	}
	return fallbackProcessName(pid)
}
