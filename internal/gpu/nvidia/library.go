package nvidia

import "errors"

var (
	// ErrDisabled is reported when the NVML path was switched off.
	ErrDisabled = errors.New("nvml disabled")
	// ErrLibraryNotFound is reported when no candidate library could be loaded.
	ErrLibraryNotFound = errors.New("nvml library not found")
	// ErrMissingSymbol is reported when the library lacks a required entry point.
	ErrMissingSymbol = errors.New("nvml required symbol missing")
	// ErrUnsupportedPlatform is reported on builds without NVML bindings.
	ErrUnsupportedPlatform = errors.New("nvml not supported on this platform")
)

// Library is the slice of NVML the backend drives. The production
// implementation wraps go-nvml; tests substitute a fake.
type Library interface {
	// Init loads the shared object and initializes NVML.
	Init() error
	// Shutdown tears NVML down and unloads the shared object.
	Shutdown() error
	// HasSymbol reports whether the loaded library exports name.
	HasSymbol(name string) bool
	DriverVersion() (string, error)
	NVMLVersion() (string, error)
	DeviceCount() (int, error)
	DeviceByPCIBusID(busID string) (Device, error)
}

// ClockType selects a clock domain.
type ClockType int

const (
	ClockGraphics ClockType = iota
	ClockMemory
)

// ProcessInfo is one running-process entry as NVML reports it.
type ProcessInfo struct {
	PID           uint32
	UsedGPUMemory uint64
}

// Device is an NVML device handle.
type Device interface {
	Utilization() (gpu, memory uint32, err error)
	MemoryInfo() (total, used uint64, err error)
	Temperature() (uint32, error)
	// PowerUsage and EnforcedPowerLimit are in milliwatts.
	PowerUsage() (uint32, error)
	EnforcedPowerLimit() (uint32, error)
	ClockMHz(clock ClockType) (uint32, error)
	FanSpeed() (uint32, error)
	PerformanceState() (int, error)
	VBIOSVersion() (string, error)
	PCIeLinkGeneration() (int, error)
	PCIeLinkWidth() (int, error)
	EncoderUtilization() (uint32, error)
	DecoderUtilization() (uint32, error)
	ComputeProcesses() ([]ProcessInfo, error)
	GraphicsProcesses() ([]ProcessInfo, error)
}

// Opener returns an unloaded Library bound to path.
type Opener func(path string) Library

// Entry points that must resolve for the backend to come up.
var requiredSymbols = []string{
	"nvmlInit_v2",
	"nvmlShutdown",
	"nvmlDeviceGetHandleByPciBusId_v2",
	"nvmlDeviceGetUtilizationRates",
	"nvmlDeviceGetMemoryInfo",
	"nvmlDeviceGetTemperature",
}

// Optional entry points, each gating one group of fields.
const (
	symPowerUsage        = "nvmlDeviceGetPowerUsage"
	symPowerLimit        = "nvmlDeviceGetEnforcedPowerLimit"
	symClockInfo         = "nvmlDeviceGetClockInfo"
	symFanSpeed          = "nvmlDeviceGetFanSpeed"
	symPerformanceState  = "nvmlDeviceGetPerformanceState"
	symDriverVersion     = "nvmlSystemGetDriverVersion"
	symVbiosVersion      = "nvmlDeviceGetVbiosVersion"
	symComputeProcesses  = "nvmlDeviceGetComputeRunningProcesses"
	symGraphicsProcesses = "nvmlDeviceGetGraphicsRunningProcesses"
	symPCIeGeneration    = "nvmlDeviceGetCurrPcieLinkGeneration"
	symPCIeWidth         = "nvmlDeviceGetCurrPcieLinkWidth"
	symEncoderUtil       = "nvmlDeviceGetEncoderUtilization"
	symDecoderUtil       = "nvmlDeviceGetDecoderUtilization"
)

// capabilities records which optional entry points resolved. It is computed
// once when the library loads.
type capabilities struct {
	power             bool
	powerLimit        bool
	clocks            bool
	fan               bool
	performanceState  bool
	driverVersion     bool
	vbiosVersion      bool
	computeProcesses  bool
	graphicsProcesses bool
	pcieGeneration    bool
	pcieWidth         bool
	encoder           bool
	decoder           bool
}

func resolveCapabilities(lib Library) capabilities {
	return capabilities{
		power:             lib.HasSymbol(symPowerUsage),
		powerLimit:        lib.HasSymbol(symPowerLimit),
		clocks:            lib.HasSymbol(symClockInfo),
		fan:               lib.HasSymbol(symFanSpeed),
		performanceState:  lib.HasSymbol(symPerformanceState),
		driverVersion:     lib.HasSymbol(symDriverVersion),
		vbiosVersion:      lib.HasSymbol(symVbiosVersion),
		computeProcesses:  lib.HasSymbol(symComputeProcesses),
		graphicsProcesses: lib.HasSymbol(symGraphicsProcesses),
		pcieGeneration:    lib.HasSymbol(symPCIeGeneration),
		pcieWidth:         lib.HasSymbol(symPCIeWidth),
		encoder:           lib.HasSymbol(symEncoderUtil),
		decoder:           lib.HasSymbol(symDecoderUtil),
	}
}

// missingRequired returns the first required symbol lib does not export.
func missingRequired(lib Library) (string, bool) {
	for _, sym := range requiredSymbols {
		if !lib.HasSymbol(sym) {
			return sym, true
		}
	}
	return "", false
}
