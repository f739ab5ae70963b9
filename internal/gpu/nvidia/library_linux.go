//go:build linux && cgo

package nvidia

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"golang.org/x/sys/unix"
)

// libraryReadable reports whether the loader could open path.
func libraryReadable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// openNVML binds a go-nvml instance to path. Nothing is loaded until Init.
func openNVML(path string) Library {
	return &nvmlLibrary{iface: nvml.New(nvml.WithLibraryPath(path))}
}

type nvmlLibrary struct {
	iface nvml.Interface
}

func (l *nvmlLibrary) check(op string, ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return fmt.Errorf("%s: %s", op, l.iface.ErrorString(ret))
}

func (l *nvmlLibrary) Init() error {
	return l.check("nvmlInit", l.iface.Init())
}

func (l *nvmlLibrary) Shutdown() error {
	return l.check("nvmlShutdown", l.iface.Shutdown())
}

func (l *nvmlLibrary) HasSymbol(name string) bool {
	return l.iface.Extensions().LookupSymbol(name) == nil
}

func (l *nvmlLibrary) DriverVersion() (string, error) {
	v, ret := l.iface.SystemGetDriverVersion()
	return v, l.check("nvmlSystemGetDriverVersion", ret)
}

func (l *nvmlLibrary) NVMLVersion() (string, error) {
	v, ret := l.iface.SystemGetNVMLVersion()
	return v, l.check("nvmlSystemGetNVMLVersion", ret)
}

func (l *nvmlLibrary) DeviceCount() (int, error) {
	n, ret := l.iface.DeviceGetCount()
	return n, l.check("nvmlDeviceGetCount", ret)
}

func (l *nvmlLibrary) DeviceByPCIBusID(busID string) (Device, error) {
	dev, ret := l.iface.DeviceGetHandleByPciBusId(busID)
	if err := l.check("nvmlDeviceGetHandleByPciBusId", ret); err != nil {
		return nil, err
	}
	return &nvmlDevice{lib: l, dev: dev}, nil
}

type nvmlDevice struct {
	lib *nvmlLibrary
	dev nvml.Device
}

func (d *nvmlDevice) Utilization() (uint32, uint32, error) {
	u, ret := d.dev.GetUtilizationRates()
	return u.Gpu, u.Memory, d.lib.check("nvmlDeviceGetUtilizationRates", ret)
}

func (d *nvmlDevice) MemoryInfo() (uint64, uint64, error) {
	m, ret := d.dev.GetMemoryInfo()
	return m.Total, m.Used, d.lib.check("nvmlDeviceGetMemoryInfo", ret)
}

func (d *nvmlDevice) Temperature() (uint32, error) {
	t, ret := d.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	return t, d.lib.check("nvmlDeviceGetTemperature", ret)
}

func (d *nvmlDevice) PowerUsage() (uint32, error) {
	mw, ret := d.dev.GetPowerUsage()
	return mw, d.lib.check("nvmlDeviceGetPowerUsage", ret)
}

func (d *nvmlDevice) EnforcedPowerLimit() (uint32, error) {
	mw, ret := d.dev.GetEnforcedPowerLimit()
	return mw, d.lib.check("nvmlDeviceGetEnforcedPowerLimit", ret)
}

func (d *nvmlDevice) ClockMHz(clock ClockType) (uint32, error) {
	typ := nvml.CLOCK_GRAPHICS
	if clock == ClockMemory {
		typ = nvml.CLOCK_MEM
	}
	mhz, ret := d.dev.GetClockInfo(typ)
	return mhz, d.lib.check("nvmlDeviceGetClockInfo", ret)
}

func (d *nvmlDevice) FanSpeed() (uint32, error) {
	pct, ret := d.dev.GetFanSpeed()
	return pct, d.lib.check("nvmlDeviceGetFanSpeed", ret)
}

func (d *nvmlDevice) PerformanceState() (int, error) {
	p, ret := d.dev.GetPerformanceState()
	return int(p), d.lib.check("nvmlDeviceGetPerformanceState", ret)
}

func (d *nvmlDevice) VBIOSVersion() (string, error) {
	v, ret := d.dev.GetVbiosVersion()
	return v, d.lib.check("nvmlDeviceGetVbiosVersion", ret)
}

func (d *nvmlDevice) PCIeLinkGeneration() (int, error) {
	gen, ret := d.dev.GetCurrPcieLinkGeneration()
	return gen, d.lib.check("nvmlDeviceGetCurrPcieLinkGeneration", ret)
}

func (d *nvmlDevice) PCIeLinkWidth() (int, error) {
	width, ret := d.dev.GetCurrPcieLinkWidth()
	return width, d.lib.check("nvmlDeviceGetCurrPcieLinkWidth", ret)
}

func (d *nvmlDevice) EncoderUtilization() (uint32, error) {
	pct, _, ret := d.dev.GetEncoderUtilization()
	return pct, d.lib.check("nvmlDeviceGetEncoderUtilization", ret)
}

func (d *nvmlDevice) DecoderUtilization() (uint32, error) {
	pct, _, ret := d.dev.GetDecoderUtilization()
	return pct, d.lib.check("nvmlDeviceGetDecoderUtilization", ret)
}

func (d *nvmlDevice) ComputeProcesses() ([]ProcessInfo, error) {
	procs, ret := d.dev.GetComputeRunningProcesses()
	if err := d.lib.check("nvmlDeviceGetComputeRunningProcesses", ret); err != nil {
		return nil, err
	}
	return convertProcesses(procs), nil
}

func (d *nvmlDevice) GraphicsProcesses() ([]ProcessInfo, error) {
	procs, ret := d.dev.GetGraphicsRunningProcesses()
	if err := d.lib.check("nvmlDeviceGetGraphicsRunningProcesses", ret); err != nil {
		return nil, err
	}
	return convertProcesses(procs), nil
}

func convertProcesses(procs []nvml.ProcessInfo) []ProcessInfo {
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, ProcessInfo{PID: p.Pid, UsedGPUMemory: p.UsedGpuMemory})
	}
	return out
}
