package nvidia

import (
	"errors"
	"math"
)

var errNotSupported = errors.New("not supported")

type fakeLibrary struct {
	initErr  error
	symbols  map[string]bool
	devices  map[string]*fakeDevice
	driver   string
	inits    int
	shutdown int
}

func fullSymbols() map[string]bool {
	syms := map[string]bool{}
	for _, s := range requiredSymbols {
		syms[s] = true
	}
	for _, s := range []string{
		symPowerUsage, symPowerLimit, symClockInfo, symFanSpeed, symPerformanceState,
		symDriverVersion, symVbiosVersion, symComputeProcesses, symGraphicsProcesses,
		symPCIeGeneration, symPCIeWidth, symEncoderUtil, symDecoderUtil,
	} {
		syms[s] = true
	}
	return syms
}

func (l *fakeLibrary) Init() error {
	l.inits++
	return l.initErr
}

func (l *fakeLibrary) Shutdown() error {
	l.shutdown++
	return nil
}

func (l *fakeLibrary) HasSymbol(name string) bool { return l.symbols[name] }

func (l *fakeLibrary) DriverVersion() (string, error) {
	if l.driver == "" {
		return "", errNotSupported
	}
	return l.driver, nil
}

func (l *fakeLibrary) NVMLVersion() (string, error) { return "12.550.54.14", nil }

func (l *fakeLibrary) DeviceCount() (int, error) { return len(l.devices), nil }

func (l *fakeLibrary) DeviceByPCIBusID(busID string) (Device, error) {
	d, ok := l.devices[busID]
	if !ok {
		return nil, errors.New("nvml: not found")
	}
	return d, nil
}

// fakeDevice answers every call from its fields; a nil error field means
// success.
type fakeDevice struct {
	util, memUtil uint32
	utilErr       error
	total, used   uint64
	memErr        error
	temp          uint32
	tempErr       error
	powerMW       uint32
	limitMW       uint32
	graphicsMHz   uint32
	memoryMHz     uint32
	fan           uint32
	pstate        int
	vbios         string
	pcieGen       int
	pcieWidth     int
	encoder       uint32
	decoder       uint32
	compute       []ProcessInfo
	graphics      []ProcessInfo
	optionalErr   error
}

func (d *fakeDevice) Utilization() (uint32, uint32, error) { return d.util, d.memUtil, d.utilErr }
func (d *fakeDevice) MemoryInfo() (uint64, uint64, error)  { return d.total, d.used, d.memErr }
func (d *fakeDevice) Temperature() (uint32, error)         { return d.temp, d.tempErr }
func (d *fakeDevice) PowerUsage() (uint32, error)          { return d.powerMW, d.optionalErr }
func (d *fakeDevice) EnforcedPowerLimit() (uint32, error)  { return d.limitMW, d.optionalErr }
func (d *fakeDevice) FanSpeed() (uint32, error)            { return d.fan, d.optionalErr }
func (d *fakeDevice) PerformanceState() (int, error)       { return d.pstate, d.optionalErr }
func (d *fakeDevice) VBIOSVersion() (string, error)        { return d.vbios, d.optionalErr }
func (d *fakeDevice) PCIeLinkGeneration() (int, error)     { return d.pcieGen, d.optionalErr }
func (d *fakeDevice) PCIeLinkWidth() (int, error)          { return d.pcieWidth, d.optionalErr }
func (d *fakeDevice) EncoderUtilization() (uint32, error)  { return d.encoder, d.optionalErr }
func (d *fakeDevice) DecoderUtilization() (uint32, error)  { return d.decoder, d.optionalErr }

func (d *fakeDevice) ClockMHz(clock ClockType) (uint32, error) {
	if clock == ClockMemory {
		return d.memoryMHz, d.optionalErr
	}
	return d.graphicsMHz, d.optionalErr
}

func (d *fakeDevice) ComputeProcesses() ([]ProcessInfo, error) {
	return d.compute, d.optionalErr
}

func (d *fakeDevice) GraphicsProcesses() ([]ProcessInfo, error) {
	return d.graphics, d.optionalErr
}

func busyDevice() *fakeDevice {
	return &fakeDevice{
		util:        63,
		memUtil:     20,
		total:       8 << 30,
		used:        3 << 30,
		temp:        71,
		powerMW:     182500,
		limitMW:     250000,
		graphicsMHz: 1905,
		memoryMHz:   7000,
		fan:         45,
		pstate:      2,
		vbios:       "90.04.7A.00.01",
		pcieGen:     4,
		pcieWidth:   16,
		encoder:     12,
		decoder:     3,
		compute: []ProcessInfo{
			{PID: 4242, UsedGPUMemory: 1 << 30},
		},
		graphics: []ProcessInfo{
			{PID: 1001, UsedGPUMemory: 256 << 20},
			{PID: 1002, UsedGPUMemory: math.MaxUint64},
		},
	}
}

type mapNamer map[uint32]string

func (m mapNamer) ProcessName(pid uint32) string { return m[pid] }
