package telemetry

import (
	"context"
	"errors"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

type staticEnumerator struct {
	devices []gpu.Device
	calls   int
}

func (e *staticEnumerator) Enumerate(context.Context) []gpu.Device {
	e.calls++
	return append([]gpu.Device(nil), e.devices...)
}

// fakeBackend serves one vendor with canned results keyed by card path.
type fakeBackend struct {
	name        string
	vendor      gpu.Vendor
	results     map[string]gpu.Stats
	failing     map[string]bool
	reads       map[string]int
	invalidated int
	closed      bool
	closeErr    error
}

func newFakeBackend(name string, vendor gpu.Vendor) *fakeBackend {
	return &fakeBackend{
		name:    name,
		vendor:  vendor,
		results: make(map[string]gpu.Stats),
		failing: make(map[string]bool),
		reads:   make(map[string]int),
	}
}

func (b *fakeBackend) Name() string                   { return b.name }
func (b *fakeBackend) Supports(dev gpu.Device) bool   { return dev.Vendor == b.vendor }
func (b *fakeBackend) Invalidate()                    { b.invalidated++ }
func (b *fakeBackend) set(card string, util int)      { b.results[card] = statsWithUtil(util) }
func (b *fakeBackend) fail(card string, failing bool) { b.failing[card] = failing }

func (b *fakeBackend) ReadStats(dev gpu.Device) (bool, gpu.Stats) {
	b.reads[dev.CardPath]++
	if b.failing[dev.CardPath] {
		return false, gpu.NewStats()
	}
	stats, ok := b.results[dev.CardPath]
	if !ok {
		return false, gpu.NewStats()
	}
	return true, stats
}

func (b *fakeBackend) ReadExtended(dev gpu.Device) (bool, any) {
	ok, stats := b.ReadStats(dev)
	return ok, map[string]any{"backend": b.name, "stats": stats}
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return b.closeErr
}

var errCloseFailed = errors.New("close failed")

func statsWithUtil(util int) gpu.Stats {
	s := gpu.NewStats()
	s.UtilizationPercent = util
	s.TemperatureC = 50
	return s
}

func device(card string, vendor gpu.Vendor) gpu.Device {
	return gpu.Device{
		CardPath:   "/sys/class/drm/" + card,
		DevicePath: "/sys/class/drm/" + card + "/device",
		Name:       vendor.FallbackName(),
		Vendor:     vendor,
	}
}
