package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

func TestService_DevicesMemoized(t *testing.T) {
	enum := &staticEnumerator{devices: []gpu.Device{device("card0", gpu.AMD)}}
	svc := NewService(enum, nil)

	first := svc.Devices(context.Background())
	second := svc.Devices(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, 1, enum.calls)
}

func TestService_EmptyListIsMemoized(t *testing.T) {
	enum := &staticEnumerator{}
	svc := NewService(enum, nil)

	assert.Empty(t, svc.Devices(context.Background()))
	enum.devices = []gpu.Device{device("card0", gpu.AMD)}
	assert.Empty(t, svc.Devices(context.Background()), "hot-plugged cards need an explicit refresh")
	assert.Equal(t, 1, enum.calls)

	devices := svc.Refresh(context.Background())
	assert.Len(t, devices, 1)
	assert.Equal(t, 2, enum.calls)
}

func TestService_RefreshInvalidatesBackends(t *testing.T) {
	intel := newFakeBackend("intel", gpu.Intel)
	svc := NewService(&staticEnumerator{}, []gpu.Backend{intel})

	svc.Refresh(context.Background())
	svc.Refresh(context.Background())

	assert.Equal(t, 2, intel.invalidated)
}

func TestService_ReadStatsForDispatchesByVendor(t *testing.T) {
	amdDev := device("card0", gpu.AMD)
	intelDev := device("card1", gpu.Intel)
	amd := newFakeBackend("amd", gpu.AMD)
	intel := newFakeBackend("intel", gpu.Intel)
	amd.set(amdDev.CardPath, 37)
	intel.set(intelDev.CardPath, 25)

	svc := NewService(&staticEnumerator{}, []gpu.Backend{amd, intel})

	ok, stats := svc.ReadStatsFor(amdDev)
	require.True(t, ok)
	assert.Equal(t, 37, stats.UtilizationPercent)

	ok, stats = svc.ReadStatsFor(intelDev)
	require.True(t, ok)
	assert.Equal(t, 25, stats.UtilizationPercent)

	assert.Equal(t, 1, amd.reads[amdDev.CardPath])
	assert.Zero(t, amd.reads[intelDev.CardPath])
	assert.Equal(t, "intel", svc.BackendFor(intelDev))
}

func TestService_NoBackendYieldsSentinels(t *testing.T) {
	svc := NewService(&staticEnumerator{}, []gpu.Backend{newFakeBackend("amd", gpu.AMD)})

	ok, stats := svc.ReadStatsFor(device("card0", gpu.NVIDIA))

	assert.False(t, ok)
	assert.Equal(t, gpu.NewStats(), stats)
	assert.Empty(t, svc.BackendFor(device("card0", gpu.NVIDIA)))
}

func TestService_FailedReadYieldsSentinels(t *testing.T) {
	dev := device("card0", gpu.AMD)
	amd := newFakeBackend("amd", gpu.AMD)
	amd.results[dev.CardPath] = gpu.Stats{UtilizationPercent: 99}
	amd.fail(dev.CardPath, true)

	ok, stats := NewService(&staticEnumerator{}, []gpu.Backend{amd}).ReadStatsFor(dev)

	assert.False(t, ok)
	assert.Equal(t, gpu.NewStats(), stats)
}

func TestService_SanitizesBackendOutput(t *testing.T) {
	dev := device("card0", gpu.AMD)
	amd := newFakeBackend("amd", gpu.AMD)
	bad := statsWithUtil(250)
	bad.MemoryTotalBytes = 1 << 30
	bad.MemoryUsedBytes = 2 << 30
	amd.results[dev.CardPath] = bad

	ok, stats := NewService(&staticEnumerator{}, []gpu.Backend{amd}).ReadStatsFor(dev)

	require.True(t, ok)
	assert.Equal(t, gpu.Unavailable, stats.UtilizationPercent)
	assert.Equal(t, uint64(1<<30), stats.MemoryUsedBytes)

	onlyBad := gpu.NewStats()
	onlyBad.UtilizationPercent = 250
	amd.results[dev.CardPath] = onlyBad

	ok, stats = NewService(&staticEnumerator{}, []gpu.Backend{amd}).ReadStatsFor(dev)

	assert.False(t, ok, "a record left with only sentinels has no data")
	assert.Equal(t, gpu.NewStats(), stats)
}

func TestService_ReadExtendedFor(t *testing.T) {
	dev := device("card0", gpu.AMD)
	amd := newFakeBackend("amd", gpu.AMD)
	amd.set(dev.CardPath, 10)
	svc := NewService(&staticEnumerator{}, []gpu.Backend{amd})

	ok, ext := svc.ReadExtendedFor(dev)
	require.True(t, ok)
	assert.Equal(t, "amd", ext.(map[string]any)["backend"])

	ok, ext = svc.ReadExtendedFor(device("card1", gpu.Intel))
	assert.False(t, ok)
	assert.Nil(t, ext)
}

func TestService_CloseClosesBackends(t *testing.T) {
	amd := newFakeBackend("amd", gpu.AMD)
	intel := newFakeBackend("intel", gpu.Intel)
	intel.closeErr = errCloseFailed

	err := NewService(&staticEnumerator{}, []gpu.Backend{amd, intel}).Close()

	require.ErrorIs(t, err, errCloseFailed)
	assert.True(t, amd.closed)
	assert.True(t, intel.closed)
}
