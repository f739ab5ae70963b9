package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

type recordingObserver struct {
	snapshots []Snapshot
}

func (o *recordingObserver) ObservePoll(snap Snapshot, _ time.Duration) {
	o.snapshots = append(o.snapshots, snap)
}

func TestPoller_ReadsEachDeviceOncePerTick(t *testing.T) {
	nvDev := device("card0", gpu.NVIDIA)
	amdDev := device("card1", gpu.AMD)
	nv := newFakeBackend("nvidia", gpu.NVIDIA)
	amd := newFakeBackend("amd", gpu.AMD)
	nv.set(nvDev.CardPath, 0)
	amd.set(amdDev.CardPath, 37)

	svc := NewService(&staticEnumerator{devices: []gpu.Device{nvDev, amdDev}}, []gpu.Backend{nv, amd})
	obs := &recordingObserver{}
	p := NewPoller(svc, WithObserver(obs), WithInstanceID("test-instance"))

	snap := p.Poll(context.Background())

	assert.Equal(t, 1, nv.reads[nvDev.CardPath])
	assert.Equal(t, 1, amd.reads[amdDev.CardPath])
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, "nvidia", snap.Devices[0].Backend)
	require.NotNil(t, snap.Primary)
	assert.Equal(t, amdDev, snap.Primary.Device)
	assert.Equal(t, 37, snap.Primary.Stats.UtilizationPercent)
	assert.Equal(t, "selected", snap.SlotState)
	assert.Equal(t, "test-instance", snap.InstanceID)
	require.Len(t, obs.snapshots, 1)
	assert.Equal(t, snap, p.Latest())

	p.Poll(context.Background())
	assert.Equal(t, 2, amd.reads[amdDev.CardPath])
	assert.Equal(t, 2, nv.reads[nvDev.CardPath])
}

func TestPoller_NoDevices(t *testing.T) {
	p := NewPoller(NewService(&staticEnumerator{}, nil))

	assert.Equal(t, "no_device", p.Latest().SlotState)

	snap := p.Poll(context.Background())

	assert.Empty(t, snap.Devices)
	assert.Nil(t, snap.Primary)
	assert.Equal(t, "no_device", snap.SlotState)
}

func TestPoller_FailoverAcrossTicks(t *testing.T) {
	nvDev := device("card0", gpu.NVIDIA)
	intelDev := device("card1", gpu.Intel)
	nv := newFakeBackend("nvidia", gpu.NVIDIA)
	intel := newFakeBackend("intel", gpu.Intel)
	nv.set(nvDev.CardPath, 60)
	intel.set(intelDev.CardPath, 15)

	p := NewPoller(NewService(&staticEnumerator{devices: []gpu.Device{nvDev, intelDev}}, []gpu.Backend{nv, intel}))

	snap := p.Poll(context.Background())
	require.NotNil(t, snap.Primary)
	require.Equal(t, nvDev, snap.Primary.Device)

	nv.fail(nvDev.CardPath, true)
	snap = p.Poll(context.Background())

	require.NotNil(t, snap.Primary)
	assert.Equal(t, intelDev, snap.Primary.Device)
	assert.False(t, snap.Devices[0].HasData)
	assert.Equal(t, gpu.NewStats(), snap.Devices[0].Stats)
}

func TestPoller_RescanInterval(t *testing.T) {
	enum := &staticEnumerator{devices: []gpu.Device{device("card0", gpu.AMD)}}
	intel := newFakeBackend("intel", gpu.Intel)
	p := NewPoller(NewService(enum, []gpu.Backend{intel}), WithRescanInterval(time.Minute))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.Poll(context.Background())
	assert.Equal(t, 1, enum.calls)

	now = now.Add(30 * time.Second)
	p.Poll(context.Background())
	assert.Equal(t, 1, enum.calls)

	enum.devices = append(enum.devices, device("card1", gpu.Intel))
	now = now.Add(31 * time.Second)
	snap := p.Poll(context.Background())

	assert.Equal(t, 2, enum.calls)
	assert.Equal(t, 1, intel.invalidated)
	assert.Len(t, snap.Devices, 2)
}

func TestPoller_Rescan(t *testing.T) {
	enum := &staticEnumerator{}
	p := NewPoller(NewService(enum, nil))
	p.Poll(context.Background())

	enum.devices = []gpu.Device{device("card0", gpu.AMD)}
	snap := p.Rescan(context.Background())

	assert.Len(t, snap.Devices, 1)
	assert.Equal(t, "probing", snap.SlotState, "no backend can read the new card")
}

func TestSnapshot_Find(t *testing.T) {
	dev := device("card3", gpu.AMD)
	snap := Snapshot{Devices: []Reading{{Device: dev, HasData: true}}}

	r, ok := snap.Find("card3")
	require.True(t, ok)
	assert.Equal(t, dev, r.Device)

	_, ok = snap.Find("card9")
	assert.False(t, ok)
}

func TestPoller_StartStop(t *testing.T) {
	dev := device("card0", gpu.AMD)
	amd := newFakeBackend("amd", gpu.AMD)
	amd.set(dev.CardPath, 12)
	p := NewPoller(NewService(&staticEnumerator{devices: []gpu.Device{dev}}, []gpu.Backend{amd}),
		WithInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.Start(ctx)
	require.NoError(t, p.WaitForSync(ctx))

	snap := p.Latest()
	require.NotNil(t, snap.Primary)
	assert.Equal(t, 12, snap.Primary.Stats.UtilizationPercent)

	p.Stop()
	p.Stop()
}

func TestPoller_WaitForSyncHonoursContext(t *testing.T) {
	p := NewPoller(NewService(&staticEnumerator{}, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.WaitForSync(ctx), context.Canceled)
}
