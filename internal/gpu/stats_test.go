package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStats_AllSentinel(t *testing.T) {
	s := NewStats()

	assert.Equal(t, Unavailable, s.UtilizationPercent)
	assert.Equal(t, Unavailable, s.TemperatureC)
	assert.Equal(t, int64(Unavailable), s.CoreClockKHz)
	assert.Equal(t, float64(Unavailable), s.PowerUsageWatts)
	assert.Zero(t, s.MemoryTotalBytes)
	assert.Empty(t, s.DriverVersion)
	assert.False(t, s.HasData())
}

func TestStats_HasData(t *testing.T) {
	s := NewStats()
	s.DriverVersion = "550.54.14"
	assert.True(t, s.HasData())

	s = NewStats()
	s.UtilizationPercent = 0
	assert.True(t, s.HasData(), "a real zero reading is data")
}

func TestStats_Sanitize(t *testing.T) {
	s := NewStats()
	s.UtilizationPercent = 250
	s.TemperatureC = 6000
	s.MemoryTotalBytes = 1024
	s.MemoryUsedBytes = 4096
	s.FanSpeedPercent = 101
	s.ComputeUtil = 40

	got := s.Sanitize()

	assert.Equal(t, Unavailable, got.UtilizationPercent)
	assert.Equal(t, Unavailable, got.TemperatureC)
	assert.Equal(t, Unavailable, got.FanSpeedPercent)
	assert.Equal(t, uint64(1024), got.MemoryUsedBytes)
	assert.Equal(t, 40, got.ComputeUtil)
}

func TestStats_SanitizeKeepsValidValues(t *testing.T) {
	s := NewStats()
	s.UtilizationPercent = 100
	s.TemperatureC = 0
	s.MemoryTotalBytes = 8 << 30
	s.MemoryUsedBytes = 2 << 30

	assert.Equal(t, s, s.Sanitize())
	assert.Equal(t, NewStats(), NewStats().Sanitize())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, Dash, FormatInt(Unavailable, "%"))
	assert.Equal(t, "0%", FormatInt(0, "%"))
	assert.Equal(t, "1800 MHz", FormatClock(1_800_000))
	assert.Equal(t, Dash, FormatClock(Unavailable))
	assert.Equal(t, "15.5 W", FormatWatts(15.5))
	assert.Equal(t, Dash, FormatWatts(Unavailable))
	assert.Equal(t, "512/1024 MiB", FormatMemory(512<<20, 1024<<20))
	assert.Equal(t, Dash, FormatMemory(512<<20, 0))
	assert.Equal(t, Dash, FormatString(""))
}
