package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/telemetry"
)

var deviceLabels = []string{"card", "vendor", "name"}

// Metrics holds the Prometheus metrics exported on /metrics.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Device metrics, one series per GPU
	DeviceUp          *prometheus.GaugeVec
	DevicePrimary     *prometheus.GaugeVec
	Utilization       *prometheus.GaugeVec
	MemoryUsedBytes   *prometheus.GaugeVec
	MemoryTotalBytes  *prometheus.GaugeVec
	Temperature       *prometheus.GaugeVec
	CoreClockHertz    *prometheus.GaugeVec
	MemoryClockHertz  *prometheus.GaugeVec
	PowerWatts        *prometheus.GaugeVec
	PowerLimitWatts   *prometheus.GaugeVec
	FanSpeedPercent   *prometheus.GaugeVec
	FanSpeedRPM       *prometheus.GaugeVec
	EngineUtilization *prometheus.GaugeVec

	// Poller metrics
	PollDuration      prometheus.Histogram
	PollsTotal        prometheus.Counter
	ReadFailuresTotal *prometheus.CounterVec
	Devices           prometheus.Gauge

	// State metrics
	NVMLState *prometheus.GaugeVec
	Info      *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	deviceGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picogpu_" + name,
			Help: help,
		}, deviceLabels)
	}

	m := &Metrics{
		Registry: reg,

		DeviceUp:         deviceGauge("device_up", "Whether the last read of the GPU returned data (1) or not (0)."),
		DevicePrimary:    deviceGauge("device_primary", "1 for the GPU currently selected as primary."),
		Utilization:      deviceGauge("utilization_percent", "Overall GPU utilization in percent."),
		MemoryUsedBytes:  deviceGauge("memory_used_bytes", "Dedicated GPU memory in use in bytes."),
		MemoryTotalBytes: deviceGauge("memory_total_bytes", "Dedicated GPU memory in bytes."),
		Temperature:      deviceGauge("temperature_celsius", "GPU temperature in degrees Celsius."),
		CoreClockHertz:   deviceGauge("core_clock_hertz", "Current core clock in hertz."),
		MemoryClockHertz: deviceGauge("memory_clock_hertz", "Current memory clock in hertz."),
		PowerWatts:       deviceGauge("power_watts", "Current board power draw in watts."),
		PowerLimitWatts:  deviceGauge("power_limit_watts", "Board power limit in watts."),
		FanSpeedPercent:  deviceGauge("fan_speed_percent", "Fan speed in percent of maximum."),
		FanSpeedRPM:      deviceGauge("fan_speed_rpm", "Fan speed in revolutions per minute."),

		EngineUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picogpu_engine_utilization_percent",
			Help: "Per-engine-class utilization in percent.",
		}, append(append([]string(nil), deviceLabels...), "engine")),

		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "picogpu_poll_duration_seconds",
			Help:    "Duration of a full poll over all GPUs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picogpu_polls_total",
			Help: "Total number of completed polls.",
		}),
		ReadFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picogpu_read_failures_total",
			Help: "Total number of GPU reads that returned no data.",
		}, []string{"vendor"}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picogpu_devices",
			Help: "Number of GPUs found by the last enumeration.",
		}),

		NVMLState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picogpu_nvml_state",
			Help: "Current NVML loader state (1 = current, 0 = other).",
		}, []string{"state"}),
		Info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "picogpu_info",
			Help: "Static information about this monitor instance.",
		}, []string{"instance_id", "version"}),
	}

	reg.MustRegister(
		m.DeviceUp,
		m.DevicePrimary,
		m.Utilization,
		m.MemoryUsedBytes,
		m.MemoryTotalBytes,
		m.Temperature,
		m.CoreClockHertz,
		m.MemoryClockHertz,
		m.PowerWatts,
		m.PowerLimitWatts,
		m.FanSpeedPercent,
		m.FanSpeedRPM,
		m.EngineUtilization,
		m.PollDuration,
		m.PollsTotal,
		m.ReadFailuresTotal,
		m.Devices,
		m.NVMLState,
		m.Info,
	)

	return m
}

// SetInfo publishes the instance identity.
func (m *Metrics) SetInfo(instanceID, version string) {
	m.Info.Reset()
	m.Info.WithLabelValues(instanceID, version).Set(1)
}

// SetNVMLState marks state as the current NVML state among all known states.
func (m *Metrics) SetNVMLState(state string, all ...string) {
	for _, s := range all {
		m.NVMLState.WithLabelValues(s).Set(0)
	}
	m.NVMLState.WithLabelValues(state).Set(1)
}

// ObservePoll records a completed poll. Device series are rebuilt from the
// snapshot, so fields at their sentinel and vanished GPUs have no series.
func (m *Metrics) ObservePoll(snap telemetry.Snapshot, elapsed time.Duration) {
	m.PollDuration.Observe(elapsed.Seconds())
	m.PollsTotal.Inc()
	m.Devices.Set(float64(len(snap.Devices)))

	for _, vec := range m.deviceVecs() {
		vec.Reset()
	}

	for _, r := range snap.Devices {
		labels := prometheus.Labels{
			"card":   r.Device.ID(),
			"vendor": string(r.Device.Vendor),
			"name":   r.Device.Name,
		}

		primary := 0.0
		if snap.Primary != nil && snap.Primary.Device.CardPath == r.Device.CardPath {
			primary = 1
		}
		m.DevicePrimary.With(labels).Set(primary)

		if !r.HasData {
			m.DeviceUp.With(labels).Set(0)
			m.ReadFailuresTotal.WithLabelValues(string(r.Device.Vendor)).Inc()
			continue
		}
		m.DeviceUp.With(labels).Set(1)
		m.setStats(labels, r.Stats)
	}
}

func (m *Metrics) setStats(labels prometheus.Labels, s gpu.Stats) {
	setInt := func(vec *prometheus.GaugeVec, v int) {
		if v != gpu.Unavailable {
			vec.With(labels).Set(float64(v))
		}
	}

	setInt(m.Utilization, s.UtilizationPercent)
	setInt(m.Temperature, s.TemperatureC)
	setInt(m.FanSpeedPercent, s.FanSpeedPercent)
	setInt(m.FanSpeedRPM, s.FanSpeedRPM)

	if s.MemoryTotalBytes > 0 {
		m.MemoryTotalBytes.With(labels).Set(float64(s.MemoryTotalBytes))
		m.MemoryUsedBytes.With(labels).Set(float64(s.MemoryUsedBytes))
	}
	if s.CoreClockKHz != gpu.Unavailable {
		m.CoreClockHertz.With(labels).Set(float64(s.CoreClockKHz) * 1000)
	}
	if s.MemoryClockKHz != gpu.Unavailable {
		m.MemoryClockHertz.With(labels).Set(float64(s.MemoryClockKHz) * 1000)
	}
	if s.PowerUsageWatts != gpu.Unavailable {
		m.PowerWatts.With(labels).Set(s.PowerUsageWatts)
	}
	if s.MaxPowerWatts != gpu.Unavailable {
		m.PowerLimitWatts.With(labels).Set(s.MaxPowerWatts)
	}

	engines := map[string]int{
		"graphics":     s.GraphicsUtil,
		"compute":      s.ComputeUtil,
		"video_encode": s.VideoEncodeUtil,
		"video_decode": s.VideoDecodeUtil,
	}
	for engine, v := range engines {
		if v == gpu.Unavailable {
			continue
		}
		m.EngineUtilization.WithLabelValues(labels["card"], labels["vendor"], labels["name"], engine).Set(float64(v))
	}
}

func (m *Metrics) deviceVecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		m.DeviceUp,
		m.DevicePrimary,
		m.Utilization,
		m.MemoryUsedBytes,
		m.MemoryTotalBytes,
		m.Temperature,
		m.CoreClockHertz,
		m.MemoryClockHertz,
		m.PowerWatts,
		m.PowerLimitWatts,
		m.FanSpeedPercent,
		m.FanSpeedRPM,
		m.EngineUtilization,
	}
}
