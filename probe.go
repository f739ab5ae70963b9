package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/gpu/nvidia"
	"github.com/CristiGvl/picoGPUMon/internal/telemetry"
)

// writeProbe prints one line per GPU with dashes for unavailable values,
// followed by the NVML status and the selected primary GPU.
func writeProbe(w io.Writer, snap telemetry.Snapshot, nvml nvidia.Info) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "CARD\tVENDOR\tNAME\tBACKEND\tUTIL\tTEMP\tMEMORY\tCORE\tMEM CLK\tPOWER\tFAN")
	for _, r := range snap.Devices {
		s := r.Stats
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Device.ID(),
			r.Device.Vendor,
			r.Device.Name,
			gpu.FormatString(r.Backend),
			gpu.FormatInt(s.UtilizationPercent, "%"),
			gpu.FormatInt(s.TemperatureC, "C"),
			gpu.FormatMemory(s.MemoryUsedBytes, s.MemoryTotalBytes),
			gpu.FormatClock(s.CoreClockKHz),
			gpu.FormatClock(s.MemoryClockKHz),
			gpu.FormatWatts(s.PowerUsageWatts),
			gpu.FormatInt(s.FanSpeedPercent, "%"),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Devices) == 0 {
		fmt.Fprintln(w, "no GPU found")
	}

	nvmlLine := "NVML: " + nvml.State
	if nvml.DriverVersion != "" {
		nvmlLine += " (driver " + nvml.DriverVersion + ")"
	}
	if nvml.Error != "" {
		nvmlLine += ": " + nvml.Error
	}
	fmt.Fprintln(w, nvmlLine)

	if snap.Primary != nil {
		_, err := fmt.Fprintf(w, "primary: %s (%s)\n", snap.Primary.Device.ID(), snap.Primary.Device.Name)
		return err
	}
	_, err := fmt.Fprintf(w, "primary: none (%s)\n", snap.SlotState)
	return err
}
