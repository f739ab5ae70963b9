package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// SupportedOS represents supported operating systems
type SupportedOS string

const (
	Linux SupportedOS = "linux"
)

// GetOS returns the current operating system
func GetOS() SupportedOS {
	return SupportedOS(runtime.GOOS)
}

// IsSupported returns true if GPU telemetry can run on the current OS.
// Every backend reads the DRM sysfs tree, so only Linux qualifies.
func IsSupported() bool {
	return GetOS() == Linux
}

// ValidateSupport returns an error if the current OS is not supported
func ValidateSupport() error {
	if !IsSupported() {
		return fmt.Errorf("unsupported operating system: %s. Supported: linux", runtime.GOOS)
	}
	return nil
}

// HostInfo describes the machine the monitor runs on.
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelRelease   string `json:"kernel_release"`
	Arch            string `json:"arch"`
	UptimeSeconds   uint64 `json:"uptime_seconds"`
	Virtualization  string `json:"virtualization,omitempty"`
}

// GetHostInfo collects host details. Missing pieces are left empty.
func GetHostInfo(ctx context.Context) (HostInfo, error) {
	info := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	stat, err := host.InfoWithContext(ctx)
	if err == nil && stat != nil {
		info.Hostname = stat.Hostname
		info.Platform = stat.Platform
		info.PlatformVersion = stat.PlatformVersion
		info.KernelRelease = stat.KernelVersion
		info.UptimeSeconds = stat.Uptime
		info.Virtualization = stat.VirtualizationSystem
		if stat.KernelArch != "" {
			info.Arch = stat.KernelArch
		}
	}

	if release := kernelRelease(); release != "" {
		info.KernelRelease = release
	}

	if err != nil && info.KernelRelease == "" {
		return info, fmt.Errorf("failed to get host info: %w", err)
	}
	return info, nil
}
