package intel

import (
	"path/filepath"
	"strings"

	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// genericPlatform is reported when the device ID is known but not in the table.
const genericPlatform = "Intel GPU"

// platformPrefixes is a coarse device-ID prefix table. It labels the common
// parts and makes no claim to completeness.
var platformPrefixes = []struct {
	prefix string
	name   string
}{
	{"56", "Xe-HPG (Alchemist)"},
	{"7d", "Xe-LPG (Meteor Lake)"},
	{"a7", "Gen12 (Raptor Lake)"},
	{"46", "Gen12 (Alder Lake)"},
	{"9a", "Gen12 (Tiger Lake)"},
	{"4c", "Gen12 (Rocket Lake)"},
	{"8a", "Gen11 (Ice Lake)"},
	{"9b", "Gen9.5 (Comet Lake)"},
	{"3e", "Gen9.5 (Coffee Lake)"},
	{"87", "Gen9.5 (Coffee Lake)"},
	{"59", "Gen9.5 (Kaby Lake)"},
	{"5a", "Gen9.5 (Kaby Lake)"},
	{"19", "Gen9 (Skylake)"},
}

// PlatformName labels a 4-digit hex device ID with its GPU generation.
func PlatformName(deviceID string) string {
	id := strings.ToLower(deviceID)
	for _, p := range platformPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.name
		}
	}
	return genericPlatform
}

// readDeviceID returns the PCI device ID as lowercase hex without prefix,
// from the device attribute or else the uevent PCI_ID.
func readDeviceID(devicePath string) (string, bool) {
	if raw, ok := sysfs.ReadFirstLine(filepath.Join(devicePath, "device")); ok {
		id := strings.TrimPrefix(strings.ToLower(raw), "0x")
		if id != "" {
			return id, true
		}
	}

	uevent := sysfs.ParseUevent(filepath.Join(devicePath, "uevent"))
	if pciID := uevent["PCI_ID"]; pciID != "" {
		vendor, device, found := strings.Cut(strings.ToLower(pciID), ":")
		if found && vendor == "8086" && device != "" {
			return device, true
		}
	}
	return "", false
}
