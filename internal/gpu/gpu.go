// Package gpu holds the vendor-neutral GPU model: the devices found under the
// DRM class directory, the stats record every backend fills, and the contract
// a vendor backend implements.
package gpu

import "path/filepath"

// Vendor represents GPU vendor
type Vendor string

const (
	NVIDIA  Vendor = "nvidia"
	AMD     Vendor = "amd"
	Intel   Vendor = "intel"
	Unknown Vendor = "unknown"
)

// PCI vendor IDs as reported by the device's vendor attribute.
const (
	pciVendorNVIDIA = 0x10de
	pciVendorAMD    = 0x1002
	pciVendorAMDAlt = 0x1022
	pciVendorIntel  = 0x8086
)

// VendorFromPCIID maps a PCI vendor ID to a Vendor.
func VendorFromPCIID(id int64) Vendor {
	switch id {
	case pciVendorNVIDIA:
		return NVIDIA
	case pciVendorAMD, pciVendorAMDAlt:
		return AMD
	case pciVendorIntel:
		return Intel
	default:
		return Unknown
	}
}

// Priority orders vendors when a single primary GPU has to be picked.
// Lower is preferred.
func (v Vendor) Priority() int {
	switch v {
	case NVIDIA:
		return 1
	case AMD:
		return 2
	case Intel:
		return 3
	default:
		return 4
	}
}

// FallbackName is the display name used when nothing better is known.
func (v Vendor) FallbackName() string {
	switch v {
	case NVIDIA:
		return "NVIDIA GPU"
	case AMD:
		return "AMD GPU"
	case Intel:
		return "Intel GPU"
	default:
		return "GPU"
	}
}

// Device identifies one physical adapter. Values are built once per
// enumeration pass and never mutated.
type Device struct {
	CardPath   string `json:"card_path"`
	DevicePath string `json:"device_path"`
	PCIBusID   string `json:"pci_bus_id"`
	Name       string `json:"name"`
	Vendor     Vendor `json:"vendor"`
}

// ID returns the DRM card name, e.g. "card0".
func (d Device) ID() string {
	return filepath.Base(d.CardPath)
}

// Backend reads stats for the devices of one vendor.
type Backend interface {
	// Name is a short lowercase identifier used in logs and metrics.
	Name() string
	// Supports is a pure vendor check; it performs no I/O.
	Supports(dev Device) bool
	// ReadStats reports whether any field was populated, along with the
	// stats record. Unpopulated fields hold their sentinel.
	ReadStats(dev Device) (bool, Stats)
}

// ExtendedBackend is implemented by backends that expose vendor-only
// dimensions on top of Stats.
type ExtendedBackend interface {
	Backend
	ReadExtended(dev Device) (bool, any)
}

// Invalidator is implemented by backends that cache per-device state which
// must be dropped when the device list is refreshed.
type Invalidator interface {
	Invalidate()
}
