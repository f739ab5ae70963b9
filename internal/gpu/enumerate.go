package gpu

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// DefaultSysfsRoot is where the kernel mounts sysfs.
const DefaultSysfsRoot = "/sys"

// cardPattern matches DRM card nodes and rejects connectors such as
// card0-HDMI-A-1.
var cardPattern = regexp.MustCompile(`^card(\d+)$`)

// Enumerator discovers GPUs under <root>/class/drm.
type Enumerator struct {
	root   string
	lookup PCILookup
	logger *slog.Logger
}

// EnumeratorOption configures an Enumerator.
type EnumeratorOption func(*Enumerator)

// WithSysfsRoot reads from root instead of /sys. Tests point this at a
// synthetic tree.
func WithSysfsRoot(root string) EnumeratorOption {
	return func(e *Enumerator) {
		e.root = root
	}
}

// WithPCILookup sets the product-name lookup. A nil lookup disables the
// lspci step.
func WithPCILookup(l PCILookup) EnumeratorOption {
	return func(e *Enumerator) {
		e.lookup = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EnumeratorOption {
	return func(e *Enumerator) {
		e.logger = l
	}
}

// NewEnumerator creates an Enumerator reading /sys and naming devices with lspci.
func NewEnumerator(opts ...EnumeratorOption) *Enumerator {
	e := &Enumerator{
		root:   DefaultSysfsRoot,
		lookup: NewLSPCI(),
		logger: slog.Default().With("component", "gpu-enumerator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enumerate returns every GPU of a known vendor, ordered by card index.
// A malformed card is skipped; a missing DRM directory yields an empty list.
func (e *Enumerator) Enumerate(ctx context.Context) []Device {
	drmPath := filepath.Join(e.root, "class", "drm")
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		e.logger.Debug("drm class directory unavailable", "path", drmPath, "error", err)
		return nil
	}

	type card struct {
		index int
		name  string
	}
	var cards []card
	for _, entry := range entries {
		m := cardPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cards = append(cards, card{index: idx, name: entry.Name()})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].index < cards[j].index })

	var devices []Device
	for _, c := range cards {
		dev, ok := e.probeCard(ctx, filepath.Join(drmPath, c.name))
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}

	e.logger.Debug("enumeration complete", "cards", len(cards), "gpus", len(devices))
	return devices
}

func (e *Enumerator) probeCard(ctx context.Context, cardPath string) (Device, bool) {
	devicePath := filepath.Join(cardPath, "device")
	if !sysfs.IsDir(devicePath) {
		return Device{}, false
	}

	vendorID, ok := sysfs.ReadInteger(filepath.Join(devicePath, "vendor"))
	if !ok {
		return Device{}, false
	}
	vendor := VendorFromPCIID(vendorID)
	if vendor == Unknown {
		e.logger.Debug("skipping card with unknown vendor", "card", cardPath, "vendor_id", vendorID)
		return Device{}, false
	}

	uevent := sysfs.ParseUevent(filepath.Join(devicePath, "uevent"))
	busID := uevent["PCI_SLOT_NAME"]

	return Device{
		CardPath:   cardPath,
		DevicePath: devicePath,
		PCIBusID:   busID,
		Name:       e.resolveName(ctx, devicePath, busID, vendor, uevent),
		Vendor:     vendor,
	}, true
}

// resolveName tries product_name, then the PCI lookup, then the uevent
// driver and PCI ID, then a vendor fallback.
func (e *Enumerator) resolveName(ctx context.Context, devicePath, busID string, vendor Vendor, uevent map[string]string) string {
	if name, ok := sysfs.ReadFirstLine(filepath.Join(devicePath, "product_name")); ok {
		return name
	}

	if busID != "" && e.lookup != nil {
		name, err := e.lookup.Lookup(ctx, busID)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			e.logger.Debug("pci lookup failed", "bus_id", busID, "error", err)
		}
	}

	if driver := strings.TrimSpace(uevent["DRIVER"]); driver != "" {
		if id := strings.TrimSpace(uevent["PCI_ID"]); id != "" {
			return driver + " (" + id + ")"
		}
		return driver
	}

	return vendor.FallbackName()
}
