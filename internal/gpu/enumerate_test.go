package gpu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate_MixedVendors(t *testing.T) {
	root := t.TempDir()

	syntheticCard(t, root, "card0", map[string]string{
		"vendor":       "0x8086\n",
		"uevent":       "DRIVER=i915\nPCI_ID=8086:9A49\nPCI_SLOT_NAME=0000:00:02.0\n",
		"product_name": "Iris Xe Graphics\n",
	})
	syntheticCard(t, root, "card1", map[string]string{
		"vendor": "0x10de\n",
		"uevent": "DRIVER=nvidia\nPCI_ID=10DE:21C4\nPCI_SLOT_NAME=0000:01:00.0\n",
	})
	syntheticCard(t, root, "card2", map[string]string{
		"vendor": "0x1002\n",
		"uevent": "DRIVER=amdgpu\nPCI_ID=1002:73BF\nPCI_SLOT_NAME=0000:03:00.0\n",
	})
	// Connector entries and unknown vendors are skipped.
	syntheticCard(t, root, "card0-HDMI-A-1", map[string]string{"vendor": "0x8086"})
	syntheticCard(t, root, "card3", map[string]string{"vendor": "0x1af4"})
	writeSyntheticFile(t, filepath.Join(root, "class", "drm", "renderD128", "dev"), "226:128")

	lookup := &stubLookup{names: map[string]string{
		"0000:01:00.0": "TU116 [GeForce GTX 1660 SUPER]",
	}}

	e := NewEnumerator(WithSysfsRoot(root), WithPCILookup(lookup))
	devices := e.Enumerate(context.Background())

	require.Len(t, devices, 3)

	assert.Equal(t, Intel, devices[0].Vendor)
	assert.Equal(t, "Iris Xe Graphics", devices[0].Name)
	assert.Equal(t, "0000:00:02.0", devices[0].PCIBusID)
	assert.Equal(t, "card0", devices[0].ID())
	assert.Equal(t, filepath.Join(root, "class", "drm", "card0", "device"), devices[0].DevicePath)

	assert.Equal(t, NVIDIA, devices[1].Vendor)
	assert.Equal(t, "TU116 [GeForce GTX 1660 SUPER]", devices[1].Name)

	assert.Equal(t, AMD, devices[2].Vendor)
	assert.Equal(t, "amdgpu (1002:73BF)", devices[2].Name, "uevent fallback when lookup has nothing")

	assert.NotContains(t, lookup.calls, "0000:00:02.0", "product_name wins before lspci runs")
	for _, d := range devices {
		assert.NotEqual(t, Unknown, d.Vendor)
	}
}

func TestEnumerate_OrdersByCardIndex(t *testing.T) {
	root := t.TempDir()
	for _, card := range []string{"card10", "card2", "card1"} {
		syntheticCard(t, root, card, map[string]string{"vendor": "0x1002"})
	}

	devices := NewEnumerator(WithSysfsRoot(root), WithPCILookup(nil)).Enumerate(context.Background())

	require.Len(t, devices, 3)
	assert.Equal(t, "card1", devices[0].ID())
	assert.Equal(t, "card2", devices[1].ID())
	assert.Equal(t, "card10", devices[2].ID())
}

func TestEnumerate_NameFallbacks(t *testing.T) {
	root := t.TempDir()
	syntheticCard(t, root, "card0", map[string]string{
		"vendor": "0x10de",
		"uevent": "PCI_SLOT_NAME=0000:01:00.0\n",
	})
	syntheticCard(t, root, "card1", map[string]string{
		"vendor": "0x1022",
		"uevent": "DRIVER=amdgpu\n",
	})

	lookup := &stubLookup{err: errors.New("exec: \"lspci\": executable file not found in $PATH")}
	devices := NewEnumerator(WithSysfsRoot(root), WithPCILookup(lookup)).Enumerate(context.Background())

	require.Len(t, devices, 2)
	assert.Equal(t, "NVIDIA GPU", devices[0].Name, "lookup failure falls through to vendor name")
	assert.Equal(t, AMD, devices[1].Vendor, "0x1022 is AMD")
	assert.Equal(t, "amdgpu", devices[1].Name)
	assert.Equal(t, []string{"0000:01:00.0"}, lookup.calls, "no lookup without a bus id")
}

func TestEnumerate_SkipsMalformedCards(t *testing.T) {
	root := t.TempDir()

	// No device directory.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "drm", "card0"), 0o755))
	// Unreadable vendor.
	syntheticCard(t, root, "card1", map[string]string{"vendor": "not-hex"})
	// Valid.
	syntheticCard(t, root, "card2", map[string]string{"vendor": "0x8086"})

	devices := NewEnumerator(WithSysfsRoot(root), WithPCILookup(nil)).Enumerate(context.Background())

	require.Len(t, devices, 1)
	assert.Equal(t, "card2", devices[0].ID())
	assert.Equal(t, "Intel GPU", devices[0].Name)
}

func TestEnumerate_NoDRM(t *testing.T) {
	devices := NewEnumerator(WithSysfsRoot(t.TempDir())).Enumerate(context.Background())
	assert.Empty(t, devices)
}

func TestVendorFromPCIID(t *testing.T) {
	assert.Equal(t, NVIDIA, VendorFromPCIID(0x10de))
	assert.Equal(t, AMD, VendorFromPCIID(0x1002))
	assert.Equal(t, AMD, VendorFromPCIID(0x1022))
	assert.Equal(t, Intel, VendorFromPCIID(0x8086))
	assert.Equal(t, Unknown, VendorFromPCIID(0x1af4))

	assert.Less(t, NVIDIA.Priority(), AMD.Priority())
	assert.Less(t, AMD.Priority(), Intel.Priority())
	assert.Less(t, Intel.Priority(), Unknown.Priority())
}
