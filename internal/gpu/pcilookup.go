package gpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultLookupTimeout bounds one lspci invocation.
const DefaultLookupTimeout = 3 * time.Second

// PCILookup resolves a PCI bus address to a product description.
type PCILookup interface {
	Lookup(ctx context.Context, busID string) (string, error)
}

// LSPCI runs the pciutils lspci binary.
type LSPCI struct {
	// Path to the binary; "lspci" resolves through PATH.
	Path    string
	Timeout time.Duration
}

// NewLSPCI returns a lookup that runs lspci with the default timeout.
func NewLSPCI() *LSPCI {
	return &LSPCI{Path: "lspci", Timeout: DefaultLookupTimeout}
}

// Lookup runs `lspci -s <busID>` and extracts the product description.
func (l *LSPCI) Lookup(ctx context.Context, busID string) (string, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := l.Path
	if path == "" {
		path = "lspci"
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-s", busID)
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("lspci %s: timed out after %v", busID, timeout)
		}
		return "", fmt.Errorf("lspci %s: %w", busID, err)
	}

	name := ParseLSPCIName(stdout.String())
	if name == "" {
		return "", fmt.Errorf("lspci %s: no product description in output", busID)
	}
	return name, nil
}

var lspciVendorPrefixes = []struct {
	match, replace string
}{
	{"NVIDIA Corporation ", ""},
	{"Advanced Micro Devices, Inc. [AMD/ATI] ", "AMD "},
	{"Intel Corporation ", "Intel "},
}

// ParseLSPCIName extracts the product from a line such as
// "01:00.0 VGA compatible controller: NVIDIA Corporation TU116 [GeForce GTX 1660 SUPER] (rev a1)".
// The text after the second colon is kept, the revision suffix is dropped and
// the vendor's corporate name is shortened.
func ParseLSPCIName(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")

	first := strings.IndexByte(line, ':')
	if first < 0 {
		return ""
	}
	second := strings.IndexByte(line[first+1:], ':')
	if second < 0 {
		return ""
	}

	product := strings.TrimSpace(line[first+1+second+1:])
	if rev := strings.Index(product, " (rev "); rev > 0 {
		product = product[:rev]
	}

	for _, p := range lspciVendorPrefixes {
		if strings.Contains(product, p.match) {
			product = strings.Replace(product, p.match, p.replace, 1)
			break
		}
	}
	return strings.TrimSpace(product)
}
