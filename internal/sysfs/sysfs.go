// Package sysfs reads the small attribute files the kernel exposes under /sys.
//
// Every helper reports absence with a false second return value instead of an
// error. Most attributes are legitimately missing on hardware that lacks the
// feature, so callers treat a miss as "no data" and move on.
package sysfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadFirstLine returns the first line of path with surrounding whitespace
// removed. It reports false if the file is missing, unreadable or blank.
func ReadFirstLine(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false
	}

	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return "", false
	}
	return line, true
}

// ReadInteger parses the first line of path as an integer. Decimal and
// prefixed forms such as "0x1002" are both accepted.
func ReadInteger(path string) (int64, bool) {
	line, ok := ReadFirstLine(path)
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseInt(line, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadContent returns the whole file trimmed. Multi-line listings such as the
// amdgpu pp_dpm_* files need every line, not just the first.
func ReadContent(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", false
	}
	return content, true
}

// ParseUevent reads a KEY=VALUE uevent file into a map. A missing file
// yields an empty map.
func ParseUevent(path string) map[string]string {
	fields := make(map[string]string)

	content, ok := ReadContent(path)
	if !ok {
		return fields
	}

	for _, line := range strings.Split(content, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found || key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

// ReadLinkBase returns the last path element of the symlink target at path,
// e.g. "amdgpu" for device/driver -> ../../bus/pci/drivers/amdgpu.
func ReadLinkBase(path string) (string, bool) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", false
	}

	base := filepath.Base(target)
	if base == "." || base == string(filepath.Separator) {
		return "", false
	}
	return base, true
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
