// Package hwmon locates a device's hardware-monitoring subtree and reads the
// temperature, power and fan attributes the kernel places there.
package hwmon

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// FindDir returns the first hwmonN directory under devicePath/hwmon.
// Integrated GPUs frequently have no hwmon tree at all.
func FindDir(devicePath string) (string, bool) {
	base := filepath.Join(devicePath, "hwmon")
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "hwmon") {
			return filepath.Join(base, entry.Name()), true
		}
	}
	return "", false
}

// FindFiles returns the files in dir matching a glob such as "temp*_input",
// in lexical order.
func FindFiles(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	return matches
}

// ReadFirst returns the first readable integer among the files matching
// pattern in dir.
func ReadFirst(dir, pattern string) (int64, bool) {
	for _, path := range FindFiles(dir, pattern) {
		if v, ok := sysfs.ReadInteger(path); ok {
			return v, true
		}
	}
	return 0, false
}

// ReadFirstOf tries each of the named files in dir in order and returns the
// first readable integer.
func ReadFirstOf(dir string, names ...string) (int64, bool) {
	for _, name := range names {
		if v, ok := sysfs.ReadInteger(filepath.Join(dir, name)); ok {
			return v, true
		}
	}
	return 0, false
}

// Millidegrees converts a temp*_input reading to whole degrees Celsius.
func Millidegrees(v int64) int {
	return int(v / 1000)
}

// Microwatts converts a power*_* reading to watts.
func Microwatts(v int64) float64 {
	return float64(v) / 1_000_000
}

// pwmMax is the full-scale value of a pwmN duty-cycle attribute.
const pwmMax = 255

// ReadFan returns the fan speed in RPM and as a percentage of full scale.
// The percentage comes from fan*_input against fan*_max when both exist,
// otherwise from the pwm1 duty cycle.
func ReadFan(dir string) (rpm int, rpmOK bool, percent int, percentOK bool) {
	if v, ok := ReadFirst(dir, "fan*_input"); ok && v >= 0 {
		rpm, rpmOK = int(v), true
		if maxRPM, ok := ReadFirst(dir, "fan*_max"); ok {
			percent, percentOK = FanPercent(v, maxRPM)
		}
	}
	if !percentOK {
		if pwm, ok := sysfs.ReadInteger(filepath.Join(dir, "pwm1")); ok {
			percent, percentOK = FanPercent(pwm, pwmMax)
		}
	}
	return rpm, rpmOK, percent, percentOK
}

// FanPercent derives a duty percentage from a reading and its full-scale value.
// It reports false when full is not positive.
func FanPercent(rpm, full int64) (int, bool) {
	if full <= 0 || rpm < 0 {
		return 0, false
	}
	pct := rpm * 100 / full
	if pct > 100 {
		pct = 100
	}
	return int(pct), true
}
