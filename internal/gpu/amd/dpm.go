package amd

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ClockLevel is one line of a pp_dpm_* listing.
type ClockLevel struct {
	Index  int  `json:"index"`
	MHz    int  `json:"mhz"`
	Active bool `json:"active"`
}

// PowerProfile is one selectable mode from pp_power_profile_mode.
type PowerProfile struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

var (
	// "1: 600Mhz *", "S: 19Mhz", "0: 1.2GHz"
	dpmLevelPattern = regexp.MustCompile(`(?i)^\s*(\w+):\s*(\d+(?:\.\d+)?)\s*([mg])hz\s*(\*)?`)
	dpmFreqPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([mg])hz`)

	// " 1 3D_FULL_SCREEN *:" or "  0 BOOTUP_DEFAULT*:"
	profilePattern = regexp.MustCompile(`^\s*(\d+)\s+([A-Za-z0-9_]+)\s*(\*)?\s*:?`)
)

// toMHz scales a matched frequency to MHz.
func toMHz(value, unit string) (int, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(unit, "g") {
		f *= 1000
	}
	return int(math.Round(f)), true
}

// ParseCurrentClock returns the frequency in MHz of the line marked with '*'.
// Content without a marked line, or a marked line with no frequency,
// reports false.
func ParseCurrentClock(content string) (int, bool) {
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "*") {
			continue
		}
		m := dpmFreqPattern.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		return toMHz(m[1], m[2])
	}
	return 0, false
}

// ParseClockLevels parses every level of a pp_dpm_* listing. Levels with a
// non-numeric index, such as the deep-sleep "S:" line, get index -1.
func ParseClockLevels(content string) []ClockLevel {
	var levels []ClockLevel
	for _, line := range strings.Split(content, "\n") {
		m := dpmLevelPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mhz, ok := toMHz(m[2], m[3])
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			idx = -1
		}
		levels = append(levels, ClockLevel{Index: idx, MHz: mhz, Active: m[4] != ""})
	}
	return levels
}

// ParsePowerProfiles parses the mode table of pp_power_profile_mode. Header
// rows and per-clock detail rows are skipped.
func ParsePowerProfiles(content string) []PowerProfile {
	var profiles []PowerProfile
	for _, line := range strings.Split(content, "\n") {
		m := profilePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		profiles = append(profiles, PowerProfile{Index: idx, Name: m[2], Active: m[3] != ""})
	}
	return profiles
}

// linkGenerations maps a PCIe transfer rate in GT/s to its generation.
var linkGenerations = []struct {
	rate float64
	gen  int
}{
	{2.5, 1}, {5, 2}, {8, 3}, {16, 4}, {32, 5}, {64, 6},
}

// ParseLinkGeneration converts current_link_speed content such as
// "16.0 GT/s PCIe" to a PCIe generation.
func ParseLinkGeneration(speed string) (int, bool) {
	fields := strings.Fields(speed)
	if len(fields) == 0 {
		return 0, false
	}
	rate, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	for _, g := range linkGenerations {
		if rate == g.rate {
			return g.gen, true
		}
	}
	return 0, false
}
