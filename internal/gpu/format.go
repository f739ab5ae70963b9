package gpu

import (
	"fmt"
	"strconv"
)

// Dash is shown in place of a value that could not be read, so an absent
// reading is never mistaken for a real zero.
const Dash = "-"

// FormatInt renders v with a unit suffix, or Dash for the sentinel.
func FormatInt(v int, unit string) string {
	if v < 0 {
		return Dash
	}
	return strconv.Itoa(v) + unit
}

// FormatClock renders a kHz clock as MHz.
func FormatClock(kHz int64) string {
	if kHz < 0 {
		return Dash
	}
	return strconv.FormatInt(kHz/1000, 10) + " MHz"
}

// FormatWatts renders a power reading with one decimal.
func FormatWatts(w float64) string {
	if w < 0 {
		return Dash
	}
	return fmt.Sprintf("%.1f W", w)
}

// FormatMemory renders used/total in MiB. An unknown total renders as Dash.
func FormatMemory(used, total uint64) string {
	if total == 0 {
		return Dash
	}
	const mib = 1024 * 1024
	return fmt.Sprintf("%d/%d MiB", used/mib, total/mib)
}

// FormatString returns s, or Dash when it is empty.
func FormatString(s string) string {
	if s == "" {
		return Dash
	}
	return s
}
