package intel

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/CristiGvl/picoGPUMon/internal/sysfs"
)

// Engine classes as named by the i915 uapi.
const (
	ClassRender       = "Render"
	ClassCopy         = "Copy"
	ClassVideo        = "Video"
	ClassVideoEnhance = "VideoEnhance"
	ClassCompute      = "Compute"
	ClassUnknown      = "Unknown"
)

// Engine is one hardware engine and its counters from the latest poll.
type Engine struct {
	Name               string `json:"name"`
	Class              string `json:"class"`
	UtilizationPercent int    `json:"utilization_percent"`
	BusyNs             uint64 `json:"busy_ns"`
	Instances          int    `json:"instances"`
}

// engineDescriptor is the static part of an engine, kept in the cache.
type engineDescriptor struct {
	name  string
	class string
}

// classFromName guesses the class from the engine directory name.
// vecs is checked before vcs.
func classFromName(name string) string {
	switch {
	case strings.HasPrefix(name, "rcs"):
		return ClassRender
	case strings.HasPrefix(name, "bcs"):
		return ClassCopy
	case strings.HasPrefix(name, "vecs"):
		return ClassVideoEnhance
	case strings.HasPrefix(name, "vcs"):
		return ClassVideo
	case strings.HasPrefix(name, "ccs"):
		return ClassCompute
	default:
		return ClassUnknown
	}
}

// uapiClasses maps the numeric drm_i915_gem_engine_class values.
var uapiClasses = map[string]string{
	"0": ClassRender,
	"1": ClassCopy,
	"2": ClassVideo,
	"3": ClassVideoEnhance,
	"4": ClassCompute,
}

// readClass returns the engine's class file if present, otherwise the
// name-based guess.
func readClass(enginePath, name string) string {
	raw, ok := sysfs.ReadFirstLine(filepath.Join(enginePath, "class"))
	if !ok {
		return classFromName(name)
	}
	if class, known := uapiClasses[raw]; known {
		return class
	}
	return raw
}

// readEngine reads the volatile counters of one engine. It reports whether a
// busy counter was readable.
func readEngine(enginePath string, desc engineDescriptor) (Engine, bool) {
	e := Engine{
		Name:               desc.name,
		Class:              desc.class,
		UtilizationPercent: -1,
		Instances:          1,
	}
	hasData := false

	if v, ok := sysfs.ReadInteger(filepath.Join(enginePath, "busy_percent")); ok && v >= 0 {
		e.UtilizationPercent = int(v)
		hasData = true
	}
	if v, ok := sysfs.ReadInteger(filepath.Join(enginePath, "busy_ns")); ok && v >= 0 {
		e.BusyNs = uint64(v)
		hasData = true
	}
	if v, ok := sysfs.ReadInteger(filepath.Join(enginePath, "instances")); ok && v > 0 {
		e.Instances = int(v)
	}
	return e, hasData
}

// discoverEngines lists the engine directory of a device. Engines with no
// readable busy counter are left out.
func discoverEngines(devicePath string) []engineDescriptor {
	engineRoot := filepath.Join(devicePath, "engine")
	entries, err := os.ReadDir(engineRoot)
	if err != nil {
		return nil
	}

	var descs []engineDescriptor
	for _, entry := range entries {
		path := filepath.Join(engineRoot, entry.Name())
		if !sysfs.IsDir(path) {
			continue
		}
		desc := engineDescriptor{name: entry.Name(), class: readClass(path, entry.Name())}
		if _, ok := readEngine(path, desc); ok {
			descs = append(descs, desc)
		}
	}
	return descs
}

// averageUtilization is the mean busy percentage over engines with a
// readable counter, optionally restricted to one class. It reports false
// when no engine qualifies.
func averageUtilization(engines []Engine, class string) (int, bool) {
	sum, n := 0, 0
	for _, e := range engines {
		if e.UtilizationPercent < 0 {
			continue
		}
		if class != "" && e.Class != class {
			continue
		}
		sum += e.UtilizationPercent
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}
