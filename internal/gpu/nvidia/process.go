package nvidia

import (
	"strconv"

	"github.com/shirou/gopsutil/v3/process"
)

func fallbackProcessName(pid uint32) string {
	return "PID " + strconv.FormatUint(uint64(pid), 10)
}

// systemProcessNamer resolves executable names from the process table.
// Processes in other PID namespaces, or ones that already exited, fall back
// to "PID <n>".
type systemProcessNamer struct{}

func (systemProcessNamer) ProcessName(pid uint32) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fallbackProcessName(pid)
	}
	name, err := p.Name()
	if err != nil || name == "" {
		return fallbackProcessName(pid)
	}
	return name
}
