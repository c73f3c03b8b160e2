package queue

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// HostLoad is one sample of host resource pressure.
type HostLoad struct {
	// LoadPerCPU is the 1-minute load average divided by the CPU count.
	LoadPerCPU float64
	// FreeMemoryPercent is free plus buffer RAM as a share of total.
	FreeMemoryPercent float64
}

// LoadProbe samples host load for admission decisions.
type LoadProbe interface {
	Sample() (HostLoad, error)
}

// LoadProbeFunc adapts a function to LoadProbe.
type LoadProbeFunc func() (HostLoad, error)

func (f LoadProbeFunc) Sample() (HostLoad, error) { return f() }

// SystemProbe reads load and memory from sysinfo(2).
type SystemProbe struct{}

// loadScale is the fixed-point scale of sysinfo load averages.
const loadScale = 1 << 16

func (SystemProbe) Sample() (HostLoad, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return HostLoad{}, fmt.Errorf("sysinfo: %w", err)
	}
	cpus := max(runtime.NumCPU(), 1)
	load := HostLoad{LoadPerCPU: float64(info.Loads[0]) / loadScale / float64(cpus)}
	if total := float64(info.Totalram); total > 0 {
		free := float64(info.Freeram) + float64(info.Bufferram)
		load.FreeMemoryPercent = free / total * 100
	}
	return load, nil
}

// admissionBlocked reports whether sample exceeds the configured thresholds.
func admissionBlocked(s Settings, sample HostLoad) (bool, string) {
	if s.MaxCPULoad > 0 && sample.LoadPerCPU > s.MaxCPULoad {
		return true, fmt.Sprintf("cpu load %.2f per core above %.2f", sample.LoadPerCPU, s.MaxCPULoad)
	}
	if s.MinFreeMemoryPercent > 0 && sample.FreeMemoryPercent < s.MinFreeMemoryPercent {
		return true, fmt.Sprintf("free memory %.1f%% below %.1f%%", sample.FreeMemoryPercent, s.MinFreeMemoryPercent)
	}
	return false, ""
}

func thresholdsEnabled(s Settings) bool {
	return s.MaxCPULoad > 0 || s.MinFreeMemoryPercent > 0
}
