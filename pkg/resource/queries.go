package resource

import (
	"time"

	"github.com/nexusshell/corectl/pkg/job"
)

// SystemUsage returns the latest system-wide resource snapshot.
func (m *Monitor) SystemUsage() SystemUsage {
	meminfo, _ := m.fs.Meminfo()

	var u SystemUsage
	m.mu.RLock()
	if len(m.cpuHistory) > 0 {
		u.CPUUsagePercent = m.cpuHistory[len(m.cpuHistory)-1]
	}
	m.mu.RUnlock()

	if meminfo.MemTotal != nil {
		u.MemoryTotalBytes = *meminfo.MemTotal * 1024
	}
	if meminfo.MemAvailable != nil {
		avail := *meminfo.MemAvailable * 1024
		if avail < u.MemoryTotalBytes {
			u.MemoryUsedBytes = u.MemoryTotalBytes - avail
		}
	}
	if u.MemoryTotalBytes > 0 {
		u.MemoryUsagePercent = float64(u.MemoryUsedBytes) / float64(u.MemoryTotalBytes) * 100
	}
	if meminfo.SwapTotal != nil {
		u.SwapTotalBytes = *meminfo.SwapTotal * 1024
	}
	if meminfo.SwapFree != nil {
		free := *meminfo.SwapFree * 1024
		if free < u.SwapTotalBytes {
			u.SwapUsedBytes = u.SwapTotalBytes - free
		}
	}
	if u.SwapTotalBytes > 0 {
		u.SwapUsagePercent = float64(u.SwapUsedBytes) / float64(u.SwapTotalBytes) * 100
	}
	return u
}

// CPUUsagePercent and MemoryUsagePercent expose the latest system usage as
// bare floats, satisfying pkg/pipeline's ResourceChecker interface for
// ResourceOptimized scheduling's admission check.
func (m *Monitor) CPUUsagePercent() float64    { return m.SystemUsage().CPUUsagePercent }
func (m *Monitor) MemoryUsagePercent() float64 { return m.SystemUsage().MemoryUsagePercent }

// SystemLoad averages the CPU/memory history windows; a window with no
// samples yet reports 0.
func (m *Monitor) SystemLoad() SystemLoad {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var load SystemLoad
	if len(m.cpuHistory) > 0 {
		load.CPULoadPercent = average(m.cpuHistory)
	}
	if len(m.memHistory) > 0 {
		load.MemoryLoadPercent = average(m.memHistory)
	}
	return load
}

func average(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// ProcessUsage returns the most recently sampled usage for pid, satisfying
// job.ProcessSampler so a MetricsCollector can be wired directly to a
// Monitor.
func (m *Monitor) ProcessUsage(pid int) (job.ProcessSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.procUsage[pid]
	return s, ok
}

// ProcessTreeUsage aggregates pid's usage with every transitive descendant
// discovered in the last sample, matching process_tree_usage(). This is a
// reporting-only aggregation: the job signal path never consults it, only
// the direct process group (§ job child-pid tracking).
func (m *Monitor) ProcessTreeUsage(pid int) job.ProcessSample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total job.ProcessSample
	if root, ok := m.procUsage[pid]; ok {
		total = root
	}
	for _, child := range m.descendantsLocked(pid) {
		if u, ok := m.procUsage[child]; ok {
			total.CPUPercent += u.CPUPercent
			total.MemoryBytes += u.MemoryBytes
			total.DiskReadBytes += u.DiskReadBytes
			total.DiskWriteBytes += u.DiskWriteBytes
		}
	}
	return total
}

func (m *Monitor) descendantsLocked(pid int) []int {
	var out []int
	for child, parent := range m.procParent {
		if parent == pid {
			out = append(out, child)
			out = append(out, m.descendantsLocked(child)...)
		}
	}
	return out
}

// DiskIOStats returns a copy of the last-sampled per-device cumulative
// read/write counters.
func (m *Monitor) DiskIOStats() map[string]DiskIO {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]DiskIO, len(m.diskIO))
	for k, v := range m.diskIO {
		out[k] = v
	}
	return out
}

// NetIOStats returns a copy of the last-sampled per-interface cumulative
// rx/tx counters.
func (m *Monitor) NetIOStats() map[string]NetIO {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]NetIO, len(m.netIO))
	for k, v := range m.netIO {
		out[k] = v
	}
	return out
}

// CanExecute is the admission check: it returns false if any resource
// limit on the job would currently be violated by the live system
// snapshot, or if the configured aggregate I/O/network rate budget has no
// tokens left.
func (m *Monitor) CanExecute(limits *job.ResourceLimits) bool {
	if limits == nil {
		return true
	}
	usage := m.SystemUsage()

	if limits.CPUPercent > 0 && usage.CPUUsagePercent > limits.CPUPercent {
		m.logger.Warn().
			Float64("current", usage.CPUUsagePercent).
			Float64("limit", limits.CPUPercent).
			Msg("admission denied: CPU usage over limit")
		return false
	}
	if limits.MemoryBytes > 0 && usage.MemoryUsedBytes > limits.MemoryBytes {
		m.logger.Warn().
			Uint64("current", usage.MemoryUsedBytes).
			Uint64("limit", limits.MemoryBytes).
			Msg("admission denied: memory usage over limit")
		return false
	}
	if limits.IOBytesPerSec > 0 && m.ioLimiter != nil {
		if !m.ioLimiter.AllowN(time.Now(), int(limits.IOBytesPerSec)) {
			return false
		}
	}
	if limits.NetBytesPerSec > 0 && m.netLimiter != nil {
		if !m.netLimiter.AllowN(time.Now(), int(limits.NetBytesPerSec)) {
			return false
		}
	}
	return true
}
