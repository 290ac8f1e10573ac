package container

import (
	"fmt"

	"github.com/containerd/cgroups"
	cgroupstats "github.com/containerd/cgroups/stats/v1"
)

// loadCgroup returns the cgroup v1 (per-subsystem) cgroup backing pid,
// checking cgroups.Mode() first the way the runsc shim does before touching
// a PID's cgroup. On a host running the cgroup v2 unified hierarchy it
// returns an error.
func loadCgroup(pid int) (cgroups.Cgroup, error) {
	if cgroups.Mode() == cgroups.Unified {
		return nil, fmt.Errorf("cgroup v2 unified hierarchy not supported by this driver")
	}
	cg, err := cgroups.Load(cgroups.V1, cgroups.PidPath(pid))
	if err != nil {
		return nil, fmt.Errorf("load cgroup for pid %d: %w", pid, err)
	}
	return cg, nil
}

// freeze suspends every process in pid's cgroup (spec.md §4.7 pause via
// "cgroup-freezer suspend").
func freeze(pid int) error {
	cg, err := loadCgroup(pid)
	if err != nil {
		return err
	}
	return cg.Freeze()
}

// thaw resumes a cgroup previously suspended by freeze.
func thaw(pid int) error {
	cg, err := loadCgroup(pid)
	if err != nil {
		return err
	}
	return cg.Thaw()
}

// cgroupStats reads instantaneous CPU, memory, block I/O and pids
// counters for pid's cgroup into Stats, the shape Manager.Stats returns.
func cgroupStats(pid int) (Stats, error) {
	cg, err := loadCgroup(pid)
	if err != nil {
		return Stats{}, err
	}
	metrics, err := cg.Stat(cgroups.IgnoreNotExist)
	if err != nil {
		return Stats{}, fmt.Errorf("stat cgroup for pid %d: %w", pid, err)
	}
	return statsFromMetrics(metrics), nil
}

func statsFromMetrics(m *cgroupstats.Metrics) Stats {
	var s Stats
	if m.CPU != nil && m.CPU.Usage != nil {
		s.CPUUsageNanos = m.CPU.Usage.Total
	}
	if m.Memory != nil && m.Memory.Usage != nil {
		s.MemoryUsageBytes = m.Memory.Usage.Usage
		s.MemoryLimitBytes = m.Memory.Usage.Limit
	}
	if m.Pids != nil {
		s.PidsCurrent = m.Pids.Current
	}
	for _, entry := range m.Blkio.GetIoServiceBytesRecursive() {
		switch entry.Op {
		case "Read":
			s.BlockReadBytes += entry.Value
		case "Write":
			s.BlockWriteBytes += entry.Value
		}
	}
	return s
}
