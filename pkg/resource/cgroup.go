package resource

import (
	cgroupsv1 "github.com/containerd/cgroups"
)

// CgroupMemoryUsageBytes reads the current memory.usage_in_bytes for a
// cgroup v1 path (e.g. a container's cgroup), supplementing the procfs-
// derived per-pid figures with the kernel's own accounting. Returns false
// on any failure — no cgroup v1 hierarchy mounted, path not found, or a
// cgroup v2-only host — since this is strictly a best-effort enrichment,
// never the sole source for an admission decision.
func CgroupMemoryUsageBytes(path string) (uint64, bool) {
	cg, err := cgroupsv1.Load(cgroupsv1.V1, cgroupsv1.StaticPath(path))
	if err != nil {
		return 0, false
	}
	metrics, err := cg.Stat()
	if err != nil || metrics.Memory == nil || metrics.Memory.Usage == nil {
		return 0, false
	}
	return metrics.Memory.Usage.Usage, true
}

// CgroupCPUUsageNanos reads cumulative CPU time consumed by a cgroup v1
// path, in nanoseconds, for callers that want a kernel-accounted figure
// instead of the procfs per-pid delta (e.g. containers whose processes
// span multiple pids across a pause/resume cycle).
func CgroupCPUUsageNanos(path string) (uint64, bool) {
	cg, err := cgroupsv1.Load(cgroupsv1.V1, cgroupsv1.StaticPath(path))
	if err != nil {
		return 0, false
	}
	metrics, err := cg.Stat()
	if err != nil || metrics.CPU == nil || metrics.CPU.Usage == nil {
		return 0, false
	}
	return metrics.CPU.Usage.Total, true
}
