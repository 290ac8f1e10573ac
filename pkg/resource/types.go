package resource

// SystemUsage is an instantaneous snapshot of system-wide resource
// consumption, matching the ResourceMonitor system_usage() query.
type SystemUsage struct {
	CPUUsagePercent    float64
	MemoryTotalBytes   uint64
	MemoryUsedBytes    uint64
	MemoryUsagePercent float64
	SwapTotalBytes     uint64
	SwapUsedBytes      uint64
	SwapUsagePercent   float64
}

// SystemLoad averages SystemUsage over the rolling history window
// (system_load()).
type SystemLoad struct {
	CPULoadPercent    float64
	MemoryLoadPercent float64
}

// DiskIO is the cumulative read/write byte count for one block device.
type DiskIO struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// NetIO is the cumulative rx/tx byte count for one network interface.
type NetIO struct {
	RxBytes uint64
	TxBytes uint64
}

// procSample is the raw per-process reading taken each tick, kept so the
// next tick can compute a CPU delta.
type procSample struct {
	pid         int
	ppid        int
	cpuSeconds  float64
	rssBytes    uint64
	vsizeBytes  uint64
	readBytes   uint64
	writeBytes  uint64
	takenAtNano int64
}
