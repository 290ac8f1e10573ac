package resource

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nexusshell/corectl/pkg/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Interval = 20 * time.Millisecond
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestSystemUsageReportsMemory(t *testing.T) {
	m := newTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.SystemUsage().MemoryTotalBytes > 0
	}, time.Second, 10*time.Millisecond)

	u := m.SystemUsage()
	assert.GreaterOrEqual(t, u.MemoryUsagePercent, 0.0)
}

func TestSystemLoadAveragesHistory(t *testing.T) {
	m := newTestMonitor(t)
	m.cpuHistory = []float64{10, 20, 30}
	m.memHistory = []float64{40, 60}

	load := m.SystemLoad()
	assert.Equal(t, 20.0, load.CPULoadPercent)
	assert.Equal(t, 50.0, load.MemoryLoadPercent)
}

func TestProcessUsageTracksCurrentProcess(t *testing.T) {
	m := newTestMonitor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	pid := os.Getpid()
	require.Eventually(t, func() bool {
		_, ok := m.ProcessUsage(pid)
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCanExecuteNilLimitsAlwaysAllowed(t *testing.T) {
	m := newTestMonitor(t)
	assert.True(t, m.CanExecute(nil))
}

func TestCanExecuteDeniesOverMemoryLimit(t *testing.T) {
	m := newTestMonitor(t)
	// Any real host has used more than one byte of memory.
	assert.False(t, m.CanExecute(&job.ResourceLimits{MemoryBytes: 1}))
}

func TestProcessTreeUsageAggregatesChildren(t *testing.T) {
	m := newTestMonitor(t)
	m.procUsage = map[int]job.ProcessSample{
		1: {CPUPercent: 5, MemoryBytes: 100},
		2: {CPUPercent: 3, MemoryBytes: 50},
		3: {CPUPercent: 1, MemoryBytes: 10},
	}
	m.procParent = map[int]int{2: 1, 3: 2}

	total := m.ProcessTreeUsage(1)
	assert.Equal(t, 9.0, total.CPUPercent)
	assert.Equal(t, uint64(160), total.MemoryBytes)
}

func TestDiskAndNetIOStatsReturnCopies(t *testing.T) {
	m := newTestMonitor(t)
	m.diskIO = map[string]DiskIO{"sda": {ReadBytes: 1}}
	m.netIO = map[string]NetIO{"eth0": {RxBytes: 2}}

	disk := m.DiskIOStats()
	disk["sda"] = DiskIO{ReadBytes: 999}
	assert.Equal(t, uint64(1), m.diskIO["sda"].ReadBytes)

	net := m.NetIOStats()
	net["eth0"] = NetIO{RxBytes: 999}
	assert.Equal(t, uint64(2), m.netIO["eth0"].RxBytes)
}
