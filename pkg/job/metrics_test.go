package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	sample ProcessSample
	ok     bool
}

func (f fakeSampler) ProcessUsage(pid int) (ProcessSample, bool) {
	return f.sample, f.ok
}

func TestMetricsCollectorBasic(t *testing.T) {
	mc := NewMetricsCollector(nil)
	j := newJob("job-1", Options{Command: "true"})
	j.setStarted(42, nil)

	m := mc.Collect(j)
	assert.Equal(t, "job-1", m.JobID)
	assert.Equal(t, 42, m.PID)
	assert.Equal(t, StatusRunning, m.Status)
}

func TestMetricsCollectorWithSampler(t *testing.T) {
	mc := NewMetricsCollector(fakeSampler{
		sample: ProcessSample{CPUPercent: 12.5, MemoryBytes: 2048},
		ok:     true,
	})
	j := newJob("job-2", Options{Command: "true"})
	j.setStarted(7, nil)

	m := mc.Collect(j)
	assert.Equal(t, 12.5, m.CPUPercent)
	assert.Equal(t, uint64(2048), m.MemoryBytes)
}

func TestMetricsCollectorCustomMetrics(t *testing.T) {
	mc := NewMetricsCollector(nil)
	j := newJob("job-3", Options{Command: "true"})
	mc.Collect(j)

	mc.AddCustom("job-3", "records_processed", 42)
	m, ok := mc.History("job-3")
	require.True(t, ok)
	assert.Equal(t, 42.0, m.Custom["records_processed"])
}

func TestMetricsCollectorQueueTime(t *testing.T) {
	mc := NewMetricsCollector(nil)
	j := newJob("job-4", Options{Command: "true"})
	mc.RecordQueued(j.ID())

	time.Sleep(15 * time.Millisecond)
	j.setStarted(99, nil)

	m := mc.Collect(j)
	assert.GreaterOrEqual(t, m.QueueTimeMs, uint64(10))
}

func TestMetricsCollectorForget(t *testing.T) {
	mc := NewMetricsCollector(nil)
	j := newJob("job-5", Options{Command: "true"})
	mc.Collect(j)

	mc.Forget("job-5")
	_, ok := mc.History("job-5")
	assert.False(t, ok)
}
