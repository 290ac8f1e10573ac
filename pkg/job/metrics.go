package job

import (
	"sync"
	"time"
)

// ProcessSample is the subset of a resource-monitor reading a job cares
// about. pkg/resource.Monitor implements ProcessSampler; kept as a small
// local interface so pkg/job never imports pkg/resource.
type ProcessSample struct {
	CPUPercent     float64
	MemoryBytes    uint64
	DiskReadBytes  uint64
	DiskWriteBytes uint64
}

type ProcessSampler interface {
	ProcessUsage(pid int) (ProcessSample, bool)
}

// Metrics is the per-job metrics record distinct from a pipeline Stage's
// metrics (§4.4): wall-clock duration, resource usage and I/O volume for
// one job invocation, plus any custom counters a caller attaches.
type Metrics struct {
	JobID             string
	Status            Status
	CPUPercent        float64
	MemoryBytes       uint64
	ExecutionTimeMs   uint64
	QueueTimeMs       uint64
	StdoutBytes       int
	StderrBytes       int
	DiskReadBytes     uint64
	DiskWriteBytes    uint64
	PID               int
	ChildProcessCount int
	ExitCode          *int
	Timestamp         time.Time
	Custom            map[string]float64
}

// MetricsCollector builds Metrics snapshots for jobs tracked by a
// Controller, optionally enriched with live resource-monitor samples.
type MetricsCollector struct {
	mu         sync.RWMutex
	sampler    ProcessSampler
	queuedAt   map[string]time.Time
	lastMetric map[string]Metrics
}

// NewMetricsCollector creates a collector. sampler may be nil if no
// resource monitor is wired up yet, in which case CPU/memory/disk fields
// are left zero.
func NewMetricsCollector(sampler ProcessSampler) *MetricsCollector {
	return &MetricsCollector{
		sampler:    sampler,
		queuedAt:   make(map[string]time.Time),
		lastMetric: make(map[string]Metrics),
	}
}

// RecordQueued notes the instant a job entered the Pending queue, used
// to compute queue-wait time once it starts running.
func (mc *MetricsCollector) RecordQueued(jobID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.queuedAt[jobID] = time.Now()
}

// Collect builds a Metrics snapshot for j.
func (mc *MetricsCollector) Collect(j *Job) Metrics {
	m := Metrics{
		JobID:     j.ID(),
		Status:    j.Status(),
		Timestamp: time.Now(),
		Custom:    make(map[string]float64),
	}

	m.StdoutBytes = len(j.Stdout())
	m.StderrBytes = len(j.Stderr())

	if pid, ok := j.PID(); ok {
		m.PID = pid
	}
	if code, ok := j.ExitCode(); ok {
		c := code
		m.ExitCode = &c
	}
	m.ChildProcessCount = len(j.ChildPIDs())

	if start := j.StartedAt(); start != nil {
		end := time.Now()
		if finish := j.FinishedAt(); finish != nil {
			end = *finish
		}
		m.ExecutionTimeMs = uint64(end.Sub(*start).Milliseconds())
	}

	mc.mu.RLock()
	queuedAt, hasQueue := mc.queuedAt[j.ID()]
	mc.mu.RUnlock()
	if hasQueue {
		if start := j.StartedAt(); start != nil {
			m.QueueTimeMs = uint64(start.Sub(queuedAt).Milliseconds())
		}
	}

	if mc.sampler != nil && m.PID != 0 {
		if sample, ok := mc.sampler.ProcessUsage(m.PID); ok {
			m.CPUPercent = sample.CPUPercent
			m.MemoryBytes = sample.MemoryBytes
			m.DiskReadBytes = sample.DiskReadBytes
			m.DiskWriteBytes = sample.DiskWriteBytes
		}
	}

	mc.mu.Lock()
	mc.lastMetric[j.ID()] = m
	mc.mu.Unlock()

	return m
}

// AddCustom attaches a named custom counter to the most recently
// collected metrics for jobID, matching the reference collector's
// per-job custom-metrics callback support.
func (mc *MetricsCollector) AddCustom(jobID, key string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	m, ok := mc.lastMetric[jobID]
	if !ok {
		m = Metrics{JobID: jobID, Custom: make(map[string]float64)}
	}
	if m.Custom == nil {
		m.Custom = make(map[string]float64)
	}
	m.Custom[key] = value
	mc.lastMetric[jobID] = m
}

// History returns the last collected Metrics for jobID, if any.
func (mc *MetricsCollector) History(jobID string) (Metrics, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.lastMetric[jobID]
	return m, ok
}

// Forget drops cached queue-time and metrics bookkeeping for a job that
// has left history (post CleanupOldJobs).
func (mc *MetricsCollector) Forget(jobID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.queuedAt, jobID)
	delete(mc.lastMetric, jobID)
}
