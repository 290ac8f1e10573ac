// Package resource implements ResourceMonitor: a background sampler of
// system-wide and per-process CPU, memory, disk and network usage, and the
// admission check the job engine and pipeline scheduler use to decide
// whether a resource-limited job may start.
package resource

import (
	"context"
	"sync"
	"time"

	"github.com/nexusshell/corectl/pkg/job"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/prometheus/procfs"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes the sampler.
type Config struct {
	// Interval is the sampling cadence. Zero means DefaultConfig's 1s.
	Interval time.Duration
	// HistorySize bounds the rolling CPU/memory history window used by
	// SystemLoad.
	HistorySize int
	// IOBytesPerSecLimit and NetBytesPerSecLimit rate-limit how much I/O
	// and network throughput CanExecute will admit in aggregate across
	// all tracked jobs; zero disables the corresponding check.
	IOBytesPerSecLimit  float64
	NetBytesPerSecLimit float64
}

// DefaultConfig matches the reference sampler's 1s cadence and 60-sample
// (one minute) history window.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		HistorySize: 60,
	}
}

// Monitor is a background resource sampler. Shutdown is cooperative: Stop
// closes a channel the sample loop checks each tick, matching the
// reference implementation's running-flag design.
type Monitor struct {
	cfg    Config
	logger zerolog.Logger
	fs     procfs.FS

	mu            sync.RWMutex
	cpuHistory    []float64
	memHistory    []float64
	diskIO        map[string]DiskIO
	netIO         map[string]NetIO
	lastCPUTotal  cpuTotals
	haveLastCPU   bool
	prevProcStats map[int]procSample
	procUsage     map[int]job.ProcessSample
	procParent    map[int]int

	ioLimiter  *rate.Limiter
	netLimiter *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
}

type cpuTotals struct {
	idle  float64
	total float64
}

// New opens /proc and constructs a Monitor. It does not start sampling;
// call Start to begin the background loop.
func New(cfg Config) (*Monitor, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 60
	}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:           cfg,
		logger:        log.WithComponent("resource-monitor"),
		fs:            fs,
		diskIO:        make(map[string]DiskIO),
		netIO:         make(map[string]NetIO),
		prevProcStats: make(map[int]procSample),
		procUsage:     make(map[int]job.ProcessSample),
		procParent:    make(map[int]int),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	if cfg.IOBytesPerSecLimit > 0 {
		m.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSecLimit), int(cfg.IOBytesPerSecLimit))
	}
	if cfg.NetBytesPerSecLimit > 0 {
		m.netLimiter = rate.NewLimiter(rate.Limit(cfg.NetBytesPerSecLimit), int(cfg.NetBytesPerSecLimit))
	}
	return m, nil
}

// Start begins the sample loop in its own goroutine. ctx cancellation and
// Stop are equivalent ways to shut it down.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the sample loop and waits for it to exit.
func (m *Monitor) Stop() {
	select {
	case <-m.stopCh:
		return
	default:
		close(m.stopCh)
	}
	<-m.doneCh
}

func (m *Monitor) sample() {
	m.sampleCPUAndMemory()
	m.sampleDiskIO()
	m.sampleNetIO()
	m.sampleProcesses()
}

func (m *Monitor) sampleCPUAndMemory() {
	stat, err := m.fs.Stat()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read /proc/stat")
		return
	}
	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	nonIdle := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	total := idle + nonIdle

	var cpuPct float64
	m.mu.Lock()
	if m.haveLastCPU {
		deltaTotal := total - m.lastCPUTotal.total
		deltaIdle := idle - m.lastCPUTotal.idle
		if deltaTotal > 0 {
			cpuPct = (deltaTotal - deltaIdle) / deltaTotal * 100
		}
	}
	m.lastCPUTotal = cpuTotals{idle: idle, total: total}
	m.haveLastCPU = true
	m.pushHistoryLocked(&m.cpuHistory, cpuPct)
	m.mu.Unlock()

	meminfo, err := m.fs.Meminfo()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read /proc/meminfo")
		return
	}
	var total_, used, memPct float64
	if meminfo.MemTotal != nil {
		total_ = float64(*meminfo.MemTotal) * 1024
	}
	if meminfo.MemAvailable != nil {
		used = total_ - float64(*meminfo.MemAvailable)*1024
	} else if meminfo.MemFree != nil {
		used = total_ - float64(*meminfo.MemFree)*1024
	}
	if total_ > 0 {
		memPct = used / total_ * 100
	}
	m.mu.Lock()
	m.pushHistoryLocked(&m.memHistory, memPct)
	m.mu.Unlock()
}

func (m *Monitor) pushHistoryLocked(hist *[]float64, v float64) {
	*hist = append(*hist, v)
	if len(*hist) > m.cfg.HistorySize {
		*hist = (*hist)[len(*hist)-m.cfg.HistorySize:]
	}
}

func (m *Monitor) sampleDiskIO() {
	stats, err := m.fs.ProcDiskstats()
	if err != nil {
		return
	}
	io := make(map[string]DiskIO, len(stats))
	for _, d := range stats {
		io[d.DeviceName] = DiskIO{
			ReadBytes:  d.ReadSectors * 512,
			WriteBytes: d.WriteSectors * 512,
		}
	}
	m.mu.Lock()
	m.diskIO = io
	m.mu.Unlock()
}

func (m *Monitor) sampleNetIO() {
	devs, err := m.fs.NetDev()
	if err != nil {
		return
	}
	io := make(map[string]NetIO, len(devs))
	for name, line := range devs {
		io[name] = NetIO{RxBytes: line.RxBytes, TxBytes: line.TxBytes}
	}
	m.mu.Lock()
	m.netIO = io
	m.mu.Unlock()
}

func (m *Monitor) sampleProcesses() {
	procs, err := m.fs.AllProcs()
	if err != nil {
		return
	}
	now := time.Now()
	nowNano := now.UnixNano()
	next := make(map[int]procSample, len(procs))
	usage := make(map[int]job.ProcessSample, len(procs))
	parent := make(map[int]int, len(procs))

	m.mu.RLock()
	prev := m.prevProcStats
	m.mu.RUnlock()

	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		io, _ := p.IO()
		sample := procSample{
			pid:         p.PID,
			ppid:        stat.PPID,
			cpuSeconds:  stat.CPUTime(),
			rssBytes:    uint64(stat.ResidentMemory()),
			vsizeBytes:  uint64(stat.VSize),
			readBytes:   io.ReadBytes,
			writeBytes:  io.WriteBytes,
			takenAtNano: nowNano,
		}
		next[p.PID] = sample
		parent[p.PID] = stat.PPID

		var cpuPct float64
		if last, ok := prev[p.PID]; ok {
			elapsed := time.Duration(sample.takenAtNano - last.takenAtNano).Seconds()
			if elapsed > 0 {
				cpuPct = (sample.cpuSeconds - last.cpuSeconds) / elapsed * 100
				if cpuPct < 0 {
					cpuPct = 0
				}
			}
		}
		usage[p.PID] = job.ProcessSample{
			CPUPercent:     cpuPct,
			MemoryBytes:    sample.rssBytes,
			DiskReadBytes:  sample.readBytes,
			DiskWriteBytes: sample.writeBytes,
		}
	}

	m.mu.Lock()
	m.prevProcStats = next
	m.procUsage = usage
	m.procParent = parent
	m.mu.Unlock()
}
