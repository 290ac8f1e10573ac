// Package resource implements the ResourceMonitor described for the job
// engine: a 1s-cadence background sampler of system-wide CPU, memory,
// disk and network usage plus per-process CPU/memory/I/O, built on
// prometheus/procfs. It exposes the admission check (CanExecute) the
// job controller and pipeline scheduler use before starting
// resource-limited work, and implements job.ProcessSampler so a
// job.MetricsCollector can be wired directly to a live Monitor:
//
//	mon, err := resource.New(resource.DefaultConfig())
//	mon.Start(ctx)
//	defer mon.Stop()
//	collector := job.NewMetricsCollector(mon)
//
// Per-process CPU percentages are derived from successive /proc/<pid>/stat
// samples, not a single reading — a process observed in only one tick
// reports 0% until the next sample lands. ProcessTreeUsage walks the
// parent/child map built from the same tick purely for reporting; the
// job cancel/pause/resume signal path never consults it (only the
// directly-spawned process group is signalled).
package resource
