package job

import (
	"container/list"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Config configures a Controller.
type Config struct {
	MaxConcurrentJobs int
	MaxJobHistory     int
	DefaultTimeout    time.Duration
	CleanupInterval   time.Duration
	CancelGrace       time.Duration
}

// DefaultConfig mirrors the reference controller's defaults: 32 concurrent
// jobs, 1000-entry history, 1h default timeout, 5m cleanup cadence.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 32,
		MaxJobHistory:     1000,
		DefaultTimeout:    time.Hour,
		CleanupInterval:   5 * time.Minute,
		CancelGrace:       5 * time.Second,
	}
}

// Controller owns the live-job map, the completed-job ring history, the
// single foreground slot and a global concurrency semaphore sized to
// MaxConcurrentJobs.
type Controller struct {
	config Config
	logger zerolog.Logger
	broker *events.Broker

	mu      sync.RWMutex
	active  map[string]*Job
	history *list.List // of *Job, oldest at Front
	results map[string]*Result

	sem        *semaphore.Weighted
	foreground string

	stopCh chan struct{}
}

// NewController creates a Controller. broker may be nil, in which case
// job events are not published anywhere (useful for tests).
func NewController(cfg Config, broker *events.Broker) *Controller {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultConfig().MaxConcurrentJobs
	}
	if cfg.MaxJobHistory <= 0 {
		cfg.MaxJobHistory = DefaultConfig().MaxJobHistory
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultConfig().CancelGrace
	}
	return &Controller{
		config:  cfg,
		logger:  log.WithComponent("job-controller"),
		broker:  broker,
		active:  make(map[string]*Job),
		history: list.New(),
		results: make(map[string]*Result),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		stopCh:  make(chan struct{}),
	}
}

func (c *Controller) emit(evtType events.EventType, jobID, message string) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    evtType,
		Message: message,
		Metadata: map[string]string{
			"job_id": jobID,
		},
	})
}

// CreateJob materializes a Pending job and emits Created. It always
// succeeds; an unnamed job gets the default name job-<uuid>.
func (c *Controller) CreateJob(opts Options) (string, error) {
	id := uuid.NewString()
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("job-%s", id)
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.config.DefaultTimeout
	}
	j := newJob(id, opts)

	c.mu.Lock()
	c.active[id] = j
	if opts.ParentID != "" {
		if parent, ok := c.active[opts.ParentID]; ok {
			parent.addChildID(id)
		}
	}
	if opts.Foreground {
		c.foreground = id
	}
	c.mu.Unlock()

	metrics.JobsSubmittedTotal.Inc()
	c.emit(events.EventJobCreated, id, "job created")
	return id, nil
}

func (c *Controller) lookup(id string) (*Job, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.active[id]
	return j, ok
}

// StartJob transitions a Pending job to Running, acquiring one
// concurrency permit. If no permit is available the job remains Pending
// and the call fails with corerr.Resource/ConcurrencyLimitReached.
func (c *Controller) StartJob(id string) error {
	j, ok := c.lookup(id)
	if !ok {
		return corerr.New(corerr.Data, corerr.ReasonNotFound, id, "job not found")
	}
	if j.Status() != StatusPending {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id,
			fmt.Sprintf("cannot start job in state %s", j.Status()))
	}
	if !c.sem.TryAcquire(1) {
		return corerr.New(corerr.Resource, corerr.ReasonConcurrencyLimit, id,
			"max concurrent jobs reached")
	}

	cmd := exec.Command(j.command, j.args...)
	cmd.Dir = j.workingDir
	if len(j.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range j.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	cmd.Stdout = j.stdout
	cmd.Stderr = j.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		c.sem.Release(1)
		j.setFinished(StatusFailed, -1, err.Error())
		c.moveToHistory(id)
		c.emit(events.EventJobFailed, id, err.Error())
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, id, err)
	}

	j.setStarted(cmd.Process.Pid, cmd)
	c.emit(events.EventJobStarted, id, "job started")

	go c.wait(id, j)
	return nil
}

func (c *Controller) wait(id string, j *Job) {
	var ctx context.Context
	var cancel context.CancelFunc
	if j.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), j.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	doneCh := make(chan error, 1)
	go func() { doneCh <- j.cmd.Wait() }()

	select {
	case err := <-doneCh:
		c.finishProcess(id, j, err, "")
	case <-ctx.Done():
		c.terminateJob(j, c.config.CancelGrace)
		err := <-doneCh
		_ = err
		c.finishProcess(id, j, nil, "Timeout")
	}
}

func (c *Controller) finishProcess(id string, j *Job, waitErr error, forcedReason string) {
	start := time.Now()
	if st := j.StartedAt(); st != nil {
		start = *st
	}
	duration := time.Since(start)

	exitCode := 0
	status := StatusCompleted
	reason := forcedReason

	switch {
	case forcedReason == "Timeout":
		status = StatusCancelled
		exitCode = -1
	case j.isCancelRequested():
		status = StatusCancelled
		exitCode = -1
		reason = "Cancelled"
	case waitErr != nil:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			status = StatusFailed
			reason = waitErr.Error()
		} else {
			exitCode = -1
			status = StatusFailed
			reason = waitErr.Error()
		}
	default:
		status = StatusCompleted
	}

	j.setFinished(status, exitCode, reason)

	result := &Result{
		JobID:         id,
		ExitCode:      exitCode,
		Output:        j.Stdout(),
		ErrorOutput:   j.Stderr(),
		ExecutionTime: duration,
	}

	c.mu.Lock()
	c.results[id] = result
	if c.foreground == id {
		c.foreground = ""
	}
	c.mu.Unlock()
	c.sem.Release(1)

	metrics.JobDuration.WithLabelValues(string(status)).Observe(duration.Seconds())

	switch status {
	case StatusCompleted:
		c.emit(events.EventJobCompleted, id, "job completed")
	case StatusFailed:
		c.emit(events.EventJobFailed, id, reason)
	case StatusCancelled:
		c.emit(events.EventJobCancelled, id, reason)
	}

	c.moveToHistory(id)
}

// PauseJob sends SIGSTOP to the job's process group. Valid only from
// Running.
func (c *Controller) PauseJob(id string) error {
	j, ok := c.lookup(id)
	if !ok {
		return corerr.New(corerr.Data, corerr.ReasonNotFound, id, "job not found")
	}
	if j.Status() != StatusRunning {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id,
			fmt.Sprintf("cannot pause job in state %s", j.Status()))
	}
	pgid, ok := j.runningProcessGroup()
	if !ok {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id, "job has no running process")
	}
	if err := syscall.Kill(-pgid, syscall.SIGSTOP); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, id, err)
	}
	j.setStatus(StatusPaused)
	c.emit(events.EventJobPaused, id, "job paused")
	return nil
}

// ResumeJob sends SIGCONT to the job's process group. Valid only from
// Paused.
func (c *Controller) ResumeJob(id string) error {
	j, ok := c.lookup(id)
	if !ok {
		return corerr.New(corerr.Data, corerr.ReasonNotFound, id, "job not found")
	}
	if j.Status() != StatusPaused {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id,
			fmt.Sprintf("cannot resume job in state %s", j.Status()))
	}
	pgid, ok := j.runningProcessGroup()
	if !ok {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id, "job has no running process")
	}
	if err := syscall.Kill(-pgid, syscall.SIGCONT); err != nil {
		return corerr.Wrap(corerr.Runtime, corerr.ReasonNone, id, err)
	}
	j.setStatus(StatusRunning)
	c.emit(events.EventJobResumed, id, "job resumed")
	return nil
}

// CancelJob terminates a Running or Paused job: SIGTERM to the process
// group, then SIGKILL after the configured grace window if it hasn't
// exited. The wait goroutine observes the exit and records Cancelled.
func (c *Controller) CancelJob(id string) error {
	j, ok := c.lookup(id)
	if !ok {
		return corerr.New(corerr.Data, corerr.ReasonNotFound, id, "job not found")
	}
	status := j.Status()
	if status != StatusRunning && status != StatusPaused {
		return corerr.New(corerr.Runtime, corerr.ReasonInvalidState, id,
			fmt.Sprintf("cannot cancel job in state %s", status))
	}
	j.markCancelRequested()
	// A paused process group is frozen and cannot observe SIGTERM until
	// resumed; continue it first so the termination signal is handled.
	if status == StatusPaused {
		if pgid, ok := j.runningProcessGroup(); ok {
			_ = syscall.Kill(-pgid, syscall.SIGCONT)
		}
	}
	c.terminateJob(j, c.config.CancelGrace)
	return nil
}

// terminateJob sends SIGTERM then, after grace, SIGKILL to the job's
// process group. It does not itself update job status — the wait
// goroutine observes the process exit and finalizes state.
func (c *Controller) terminateJob(j *Job, grace time.Duration) {
	pgid, ok := j.runningProcessGroup()
	if !ok {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		if _, stillRunning := j.runningProcessGroup(); stillRunning {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
	}()
}

func (c *Controller) moveToHistory(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.active[id]
	if !ok {
		return
	}
	delete(c.active, id)
	c.history.PushBack(j)
	if c.history.Len() > c.config.MaxJobHistory {
		c.history.Remove(c.history.Front())
	}
}

// GetActiveJobs returns snapshots of every job not yet moved to history.
func (c *Controller) GetActiveJobs() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, 0, len(c.active))
	for _, j := range c.active {
		out = append(out, j.Snapshot())
	}
	return out
}

// GetJobHistory returns snapshots of completed/failed/cancelled jobs,
// oldest first.
func (c *Controller) GetJobHistory() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, 0, c.history.Len())
	for e := c.history.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Job).Snapshot())
	}
	return out
}

// GetJobInfo looks a job up in the active set, falling back to history.
func (c *Controller) GetJobInfo(id string) (Snapshot, bool) {
	c.mu.RLock()
	if j, ok := c.active[id]; ok {
		snap := j.Snapshot()
		c.mu.RUnlock()
		return snap, true
	}
	c.mu.RUnlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for e := c.history.Front(); e != nil; e = e.Next() {
		j := e.Value.(*Job)
		if j.ID() == id {
			return j.Snapshot(), true
		}
	}
	return Snapshot{}, false
}

// GetJobResult returns the recorded exit result for a job, if any.
func (c *Controller) GetJobResult(id string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[id]
	return r, ok
}

// GetForegroundJobID returns the id of the current foreground job, or ""
// if none.
func (c *Controller) GetForegroundJobID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.foreground
}

// CleanupOldJobs drops history entries whose finish time is older than
// maxAge; entries without a finish time are always retained.
func (c *Controller) CleanupOldJobs(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var next *list.Element
	for e := c.history.Front(); e != nil; e = next {
		next = e.Next()
		j := e.Value.(*Job)
		finishedAt := j.FinishedAt()
		if finishedAt != nil && now.Sub(*finishedAt) > maxAge {
			c.history.Remove(e)
		}
	}
	c.logger.Debug().Int("remaining", c.history.Len()).Msg("cleaned up old jobs")
}

// StartAutoCleanup launches a background goroutine that runs
// CleanupOldJobs every CleanupInterval against a 24h max age, matching
// the reference controller's default cleanup task.
func (c *Controller) StartAutoCleanup() {
	go func() {
		ticker := time.NewTicker(c.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanupOldJobs(24 * time.Hour)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the auto-cleanup loop.
func (c *Controller) Stop() {
	close(c.stopCh)
}

// CountJobsByState implements metrics.JobSource, satisfied by the
// controller so the periodic collector can poll it without pkg/metrics
// importing pkg/job.
func (c *Controller) CountJobsByState() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, j := range c.active {
		counts[string(j.Status())]++
	}
	for e := c.history.Front(); e != nil; e = e.Next() {
		counts[string(e.Value.(*Job).Status())]++
	}
	for state, n := range counts {
		metrics.JobsTotal.WithLabelValues(state).Set(float64(n))
	}
	return counts
}
