package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, maxConcurrent int) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxConcurrentJobs = maxConcurrent
	cfg.CancelGrace = 50 * time.Millisecond
	return NewController(cfg, nil)
}

func waitForStatus(t *testing.T, c *Controller, id string, want Status, timeout time.Duration) Snapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, ok := c.GetJobInfo(id)
		if ok && snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := c.GetJobInfo(id)
	t.Fatalf("job %s did not reach status %s, last seen %s", id, want, snap.Status)
	return Snapshot{}
}

func TestCreateJobAssignsDefaultName(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/true"})
	require.NoError(t, err)

	snap, ok := c.GetJobInfo(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Contains(t, snap.Name, "job-")
}

func TestStartJobRunsToCompletion(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/echo", Args: []string{"hello"}})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))

	snap := waitForStatus(t, c, id, StatusCompleted, time.Second)
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 0, *snap.ExitCode)

	result, ok := c.GetJobResult(id)
	require.True(t, ok)
	assert.Contains(t, result.Output, "hello")
}

func TestStartJobFailingCommandRecordsFailure(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/false"})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))

	snap := waitForStatus(t, c, id, StatusFailed, time.Second)
	require.NotNil(t, snap.ExitCode)
	assert.NotEqual(t, 0, *snap.ExitCode)
}

func TestStartJobRejectsDoubleStart(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/sleep", Args: []string{"0.2"}})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))

	err = c.StartJob(id)
	assert.Error(t, err)
}

func TestConcurrencyLimitRevertsToPending(t *testing.T) {
	c := newTestController(t, 1)
	firstID, err := c.CreateJob(Options{Command: "/bin/sleep", Args: []string{"0.3"}})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(firstID))

	secondID, err := c.CreateJob(Options{Command: "/bin/true"})
	require.NoError(t, err)

	err = c.StartJob(secondID)
	require.Error(t, err)

	snap, ok := c.GetJobInfo(secondID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, snap.Status)
}

func TestPauseResumeRunningJob(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/sleep", Args: []string{"0.3"}})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.PauseJob(id))
	snap, _ := c.GetJobInfo(id)
	assert.Equal(t, StatusPaused, snap.Status)

	require.NoError(t, c.ResumeJob(id))
	snap, _ = c.GetJobInfo(id)
	assert.Equal(t, StatusRunning, snap.Status)

	waitForStatus(t, c, id, StatusCompleted, time.Second)
}

func TestPauseInvalidStateFails(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/true"})
	require.NoError(t, err)

	err = c.PauseJob(id)
	assert.Error(t, err)
}

func TestCancelRunningJobTransitionsToCancelled(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/sleep", Args: []string{"5"}})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.CancelJob(id))

	waitForStatus(t, c, id, StatusCancelled, 2*time.Second)
}

func TestHistoryEvictionRespectsBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxJobHistory = 2
	c := NewController(cfg, nil)

	for i := 0; i < 3; i++ {
		id, err := c.CreateJob(Options{Command: "/bin/true"})
		require.NoError(t, err)
		require.NoError(t, c.StartJob(id))
		waitForStatus(t, c, id, StatusCompleted, time.Second)
	}

	history := c.GetJobHistory()
	assert.Len(t, history, 2)
}

func TestForegroundSlotClearsOnCompletion(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/true", Foreground: true})
	require.NoError(t, err)
	assert.Equal(t, id, c.GetForegroundJobID())

	require.NoError(t, c.StartJob(id))
	waitForStatus(t, c, id, StatusCompleted, time.Second)
	assert.Equal(t, "", c.GetForegroundJobID())
}

func TestCountJobsByState(t *testing.T) {
	c := newTestController(t, 4)
	id, err := c.CreateJob(Options{Command: "/bin/true"})
	require.NoError(t, err)
	require.NoError(t, c.StartJob(id))
	waitForStatus(t, c, id, StatusCompleted, time.Second)

	counts := c.CountJobsByState()
	assert.Equal(t, 1, counts[string(StatusCompleted)])
}
