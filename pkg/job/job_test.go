package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobDefaults(t *testing.T) {
	j := newJob("job-1", Options{Command: "true"})
	assert.Equal(t, StatusPending, j.Status())
	assert.Empty(t, j.ChildIDs())
	_, hasPID := j.PID()
	assert.False(t, hasPID)
	_, hasExit := j.ExitCode()
	assert.False(t, hasExit)
}

func TestJobStateTransitionsUpdateAccessors(t *testing.T) {
	j := newJob("job-2", Options{Command: "true"})

	j.setStarted(1234, nil)
	assert.Equal(t, StatusRunning, j.Status())
	pid, ok := j.PID()
	require.True(t, ok)
	assert.Equal(t, 1234, pid)

	j.setFinished(StatusCompleted, 0, "")
	assert.Equal(t, StatusCompleted, j.Status())
	exitCode, ok := j.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 0, exitCode)
	_, hasPID := j.PID()
	assert.False(t, hasPID)
	assert.NotNil(t, j.FinishedAt())
}

func TestJobSnapshotIsIndependentCopy(t *testing.T) {
	j := newJob("job-3", Options{Command: "true", Metadata: map[string]string{"k": "v"}})
	j.addChildID("job-4")

	snap := j.Snapshot()
	assert.Equal(t, "job-3", snap.ID)
	assert.Equal(t, []string{"job-4"}, snap.ChildIDs)

	j.addChildID("job-5")
	assert.Len(t, snap.ChildIDs, 1, "snapshot must not observe later mutation")
}

func TestChildPIDsRoundTrip(t *testing.T) {
	j := newJob("job-6", Options{Command: "true"})
	j.SetChildPIDs([]int{10, 20, 30})
	assert.Equal(t, []int{10, 20, 30}, j.ChildPIDs())
}
