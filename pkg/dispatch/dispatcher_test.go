package dispatch

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, id string, priority uint8) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		HeartbeatInterval:       time.Hour,
		FailureDetectionTimeout: 30 * time.Second,
		MinQuorumSize:           1,
		EnableAutoElection:      false,
	}, ClusterNode{ID: id, ElectionPriority: priority}, nil)
	require.NoError(t, err)
	return d
}

func TestNewSeedsSelfAsMember(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	nodes := d.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-a", nodes[0].ID)
	assert.Equal(t, LivenessOnline, nodes[0].Liveness)
}

func TestJoinNodeRejectsSelf(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	err := d.JoinNode(ClusterNode{ID: "node-a"})
	require.Error(t, err)
}

func TestJoinNodeRejectsDuplicate(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-b"}))
	err := d.JoinNode(ClusterNode{ID: "node-b"})
	require.Error(t, err)
}

func TestElectMasterPicksHighestPriority(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-b", ElectionPriority: 90}))
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-c", ElectionPriority: 10}))

	d.electMaster()
	assert.Equal(t, "node-b", d.masterID())
	assert.False(t, d.IsMaster())
}

func TestElectMasterBreaksTiesBySmallestID(t *testing.T) {
	d := newTestDispatcher(t, "node-b", 50)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-a", ElectionPriority: 50}))

	d.electMaster()
	assert.Equal(t, "node-a", d.masterID())
}

func TestDetectFailuresMarksOfflineAndReElects(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 10)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-b", ElectionPriority: 90}))
	d.electMaster()
	require.Equal(t, "node-b", d.masterID())

	d.mu.Lock()
	n := d.nodes["node-b"]
	n.LastHeartbeat = time.Now().Add(-time.Hour)
	d.nodes["node-b"] = n
	d.cfg.EnableAutoElection = true
	d.mu.Unlock()

	d.detectFailures()

	counts := d.CountNodesByStatus()
	assert.Equal(t, 1, counts[string(LivenessOffline)])
	assert.Equal(t, "node-a", d.masterID(), "local node must win re-election once node-b is marked offline")
}

func TestHealthCriticalWithoutMaster(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	assert.Equal(t, HealthCritical, d.Health())
}

func TestHealthHealthyWithMasterAndAllOnline(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	d.electMaster()
	assert.Equal(t, HealthHealthy, d.Health())
}

func TestHealthWarningWithOfflinePeer(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-b", ElectionPriority: 10}))
	d.electMaster()

	d.mu.Lock()
	n := d.nodes["node-b"]
	n.Liveness = LivenessOffline
	d.nodes["node-b"] = n
	d.mu.Unlock()

	assert.Equal(t, HealthWarning, d.Health())
}

func TestHealthPartitionedWithDisjointTopology(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	require.NoError(t, d.JoinNode(ClusterNode{ID: "node-b", ElectionPriority: 10}))
	d.electMaster()

	// Sever the adjacency link between the two nodes without removing
	// membership, simulating a network split.
	d.mu.Lock()
	d.topology["node-a"] = map[string]bool{"node-a": true}
	d.topology["node-b"] = map[string]bool{"node-b": true}
	d.mu.Unlock()

	assert.Equal(t, HealthPartitioned, d.Health())
}

func TestMessageFrameRoundTrip(t *testing.T) {
	msg, err := NewMessage("node-a", "node-b", MsgHeartbeat, ClusterNode{ID: "node-a"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, msg))

	got, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, MsgHeartbeat, got.Type)
}

func TestMarkDuplicateDetectsRepeat(t *testing.T) {
	d := newTestDispatcher(t, "node-a", 50)
	assert.False(t, d.markDuplicate("msg-1"))
	assert.True(t, d.markDuplicate("msg-1"))
	assert.False(t, d.markDuplicate("msg-2"))
}
