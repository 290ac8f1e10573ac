package dispatch

import "time"

// NodeRole is a cluster member's role, per the ClusterNode data model.
type NodeRole string

const (
	RoleMaster        NodeRole = "Master"
	RoleWorker        NodeRole = "Worker"
	RoleBackupMaster  NodeRole = "BackupMaster"
	RoleMonitor       NodeRole = "Monitor"
	RoleGateway       NodeRole = "Gateway"
)

// NodeLiveness is the observed heartbeat state of a cluster member.
type NodeLiveness string

const (
	LivenessOnline  NodeLiveness = "Online"
	LivenessOffline NodeLiveness = "Offline"
)

// HealthStatus is the cluster-wide health computed from membership and
// topology, per §4.5.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "Healthy"
	HealthWarning     HealthStatus = "Warning"
	HealthCritical    HealthStatus = "Critical"
	HealthPartitioned HealthStatus = "Partitioned"
	HealthRecovering  HealthStatus = "Recovering"
)

// PeerStats holds per-peer communication health. New gives the local node
// an empty PeerStats map; the Dispatcher does not fill it in.
type PeerStats struct {
	AvgResponseTime time.Duration
	SuccessRate     float64
	LastContact     time.Time
	BytesSent       uint64
	BytesReceived   uint64
}

// ClusterNode is one member of the cluster: identity, role, election
// eligibility and the last-observed liveness.
type ClusterNode struct {
	ID               string
	Address          string
	Role             NodeRole
	ElectionPriority  uint8
	LastHeartbeat    time.Time
	Liveness         NodeLiveness
	PeerStats        map[string]PeerStats
	Metadata         map[string]string
}

func (n ClusterNode) clone() ClusterNode {
	c := n
	c.PeerStats = make(map[string]PeerStats, len(n.PeerStats))
	for k, v := range n.PeerStats {
		c.PeerStats[k] = v
	}
	c.Metadata = make(map[string]string, len(n.Metadata))
	for k, v := range n.Metadata {
		c.Metadata[k] = v
	}
	return c
}
