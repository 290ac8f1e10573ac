// Package dispatch implements the optional distributed dispatcher: cluster
// membership, priority-based master election and length-delimited
// JSON-over-TCP messaging between corectl nodes, per §4.5.
package dispatch

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/events"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/rs/zerolog"
)

// Config tunes a Dispatcher's membership and election behaviour.
type Config struct {
	ClusterID              string
	Address                string // this node's own dial-back address
	ElectionPriority       uint8
	HeartbeatInterval      time.Duration
	FailureDetectionTimeout time.Duration
	MasterElectionTimeout  time.Duration
	MinQuorumSize          int
	EnableAutoElection     bool
	DedupWindowSize        int
}

// DefaultConfig matches §4.5's stated defaults: 30s heartbeat timeout,
// auto-election enabled, a single-node quorum floor.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:       10 * time.Second,
		FailureDetectionTimeout: 30 * time.Second,
		MasterElectionTimeout:   15 * time.Second,
		MinQuorumSize:           1,
		EnableAutoElection:      true,
		DedupWindowSize:         4096,
	}
}

// Dispatcher is the ClusterManager: it owns the member table, the current
// master, a TCP listener for inbound frames, and the heartbeat/election
// loops. Zero value is not usable; build with New.
type Dispatcher struct {
	cfg    Config
	logger zerolog.Logger
	broker *events.Broker

	localID string

	mu         sync.RWMutex
	nodes      map[string]ClusterNode
	master     string
	backups    []string
	topology   map[string]map[string]bool // adjacency: who each node can currently reach
	lastHealth HealthStatus

	seen *lru.Cache[string, struct{}] // message-id dedup window

	inboxCh chan Message

	transport *transport

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Dispatcher for the local node described by self. The
// Dispatcher always contains itself as a member; a self with no Role
// starts as Worker until an election changes it.
func New(cfg Config, self ClusterNode, broker *events.Broker) (*Dispatcher, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg = DefaultConfig()
	}
	if self.ElectionPriority == 0 {
		self.ElectionPriority = cfg.ElectionPriority
	}
	if self.Role == "" {
		self.Role = RoleWorker
	}
	self.Liveness = LivenessOnline
	self.LastHeartbeat = time.Now()
	if self.PeerStats == nil {
		self.PeerStats = make(map[string]PeerStats)
	}
	if self.Metadata == nil {
		self.Metadata = make(map[string]string)
	}

	dedupSize := cfg.DedupWindowSize
	if dedupSize < 256 {
		dedupSize = 256
	}
	cache, err := lru.New[string, struct{}](dedupSize)
	if err != nil {
		return nil, corerr.Wrap(corerr.Internal, corerr.ReasonNone, self.ID, err)
	}

	d := &Dispatcher{
		cfg:      cfg,
		logger:   log.WithNodeID(self.ID),
		broker:   broker,
		localID:  self.ID,
		nodes:    map[string]ClusterNode{self.ID: self},
		topology: map[string]map[string]bool{self.ID: {self.ID: true}},
		seen:     cache,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	d.transport = newTransport(d)
	return d, nil
}

// Start opens the TCP listener and begins the heartbeat/membership loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.cfg.Address != "" {
		if err := d.transport.listen(d.cfg.Address); err != nil {
			return corerr.Wrap(corerr.IO, corerr.ReasonNone, d.localID, err)
		}
	}
	go d.run(ctx)
	if d.cfg.EnableAutoElection {
		d.electMaster()
	}
	return nil
}

// Stop closes the listener and stops the membership loop.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.transport.close()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.broadcastHeartbeat()
			d.detectFailures()
			if d.cfg.EnableAutoElection && d.masterID() == "" {
				d.electMaster()
			}
			d.checkHealthTransition()
		}
	}
}

// JoinNode admits node into the cluster's member table.
func (d *Dispatcher) JoinNode(node ClusterNode) error {
	d.mu.Lock()
	if node.ID == d.localID {
		d.mu.Unlock()
		return corerr.New(corerr.Validation, corerr.ReasonNone, node.ID, "cannot join local node to itself")
	}
	if _, exists := d.nodes[node.ID]; exists {
		d.mu.Unlock()
		return corerr.New(corerr.Validation, corerr.ReasonStateConflict, node.ID, "node already a cluster member")
	}
	node.Liveness = LivenessOnline
	node.LastHeartbeat = time.Now()
	if node.PeerStats == nil {
		node.PeerStats = make(map[string]PeerStats)
	}
	d.nodes[node.ID] = node
	d.topology[d.localID][node.ID] = true
	if d.topology[node.ID] == nil {
		d.topology[node.ID] = map[string]bool{}
	}
	d.topology[node.ID][d.localID] = true
	d.mu.Unlock()

	d.emit(events.EventNodeJoined, node.ID)
	if d.cfg.EnableAutoElection {
		d.electMaster()
	}
	return nil
}

// RemoveNode drops node from the member table (departure, not a detected
// failure).
func (d *Dispatcher) RemoveNode(id string) {
	d.mu.Lock()
	delete(d.nodes, id)
	delete(d.topology, id)
	for _, peers := range d.topology {
		delete(peers, id)
	}
	wasMaster := d.master == id
	if wasMaster {
		d.master = ""
	}
	d.mu.Unlock()

	d.emit(events.EventNodeLeft, id)
	if wasMaster && d.cfg.EnableAutoElection {
		d.electMaster()
	}
}

// Heartbeat records a liveness pulse for id. Per §5's ordering guarantee,
// a later heartbeat for the same node always replaces the earlier
// timestamp — callers do not need to serialize calls themselves as long as
// they pass monotonically increasing observation times, but since Go's
// wall clock is used here, duplicate/out-of-order network delivery is
// resolved by simply taking the latest call to win (last write wins).
func (d *Dispatcher) Heartbeat(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	n.LastHeartbeat = time.Now()
	n.Liveness = LivenessOnline
	d.nodes[id] = n
}

func (d *Dispatcher) broadcastHeartbeat() {
	d.mu.RLock()
	self := d.nodes[d.localID]
	peers := make([]ClusterNode, 0, len(d.nodes))
	for id, n := range d.nodes {
		if id != d.localID {
			peers = append(peers, n)
		}
	}
	d.mu.RUnlock()

	self.LastHeartbeat = time.Now()
	for _, peer := range peers {
		msg, err := NewMessage(d.localID, peer.ID, MsgHeartbeat, self)
		if err != nil {
			continue
		}
		if err := d.transport.send(peer.Address, msg); err != nil {
			d.logger.Debug().Str("peer", peer.ID).Err(err).Msg("heartbeat send failed")
		}
	}

	d.mu.Lock()
	d.nodes[d.localID] = self
	d.mu.Unlock()
}

// detectFailures marks any node whose last heartbeat exceeds the
// configured failure-detection timeout as Offline and ineligible for
// election.
func (d *Dispatcher) detectFailures() {
	now := time.Now()
	var newlyOffline []string

	d.mu.Lock()
	for id, n := range d.nodes {
		if id == d.localID {
			continue
		}
		if n.Liveness == LivenessOnline && now.Sub(n.LastHeartbeat) > d.cfg.FailureDetectionTimeout {
			n.Liveness = LivenessOffline
			d.nodes[id] = n
			newlyOffline = append(newlyOffline, id)
		}
	}
	wasMaster := false
	for _, id := range newlyOffline {
		if id == d.master {
			wasMaster = true
			d.master = ""
		}
	}
	d.mu.Unlock()

	for _, id := range newlyOffline {
		d.emit(events.EventNodeDown, id)
	}
	if wasMaster && d.cfg.EnableAutoElection {
		d.electMaster()
	}
}

// electMaster runs priority-based election: the highest ElectionPriority
// among Online members wins; ties are broken by the smallest node id.
func (d *Dispatcher) electMaster() {
	d.mu.Lock()
	var winner *ClusterNode
	var backups []string
	for _, n := range d.nodes {
		if n.Liveness != LivenessOnline {
			continue
		}
		candidate := n
		if winner == nil ||
			candidate.ElectionPriority > winner.ElectionPriority ||
			(candidate.ElectionPriority == winner.ElectionPriority && candidate.ID < winner.ID) {
			winner = &candidate
		}
	}
	var winnerID string
	if winner != nil {
		winnerID = winner.ID
		for id, n := range d.nodes {
			if id != winnerID && n.Liveness == LivenessOnline {
				backups = append(backups, id)
			}
		}
	}
	changed := winnerID != "" && winnerID != d.master
	d.master = winnerID
	d.backups = backups
	for id, n := range d.nodes {
		if id == winnerID {
			n.Role = RoleMaster
		} else if n.Role == RoleMaster {
			n.Role = RoleWorker
		}
		d.nodes[id] = n
	}
	d.mu.Unlock()

	if changed {
		d.emit(events.EventClusterMasterElected, winnerID)
	}
}

// checkHealthTransition emits EventClusterHealthChanged when Health()'s
// result differs from the last observed value.
func (d *Dispatcher) checkHealthTransition() {
	current := d.Health()
	d.mu.Lock()
	changed := current != d.lastHealth
	d.lastHealth = current
	d.mu.Unlock()
	if changed {
		d.emit(events.EventClusterHealthChanged, string(current))
	}
}

func (d *Dispatcher) masterID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.master
}

// IsMaster reports whether the local node currently holds the master
// role, satisfying metrics.ClusterSource.
func (d *Dispatcher) IsMaster() bool {
	return d.masterID() == d.localID
}

// CountNodesByStatus tallies cluster members by liveness, satisfying
// metrics.ClusterSource.
func (d *Dispatcher) CountNodesByStatus() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := map[string]int{}
	for _, n := range d.nodes {
		out[string(n.Liveness)]++
	}
	return out
}

// Nodes returns a defensive copy of the member table.
func (d *Dispatcher) Nodes() []ClusterNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ClusterNode, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n.clone())
	}
	return out
}

// Health computes the cluster-wide health status: Critical if there is no
// master or the online member count is below the configured quorum,
// Partitioned if the reachability graph has more than one connected
// component, Warning if any member is Offline, Healthy otherwise.
func (d *Dispatcher) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	online := 0
	anyOffline := false
	for _, n := range d.nodes {
		if n.Liveness == LivenessOnline {
			online++
		} else {
			anyOffline = true
		}
	}
	if d.master == "" || online < d.cfg.MinQuorumSize {
		return HealthCritical
	}
	if d.countComponents() > 1 {
		return HealthPartitioned
	}
	if anyOffline {
		return HealthWarning
	}
	return HealthHealthy
}

// countComponents counts connected components of the topology adjacency
// graph (caller must hold at least a read lock).
func (d *Dispatcher) countComponents() int {
	visited := map[string]bool{}
	components := 0
	for id := range d.nodes {
		if visited[id] {
			continue
		}
		components++
		stack := []string{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			for peer := range d.topology[cur] {
				if !visited[peer] {
					stack = append(stack, peer)
				}
			}
		}
	}
	return components
}

func (d *Dispatcher) emit(t events.EventType, nodeID string) {
	if d.broker == nil {
		return
	}
	d.broker.Publish(&events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Message:   nodeID,
		Metadata:  map[string]string{"node": nodeID},
	})
}

// markDuplicate reports whether id has already been seen within the dedup
// window, recording it if not (at-least-once delivery with idempotent,
// id-deduplicated handling per §4.5).
func (d *Dispatcher) markDuplicate(id string) bool {
	if _, ok := d.seen.Get(id); ok {
		return true
	}
	d.seen.Add(id, struct{}{})
	return false
}
