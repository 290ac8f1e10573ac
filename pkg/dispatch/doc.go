// Package dispatch is the optional distributed dispatcher: a ClusterManager
// maintaining cluster membership, priority-based master election, and
// length-delimited JSON-over-TCP messaging between peer nodes so pipeline
// stages or jobs can be offloaded across a corectl cluster (§4.5).
//
//	cfg := dispatch.DefaultConfig()
//	cfg.Address, cfg.ElectionPriority = ":7420", 100
//	d, _ := dispatch.New(cfg, dispatch.ClusterNode{ID: "node-a", Address: ":7420"}, broker)
//	d.Start(ctx)
//	d.JoinNode(dispatch.ClusterNode{ID: "node-b", Address: "10.0.0.2:7420"})
//
// Heartbeat, JoinRequest and MasterElection frames are consumed internally;
// every other message type (TaskAssignment, TaskStatusUpdate, TaskResult,
// NodeInfo, DataTransfer, Query, Command, Error) is handed to Dispatcher's
// Inbox channel for a higher-level component — the job engine or daemon
// control plane — to read and act on.
package dispatch
