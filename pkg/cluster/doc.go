// Package cluster wires together pkg/raftstate, pkg/leader, pkg/raftlog
// and pkg/rpc into one running node: the Coordinator owns the node's
// Raft-like election state, dials and accepts peer connections, spawns
// and tracks one leader-replication driver per followed peer, and is the
// single consumer of the cluster event channel (spec.md §5's "single
// task consuming an mpsc of cluster::Event"). Shape and error-wrapping
// style borrowed from the teacher's pkg/manager.Manager/Config/NewManager,
// with the hashicorp/raft FSM/transport replaced by this module's own
// log-matching protocol.
package cluster
