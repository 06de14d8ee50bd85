// Package types holds the data model shared by the replication and ORM
// subsystems: raft identifiers, the fixed collection enum, log entries and
// the peer table. Nothing in this package talks to storage or the network;
// it exists so that pkg/orm, pkg/raftlog, pkg/raftstate, pkg/leader, pkg/rpc
// and pkg/cluster can all agree on one vocabulary.
package types
