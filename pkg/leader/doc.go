// Package leader implements the per-follower leader replication driver,
// the core state machine of spec.md §4.7: one goroutine per peer this
// node leads, cycling through BecomeLeader -> Synchronize -> Merge ->
// Wait/AppendLogs/AppendChanges/AppendBlobs until the peer's log is fully
// caught up, then idling in Wait until log_index_rx reports more work.
//
// Grounded line-for-line on
// original_source/src/cluster/leader/spawn_leader.rs. Rust's
// tokio::sync::watch/oneshot become pkg/watch.Value and a plain
// buffered channel respectively; tokio::select! becomes Go select over
// the same set of channels/contexts.
package leader
