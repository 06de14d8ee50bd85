// Package events is the cluster coordinator's internal pub/sub bus.
// Leader replication drivers publish StoreChanged, AdvanceCommitIndex and
// StepDown events; the RPC layer publishes PeerOnline/PeerOffline. The
// coordinator is the sole subscriber that matters in steady state, but
// Subscribe() stays general so metrics and future CLI streaming can tap
// in the same way.
//
// Delivery is fire-and-forget: Publish never blocks on a slow subscriber,
// and a full subscriber buffer silently drops the event rather than
// stalling the broadcast loop. This is acceptable here because every
// event this package carries is also derivable from the leader/follower
// state the driver already owns -- a dropped event costs a slightly
// later reconciliation, not a lost write.
package events
