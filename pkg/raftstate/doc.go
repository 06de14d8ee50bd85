// Package raftstate implements the per-node election state machine:
// State (Leader/Wait/Candidate/VotedFor/Follower), the election timer,
// vote granting/counting, and term/log comparison helpers. Grounded
// line-for-line on original_source/src/cluster/raft.rs.
//
// The quorum formula in HasElectionQuorum and the majority formula in
// CountVote both use floor((total+1)/2) rather than the more
// conventional floor(total/2)+1. This is preserved exactly as the source
// computes it -- see DESIGN.md's Open Question decision -- not corrected
// to the textbook majority definition.
package raftstate
