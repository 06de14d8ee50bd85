package raftstate

import (
	"math"
	"sync"
	"time"

	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
)

// Node is one cluster member's election state: its term, last known log
// position, current State, and the peer table it votes and counts
// quorum against. Node is safe for concurrent use; every exported method
// takes the lock.
type Node struct {
	mu sync.Mutex

	PeerID  types.PeerID
	ShardID types.ShardID
	Term    types.TermID
	LastLog types.RaftId
	State   State
	Peers   []*types.Peer

	Rand func(lo, hi int) int

	// SpawnFollower starts one leader-replication driver for peer,
	// fed by rx. Set by the cluster coordinator during wiring; nil in
	// tests that don't exercise BecomeLeader's side effect.
	SpawnFollower func(peer *types.Peer, rx *watch.Value[types.LogIndex])
}

// New builds a Node starting in the default Wait state.
func New(peerID types.PeerID, shardID types.ShardID, rnd func(lo, hi int) int) *Node {
	return &Node{
		PeerID:  peerID,
		ShardID: shardID,
		LastLog: types.RaftIDNone,
		State:   NewWaitState(rnd),
		Rand:    rnd,
	}
}

func (n *Node) shardStatus() (total, healthy int) {
	for _, p := range n.Peers {
		if !p.IsInShard(n.ShardID) {
			continue
		}
		total++
		if p.Online {
			healthy++
		}
	}
	return total, healthy
}

// HasElectionQuorum reports whether enough of the shard's peers are
// currently reachable to attempt an election. Uses floor((total+1)/2),
// the same formula the source computes -- not the textbook
// floor(total/2)+1 -- preserved verbatim per DESIGN.md.
func (n *Node) HasElectionQuorum() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	total, healthy := n.shardStatus()
	return healthy >= int(math.Floor((float64(total)+1)/2))
}

// LogIsBehindOrEq reports whether a peer advertising (lastLogTerm,
// lastLogIndex) is at least as up to date as this node, per
// wrapping_add(1) comparison so RaftIDNone (term/index == MaxUint64)
// compares as the smallest possible value.
func (n *Node) LogIsBehindOrEq(lastLogTerm types.TermID, lastLogIndex types.LogIndex) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if lastLogTerm > n.LastLog.Term {
		return true
	}
	return lastLogTerm == n.LastLog.Term && lastLogIndex+1 >= n.LastLog.Index+1
}

// LogIsBehind is LogIsBehindOrEq's strict counterpart, used to decide
// whether any peer in the shard is strictly ahead of this node before
// running for election.
func (n *Node) LogIsBehind(lastLogTerm types.TermID, lastLogIndex types.LogIndex) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if lastLogTerm > n.LastLog.Term {
		return true
	}
	return lastLogTerm == n.LastLog.Term && lastLogIndex+1 > n.LastLog.Index+1
}

// CanGrantVote reports whether this node may grant candidatePeerID a vote
// given its current state: always in Wait, only for the same peer if
// already VotedFor, never while Leader/Follower/Candidate.
func (n *Node) CanGrantVote(candidatePeerID types.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.State.Kind {
	case KindWait:
		return true
	case KindVotedFor:
		return n.State.PeerID == candidatePeerID
	default:
		return false
	}
}

// LeaderPeerID returns the peer this node believes leads the current
// term: itself if Leader, the followed peer if Follower, ok=false
// otherwise.
func (n *Node) LeaderPeerID() (types.PeerID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.State.Kind {
	case KindLeader:
		return n.PeerID, true
	case KindFollower:
		return n.State.PeerID, true
	default:
		return 0, false
	}
}

func (n *Node) IsLeading() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.State.Kind == KindLeader
}

func (n *Node) IsCandidate() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.State.Kind == KindCandidate
}

func (n *Node) IsFollowing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.State.Kind == KindFollower
}

func (n *Node) IsFollowingPeer(leaderID types.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.State.Kind == KindFollower && n.State.PeerID == leaderID
}

// resetVotes clears vote_granted on every peer, called on every state
// transition so a stale grant from a previous term never leaks forward.
func (n *Node) resetVotes() {
	for _, p := range n.Peers {
		p.VoteGranted = false
	}
}

// StartElectionTimer drops back to Wait with a fresh timer, used when
// this node defers to a more up-to-date peer instead of running itself.
func (n *Node) StartElectionTimer(now bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.State = State{Kind: KindWait, ElectionDue: ElectionTimeout(now, n.Rand)}
	n.resetVotes()
}

// StepDown reacts to observing a higher term: resets to Wait, preserving
// the current election_due if it has already elapsed (so a node that was
// already about to retry doesn't get a gratuitous delay).
func (n *Node) StepDown(term types.TermID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	due := n.preservedElectionDue()
	n.Term = term
	n.State = State{Kind: KindWait, ElectionDue: due}
	n.resetVotes()
}

// preservedElectionDue keeps the current state's election_due if it has
// already elapsed (the node was already due to retry), otherwise starts a
// fresh timer. Must be called with n.mu held.
func (n *Node) preservedElectionDue() time.Time {
	switch n.State.Kind {
	case KindWait, KindCandidate, KindVotedFor:
		if n.State.ElectionDue.Before(time.Now()) {
			return n.State.ElectionDue
		}
	}
	return ElectionTimeout(false, n.Rand)
}
