package raftstate

import (
	"math"
	"time"

	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
)

// IsElectionDue reports whether this node's election timer has elapsed.
// Leader and Follower are not timed states, so it reports false for them:
// there is nothing to do here.
func (n *Node) IsElectionDue() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.State.Kind {
	case KindCandidate, KindWait, KindVotedFor:
		return !n.State.ElectionDue.After(time.Now())
	default:
		return false
	}
}

// TimeToNextElection returns milliseconds until the timer fires, or
// ok=false if this node isn't currently timed.
func (n *Node) TimeToNextElection() (millis int64, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.State.Kind {
	case KindCandidate, KindWait, KindVotedFor:
		now := time.Now()
		if n.State.ElectionDue.After(now) {
			return n.State.ElectionDue.Sub(now).Milliseconds(), true
		}
		return 0, true
	default:
		return 0, false
	}
}

// VoteFor records a vote cast for peerID and resets the election timer.
func (n *Node) VoteFor(peerID types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.State = State{Kind: KindVotedFor, PeerID: peerID, ElectionDue: ElectionTimeout(false, n.Rand)}
	n.resetVotes()
}

// FollowLeader marks peerID as the leader for the current term.
func (n *Node) FollowLeader(peerID types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.State = State{Kind: KindFollower, PeerID: peerID}
	n.resetVotes()
}

// RunForElection bumps the term and becomes Candidate.
func (n *Node) RunForElection(now bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Term++
	n.State = State{Kind: KindCandidate, ElectionDue: ElectionTimeout(now, n.Rand)}
	n.resetVotes()
}

// BecomeLeader transitions to Leader, seeding a fresh log-index watch at
// the current LastLog.Index and spawning one follower driver per peer in
// this node's shard via SpawnFollower.
func (n *Node) BecomeLeader() {
	n.mu.Lock()
	tx := watch.NewValue(n.LastLog.Index)
	var toSpawn []*types.Peer
	for _, p := range n.Peers {
		if p.IsInShard(n.ShardID) {
			toSpawn = append(toSpawn, p)
		}
	}
	n.State = State{Kind: KindLeader, LogIndexTx: tx}
	n.resetVotes()
	spawn := n.SpawnFollower
	n.mu.Unlock()

	if spawn != nil {
		for _, p := range toSpawn {
			spawn(p, tx)
		}
	}
}

// AddFollower spawns one additional follower driver for peerID, used when
// a new peer joins a shard this node already leads. No-op if this node
// isn't Leader.
func (n *Node) AddFollower(peerID types.PeerID) {
	n.mu.Lock()
	if n.State.Kind != KindLeader {
		n.mu.Unlock()
		return
	}
	tx := n.State.LogIndexTx
	spawn := n.SpawnFollower
	var target *types.Peer
	for _, p := range n.Peers {
		if p.PeerID == peerID {
			target = p
			break
		}
	}
	n.mu.Unlock()

	if spawn != nil && target != nil {
		spawn(target, tx)
	}
}

// SendAppendEntries broadcasts this node's current LastLog.Index to every
// follower driver, a no-op unless this node is Leader.
func (n *Node) SendAppendEntries() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.State.Kind == KindLeader {
		n.State.LogIndexTx.Send(n.LastLog.Index)
	}
}

// UpdateLastLog records the leader's most recent append and, if leading,
// republishes it to followers.
func (n *Node) UpdateLastLog(id types.RaftId) {
	n.mu.Lock()
	n.LastLog = id
	leading := n.State.Kind == KindLeader
	var tx *watch.Value[types.LogIndex]
	if leading {
		tx = n.State.LogIndexTx
	}
	n.mu.Unlock()
	if leading {
		tx.Send(id.Index)
	}
}

// CountVote records peerID's granted vote and reports whether this node
// now holds a majority (including its own implicit vote), using
// floor((total+1)/2) as the majority threshold -- preserved verbatim from
// the source, see DESIGN.md.
func (n *Node) CountVote(peerID types.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	votes := 1 // this node's own vote
	for _, p := range n.Peers {
		if !p.IsInShard(n.ShardID) {
			continue
		}
		total++
		if p.PeerID == peerID {
			p.VoteGranted = true
			votes++
		} else if p.VoteGranted {
			votes++
		}
	}
	return votes > int(math.Floor((float64(total)+1)/2))
}

// StartElection runs the full election-start decision from spec.md §4.6:
// only run if quorum is present and no shard peer's log is strictly
// ahead; otherwise wait, hoping a better-positioned peer wins instead.
// requestVote is invoked once per reachable shard peer with this node's
// current (term, last_log) to solicit a vote.
func (n *Node) StartElection(now bool, requestVote func(peer *types.Peer, term types.TermID, last types.RaftId)) {
	if !n.HasElectionQuorum() {
		n.StartElectionTimer(false)
		return
	}

	n.mu.Lock()
	var behindCandidate bool
	for _, p := range n.Peers {
		if p.IsInShard(n.ShardID) && !p.IsOffline() {
			if n.logIsBehindLocked(p.LastLogTerm, p.LastLogIndex) {
				behindCandidate = true
				break
			}
		}
	}
	n.mu.Unlock()

	if behindCandidate {
		n.StartElectionTimer(now)
		return
	}

	n.RunForElection(now)

	n.mu.Lock()
	term := n.Term
	last := n.LastLog
	var targets []*types.Peer
	for _, p := range n.Peers {
		if p.IsInShard(n.ShardID) && !p.IsOffline() {
			targets = append(targets, p)
		}
	}
	n.mu.Unlock()

	for _, p := range targets {
		requestVote(p, term, last)
	}
}

func (n *Node) logIsBehindLocked(lastLogTerm types.TermID, lastLogIndex types.LogIndex) bool {
	if lastLogTerm > n.LastLog.Term {
		return true
	}
	return lastLogTerm == n.LastLog.Term && lastLogIndex+1 > n.LastLog.Index+1
}

// VoteResponse carries this node's answer to a vote request.
type VoteResponse struct {
	Term        types.TermID
	VoteGranted bool
}

// HandleVoteRequest answers a Vote RPC from candidatePeerID, stepping
// down first if the candidate's term is higher.
func (n *Node) HandleVoteRequest(candidatePeerID types.PeerID, term types.TermID, last types.RaftId) VoteResponse {
	n.mu.Lock()
	if n.Term < term {
		n.mu.Unlock()
		n.StepDown(term)
		n.mu.Lock()
	}
	currentTerm := n.Term
	n.mu.Unlock()

	granted := false
	if currentTerm == term && n.CanGrantVote(candidatePeerID) && n.LogIsBehindOrEq(last.Term, last.Index) {
		n.VoteFor(candidatePeerID)
		granted = true
	}
	return VoteResponse{Term: currentTerm, VoteGranted: granted}
}

// HandleVoteResponse processes a peer's answer to this node's own vote
// solicitation, becoming leader if the response pushes this node past
// quorum.
func (n *Node) HandleVoteResponse(peerID types.PeerID, term types.TermID, voteGranted bool) {
	n.mu.Lock()
	currentTerm := n.Term
	isCandidate := n.State.Kind == KindCandidate
	n.mu.Unlock()

	if currentTerm < term {
		n.StepDown(term)
		return
	}
	if !isCandidate || !voteGranted || currentTerm != term {
		return
	}
	if n.CountVote(peerID) {
		n.BecomeLeader()
	}
}
