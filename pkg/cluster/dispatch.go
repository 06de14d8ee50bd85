package cluster

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
)

// HandleRequest is the server-side entry point passed to rpc.ServeConn
// for every accepted peer connection. It is the receiving half of the
// protocol pkg/leader.Driver drives from the leader side (spec.md §6).
func (c *Coordinator) HandleRequest(req rpc.Request) rpc.Response {
	switch req.Kind {
	case rpc.ReqVote:
		return c.handleVote(req)
	case rpc.ReqBecomeFollower:
		return c.handleBecomeFollower(req)
	case rpc.ReqAppendEntries:
		return c.handleAppendEntries(req)
	case rpc.ReqUpdatePeers:
		return c.handleUpdatePeers(req)
	case rpc.ReqPing:
		return rpc.Response{Kind: rpc.RespPong}
	default:
		log.Error("cluster: unrecognized request kind, ignoring")
		return rpc.None()
	}
}

func (c *Coordinator) handleVote(req rpc.Request) rpc.Response {
	vr := c.node.HandleVoteRequest(req.From, req.Term, req.Last)
	return rpc.Response{Kind: rpc.RespVote, Term: vr.Term, VoteGranted: vr.VoteGranted}
}

// handleBecomeFollower answers a new leader's handshake with this node's
// own last known log position, so the leader can decide whether to go
// straight to AppendLogs or diverge into Synchronize.
func (c *Coordinator) handleBecomeFollower(req rpc.Request) rpc.Response {
	if req.Term < c.node.Term {
		return rpc.Response{Kind: rpc.RespStepDown, Term: c.node.Term}
	}
	c.node.Term = req.Term
	c.node.FollowLeader(req.From)

	matchLog, err := c.log.LastLog()
	if err != nil {
		log.Errorf("cluster: failed to read local last log for BecomeFollower", err)
		return rpc.None()
	}
	return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
		Kind: rpc.AERMatch, MatchLog: matchLog,
	}}
}

func (c *Coordinator) handleAppendEntries(req rpc.Request) rpc.Response {
	if req.Term < c.node.Term {
		return rpc.Response{Kind: rpc.RespStepDown, Term: c.node.Term}
	}
	switch req.AppendEntries.Kind {
	case rpc.AESynchronize:
		return c.handleSynchronize(req)
	case rpc.AEMerge:
		return c.handleMerge(req)
	case rpc.AEUpdate, rpc.AEAdvanceCommitIndex:
		return c.handleUpdate(req)
	default:
		log.Error("cluster: unrecognized AppendEntries request kind, ignoring")
		return rpc.None()
	}
}

// handleSynchronize answers the leader's term vector with the union of
// this node's local indexes whose term matches each vector entry --
// the follower-side counterpart of the leader's own intersection step,
// worked out from spec.md §4.7 since no follower-side source was
// retrieved for this RPC; see DESIGN.md.
func (c *Coordinator) handleSynchronize(req rpc.Request) rpc.Response {
	matchTerms, err := decodeRaftIds(req.AppendEntries.MatchTerms)
	if err != nil {
		log.Errorf("cluster: corrupt match terms from leader", err)
		return rpc.None()
	}

	local := roaring64.New()
	for _, rid := range matchTerms {
		term, indexes, ok, err := c.log.GetMatchIndexes(rid.Index)
		if err != nil {
			log.Errorf("cluster: failed to read local match indexes", err)
			return rpc.None()
		}
		if ok && term == rid.Term {
			local.Or(indexes)
		}
	}

	encoded, err := local.ToBytes()
	if err != nil {
		log.Errorf("cluster: failed to encode local match indexes", err)
		return rpc.None()
	}
	return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
		Kind: rpc.AERSynchronize, MatchIndexes: encoded,
	}}
}

// handleMerge walks the local log forward from matched_log looking for
// the next Update entry to hand back, or re-requests Synchronize if no
// entry lies beyond matched_log locally.
func (c *Coordinator) handleMerge(req rpc.Request) rpc.Response {
	matchedLog := req.AppendEntries.MatchedLog

	afterIndex := matchedLog.Index
	if matchedLog.IsNone() {
		afterIndex = 0
	}

	for {
		_, entry, ok, err := c.log.NextEntry(afterIndex)
		if err != nil {
			log.Errorf("cluster: failed to read next log entry for Merge", err)
			return rpc.None()
		}
		if !ok {
			// Nothing beyond matched_log: ask the leader to re-derive
			// matched_log, which is always safe even if redundant.
			return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
				Kind: rpc.AERSynchronize, MatchIndexes: nil,
			}}
		}
		if entry.Kind != types.LogEntryUpdate {
			afterIndex++
			continue
		}
		return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
			Kind:       rpc.AERUpdate,
			AccountID:  entry.AccountID,
			Collection: entry.Collection,
			Changes:    entry.Changes,
			IsRollback: false,
		}}
	}
}

// handleUpdate applies a batch of log entries (or just a commit-index
// advance) arriving from the leader, reporting back how far this node
// got. Applying the entries themselves -- replaying each LogEntry against
// local storage -- is the job of whatever owns this node's store; here
// it is modeled through the ApplyEntries hook so pkg/cluster stays
// independent of pkg/storage's concrete layout.
func (c *Coordinator) handleUpdate(req rpc.Request) rpc.Response {
	ae := req.AppendEntries
	if len(ae.Updates) > 0 {
		if c.applyEntries == nil {
			return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
				Kind: rpc.AERContinue,
			}}
		}
		lastIndex, err := c.applyEntries(ae.Updates)
		if err != nil {
			log.Errorf("cluster: failed to apply replicated entries", err)
			return rpc.None()
		}
		if lastIndex != ae.CommitIndex {
			return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
				Kind: rpc.AERContinue,
			}}
		}
	}
	return rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{
		Kind: rpc.AERDone, UpToIndex: ae.CommitIndex,
	}}
}

func (c *Coordinator) handleUpdatePeers(req rpc.Request) rpc.Response {
	c.mu.Lock()
	peers := make([]*types.Peer, len(req.Peers))
	for i := range req.Peers {
		p := req.Peers[i]
		peers[i] = &p
	}
	c.node.Peers = peers
	c.mu.Unlock()
	return rpc.Response{Kind: rpc.RespUpdatePeers, Peers: req.Peers}
}

func decodeRaftIds(data []byte) ([]types.RaftId, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ids []types.RaftId
	if err := gobDecode(data, &ids); err != nil {
		return nil, errs.NewDataCorruption("cluster.decodeRaftIds", err)
	}
	return ids, nil
}
