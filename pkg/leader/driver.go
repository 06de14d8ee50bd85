package leader

import (
	"context"

	"github.com/cuemby/shardmail/pkg/events"
	"github.com/cuemby/shardmail/pkg/log"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
)

// PrepareChanges turns a committed MergedChanges bundle into the
// per-document updates a follower needs to replay, the Go equivalent of
// the source's store.prepare_changes. Not specified further by spec.md;
// owned by whatever assembles the outgoing Update payload from local
// storage.
type PrepareChanges func(accountID types.AccountID, collection types.Collection, changes []byte, isRollback bool) ([]byte, error)

// PrepareBlobs resolves pending blob ids into transferable updates plus
// whatever ids didn't fit in this round, the Go equivalent of
// store.prepare_blobs.
type PrepareBlobs func(blobIDs []string) (updates []byte, remaining []string, err error)

// PeerTransport is the subset of rpc.Client the driver needs, narrowed to
// an interface so tests can drive the state machine against a fake peer
// instead of a real TLS connection.
type PeerTransport interface {
	Call(ctx context.Context, req rpc.Request) rpc.Response
}

// Driver is one leader-replication state machine, bound to exactly one
// follower peer. It owns its local view of last_log/uncommitted_index/
// term and is cancelled by ctx, by its input channels closing, or by
// receiving StepDown.
type Driver struct {
	Peer   *types.Peer
	PeerTx PeerTransport
	Events chan<- *events.Event
	Log    *raftlog.Store

	// SelfPeerID identifies the leader node itself, stamped onto every
	// outgoing Request so the follower's handler knows who is asking.
	SelfPeerID types.PeerID

	LogIndexRx *watch.Value[types.LogIndex]
	OnlineRx   *watch.Value[bool]

	PrepareChanges PrepareChanges
	PrepareBlobs   PrepareBlobs

	// RunOnWorker offloads a blocking store call onto the coordinator's
	// worker pool, the Go stand-in for spawn_worker(closure); nil runs fn
	// inline, which is what every test in this package does.
	RunOnWorker func(fn func())

	lastLog          types.RaftId
	uncommittedIndex types.LogIndex
	term             types.TermID
	followerLastIdx  types.LogIndex

	state State

	logVersion    uint64
	onlineVersion uint64
}

// NewDriver builds a driver for peer, seeded from the leader's current
// (term, last_log, uncommitted_index).
func NewDriver(selfPeerID types.PeerID, peer *types.Peer, peerTx PeerTransport, ch chan<- *events.Event, lg *raftlog.Store,
	logIndexRx *watch.Value[types.LogIndex], onlineRx *watch.Value[bool],
	term types.TermID, lastLog types.RaftId, uncommitted types.LogIndex,
	prepChanges PrepareChanges, prepBlobs PrepareBlobs) *Driver {
	return &Driver{
		Peer:             peer,
		SelfPeerID:       selfPeerID,
		PeerTx:           peerTx,
		Events:           ch,
		Log:              lg,
		LogIndexRx:       logIndexRx,
		OnlineRx:         onlineRx,
		PrepareChanges:   prepChanges,
		PrepareBlobs:     prepBlobs,
		term:             term,
		lastLog:          lastLog,
		uncommittedIndex: uncommitted,
		state:            State{Kind: KindBecomeLeader},
	}
}

func (d *Driver) emit(ev *events.Event) {
	select {
	case d.Events <- ev:
	default:
		log.Error("leader: coordinator event channel full, dropping event")
	}
}

// Run drives the state machine until ctx is cancelled, a fatal log
// inconsistency is detected, or the peer asks this node to step down.
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if val, ver := d.LogIndexRx.Get(); ver != d.logVersion {
			d.logVersion = ver
			d.uncommittedIndex = val
			if d.state.Kind == KindWait {
				d.state = State{Kind: KindAppendLogs}
			}
		}

		cont := d.step(ctx)
		if !cont {
			return
		}
	}
}

// step executes exactly one state and returns false when the driver
// should terminate.
func (d *Driver) step(ctx context.Context) bool {
	switch d.state.Kind {
	case KindBecomeLeader:
		return d.handleBecomeLeader(ctx)
	case KindSynchronize:
		return d.handleSynchronize(ctx)
	case KindMerge:
		return d.handleMerge(ctx)
	case KindWait:
		return d.handleWait(ctx)
	case KindAppendLogs:
		return d.handleAppendLogs(ctx)
	case KindAppendChanges:
		return d.handleAppendChanges(ctx)
	case KindAppendBlobs:
		return d.handleAppendBlobs(ctx)
	default:
		return false
	}
}

func (d *Driver) handleBecomeLeader(ctx context.Context) bool {
	resp := d.PeerTx.Call(ctx, rpc.Request{Kind: rpc.ReqBecomeFollower, From: d.SelfPeerID, Term: d.term, LastLog: d.lastLog})
	return d.dispatchBecomeFollowerResponse(ctx, resp)
}

func (d *Driver) dispatchBecomeFollowerResponse(ctx context.Context, resp rpc.Response) bool {
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}
	if resp.Kind != rpc.RespAppendEntries || resp.AppendEntries.Kind != rpc.AERMatch {
		log.Error("leader: unexpected response to BecomeFollower, ignoring")
		return true
	}

	matchLog := resp.AppendEntries.MatchLog
	d.followerLastIdx = matchLog.Index

	if matchLog.IsNone() {
		if d.uncommittedIndex != types.RaftIDNone.Index {
			d.state = State{Kind: KindAppendLogs}
		} else {
			d.state = State{Kind: KindWait}
		}
		return true
	}

	// next is compared against matchLog itself, not some successor of
	// it -- preserved verbatim from get_next_raft_id's use in the
	// source, which treats equality here as "leader and follower fully
	// agree up to matchLog" rather than a true successor check.
	next, ok, err := d.Log.GetNextRaftId(matchLog)
	if err != nil {
		log.Errorf("leader: error getting next raft id", err)
		return false
	}
	if !ok {
		log.Error("leader: log sync failed, could not match follower's reported id")
		return false
	}
	if next == matchLog {
		d.emit(&events.Event{Type: events.EventAdvanceCommitIndex, PeerID: d.Peer.PeerID, CommitIndex: matchLog.Index})
		d.state = State{Kind: KindAppendLogs}
		return true
	}
	d.state = State{Kind: KindSynchronize}
	return true
}

func (d *Driver) handleSynchronize(ctx context.Context) bool {
	terms, err := d.Log.GetMatchTerms()
	if err != nil {
		log.Errorf("leader: failed to read match terms", err)
		return false
	}
	encoded, err := encodeRaftIds(terms)
	if err != nil {
		log.Errorf("leader: failed to encode match terms", err)
		return false
	}

	resp := d.PeerTx.Call(ctx, rpc.Request{
		Kind: rpc.ReqAppendEntries,
		From: d.SelfPeerID,
		Term: d.term,
		AppendEntries: rpc.AppendEntriesRequest{
			Kind:       rpc.AESynchronize,
			MatchTerms: encoded,
		},
	})
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}
	if resp.Kind != rpc.RespAppendEntries || resp.AppendEntries.Kind != rpc.AERSynchronize {
		log.Error("leader: unexpected response to Synchronize, ignoring")
		return true
	}

	matchIndexes := resp.AppendEntries.MatchIndexes
	if len(matchIndexes) == 0 {
		d.followerLastIdx = types.RaftIDNone.Index
		d.state = State{Kind: KindMerge, MatchedLog: types.RaftIDNone}
		return true
	}

	followerIndexes, err := decodeIndexSet(matchIndexes)
	if err != nil {
		log.Errorf("leader: failed to decode follower index set", err)
		return false
	}
	minIndex, ok := indexSetMinimum(followerIndexes)
	if !ok {
		log.Error("leader: log sync failed, match index set is empty")
		return false
	}

	term, localIndexes, ok, err := d.Log.GetMatchIndexes(minIndex)
	if err != nil {
		log.Errorf("leader: failed to read local match indexes", err)
		return false
	}
	if !ok {
		d.state = State{Kind: KindBecomeLeader}
		return true
	}

	maxCommon, ok := intersectMax(followerIndexes, localIndexes)
	if !ok {
		d.state = State{Kind: KindBecomeLeader}
		return true
	}
	matchedLog := types.NewRaftId(term, maxCommon)
	d.followerLastIdx = matchedLog.Index
	d.state = State{Kind: KindMerge, MatchedLog: matchedLog}
	return true
}

func (d *Driver) handleMerge(ctx context.Context) bool {
	resp := d.PeerTx.Call(ctx, rpc.Request{
		Kind: rpc.ReqAppendEntries,
		From: d.SelfPeerID,
		Term: d.term,
		AppendEntries: rpc.AppendEntriesRequest{
			Kind:       rpc.AEMerge,
			MatchedLog: d.state.MatchedLog,
		},
	})
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}
	switch resp.AppendEntries.Kind {
	case rpc.AERSynchronize:
		d.state = State{Kind: KindSynchronize}
		return true
	case rpc.AERUpdate:
		ae := resp.AppendEntries
		mc, err := decodeMergedChanges(ae.Changes)
		if err != nil {
			log.Errorf("leader: corrupt merged changes from follower", err)
			return false
		}
		if ae.IsRollback {
			mc.Rollback()
		}
		d.state = State{
			Kind:       KindAppendChanges,
			AccountID:  ae.AccountID,
			Collection: ae.Collection,
			Changes:    mc,
			IsRollback: ae.IsRollback,
		}
		return true
	default:
		log.Error("leader: unexpected response to Merge, ignoring")
		return true
	}
}

// dispatchAppendEntriesResponse interprets a follower's reply to an
// AEUpdate or AEAdvanceCommitIndex request, any of which may instead
// carry a resync request (Synchronize), a fresh change bundle (Update)
// or a blob request (FetchBlobs) -- the follower is always free to
// answer with whatever it actually needs next.
func (d *Driver) dispatchAppendEntriesResponse(resp rpc.Response) bool {
	if resp.Kind != rpc.RespAppendEntries {
		log.Error("leader: unexpected response, ignoring")
		return true
	}
	ae := resp.AppendEntries
	switch ae.Kind {
	case rpc.AERContinue:
		d.state = State{Kind: KindAppendLogs, PendingChanges: d.state.PendingChanges}
	case rpc.AERDone:
		if ae.UpToIndex != types.RaftIDNone.Index {
			d.emit(&events.Event{Type: events.EventAdvanceCommitIndex, PeerID: d.Peer.PeerID, CommitIndex: ae.UpToIndex})
		}
		if ae.UpToIndex != d.uncommittedIndex {
			d.state = State{Kind: KindAppendLogs}
		} else {
			d.state = State{Kind: KindWait}
		}
	case rpc.AERSynchronize:
		d.state = State{Kind: KindSynchronize}
	case rpc.AERUpdate:
		mc, err := decodeMergedChanges(ae.Changes)
		if err != nil {
			log.Errorf("leader: corrupt merged changes from follower", err)
			return false
		}
		if ae.IsRollback {
			mc.Rollback()
		}
		d.state = State{
			Kind:       KindAppendChanges,
			AccountID:  ae.AccountID,
			Collection: ae.Collection,
			Changes:    mc,
			IsRollback: ae.IsRollback,
		}
	case rpc.AERFetchBlobs:
		d.state = State{Kind: KindAppendBlobs, PendingBlobIDs: ae.BlobIDs}
	default:
		log.Error("leader: unrecognized AppendEntries response kind, ignoring")
	}
	return true
}

func (d *Driver) handleWait(ctx context.Context) bool {
	val, ver, ok := d.LogIndexRx.Changed(d.logVersion, ctx.Done())
	if !ok {
		return false
	}
	d.logVersion = ver
	d.uncommittedIndex = val
	d.state = State{Kind: KindAppendLogs}
	return true
}

func (d *Driver) handleAppendLogs(ctx context.Context) bool {
	if len(d.state.PendingChanges) == 0 && d.followerLastIdx == d.uncommittedIndex {
		resp := d.PeerTx.Call(ctx, rpc.Request{
			Kind: rpc.ReqAppendEntries,
			From: d.SelfPeerID,
			Term: d.term,
			AppendEntries: rpc.AppendEntriesRequest{
				Kind:        rpc.AEAdvanceCommitIndex,
				CommitIndex: d.lastLog.Index,
			},
		})
		if handled, cont := d.handleCommonResponse(ctx, resp); handled {
			return cont
		}
		return d.dispatchAppendEntriesResponse(resp)
	}

	var batch *raftlog.Batch
	var getErr error
	work := func() {
		batch, getErr = d.Log.GetEntries(d.followerLastIdx, d.uncommittedIndex, d.state.PendingChanges, BatchMaxBytes)
	}
	if d.RunOnWorker != nil {
		d.RunOnWorker(work)
	} else {
		work()
	}
	if getErr != nil {
		log.Errorf("leader: failed to read log entries for AppendLogs", getErr)
		return false
	}

	resp := d.PeerTx.Call(ctx, rpc.Request{
		Kind: rpc.ReqAppendEntries,
		From: d.SelfPeerID,
		Term: d.term,
		AppendEntries: rpc.AppendEntriesRequest{
			Kind:        rpc.AEUpdate,
			CommitIndex: d.lastLog.Index,
			Updates:     batch.Updates,
		},
	})
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}
	d.followerLastIdx = batch.LastIndex
	d.state.PendingChanges = batch.RemainingChanges
	return d.dispatchAppendEntriesResponse(resp)
}

func (d *Driver) handleAppendChanges(ctx context.Context) bool {
	encoded, err := d.state.Changes.Serialize()
	if err != nil {
		log.Errorf("leader: failed to serialize changes for follower", err)
		return false
	}
	updates, err := d.PrepareChanges(d.state.AccountID, d.state.Collection, encoded, d.state.IsRollback)
	if err != nil {
		log.Errorf("leader: prepare_changes failed", err)
		return false
	}
	resp := d.PeerTx.Call(ctx, rpc.Request{
		Kind: rpc.ReqAppendEntries,
		From: d.SelfPeerID,
		Term: d.term,
		AppendEntries: rpc.AppendEntriesRequest{
			Kind: rpc.AEUpdate,
			Updates: []types.LogEntry{
				types.NewUpdateEntry(d.state.AccountID, d.state.Collection, updates),
			},
		},
	})
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}
	return d.dispatchAppendEntriesResponse(resp)
}

// handleAppendBlobs prepares and ships pending blobs, looping while any
// remain. An empty pending list reaching this state is unexpected (the
// driver should only enter AppendBlobs via a FetchBlobs response that
// names at least one blob) and aborts the driver rather than looping
// forever -- preserved verbatim from the source, which has the same
// behavior and the same latent follower-deadlock risk if a FetchBlobs
// response with an empty id list is ever sent. See DESIGN.md.
func (d *Driver) handleAppendBlobs(ctx context.Context) bool {
	if len(d.state.PendingBlobIDs) == 0 {
		log.Error("leader: AppendBlobs entered with no pending blob ids, aborting driver")
		return false
	}

	updates, remaining, err := d.PrepareBlobs(d.state.PendingBlobIDs)
	if err != nil {
		log.Errorf("leader: prepare_blobs failed", err)
		return false
	}

	resp := d.PeerTx.Call(ctx, rpc.Request{
		Kind: rpc.ReqAppendEntries,
		From: d.SelfPeerID,
		Term: d.term,
		AppendEntries: rpc.AppendEntriesRequest{
			Kind: rpc.AEUpdate,
			Updates: []types.LogEntry{
				{Kind: types.LogEntryUpdate, Changes: updates},
			},
		},
	})
	if handled, cont := d.handleCommonResponse(ctx, resp); handled {
		return cont
	}

	if resp.Kind == rpc.RespAppendEntries &&
		(resp.AppendEntries.Kind == rpc.AERSynchronize || resp.AppendEntries.Kind == rpc.AERFetchBlobs) {
		return d.dispatchAppendEntriesResponse(resp)
	}

	if len(remaining) == 0 {
		d.state = State{Kind: KindAppendLogs}
		return true
	}
	d.state = State{Kind: KindAppendBlobs, PendingBlobIDs: remaining}
	return true
}
