package cluster

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *raftlog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raft.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := raftlog.Open(db)
	require.NoError(t, err)
	return store
}

func newTestCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	cfg.NodeID = 1
	store := newTestStore(t)
	c, err := NewCoordinator(cfg, store)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestMutexMapRunsSequentially(t *testing.T) {
	m := NewMutexMap()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		err := m.WithLock(42, func() error {
			order = append(order, i)
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestMutexMapPoisonsOnPanic(t *testing.T) {
	m := NewMutexMap()
	require.Panics(t, func() {
		_ = m.WithLock(7, func() error { panic("boom") })
	})

	err := m.WithLock(7, func() error { return nil })
	require.Error(t, err)
}

func TestMutexMapIsolatesAccounts(t *testing.T) {
	m := NewMutexMap()
	require.Panics(t, func() {
		_ = m.WithLock(1, func() error { panic("boom") })
	})
	err := m.WithLock(2, func() error { return nil })
	require.NoError(t, err)
}

func TestWorkerPoolRunsAndReturns(t *testing.T) {
	p := NewWorkerPool(2)
	ran := false
	p.Run(func() { ran = true })
	require.True(t, ran)
}

func TestHandleVoteGrantedWhenBehind(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1, Peers: []*types.Peer{{PeerID: 2, ShardID: 1, Online: true}}})

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqVote, From: 2, Term: 1, Last: types.RaftIDNone})
	require.Equal(t, rpc.RespVote, resp.Kind)
	require.True(t, resp.VoteGranted)
}

func TestHandleVoteDeniedToSecondCandidateSameTerm(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1, Peers: []*types.Peer{
		{PeerID: 2, ShardID: 1, Online: true},
		{PeerID: 3, ShardID: 1, Online: true},
	}})

	first := c.HandleRequest(rpc.Request{Kind: rpc.ReqVote, From: 2, Term: 1, Last: types.RaftIDNone})
	require.True(t, first.VoteGranted)

	second := c.HandleRequest(rpc.Request{Kind: rpc.ReqVote, From: 3, Term: 1, Last: types.RaftIDNone})
	require.False(t, second.VoteGranted)
}

func TestHandleBecomeFollowerReturnsLocalMatchLog(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})
	require.NoError(t, c.log.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(9, types.CollectionMailbox, []byte("x"))))

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqBecomeFollower, From: 5, Term: 1, LastLog: types.NewRaftId(1, 1)})
	require.Equal(t, rpc.RespAppendEntries, resp.Kind)
	require.Equal(t, rpc.AERMatch, resp.AppendEntries.Kind)
	require.Equal(t, types.NewRaftId(1, 1), resp.AppendEntries.MatchLog)
	require.True(t, c.node.IsFollowingPeer(5))
}

func TestHandleBecomeFollowerStepsDownStaleLeader(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})
	c.node.Term = 5

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqBecomeFollower, From: 2, Term: 1})
	require.Equal(t, rpc.RespStepDown, resp.Kind)
	require.Equal(t, types.TermID(5), resp.Term)
}

func TestHandleAppendEntriesAdvanceCommitIndexDoneImmediately(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqAppendEntries, Term: 0, AppendEntries: rpc.AppendEntriesRequest{
		Kind: rpc.AEAdvanceCommitIndex, CommitIndex: 10,
	}})
	require.Equal(t, rpc.AERDone, resp.AppendEntries.Kind)
	require.Equal(t, types.LogIndex(10), resp.AppendEntries.UpToIndex)
}

func TestHandleAppendEntriesUpdateWithoutApplierContinues(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqAppendEntries, Term: 0, AppendEntries: rpc.AppendEntriesRequest{
		Kind:        rpc.AEUpdate,
		CommitIndex: 10,
		Updates:     []types.LogEntry{types.NewUpdateEntry(1, types.CollectionMailbox, []byte("x"))},
	}})
	require.Equal(t, rpc.AERContinue, resp.AppendEntries.Kind)
}

func TestHandleAppendEntriesUpdateWithApplierCanFinish(t *testing.T) {
	cfg := Config{ShardID: 1, ApplyEntries: func(entries []types.LogEntry) (types.LogIndex, error) {
		return 10, nil
	}}
	c := newTestCoordinator(t, cfg)

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqAppendEntries, Term: 0, AppendEntries: rpc.AppendEntriesRequest{
		Kind:        rpc.AEUpdate,
		CommitIndex: 10,
		Updates:     []types.LogEntry{types.NewUpdateEntry(1, types.CollectionMailbox, []byte("x"))},
	}})
	require.Equal(t, rpc.AERDone, resp.AppendEntries.Kind)
	require.Equal(t, types.LogIndex(10), resp.AppendEntries.UpToIndex)
}

func TestHandleMergeFindsNextUpdateEntry(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})
	require.NoError(t, c.log.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(3, types.CollectionMail, []byte("a"))))
	require.NoError(t, c.log.Append(types.NewRaftId(1, 2), types.NewUpdateEntry(3, types.CollectionMail, []byte("b"))))

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqAppendEntries, AppendEntries: rpc.AppendEntriesRequest{
		Kind: rpc.AEMerge, MatchedLog: types.NewRaftId(1, 1),
	}})
	require.Equal(t, rpc.AERUpdate, resp.AppendEntries.Kind)
	require.Equal(t, types.AccountID(3), resp.AppendEntries.AccountID)
	require.Equal(t, []byte("b"), resp.AppendEntries.Changes)
}

func TestHandleMergeFallsBackToSynchronizeWhenCaughtUp(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1})
	require.NoError(t, c.log.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(3, types.CollectionMail, []byte("a"))))

	resp := c.HandleRequest(rpc.Request{Kind: rpc.ReqAppendEntries, AppendEntries: rpc.AppendEntriesRequest{
		Kind: rpc.AEMerge, MatchedLog: types.NewRaftId(1, 1),
	}})
	require.Equal(t, rpc.AERSynchronize, resp.AppendEntries.Kind)
}

func TestSetPeerOnlinePublishesEvent(t *testing.T) {
	c := newTestCoordinator(t, Config{ShardID: 1, Peers: []*types.Peer{{PeerID: 2, ShardID: 1}}})
	c.broker.Start()
	defer c.broker.Stop()
	sub := c.Subscribe()

	c.SetPeerOnline(2, true)

	ev := <-sub
	require.Equal(t, uint64(2), ev.PeerID)
	online, _ := c.onlineValue(2).Get()
	require.True(t, online)
}
