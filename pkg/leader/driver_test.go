package leader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/shardmail/pkg/changes"
	"github.com/cuemby/shardmail/pkg/events"
	"github.com/cuemby/shardmail/pkg/raftlog"
	"github.com/cuemby/shardmail/pkg/rpc"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/cuemby/shardmail/pkg/watch"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestLog(t *testing.T) *raftlog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raft.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := raftlog.Open(db)
	require.NoError(t, err)
	return store
}

// fakeTransport plays back a canned queue of responses, one per Call,
// recording every request sent so assertions can inspect the sequence.
type fakeTransport struct {
	requests  []rpc.Request
	responses []rpc.Response
}

func (f *fakeTransport) Call(_ context.Context, req rpc.Request) rpc.Response {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return rpc.None()
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp
}

func newTestDriver(t *testing.T, tx PeerTransport) (*Driver, *raftlog.Store) {
	t.Helper()
	store := newTestLog(t)
	d := &Driver{
		Peer:       &types.Peer{PeerID: 7},
		PeerTx:     tx,
		Events:     make(chan *events.Event, 10),
		Log:        store,
		LogIndexRx: watch.NewValue[types.LogIndex](0),
		OnlineRx:   watch.NewValue(false),
		state:      State{Kind: KindBecomeLeader},
	}
	return d, store
}

// S5: an empty-log follower catching up to a leader with no uncommitted
// entries goes straight to Wait, never touching AppendLogs/Synchronize.
func TestBecomeLeaderEmptyFollowerNoUncommittedGoesToWait(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERMatch, MatchLog: types.RaftIDNone}},
	}}
	d, _ := newTestDriver(t, tx)
	d.uncommittedIndex = types.RaftIDNone.Index

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindWait, d.state.Kind)
}

// S5 continued: an empty-log follower with uncommitted entries pending
// goes to AppendLogs instead.
func TestBecomeLeaderEmptyFollowerWithUncommittedGoesToAppendLogs(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERMatch, MatchLog: types.RaftIDNone}},
	}}
	d, _ := newTestDriver(t, tx)
	d.uncommittedIndex = 5

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindAppendLogs, d.state.Kind)
}

// S6: a follower reporting it matches the leader's last entry advances
// the commit index and proceeds straight to AppendLogs, skipping
// Synchronize entirely.
func TestBecomeLeaderMatchAtLastEntryAdvancesAndSkipsSynchronize(t *testing.T) {
	store := newTestLog(t)
	require.NoError(t, store.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(1, types.CollectionMailbox, []byte("a"))))

	matchLog, err := store.LastLog()
	require.NoError(t, err)

	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERMatch, MatchLog: matchLog}},
	}}
	d := &Driver{
		Peer:       &types.Peer{PeerID: 3},
		PeerTx:     tx,
		Events:     make(chan *events.Event, 10),
		Log:        store,
		LogIndexRx: watch.NewValue[types.LogIndex](0),
		state:      State{Kind: KindBecomeLeader},
	}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindAppendLogs, d.state.Kind)

	select {
	case ev := <-d.Events:
		require.Equal(t, events.EventAdvanceCommitIndex, ev.Type)
		require.Equal(t, matchLog.Index, ev.CommitIndex)
	default:
		t.Fatal("expected an AdvanceCommitIndex event")
	}
}

// A follower reporting a match point behind the leader's last entry
// diverges into Synchronize to reconcile term history.
func TestBecomeLeaderMatchBehindLastEntryGoesToSynchronize(t *testing.T) {
	store := newTestLog(t)
	require.NoError(t, store.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(1, types.CollectionMailbox, []byte("a"))))
	require.NoError(t, store.Append(types.NewRaftId(1, 2), types.NewUpdateEntry(1, types.CollectionMailbox, []byte("b"))))

	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERMatch, MatchLog: types.NewRaftId(1, 1)}},
	}}
	d := &Driver{
		Peer:       &types.Peer{PeerID: 3},
		PeerTx:     tx,
		Events:     make(chan *events.Event, 10),
		Log:        store,
		LogIndexRx: watch.NewValue[types.LogIndex](0),
		state:      State{Kind: KindBecomeLeader},
	}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindSynchronize, d.state.Kind)
}

func TestStepDownEventEmittedAndDriverTerminates(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespStepDown, Term: 99},
	}}
	d, _ := newTestDriver(t, tx)

	cont := d.step(context.Background())
	require.False(t, cont)

	ev := <-d.Events
	require.Equal(t, events.EventStepDown, ev.Type)
	require.Equal(t, types.TermID(99), ev.Term)
}

func TestUnregisteredPeerResetsToBecomeLeader(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespUnregisteredPeer},
	}}
	d, _ := newTestDriver(t, tx)
	d.state = State{Kind: KindSynchronize}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindBecomeLeader, d.state.Kind)
}

// AppendBlobs entered with no pending ids is a protocol violation and
// must abort the driver rather than spin forever, per spec.md's note on
// an empty FetchBlobs payload.
func TestAppendBlobsAbortsOnEmptyPending(t *testing.T) {
	d, _ := newTestDriver(t, &fakeTransport{})
	d.state = State{Kind: KindAppendBlobs, PendingBlobIDs: nil}

	cont := d.step(context.Background())
	require.False(t, cont)
}

func TestAppendBlobsSendsAndLoopsUntilDrained(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERContinue}},
	}}
	d, _ := newTestDriver(t, tx)
	called := false
	d.PrepareBlobs = func(ids []string) ([]byte, []string, error) {
		called = true
		require.Equal(t, []string{"b1", "b2"}, ids)
		return []byte("blob-bytes"), []string{"b2"}, nil
	}
	d.state = State{Kind: KindAppendBlobs, PendingBlobIDs: []string{"b1", "b2"}}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.True(t, called)
	require.Equal(t, KindAppendBlobs, d.state.Kind)
	require.Equal(t, []string{"b2"}, d.state.PendingBlobIDs)
}

func TestAppendBlobsTransitionsToAppendLogsWhenDrained(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERContinue}},
	}}
	d, _ := newTestDriver(t, tx)
	d.PrepareBlobs = func(ids []string) ([]byte, []string, error) {
		return []byte("blob-bytes"), nil, nil
	}
	d.state = State{Kind: KindAppendBlobs, PendingBlobIDs: []string{"only"}}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, KindAppendLogs, d.state.Kind)
}

func TestAppendChangesSendsUpdateAndReturnsToAppendLogs(t *testing.T) {
	tx := &fakeTransport{responses: []rpc.Response{
		{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERContinue}},
	}}
	d, _ := newTestDriver(t, tx)
	var gotAccount types.AccountID
	d.PrepareChanges = func(accountID types.AccountID, collection types.Collection, raw []byte, isRollback bool) ([]byte, error) {
		gotAccount = accountID
		return []byte("prepared"), nil
	}
	mc := changes.New()
	mc.Inserts.Add(1)
	d.state = State{Kind: KindAppendChanges, AccountID: 42, Collection: types.CollectionMailbox, Changes: mc}

	cont := d.step(context.Background())
	require.True(t, cont)
	require.Equal(t, types.AccountID(42), gotAccount)
	require.Equal(t, KindAppendLogs, d.state.Kind)
	require.Len(t, tx.requests, 1)
	require.Equal(t, rpc.AEUpdate, tx.requests[0].AppendEntries.Kind)
}

func TestDoneAdvancesCommitAndWaitsWhenCaughtUp(t *testing.T) {
	d, _ := newTestDriver(t, &fakeTransport{})
	d.uncommittedIndex = 10
	d.state = State{Kind: KindAppendLogs}

	resp := rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERDone, UpToIndex: 10}}
	cont := d.dispatchAppendEntriesResponse(resp)
	require.True(t, cont)
	require.Equal(t, KindWait, d.state.Kind)

	ev := <-d.Events
	require.Equal(t, events.EventAdvanceCommitIndex, ev.Type)
	require.Equal(t, types.LogIndex(10), ev.CommitIndex)
}

func TestDoneKeepsAppendingWhenBehindCommitIndex(t *testing.T) {
	d, _ := newTestDriver(t, &fakeTransport{})
	d.uncommittedIndex = 20
	d.state = State{Kind: KindAppendLogs}

	resp := rpc.Response{Kind: rpc.RespAppendEntries, AppendEntries: rpc.AppendEntriesResponse{Kind: rpc.AERDone, UpToIndex: 10}}
	cont := d.dispatchAppendEntriesResponse(resp)
	require.True(t, cont)
	require.Equal(t, KindAppendLogs, d.state.Kind)
}
