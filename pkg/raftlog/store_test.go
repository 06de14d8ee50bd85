package raftlog

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/shardmail/pkg/types"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raftlog.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := Open(db)
	require.NoError(t, err)
	return s
}

func TestAppendAndLastLog(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LastLog()
	require.NoError(t, err)

	require.NoError(t, s.Append(types.NewRaftId(1, 0), types.NewSnapshotEntry(types.NewRaftId(1, 0))))
	require.NoError(t, s.Append(types.NewRaftId(1, 1), types.NewUpdateEntry(7, types.CollectionMailbox, []byte("a"))))

	last, err := s.LastLog()
	require.NoError(t, err)
	require.Equal(t, types.NewRaftId(1, 1), last)
}

func TestGetMatchTermsAnchorsAtZero(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(types.NewRaftId(1, 0), types.NewSnapshotEntry(types.RaftIDNone)))
	require.NoError(t, s.Append(types.NewRaftId(1, 1), types.NewSnapshotEntry(types.RaftIDNone)))
	require.NoError(t, s.Append(types.NewRaftId(2, 2), types.NewSnapshotEntry(types.RaftIDNone)))

	terms, err := s.GetMatchTerms()
	require.NoError(t, err)
	require.Equal(t, []types.RaftId{
		types.NewRaftId(1, 0),
		types.NewRaftId(2, 2),
	}, terms)
}

func TestGetMatchIndexesIntersectsTerm(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(types.NewRaftId(1, 0), types.NewSnapshotEntry(types.RaftIDNone)))
	require.NoError(t, s.Append(types.NewRaftId(1, 1), types.NewSnapshotEntry(types.RaftIDNone)))
	require.NoError(t, s.Append(types.NewRaftId(2, 2), types.NewSnapshotEntry(types.RaftIDNone)))

	term, indexes, ok, err := s.GetMatchIndexes(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), term)
	require.Equal(t, []uint64{1}, indexes.ToArray())
}

func TestGetEntriesPacksEntriesAfterIndex(t *testing.T) {
	s := newTestStore(t)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.Append(types.NewRaftId(1, i), types.NewUpdateEntry(1, types.CollectionMailbox, []byte("xx"))))
	}

	batch, err := s.GetEntries(0, 4, nil, 1<<20)
	require.NoError(t, err)
	require.Len(t, batch.Updates, 4)
	require.Equal(t, uint64(4), batch.LastIndex)
}
