package service

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cuemby/shardmail/pkg/changes"
	"github.com/cuemby/shardmail/pkg/storage"
	"github.com/cuemby/shardmail/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPrepareChangesRoundTripsThroughApply(t *testing.T) {
	leaderStore := newTestStore(t)
	followerStore := newTestStore(t)

	require.NoError(t, leaderStore.SaveSnapshot(1, types.CollectionMail, 5, []byte("snapshot-5")))
	require.NoError(t, leaderStore.SaveSnapshot(1, types.CollectionMail, 6, []byte("snapshot-6")))

	merged := changes.New()
	merged.Inserts.AddMany([]uint32{5, 6})
	serialized, err := merged.Serialize()
	require.NoError(t, err)

	p := NewPreparer(leaderStore)
	payload, err := p.PrepareChanges(1, types.CollectionMail, serialized, false)
	require.NoError(t, err)

	require.NoError(t, ApplyUpdatePayload(followerStore, 1, types.CollectionMail, payload))

	got, ok, err := followerStore.GetSnapshot(1, types.CollectionMail, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("snapshot-5"), got)

	used, err := followerStore.UsedDocumentIDs(1, types.CollectionMail)
	require.NoError(t, err)
	want := roaring.New()
	want.AddMany([]uint32{5, 6})
	require.True(t, want.Equals(used))
}

func TestPrepareChangesSkipsMissingSnapshots(t *testing.T) {
	leaderStore := newTestStore(t)

	merged := changes.New()
	merged.Inserts.Add(9)
	serialized, err := merged.Serialize()
	require.NoError(t, err)

	p := NewPreparer(leaderStore)
	payload, err := p.PrepareChanges(1, types.CollectionMail, serialized, false)
	require.NoError(t, err)

	var decoded UpdatePayload
	require.NoError(t, gob.NewDecoder(bytes.NewReader(payload)).Decode(&decoded))
	require.Empty(t, decoded.Updates)
}

func TestApplyUpdatePayloadHandlesDeletes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveSnapshot(1, types.CollectionMail, 3, []byte("x")))
	require.NoError(t, store.ApplyDocumentChanges(1, types.CollectionMail, roaring.BitmapOf(3), roaring.New()))

	merged := changes.New()
	merged.Deletes.Add(3)
	serialized, err := merged.Serialize()
	require.NoError(t, err)

	p := NewPreparer(store)
	payload, err := p.PrepareChanges(1, types.CollectionMail, serialized, false)
	require.NoError(t, err)
	require.NoError(t, ApplyUpdatePayload(store, 1, types.CollectionMail, payload))

	_, ok, err := store.GetSnapshot(1, types.CollectionMail, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrepareBlobsReturnsAllAsRemaining(t *testing.T) {
	p := NewPreparer(newTestStore(t))
	updates, remaining, err := p.PrepareBlobs([]string{"a", "b"})
	require.NoError(t, err)
	require.Nil(t, updates)
	require.Equal(t, []string{"a", "b"}, remaining)
}
